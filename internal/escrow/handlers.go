package escrow

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/cilistia/engine/internal/api"
	"github.com/cilistia/engine/internal/ledger"
)

type CreateTransactionRequest struct {
	Asset  string          `json:"asset"`
	From   string          `json:"from"`
	To     string          `json:"to"`
	Amount decimal.Decimal `json:"amount"`
	Value  decimal.Decimal `json:"value"`
}

type AccountRequest struct {
	Account string `json:"account"`
}

type WhitelistRequest struct {
	Account string `json:"account"`
	Asset   string `json:"asset"`
	Allowed bool   `json:"allowed"`
}

func (s *Service) HandleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req CreateTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	key, err := s.CreateTransaction(r.Context(), CreateTransactionParams{
		Asset:  req.Asset,
		From:   req.From,
		To:     req.To,
		Amount: req.Amount,
		Value:  req.Value,
	})
	if err != nil {
		api.WriteError(w, err.Error(), statusFor(err))
		return
	}
	api.WriteJSON(w, http.StatusCreated, map[string]string{"key": key})
}

func (s *Service) HandleGetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := s.Transaction(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		api.WriteError(w, err.Error(), statusFor(err))
		return
	}
	api.WriteJSON(w, http.StatusOK, tx)
}

func (s *Service) HandleSignTransaction(w http.ResponseWriter, r *http.Request) {
	s.accountAction(w, r, s.SignTransaction)
}

func (s *Service) HandleRejectTransaction(w http.ResponseWriter, r *http.Request) {
	s.accountAction(w, r, s.RejectTransaction)
}

func (s *Service) HandleResumeTransaction(w http.ResponseWriter, r *http.Request) {
	s.accountAction(w, r, s.ResumeTransaction)
}

func (s *Service) HandleFinishTransaction(w http.ResponseWriter, r *http.Request) {
	s.accountAction(w, r, s.FinishTransaction)
}

func (s *Service) HandleSetWhitelist(w http.ResponseWriter, r *http.Request) {
	var req WhitelistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.SetWhitelist(req.Account, req.Asset, req.Allowed); err != nil {
		api.WriteError(w, err.Error(), statusFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// accountAction handles the shared shape of the sign/reject/resume/
// finish endpoints: an account in the body acting on the keyed
// transaction.
func (s *Service) accountAction(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, key, account string) error) {
	var req AccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := fn(r.Context(), chi.URLParam(r, "key"), req.Account); err != nil {
		api.WriteError(w, err.Error(), statusFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidParties),
		errors.Is(err, ErrAmountMismatch),
		errors.Is(err, ErrAssetNotWhitelisted):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotAuthorized),
		errors.Is(err, ErrNotParty),
		errors.Is(err, ErrNotSender):
		return http.StatusForbidden
	case errors.Is(err, ErrTransactionNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadySigned),
		errors.Is(err, ErrNotPending),
		errors.Is(err, ErrNotRejected),
		errors.Is(err, ErrNotFullySigned),
		errors.Is(err, ErrLockPeriodActive),
		errors.Is(err, ledger.ErrInsufficientBalance):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
