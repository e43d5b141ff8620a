package market

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/cilistia/engine/internal/api"
	"github.com/cilistia/engine/internal/ledger"
	"github.com/cilistia/engine/internal/model"
	"github.com/cilistia/engine/internal/oracle"
)

type CreatePositionRequest struct {
	Owner         string          `json:"owner"`
	Price         decimal.Decimal `json:"price"`
	PriceType     model.PriceType `json:"priceType"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	MinAmount     decimal.Decimal `json:"minAmount"`
	MaxAmount     decimal.Decimal `json:"maxAmount"`
	PaymentMethod int             `json:"paymentMethod"`
	Asset         string          `json:"asset"`
	Instructions  string          `json:"instructions"`
	Value         decimal.Decimal `json:"value"`
}

type AdjustPositionRequest struct {
	Account string          `json:"account"`
	Amount  decimal.Decimal `json:"amount"`
	Value   decimal.Decimal `json:"value"`
}

type CreateOfferRequest struct {
	PositionKey      string          `json:"positionKey"`
	Buyer            string          `json:"buyer"`
	Amount           decimal.Decimal `json:"amount"`
	PaymentReference string          `json:"paymentReference"`
}

type AccountRequest struct {
	Account string `json:"account"`
}

func (s *Service) HandleCreatePosition(w http.ResponseWriter, r *http.Request) {
	var req CreatePositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	key, err := s.CreatePosition(r.Context(), CreatePositionParams{
		Owner:         req.Owner,
		Price:         req.Price,
		PriceType:     req.PriceType,
		TotalAmount:   req.TotalAmount,
		MinAmount:     req.MinAmount,
		MaxAmount:     req.MaxAmount,
		PaymentMethod: model.PaymentMethod(req.PaymentMethod),
		Asset:         req.Asset,
		Instructions:  req.Instructions,
		Value:         req.Value,
	})
	if err != nil {
		api.WriteError(w, err.Error(), statusFor(err))
		return
	}
	api.WriteJSON(w, http.StatusCreated, map[string]string{"key": key})
}

func (s *Service) HandleListPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.Positions(r.Context())
	if err != nil {
		api.WriteError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	api.WriteJSON(w, http.StatusOK, positions)
}

func (s *Service) HandleGetPosition(w http.ResponseWriter, r *http.Request) {
	pos, err := s.Position(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		api.WriteError(w, err.Error(), statusFor(err))
		return
	}
	api.WriteJSON(w, http.StatusOK, pos)
}

func (s *Service) HandleIncreasePosition(w http.ResponseWriter, r *http.Request) {
	var req AdjustPositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	key := chi.URLParam(r, "key")
	if err := s.IncreasePosition(r.Context(), key, req.Account, req.Amount, req.Value); err != nil {
		api.WriteError(w, err.Error(), statusFor(err))
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]string{"key": key})
}

func (s *Service) HandleDecreasePosition(w http.ResponseWriter, r *http.Request) {
	var req AdjustPositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	key := chi.URLParam(r, "key")
	if err := s.DecreasePosition(r.Context(), key, req.Account, req.Amount); err != nil {
		api.WriteError(w, err.Error(), statusFor(err))
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]string{"key": key})
}

func (s *Service) HandleRemovePosition(w http.ResponseWriter, r *http.Request) {
	var req AccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.ForceRemovePosition(r.Context(), chi.URLParam(r, "key"), req.Account); err != nil {
		api.WriteError(w, err.Error(), statusFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) HandleCreateOffer(w http.ResponseWriter, r *http.Request) {
	var req CreateOfferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	key, err := s.CreateOffer(r.Context(), CreateOfferParams{
		PositionKey:      req.PositionKey,
		Buyer:            req.Buyer,
		Amount:           req.Amount,
		PaymentReference: req.PaymentReference,
	})
	if err != nil {
		api.WriteError(w, err.Error(), statusFor(err))
		return
	}
	api.WriteJSON(w, http.StatusCreated, map[string]string{"key": key})
}

func (s *Service) HandleGetOffer(w http.ResponseWriter, r *http.Request) {
	offer, err := s.Offer(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		api.WriteError(w, err.Error(), statusFor(err))
		return
	}
	api.WriteJSON(w, http.StatusOK, offer)
}

func (s *Service) HandleCancelOffer(w http.ResponseWriter, r *http.Request) {
	var req AccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.CancelOffer(r.Context(), chi.URLParam(r, "key"), req.Account); err != nil {
		api.WriteError(w, err.Error(), statusFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) HandleReleaseOffer(w http.ResponseWriter, r *http.Request) {
	var req AccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.ReleaseOffer(r.Context(), chi.URLParam(r, "key"), req.Account); err != nil {
		api.WriteError(w, err.Error(), statusFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) HandleForceCancelOffer(w http.ResponseWriter, r *http.Request) {
	var req AccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.ForceCancelOffer(r.Context(), chi.URLParam(r, "key"), req.Account); err != nil {
		api.WriteError(w, err.Error(), statusFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) HandleTokenPrice(w http.ResponseWriter, r *http.Request) {
	price, err := s.TokenPrice(r.Context(), chi.URLParam(r, "asset"))
	if err != nil {
		api.WriteError(w, err.Error(), statusFor(err))
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]string{"price": price.String()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrAmountMismatch),
		errors.Is(err, ErrAmountBelowMin),
		errors.Is(err, ErrAmountAboveMax),
		errors.Is(err, ErrAssetNotWhitelisted):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotAuthorized),
		errors.Is(err, ErrNotOwner),
		errors.Is(err, ErrNotCreator),
		errors.Is(err, ErrNotPositionOwner),
		errors.Is(err, ErrAccountBlocked):
		return http.StatusForbidden
	case errors.Is(err, ErrPositionNotFound),
		errors.Is(err, ErrOfferNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyResolved),
		errors.Is(err, ErrInsufficientUnlocked),
		errors.Is(err, ErrInsufficientCollateral),
		errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, oracle.ErrUnavailable):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
