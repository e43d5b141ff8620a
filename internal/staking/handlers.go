package staking

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/cilistia/engine/internal/api"
	"github.com/cilistia/engine/internal/ledger"
)

// StakeRequest is the JSON body for POST /api/v1/staking/stake.
type StakeRequest struct {
	Account string          `json:"account"`
	Amount  decimal.Decimal `json:"amount"`
}

// UnStakeRequest is the JSON body for POST /api/v1/staking/unstake.
type UnStakeRequest struct {
	Account string `json:"account"`
}

// RewardRequest is the JSON body for POST /api/v1/staking/rewards.
type RewardRequest struct {
	Source string          `json:"source"`
	Amount decimal.Decimal `json:"amount"`
}

// HandleStake handles POST /api/v1/staking/stake.
func (s *Service) HandleStake(w http.ResponseWriter, r *http.Request) {
	var req StakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Account == "" {
		api.WriteError(w, "account is required", http.StatusBadRequest)
		return
	}

	if err := s.Stake(r.Context(), req.Account, req.Amount); err != nil {
		api.WriteError(w, err.Error(), statusFor(err))
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]string{"status": "staked"})
}

// HandleUnStake handles POST /api/v1/staking/unstake.
func (s *Service) HandleUnStake(w http.ResponseWriter, r *http.Request) {
	var req UnStakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	released, err := s.UnStake(r.Context(), req.Account)
	if err != nil {
		api.WriteError(w, err.Error(), statusFor(err))
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]string{"released": released.String()})
}

// HandleDepositReward handles POST /api/v1/staking/rewards.
func (s *Service) HandleDepositReward(w http.ResponseWriter, r *http.Request) {
	var req RewardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.DepositReward(r.Context(), req.Source, req.Amount); err != nil {
		api.WriteError(w, err.Error(), statusFor(err))
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]string{"status": "distributed"})
}

// HandleGetAccount handles GET /api/v1/staking/{account}.
func (s *Service) HandleGetAccount(w http.ResponseWriter, r *http.Request) {
	acc, err := s.Account(r.Context(), chi.URLParam(r, "account"))
	if err != nil {
		api.WriteError(w, "no stake for account", http.StatusNotFound)
		return
	}
	api.WriteJSON(w, http.StatusOK, acc)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, ErrNoStake):
		return http.StatusNotFound
	case errors.Is(err, ErrLockPeriodActive),
		errors.Is(err, ErrNoActiveStakers),
		errors.Is(err, ledger.ErrInsufficientBalance):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
