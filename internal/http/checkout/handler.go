package checkout

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/donorledger/internal/checkout"
	"github.com/MrJamesThe3rd/donorledger/internal/pledge"
	"github.com/MrJamesThe3rd/donorledger/internal/transaction"
)

type Handler struct {
	svc      *checkout.Service
	validate *validator.Validate
}

func NewHandler(svc *checkout.Service) *Handler {
	return &Handler{svc: svc, validate: validator.New(validator.WithRequiredStructEnabled())}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/attempts", h.begin)
}

type beginAttemptRequest struct {
	AttemptID  string          `json:"attempt_id" validate:"required,max=255"`
	Kind       checkout.Kind   `json:"kind" validate:"required,oneof=one_time recurring"`
	Amount     int64           `json:"amount" validate:"gt=0"`
	Currency   string          `json:"currency" validate:"required,len=3,alpha"`
	Interval   pledge.Interval `json:"interval" validate:"required_if=Kind recurring,omitempty,oneof=day week month year"`
	UserID     *uuid.UUID      `json:"user_id"`
	DonorEmail string          `json:"donor_email" validate:"omitempty,email"`
	DonorName  string          `json:"donor_name" validate:"max=255"`
}

type attemptResponse struct {
	AttemptID     string             `json:"attempt_id"`
	TransactionID uuid.UUID          `json:"transaction_id"`
	Status        transaction.Status `json:"status"`
	PledgeID      *uuid.UUID         `json:"pledge_id,omitempty"`
	PledgeStatus  pledge.Status      `json:"pledge_status,omitempty"`
}

func (h *Handler) begin(w http.ResponseWriter, r *http.Request) {
	var req beginAttemptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.Kind == checkout.KindOneTime {
		req.Interval = ""
	}

	attempt, err := h.svc.Begin(r.Context(), checkout.Params{
		AttemptID:  req.AttemptID,
		Kind:       req.Kind,
		Amount:     req.Amount,
		Currency:   strings.ToLower(req.Currency),
		Interval:   req.Interval,
		UserID:     req.UserID,
		DonorEmail: req.DonorEmail,
		DonorName:  req.DonorName,
	})
	if err != nil {
		if errors.Is(err, checkout.ErrAttemptMismatch) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}

		slog.Error("failed to begin checkout attempt", "attempt_id", req.AttemptID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)

		return
	}

	resp := attemptResponse{
		AttemptID:     attempt.Transaction.AttemptID,
		TransactionID: attempt.Transaction.ID,
		Status:        attempt.Transaction.Status,
	}

	if attempt.Pledge != nil {
		resp.PledgeID = &attempt.Pledge.ID
		resp.PledgeStatus = attempt.Pledge.Status
	}

	status := http.StatusCreated
	if attempt.Existing {
		status = http.StatusOK
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
