package webhook

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/stripe/stripe-go/v74/webhook"

	"github.com/MrJamesThe3rd/donorledger/internal/events"
	"github.com/MrJamesThe3rd/donorledger/internal/reconcile"
)

// maxBodyBytes caps webhook bodies; processor events are well below it.
const maxBodyBytes = 1 << 20

type Handler struct {
	svc    *events.Service
	secret string
}

func NewHandler(svc *events.Service, secret string) *Handler {
	return &Handler{svc: svc, secret: secret}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.receive)
}

type receiveResponse struct {
	Received bool   `json:"received"`
	EventID  string `json:"event_id"`
}

// receive verifies the signature before anything is decoded. A non-2xx reply
// makes the processor redeliver, so only failures worth retrying get a 500.
func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "reading body", http.StatusRequestEntityTooLarge)
		return
	}

	if err := webhook.ValidatePayload(payload, r.Header.Get("Stripe-Signature"), h.secret); err != nil {
		slog.Warn("rejected webhook", "error", err)
		http.Error(w, "invalid signature", http.StatusBadRequest)

		return
	}

	evt, err := h.svc.Ingest(r.Context(), payload)
	if err != nil {
		if errors.Is(err, reconcile.ErrMalformedEvent) {
			slog.Warn("malformed webhook", "error", err)
			http.Error(w, err.Error(), http.StatusBadRequest)

			return
		}

		slog.Error("failed to apply webhook", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(receiveResponse{Received: true, EventID: evt.ID}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
