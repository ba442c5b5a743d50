package events

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/MrJamesThe3rd/donorledger/internal/events"
	"github.com/MrJamesThe3rd/donorledger/internal/reconcile"
)

const defaultLimit = 100

type Handler struct {
	svc *events.Service
}

func NewHandler(svc *events.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Post("/{id}/replay", h.replay)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := events.ListFilter{
		Type:  r.URL.Query().Get("type"),
		Limit: defaultLimit,
	}

	if s := r.URL.Query().Get("failed"); s != "" {
		failed, err := strconv.ParseBool(s)
		if err != nil {
			http.Error(w, "invalid failed flag", http.StatusBadRequest)
			return
		}

		filter.FailedOnly = failed
	}

	if s := r.URL.Query().Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}

		filter.Limit = limit
	}

	records, err := h.svc.List(r.Context(), filter)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, toResponseList(records))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, events.ErrNotFound) {
			http.Error(w, "event not found", http.StatusNotFound)
			return
		}

		http.Error(w, "internal error", http.StatusInternalServerError)

		return
	}

	writeJSON(w, http.StatusOK, toResponse(rec, true))
}

// replay re-applies a stored event. Handlers are idempotent, so replaying an
// event that already succeeded leaves the ledger unchanged.
func (h *Handler) replay(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := h.svc.Replay(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, events.ErrNotFound):
			http.Error(w, "event not found", http.StatusNotFound)
		case errors.Is(err, reconcile.ErrMalformedEvent):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		default:
			slog.Error("replay failed", "event_id", id, "error", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}

		return
	}

	writeJSON(w, http.StatusOK, toResponse(rec, false))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
