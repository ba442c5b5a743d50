// Package ledger serves the read side of the ledger: transactions with their
// refunds and pledges with their billing history.
package ledger

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/donorledger/internal/pledge"
	"github.com/MrJamesThe3rd/donorledger/internal/transaction"
)

type Handler struct {
	transactions *transaction.Service
	pledges      *pledge.Service
}

func NewHandler(transactions *transaction.Service, pledges *pledge.Service) *Handler {
	return &Handler{transactions: transactions, pledges: pledges}
}

func (h *Handler) TransactionRoutes(r chi.Router) {
	r.Get("/", h.listTransactions)
	r.Get("/{id}", h.getTransaction)
}

func (h *Handler) PledgeRoutes(r chi.Router) {
	r.Get("/", h.listPledges)
	r.Get("/{id}", h.getPledge)
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	filter := transaction.ListFilter{}
	q := r.URL.Query()

	if s := q.Get("status"); s != "" {
		filter.Status = new(transaction.Status(s))
	}

	if s := q.Get("pledge_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			http.Error(w, "invalid pledge_id", http.StatusBadRequest)
			return
		}

		filter.PledgeID = &id
	}

	if s := q.Get("start_date"); s != "" {
		if t, err := time.Parse(time.DateOnly, s); err == nil {
			filter.StartDate = new(t)
		}
	}

	if s := q.Get("end_date"); s != "" {
		if t, err := time.Parse(time.DateOnly, s); err == nil {
			filter.EndDate = new(t)
		}
	}

	txs, err := h.transactions.List(r.Context(), filter)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, toTransactionList(txs))
}

func (h *Handler) getTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	detail, err := h.transactions.GetDetail(r.Context(), id)
	if err != nil {
		if errors.Is(err, transaction.ErrNotFound) {
			http.Error(w, "transaction not found", http.StatusNotFound)
			return
		}

		http.Error(w, "internal error", http.StatusInternalServerError)

		return
	}

	writeJSON(w, toDetailResponse(detail))
}

func (h *Handler) listPledges(w http.ResponseWriter, r *http.Request) {
	filter := pledge.ListFilter{CustomerID: r.URL.Query().Get("customer_id")}

	if s := r.URL.Query().Get("status"); s != "" {
		filter.Status = new(pledge.Status(s))
	}

	pledges, err := h.pledges.List(r.Context(), filter)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, toPledgeList(pledges))
}

func (h *Handler) getPledge(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	p, err := h.pledges.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, pledge.ErrNotFound) {
			http.Error(w, "pledge not found", http.StatusNotFound)
			return
		}

		http.Error(w, "internal error", http.StatusInternalServerError)

		return
	}

	txs, err := h.transactions.List(r.Context(), transaction.ListFilter{PledgeID: &p.ID})
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	resp := toPledgeResponse(p)
	resp.Transactions = toTransactionList(txs)

	writeJSON(w, resp)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
