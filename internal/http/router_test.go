package http_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/MrJamesThe3rd/donorledger/internal/checkout"
	"github.com/MrJamesThe3rd/donorledger/internal/events"
	ledgerhttp "github.com/MrJamesThe3rd/donorledger/internal/http"
	httpcheckout "github.com/MrJamesThe3rd/donorledger/internal/http/checkout"
	httpevents "github.com/MrJamesThe3rd/donorledger/internal/http/events"
	"github.com/MrJamesThe3rd/donorledger/internal/http/ledger"
	"github.com/MrJamesThe3rd/donorledger/internal/http/webhook"
	"github.com/MrJamesThe3rd/donorledger/internal/pledge"
	"github.com/MrJamesThe3rd/donorledger/internal/reconcile"
	"github.com/MrJamesThe3rd/donorledger/internal/store/memory"
	"github.com/MrJamesThe3rd/donorledger/internal/transaction"
)

func newRouter() http.Handler {
	store := memory.New()
	eventsSvc := events.NewService(store, reconcile.NewDispatcher(store, nil, nil))

	return ledgerhttp.New(
		webhook.NewHandler(eventsSvc, "whsec_test"),
		httpcheckout.NewHandler(checkout.NewService(store)),
		ledger.NewHandler(transaction.NewService(store), pledge.NewService(store)),
		httpevents.NewHandler(eventsSvc),
		[]string{"https://donate.example.org"},
	)
}

func TestRouter(t *testing.T) {
	tests := []struct {
		name        string
		method      string
		target      string
		contentType string
		body        string
		origin      string
		wantStatus  int
		wantOrigin  string
	}{
		{name: "Health", method: http.MethodGet, target: "/healthz", wantStatus: http.StatusNoContent},
		{name: "Transactions", method: http.MethodGet, target: "/api/v1/transactions", wantStatus: http.StatusOK},
		{name: "Pledges", method: http.MethodGet, target: "/api/v1/pledges", wantStatus: http.StatusOK},
		{name: "Events", method: http.MethodGet, target: "/api/v1/events", wantStatus: http.StatusOK},
		{
			name:        "CheckoutRequiresJSON",
			method:      http.MethodPost,
			target:      "/api/v1/checkout/attempts",
			contentType: "text/plain",
			body:        "{}",
			wantStatus:  http.StatusUnsupportedMediaType,
		},
		{
			name:        "CheckoutAllowedOrigin",
			method:      http.MethodPost,
			target:      "/api/v1/checkout/attempts",
			contentType: "application/json",
			body:        `{"attempt_id":"att_1","kind":"one_time","amount":100,"currency":"eur"}`,
			origin:      "https://donate.example.org",
			wantStatus:  http.StatusCreated,
			wantOrigin:  "https://donate.example.org",
		},
		{
			name:       "ForeignOriginGetsNoCORSHeaders",
			method:     http.MethodGet,
			target:     "/api/v1/pledges",
			origin:     "https://evil.example.com",
			wantStatus: http.StatusOK,
		},
		{
			name:       "UnsignedWebhook",
			method:     http.MethodPost,
			target:     "/webhooks/stripe",
			body:       `{"id":"evt_1"}`,
			wantStatus: http.StatusBadRequest,
		},
	}

	router := newRouter()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}

			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}
