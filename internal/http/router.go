package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/MrJamesThe3rd/donorledger/internal/http/checkout"
	"github.com/MrJamesThe3rd/donorledger/internal/http/events"
	"github.com/MrJamesThe3rd/donorledger/internal/http/ledger"
	"github.com/MrJamesThe3rd/donorledger/internal/http/webhook"
)

func New(
	webhookV1 *webhook.Handler,
	checkoutV1 *checkout.Handler,
	ledgerV1 *ledger.Handler,
	eventsV1 *events.Handler,
	allowedOrigins []string,
) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	// The processor posts signed raw bodies; no CORS or content-type rules apply.
	router.Route("/webhooks/stripe", webhookV1.Routes)

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
			MaxAge:         300,
		}))

		r.Route("/checkout", func(r chi.Router) {
			r.Use(middleware.AllowContentType("application/json"))
			checkoutV1.Routes(r)
		})

		r.Route("/transactions", ledgerV1.TransactionRoutes)
		r.Route("/pledges", ledgerV1.PledgeRoutes)
		r.Route("/events", eventsV1.Routes)
	})

	return router
}
