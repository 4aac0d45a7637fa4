// Package api wires the HTTP handlers of the message intake server.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/dvloznov/agro-tracker/internal/api/handlers"
	"github.com/dvloznov/agro-tracker/internal/api/middleware"
	"github.com/dvloznov/agro-tracker/internal/inbox"
	"github.com/dvloznov/agro-tracker/internal/jobs"
)

// Deps holds what the router needs.
type Deps struct {
	Inbox         *inbox.Inbox
	Publisher     jobs.Publisher
	Store         jobs.JobStore
	CurrentLedger handlers.CurrentFunc

	// APIKey protects every route except /health and /metrics when set.
	APIKey      string
	CORSOrigins []string

	Log zerolog.Logger
}

// NewRouter returns the routed handler wrapped in the middleware chain.
func NewRouter(d Deps) http.Handler {
	webhook := handlers.NewWebhookHandler(d.Inbox, d.Publisher)
	jobsHandler := handlers.NewJobsHandler(d.Store, d.Log)
	ledgerHandler := handlers.NewLedgerHandler(d.CurrentLedger, d.Log)

	router := mux.NewRouter()
	router.HandleFunc("/webhook", webhook.Receive).Methods(http.MethodPost)
	router.HandleFunc("/api/jobs", jobsHandler.ListJobs).Methods(http.MethodGet)
	router.HandleFunc("/api/jobs/{id}", jobsHandler.GetJob).Methods(http.MethodGet)
	router.HandleFunc("/api/ledger/current", ledgerHandler.Current).Methods(http.MethodGet)
	router.HandleFunc("/health", handlers.Health).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusNotFound, "Not found")
	})

	return middleware.Recovery(d.Log)(
		middleware.RequestID(
			middleware.Logger(d.Log)(
				middleware.CORS(d.CORSOrigins)(
					middleware.Auth(d.APIKey, "/health", "/metrics")(router),
				),
			),
		),
	)
}
