package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/dvloznov/agro-tracker/internal/api/middleware"
	"github.com/dvloznov/agro-tracker/internal/inbox"
	"github.com/dvloznov/agro-tracker/internal/jobs"
	"github.com/dvloznov/agro-tracker/internal/ledger"
	"github.com/dvloznov/agro-tracker/internal/logger"
	"github.com/dvloznov/agro-tracker/internal/metrics"
)

// maxWebhookBody bounds the webhook request body.
const maxWebhookBody = 1 << 20

// WebhookHandler accepts messages from the messaging gateway.
type WebhookHandler struct {
	inbox     *inbox.Inbox
	publisher jobs.Publisher
	now       func() time.Time
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(in *inbox.Inbox, publisher jobs.Publisher) *WebhookHandler {
	return &WebhookHandler{
		inbox:     in,
		publisher: publisher,
		now:       time.Now,
	}
}

// WebhookRequest is the gateway payload.
type WebhookRequest struct {
	From      string `json:"from"`
	Timestamp string `json:"timestamp"`
	Content   string `json:"content"`
	Type      string `json:"type"`
}

// Receive handles POST /webhook. The message is archived to the inbox
// before a job is queued, so it is kept even if processing fails.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var req WebhookRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWebhookBody)).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.From) == "" {
		middleware.WriteError(w, http.StatusBadRequest, `Invalid data: missing "from" field`)
		return
	}
	if req.Type == "media" {
		middleware.WriteError(w, http.StatusUnsupportedMediaType, "Media messages are not supported")
		return
	}

	ts := h.now().UTC()
	if req.Timestamp != "" {
		parsed, err := inbox.ParseTimestamp(req.Timestamp)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid timestamp")
			return
		}
		ts = parsed
	}

	metrics.MessagesReceived.Inc()

	path, err := h.inbox.Save(ctx, inbox.Message{Sender: req.From, Timestamp: ts, Content: req.Content})
	if err != nil {
		log.Error().Err(err).Str("sender", req.From).Msg("Failed to save message")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to save message")
		return
	}

	job := &jobs.ProcessMessageJob{
		InboxPath:  path,
		Sender:     req.From,
		ReceivedAt: ts,
	}
	if err := h.publisher.PublishProcessMessage(ctx, job); err != nil {
		log.Error().Err(err).Str("inbox_path", path).Msg("Failed to enqueue message")
		middleware.WriteError(w, http.StatusServiceUnavailable, "Failed to enqueue message")
		return
	}

	log.Info().
		Str("job_id", job.JobID).
		Str("sender", req.From).
		Str("inbox_path", path).
		Msg("Message accepted")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.JobID,
		"status": string(job.Status),
	})
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store: store,
		log:   log,
	}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]

	job, err := h.store.GetJob(r.Context(), jobID)
	if errors.Is(err, jobs.ErrJobNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.JobFilter{
		Sender: query.Get("sender"),
		Status: jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}

// CurrentFunc returns the latest ledger snapshot.
type CurrentFunc func(ctx context.Context) (ledger.Handle, error)

// LedgerHandler reports ledger state.
type LedgerHandler struct {
	current CurrentFunc
	log     zerolog.Logger
}

// NewLedgerHandler creates a new ledger handler.
func NewLedgerHandler(current CurrentFunc, log zerolog.Logger) *LedgerHandler {
	return &LedgerHandler{current: current, log: log}
}

// Current handles GET /api/ledger/current
func (h *LedgerHandler) Current(w http.ResponseWriter, r *http.Request) {
	handle, err := h.current(r.Context())
	if errors.Is(err, ledger.ErrNoSnapshot) {
		middleware.WriteError(w, http.StatusNotFound, "Ledger has no snapshot yet")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to resolve current snapshot")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to read ledger")
		return
	}

	resp := map[string]interface{}{
		"dir":  handle.Dir,
		"name": handle.Name,
	}
	if ts, ok := handle.Timestamp(); ok {
		resp["timestamp"] = ts.Format(time.RFC3339Nano)
	}
	middleware.WriteJSON(w, http.StatusOK, resp)
}

// Health handles GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}
