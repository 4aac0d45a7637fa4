package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/agro-tracker/internal/inbox"
	"github.com/dvloznov/agro-tracker/internal/jobs"
	"github.com/dvloznov/agro-tracker/internal/jobs/inmemory"
	"github.com/dvloznov/agro-tracker/internal/ledger"
)

type mockPublisher struct {
	PublishFunc func(ctx context.Context, job *jobs.ProcessMessageJob) error
}

func (m *mockPublisher) PublishProcessMessage(ctx context.Context, job *jobs.ProcessMessageJob) error {
	return m.PublishFunc(ctx, job)
}

func (m *mockPublisher) Close() error { return nil }

type testServer struct {
	handler   http.Handler
	inbox     *inbox.Inbox
	store     *inmemory.Store
	published []*jobs.ProcessMessageJob
}

func newTestServer(t *testing.T, apiKey string) *testServer {
	t.Helper()
	ts := &testServer{
		inbox: inbox.New(t.TempDir()),
		store: inmemory.NewStore(),
	}
	pub := &mockPublisher{PublishFunc: func(ctx context.Context, job *jobs.ProcessMessageJob) error {
		job.JobID = "job-1"
		job.Status = jobs.JobStatusPending
		ts.published = append(ts.published, job)
		return ts.store.SaveJob(ctx, job)
	}}
	ts.handler = NewRouter(Deps{
		Inbox:     ts.inbox,
		Publisher: pub,
		Store:     ts.store,
		CurrentLedger: func(context.Context) (ledger.Handle, error) {
			return ledger.Handle{Dir: "ledger", Name: "20250310T080000.000000000_ledger.xlsx"}, nil
		},
		APIKey: apiKey,
		Log:    zerolog.Nop(),
	})
	return ts
}

func (ts *testServer) do(method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestWebhookAccepted(t *testing.T) {
	ts := newTestServer(t, "")

	body := `{"from":"79990001122","timestamp":"2025-03-10T07:15:00.000Z","content":"Пахота 15/300","type":"text"}`
	rec := ts.do(http.MethodPost, "/webhook", body, nil)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d; body %s", rec.Code, http.StatusAccepted, rec.Body)
	}
	if got := decode(t, rec)["job_id"]; got != "job-1" {
		t.Errorf("job_id = %v, want job-1", got)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header not set")
	}

	if len(ts.published) != 1 {
		t.Fatalf("published %d jobs, want 1", len(ts.published))
	}
	job := ts.published[0]
	if job.Sender != "79990001122" || !job.ReceivedAt.Equal(time.Date(2025, 3, 10, 7, 15, 0, 0, time.UTC)) {
		t.Errorf("job = %+v", job)
	}
	content, err := inbox.Read(job.InboxPath)
	if err != nil {
		t.Fatalf("inbox.Read() error = %v", err)
	}
	if content != "Пахота 15/300" {
		t.Errorf("saved content = %q", content)
	}
}

func TestWebhookRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"missing from", `{"content":"x"}`, http.StatusBadRequest},
		{"blank from", `{"from":"  ","content":"x"}`, http.StatusBadRequest},
		{"not json", `from=1`, http.StatusBadRequest},
		{"bad timestamp", `{"from":"1","timestamp":"yesterday"}`, http.StatusBadRequest},
		{"media", `{"from":"1","type":"media","media_data":"00"}`, http.StatusUnsupportedMediaType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, "")
			rec := ts.do(http.MethodPost, "/webhook", tt.body, nil)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if len(ts.published) != 0 {
				t.Errorf("published %d jobs, want 0", len(ts.published))
			}
			if files, _ := ts.inbox.List(); len(files) != 0 {
				t.Errorf("inbox has %d files, want 0", len(files))
			}
		})
	}
}

func TestWebhookQueueFailure(t *testing.T) {
	in := inbox.New(t.TempDir())
	h := NewRouter(Deps{
		Inbox: in,
		Publisher: &mockPublisher{PublishFunc: func(context.Context, *jobs.ProcessMessageJob) error {
			return inmemory.ErrQueueClosed
		}},
		Store: inmemory.NewStore(),
		Log:   zerolog.Nop(),
	})

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{"from":"1","content":"сев"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	if files, _ := in.List(); len(files) != 1 {
		t.Errorf("inbox has %d files, want the message kept", len(files))
	}
}

func TestJobsEndpoints(t *testing.T) {
	ts := newTestServer(t, "")
	ctx := context.Background()
	if err := ts.store.SaveJob(ctx, &jobs.ProcessMessageJob{JobID: "j1", Status: jobs.JobStatusCompleted, Records: 2}); err != nil {
		t.Fatal(err)
	}

	rec := ts.do(http.MethodGet, "/api/jobs/j1", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET job status = %d", rec.Code)
	}
	if got := decode(t, rec)["records"]; got != float64(2) {
		t.Errorf("records = %v, want 2", got)
	}

	if rec := ts.do(http.MethodGet, "/api/jobs/missing", "", nil); rec.Code != http.StatusNotFound {
		t.Errorf("GET missing job status = %d, want 404", rec.Code)
	}

	rec = ts.do(http.MethodGet, "/api/jobs?status=completed&limit=10", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	if got := decode(t, rec)["count"]; got != float64(1) {
		t.Errorf("count = %v, want 1", got)
	}

	if rec := ts.do(http.MethodPost, "/api/jobs", "", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /api/jobs status = %d, want 405", rec.Code)
	}
}

func TestLedgerCurrent(t *testing.T) {
	ts := newTestServer(t, "")
	rec := ts.do(http.MethodGet, "/api/ledger/current", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decode(t, rec)
	if body["name"] != "20250310T080000.000000000_ledger.xlsx" {
		t.Errorf("name = %v", body["name"])
	}
	if body["timestamp"] != "2025-03-10T08:00:00Z" {
		t.Errorf("timestamp = %v", body["timestamp"])
	}

	empty := NewRouter(Deps{
		Store: inmemory.NewStore(),
		CurrentLedger: func(context.Context) (ledger.Handle, error) {
			return ledger.Handle{}, ledger.ErrNoSnapshot
		},
		Log: zerolog.Nop(),
	})
	req := httptest.NewRequest(http.MethodGet, "/api/ledger/current", nil)
	rr := httptest.NewRecorder()
	empty.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Errorf("empty ledger status = %d, want 404", rr.Code)
	}

	failing := NewRouter(Deps{
		Store: inmemory.NewStore(),
		CurrentLedger: func(context.Context) (ledger.Handle, error) {
			return ledger.Handle{}, errors.New("permission denied")
		},
		Log: zerolog.Nop(),
	})
	rr = httptest.NewRecorder()
	failing.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/ledger/current", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("failing ledger status = %d, want 500", rr.Code)
	}
}

func TestAuthAndOpenRoutes(t *testing.T) {
	ts := newTestServer(t, "secret")

	tests := []struct {
		name   string
		method string
		path   string
		header map[string]string
		want   int
	}{
		{"health is open", http.MethodGet, "/health", nil, http.StatusOK},
		{"metrics is open", http.MethodGet, "/metrics", nil, http.StatusOK},
		{"no key", http.MethodGet, "/api/jobs", nil, http.StatusUnauthorized},
		{"wrong key", http.MethodGet, "/api/jobs", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
		{"header key", http.MethodGet, "/api/jobs", map[string]string{"X-API-Key": "secret"}, http.StatusOK},
		{"bearer key", http.MethodGet, "/api/jobs", map[string]string{"Authorization": "Bearer secret"}, http.StatusOK},
		{"preflight", http.MethodOptions, "/webhook", nil, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(tt.method, tt.path, "", tt.header)
			if rec.Code != tt.want {
				t.Errorf("%s %s status = %d, want %d", tt.method, tt.path, rec.Code, tt.want)
			}
		})
	}
}
