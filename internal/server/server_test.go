package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/storymill/storymill/internal/home"
	"github.com/storymill/storymill/internal/progress"
	"github.com/storymill/storymill/internal/queue"
	"github.com/storymill/storymill/internal/store"
	"github.com/storymill/storymill/internal/story"
	"github.com/storymill/storymill/internal/svcctx"
)

type noopRunner struct{}

func (noopRunner) GenerateChapter(ctx context.Context, p *story.Project, ch *story.Chapter) error {
	return nil
}

func newTestServer(t *testing.T) (*Server, *store.Store, *queue.Scheduler) {
	t.Helper()
	h, err := home.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := h.EnsureExists(); err != nil {
		t.Fatal(err)
	}

	st := store.NewStore(h, nil)
	q, err := queue.NewScheduler(queue.SchedulerConfig{Runner: noopRunner{}})
	if err != nil {
		t.Fatal(err)
	}

	srv, err := New(Config{
		Services: &svcctx.Services{
			Home:  h,
			Store: st,
			Queue: q,
			Hub:   progress.NewHub(nil),
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return srv, st, q
}

func doRequest(t *testing.T, srv *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "ok" {
		t.Errorf("status = %q", resp.Status)
	}
}

func TestProjectEndpoints(t *testing.T) {
	srv, st, _ := newTestServer(t)

	p := story.NewProject("sunken cities", "en", 2)
	p.Chapters[0].Status = story.StatusCompleted
	if err := st.Add(p); err != nil {
		t.Fatal(err)
	}

	rec := doRequest(t, srv, http.MethodGet, "/api/projects", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var summaries []ProjectSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &summaries); err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 1 || summaries[0].Completed != 1 {
		t.Errorf("summaries = %+v", summaries)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/projects/"+p.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var got story.Project
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Topic != "sunken cities" {
		t.Errorf("topic = %q", got.Topic)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/projects/does-not-exist", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing project status = %d, want 404", rec.Code)
	}
}

func TestQueueEndpoints(t *testing.T) {
	srv, _, q := newTestServer(t)

	body, _ := json.Marshal(EnqueueRequest{Topic: "polar night", Language: "en", Chapters: 3})
	rec := doRequest(t, srv, http.MethodPost, "/api/queue", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("enqueue status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/queue", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("queue list status = %d", rec.Code)
	}
	var resp QueueResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Items) != 1 || resp.Items[0].Topic != "polar night" {
		t.Errorf("items = %+v", resp.Items)
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/queue/pause", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("pause status = %d", rec.Code)
	}
	if !q.Paused() {
		t.Error("queue not paused")
	}
	rec = doRequest(t, srv, http.MethodPost, "/api/queue/resume", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("resume status = %d", rec.Code)
	}
	if q.Paused() {
		t.Error("queue still paused")
	}
}

func TestQueueEnqueueValidation(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/queue", []byte(`{"language":"en"}`))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for missing topic", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/queue", []byte(`{"topic":"x","bogus":true}`))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for unknown field", rec.Code)
	}
}
