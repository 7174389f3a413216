package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/storymill/storymill/internal/queue"
	"github.com/storymill/storymill/internal/store"
	"github.com/storymill/storymill/internal/story"
	"github.com/storymill/storymill/internal/svcctx"
)

// ProjectSummary is the list-view projection of a project.
type ProjectSummary struct {
	ID         string `json:"id"`
	Topic      string `json:"topic"`
	Title      string `json:"title"`
	Chapters   int    `json:"chapters"`
	Completed  int    `json:"completed"`
	Errored    int    `json:"errored"`
	Generating bool   `json:"generating"`
}

func handleProjectsList(w http.ResponseWriter, r *http.Request) {
	st := svcctx.StoreFrom(r.Context())
	if st == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("store not initialized"))
		return
	}

	projects := st.List()
	summaries := make([]ProjectSummary, 0, len(projects))
	for _, p := range projects {
		s := ProjectSummary{
			ID:         p.ID,
			Topic:      p.Topic,
			Title:      p.Title,
			Chapters:   len(p.Chapters),
			Generating: p.Generating(),
		}
		for _, ch := range p.Chapters {
			switch ch.Status {
			case story.StatusCompleted:
				s.Completed++
			case story.StatusError:
				s.Errored++
			}
		}
		summaries = append(summaries, s)
	}
	writeJSON(w, http.StatusOK, summaries)
}

func handleProjectGet(w http.ResponseWriter, r *http.Request) {
	p, ok := projectSnapshotFromRequest(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func handleProjectPackage(w http.ResponseWriter, r *http.Request) {
	p, ok := projectSnapshotFromRequest(w, r)
	if !ok {
		return
	}
	pk := svcctx.PackagerFrom(r.Context())
	if pk == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("packager not initialized"))
		return
	}

	path, err := pk.Package(r.Context(), p)
	if err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": path})
}

func handleChapterRetry(w http.ResponseWriter, r *http.Request) {
	runChapterOp(w, r, "retry", func(ctx context.Context, s *svcctx.Services, p *story.Project, ch *story.Chapter) error {
		return s.Orchestrator.RetryChapter(ctx, p, ch)
	})
}

func handleChapterRegenerateAudio(w http.ResponseWriter, r *http.Request) {
	runChapterOp(w, r, "regenerate-audio", func(ctx context.Context, s *svcctx.Services, p *story.Project, ch *story.Chapter) error {
		return s.Orchestrator.RegenerateAudio(ctx, p, ch)
	})
}

func handleChapterRegenerateImages(w http.ResponseWriter, r *http.Request) {
	runChapterOp(w, r, "regenerate-images", func(ctx context.Context, s *svcctx.Services, p *story.Project, ch *story.Chapter) error {
		return s.Orchestrator.RegenerateImages(ctx, p, ch)
	})
}

// runChapterOp validates the target chapter and runs the operation in the
// background; generation is long-running, so the response is 202.
func runChapterOp(w http.ResponseWriter, r *http.Request, name string, op func(context.Context, *svcctx.Services, *story.Project, *story.Chapter) error) {
	services := svcctx.ServicesFrom(r.Context())
	if services == nil || services.Orchestrator == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("orchestrator not initialized"))
		return
	}
	p, ok := projectFromRequest(w, r)
	if !ok {
		return
	}
	ch := p.ChapterByID(r.PathValue("chapterID"))
	if ch == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("chapter not found"))
		return
	}

	go func() {
		if err := op(context.WithoutCancel(r.Context()), services, p, ch); err != nil {
			services.Logger.Error("chapter operation failed", "op", name, "project", p.ID, "chapter", ch.Number, "error", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "op": name})
}

// QueueResponse is the queue status projection.
type QueueResponse struct {
	Paused bool          `json:"paused"`
	Items  []*queue.Item `json:"items"`
}

func handleQueueList(w http.ResponseWriter, r *http.Request) {
	q, ok := queueFromRequest(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, QueueResponse{Paused: q.Paused(), Items: q.Items()})
}

// EnqueueRequest is the body for adding queue items.
type EnqueueRequest struct {
	Topic         string `json:"topic"`
	Language      string `json:"language"`
	Chapters      int    `json:"chapters"`
	Continuous    bool   `json:"continuous"`
	TargetMinutes int    `json:"targetMinutes"`
	ImageSource   string `json:"imageSource"`
	Voice         string `json:"voice"`
}

func handleQueueEnqueue(w http.ResponseWriter, r *http.Request) {
	q, ok := queueFromRequest(w, r)
	if !ok {
		return
	}

	var req EnqueueRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Topic == "" {
		writeError(w, http.StatusBadRequest, errors.New("topic is required"))
		return
	}

	item := queue.NewItem(req.Topic, req.Language, req.Chapters)
	item.Continuous = req.Continuous
	item.TargetMinutes = req.TargetMinutes
	item.ImageSource = req.ImageSource
	item.Voice = req.Voice

	// The scheduler starts mutating the item as soon as it is queued;
	// respond with a copy taken before the handoff.
	resp := *item
	q.Enqueue(item)
	writeJSON(w, http.StatusCreated, resp)
}

func handleQueuePause(w http.ResponseWriter, r *http.Request) {
	q, ok := queueFromRequest(w, r)
	if !ok {
		return
	}
	q.Pause()
	writeJSON(w, http.StatusOK, map[string]bool{"paused": true})
}

func handleQueueResume(w http.ResponseWriter, r *http.Request) {
	q, ok := queueFromRequest(w, r)
	if !ok {
		return
	}
	q.Resume()
	writeJSON(w, http.StatusOK, map[string]bool{"paused": false})
}

func handleQueueClear(w http.ResponseWriter, r *http.Request) {
	q, ok := queueFromRequest(w, r)
	if !ok {
		return
	}
	removed := q.ClearFinished()
	writeJSON(w, http.StatusOK, map[string]int{"removed": len(removed)})
}

func handleWebsocket(w http.ResponseWriter, r *http.Request) {
	hub := svcctx.HubFrom(r.Context())
	if hub == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("progress hub not initialized"))
		return
	}
	hub.Handler(w, r)
}

// projectFromRequest resolves the live project for operations that hand
// it to the orchestrator.
func projectFromRequest(w http.ResponseWriter, r *http.Request) (*story.Project, bool) {
	st := svcctx.StoreFrom(r.Context())
	if st == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("store not initialized"))
		return nil, false
	}
	p, err := st.Get(r.PathValue("id"))
	if err != nil {
		writeProjectLookupError(w, err)
		return nil, false
	}
	return p, true
}

// projectSnapshotFromRequest resolves a read-only copy of the project;
// generation can keep mutating the live object while the response is
// encoded.
func projectSnapshotFromRequest(w http.ResponseWriter, r *http.Request) (*story.Project, bool) {
	st := svcctx.StoreFrom(r.Context())
	if st == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("store not initialized"))
		return nil, false
	}
	p, err := st.Snapshot(r.PathValue("id"))
	if err != nil {
		writeProjectLookupError(w, err)
		return nil, false
	}
	return p, true
}

func writeProjectLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
	} else {
		writeError(w, http.StatusInternalServerError, err)
	}
}

func queueFromRequest(w http.ResponseWriter, r *http.Request) (*queue.Scheduler, bool) {
	q := svcctx.QueueFrom(r.Context())
	if q == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("queue not initialized"))
		return nil, false
	}
	return q, true
}
