package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/storymill/storymill/internal/progress"
	"github.com/storymill/storymill/internal/store"
	"github.com/storymill/storymill/internal/story"
)

// ChapterRunner is the orchestration surface the scheduler drives.
type ChapterRunner interface {
	GenerateChapter(ctx context.Context, p *story.Project, ch *story.Chapter) error
}

// Packager archives a completed project and returns the archive path.
type Packager interface {
	Package(ctx context.Context, p *story.Project) (string, error)
}

// SchedulerConfig configures a queue scheduler.
type SchedulerConfig struct {
	Runner   ChapterRunner
	Store    *store.Store
	Packager Packager
	Hub      *progress.Hub
	Logger   *slog.Logger

	// PackageOnCompletion archives each project when its last chapter
	// completes.
	PackageOnCompletion bool
}

// Scheduler processes queue items strictly one at a time. Pausing takes
// effect at the next chapter boundary; the in-flight chapter always runs
// to completion or error.
type Scheduler struct {
	mu     sync.Mutex
	items  []*Item
	byID   map[string]*Item
	paused bool
	active string // item ID currently in flight

	wake chan struct{}

	runner        ChapterRunner
	store         *store.Store
	packager      Packager
	hub           *progress.Hub
	logger        *slog.Logger
	packageOnDone bool
}

// NewScheduler creates a queue scheduler.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Runner == nil {
		return nil, fmt.Errorf("chapter runner is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		byID:          make(map[string]*Item),
		wake:          make(chan struct{}, 1),
		runner:        cfg.Runner,
		store:         cfg.Store,
		packager:      cfg.Packager,
		hub:           cfg.Hub,
		logger:        logger,
		packageOnDone: cfg.PackageOnCompletion,
	}, nil
}

// Enqueue appends items to the queue.
func (s *Scheduler) Enqueue(items ...*Item) {
	s.mu.Lock()
	for _, item := range items {
		s.items = append(s.items, item)
		s.byID[item.ID] = item
	}
	s.mu.Unlock()
	s.signal()
	s.logger.Info("queue items added", "count", len(items))
}

// Pause stops the scheduler at the next chapter boundary.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
	s.publishState("paused")
	s.logger.Info("queue paused")
}

// Resume continues processing from where the pause took effect.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
	s.signal()
	s.publishState("running")
	s.logger.Info("queue resumed")
}

// Paused reports whether the queue is paused.
func (s *Scheduler) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Items returns copies of all queue items in order, detached from the
// processing loop's mutations.
func (s *Scheduler) Items() []*Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Item, len(s.items))
	for i, item := range s.items {
		c := *item
		out[i] = &c
	}
	return out
}

// Item returns a copy of a queue item by ID.
func (s *Scheduler) Item(id string) (*Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	c := *item
	return &c, true
}

// ClearFinished removes completed and errored items from the queue and
// returns them in order.
func (s *Scheduler) ClearFinished() []*Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.items[:0]
	var removed []*Item
	for _, item := range s.items {
		if item.Status == ItemCompleted || item.Status == ItemError {
			removed = append(removed, item)
			delete(s.byID, item.ID)
			continue
		}
		kept = append(kept, item)
	}
	s.items = kept
	return removed
}

// ItemStatus returns the current status of a queue item.
func (s *Scheduler) ItemStatus(id string) (ItemStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.byID[id]
	if !ok {
		return "", false
	}
	return item.Status, true
}

// Run processes queue items until the context is cancelled. Call it in a
// goroutine; it is the only goroutine that mutates item status, which is
// what makes the one-in-flight invariant hold.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("queue scheduler started")
	for {
		item := s.nextPending(ctx)
		if item == nil {
			s.logger.Info("queue scheduler stopping")
			return
		}
		s.process(ctx, item)
	}
}

// nextPending blocks until an item is available and the queue is not
// paused, or the context ends.
func (s *Scheduler) nextPending(ctx context.Context) *Item {
	for {
		s.mu.Lock()
		if !s.paused {
			for _, item := range s.items {
				if item.Status == ItemPending {
					item.Status = ItemInProgress
					item.StartedAt = time.Now().UTC()
					s.active = item.ID
					s.mu.Unlock()
					return item
				}
			}
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil
		case <-s.wake:
		case <-time.After(time.Second):
		}
	}
}

// process runs one item end to end.
func (s *Scheduler) process(ctx context.Context, item *Item) {
	defer func() {
		s.mu.Lock()
		s.active = ""
		s.mu.Unlock()
	}()

	p := story.NewProject(item.Topic, item.Language, item.ChapterCount)
	p.TargetMinutes = item.TargetMinutes
	if item.ImageSource != "" {
		p.ImageSource = story.ImageSource(item.ImageSource)
	}
	if item.Voice != "" {
		p.Narration.DefaultVoice = item.Voice
	}
	s.mu.Lock()
	item.ProjectID = p.ID
	s.mu.Unlock()
	if s.store != nil {
		if err := s.store.Add(p); err != nil {
			s.finishItem(item, ItemError, fmt.Errorf("failed to register project: %w", err))
			return
		}
	}
	s.logger.Info("queue item started", "item", item.ID, "project", p.ID, "topic", item.Topic)
	if s.hub != nil {
		s.hub.QueueStatus(p.ID, "started", item.Topic)
	}

	for i := 0; i < len(p.Chapters); i++ {
		if !s.waitWhilePaused(ctx) {
			// Cancelled mid-item: remaining chapters stay pending in the
			// project; the item records the interruption.
			s.finishItem(item, ItemError, ctx.Err())
			return
		}

		ch := p.Chapters[i]
		if err := s.runner.GenerateChapter(ctx, p, ch); err != nil {
			s.finishItem(item, ItemError, fmt.Errorf("chapter %d failed: %w", ch.Number, err))
			return
		}

		// Continuous mode grows the project one chapter at a time until a
		// pause or cancellation arrives at a boundary.
		if item.Continuous && i == len(p.Chapters)-1 && !s.Paused() && ctx.Err() == nil {
			next := story.NewChapter(len(p.Chapters)+1, "")
			s.mutateProject(p, func() { p.Chapters = append(p.Chapters, next) })
		}
	}

	if s.packageOnDone && s.packager != nil {
		view := p
		if s.store != nil {
			if snap, err := s.store.Snapshot(p.ID); err == nil {
				view = snap
			}
		}
		if view.Completed() {
			path, err := s.packager.Package(ctx, view)
			if err != nil {
				s.logger.Error("packaging failed", "project", p.ID, "error", err)
			} else if s.hub != nil {
				s.hub.PackageReady(p.ID, path)
			}
		}
	}

	s.finishItem(item, ItemCompleted, nil)
}

// mutateProject funnels project graph writes through the store lock so
// API snapshot readers never observe them mid-flight.
func (s *Scheduler) mutateProject(p *story.Project, fn func()) {
	if s.store == nil {
		fn()
		return
	}
	_ = s.store.Mutate(p, func() error {
		fn()
		return nil
	})
}

// waitWhilePaused blocks at a chapter boundary while the queue is paused.
// It returns false when the context ends.
func (s *Scheduler) waitWhilePaused(ctx context.Context) bool {
	for {
		if ctx.Err() != nil {
			return false
		}
		if !s.Paused() {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-s.wake:
		case <-time.After(time.Second):
		}
	}
}

func (s *Scheduler) finishItem(item *Item, status ItemStatus, cause error) {
	s.mu.Lock()
	item.Status = status
	item.CompletedAt = time.Now().UTC()
	if cause != nil {
		item.Error = cause.Error()
	}
	s.mu.Unlock()

	if cause != nil {
		s.logger.Error("queue item failed", "item", item.ID, "error", cause)
	} else {
		s.logger.Info("queue item completed", "item", item.ID, "project", item.ProjectID)
	}
	if s.hub != nil {
		s.hub.QueueStatus(item.ProjectID, string(status), item.Error)
	}
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) publishState(state string) {
	if s.hub != nil {
		s.hub.QueueStatus("", state, "")
	}
}
