// Package store keeps projects in memory and persists their manifests
// to the home directory so a restarted process can pick them back up.
// Binary media blobs live next to the manifest on disk, not in JSON.
package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/storymill/storymill/internal/home"
	"github.com/storymill/storymill/internal/story"
)

const manifestName = "project.json"

// ErrNotFound is returned when a project does not exist.
var ErrNotFound = fmt.Errorf("project not found")

// Store is a mutex-guarded project registry backed by the home directory.
type Store struct {
	mu       sync.RWMutex
	projects map[string]*story.Project

	home   *home.Dir
	logger *slog.Logger
}

// NewStore creates an empty project store.
func NewStore(h *home.Dir, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		projects: make(map[string]*story.Project),
		home:     h,
		logger:   logger,
	}
}

// Add registers a project and persists its manifest.
func (s *Store) Add(p *story.Project) error {
	s.mu.Lock()
	s.projects[p.ID] = p
	s.mu.Unlock()
	return s.persist(p)
}

// Get returns the live project, shared with the generation pipeline.
// Readers that only render state should use Snapshot instead.
func (s *Store) Get(id string) (*story.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return p, nil
}

// Snapshot returns a deep copy of a project taken under the store lock,
// safe to read while generation keeps mutating the live object.
func (s *Store) Snapshot(id string) (*story.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return p.Clone(), nil
}

// List returns snapshots of all projects ordered by creation time,
// newest first.
func (s *Store) List() []*story.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*story.Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Mutate applies fn to a project's object graph under the store write
// lock, then persists the manifest. Every write to a registered project
// funnels through here so Snapshot readers never see a torn update.
func (s *Store) Mutate(p *story.Project, fn func() error) error {
	s.mu.Lock()
	err := fn()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if perr := s.persist(p); perr != nil {
		s.logger.Warn("failed to persist project", "project", p.ID, "error", perr)
	}
	return nil
}

// View runs fn while holding the store read lock.
func (s *Store) View(fn func()) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn()
}

// Save persists the current manifest of a registered project.
func (s *Store) Save(p *story.Project) error {
	s.mu.RLock()
	_, ok := s.projects[p.ID]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, p.ID)
	}
	return s.persist(p)
}

// LoadAll reads persisted project manifests from the home directory.
// Corrupt manifests are logged and skipped.
func (s *Store) LoadAll() error {
	if s.home == nil {
		return nil
	}

	entries, err := os.ReadDir(s.home.ProjectsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read projects directory: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(s.home.ProjectsPath(), entry.Name(), manifestName)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var p story.Project
		if err := json.Unmarshal(data, &p); err != nil {
			s.logger.Warn("skipping corrupt project manifest", "path", path, "error", err)
			continue
		}
		s.mu.Lock()
		s.projects[p.ID] = &p
		s.mu.Unlock()
		loaded++
	}

	if loaded > 0 {
		s.logger.Info("loaded persisted projects", "count", loaded)
	}
	return nil
}

func (s *Store) persist(p *story.Project) error {
	if s.home == nil {
		return nil
	}

	dir := s.home.ProjectDir(p.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create project directory: %w", err)
	}

	// Marshal under the read lock; a writer may be mid-transition.
	s.mu.RLock()
	data, err := json.MarshalIndent(p, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal project manifest: %w", err)
	}

	// Write-then-rename keeps the manifest readable during a crash.
	tmp := filepath.Join(dir, manifestName+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write project manifest: %w", err)
	}
	return os.Rename(tmp, filepath.Join(dir, manifestName))
}
