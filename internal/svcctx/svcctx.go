// Package svcctx provides service context for dependency injection via context.
// This package is separate from server to avoid import cycles with endpoints.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/storymill/storymill/internal/config"
	"github.com/storymill/storymill/internal/home"
	"github.com/storymill/storymill/internal/orchestrator"
	"github.com/storymill/storymill/internal/packaging"
	"github.com/storymill/storymill/internal/progress"
	"github.com/storymill/storymill/internal/queue"
	"github.com/storymill/storymill/internal/store"
)

// Services holds all core services that flow through context.
// Components extract what they need via the individual extractors.
type Services struct {
	Logger       *slog.Logger
	Home         *home.Dir
	ConfigMgr    *config.Manager
	Store        *store.Store
	Orchestrator *orchestrator.Orchestrator
	Queue        *queue.Scheduler
	Packager     *packaging.Packager
	Hub          *progress.Hub
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// LoggerFrom extracts the logger from context.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil {
		return s.Logger
	}
	return nil
}

// HomeFrom extracts the home directory from context.
func HomeFrom(ctx context.Context) *home.Dir {
	if s := ServicesFrom(ctx); s != nil {
		return s.Home
	}
	return nil
}

// ConfigManagerFrom extracts the config manager from context.
func ConfigManagerFrom(ctx context.Context) *config.Manager {
	if s := ServicesFrom(ctx); s != nil {
		return s.ConfigMgr
	}
	return nil
}

// StoreFrom extracts the project store from context.
func StoreFrom(ctx context.Context) *store.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.Store
	}
	return nil
}

// OrchestratorFrom extracts the chapter orchestrator from context.
func OrchestratorFrom(ctx context.Context) *orchestrator.Orchestrator {
	if s := ServicesFrom(ctx); s != nil {
		return s.Orchestrator
	}
	return nil
}

// QueueFrom extracts the batch queue scheduler from context.
func QueueFrom(ctx context.Context) *queue.Scheduler {
	if s := ServicesFrom(ctx); s != nil {
		return s.Queue
	}
	return nil
}

// PackagerFrom extracts the archive packager from context.
func PackagerFrom(ctx context.Context) *packaging.Packager {
	if s := ServicesFrom(ctx); s != nil {
		return s.Packager
	}
	return nil
}

// HubFrom extracts the progress hub from context.
func HubFrom(ctx context.Context) *progress.Hub {
	if s := ServicesFrom(ctx); s != nil {
		return s.Hub
	}
	return nil
}
