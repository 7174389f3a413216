// Package progress broadcasts pipeline events to websocket subscribers.
package progress

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/storymill/storymill/internal/story"
)

// Event is one pipeline update pushed to subscribers.
type Event struct {
	Type      string `json:"type"` // "chapter", "queue", "package", "log"
	ProjectID string `json:"projectId,omitempty"`
	ChapterID string `json:"chapterId,omitempty"`
	Status    string `json:"status,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Hub fans pipeline events out to connected websocket clients. Publishing
// never blocks the pipeline; events are dropped when the hub is saturated.
type Hub struct {
	mu        sync.Mutex
	clients   map[*websocket.Conn]bool
	broadcast chan Event
	upgrader  websocket.Upgrader
	logger    *slog.Logger
}

// NewHub creates a progress hub. Run must be started for events to flow.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Event, 256),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Run delivers broadcast events until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case ev := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.clients {
				if err := conn.WriteJSON(ev); err != nil {
					conn.Close()
					delete(h.clients, conn)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Handler upgrades an HTTP request to a websocket subscription.
func (h *Hub) Handler(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	conn.WriteJSON(Event{Type: "log", Message: "connected"})
}

// Publish queues an event for delivery without blocking.
func (h *Hub) Publish(ev Event) {
	select {
	case h.broadcast <- ev:
	default:
		h.logger.Debug("progress event dropped", "type", ev.Type)
	}
}

// ChapterStatus publishes a chapter lifecycle transition.
func (h *Hub) ChapterStatus(projectID string, ch *story.Chapter) {
	h.Publish(Event{
		Type:      "chapter",
		ProjectID: projectID,
		ChapterID: ch.ID,
		Status:    string(ch.Status),
		Message:   ch.Error,
	})
}

// QueueStatus publishes a batch queue update.
func (h *Hub) QueueStatus(projectID, status, message string) {
	h.Publish(Event{
		Type:      "queue",
		ProjectID: projectID,
		Status:    status,
		Message:   message,
	})
}

// PackageReady announces a finished archive.
func (h *Hub) PackageReady(projectID, path string) {
	h.Publish(Event{
		Type:      "package",
		ProjectID: projectID,
		Status:    "ready",
		Message:   path,
	})
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}
