// Package queue holds the batch generation queue: a planner that turns a
// plan file into queue items and a single-flight scheduler that drives
// the orchestrator through them.
package queue

import (
	"time"

	"github.com/google/uuid"
)

// ItemStatus is the lifecycle state of one queue item.
type ItemStatus string

const (
	ItemPending    ItemStatus = "pending"
	ItemInProgress ItemStatus = "in_progress"
	ItemCompleted  ItemStatus = "completed"
	ItemError      ItemStatus = "error"
)

// Item is one queued generation request. Exactly one item is in_progress
// at any time.
type Item struct {
	ID           string     `json:"id" yaml:"id"`
	Topic        string     `json:"topic" yaml:"topic"`
	Language     string     `json:"language" yaml:"language"`
	ChapterCount int        `json:"chapterCount" yaml:"chapters"`
	Status       ItemStatus `json:"status" yaml:"-"`

	// Continuous keeps appending chapters to the project until the queue
	// is paused or the run is cancelled.
	Continuous bool `json:"continuous,omitempty" yaml:"continuous,omitempty"`

	// Generation settings captured at enqueue time, so a queued request
	// replays the same way regardless of later config changes.
	TargetMinutes int    `json:"targetMinutes,omitempty" yaml:"minutes,omitempty"`
	ImageSource   string `json:"imageSource,omitempty" yaml:"image_source,omitempty"`
	Voice         string `json:"voice,omitempty" yaml:"voice,omitempty"`

	// ProjectID links the item to its project once generation starts.
	ProjectID string `json:"projectId,omitempty" yaml:"-"`
	Error     string `json:"error,omitempty" yaml:"-"`

	CreatedAt   time.Time `json:"createdAt" yaml:"-"`
	StartedAt   time.Time `json:"startedAt,omitempty" yaml:"-"`
	CompletedAt time.Time `json:"completedAt,omitempty" yaml:"-"`
}

// NewItem creates a pending queue item.
func NewItem(topic, language string, chapterCount int) *Item {
	if language == "" {
		language = "en"
	}
	if chapterCount <= 0 {
		chapterCount = 1
	}
	return &Item{
		ID:           uuid.New().String(),
		Topic:        topic,
		Language:     language,
		ChapterCount: chapterCount,
		Status:       ItemPending,
		CreatedAt:    time.Now().UTC(),
	}
}
