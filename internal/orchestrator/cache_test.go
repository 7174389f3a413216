package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/storymill/storymill/internal/providers"
)

func TestCachedSearcher_HitWithinTTL(t *testing.T) {
	inner := providers.NewMockTrackSearcher()
	c := NewCachedSearcher(inner, time.Minute)

	for i := 0; i < 3; i++ {
		tracks, err := c.SearchTracks(context.Background(), []string{"Door", "creak"})
		if err != nil {
			t.Fatalf("SearchTracks failed: %v", err)
		}
		if len(tracks) != 1 {
			t.Fatalf("got %d tracks", len(tracks))
		}
	}
	if inner.Calls() != 1 {
		t.Errorf("backend called %d times, want 1", inner.Calls())
	}
}

func TestCachedSearcher_KeyNormalization(t *testing.T) {
	inner := providers.NewMockTrackSearcher()
	c := NewCachedSearcher(inner, time.Minute)

	if _, err := c.SearchTracks(context.Background(), []string{"Thunder", " Storm "}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.SearchTracks(context.Background(), []string{"thunder", "storm"}); err != nil {
		t.Fatal(err)
	}
	if inner.Calls() != 1 {
		t.Errorf("backend called %d times for equivalent keyword sets, want 1", inner.Calls())
	}
}

func TestCachedSearcher_Expiry(t *testing.T) {
	inner := providers.NewMockTrackSearcher()
	c := NewCachedSearcher(inner, 10*time.Minute)

	current := time.Now()
	c.now = func() time.Time { return current }

	if _, err := c.SearchTracks(context.Background(), []string{"rain"}); err != nil {
		t.Fatal(err)
	}
	current = current.Add(11 * time.Minute)
	if _, err := c.SearchTracks(context.Background(), []string{"rain"}); err != nil {
		t.Fatal(err)
	}
	if inner.Calls() != 2 {
		t.Errorf("backend called %d times across TTL expiry, want 2", inner.Calls())
	}
}

func TestCachedSearcher_ErrorsNotCached(t *testing.T) {
	inner := providers.NewMockTrackSearcher()
	inner.Err = errors.New("backend down")
	c := NewCachedSearcher(inner, time.Minute)

	if _, err := c.SearchTracks(context.Background(), []string{"wind"}); err == nil {
		t.Fatal("expected error")
	}

	inner.Err = nil
	tracks, err := c.SearchTracks(context.Background(), []string{"wind"})
	if err != nil {
		t.Fatalf("SearchTracks after recovery failed: %v", err)
	}
	if len(tracks) != 1 {
		t.Errorf("got %d tracks", len(tracks))
	}
	if inner.Calls() != 2 {
		t.Errorf("backend called %d times, want 2 (error not cached)", inner.Calls())
	}
}
