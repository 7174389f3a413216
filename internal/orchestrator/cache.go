package orchestrator

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/storymill/storymill/internal/providers"
)

// DefaultCacheTTL bounds how long a search result is reused.
const DefaultCacheTTL = 15 * time.Minute

type cacheEntry struct {
	tracks  []providers.Track
	expires time.Time
}

// CachedSearcher wraps a TrackSearcher with a TTL cache keyed by the
// normalized keyword set. Repeated chapters with the same cues hit the
// backing service once per TTL window.
type CachedSearcher struct {
	mu      sync.Mutex
	entries map[string]cacheEntry

	inner providers.TrackSearcher
	ttl   time.Duration
	now   func() time.Time
}

// NewCachedSearcher wraps a searcher with a TTL result cache.
func NewCachedSearcher(inner providers.TrackSearcher, ttl time.Duration) *CachedSearcher {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedSearcher{
		entries: make(map[string]cacheEntry),
		inner:   inner,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Name returns the wrapped provider identifier.
func (c *CachedSearcher) Name() string {
	return c.inner.Name()
}

// SearchTracks returns cached results when fresh, otherwise delegates.
// Failed searches are not cached.
func (c *CachedSearcher) SearchTracks(ctx context.Context, keywords []string) ([]providers.Track, error) {
	key := cacheKey(keywords)

	c.mu.Lock()
	entry, ok := c.entries[key]
	if ok && c.now().Before(entry.expires) {
		c.mu.Unlock()
		return entry.tracks, nil
	}
	c.mu.Unlock()

	tracks, err := c.inner.SearchTracks(ctx, keywords)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{tracks: tracks, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return tracks, nil
}

func cacheKey(keywords []string) string {
	parts := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			parts = append(parts, k)
		}
	}
	return strings.Join(parts, "|")
}

var _ providers.TrackSearcher = (*CachedSearcher)(nil)
