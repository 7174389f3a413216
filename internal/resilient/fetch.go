package resilient

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultFetchTimeout bounds each individual HTTP fetch.
	DefaultFetchTimeout = 30 * time.Second

	// minValidBody rejects tiny bodies masquerading as media files.
	minValidBody = 256
)

// defaultRelays are public read-through proxies tried in order after the
// direct fetch and the local relay fail.
var defaultRelays = []string{
	"https://corsproxy.io/?",
	"https://api.allorigins.win/raw?url=",
	"https://proxy.cors.sh/",
}

// FetcherConfig configures a Fetcher.
type FetcherConfig struct {
	// Client is the HTTP client to use. A 30s-timeout client is used when nil.
	Client *http.Client

	// LocalRelay is an optional relay tried before the public ones,
	// e.g. "http://127.0.0.1:8191/fetch?url=".
	LocalRelay string

	// Relays overrides the default public relay list.
	Relays []string

	Logger *slog.Logger
}

// Fetcher downloads remote media with an ordered fallback chain of
// alternate access paths.
type Fetcher struct {
	client     *http.Client
	localRelay string
	relays     []string
	logger     *slog.Logger
}

// NewFetcher creates a Fetcher.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: DefaultFetchTimeout}
	}
	relays := cfg.Relays
	if relays == nil {
		relays = defaultRelays
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		client:     client,
		localRelay: cfg.LocalRelay,
		relays:     relays,
		logger:     logger,
	}
}

// Fetch performs a direct request first and validates the response body.
// On failure or invalid content it walks the relay chain in order,
// returning the first valid body or an aggregate error naming the last
// underlying cause.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	paths := f.accessPaths(rawURL)

	var lastErr error
	for i, accessURL := range paths {
		body, err := f.fetchOnce(ctx, accessURL)
		if err == nil {
			if i > 0 {
				f.logger.Debug("fetch succeeded via relay", "url", rawURL, "relay_index", i)
			}
			return body, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		f.logger.Debug("fetch attempt failed", "url", accessURL, "error", err)
	}

	return nil, fmt.Errorf("all %d access paths failed for %s: %w", len(paths), rawURL, lastErr)
}

func (f *Fetcher) accessPaths(rawURL string) []string {
	paths := []string{rawURL}
	if f.localRelay != "" {
		paths = append(paths, f.localRelay+url.QueryEscape(rawURL))
	}
	for _, relay := range f.relays {
		paths = append(paths, relay+url.QueryEscape(rawURL))
	}
	return paths
}

func (f *Fetcher) fetchOnce(ctx context.Context, fetchURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if err := validateBody(resp.Header.Get("Content-Type"), body); err != nil {
		return nil, err
	}
	return body, nil
}

// validateBody rejects HTML error pages and undersized bodies returned
// with a success status.
func validateBody(contentType string, body []byte) error {
	if len(body) < minValidBody {
		return fmt.Errorf("response too small (%d bytes), likely an error page", len(body))
	}
	if strings.Contains(strings.ToLower(contentType), "text/html") {
		return fmt.Errorf("response is HTML, not the requested media")
	}
	head := strings.TrimSpace(string(body[:min(len(body), 64)]))
	if strings.HasPrefix(strings.ToLower(head), "<!doctype") || strings.HasPrefix(head, "<html") {
		return fmt.Errorf("response body looks like HTML, not the requested media")
	}
	return nil
}
