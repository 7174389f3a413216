package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/storymill/storymill/internal/resilient"
)

// FreesoundConfig configures the sound-effect searcher.
type FreesoundConfig struct {
	APIKey            string
	BaseURL           string // optional (tests)
	RequestsPerMinute int    // token bucket for the search endpoint (60/min default)
	Timeout           time.Duration
	HTTPClient        *http.Client
}

// FreesoundClient searches freesound.org for sound effects.
type FreesoundClient struct {
	apiKey  string
	baseURL string
	limiter *RateLimiter
	client  *http.Client
}

// NewFreesoundClient creates a sound-effect searcher.
func NewFreesoundClient(cfg FreesoundConfig) *FreesoundClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://freesound.org/apiv2"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &FreesoundClient{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		limiter: NewRateLimiter(cfg.RequestsPerMinute),
		client:  client,
	}
}

// Name returns the provider identifier.
func (c *FreesoundClient) Name() string {
	return "freesound"
}

type freesoundResponse struct {
	Results []struct {
		Name     string  `json:"name"`
		Duration float64 `json:"duration"`
		Previews struct {
			HQMP3 string `json:"preview-hq-mp3"`
			LQMP3 string `json:"preview-lq-mp3"`
		} `json:"previews"`
	} `json:"results"`
}

// SearchTracks returns ranked sound effects matching the keywords.
func (c *FreesoundClient) SearchTracks(ctx context.Context, keywords []string) ([]Track, error) {
	query := strings.Join(keywords, " ")
	reqURL := fmt.Sprintf("%s/search/text/?query=%s&fields=name,duration,previews&page_size=5&token=%s",
		c.baseURL, url.QueryEscape(query), c.apiKey)

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var parsed freesoundResponse
	if err := getJSON(ctx, c.client, reqURL, nil, &parsed); err != nil {
		record429(c.limiter, err)
		return nil, fmt.Errorf("freesound search failed: %w", err)
	}

	tracks := make([]Track, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		trackURL := r.Previews.HQMP3
		if trackURL == "" {
			trackURL = r.Previews.LQMP3
		}
		if trackURL == "" {
			continue
		}
		tracks = append(tracks, Track{Name: r.Name, URL: trackURL, DurationSec: r.Duration})
	}
	return tracks, nil
}

// JamendoConfig configures the background-music searcher.
type JamendoConfig struct {
	ClientID          string
	BaseURL           string // optional (tests)
	RequestsPerMinute int    // token bucket for the search endpoint (60/min default)
	Timeout           time.Duration
	HTTPClient        *http.Client
}

// JamendoClient searches jamendo.com for background-music tracks.
type JamendoClient struct {
	clientID string
	baseURL  string
	limiter  *RateLimiter
	client   *http.Client
}

// NewJamendoClient creates a music searcher.
func NewJamendoClient(cfg JamendoConfig) *JamendoClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.jamendo.com/v3.0"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &JamendoClient{
		clientID: cfg.ClientID,
		baseURL:  cfg.BaseURL,
		limiter:  NewRateLimiter(cfg.RequestsPerMinute),
		client:   client,
	}
}

// Name returns the provider identifier.
func (c *JamendoClient) Name() string {
	return "jamendo"
}

type jamendoResponse struct {
	Results []struct {
		Name     string  `json:"name"`
		Audio    string  `json:"audio"`
		Duration float64 `json:"duration"`
	} `json:"results"`
}

// SearchTracks returns ranked music tracks matching the keywords.
func (c *JamendoClient) SearchTracks(ctx context.Context, keywords []string) ([]Track, error) {
	query := strings.Join(keywords, " ")
	reqURL := fmt.Sprintf("%s/tracks/?client_id=%s&format=json&limit=5&search=%s&audioformat=mp32",
		c.baseURL, url.QueryEscape(c.clientID), url.QueryEscape(query))

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var parsed jamendoResponse
	if err := getJSON(ctx, c.client, reqURL, nil, &parsed); err != nil {
		record429(c.limiter, err)
		return nil, fmt.Errorf("jamendo search failed: %w", err)
	}

	tracks := make([]Track, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		if r.Audio == "" {
			continue
		}
		tracks = append(tracks, Track{Name: r.Name, URL: r.Audio, DurationSec: r.Duration})
	}
	return tracks, nil
}

// getJSON performs a GET request and decodes a JSON response.
func getJSON(ctx context.Context, client *http.Client, reqURL string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &resilient.RateLimitError{
			Message:    fmt.Sprintf("search rate limited: %s", strings.TrimSpace(string(body))),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			StatusCode: resp.StatusCode,
		}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("search error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// record429 drains the limiter bucket when err is a rate-limit response.
func record429(limiter *RateLimiter, err error) {
	var rateErr *resilient.RateLimitError
	if errors.As(err, &rateErr) {
		limiter.Record429(rateErr.RetryAfter)
	}
}

var (
	_ TrackSearcher = (*FreesoundClient)(nil)
	_ TrackSearcher = (*JamendoClient)(nil)
)
