package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/storymill/storymill/internal/resilient"
	"github.com/storymill/storymill/internal/story"
)

// PollinationsConfig configures the AI image generator.
type PollinationsConfig struct {
	BaseURL string // optional (tests)
	Width   int
	Height  int
	Fetcher *resilient.Fetcher
	Logger  *slog.Logger
}

// PollinationsClient generates images via pollinations.ai. Each result
// carries an owned binary blob alongside its display URL.
type PollinationsClient struct {
	baseURL string
	width   int
	height  int
	fetcher *resilient.Fetcher
	logger  *slog.Logger
}

// NewPollinationsClient creates an AI image provider.
func NewPollinationsClient(cfg PollinationsConfig) *PollinationsClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://image.pollinations.ai"
	}
	if cfg.Width == 0 {
		cfg.Width = 1920
	}
	if cfg.Height == 0 {
		cfg.Height = 1080
	}
	if cfg.Fetcher == nil {
		cfg.Fetcher = resilient.NewFetcher(resilient.FetcherConfig{})
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &PollinationsClient{
		baseURL: cfg.BaseURL,
		width:   cfg.Width,
		height:  cfg.Height,
		fetcher: cfg.Fetcher,
		logger:  cfg.Logger,
	}
}

// Name returns the provider identifier.
func (c *PollinationsClient) Name() string {
	return "pollinations"
}

// GenerateImages produces one image per prompt up to count. A failed
// prompt is logged and skipped; the call fails only when every prompt
// fails.
func (c *PollinationsClient) GenerateImages(ctx context.Context, prompts []string, count int) ([]story.ImageAsset, error) {
	if count <= 0 || len(prompts) == 0 {
		return nil, nil
	}

	var images []story.ImageAsset
	var lastErr error
	for i := 0; i < count; i++ {
		prompt := prompts[i%len(prompts)]
		// Deterministic seed per slot so regeneration is reproducible.
		imageURL := fmt.Sprintf("%s/prompt/%s?width=%d&height=%d&nologo=true&model=flux&seed=%d",
			c.baseURL, url.PathEscape(prompt), c.width, c.height, i*42+7)

		data, err := c.fetcher.Fetch(ctx, imageURL)
		if err != nil {
			lastErr = err
			c.logger.Warn("image generation failed", "prompt", prompt, "error", err)
			continue
		}
		images = append(images, story.ImageAsset{
			URL:    imageURL,
			Prompt: prompt,
			Ext:    "jpg",
			Data:   data,
		})
	}

	if len(images) == 0 && lastErr != nil {
		return nil, fmt.Errorf("all %d image prompts failed: %w", count, lastErr)
	}
	return images, nil
}

// PexelsConfig configures the stock-photo provider.
type PexelsConfig struct {
	APIKey     string
	BaseURL    string // optional (tests)
	Timeout    time.Duration
	HTTPClient *http.Client
}

// PexelsClient searches stock photos. Stock images carry only a display
// URL; the binary is fetched at packaging time when needed.
type PexelsClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewPexelsClient creates a stock-photo provider.
func NewPexelsClient(cfg PexelsConfig) *PexelsClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.pexels.com/v1"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &PexelsClient{apiKey: cfg.APIKey, baseURL: cfg.BaseURL, client: client}
}

// Name returns the provider identifier.
func (c *PexelsClient) Name() string {
	return "pexels"
}

type pexelsResponse struct {
	Photos []struct {
		Alt string `json:"alt"`
		Src struct {
			Large2x string `json:"large2x"`
			Large   string `json:"large"`
		} `json:"src"`
	} `json:"photos"`
}

// GenerateImages searches stock photos for each prompt.
func (c *PexelsClient) GenerateImages(ctx context.Context, prompts []string, count int) ([]story.ImageAsset, error) {
	if count <= 0 || len(prompts) == 0 {
		return nil, nil
	}

	var images []story.ImageAsset
	for i := 0; i < count && i < len(prompts); i++ {
		photoURL, err := c.searchOne(ctx, prompts[i])
		if err != nil {
			continue
		}
		images = append(images, story.ImageAsset{
			URL:    photoURL,
			Prompt: prompts[i],
			Ext:    "jpg",
		})
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("no stock photos found for %d prompts", len(prompts))
	}
	return images, nil
}

func (c *PexelsClient) searchOne(ctx context.Context, query string) (string, error) {
	reqURL := fmt.Sprintf("%s/search?query=%s&per_page=1", c.baseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("pexels request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("pexels error (status %d): %s", resp.StatusCode, string(body))
	}

	var parsed pexelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode pexels response: %w", err)
	}
	if len(parsed.Photos) == 0 {
		return "", fmt.Errorf("no pexels results for %q", query)
	}
	if parsed.Photos[0].Src.Large2x != "" {
		return parsed.Photos[0].Src.Large2x, nil
	}
	return parsed.Photos[0].Src.Large, nil
}

var (
	_ ImageProvider = (*PollinationsClient)(nil)
	_ ImageProvider = (*PexelsClient)(nil)
)
