package providers

import (
	"context"
	"sync"
	"time"

	"github.com/storymill/storymill/internal/story"
)

// MockScriptGenerator is a configurable test double for ScriptGenerator.
type MockScriptGenerator struct {
	mu        sync.Mutex
	calls     int
	Blueprint *ScriptBlueprint
	Err       error
	Latency   time.Duration

	// GenerateFunc overrides the canned behavior when set.
	GenerateFunc func(ctx context.Context, req *ScriptRequest) (*ScriptBlueprint, error)
}

// NewMockScriptGenerator returns a mock that produces a small valid blueprint.
func NewMockScriptGenerator() *MockScriptGenerator {
	return &MockScriptGenerator{
		Blueprint: &ScriptBlueprint{
			Title: "Mock Chapter",
			Lines: []story.ScriptLine{
				{Speaker: "Narrator", Text: "Once upon a mock."},
				{Speaker: story.SpeakerSFX, Text: "door creak", SearchKeywords: []string{"door", "creak"}},
				{Speaker: "Narrator", Text: "The end of the mock."},
			},
			MusicKeywords: []string{"ambient", "calm"},
			VisualPrompts: []string{"a quiet room", "an open door"},
		},
	}
}

func (m *MockScriptGenerator) Name() string { return "mock-script" }

// Calls returns how many times GenerateScript was invoked.
func (m *MockScriptGenerator) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockScriptGenerator) GenerateScript(ctx context.Context, req *ScriptRequest) (*ScriptBlueprint, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.Latency > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.Latency):
		}
	}
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Blueprint, nil
}

// MockSynthesizer is a configurable test double for SpeechSynthesizer.
type MockSynthesizer struct {
	mu      sync.Mutex
	calls   int
	Err     error
	Latency time.Duration
}

func (m *MockSynthesizer) Name() string { return "mock-speech" }

// Calls returns how many times Synthesize was invoked.
func (m *MockSynthesizer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockSynthesizer) Synthesize(ctx context.Context, lines []story.ScriptLine, cfg story.NarrationConfig) (*story.NarrationAudio, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.Latency > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.Latency):
		}
	}
	if m.Err != nil {
		return nil, m.Err
	}

	spoken := 0
	for _, l := range lines {
		if !l.IsSFX() {
			spoken += len(l.Text)
		}
	}
	if spoken == 0 {
		return SilentAudio(), nil
	}
	return &story.NarrationAudio{
		Data:        []byte("mock-audio"),
		Format:      "mp3",
		DurationSec: float64(spoken) / story.CharsPerSecond,
	}, nil
}

// MockImageProvider is a configurable test double for ImageProvider.
type MockImageProvider struct {
	mu    sync.Mutex
	calls int
	Err   error
}

func (m *MockImageProvider) Name() string { return "mock-images" }

// Calls returns how many times GenerateImages was invoked.
func (m *MockImageProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockImageProvider) GenerateImages(ctx context.Context, prompts []string, count int) ([]story.ImageAsset, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	images := make([]story.ImageAsset, 0, count)
	for i := 0; i < count; i++ {
		prompt := ""
		if len(prompts) > 0 {
			prompt = prompts[i%len(prompts)]
		}
		images = append(images, story.ImageAsset{
			URL:    "https://example.com/mock.jpg",
			Prompt: prompt,
			Ext:    "jpg",
			Data:   []byte("mock-image"),
		})
	}
	return images, nil
}

// MockTrackSearcher is a configurable test double for TrackSearcher.
type MockTrackSearcher struct {
	mu     sync.Mutex
	calls  int
	Tracks []Track
	Err    error
}

// NewMockTrackSearcher returns a mock with one canned track.
func NewMockTrackSearcher() *MockTrackSearcher {
	return &MockTrackSearcher{
		Tracks: []Track{{Name: "mock-track", URL: "https://example.com/track.mp3", DurationSec: 120}},
	}
}

func (m *MockTrackSearcher) Name() string { return "mock-tracks" }

// Calls returns how many times SearchTracks was invoked.
func (m *MockTrackSearcher) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockTrackSearcher) SearchTracks(ctx context.Context, keywords []string) ([]Track, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	return m.Tracks, nil
}

var (
	_ ScriptGenerator   = (*MockScriptGenerator)(nil)
	_ SpeechSynthesizer = (*MockSynthesizer)(nil)
	_ ImageProvider     = (*MockImageProvider)(nil)
	_ TrackSearcher     = (*MockTrackSearcher)(nil)
)
