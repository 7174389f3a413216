package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/storymill/storymill/internal/home"
	"github.com/storymill/storymill/internal/providers"
	"github.com/storymill/storymill/internal/resilient"
	"github.com/storymill/storymill/internal/store"
	"github.com/storymill/storymill/internal/story"
)

// mediaServer serves a valid-looking media blob for fetcher calls.
func mediaServer(t *testing.T) *httptest.Server {
	t.Helper()
	blob := make([]byte, 2048)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write(blob)
	}))
	t.Cleanup(srv.Close)
	return srv
}

type testEnv struct {
	script *providers.MockScriptGenerator
	speech *providers.MockSynthesizer
	images *providers.MockImageProvider
	music  *providers.MockTrackSearcher
	sfx    *providers.MockTrackSearcher
	orch   *Orchestrator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	srv := mediaServer(t)

	env := &testEnv{
		script: providers.NewMockScriptGenerator(),
		speech: &providers.MockSynthesizer{},
		images: &providers.MockImageProvider{},
		music:  providers.NewMockTrackSearcher(),
		sfx:    providers.NewMockTrackSearcher(),
	}
	env.music.Tracks = []providers.Track{{Name: "calm-theme", URL: srv.URL + "/music.mp3", DurationSec: 120}}
	env.sfx.Tracks = []providers.Track{{Name: "door creak", URL: srv.URL + "/sfx.mp3", DurationSec: 3}}

	orch, err := New(Config{
		Script:  env.script,
		Speech:  env.speech,
		Images:  env.images,
		Music:   env.music,
		Sfx:     env.sfx,
		Fetcher: resilient.NewFetcher(resilient.FetcherConfig{Relays: []string{}}),
		Options: Options{
			ImagesEnabled:    true,
			ImagesPerChapter: 3,
			MusicEnabled:     true,
			SfxEnabled:       true,
			Retry:            resilient.CallOptions{MaxAttempts: 2, InitialDelay: time.Millisecond},
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	env.orch = orch
	return env
}

func TestGenerateChapter_HappyPath(t *testing.T) {
	env := newTestEnv(t)
	p := story.NewProject("haunted lighthouses", "en", 2)
	ch := p.Chapters[1] // avoid the first-chapter thumbnail side effect

	if err := env.orch.GenerateChapter(context.Background(), p, ch); err != nil {
		t.Fatalf("GenerateChapter failed: %v", err)
	}

	if ch.Status != story.StatusCompleted {
		t.Fatalf("status = %q, want completed", ch.Status)
	}
	if ch.Title != "Mock Chapter" {
		t.Errorf("title = %q", ch.Title)
	}
	if ch.Audio == nil || len(ch.Audio.Data) == 0 {
		t.Error("narration audio missing")
	}
	if len(ch.Images) != 3 {
		t.Errorf("got %d images, want 3", len(ch.Images))
	}
	if ch.Music == nil || ch.Music.Name != "calm-theme" {
		t.Errorf("music = %+v", ch.Music)
	}
	if len(ch.SfxTimings) != 1 {
		t.Fatalf("got %d sfx timings, want 1", len(ch.SfxTimings))
	}
	if ch.SfxTimings[0].Name != "door creak" {
		t.Errorf("timing name = %q", ch.SfxTimings[0].Name)
	}
	if ch.CompletedAt.IsZero() {
		t.Error("CompletedAt not set")
	}
}

func TestGenerateChapter_ScriptFailureFailsChapter(t *testing.T) {
	env := newTestEnv(t)
	env.script.Err = errors.New("bad request")

	p := story.NewProject("t", "en", 2)
	ch := p.Chapters[1]

	err := env.orch.GenerateChapter(context.Background(), p, ch)
	if err == nil {
		t.Fatal("expected error")
	}
	if ch.Status != story.StatusError {
		t.Errorf("status = %q, want error", ch.Status)
	}
	if !strings.Contains(ch.Error, "script stage failed") {
		t.Errorf("chapter error = %q", ch.Error)
	}
	// No asset sub-task may run after a script failure.
	if env.speech.Calls() != 0 {
		t.Errorf("speech called %d times after script failure", env.speech.Calls())
	}
}

func TestGenerateChapter_ScriptBackendOwnsRetries(t *testing.T) {
	env := newTestEnv(t)
	env.script.Err = &resilient.RateLimitError{Message: "slow down"}

	p := story.NewProject("t", "en", 2)
	ch := p.Chapters[1]

	if err := env.orch.GenerateChapter(context.Background(), p, ch); err == nil {
		t.Fatal("expected error")
	}
	// The script generator owns the retry and fallback policy; the
	// orchestrator must not stack its own attempts on top of it, even
	// for a retryable failure.
	if got := env.script.Calls(); got != 1 {
		t.Errorf("script backend invoked %d times, want 1", got)
	}
}

func TestGenerateChapter_ProjectTargetMinutes(t *testing.T) {
	env := newTestEnv(t)
	blueprint := env.script.Blueprint
	var gotMinutes int
	env.script.GenerateFunc = func(ctx context.Context, req *providers.ScriptRequest) (*providers.ScriptBlueprint, error) {
		gotMinutes = req.TargetMinutes
		return blueprint, nil
	}

	p := story.NewProject("t", "en", 2)
	p.TargetMinutes = 9
	ch := p.Chapters[1]

	if err := env.orch.GenerateChapter(context.Background(), p, ch); err != nil {
		t.Fatalf("GenerateChapter failed: %v", err)
	}
	if gotMinutes != 9 {
		t.Errorf("script request minutes = %d, want the project setting", gotMinutes)
	}
}

func TestGenerateChapter_SnapshotReadersDuringGeneration(t *testing.T) {
	env := newTestEnv(t)
	h, err := home.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := h.EnsureExists(); err != nil {
		t.Fatal(err)
	}
	st := store.NewStore(h, nil)
	env.orch.store = st

	p := story.NewProject("parallel readers", "en", 2)
	if err := st.Add(p); err != nil {
		t.Fatal(err)
	}
	ch := p.Chapters[1]
	env.script.Latency = 5 * time.Millisecond

	done := make(chan error, 1)
	go func() { done <- env.orch.GenerateChapter(context.Background(), p, ch) }()

	// Hammer the read path while generation mutates the live project;
	// every snapshot must encode cleanly.
	for {
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("GenerateChapter failed: %v", err)
			}
			snap, err := st.Snapshot(p.ID)
			if err != nil {
				t.Fatal(err)
			}
			if snap.Chapters[1].Status != story.StatusCompleted {
				t.Errorf("final snapshot status = %q, want completed", snap.Chapters[1].Status)
			}
			return
		default:
		}
		snap, err := st.Snapshot(p.ID)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := json.Marshal(snap); err != nil {
			t.Fatalf("snapshot failed to encode mid-generation: %v", err)
		}
	}
}

func TestGenerateChapter_AudioFailureDiscardsOptionalAssets(t *testing.T) {
	env := newTestEnv(t)
	env.speech.Err = errors.New("synthesis exploded")

	p := story.NewProject("t", "en", 2)
	ch := p.Chapters[1]

	err := env.orch.GenerateChapter(context.Background(), p, ch)
	if err == nil {
		t.Fatal("expected error")
	}
	if ch.Status != story.StatusError {
		t.Fatalf("status = %q, want error", ch.Status)
	}
	if !strings.Contains(ch.Error, "audio sub-task failed") {
		t.Errorf("chapter error = %q", ch.Error)
	}
	// Optional assets from the failed attempt must not be attached.
	if ch.Audio != nil || ch.Images != nil || ch.Music != nil || ch.SfxTimings != nil {
		t.Error("partial assets attached on failed attempt")
	}
	// Script survives the failed asset phase for inspection and retry.
	if len(ch.Lines) == 0 {
		t.Error("script lines lost on failure")
	}
}

func TestGenerateChapter_OptionalFailuresTolerated(t *testing.T) {
	env := newTestEnv(t)
	env.images.Err = errors.New("image backend down")
	env.music.Err = errors.New("music backend down")
	env.sfx.Err = errors.New("sfx backend down")

	p := story.NewProject("t", "en", 2)
	ch := p.Chapters[1]

	if err := env.orch.GenerateChapter(context.Background(), p, ch); err != nil {
		t.Fatalf("GenerateChapter failed: %v", err)
	}
	if ch.Status != story.StatusCompleted {
		t.Fatalf("status = %q, want completed despite optional failures", ch.Status)
	}
	if ch.Audio == nil {
		t.Error("audio missing")
	}
	if ch.Images != nil || ch.Music != nil {
		t.Error("failed optional assets should be absent")
	}
	if len(ch.SfxTimings) != 0 {
		t.Errorf("got %d timings with no resolved effects", len(ch.SfxTimings))
	}
}

func TestGenerateChapter_MusicRequiredFailure(t *testing.T) {
	env := newTestEnv(t)
	env.orch.opts.MusicRequired = true
	env.music.Err = errors.New("music backend down")

	p := story.NewProject("t", "en", 2)
	ch := p.Chapters[1]

	err := env.orch.GenerateChapter(context.Background(), p, ch)
	if err == nil {
		t.Fatal("expected error with required music")
	}
	if ch.Status != story.StatusError {
		t.Errorf("status = %q, want error", ch.Status)
	}
	if !strings.Contains(ch.Error, "music sub-task failed") {
		t.Errorf("chapter error = %q", ch.Error)
	}
}

func TestRetryChapter(t *testing.T) {
	env := newTestEnv(t)
	env.script.Err = errors.New("bad request")

	p := story.NewProject("t", "en", 2)
	ch := p.Chapters[1]

	if err := env.orch.GenerateChapter(context.Background(), p, ch); err == nil {
		t.Fatal("expected first attempt to fail")
	}

	env.script.Err = nil
	if err := env.orch.RetryChapter(context.Background(), p, ch); err != nil {
		t.Fatalf("RetryChapter failed: %v", err)
	}
	if ch.Status != story.StatusCompleted {
		t.Errorf("status after retry = %q, want completed", ch.Status)
	}
	if ch.Error != "" {
		t.Errorf("error not cleared: %q", ch.Error)
	}
}

func TestRegenerateAudio_PreservesSiblingAssets(t *testing.T) {
	env := newTestEnv(t)
	p := story.NewProject("t", "en", 2)
	ch := p.Chapters[1]

	if err := env.orch.GenerateChapter(context.Background(), p, ch); err != nil {
		t.Fatalf("GenerateChapter failed: %v", err)
	}
	prevImages := ch.Images
	prevMusic := ch.Music

	if err := env.orch.RegenerateAudio(context.Background(), p, ch); err != nil {
		t.Fatalf("RegenerateAudio failed: %v", err)
	}
	if ch.Status != story.StatusCompleted {
		t.Fatalf("status = %q", ch.Status)
	}
	if env.speech.Calls() != 2 {
		t.Errorf("speech calls = %d, want 2", env.speech.Calls())
	}
	if len(ch.Images) != len(prevImages) || ch.Music != prevMusic {
		t.Error("sibling assets disturbed by audio regeneration")
	}
}

func TestRegenerateImages_OnlyTerminal(t *testing.T) {
	env := newTestEnv(t)
	p := story.NewProject("t", "en", 1)
	ch := p.Chapters[0]
	ch.Status = story.StatusGenerating

	if err := env.orch.RegenerateImages(context.Background(), p, ch); err == nil {
		t.Fatal("expected invalid transition from a non-terminal state")
	}
}
