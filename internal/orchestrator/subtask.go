package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/storymill/storymill/internal/providers"
	"github.com/storymill/storymill/internal/resilient"
	"github.com/storymill/storymill/internal/story"
)

type taskName string

const (
	taskAudio  taskName = "audio"
	taskImages taskName = "images"
	taskMusic  taskName = "music"
	taskSfx    taskName = "sfx"
)

// subtaskResult is the join message from one concurrent asset sub-task.
type subtaskResult struct {
	name   taskName
	err    error
	audio  *story.NarrationAudio
	images []story.ImageAsset
	music  *story.MusicTrack
	lines  []story.ScriptLine
}

func (r subtaskResult) mandatory() bool {
	return r.name == taskAudio
}

func (o *Orchestrator) runAudioTask(ctx context.Context, out chan<- subtaskResult, lines []story.ScriptLine, narration story.NarrationConfig) {
	audio, err := resilient.CallWithRetries(ctx, func(ctx context.Context) (*story.NarrationAudio, error) {
		return o.speech.Synthesize(ctx, lines, narration)
	}, o.opts.Retry)
	out <- subtaskResult{name: taskAudio, audio: audio, err: err}
}

func (o *Orchestrator) runImagesTask(ctx context.Context, out chan<- subtaskResult, prompts []string) {
	if len(prompts) == 0 {
		out <- subtaskResult{name: taskImages}
		return
	}
	images, err := resilient.CallWithRetries(ctx, func(ctx context.Context) ([]story.ImageAsset, error) {
		return o.images.GenerateImages(ctx, prompts, o.imagesPerChapter())
	}, o.opts.Retry)
	out <- subtaskResult{name: taskImages, images: images, err: err}
}

func (o *Orchestrator) runMusicTask(ctx context.Context, out chan<- subtaskResult, keywords []string) {
	if len(keywords) == 0 {
		out <- subtaskResult{name: taskMusic}
		return
	}

	tracks, err := resilient.CallWithRetries(ctx, func(ctx context.Context) ([]providers.Track, error) {
		return o.music.SearchTracks(ctx, keywords)
	}, o.opts.Retry)
	if err != nil {
		out <- subtaskResult{name: taskMusic, err: err}
		return
	}
	if len(tracks) == 0 {
		out <- subtaskResult{name: taskMusic, err: fmt.Errorf("no music tracks found for %q", strings.Join(keywords, " "))}
		return
	}

	// First ranked result is the selection.
	track := &story.MusicTrack{
		Name:        tracks[0].Name,
		URL:         tracks[0].URL,
		DurationSec: tracks[0].DurationSec,
	}
	if data, err := o.fetcher.Fetch(ctx, track.URL); err == nil {
		track.Data = data
	} else {
		// Packaging re-fetches URL-only tracks; keep the selection.
		o.logger.Debug("music download deferred", "track", track.Name, "error", err)
	}
	out <- subtaskResult{name: taskMusic, music: track}
}

// runSfxTask resolves each SFX cue line to a concrete sound effect on a
// private copy of the line set, so the audio task can read the original
// lines concurrently.
func (o *Orchestrator) runSfxTask(ctx context.Context, out chan<- subtaskResult, lines []story.ScriptLine) {
	resolved := make([]story.ScriptLine, len(lines))
	copy(resolved, lines)

	found := 0
	var lastErr error
	for i := range resolved {
		if !resolved[i].IsSFX() {
			continue
		}
		effect, err := o.resolveSfx(ctx, resolved[i])
		if err != nil {
			// An unresolved cue is skipped by the timing walk, not fatal.
			lastErr = err
			o.logger.Warn("sound effect unresolved", "cue", resolved[i].Text, "error", err)
			continue
		}
		resolved[i].SoundEffect = effect
		found++
	}

	if found == 0 && lastErr != nil {
		out <- subtaskResult{name: taskSfx, err: fmt.Errorf("no sound effects resolved: %w", lastErr)}
		return
	}
	out <- subtaskResult{name: taskSfx, lines: resolved}
}

func (o *Orchestrator) resolveSfx(ctx context.Context, line story.ScriptLine) (*story.SoundEffect, error) {
	keywords := line.SearchKeywords
	if len(keywords) == 0 {
		keywords = strings.Fields(line.Text)
	}

	tracks, err := o.sfx.SearchTracks(ctx, keywords)
	if err != nil {
		return nil, err
	}
	if len(tracks) == 0 {
		return nil, fmt.Errorf("no results for %q", strings.Join(keywords, " "))
	}

	effect := &story.SoundEffect{Name: tracks[0].Name, URL: tracks[0].URL}
	if data, err := o.fetcher.Fetch(ctx, effect.URL); err == nil {
		effect.Data = data
	}
	return effect, nil
}
