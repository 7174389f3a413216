// Package orchestrator drives chapter generation: a mandatory script
// stage followed by concurrent asset sub-tasks, joined into one atomic
// chapter completion.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/storymill/storymill/internal/progress"
	"github.com/storymill/storymill/internal/providers"
	"github.com/storymill/storymill/internal/resilient"
	"github.com/storymill/storymill/internal/store"
	"github.com/storymill/storymill/internal/story"
)

// Options tunes which optional sub-tasks run and how.
type Options struct {
	ImagesEnabled    bool
	ImagesPerChapter int
	MusicEnabled     bool
	// MusicRequired promotes a music failure to a chapter failure.
	MusicRequired bool
	SfxEnabled    bool
	SearchTTL     time.Duration
	TargetMinutes int
	Retry         resilient.CallOptions
}

// Config wires an Orchestrator.
type Config struct {
	Script  providers.ScriptGenerator
	Speech  providers.SpeechSynthesizer
	Images  providers.ImageProvider
	Music   providers.TrackSearcher
	Sfx     providers.TrackSearcher
	Fetcher *resilient.Fetcher
	Store   *store.Store
	Hub     *progress.Hub
	Logger  *slog.Logger
	Options Options
}

// Orchestrator runs the per-chapter generation pipeline.
type Orchestrator struct {
	script  providers.ScriptGenerator
	speech  providers.SpeechSynthesizer
	images  providers.ImageProvider
	music   providers.TrackSearcher
	sfx     providers.TrackSearcher
	fetcher *resilient.Fetcher
	store   *store.Store
	hub     *progress.Hub
	logger  *slog.Logger
	opts    Options
}

// New creates an orchestrator. Script and Speech backends are mandatory;
// the optional sub-tasks degrade to no-ops when their provider is absent.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Script == nil {
		return nil, fmt.Errorf("script generator is required")
	}
	if cfg.Speech == nil {
		return nil, fmt.Errorf("speech synthesizer is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	fetcher := cfg.Fetcher
	if fetcher == nil {
		fetcher = resilient.NewFetcher(resilient.FetcherConfig{Logger: logger})
	}

	o := &Orchestrator{
		script:  cfg.Script,
		speech:  cfg.Speech,
		images:  cfg.Images,
		fetcher: fetcher,
		store:   cfg.Store,
		hub:     cfg.Hub,
		logger:  logger,
		opts:    cfg.Options,
	}
	if cfg.Music != nil {
		o.music = NewCachedSearcher(cfg.Music, cfg.Options.SearchTTL)
	}
	if cfg.Sfx != nil {
		o.sfx = NewCachedSearcher(cfg.Sfx, cfg.Options.SearchTTL)
	}
	return o, nil
}

// GenerateChapter runs one full generation attempt for a chapter. The
// script stage is mandatory and sequential; asset sub-tasks then run
// concurrently. Narration audio is the only mandatory asset: its failure
// fails the chapter and discards partial optional assets.
func (o *Orchestrator) GenerateChapter(ctx context.Context, p *story.Project, ch *story.Chapter) error {
	if err := o.mutate(p, ch.BeginScriptGeneration); err != nil {
		return err
	}
	o.publish(p, ch)

	blueprint, err := o.generateScript(ctx, p, ch)
	if err != nil {
		return o.fail(p, ch, fmt.Errorf("script stage failed: %w", err))
	}
	if err := o.mutate(p, func() error {
		if err := ch.SetScript(blueprint.Title, blueprint.Lines); err != nil {
			return err
		}
		if p.Title == "" && ch.Number == 1 {
			p.Title = blueprint.Title
		}
		return nil
	}); err != nil {
		return err
	}
	o.publish(p, ch)

	assets, err := o.generateAssets(ctx, p, ch, blueprint)
	if err != nil {
		return o.fail(p, ch, err)
	}

	if err := o.mutate(p, func() error { return ch.Complete(*assets) }); err != nil {
		return err
	}
	o.publish(p, ch)
	o.logger.Info("chapter completed",
		"project", p.ID, "chapter", ch.Number, "title", ch.Title,
		"lines", len(ch.Lines), "images", len(ch.Images), "sfx", len(ch.SfxTimings))

	if ch.Number == 1 {
		go o.generateThumbnail(context.WithoutCancel(ctx), p)
	}
	return nil
}

// generateScript calls the script backend with project context. The
// backend owns its retry and fallback policy; adding another retry
// layer here would multiply the attempt budget.
func (o *Orchestrator) generateScript(ctx context.Context, p *story.Project, ch *story.Chapter) (*providers.ScriptBlueprint, error) {
	var previous []string
	projectTitle := ""
	count := 0
	o.view(func() {
		for _, c := range p.Chapters {
			if c.Number < ch.Number && c.Title != "" {
				previous = append(previous, c.Title)
			}
		}
		projectTitle = p.Title
		count = len(p.Chapters)
	})

	minutes := p.TargetMinutes
	if minutes == 0 {
		minutes = o.opts.TargetMinutes
	}

	req := &providers.ScriptRequest{
		Topic:          p.Topic,
		Language:       p.Language,
		ProjectTitle:   projectTitle,
		ChapterNumber:  ch.Number,
		ChapterCount:   count,
		PreviousTitles: previous,
		TargetMinutes:  minutes,
	}
	return o.script.GenerateScript(ctx, req)
}

// generateAssets runs the concurrent sub-tasks and joins their results.
func (o *Orchestrator) generateAssets(ctx context.Context, p *story.Project, ch *story.Chapter, bp *providers.ScriptBlueprint) (*story.ChapterAssets, error) {
	results := make(chan subtaskResult, 4)
	launched := 0

	launched++
	go o.runAudioTask(ctx, results, bp.Lines, p.Narration)

	if o.opts.ImagesEnabled && o.images != nil {
		launched++
		go o.runImagesTask(ctx, results, bp.VisualPrompts)
	}
	if o.opts.MusicEnabled && o.music != nil {
		launched++
		go o.runMusicTask(ctx, results, bp.MusicKeywords)
	}
	if o.opts.SfxEnabled && o.sfx != nil {
		launched++
		go o.runSfxTask(ctx, results, bp.Lines)
	}

	assets := &story.ChapterAssets{}
	resolvedLines := bp.Lines
	var mandatoryErr error

	for i := 0; i < launched; i++ {
		res := <-results
		if res.err != nil {
			if res.mandatory() || (res.name == taskMusic && o.opts.MusicRequired) {
				if mandatoryErr == nil {
					mandatoryErr = fmt.Errorf("%s sub-task failed: %w", res.name, res.err)
				}
			} else {
				o.logger.Warn("optional sub-task failed, continuing without asset",
					"project", p.ID, "chapter", ch.Number, "task", res.name, "error", res.err)
			}
			continue
		}
		switch res.name {
		case taskAudio:
			assets.Audio = res.audio
		case taskImages:
			assets.Images = res.images
		case taskMusic:
			assets.Music = res.music
		case taskSfx:
			resolvedLines = res.lines
		}
	}

	if mandatoryErr != nil {
		return nil, mandatoryErr
	}

	// The timing walk runs only after both the narration and SFX joins,
	// over the final resolved line set.
	assets.Lines = resolvedLines
	assets.SfxTimings = story.ComputeSfxTimings(resolvedLines)
	return assets, nil
}

// RetryChapter resets an errored chapter and runs a fresh attempt.
func (o *Orchestrator) RetryChapter(ctx context.Context, p *story.Project, ch *story.Chapter) error {
	if err := o.mutate(p, ch.ResetForRetry); err != nil {
		return err
	}
	o.publish(p, ch)
	return o.GenerateChapter(ctx, p, ch)
}

// RegenerateAudio replaces only the narration audio of a terminal chapter.
// The existing script, images, and music are preserved; SFX timings are
// recomputed against the unchanged line set.
func (o *Orchestrator) RegenerateAudio(ctx context.Context, p *story.Project, ch *story.Chapter) error {
	if err := o.mutate(p, ch.BeginAudioRegeneration); err != nil {
		return err
	}
	o.publish(p, ch)

	audio, err := resilient.CallWithRetries(ctx, func(ctx context.Context) (*story.NarrationAudio, error) {
		return o.speech.Synthesize(ctx, ch.Lines, p.Narration)
	}, o.opts.Retry)
	if err != nil {
		return o.fail(p, ch, fmt.Errorf("audio regeneration failed: %w", err))
	}

	if err := o.mutate(p, func() error {
		return ch.Complete(story.ChapterAssets{
			Audio:      audio,
			SfxTimings: story.ComputeSfxTimings(ch.Lines),
		})
	}); err != nil {
		return err
	}
	o.publish(p, ch)
	return nil
}

// RegenerateImages replaces only the images of a terminal chapter.
func (o *Orchestrator) RegenerateImages(ctx context.Context, p *story.Project, ch *story.Chapter) error {
	if o.images == nil {
		return fmt.Errorf("no image provider configured")
	}
	if err := o.mutate(p, ch.BeginImagesRegeneration); err != nil {
		return err
	}
	o.publish(p, ch)

	prompts := visualPromptsFromLines(ch.Lines, ch.Title)
	images, err := resilient.CallWithRetries(ctx, func(ctx context.Context) ([]story.ImageAsset, error) {
		return o.images.GenerateImages(ctx, prompts, o.imagesPerChapter())
	}, o.opts.Retry)
	if err != nil {
		return o.fail(p, ch, fmt.Errorf("image regeneration failed: %w", err))
	}

	if err := o.mutate(p, func() error {
		return ch.Complete(story.ChapterAssets{Images: images})
	}); err != nil {
		return err
	}
	o.publish(p, ch)
	return nil
}

func (o *Orchestrator) imagesPerChapter() int {
	if o.opts.ImagesPerChapter > 0 {
		return o.opts.ImagesPerChapter
	}
	return 5
}

// fail records the chapter failure and persists it; the returned error is
// the underlying cause for the caller's log line.
func (o *Orchestrator) fail(p *story.Project, ch *story.Chapter, cause error) error {
	if err := o.mutate(p, func() error { return ch.Fail(cause) }); err != nil {
		return err
	}
	o.publish(p, ch)
	o.logger.Error("chapter failed", "project", p.ID, "chapter", ch.Number, "error", cause)
	return cause
}

// mutate funnels a project mutation through the store lock when a store
// is wired, so API snapshot readers never observe a half-applied
// transition. The store persists the manifest after a successful fn.
func (o *Orchestrator) mutate(p *story.Project, fn func() error) error {
	if o.store != nil {
		return o.store.Mutate(p, fn)
	}
	return fn()
}

// view runs fn under the store read lock when a store is wired.
func (o *Orchestrator) view(fn func()) {
	if o.store != nil {
		o.store.View(fn)
		return
	}
	fn()
}

// publish pushes the chapter's current state to websocket subscribers.
func (o *Orchestrator) publish(p *story.Project, ch *story.Chapter) {
	if o.hub != nil {
		o.hub.ChapterStatus(p.ID, ch)
	}
}

// visualPromptsFromLines derives image prompts from spoken lines when no
// blueprint prompts are available (regeneration path).
func visualPromptsFromLines(lines []story.ScriptLine, title string) []string {
	var prompts []string
	for _, l := range lines {
		if l.IsSFX() || len(l.Text) < 40 {
			continue
		}
		prompts = append(prompts, l.Text)
		if len(prompts) == 8 {
			break
		}
	}
	if len(prompts) == 0 && title != "" {
		prompts = []string{title}
	}
	return prompts
}
