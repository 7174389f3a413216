package story

import (
	"fmt"
	"time"
)

// The chapter lifecycle is linear with no cycles except error -> pending
// via an explicit retry request:
//
//	pending -> script_generating -> generating -> completed
//
// error is reachable from any non-terminal state. completed and error are
// terminal for a generation attempt. audio_generating/images_generating
// are side transitions re-entered from a terminal state that touch only
// the targeted asset.
//
// Every transition updates exactly the fields relevant to the stage just
// finished and preserves all previously-set fields.

// ChapterAssets carries the resolved artifacts of one generation attempt.
// Nil/empty fields are not applied, so a stage-specific regeneration never
// erases sibling assets it did not produce.
type ChapterAssets struct {
	Audio      *NarrationAudio
	Images     []ImageAsset
	Music      *MusicTrack
	Lines      []ScriptLine // lines with resolved sound effects
	SfxTimings []SfxTiming
}

// BeginScriptGeneration starts a full generation attempt.
func (c *Chapter) BeginScriptGeneration() error {
	switch c.Status {
	case StatusPending, StatusError:
	default:
		return c.invalidTransition(StatusScriptGenerating)
	}
	c.Status = StatusScriptGenerating
	c.Error = ""
	return nil
}

// SetScript records the generated script and enters the asset-generating
// super-state. The script is persisted immediately so observers can render
// partial progress while assets are still in flight.
func (c *Chapter) SetScript(title string, lines []ScriptLine) error {
	if c.Status != StatusScriptGenerating {
		return c.invalidTransition(StatusGenerating)
	}
	if title != "" {
		c.Title = title
	}
	c.Lines = lines
	c.Status = StatusGenerating
	return nil
}

// BeginAudioRegeneration re-enters a terminal chapter to regenerate only
// the narration audio.
func (c *Chapter) BeginAudioRegeneration() error {
	if !c.Status.Terminal() {
		return c.invalidTransition(StatusAudioGenerating)
	}
	c.Status = StatusAudioGenerating
	c.Error = ""
	return nil
}

// BeginImagesRegeneration re-enters a terminal chapter to regenerate only
// the images.
func (c *Chapter) BeginImagesRegeneration() error {
	if !c.Status.Terminal() {
		return c.invalidTransition(StatusImagesGenerating)
	}
	c.Status = StatusImagesGenerating
	c.Error = ""
	return nil
}

// Complete attaches the attempt's assets in a single atomic update and
// marks the chapter completed. Only fields the attempt produced are
// replaced; everything else is preserved.
func (c *Chapter) Complete(assets ChapterAssets) error {
	switch c.Status {
	case StatusGenerating, StatusAudioGenerating, StatusImagesGenerating:
	default:
		return c.invalidTransition(StatusCompleted)
	}

	if assets.Lines != nil {
		c.Lines = assets.Lines
	}
	if assets.Audio != nil {
		c.Audio = assets.Audio
	}
	if assets.Images != nil {
		c.Images = assets.Images
	}
	if assets.Music != nil {
		c.Music = assets.Music
	}
	if assets.SfxTimings != nil {
		c.SfxTimings = assets.SfxTimings
	}

	c.Status = StatusCompleted
	c.Error = ""
	c.CompletedAt = time.Now().UTC()
	return nil
}

// Fail transitions a non-terminal chapter to error with the underlying
// message. Assets produced by the failed attempt are not attached.
func (c *Chapter) Fail(cause error) error {
	if c.Status.Terminal() {
		return c.invalidTransition(StatusError)
	}
	c.Status = StatusError
	if cause != nil {
		c.Error = cause.Error()
	}
	return nil
}

// ResetForRetry returns an errored chapter to pending for an explicit
// regeneration request.
func (c *Chapter) ResetForRetry() error {
	if c.Status != StatusError {
		return c.invalidTransition(StatusPending)
	}
	c.Status = StatusPending
	c.Error = ""
	return nil
}

func (c *Chapter) invalidTransition(to ChapterStatus) error {
	return fmt.Errorf("chapter %d: invalid transition %s -> %s", c.Number, c.Status, to)
}
