// Package providers contains clients for the external generation
// collaborators: text (script blueprints), speech synthesis, images,
// and music/sound-effect search.
package providers

import (
	"context"

	"github.com/storymill/storymill/internal/story"
)

// ScriptRequest carries the context for generating one chapter script.
type ScriptRequest struct {
	Topic          string
	Language       string
	ProjectTitle   string
	ChapterNumber  int
	ChapterCount   int
	PreviousTitles []string
	TargetMinutes  int
}

// ScriptBlueprint is the structured result of script generation.
type ScriptBlueprint struct {
	Title         string             `json:"title"`
	Lines         []story.ScriptLine `json:"lines"`
	MusicKeywords []string           `json:"musicKeywords,omitempty"`
	VisualPrompts []string           `json:"visualPrompts,omitempty"`
}

// ScriptGenerator turns a chapter context into a structured blueprint.
// Failures are either parse errors (malformed structured output after a
// correction attempt) or service errors.
type ScriptGenerator interface {
	GenerateScript(ctx context.Context, req *ScriptRequest) (*ScriptBlueprint, error)
	Name() string
}

// SpeechSynthesizer converts script lines into narration audio.
// An empty line set yields one second of silence rather than an error.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, lines []story.ScriptLine, cfg story.NarrationConfig) (*story.NarrationAudio, error)
	Name() string
}

// ImageProvider produces images for visual prompts. In AI-generation
// mode each image carries an owned binary blob; in stock mode only a
// display URL.
type ImageProvider interface {
	GenerateImages(ctx context.Context, prompts []string, count int) ([]story.ImageAsset, error)
	Name() string
}

// Track is one ranked result from a music or sound-effect search.
type Track struct {
	Name        string  `json:"name"`
	URL         string  `json:"url"`
	DurationSec float64 `json:"durationSec,omitempty"`
}

// TrackSearcher searches for audio tracks by keywords and returns ranked
// candidates; callers take the first result as selected.
type TrackSearcher interface {
	SearchTracks(ctx context.Context, keywords []string) ([]Track, error)
	Name() string
}
