package packaging

import (
	"encoding/json"
	"math"

	"github.com/storymill/storymill/internal/story"
)

const (
	// MinImageDuration is the floor for per-image display time in seconds.
	MinImageDuration = 2.0

	// MaxImageDuration is the cap for per-image display time in seconds.
	MaxImageDuration = 20.0
)

// ChapterMetadata is the per-chapter assembly contract written into the
// archive. It must be byte-identical across repeated packaging runs of an
// unchanged chapter, so it carries no timestamps or volatile fields.
type ChapterMetadata struct {
	ChapterNumber int               `json:"chapterNumber"`
	Title         string            `json:"title"`
	AudioDuration float64           `json:"audioDuration"`
	ImageCount    int               `json:"imageCount"`
	ImageDuration float64           `json:"imageDuration"`
	MusicVolume   float64           `json:"musicVolume"`
	SfxTimings    []story.SfxTiming `json:"sfxTimings"`
}

// BuildChapterMetadata derives the assembly metadata for one completed
// chapter against the measured audio duration.
func BuildChapterMetadata(ch *story.Chapter, audioDuration, musicVolume float64) *ChapterMetadata {
	md := &ChapterMetadata{
		ChapterNumber: ch.Number,
		Title:         ch.Title,
		AudioDuration: round2(audioDuration),
		ImageCount:    len(ch.Images),
		MusicVolume:   musicVolume,
		SfxTimings:    clampTimings(ch.SfxTimings, audioDuration),
	}

	if md.ImageCount > 0 {
		d := audioDuration / float64(md.ImageCount)
		if d < MinImageDuration {
			d = MinImageDuration
		}
		if d > MaxImageDuration {
			d = MaxImageDuration
		}
		md.ImageDuration = round2(d)
	}
	return md
}

// Encode renders the metadata as stable, indented JSON.
func (md *ChapterMetadata) Encode() ([]byte, error) {
	return json.MarshalIndent(md, "", "  ")
}

// clampTimings fits cues inside the measured audio. Cues starting at or
// past the end are dropped; the rest are truncated so a cue never plays
// past the narration.
func clampTimings(timings []story.SfxTiming, audioDuration float64) []story.SfxTiming {
	out := []story.SfxTiming{}
	for _, t := range timings {
		if audioDuration > 0 && t.StartTime >= audioDuration {
			continue
		}
		if audioDuration > 0 && t.StartTime+t.Duration > audioDuration {
			t.Duration = round2(audioDuration - t.StartTime)
		}
		out = append(out, t)
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
