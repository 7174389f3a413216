package story

import (
	"fmt"
	"math"
	"strings"
)

const (
	// CharsPerSecond is the fixed reading-speed constant used to advance
	// the cue clock for spoken lines.
	CharsPerSecond = 15.0

	// MaxSfxDuration caps the duration of any single sound-effect cue.
	MaxSfxDuration = 10.0

	// MinSfxDuration is the floor for sound-effect cue duration.
	MinSfxDuration = 2.0

	// DefaultSfxVolume is used when a line carries no explicit volume.
	DefaultSfxVolume = 0.7
)

// ComputeSfxTimings walks the script lines in order and emits one timing
// per SFX line with a resolved sound effect. Spoken lines advance the cue
// clock by len(text)/CharsPerSecond; SFX lines never do.
//
// The function is deterministic and side-effect-free: identical input
// always yields identical timings. Downstream packaging clamps timings to
// the measured audio duration, so any drift there must be attributable to
// a real duration mismatch, not recomputation variance.
func ComputeSfxTimings(lines []ScriptLine) []SfxTiming {
	timings := []SfxTiming{}
	currentTime := 0.0
	cueIdx := 0

	for _, line := range lines {
		if line.IsSFX() {
			if line.SoundEffect != nil {
				cueIdx++
				timings = append(timings, SfxTiming{
					Name:      line.SoundEffect.Name,
					StartTime: round2(currentTime),
					Duration:  sfxDuration(line.Text),
					Volume:    sfxVolume(line.SoundEffectVolume),
					File:      SfxFilePath(cueIdx, line.SoundEffect.Name),
				})
			}
			continue
		}
		if line.Text != "" {
			currentTime += float64(len(line.Text)) / CharsPerSecond
		}
	}

	return timings
}

// SpokenDuration returns the estimated narration length of the script in
// seconds under the fixed reading-speed constant.
func SpokenDuration(lines []ScriptLine) float64 {
	total := 0.0
	for _, line := range lines {
		if line.IsSFX() {
			continue
		}
		total += float64(len(line.Text)) / CharsPerSecond
	}
	return round2(total)
}

// SfxFilePath returns the archive-relative path for a cue's audio file.
func SfxFilePath(cueIdx int, name string) string {
	return fmt.Sprintf("sfx/%03d_%s.mp3", cueIdx, slugify(name))
}

func sfxDuration(text string) float64 {
	d := float64(len(text)) / 50.0
	if d < MinSfxDuration {
		d = MinSfxDuration
	}
	if d > MaxSfxDuration {
		d = MaxSfxDuration
	}
	return d
}

func sfxVolume(v float64) float64 {
	if v > 0 {
		return v
	}
	return DefaultSfxVolume
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// slugify reduces a name to a filesystem-safe lowercase token.
func slugify(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_':
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "sfx"
	}
	return b.String()
}
