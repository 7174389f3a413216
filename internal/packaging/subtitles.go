package packaging

import (
	"fmt"
	"strings"

	"github.com/storymill/storymill/internal/story"
)

const (
	// maxSubtitleChars is the display width limit per subtitle line.
	maxSubtitleChars = 42

	// maxSubtitleLines bounds how many display lines one cue may hold.
	maxSubtitleLines = 2
)

// SubtitleCue is one timed subtitle block.
type SubtitleCue struct {
	Index int
	Start float64
	End   float64
	Lines []string
}

// BuildCues converts spoken script lines into subtitle cues. Text is
// greedily wrapped into blocks of at most two 42-character lines; cue
// durations follow the fixed reading rate, and the final cue is clamped
// to the audio duration when one is known.
func BuildCues(lines []story.ScriptLine, audioDuration float64) []SubtitleCue {
	var cues []SubtitleCue
	current := 0.0

	for _, line := range lines {
		if line.IsSFX() || strings.TrimSpace(line.Text) == "" {
			continue
		}
		for _, block := range wrapBlocks(line.Text) {
			chars := 0
			for _, l := range block {
				chars += len(l)
			}
			duration := float64(chars) / story.CharsPerSecond

			cues = append(cues, SubtitleCue{
				Index: len(cues) + 1,
				Start: current,
				End:   current + duration,
				Lines: block,
			})
			current += duration
		}
	}

	if audioDuration > 0 {
		for i := range cues {
			if cues[i].End > audioDuration {
				cues[i].End = audioDuration
			}
			if cues[i].Start > audioDuration {
				cues[i].Start = audioDuration
			}
		}
	}
	return cues
}

// FormatSRT renders cues as an SRT document.
func FormatSRT(cues []SubtitleCue) string {
	var b strings.Builder
	for _, cue := range cues {
		fmt.Fprintf(&b, "%d\n", cue.Index)
		fmt.Fprintf(&b, "%s --> %s\n", srtTimestamp(cue.Start), srtTimestamp(cue.End))
		for _, line := range cue.Lines {
			b.WriteString(line)
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// wrapBlocks splits text into subtitle blocks, each at most two lines of
// at most 42 characters, packing words greedily.
func wrapBlocks(text string) [][]string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var blocks [][]string
	var block []string
	line := ""

	flushLine := func() {
		if line == "" {
			return
		}
		block = append(block, line)
		line = ""
		if len(block) == maxSubtitleLines {
			blocks = append(blocks, block)
			block = nil
		}
	}

	for _, word := range words {
		// Oversized single words get a line of their own, unsplit.
		if line == "" {
			line = word
			continue
		}
		if len(line)+1+len(word) <= maxSubtitleChars {
			line += " " + word
			continue
		}
		flushLine()
		line = word
	}
	flushLine()
	if len(block) > 0 {
		blocks = append(blocks, block)
	}
	return blocks
}

// srtTimestamp formats seconds as HH:MM:SS,mmm.
func srtTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	millis := int(seconds*1000 + 0.5)
	h := millis / 3600000
	millis -= h * 3600000
	m := millis / 60000
	millis -= m * 60000
	s := millis / 1000
	millis -= s * 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, millis)
}
