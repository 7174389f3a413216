package packaging

import (
	"strings"
	"testing"

	"github.com/storymill/storymill/internal/story"
)

func TestWrapBlocks(t *testing.T) {
	blocks := wrapBlocks("The storm rolled in at dusk and the keeper climbed the spiral stairs to light the lamp one final time")
	if len(blocks) == 0 {
		t.Fatal("no blocks produced")
	}
	for i, block := range blocks {
		if len(block) > maxSubtitleLines {
			t.Errorf("block %d has %d lines", i, len(block))
		}
		for _, line := range block {
			if len(line) > maxSubtitleChars {
				t.Errorf("line %q is %d chars", line, len(line))
			}
		}
	}

	// Greedy packing: the first line should be as full as the limit allows.
	first := blocks[0][0]
	if len(first) < 30 {
		t.Errorf("first line %q underpacked (%d chars)", first, len(first))
	}
}

func TestWrapBlocks_OversizedWord(t *testing.T) {
	long := strings.Repeat("x", 60)
	blocks := wrapBlocks("short " + long + " tail")
	found := false
	for _, block := range blocks {
		for _, line := range block {
			if line == long {
				found = true
			}
		}
	}
	if !found {
		t.Error("oversized word was split or dropped")
	}
}

func TestBuildCues(t *testing.T) {
	lines := []story.ScriptLine{
		{Speaker: "Narrator", Text: "Hello there."},
		{Speaker: story.SpeakerSFX, Text: "thunder"},
		{Speaker: "Narrator", Text: "The night was long."},
	}

	cues := BuildCues(lines, 0)
	if len(cues) != 2 {
		t.Fatalf("got %d cues, want 2 (SFX excluded)", len(cues))
	}
	if cues[0].Start != 0 {
		t.Errorf("first cue start = %v", cues[0].Start)
	}
	// Cue durations follow the reading rate.
	wantEnd := float64(len("Hello there.")) / story.CharsPerSecond
	if cues[0].End != wantEnd {
		t.Errorf("first cue end = %v, want %v", cues[0].End, wantEnd)
	}
	if cues[1].Start != cues[0].End {
		t.Error("cues not contiguous")
	}
	for i, cue := range cues {
		if cue.Index != i+1 {
			t.Errorf("cue %d index = %d", i, cue.Index)
		}
	}
}

func TestBuildCues_ClampedToAudio(t *testing.T) {
	lines := []story.ScriptLine{
		{Speaker: "Narrator", Text: strings.Repeat("word ", 50)},
	}
	cues := BuildCues(lines, 3.0)
	for _, cue := range cues {
		if cue.End > 3.0 || cue.Start > 3.0 {
			t.Errorf("cue %d exceeds audio duration: %v-%v", cue.Index, cue.Start, cue.End)
		}
	}
}

func TestFormatSRT(t *testing.T) {
	srt := FormatSRT([]SubtitleCue{
		{Index: 1, Start: 0, End: 1.5, Lines: []string{"Hello there."}},
		{Index: 2, Start: 61.25, End: 63, Lines: []string{"Two lines", "of text"}},
	})

	for _, want := range []string{
		"1\n00:00:00,000 --> 00:00:01,500\nHello there.\n",
		"2\n00:01:01,250 --> 00:01:03,000\nTwo lines\nof text\n",
	} {
		if !strings.Contains(srt, want) {
			t.Errorf("SRT missing block:\n%s\ngot:\n%s", want, srt)
		}
	}
}

func TestSrtTimestamp(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "00:00:00,000"},
		{1.5, "00:00:01,500"},
		{3661.042, "01:01:01,042"},
		{-5, "00:00:00,000"},
	}
	for _, tt := range tests {
		if got := srtTimestamp(tt.seconds); got != tt.want {
			t.Errorf("srtTimestamp(%v) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}
