package story

import (
	"reflect"
	"testing"
)

func sfxLine(text, name string) ScriptLine {
	return ScriptLine{
		Speaker:     SpeakerSFX,
		Text:        text,
		SoundEffect: &SoundEffect{Name: name, URL: "https://example.com/" + name},
	}
}

func TestComputeSfxTimings_CueClock(t *testing.T) {
	lines := []ScriptLine{
		{Speaker: "Narrator", Text: "Hello world"},
		sfxLine("door creak", "door creak"),
		{Speaker: "Narrator", Text: "The end"},
	}

	timings := ComputeSfxTimings(lines)
	if len(timings) != 1 {
		t.Fatalf("timings = %d, want 1", len(timings))
	}

	// "Hello world" is 11 chars: round(11/15, 2) = 0.73
	if timings[0].StartTime != 0.73 {
		t.Errorf("StartTime = %v, want 0.73", timings[0].StartTime)
	}
	if timings[0].Name != "door creak" {
		t.Errorf("Name = %q, want %q", timings[0].Name, "door creak")
	}
	if timings[0].Volume != DefaultSfxVolume {
		t.Errorf("Volume = %v, want %v", timings[0].Volume, DefaultSfxVolume)
	}
}

func TestComputeSfxTimings_Deterministic(t *testing.T) {
	lines := []ScriptLine{
		{Speaker: "Alice", Text: "A reasonably long opening line for the chapter."},
		sfxLine("thunder rolls in the distance", "thunder"),
		{Speaker: "Bob", Text: "A reply."},
		sfxLine("rain", "rain"),
		{Speaker: "Alice", Text: "Closing words."},
	}

	first := ComputeSfxTimings(lines)
	second := ComputeSfxTimings(lines)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("timings differ between runs:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestComputeSfxTimings_MonotonicAndCapped(t *testing.T) {
	var lines []ScriptLine
	for i := 0; i < 10; i++ {
		lines = append(lines, ScriptLine{Speaker: "Narrator", Text: "Some narration text that moves the clock forward."})
		lines = append(lines, sfxLine(
			"an extremely long sound effect description that would exceed the duration cap if uncapped because it just keeps going on and on and on and on and on and on and on and on and on and on and on and on and on and on and on and on and on and on and on and on and on and on and on and on and on",
			"drone"))
	}

	timings := ComputeSfxTimings(lines)
	if len(timings) != 10 {
		t.Fatalf("timings = %d, want 10", len(timings))
	}

	prev := -1.0
	for i, tm := range timings {
		if tm.StartTime < prev {
			t.Errorf("timing %d: StartTime %v < previous %v", i, tm.StartTime, prev)
		}
		prev = tm.StartTime
		if tm.Duration > MaxSfxDuration {
			t.Errorf("timing %d: Duration %v exceeds cap %v", i, tm.Duration, MaxSfxDuration)
		}
		if tm.Duration < MinSfxDuration {
			t.Errorf("timing %d: Duration %v below floor %v", i, tm.Duration, MinSfxDuration)
		}
	}
}

func TestComputeSfxTimings_NoSfxLines(t *testing.T) {
	lines := []ScriptLine{
		{Speaker: "Narrator", Text: "Just narration."},
		{Speaker: "Guest", Text: "Nothing to cue here."},
	}

	timings := ComputeSfxTimings(lines)
	if len(timings) != 0 {
		t.Errorf("timings = %d, want 0", len(timings))
	}
}

func TestComputeSfxTimings_UnresolvedSfxSkipped(t *testing.T) {
	lines := []ScriptLine{
		{Speaker: "Narrator", Text: "Hello world"},
		{Speaker: SpeakerSFX, Text: "door creak"}, // no resolved effect
	}

	if got := ComputeSfxTimings(lines); len(got) != 0 {
		t.Errorf("timings = %d, want 0 for unresolved SFX", len(got))
	}
}

func TestComputeSfxTimings_ExplicitVolume(t *testing.T) {
	line := sfxLine("soft chime", "chime")
	line.SoundEffectVolume = 0.4

	timings := ComputeSfxTimings([]ScriptLine{line})
	if len(timings) != 1 {
		t.Fatalf("timings = %d, want 1", len(timings))
	}
	if timings[0].Volume != 0.4 {
		t.Errorf("Volume = %v, want 0.4", timings[0].Volume)
	}
}

func TestSpokenDuration_IgnoresSfxLines(t *testing.T) {
	lines := []ScriptLine{
		{Speaker: "Narrator", Text: "123456789012345"}, // 15 chars = 1s
		sfxLine("door creak", "door"),
		{Speaker: "Narrator", Text: "123456789012345678901234567890"}, // 30 chars = 2s
	}

	if got := SpokenDuration(lines); got != 3.0 {
		t.Errorf("SpokenDuration = %v, want 3.0", got)
	}
}
