package packaging

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// musicFadeSeconds is the fade-out applied to the trimmed music tail.
const musicFadeSeconds = 1.0

// CheckFFmpegAvailable checks if ffmpeg and ffprobe are available.
func CheckFFmpegAvailable() error {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		return fmt.Errorf("ffprobe not found in PATH: %w", err)
	}
	return nil
}

// ProbeAudioDuration uses ffprobe to measure an audio file in seconds.
func ProbeAudioDuration(ctx context.Context, audioPath string) (float64, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		audioPath,
	)

	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	var durationSec float64
	if _, err := fmt.Sscanf(strings.TrimSpace(string(output)), "%f", &durationSec); err != nil {
		return 0, fmt.Errorf("failed to parse duration: %w", err)
	}
	return durationSec, nil
}

// TrimMusicWithFade cuts a music file to the target duration with a one
// second fade-out at the tail.
func TrimMusicWithFade(ctx context.Context, inputPath, outputPath string, duration float64) error {
	if duration <= musicFadeSeconds {
		return fmt.Errorf("trim duration %.2fs too short for fade", duration)
	}
	fadeStart := duration - musicFadeSeconds

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-i", inputPath,
		"-t", fmt.Sprintf("%.3f", duration),
		"-af", fmt.Sprintf("afade=t=out:st=%.3f:d=%.3f", fadeStart, musicFadeSeconds),
		"-y",
		outputPath,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg failed: %w\nOutput: %s", err, string(output))
	}
	return nil
}
