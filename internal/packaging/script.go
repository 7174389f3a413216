package packaging

import (
	"fmt"
	"strings"

	"github.com/storymill/storymill/internal/story"
)

// assemblyScript renders a shell script that assembles each chapter into
// a slideshow video with ffmpeg, driven by the packaged metadata.
func assemblyScript(chapters []*story.Chapter) string {
	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	b.WriteString("# Assembles each chapter into a video using ffmpeg.\n")
	b.WriteString("# Run from the extracted archive root.\n")
	b.WriteString("set -e\n\n")

	for _, ch := range chapters {
		dir := fmt.Sprintf("chapter_%03d", ch.Number)
		format := "mp3"
		if ch.Audio != nil && ch.Audio.Format != "" {
			format = ch.Audio.Format
		}

		fmt.Fprintf(&b, "echo 'Assembling %s...'\n", dir)
		if len(ch.Images) > 0 {
			// Image duration comes from metadata.json; jq keeps the script
			// honest against the packaged contract.
			fmt.Fprintf(&b, "DUR=$(jq -r .imageDuration %s/metadata.json)\n", dir)
			fmt.Fprintf(&b, "ffmpeg -framerate \"1/$DUR\" -pattern_type glob -i '%s/images/*.jpg' \\\n", dir)
			fmt.Fprintf(&b, "  -i %s/audio.%s -shortest -pix_fmt yuv420p -y %s/video.mp4\n", dir, format, dir)
		} else {
			fmt.Fprintf(&b, "ffmpeg -f lavfi -i color=c=black:s=1920x1080 \\\n")
			fmt.Fprintf(&b, "  -i %s/audio.%s -shortest -pix_fmt yuv420p -y %s/video.mp4\n", dir, format, dir)
		}
		b.WriteByte('\n')
	}

	b.WriteString("echo 'Done.'\n")
	return b.String()
}
