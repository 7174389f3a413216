package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/storymill/storymill/internal/story"
)

const thumbnailTimeout = 2 * time.Minute

// generateThumbnail produces the project thumbnail as a background side
// effect of the first completed chapter. Failure only logs; the project
// proceeds without a thumbnail.
func (o *Orchestrator) generateThumbnail(ctx context.Context, p *story.Project) {
	if o.images == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, thumbnailTimeout)
	defer cancel()

	var prompts []string
	taken := false
	o.view(func() {
		taken = p.Thumbnail != nil
		prompts = append([]string(nil), p.ThumbnailConcepts...)
		if len(prompts) == 0 {
			title := p.Title
			if title == "" {
				title = p.Topic
			}
			prompts = []string{fmt.Sprintf("dramatic cover art for %q, bold composition, no text", title)}
		}
	})
	if taken {
		return
	}

	images, err := o.images.GenerateImages(ctx, prompts, 1)
	if err != nil || len(images) == 0 {
		o.logger.Warn("thumbnail generation failed", "project", p.ID, "error", err)
		return
	}

	thumb := images[0]
	_ = o.mutate(p, func() error {
		if p.Thumbnail == nil {
			p.Thumbnail = &thumb
		}
		return nil
	})
	o.logger.Info("thumbnail generated", "project", p.ID)
}
