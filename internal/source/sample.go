package source

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Bravine-Kulei/social-agent/internal/engine"
)

// sampleCaptions cycle per account so demo runs produce varied content.
var sampleCaptions = []string{
	"Behind the scenes of our latest shoot 🎬 #bts #creative",
	"Five tips that changed how I edit video #tutorial #editing",
	"This one took a week to get right 😅 #process #video",
	"Throwback to where it all started #journey #growth",
	"New gear day! First impressions inside #tech #review",
}

// Sample is a deterministic ContentSource for demos and tests: no network,
// stable shortcodes, so repeated runs exercise the idempotency path.
type Sample struct {
	// ItemsPerAccount caps generation; account.MaxItems still applies.
	ItemsPerAccount int
}

// NewSample returns a source producing n items per account (default 3).
func NewSample(n int) *Sample {
	if n <= 0 {
		n = 3
	}
	return &Sample{ItemsPerAccount: n}
}

// Fetch generates deterministic items for the account.
func (s *Sample) Fetch(_ context.Context, account engine.TargetAccount) ([]engine.MediaItem, error) {
	if account.Handle == "" {
		return nil, engine.Errorf(engine.KindNotFound, "empty account handle")
	}

	n := s.ItemsPerAccount
	if account.MaxItems > 0 && account.MaxItems < n {
		n = account.MaxItems
	}

	items := make([]engine.MediaItem, 0, n)
	for i := 0; i < n; i++ {
		caption := sampleCaptions[i%len(sampleCaptions)]
		items = append(items, engine.MediaItem{
			SourceID:     fmt.Sprintf("%s%03d", strings.ToUpper(account.Handle), i+1),
			Account:      account.Handle,
			Caption:      caption,
			Hashtags:     hashtagRe.FindAllString(caption, -1),
			MediaURL:     fmt.Sprintf("https://example.com/%s_video_%d.mp4", account.Handle, i+1),
			ThumbnailURL: fmt.Sprintf("https://example.com/%s_thumb_%d.jpg", account.Handle, i+1),
			ExtractedAt:  time.Now().UTC(),
		})
	}
	return items, nil
}
