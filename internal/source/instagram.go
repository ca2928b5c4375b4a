// Package source implements ContentSource adapters: a live Instagram
// profile reader and a deterministic sample source for demos and tests.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/Bravine-Kulei/social-agent/internal/engine"
)

const profileEndpoint = "https://www.instagram.com/api/v1/users/web_profile_info/?username=%s"

var (
	hashtagRe = regexp.MustCompile(`#[\p{L}\p{N}_]+`)
	mentionRe = regexp.MustCompile(`@[\p{L}\p{N}._]+`)
)

// Instagram fetches an account's recent video posts from the public web
// profile endpoint.
type Instagram struct {
	client   *http.Client
	endpoint string // overridable in tests
	now      func() time.Time
}

// NewInstagram builds the source with the given request timeout.
func NewInstagram(timeout time.Duration) *Instagram {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Instagram{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		endpoint: profileEndpoint,
		now:      time.Now,
	}
}

// profileResponse mirrors the slice of the web_profile_info payload we read.
type profileResponse struct {
	Data struct {
		User struct {
			EdgeOwnerToTimelineMedia struct {
				Edges []struct {
					Node mediaNode `json:"node"`
				} `json:"edges"`
			} `json:"edge_owner_to_timeline_media"`
		} `json:"user"`
	} `json:"data"`
}

type mediaNode struct {
	Shortcode          string `json:"shortcode"`
	IsVideo            bool   `json:"is_video"`
	VideoURL           string `json:"video_url"`
	DisplayURL         string `json:"display_url"`
	TakenAtTimestamp   int64  `json:"taken_at_timestamp"`
	EdgeMediaToCaption struct {
		Edges []struct {
			Node struct {
				Text string `json:"text"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"edge_media_to_caption"`
}

// Fetch returns up to account.MaxItems video items for the account, newest
// first. Retries transient HTTP failures with exponential backoff.
func (s *Instagram) Fetch(ctx context.Context, account engine.TargetAccount) ([]engine.MediaItem, error) {
	body, err := s.fetchProfile(ctx, account.Handle)
	if err != nil {
		return nil, err
	}

	var profile profileResponse
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, engine.WrapError(engine.KindUnknown,
			fmt.Sprintf("parse profile for %s", account.Handle), err)
	}

	edges := profile.Data.User.EdgeOwnerToTimelineMedia.Edges
	items := make([]engine.MediaItem, 0, len(edges))
	for _, e := range edges {
		if !e.Node.IsVideo {
			continue
		}
		items = append(items, s.itemFromNode(account.Handle, e.Node))
		if account.MaxItems > 0 && len(items) >= account.MaxItems {
			break
		}
	}
	return items, nil
}

func (s *Instagram) fetchProfile(ctx context.Context, handle string) ([]byte, error) {
	fetchURL := fmt.Sprintf(s.endpoint, handle)

	operation := func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-IG-App-ID", "936619743392459")

		resp, err := s.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			return io.ReadAll(resp.Body)
		case resp.StatusCode == http.StatusNotFound:
			return nil, backoff.Permanent(
				engine.Errorf(engine.KindNotFound, "account %s not found", handle))
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, &engine.StatusError{StatusCode: resp.StatusCode}
		case resp.StatusCode >= 500:
			return nil, &engine.StatusError{StatusCode: resp.StatusCode}
		default:
			return nil, backoff.Permanent(
				&engine.StatusError{StatusCode: resp.StatusCode})
		}
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 1 * time.Second
	bo.MaxInterval = 10 * time.Second

	body, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo), backoff.WithMaxTries(3), backoff.WithMaxElapsedTime(45*time.Second))
	if err != nil {
		if engine.Classify(err) == engine.KindNotFound {
			return nil, err
		}
		return nil, engine.WrapError(engine.KindTransient,
			fmt.Sprintf("fetch profile for %s", handle), err)
	}
	return body, nil
}

func (s *Instagram) itemFromNode(handle string, n mediaNode) engine.MediaItem {
	var caption string
	if len(n.EdgeMediaToCaption.Edges) > 0 {
		caption = n.EdgeMediaToCaption.Edges[0].Node.Text
	}
	return engine.MediaItem{
		SourceID:     n.Shortcode,
		Account:      handle,
		Caption:      caption,
		Hashtags:     hashtagRe.FindAllString(caption, -1),
		Mentions:     mentionRe.FindAllString(caption, -1),
		MediaURL:     n.VideoURL,
		ThumbnailURL: n.DisplayURL,
		ExtractedAt:  s.now().UTC(),
	}
}
