package platforms

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"

	"github.com/Bravine-Kulei/social-agent/internal/engine"
)

const linkedinAPIBase = "https://api.linkedin.com/v2"

// LinkedIn publishes content as UGC posts.
type LinkedIn struct {
	client    *resty.Client
	authorURN string // e.g. urn:li:person:xxxx
}

// NewLinkedIn builds a publisher for the given member access token and
// author URN.
func NewLinkedIn(accessToken, authorURN string) *LinkedIn {
	return &LinkedIn{
		client: resty.New().
			SetBaseURL(linkedinAPIBase).
			SetAuthToken(accessToken).
			SetHeader("X-Restli-Protocol-Version", "2.0.0").
			SetTimeout(30 * time.Second),
		authorURN: authorURN,
	}
}

type ugcPostRequest struct {
	Author          string                     `json:"author"`
	LifecycleState  string                     `json:"lifecycleState"`
	SpecificContent map[string]ugcShareContent `json:"specificContent"`
	Visibility      map[string]string          `json:"visibility"`
}

type ugcShareContent struct {
	ShareCommentary    ugcText `json:"shareCommentary"`
	ShareMediaCategory string  `json:"shareMediaCategory"`
}

type ugcText struct {
	Text string `json:"text"`
}

type ugcPostResponse struct {
	ID string `json:"id"`
}

// Publish creates the UGC post and returns its URN.
func (l *LinkedIn) Publish(ctx context.Context, content *engine.PlatformContent) (string, error) {
	if c, n := ConstraintsFor("linkedin"), utf8.RuneCountInString(content.Text); c.MaxLength > 0 && n > c.MaxLength {
		return "", engine.Errorf(engine.KindValidation,
			"post is %d characters, limit %d", n, c.MaxLength)
	}
	if content.Text == "" {
		return "", engine.Errorf(engine.KindValidation, "post text is empty")
	}
	if l.authorURN == "" {
		return "", engine.Errorf(engine.KindAuth, "linkedin author urn not configured")
	}

	body := ugcPostRequest{
		Author:         l.authorURN,
		LifecycleState: "PUBLISHED",
		SpecificContent: map[string]ugcShareContent{
			"com.linkedin.ugc.ShareContent": {
				ShareCommentary:    ugcText{Text: content.Text},
				ShareMediaCategory: "NONE",
			},
		},
		Visibility: map[string]string{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}

	var out ugcPostResponse
	resp, err := l.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post("/ugcPosts")
	if err != nil {
		return "", fmt.Errorf("post to linkedin: %w", err)
	}
	if resp.IsError() {
		return "", &engine.StatusError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	if out.ID == "" {
		return "", engine.Errorf(engine.KindUnknown, "linkedin returned no post id")
	}
	return out.ID, nil
}

// VerifyCredentials checks the token against the profile endpoint.
func (l *LinkedIn) VerifyCredentials(ctx context.Context) error {
	resp, err := l.client.R().SetContext(ctx).Get("/me")
	if err != nil {
		return fmt.Errorf("verify linkedin credentials: %w", err)
	}
	if resp.IsError() {
		return &engine.StatusError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	return nil
}
