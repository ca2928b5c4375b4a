package platforms

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"

	"github.com/Bravine-Kulei/social-agent/internal/engine"
)

const twitterAPIBase = "https://api.twitter.com/2"

// Twitter publishes content as tweets via the v2 API.
type Twitter struct {
	client *resty.Client
}

// NewTwitter builds a publisher authenticated with an OAuth2 bearer token.
func NewTwitter(bearerToken string) *Twitter {
	return &Twitter{
		client: resty.New().
			SetBaseURL(twitterAPIBase).
			SetAuthToken(bearerToken).
			SetTimeout(30 * time.Second),
	}
}

type tweetRequest struct {
	Text string `json:"text"`
}

type tweetResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

// Publish posts the tweet and returns its id.
func (t *Twitter) Publish(ctx context.Context, content *engine.PlatformContent) (string, error) {
	// Twitter's limit counts characters, not bytes.
	if c, n := ConstraintsFor("twitter"), utf8.RuneCountInString(content.Text); c.MaxLength > 0 && n > c.MaxLength {
		return "", engine.Errorf(engine.KindValidation,
			"tweet is %d characters, limit %d", n, c.MaxLength)
	}
	if content.Text == "" {
		return "", engine.Errorf(engine.KindValidation, "tweet text is empty")
	}

	var out tweetResponse
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(tweetRequest{Text: content.Text}).
		SetResult(&out).
		Post("/tweets")
	if err != nil {
		return "", fmt.Errorf("post tweet: %w", err)
	}
	if resp.IsError() {
		return "", &engine.StatusError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	if out.Data.ID == "" {
		return "", engine.Errorf(engine.KindUnknown, "twitter returned no tweet id")
	}
	return out.Data.ID, nil
}

// VerifyCredentials checks the token against the authenticated-user endpoint.
func (t *Twitter) VerifyCredentials(ctx context.Context) error {
	resp, err := t.client.R().SetContext(ctx).Get("/users/me")
	if err != nil {
		return fmt.Errorf("verify twitter credentials: %w", err)
	}
	if resp.IsError() {
		return &engine.StatusError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	return nil
}
