package transform

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/Bravine-Kulei/social-agent/internal/engine"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o-mini"

// ErrAPIKeyNotSet means the OpenAI transformer cannot be constructed.
var ErrAPIKeyNotSet = errors.New("openai api key not set")

// platform prompt framing, matched to each audience.
var platformPrompts = map[string]string{
	"twitter": `Transform this video caption into an engaging Twitter post.
Requirements:
- Maximum %d characters including hashtags
- Include up to %d relevant hashtags
- Casual, shareable tone; keep the core message
Caption: %s`,
	"linkedin": `Transform this video caption into a professional LinkedIn post.
Requirements:
- Maximum %d characters including hashtags
- Include up to %d relevant industry hashtags
- Professional tone, add value for a professional audience
Caption: %s`,
}

// OpenAI generates platform text with a chat completion, then re-validates
// the platform constraints on the model output.
type OpenAI struct {
	client      openai.Client
	model       string
	temperature float64
}

// NewOpenAI builds the transformer. Fails fast on a missing key so main can
// fall back to the rule-based transformer explicitly.
func NewOpenAI(apiKey, model string, temperature float64) (*OpenAI, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}
	if model == "" {
		model = DefaultModel
	}
	return &OpenAI{
		client:      openai.NewClient(option.WithAPIKey(apiKey)),
		model:       model,
		temperature: temperature,
	}, nil
}

func (t *OpenAI) Transform(ctx context.Context, item engine.MediaItem, platform string, c engine.Constraints) (*engine.PlatformContent, error) {
	tmpl, ok := platformPrompts[platform]
	if !ok {
		tmpl = platformPrompts["twitter"]
	}
	prompt := fmt.Sprintf(tmpl, c.MaxLength, c.HashtagLimit, strings.TrimSpace(item.Caption))

	completion, err := t.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(t.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(t.temperature),
	})
	if err != nil {
		return nil, fmt.Errorf("openai completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, engine.Errorf(engine.KindValidation, "openai returned no choices for item %s", item.SourceID)
	}

	text := strings.TrimSpace(completion.Choices[0].Message.Content)
	if text == "" {
		return nil, engine.Errorf(engine.KindValidation, "openai returned empty content for item %s", item.SourceID)
	}
	if c.MaxLength > 0 && utf8.RuneCountInString(text) > c.MaxLength {
		return nil, engine.Errorf(engine.KindValidation,
			"generated content for %s exceeds %d characters", platform, c.MaxLength)
	}

	tags := hashtagRe.FindAllString(text, -1)
	if c.HashtagLimit > 0 && len(tags) > c.HashtagLimit {
		tags = tags[:c.HashtagLimit]
	}

	return &engine.PlatformContent{
		Platform: platform,
		SourceID: item.SourceID,
		Text:     text,
		Hashtags: tags,
		Mentions: item.Mentions,
		MediaURL: item.MediaURL,
	}, nil
}
