// Package transform turns extracted media items into platform-specific
// publishable content. Two implementations: a deterministic rule-based
// transformer, and an OpenAI-backed one for AI-assisted text generation.
package transform

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/Bravine-Kulei/social-agent/internal/engine"
)

var hashtagRe = regexp.MustCompile(`#[\p{L}\p{N}_]+`)

// defaultHashtags are appended when the caption carries none of its own.
var defaultHashtags = map[string][]string{
	"twitter":  {"#viral", "#content", "#video", "#social", "#trending"},
	"linkedin": {"#professional", "#business", "#content", "#networking", "#industry"},
}

// callToAction closes the post in the platform's register.
var callToAction = map[string]string{
	"twitter":  "What do you think? 👇",
	"linkedin": "What's your take on this? Share your insights below.",
}

// RuleBased produces platform content from a caption using templates only:
// no network calls, deterministic output. It is the fallback when no LLM is
// configured and the reference transformer in tests.
type RuleBased struct {
	// ExtraHashtags are merged after the item's own tags.
	ExtraHashtags []string
}

// Transform builds publishable text for the platform: cleaned caption, a
// platform-appropriate call to action, then hashtags up to the platform
// cap, all truncated at a word boundary to fit MaxLength.
func (t *RuleBased) Transform(_ context.Context, item engine.MediaItem, platform string, c engine.Constraints) (*engine.PlatformContent, error) {
	caption := strings.TrimSpace(hashtagRe.ReplaceAllString(item.Caption, ""))
	caption = strings.Join(strings.Fields(caption), " ")
	if caption == "" && item.MediaURL == "" {
		return nil, engine.Errorf(engine.KindValidation, "item %s has no caption and no media", item.SourceID)
	}
	if caption == "" {
		caption = "Check out this video!"
	}

	tags := mergeHashtags(item, platform, t.ExtraHashtags, c.HashtagLimit)

	cta := callToAction[platform]
	if cta == "" {
		cta = "What do you think?"
	}

	// Assemble within budget: hashtags and the CTA give way before the
	// caption does. Platform limits count characters, so all accounting
	// is in runes, never bytes.
	tagLine := strings.Join(tags, " ")
	text := caption
	if c.MaxLength > 0 {
		budget := c.MaxLength - utf8.RuneCountInString(tagLine)
		if tagLine != "" {
			budget -= 2 // separator
		}
		if budget < utf8.RuneCountInString(caption)/2 || budget <= 0 {
			// Hashtags would eat the caption; drop them instead.
			tagLine = ""
			budget = c.MaxLength
		}
		if utf8.RuneCountInString(text)+utf8.RuneCountInString(cta)+2 <= budget {
			text = text + "\n\n" + cta
		}
		if utf8.RuneCountInString(text) > budget {
			text = truncateAtWord(text, budget)
		}
	} else {
		text = text + "\n\n" + cta
	}
	if tagLine != "" {
		text = text + "\n\n" + tagLine
	}

	if c.MaxLength > 0 && utf8.RuneCountInString(text) > c.MaxLength {
		return nil, engine.Errorf(engine.KindValidation,
			"content for %s exceeds %d characters", platform, c.MaxLength)
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

// mergeHashtags combines item tags, caller extras and platform defaults,
// deduplicated, capped at limit.
func mergeHashtags(item engine.MediaItem, platform string, extra []string, limit int) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(tag string) {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			return
		}
		if !strings.HasPrefix(tag, "#") {
			tag = "#" + tag
		}
		key := strings.ToLower(tag)
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, tag)
	}

	for _, tag := range item.Hashtags {
		add(tag)
	}
	for _, tag := range hashtagRe.FindAllString(item.Caption, -1) {
		add(tag)
	}
	for _, tag := range extra {
		add(tag)
	}
	if len(out) == 0 {
		for _, tag := range defaultHashtags[platform] {
			add(tag)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// truncateAtWord cuts text to at most max runes, ending at a word boundary
// with an ellipsis where possible. Cutting on rune indices keeps multi-byte
// characters intact.
func truncateAtWord(text string, max int) string {
	const ellipsis = "..."
	runes := []rune(text)
	if max <= 0 || len(runes) <= max {
		return text
	}
	cut := max - len(ellipsis)
	if cut <= 0 {
		return string(runes[:max])
	}
	truncated := string(runes[:cut])
	// Word-boundary search is byte-based, but spaces are single-byte so the
	// slice below never splits a rune.
	if i := strings.LastIndexAny(truncated, " \n\t"); i > len(truncated)/2 {
		truncated = truncated[:i]
	}
	return strings.TrimRight(truncated, " \n\t.,;:") + ellipsis
}

// Describe is a short human summary used in logs.
func (t *RuleBased) Describe() string {
	return fmt.Sprintf("rule-based (extra tags: %d)", len(t.ExtraHashtags))
}
