// Package normalizer cleans raw interactions into normalized records.
// Every function here is stateless and safe for concurrent use.
package normalizer

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/riverline/support-ingest/internal/domain"
)

// ParseError reports a recoverable per-field parse failure. The affected
// field stays unset on the normalized record and the failure surfaces as a
// quality issue downstream; no substitute value is invented.
type ParseError struct {
	Field string
	Value string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse %s from %q", e.Field, e.Value)
}

// timeFormats lists the accepted source timestamp layouts, most common first.
var timeFormats = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"Mon Jan 02 15:04:05 -0700 2006", // Twitter API v1.1
	"2006-01-02",
}

var (
	whitespaceRE = regexp.MustCompile(`\s+`)
	controlRE    = regexp.MustCompile(`[\x00-\x1f\x7f-\x9f]`)
	mentionRE    = regexp.MustCompile(`@(\w+)`)
	hashtagRE    = regexp.MustCompile(`#(\w+)`)
	urlRE        = regexp.MustCompile(`https?://[A-Za-z0-9$\-_@.&+!*(),%/:~#=?]+`)
)

// CleanText collapses whitespace, strips control characters, and drops
// invalid UTF-8 byte sequences.
func CleanText(text string) string {
	text = strings.ToValidUTF8(text, "")
	text = whitespaceRE.ReplaceAllString(text, " ")
	text = controlRE.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// ExtractMentions returns the @mention handles in order of appearance.
func ExtractMentions(text string) []string {
	return extractGroups(mentionRE, text)
}

// ExtractHashtags returns the #hashtag tokens in order of appearance.
func ExtractHashtags(text string) []string {
	return extractGroups(hashtagRE, text)
}

// ExtractURLs returns http(s) URLs in order of appearance.
func ExtractURLs(text string) []string {
	if text == "" {
		return nil
	}
	return urlRE.FindAllString(text, -1)
}

func extractGroups(re *regexp.Regexp, text string) []string {
	if text == "" {
		return nil
	}
	matches := re.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

// englishIndicators is a short function-word list for the coarse language
// heuristic. Two or more hits classify the text as English.
var englishIndicators = []string{"the", "and", "or", "but", "in", "on", "at", "to", "for", "with"}

const (
	spanishDiacritics = "áéíóúñ"
	frenchDiacritics  = "àçèéê"
)

// DetectLanguage applies a coarse heuristic: English function words first,
// then distinctive diacritics, else "unknown". Intentionally not a model.
func DetectLanguage(text string) string {
	if text == "" {
		return "unknown"
	}

	lower := strings.ToLower(text)
	hits := 0
	for _, w := range englishIndicators {
		if strings.Contains(lower, w) {
			hits++
		}
	}
	if hits >= 2 {
		return "en"
	}
	if strings.ContainsAny(text, spanishDiacritics) {
		return "es"
	}
	if strings.ContainsAny(text, frenchDiacritics) {
		return "fr"
	}
	return "unknown"
}

// ParseTimestamp tries each known layout in turn. It returns a ParseError
// when no layout matches; callers must not substitute the current time.
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, &ParseError{Field: "created_at", Value: raw}
	}
	for _, layout := range timeFormats {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, &ParseError{Field: "created_at", Value: raw}
}

// Normalize produces the cleaned 1:1 derivative of a raw interaction.
//
// The returned record is always usable. A non-nil error is always a
// *ParseError for the timestamp; the record then carries the original raw
// string with CreatedAtParsed left nil.
func Normalize(raw domain.RawInteraction) (domain.NormalizedRecord, error) {
	cleaned := CleanText(raw.Text)

	rec := domain.NormalizedRecord{
		ExternalID: strings.TrimSpace(raw.ExternalID),
		AuthorID:   strings.TrimSpace(raw.AuthorID),
		Text:       cleaned,
		CreatedAt:  raw.CreatedAt,
		InReplyTo:  strings.TrimSpace(raw.InReplyTo),
		Language:   DetectLanguage(cleaned),
		Mentions:   ExtractMentions(cleaned),
		Hashtags:   ExtractHashtags(cleaned),
		URLs:       ExtractURLs(cleaned),
	}

	ts, err := ParseTimestamp(raw.CreatedAt)
	if err != nil {
		return rec, err
	}
	utc := ts.UTC()
	rec.CreatedAtParsed = &utc
	rec.CreatedAt = utc.Format(time.RFC3339)
	return rec, nil
}
