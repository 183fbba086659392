// Package classifier turns raw workflow engine responses into short speakable
// text and decides whether that text is a final answer or an acknowledgment.
package classifier

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode/utf8"
)

const (
	DefaultMaxChars       = 900
	DefaultMinAnswerChars = 16
	Ellipsis              = "…"
	emptyFallback         = "Done."
)

// DefaultPlaceholderStems are prefixes of non-final progress responses
var DefaultPlaceholderStems = []string{
	"processing",
	"looking it up",
	"looking that up",
	"still working",
	"working on it",
	"fetching",
	"checking",
	"loading",
	"one moment",
	"please wait",
	"in progress",
}

// Options configures a Classifier
type Options struct {
	MaxChars         int
	MinAnswerChars   int
	PlaceholderStems []string
	Extractors       []Extractor
}

// Classifier implements classify and isPlaceholder over one set of options
type Classifier struct {
	maxChars   int
	minChars   int
	stems      []string
	extractors []Extractor
}

// New creates a Classifier, filling unset options with defaults
func New(opts Options) *Classifier {
	c := &Classifier{
		maxChars:   opts.MaxChars,
		minChars:   opts.MinAnswerChars,
		extractors: opts.Extractors,
	}
	if c.maxChars <= 0 {
		c.maxChars = DefaultMaxChars
	}
	if c.minChars <= 0 {
		c.minChars = DefaultMinAnswerChars
	}
	if len(c.extractors) == 0 {
		c.extractors = DefaultExtractors()
	}

	stems := opts.PlaceholderStems
	if len(stems) == 0 {
		stems = DefaultPlaceholderStems
	}
	for _, s := range stems {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			c.stems = append(c.stems, s)
		}
	}
	return c
}

// Classify returns the speakable text of a response body, truncated
func (c *Classifier) Classify(contentType string, body []byte) string {
	return Truncate(c.extract(contentType, body), c.maxChars)
}

func (c *Classifier) extract(contentType string, body []byte) string {
	ct := strings.ToLower(contentType)
	if strings.Contains(ct, "text/") || strings.Contains(ct, "plain") {
		return strings.TrimSpace(string(body))
	}

	var doc interface{}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		if raw := strings.TrimSpace(string(body)); raw != "" {
			return raw
		}
		return emptyFallback
	}

	for _, ex := range c.extractors {
		if s, ok := ex.Extract(doc); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// IsPlaceholder reports whether text looks like an acknowledgment rather
// than a final answer.
func (c *Classifier) IsPlaceholder(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" || utf8.RuneCountInString(text) < c.minChars {
		return true
	}
	lower := strings.ToLower(text)
	for _, stem := range c.stems {
		if strings.HasPrefix(lower, stem) {
			return true
		}
	}
	return false
}

// Truncate trims text and caps it at max characters, the last of which is an
// ellipsis when anything was cut.
func Truncate(text string, max int) string {
	text = strings.TrimSpace(text)
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}
	runes := []rune(text)
	return strings.TrimRightFunc(string(runes[:max-1]), isSpace) + Ellipsis
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
