package generator

import (
	"regexp"
	"strings"
	"unicode"
)

// Matches dangerous HTML tags (script, iframe, object, embed, link, style, img)
// Case-insensitive, matches both self-closing and paired tags with any content
var dangerousTagsRegex = regexp.MustCompile(`(?i)<\s*(script|iframe|object|embed|link|style|img)(\s+[^>]*)?>(.*?)</\s*(script|iframe|object|embed|link|style|img)\s*>|<\s*(script|iframe|object|embed|link|style|img)(\s+[^>]*)?>`)

// OutputSanitizer strips unsafe markup and control characters from LLM
// output before it is returned to clients. Articles are delivered as JSON
// but consumers routinely render them into HTML, so model output is treated
// as untrusted.
type OutputSanitizer struct{}

// NewOutputSanitizer creates a new output sanitizer
func NewOutputSanitizer() *OutputSanitizer {
	return &OutputSanitizer{}
}

// Sanitize strips dangerous HTML tags and control characters from the
// article text. It preserves normal prose, including special characters and
// legitimate whitespace (newlines, tabs, spaces), and trims the result.
func (s *OutputSanitizer) Sanitize(llmOutput string) string {
	sanitized := dangerousTagsRegex.ReplaceAllString(llmOutput, "")

	// Keep printable characters plus newline, tab, carriage return
	sanitized = strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) {
			return r
		}
		if r == '\n' || r == '\t' || r == '\r' {
			return r
		}
		return -1
	}, sanitized)

	return strings.TrimSpace(sanitized)
}
