package generator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	// MaxTopicLength is the maximum allowed length for an article topic.
	MaxTopicLength = 500
)

var (
	// ErrEmptyInput is returned when the topic is empty or whitespace only.
	ErrEmptyInput = errors.New("topic cannot be empty")

	// ErrInputTooLong is returned when the topic exceeds the max length.
	ErrInputTooLong = fmt.Errorf("topic too long: maximum %d characters allowed", MaxTopicLength)

	// ErrBlockedPattern is returned when the topic contains dangerous patterns.
	ErrBlockedPattern = errors.New("topic contains blocked pattern")
)

// InputValidator validates user-supplied topics before they reach the LLM.
type InputValidator struct {
	blockedPatterns []*regexp.Regexp
}

// NewInputValidator creates a validator with the predefined blocked patterns.
func NewInputValidator() *InputValidator {
	return &InputValidator{
		blockedPatterns: compileBlockedPatterns(),
	}
}

// Validate checks whether the topic is safe to forward to the LLM.
func (v *InputValidator) Validate(topic string) error {
	trimmed := strings.TrimSpace(topic)

	if trimmed == "" {
		return ErrEmptyInput
	}

	if len(trimmed) > MaxTopicLength {
		return ErrInputTooLong
	}

	lower := strings.ToLower(trimmed)
	for _, pattern := range v.blockedPatterns {
		if pattern.MatchString(lower) {
			return ErrBlockedPattern
		}
	}

	return nil
}

// compileBlockedPatterns returns the patterns rejected outright. They cover
// script/markup injection and the common prompt-injection phrasings.
func compileBlockedPatterns() []*regexp.Regexp {
	patterns := []string{
		// Markup/script injection
		`<script[^>]*>`,
		`</script>`,
		`javascript:`,
		`<iframe`,
		`<img[^>]+onerror`,

		// Prompt injection
		`\bignore\s+(all\s+)?(previous|above|prior)\s+instructions`,
		`\bsystem\s*:\s*you\s+are\s+(now\s+)?`,
		`\breplace\s+your\s+instructions`,
		`\bforget\s+(everything|all|your\s+rules)`,
		`\bact\s+as\s+(if\s+)?you\s+(are|were)\s+`,
	}

	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, regexp.MustCompile(p))
	}

	return compiled
}
