// Package guardrails screens inbound chat messages before any model call.
//
// Checks, in order:
//   - max_length: character limit on one message
//   - prompt_injection: heuristic detection of instruction-override attempts
//   - content_filter: configurable keyword/phrase blocklist
//
// The first failing rule wins. A blocked message is still persisted by the
// orchestrator; only generation is refused.
package guardrails

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/storechat/storechat/pkg/models"
)

// DefaultMaxChars bounds a single chat message.
const DefaultMaxChars = 4000

// Screen is the built-in contracts.InputScreen.
type Screen struct {
	maxChars     int
	blockedWords []string // lower-cased
}

// Option configures a Screen.
type Option func(*Screen)

// WithMaxChars overrides the message length limit.
func WithMaxChars(n int) Option {
	return func(s *Screen) { s.maxChars = n }
}

// WithBlockedWords installs a case-insensitive blocklist.
func WithBlockedWords(words []string) Option {
	return func(s *Screen) {
		s.blockedWords = s.blockedWords[:0]
		for _, w := range words {
			w = strings.ToLower(strings.TrimSpace(w))
			if w != "" {
				s.blockedWords = append(s.blockedWords, w)
			}
		}
	}
}

func New(opts ...Option) *Screen {
	s := &Screen{maxChars: DefaultMaxChars}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?|directions?)`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?)`),
	regexp.MustCompile(`(?i)forget\s+(all\s+)?(previous|prior|above|your)\s+(instructions?|prompts?|rules?|context)`),
	regexp.MustCompile(`(?i)new\s+instructions?:\s*`),
	regexp.MustCompile(`(?i)system\s*:\s*you\s+are`),
	regexp.MustCompile(`(?i)reveal\s+(your|the)\s+(system\s+)?(prompt|instructions?)`),
	regexp.MustCompile(`(?i)pretend\s+you\s+(are|have)\s+no\s+(restrictions?|rules?|guidelines?)`),
	regexp.MustCompile(`(?i)act\s+as\s+if\s+you\s+have\s+no\s+(restrictions?|rules?|filters?)`),
}

// Screen checks one inbound message. The error return is always nil here
// but belongs to the interface so remote implementations can fail.
func (s *Screen) Screen(_ context.Context, message string) (*models.ScreenVerdict, error) {
	if s.maxChars > 0 && utf8.RuneCountInString(message) > s.maxChars {
		return &models.ScreenVerdict{
			Blocked: true,
			Rule:    "max_length",
			Reason:  "message exceeds the maximum length",
		}, nil
	}

	for _, re := range injectionPatterns {
		if re.MatchString(message) {
			return &models.ScreenVerdict{
				Blocked: true,
				Rule:    "prompt_injection",
				Reason:  "message looks like an attempt to override instructions",
			}, nil
		}
	}

	lower := strings.ToLower(message)
	for _, w := range s.blockedWords {
		if strings.Contains(lower, w) {
			return &models.ScreenVerdict{
				Blocked: true,
				Rule:    "content_filter",
				Reason:  "message contains a blocked word or phrase",
			}, nil
		}
	}

	return &models.ScreenVerdict{}, nil
}
