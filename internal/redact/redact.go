// Package redact strips secret material out of strings before they reach
// logs, cycle reports, or reply text. Every human-facing error path in the
// runtime routes through a Redactor.
package redact

import (
	"regexp"
	"strings"
)

const placeholder = "[redacted]"

// Built-in patterns cover the token shapes the provider adapters handle:
// bearer headers, telegram-style bot tokens, and secrets introduced by
// key=value assignments. The bot token pattern has no leading word
// boundary because the telegram API path embeds the token as
// /bot<id>:<secret>, where the "t" right before the digits suppresses \b.
var (
	bearerPattern     = regexp.MustCompile(`(?i)bearer\s+[a-z0-9\-._~+/]+=*`)
	botTokenPattern   = regexp.MustCompile(`\d{6,10}:[A-Za-z0-9_-]{30,}\b`)
	assignmentPattern = regexp.MustCompile(`(?i)(token|secret|api[_-]?key|signature|authorization)("?\s*[=:]\s*"?)[^\s",}]+`)
)

type Redactor struct {
	extra []string
}

// New builds a redactor from additional literal substrings (known tokens
// loaded from config) on top of the built-in patterns.
func New(knownSecrets []string) *Redactor {
	extra := make([]string, 0, len(knownSecrets))
	for _, s := range knownSecrets {
		s = strings.TrimSpace(s)
		if len(s) < 6 {
			// Too short to redact without mangling ordinary text.
			continue
		}
		extra = append(extra, s)
	}
	return &Redactor{extra: extra}
}

func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}
	if r != nil {
		for _, secret := range r.extra {
			s = strings.ReplaceAll(s, secret, placeholder)
		}
	}
	s = bearerPattern.ReplaceAllString(s, placeholder)
	s = botTokenPattern.ReplaceAllString(s, placeholder)
	s = assignmentPattern.ReplaceAllString(s, "$1$2"+placeholder)
	return s
}
