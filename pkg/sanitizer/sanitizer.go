package sanitizer

import (
	"regexp"
	"strings"
)

type Strategy func(string) string

type Pipeline []Strategy

func (p Pipeline) Apply(s string) string {
	for _, fn := range p {
		s = fn(s)
	}
	return s
}

var (
	reRefIDUnsafe     = regexp.MustCompile(`[^A-Za-z0-9_.:-]+`)
	reMultiUnderscore = regexp.MustCompile(`_+`)
)

const (
	MaxDisplayNameLength = 100
	MaxMessageLength     = 280
)

// SanitizeDisplayName cleans a human name or ground name for display.
func SanitizeDisplayName(input string) string {
	p := Pipeline{
		StripControl,
		TrimAndNormalize,
		func(s string) string { return TruncateRunes(s, MaxDisplayNameLength) },
	}
	return p.Apply(input)
}

// SanitizeMessage cleans a short free-text note such as a join request
// message.
func SanitizeMessage(input string) string {
	p := Pipeline{
		StripControl,
		TrimAndNormalize,
		func(s string) string { return TruncateRunes(s, MaxMessageLength) },
	}
	return p.Apply(input)
}

// SanitizeRefID trims an external identifier and replaces characters that
// cannot appear in one with underscores.
func SanitizeRefID(input string) string {
	p := Pipeline{
		strings.TrimSpace,
		func(s string) string { return reRefIDUnsafe.ReplaceAllString(s, "_") },
		func(s string) string { return reMultiUnderscore.ReplaceAllString(s, "_") },
		func(s string) string { return strings.Trim(s, "_") },
	}
	return p.Apply(input)
}
