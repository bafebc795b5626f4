package parser

import (
	"regexp"
	"strings"
)

var (
	keywordSplitRe  = regexp.MustCompile(`[,;\n]+`)
	keywordBulletRe = regexp.MustCompile(`^(?:[-•*]|\d+[.)])\s*`)
)

// FallbackKeywords are used when the model returned nothing usable.
var FallbackKeywords = []string{"business", "workspace"}

// ParseKeywords splits a keyword list. When nothing remains the fallback
// pair is returned together with topic and style.
func ParseKeywords(raw, topic, style string) []string {
	var out []string
	for _, part := range keywordSplitRe.Split(raw, -1) {
		part = keywordBulletRe.ReplaceAllString(strings.TrimSpace(part), "")
		part = strings.TrimRight(trimQuotes(part), ".")
		if part != "" {
			out = append(out, part)
		}
	}
	if len(out) > 0 {
		return out
	}
	out = append(out, FallbackKeywords...)
	for _, s := range []string{topic, style} {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
