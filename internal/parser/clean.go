// Package parser turns free-form model output into structured artifacts.
// Nothing here returns an error: malformed input degrades to empty or
// partial results.
package parser

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	fenceRe       = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)```")
	dayPrefixRe   = regexp.MustCompile(`(?i)^\s*(день|day)\s*\d+\s*[:.\-–—)]*\s*`)
	headingRe     = regexp.MustCompile(`^\s*#{1,6}\s+`)
	placeholderRe = regexp.MustCompile(`\[[^\]]*\]`)
	digitsRe      = regexp.MustCompile(`\d+`)
)

// Paired Markdown emphasis. A single asterisk only counts at a word start.
var emphasisRules = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`\*\*(.+?)\*\*`), "$1"},
	{regexp.MustCompile(`__(.+?)__`), "$1"},
	{regexp.MustCompile(`~~(.+?)~~`), "$1"},
	{regexp.MustCompile("`([^`]+)`"), "$1"},
	{regexp.MustCompile(`(^|\s)\*([^*\s][^*]*?)\*`), "$1$2"},
}

// stripFences returns the body of the first Markdown code block, or the
// input unchanged when there is none.
func stripFences(s string) string {
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	s = strings.TrimPrefix(strings.TrimSpace(s), "```json")
	s = strings.TrimPrefix(s, "```")
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

func trimQuotes(s string) string {
	return strings.Trim(strings.TrimSpace(s), "\"'«»“”`")
}

// extractSpan returns the text from the first open to the last close rune.
func extractSpan(s string, open, close byte) (string, bool) {
	start := strings.IndexByte(s, open)
	end := strings.LastIndexByte(s, close)
	if start == -1 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// decodeFirst decodes the first JSON value starting at any occurrence of
// open, so brackets in surrounding prose do not hide the payload.
func decodeFirst(s string, open byte, dst any) bool {
	for i := 0; i < len(s); i++ {
		if s[i] != open {
			continue
		}
		if err := json.NewDecoder(strings.NewReader(s[i:])).Decode(dst); err == nil {
			return true
		}
	}
	return false
}

// stripEmphasis unwraps paired Markdown markers and drops a heading prefix
// and stray markers at the edges. Markers inside words are kept.
func stripEmphasis(s string) string {
	s = headingRe.ReplaceAllString(s, "")
	for _, rule := range emphasisRules {
		s = rule.re.ReplaceAllString(s, rule.repl)
	}
	return strings.Trim(s, " *_~`")
}

// cleanTopic drops day markers and Markdown emphasis and capitalizes the
// first letter.
func cleanTopic(s string) string {
	s = stripEmphasis(s)
	s = trimQuotes(s)
	s = dayPrefixRe.ReplaceAllString(s, "")
	s = strings.TrimLeft(s, " :.-–—")
	s = trimQuotes(s)
	return capitalize(strings.TrimSpace(s))
}

func cleanStyle(s string) string {
	s = stripEmphasis(s)
	return strings.TrimRight(trimQuotes(s), ".;")
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func hasPlaceholder(s string) bool {
	return placeholderRe.MatchString(s)
}
