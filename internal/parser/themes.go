package parser

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Analysis is the themes/styles artifact of a channel analysis.
type Analysis struct {
	Themes []string `json:"themes"`
	Styles []string `json:"styles"`
}

// Empty reports whether nothing usable was extracted.
func (a Analysis) Empty() bool { return len(a.Themes) == 0 && len(a.Styles) == 0 }

var (
	themesListRe = regexp.MustCompile(`(?s)"themes"\s*:\s*\[(.*?)\]`)
	stylesListRe = regexp.MustCompile(`(?s)"styles?"\s*:\s*\[(.*?)\]`)
	quotedRe     = regexp.MustCompile(`"((?:[^"\\]|\\.)*)"`)
)

// ParseAnalysis extracts themes and styles. The legacy key "style" is
// accepted for styles.
func ParseAnalysis(raw string) Analysis {
	out := Analysis{Themes: []string{}, Styles: []string{}}
	span, ok := extractSpan(raw, '{', '}')
	if !ok {
		return out
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(span), &obj); err != nil {
		out.Themes = quotedItems(themesListRe, span)
		out.Styles = quotedItems(stylesListRe, span)
		return out
	}

	stylesRaw, found := obj["styles"]
	if !found {
		stylesRaw = obj["style"]
	}
	themes, okThemes := stringList(obj["themes"])
	styles, okStyles := stringList(stylesRaw)
	if !okThemes || !okStyles {
		return out
	}
	out.Themes = themes
	out.Styles = styles
	return out
}

// stringList decodes a JSON array of strings. A missing value is an empty
// list; any other shape is a mismatch.
func stringList(raw json.RawMessage) ([]string, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return []string{}, true
	}
	var items []any
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out, true
}

func quotedItems(listRe *regexp.Regexp, s string) []string {
	m := listRe.FindStringSubmatch(s)
	if m == nil {
		return []string{}
	}
	out := []string{}
	for _, q := range quotedRe.FindAllStringSubmatch(m[1], -1) {
		if item := strings.TrimSpace(q[1]); item != "" {
			out = append(out, item)
		}
	}
	return out
}
