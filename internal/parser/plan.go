package parser

import (
	"log/slog"
	"math"
	"math/rand/v2"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// PlanItem is one day of a content plan.
type PlanItem struct {
	Day         int    `json:"day"`
	TopicIdea   string `json:"topic_idea"`
	FormatStyle string `json:"format_style"`
}

type PlanOptions struct {
	// AllowedStyles is the caller's style set. Empty keeps the model's style.
	AllowedStyles []string
	// Days truncates the result when positive.
	Days int
	// Pick returns an index in [0, n). Defaults to math/rand/v2.
	Pick func(n int) int
	Log  *slog.Logger
}

var lineDelimRe = regexp.MustCompile(`:{2,3}`)

// ParsePlan extracts day-indexed plan items, trying JSON first and the
// "day:: topic:: style" line format second. Items come back sorted by day.
func ParsePlan(raw string, opts PlanOptions) []PlanItem {
	if opts.Pick == nil {
		opts.Pick = rand.IntN
	}
	body := trimQuotes(stripFences(raw))

	items := parsePlanJSON(body, opts)
	if len(items) == 0 {
		items = parsePlanLines(raw, opts)
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].Day < items[j].Day })
	if opts.Days > 0 && len(items) > opts.Days {
		items = items[:opts.Days]
	}
	return items
}

func parsePlanJSON(body string, opts PlanOptions) []PlanItem {
	var records []map[string]any
	if !decodeFirst(body, '[', &records) {
		records = nil
		var obj map[string]any
		if decodeFirst(body, '{', &obj) {
			records = unwrapObject(obj)
		}
	}

	var items []PlanItem
	for _, rec := range records {
		day, ok := dayValue(rec["day"])
		if !ok {
			continue
		}
		topic := firstString(rec, "topic_idea", "topicIdea", "topic", "idea")
		style := firstString(rec, "format_style", "formatStyle", "style", "format")
		if item, ok := buildItem(day, topic, style, opts); ok {
			items = append(items, item)
		}
	}
	return items
}

// unwrapObject accepts {"plan": [...]} style wrappers and bare single items.
func unwrapObject(obj map[string]any) []map[string]any {
	for _, v := range obj {
		list, ok := v.([]any)
		if !ok {
			continue
		}
		var out []map[string]any
		for _, el := range list {
			if m, ok := el.(map[string]any); ok {
				out = append(out, m)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	if _, ok := obj["day"]; ok {
		return []map[string]any{obj}
	}
	return nil
}

func parsePlanLines(raw string, opts PlanOptions) []PlanItem {
	var items []PlanItem
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "```") {
			continue
		}
		parts := lineDelimRe.Split(line, -1)
		if len(parts) != 3 {
			if opts.Log != nil {
				opts.Log.Debug("skip plan line", "line", line)
			}
			continue
		}
		m := digitsRe.FindString(parts[0])
		day, err := strconv.Atoi(m)
		if err != nil {
			if opts.Log != nil {
				opts.Log.Debug("skip plan line without day", "line", line)
			}
			continue
		}
		if item, ok := buildItem(day, parts[1], parts[2], opts); ok {
			items = append(items, item)
		}
	}
	return items
}

func buildItem(day int, topic, style string, opts PlanOptions) (PlanItem, bool) {
	if day <= 0 {
		return PlanItem{}, false
	}
	topic = cleanTopic(topic)
	if topic == "" || hasPlaceholder(topic) {
		return PlanItem{}, false
	}
	return PlanItem{Day: day, TopicIdea: topic, FormatStyle: matchStyle(cleanStyle(style), opts)}, true
}

// matchStyle returns the canonical allowed style, or a random allowed one
// when the model invented its own.
func matchStyle(style string, opts PlanOptions) string {
	if len(opts.AllowedStyles) == 0 {
		return style
	}
	for _, allowed := range opts.AllowedStyles {
		if strings.EqualFold(strings.TrimSpace(allowed), style) {
			return allowed
		}
	}
	return opts.AllowedStyles[opts.Pick(len(opts.AllowedStyles))]
}

func dayValue(v any) (int, bool) {
	switch d := v.(type) {
	case float64:
		if d != math.Trunc(d) {
			return 0, false
		}
		return int(d), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(d))
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func firstString(rec map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := rec[k].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

// FillerPlan synthesizes one item per day from the supplied themes and
// styles, round-robin.
func FillerPlan(days int, themes, styles []string) []PlanItem {
	if len(themes) == 0 {
		themes = []string{"Новости канала"}
	}
	if len(styles) == 0 {
		styles = []string{"Пост"}
	}
	items := make([]PlanItem, 0, days)
	for d := 1; d <= days; d++ {
		items = append(items, PlanItem{
			Day:         d,
			TopicIdea:   capitalize(themes[(d-1)%len(themes)]),
			FormatStyle: styles[(d-1)%len(styles)],
		})
	}
	return items
}
