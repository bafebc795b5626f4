package llm

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Mode names a generation kind, used for logging and metrics.
type Mode string

const (
	ModeAnalyze  Mode = "analyze"
	ModePlan     Mode = "plan"
	ModePost     Mode = "post"
	ModeKeywords Mode = "keywords"
)

// PromptStyle selects the response convention a provider is asked for.
type PromptStyle int

const (
	// StyleJSON asks for strict JSON payloads.
	StyleJSON PromptStyle = iota
	// StyleLines asks for plain delimited lines, for general-purpose models.
	StyleLines
)

const (
	analyzeMaxTokens  = 800
	keywordsMaxTokens = 60
	planTokensPerDay  = 150
	postDefaultTokens = 800
	postMinTokens     = 100
	postMaxTokens     = 1200

	maxPromptPosts  = 20
	maxPromptSample = 3
	maxPostChars    = 600
)

// Task is one typed generation request. Build reconstructs the provider
// request for the given prompt style from the same input.
type Task interface {
	Mode() Mode
	Build(style PromptStyle) Request
}

type AnalyzeTask struct {
	Channel string
	Posts   []string
}

func (AnalyzeTask) Mode() Mode { return ModeAnalyze }

func (t AnalyzeTask) Build(style PromptStyle) Request {
	var b strings.Builder
	fmt.Fprintf(&b, "Проанализируй последние посты Telegram-канала @%s.\n", t.Channel)
	b.WriteString("Определи 3-5 основных тем канала и 3-5 стилей подачи контента (например: Обзор, Новость, Инструкция, Личное мнение).\n")
	switch style {
	case StyleLines:
		b.WriteString("Ответь одним JSON-объектом без пояснений: {\"themes\": [\"...\"], \"styles\": [\"...\"]}.\n")
	default:
		b.WriteString("Верни ТОЛЬКО JSON вида {\"themes\": [\"тема\"], \"styles\": [\"стиль\"]}.\n")
	}
	b.WriteString("\nПосты:\n")
	for i, p := range limitPosts(t.Posts, maxPromptPosts) {
		fmt.Fprintf(&b, "%d. %s\n", i+1, clip(p, maxPostChars))
	}
	return Request{
		System:      "Ты аналитик контента Telegram-каналов. Отвечаешь кратко и только в запрошенном формате.",
		User:        b.String(),
		Temperature: 0.3,
		MaxTokens:   analyzeMaxTokens,
		Timeout:     60 * time.Second,
	}
}

type PlanTask struct {
	Channel string
	Days    int
	Themes  []string
	Styles  []string
}

func (PlanTask) Mode() Mode { return ModePlan }

func (t PlanTask) Build(style PromptStyle) Request {
	var b strings.Builder
	fmt.Fprintf(&b, "Составь контент-план для Telegram-канала @%s на %d дней.\n", t.Channel, t.Days)
	fmt.Fprintf(&b, "Темы канала: %s.\n", strings.Join(t.Themes, ", "))
	fmt.Fprintf(&b, "Допустимые стили постов: %s.\n", strings.Join(t.Styles, ", "))
	b.WriteString("На каждый день одна конкретная идея поста. Не используй шаблоны в квадратных скобках.\n")
	switch style {
	case StyleLines:
		b.WriteString("Формат: каждая строка \"День N:: Идея поста:: Стиль\", без нумерации и пояснений.\n")
	default:
		b.WriteString("Верни ТОЛЬКО JSON-массив: [{\"day\": 1, \"topic_idea\": \"...\", \"format_style\": \"...\"}].\n")
	}
	return Request{
		System:      "Ты опытный SMM-специалист и редактор Telegram-каналов.",
		User:        b.String(),
		Temperature: 0.7,
		MaxTokens:   planTokensPerDay * max(t.Days, 1),
		Timeout:     90 * time.Second,
	}
}

type PostTask struct {
	Channel   string
	Topic     string
	Style     string
	Samples   []string
	TimeOfDay string
}

func (PostTask) Mode() Mode { return ModePost }

func (t PostTask) Build(style PromptStyle) Request {
	var b strings.Builder
	fmt.Fprintf(&b, "Напиши пост для Telegram-канала @%s.\n", t.Channel)
	fmt.Fprintf(&b, "Тема: %s\nСтиль: %s\n", t.Topic, t.Style)
	if t.TimeOfDay != "" {
		fmt.Fprintf(&b, "Пост будет опубликован %s, учитывай это в тоне.\n", t.TimeOfDay)
	}
	samples := limitPosts(t.Samples, maxPromptSample)
	if len(samples) > 0 {
		b.WriteString("Ориентируйся на длину и манеру этих постов канала:\n")
		for i, s := range samples {
			fmt.Fprintf(&b, "--- пример %d ---\n%s\n", i+1, clip(s, maxPostChars))
		}
	}
	system := "Ты автор постов для Telegram. Пиши живо, без хэштегов-спама, только текст поста."
	if style == StyleLines {
		system = "Ты копирайтер. Верни только готовый текст поста без заголовков, комментариев и разметки кода."
	}
	return Request{
		System:      system,
		User:        b.String(),
		Temperature: 0.8,
		MaxTokens:   PostTokenBudget(t.Samples),
		Timeout:     120 * time.Second,
	}
}

// PostTokenBudget scales with the average sample length.
func PostTokenBudget(samples []string) int {
	if len(samples) == 0 {
		return postDefaultTokens
	}
	total := 0
	for _, s := range samples {
		total += utf8.RuneCountInString(s)
	}
	tokens := total / len(samples) / 3
	return min(max(tokens, postMinTokens), postMaxTokens)
}

type KeywordsTask struct {
	Topic string
	Style string
	Text  string
}

func (KeywordsTask) Mode() Mode { return ModeKeywords }

func (t KeywordsTask) Build(PromptStyle) Request {
	var b strings.Builder
	fmt.Fprintf(&b, "Тема поста: %s\n", t.Topic)
	if t.Text != "" {
		fmt.Fprintf(&b, "Текст: %s\n", clip(t.Text, maxPostChars))
	}
	b.WriteString("Дай 3 коротких ключевых слова на английском для поиска фотографий, через запятую, без пояснений.")
	return Request{
		System:      "You generate stock photo search keywords.",
		User:        b.String(),
		Temperature: 0.2,
		MaxTokens:   keywordsMaxTokens,
		Timeout:     15 * time.Second,
	}
}

func limitPosts(posts []string, n int) []string {
	out := make([]string, 0, min(len(posts), n))
	for _, p := range posts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
		if len(out) == n {
			break
		}
	}
	return out
}

func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "…"
}
