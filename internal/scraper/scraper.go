// Package scraper reads recent posts of a public Telegram channel from its
// web preview page (t.me/s/<channel>).
package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"
)

var (
	ErrInvalidChannel  = errors.New("invalid channel username")
	ErrChannelNotFound = errors.New("channel not found or not public")
)

// Post is one message from the channel feed.
type Post struct {
	ID   string
	Text string
	Date time.Time
}

type Fetcher struct {
	baseURL    string
	limit      int
	httpClient *http.Client
	log        *slog.Logger
}

func NewFetcher(baseURL string, timeout time.Duration, limit int, log *slog.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if limit <= 0 {
		limit = 20
	}
	return &Fetcher{
		baseURL:    strings.TrimRight(baseURL, "/"),
		limit:      limit,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

var usernameRe = regexp.MustCompile(`^[A-Za-z0-9_]{3,64}$`)

// NormalizeChannel accepts "@name", "name", "t.me/name" and full links.
func NormalizeChannel(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	for _, prefix := range []string{"https://", "http://", "www."} {
		s = strings.TrimPrefix(s, prefix)
	}
	for _, prefix := range []string{"t.me/s/", "t.me/", "telegram.me/"} {
		s = strings.TrimPrefix(s, prefix)
	}
	s = strings.TrimPrefix(s, "@")
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if !usernameRe.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidChannel, raw)
	}
	return s, nil
}

// FetchPosts returns up to limit posts, newest first. Posts without text
// (media only) are skipped.
func (f *Fetcher) FetchPosts(ctx context.Context, channel string) ([]Post, error) {
	name, err := NormalizeChannel(channel)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/s/%s", f.baseURL, name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; ContentBot/1.0)")
	req.Header.Set("Accept-Language", "ru,en;q=0.8")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch channel page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrChannelNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("channel page status=%d body=%s", resp.StatusCode, body)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse channel page: %w", err)
	}

	posts := extractPosts(doc)
	if len(posts) == 0 && !hasChannelHeader(doc) {
		return nil, ErrChannelNotFound
	}

	// The preview page lists oldest first.
	out := make([]Post, 0, min(len(posts), f.limit))
	for i := len(posts) - 1; i >= 0 && len(out) < f.limit; i-- {
		out = append(out, posts[i])
	}
	if f.log != nil {
		f.log.Info("channel posts fetched", "channel", name, "posts", len(out))
	}
	return out, nil
}

func extractPosts(doc *html.Node) []Post {
	var posts []Post
	walk(doc, func(n *html.Node) bool {
		if !hasClass(n, "tgme_widget_message") || attr(n, "data-post") == "" {
			return true
		}
		p := Post{ID: attr(n, "data-post")}
		walk(n, func(c *html.Node) bool {
			switch {
			case hasClass(c, "tgme_widget_message_text") && p.Text == "":
				p.Text = strings.TrimSpace(textOf(c))
				return false
			case c.Type == html.ElementNode && c.Data == "time" && p.Date.IsZero():
				if t, err := time.Parse(time.RFC3339, attr(c, "datetime")); err == nil {
					p.Date = t
				}
			}
			return true
		})
		if p.Text != "" {
			posts = append(posts, p)
		}
		return false
	})
	return posts
}

func hasChannelHeader(doc *html.Node) bool {
	found := false
	walk(doc, func(n *html.Node) bool {
		if hasClass(n, "tgme_channel_info") {
			found = true
		}
		return !found
	})
	return found
}

// walk visits nodes depth-first; returning false skips the children.
func walk(n *html.Node, visit func(*html.Node) bool) {
	if !visit(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var rec func(*html.Node)
	rec = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			b.WriteString(n.Data)
		case n.Type == html.ElementNode && n.Data == "br":
			b.WriteString("\n")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			rec(c)
		}
	}
	rec(n)
	return b.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	if n.Type != html.ElementNode {
		return false
	}
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}
