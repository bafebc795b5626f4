// Package images searches stock photo providers for post illustrations.
package images

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/digkill/TGContentBot/internal/models"
)

const (
	SourceUnsplash = "unsplash"
	SourcePexels   = "pexels"

	defaultUnsplashURL = "https://api.unsplash.com"
	defaultPexelsURL   = "https://api.pexels.com"
)

// Cache stores search results per query.
type Cache interface {
	Get(ctx context.Context, query string) ([]models.Image, bool, error)
	Set(ctx context.Context, query string, images []models.Image) error
}

type Options struct {
	UnsplashKey string
	PexelsKey   string
	UnsplashURL string
	PexelsURL   string
	Timeout     time.Duration
}

type Client struct {
	opts       Options
	httpClient *http.Client
	cache      Cache
	log        *slog.Logger
}

// NewClient builds a searcher. cache may be nil.
func NewClient(opts Options, cache Cache, log *slog.Logger) *Client {
	if opts.UnsplashURL == "" {
		opts.UnsplashURL = defaultUnsplashURL
	}
	if opts.PexelsURL == "" {
		opts.PexelsURL = defaultPexelsURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	return &Client{
		opts:       opts,
		httpClient: &http.Client{Timeout: opts.Timeout},
		cache:      cache,
		log:        log,
	}
}

// Enabled reports whether at least one provider is configured.
func (c *Client) Enabled() bool {
	return c.opts.UnsplashKey != "" || c.opts.PexelsKey != ""
}

// Collect runs the queries one after another and stops once want images
// are gathered. Duplicate URLs are dropped.
func (c *Client) Collect(ctx context.Context, queries []string, want int) []models.Image {
	seen := make(map[string]struct{})
	var out []models.Image
	for _, q := range queries {
		if len(out) >= want {
			break
		}
		found, err := c.Search(ctx, q, want)
		if err != nil {
			if c.log != nil {
				c.log.Warn("image search failed", "query", q, "err", err)
			}
			continue
		}
		for _, img := range found {
			if _, dup := seen[img.URL]; dup || img.URL == "" {
				continue
			}
			seen[img.URL] = struct{}{}
			out = append(out, img)
			if len(out) >= want {
				break
			}
		}
	}
	return out
}

// Search tries Unsplash first and Pexels second.
func (c *Client) Search(ctx context.Context, query string, perPage int) ([]models.Image, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if c.cache != nil {
		if cached, ok, err := c.cache.Get(ctx, query); err == nil && ok {
			return cached, nil
		} else if err != nil && c.log != nil {
			c.log.Warn("image cache read failed", "query", query, "err", err)
		}
	}

	var (
		found   []models.Image
		lastErr error
	)
	if c.opts.UnsplashKey != "" {
		found, lastErr = c.searchUnsplash(ctx, query, perPage)
	}
	if len(found) == 0 && c.opts.PexelsKey != "" {
		found, lastErr = c.searchPexels(ctx, query, perPage)
	}
	if len(found) == 0 {
		return nil, lastErr
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, query, found); err != nil && c.log != nil {
			c.log.Warn("image cache write failed", "query", query, "err", err)
		}
	}
	return found, nil
}

func (c *Client) searchUnsplash(ctx context.Context, query string, perPage int) ([]models.Image, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("per_page", strconv.Itoa(perPage))
	params.Set("orientation", "landscape")

	var payload struct {
		Results []struct {
			ID             string `json:"id"`
			AltDescription string `json:"alt_description"`
			URLs           struct {
				Regular string `json:"regular"`
				Small   string `json:"small"`
			} `json:"urls"`
			User struct {
				Name  string `json:"name"`
				Links struct {
					HTML string `json:"html"`
				} `json:"links"`
			} `json:"user"`
		} `json:"results"`
	}
	endpoint := c.opts.UnsplashURL + "/search/photos?" + params.Encode()
	if err := c.getJSON(ctx, endpoint, "Client-ID "+c.opts.UnsplashKey, &payload); err != nil {
		return nil, fmt.Errorf("unsplash: %w", err)
	}

	out := make([]models.Image, 0, len(payload.Results))
	for _, r := range payload.Results {
		out = append(out, models.Image{
			ID:         r.ID,
			URL:        r.URLs.Regular,
			PreviewURL: r.URLs.Small,
			Alt:        r.AltDescription,
			Author:     r.User.Name,
			AuthorURL:  r.User.Links.HTML,
			Source:     SourceUnsplash,
		})
	}
	return out, nil
}

func (c *Client) searchPexels(ctx context.Context, query string, perPage int) ([]models.Image, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("per_page", strconv.Itoa(perPage))

	var payload struct {
		Photos []struct {
			ID              int64  `json:"id"`
			Alt             string `json:"alt"`
			Photographer    string `json:"photographer"`
			PhotographerURL string `json:"photographer_url"`
			Src             struct {
				Large  string `json:"large"`
				Medium string `json:"medium"`
			} `json:"src"`
		} `json:"photos"`
	}
	endpoint := c.opts.PexelsURL + "/v1/search?" + params.Encode()
	if err := c.getJSON(ctx, endpoint, c.opts.PexelsKey, &payload); err != nil {
		return nil, fmt.Errorf("pexels: %w", err)
	}

	out := make([]models.Image, 0, len(payload.Photos))
	for _, p := range payload.Photos {
		out = append(out, models.Image{
			ID:         strconv.FormatInt(p.ID, 10),
			URL:        p.Src.Large,
			PreviewURL: p.Src.Medium,
			Alt:        p.Alt,
			Author:     p.Photographer,
			AuthorURL:  p.PhotographerURL,
			Source:     SourcePexels,
		})
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint, auth string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", auth)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status=%d body=%s", resp.StatusCode, truncate(body))
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func truncate(b []byte) string {
	if len(b) > 256 {
		return string(b[:256]) + "..."
	}
	return string(b)
}
