package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Request is a single chat completion against one model.
type Request struct {
	Model       string
	System      string
	User        string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Caller issues one completion with one credential.
type Caller interface {
	Complete(ctx context.Context, apiKey string, req Request) (string, error)
}

// ProviderClient talks to an OpenAI-compatible chat completions endpoint.
type ProviderClient struct {
	name   string
	client openai.Client
	log    *slog.Logger
}

type ClientOptions struct {
	Name       string
	BaseURL    string
	Referer    string
	Title      string
	HTTPClient *http.Client
}

func NewProviderClient(opts ClientOptions, log *slog.Logger) *ProviderClient {
	reqOpts := []option.RequestOption{
		option.WithBaseURL(strings.TrimRight(opts.BaseURL, "/") + "/"),
		// Key rotation owns retries.
		option.WithMaxRetries(0),
	}
	if opts.Referer != "" {
		reqOpts = append(reqOpts, option.WithHeader("HTTP-Referer", opts.Referer))
	}
	if opts.Title != "" {
		reqOpts = append(reqOpts, option.WithHeader("X-Title", opts.Title))
	}
	if opts.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(opts.HTTPClient))
	}
	return &ProviderClient{
		name:   opts.Name,
		client: openai.NewClient(reqOpts...),
		log:    log,
	}
}

func (c *ProviderClient) Complete(ctx context.Context, apiKey string, req Request) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(req.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.User),
		},
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	callOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if req.Timeout > 0 {
		callOpts = append(callOpts, option.WithRequestTimeout(req.Timeout))
	}

	started := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, params, callOpts...)
	if err != nil {
		if c.log != nil {
			c.log.Warn("completion request failed", "provider", c.name, "model", req.Model, "elapsed", time.Since(started), "err", truncateBody([]byte(err.Error())))
		}
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: %w", c.name, ErrEmptyResponse)
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("%s: empty message content: %w", c.name, ErrEmptyResponse)
	}
	if c.log != nil {
		c.log.Debug("completion received", "provider", c.name, "model", req.Model, "elapsed", time.Since(started), "chars", len(content))
	}
	return content, nil
}

func truncateBody(b []byte) string {
	const limit = 512
	if len(b) <= limit {
		return string(b)
	}
	return string(b[:limit]) + "..."
}
