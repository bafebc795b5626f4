package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedCaller struct {
	mu      sync.Mutex
	results map[string]error
	texts   map[string]string
	calls   []string
	reqs    []Request
}

func (s *scriptedCaller) Complete(_ context.Context, key string, req Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, key)
	s.reqs = append(s.reqs, req)
	if err := s.results[key]; err != nil {
		return "", err
	}
	return s.texts[key], nil
}

type fakeRecorder struct {
	outcomes []string
}

func (f *fakeRecorder) ObserveProvider(provider string, mode Mode, outcome string, _ time.Duration) {
	f.outcomes = append(f.outcomes, fmt.Sprintf("%s/%s/%s", provider, mode, outcome))
}

func TestCascade_FallsBackAfterExhaustingPrimary(t *testing.T) {
	t.Parallel()

	primary := &scriptedCaller{results: map[string]error{
		"a1": errors.New("429 Too Many Requests: rate limit exceeded"),
		"a2": context.DeadlineExceeded,
	}}
	secondary := &scriptedCaller{texts: map[string]string{"b1": "ok from b"}}
	rec := &fakeRecorder{}

	c := NewCascade([]Provider{
		{Name: "deepseek", Model: "m-a", Style: StyleJSON, Keys: []string{"a1", "a2"}, Client: primary},
		{Name: "openrouter", Model: "m-b", Style: StyleLines, Keys: []string{"b1"}, Client: secondary},
	}, rec, nil)

	out, err := c.Run(context.Background(), PlanTask{Channel: "chan", Days: 3, Themes: []string{"t"}, Styles: []string{"s"}})
	require.NoError(t, err)
	assert.Equal(t, "ok from b", out.Text)
	assert.Equal(t, "openrouter", out.Provider)
	assert.True(t, out.Fallback)

	assert.Equal(t, []string{"a1", "a2"}, primary.calls)
	assert.Equal(t, []string{"b1"}, secondary.calls)
	assert.Equal(t, "m-a", primary.reqs[0].Model)
	assert.Equal(t, "m-b", secondary.reqs[0].Model)
	assert.Contains(t, primary.reqs[0].User, "JSON")
	assert.Contains(t, secondary.reqs[0].User, "День N::")
	assert.Equal(t, 450, secondary.reqs[0].MaxTokens)
	assert.Equal(t, []string{"deepseek/plan/failure", "openrouter/plan/success"}, rec.outcomes)
}

func TestKeyRotator_FatalErrorShortCircuits(t *testing.T) {
	t.Parallel()

	caller := &scriptedCaller{
		results: map[string]error{"k1": errors.New("unexpected decoder state")},
		texts:   map[string]string{"k2": "never"},
	}
	_, err := NewKeyRotator("deepseek", []string{"k1", "k2"}, caller, nil).Run(context.Background(), Request{})
	require.Error(t, err)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.True(t, exhausted.Aborted)
	require.Len(t, exhausted.Attempts, 1)
	assert.Equal(t, KindFatal, exhausted.Attempts[0].Kind)
	assert.Equal(t, []string{"k1"}, caller.calls)
}

func TestKeyRotator_SkipsEmptyCredentials(t *testing.T) {
	t.Parallel()

	caller := &scriptedCaller{texts: map[string]string{"k2": "done"}}
	text, err := NewKeyRotator("deepseek", []string{"", "  ", "k2"}, caller, nil).Run(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "done", text)
	assert.Equal(t, []string{"k2"}, caller.calls)
}

func TestKeyRotator_NoCredentials(t *testing.T) {
	t.Parallel()

	caller := &scriptedCaller{}
	_, err := NewKeyRotator("openrouter", []string{""}, caller, nil).Run(context.Background(), Request{})
	require.ErrorIs(t, err, ErrNoCredentials)
	assert.Empty(t, caller.calls)
}

func TestCascade_AllProvidersFail(t *testing.T) {
	t.Parallel()

	a := &scriptedCaller{results: map[string]error{"a1": errors.New("quota exhausted")}}
	b := &scriptedCaller{results: map[string]error{"b1": fmt.Errorf("b: %w", ErrEmptyResponse)}}
	c := NewCascade([]Provider{
		{Name: "deepseek", Keys: []string{"a1"}, Client: a},
		{Name: "openrouter", Keys: []string{"b1"}, Client: b},
	}, nil, nil)

	_, err := c.Run(context.Background(), KeywordsTask{Topic: "coffee"})
	var cascadeErr *CascadeError
	require.ErrorAs(t, err, &cascadeErr)
	assert.Equal(t, ModeKeywords, cascadeErr.Mode)
	require.Len(t, cascadeErr.Failures, 2)
	assert.Equal(t, KindRateLimited, cascadeErr.Failures[0].Attempts[0].Kind)
	assert.Equal(t, KindMalformed, cascadeErr.Failures[1].Attempts[0].Kind)
	assert.Len(t, cascadeErr.Messages(), 2)
}

func TestProviderClient_ClassifiesHTTPStatuses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		want   Kind
	}{
		{"rate limited", http.StatusTooManyRequests, KindRateLimited},
		{"unauthorized", http.StatusUnauthorized, KindAuth},
		{"forbidden", http.StatusForbidden, KindAuth},
		{"bad gateway", http.StatusBadGateway, KindServer},
		{"service unavailable", http.StatusServiceUnavailable, KindServer},
		{"bad request", http.StatusBadRequest, KindFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"message":"nope","type":"error"}}`))
			}))
			defer srv.Close()

			client := NewProviderClient(ClientOptions{Name: "test", BaseURL: srv.URL}, nil)
			_, err := client.Complete(context.Background(), "key", Request{Model: "m", System: "s", User: "u"})
			require.Error(t, err)
			ce := Classify("test", 1, err)
			assert.Equal(t, tt.want, ce.Kind)
			assert.Equal(t, tt.status, ce.Status)
		})
	}
}

func TestProviderClient_SendsHeadersAndReturnsContent(t *testing.T) {
	t.Parallel()

	var gotAuth, gotReferer, gotTitle, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotReferer = r.Header.Get("HTTP-Referer")
		gotTitle = r.Header.Get("X-Title")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"m","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"  привет  "}}]}`))
	}))
	defer srv.Close()

	client := NewProviderClient(ClientOptions{Name: "test", BaseURL: srv.URL + "/v1", Referer: "https://t.me/bot", Title: "Bot"}, nil)
	text, err := client.Complete(context.Background(), "secret", Request{Model: "m", System: "s", User: "u", MaxTokens: 10})
	require.NoError(t, err)
	assert.Equal(t, "привет", text)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "https://t.me/bot", gotReferer)
	assert.Equal(t, "Bot", gotTitle)
	assert.Equal(t, "/v1/chat/completions", gotPath)
}

func TestProviderClient_EmptyChoicesIsMalformed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"m","choices":[]}`))
	}))
	defer srv.Close()

	client := NewProviderClient(ClientOptions{Name: "test", BaseURL: srv.URL}, nil)
	_, err := client.Complete(context.Background(), "k", Request{Model: "m"})
	require.ErrorIs(t, err, ErrEmptyResponse)
	assert.Equal(t, KindMalformed, Classify("test", 1, err).Kind)
}

func TestPostTokenBudget(t *testing.T) {
	t.Parallel()

	long := make([]rune, 6000)
	for i := range long {
		long[i] = 'a'
	}
	assert.Equal(t, 800, PostTokenBudget(nil))
	assert.Equal(t, 100, PostTokenBudget([]string{"short"}))
	assert.Equal(t, 200, PostTokenBudget([]string{string(long[:600])}))
	assert.Equal(t, 1200, PostTokenBudget([]string{string(long)}))
}
