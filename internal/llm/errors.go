package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
)

// Kind classifies a failed provider call.
type Kind string

const (
	KindRateLimited Kind = "rate_limited"
	KindAuth        Kind = "auth_error"
	KindServer      Kind = "server_error"
	KindTimeout     Kind = "timeout"
	KindMalformed   Kind = "malformed_response"
	KindFatal       Kind = "fatal"
)

// Retryable reports whether the next credential should be tried.
func (k Kind) Retryable() bool {
	switch k {
	case KindRateLimited, KindAuth, KindServer, KindTimeout:
		return true
	default:
		return false
	}
}

var (
	ErrEmptyResponse = errors.New("provider returned no choices")
	ErrNoCredentials = errors.New("no usable credentials")
)

// CallError is one failed attempt against one credential.
type CallError struct {
	Provider string
	Key      int
	Kind     Kind
	Status   int
	Err      error
}

func (e *CallError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s key #%d: %s (status=%d): %v", e.Provider, e.Key, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s key #%d: %s: %v", e.Provider, e.Key, e.Kind, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// ExhaustedError aggregates every attempt made against one provider.
type ExhaustedError struct {
	Provider string
	Attempts []*CallError
	// Aborted is set when a non-retryable failure stopped the rotation early.
	Aborted bool
}

func (e *ExhaustedError) Error() string {
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("%s: %v", e.Provider, ErrNoCredentials)
	}
	msgs := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		msgs = append(msgs, a.Error())
	}
	state := "exhausted"
	if e.Aborted {
		state = "aborted"
	}
	return fmt.Sprintf("%s %s: %s", e.Provider, state, strings.Join(msgs, "; "))
}

func (e *ExhaustedError) Unwrap() error {
	if len(e.Attempts) == 0 {
		return ErrNoCredentials
	}
	return e.Attempts[len(e.Attempts)-1]
}

// CascadeError is returned when every provider failed.
type CascadeError struct {
	Mode     Mode
	Failures []*ExhaustedError
}

func (e *CascadeError) Error() string {
	return fmt.Sprintf("all providers failed for %s: %s", e.Mode, strings.Join(e.Messages(), " | "))
}

// Messages flattens every per-credential error string.
func (e *CascadeError) Messages() []string {
	var out []string
	for _, f := range e.Failures {
		if len(f.Attempts) == 0 {
			out = append(out, f.Error())
			continue
		}
		for _, a := range f.Attempts {
			out = append(out, a.Error())
		}
	}
	return out
}

// Classify maps a transport or API error onto a Kind.
func Classify(provider string, key int, err error) *CallError {
	ce := &CallError{Provider: provider, Key: key, Err: err, Kind: KindFatal}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		ce.Status = apiErr.StatusCode
		ce.Kind = kindForStatus(apiErr.StatusCode)
		if ce.Kind == KindFatal && mentionsRateLimit(apiErr.Error()) {
			ce.Kind = KindRateLimited
		}
		return ce
	}

	if errors.Is(err, ErrEmptyResponse) {
		ce.Kind = KindMalformed
		return ce
	}
	if errors.Is(err, context.DeadlineExceeded) {
		ce.Kind = KindTimeout
		return ce
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		ce.Kind = KindTimeout
		return ce
	}
	if mentionsRateLimit(err.Error()) {
		ce.Kind = KindRateLimited
	}
	return ce
}

func kindForStatus(status int) Kind {
	switch status {
	case http.StatusTooManyRequests:
		return KindRateLimited
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindAuth
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return KindServer
	default:
		return KindFatal
	}
}

func mentionsRateLimit(msg string) bool {
	msg = strings.ToLower(msg)
	for _, marker := range []string{"rate limit", "rate_limit", "too many requests", "quota"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
