package llm

import (
	"context"
	"log/slog"
	"strings"
)

// KeyRotator tries one provider's credentials in order until one succeeds.
type KeyRotator struct {
	provider string
	keys     []string
	caller   Caller
	log      *slog.Logger
}

func NewKeyRotator(provider string, keys []string, caller Caller, log *slog.Logger) *KeyRotator {
	return &KeyRotator{provider: provider, keys: keys, caller: caller, log: log}
}

// Run returns the first successful completion. On failure the error is
// always an *ExhaustedError listing one CallError per credential tried.
func (r *KeyRotator) Run(ctx context.Context, req Request) (string, error) {
	failure := &ExhaustedError{Provider: r.provider}
	for i, key := range r.keys {
		if strings.TrimSpace(key) == "" {
			continue
		}
		text, err := r.caller.Complete(ctx, key, req)
		if err == nil {
			return text, nil
		}
		callErr := Classify(r.provider, i+1, err)
		failure.Attempts = append(failure.Attempts, callErr)
		if !callErr.Kind.Retryable() {
			failure.Aborted = true
			if r.log != nil {
				r.log.Error("provider call aborted", "provider", r.provider, "key", i+1, "kind", callErr.Kind, "err", err)
			}
			return "", failure
		}
		if r.log != nil {
			r.log.Warn("provider call failed, rotating key", "provider", r.provider, "key", i+1, "kind", callErr.Kind, "status", callErr.Status)
		}
	}
	return "", failure
}
