package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Provider is one entry of the cascade.
type Provider struct {
	Name   string
	Model  string
	Style  PromptStyle
	Keys   []string
	Client Caller
}

// Recorder observes provider attempts; implemented by the metrics package.
type Recorder interface {
	ObserveProvider(provider string, mode Mode, outcome string, elapsed time.Duration)
}

// Outcome is a successful completion and who produced it.
type Outcome struct {
	Text     string
	Provider string
	Fallback bool
}

// Cascade runs providers in order, moving on when one fails.
type Cascade struct {
	providers []Provider
	rec       Recorder
	log       *slog.Logger
}

func NewCascade(providers []Provider, rec Recorder, log *slog.Logger) *Cascade {
	return &Cascade{providers: providers, rec: rec, log: log}
}

func (c *Cascade) Run(ctx context.Context, task Task) (Outcome, error) {
	mode := task.Mode()
	failure := &CascadeError{Mode: mode}

	for i, p := range c.providers {
		req := task.Build(p.Style)
		req.Model = p.Model

		started := time.Now()
		text, err := NewKeyRotator(p.Name, p.Keys, p.Client, c.log).Run(ctx, req)
		if err == nil {
			c.observe(p.Name, mode, "success", started)
			if i > 0 && c.log != nil {
				c.log.Info("fallback provider answered", "provider", p.Name, "mode", mode)
			}
			return Outcome{Text: text, Provider: p.Name, Fallback: i > 0}, nil
		}
		c.observe(p.Name, mode, "failure", started)

		var exhausted *ExhaustedError
		if !errors.As(err, &exhausted) {
			exhausted = &ExhaustedError{Provider: p.Name, Attempts: []*CallError{Classify(p.Name, 0, err)}, Aborted: true}
		}
		failure.Failures = append(failure.Failures, exhausted)
		if c.log != nil {
			c.log.Warn("provider failed", "provider", p.Name, "mode", mode, "attempts", len(exhausted.Attempts), "aborted", exhausted.Aborted)
		}
		if ctx.Err() != nil {
			break
		}
	}
	return Outcome{}, failure
}

func (c *Cascade) observe(provider string, mode Mode, outcome string, started time.Time) {
	if c.rec != nil {
		c.rec.ObserveProvider(provider, mode, outcome, time.Since(started))
	}
}
