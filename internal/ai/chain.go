package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vibeshift/dashboard/internal/metrics"
)

// Attempt records one model try.
type Attempt struct {
	Model     string `json:"model"`
	LatencyMs int64  `json:"latencyMs"`
	Error     string `json:"error,omitempty"`
}

// Outcome describes a successful chain run.
type Outcome struct {
	Model    string
	Attempts []Attempt
}

// ModelsTried lists every attempted model in order, including the winner.
func (o Outcome) ModelsTried() []string { return modelNames(o.Attempts) }

// ExhaustedError is returned when every model in the chain failed.
type ExhaustedError struct {
	CallSite string
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %s", a.Model, a.Error))
	}
	return fmt.Sprintf("%s: all %d models failed (%s)", e.CallSite, len(e.Attempts), strings.Join(parts, "; "))
}

// ModelsTried lists the attempted models in order.
func (e *ExhaustedError) ModelsTried() []string { return modelNames(e.Attempts) }

func modelNames(attempts []Attempt) []string {
	out := make([]string, 0, len(attempts))
	for _, a := range attempts {
		out = append(out, a.Model)
	}
	return out
}

type chainState int

const (
	statePending chainState = iota
	stateTrying
	stateSucceeded
	stateExhausted
)

// Chain tries Models in order. Each attempt gets its own timeout; a completion that
// accept rejects counts as a failed attempt.
type Chain struct {
	CallSite  string
	Models    []string
	Timeout   time.Duration
	Completer Completer
	Log       zerolog.Logger
}

// NewChain builds a chain over primary followed by fallbacks, skipping blanks and duplicates.
func NewChain(callSite string, c Completer, primary string, fallbacks []string, timeout time.Duration, log zerolog.Logger) *Chain {
	seen := map[string]bool{}
	var models []string
	for _, m := range append([]string{primary}, fallbacks...) {
		m = strings.TrimSpace(m)
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		models = append(models, m)
	}
	return &Chain{
		CallSite:  callSite,
		Models:    models,
		Timeout:   timeout,
		Completer: c,
		Log:       log.With().Str("call_site", callSite).Logger(),
	}
}

// Run walks the chain until accept succeeds on a completion.
func (c *Chain) Run(ctx context.Context, messages []Message, accept func(content string) error) (Outcome, error) {
	state := statePending
	var attempts []Attempt
	next := 0

	for {
		switch state {
		case statePending:
			if len(c.Models) == 0 {
				state = stateExhausted
				continue
			}
			state = stateTrying

		case stateTrying:
			if next >= len(c.Models) || ctx.Err() != nil {
				state = stateExhausted
				continue
			}
			model := c.Models[next]
			next++
			a := c.attempt(ctx, model, messages, accept)
			attempts = append(attempts, a)
			if a.Error == "" {
				state = stateSucceeded
			}

		case stateSucceeded:
			last := attempts[len(attempts)-1]
			c.Log.Info().
				Str("model", last.Model).
				Strs("models_tried", modelNames(attempts)).
				Int64("latency_ms", last.LatencyMs).
				Msg("model call succeeded")
			return Outcome{Model: last.Model, Attempts: attempts}, nil

		case stateExhausted:
			err := &ExhaustedError{CallSite: c.CallSite, Attempts: attempts}
			c.Log.Warn().Err(err).Strs("models_tried", modelNames(attempts)).Msg("model chain exhausted")
			return Outcome{Attempts: attempts}, err
		}
	}
}

func (c *Chain) attempt(ctx context.Context, model string, messages []Message, accept func(string) error) Attempt {
	attemptCtx := ctx
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	start := time.Now()
	content, err := c.Completer.Complete(attemptCtx, model, messages)
	if err == nil {
		err = accept(content)
	}
	a := Attempt{Model: model, LatencyMs: time.Since(start).Milliseconds()}

	outcome := metrics.OutcomeOK
	if err != nil {
		a.Error = err.Error()
		outcome = metrics.OutcomeError
		c.Log.Warn().Err(err).Str("model", model).Int64("latency_ms", a.LatencyMs).Msg("model attempt failed")
	}
	metrics.AIAttempts.WithLabelValues(c.CallSite, model, outcome).Inc()
	return a
}
