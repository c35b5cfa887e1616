package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig controls how an agent call is retried.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Timeout        time.Duration // overall budget for all attempts
}

// DefaultRetryConfig suits Gemini free-tier quotas.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     5,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     time.Minute,
		Timeout:        5 * time.Minute,
	}
}

type retryingAgent struct {
	agent  Agent
	config RetryConfig
}

// WithRetry wraps a with exponential backoff on quota and server errors.
func WithRetry(a Agent, config RetryConfig) Agent {
	return &retryingAgent{agent: a, config: config}
}

func (r *retryingAgent) Name() string {
	return r.agent.Name()
}

func (r *retryingAgent) Process(ctx context.Context, content string) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = r.config.InitialBackoff
	expo.MaxInterval = r.config.MaxBackoff
	expo.MaxElapsedTime = 0

	hinted := &hintedBackOff{BackOff: expo, max: r.config.MaxBackoff}
	policy := backoff.WithContext(backoff.WithMaxRetries(hinted, uint64(r.config.MaxRetries)), attemptCtx)

	var permanent bool
	op := func() (string, error) {
		out, err := r.agent.Process(attemptCtx, content)
		if err == nil {
			return out, nil
		}
		if !isRetryable(err) {
			permanent = true
			return "", backoff.Permanent(fmt.Errorf("non-retryable error: %w", err))
		}
		hinted.hint = extractRetryDelay(err)
		return "", err
	}
	notify := func(err error, wait time.Duration) {
		slog.Warn("agent call failed, retrying", "agent", r.agent.Name(), "wait", wait, "error", err)
	}

	out, err := backoff.RetryNotifyWithData[string](op, policy, notify)
	switch {
	case err == nil:
		return out, nil
	case permanent:
		return "", fmt.Errorf("agent %s failed: %w", r.agent.Name(), err)
	case ctx.Err() != nil:
		return "", fmt.Errorf("agent %s cancelled: %w", r.agent.Name(), ctx.Err())
	case attemptCtx.Err() != nil:
		return "", fmt.Errorf("agent %s timed out after %v: %w", r.agent.Name(), r.config.Timeout, err)
	default:
		return "", fmt.Errorf("agent %s: max retries (%d) exceeded: %w", r.agent.Name(), r.config.MaxRetries, err)
	}
}

// hintedBackOff waits at least as long as the provider asked for, capped
// at max.
type hintedBackOff struct {
	backoff.BackOff
	hint time.Duration
	max  time.Duration
}

func (h *hintedBackOff) NextBackOff() time.Duration {
	next := h.BackOff.NextBackOff()
	if next == backoff.Stop {
		return next
	}
	if h.hint > next {
		next = min(h.hint, h.max)
	}
	h.hint = 0
	return next
}

var retryableMarkers = []string{
	"resource_exhausted",
	"quota",
	"rate limit",
	"error 429",
	"error 500",
	"error 502",
	"error 503",
	"error 504",
	"unavailable",
	"deadline_exceeded",
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range retryableMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

var retryDelayPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)retry in ([0-9]+(?:\.[0-9]+)?)s`),
	regexp.MustCompile(`(?i)retryDelay"?:\s*"?([0-9]+(?:\.[0-9]+)?)s`),
}

// extractRetryDelay finds the wait the API suggested in its error text.
func extractRetryDelay(err error) time.Duration {
	if err == nil {
		return 0
	}
	for _, re := range retryDelayPatterns {
		m := re.FindStringSubmatch(err.Error())
		if m == nil {
			continue
		}
		seconds, perr := strconv.ParseFloat(m[1], 64)
		if perr != nil {
			continue
		}
		return time.Duration(seconds * float64(time.Second))
	}
	return 0
}
