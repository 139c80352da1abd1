// Package retry provides bounded exponential backoff for the calls the
// engine's collaborators make against external endpoints: GitHub label
// mutations and notification webhooks.
package retry

import (
	"context"
	"math/rand"
	"time"
)

// Policy controls how many attempts Do makes and how they are spaced.
// The zero value is normalized to the API policy.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// Jitter is the maximum fraction of a delay added at random so
	// concurrent retries against the same endpoint spread apart.
	Jitter float64
}

// API is the policy for GitHub API mutations: 3 attempts spaced 1s, 2s,
// enough to ride out a transient 5xx without tripping the rate limiter.
func API() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    10 * time.Second,
		Jitter:      0.25,
	}
}

// Webhook is the tighter policy for Slack/Discord webhooks: one retry
// after a short pause, so a slow endpoint cannot back up the notifier
// goroutines behind long sleeps.
func Webhook() Policy {
	return Policy{
		MaxAttempts: 2,
		BaseDelay:   250 * time.Millisecond,
		MaxDelay:    1 * time.Second,
		Jitter:      0.25,
	}
}

func (p Policy) normalized() Policy {
	def := API()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	return p
}

// Do runs fn until it succeeds, the attempts are exhausted, or the
// context is cancelled. It returns the last error when every attempt
// fails and the context error when cancelled mid-backoff.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	p = p.normalized()

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		// No sleep after the last attempt.
		if attempt < p.MaxAttempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.delay(attempt)):
			}
		}
	}

	return lastErr
}

// delay doubles the base delay per attempt (0-indexed), caps it at
// MaxDelay, and adds jitter.
func (p Policy) delay(attempt int) time.Duration {
	d := p.MaxDelay
	if attempt < 32 {
		if scaled := p.BaseDelay << uint(attempt); scaled < d {
			d = scaled
		}
	}
	return d + time.Duration(float64(d)*p.Jitter*rand.Float64())
}
