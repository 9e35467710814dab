package usecase

import (
	"errors"
	"math"
	"math/rand"
	"time"

	"SignalPulse/internal/domain/models"
)

type BackoffPolicy struct {
	Max                    time.Duration
	RateLimitMultiplier    float64
	MaxRateLimitMultiplier float64
	Jitter                 float64 // fraction of the delay removed at random
}

// Backoff computes the next poll delay of one source. Transient failures
// grow the delay exponentially; rate limits raise a separate multiplier that
// survives successes and decays by half on each one.
type Backoff struct {
	policy   BackoffPolicy
	interval time.Duration
	rnd      func() float64

	failures   int
	rlMult     float64
	retryAfter time.Duration
}

func NewBackoff(interval time.Duration, policy BackoffPolicy) *Backoff {
	if policy.RateLimitMultiplier < 1 {
		policy.RateLimitMultiplier = 1
	}
	if policy.MaxRateLimitMultiplier < policy.RateLimitMultiplier {
		policy.MaxRateLimitMultiplier = policy.RateLimitMultiplier
	}
	return &Backoff{policy: policy, interval: interval, rnd: rand.Float64, rlMult: 1}
}

// Success resets the failure streak and returns the next delay.
func (b *Backoff) Success() time.Duration {
	b.failures = 0
	b.retryAfter = 0
	b.rlMult = math.Max(1, b.rlMult/2)
	return b.Next()
}

// Failure records err and returns the next delay.
func (b *Backoff) Failure(err error) time.Duration {
	var rl *models.RateLimitError
	if errors.As(err, &rl) {
		b.rlMult = math.Min(b.rlMult*b.policy.RateLimitMultiplier, b.policy.MaxRateLimitMultiplier)
		b.retryAfter = rl.RetryAfter
	} else {
		b.failures++
		b.retryAfter = 0
	}
	return b.Next()
}

// Next is interval * rate-limit multiplier * 2^failures, capped at Max,
// minus up to Jitter of itself, and never shorter than a provider's Retry-After.
func (b *Backoff) Next() time.Duration {
	d := float64(b.interval) * b.rlMult * math.Pow(2, float64(b.failures))
	if b.policy.Max > 0 && d > float64(b.policy.Max) {
		d = float64(b.policy.Max)
	}
	if b.policy.Jitter > 0 {
		d -= d * b.policy.Jitter * b.rnd()
	}
	delay := time.Duration(d)
	if delay < b.retryAfter {
		delay = b.retryAfter
	}
	return delay
}

func (b *Backoff) Failures() int { return b.failures }

func (b *Backoff) RateLimitMultiplier() float64 { return b.rlMult }
