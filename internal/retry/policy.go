// Package retry decides whether a failed delivery attempt is retried and
// after what delay. Policies are stateless and safe for concurrent use.
package retry

import (
	"math"
	"math/rand"
	"time"
)

const (
	DefaultMaxRetries     = 3
	DefaultBaseDelay      = time.Minute
	DefaultFactor         = 5
	DefaultMaxDelay       = 15 * time.Minute
	DefaultJitterFraction = 0.2
)

// Decision is the scheduling outcome for one failed attempt.
type Decision struct {
	Retry bool
	After time.Duration
}

// GiveUp is the decision returned once the retry budget is spent.
var GiveUp = Decision{}

// Policy is exponential backoff with additive jitter and a hard ceiling.
//
// Delay for attempt n (0-indexed, the number of attempts already retried):
//
//	min(BaseDelay * Factor^n + jitter, MaxDelay)
//
// where jitter is uniform in [0, BaseDelay*Factor^n*JitterFraction).
type Policy struct {
	MaxRetries     int
	BaseDelay      time.Duration
	Factor         float64
	MaxDelay       time.Duration
	JitterFraction float64

	// Float64 returns a value in [0, 1). Defaults to math/rand.
	Float64 func() float64
}

// DefaultPolicy mirrors the reference schedule of 1m, 5m and 15m.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:     DefaultMaxRetries,
		BaseDelay:      DefaultBaseDelay,
		Factor:         DefaultFactor,
		MaxDelay:       DefaultMaxDelay,
		JitterFraction: DefaultJitterFraction,
	}
}

// Decide returns whether attempt (the count of retries already made for
// this unit of work) should be followed by another one.
func (p Policy) Decide(attempt int) Decision {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= p.MaxRetries {
		return GiveUp
	}
	return Decision{Retry: true, After: p.Delay(attempt)}
}

// Delay computes the capped backoff for attempt without consulting the budget.
func (p Policy) Delay(attempt int) time.Duration {
	factor := p.Factor
	if factor < 1 {
		factor = 1
	}

	base := float64(p.BaseDelay) * math.Pow(factor, float64(attempt))
	ceiling := float64(p.MaxDelay)
	if p.MaxDelay > 0 && base > ceiling {
		return p.MaxDelay
	}

	jitter := 0.0
	if p.JitterFraction > 0 {
		random := p.Float64
		if random == nil {
			random = rand.Float64
		}
		jitter = base * p.JitterFraction * random()
	}

	delay := base + jitter
	if p.MaxDelay > 0 && delay > ceiling {
		return p.MaxDelay
	}
	return time.Duration(delay)
}
