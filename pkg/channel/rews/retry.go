package rews

import (
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/greendrive/impactboard/pkg/constants"
)

// Retryer paces connection attempts.
type Retryer interface {
	// NextDelay reports how long to wait before attempt+1 and whether to make it at all.
	// attempt counts failures so far, starting at 0.
	NextDelay(attempt int, lastErr error) (time.Duration, bool)

	// Reset is called after a successful connection.
	Reset()
}

// giveUp reports whether no amount of waiting can fix lastErr.
// A denied handshake means the credential was rejected; a fresh one is needed, not another attempt.
func giveUp(attempt, maxRetries int, lastErr error) bool {
	if errors.Is(lastErr, constants.ErrHandshakeDenied) {
		return true
	}
	return maxRetries > 0 && attempt >= maxRetries
}

// ExponentialBackoffRetryer doubles (by Multiplier) the wait after each failure, up to MaxDelay.
type ExponentialBackoffRetryer struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// MaxRetries bounds the attempts; 0 retries until the context is done.
	MaxRetries int

	// JitterFactor spreads the board's clients apart after the backend restarts.
	// The delay moves by up to ±JitterFactor of itself; 0 disables jitter.
	JitterFactor float64

	// Float64 overrides the jitter source. nil means math/rand.
	Float64 func() float64
}

func NewExponentialBackoffRetryer() *ExponentialBackoffRetryer {
	return &ExponentialBackoffRetryer{
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
		JitterFactor: 0.3,
	}
}

func (r *ExponentialBackoffRetryer) NextDelay(attempt int, lastErr error) (time.Duration, bool) {
	if giveUp(attempt, r.MaxRetries, lastErr) {
		return 0, false
	}

	delay := math.Min(
		float64(r.InitialDelay)*math.Pow(r.Multiplier, float64(attempt)),
		float64(r.MaxDelay),
	)
	if r.JitterFactor <= 0 {
		return time.Duration(delay), true
	}

	random := r.Float64
	if random == nil {
		//nolint:gosec
		random = rand.Float64
	}
	jittered := delay * (1 + r.JitterFactor*(2*random()-1))
	if jittered < float64(r.InitialDelay) {
		jittered = float64(r.InitialDelay)
	}
	return time.Duration(math.Round(jittered)), true
}

func (r *ExponentialBackoffRetryer) Reset() {}

// FixedDelayRetryer waits Delay between attempts.
// Open uses it with the configured reconnect interval.
type FixedDelayRetryer struct {
	Delay      time.Duration
	MaxRetries int
}

func NewFixedDelayRetryer(delay time.Duration, maxRetries int) *FixedDelayRetryer {
	return &FixedDelayRetryer{Delay: delay, MaxRetries: maxRetries}
}

func (r *FixedDelayRetryer) NextDelay(attempt int, lastErr error) (time.Duration, bool) {
	if giveUp(attempt, r.MaxRetries, lastErr) {
		return 0, false
	}
	return r.Delay, true
}

func (r *FixedDelayRetryer) Reset() {}
