package rews

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/greendrive/impactboard/pkg/constants"
)

func TestExponentialBackoffRetryer(t *testing.T) {
	t.Run("doubles up to the cap", func(t *testing.T) {
		retryer := &ExponentialBackoffRetryer{
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     time.Second,
			Multiplier:   2,
		}

		want := []time.Duration{
			100 * time.Millisecond,
			200 * time.Millisecond,
			400 * time.Millisecond,
			800 * time.Millisecond,
			time.Second,
			time.Second,
		}
		for attempt, w := range want {
			delay, ok := retryer.NextDelay(attempt, nil)
			assert.True(t, ok)
			assert.Equal(t, w, delay, "attempt %d", attempt)
		}
	})

	t.Run("jitter", func(t *testing.T) {
		retryer := NewExponentialBackoffRetryer()

		retryer.Float64 = func() float64 { return 1 }
		delay, _ := retryer.NextDelay(2, nil)
		assert.Equal(t, 5200*time.Millisecond, delay)

		retryer.Float64 = func() float64 { return 0 }
		delay, _ = retryer.NextDelay(2, nil)
		assert.Equal(t, 2800*time.Millisecond, delay)

		// never below the initial delay
		delay, _ = retryer.NextDelay(0, nil)
		assert.Equal(t, time.Second, delay)
	})

	t.Run("default jitter source stays in range", func(t *testing.T) {
		retryer := NewExponentialBackoffRetryer()
		for i := 0; i < 50; i++ {
			delay, ok := retryer.NextDelay(3, nil)
			assert.True(t, ok)
			assert.GreaterOrEqual(t, delay, 5600*time.Millisecond)
			assert.LessOrEqual(t, delay, 10400*time.Millisecond)
		}
	})

	t.Run("with max retries", func(t *testing.T) {
		retryer := &ExponentialBackoffRetryer{
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     10 * time.Second,
			Multiplier:   2,
			MaxRetries:   3,
		}

		for i := 0; i < 3; i++ {
			_, ok := retryer.NextDelay(i, nil)
			assert.True(t, ok, "attempt %d should retry", i)
		}

		delay, ok := retryer.NextDelay(3, nil)
		assert.False(t, ok)
		assert.Zero(t, delay)
	})
}

func TestFixedDelayRetryer(t *testing.T) {
	t.Run("unbounded", func(t *testing.T) {
		retryer := NewFixedDelayRetryer(500*time.Millisecond, 0)
		for i := 0; i < 10; i++ {
			delay, ok := retryer.NextDelay(i, errors.New("connection refused"))
			assert.True(t, ok)
			assert.Equal(t, 500*time.Millisecond, delay)
		}
	})

	t.Run("with max retries", func(t *testing.T) {
		retryer := NewFixedDelayRetryer(100*time.Millisecond, 2)

		_, ok := retryer.NextDelay(1, nil)
		assert.True(t, ok)

		_, ok = retryer.NextDelay(2, nil)
		assert.False(t, ok)
	})
}

func TestDeniedHandshakeIsNotRetried(t *testing.T) {
	denied := fmt.Errorf("failed to dial ws://localhost/socket: 401 Unauthorized: %w", constants.ErrHandshakeDenied)

	for name, retryer := range map[string]Retryer{
		"fixed":       NewFixedDelayRetryer(time.Millisecond, 0),
		"exponential": NewExponentialBackoffRetryer(),
	} {
		t.Run(name, func(t *testing.T) {
			_, ok := retryer.NextDelay(0, denied)
			assert.False(t, ok)
		})
	}
}
