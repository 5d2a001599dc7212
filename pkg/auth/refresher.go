package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/greendrive/impactboard/pkg/constants"
	"github.com/greendrive/impactboard/pkg/logger"
)

// MaxRefreshBuffer caps how early before expiry a credential is refreshed.
const MaxRefreshBuffer = 5 * time.Minute

// TokenRefresher exchanges a live credential for a fresh one. *Client implements it.
type TokenRefresher interface {
	RefreshToken(ctx context.Context, token string) (string, error)
}

// RefreshDelay returns how long to wait before refreshing a credential with timeLeft
// remaining: the refresh happens min(5m, 20% of timeLeft) before expiry, or immediately
// when the credential has already expired.
func RefreshDelay(timeLeft time.Duration) time.Duration {
	if timeLeft <= 0 {
		return 0
	}
	buffer := min(MaxRefreshBuffer, timeLeft/5)
	return timeLeft - buffer
}

// Refresher keeps a credential fresh until its context is cancelled.
type Refresher struct {
	client TokenRefresher
	clock  clockwork.Clock
	logger logger.Logger

	// OnRefresh is called with every new credential, before the next refresh is scheduled.
	OnRefresh func(token string)
	// OnExpired is called once when a refresh fails and the credential can no longer be kept alive.
	OnExpired func(err error)

	mu    sync.RWMutex
	token string
}

func NewRefresher(client TokenRefresher, token string, clock clockwork.Clock, log logger.Logger) *Refresher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Refresher{client: client, token: token, clock: clock, logger: log}
}

// Token returns the current credential.
func (r *Refresher) Token() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.token
}

// Run refreshes the credential ahead of each expiry. It returns nil when ctx is cancelled,
// and an error wrapping constants.ErrTokenExpired when a refresh fails.
// Credentials without an exp claim are never refreshed.
func (r *Refresher) Run(ctx context.Context) error {
	for {
		token := r.Token()

		exp, ok, err := ExpiresAt(token)
		if err != nil {
			return r.expire(err)
		}
		if !ok {
			r.logger.Debug("credential has no expiry, not scheduling refresh")
			<-ctx.Done()
			return nil
		}

		delay := RefreshDelay(exp.Sub(r.clock.Now()))
		r.logger.Debug("scheduled credential refresh", "in", delay, "expires_at", exp)

		if delay > 0 {
			timer := r.clock.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil
			case <-timer.Chan():
			}
		}

		fresh, err := r.client.RefreshToken(ctx, token)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return r.expire(err)
		}
		if IsExpired(fresh, r.clock.Now()) {
			return r.expire(fmt.Errorf("%w: refreshed credential is already expired", constants.ErrInvalidToken))
		}

		r.mu.Lock()
		r.token = fresh
		r.mu.Unlock()

		r.logger.Info("credential refreshed")
		if r.OnRefresh != nil {
			r.OnRefresh(fresh)
		}
	}
}

func (r *Refresher) expire(err error) error {
	r.logger.Error("credential refresh failed", "error", err)

	r.mu.Lock()
	r.token = ""
	r.mu.Unlock()

	err = fmt.Errorf("%w: %v", constants.ErrTokenExpired, err)
	if r.OnExpired != nil {
		r.OnExpired(err)
	}
	return err
}
