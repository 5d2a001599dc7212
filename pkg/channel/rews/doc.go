// Package rews provides a reconnecting board channel.
//
// Connection wraps a channel.WebSocketConnection and adds:
//   - automatic reconnection when the socket is lost
//   - re-registration of every event handler on the new socket
//   - reconnect hooks, run after handlers are back in place, for state reconciliation
//   - customizable retry strategies with exponential backoff
//
// Basic usage:
//
//	conn := rews.New(
//	    func(ctx context.Context) (*gorillaws.Connection, error) {
//	        return gorillaws.New(gorillaws.Config{URL: socketURL, Token: token, Codec: c}), nil
//	    },
//	    5*time.Second, // reconnection check interval
//	    log,
//	)
//	conn.Retryer = rews.NewExponentialBackoffRetryer()
//
//	conn.On("activeImpactUsers", onRoster)
//	conn.OnReconnect(func(ctx context.Context) { /* refetch and rejoin */ })
//
//	if err := conn.Connect(ctx); err != nil {
//	    // the initial connection failed after all retries
//	}
//
// Retry strategies, consulted after each failed attempt:
//   - ExponentialBackoffRetryer: growing delay with jitter
//   - FixedDelayRetryer: constant delay, the default of impactboard.Open
//   - nil: one attempt per check interval
//
// Both built-in strategies stop at once when the socket handshake is denied
// (constants.ErrHandshakeDenied); the reconnection loop tries again on its next
// check with whatever credential NewFunc then supplies.
package rews
