package rews

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/greendrive/impactboard/pkg/channel"
	"github.com/greendrive/impactboard/pkg/constants"
	"github.com/greendrive/impactboard/pkg/logger"
)

type State int

const (
	StateUnknown State = iota
	StateDisconnected
	StateConnecting
	StateConnected
	StateClosing
	StateClosed
)

func (state State) String() string {
	switch state {
	case StateUnknown:
		return "Unknown"
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateClosing:
		return "Closing"
	case StateClosed:
		return "Closed"
	default:
		return "InvalidState"
	}
}

func (s State) validateTransitionTo(newState State) error {
	switch s {
	case StateDisconnected:
		switch newState {
		case StateConnecting, StateDisconnected, StateClosing:
			return nil
		}
	case StateConnecting:
		switch newState {
		case StateConnected, StateDisconnected, StateClosing:
			return nil
		}
	case StateConnected:
		switch newState {
		// Connected to Connecting happens when the socket is lost after it was established.
		case StateConnecting, StateClosing, StateDisconnected:
			return nil
		}
	case StateClosing:
		if newState == StateClosed {
			return nil
		}
	}

	return fmt.Errorf("invalid state transition from %v to %v", s, newState)
}

// Connection is a channel.WebSocketConnection that replaces its underlying socket
// whenever it is lost.
type Connection[C channel.WebSocketConnection] struct {
	// NewFunc creates an unconnected socket. It is called for the initial connection
	// and for every reconnection.
	NewFunc func(context.Context) (C, error)

	// CheckInterval is how often the reconnection loop checks the socket.
	// Zero means constants.DefaultReconnectInterval.
	CheckInterval time.Duration

	// Retryer paces repeated attempts within one connect or reconnect.
	// nil means a single attempt.
	Retryer Retryer

	// handlers is the source of truth for registrations; every new socket gets a copy.
	handlers channel.Handlers

	hooks   []func(ctx context.Context)
	hooksMu sync.Mutex

	conn    C
	hasConn bool
	// connMu guards conn, and serializes handler registration against socket swaps.
	connMu sync.RWMutex

	// connCloseCh signals the reconnection loop to stop.
	connCloseCh chan int
	// reconnLoopCloseCh is closed when the reconnection loop has returned.
	reconnLoopCloseCh chan int
	// loopCtx is cancelled by Close so that in-flight reconnects and hooks give up.
	loopCtx    context.Context
	loopCancel context.CancelFunc

	logger logger.Logger

	// once starts the reconnection loop on the first successful Connect.
	once sync.Once

	state   State
	stateMu sync.Mutex
}

var (
	_ channel.WebSocketConnection = (*Connection[channel.WebSocketConnection])(nil)
	_ channel.Reconnector         = (*Connection[channel.WebSocketConnection])(nil)
)

func New[C channel.WebSocketConnection](
	newConn func(context.Context) (C, error),
	checkInterval time.Duration,
	log logger.Logger,
) *Connection[C] {
	if log == nil {
		log = logger.Nop()
	}
	return &Connection[C]{
		CheckInterval: checkInterval,
		NewFunc:       newConn,
		state:         StateDisconnected,
		logger:        log,
	}
}

func (arws *Connection[C]) transitionTo(newState State) error {
	arws.stateMu.Lock()
	defer arws.stateMu.Unlock()

	if err := arws.state.validateTransitionTo(newState); err != nil {
		return err
	}

	arws.state = newState
	arws.logger.Debug("rews.Connection state transitioned", "state", newState)

	return nil
}

// State returns the current connection state.
func (arws *Connection[C]) State() State {
	arws.stateMu.Lock()
	defer arws.stateMu.Unlock()

	return arws.state
}

// IsClosed returns true once Close has completed. A closed Connection cannot reconnect.
func (arws *Connection[C]) IsClosed() bool {
	return arws.State() == StateClosed
}

func (arws *Connection[C]) current() (C, bool) {
	arws.connMu.RLock()
	defer arws.connMu.RUnlock()

	return arws.conn, arws.hasConn
}

// On registers h for event on the current socket and on every future one.
func (arws *Connection[C]) On(event string, h channel.Handler) {
	arws.connMu.Lock()
	defer arws.connMu.Unlock()

	arws.handlers.On(event, h)
	if arws.hasConn {
		arws.conn.On(event, h)
	}
}

func (arws *Connection[C]) Off(event string) {
	arws.connMu.Lock()
	defer arws.connMu.Unlock()

	arws.handlers.Off(event)
	if arws.hasConn {
		arws.conn.Off(event)
	}
}

// OnReconnect registers a hook that runs after every successful reconnection,
// once handlers are registered on the new socket. Hooks run in registration order
// on the reconnection goroutine.
func (arws *Connection[C]) OnReconnect(hook func(ctx context.Context)) {
	arws.hooksMu.Lock()
	defer arws.hooksMu.Unlock()

	arws.hooks = append(arws.hooks, hook)
}

// Emit writes to the current socket. It fails with constants.ErrConnectionClosed
// while the socket is down; events are not queued.
func (arws *Connection[C]) Emit(ctx context.Context, event string, payload any) error {
	conn, ok := arws.current()
	if !ok || arws.State() != StateConnected {
		return constants.ErrConnectionClosed
	}
	return conn.Emit(ctx, event, payload)
}

// Connect establishes the socket and starts the reconnection loop.
//
// It returns an error if the initial connection fails after the Retryer gives up.
// The caller decides what to do next; initial failures are usually misconfiguration
// (wrong URL, rejected credential) that retrying in the background cannot fix.
func (arws *Connection[C]) Connect(ctx context.Context) error {
	if err := arws.connectWithRetry(ctx, nil); err != nil {
		return err
	}

	arws.once.Do(func() {
		arws.logger.Debug("rews.Connection is starting reconnection loop")

		arws.connCloseCh = make(chan int)
		arws.reconnLoopCloseCh = make(chan int)
		arws.loopCtx, arws.loopCancel = context.WithCancel(context.Background())

		go arws.reconnectionLoop()
	})

	return nil
}

func (arws *Connection[C]) connectWithRetry(ctx context.Context, stop <-chan int) error {
	var err error
	for attempt := 0; ; attempt++ {
		if err = arws.connectOnce(ctx); err == nil {
			if arws.Retryer != nil {
				arws.Retryer.Reset()
			}
			return nil
		}

		if arws.Retryer == nil {
			return err
		}
		delay, ok := arws.Retryer.NextDelay(attempt, err)
		if !ok {
			return fmt.Errorf("rews.Connection gave up after %d retries: %w", attempt, err)
		}

		arws.logger.Debug("rews.Connection will retry", "attempt", attempt+1, "delay", delay, "error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(err, ctx.Err())
		case <-stop:
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}

func (arws *Connection[C]) connectOnce(ctx context.Context) error {
	if err := arws.transitionTo(StateConnecting); err != nil {
		return err
	}

	fail := func(err error) error {
		if arws.State() == StateClosing {
			return err
		}
		if stateErr := arws.transitionTo(StateDisconnected); stateErr != nil {
			arws.logger.Error("BUG: rews.Connection failed to transition to disconnected state", "error", stateErr)
		}
		return err
	}

	conn, err := arws.NewFunc(ctx)
	if err != nil {
		return fail(fmt.Errorf("rews.Connection failed to create a new connection: %w", err))
	}

	arws.connMu.Lock()
	old, hadConn := arws.conn, arws.hasConn
	arws.handlers.CopyTo(conn)
	arws.conn = conn
	arws.hasConn = true
	arws.connMu.Unlock()

	if hadConn {
		if err := old.Close(ctx); err != nil {
			arws.logger.Debug("rews.Connection failed to close the previous socket", "error", err)
		}
	}

	if err := conn.Connect(ctx); err != nil {
		return fail(fmt.Errorf("rews.Connection failed to connect: %w", err))
	}

	if err := arws.transitionTo(StateConnected); err != nil {
		// Close won the race; the new socket is released by Close.
		return fmt.Errorf("rews.Connection connected while closing: %w", err)
	}

	return nil
}

func (arws *Connection[C]) reconnect(ctx context.Context) error {
	if err := arws.connectWithRetry(ctx, arws.connCloseCh); err != nil {
		return fmt.Errorf("rews.Connection failed to reconnect: %w", err)
	}

	arws.hooksMu.Lock()
	hooks := append([]func(context.Context){}, arws.hooks...)
	arws.hooksMu.Unlock()

	for _, hook := range hooks {
		hook(ctx)
	}

	return nil
}

func (arws *Connection[C]) needsReconnect() bool {
	switch arws.State() {
	case StateDisconnected:
		return true
	case StateConnected:
		conn, ok := arws.current()
		return ok && conn.IsClosed()
	default:
		return false
	}
}

// Close stops the reconnection loop and closes the socket.
//
// Once this returns the reconnection loop has stopped. The socket close itself is bounded by ctx.
func (arws *Connection[C]) Close(ctx context.Context) error {
	if err := arws.transitionTo(StateClosing); err != nil {
		return fmt.Errorf("rews.Connection is already closing or closed: %w", err)
	}

	defer func() {
		if err := arws.transitionTo(StateClosed); err != nil {
			arws.logger.Error("BUG: rews.Connection failed to transition to closed state", "error", err)
		}
	}()

	if arws.connCloseCh != nil {
		close(arws.connCloseCh)
		arws.loopCancel()
		<-arws.reconnLoopCloseCh
	}

	conn, ok := arws.current()
	if !ok {
		return nil
	}
	return conn.Close(ctx)
}

func (arws *Connection[C]) reconnectionLoop() {
	checkInterval := constants.DefaultReconnectInterval
	if arws.CheckInterval > 0 {
		checkInterval = arws.CheckInterval
	}

	defer close(arws.reconnLoopCloseCh)

	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-arws.connCloseCh:
			return
		case <-ticker.C:
		}

		if !arws.needsReconnect() {
			continue
		}

		arws.logger.Info("rews.Connection is attempting to reconnect")

		if err := arws.reconnect(arws.loopCtx); err != nil {
			arws.logger.Error("rews.Connection failed to reconnect", "error", err)
			continue
		}

		arws.logger.Info("rews.Connection reconnected")
	}
}
