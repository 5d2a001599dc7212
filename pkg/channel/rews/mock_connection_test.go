package rews

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/greendrive/impactboard/internal/codec"
	"github.com/greendrive/impactboard/pkg/channel"
	"github.com/greendrive/impactboard/pkg/constants"
)

type emitted struct {
	event   string
	payload any
}

// mockConnection is an in-memory socket. deliver simulates an inbound frame
// and drop simulates the peer going away.
type mockConnection struct {
	channel.Handlers

	connectErr   error
	connectCalls atomic.Int32
	closeCalls   atomic.Int32
	isClosed     atomic.Bool

	mu    sync.Mutex
	emits []emitted
}

var _ channel.WebSocketConnection = (*mockConnection)(nil)

func (m *mockConnection) Connect(ctx context.Context) error {
	m.connectCalls.Add(1)
	return m.connectErr
}

func (m *mockConnection) Close(ctx context.Context) error {
	m.closeCalls.Add(1)
	m.isClosed.Store(true)
	return nil
}

func (m *mockConnection) IsClosed() bool {
	return m.isClosed.Load()
}

func (m *mockConnection) Emit(ctx context.Context, event string, payload any) error {
	if m.IsClosed() {
		return constants.ErrConnectionClosed
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emits = append(m.emits, emitted{event: event, payload: payload})
	return nil
}

func (m *mockConnection) Emitted() []emitted {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]emitted(nil), m.emits...)
}

func (m *mockConnection) drop() {
	m.isClosed.Store(true)
}

func (m *mockConnection) deliver(event string, payload string) bool {
	return m.Dispatch(channel.NewMessage(event, []byte(payload), codec.NewJSON()))
}

// mockFactory hands out a fresh mockConnection per call and remembers all of them.
type mockFactory struct {
	mu    sync.Mutex
	conns []*mockConnection
	// failures is the number of upcoming calls whose connection fails to connect.
	failures int
}

func (f *mockFactory) New(ctx context.Context) (*mockConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	conn := &mockConnection{}
	if f.failures > 0 {
		f.failures--
		conn.connectErr = constants.ErrConnectionClosed
	}
	f.conns = append(f.conns, conn)
	return conn, nil
}

func (f *mockFactory) setFailures(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = n
}

func (f *mockFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

func (f *mockFactory) last() *mockConnection {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conns[len(f.conns)-1]
}
