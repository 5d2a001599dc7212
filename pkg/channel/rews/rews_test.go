package rews

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/greendrive/impactboard/contrib/testenv"
	"github.com/greendrive/impactboard/pkg/channel"
	"github.com/greendrive/impactboard/pkg/constants"
	"github.com/greendrive/impactboard/pkg/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestConnection(t *testing.T) (*Connection[*mockConnection], *mockFactory) {
	t.Helper()

	f := &mockFactory{}
	conn := New(f.New, 10*time.Millisecond, logger.Nop())
	return conn, f
}

func TestStateTransitions(t *testing.T) {
	testCases := []struct {
		from, to State
		valid    bool
	}{
		{StateDisconnected, StateConnecting, true},
		{StateDisconnected, StateClosing, true},
		{StateConnecting, StateConnected, true},
		{StateConnecting, StateDisconnected, true},
		{StateConnected, StateConnecting, true},
		{StateConnected, StateClosing, true},
		{StateClosing, StateClosed, true},
		{StateClosing, StateConnected, false},
		{StateClosed, StateConnecting, false},
		{StateDisconnected, StateConnected, false},
		{StateUnknown, StateConnecting, false},
	}

	for _, tc := range testCases {
		t.Run(tc.from.String()+"->"+tc.to.String(), func(t *testing.T) {
			err := tc.from.validateTransitionTo(tc.to)
			if tc.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}

	assert.Equal(t, "InvalidState", State(42).String())
}

func TestConnection(t *testing.T) {
	ctx := context.Background()

	t.Run("connect copies handlers registered earlier", func(t *testing.T) {
		conn, f := newTestConnection(t)

		var got atomic.Int32
		conn.On("userJoinedImpactBoard", func(*channel.Message) { got.Add(1) })

		require.NoError(t, conn.Connect(ctx))
		defer conn.Close(ctx)

		assert.Equal(t, StateConnected, conn.State())
		assert.True(t, f.last().deliver("userJoinedImpactBoard", `{"userId":"u2"}`))
		assert.Equal(t, int32(1), got.Load())
	})

	t.Run("on and off after connect", func(t *testing.T) {
		conn, f := newTestConnection(t)
		require.NoError(t, conn.Connect(ctx))
		defer conn.Close(ctx)

		var got atomic.Int32
		conn.On("userLeftImpactBoard", func(*channel.Message) { got.Add(1) })
		assert.True(t, f.last().deliver("userLeftImpactBoard", `{"userId":"u2"}`))

		conn.Off("userLeftImpactBoard")
		assert.False(t, f.last().deliver("userLeftImpactBoard", `{"userId":"u2"}`))
		assert.Equal(t, int32(1), got.Load())
	})

	t.Run("emit goes to the current socket", func(t *testing.T) {
		conn, f := newTestConnection(t)

		assert.ErrorIs(t, conn.Emit(ctx, "joinImpactBoard", nil), constants.ErrConnectionClosed)

		require.NoError(t, conn.Connect(ctx))
		defer conn.Close(ctx)

		require.NoError(t, conn.Emit(ctx, "joinImpactBoard", map[string]string{"driveId": "d1"}))
		require.Len(t, f.last().Emitted(), 1)
		assert.Equal(t, "joinImpactBoard", f.last().Emitted()[0].event)
	})

	t.Run("close", func(t *testing.T) {
		conn, f := newTestConnection(t)
		require.NoError(t, conn.Connect(ctx))

		require.NoError(t, conn.Close(ctx))
		assert.True(t, conn.IsClosed())
		assert.Equal(t, int32(1), f.last().closeCalls.Load())

		assert.Error(t, conn.Close(ctx), "second close must fail")
		assert.ErrorIs(t, conn.Emit(ctx, "joinImpactBoard", nil), constants.ErrConnectionClosed)
	})

	t.Run("initial connect failure", func(t *testing.T) {
		conn, f := newTestConnection(t)
		f.setFailures(1)

		err := conn.Connect(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, constants.ErrConnectionClosed)
		assert.Equal(t, StateDisconnected, conn.State())

		require.NoError(t, conn.Close(ctx))
		assert.True(t, conn.IsClosed())
	})
}

func TestReconnect(t *testing.T) {
	ctx := context.Background()

	t.Run("replays handlers and runs hooks", func(t *testing.T) {
		conn, f := newTestConnection(t)

		var roster atomic.Int32
		conn.On("activeImpactUsers", func(*channel.Message) { roster.Add(1) })

		hookCalls := make(chan struct{}, 4)
		conn.OnReconnect(func(ctx context.Context) {
			hookCalls <- struct{}{}
		})

		require.NoError(t, conn.Connect(ctx))
		defer conn.Close(ctx)

		first := f.last()
		first.drop()

		select {
		case <-hookCalls:
		case <-time.After(5 * time.Second):
			t.Fatal("reconnect hook not called")
		}

		require.Equal(t, 2, f.count())
		second := f.last()
		assert.NotSame(t, first, second)
		assert.Equal(t, int32(1), first.closeCalls.Load(), "previous socket must be released")

		assert.True(t, second.deliver("activeImpactUsers", `[]`))
		assert.Equal(t, int32(1), roster.Load())

		require.Eventually(t, func() bool {
			return conn.Emit(ctx, "joinImpactBoard", nil) == nil
		}, 5*time.Second, 5*time.Millisecond)
		assert.NotEmpty(t, second.Emitted())
	})

	t.Run("keeps trying with retryer", func(t *testing.T) {
		conn, f := newTestConnection(t)
		conn.Retryer = NewFixedDelayRetryer(time.Millisecond, 0)

		reconnected := make(chan struct{}, 1)
		conn.OnReconnect(func(context.Context) { reconnected <- struct{}{} })

		require.NoError(t, conn.Connect(ctx))
		defer conn.Close(ctx)

		f.setFailures(3)
		f.last().drop()

		select {
		case <-reconnected:
		case <-time.After(5 * time.Second):
			t.Fatal("did not reconnect")
		}
		// initial socket, three failed attempts, one success
		assert.Equal(t, 5, f.count())
		assert.Equal(t, StateConnected, conn.State())
	})

	t.Run("retries are bounded per check", func(t *testing.T) {
		capture := testenv.NewCaptureHandler()
		f := &mockFactory{}
		conn := New(f.New, 10*time.Millisecond, logger.New(capture))
		conn.Retryer = NewFixedDelayRetryer(time.Millisecond, 1)

		require.NoError(t, conn.Connect(ctx))
		defer conn.Close(ctx)

		f.setFailures(100)
		f.last().drop()

		require.Eventually(t, func() bool {
			return capture.Has("rews.Connection failed to reconnect")
		}, 5*time.Second, 5*time.Millisecond)
		assert.NotEqual(t, StateConnected, conn.State())
	})

	t.Run("close during outage stops the loop", func(t *testing.T) {
		conn, f := newTestConnection(t)
		conn.Retryer = NewFixedDelayRetryer(time.Millisecond, 0)

		require.NoError(t, conn.Connect(ctx))
		f.setFailures(1 << 30)
		f.last().drop()

		require.Eventually(t, func() bool { return f.count() > 2 }, 5*time.Second, time.Millisecond)

		closeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		err := conn.Close(closeCtx)
		assert.True(t, err == nil || errors.Is(err, constants.ErrConnectionClosed))
		assert.True(t, conn.IsClosed())
	})
}

func TestConnectWithRetryer(t *testing.T) {
	ctx := context.Background()

	t.Run("initial connect retries", func(t *testing.T) {
		conn, f := newTestConnection(t)
		conn.Retryer = NewFixedDelayRetryer(time.Millisecond, 5)
		f.setFailures(2)

		require.NoError(t, conn.Connect(ctx))
		defer conn.Close(ctx)

		assert.Equal(t, 3, f.count())
		assert.Equal(t, StateConnected, conn.State())
	})

	t.Run("initial connect gives up", func(t *testing.T) {
		conn, f := newTestConnection(t)
		conn.Retryer = NewFixedDelayRetryer(time.Millisecond, 2)
		f.setFailures(10)

		err := conn.Connect(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "gave up after 2 retries")
		assert.Equal(t, 3, f.count())
		require.NoError(t, conn.Close(ctx))
	})

	t.Run("context cancels retries", func(t *testing.T) {
		conn, f := newTestConnection(t)
		conn.Retryer = NewFixedDelayRetryer(time.Hour, 0)
		f.setFailures(10)

		cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()

		err := conn.Connect(cctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		require.NoError(t, conn.Close(ctx))
	})
}
