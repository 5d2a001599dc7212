package fakeboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greendrive/impactboard/contrib/testenv"
	"github.com/greendrive/impactboard/internal/codec"
	"github.com/greendrive/impactboard/pkg/auth"
	"github.com/greendrive/impactboard/pkg/channel"
	"github.com/greendrive/impactboard/pkg/channel/gorillaws"
	"github.com/greendrive/impactboard/pkg/constants"
	"github.com/greendrive/impactboard/pkg/docstore"
	"github.com/greendrive/impactboard/pkg/models"
)

var inbound = []string{
	constants.EventActiveUsers,
	constants.EventUserJoined,
	constants.EventUserLeft,
	constants.EventBoardUpdate,
	constants.EventFieldFocused,
	constants.EventFieldBlurred,
	constants.EventRemoteCursor,
	constants.EventBoardFinalized,
}

func startServer(t *testing.T) *Server {
	t.Helper()

	srv := NewServer("127.0.0.1:0")
	srv.AddBoard(models.Drive{
		ID:         "drive-1",
		Heading:    "Beach cleanup",
		CreatedBy:  "u-a",
		ImpactData: models.Fields{"summary": "", "wasteCollected": 0},
	})
	require.NoError(t, srv.Start())
	t.Cleanup(func() {
		require.NoError(t, srv.Stop())
	})
	return srv
}

type client struct {
	conn  *gorillaws.Connection
	inbox chan *channel.Message
}

func dial(t *testing.T, srv *Server, userID, userName string, c codec.Codec) *client {
	t.Helper()

	conn := gorillaws.New(gorillaws.Config{
		URL:   srv.SocketURL(),
		Token: testenv.MintToken(userID, userName, time.Hour),
		Codec: c,
	})
	cl := &client{conn: conn, inbox: make(chan *channel.Message, 64)}
	for _, event := range inbound {
		conn.On(event, func(msg *channel.Message) { cl.inbox <- msg })
	}

	require.NoError(t, conn.Connect(context.Background()))
	t.Cleanup(func() {
		_ = conn.Close(context.Background())
	})
	return cl
}

// expect waits for the next message for event, skipping any other event.
func (cl *client) expect(t *testing.T, event string, v any) {
	t.Helper()

	timeout := time.After(5 * time.Second)
	for {
		select {
		case msg := <-cl.inbox:
			if msg.Event != event {
				continue
			}
			require.NoError(t, msg.Decode(v))
			return
		case <-timeout:
			t.Fatalf("timed out waiting for %s", event)
		}
	}
}

func (cl *client) emit(t *testing.T, event string, payload any) {
	t.Helper()
	require.NoError(t, cl.conn.Emit(context.Background(), event, payload))
}

func (cl *client) join(t *testing.T, driveID, userID, userName string) []models.Participant {
	t.Helper()

	cl.emit(t, constants.EventJoinBoard, models.JoinBoardEvent{DriveID: driveID, UserID: userID, UserName: userName})
	var roster []models.Participant
	cl.expect(t, constants.EventActiveUsers, &roster)
	return roster
}

func TestServerLifecycle(t *testing.T) {
	srv := NewServer("127.0.0.1:0")
	require.NoError(t, srv.Start())
	assert.NotEmpty(t, srv.Address())
	assert.Equal(t, "ws://"+srv.Address()+"/socket", srv.SocketURL())
	require.NoError(t, srv.Stop())
}

func TestRooms(t *testing.T) {
	srv := startServer(t)

	ann := dial(t, srv, "u-a", "Ann", codec.NewJSON())
	ben := dial(t, srv, "u-b", "Ben", codec.NewCBOR())

	assert.Equal(t, []models.Participant{{UserID: "u-a", UserName: "Ann"}}, ann.join(t, "drive-1", "u-a", "Ann"))
	assert.Equal(t, []models.Participant{
		{UserID: "u-a", UserName: "Ann"},
		{UserID: "u-b", UserName: "Ben"},
	}, ben.join(t, "drive-1", "u-b", "Ben"))

	var joined models.UserJoinedEvent
	ann.expect(t, constants.EventUserJoined, &joined)
	assert.Equal(t, models.UserJoinedEvent{UserID: "u-b", UserName: "Ben"}, joined)

	ben.emit(t, constants.EventFieldFocus, models.FieldFocusEvent{DriveID: "drive-1", Field: "summary", UserID: "u-b", UserName: "Ben", Seq: 1, Session: "tab-1"})
	var focused models.FieldFocusedEvent
	ann.expect(t, constants.EventFieldFocused, &focused)
	assert.Equal(t, models.FieldFocusedEvent{Field: "summary", UserID: "u-b", UserName: "Ben", Seq: 1, Session: "tab-1"}, focused)

	ben.emit(t, constants.EventCursorPosition, models.CursorPositionEvent{DriveID: "drive-1", Field: "summary", UserID: "u-b", CursorPosition: 4, Seq: 2})
	var cursor models.RemoteCursorEvent
	ann.expect(t, constants.EventRemoteCursor, &cursor)
	assert.Equal(t, models.RemoteCursorEvent{Field: "summary", UserID: "u-b", UserName: "Ben", CursorPosition: 4, Seq: 2}, cursor)

	ben.emit(t, constants.EventFieldEdit, models.FieldEditEvent{DriveID: "drive-1", Field: "summary", Value: "We met at 9", UserID: "u-b"})
	var edit models.BoardUpdateEvent
	ann.expect(t, constants.EventBoardUpdate, &edit)
	assert.Equal(t, models.BoardUpdateEvent{Field: "summary", Value: "We met at 9", UserID: "u-b"}, edit)

	ben.emit(t, constants.EventFieldBlur, models.FieldBlurEvent{DriveID: "drive-1", Field: "summary", UserID: "u-b", Seq: 3})
	var blurred models.FieldBlurredEvent
	ann.expect(t, constants.EventFieldBlurred, &blurred)
	assert.Equal(t, models.FieldBlurredEvent{Field: "summary", UserID: "u-b", Seq: 3}, blurred)

	require.NoError(t, ben.conn.Close(context.Background()))
	var left models.UserLeftEvent
	ann.expect(t, constants.EventUserLeft, &left)
	assert.Equal(t, "u-b", left.UserID)
	assert.Equal(t, []models.Participant{{UserID: "u-a", UserName: "Ann"}}, srv.Members("drive-1"))

	ann.emit(t, constants.EventLeaveBoard, models.LeaveBoardEvent{DriveID: "drive-1", UserID: "u-a"})
	require.Eventually(t, func() bool { return len(srv.Members("drive-1")) == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestDocumentStore(t *testing.T) {
	ctx := context.Background()
	srv := startServer(t)

	ann := dial(t, srv, "u-a", "Ann", codec.NewJSON())
	ann.join(t, "drive-1", "u-a", "Ann")

	owner := docstore.NewClient(srv.URL())
	owner.SetAuthToken(testenv.MintToken("u-a", "Ann", time.Hour))
	other := docstore.NewClient(srv.URL())
	other.SetAuthToken(testenv.MintToken("u-b", "Ben", time.Hour))

	drive, err := other.GetDocument(ctx, "drive-1")
	require.NoError(t, err)
	assert.Equal(t, "Beach cleanup", drive.Heading)

	version, err := other.UpdateField(ctx, "drive-1", "wasteCollected", 40, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), version)
	version, err = other.UpdateField(ctx, "drive-1", "wasteCollected", 42, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), version)

	var update models.BoardUpdateEvent
	ann.expect(t, constants.EventBoardUpdate, &update)
	assert.Equal(t, uint64(1), update.Version)
	ann.expect(t, constants.EventBoardUpdate, &update)
	assert.Equal(t, uint64(2), update.Version)
	assert.Equal(t, "u-b", update.UserID)
	assert.EqualValues(t, 42, update.Value)

	_, err = other.GetDocument(ctx, "missing")
	assert.ErrorIs(t, err, docstore.ErrNotFound)

	anonymous := docstore.NewClient(srv.URL())
	_, err = anonymous.GetDocument(ctx, "drive-1")
	assert.ErrorIs(t, err, docstore.ErrUnauthorized)

	_, err = other.Finalize(ctx, "drive-1")
	assert.ErrorIs(t, err, docstore.ErrForbidden)

	res, err := owner.Finalize(ctx, "drive-1")
	require.NoError(t, err)
	assert.Equal(t, "Beach cleanup. summary: , wasteCollected: 42.", res.Summary)

	var finished models.BoardFinalizedEvent
	ann.expect(t, constants.EventBoardFinalized, &finished)
	assert.Equal(t, "drive-1", finished.DriveID)

	board, ok := srv.Board("drive-1")
	require.True(t, ok)
	assert.True(t, board.IsFinalized)

	_, err = owner.UpdateField(ctx, "drive-1", "summary", "late", 4)
	var statusErr *docstore.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, 409, statusErr.StatusCode)
}

func TestFailureInjection(t *testing.T) {
	ctx := context.Background()
	srv := startServer(t)

	store := docstore.NewClient(srv.URL())
	store.SetAuthToken(testenv.MintToken("u-b", "Ben", time.Hour))

	srv.Fail(RouteGet, Failure{Status: 503, Message: "maintenance", Times: 1})

	_, err := store.GetDocument(ctx, "drive-1")
	var statusErr *docstore.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, 503, statusErr.StatusCode)
	assert.Equal(t, "maintenance", statusErr.Message)

	_, err = store.GetDocument(ctx, "drive-1")
	require.NoError(t, err)

	srv.Fail(RouteSocket, Failure{Status: 503, Message: "maintenance"})
	conn := gorillaws.New(gorillaws.Config{
		URL:   srv.SocketURL(),
		Token: testenv.MintToken("u-b", "Ben", time.Hour),
		Codec: codec.NewJSON(),
	})
	err = conn.Connect(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")

	srv.ClearFailures()
	require.NoError(t, conn.Connect(ctx))
	require.NoError(t, conn.Close(ctx))

	assert.Equal(t, []string{
		"GET /impactBoard/drive-1",
		"GET /impactBoard/drive-1",
		"GET /socket",
		"GET /socket",
	}, srv.Requests())
}

func TestDropConnections(t *testing.T) {
	srv := startServer(t)

	ann := dial(t, srv, "u-a", "Ann", codec.NewJSON())
	ben := dial(t, srv, "u-b", "Ben", codec.NewJSON())
	ann.join(t, "drive-1", "u-a", "Ann")
	ben.join(t, "drive-1", "u-b", "Ben")

	assert.Equal(t, 2, srv.DropConnections())

	require.Eventually(t, func() bool {
		return ann.conn.IsClosed() && ben.conn.IsClosed()
	}, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return srv.ConnectionCount() == 0
	}, 5*time.Second, 10*time.Millisecond)
	assert.Empty(t, srv.Members("drive-1"))
}

func TestRefresh(t *testing.T) {
	srv := startServer(t)
	srv.TokenTTL = 2 * time.Hour

	token := testenv.MintToken("u-a", "Ann", time.Minute)
	fresh, err := auth.NewClient(srv.URL()).RefreshToken(context.Background(), token)
	require.NoError(t, err)

	id, err := auth.DecodeIdentity(fresh)
	require.NoError(t, err)
	assert.Equal(t, "u-a", id.UserID)
	assert.Equal(t, "Ann", id.UserName)
	assert.WithinDuration(t, time.Now().Add(2*time.Hour), id.ExpiresAt, time.Minute)
}
