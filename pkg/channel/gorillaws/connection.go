// Package gorillaws is the gorilla/websocket transport for the board channel.
package gorillaws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	gorilla "github.com/gorilla/websocket"

	"github.com/greendrive/impactboard/internal/codec"
	"github.com/greendrive/impactboard/pkg/channel"
	"github.com/greendrive/impactboard/pkg/constants"
	"github.com/greendrive/impactboard/pkg/logger"
)

// DefaultDialer is the dialer every Connection starts from.
// Subprotocols are replaced with the codec name on Connect.
var DefaultDialer = &gorilla.Dialer{
	Proxy:             gorilla.DefaultDialer.Proxy,
	HandshakeTimeout:  gorilla.DefaultDialer.HandshakeTimeout,
	EnableCompression: true,
}

// ClientIDHeader carries the per-connection id generated on Connect.
const ClientIDHeader = "X-Client-Id"

type Config struct {
	// URL is the full socket endpoint, e.g. ws://localhost:8080/socket.
	URL string
	// Token is sent as a bearer credential on the handshake.
	Token string
	Codec codec.Codec
	// WriteTimeout bounds Emit when ctx has no deadline. Zero means DefaultWriteTimeout.
	WriteTimeout time.Duration
	Logger       logger.Logger
}

type Connection struct {
	channel.Handlers

	// ClientID identifies this connection to the server. It is regenerated on every Connect.
	ClientID string

	url          string
	token        string
	codec        codec.Codec
	writeTimeout time.Duration
	logger       logger.Logger

	conn *gorilla.Conn
	// connLock guards conn for writes and for the swap on Close.
	connLock sync.Mutex

	// connCloseCh is closed once the connection is closed, locally or by the peer.
	connCloseCh chan int
	// readDone is closed when readLoop returns.
	readDone chan int

	stateMu        sync.Mutex
	closed         bool
	connCloseError error
}

var _ channel.WebSocketConnection = (*Connection)(nil)

func New(cfg Config) *Connection {
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = constants.DefaultWriteTimeout
	}
	return &Connection{
		url:          cfg.URL,
		token:        cfg.Token,
		codec:        cfg.Codec,
		writeTimeout: writeTimeout,
		logger:       log,
	}
}

// IsClosed reports whether the socket has been closed, either by Close or by a read failure.
// A closed Connection cannot be reused; create a new one to reconnect.
func (c *Connection) IsClosed() bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	return c.closed
}

// Connect dials the socket and starts reading frames in the background.
// Handlers registered before or after Connect both receive events.
func (c *Connection) Connect(ctx context.Context) error {
	if c.url == "" {
		return constants.ErrNoBaseURL
	}
	if c.codec == nil {
		return constants.ErrNoCodec
	}

	id, err := uuid.NewV4()
	if err != nil {
		return fmt.Errorf("failed to generate client id: %w", err)
	}

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	header.Set(ClientIDHeader, id.String())

	dialer := *DefaultDialer
	dialer.Subprotocols = []string{c.codec.Name()}

	conn, res, err := dialer.DialContext(ctx, c.url, header)
	if err != nil {
		if res != nil {
			if res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden {
				return fmt.Errorf("failed to dial %s: %s: %w: %w", c.url, res.Status, constants.ErrHandshakeDenied, err)
			}
			return fmt.Errorf("failed to dial %s: %s: %w", c.url, res.Status, err)
		}
		return fmt.Errorf("failed to dial %s: %w", c.url, err)
	}
	defer res.Body.Close()

	c.connLock.Lock()
	defer c.connLock.Unlock()

	c.conn = conn
	c.ClientID = id.String()
	c.connCloseCh = make(chan int)
	c.readDone = make(chan int)

	go c.readLoop(conn)

	c.logger.Debug("gorillaws.Connection connected", "url", c.url, "client_id", c.ClientID)

	return nil
}

// Emit encodes and writes one frame.
// The write is bounded by ctx's deadline, or by the configured write timeout.
func (c *Connection) Emit(ctx context.Context, event string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := c.codec.EncodeFrame(event, payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", event, err)
	}

	messageType := gorilla.TextMessage
	if c.codec.Binary() {
		messageType = gorilla.BinaryMessage
	}

	c.connLock.Lock()
	defer c.connLock.Unlock()

	if c.conn == nil || c.IsClosed() {
		return constants.ErrConnectionClosed
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.writeTimeout)
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}

	if err := c.conn.WriteMessage(messageType, data); err != nil {
		if errors.Is(err, gorilla.ErrCloseSent) || errors.Is(err, net.ErrClosed) {
			c.closeWithError(err)
			return fmt.Errorf("%w: %v", constants.ErrConnectionClosed, err)
		}
		return fmt.Errorf("failed to write %s: %w", event, err)
	}

	return nil
}

// Close sends a close frame and closes the socket.
//
// The close frame write is bounded by ctx; the socket is closed locally even when the write
// fails or ctx expires. Close waits for the read loop to exit unless ctx is done first.
func (c *Connection) Close(ctx context.Context) error {
	c.connLock.Lock()
	conn := c.conn
	c.conn = nil
	c.connLock.Unlock()

	if conn == nil {
		return nil
	}

	c.closeWithError(constants.ErrConnectionClosed)

	writeErr := make(chan error, 1)

	go func() {
		deadline, ok := ctx.Deadline()
		if !ok {
			deadline = time.Now().Add(c.writeTimeout)
		}
		if err := conn.SetWriteDeadline(deadline); err != nil {
			writeErr <- fmt.Errorf("BUG: gorillaws.Connection.Close: failed to set write deadline: %w", err)
			return
		}

		writeErr <- conn.WriteMessage(gorilla.CloseMessage, gorilla.FormatCloseMessage(constants.CloseMessageCode, ""))
	}()

	select {
	case err := <-writeErr:
		if err != nil && !errors.Is(err, gorilla.ErrCloseSent) {
			c.logger.Debug("failed to write close message", "error", err)
		}
	case <-ctx.Done():
	}

	err := conn.Close()

	select {
	case <-c.readDone:
	case <-ctx.Done():
	}

	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Err returns the reason the connection closed, or nil while it is open.
func (c *Connection) Err() error {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	return c.connCloseError
}

func (c *Connection) closeWithError(err error) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	if c.closed {
		return
	}

	c.closed = true
	c.connCloseError = err
	close(c.connCloseCh)
}

func (c *Connection) readLoop(conn *gorilla.Conn) {
	defer close(c.readDone)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}
		c.handleFrame(data)
	}
}

func (c *Connection) handleReadError(err error) {
	if c.IsClosed() {
		return
	}

	switch {
	case gorilla.IsCloseError(err, gorilla.CloseNormalClosure, gorilla.CloseGoingAway):
		c.logger.Info("gorillaws.Connection closed by peer", "error", err)
	case errors.Is(err, net.ErrClosed):
		c.logger.Debug("gorillaws.Connection read on closed socket", "error", err)
	default:
		c.logger.Warn("gorillaws.Connection lost", "error", err)
	}
	c.closeWithError(err)
}

// handleFrame dispatches on the read goroutine so handlers observe frames in arrival order.
func (c *Connection) handleFrame(data []byte) {
	event, payload, err := c.codec.DecodeFrame(data)
	if err != nil {
		c.logger.Warn("dropping invalid frame", "error", err)
		return
	}

	if !c.Dispatch(channel.NewMessage(event, payload, c.codec)) {
		c.logger.Debug("no handler for event", "event", event)
	}
}
