package impactboard

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/greendrive/impactboard/internal/codec"
	"github.com/greendrive/impactboard/pkg/auth"
	"github.com/greendrive/impactboard/pkg/channel/gorillaws"
	"github.com/greendrive/impactboard/pkg/channel/rews"
	"github.com/greendrive/impactboard/pkg/collab"
	"github.com/greendrive/impactboard/pkg/constants"
	"github.com/greendrive/impactboard/pkg/docstore"
	"github.com/greendrive/impactboard/pkg/logger"
)

type options struct {
	logger   logger.Logger
	clock    clockwork.Clock
	registry prometheus.Registerer
	onChange func(collab.Change)
	retryer  rews.Retryer
}

type Option func(*options)

func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock replaces the clock used for credential checks and debounce timers.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithMetrics registers the coordinator metrics with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) { o.registry = reg }
}

// WithOnChange sets the callback run after every applied state change.
func WithOnChange(fn func(collab.Change)) Option {
	return func(o *options) { o.onChange = fn }
}

// WithRetryer replaces the retry policy of connects and reconnects.
func WithRetryer(r rews.Retryer) Option {
	return func(o *options) { o.retryer = r }
}

// Session is one participant's live connection to one board. The coordinator's operations
// are available directly on the Session.
type Session struct {
	*collab.Coordinator

	conn   *rews.Connection[*gorillaws.Connection]
	store  *docstore.Client
	logger logger.Logger

	mu    sync.RWMutex
	token string

	closeOnce sync.Once
	closeErr  error
}

// Open validates cfg, connects the channel and joins documentID.
//
// Open fails with constants.ErrTokenExpired before any request when the credential has
// expired. If joining fails, everything acquired so far is released.
func Open(ctx context.Context, cfg *Config, documentID string, opts ...Option) (*Session, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Nop()
	}
	if o.clock == nil {
		o.clock = clockwork.NewRealClock()
	}
	if o.retryer == nil {
		o.retryer = rews.NewFixedDelayRetryer(cfg.ReconnectInterval, cfg.ConnectRetries)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	identity, err := auth.CheckToken(cfg.Token, o.clock.Now())
	if err != nil {
		return nil, err
	}
	if documentID == "" {
		return nil, constants.ErrDocumentNotSet
	}

	c, _ := codec.ByName(cfg.Codec)
	socketURL, err := cfg.SocketEndpoint()
	if err != nil {
		return nil, err
	}

	s := &Session{
		logger: o.logger,
		token:  cfg.Token,
		store: docstore.NewClient(cfg.APIURL).
			WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}).
			WithLogger(o.logger),
	}
	s.store.SetAuthToken(cfg.Token)

	s.conn = rews.New(func(context.Context) (*gorillaws.Connection, error) {
		return gorillaws.New(gorillaws.Config{
			URL:          socketURL,
			Token:        s.Token(),
			Codec:        c,
			WriteTimeout: cfg.RequestTimeout,
			Logger:       o.logger,
		}), nil
	}, cfg.ReconnectInterval, o.logger)
	s.conn.Retryer = o.retryer

	if err := s.conn.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", socketURL, err)
	}

	var metrics *collab.Metrics
	if o.registry != nil {
		metrics = collab.NewMetrics(o.registry)
	}

	s.Coordinator = collab.New(collab.Config{
		Channel:        s.conn,
		Store:          s.store,
		Identity:       identity,
		Logger:         o.logger,
		Clock:          o.clock,
		DebounceWindow: cfg.DebounceWindow,
		PersistTimeout: cfg.RequestTimeout,
		BroadcastEdits: cfg.BroadcastEdits,
		Metrics:        metrics,
		OnChange:       o.onChange,
	})

	if err := s.Join(ctx, documentID); err != nil {
		if closeErr := s.conn.Close(ctx); closeErr != nil {
			o.logger.Debug("failed to close channel after join failure", "error", closeErr)
		}
		return nil, err
	}

	return s, nil
}

// Token returns the credential used for requests and new sockets.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.token
}

// SetToken replaces the credential. Store requests use it at once; the open socket keeps
// its handshake credential and the next socket uses the new one.
func (s *Session) SetToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()

	s.store.SetAuthToken(token)
}

// ChannelState reports the state of the reconnecting channel.
func (s *Session) ChannelState() rews.State {
	return s.conn.State()
}

// Close leaves the board and closes the channel. It is safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		var errs []error
		// a socket that is already gone counts as an implicit leave on the server
		if err := s.Leave(ctx); err != nil && !errors.Is(err, constants.ErrNotJoined) && !errors.Is(err, constants.ErrConnectionClosed) {
			errs = append(errs, fmt.Errorf("failed to leave board: %w", err))
		}
		if err := s.conn.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to close channel: %w", err))
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}
