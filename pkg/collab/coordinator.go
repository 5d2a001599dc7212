package collab

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/greendrive/impactboard/pkg/channel"
	"github.com/greendrive/impactboard/pkg/constants"
	"github.com/greendrive/impactboard/pkg/logger"
	"github.com/greendrive/impactboard/pkg/models"
)

// Store is the Document Store as seen by the coordinator. *docstore.Client implements it.
type Store interface {
	GetDocument(ctx context.Context, driveID string) (*models.Drive, error)
	// UpdateField returns the version assigned to the write, or 0 when fields are unversioned.
	UpdateField(ctx context.Context, driveID, field string, value any, cursorPosition int) (uint64, error)
	Finalize(ctx context.Context, driveID string) (*models.FinalizeResponse, error)
}

type Config struct {
	Channel  channel.Channel
	Store    Store
	Identity models.Identity

	Logger logger.Logger
	Clock  clockwork.Clock

	// DebounceWindow is the quiet period after the last edit of a field before it is persisted.
	// Zero means constants.DefaultDebounceWindow.
	DebounceWindow time.Duration
	// PersistTimeout bounds each debounced write. Zero means constants.DefaultRequestTimeout.
	PersistTimeout time.Duration

	// BroadcastEdits emits impactFieldUpdate on every local edit, in addition to the
	// debounced persist.
	BroadcastEdits bool

	Metrics *Metrics

	// OnChange is called after every applied state change, outside the coordinator's lock.
	// It must not block for long; it runs on the goroutine that caused the change.
	OnChange func(Change)
}

type Coordinator struct {
	ch       channel.Channel
	store    Store
	identity models.Identity
	logger   logger.Logger
	clock    clockwork.Clock
	window   time.Duration
	timeout  time.Duration
	live     bool
	metrics  *Metrics
	onChange func(Change)

	// session tags this coordinator's presence events; several coordinators may share a user.
	session string

	mu          sync.Mutex
	documentID  string
	joined      bool
	left        bool
	leaveSent   bool
	finalized   bool
	summary     string
	fields      models.Fields
	versions    map[string]uint64
	roster      []models.Participant
	claims      map[string]models.FocusClaim
	cursors     map[string]models.CursorMarker
	loaded      bool
	lastSeq     map[sender]uint64
	localSeq    uint64
	pending     map[string]*pendingWrite
	generation  uint64
	registered  []string
	inflight    sync.WaitGroup
	reconnectOn bool
}

func New(cfg Config) *Coordinator {
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	window := cfg.DebounceWindow
	if window <= 0 {
		window = constants.DefaultDebounceWindow
	}
	timeout := cfg.PersistTimeout
	if timeout <= 0 {
		timeout = constants.DefaultRequestTimeout
	}

	return &Coordinator{
		ch:       cfg.Channel,
		store:    cfg.Store,
		identity: cfg.Identity,
		logger:   log,
		clock:    clock,
		window:   window,
		timeout:  timeout,
		live:     cfg.BroadcastEdits,
		metrics:  cfg.Metrics,
		onChange: cfg.OnChange,
		session:  uuid.Must(uuid.NewV4()).String(),
		fields:   models.Fields{},
		versions: make(map[string]uint64),
		claims:   make(map[string]models.FocusClaim),
		cursors:  make(map[string]models.CursorMarker),
		lastSeq:  make(map[sender]uint64),
		pending:  make(map[string]*pendingWrite),
	}
}

// Join loads the board snapshot, subscribes to the room's events and announces the local
// user. It fails closed without an identity or a channel, and a Coordinator joins at most once.
//
// A failed snapshot fetch is fatal: nothing is subscribed and nothing is emitted.
// A board that is already finalized is joined read-only.
func (c *Coordinator) Join(ctx context.Context, documentID string) error {
	switch {
	case !c.identity.Valid():
		return constants.ErrNoIdentity
	case c.ch == nil:
		return constants.ErrNoChannel
	case c.store == nil:
		return constants.ErrNoStore
	case documentID == "":
		return constants.ErrDocumentNotSet
	}

	c.mu.Lock()
	if c.joined {
		c.mu.Unlock()
		return constants.ErrAlreadyJoined
	}
	c.joined = true
	c.documentID = documentID
	c.mu.Unlock()

	drive, err := c.store.GetDocument(ctx, documentID)
	if err != nil {
		c.mu.Lock()
		c.left = true
		c.mu.Unlock()
		return fmt.Errorf("failed to load board %s: %w", documentID, err)
	}

	c.mu.Lock()
	c.applySnapshot(drive, false)
	c.loaded = true
	c.mu.Unlock()

	c.subscribe()

	err = c.emit(ctx, constants.EventJoinBoard, models.JoinBoardEvent{
		DriveID:  documentID,
		UserID:   c.identity.UserID,
		UserName: c.identity.UserName,
	})
	if err != nil {
		c.mu.Lock()
		c.left = true
		c.mu.Unlock()
		c.unsubscribe()
		return fmt.Errorf("failed to join board %s: %w", documentID, err)
	}

	c.logger.Info("joined board", "document_id", documentID, "user_id", c.identity.UserID, "finalized", drive.IsFinalized)
	c.notify(Change{Kind: ChangeSnapshot})
	return nil
}

// applySnapshot replaces field values with those of drive. With keepPending, fields that
// still have a local write waiting keep their local value. Must be called with mu held.
func (c *Coordinator) applySnapshot(drive *models.Drive, keepPending bool) {
	fields := drive.ImpactData.Clone()
	if keepPending {
		for field := range c.pending {
			fields[field] = c.fields[field]
		}
	}
	c.fields = fields

	for field, v := range drive.Versions {
		if v > c.versions[field] {
			c.versions[field] = v
		}
	}

	if drive.Summary != "" {
		c.summary = drive.Summary
	}
	if drive.IsFinalized && !c.finalized {
		c.markFinalized()
	}
}

// markFinalized closes the gate and drops everything tied to editing. Must be called with mu held.
func (c *Coordinator) markFinalized() {
	c.finalized = true
	c.stopTimers()
	c.claims = make(map[string]models.FocusClaim)
	c.cursors = make(map[string]models.CursorMarker)
}

// Leave announces departure, unsubscribes every handler and cancels pending writes.
// Writes already sent are not cancelled; Leave waits for them until ctx is done.
// Leave is idempotent. If the board was finalized locally the departure was already
// announced and is not repeated.
func (c *Coordinator) Leave(ctx context.Context) error {
	c.mu.Lock()
	if !c.joined {
		c.mu.Unlock()
		return constants.ErrNotJoined
	}
	if c.left {
		c.mu.Unlock()
		return nil
	}
	c.left = true
	c.stopTimers()
	announce := !c.leaveSent
	c.leaveSent = true
	documentID := c.documentID
	c.mu.Unlock()

	c.unsubscribe()

	var err error
	if announce {
		err = c.emit(ctx, constants.EventLeaveBoard, models.LeaveBoardEvent{
			DriveID: documentID,
			UserID:  c.identity.UserID,
		})
	}

	c.waitInflight(ctx)
	c.logger.Info("left board", "document_id", documentID, "user_id", c.identity.UserID)

	return err
}

// Finalize asks the store to freeze the board and generate its summary.
//
// The board must have content: a board whose fields are all empty is rejected with
// constants.ErrEmptyDocument before any request. Pending writes are flushed first so the
// summary covers the latest text. Ownership is enforced by the store; a non-owner gets
// the store's authorization error and the local state is unchanged. On success the
// coordinator becomes read-only and leaves the room.
func (c *Coordinator) Finalize(ctx context.Context) (*models.FinalizeResponse, error) {
	c.mu.Lock()
	if err := c.editableLocked(); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if c.fields.Empty() {
		c.mu.Unlock()
		return nil, constants.ErrEmptyDocument
	}
	documentID := c.documentID
	c.mu.Unlock()

	c.flush(ctx)

	res, err := c.store.Finalize(ctx, documentID)
	if err != nil {
		c.logger.Error("failed to finalize board", "document_id", documentID, "error", err)
		return nil, fmt.Errorf("failed to finalize board %s: %w", documentID, err)
	}

	c.mu.Lock()
	c.markFinalized()
	c.summary = res.Summary
	announce := !c.left && !c.leaveSent
	c.leaveSent = true
	c.mu.Unlock()

	c.logger.Info("finalized board", "document_id", documentID)
	c.notify(Change{Kind: ChangeFinalized, UserID: c.identity.UserID})

	if announce {
		// the board is closed for editing; failing to announce it is not a finalize failure
		_ = c.emit(ctx, constants.EventLeaveBoard, models.LeaveBoardEvent{
			DriveID: documentID,
			UserID:  c.identity.UserID,
		})
	}

	return res, nil
}

// editableLocked returns why local input is rejected, or nil. Input is rejected until the
// snapshot is loaded. Must be called with mu held.
func (c *Coordinator) editableLocked() error {
	switch {
	case !c.loaded || c.left:
		return constants.ErrNotJoined
	case c.finalized:
		return constants.ErrFinalized
	}
	return nil
}

// active reports whether remote events should still be applied. Must be called with mu held.
func (c *Coordinator) active() bool {
	return c.joined && !c.left
}

func (c *Coordinator) emit(ctx context.Context, event string, payload any) error {
	err := c.ch.Emit(ctx, event, payload)
	c.metrics.emit(event, err)
	if err != nil {
		c.logger.Error("failed to emit event", "event", event, "document_id", c.DocumentID(), "error", err)
	}
	return err
}

func (c *Coordinator) notify(change Change) {
	if c.onChange != nil {
		c.onChange(change)
	}
}

// DocumentID returns the board this coordinator joined, or "" before Join.
func (c *Coordinator) DocumentID() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.documentID
}

func (c *Coordinator) Identity() models.Identity {
	return c.identity
}

// SessionID identifies this coordinator in the presence events it emits.
func (c *Coordinator) SessionID() string {
	return c.session
}
