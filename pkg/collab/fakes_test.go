package collab

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/greendrive/impactboard/internal/codec"
	"github.com/greendrive/impactboard/pkg/channel"
	"github.com/greendrive/impactboard/pkg/models"
)

type emitted struct {
	event   string
	payload any
}

// fakeChannel records emits and lets tests deliver inbound events.
type fakeChannel struct {
	channel.Handlers

	mu      sync.Mutex
	emits   []emitted
	emitErr error
	hooks   []func(ctx context.Context)
}

func (f *fakeChannel) Emit(ctx context.Context, event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.emitErr != nil {
		return f.emitErr
	}
	f.emits = append(f.emits, emitted{event: event, payload: payload})
	return nil
}

func (f *fakeChannel) OnReconnect(hook func(ctx context.Context)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hooks = append(f.hooks, hook)
}

func (f *fakeChannel) reconnect() {
	f.mu.Lock()
	hooks := append([]func(context.Context){}, f.hooks...)
	f.mu.Unlock()
	for _, hook := range hooks {
		hook(context.Background())
	}
}

func (f *fakeChannel) setEmitErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emitErr = err
}

func (f *fakeChannel) Emitted() []emitted {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]emitted(nil), f.emits...)
}

func (f *fakeChannel) EmittedEvents() []string {
	var events []string
	for _, e := range f.Emitted() {
		events = append(events, e.event)
	}
	return events
}

func (f *fakeChannel) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emits = nil
}

// deliver encodes payload the way the wire would and dispatches it.
func (f *fakeChannel) deliver(t *testing.T, event string, payload any) {
	t.Helper()

	c := codec.NewJSON()
	data, err := c.Marshal(payload)
	require.NoError(t, err)
	f.Dispatch(channel.NewMessage(event, data, c))
}

type update struct {
	field  string
	value  any
	cursor int
	at     time.Time
}

type fakeStore struct {
	clock clockwork.Clock

	mu          sync.Mutex
	drive       models.Drive
	getErr      error
	updateErr   error
	finalizeErr error
	gets        int
	updates     []update
	finalizes   int
	calls       []string
	version     uint64
	// beforeGet runs at the start of GetDocument, while the snapshot is still loading.
	beforeGet func()
}

func newFakeStore(clock clockwork.Clock, fields models.Fields) *fakeStore {
	return &fakeStore{
		clock: clock,
		drive: models.Drive{ID: "drive-1", CreatedBy: "u-a", ImpactData: fields},
	}
}

func (s *fakeStore) GetDocument(ctx context.Context, driveID string) (*models.Drive, error) {
	s.mu.Lock()
	hook := s.beforeGet
	s.mu.Unlock()
	if hook != nil {
		hook()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.gets++
	s.calls = append(s.calls, "get")
	if s.getErr != nil {
		return nil, s.getErr
	}
	d := s.drive
	d.ID = driveID
	d.ImpactData = s.drive.ImpactData.Clone()
	return &d, nil
}

func (s *fakeStore) UpdateField(ctx context.Context, driveID, field string, value any, cursorPosition int) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, "update:"+field)
	s.updates = append(s.updates, update{field: field, value: value, cursor: cursorPosition, at: s.clock.Now()})
	if s.updateErr != nil {
		return 0, s.updateErr
	}
	if s.version > 0 {
		s.version++
		return s.version, nil
	}
	return 0, nil
}

func (s *fakeStore) Finalize(ctx context.Context, driveID string) (*models.FinalizeResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.finalizes++
	s.calls = append(s.calls, "finalize")
	if s.finalizeErr != nil {
		return nil, s.finalizeErr
	}
	return &models.FinalizeResponse{Message: "finished", Summary: "Volunteers collected 40kg of waste."}, nil
}

func (s *fakeStore) Updates() []update {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]update(nil), s.updates...)
}

func (s *fakeStore) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *fakeStore) set(fn func(s *fakeStore)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}
