package fakeboard

import (
	"net/http"

	"github.com/gofrs/uuid"
	"github.com/gorilla/websocket"
	"github.com/lxzan/gws"

	"github.com/greendrive/impactboard/internal/codec"
	"github.com/greendrive/impactboard/pkg/channel"
	"github.com/greendrive/impactboard/pkg/constants"
	"github.com/greendrive/impactboard/pkg/logger"
	"github.com/greendrive/impactboard/pkg/models"
)

// member is one open socket. The user comes from the credential presented on upgrade,
// not from event payloads.
type member struct {
	socket   *gws.Conn
	codec    codec.Codec
	id       string
	clientID string
	userID   string
	userName string
	// driveID is the room the socket joined, "" before joinImpactBoard. Guarded by Server.mu.
	driveID string
}

func (m *member) send(event string, payload any) error {
	data, err := m.codec.EncodeFrame(event, payload)
	if err != nil {
		return err
	}
	opcode := gws.OpcodeText
	if m.codec.Binary() {
		opcode = gws.OpcodeBinary
	}
	return m.socket.WriteMessage(opcode, data)
}

func broadcast(log logger.Logger, to []*member, event string, payload any) {
	for _, m := range to {
		if err := m.send(event, payload); err != nil {
			log.Debug("fakeboard failed to send event", "event", event, "user_id", m.userID, "error", err)
		}
	}
}

// negotiate picks the first requested subprotocol the server knows.
func negotiate(r *http.Request) codec.Codec {
	for _, name := range websocket.Subprotocols(r) {
		if c, ok := codec.ByName(name); ok {
			return c
		}
	}
	return codec.NewJSON()
}

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	id, ok := s.begin(RouteSocket, w, r)
	if !ok {
		return
	}

	socket, err := s.upgrader.Upgrade(w, r)
	if err != nil {
		s.logger.Warn("fakeboard failed to upgrade", "error", err)
		return
	}

	m := &member{
		socket:   socket,
		codec:    negotiate(r),
		id:       uuid.Must(uuid.NewV4()).String(),
		clientID: r.Header.Get("X-Client-Id"),
		userID:   id.UserID,
		userName: id.UserName,
	}

	s.mu.Lock()
	s.members[socket] = m
	s.mu.Unlock()

	s.logger.Debug("fakeboard accepted socket", "socket_id", m.id, "client_id", m.clientID, "user_id", m.userID, "codec", m.codec.Name())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		socket.ReadLoop()
	}()
}

// roomLocked returns the members of driveID's room other than except.
func (s *Server) roomLocked(driveID string, except *member) []*member {
	out := make([]*member, 0, len(s.rooms[driveID]))
	for m := range s.rooms[driveID] {
		if m != except {
			out = append(out, m)
		}
	}
	return out
}

func (s *Server) join(m *member, driveID string) {
	if driveID == "" {
		return
	}
	s.leave(m)

	s.mu.Lock()
	room, ok := s.rooms[driveID]
	if !ok {
		room = make(map[*member]struct{})
		s.rooms[driveID] = room
	}
	room[m] = struct{}{}
	m.driveID = driveID
	roster := s.rosterLocked(driveID)
	others := s.roomLocked(driveID, m)
	s.mu.Unlock()

	if err := m.send(constants.EventActiveUsers, roster); err != nil {
		s.logger.Debug("fakeboard failed to send roster", "user_id", m.userID, "error", err)
	}
	broadcast(s.logger, others, constants.EventUserJoined, models.UserJoinedEvent{
		UserID:   m.userID,
		UserName: m.userName,
	})
}

// leave removes m from its room. The departure is announced only when the user has no
// other socket left in the room.
func (s *Server) leave(m *member) {
	s.mu.Lock()
	driveID := m.driveID
	if driveID == "" {
		s.mu.Unlock()
		return
	}
	delete(s.rooms[driveID], m)
	if len(s.rooms[driveID]) == 0 {
		delete(s.rooms, driveID)
	}
	m.driveID = ""

	stillPresent := false
	for other := range s.rooms[driveID] {
		if other.userID == m.userID {
			stillPresent = true
			break
		}
	}
	others := s.roomLocked(driveID, nil)
	s.mu.Unlock()

	if stillPresent {
		return
	}
	broadcast(s.logger, others, constants.EventUserLeft, models.UserLeftEvent{UserID: m.userID})
}

// relay sends event to every other member of m's room.
func (s *Server) relay(m *member, event string, payload any) {
	s.mu.Lock()
	if m.driveID == "" {
		s.mu.Unlock()
		return
	}
	others := s.roomLocked(m.driveID, m)
	s.mu.Unlock()

	broadcast(s.logger, others, event, payload)
}

func (s *Server) member(socket *gws.Conn) (*member, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.members[socket]
	return m, ok
}

// socketHandler implements gws.Event.
type socketHandler struct {
	server *Server
}

func (h *socketHandler) OnOpen(socket *gws.Conn) {}

func (h *socketHandler) OnClose(socket *gws.Conn, err error) {
	s := h.server

	m, ok := s.member(socket)
	if !ok {
		return
	}
	s.leave(m)

	s.mu.Lock()
	delete(s.members, socket)
	s.mu.Unlock()
}

func (h *socketHandler) OnPing(socket *gws.Conn, payload []byte) {
	if err := socket.WritePong(payload); err != nil {
		h.server.logger.Debug("fakeboard failed to write pong", "error", err)
	}
}

func (h *socketHandler) OnPong(socket *gws.Conn, payload []byte) {}

func (h *socketHandler) OnMessage(socket *gws.Conn, message *gws.Message) {
	defer message.Close()

	s := h.server
	m, ok := s.member(socket)
	if !ok {
		return
	}

	event, payload, err := m.codec.DecodeFrame(message.Bytes())
	if err != nil {
		s.logger.Warn("fakeboard dropping invalid frame", "error", err)
		return
	}
	msg := channel.NewMessage(event, payload, m.codec)

	switch event {
	case constants.EventJoinBoard:
		var ev models.JoinBoardEvent
		if decode(s, msg, &ev) {
			s.join(m, ev.DriveID)
		}
	case constants.EventLeaveBoard:
		s.leave(m)
	case constants.EventFieldFocus:
		var ev models.FieldFocusEvent
		if decode(s, msg, &ev) {
			s.relay(m, constants.EventFieldFocused, models.FieldFocusedEvent{
				Field:    ev.Field,
				UserID:   m.userID,
				UserName: m.userName,
				Seq:      ev.Seq,
				Session:  ev.Session,
			})
		}
	case constants.EventFieldBlur:
		var ev models.FieldBlurEvent
		if decode(s, msg, &ev) {
			s.relay(m, constants.EventFieldBlurred, models.FieldBlurredEvent{
				Field:   ev.Field,
				UserID:  m.userID,
				Seq:     ev.Seq,
				Session: ev.Session,
			})
		}
	case constants.EventCursorPosition:
		var ev models.CursorPositionEvent
		if decode(s, msg, &ev) {
			s.relay(m, constants.EventRemoteCursor, models.RemoteCursorEvent{
				Field:          ev.Field,
				UserID:         m.userID,
				UserName:       m.userName,
				CursorPosition: ev.CursorPosition,
				Seq:            ev.Seq,
				Session:        ev.Session,
			})
		}
	case constants.EventFieldEdit:
		var ev models.FieldEditEvent
		if decode(s, msg, &ev) {
			s.relay(m, constants.EventBoardUpdate, models.BoardUpdateEvent{
				Field:  ev.Field,
				Value:  ev.Value,
				UserID: m.userID,
			})
		}
	default:
		s.logger.Debug("fakeboard ignoring event", "event", event)
	}
}

func decode(s *Server, msg *channel.Message, v any) bool {
	if err := msg.Decode(v); err != nil {
		s.logger.Warn("fakeboard dropping invalid event", "event", msg.Event, "error", err)
		return false
	}
	return true
}
