// Package fakeboard provides an in-process fake of the Impact Board backend for tests.
//
// It serves the Document Store routes over HTTP and the board rooms over WebSocket on the
// same listener:
//
//	GET  /impactBoard/{id}        board snapshot
//	PUT  /impactBoard/{id}        field write, broadcast as impactBoardUpdate
//	POST /finishImpactBoard/{id}  creator-only finalize, broadcast as impactBoardFinished
//	POST /auth/refresh-token      credential refresh
//	GET  /socket                  channel endpoint, "json" or "cbor" subprotocol
//
// Every request must carry a bearer credential; the credential is decoded but its
// signature is not checked. The WebSocket side is implemented with the `gws` library.
//
// Failures are injected per route with Fail, and sockets can be dropped or refused to
// exercise reconnection.
package fakeboard

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/lxzan/gws"

	"github.com/greendrive/impactboard/pkg/constants"
	"github.com/greendrive/impactboard/pkg/logger"
	"github.com/greendrive/impactboard/pkg/models"
)

// Route names a backend operation for failure injection.
type Route string

const (
	RouteGet     Route = "get"
	RouteUpdate  Route = "update"
	RouteFinish  Route = "finish"
	RouteRefresh Route = "refresh"
	RouteSocket  Route = "socket"
)

// SocketPath is where the channel endpoint is served.
const SocketPath = constants.DefaultSocketPath

// Failure makes a route answer with Status and an {"error": Message} body.
// Times is how many requests fail before the route recovers; zero means until cleared.
type Failure struct {
	Status  int
	Message string
	Times   int
}

// Server is a fake board backend. The zero value is not usable; call NewServer.
type Server struct {
	// Summarize produces the summary returned when a board is finished.
	Summarize func(models.Drive) string
	// TokenTTL is the lifetime of credentials issued by the refresh route.
	TokenTTL time.Duration

	addr       string
	listener   net.Listener
	httpServer *http.Server
	upgrader   *gws.Upgrader
	logger     logger.Logger

	// wg tracks the serve goroutine and every socket read loop.
	wg sync.WaitGroup

	mu       sync.Mutex
	boards   map[string]*models.Drive
	rooms    map[string]map[*member]struct{}
	members  map[*gws.Conn]*member
	failures map[Route]*Failure
	requests []string
}

// NewServer creates a fake backend. Use "127.0.0.1:0" to bind to a random available port.
func NewServer(addr string) *Server {
	s := &Server{
		Summarize: defaultSummary,
		TokenTTL:  time.Hour,
		addr:      addr,
		logger:    logger.Nop(),
		boards:    make(map[string]*models.Drive),
		rooms:     make(map[string]map[*member]struct{}),
		members:   make(map[*gws.Conn]*member),
		failures:  make(map[Route]*Failure),
	}

	s.upgrader = gws.NewUpgrader(&socketHandler{server: s}, &gws.ServerOption{
		SubProtocols: []string{"json", "cbor"},
	})

	r := mux.NewRouter()
	r.HandleFunc("/impactBoard/{id}", s.handleGetBoard).Methods(http.MethodGet)
	r.HandleFunc("/impactBoard/{id}", s.handleUpdateField).Methods(http.MethodPut)
	r.HandleFunc("/finishImpactBoard/{id}", s.handleFinish).Methods(http.MethodPost)
	r.HandleFunc("/auth/refresh-token", s.handleRefresh).Methods(http.MethodPost)
	r.HandleFunc(SocketPath, s.handleSocket).Methods(http.MethodGet)
	s.httpServer = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// WithLogger sets the logger used for server-side errors.
func (s *Server) WithLogger(l logger.Logger) *Server {
	s.logger = l
	return s
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	var lc net.ListenConfig
	listener, err := lc.Listen(context.Background(), "tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("fakeboard server stopped", "error", err)
		}
	}()

	return nil
}

// Stop closes the listener and every socket, and waits for all server goroutines.
func (s *Server) Stop() error {
	err := s.httpServer.Close()
	s.DropConnections()
	s.wg.Wait()
	return err
}

// Address returns the actual address the server is listening on.
func (s *Server) Address() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// URL is the base URL of the Document Store routes.
func (s *Server) URL() string {
	return "http://" + s.Address()
}

// SocketURL is the channel endpoint.
func (s *Server) SocketURL() string {
	return "ws://" + s.Address() + SocketPath
}

// AddBoard stores drive, replacing any board with the same id.
func (s *Server) AddBoard(drive models.Drive) {
	d := copyDrive(&drive)
	if d.ImpactData == nil {
		d.ImpactData = models.Fields{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.boards[d.ID] = &d
}

// Board returns a copy of the stored board.
func (s *Server) Board(id string) (models.Drive, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.boards[id]
	if !ok {
		return models.Drive{}, false
	}
	return copyDrive(b), true
}

// Fail injects a failure on route until cleared or exhausted.
func (s *Server) Fail(route Route, f Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = &f
}

// ClearFailures removes every injected failure.
func (s *Server) ClearFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = make(map[Route]*Failure)
}

// takeFailure returns the failure to apply to one request on route, if any.
func (s *Server) takeFailure(route Route) (Failure, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.failures[route]
	if !ok {
		return Failure{}, false
	}
	if f.Times > 0 {
		f.Times--
		if f.Times == 0 {
			delete(s.failures, route)
		}
	}
	return *f, true
}

// Requests returns "METHOD path" for every HTTP request served, in arrival order.
// Socket upgrades are included.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

func (s *Server) record(r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, r.Method+" "+r.URL.Path)
}

// Members returns the participants currently in the room of driveID, sorted by user id.
// A user connected twice is listed once.
func (s *Server) Members(driveID string) []models.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rosterLocked(driveID)
}

func (s *Server) rosterLocked(driveID string) []models.Participant {
	seen := make(map[string]bool)
	var out []models.Participant
	for m := range s.rooms[driveID] {
		if seen[m.userID] {
			continue
		}
		seen[m.userID] = true
		out = append(out, models.Participant{UserID: m.userID, UserName: m.userName})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// ConnectionCount returns the number of open sockets.
func (s *Server) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.members)
}

// DropConnections closes every socket without a close frame, as a network failure would.
// It returns the number of sockets dropped.
func (s *Server) DropConnections() int {
	s.mu.Lock()
	sockets := make([]*gws.Conn, 0, len(s.members))
	for socket := range s.members {
		sockets = append(sockets, socket)
	}
	s.mu.Unlock()

	for _, socket := range sockets {
		if err := socket.NetConn().Close(); err != nil && !isUseOfClosedNetworkError(err) {
			s.logger.Debug("fakeboard failed to drop socket", "error", err)
		}
	}
	return len(sockets)
}

func copyDrive(b *models.Drive) models.Drive {
	d := *b
	d.ImpactData = b.ImpactData.Clone()
	d.Versions = make(map[string]uint64, len(b.Versions))
	for k, v := range b.Versions {
		d.Versions[k] = v
	}
	return d
}

func defaultSummary(d models.Drive) string {
	keys := make([]string, 0, len(d.ImpactData))
	for k := range d.ImpactData {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", k, d.ImpactData[k]))
	}
	return fmt.Sprintf("%s. %s.", d.Heading, strings.Join(parts, ", "))
}

func isUseOfClosedNetworkError(err error) bool {
	return err != nil && (errors.Is(err, net.ErrClosed) || strings.HasSuffix(err.Error(), "use of closed network connection"))
}
