package fakeboard

import (
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"

	"github.com/greendrive/impactboard/contrib/testenv"
	"github.com/greendrive/impactboard/pkg/auth"
	"github.com/greendrive/impactboard/pkg/constants"
	"github.com/greendrive/impactboard/pkg/models"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_, _ = w.Write(response)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, models.ErrorResponse{Error: message})
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(h, "Bearer ")
}

// authenticate decodes the caller's credential, or answers 401 and returns false.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (models.Identity, bool) {
	id, err := auth.DecodeIdentity(bearer(r))
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Invalid or missing token")
		return models.Identity{}, false
	}
	return id, true
}

// begin records the request, applies an injected failure and authenticates.
func (s *Server) begin(route Route, w http.ResponseWriter, r *http.Request) (models.Identity, bool) {
	s.record(r)

	if f, ok := s.takeFailure(route); ok {
		respondError(w, f.Status, f.Message)
		return models.Identity{}, false
	}
	return s.authenticate(w, r)
}

func (s *Server) handleGetBoard(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.begin(RouteGet, w, r); !ok {
		return
	}

	drive, ok := s.Board(mux.Vars(r)["id"])
	if !ok {
		respondError(w, http.StatusNotFound, "Drive not found")
		return
	}
	respondJSON(w, http.StatusOK, models.DocumentResponse{Drive: drive})
}

func (s *Server) handleUpdateField(w http.ResponseWriter, r *http.Request) {
	id, ok := s.begin(RouteUpdate, w, r)
	if !ok {
		return
	}

	var req models.FieldUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Field == "" {
		respondError(w, http.StatusBadRequest, "Field name is required")
		return
	}

	driveID := mux.Vars(r)["id"]

	s.mu.Lock()
	board, exists := s.boards[driveID]
	switch {
	case !exists:
		s.mu.Unlock()
		respondError(w, http.StatusNotFound, "Drive not found")
		return
	case board.IsFinalized:
		s.mu.Unlock()
		respondError(w, http.StatusConflict, "Impact board is already finished")
		return
	}
	if board.Versions == nil {
		board.Versions = make(map[string]uint64)
	}
	board.ImpactData[req.Field] = req.Value
	board.Versions[req.Field]++
	version := board.Versions[req.Field]
	room := s.roomLocked(driveID, nil)
	s.mu.Unlock()

	// every member gets the update, the writer included; clients drop their own echo
	broadcast(s.logger, room, constants.EventBoardUpdate, models.BoardUpdateEvent{
		Field:   req.Field,
		Value:   req.Value,
		UserID:  id.UserID,
		Version: version,
	})

	respondJSON(w, http.StatusOK, models.FieldUpdateResponse{Field: req.Field, Version: version})
}

func (s *Server) handleFinish(w http.ResponseWriter, r *http.Request) {
	id, ok := s.begin(RouteFinish, w, r)
	if !ok {
		return
	}

	driveID := mux.Vars(r)["id"]

	s.mu.Lock()
	board, exists := s.boards[driveID]
	switch {
	case !exists:
		s.mu.Unlock()
		respondError(w, http.StatusNotFound, "Drive not found")
		return
	case board.CreatedBy != id.UserID:
		s.mu.Unlock()
		respondError(w, http.StatusForbidden, "Only the drive creator can finish the impact board")
		return
	case board.IsFinalized:
		s.mu.Unlock()
		respondError(w, http.StatusConflict, "Impact board is already finished")
		return
	}
	board.IsFinalized = true
	board.Summary = s.Summarize(copyDrive(board))
	summary := board.Summary
	room := s.roomLocked(driveID, nil)
	s.mu.Unlock()

	broadcast(s.logger, room, constants.EventBoardFinalized, models.BoardFinalizedEvent{DriveID: driveID})

	respondJSON(w, http.StatusOK, models.FinalizeResponse{
		Message: "Impact board finished",
		Summary: summary,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	id, ok := s.begin(RouteRefresh, w, r)
	if !ok {
		return
	}

	now := time.Now()
	token := testenv.MintClaims(testenv.Claims{
		ID:                id.UserID,
		Name:              id.UserName,
		Email:             id.Email,
		Role:              id.Role,
		ProfilePictureURL: id.ProfilePictureURL,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.TokenTTL)),
		},
	})
	respondJSON(w, http.StatusOK, map[string]string{"token": token})
}
