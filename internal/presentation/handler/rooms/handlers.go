package rooms

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hilthontt/impostor/internal/application/lifecycle"
	"github.com/hilthontt/impostor/internal/domain"
	"github.com/hilthontt/impostor/internal/infrastructure/json"
	"github.com/hilthontt/impostor/internal/infrastructure/logging"
	"github.com/hilthontt/impostor/internal/infrastructure/profanity"
	"github.com/hilthontt/impostor/internal/presentation/utils"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

// Lifecycle is the part of the room manager the REST handlers drive.
type Lifecycle interface {
	Create(ctx context.Context, ownerName, roomName string) (*lifecycle.CreateResult, error)
	Join(ctx context.Context, code, userName string) (*domain.User, error)
	Start(ctx context.Context, ownerID string) error
	End(ctx context.Context, ownerID string) error
	Close(ctx context.Context, ownerID string) error
	Snapshot(ctx context.Context, roomID, userID string) (*lifecycle.Snapshot, error)
	Rooms(ctx context.Context) ([]domain.Room, error)
	Users(ctx context.Context) ([]domain.User, error)
}

type Handler struct {
	lifecycle  Lifecycle
	audit      domain.RoomAuditRepository
	logger     logging.Logger
	validators validators
}

// NewHandler builds the REST handlers. audit may be nil when the audit log is disabled.
func NewHandler(
	lifecycle Lifecycle,
	audit domain.RoomAuditRepository,
	filter *profanity.ProfanityFilter,
	logger logging.Logger,
) *Handler {
	return &Handler{
		lifecycle:  lifecycle,
		audit:      audit,
		logger:     logger,
		validators: newValidators(filter),
	}
}

// CreateRoomHandler godoc
// @Summary      Create a new room
// @Description  Creates the owner and a room with a fresh join code and marks the room alive
// @Tags         rooms
// @Accept       json
// @Produce      json
// @Param        request body createRoomRequest true "Owner and room names"
// @Success      201 {object} createRoomResponse "Room created successfully"
// @Failure      400 {object} map[string]interface{} "Bad request - validation error"
// @Failure      500 {object} map[string]interface{} "Internal server error"
// @Router       /room [post]
func (h *Handler) CreateRoomHandler(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.Read(r, &req); err != nil {
		json.WriteValidationError(w, err)
		return
	}

	req.OwnerName = strings.TrimSpace(req.OwnerName)
	req.RoomName = strings.TrimSpace(req.RoomName)

	if err := h.validators.ownerName(req.OwnerName); err != nil {
		json.WriteValidationError(w, err)
		return
	}
	if err := h.validators.roomName(req.RoomName); err != nil {
		json.WriteValidationError(w, err)
		return
	}

	res, err := h.lifecycle.Create(r.Context(), req.OwnerName, req.RoomName)
	if err != nil {
		utils.WriteDomainError(w, r, h.logger, err)
		return
	}

	_ = json.Write(w, http.StatusCreated, createRoomResponse{
		RoomID:   res.Room.ID,
		RoomCode: res.Room.Code,
		OwnerID:  res.Owner.ID,
	})
}

// ListRoomsHandler godoc
// @Summary      List rooms
// @Description  Lists every room in the store, including owner identifiers
// @Tags         rooms
// @Produce      json
// @Success      200 {object} roomsResponse
// @Failure      500 {object} map[string]interface{} "Internal server error"
// @Router       /room [get]
func (h *Handler) ListRoomsHandler(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.lifecycle.Rooms(r.Context())
	if err != nil {
		utils.WriteDomainError(w, r, h.logger, err)
		return
	}

	resp := roomsResponse{Rooms: make([]roomResponse, 0, len(rooms))}
	for _, room := range rooms {
		resp.Rooms = append(resp.Rooms, roomResponse{
			ID:        room.ID,
			Code:      room.Code,
			Name:      room.Name,
			OwnerID:   room.OwnerID,
			Available: room.Available,
			State:     string(room.State()),
			CreatedAt: room.CreatedAt,
		})
	}

	_ = json.Write(w, http.StatusOK, resp)
}

// GetRoomHandler godoc
// @Summary      Describe a room
// @Description  Returns the room state and participant names to one of its participants
// @Tags         rooms
// @Produce      json
// @Param        roomId  path   string true "Room ID"
// @Param        user_id query  string true "Requesting participant"
// @Success      200 {object} snapshotResponse
// @Failure      400 {object} map[string]interface{} "Bad request - missing user_id"
// @Failure      403 {object} map[string]interface{} "Forbidden - user is not in the room"
// @Failure      404 {object} map[string]interface{} "Room or user not found"
// @Router       /room/{roomId} [get]
func (h *Handler) GetRoomHandler(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		json.WriteBadRequestError(w, "user_id query parameter is required")
		return
	}

	snapshot, err := h.lifecycle.Snapshot(r.Context(), roomID, userID)
	if err != nil {
		utils.WriteDomainError(w, r, h.logger, err)
		return
	}

	players := make([]string, 0, len(snapshot.Players))
	for _, p := range snapshot.Players {
		players = append(players, p.Name)
	}

	_ = json.Write(w, http.StatusOK, snapshotResponse{
		RoomID:    snapshot.Room.ID,
		RoomCode:  snapshot.Room.Code,
		RoomName:  snapshot.Room.Name,
		State:     string(snapshot.State),
		Alive:     snapshot.Alive,
		OwnerName: snapshot.Owner.Name,
		Players:   players,
	})
}

// GetAuditLogHandler godoc
// @Summary      Room audit log
// @Description  Returns the most recent audit entries recorded for a room
// @Tags         rooms
// @Produce      json
// @Param        roomId path  string true  "Room ID"
// @Param        limit  query int    false "Maximum entries (1-500, default 50)"
// @Success      200 {object} auditResponse
// @Failure      400 {object} map[string]interface{} "Bad request - invalid limit"
// @Failure      503 {object} map[string]interface{} "Audit log disabled"
// @Router       /room/{roomId}/audit [get]
func (h *Handler) GetAuditLogHandler(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		json.WriteError(w, http.StatusServiceUnavailable, errors.New("audit disabled"), "The audit log is not enabled")
		return
	}

	roomID := chi.URLParam(r, "roomId")

	limit := defaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxAuditLimit {
			json.WriteBadRequestError(w, "limit must be between 1 and "+strconv.Itoa(maxAuditLimit))
			return
		}
		limit = n
	}

	logs, err := h.audit.GetByRoomID(r.Context(), roomID, limit)
	if err != nil {
		utils.WriteDomainError(w, r, h.logger, err)
		return
	}

	resp := auditResponse{RoomID: roomID, Entries: make([]auditEntryResponse, 0, len(logs))}
	for _, l := range logs {
		resp.Entries = append(resp.Entries, auditEntryResponse{
			EventType: string(l.EventType),
			Timestamp: l.Timestamp,
			Metadata:  l.Metadata,
		})
	}

	_ = json.Write(w, http.StatusOK, resp)
}

// JoinRoomHandler godoc
// @Summary      Join a room
// @Description  Creates a player in the room with the given join code and notifies the owner
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        request body joinRoomRequest true "Player name and join code"
// @Success      201 {object} joinRoomResponse "Joined successfully"
// @Failure      400 {object} map[string]interface{} "Bad request - validation error"
// @Failure      403 {object} map[string]interface{} "Forbidden - a round is in progress"
// @Failure      404 {object} map[string]interface{} "No room with that code"
// @Failure      409 {object} map[string]interface{} "Conflict - name already taken in the room"
// @Router       /user [post]
func (h *Handler) JoinRoomHandler(w http.ResponseWriter, r *http.Request) {
	var req joinRoomRequest
	if err := json.Read(r, &req); err != nil {
		json.WriteValidationError(w, err)
		return
	}

	req.UserName = strings.TrimSpace(req.UserName)
	req.RoomCode = strings.TrimSpace(req.RoomCode)

	if err := h.validators.userName(req.UserName); err != nil {
		json.WriteValidationError(w, err)
		return
	}
	if err := h.validators.roomCode(req.RoomCode); err != nil {
		json.WriteValidationError(w, err)
		return
	}

	user, err := h.lifecycle.Join(r.Context(), req.RoomCode, req.UserName)
	if err != nil {
		utils.WriteDomainError(w, r, h.logger, err)
		return
	}

	_ = json.Write(w, http.StatusCreated, joinRoomResponse{
		UserID: user.ID,
		RoomID: user.RoomID,
	})
}

// ListUsersHandler godoc
// @Summary      List users
// @Description  Lists every user in the store, including identifiers
// @Tags         users
// @Produce      json
// @Success      200 {object} usersResponse
// @Failure      500 {object} map[string]interface{} "Internal server error"
// @Router       /user [get]
func (h *Handler) ListUsersHandler(w http.ResponseWriter, r *http.Request) {
	users, err := h.lifecycle.Users(r.Context())
	if err != nil {
		utils.WriteDomainError(w, r, h.logger, err)
		return
	}

	resp := usersResponse{Users: make([]userResponse, 0, len(users))}
	for _, u := range users {
		resp.Users = append(resp.Users, userResponse{
			ID:        u.ID,
			Name:      u.Name,
			RoomID:    u.RoomID,
			CreatedAt: u.CreatedAt,
		})
	}

	_ = json.Write(w, http.StatusOK, resp)
}

// StartHandler godoc
// @Summary      Start a round
// @Description  Picks one impostor among all participants and sends everyone else the secret word
// @Tags         game
// @Accept       json
// @Produce      json
// @Param        request body ownerRequest true "Owner ID"
// @Success      200 {object} messageResponse "Game started"
// @Failure      403 {object} map[string]interface{} "Forbidden - not the owner, round running or too few participants"
// @Failure      404 {object} map[string]interface{} "Owner or room not found"
// @Failure      500 {object} map[string]interface{} "Internal server error"
// @Router       /start [post]
func (h *Handler) StartHandler(w http.ResponseWriter, r *http.Request) {
	h.ownerAction(w, r, h.lifecycle.Start, "Game started")
}

// EndHandler godoc
// @Summary      End a round
// @Description  Reopens the room and tells every player the round is over
// @Tags         game
// @Accept       json
// @Produce      json
// @Param        request body ownerRequest true "Owner ID"
// @Success      200 {object} messageResponse "Game ended"
// @Failure      403 {object} map[string]interface{} "Forbidden - not the owner or no round running"
// @Failure      404 {object} map[string]interface{} "Owner or room not found"
// @Router       /end [post]
func (h *Handler) EndHandler(w http.ResponseWriter, r *http.Request) {
	h.ownerAction(w, r, h.lifecycle.End, "Game ended")
}

// CloseHandler godoc
// @Summary      Close a room
// @Description  Sends close to every player, then deletes the room and its players
// @Tags         game
// @Accept       json
// @Produce      json
// @Param        request body ownerRequest true "Owner ID"
// @Success      200 {object} messageResponse "Room closed"
// @Failure      403 {object} map[string]interface{} "Forbidden - not the owner"
// @Failure      404 {object} map[string]interface{} "Owner or room not found"
// @Router       /close [post]
func (h *Handler) CloseHandler(w http.ResponseWriter, r *http.Request) {
	h.ownerAction(w, r, h.lifecycle.Close, "Room closed")
}

func (h *Handler) ownerAction(
	w http.ResponseWriter,
	r *http.Request,
	action func(ctx context.Context, ownerID string) error,
	done string,
) {
	var req ownerRequest
	if err := json.Read(r, &req); err != nil {
		json.WriteValidationError(w, err)
		return
	}

	if err := h.validators.ownerID(req.OwnerID); err != nil {
		json.WriteValidationError(w, err)
		return
	}

	if err := action(r.Context(), req.OwnerID); err != nil {
		utils.WriteDomainError(w, r, h.logger, err)
		return
	}

	_ = json.Write(w, http.StatusOK, messageResponse{Message: done})
}
