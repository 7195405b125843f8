package rooms

import "time"

type createRoomRequest struct {
	OwnerName string `json:"owner_name"`
	RoomName  string `json:"room_name"`
}

type createRoomResponse struct {
	RoomID   string `json:"room_id"`
	RoomCode string `json:"room_code"`
	OwnerID  string `json:"owner_id"`
}

type joinRoomRequest struct {
	UserName string `json:"user_name"`
	RoomCode string `json:"room_code"`
}

type joinRoomResponse struct {
	UserID string `json:"user_id"`
	RoomID string `json:"room_id"`
}

type ownerRequest struct {
	OwnerID string `json:"owner_id"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type roomResponse struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"owner_id"`
	Available bool      `json:"available"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

type roomsResponse struct {
	Rooms []roomResponse `json:"rooms"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	RoomID    string    `json:"room_id"`
	CreatedAt time.Time `json:"created_at"`
}

type usersResponse struct {
	Users []userResponse `json:"users"`
}

// snapshotResponse is shown to participants, so it carries names but no user IDs.
type snapshotResponse struct {
	RoomID    string   `json:"room_id"`
	RoomCode  string   `json:"room_code"`
	RoomName  string   `json:"room_name"`
	State     string   `json:"state"`
	Alive     bool     `json:"alive"`
	OwnerName string   `json:"owner_name"`
	Players   []string `json:"players"`
}

type auditEntryResponse struct {
	EventType string         `json:"event_type"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type auditResponse struct {
	RoomID  string               `json:"room_id"`
	Entries []auditEntryResponse `json:"entries"`
}
