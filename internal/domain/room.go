package domain

import (
	"time"
)

const (
	// RoomCodeLength is the length of a join code.
	RoomCodeLength = 8
	// MinParticipants is the smallest startable room: the owner plus two players.
	MinParticipants = 3
)

type RoomState string

const (
	StateLobby   RoomState = "LOBBY"
	StateInRound RoomState = "IN_ROUND"
	StateClosed  RoomState = "CLOSED"
)

type Room struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"ownerId"`
	Available bool      `json:"available"`
	CreatedAt time.Time `json:"createdAt"`
}

// State derives the lifecycle state from availability. Closed rooms are gone from the
// store, so a Room value is never CLOSED.
func (r *Room) State() RoomState {
	if r.Available {
		return StateLobby
	}
	return StateInRound
}

func (r *Room) IsOwner(userID string) bool {
	return r != nil && r.OwnerID == userID
}
