package messaging

import "github.com/hilthontt/impostor/internal/domain"

const (
	RoomsQueue      = "rooms"
	DeadLetterQueue = "dead_letter_queue"
)

type RoomEventData struct {
	Event domain.RoomEvent `json:"event"`
}
