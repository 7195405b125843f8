package contracts

// AmqpMessage is the message structure for AMQP.
type AmqpMessage struct {
	RoomID  string `json:"roomId"`
	OwnerID string `json:"ownerId"`
	Data    []byte `json:"data"`
}

// Routing keys - using consistent event/command patterns
const (
	EventRoomCreated  = "room.created"
	EventRoomClosed   = "room.closed"
	EventMemberJoined = "member.joined"
	EventMemberLeft   = "member.left"
	EventRoundStarted = "round.started"
	EventRoundEnded   = "round.ended"
	EventRoundStopped = "round.stopped"
)

// RoomRoutingKeys is every key the rooms queue is bound to.
var RoomRoutingKeys = []string{
	EventRoomCreated,
	EventRoomClosed,
	EventMemberJoined,
	EventMemberLeft,
	EventRoundStarted,
	EventRoundEnded,
	EventRoundStopped,
}
