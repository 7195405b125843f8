package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type RoomEventType string

const (
	EventRoomCreated  RoomEventType = "room_created"
	EventRoomClosed   RoomEventType = "room_closed"
	EventMemberJoined RoomEventType = "member_joined"
	EventMemberLeft   RoomEventType = "member_left"
	EventRoundStarted RoomEventType = "round_started"
	EventRoundEnded   RoomEventType = "round_ended"
	EventRoundStopped RoomEventType = "round_stopped"
)

type RoomAuditLog struct {
	ID        string         `bson:"_id" json:"id"`
	RoomID    string         `bson:"room_id" json:"roomId"`
	EventType RoomEventType  `bson:"event_type" json:"eventType"`
	Timestamp time.Time      `bson:"timestamp" json:"timestamp"`
	Metadata  map[string]any `bson:"metadata,omitempty" json:"metadata,omitempty"`
}

type RoomAuditRepository interface {
	Log(ctx context.Context, log *RoomAuditLog) error
	GetByRoomID(ctx context.Context, roomID string, limit int) ([]RoomAuditLog, error)
	GetByEventType(ctx context.Context, eventType RoomEventType, from, to time.Time) ([]RoomAuditLog, error)
	DeleteOlderThan(ctx context.Context, before time.Time) error
	EnsureIndexes(ctx context.Context) error
}

// RoomEvent is what the lifecycle publishes after each successful transition.
type RoomEvent struct {
	Type       RoomEventType `json:"type"`
	RoomID     string        `json:"roomId"`
	OwnerID    string        `json:"ownerId"`
	UserName   string        `json:"userName,omitempty"`
	Players    int           `json:"players"`
	OccurredAt time.Time     `json:"occurredAt"`
}

// EventPublisher is the outbound side of room events. Publishing is best-effort.
type EventPublisher interface {
	Publish(ctx context.Context, event RoomEvent) error
}

func NewRoomAuditLog(event RoomEvent) *RoomAuditLog {
	metadata := map[string]any{
		"owner_id": event.OwnerID,
		"players":  event.Players,
	}
	if event.UserName != "" {
		metadata["user_name"] = event.UserName
	}

	ts := event.OccurredAt
	if ts.IsZero() {
		ts = time.Now()
	}

	return &RoomAuditLog{
		ID:        uuid.NewString(),
		RoomID:    event.RoomID,
		EventType: event.Type,
		Timestamp: ts,
		Metadata:  metadata,
	}
}
