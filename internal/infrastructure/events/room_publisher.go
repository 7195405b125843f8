package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hilthontt/impostor/internal/domain"
	"github.com/hilthontt/impostor/internal/infrastructure/contracts"
	"github.com/hilthontt/impostor/internal/infrastructure/messaging"
	"github.com/hilthontt/impostor/internal/infrastructure/metrics"
)

var routingKeys = map[domain.RoomEventType]string{
	domain.EventRoomCreated:  contracts.EventRoomCreated,
	domain.EventRoomClosed:   contracts.EventRoomClosed,
	domain.EventMemberJoined: contracts.EventMemberJoined,
	domain.EventMemberLeft:   contracts.EventMemberLeft,
	domain.EventRoundStarted: contracts.EventRoundStarted,
	domain.EventRoundEnded:   contracts.EventRoundEnded,
	domain.EventRoundStopped: contracts.EventRoundStopped,
}

// RoutingKey maps an event type to its routing key on the room exchange.
func RoutingKey(t domain.RoomEventType) (string, bool) {
	key, ok := routingKeys[t]
	return key, ok
}

type publisher interface {
	PublishMessage(ctx context.Context, routingKey string, message contracts.AmqpMessage) error
}

type RoomPublisher struct {
	rabbitmq publisher
	metrics  *metrics.Metrics
}

func NewRoomPublisher(rabbitmq *messaging.RabbitMQ, m *metrics.Metrics) *RoomPublisher {
	return &RoomPublisher{
		rabbitmq: rabbitmq,
		metrics:  m,
	}
}

func (p *RoomPublisher) Publish(ctx context.Context, event domain.RoomEvent) error {
	err := p.publish(ctx, event)
	p.metrics.EventPublished(err)
	return err
}

func (p *RoomPublisher) publish(ctx context.Context, event domain.RoomEvent) error {
	key, ok := RoutingKey(event.Type)
	if !ok {
		return fmt.Errorf("unknown room event type %q", event.Type)
	}

	payload := messaging.RoomEventData{
		Event: event,
	}

	roomEventJSON, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return p.rabbitmq.PublishMessage(ctx, key, contracts.AmqpMessage{
		RoomID:  event.RoomID,
		OwnerID: event.OwnerID,
		Data:    roomEventJSON,
	})
}

type nopPublisher struct{}

// NewNopPublisher discards every event. It is used when RabbitMQ is disabled.
func NewNopPublisher() domain.EventPublisher {
	return nopPublisher{}
}

func (nopPublisher) Publish(context.Context, domain.RoomEvent) error { return nil }
