package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hilthontt/impostor/internal/domain"
	"github.com/hilthontt/impostor/internal/infrastructure/contracts"
	"github.com/hilthontt/impostor/internal/infrastructure/logging"
	"github.com/hilthontt/impostor/internal/infrastructure/messaging"
	"github.com/rabbitmq/amqp091-go"
)

type RoomConsumer struct {
	rabbitmq *messaging.RabbitMQ
	audit    domain.RoomAuditRepository
	logger   logging.Logger
}

func NewRoomConsumer(rabbitmq *messaging.RabbitMQ, audit domain.RoomAuditRepository, logger logging.Logger) *RoomConsumer {
	return &RoomConsumer{
		rabbitmq: rabbitmq,
		audit:    audit,
		logger:   logger,
	}
}

// Listen consumes the rooms queue until ctx is done.
func (c *RoomConsumer) Listen(ctx context.Context) error {
	return c.rabbitmq.ConsumeMessages(ctx, messaging.RoomsQueue, c.Handle)
}

// Handle writes one room event to the audit log.
func (c *RoomConsumer) Handle(ctx context.Context, msg amqp091.Delivery) error {
	var message contracts.AmqpMessage
	if err := json.Unmarshal(msg.Body, &message); err != nil {
		c.logFailure(msg.RoutingKey, err)
		return fmt.Errorf("failed to unmarshal message: %w", err)
	}

	var payload messaging.RoomEventData
	if err := json.Unmarshal(message.Data, &payload); err != nil {
		c.logFailure(msg.RoutingKey, err)
		return fmt.Errorf("failed to unmarshal room event: %w", err)
	}

	if key, ok := RoutingKey(payload.Event.Type); !ok || key != msg.RoutingKey {
		err := fmt.Errorf("event type %q does not match routing key %q", payload.Event.Type, msg.RoutingKey)
		c.logFailure(msg.RoutingKey, err)
		return err
	}

	if err := c.audit.Log(ctx, domain.NewRoomAuditLog(payload.Event)); err != nil {
		c.logFailure(msg.RoutingKey, err)
		return err
	}

	c.logger.Debug(logging.RabbitMQ, logging.Consume, "room event audited", map[logging.ExtraKey]any{
		logging.RoutingKey: msg.RoutingKey,
		logging.RoomID:     payload.Event.RoomID,
	})
	return nil
}

func (c *RoomConsumer) logFailure(routingKey string, err error) {
	c.logger.Error(logging.RabbitMQ, logging.Consume, "failed to handle room event", map[logging.ExtraKey]any{
		logging.RoutingKey:   routingKey,
		logging.ErrorMessage: err.Error(),
	})
}
