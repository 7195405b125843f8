package ws

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hilthontt/impostor/internal/infrastructure/logging"
	"github.com/hilthontt/impostor/internal/infrastructure/push"
)

const (
	defaultWriteTimeout = 10 * time.Second
	defaultPongWait     = 60 * time.Second
	maxMessageSize      = 512
)

type Options struct {
	WriteTimeout time.Duration
	// PongWait is how long the peer may stay silent. Pings go out at 9/10 of it.
	PongWait time.Duration
}

// Client carries one push stream over an upgraded connection.
type Client struct {
	conn   *connWrapper
	raw    *websocket.Conn
	stream *push.Stream
	logger logging.Logger

	pongWait time.Duration
}

func NewClient(conn *websocket.Conn, stream *push.Stream, logger logging.Logger, opts Options) *Client {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.PongWait <= 0 {
		opts.PongWait = defaultPongWait
	}

	return &Client{
		conn:     newConnWrapper(conn, opts.WriteTimeout),
		raw:      conn,
		stream:   stream,
		logger:   logger,
		pongWait: opts.PongWait,
	}
}

// Serve blocks until the stream ends. A read error or a close frame from the peer counts as
// a disconnect; the stream's callback then runs before Serve returns.
func (c *Client) Serve(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.readPump(cancel)
	go c.pingLoop(ctx)

	err := c.stream.Pump(ctx, c.conn.Send)
	if err != nil {
		c.logger.Debug(logging.Stream, logging.Delivery, "websocket write failed", map[logging.ExtraKey]any{
			logging.UserID:       c.stream.UserID(),
			logging.RoomID:       c.stream.RoomID(),
			logging.ErrorMessage: err.Error(),
		})
	}

	_ = c.conn.CloseWithCode(websocket.CloseNormalClosure, "stream ended")
}

// readPump drains and discards client frames; the protocol is server to client only.
func (c *Client) readPump(disconnected context.CancelFunc) {
	defer disconnected()

	c.raw.SetReadLimit(maxMessageSize)
	_ = c.raw.SetReadDeadline(time.Now().Add(c.pongWait))
	c.raw.SetPongHandler(func(string) error {
		return c.raw.SetReadDeadline(time.Now().Add(c.pongWait))
	})

	for {
		if _, _, err := c.raw.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Debug(logging.Stream, logging.Disconnect, "websocket read failed", map[logging.ExtraKey]any{
					logging.UserID:       c.stream.UserID(),
					logging.ErrorMessage: err.Error(),
				})
			}
			return
		}
	}
}

func (c *Client) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(c.pongWait * 9 / 10)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.conn.Ping(); err != nil {
				return
			}
		}
	}
}
