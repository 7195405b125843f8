package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hilthontt/impostor/internal/infrastructure/push"
)

// connWrapper serialises writes; gorilla allows one concurrent writer per connection.
type connWrapper struct {
	conn         *websocket.Conn
	mutex        sync.Mutex
	writeTimeout time.Duration
}

func newConnWrapper(c *websocket.Conn, writeTimeout time.Duration) *connWrapper {
	return &connWrapper{conn: c, writeTimeout: writeTimeout}
}

// Send writes one message as a single JSON text frame.
func (w *connWrapper) Send(msg push.Message) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}

	w.mutex.Lock()
	defer w.mutex.Unlock()

	_ = w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout))
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *connWrapper) Ping() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(w.writeTimeout))
}

// CloseWithCode sends a close frame before closing. Errors are ignored, the peer may be gone.
func (w *connWrapper) CloseWithCode(code int, reason string) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	_ = w.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(w.writeTimeout),
	)
	return w.conn.Close()
}
