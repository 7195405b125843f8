package push

import (
	"context"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hilthontt/impostor/internal/infrastructure/metrics"
)

type StreamKind string

const (
	KindOwner  StreamKind = "owner"
	KindPlayer StreamKind = "player"
)

// DefaultPollInterval is how often a stream re-checks room liveness when nothing wakes it.
const DefaultPollInterval = time.Second

// Hub owns the recipient queues and room liveness shared by every stream.
type Hub struct {
	Recipients *Recipients
	Liveness   *Liveness

	interval time.Duration
	metrics  *metrics.Metrics
}

func NewHub(interval time.Duration, m *metrics.Metrics) *Hub {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	return &Hub{
		Recipients: NewRecipients(m),
		Liveness:   NewLiveness(m),
		interval:   interval,
		metrics:    m,
	}
}

// NewStream registers userID as a recipient and returns a stream bound to roomID.
// onDisconnect runs exactly once, when the stream ends for any reason.
func (h *Hub) NewStream(kind StreamKind, userID, roomID string, onDisconnect func()) *Stream {
	h.Recipients.Register(userID)

	return &Stream{
		kind:         kind,
		userID:       userID,
		roomID:       roomID,
		hub:          h,
		onDisconnect: onDisconnect,
	}
}

// Shutdown marks every alive room dead, which ends all open streams. Disconnect callbacks
// still run but find their rooms dead.
func (h *Hub) Shutdown() {
	for _, id := range h.Liveness.Alive() {
		h.Liveness.MarkDead(id)
	}
}

// Stream is the server side of one push connection.
type Stream struct {
	kind         StreamKind
	userID       string
	roomID       string
	hub          *Hub
	onDisconnect func()

	started atomic.Bool
	once    sync.Once
}

func (s *Stream) Kind() StreamKind { return s.kind }
func (s *Stream) UserID() string   { return s.userID }
func (s *Stream) RoomID() string   { return s.roomID }

// Messages yields messages for the stream's user until the stream ends. Cancelling ctx means
// the transport disconnected; a yield returning false means delivery failed. Both end the
// stream. The sequence can be ranged over once; later calls yield nothing.
func (s *Stream) Messages(ctx context.Context) iter.Seq[Message] {
	return func(yield func(Message) bool) {
		if !s.started.CompareAndSwap(false, true) {
			return
		}

		s.hub.metrics.StreamOpened(string(s.kind))
		defer s.hub.metrics.StreamClosed(string(s.kind))
		defer s.Close()

		deliver := func(msg Message) bool {
			if !yield(msg) {
				return false
			}
			s.hub.metrics.MessageDelivered(string(msg.Type))
			return true
		}

		switch s.kind {
		case KindOwner:
			s.runOwner(ctx, deliver)
		default:
			s.runPlayer(ctx, deliver)
		}
	}
}

// Pump sends every message through send until the stream ends and returns the send error
// that ended it, if any.
func (s *Stream) Pump(ctx context.Context, send func(Message) error) error {
	var sendErr error
	for msg := range s.Messages(ctx) {
		if err := send(msg); err != nil {
			sendErr = err
			break
		}
	}
	return sendErr
}

// Close runs the disconnect callback if it has not run yet. It is for transports that fail
// before they start ranging over Messages.
func (s *Stream) Close() {
	s.once.Do(func() {
		if s.onDisconnect != nil {
			s.onDisconnect()
		}
	})
}

func (s *Stream) runOwner(ctx context.Context, deliver func(Message) bool) {
	ticker := time.NewTicker(s.hub.interval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil || !s.hub.Liveness.IsAlive(s.roomID) {
			return
		}
		if !s.flush(deliver) {
			return
		}
		if !s.wait(ctx, ticker) {
			return
		}
	}
}

func (s *Stream) runPlayer(ctx context.Context, deliver func(Message) bool) {
	ticker := time.NewTicker(s.hub.interval)
	defer ticker.Stop()

	for {
		if !s.hub.Liveness.IsAlive(s.roomID) {
			// whatever was queued before the room died still goes out
			s.flush(deliver)
			return
		}
		if !s.flush(deliver) {
			return
		}
		if !s.wait(ctx, ticker) {
			return
		}
	}
}

func (s *Stream) flush(deliver func(Message) bool) bool {
	for _, msg := range s.hub.Recipients.DequeueAll(s.userID) {
		if !deliver(msg) {
			return false
		}
	}
	return true
}

func (s *Stream) wait(ctx context.Context, ticker *time.Ticker) bool {
	select {
	case <-ctx.Done():
		return false
	case <-s.hub.Recipients.Wake(s.userID):
	case <-ticker.C:
	}
	return true
}
