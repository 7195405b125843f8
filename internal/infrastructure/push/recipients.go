package push

import (
	"sync"

	"github.com/hilthontt/impostor/internal/infrastructure/metrics"
)

type queue struct {
	mu       sync.Mutex
	messages []Message
	// wake holds at most one pending signal; producers never block on it.
	wake chan struct{}
}

// Recipients holds one FIFO queue per user with an open push connection. Messages for a
// user without a queue are dropped.
type Recipients struct {
	mu      sync.RWMutex
	queues  map[string]*queue
	metrics *metrics.Metrics
}

func NewRecipients(m *metrics.Metrics) *Recipients {
	return &Recipients{
		queues:  make(map[string]*queue),
		metrics: m,
	}
}

// Register creates an empty queue for userID. Registering twice keeps the existing queue.
func (r *Recipients) Register(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.queues[userID]; ok {
		return
	}
	r.queues[userID] = &queue{wake: make(chan struct{}, 1)}
}

// Unregister discards the queue and anything still in it.
func (r *Recipients) Unregister(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.queues, userID)
}

func (r *Recipients) IsRegistered(userID string) bool {
	return r.get(userID) != nil
}

// Enqueue appends msg to the user's queue and reports whether it was accepted.
func (r *Recipients) Enqueue(userID string, msg Message) bool {
	q := r.get(userID)
	if q == nil {
		r.metrics.MessageDropped()
		return false
	}

	q.mu.Lock()
	q.messages = append(q.messages, msg)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// DequeueAll removes and returns every queued message in arrival order.
func (r *Recipients) DequeueAll(userID string) []Message {
	q := r.get(userID)
	if q == nil {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.messages
	q.messages = nil
	return out
}

// Wake returns a channel that receives after an Enqueue for userID. It is nil when the user
// is not registered, so selecting on it never fires.
func (r *Recipients) Wake(userID string) <-chan struct{} {
	q := r.get(userID)
	if q == nil {
		return nil
	}
	return q.wake
}

func (r *Recipients) Len(userID string) int {
	q := r.get(userID)
	if q == nil {
		return 0
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}

func (r *Recipients) get(userID string) *queue {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.queues[userID]
}
