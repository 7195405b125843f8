package push

import (
	"sync"

	"github.com/hilthontt/impostor/internal/infrastructure/metrics"
)

// Liveness tracks which rooms are alive. Only alive rooms are held, so closed rooms cost
// nothing. Room IDs are never reused, which keeps a dead room from coming back.
type Liveness struct {
	mu      sync.RWMutex
	alive   map[string]struct{}
	metrics *metrics.Metrics
}

func NewLiveness(m *metrics.Metrics) *Liveness {
	return &Liveness{
		alive:   make(map[string]struct{}),
		metrics: m,
	}
}

// MarkAlive reports false when the room was already alive.
func (l *Liveness) MarkAlive(roomID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.alive[roomID]; ok {
		return false
	}

	l.alive[roomID] = struct{}{}
	l.metrics.RoomAlive()
	return true
}

// MarkDead reports whether this call moved the room from alive to dead.
func (l *Liveness) MarkDead(roomID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.alive[roomID]; !ok {
		return false
	}

	delete(l.alive, roomID)
	l.metrics.RoomDead()
	return true
}

func (l *Liveness) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.alive)
}

func (l *Liveness) IsAlive(roomID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	_, ok := l.alive[roomID]
	return ok
}

// Alive returns a snapshot of the alive room identifiers.
func (l *Liveness) Alive() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ids := make([]string, 0, len(l.alive))
	for id := range l.alive {
		ids = append(ids, id)
	}
	return ids
}
