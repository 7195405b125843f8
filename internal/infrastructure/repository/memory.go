package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hilthontt/impostor/internal/domain"
)

type memoryUser struct {
	user domain.User
	seq  uint64
}

type memoryStore struct {
	users     map[string]*memoryUser  // ID -> User
	rooms     map[string]*domain.Room // ID -> Room
	codeIndex map[string]string       // Code -> room ID
	seq       uint64
	mu        *sync.RWMutex
}

// NewMemoryStore returns a Store that keeps everything in process memory.
func NewMemoryStore() domain.Store {
	return &memoryStore{
		users:     make(map[string]*memoryUser),
		rooms:     make(map[string]*domain.Room),
		codeIndex: make(map[string]string),
		mu:        &sync.RWMutex{},
	}
}

func (s *memoryStore) CreateUser(ctx context.Context, name string, roomID string) (*domain.User, error) {
	if name == "" {
		return nil, domain.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if roomID != "" {
		if _, exists := s.rooms[roomID]; !exists {
			return nil, fmt.Errorf("room %s: %w", roomID, domain.ErrNotFound)
		}
	}

	s.seq++
	u := &memoryUser{
		user: domain.User{
			ID:        uuid.NewString(),
			Name:      name,
			RoomID:    roomID,
			CreatedAt: time.Now().UTC(),
		},
		seq: s.seq,
	}
	s.users[u.user.ID] = u

	out := u.user
	return &out, nil
}

func (s *memoryStore) GetUser(ctx context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, exists := s.users[id]
	if !exists {
		return nil, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}

	out := u.user
	return &out, nil
}

func (s *memoryStore) SetUserRoom(ctx context.Context, userID, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, exists := s.users[userID]
	if !exists {
		return fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
	}
	if _, exists := s.rooms[roomID]; !exists {
		return fmt.Errorf("room %s: %w", roomID, domain.ErrNotFound)
	}

	u.user.RoomID = roomID
	return nil
}

func (s *memoryStore) DeleteUser(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[id]; !exists {
		return fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}

	delete(s.users, id)
	return nil
}

func (s *memoryStore) ListUsers(ctx context.Context) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.sortedUsers(func(*domain.User) bool { return true }), nil
}

func (s *memoryStore) CreateRoom(ctx context.Context, code, name, ownerID string) (*domain.Room, error) {
	if code == "" || name == "" || ownerID == "" {
		return nil, domain.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.codeIndex[code]; exists {
		return nil, fmt.Errorf("room code %s: %w", code, domain.ErrConflict)
	}
	if _, exists := s.users[ownerID]; !exists {
		return nil, fmt.Errorf("owner %s: %w", ownerID, domain.ErrNotFound)
	}

	room := &domain.Room{
		ID:        uuid.NewString(),
		Code:      code,
		Name:      name,
		OwnerID:   ownerID,
		Available: true,
		CreatedAt: time.Now().UTC(),
	}
	s.rooms[room.ID] = room
	s.codeIndex[code] = room.ID

	out := *room
	return &out, nil
}

func (s *memoryStore) GetRoom(ctx context.Context, id string) (*domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, exists := s.rooms[id]
	if !exists {
		return nil, fmt.Errorf("room %s: %w", id, domain.ErrNotFound)
	}

	out := *room
	return &out, nil
}

func (s *memoryStore) GetRoomByCode(ctx context.Context, code string) (*domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.codeIndex[code]
	if !exists {
		return nil, fmt.Errorf("room code %s: %w", code, domain.ErrNotFound)
	}

	out := *s.rooms[id]
	return &out, nil
}

func (s *memoryStore) RoomCodeExists(ctx context.Context, code string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.codeIndex[code]
	return exists, nil
}

func (s *memoryStore) SetAvailability(ctx context.Context, roomID string, available bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, exists := s.rooms[roomID]
	if !exists {
		return fmt.Errorf("room %s: %w", roomID, domain.ErrNotFound)
	}

	room.Available = available
	return nil
}

func (s *memoryStore) DeleteRoom(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, exists := s.rooms[id]
	if !exists {
		return fmt.Errorf("room %s: %w", id, domain.ErrNotFound)
	}

	for userID, u := range s.users {
		if u.user.RoomID == id {
			delete(s.users, userID)
		}
	}
	delete(s.codeIndex, room.Code)
	delete(s.rooms, id)

	return nil
}

func (s *memoryStore) ListRooms(ctx context.Context) ([]domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rooms := make([]domain.Room, 0, len(s.rooms))
	for _, room := range s.rooms {
		rooms = append(rooms, *room)
	}
	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].CreatedAt.Before(rooms[j].CreatedAt)
	})

	return rooms, nil
}

func (s *memoryStore) ListPlayers(ctx context.Context, roomID string) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, exists := s.rooms[roomID]
	if !exists {
		return nil, fmt.Errorf("room %s: %w", roomID, domain.ErrNotFound)
	}

	return s.sortedUsers(func(u *domain.User) bool {
		return u.RoomID == roomID && u.ID != room.OwnerID
	}), nil
}

func (s *memoryStore) CountUsers(ctx context.Context, roomID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, u := range s.users {
		if u.user.RoomID == roomID {
			count++
		}
	}
	return count, nil
}

func (s *memoryStore) NameTaken(ctx context.Context, roomID, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.user.RoomID == roomID && u.user.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// sortedUsers must be called with the lock held.
func (s *memoryStore) sortedUsers(keep func(*domain.User) bool) []domain.User {
	matched := make([]*memoryUser, 0, len(s.users))
	for _, u := range s.users {
		if keep(&u.user) {
			matched = append(matched, u)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].seq < matched[j].seq })

	users := make([]domain.User, len(matched))
	for i, u := range matched {
		users[i] = u.user
	}
	return users
}
