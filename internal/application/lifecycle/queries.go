package lifecycle

import (
	"context"
	"fmt"

	"github.com/hilthontt/impostor/internal/domain"
)

type Snapshot struct {
	Room    domain.Room
	State   domain.RoomState
	Alive   bool
	Owner   domain.User
	Players []domain.User
}

// Snapshot describes a room to one of its own participants.
func (m *Manager) Snapshot(ctx context.Context, roomID, userID string) (*Snapshot, error) {
	room, err := m.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	user, err := m.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.RoomID != room.ID {
		return nil, fmt.Errorf("user %s is not in room %s: %w", userID, room.Code, domain.ErrForbidden)
	}

	owner, err := m.store.GetUser(ctx, room.OwnerID)
	if err != nil {
		return nil, err
	}

	players, err := m.store.ListPlayers(ctx, room.ID)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		Room:    *room,
		State:   room.State(),
		Alive:   m.hub.Liveness.IsAlive(room.ID),
		Owner:   *owner,
		Players: players,
	}, nil
}

func (m *Manager) Rooms(ctx context.Context) ([]domain.Room, error) {
	return m.store.ListRooms(ctx)
}

func (m *Manager) Users(ctx context.Context) ([]domain.User, error) {
	return m.store.ListUsers(ctx)
}
