package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/hilthontt/impostor/internal/domain"
	"github.com/hilthontt/impostor/internal/infrastructure/logging"
	"github.com/hilthontt/impostor/internal/infrastructure/push"
)

// OpenOwnerStream registers the owner for push delivery. When the stream ends while the
// room is still alive the room is closed as if the owner had asked for it.
func (m *Manager) OpenOwnerStream(ctx context.Context, ownerID string) (*push.Stream, error) {
	owner, err := m.store.GetUser(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if owner.RoomID == "" {
		return nil, fmt.Errorf("user %s is not an owner of any room: %w", ownerID, domain.ErrForbidden)
	}

	room, err := m.liveRoom(ctx, owner.RoomID)
	if err != nil {
		return nil, err
	}
	if !room.IsOwner(ownerID) {
		return nil, fmt.Errorf("user %s is not an owner of any room: %w", ownerID, domain.ErrForbidden)
	}

	m.logger.Debug(logging.Stream, logging.Connect, "owner stream opened", map[logging.ExtraKey]any{
		logging.RoomID:     room.ID,
		logging.UserID:     ownerID,
		logging.StreamKind: push.KindOwner,
	})

	cleanupCtx := context.WithoutCancel(ctx)
	return m.hub.NewStream(push.KindOwner, ownerID, room.ID, func() {
		m.ownerDisconnected(cleanupCtx, ownerID, room.ID)
	}), nil
}

// OpenPlayerStream registers a player for push delivery. When the stream ends while the
// room is still alive the player is treated as having left.
func (m *Manager) OpenPlayerStream(ctx context.Context, userID string) (*push.Stream, error) {
	user, err := m.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.RoomID == "" {
		return nil, fmt.Errorf("user %s has no room: %w", userID, domain.ErrNotFound)
	}

	room, err := m.liveRoom(ctx, user.RoomID)
	if err != nil {
		return nil, err
	}
	if room.IsOwner(userID) {
		return nil, fmt.Errorf("owner %s must use the owner stream: %w", userID, domain.ErrForbidden)
	}

	m.logger.Debug(logging.Stream, logging.Connect, "player stream opened", map[logging.ExtraKey]any{
		logging.RoomID:     room.ID,
		logging.UserID:     userID,
		logging.StreamKind: push.KindPlayer,
	})

	cleanupCtx := context.WithoutCancel(ctx)
	return m.hub.NewStream(push.KindPlayer, userID, room.ID, func() {
		m.playerDisconnected(cleanupCtx, userID, room.ID)
	}), nil
}

func (m *Manager) ownerDisconnected(ctx context.Context, ownerID, roomID string) {
	// a closed room needs no lock; taking one would recreate its entry
	if !m.hub.Liveness.IsAlive(roomID) {
		m.hub.Recipients.Unregister(ownerID)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, cleanupTimeout)
	defer cancel()

	unlock := m.lock(roomID)
	defer unlock()

	if !m.hub.Liveness.IsAlive(roomID) {
		m.hub.Recipients.Unregister(ownerID)
		m.forget(roomID)
		return
	}

	m.logger.Info(logging.Stream, logging.Disconnect, "owner disconnected, closing room", map[logging.ExtraKey]any{
		logging.RoomID: roomID,
		logging.UserID: ownerID,
	})

	err := m.closeAfterDisconnect(ctx, ownerID, roomID)
	if err != nil {
		m.logger.Error(logging.Lifecycle, logging.RoomClose, "failed to close room after owner disconnect", map[logging.ExtraKey]any{
			logging.RoomID:       roomID,
			logging.ErrorMessage: err.Error(),
		})
	}
}

func (m *Manager) closeAfterDisconnect(ctx context.Context, ownerID, roomID string) error {
	owner, err := m.store.GetUser(ctx, ownerID)
	if err != nil {
		return err
	}
	room, err := m.store.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	return m.closeLocked(ctx, owner, room)
}

func (m *Manager) playerDisconnected(ctx context.Context, userID, roomID string) {
	if !m.hub.Liveness.IsAlive(roomID) {
		m.hub.Recipients.Unregister(userID)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, cleanupTimeout)
	defer cancel()

	unlock := m.lock(roomID)
	defer unlock()

	m.hub.Recipients.Unregister(userID)
	if !m.hub.Liveness.IsAlive(roomID) {
		m.forget(roomID)
		return
	}

	if err := m.playerLeft(ctx, userID, roomID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		m.logger.Error(logging.Lifecycle, logging.PlayerLeave, "failed to clean up after player disconnect", map[logging.ExtraKey]any{
			logging.RoomID:       roomID,
			logging.UserID:       userID,
			logging.ErrorMessage: err.Error(),
		})
	}
}

// playerLeft must be called with the room lock held.
func (m *Manager) playerLeft(ctx context.Context, userID, roomID string) error {
	user, err := m.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	room, err := m.store.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}

	event := domain.RoomEvent{RoomID: room.ID, OwnerID: room.OwnerID, UserName: user.Name}
	transition := "leave"

	if !room.Available {
		// a round cannot go on without one of its participants
		players, err := m.store.ListPlayers(ctx, room.ID)
		if err != nil {
			return fmt.Errorf("failed to list players: %w", err)
		}

		m.hub.Recipients.Enqueue(room.OwnerID, push.Stop(user.Name))
		for _, p := range players {
			if p.ID != userID {
				m.hub.Recipients.Enqueue(p.ID, push.Stop(user.Name))
			}
		}

		if err := m.store.SetAvailability(ctx, room.ID, true); err != nil {
			return fmt.Errorf("failed to reopen room: %w", err)
		}

		event.Type = domain.EventRoundStopped
		transition = "stop"
		m.logger.Info(logging.Lifecycle, logging.RoundAbort, "player left mid-round, round stopped", map[logging.ExtraKey]any{
			logging.RoomID: room.ID,
			logging.UserID: userID,
		})
	} else {
		m.hub.Recipients.Enqueue(room.OwnerID, push.Left(user.Name))

		event.Type = domain.EventMemberLeft
		m.logger.Info(logging.Lifecycle, logging.PlayerLeave, "player left", map[logging.ExtraKey]any{
			logging.RoomID: room.ID,
			logging.UserID: userID,
		})
	}

	if err := m.store.DeleteUser(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete player: %w", err)
	}

	event.Players = m.playerCount(ctx, room.ID)
	m.transition(ctx, transition, event)
	return nil
}
