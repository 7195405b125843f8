package repository_test

import (
	"context"
	"testing"

	"github.com/hilthontt/impostor/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testStore runs the behaviour every Store implementation must share.
func testStore(t *testing.T, newStore func(t *testing.T) domain.Store) {
	ctx := context.Background()

	t.Run("owner then room then players", func(t *testing.T) {
		store := newStore(t)

		owner, err := store.CreateUser(ctx, "alice", "")
		require.NoError(t, err)
		assert.Empty(t, owner.RoomID)

		room, err := store.CreateRoom(ctx, "ABCD2345", "party", owner.ID)
		require.NoError(t, err)
		assert.True(t, room.Available)
		assert.Equal(t, domain.StateLobby, room.State())
		require.NoError(t, store.SetUserRoom(ctx, owner.ID, room.ID))

		bob, err := store.CreateUser(ctx, "bob", room.ID)
		require.NoError(t, err)
		carol, err := store.CreateUser(ctx, "carol", room.ID)
		require.NoError(t, err)

		players, err := store.ListPlayers(ctx, room.ID)
		require.NoError(t, err)
		require.Len(t, players, 2)
		assert.Equal(t, bob.ID, players[0].ID)
		assert.Equal(t, carol.ID, players[1].ID)

		count, err := store.CountUsers(ctx, room.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, count)

		taken, err := store.NameTaken(ctx, room.ID, "alice")
		require.NoError(t, err)
		assert.True(t, taken)
		taken, err = store.NameTaken(ctx, room.ID, "dave")
		require.NoError(t, err)
		assert.False(t, taken)

		byCode, err := store.GetRoomByCode(ctx, "ABCD2345")
		require.NoError(t, err)
		assert.Equal(t, room.ID, byCode.ID)
		assert.Equal(t, owner.ID, byCode.OwnerID)

		_, err = store.GetRoomByCode(ctx, "abcd2345")
		assert.ErrorIs(t, err, domain.ErrNotFound, "codes are case-sensitive")
	})

	t.Run("availability", func(t *testing.T) {
		store := newStore(t)
		room := createRoom(t, store, "CODE0001")

		require.NoError(t, store.SetAvailability(ctx, room.ID, false))
		got, err := store.GetRoom(ctx, room.ID)
		require.NoError(t, err)
		assert.False(t, got.Available)
		assert.Equal(t, domain.StateInRound, got.State())

		assert.ErrorIs(t, store.SetAvailability(ctx, "missing", true), domain.ErrNotFound)
	})

	t.Run("delete room removes its users", func(t *testing.T) {
		store := newStore(t)
		room := createRoom(t, store, "CODE0002")
		player, err := store.CreateUser(ctx, "bob", room.ID)
		require.NoError(t, err)
		outsider, err := store.CreateUser(ctx, "eve", "")
		require.NoError(t, err)

		require.NoError(t, store.DeleteRoom(ctx, room.ID))

		_, err = store.GetRoom(ctx, room.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = store.GetUser(ctx, player.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = store.GetUser(ctx, room.OwnerID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = store.GetUser(ctx, outsider.ID)
		assert.NoError(t, err)

		exists, err := store.RoomCodeExists(ctx, "CODE0002")
		require.NoError(t, err)
		assert.False(t, exists)

		assert.ErrorIs(t, store.DeleteRoom(ctx, room.ID), domain.ErrNotFound)
	})

	t.Run("duplicate code conflicts", func(t *testing.T) {
		store := newStore(t)
		createRoom(t, store, "CODE0003")

		exists, err := store.RoomCodeExists(ctx, "CODE0003")
		require.NoError(t, err)
		assert.True(t, exists)

		owner, err := store.CreateUser(ctx, "mallory", "")
		require.NoError(t, err)
		_, err = store.CreateRoom(ctx, "CODE0003", "again", owner.ID)
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("not found", func(t *testing.T) {
		store := newStore(t)

		_, err := store.GetUser(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = store.GetRoom(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = store.CreateUser(ctx, "bob", "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = store.CreateRoom(ctx, "CODE0004", "party", "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.ErrorIs(t, store.DeleteUser(ctx, "missing"), domain.ErrNotFound)
		_, err = store.ListPlayers(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("list", func(t *testing.T) {
		store := newStore(t)
		first := createRoom(t, store, "CODE0005")
		second := createRoom(t, store, "CODE0006")

		rooms, err := store.ListRooms(ctx)
		require.NoError(t, err)
		ids := []string{}
		for _, r := range rooms {
			ids = append(ids, r.ID)
		}
		assert.ElementsMatch(t, []string{first.ID, second.ID}, ids)

		users, err := store.ListUsers(ctx)
		require.NoError(t, err)
		assert.Len(t, users, 2)
	})
}

func createRoom(t *testing.T, store domain.Store, code string) *domain.Room {
	t.Helper()
	ctx := context.Background()

	owner, err := store.CreateUser(ctx, "owner-"+code, "")
	require.NoError(t, err)
	room, err := store.CreateRoom(ctx, code, "room-"+code, owner.ID)
	require.NoError(t, err)
	require.NoError(t, store.SetUserRoom(ctx, owner.ID, room.ID))
	return room
}
