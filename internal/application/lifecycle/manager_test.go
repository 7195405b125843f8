package lifecycle_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hilthontt/impostor/internal/application/lifecycle"
	"github.com/hilthontt/impostor/internal/domain"
	"github.com/hilthontt/impostor/internal/infrastructure/logging"
	"github.com/hilthontt/impostor/internal/infrastructure/push"
	"github.com/hilthontt/impostor/internal/infrastructure/repository"
	"github.com/hilthontt/impostor/internal/infrastructure/wordsource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secretWord = "lantern"

type sequenceCodes struct {
	mu    sync.Mutex
	codes []string
	next  int
}

func (g *sequenceCodes) Generate() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	code := g.codes[g.next%len(g.codes)]
	g.next++
	return code, nil
}

type counterCodes struct {
	mu sync.Mutex
	n  int
}

func (g *counterCodes) Generate() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return "ROOM" + string(rune('A'+g.n/26%26)) + string(rune('A'+g.n%26)) + "22", nil
}

type failingWords struct{}

func (failingWords) FetchWord(context.Context) (string, error) {
	return "", errors.New("word api unreachable")
}

type recordingEvents struct {
	mu     sync.Mutex
	events []domain.RoomEvent
}

func (r *recordingEvents) Publish(_ context.Context, e domain.RoomEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingEvents) types() []domain.RoomEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.RoomEventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

type fixture struct {
	store   domain.Store
	hub     *push.Hub
	events  *recordingEvents
	manager *lifecycle.Manager
}

func newFixture(t *testing.T, opts ...lifecycle.Option) *fixture {
	return newFixtureWithWords(t, wordsource.NewStaticSource(secretWord), opts...)
}

func newFixtureWithWords(t *testing.T, words domain.WordSource, opts ...lifecycle.Option) *fixture {
	t.Helper()

	f := &fixture{
		store:  repository.NewMemoryStore(),
		hub:    push.NewHub(5*time.Millisecond, nil),
		events: &recordingEvents{},
	}
	opts = append([]lifecycle.Option{lifecycle.WithEventPublisher(f.events)}, opts...)
	f.manager = lifecycle.NewManager(f.store, &counterCodes{}, words, f.hub, logging.NewNopLogger(), opts...)
	return f
}

// room is a created room with its owner stream open and players joined with streams open.
type room struct {
	id      string
	code    string
	ownerID string
	owner   *push.Stream
	players map[string]*push.Stream // name -> stream
	ids     map[string]string       // name -> user ID
}

func (f *fixture) createRoom(t *testing.T, players ...string) *room {
	t.Helper()
	ctx := context.Background()

	res, err := f.manager.Create(ctx, "olivia", "game night")
	require.NoError(t, err)

	ownerStream, err := f.manager.OpenOwnerStream(ctx, res.Owner.ID)
	require.NoError(t, err)

	r := &room{
		id:      res.Room.ID,
		code:    res.Room.Code,
		ownerID: res.Owner.ID,
		owner:   ownerStream,
		players: map[string]*push.Stream{},
		ids:     map[string]string{},
	}

	for _, name := range players {
		user, err := f.manager.Join(ctx, r.code, name)
		require.NoError(t, err)

		stream, err := f.manager.OpenPlayerStream(ctx, user.ID)
		require.NoError(t, err)
		r.players[name] = stream
		r.ids[name] = user.ID
	}

	f.hub.Recipients.DequeueAll(r.ownerID)
	return r
}

func (f *fixture) queued(userID string) []push.Message {
	return f.hub.Recipients.DequeueAll(userID)
}

// disconnect ends a stream as if its transport went away and returns what it delivered.
func disconnect(s *push.Stream) []push.Message {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var got []push.Message
	for msg := range s.Messages(ctx) {
		got = append(got, msg)
	}
	return got
}

func TestCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.manager.Create(ctx, "olivia", "game night")
	require.NoError(t, err)

	assert.Len(t, res.Room.Code, domain.RoomCodeLength)
	assert.Equal(t, res.Owner.ID, res.Room.OwnerID)
	assert.Equal(t, res.Room.ID, res.Owner.RoomID)
	assert.True(t, f.hub.Liveness.IsAlive(res.Room.ID))

	stored, err := f.store.GetRoom(ctx, res.Room.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateLobby, stored.State())

	owner, err := f.store.GetUser(ctx, res.Owner.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Room.ID, owner.RoomID)

	assert.Equal(t, []domain.RoomEventType{domain.EventRoomCreated}, f.events.types())

	_, err = f.manager.Create(ctx, "", "x")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCreate_RetriesTakenCodes(t *testing.T) {
	store := repository.NewMemoryStore()
	ctx := context.Background()
	squatter, err := store.CreateUser(ctx, "squatter", "")
	require.NoError(t, err)
	_, err = store.CreateRoom(ctx, "TAKEN222", "old", squatter.ID)
	require.NoError(t, err)

	codes := &sequenceCodes{codes: []string{"TAKEN222", "TAKEN222", "FRESH222"}}
	m := lifecycle.NewManager(store, codes, wordsource.NewStaticSource(secretWord), push.NewHub(0, nil), logging.NewNopLogger())

	res, err := m.Create(ctx, "olivia", "new")
	require.NoError(t, err)
	assert.Equal(t, "FRESH222", res.Room.Code)
}

func TestCreate_GivesUpWhenNoCodeIsFree(t *testing.T) {
	store := repository.NewMemoryStore()
	ctx := context.Background()
	squatter, err := store.CreateUser(ctx, "squatter", "")
	require.NoError(t, err)
	_, err = store.CreateRoom(ctx, "TAKEN222", "old", squatter.ID)
	require.NoError(t, err)

	codes := &sequenceCodes{codes: []string{"TAKEN222"}}
	m := lifecycle.NewManager(store, codes, wordsource.NewStaticSource(secretWord), push.NewHub(0, nil),
		logging.NewNopLogger(), lifecycle.WithMaxCodeAttempts(3))

	_, err = m.Create(ctx, "olivia", "new")
	require.Error(t, err)

	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1, "the half-created owner is discarded")
}

func TestJoin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.createRoom(t)

	user, err := f.manager.Join(ctx, r.code, "bob")
	require.NoError(t, err)
	assert.Equal(t, r.id, user.RoomID)
	assert.Equal(t, []push.Message{push.Joined("bob")}, f.queued(r.ownerID))

	t.Run("unknown code", func(t *testing.T) {
		_, err := f.manager.Join(ctx, "NOPE2222", "carol")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("duplicate name", func(t *testing.T) {
		_, err := f.manager.Join(ctx, r.code, "bob")
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("owner name is taken too", func(t *testing.T) {
		_, err := f.manager.Join(ctx, r.code, "olivia")
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("empty name", func(t *testing.T) {
		_, err := f.manager.Join(ctx, r.code, "")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestJoin_RejectedDuringRound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.createRoom(t, "alice", "bob")
	require.NoError(t, f.manager.Start(ctx, r.ownerID))

	_, err := f.manager.Join(ctx, r.code, "carol")
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestStart_NeedsThreeParticipants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.createRoom(t, "alice")

	err := f.manager.Start(ctx, r.ownerID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	stored, err := f.store.GetRoom(ctx, r.id)
	require.NoError(t, err)
	assert.True(t, stored.Available)

	_, err = f.manager.Join(ctx, r.code, "bob")
	require.NoError(t, err)
	require.NoError(t, f.manager.Start(ctx, r.ownerID))

	stored, err = f.store.GetRoom(ctx, r.id)
	require.NoError(t, err)
	assert.False(t, stored.Available)
	assert.Equal(t, domain.StateInRound, stored.State())
}

func TestStart_ExactlyOneImpostor(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t)
		r := f.createRoom(t, "alice", "bob", "carol")
		require.NoError(t, f.manager.Start(context.Background(), r.ownerID))

		participants := []string{r.ownerID, r.ids["alice"], r.ids["bob"], r.ids["carol"]}
		impostors := 0
		for _, id := range participants {
			msgs := f.queued(id)
			require.Len(t, msgs, 1)
			require.Equal(t, push.TypeStart, msgs[0].Type)

			switch msgs[0].Word {
			case domain.ImpostorWord:
				impostors++
			case secretWord:
			default:
				t.Fatalf("unexpected word %q", msgs[0].Word)
			}
		}
		assert.Equal(t, 1, impostors)
	}
}

func TestStart_ImpostorCanBeTheOwner(t *testing.T) {
	var n int
	f := newFixture(t, lifecycle.WithPicker(func(count int) int {
		n = count
		return count - 1
	}))
	r := f.createRoom(t, "alice", "bob")
	require.NoError(t, f.manager.Start(context.Background(), r.ownerID))

	assert.Equal(t, 3, n, "the owner is part of the draw")
	assert.Equal(t, []push.Message{push.Start(domain.ImpostorWord)}, f.queued(r.ownerID))
	assert.Equal(t, []push.Message{push.Start(secretWord)}, f.queued(r.ids["alice"]))
	assert.Equal(t, []push.Message{push.Start(secretWord)}, f.queued(r.ids["bob"]))
}

func TestStart_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.createRoom(t, "alice", "bob")

	assert.ErrorIs(t, f.manager.Start(ctx, "missing"), domain.ErrNotFound)
	assert.ErrorIs(t, f.manager.Start(ctx, r.ids["alice"]), domain.ErrForbidden)

	require.NoError(t, f.manager.Start(ctx, r.ownerID))
	assert.ErrorIs(t, f.manager.Start(ctx, r.ownerID), domain.ErrForbidden)
}

func TestStart_WordSourceFailureReopensRoom(t *testing.T) {
	f := newFixtureWithWords(t, failingWords{})
	ctx := context.Background()
	r := f.createRoom(t, "alice", "bob")

	err := f.manager.Start(ctx, r.ownerID)
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrForbidden)

	stored, err := f.store.GetRoom(ctx, r.id)
	require.NoError(t, err)
	assert.True(t, stored.Available)
	assert.Empty(t, f.queued(r.ids["alice"]))
}

func TestEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.createRoom(t, "alice", "bob")

	assert.ErrorIs(t, f.manager.End(ctx, r.ownerID), domain.ErrForbidden, "no round in progress")

	require.NoError(t, f.manager.Start(ctx, r.ownerID))
	f.queued(r.ownerID)
	f.queued(r.ids["alice"])
	f.queued(r.ids["bob"])

	assert.ErrorIs(t, f.manager.End(ctx, r.ids["alice"]), domain.ErrForbidden)
	require.NoError(t, f.manager.End(ctx, r.ownerID))

	assert.Equal(t, []push.Message{push.End()}, f.queued(r.ids["alice"]))
	assert.Equal(t, []push.Message{push.End()}, f.queued(r.ids["bob"]))
	assert.Empty(t, f.queued(r.ownerID), "the owner is not sent end")

	stored, err := f.store.GetRoom(ctx, r.id)
	require.NoError(t, err)
	assert.Equal(t, domain.StateLobby, stored.State())

	assert.ErrorIs(t, f.manager.End(ctx, r.ownerID), domain.ErrForbidden)
}

func TestClose(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.createRoom(t, "alice", "bob")

	assert.ErrorIs(t, f.manager.Close(ctx, r.ids["alice"]), domain.ErrForbidden)
	require.NoError(t, f.manager.Close(ctx, r.ownerID))

	assert.False(t, f.hub.Liveness.IsAlive(r.id))
	assert.False(t, f.hub.Recipients.IsRegistered(r.ownerID))

	_, err := f.store.GetRoom(ctx, r.id)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	for _, id := range r.ids {
		_, err := f.store.GetUser(ctx, id)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	}

	// player streams still deliver the close message after the room died
	for name, s := range r.players {
		assert.Equal(t, []push.Message{push.Close("olivia")}, disconnect(s), name)
	}

	err = f.manager.Close(ctx, r.ownerID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// the owner stream ending afterwards does not clean up a second time
	disconnect(r.owner)
	assert.Equal(t, []domain.RoomEventType{
		domain.EventRoomCreated,
		domain.EventMemberJoined,
		domain.EventMemberJoined,
		domain.EventRoomClosed,
	}, f.events.types())
}

func TestPlayerDisconnect_InLobby(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.createRoom(t, "alice", "bob")

	disconnect(r.players["alice"])

	assert.Equal(t, []push.Message{push.Left("alice")}, f.queued(r.ownerID))
	assert.Empty(t, f.queued(r.ids["bob"]))

	_, err := f.store.GetUser(ctx, r.ids["alice"])
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.True(t, f.hub.Liveness.IsAlive(r.id))
	assert.False(t, f.hub.Recipients.IsRegistered(r.ids["alice"]))
}

func TestPlayerDisconnect_DuringRound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.createRoom(t, "alice", "bob", "carol")
	require.NoError(t, f.manager.Start(ctx, r.ownerID))
	for _, id := range []string{r.ownerID, r.ids["bob"], r.ids["carol"]} {
		f.queued(id)
	}

	disconnect(r.players["alice"])

	assert.Equal(t, []push.Message{push.Stop("alice")}, f.queued(r.ownerID))
	assert.Equal(t, []push.Message{push.Stop("alice")}, f.queued(r.ids["bob"]))
	assert.Equal(t, []push.Message{push.Stop("alice")}, f.queued(r.ids["carol"]))

	stored, err := f.store.GetRoom(ctx, r.id)
	require.NoError(t, err)
	assert.Equal(t, domain.StateLobby, stored.State())

	_, err = f.store.GetUser(ctx, r.ids["alice"])
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Contains(t, f.events.types(), domain.EventRoundStopped)
}

func TestOwnerDisconnect_ClosesRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.createRoom(t, "alice", "bob")

	disconnect(r.owner)

	assert.False(t, f.hub.Liveness.IsAlive(r.id))
	_, err := f.store.GetRoom(ctx, r.id)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	for _, s := range r.players {
		assert.Equal(t, []push.Message{push.Close("olivia")}, disconnect(s))
	}
	assert.ErrorIs(t, f.manager.Close(ctx, r.ownerID), domain.ErrNotFound)
}

func TestOpenStreams(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.createRoom(t, "alice")

	_, err := f.manager.OpenOwnerStream(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.manager.OpenOwnerStream(ctx, r.ids["alice"])
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.manager.OpenPlayerStream(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.manager.OpenPlayerStream(ctx, r.ownerID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	require.NoError(t, f.manager.Close(ctx, r.ownerID))
	_, err = f.manager.OpenPlayerStream(ctx, r.ids["alice"])
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.createRoom(t, "alice", "bob")
	outsider := f.createRoom(t)

	snap, err := f.manager.Snapshot(ctx, r.id, r.ids["alice"])
	require.NoError(t, err)
	assert.Equal(t, r.code, snap.Room.Code)
	assert.Equal(t, domain.StateLobby, snap.State)
	assert.True(t, snap.Alive)
	assert.Equal(t, r.ownerID, snap.Owner.ID)
	require.Len(t, snap.Players, 2)
	assert.Equal(t, "alice", snap.Players[0].Name)

	_, err = f.manager.Snapshot(ctx, r.id, outsider.ownerID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.manager.Snapshot(ctx, "missing", r.ownerID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.manager.Create(ctx, "O", "scenario")
	require.NoError(t, err)
	ownerStream, err := f.manager.OpenOwnerStream(ctx, res.Owner.ID)
	require.NoError(t, err)

	a, err := f.manager.Join(ctx, res.Room.Code, "A")
	require.NoError(t, err)
	b, err := f.manager.Join(ctx, res.Room.Code, "B")
	require.NoError(t, err)
	_, err = f.manager.OpenPlayerStream(ctx, a.ID)
	require.NoError(t, err)
	_, err = f.manager.OpenPlayerStream(ctx, b.ID)
	require.NoError(t, err)

	assert.Equal(t, []push.Message{push.Joined("A"), push.Joined("B")}, f.queued(res.Owner.ID))

	require.NoError(t, f.manager.Start(ctx, res.Owner.ID))

	words := map[string]int{}
	for _, id := range []string{res.Owner.ID, a.ID, b.ID} {
		msgs := f.queued(id)
		require.Len(t, msgs, 1)
		words[msgs[0].Word]++
	}
	assert.Equal(t, map[string]int{domain.ImpostorWord: 1, secretWord: 2}, words)

	require.NoError(t, f.manager.End(ctx, res.Owner.ID))
	assert.Equal(t, []push.Message{push.End()}, f.queued(a.ID))
	assert.Equal(t, []push.Message{push.End()}, f.queued(b.ID))

	stored, err := f.store.GetRoom(ctx, res.Room.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateLobby, stored.State())

	require.NoError(t, f.manager.Close(ctx, res.Owner.ID))
	disconnect(ownerStream)
}

func TestConcurrentDisconnectAndClose(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t)
		ctx := context.Background()
		r := f.createRoom(t, "alice", "bob")

		var wg sync.WaitGroup
		wg.Add(3)
		go func() { defer wg.Done(); disconnect(r.players["alice"]) }()
		go func() { defer wg.Done(); disconnect(r.owner) }()
		go func() { defer wg.Done(); _ = f.manager.Close(ctx, r.ownerID) }()
		wg.Wait()

		closes := 0
		for _, e := range f.events.types() {
			if e == domain.EventRoomClosed {
				closes++
			}
		}
		assert.Equal(t, 1, closes, "the room is torn down exactly once")
		_, err := f.store.GetRoom(ctx, r.id)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	}
}

func TestClosedRoomsLeaveNoBookkeeping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const rooms = 50
	for i := 0; i < rooms; i++ {
		r := f.createRoom(t, "alice", "bob")

		if i%2 == 0 {
			require.NoError(t, f.manager.Close(ctx, r.ownerID))
		}
		// odd rooms are closed by their owner going away
		disconnect(r.owner)
		for _, s := range r.players {
			disconnect(s)
		}
	}

	assert.Zero(t, f.hub.Liveness.Len())
	assert.Zero(t, f.manager.LockEntries())
}

func TestDeadRoomRejectsRoundsButCanBeClosed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.createRoom(t, "alice", "bob")

	// as if the room had been left in the store by an earlier process
	f.hub.Liveness.MarkDead(r.id)

	assert.ErrorIs(t, f.manager.Start(ctx, r.ownerID), domain.ErrNotFound)
	assert.ErrorIs(t, f.manager.End(ctx, r.ownerID), domain.ErrNotFound)

	require.NoError(t, f.manager.Close(ctx, r.ownerID))
	_, err := f.store.GetRoom(ctx, r.id)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Zero(t, f.manager.LockEntries())
}
