package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/hilthontt/impostor/internal/domain"
	"github.com/hilthontt/impostor/internal/infrastructure/logging"
	"github.com/hilthontt/impostor/internal/infrastructure/metrics"
	"github.com/hilthontt/impostor/internal/infrastructure/push"
	"github.com/hilthontt/impostor/internal/infrastructure/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultMaxCodeAttempts = 32
	// cleanupTimeout bounds the store work done after a stream has already disconnected.
	cleanupTimeout = 10 * time.Second
)

// Manager runs the room state machine. Every transition on a room holds that room's lock,
// so transitions and disconnect cleanups on one room never interleave.
type Manager struct {
	store   domain.Store
	codes   domain.CodeGenerator
	words   domain.WordSource
	hub     *push.Hub
	events  domain.EventPublisher
	logger  logging.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer

	pick            func(n int) int
	maxCodeAttempts int
	now             func() time.Time

	locks sync.Map // room ID -> *sync.Mutex
}

type Option func(*Manager)

func WithEventPublisher(p domain.EventPublisher) Option {
	return func(m *Manager) { m.events = p }
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithPicker replaces the uniform impostor choice. pick(n) must return a value in [0, n).
func WithPicker(pick func(n int) int) Option {
	return func(m *Manager) { m.pick = pick }
}

func WithMaxCodeAttempts(n int) Option {
	return func(m *Manager) { m.maxCodeAttempts = n }
}

func NewManager(
	store domain.Store,
	codes domain.CodeGenerator,
	words domain.WordSource,
	hub *push.Hub,
	logger logging.Logger,
	opts ...Option,
) *Manager {
	m := &Manager{
		store:           store,
		codes:           codes,
		words:           words,
		hub:             hub,
		logger:          logger,
		tracer:          tracing.GetTracer("impostor/lifecycle"),
		pick:            rand.IntN,
		maxCodeAttempts: defaultMaxCodeAttempts,
		now:             time.Now,
	}

	for _, opt := range opts {
		opt(m)
	}
	if m.events == nil {
		m.events = nopPublisher{}
	}

	return m
}

type CreateResult struct {
	Room  *domain.Room
	Owner *domain.User
}

// Create makes the owner, then a room with a fresh join code, and marks the room alive.
func (m *Manager) Create(ctx context.Context, ownerName, roomName string) (res *CreateResult, err error) {
	ctx, span := m.tracer.Start(ctx, "lifecycle.Create")
	defer func() { endSpan(span, err) }()

	if ownerName == "" || roomName == "" {
		return nil, fmt.Errorf("owner and room names are required: %w", domain.ErrInvalidInput)
	}

	owner, err := m.store.CreateUser(ctx, ownerName, "")
	if err != nil {
		return nil, fmt.Errorf("failed to create owner: %w", err)
	}

	room, err := m.createRoom(ctx, roomName, owner.ID)
	if err != nil {
		m.discardUser(ctx, owner.ID)
		return nil, err
	}

	if err := m.store.SetUserRoom(ctx, owner.ID, room.ID); err != nil {
		m.discardRoom(ctx, room.ID)
		m.discardUser(ctx, owner.ID)
		return nil, fmt.Errorf("failed to attach owner to room: %w", err)
	}
	owner.RoomID = room.ID

	m.hub.Liveness.MarkAlive(room.ID)
	span.SetAttributes(attribute.String("room.id", room.ID))

	m.logger.Info(logging.Lifecycle, logging.RoomCreate, "room created", map[logging.ExtraKey]any{
		logging.RoomID:   room.ID,
		logging.RoomCode: room.Code,
		logging.UserID:   owner.ID,
	})
	m.transition(ctx, "create", domain.RoomEvent{Type: domain.EventRoomCreated, RoomID: room.ID, OwnerID: owner.ID})

	return &CreateResult{Room: room, Owner: owner}, nil
}

func (m *Manager) createRoom(ctx context.Context, roomName, ownerID string) (*domain.Room, error) {
	for attempt := 0; attempt < m.maxCodeAttempts; attempt++ {
		code, err := m.codes.Generate()
		if err != nil {
			return nil, err
		}

		exists, err := m.store.RoomCodeExists(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("failed to check room code: %w", err)
		}
		if exists {
			continue
		}

		room, err := m.store.CreateRoom(ctx, code, roomName, ownerID)
		if errors.Is(err, domain.ErrConflict) {
			// taken between the check and the insert
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create room: %w", err)
		}
		return room, nil
	}

	return nil, fmt.Errorf("no free room code after %d attempts", m.maxCodeAttempts)
}

// Join adds a player to the room with the given code and tells the owner.
func (m *Manager) Join(ctx context.Context, code, userName string) (user *domain.User, err error) {
	ctx, span := m.tracer.Start(ctx, "lifecycle.Join")
	defer func() { endSpan(span, err) }()

	if userName == "" {
		return nil, fmt.Errorf("user name is required: %w", domain.ErrInvalidInput)
	}

	found, err := m.store.GetRoomByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	unlock := m.lock(found.ID)
	defer unlock()

	room, err := m.liveRoom(ctx, found.ID)
	if err != nil {
		m.forget(found.ID)
		return nil, err
	}
	if !room.Available {
		return nil, fmt.Errorf("joining room %s while a round is in progress: %w", room.Code, domain.ErrForbidden)
	}

	taken, err := m.store.NameTaken(ctx, room.ID, userName)
	if err != nil {
		return nil, fmt.Errorf("failed to check user name: %w", err)
	}
	if taken {
		return nil, fmt.Errorf("user named %s already joined room %s: %w", userName, room.Code, domain.ErrConflict)
	}

	user, err = m.store.CreateUser(ctx, userName, room.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create player: %w", err)
	}

	m.hub.Recipients.Enqueue(room.OwnerID, push.Joined(userName))

	m.logger.Info(logging.Lifecycle, logging.RoomJoin, "player joined", map[logging.ExtraKey]any{
		logging.RoomID: room.ID,
		logging.UserID: user.ID,
	})
	m.transition(ctx, "join", domain.RoomEvent{
		Type:     domain.EventMemberJoined,
		RoomID:   room.ID,
		OwnerID:  room.OwnerID,
		UserName: userName,
		Players:  m.playerCount(ctx, room.ID),
	})

	return user, nil
}

// Start begins a round: one participant is told IMPOSTOR, everyone else the secret word.
func (m *Manager) Start(ctx context.Context, ownerID string) (err error) {
	ctx, span := m.tracer.Start(ctx, "lifecycle.Start")
	defer func() { endSpan(span, err) }()

	owner, room, unlock, err := m.ownedRoom(ctx, ownerID, "start the round", true)
	if err != nil {
		return err
	}
	defer unlock()

	if !room.Available {
		return fmt.Errorf("round already started in room %s: %w", room.Code, domain.ErrForbidden)
	}

	players, err := m.store.ListPlayers(ctx, room.ID)
	if err != nil {
		return fmt.Errorf("failed to list players: %w", err)
	}

	participants := append(players, *owner)
	if len(participants) < domain.MinParticipants {
		return fmt.Errorf("%d participants, need at least %d: %w", len(participants), domain.MinParticipants, domain.ErrForbidden)
	}

	if err := m.store.SetAvailability(ctx, room.ID, false); err != nil {
		return fmt.Errorf("failed to lock room for the round: %w", err)
	}

	word, err := m.words.FetchWord(ctx)
	if err != nil {
		if restoreErr := m.store.SetAvailability(context.WithoutCancel(ctx), room.ID, true); restoreErr != nil {
			m.logger.Error(logging.Lifecycle, logging.RoundStart, "failed to reopen room after word fetch failure", map[logging.ExtraKey]any{
				logging.RoomID:       room.ID,
				logging.ErrorMessage: restoreErr.Error(),
			})
		}
		return fmt.Errorf("failed to fetch secret word: %w", err)
	}

	assignment := domain.NewRoundAssignment(participants, word, m.pick)
	for _, p := range participants {
		m.hub.Recipients.Enqueue(p.ID, push.Start(assignment.WordFor(p.ID)))
	}

	m.logger.Info(logging.Lifecycle, logging.RoundStart, "round started", map[logging.ExtraKey]any{
		logging.RoomID: room.ID,
	})
	m.transition(ctx, "start", domain.RoomEvent{
		Type:    domain.EventRoundStarted,
		RoomID:  room.ID,
		OwnerID: room.OwnerID,
		Players: len(players),
	})

	return nil
}

// End finishes the round and tells every player. The owner is not sent an end message.
func (m *Manager) End(ctx context.Context, ownerID string) (err error) {
	ctx, span := m.tracer.Start(ctx, "lifecycle.End")
	defer func() { endSpan(span, err) }()

	_, room, unlock, err := m.ownedRoom(ctx, ownerID, "end the round", true)
	if err != nil {
		return err
	}
	defer unlock()

	if room.Available {
		return fmt.Errorf("no round in progress in room %s: %w", room.Code, domain.ErrForbidden)
	}

	if err := m.store.SetAvailability(ctx, room.ID, true); err != nil {
		return fmt.Errorf("failed to reopen room: %w", err)
	}

	players, err := m.store.ListPlayers(ctx, room.ID)
	if err != nil {
		return fmt.Errorf("failed to list players: %w", err)
	}
	for _, p := range players {
		m.hub.Recipients.Enqueue(p.ID, push.End())
	}

	m.logger.Info(logging.Lifecycle, logging.RoundEnd, "round ended", map[logging.ExtraKey]any{
		logging.RoomID: room.ID,
	})
	m.transition(ctx, "end", domain.RoomEvent{
		Type:    domain.EventRoundEnded,
		RoomID:  room.ID,
		OwnerID: room.OwnerID,
		Players: len(players),
	})

	return nil
}

// Close tears the room down. Closing twice fails with ErrNotFound because the owner is gone.
// A room that is no longer alive, such as one left in the store by an earlier process, can
// still be closed so its rows are removed.
func (m *Manager) Close(ctx context.Context, ownerID string) (err error) {
	ctx, span := m.tracer.Start(ctx, "lifecycle.Close")
	defer func() { endSpan(span, err) }()

	owner, room, unlock, err := m.ownedRoom(ctx, ownerID, "close the room", false)
	if err != nil {
		return err
	}
	defer unlock()

	return m.closeLocked(ctx, owner, room)
}

// closeLocked must be called with the room lock held.
func (m *Manager) closeLocked(ctx context.Context, owner *domain.User, room *domain.Room) error {
	players, err := m.store.ListPlayers(ctx, room.ID)
	if err != nil {
		return fmt.Errorf("failed to list players: %w", err)
	}

	for _, p := range players {
		m.hub.Recipients.Enqueue(p.ID, push.Close(owner.Name))
	}
	m.hub.Recipients.Unregister(owner.ID)
	m.hub.Liveness.MarkDead(room.ID)

	if err := m.store.DeleteRoom(ctx, room.ID); err != nil {
		return fmt.Errorf("failed to delete room: %w", err)
	}
	// waiters on the old mutex will find the room gone
	m.forget(room.ID)

	m.logger.Info(logging.Lifecycle, logging.RoomClose, "room closed", map[logging.ExtraKey]any{
		logging.RoomID: room.ID,
		logging.UserID: owner.ID,
	})
	m.transition(ctx, "close", domain.RoomEvent{
		Type:    domain.EventRoomClosed,
		RoomID:  room.ID,
		OwnerID: owner.ID,
		Players: len(players),
	})

	return nil
}

// ownedRoom resolves ownerID to the room it owns and returns with that room locked. With
// mustBeAlive set, a room that is not alive is reported as missing.
func (m *Manager) ownedRoom(ctx context.Context, ownerID, action string, mustBeAlive bool) (*domain.User, *domain.Room, func(), error) {
	owner, err := m.store.GetUser(ctx, ownerID)
	if err != nil {
		return nil, nil, nil, err
	}
	if owner.RoomID == "" {
		return nil, nil, nil, fmt.Errorf("user %s has no room: %w", ownerID, domain.ErrForbidden)
	}

	unlock := m.lock(owner.RoomID)

	room, err := m.store.GetRoom(ctx, owner.RoomID)
	if mustBeAlive && err == nil && !m.hub.Liveness.IsAlive(room.ID) {
		err = fmt.Errorf("room %s is not active: %w", room.Code, domain.ErrNotFound)
	}
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			m.forget(owner.RoomID)
		}
		unlock()
		return nil, nil, nil, err
	}
	if !room.IsOwner(ownerID) {
		unlock()
		return nil, nil, nil, fmt.Errorf("only the room owner can %s: %w", action, domain.ErrForbidden)
	}

	return owner, room, unlock, nil
}

// liveRoom loads a room that must still be alive. Rooms left in a persistent store by an
// earlier process are not alive and are treated as missing.
func (m *Manager) liveRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	room, err := m.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !m.hub.Liveness.IsAlive(room.ID) {
		return nil, fmt.Errorf("room %s is not active: %w", room.Code, domain.ErrNotFound)
	}
	return room, nil
}

func (m *Manager) lock(roomID string) func() {
	v, _ := m.locks.LoadOrStore(roomID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// forget drops the lock entry of a room that is gone or dead. Dead rooms are never revived,
// so a caller that later recreates the entry finds the room dead and forgets it again.
func (m *Manager) forget(roomID string) {
	m.locks.Delete(roomID)
}

func (m *Manager) playerCount(ctx context.Context, roomID string) int {
	count, err := m.store.CountUsers(ctx, roomID)
	if err != nil || count == 0 {
		return 0
	}
	return count - 1
}

// transition records a successful transition and publishes its event. Publishing is
// best-effort and never fails the transition.
func (m *Manager) transition(ctx context.Context, name string, event domain.RoomEvent) {
	m.metrics.Transition(name)

	event.OccurredAt = m.now().UTC()
	if err := m.events.Publish(ctx, event); err != nil {
		m.logger.Warn(logging.RabbitMQ, logging.Publish, "failed to publish room event", map[logging.ExtraKey]any{
			logging.RoomID:       event.RoomID,
			logging.ErrorMessage: err.Error(),
		})
	}
}

func (m *Manager) discardUser(ctx context.Context, userID string) {
	if err := m.store.DeleteUser(context.WithoutCancel(ctx), userID); err != nil {
		m.logger.Warn(logging.Lifecycle, logging.RoomCreate, "failed to discard owner", map[logging.ExtraKey]any{
			logging.UserID:       userID,
			logging.ErrorMessage: err.Error(),
		})
	}
}

func (m *Manager) discardRoom(ctx context.Context, roomID string) {
	if err := m.store.DeleteRoom(context.WithoutCancel(ctx), roomID); err != nil {
		m.logger.Warn(logging.Lifecycle, logging.RoomCreate, "failed to discard room", map[logging.ExtraKey]any{
			logging.RoomID:       roomID,
			logging.ErrorMessage: err.Error(),
		})
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, domain.RoomEvent) error { return nil }
