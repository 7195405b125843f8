package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hilthontt/impostor/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

type postgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresPool opens and pings a connection pool.
func NewPostgresPool(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}

	if maxConns > 0 {
		config.MaxConns = maxConns
	}
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return pool, nil
}

// NewPostgresStore expects the schema from the migrations package to be applied.
func NewPostgresStore(pool *pgxpool.Pool) domain.Store {
	return &postgresStore{pool: pool}
}

func (s *postgresStore) CreateUser(ctx context.Context, name string, roomID string) (*domain.User, error) {
	if name == "" {
		return nil, domain.ErrInvalidInput
	}

	user := domain.User{ID: uuid.NewString(), Name: name, RoomID: roomID}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (id, name, room_id) VALUES ($1, $2, $3) RETURNING created_at`,
		user.ID, user.Name, nullable(roomID),
	).Scan(&user.CreatedAt)
	if err != nil {
		return nil, mapError(fmt.Sprintf("insert user %s", name), err)
	}

	return &user, nil
}

func (s *postgresStore) GetUser(ctx context.Context, id string) (*domain.User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, COALESCE(room_id, ''), created_at FROM users WHERE id = $1`, id)

	user, err := scanUser(row)
	if err != nil {
		return nil, mapError("user "+id, err)
	}
	return user, nil
}

func (s *postgresStore) SetUserRoom(ctx context.Context, userID, roomID string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET room_id = $2 WHERE id = $1`, userID, roomID)
	if err != nil {
		return mapError("user "+userID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
	}
	return nil
}

func (s *postgresStore) DeleteUser(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return mapError("user "+id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *postgresStore) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, COALESCE(room_id, ''), created_at FROM users ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return collectUsers(rows)
}

func (s *postgresStore) CreateRoom(ctx context.Context, code, name, ownerID string) (*domain.Room, error) {
	if code == "" || name == "" || ownerID == "" {
		return nil, domain.ErrInvalidInput
	}

	var ownerExists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, ownerID,
	).Scan(&ownerExists); err != nil {
		return nil, fmt.Errorf("failed to look up owner: %w", err)
	}
	if !ownerExists {
		return nil, fmt.Errorf("owner %s: %w", ownerID, domain.ErrNotFound)
	}

	room := domain.Room{ID: uuid.NewString(), Code: code, Name: name, OwnerID: ownerID, Available: true}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO rooms (id, code, name, owner_id) VALUES ($1, $2, $3, $4) RETURNING created_at`,
		room.ID, room.Code, room.Name, room.OwnerID,
	).Scan(&room.CreatedAt)
	if err != nil {
		return nil, mapError("room code "+code, err)
	}

	return &room, nil
}

func (s *postgresStore) GetRoom(ctx context.Context, id string) (*domain.Room, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, code, name, owner_id, available, created_at FROM rooms WHERE id = $1`, id)

	room, err := scanRoom(row)
	if err != nil {
		return nil, mapError("room "+id, err)
	}
	return room, nil
}

func (s *postgresStore) GetRoomByCode(ctx context.Context, code string) (*domain.Room, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, code, name, owner_id, available, created_at FROM rooms WHERE code = $1`, code)

	room, err := scanRoom(row)
	if err != nil {
		return nil, mapError("room code "+code, err)
	}
	return room, nil
}

func (s *postgresStore) RoomCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM rooms WHERE code = $1)`, code,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check room code: %w", err)
	}
	return exists, nil
}

func (s *postgresStore) SetAvailability(ctx context.Context, roomID string, available bool) error {
	tag, err := s.pool.Exec(ctx, `UPDATE rooms SET available = $2 WHERE id = $1`, roomID, available)
	if err != nil {
		return mapError("room "+roomID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("room %s: %w", roomID, domain.ErrNotFound)
	}
	return nil
}

// DeleteRoom relies on users.room_id cascading.
func (s *postgresStore) DeleteRoom(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM rooms WHERE id = $1`, id)
	if err != nil {
		return mapError("room "+id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("room %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *postgresStore) ListRooms(ctx context.Context) ([]domain.Room, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, code, name, owner_id, available, created_at FROM rooms ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}

	rooms, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Room, error) {
		room, err := scanRoom(row)
		if err != nil {
			return domain.Room{}, err
		}
		return *room, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan rooms: %w", err)
	}
	return rooms, nil
}

func (s *postgresStore) ListPlayers(ctx context.Context, roomID string) ([]domain.User, error) {
	if _, err := s.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT u.id, u.name, u.room_id, u.created_at
		FROM users u JOIN rooms r ON r.id = u.room_id
		WHERE u.room_id = $1 AND u.id <> r.owner_id
		ORDER BY u.seq`, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}
	return collectUsers(rows)
}

func (s *postgresStore) CountUsers(ctx context.Context, roomID string) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM users WHERE room_id = $1`, roomID,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

func (s *postgresStore) NameTaken(ctx context.Context, roomID, name string) (bool, error) {
	var taken bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE room_id = $1 AND name = $2)`, roomID, name,
	).Scan(&taken); err != nil {
		return false, fmt.Errorf("failed to check user name: %w", err)
	}
	return taken, nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Name, &u.RoomID, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func scanRoom(row pgx.Row) (*domain.Room, error) {
	var r domain.Room
	if err := row.Scan(&r.ID, &r.Code, &r.Name, &r.OwnerID, &r.Available, &r.CreatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

func collectUsers(rows pgx.Rows) ([]domain.User, error) {
	users, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.User, error) {
		u, err := scanUser(row)
		if err != nil {
			return domain.User{}, err
		}
		return *u, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan users: %w", err)
	}
	return users, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func mapError(what string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%s: %w", what, domain.ErrConflict)
		case pgForeignKeyViolation:
			return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
		}
	}

	return fmt.Errorf("%s: %w", what, err)
}
