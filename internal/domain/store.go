package domain

import "context"

// Store persists rooms and users. Every call is synchronous and transactional on its own.
type Store interface {
	CreateUser(ctx context.Context, name string, roomID string) (*User, error)
	GetUser(ctx context.Context, id string) (*User, error)
	SetUserRoom(ctx context.Context, userID, roomID string) error
	DeleteUser(ctx context.Context, id string) error
	ListUsers(ctx context.Context) ([]User, error)

	CreateRoom(ctx context.Context, code, name, ownerID string) (*Room, error)
	GetRoom(ctx context.Context, id string) (*Room, error)
	GetRoomByCode(ctx context.Context, code string) (*Room, error)
	RoomCodeExists(ctx context.Context, code string) (bool, error)
	SetAvailability(ctx context.Context, roomID string, available bool) error
	// DeleteRoom removes the room together with every user that belongs to it.
	DeleteRoom(ctx context.Context, id string) error
	ListRooms(ctx context.Context) ([]Room, error)

	// ListPlayers returns the room's users excluding the owner, oldest first.
	ListPlayers(ctx context.Context, roomID string) ([]User, error)
	CountUsers(ctx context.Context, roomID string) (int, error)
	NameTaken(ctx context.Context, roomID, name string) (bool, error)
}

// CodeGenerator produces candidate join codes of RoomCodeLength characters.
type CodeGenerator interface {
	Generate() (string, error)
}

// WordSource fetches one secret word per round.
type WordSource interface {
	FetchWord(ctx context.Context) (string, error)
}
