package domain

import (
	"time"
)

type User struct {
	ID string `json:"id"`
	// Name is unique within a room.
	Name string `json:"name"`
	// RoomID is empty only between creating an owner and creating the owner's room.
	RoomID    string    `json:"roomId"`
	CreatedAt time.Time `json:"createdAt"`
}
