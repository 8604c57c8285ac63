package model

import (
	"time"
)

type Booking struct {
	ID        string    `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	UserID    string    `json:"user_id" bson:"user_id" validate:"required"`
	RoomID    string    `json:"room_id" bson:"room_id" validate:"required,mongodb"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// BookingDetail is a booking joined with its room, as returned by reads.
type BookingDetail struct {
	Booking `bson:",inline"`
	Room    *Room `json:"room,omitempty" bson:"room,omitempty"`
}
