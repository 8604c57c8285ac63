package model

import "time"

// RoomLock is an advisory lock document serializing allocations to one room.
// The unique _id makes acquisition an atomic insert; the TTL index on
// expires_at reclaims locks orphaned by a crashed request.
type RoomLock struct {
	ID        string    `bson:"_id"`
	CreatedAt time.Time `bson:"created_at"`
	ExpiresAt time.Time `bson:"expires_at"`
}
