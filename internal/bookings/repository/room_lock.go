package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	bookingerrors "roomly/internal/bookings/errors"
	"roomly/pkg/config"
	"roomly/pkg/model"
)

const (
	RoomLockCollectionName = "booking_room_locks"

	roomLockIDPrefix = "room_lock_"
)

// RoomLockRepository manages short-lived advisory locks that serialize
// capacity checks per room. Lock documents carry a TTL so a crashed holder
// cannot wedge a room; the TTL index lives in the migration.
type RoomLockRepository interface {
	Acquire(ctx context.Context, roomID string) error
	Release(ctx context.Context, roomID string) error
}

type mongoRoomLockRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoRoomLockRepository(cfg *config.Config) RoomLockRepository {
	db := cfg.Client.Mongo.Client.Database(cfg.MongoDatabaseName)
	return &mongoRoomLockRepository{
		cfg:        cfg,
		collection: db.Collection(RoomLockCollectionName),
	}
}

func lockID(roomID string) string {
	return roomLockIDPrefix + roomID
}

func (r *mongoRoomLockRepository) Acquire(ctx context.Context, roomID string) error {
	ctx, cancel := withTimeout(ctx, r.cfg.MongoWriteTimeout)
	defer cancel()

	now := time.Now().UTC()
	lock := model.RoomLock{
		ID:        lockID(roomID),
		CreatedAt: now,
		ExpiresAt: now.Add(r.cfg.RoomLockTTL),
	}

	_, err := r.collection.InsertOne(ctx, lock)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: room %s", bookingerrors.ErrLockHeld, roomID)
		}
		return fmt.Errorf("failed to acquire room lock [%s]: %w", roomID, err)
	}
	return nil
}

func (r *mongoRoomLockRepository) Release(ctx context.Context, roomID string) error {
	ctx, cancel := withTimeout(ctx, r.cfg.MongoWriteTimeout)
	defer cancel()

	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": lockID(roomID)})
	if err != nil {
		return fmt.Errorf("failed to release room lock [%s]: %w", roomID, err)
	}
	return nil
}
