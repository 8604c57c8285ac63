package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	bookingerrors "roomly/internal/bookings/errors"
	"roomly/pkg/config"
	mongotx "roomly/pkg/db/mongo"
	"roomly/pkg/model"
)

const (
	BookingCollectionName = "bookings"
)

type BookingRepository interface {
	Create(ctx context.Context, booking *model.Booking) error
	FindByUserID(ctx context.Context, userID string) (*model.Booking, error)
	CountByRoomID(ctx context.Context, roomID string) (int64, error)
	UpsertRoomByID(ctx context.Context, id string, userID string, roomID string) error

	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

type mongoBookingRepository struct {
	cfg        *config.Config
	db         *mongo.Database
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

func NewMongoBookingRepository(cfg *config.Config) BookingRepository {
	db := cfg.Client.Mongo.Client.Database(cfg.MongoDatabaseName)
	return &mongoBookingRepository{
		cfg:        cfg,
		db:         db,
		collection: db.Collection(BookingCollectionName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo.Client),
	}
}

// withTimeout wraps the context with a timeout unless it already runs inside a
// transaction. SessionContext must not be wrapped, so the original context is
// returned with a no-op cancel in that case.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}

	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		return context.WithTimeout(ctx, timeout)
	}

	remaining := time.Until(deadline)
	if remaining < timeout {
		return context.WithTimeout(ctx, remaining)
	}

	return context.WithTimeout(ctx, timeout)
}

func (r *mongoBookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	ctx, cancel := withTimeout(ctx, r.cfg.MongoWriteTimeout)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Millisecond)
	booking.CreatedAt = now
	booking.UpdatedAt = now

	result, err := r.collection.InsertOne(ctx, booking)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", bookingerrors.ErrDuplicateUser, booking.UserID)
		}
		return fmt.Errorf("failed to create booking: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		booking.ID = oid.Hex()
	}

	return nil
}

func (r *mongoBookingRepository) FindByUserID(ctx context.Context, userID string) (*model.Booking, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.MongoReadTimeout)
	defer cancel()

	var booking model.Booking
	err := r.collection.FindOne(ctx, bson.M{"user_id": userID}).Decode(&booking)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: user %s", bookingerrors.ErrNotFound, userID)
		}
		return nil, fmt.Errorf("failed to find booking for user [%s]: %w", userID, err)
	}
	return &booking, nil
}

func (r *mongoBookingRepository) CountByRoomID(ctx context.Context, roomID string) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.MongoReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, bson.M{"room_id": roomID})
	if err != nil {
		return 0, fmt.Errorf("failed to count bookings for room [%s]: %w", roomID, err)
	}
	return count, nil
}

// UpsertRoomByID reassigns an existing booking to a new room, keeping the
// booking identity stable. The upsert guards against the document having been
// removed between the ownership check and the write.
func (r *mongoBookingRepository) UpsertRoomByID(ctx context.Context, id string, userID string, roomID string) error {
	ctx, cancel := withTimeout(ctx, r.cfg.MongoWriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", bookingerrors.ErrInvalidID, id)
	}

	filter := bson.M{"_id": objectID}
	update := bson.M{
		"$set": bson.M{
			"room_id":    roomID,
			"updated_at": time.Now().UTC().Truncate(time.Millisecond),
		},
		"$setOnInsert": bson.M{
			"user_id":    userID,
			"created_at": time.Now().UTC().Truncate(time.Millisecond),
		},
	}

	_, err = r.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", bookingerrors.ErrDuplicateUser, userID)
		}
		return fmt.Errorf("failed to update booking [%s]: %w", id, err)
	}

	return nil
}

func (r *mongoBookingRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}
