package repository

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	bookingerrors "roomly/internal/bookings/errors"
	"roomly/pkg/config"
	"roomly/pkg/model"
)

const (
	EnrollmentCollectionName = "enrollments"
	TicketCollectionName     = "tickets"
)

// EntitlementRepository reads enrollment and ticket records owned by the
// registration system. Both collections are read-only here.
type EntitlementRepository interface {
	FindEnrollmentByUserID(ctx context.Context, userID string) (*model.Enrollment, error)
	FindTicketByEnrollmentID(ctx context.Context, enrollmentID string) (*model.Ticket, error)
}

type mongoEntitlementRepository struct {
	cfg         *config.Config
	enrollments *mongo.Collection
	tickets     *mongo.Collection
}

func NewMongoEntitlementRepository(cfg *config.Config) EntitlementRepository {
	db := cfg.Client.Mongo.Client.Database(cfg.MongoDatabaseName)
	return &mongoEntitlementRepository{
		cfg:         cfg,
		enrollments: db.Collection(EnrollmentCollectionName),
		tickets:     db.Collection(TicketCollectionName),
	}
}

func (r *mongoEntitlementRepository) FindEnrollmentByUserID(ctx context.Context, userID string) (*model.Enrollment, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.MongoReadTimeout)
	defer cancel()

	var enrollment model.Enrollment
	err := r.enrollments.FindOne(ctx, bson.M{"user_id": userID}).Decode(&enrollment)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: user %s", bookingerrors.ErrEnrollmentNotFound, userID)
		}
		return nil, fmt.Errorf("failed to find enrollment for user [%s]: %w", userID, err)
	}
	return &enrollment, nil
}

func (r *mongoEntitlementRepository) FindTicketByEnrollmentID(ctx context.Context, enrollmentID string) (*model.Ticket, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.MongoReadTimeout)
	defer cancel()

	var ticket model.Ticket
	err := r.tickets.FindOne(ctx, bson.M{"enrollment_id": enrollmentID}).Decode(&ticket)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: enrollment %s", bookingerrors.ErrTicketNotFound, enrollmentID)
		}
		return nil, fmt.Errorf("failed to find ticket for enrollment [%s]: %w", enrollmentID, err)
	}
	return &ticket, nil
}
