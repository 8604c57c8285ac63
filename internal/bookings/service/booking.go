package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingerrors "roomly/internal/bookings/errors"
	"roomly/internal/bookings/events"
	"roomly/internal/bookings/repository"
	"roomly/internal/bookings/validator"
	"roomly/pkg/config"
	apperrors "roomly/pkg/errors"
	"roomly/pkg/model"
)

type BookingService interface {
	Get(ctx context.Context, userID string) (*model.BookingDetail, error)
	Create(ctx context.Context, userID string, roomID string) (*model.Booking, error)
	Modify(ctx context.Context, userID string, bookingID string, roomID string) (*model.Booking, error)
}

type bookingService struct {
	bookings     repository.BookingRepository
	rooms        repository.RoomRepository
	entitlements repository.EntitlementRepository
	locks        repository.RoomLockRepository
	validator    *validator.BookingValidator
	publisher    events.Publisher
	cfg          *config.Config
}

func NewBookingService(
	bookings repository.BookingRepository,
	rooms repository.RoomRepository,
	entitlements repository.EntitlementRepository,
	locks repository.RoomLockRepository,
	validator *validator.BookingValidator,
	publisher events.Publisher,
	cfg *config.Config,
) BookingService {
	return &bookingService{
		bookings:     bookings,
		rooms:        rooms,
		entitlements: entitlements,
		locks:        locks,
		validator:    validator,
		publisher:    publisher,
		cfg:          cfg,
	}
}

func (s *bookingService) Get(ctx context.Context, userID string) (*model.BookingDetail, error) {
	if userID == "" {
		return nil, apperrors.InvalidInput("User ID cannot be empty")
	}

	booking, err := s.bookings.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, bookingerrors.ErrNotFound) {
			return nil, apperrors.NotFound("Booking")
		}
		s.cfg.Log.Error("Failed to get booking", "user_id", userID, "error", err)
		return nil, apperrors.Internal("Failed to get booking", err)
	}

	detail := &model.BookingDetail{Booking: *booking}

	room, err := s.rooms.FindByID(ctx, booking.RoomID)
	if err != nil {
		// A booking referencing a vanished room is a catalog inconsistency,
		// not a reason to hide the booking from its owner.
		s.cfg.Log.Warn("Failed to load room for booking",
			"booking_id", booking.ID,
			"room_id", booking.RoomID,
			"error", err,
		)
		return detail, nil
	}

	detail.Room = room
	return detail, nil
}

func (s *bookingService) Create(ctx context.Context, userID string, roomID string) (*model.Booking, error) {
	req := &validator.AllocationRequest{UserID: userID, RoomID: roomID}
	if err := s.validator.Validate(req); err != nil {
		s.cfg.Log.Warn("Booking request validation failed",
			"user_id", userID,
			"room_id", roomID,
			"error", err,
		)
		return nil, apperrors.Validation("Booking request validation failed", map[string]any{
			"error": err.Error(),
		})
	}

	if err := s.checkEntitlement(ctx, userID); err != nil {
		return nil, err
	}

	room, err := s.findRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	booking := &model.Booking{UserID: userID, RoomID: roomID}

	err = s.withRoomLock(ctx, roomID, func() error {
		return s.bookings.ExecuteTransaction(ctx, func(sessCtx context.Context) error {
			if err := s.checkCapacity(sessCtx, room); err != nil {
				return err
			}

			if err := s.bookings.Create(sessCtx, booking); err != nil {
				if errors.Is(err, bookingerrors.ErrDuplicateUser) {
					return apperrors.Conflict("User already has a booking")
				}
				return fmt.Errorf("failed to create booking: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		s.cfg.Log.Error("Failed to create booking",
			"user_id", userID,
			"room_id", roomID,
			"error", err,
		)
		return nil, err
	}

	s.cfg.Log.Info("Booking created",
		"booking_id", booking.ID,
		"user_id", userID,
		"room_id", roomID,
	)
	s.emit(ctx, events.EventBookingCreated, booking)

	return booking, nil
}

func (s *bookingService) Modify(ctx context.Context, userID string, bookingID string, roomID string) (*model.Booking, error) {
	req := &validator.AllocationRequest{UserID: userID, RoomID: roomID, BookingID: bookingID}
	if err := s.validator.Validate(req); err != nil {
		s.cfg.Log.Warn("Booking request validation failed",
			"user_id", userID,
			"booking_id", bookingID,
			"room_id", roomID,
			"error", err,
		)
		return nil, apperrors.Validation("Booking request validation failed", map[string]any{
			"error": err.Error(),
		})
	}

	existing, err := s.bookings.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, bookingerrors.ErrNotFound) {
			return nil, apperrors.CannotBook(apperrors.CauseNotOwner)
		}
		s.cfg.Log.Error("Failed to look up booking", "user_id", userID, "error", err)
		return nil, apperrors.Internal("Failed to look up booking", err)
	}

	// The lookup is keyed by user, so a mismatch means the caller passed
	// someone else's booking ID.
	if existing.ID != bookingID {
		s.cfg.Log.Warn("Booking ownership mismatch",
			"user_id", userID,
			"owned_booking_id", existing.ID,
			"requested_booking_id", bookingID,
		)
		return nil, apperrors.CannotBook(apperrors.CauseNotOwner)
	}

	room, err := s.findRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	err = s.withRoomLock(ctx, roomID, func() error {
		return s.bookings.ExecuteTransaction(ctx, func(sessCtx context.Context) error {
			if err := s.checkCapacity(sessCtx, room); err != nil {
				return err
			}

			if err := s.bookings.UpsertRoomByID(sessCtx, existing.ID, userID, roomID); err != nil {
				return fmt.Errorf("failed to move booking: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		s.cfg.Log.Error("Failed to modify booking",
			"booking_id", bookingID,
			"user_id", userID,
			"room_id", roomID,
			"error", err,
		)
		return nil, err
	}

	existing.RoomID = roomID
	existing.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)

	s.cfg.Log.Info("Booking moved",
		"booking_id", existing.ID,
		"user_id", userID,
		"room_id", roomID,
	)
	s.emit(ctx, events.EventBookingRoomChanged, existing)

	return existing, nil
}

// checkEntitlement gates allocation on the caller's registration: a paid,
// in-person ticket that includes a hotel stay. Any missing link in the chain
// is reported as ineligibility, not as a lookup miss.
func (s *bookingService) checkEntitlement(ctx context.Context, userID string) error {
	enrollment, err := s.entitlements.FindEnrollmentByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, bookingerrors.ErrEnrollmentNotFound) {
			return apperrors.CannotBook(apperrors.CauseIneligible)
		}
		s.cfg.Log.Error("Failed to look up enrollment", "user_id", userID, "error", err)
		return apperrors.Internal("Failed to check eligibility", err)
	}

	ticket, err := s.entitlements.FindTicketByEnrollmentID(ctx, enrollment.ID)
	if err != nil {
		if errors.Is(err, bookingerrors.ErrTicketNotFound) {
			return apperrors.CannotBook(apperrors.CauseIneligible)
		}
		s.cfg.Log.Error("Failed to look up ticket",
			"user_id", userID,
			"enrollment_id", enrollment.ID,
			"error", err,
		)
		return apperrors.Internal("Failed to check eligibility", err)
	}

	if !ticket.QualifiesForBooking() {
		s.cfg.Log.Info("User not entitled to a booking",
			"user_id", userID,
			"ticket_status", ticket.Status,
			"is_remote", ticket.TicketType.IsRemote,
			"includes_hotel", ticket.TicketType.IncludesHotel,
		)
		return apperrors.CannotBook(apperrors.CauseIneligible)
	}

	return nil
}

func (s *bookingService) findRoom(ctx context.Context, roomID string) (*model.Room, error) {
	room, err := s.rooms.FindByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, bookingerrors.ErrRoomNotFound) {
			return nil, apperrors.NotFoundWithID("Room", roomID)
		}
		s.cfg.Log.Error("Failed to look up room", "room_id", roomID, "error", err)
		return nil, apperrors.Internal("Failed to look up room", err)
	}
	return room, nil
}

// checkCapacity must run inside the room-lock plus transaction scope so that
// the count it observes cannot change before the paired write commits.
func (s *bookingService) checkCapacity(ctx context.Context, room *model.Room) error {
	count, err := s.bookings.CountByRoomID(ctx, room.ID)
	if err != nil {
		return fmt.Errorf("failed to count room occupancy: %w", err)
	}
	if count >= int64(room.Capacity) {
		return apperrors.CannotBook(apperrors.CauseOverCapacity)
	}
	return nil
}

// withRoomLock serializes allocations targeting one room. Contention is
// surfaced as a retryable conflict rather than queued.
func (s *bookingService) withRoomLock(ctx context.Context, roomID string, fn func() error) error {
	if err := s.locks.Acquire(ctx, roomID); err != nil {
		if errors.Is(err, bookingerrors.ErrLockHeld) {
			return apperrors.Conflict("Room allocation in progress, retry shortly")
		}
		return fmt.Errorf("failed to lock room: %w", err)
	}
	defer func() {
		// The lock must be released even when the request context is gone;
		// the TTL index is only the crash fallback.
		if err := s.locks.Release(context.WithoutCancel(ctx), roomID); err != nil {
			s.cfg.Log.Error("Failed to release room lock", "room_id", roomID, "error", err)
		}
	}()

	return fn()
}

func (s *bookingService) emit(ctx context.Context, eventType string, booking *model.Booking) {
	if s.publisher == nil {
		return
	}

	event := events.BookingEvent{
		BookingID:  booking.ID,
		UserID:     booking.UserID,
		RoomID:     booking.RoomID,
		OccurredAt: time.Now().UTC(),
	}

	var err error
	switch eventType {
	case events.EventBookingCreated:
		err = s.publisher.BookingCreated(ctx, event)
	case events.EventBookingRoomChanged:
		err = s.publisher.BookingRoomChanged(ctx, event)
	}
	if err != nil {
		// Event delivery is best effort; the allocation already committed.
		s.cfg.Log.Error("Failed to publish booking event",
			"event_type", eventType,
			"booking_id", booking.ID,
			"error", err,
		)
	}
}
