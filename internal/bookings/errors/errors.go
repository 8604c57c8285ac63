package errors

import "errors"

var (
	ErrNotFound = errors.New("booking not found")

	ErrInvalidID = errors.New("invalid booking ID format")

	ErrRoomNotFound = errors.New("room not found")

	ErrDuplicateUser = errors.New("user already has a booking")

	ErrLockHeld = errors.New("room lock is held by another request")

	ErrEnrollmentNotFound = errors.New("enrollment not found")

	ErrTicketNotFound = errors.New("ticket not found")
)
