package repository

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrNoSeatAvailable is returned when a guarded seat increment matched no row
	// because the batch is already at capacity (or does not exist).
	ErrNoSeatAvailable = errors.New("no seat available")
	// ErrCapacityBelowEnrolled is returned when a capacity edit would drop below
	// the current enrollment count.
	ErrCapacityBelowEnrolled = errors.New("capacity below enrolled")
	// ErrDuplicateContact is returned when the contact fingerprint unique index rejects an insert.
	ErrDuplicateContact = errors.New("duplicate contact fingerprint")
	// ErrRequestChanged is returned when an enrollment request no longer has the
	// status or batch it was read with.
	ErrRequestChanged = errors.New("enrollment request changed")
	// ErrDuplicateName is returned when a batch name collides with an existing one.
	ErrDuplicateName = errors.New("duplicate name")
)

const uniqueViolation = "23505"

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	if pqErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}
