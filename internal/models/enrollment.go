package models

import (
	"strings"
	"time"
)

// EnrollmentStatus represents the approval lifecycle of an enrollment request.
type EnrollmentStatus string

// Possible enrollment request statuses.
const (
	EnrollmentStatusPending  EnrollmentStatus = "pending"
	EnrollmentStatusApproved EnrollmentStatus = "approved"
	EnrollmentStatusRejected EnrollmentStatus = "rejected"
)

// Valid reports whether s is a known status.
func (s EnrollmentStatus) Valid() bool {
	switch s {
	case EnrollmentStatusPending, EnrollmentStatusApproved, EnrollmentStatusRejected:
		return true
	}
	return false
}

// HoldsSeat reports whether a request in this status occupies a batch seat.
func (s EnrollmentStatus) HoldsSeat() bool {
	return s == EnrollmentStatusApproved
}

// EnrollmentRequest captures an applicant's request for a seat in a batch. The
// batch is referenced by name and resolved whenever the request transitions.
type EnrollmentRequest struct {
	ID                 string           `db:"id" json:"id"`
	FullName           string           `db:"full_name" json:"full_name"`
	Contact            string           `db:"contact" json:"contact"`
	ContactFingerprint string           `db:"contact_fingerprint" json:"-"`
	Email              *string          `db:"email" json:"email,omitempty"`
	BatchName          string           `db:"batch_name" json:"batch_name"`
	Status             EnrollmentStatus `db:"status" json:"status"`
	Notes              *string          `db:"notes" json:"notes,omitempty"`
	CreatedAt          time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time        `db:"updated_at" json:"updated_at"`
}

// EnrollmentFilter provides filters for listing enrollment requests.
type EnrollmentFilter struct {
	BatchName string
	Status    EnrollmentStatus
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

var contactNoise = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "", "\t", "")

// ContactFingerprint normalises a phone number or e-mail so that formatting
// differences do not defeat the one-request-per-contact rule.
func ContactFingerprint(contact string) string {
	normalized := strings.ToLower(strings.TrimSpace(contact))
	normalized = contactNoise.Replace(normalized)
	return strings.TrimPrefix(normalized, "+")
}
