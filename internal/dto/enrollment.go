package dto

import "github.com/noah-isme/batch-enrollment-api/internal/models"

// CreateEnrollmentRequest is the public form submission for a batch seat.
type CreateEnrollmentRequest struct {
	FullName  string  `json:"full_name" validate:"required,min=2,max=150"`
	Contact   string  `json:"contact" validate:"required,min=5,max=60"`
	Email     *string `json:"email" validate:"omitempty,email"`
	BatchName string  `json:"batch_name" validate:"required,max=120"`
	Notes     *string `json:"notes" validate:"omitempty,max=1000"`
}

// SetEnrollmentStatusRequest moves a request to another status.
type SetEnrollmentStatusRequest struct {
	Status models.EnrollmentStatus `json:"status" validate:"required,oneof=pending approved rejected"`
	Notes  *string                 `json:"notes" validate:"omitempty,max=1000"`
}

// UpdateEnrollmentRequest edits applicant fields. A different batch name
// reassigns the request and, when approved, its seat.
type UpdateEnrollmentRequest struct {
	FullName  *string `json:"full_name" validate:"omitempty,min=2,max=150"`
	Contact   *string `json:"contact" validate:"omitempty,min=5,max=60"`
	Email     *string `json:"email" validate:"omitempty,email"`
	BatchName *string `json:"batch_name" validate:"omitempty,min=1,max=120"`
	Notes     *string `json:"notes" validate:"omitempty,max=1000"`
}
