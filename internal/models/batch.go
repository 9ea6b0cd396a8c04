package models

import "time"

// Batch is a scheduled class session group with a bounded number of seats.
// Enrolled is only ever changed through the guarded seat operations of the
// batch repository.
type Batch struct {
	ID         string    `db:"id" json:"id"`
	ExternalID *string   `db:"external_id" json:"external_id,omitempty"`
	Name       string    `db:"name" json:"name"`
	Subject    string    `db:"subject" json:"subject"`
	Capacity   int       `db:"capacity" json:"capacity"`
	Enrolled   int       `db:"enrolled" json:"enrolled"`
	IsActive   bool      `db:"is_active" json:"is_active"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// AvailableSeats returns the remaining capacity, never negative.
func (b Batch) AvailableSeats() int {
	if b.Enrolled >= b.Capacity {
		return 0
	}
	return b.Capacity - b.Enrolled
}

// Full reports whether no seat is left.
func (b Batch) Full() bool {
	return b.Enrolled >= b.Capacity
}

// DisplayID prefers the external identifier when one was imported.
func (b Batch) DisplayID() string {
	if b.ExternalID != nil && *b.ExternalID != "" {
		return *b.ExternalID
	}
	return b.ID
}

// BatchFilter defines filter criteria for listing batches.
type BatchFilter struct {
	Search     string
	ActiveOnly bool
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}

// Pagination describes a page of list results.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
