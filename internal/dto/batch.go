package dto

// CreateBatchRequest defines the payload for creating a batch.
type CreateBatchRequest struct {
	ExternalID *string `json:"external_id" validate:"omitempty,max=64"`
	Name       string  `json:"name" validate:"required,max=120"`
	Subject    string  `json:"subject" validate:"required,max=120"`
	Capacity   int     `json:"capacity" validate:"required,min=1"`
	IsActive   *bool   `json:"is_active"`
}

// UpdateBatchRequest defines the payload for editing a batch. Enrollment
// counts are never accepted from clients.
type UpdateBatchRequest struct {
	ExternalID *string `json:"external_id" validate:"omitempty,max=64"`
	Name       *string `json:"name" validate:"omitempty,min=1,max=120"`
	Subject    *string `json:"subject" validate:"omitempty,min=1,max=120"`
	Capacity   *int    `json:"capacity" validate:"omitempty,min=1"`
	IsActive   *bool   `json:"is_active"`
}

// PublicBatch is the public listing view of an active batch.
type PublicBatch struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Subject        string `json:"subject"`
	Capacity       int    `json:"capacity"`
	Enrolled       int    `json:"enrolled"`
	AvailableSeats int    `json:"available_seats"`
}
