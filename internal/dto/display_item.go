package dto

// CreateDisplayItemRequest defines the payload for a new carousel card.
type CreateDisplayItemRequest struct {
	Title       string  `json:"title" validate:"required,max=200"`
	Subtitle    *string `json:"subtitle" validate:"omitempty,max=200"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	ImageURL    *string `json:"image_url" validate:"omitempty,url"`
	LinkURL     *string `json:"link_url" validate:"omitempty,url"`
	Position    *int    `json:"position" validate:"omitempty,min=0"`
	IsActive    *bool   `json:"is_active"`
}

// UpdateDisplayItemRequest defines the payload for editing a carousel card.
type UpdateDisplayItemRequest struct {
	Title       *string `json:"title" validate:"omitempty,min=1,max=200"`
	Subtitle    *string `json:"subtitle" validate:"omitempty,max=200"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	ImageURL    *string `json:"image_url" validate:"omitempty,url"`
	LinkURL     *string `json:"link_url" validate:"omitempty,url"`
	Position    *int    `json:"position" validate:"omitempty,min=0"`
	IsActive    *bool   `json:"is_active"`
}
