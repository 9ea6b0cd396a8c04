package models

import "time"

// DisplayItem is a standalone card shown in the public display carousel, such
// as an instructor profile. It is the normalized source of the carousel section.
type DisplayItem struct {
	ID          string    `db:"id" json:"id"`
	LegacyID    *string   `db:"legacy_id" json:"legacy_id,omitempty"`
	Title       string    `db:"title" json:"title"`
	Subtitle    *string   `db:"subtitle" json:"subtitle,omitempty"`
	Description *string   `db:"description" json:"description,omitempty"`
	ImageURL    *string   `db:"image_url" json:"image_url,omitempty"`
	LinkURL     *string   `db:"link_url" json:"link_url,omitempty"`
	Position    int       `db:"position" json:"position"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// DisplayID prefers the identifier carried over from the legacy carousel document.
func (d DisplayItem) DisplayID() string {
	if d.LegacyID != nil && *d.LegacyID != "" {
		return *d.LegacyID
	}
	return d.ID
}
