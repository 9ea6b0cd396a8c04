package models

import (
	"encoding/json"
	"time"
)

// Section names owned by the reconciler. Any other name is a free-form content
// section managed directly by admins.
const (
	SectionOngoingBatches  = "ongoingBatches"
	SectionDisplayCarousel = "displayCarousel"
)

// OwnedSections lists the sections whose payload is regenerated from source entities.
var OwnedSections = []string{SectionOngoingBatches, SectionDisplayCarousel}

// IsOwnedSection reports whether name is regenerated by the reconciler.
func IsOwnedSection(name string) bool {
	for _, owned := range OwnedSections {
		if owned == name {
			return true
		}
	}
	return false
}

// SectionPalette is the fixed set of display colors assigned by position.
var SectionPalette = []string{"#2563EB", "#16A34A", "#DB2777", "#F59E0B", "#7C3AED", "#0891B2"}

// PaletteColor returns the palette entry for a zero-based position.
func PaletteColor(position int) string {
	if position < 0 {
		position = -position
	}
	return SectionPalette[position%len(SectionPalette)]
}

// SectionDocument is a named, read-optimized payload served to public consumers.
type SectionDocument struct {
	Name      string          `db:"name" json:"name"`
	Payload   json.RawMessage `db:"payload" json:"payload"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// ViewRecord is one public-facing projection of a batch or display item inside
// an owned section document.
type ViewRecord struct {
	ID             string  `json:"id"`
	SourceID       string  `json:"source_id"`
	Title          string  `json:"title"`
	Subtitle       *string `json:"subtitle,omitempty"`
	Description    *string `json:"description,omitempty"`
	Color          string  `json:"color"`
	IsActive       bool    `json:"is_active"`
	Hidden         bool    `json:"hidden"`
	Capacity       *int    `json:"capacity,omitempty"`
	Enrolled       *int    `json:"enrolled,omitempty"`
	AvailableSeats *int    `json:"available_seats,omitempty"`
	ImageURL       *string `json:"image_url,omitempty"`
	LinkURL        *string `json:"link_url,omitempty"`
}

// DecodeViewRecords parses an owned section payload. Empty payloads decode to no records.
func DecodeViewRecords(payload json.RawMessage) ([]ViewRecord, error) {
	if len(payload) == 0 || string(payload) == "null" {
		return nil, nil
	}
	var records []ViewRecord
	if err := json.Unmarshal(payload, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// ViewRecordPatch carries admin overrides applied to a single view record.
type ViewRecordPatch struct {
	Hidden      *bool   `json:"hidden"`
	Title       *string `json:"title" validate:"omitempty,min=1,max=200"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	Color       *string `json:"color" validate:"omitempty,hexcolor"`
	IsActive    *bool   `json:"is_active"`
}

// Empty reports whether the patch changes nothing.
func (p ViewRecordPatch) Empty() bool {
	return p.Hidden == nil && p.Title == nil && p.Description == nil && p.Color == nil && p.IsActive == nil
}
