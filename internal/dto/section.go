package dto

import "encoding/json"

// PutSectionRequest replaces the payload of a free-form content section.
type PutSectionRequest struct {
	Payload json.RawMessage `json:"payload" validate:"required"`
}

// ReconcileSectionResponse reports the records written by a reconciliation pass.
type ReconcileSectionResponse struct {
	Section string      `json:"section"`
	Records interface{} `json:"records"`
}
