package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/batch-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/batch-enrollment-api/pkg/errors"
	"github.com/noah-isme/batch-enrollment-api/pkg/export"
)

// Roster formats.
const (
	RosterFormatCSV = "csv"
	RosterFormatPDF = "pdf"
)

type batchReader interface {
	FindByID(ctx context.Context, id string) (*models.Batch, error)
}

type rosterSource interface {
	ListApprovedByBatch(ctx context.Context, batchName string) ([]models.EnrollmentRequest, error)
}

// RosterFile is a rendered roster ready to be streamed to the client.
type RosterFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportService renders batch rosters of approved enrollment requests.
type ExportService struct {
	batches   batchReader
	requests  rosterSource
	renderers map[string]export.Renderer
	logger    *zap.Logger
	now       func() time.Time
}

// NewExportService constructs an ExportService. Nil renderers fall back to the defaults.
func NewExportService(batches batchReader, requests rosterSource, logger *zap.Logger, csv export.Renderer, pdf export.Renderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		batches:   batches,
		requests:  requests,
		renderers: map[string]export.Renderer{RosterFormatCSV: csv, RosterFormatPDF: pdf},
		logger:    logger,
		now:       time.Now,
	}
}

// Roster renders the approved applicants of a batch in the requested format.
func (s *ExportService) Roster(ctx context.Context, batchID, format string) (*RosterFile, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = RosterFormatCSV
	}
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported roster format %q", format))
	}

	batch, err := s.batches.FindByID(ctx, batchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Transient(err, "failed to load batch")
	}
	requests, err := s.requests.ListApprovedByBatch(ctx, batch.Name)
	if err != nil {
		return nil, appErrors.Transient(err, "failed to load roster")
	}

	payload, err := renderer.Render(rosterTable(batch, requests))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster")
	}
	s.logger.Info("roster exported", zap.String("batch_id", batch.ID), zap.String("format", format), zap.Int("rows", len(requests)))

	filename := fmt.Sprintf("roster_%s_%s.%s", sanitizeFilename(batch.Name), s.now().UTC().Format("20060102_150405"), renderer.Extension())
	return &RosterFile{Filename: filename, ContentType: renderer.ContentType(), Data: payload}, nil
}

func rosterTable(batch *models.Batch, requests []models.EnrollmentRequest) export.Table {
	rows := make([][]string, 0, len(requests))
	for i, r := range requests {
		rows = append(rows, []string{
			fmt.Sprintf("%d", i+1),
			r.FullName,
			r.Contact,
			deref(r.Email),
			r.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	return export.Table{
		Title:    fmt.Sprintf("%s Roster", batch.Name),
		Subtitle: fmt.Sprintf("%s, %d of %d seats taken", batch.Subject, batch.Enrolled, batch.Capacity),
		Columns: []export.Column{
			{Header: "No", Width: 12},
			{Header: "Full Name"},
			{Header: "Contact", Width: 35},
			{Header: "Email"},
			{Header: "Approved At", Width: 40},
		},
		Rows: rows,
	}
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
