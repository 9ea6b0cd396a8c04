package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

const (
	pdfPageWidth   = 190.0
	pdfHeaderLineH = 8.0
	pdfRowLineH    = 7.0
)

// PDFExporter renders tables into an A4 portrait PDF, repeating the header
// row on every page and numbering pages in the footer.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// ContentType implements Renderer.
func (e *PDFExporter) ContentType() string { return "application/pdf" }

// Extension implements Renderer.
func (e *PDFExporter) Extension() string { return "pdf" }

// Render creates the PDF document.
func (e *PDFExporter) Render(table Table) ([]byte, error) {
	if err := table.validate(); err != nil {
		return nil, fmt.Errorf("pdf: %w", err)
	}
	widths := columnWidths(table.Columns)

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Arial", "I", 8)
		pdf.CellFormat(0, 8, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.SetHeaderFunc(func() {
		if pdf.PageNo() == 1 {
			return
		}
		writeHeaderRow(pdf, table.Columns, widths)
	})
	pdf.AddPage()

	if table.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, table.Title, "", 1, "C", false, 0, "")
	}
	if table.Subtitle != "" {
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 6, table.Subtitle, "", 1, "C", false, 0, "")
	}
	if table.Title != "" || table.Subtitle != "" {
		pdf.Ln(4)
	}
	writeHeaderRow(pdf, table.Columns, widths)

	pdf.SetFont("Arial", "", 9)
	for _, row := range table.Rows {
		for i, value := range row {
			pdf.CellFormat(widths[i], pdfRowLineH, value, "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func writeHeaderRow(pdf *gofpdf.Fpdf, columns []Column, widths []float64) {
	pdf.SetFont("Arial", "B", 10)
	pdf.SetFillColor(230, 230, 230)
	for i, col := range columns {
		pdf.CellFormat(widths[i], pdfHeaderLineH, col.Header, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
}

// columnWidths honours fixed widths and spreads what is left over the rest.
func columnWidths(columns []Column) []float64 {
	widths := make([]float64, len(columns))
	remaining := pdfPageWidth
	flexible := 0
	for i, col := range columns {
		if col.Width > 0 {
			widths[i] = col.Width
			remaining -= col.Width
			continue
		}
		flexible++
	}
	if flexible == 0 {
		return widths
	}
	share := remaining / float64(flexible)
	if share < 10 {
		share = 10
	}
	for i := range widths {
		if widths[i] == 0 {
			widths[i] = share
		}
	}
	return widths
}
