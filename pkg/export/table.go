package export

import "fmt"

// Column describes one column of an exported table. Width is used by the PDF
// renderer only, in millimetres; zero spreads the remaining width evenly.
type Column struct {
	Header string
	Width  float64
}

// Table is renderer-independent tabular export content.
type Table struct {
	Title    string
	Subtitle string
	Columns  []Column
	Rows     [][]string
}

// Renderer turns a table into a downloadable document.
type Renderer interface {
	Render(table Table) ([]byte, error)
	ContentType() string
	Extension() string
}

func (t Table) validate() error {
	if len(t.Columns) == 0 {
		return fmt.Errorf("table requires at least one column")
	}
	for i, row := range t.Rows {
		if len(row) != len(t.Columns) {
			return fmt.Errorf("row %d has %d cells, want %d", i, len(row), len(t.Columns))
		}
	}
	return nil
}

func (t Table) headers() []string {
	headers := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		headers[i] = col.Header
	}
	return headers
}
