package export

import (
	"fmt"

	"github.com/gocarina/gocsv"
)

// CSVExporter renders schedule rows into CSV bytes.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render produces CSV encoded bytes with a header line.
func (e *CSVExporter) Render(doc Document) ([]byte, error) {
	rows := doc.Rows
	if rows == nil {
		rows = []ScheduleRow{}
	}
	out, err := gocsv.MarshalBytes(&rows)
	if err != nil {
		return nil, fmt.Errorf("marshal schedule csv: %w", err)
	}
	return out, nil
}
