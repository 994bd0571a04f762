// Package xlsx renders routing metrics snapshots as Excel workbooks.
package xlsx

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/kb-source-router/internal/core/domain"
)

const (
	SummarySheet = "Summary"
	SourcesSheet = "Sources"

	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// SourceRow is one line of the Sources sheet.
type SourceRow struct {
	Source string
	Usage  int
	Share  float64
}

// SourceRows orders source usage by count descending, then by name.
func SourceRows(snapshot domain.RoutingMetrics) []SourceRow {
	rows := make([]SourceRow, 0, len(snapshot.SourceUsage))
	for source, usage := range snapshot.SourceUsage {
		share := 0.0
		if snapshot.TotalQueries > 0 {
			share = float64(usage) / float64(snapshot.TotalQueries)
		}
		rows = append(rows, SourceRow{Source: source, Usage: usage, Share: share})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Usage != rows[j].Usage {
			return rows[i].Usage > rows[j].Usage
		}
		return rows[i].Source < rows[j].Source
	})
	return rows
}

// WriteSnapshot writes a two-sheet workbook for snapshot to w.
func WriteSnapshot(w io.Writer, snapshot domain.RoutingMetrics) error {
	f := excelize.NewFile()
	defer f.Close()

	// NewFile starts with "Sheet1".
	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return fmt.Errorf("rename summary sheet: %w", err)
	}

	lastUpdated := ""
	if !snapshot.LastUpdated.IsZero() {
		lastUpdated = snapshot.LastUpdated.UTC().Format(time.RFC3339)
	}
	summary := [][]any{
		{"Metric", "Value"},
		{"Total queries", snapshot.TotalQueries},
		{"Successful routes", snapshot.SuccessfulRoutes},
		{"Success rate", snapshot.SuccessRate()},
		{"Running average confidence", snapshot.RunningAvgConfidence},
		{"Last updated", lastUpdated},
	}
	if err := writeRows(f, SummarySheet, summary); err != nil {
		return err
	}

	if _, err := f.NewSheet(SourcesSheet); err != nil {
		return fmt.Errorf("create sources sheet: %w", err)
	}
	sources := [][]any{{"Source", "Usage", "Share"}}
	for _, row := range SourceRows(snapshot) {
		sources = append(sources, []any{row.Source, row.Usage, row.Share})
	}
	if err := writeRows(f, SourcesSheet, sources); err != nil {
		return err
	}

	if err := f.SetColWidth(SummarySheet, "A", "A", 28); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	if err := f.SetColWidth(SourcesSheet, "A", "A", 24); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}
