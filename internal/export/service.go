// Package export renders metrics into XLSX workbooks for operators.
package export

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/facturai/invoice-engine/internal/metrics"
)

// Service produces XLSX bytes from the live metrics collector.
type Service struct {
	collector *metrics.Collector
	logger    *slog.Logger
}

func NewService(collector *metrics.Collector, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{collector: collector, logger: logger}
}

// MetricsXLSX returns a workbook with one sheet of per-backend
// aggregates and one of recent attempts. recentLimit caps the second
// sheet; zero means everything the collector retained.
func (s *Service) MetricsXLSX(recentLimit int) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	const statsSheet = "Backends"
	const recentSheet = "Recent"

	if index, _ := f.GetSheetIndex(statsSheet); index == -1 {
		if _, err := f.NewSheet(statsSheet); err != nil {
			return nil, err
		}
	}
	if _, err := f.NewSheet(recentSheet); err != nil {
		return nil, err
	}
	activeIndex, _ := f.GetSheetIndex(statsSheet)
	f.SetActiveSheet(activeIndex)
	// excelize seeds a default "Sheet1" we never use
	_ = f.DeleteSheet("Sheet1")

	statsHeaders := []string{
		"Backend",
		"Attempts",
		"Successes",
		"Failures",
		"Success Rate",
		"Avg Duration (ms)",
		"Avg Confidence",
	}
	for i, h := range statsHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(statsSheet, cell, h)
	}

	snap := s.collector.Snapshot()
	names := make([]string, 0, len(snap))
	for name := range snap {
		names = append(names, name)
	}
	sort.Strings(names)

	row := 2
	for _, name := range names {
		st := snap[name]
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(statsSheet, cell, v)
		}
		write(1, name)
		write(2, st.Attempts)
		write(3, st.Successes)
		write(4, st.Failures)
		write(5, fmt.Sprintf("%.1f%%", st.SuccessRate*100))
		write(6, st.AvgDurationMS)
		write(7, fmt.Sprintf("%.2f", st.AvgConfidence))
		row++
	}

	recentHeaders := []string{
		"Timestamp",
		"Backend",
		"Filename",
		"Success",
		"Error Kind",
		"Duration (ms)",
		"Confidence",
	}
	for i, h := range recentHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(recentSheet, cell, h)
	}

	attempts := s.collector.Recent(recentLimit)
	for i, a := range attempts {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, i+2)
			_ = f.SetCellValue(recentSheet, cell, v)
		}
		write(1, a.StartedAt.UTC().Format(time.RFC3339))
		write(2, a.Backend)
		write(3, a.Filename)
		write(4, a.Success)
		write(5, a.ErrorKind)
		write(6, a.DurationMS)
		if a.Confidence != nil {
			write(7, fmt.Sprintf("%.2f", *a.Confidence))
		}
	}

	_ = f.SetColWidth(statsSheet, "A", "A", 14)
	_ = f.SetColWidth(statsSheet, "B", "G", 16)
	_ = f.SetColWidth(recentSheet, "A", "A", 22)
	_ = f.SetColWidth(recentSheet, "B", "C", 24)
	_ = f.SetColWidth(recentSheet, "D", "G", 14)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"backends", len(names),
		"recent_rows", len(attempts),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}
