package export

import (
	"fmt"
	"io"
	"sort"

	"github.com/mohamedkhairy/displacement-tracker/internal/models"
	"github.com/xuri/excelize/v2"
)

const (
	SheetScores  = "Scores"
	SheetMetrics = "Metrics"
	SheetRun     = "Run"
)

// ContentType is the MIME type of the generated workbook
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// WriteReport renders a report as an xlsx workbook with one sheet of
// composite scores, one of per-metric changes and one of run metadata.
func WriteReport(w io.Writer, report *models.Report) error {
	if report == nil {
		return fmt.Errorf("export: nil report")
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetScores); err != nil {
		return err
	}
	if err := writeScores(f, report); err != nil {
		return fmt.Errorf("write scores sheet: %w", err)
	}

	if _, err := f.NewSheet(SheetMetrics); err != nil {
		return err
	}
	if err := writeMetrics(f, report); err != nil {
		return fmt.Errorf("write metrics sheet: %w", err)
	}

	if _, err := f.NewSheet(SheetRun); err != nil {
		return err
	}
	if err := writeRun(f, report); err != nil {
		return fmt.Errorf("write run sheet: %w", err)
	}

	_, err := f.WriteTo(w)
	return err
}

func writeScores(f *excelize.File, report *models.Report) error {
	if err := setRow(f, SheetScores, 1, "Window", "Score", "Level", "Weight Set", "Weighted Z"); err != nil {
		return err
	}
	row := 2
	for _, window := range models.AllWindows() {
		score, ok := report.Score(window)
		if !ok {
			continue
		}
		if err := setRow(f, SheetScores, row,
			window.Label(), score.Score, string(score.Level), score.WeightSet, score.WeightedZ,
		); err != nil {
			return err
		}
		row++
	}
	return nil
}

func writeMetrics(f *excelize.File, report *models.Report) error {
	header := []interface{}{"Metric", "Label", "Latest Date", "Latest Value"}
	for _, window := range models.AllWindows() {
		header = append(header, window.Label()+" Change %")
	}
	header = append(header, "Trend")
	if err := setRow(f, SheetMetrics, 1, header...); err != nil {
		return err
	}

	names := make([]string, 0, len(report.Metrics))
	for name := range report.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	for i, name := range names {
		metric := report.Metrics[name]
		values := []interface{}{metric.Metric, metric.Label, "", ""}
		if metric.Latest != nil {
			values[2] = metric.Latest.Date.Format("2006-01-02")
			values[3] = metric.Latest.Value
		}
		for _, window := range models.AllWindows() {
			if change, ok := metric.Changes.Get(window); ok {
				values = append(values, change)
			} else {
				values = append(values, "")
			}
		}
		values = append(values, string(metric.Trend))

		if err := setRow(f, SheetMetrics, i+2, values...); err != nil {
			return err
		}
	}
	return nil
}

func writeRun(f *excelize.File, report *models.Report) error {
	rows := [][]interface{}{
		{"Run ID", report.RunID},
		{"Generated At", report.GeneratedAt.UTC().Format("2006-01-02T15:04:05Z")},
	}
	for _, metric := range report.MissingMetrics {
		rows = append(rows, []interface{}{"Missing Metric", metric})
	}
	for i, values := range rows {
		if err := setRow(f, SheetRun, i+1, values...); err != nil {
			return err
		}
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values ...interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}
