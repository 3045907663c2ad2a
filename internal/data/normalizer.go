package data

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/mohamedkhairy/displacement-tracker/internal/models"
	"github.com/mohamedkhairy/displacement-tracker/pkg/logger"
)

var (
	// ErrUnsupportedFormat is returned when a file layout is not recognized
	ErrUnsupportedFormat = errors.New("unsupported data format")
	// ErrInvalidRecord is returned when a record cannot be parsed
	ErrInvalidRecord = errors.New("invalid record")
	// ErrMissingValue marks a placeholder for a missing observation
	ErrMissingValue = errors.New("missing value")
)

// dateLayouts are tried in order when parsing a date column
var dateLayouts = []string{
	"2006-01-02",
	"2006-01",
	"2006-01-02T15:04:05Z07:00",
	"01/02/2006",
}

// missingMarkers are the placeholders sources use for absent values.
// FRED writes "." for a missing observation.
var missingMarkers = map[string]bool{
	"":    true,
	".":   true,
	"NA":  true,
	"N/A": true,
	"NaN": true,
}

// Normalizer converts tabular records from different sources to observations
type Normalizer struct {
	sourceName string
	// valueColumn is the preferred value column; empty selects the first
	// column that is not a date part
	valueColumn string
}

// NewNormalizer creates a normalizer for a source
func NewNormalizer(sourceName, valueColumn string) *Normalizer {
	return &Normalizer{
		sourceName:  sourceName,
		valueColumn: valueColumn,
	}
}

// GetSourceName returns the source name
func (n *Normalizer) GetSourceName() string {
	return n.sourceName
}

// Normalize converts a header and its records to observations. Two layouts
// are recognized: a single date column ("date", "observation_date") or
// separate "year" and "month" columns. Rows with missing values are skipped.
func (n *Normalizer) Normalize(header []string, records [][]string) ([]models.Observation, error) {
	layout, err := n.detectLayout(header)
	if err != nil {
		return nil, err
	}

	observations := make([]models.Observation, 0, len(records))
	skipped := 0
	for i, record := range records {
		obs, err := layout.parse(record)
		if errors.Is(err, ErrMissingValue) {
			skipped++
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", n.sourceName, i+2, err)
		}
		observations = append(observations, obs)
	}

	if skipped > 0 {
		logger.Debug("Skipped missing observations",
			logger.String("source", n.sourceName),
			logger.Int("skipped", skipped),
		)
	}
	return observations, nil
}

type recordLayout struct {
	dateIdx  int
	yearIdx  int
	monthIdx int
	valueIdx int
}

func (n *Normalizer) detectLayout(header []string) (recordLayout, error) {
	layout := recordLayout{dateIdx: -1, yearIdx: -1, monthIdx: -1, valueIdx: -1}

	for i, column := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(column, "\ufeff")))
		switch name {
		case "date", "observation_date":
			layout.dateIdx = i
		case "year":
			layout.yearIdx = i
		case "month":
			layout.monthIdx = i
		}
		if n.valueColumn != "" && strings.EqualFold(name, n.valueColumn) {
			layout.valueIdx = i
		}
	}

	hasDate := layout.dateIdx >= 0
	hasYearMonth := layout.yearIdx >= 0 && layout.monthIdx >= 0
	if !hasDate && !hasYearMonth {
		return layout, fmt.Errorf("%w: %s header %v has no date or year/month columns", ErrUnsupportedFormat, n.sourceName, header)
	}

	if layout.valueIdx < 0 {
		for i := range header {
			if i != layout.dateIdx && i != layout.yearIdx && i != layout.monthIdx {
				layout.valueIdx = i
				break
			}
		}
	}
	if layout.valueIdx < 0 {
		return layout, fmt.Errorf("%w: %s header %v has no value column", ErrUnsupportedFormat, n.sourceName, header)
	}
	return layout, nil
}

func (l recordLayout) parse(record []string) (models.Observation, error) {
	if l.valueIdx >= len(record) {
		return models.Observation{}, fmt.Errorf("%w: expected at least %d fields, got %d", ErrInvalidRecord, l.valueIdx+1, len(record))
	}

	var (
		date time.Time
		err  error
	)
	if l.dateIdx >= 0 {
		if l.dateIdx >= len(record) {
			return models.Observation{}, fmt.Errorf("%w: missing date", ErrInvalidRecord)
		}
		date, err = ParseDate(record[l.dateIdx])
	} else {
		date, err = parseYearMonth(record, l.yearIdx, l.monthIdx)
	}
	if err != nil {
		return models.Observation{}, err
	}

	value, err := ParseValue(record[l.valueIdx])
	if err != nil {
		return models.Observation{}, err
	}
	return models.Observation{Date: date, Value: value}, nil
}

// ParseDate parses a calendar date in any of the supported layouts, in UTC
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unparseable date %q", ErrInvalidRecord, s)
}

// ParseValue parses a numeric value, returning ErrMissingValue for placeholders
func ParseValue(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if missingMarkers[s] {
		return 0, ErrMissingValue
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: unparseable value %q", ErrInvalidRecord, s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrMissingValue
	}
	return v, nil
}

func parseYearMonth(record []string, yearIdx, monthIdx int) (time.Time, error) {
	if yearIdx >= len(record) || monthIdx >= len(record) {
		return time.Time{}, fmt.Errorf("%w: missing year or month", ErrInvalidRecord)
	}
	year, err := strconv.Atoi(strings.TrimSpace(record[yearIdx]))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: unparseable year %q", ErrInvalidRecord, record[yearIdx])
	}
	month, err := strconv.Atoi(strings.TrimSpace(record[monthIdx]))
	if err != nil || month < 1 || month > 12 {
		return time.Time{}, fmt.Errorf("%w: unparseable month %q", ErrInvalidRecord, record[monthIdx])
	}
	return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC), nil
}
