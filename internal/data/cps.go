package data

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mohamedkhairy/displacement-tracker/internal/models"
	"github.com/mohamedkhairy/displacement-tracker/pkg/logger"
)

// CPS labor force status code for "employed, at work"
const cpsEmployed = 1

var cpsFilePattern = regexp.MustCompile(`^accountants_([a-z]{3})(\d{2})\.csv$`)

var cpsMonths = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// CPSMonth summarizes one monthly extract of accountants and auditors
type CPSMonth struct {
	Date        time.Time `json:"date"`
	Employed    int       `json:"employed"`
	NotEmployed int       `json:"not_employed"`
}

// Total returns all sampled accountants
func (m CPSMonth) Total() int {
	return m.Employed + m.NotEmployed
}

// EmploymentRate returns the employed share in percent
func (m CPSMonth) EmploymentRate() float64 {
	if m.Total() == 0 {
		return 0
	}
	return float64(m.Employed) / float64(m.Total()) * 100
}

// CPSSource derives the employed accountants series from monthly Current
// Population Survey extracts named accountants_{mon}{yy}.csv
type CPSSource struct {
	dir    string
	metric string
}

// NewCPSSource creates a source reading extracts from dir
func NewCPSSource(dir string) *CPSSource {
	return &CPSSource{dir: dir, metric: models.MetricAccountantsEmployed}
}

// Summarize counts employed and not employed records in every extract
func (s *CPSSource) Summarize() ([]CPSMonth, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: cps dir %s does not exist", ErrNoData, s.dir)
	}
	if err != nil {
		return nil, fmt.Errorf("read cps dir %s: %w", s.dir, err)
	}

	var months []CPSMonth
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		date, ok := parseCPSFileName(entry.Name())
		if !ok {
			continue
		}

		month, err := summarizeCPSFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		month.Date = date
		months = append(months, month)

		logger.Debug("Processed CPS extract",
			logger.String("file", entry.Name()),
			logger.Int("employed", month.Employed),
			logger.Int("not_employed", month.NotEmployed),
		)
	}

	sort.Slice(months, func(i, j int) bool {
		return months[i].Date.Before(months[j].Date)
	})
	return months, nil
}

// Load returns the monthly count of employed accountants
func (s *CPSSource) Load(ctx context.Context, metric string) (*models.Series, error) {
	if metric != s.metric {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMetric, metric)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	months, err := s.Summarize()
	if err != nil {
		return nil, err
	}
	if len(months) == 0 {
		return nil, fmt.Errorf("%w: no accountants_{mon}{yy}.csv files in %s", ErrNoData, s.dir)
	}

	observations := make([]models.Observation, 0, len(months))
	for _, month := range months {
		observations = append(observations, models.Observation{
			Date:  month.Date,
			Value: float64(month.Employed),
		})
	}

	logger.Info("Loaded CPS accountants series",
		logger.String("dir", s.dir),
		logger.Int("months", len(months)),
	)
	return models.NewSeries(metric, models.FrequencyMonthly, observations), nil
}

// Metrics returns the served metric
func (s *CPSSource) Metrics() []string {
	return []string{s.metric}
}

// GetName returns the source name
func (s *CPSSource) GetName() string {
	return "cps"
}

func parseCPSFileName(name string) (time.Time, bool) {
	match := cpsFilePattern.FindStringSubmatch(strings.ToLower(name))
	if match == nil {
		return time.Time{}, false
	}
	month, ok := cpsMonths[match[1]]
	if !ok {
		return time.Time{}, false
	}
	yy, err := strconv.Atoi(match[2])
	if err != nil {
		return time.Time{}, false
	}
	return time.Date(2000+yy, month, 1, 0, 0, 0, 0, time.UTC), true
}

// summarizeCPSFile counts pemlr == 1 as employed and every other record as
// not employed. Extracts without a pemlr column count every record as employed.
func summarizeCPSFile(path string) (CPSMonth, error) {
	f, err := os.Open(path)
	if err != nil {
		return CPSMonth{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return CPSMonth{}, nil
	}
	if err != nil {
		return CPSMonth{}, fmt.Errorf("read %s header: %w", path, err)
	}

	statusIdx := -1
	for i, column := range header {
		if strings.EqualFold(strings.TrimSpace(column), "pemlr") {
			statusIdx = i
			break
		}
	}
	if statusIdx < 0 {
		logger.Warn("CPS extract has no pemlr column, counting all records as employed",
			logger.String("file", path),
		)
	}

	var month CPSMonth
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return CPSMonth{}, fmt.Errorf("read %s: %w", path, err)
		}

		if statusIdx < 0 || isCPSEmployed(record, statusIdx) {
			month.Employed++
		} else {
			month.NotEmployed++
		}
	}
	return month, nil
}

func isCPSEmployed(record []string, statusIdx int) bool {
	if statusIdx >= len(record) {
		return false
	}
	status, err := strconv.ParseFloat(strings.TrimSpace(record[statusIdx]), 64)
	return err == nil && status == cpsEmployed
}
