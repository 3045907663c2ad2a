package indicator

import (
	"errors"
	"math"
	"testing"

	"github.com/mohamedkhairy/displacement-tracker/internal/models"
)

func TestPercentChange(t *testing.T) {
	tests := []struct {
		name    string
		values  []float64
		periods int
		want    float64
		wantErr error
	}{
		{
			name:    "ten percent drop over four periods",
			values:  []float64{100, 100, 100, 100, 100, 90},
			periods: 4,
			want:    -10.0,
		},
		{
			name:    "five percent rise",
			values:  []float64{100, 105},
			periods: 1,
			want:    5.0,
		},
		{
			name:    "exactly enough history",
			values:  []float64{50, 1, 2, 3, 75},
			periods: 4,
			want:    50.0,
		},
		{
			name:    "insufficient history",
			values:  []float64{1, 2, 3},
			periods: 4,
			wantErr: models.ErrInsufficientHistory,
		},
		{
			name:    "length equal to periods",
			values:  []float64{1, 2, 3, 4},
			periods: 4,
			wantErr: models.ErrInsufficientHistory,
		},
		{
			name:    "zero base",
			values:  []float64{0, 5},
			periods: 1,
			wantErr: models.ErrDegenerateDenominator,
		},
		{
			name:    "infinite base",
			values:  []float64{math.Inf(1), 5},
			periods: 1,
			wantErr: models.ErrDegenerateDenominator,
		},
		{
			name:    "non-positive periods",
			values:  []float64{1, 2},
			periods: 0,
			wantErr: models.ErrInvalidWindow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PercentChange(tt.values, tt.periods)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("PercentChange() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("PercentChange() unexpected error: %v", err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("PercentChange() = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestPercentChange_MatchesFormula(t *testing.T) {
	values := []float64{98.1, 99.4, 100.2, 101.7, 100.9, 102.3, 103.8, 104.1, 103.5, 105.0, 106.2, 107.4, 106.9, 108.3}

	for periods := 1; periods < len(values)+3; periods++ {
		got, err := PercentChange(values, periods)
		if len(values) <= periods {
			if !errors.Is(err, models.ErrInsufficientHistory) {
				t.Errorf("periods=%d: expected ErrInsufficientHistory, got %v", periods, err)
			}
			continue
		}
		past := values[len(values)-1-periods]
		want := (values[len(values)-1] - past) / past * 100
		if err != nil || math.Abs(got-want) > 1e-9 {
			t.Errorf("periods=%d: got %f (%v), want %f", periods, got, err, want)
		}
	}
}

func TestChanges_OmitsInsufficientWindows(t *testing.T) {
	// 10 quarters: enough for 1 and 2 years, not for 3
	s := quarterlySeries("labor_share", jan(2022), 100, 101, 102, 103, 104, 105, 106, 107, 108, 110)

	changes, err := Changes(s, models.AllWindows())
	if err != nil {
		t.Fatalf("Changes failed: %v", err)
	}

	if _, ok := changes[models.Window3Year]; ok {
		t.Error("3 year window should be omitted")
	}
	oneYear, ok := changes[models.Window1Year]
	if !ok {
		t.Fatal("1 year window should be present")
	}
	want := (110.0 - 105.0) / 105.0 * 100
	if math.Abs(oneYear-want) > 1e-9 {
		t.Errorf("Expected 1 year change %f, got %f", want, oneYear)
	}
}

func TestChanges_ShortSeriesIsNotZero(t *testing.T) {
	s := quarterlySeries("labor_share", jan(2024), 100, 100, 100)

	changes, err := Changes(s, []models.Window{models.Window1Year})
	if err != nil {
		t.Fatalf("Changes failed: %v", err)
	}
	if v, ok := changes.Get(models.Window1Year); ok {
		t.Errorf("Expected window to be omitted, got %f", v)
	}
}

func TestChanges_DropsMissingValues(t *testing.T) {
	s := quarterlySeries("gdp", jan(2023), 100, math.NaN(), 100, 100, 100, 120)

	changes, err := Changes(s, []models.Window{models.Window1Year})
	if err != nil {
		t.Fatalf("Changes failed: %v", err)
	}
	if math.Abs(changes[models.Window1Year]-20.0) > 1e-9 {
		t.Errorf("Expected 20%% change after dropping NaN, got %v", changes[models.Window1Year])
	}
}

func TestChanges_DegenerateDenominator(t *testing.T) {
	s := quarterlySeries("gdp", jan(2023), 0, 1, 2, 3, 4)

	_, err := Changes(s, []models.Window{models.Window1Year})
	if !errors.Is(err, models.ErrDegenerateDenominator) {
		t.Fatalf("Expected ErrDegenerateDenominator, got %v", err)
	}
}
