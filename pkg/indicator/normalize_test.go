package indicator

import (
	"errors"
	"math"
	"testing"

	"github.com/mohamedkhairy/displacement-tracker/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZScore_ClipsLaborShareDrop(t *testing.T) {
	labor := models.MetricDefinition{Name: "labor_share", Direction: models.DirectionFalling, StdDev: 2.5}

	change, err := PercentChange([]float64{100, 100, 100, 100, 100, 90}, 4)
	require.NoError(t, err)
	assert.InDelta(t, -10.0, change, 1e-9)

	// raw z = 10/2.5 = 4.0, clipped to 3
	z, err := ZScore(change, labor)
	require.NoError(t, err)
	assert.Equal(t, 3.0, z)
}

func TestZScore_Direction(t *testing.T) {
	rising := models.MetricDefinition{Name: "gdp", Direction: models.DirectionRising, StdDev: 3.0}
	falling := models.MetricDefinition{Name: "acct", Direction: models.DirectionFalling, StdDev: 5.0}

	z, err := ZScore(3.0, rising)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, z, 1e-12)

	z, err = ZScore(-5.0, falling)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, z, 1e-12)

	z, err = ZScore(5.0, falling)
	require.NoError(t, err)
	assert.InDelta(t, -1.0, z, 1e-12)
}

func TestZScore_InvalidStdDev(t *testing.T) {
	def := models.MetricDefinition{Name: "x", Direction: models.DirectionRising, StdDev: 0}
	_, err := ZScore(1.0, def)
	assert.True(t, errors.Is(err, models.ErrInvalidStdDev))
}

func TestZScore_NonFiniteChange(t *testing.T) {
	def := models.MetricDefinition{Name: "x", Direction: models.DirectionRising, StdDev: 1}
	_, err := ZScore(math.Inf(-1), def)
	assert.True(t, errors.Is(err, models.ErrDegenerateDenominator))
}

func TestClip_AlwaysBounded(t *testing.T) {
	inputs := []float64{-1e12, -3.0001, -3, -1, 0, 0.5, 3, 3.0001, 1e12, math.Inf(1), math.Inf(-1), math.NaN()}
	for _, in := range inputs {
		got := Clip(in)
		assert.GreaterOrEqual(t, got, -ZScoreLimit, "input %v", in)
		assert.LessOrEqual(t, got, ZScoreLimit, "input %v", in)
	}
	assert.Equal(t, 1.5, Clip(1.5))
}

func TestNormalizeChanges(t *testing.T) {
	def := models.MetricDefinition{Name: "unemployment", Direction: models.DirectionRising, StdDev: 15.0}
	changes := models.ChangeSet{
		models.Window1Year: 30.0,
		models.Window3Year: 90.0,
	}

	z, err := NormalizeChanges(changes, def)
	require.NoError(t, err)
	assert.Len(t, z, 2)
	assert.InDelta(t, 2.0, z[models.Window1Year], 1e-12)
	assert.Equal(t, 3.0, z[models.Window3Year])
	_, ok := z[models.Window2Year]
	assert.False(t, ok)
}
