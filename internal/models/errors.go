package models

import "errors"

var (
	ErrInsufficientHistory   = errors.New("insufficient history for window")
	ErrDegenerateDenominator = errors.New("degenerate denominator in percentage change")
	ErrInvalidWindow         = errors.New("invalid window")
	ErrInvalidMetric         = errors.New("invalid metric")
	ErrInvalidDirection      = errors.New("invalid direction (must be +1 or -1)")
	ErrInvalidStdDev         = errors.New("invalid standard deviation (must be positive)")
	ErrInvalidWeights        = errors.New("invalid weight set")
	ErrNoWeightSet           = errors.New("no weight set matches available metrics")
	ErrNoRequiredMetrics     = errors.New("scoring config must have at least one required metric")
	ErrTooManyOptional       = errors.New("scoring config supports at most one optional metric")
	ErrEmptySeries           = errors.New("series has no observations")
	ErrUnsortedSeries        = errors.New("series dates must be strictly increasing")
)
