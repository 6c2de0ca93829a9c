package analysis

import (
	"fmt"
	"math"

	"go.uber.org/zap"
)

// DefaultThreshold is the default decision threshold.
const DefaultThreshold = 0.5

// Calibration modes.
const (
	CalibrationIdentity = "identity"
	CalibrationLogistic = "logistic"
)

const defaultSteepness = 8

// Calibrator maps raw scores to the public confidence and decision. It is
// immutable after construction.
type Calibrator struct {
	threshold float64
	mode      string
	steepness float64
	lo, hi    float64
	logger    *zap.Logger
}

// NewCalibrator validates its arguments once. threshold must lie in (0,1).
func NewCalibrator(threshold float64, mode string, steepness float64, logger *zap.Logger) (*Calibrator, error) {
	if !(threshold > 0 && threshold < 1) {
		return nil, fmt.Errorf("threshold must be in (0,1), got %v", threshold)
	}
	if mode == "" {
		mode = CalibrationIdentity
	}
	if mode != CalibrationIdentity && mode != CalibrationLogistic {
		return nil, fmt.Errorf("unknown calibration mode %q", mode)
	}
	if steepness <= 0 {
		steepness = defaultSteepness
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Calibrator{
		threshold: threshold,
		mode:      mode,
		steepness: steepness,
		lo:        sigmoid(-steepness / 2),
		hi:        sigmoid(steepness / 2),
		logger:    logger.Named("calibrator"),
	}, nil
}

// Threshold returns the decision threshold.
func (c *Calibrator) Threshold() float64 { return c.threshold }

// Calibrate returns the verdict flag and confidence for raw. Out-of-range
// values are clamped and logged.
func (c *Calibrator) Calibrate(raw RawScore) (bool, float64) {
	v := raw.Value
	switch {
	case math.IsNaN(v):
		c.logger.Warn("scorer returned NaN, clamping to 0")
		v = 0
	case v < 0 || v > 1:
		c.logger.Warn("scorer value out of range, clamping", zap.Float64("raw", v))
		v = clamp01(v)
	}

	confidence := v
	if c.mode == CalibrationLogistic {
		confidence = clamp01((sigmoid(c.steepness*(v-0.5)) - c.lo) / (c.hi - c.lo))
	}
	return confidence >= c.threshold, confidence
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
