// Package estimate converts RSSI readings into distance estimates using a
// pair's calibration set, with a log-distance path-loss fallback when the set
// is too small to interpolate.
package estimate

import (
	"math"
	"sort"

	"github.com/safesite/proximity/internal/domain/model"
)

// Default model parameters. The reference power matches the common BLE
// measured-power-at-1m convention; the exponent approximates free space.
const (
	defaultTxPower      = -59.0
	defaultPathLoss     = 2.0
	defaultMaxDistance  = 100.0
	minReportedDistance = 0.01
)

// Option applies a configuration option to the Estimator.
type Option func(*Estimator)

// WithTxPower sets the fallback model's reference power (dBm at 1m).
func WithTxPower(p float64) Option {
	return func(e *Estimator) {
		if p < 0 {
			e.txPower = p
		}
	}
}

// WithPathLossExponent sets the path-loss exponent n.
func WithPathLossExponent(n float64) Option {
	return func(e *Estimator) {
		if n > 0 {
			e.pathLoss = n
		}
	}
}

// WithMaxDistance caps every estimate at the given distance in meters.
func WithMaxDistance(d float64) Option {
	return func(e *Estimator) {
		if d > 0 {
			e.maxDistance = d
		}
	}
}

// Estimator turns an RSSI reading plus a calibration set into a distance.
// It is a pure value object; methods never mutate state and are safe for
// concurrent use.
type Estimator struct {
	txPower     float64
	pathLoss    float64
	maxDistance float64
}

// New creates an Estimator with configuration options.
func New(opts ...Option) *Estimator {
	e := &Estimator{
		txPower:     defaultTxPower,
		pathLoss:    defaultPathLoss,
		maxDistance: defaultMaxDistance,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MaxDistance returns the configured estimate ceiling.
func (e *Estimator) MaxDistance() float64 { return e.maxDistance }

// Estimate returns a positive, finite distance in meters for the given RSSI.
// With two or more calibration points it interpolates between the points
// whose RSSI values bracket the reading; with fewer it falls back to the
// log-distance path-loss model, recalibrated by the single point when one
// exists. txPower overrides the estimator's reference power when negative
// (a beacon-specific measured power); pass 0 to use the default.
func (e *Estimator) Estimate(rssi float64, set *model.CalibrationSet, txPower float64) float64 {
	ref := e.txPower
	if txPower < 0 {
		ref = txPower
	}

	var points []model.CalibrationPoint
	if set != nil {
		points = make([]model.CalibrationPoint, len(set.Points))
		copy(points, set.Points)
	}

	switch len(points) {
	case 0:
		return e.clamp(e.pathLossDistance(ref, rssi))
	case 1:
		// A single measured point recalibrates the reference power
		// instead of being ignored.
		p := points[0]
		ref = p.RSSI + 10*e.pathLoss*math.Log10(math.Max(p.Distance, minReportedDistance))
		return e.clamp(e.pathLossDistance(ref, rssi))
	}

	sort.Slice(points, func(i, j int) bool { return points[i].Distance < points[j].Distance })

	// Exact calibration hits return the measured distance untouched.
	for _, p := range points {
		if p.RSSI == rssi {
			return e.clamp(p.Distance)
		}
	}

	// Locate the bracketing points by RSSI without assuming the sorted
	// order is monotonic in RSSI: the nearest reading above and the
	// nearest below the input.
	var above, below *model.CalibrationPoint
	for i := range points {
		p := &points[i]
		if p.RSSI > rssi && (above == nil || p.RSSI < above.RSSI) {
			above = p
		}
		if p.RSSI < rssi && (below == nil || p.RSSI > below.RSSI) {
			below = p
		}
	}

	switch {
	case above == nil:
		// Stronger than every calibrated reading: never extrapolate to
		// a smaller distance than was measured.
		return e.clamp(strongest(points).Distance)
	case below == nil:
		return e.clamp(e.extrapolateBeyond(points, rssi))
	}

	if above.RSSI == below.RSSI {
		// Degenerate bracket; resolve to the nearer point.
		return e.clamp(math.Min(above.Distance, below.Distance))
	}

	frac := (above.RSSI - rssi) / (above.RSSI - below.RSSI)
	return e.clamp(above.Distance + frac*(below.Distance-above.Distance))
}

// extrapolateBeyond handles readings weaker than the weakest calibrated
// point by extending the slope of the two farthest points.
func (e *Estimator) extrapolateBeyond(points []model.CalibrationPoint, rssi float64) float64 {
	far := points[len(points)-1]
	prev := points[len(points)-2]
	if far.RSSI == prev.RSSI {
		return far.Distance
	}
	slope := (far.Distance - prev.Distance) / (far.RSSI - prev.RSSI)
	return far.Distance + slope*(rssi-far.RSSI)
}

func (e *Estimator) pathLossDistance(ref, rssi float64) float64 {
	return math.Pow(10, (ref-rssi)/(10*e.pathLoss))
}

func (e *Estimator) clamp(d float64) float64 {
	if math.IsNaN(d) || d < minReportedDistance {
		return minReportedDistance
	}
	if math.IsInf(d, 1) || d > e.maxDistance {
		return e.maxDistance
	}
	return d
}

func strongest(points []model.CalibrationPoint) model.CalibrationPoint {
	best := points[0]
	for _, p := range points[1:] {
		if p.RSSI > best.RSSI {
			best = p
		}
	}
	return best
}
