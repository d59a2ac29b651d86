// Package quality scores how reliable a calibration set is for proximity
// decisions at a gateway's configured threshold.
package quality

import (
	"fmt"

	"github.com/safesite/proximity/internal/domain/model"
)

// Rating grades a calibration set's reliability.
type Rating string

// Ratings from unusable to trustworthy.
const (
	RatingNone Rating = "none"
	RatingPoor Rating = "poor"
	RatingFair Rating = "fair"
	RatingGood Rating = "good"
)

// Points required before a set can be rated good.
const goodPointCount = 4

// Assessment is the result of evaluating one calibration set.
type Assessment struct {
	Rating  Rating   `json:"rating"`
	Reasons []string `json:"reasons"`
}

// Evaluate grades a set against the gateway's proximity threshold. It never
// fails: a nil or empty set yields RatingNone.
func Evaluate(set *model.CalibrationSet, threshold float64) Assessment {
	if set == nil || len(set.Points) == 0 {
		return Assessment{
			Rating:  RatingNone,
			Reasons: []string{"no calibration points recorded"},
		}
	}

	var reasons []string

	minDist, maxDist := set.Points[0].Distance, set.Points[0].Distance
	lowConfidence := 0
	for _, p := range set.Points {
		if p.Distance < minDist {
			minDist = p.Distance
		}
		if p.Distance > maxDist {
			maxDist = p.Distance
		}
		if p.SampleCount <= 1 {
			lowConfidence++
		}
	}

	brackets := threshold > 0 && minDist <= threshold && maxDist >= threshold
	if !brackets {
		reasons = append(reasons, fmt.Sprintf("calibrated distances %.2fm-%.2fm do not bracket the %.2fm threshold", minDist, maxDist, threshold))
	}
	if n := len(set.Points); n < goodPointCount {
		reasons = append(reasons, fmt.Sprintf("only %d distinct calibration points (%d recommended)", n, goodPointCount))
	}
	if lowConfidence > 0 {
		reasons = append(reasons, fmt.Sprintf("%d point(s) backed by a single sample", lowConfidence))
	}

	switch {
	case len(set.Points) >= goodPointCount && brackets && lowConfidence == 0:
		return Assessment{Rating: RatingGood}
	case len(set.Points) >= 2 && brackets:
		return Assessment{Rating: RatingFair, Reasons: reasons}
	default:
		return Assessment{Rating: RatingPoor, Reasons: reasons}
	}
}
