package model

import "time"

// CalibrationPoint is one empirically measured (distance, RSSI) fact for a
// beacon-gateway pair. Identity within a set is the distance: re-measuring at
// an existing distance overwrites the RSSI and accumulates the sample count.
type CalibrationPoint struct {
	Distance    float64 // meters, > 0
	RSSI        float64 // dBm, typically negative
	SampleCount int     // >= 1
	LastUpdated time.Time
}

// CalibrationSet owns the calibration points for one (beacon, gateway) pair.
// Points are unique by distance and kept sorted ascending by distance. A set
// with zero points is never retained.
type CalibrationSet struct {
	BeaconID  string
	GatewayID string
	Points    []CalibrationPoint
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy so readers never share point slices with the
// store's internal state.
func (s *CalibrationSet) Clone() *CalibrationSet {
	if s == nil {
		return nil
	}
	out := *s
	out.Points = make([]CalibrationPoint, len(s.Points))
	copy(out.Points, s.Points)
	return &out
}

// PointAt returns the point measured at exactly the given distance.
func (s *CalibrationSet) PointAt(distance float64) (CalibrationPoint, bool) {
	for _, p := range s.Points {
		if p.Distance == distance {
			return p, true
		}
	}
	return CalibrationPoint{}, false
}

// PairKey identifies one beacon-gateway calibration pairing.
type PairKey struct {
	BeaconID  string
	GatewayID string
}
