package estimate_test

import (
	"testing"
	"time"

	"github.com/safesite/proximity/internal/domain/estimate"
	"github.com/safesite/proximity/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func calSet(points ...model.CalibrationPoint) *model.CalibrationSet {
	return &model.CalibrationSet{
		BeaconID:  "beacon-1",
		GatewayID: "gateway-1",
		Points:    points,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

func pt(distance, rssi float64) model.CalibrationPoint {
	return model.CalibrationPoint{Distance: distance, RSSI: rssi, SampleCount: 3, LastUpdated: time.Now()}
}

func TestEstimator_Interpolation(t *testing.T) {
	Convey("Given an estimator and a calibration set with several points", t, func() {
		est := estimate.New()
		set := calSet(pt(1, -55), pt(2, -62), pt(5, -71), pt(10, -80))

		Convey("An RSSI equal to a calibrated point returns that distance exactly", func() {
			So(est.Estimate(-62, set, 0), ShouldEqual, 2)
			So(est.Estimate(-71, set, 0), ShouldEqual, 5)
		})

		Convey("An RSSI between two points interpolates between their distances", func() {
			d := est.Estimate(-66.5, set, 0)
			So(d, ShouldBeGreaterThan, 2)
			So(d, ShouldBeLessThan, 5)
			So(d, ShouldAlmostEqual, 3.5, 0.001)
		})

		Convey("Estimates are monotonically non-increasing as RSSI strengthens", func() {
			prev := est.Estimate(-85, set, 0)
			for rssi := -84.0; rssi <= -50; rssi++ {
				d := est.Estimate(rssi, set, 0)
				So(d, ShouldBeLessThanOrEqualTo, prev)
				prev = d
			}
		})

		Convey("An RSSI stronger than the strongest point clamps to its distance", func() {
			So(est.Estimate(-40, set, 0), ShouldEqual, 1)
		})

		Convey("An RSSI weaker than the weakest point extrapolates along the far slope", func() {
			d := est.Estimate(-85, set, 0)
			So(d, ShouldBeGreaterThan, 10)
			// slope between (5m,-71) and (10m,-80) is 5m per -9dBm
			So(d, ShouldAlmostEqual, 10+5.0/9.0*5, 0.001)
		})

		Convey("Extrapolation is floored at the configured maximum distance", func() {
			capped := estimate.New(estimate.WithMaxDistance(12))
			So(capped.Estimate(-120, set, 0), ShouldEqual, 12)
		})
	})
}

func TestEstimator_DegenerateSets(t *testing.T) {
	Convey("Given points sharing the same RSSI", t, func() {
		est := estimate.New()
		set := calSet(pt(2, -60), pt(6, -60), pt(9, -75))

		Convey("A bracketed reading between duplicates resolves to the nearer point", func() {
			// -61 sits between the duplicate -60 pair and -75; normal
			// interpolation applies against the closest bracket.
			d := est.Estimate(-61, set, 0)
			So(d, ShouldBeGreaterThan, 0)
			So(d, ShouldBeLessThanOrEqualTo, 9)
		})

		Convey("The result is always positive and finite", func() {
			for rssi := -120.0; rssi <= 0; rssi += 3 {
				d := est.Estimate(rssi, set, 0)
				So(d, ShouldBeGreaterThan, 0)
				So(d, ShouldBeLessThanOrEqualTo, est.MaxDistance())
			}
		})
	})
}

func TestEstimator_PathLossFallback(t *testing.T) {
	Convey("Given an estimator with default model parameters", t, func() {
		est := estimate.New()

		Convey("With no calibration the log-distance model applies", func() {
			// reference power at 1m means rssi == txPower -> 1 meter
			So(est.Estimate(-59, nil, 0), ShouldAlmostEqual, 1, 0.001)
			So(est.Estimate(-79, nil, 0), ShouldAlmostEqual, 10, 0.001)
		})

		Convey("A beacon-specific reference power overrides the default", func() {
			So(est.Estimate(-65, nil, -65), ShouldAlmostEqual, 1, 0.001)
		})

		Convey("A single point recalibrates the reference power", func() {
			set := calSet(pt(2, -70))
			So(est.Estimate(-70, set, 0), ShouldAlmostEqual, 2, 0.001)
			// weaker signal means farther than the measured point
			So(est.Estimate(-80, set, 0), ShouldBeGreaterThan, 2)
		})

		Convey("Extreme readings still produce a positive finite estimate", func() {
			So(est.Estimate(30, nil, 0), ShouldBeGreaterThan, 0)
			So(est.Estimate(-200, nil, 0), ShouldBeLessThanOrEqualTo, est.MaxDistance())
		})
	})
}
