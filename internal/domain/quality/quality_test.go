package quality_test

import (
	"testing"
	"time"

	"github.com/safesite/proximity/internal/domain/model"
	"github.com/safesite/proximity/internal/domain/quality"
	. "github.com/smartystreets/goconvey/convey"
)

func set(points ...model.CalibrationPoint) *model.CalibrationSet {
	return &model.CalibrationSet{BeaconID: "b", GatewayID: "g", Points: points, UpdatedAt: time.Now()}
}

func pt(distance float64, samples int) model.CalibrationPoint {
	return model.CalibrationPoint{Distance: distance, RSSI: -60 - distance, SampleCount: samples}
}

func TestEvaluate(t *testing.T) {
	Convey("Given calibration sets of varying completeness", t, func() {
		Convey("A nil set rates none", func() {
			a := quality.Evaluate(nil, 5)
			So(a.Rating, ShouldEqual, quality.RatingNone)
			So(a.Reasons, ShouldNotBeEmpty)
		})

		Convey("An empty set rates none", func() {
			a := quality.Evaluate(set(), 5)
			So(a.Rating, ShouldEqual, quality.RatingNone)
		})

		Convey("Four well-sampled points bracketing the threshold rate good", func() {
			a := quality.Evaluate(set(pt(1, 3), pt(3, 2), pt(6, 4), pt(10, 2)), 5)
			So(a.Rating, ShouldEqual, quality.RatingGood)
			So(a.Reasons, ShouldBeEmpty)
		})

		Convey("Four points with one single-sample point rate fair", func() {
			a := quality.Evaluate(set(pt(1, 3), pt(3, 1), pt(6, 4), pt(10, 2)), 5)
			So(a.Rating, ShouldEqual, quality.RatingFair)
			So(a.Reasons, ShouldContain, "1 point(s) backed by a single sample")
		})

		Convey("Two points bracketing the threshold rate fair", func() {
			a := quality.Evaluate(set(pt(2, 5), pt(8, 5)), 5)
			So(a.Rating, ShouldEqual, quality.RatingFair)
		})

		Convey("Points all on one side of the threshold rate poor", func() {
			a := quality.Evaluate(set(pt(6, 3), pt(8, 3), pt(10, 3), pt(12, 3)), 5)
			So(a.Rating, ShouldEqual, quality.RatingPoor)
			So(len(a.Reasons), ShouldBeGreaterThan, 0)
		})

		Convey("A single point rates poor regardless of samples", func() {
			a := quality.Evaluate(set(pt(4, 10)), 5)
			So(a.Rating, ShouldEqual, quality.RatingPoor)
		})
	})
}
