package pipeline_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/safesite/proximity/internal/adapters/repository"
	"github.com/safesite/proximity/internal/adapters/repository/repositorytest"
	"github.com/safesite/proximity/internal/calibration"
	"github.com/safesite/proximity/internal/dispatch"
	"github.com/safesite/proximity/internal/dispatch/dispatchtest"
	"github.com/safesite/proximity/internal/domain/estimate"
	"github.com/safesite/proximity/internal/domain/model"
	"github.com/safesite/proximity/internal/pipeline"
	"github.com/safesite/proximity/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type fixture struct {
	store     *repositorytest.FakeStore
	calib     *calibration.Store
	transport *dispatchtest.FakeTransport
	pipe      *pipeline.Pipeline
}

func newFixture(opts ...pipeline.Option) *fixture {
	store := repositorytest.New()
	store.AddGateway(model.GatewayPolicy{GatewayID: "g1", ProximityThreshold: 5.0, AutoVibration: true})
	store.AddGateway(model.GatewayPolicy{GatewayID: "g-quiet", ProximityThreshold: 5.0, AutoVibration: false})
	store.AddBeacon(model.Beacon{ID: "b1", MAC: "AA:BB:CC:DD:EE:FF"})

	calib := calibration.New(store)
	transport := &dispatchtest.FakeTransport{Result: dispatch.Delivered}
	_ = transport.Connect(context.Background())
	dispatcher := dispatch.New(transport, store)

	return &fixture{
		store:     store,
		calib:     calib,
		transport: transport,
		pipe:      pipeline.New(store, calib, estimate.New(), dispatcher, opts...),
	}
}

func TestPipeline_DecisionSequence(t *testing.T) {
	Convey("Given a pipeline with calibrated distances for b1/g1", t, func() {
		ctx := context.Background()
		f := newFixture()
		for _, p := range []struct{ d, rssi float64 }{{1, -55}, {3, -65}, {5, -71}, {10, -80}} {
			_, err := f.calib.AddPoint(ctx, "b1", "g1", p.d, p.rssi)
			So(err, ShouldBeNil)
		}

		Convey("An in-range sighting alerts, logs, and rings the beacon", func() {
			out, err := f.pipe.Process(ctx, model.RSSISighting("b1", "g1", -65, time.Now()))
			So(err, ShouldBeNil)
			So(out.Status, ShouldEqual, pipeline.StatusAlerted)
			So(out.Distance, ShouldEqual, 3)
			So(out.Estimated, ShouldBeTrue)
			So(out.Degraded, ShouldBeFalse)
			So(out.Command, ShouldEqual, dispatch.Delivered)

			So(f.store.Alerts, ShouldHaveLength, 1)
			So(f.store.Alerts[0].AlertType, ShouldEqual, model.AlertTypeAutoVibration)
			So(f.store.Alerts[0].IsAlert, ShouldBeTrue)
			So(f.store.Logs, ShouldHaveLength, 1)
			So(f.store.Logs[0].Severity, ShouldEqual, model.SeverityInfo)
			So(f.transport.Published(), ShouldEqual, 1)
		})

		Convey("A distance exactly at the threshold is in range", func() {
			out, err := f.pipe.Process(ctx, model.DistanceReport("b1", "g1", 5.0, 0, false, time.Now()))
			So(err, ShouldBeNil)
			So(out.Status, ShouldEqual, pipeline.StatusAlerted)
		})

		Convey("A distance just past the threshold is a too-far no-op", func() {
			out, err := f.pipe.Process(ctx, model.DistanceReport("b1", "g1", 5.01, 0, false, time.Now()))
			So(err, ShouldBeNil)
			So(out.Status, ShouldEqual, pipeline.StatusTooFar)
			So(out.Threshold, ShouldEqual, 5.0)
			So(out.Distance, ShouldEqual, 5.01)
			So(f.store.Alerts, ShouldBeEmpty)
			So(f.transport.Published(), ShouldEqual, 0)
		})

		Convey("Auto-vibration disabled is a normal no-op regardless of distance", func() {
			out, err := f.pipe.Process(ctx, model.DistanceReport("b1", "g-quiet", 0.5, 0, false, time.Now()))
			So(err, ShouldBeNil)
			So(out.Status, ShouldEqual, pipeline.StatusVibrationOff)
			So(f.store.Alerts, ShouldBeEmpty)
			So(f.transport.Published(), ShouldEqual, 0)
		})

		Convey("Repeated in-range reports re-alert every time by default", func() {
			for i := 0; i < 3; i++ {
				out, err := f.pipe.Process(ctx, model.RSSISighting("b1", "g1", -60, time.Now()))
				So(err, ShouldBeNil)
				So(out.Status, ShouldEqual, pipeline.StatusAlerted)
			}
			So(f.store.Alerts, ShouldHaveLength, 3)
		})

		Convey("An unknown gateway rejects the report with NotFound", func() {
			_, err := f.pipe.Process(ctx, model.RSSISighting("b1", "ghost", -60, time.Now()))
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})

		Convey("An unknown beacon rejects an in-range report with NotFound", func() {
			_, err := f.pipe.Process(ctx, model.RSSISighting("ghost", "g1", -60, time.Now()))
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})

		Convey("Malformed reports are rejected as invalid input", func() {
			_, err := f.pipe.Process(ctx, model.SightingReport{Kind: model.KindRSSI, BeaconID: "b1", GatewayID: "g1"})
			So(errors.Is(err, pipeline.ErrInvalidReport), ShouldBeTrue)

			_, err = f.pipe.Process(ctx, model.DistanceReport("b1", "g1", -2, 0, false, time.Now()))
			So(errors.Is(err, pipeline.ErrInvalidReport), ShouldBeTrue)
		})
	})
}

func TestPipeline_DegradedOutcomes(t *testing.T) {
	Convey("Given a pipeline whose durable writes fail", t, func() {
		ctx := context.Background()
		f := newFixture()
		f.store.FailAlert = errors.New("db unavailable")
		f.store.FailLog = errors.New("db unavailable")

		Convey("The decision stands and the outcome is degraded", func() {
			out, err := f.pipe.Process(ctx, model.DistanceReport("b1", "g1", 2.0, 0, false, time.Now()))
			So(err, ShouldBeNil)
			So(out.Status, ShouldEqual, pipeline.StatusAlerted)
			So(out.Degraded, ShouldBeTrue)
			// command still fired
			So(f.transport.Published(), ShouldEqual, 1)
		})
	})

	Convey("Given a pipeline with a disconnected transport", t, func() {
		ctx := context.Background()
		f := newFixture()
		So(f.transport.Disconnect(), ShouldBeNil)

		Convey("The alert is recorded and the command reports not delivered", func() {
			out, err := f.pipe.Process(ctx, model.DistanceReport("b1", "g1", 2.0, 0, false, time.Now()))
			So(err, ShouldBeNil)
			So(out.Status, ShouldEqual, pipeline.StatusAlerted)
			So(out.Command, ShouldEqual, dispatch.NotConnected)
			So(f.store.Alerts, ShouldHaveLength, 1)
		})
	})
}

func TestPipeline_Fallback(t *testing.T) {
	Convey("Given a pair with no calibration", t, func() {
		ctx := context.Background()
		f := newFixture()

		Convey("The path-loss model still produces a decision", func() {
			// default reference power -59 at 1m: -59 is right at the gateway
			out, err := f.pipe.Process(ctx, model.RSSISighting("b1", "g1", -59, time.Now()))
			So(err, ShouldBeNil)
			So(out.Status, ShouldEqual, pipeline.StatusAlerted)
			So(out.Distance, ShouldAlmostEqual, 1, 0.001)
		})
	})
}

func TestPipeline_Cooldown(t *testing.T) {
	Convey("Given a pipeline with a one-hour cooldown window", t, func() {
		ctx := context.Background()
		f := newFixture(pipeline.WithCooldown(time.Hour))

		Convey("Only the first in-range report alerts within the window", func() {
			out, err := f.pipe.Process(ctx, model.DistanceReport("b1", "g1", 2.0, 0, false, time.Now()))
			So(err, ShouldBeNil)
			So(out.Status, ShouldEqual, pipeline.StatusAlerted)

			out, err = f.pipe.Process(ctx, model.DistanceReport("b1", "g1", 2.0, 0, false, time.Now()))
			So(err, ShouldBeNil)
			So(out.Status, ShouldEqual, pipeline.StatusCooldown)
			So(f.store.Alerts, ShouldHaveLength, 1)
		})
	})
}

func TestPipeline_TriggerManual(t *testing.T) {
	Convey("Given a pipeline with known devices", t, func() {
		ctx := context.Background()
		f := newFixture()

		Convey("A manual trigger records a manual alert and rings the beacon", func() {
			out, err := f.pipe.TriggerManual(ctx, "b1", "g1")
			So(err, ShouldBeNil)
			So(out.Status, ShouldEqual, pipeline.StatusAlerted)
			So(f.store.Alerts, ShouldHaveLength, 1)
			So(f.store.Alerts[0].AlertType, ShouldEqual, model.AlertTypeManual)
			So(f.transport.Published(), ShouldEqual, 1)
		})

		Convey("Unknown devices are rejected", func() {
			_, err := f.pipe.TriggerManual(ctx, "ghost", "g1")
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			_, err = f.pipe.TriggerManual(ctx, "b1", "ghost")
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})
	})
}
