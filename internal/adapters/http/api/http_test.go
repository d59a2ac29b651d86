package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/safesite/proximity/internal/adapters/http/api"
	"github.com/safesite/proximity/internal/adapters/repository"
	"github.com/safesite/proximity/internal/dispatch"
	"github.com/safesite/proximity/internal/domain/model"
	"github.com/safesite/proximity/internal/domain/quality"
	"github.com/safesite/proximity/internal/pipeline"
	"github.com/safesite/proximity/internal/retention"
	"github.com/safesite/proximity/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// fakeDeps implements api.Dependencies with canned behavior per test.
type fakeDeps struct {
	enqueueOK bool
	enqueued  []model.SightingReport

	set        *model.CalibrationSet
	assessment quality.Assessment
	addErr     error
	removed    bool
	policies   []model.LogRetentionPolicy
	putErr     error
	stats      []repository.LogStat
	sweep      retention.Result
	ringOut    pipeline.Outcome
	ringErr    error
}

func (f *fakeDeps) Enqueue(_ context.Context, r model.SightingReport) bool {
	if f.enqueueOK {
		f.enqueued = append(f.enqueued, r)
	}
	return f.enqueueOK
}

func (f *fakeDeps) AddCalibrationPoint(_ context.Context, beaconID, gatewayID string, distance, rssi float64, strict bool) (*model.CalibrationSet, error) {
	if f.addErr != nil && f.set == nil {
		return nil, f.addErr
	}
	return f.set, f.addErr
}

func (f *fakeDeps) RemoveCalibrationPoints(_ context.Context, beaconID, gatewayID string) (bool, error) {
	return f.removed, nil
}

func (f *fakeDeps) Calibration(_ context.Context, beaconID, gatewayID string) (*model.CalibrationSet, quality.Assessment, error) {
	if f.set == nil {
		return nil, quality.Assessment{}, repository.ErrNotFound
	}
	return f.set, f.assessment, nil
}

func (f *fakeDeps) ListCalibrations(_ context.Context, limit int) ([]*model.CalibrationSet, error) {
	if f.set == nil {
		return nil, nil
	}
	sets := []*model.CalibrationSet{f.set}
	if limit < len(sets) {
		sets = sets[:limit]
	}
	return sets, nil
}

func (f *fakeDeps) ReloadCalibrations(context.Context) error { return nil }

func (f *fakeDeps) RetentionPolicies(context.Context) ([]model.LogRetentionPolicy, error) {
	return f.policies, nil
}

func (f *fakeDeps) PutRetentionPolicy(_ context.Context, p model.LogRetentionPolicy) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.policies = append(f.policies, p)
	return nil
}

func (f *fakeDeps) LogStats(context.Context) ([]repository.LogStat, error) {
	return f.stats, nil
}

func (f *fakeDeps) SweepNow(context.Context) (retention.Result, error) {
	return f.sweep, nil
}

func (f *fakeDeps) RingBeacon(_ context.Context, beaconID, gatewayID string) (pipeline.Outcome, error) {
	return f.ringOut, f.ringErr
}

type fakeStats struct{}

func (fakeStats) GetStats() map[string]interface{} {
	return map[string]interface{}{"calibrated_pairs": 1}
}

func newMux(deps *fakeDeps, opts ...api.Option) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps, fakeStats{}, opts...).Register(mux)
	return mux
}

func doJSON(mux *http.ServeMux, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestReportsEndpoint(t *testing.T) {
	Convey("Given the reports endpoint", t, func() {
		deps := &fakeDeps{enqueueOK: true}
		mux := newMux(deps)

		Convey("A valid RSSI report is accepted", func() {
			rssi := -62.0
			rec := doJSON(mux, http.MethodPost, "/reports", map[string]any{
				"beacon_id": "b1", "gateway_id": "g1", "rssi": rssi,
				"ts": time.Now().UTC().Format(time.RFC3339),
			})
			So(rec.Code, ShouldEqual, http.StatusAccepted)
			So(deps.enqueued, ShouldHaveLength, 1)
			So(deps.enqueued[0].Kind, ShouldEqual, model.KindRSSI)
			So(deps.enqueued[0].RSSI, ShouldEqual, rssi)
		})

		Convey("A valid distance report is accepted", func() {
			rec := doJSON(mux, http.MethodPost, "/reports", map[string]any{
				"beacon_id": "b1", "gateway_id": "g1", "distance": 2.5,
			})
			So(rec.Code, ShouldEqual, http.StatusAccepted)
			So(deps.enqueued[0].Kind, ShouldEqual, model.KindDistance)
			So(deps.enqueued[0].Distance, ShouldEqual, 2.5)
		})

		Convey("Reports missing both rssi and distance are rejected", func() {
			rec := doJSON(mux, http.MethodPost, "/reports", map[string]any{
				"beacon_id": "b1", "gateway_id": "g1",
			})
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("A non-negative rssi is rejected", func() {
			rec := doJSON(mux, http.MethodPost, "/reports", map[string]any{
				"beacon_id": "b1", "gateway_id": "g1", "rssi": 10.0,
			})
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("A malformed timestamp is rejected", func() {
			rec := doJSON(mux, http.MethodPost, "/reports", map[string]any{
				"beacon_id": "b1", "gateway_id": "g1", "rssi": -60.0, "ts": "yesterday",
			})
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Backpressure surfaces as 429", func() {
			deps.enqueueOK = false
			rec := doJSON(mux, http.MethodPost, "/reports", map[string]any{
				"beacon_id": "b1", "gateway_id": "g1", "rssi": -60.0,
			})
			So(rec.Code, ShouldEqual, http.StatusTooManyRequests)
		})
	})
}

func TestCalibrationEndpoints(t *testing.T) {
	Convey("Given the calibration endpoints", t, func() {
		set := &model.CalibrationSet{
			BeaconID:  "b1",
			GatewayID: "g1",
			Points:    []model.CalibrationPoint{{Distance: 1, RSSI: -55, SampleCount: 1}},
		}
		deps := &fakeDeps{set: set, assessment: quality.Assessment{Rating: quality.RatingPoor}}
		mux := newMux(deps)

		Convey("Adding a point returns the updated set", func() {
			rec := doJSON(mux, http.MethodPost, "/calibration", map[string]any{
				"beacon_id": "b1", "gateway_id": "g1", "distance": 1.0, "rssi": -55.0,
			})
			So(rec.Code, ShouldEqual, http.StatusOK)
		})

		Convey("A strict duplicate maps to 409", func() {
			deps.set = nil
			deps.addErr = repository.ErrDuplicatePoint
			rec := doJSON(mux, http.MethodPost, "/calibration", map[string]any{
				"beacon_id": "b1", "gateway_id": "g1", "distance": 1.0, "rssi": -55.0, "strict": true,
			})
			So(rec.Code, ShouldEqual, http.StatusConflict)
		})

		Convey("A cached-but-not-persisted point maps to 202", func() {
			deps.addErr = errors.New("point cached but not persisted: db down")
			rec := doJSON(mux, http.MethodPost, "/calibration", map[string]any{
				"beacon_id": "b1", "gateway_id": "g1", "distance": 1.0, "rssi": -55.0,
			})
			So(rec.Code, ShouldEqual, http.StatusAccepted)
		})

		Convey("Fetching a pair includes the quality assessment", func() {
			rec := doJSON(mux, http.MethodGet, "/calibration?beacon_id=b1&gateway_id=g1", nil)
			So(rec.Code, ShouldEqual, http.StatusOK)

			var resp struct {
				Quality *quality.Assessment `json:"quality"`
			}
			So(json.Unmarshal(rec.Body.Bytes(), &resp), ShouldBeNil)
			So(resp.Quality, ShouldNotBeNil)
			So(resp.Quality.Rating, ShouldEqual, quality.RatingPoor)
		})

		Convey("An unknown pair maps to 404", func() {
			deps.set = nil
			rec := doJSON(mux, http.MethodGet, "/calibration?beacon_id=ghost&gateway_id=g1", nil)
			So(rec.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("A partial pair query is rejected", func() {
			rec := doJSON(mux, http.MethodGet, "/calibration?beacon_id=b1", nil)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Listing without filters returns every set", func() {
			rec := doJSON(mux, http.MethodGet, "/calibration", nil)
			So(rec.Code, ShouldEqual, http.StatusOK)

			var resp struct {
				Count int `json:"count"`
			}
			So(json.Unmarshal(rec.Body.Bytes(), &resp), ShouldBeNil)
			So(resp.Count, ShouldEqual, 1)
		})

		Convey("A non-positive limit is rejected", func() {
			rec := doJSON(mux, http.MethodGet, "/calibration?limit=0", nil)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Deleting an existing pair succeeds", func() {
			deps.removed = true
			rec := doJSON(mux, http.MethodDelete, "/calibration?beacon_id=b1&gateway_id=g1", nil)
			So(rec.Code, ShouldEqual, http.StatusOK)
		})

		Convey("Deleting an absent pair maps to 404", func() {
			rec := doJSON(mux, http.MethodDelete, "/calibration?beacon_id=b9&gateway_id=g9", nil)
			So(rec.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Reload responds with an ack", func() {
			rec := doJSON(mux, http.MethodPost, "/calibration/reload", nil)
			So(rec.Code, ShouldEqual, http.StatusOK)
		})
	})
}

func TestRetentionEndpoints(t *testing.T) {
	Convey("Given the retention endpoints", t, func() {
		deps := &fakeDeps{
			stats: []repository.LogStat{{LogType: "monitoring", Severity: model.SeverityError, Count: 3}},
			sweep: retention.Result{TotalDeleted: 2, PoliciesApplied: 1},
		}
		mux := newMux(deps)

		Convey("Policies can be stored and listed", func() {
			rec := doJSON(mux, http.MethodPut, "/retention/policies", map[string]any{
				"log_type": "monitoring", "severity": "error", "retention_days": 90, "is_active": true,
			})
			So(rec.Code, ShouldEqual, http.StatusOK)

			rec = doJSON(mux, http.MethodGet, "/retention/policies", nil)
			So(rec.Code, ShouldEqual, http.StatusOK)

			var resp struct {
				Count int `json:"count"`
			}
			So(json.Unmarshal(rec.Body.Bytes(), &resp), ShouldBeNil)
			So(resp.Count, ShouldEqual, 1)
		})

		Convey("An invalid severity is rejected", func() {
			rec := doJSON(mux, http.MethodPut, "/retention/policies", map[string]any{
				"log_type": "monitoring", "severity": "loud", "retention_days": 90,
			})
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Stats report per-class counts", func() {
			rec := doJSON(mux, http.MethodGet, "/retention/stats", nil)
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Body.String(), ShouldContainSubstring, "monitoring")
		})

		Convey("A manual sweep returns the run summary", func() {
			rec := doJSON(mux, http.MethodPost, "/retention/sweep", nil)
			So(rec.Code, ShouldEqual, http.StatusOK)

			var result retention.Result
			So(json.Unmarshal(rec.Body.Bytes(), &result), ShouldBeNil)
			So(result.TotalDeleted, ShouldEqual, 2)
		})
	})
}

func TestCommandsEndpoint(t *testing.T) {
	Convey("Given the ring command endpoint", t, func() {
		deps := &fakeDeps{
			ringOut: pipeline.Outcome{Status: pipeline.StatusAlerted, Command: dispatch.Delivered},
		}
		mux := newMux(deps)

		Convey("A valid ring request reports the delivery result", func() {
			rec := doJSON(mux, http.MethodPost, "/commands/ring", map[string]any{
				"beacon_id": "b1", "gateway_id": "g1",
			})
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Body.String(), ShouldContainSubstring, "delivered")
		})

		Convey("An unknown beacon maps to 404", func() {
			deps.ringErr = repository.ErrNotFound
			rec := doJSON(mux, http.MethodPost, "/commands/ring", map[string]any{
				"beacon_id": "ghost", "gateway_id": "g1",
			})
			So(rec.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Missing identifiers are rejected", func() {
			rec := doJSON(mux, http.MethodPost, "/commands/ring", map[string]any{"beacon_id": "b1"})
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestStatsAndHealth(t *testing.T) {
	Convey("Given the observability endpoints", t, func() {
		mux := newMux(&fakeDeps{})

		Convey("Stats returns the provider snapshot", func() {
			rec := doJSON(mux, http.MethodGet, "/stats", nil)
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Body.String(), ShouldContainSubstring, "calibrated_pairs")
		})

		Convey("Healthz serves the metrics registry", func() {
			rec := doJSON(mux, http.MethodGet, "/healthz", nil)
			So(rec.Code, ShouldEqual, http.StatusOK)
		})
	})
}
