package worker_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/safesite/proximity/internal/adapters/mq/queue"
	"github.com/safesite/proximity/internal/adapters/mq/worker"
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

type countingProcessor struct {
	mu      sync.Mutex
	beacons []string
	err     error
}

func (p *countingProcessor) Process(_ context.Context, r model.SightingReport) (pipeline.Outcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.beacons = append(p.beacons, r.BeaconID)
	return pipeline.Outcome{}, p.err
}

func (p *countingProcessor) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.beacons)
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestPool(t *testing.T) {
	Convey("Given a pool draining a queue", t, func() {
		ctx := context.Background()
		q := queue.NewInMemoryQueue(queue.WithCapacity(100))
		proc := &countingProcessor{}
		pool := worker.NewPool(3, q, proc)

		Convey("Enqueued reports are all processed", func() {
			pool.Start(ctx)
			for i := 0; i < 20; i++ {
				So(q.Enqueue(ctx, model.RSSISighting("b1", "g1", -60, time.Now())), ShouldBeTrue)
			}
			So(waitFor(func() bool { return proc.count() == 20 }), ShouldBeTrue)
			pool.Stop()
		})

		Convey("A processor error does not stop the workers", func() {
			proc.err = errors.New("rejected")
			pool.Start(ctx)
			for i := 0; i < 5; i++ {
				So(q.Enqueue(ctx, model.RSSISighting("b1", "g1", -60, time.Now())), ShouldBeTrue)
			}
			So(waitFor(func() bool { return proc.count() == 5 }), ShouldBeTrue)
			pool.Stop()
		})

		Convey("Stop returns promptly on an idle pool", func() {
			pool.Start(ctx)
			done := make(chan struct{})
			go func() {
				pool.Stop()
				close(done)
			}()
			select {
			case <-done:
			case <-time.After(2 * time.Second):
				t.Fatal("pool did not stop")
			}
		})
	})

	Convey("A non-positive worker count falls back to a sane default", t, func() {
		q := queue.NewInMemoryQueue()
		pool := worker.NewPool(0, q, &countingProcessor{})
		So(pool, ShouldNotBeNil)
		pool.Start(context.Background())
		pool.Stop()
	})
}
