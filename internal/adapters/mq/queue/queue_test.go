package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/safesite/proximity/internal/adapters/mq/queue"
	"github.com/safesite/proximity/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func report(beacon string) model.SightingReport {
	return model.RSSISighting(beacon, "g1", -60, time.Now())
}

func TestInMemoryQueue(t *testing.T) {
	Convey("Given a bounded in-memory queue", t, func() {
		ctx := context.Background()
		q := queue.NewInMemoryQueue(queue.WithCapacity(2))

		Convey("Enqueue accepts reports up to capacity", func() {
			So(q.Enqueue(ctx, report("b1")), ShouldBeTrue)
			So(q.Enqueue(ctx, report("b2")), ShouldBeTrue)
			So(q.Len(), ShouldEqual, 2)

			Convey("And rejects the overflowing report without blocking", func() {
				So(q.Enqueue(ctx, report("b3")), ShouldBeFalse)
				So(q.Len(), ShouldEqual, 2)
			})
		})

		Convey("Dequeue delivers reports in FIFO order", func() {
			So(q.Enqueue(ctx, report("first")), ShouldBeTrue)
			So(q.Enqueue(ctx, report("second")), ShouldBeTrue)

			out := q.Dequeue(ctx)
			So((<-out).BeaconID, ShouldEqual, "first")
			So((<-out).BeaconID, ShouldEqual, "second")
		})

		Convey("Close stops intake but drains queued reports", func() {
			So(q.Enqueue(ctx, report("b1")), ShouldBeTrue)
			So(q.Close(), ShouldBeNil)
			So(q.Enqueue(ctx, report("b2")), ShouldBeFalse)

			out := q.Dequeue(ctx)
			So((<-out).BeaconID, ShouldEqual, "b1")

			_, open := <-out
			So(open, ShouldBeFalse)

			Convey("And closing twice is harmless", func() {
				So(q.Close(), ShouldBeNil)
			})
		})

		Convey("A canceled context stops the dequeue channel", func() {
			dctx, cancel := context.WithCancel(ctx)
			out := q.Dequeue(dctx)
			cancel()
			So(q.Enqueue(ctx, report("b1")), ShouldBeTrue)

			select {
			case _, open := <-out:
				So(open, ShouldBeFalse)
			case <-time.After(time.Second):
				t.Fatal("dequeue channel did not close")
			}
		})
	})
}
