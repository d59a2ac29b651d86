// Package worker runs the pool of goroutines draining the sighting queue
// through the alert pipeline.
package worker

import (
	"context"
	"runtime"
	"strconv"
	"time"

	"github.com/safesite/proximity/internal/domain/model"
	"github.com/safesite/proximity/internal/pipeline"
	"github.com/safesite/proximity/pkg/logger"
	"github.com/safesite/proximity/pkg/metrics"
)

const workerShutdownTimeout = 5 * time.Second

// Queue defines how workers receive reports.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.SightingReport
}

// Processor evaluates one sighting; satisfied by pipeline.Pipeline.
type Processor interface {
	Process(ctx context.Context, report model.SightingReport) (pipeline.Outcome, error)
}

// Worker drains the queue through the processor until stopped.
type Worker struct {
	queue     Queue
	processor Processor
	name      string

	shutdown chan struct{}
	done     chan struct{}

	log logger.Logger
}

// Option applies a configuration option to the Worker.
type Option func(*Worker)

// WithName sets the worker name used in logs.
func WithName(name string) Option {
	return func(w *Worker) {
		if name != "" {
			w.name = name
		}
	}
}

// NewWorker creates a worker bound to the queue and processor.
func NewWorker(queue Queue, processor Processor, opts ...Option) *Worker {
	w := &Worker{
		queue:     queue,
		processor: processor,
		name:      "worker",
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.log = logger.Get().Named(w.name)
	return w
}

// Run processes reports until the context is canceled, the worker is shut
// down, or the queue closes.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	reports := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case report, ok := <-reports:
			if !ok {
				return
			}
			if _, err := w.processor.Process(ctx, report); err != nil {
				// Rejected reports (unknown devices, bad input) are
				// expected on a live feed; they must not stop the loop.
				w.log.Warn(ctx, "report rejected",
					logger.String("beacon", report.BeaconID),
					logger.String("gateway", report.GatewayID),
					logger.Error(err),
				)
			}
		}
	}
}

// Pool manages a fixed set of workers.
type Pool struct {
	workers []*Worker
	log     logger.Logger
}

// NewPool creates workerCount workers over the queue and processor.
// A non-positive count defaults to twice the CPU count.
func NewPool(workerCount int, queue Queue, processor Processor) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * 2
	}
	p := &Pool{
		workers: make([]*Worker, workerCount),
		log:     logger.Get().Named("worker-pool"),
	}
	for i := range p.workers {
		p.workers[i] = NewWorker(queue, processor, WithName("worker-"+strconv.Itoa(i)))
	}
	metrics.UpdateWorkerCount(workerCount)
	return p
}

// Start launches every worker.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	p.log.Info(ctx, "worker pool started", logger.Int("workers", len(p.workers)))
}

// Stop signals all workers and waits briefly for each to finish.
func (p *Pool) Stop() {
	for _, w := range p.workers {
		close(w.shutdown)
	}
	for _, w := range p.workers {
		select {
		case <-w.done:
		case <-time.After(workerShutdownTimeout):
		}
	}
	metrics.UpdateWorkerCount(0)
}
