package uploader

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"s3uploader/internal/metrics"
	"s3uploader/internal/scanner"
)

// Item pairs a file descriptor with its destination
type Item struct {
	File   scanner.FileInfo
	Bucket string
	Key    string
}

// Dispatcher runs Executor invocations under a fixed concurrency cap
type Dispatcher struct {
	workers  int
	executor *Executor
	metrics  *metrics.Collector
	logger   *zap.Logger
}

// NewDispatcher creates a dispatcher with the given worker count
func NewDispatcher(workers int, executor *Executor, metricsCollector *metrics.Collector, logger *zap.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	return &Dispatcher{
		workers:  workers,
		executor: executor,
		metrics:  metricsCollector,
		logger:   logger,
	}
}

// Run uploads every item under the concurrency cap and returns the
// successful and failed counts. It returns only after each submitted item
// has produced exactly one Outcome; completion order is not guaranteed.
func (d *Dispatcher) Run(ctx context.Context, items <-chan Item) (successful, failed int) {
	results := make(chan Outcome)

	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go d.worker(ctx, i, items, results, &wg)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	for outcome := range results {
		if outcome.Success {
			successful++
		} else {
			failed++
			d.logger.Error("Upload failed",
				zap.String("file", outcome.Source),
				zap.String("bucket", outcome.Bucket),
				zap.String("key", outcome.Key),
				zap.Error(outcome.Err),
			)
		}
	}

	return successful, failed
}

func (d *Dispatcher) worker(ctx context.Context, id int, items <-chan Item, results chan<- Outcome, wg *sync.WaitGroup) {
	defer wg.Done()

	logger := d.logger.With(zap.Int("worker_id", id))
	logger.Debug("Worker started")

	// Items are drained even after cancellation so every submitted item
	// yields an outcome; the executor short-circuits cancelled uploads.
	for item := range items {
		results <- d.process(ctx, item)
	}

	logger.Debug("Worker finished - no more items")
}

// process invokes the executor. A panic inside a worker becomes a failed
// Outcome and never aborts its siblings.
func (d *Dispatcher) process(ctx context.Context, item Item) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Upload worker panicked",
				zap.String("file", item.File.Path),
				zap.Any("panic", r),
			)
			outcome = Outcome{
				Source: item.File.Path,
				Bucket: item.Bucket,
				Key:    item.Key,
				Size:   item.File.Size,
				Err:    fmt.Errorf("upload panicked: %v", r),
			}
		}
	}()

	d.metrics.UploadStarted()
	defer d.metrics.UploadFinished()

	return d.executor.Upload(ctx, item.File, item.Bucket, item.Key)
}
