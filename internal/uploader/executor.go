package uploader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"s3uploader/internal/metrics"
	"s3uploader/internal/progress"
	"s3uploader/internal/scanner"
	"s3uploader/internal/storage"
)

// Outcome is the result of one file's upload attempt sequence
type Outcome struct {
	Source  string
	Bucket  string
	Key     string
	Size    int64
	Success bool
	Err     error
}

// Options contains executor configuration
type Options struct {
	MaxRetries     int
	DryRun         bool
	EnableProgress bool
}

// Executor uploads one file at a time, retrying transient failures with
// exponential backoff. It never fails past its boundary: every failure
// mode is captured into the Outcome.
type Executor struct {
	client   storage.Client
	trackers *progress.Manager
	metrics  *metrics.Collector
	opts     Options
	logger   *zap.Logger
	sleep    func(time.Duration)
}

// NewExecutor creates a new upload executor
func NewExecutor(
	client storage.Client,
	trackers *progress.Manager,
	metricsCollector *metrics.Collector,
	opts Options,
	logger *zap.Logger,
) *Executor {
	return &Executor{
		client:   client,
		trackers: trackers,
		metrics:  metricsCollector,
		opts:     opts,
		logger:   logger,
		sleep:    time.Sleep,
	}
}

// Upload transfers one file to bucket/key and returns its Outcome.
// Transient failures retry up to MaxRetries additional times, waiting
// 2^attempt seconds between attempts. Missing files, permission errors,
// and unexpected errors fail immediately.
func (e *Executor) Upload(ctx context.Context, file scanner.FileInfo, bucket, key string) Outcome {
	outcome := Outcome{
		Source: file.Path,
		Bucket: bucket,
		Key:    key,
		Size:   file.Size,
	}

	if e.opts.DryRun {
		e.logger.Info("[DRY RUN] Would upload file",
			zap.String("file", file.Path),
			zap.String("bucket", bucket),
			zap.String("key", key),
		)
		outcome.Success = true
		return outcome
	}

	startTime := time.Now()

	var lastErr error
	for attempt := 0; attempt <= e.opts.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}

		err := e.attempt(ctx, file, bucket, key)
		if err == nil {
			outcome.Success = true
			e.metrics.IncSuccess(file.Size)
			e.metrics.ObserveDuration(time.Since(startTime))
			e.logger.Info("Successfully uploaded file",
				zap.String("file", file.Path),
				zap.String("bucket", bucket),
				zap.String("key", key),
				zap.Int64("size", file.Size),
			)
			return outcome
		}
		lastErr = err

		if isTerminal(err) {
			e.logger.Error("Upload failed",
				zap.String("file", file.Path),
				zap.Error(err),
			)
			break
		}

		if attempt < e.opts.MaxRetries {
			wait := backoff(attempt)
			e.logger.Warn("Upload failed, retrying",
				zap.String("file", file.Path),
				zap.Int("attempt", attempt+1),
				zap.Int("max_attempts", e.opts.MaxRetries+1),
				zap.Duration("wait", wait),
				zap.Error(err),
			)
			e.sleep(wait)
		} else {
			e.logger.Error("Upload failed after all attempts",
				zap.String("file", file.Path),
				zap.Int("attempts", e.opts.MaxRetries+1),
				zap.Error(err),
			)
		}
	}

	outcome.Err = lastErr
	e.metrics.IncFailed()
	return outcome
}

// attempt performs a single transfer, wiring a progress tracker into the
// store client when progress reporting is enabled.
func (e *Executor) attempt(ctx context.Context, file scanner.FileInfo, bucket, key string) error {
	var cb storage.ProgressFunc
	var tracker *progress.Tracker

	if e.opts.EnableProgress {
		tracker = e.trackers.Create(file.Path, file.Name(), file.Size)
		cb = tracker.Add
	}

	err := e.client.Upload(ctx, file.Path, bucket, key, cb)

	if tracker != nil {
		if err == nil {
			tracker.Complete()
		}
		e.trackers.Remove(file.Path)
	}

	return err
}

// isTerminal reports whether err must not be retried
func isTerminal(err error) bool {
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrPermissionDenied) {
		return true
	}
	return !storage.IsTransient(err)
}

// backoff returns the wait before attempt+1: 2^attempt seconds
func backoff(attempt int) time.Duration {
	return time.Duration(1<<uint(attempt)) * time.Second
}

func (o Outcome) String() string {
	if o.Success {
		return fmt.Sprintf("uploaded %s to %s/%s", o.Source, o.Bucket, o.Key)
	}
	return fmt.Sprintf("failed to upload %s to %s/%s: %v", o.Source, o.Bucket, o.Key, o.Err)
}
