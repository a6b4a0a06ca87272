package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"s3uploader/internal/config"
	"s3uploader/internal/metrics"
	"s3uploader/internal/scanner"
	"s3uploader/internal/uploader"
)

// Runner drives the configured upload tasks end-to-end
type Runner struct {
	tasks      []config.UploadTask
	scanner    *scanner.Scanner
	executor   *uploader.Executor
	dispatcher *uploader.Dispatcher
	metrics    *metrics.Collector
	logger     *zap.Logger
}

// New creates a new task runner
func New(
	tasks []config.UploadTask,
	fileScanner *scanner.Scanner,
	executor *uploader.Executor,
	dispatcher *uploader.Dispatcher,
	metricsCollector *metrics.Collector,
	logger *zap.Logger,
) *Runner {
	return &Runner{
		tasks:      tasks,
		scanner:    fileScanner,
		executor:   executor,
		dispatcher: dispatcher,
		metrics:    metricsCollector,
		logger:     logger,
	}
}

// RunAll executes every enabled task in declaration order and returns the
// successful and failed task counts. A failing task never aborts the
// remaining tasks. Disabled tasks are skipped and not counted.
func (r *Runner) RunAll(ctx context.Context) (successful, failed int) {
	total := len(r.tasks)
	r.logger.Info("Starting upload tasks", zap.Int("total", total))

	for i, task := range r.tasks {
		if !task.Enabled {
			r.logger.Info("Skipping disabled task", zap.String("task", task.Name))
			r.metrics.IncTaskSkipped()
			continue
		}

		r.logger.Info("Starting task",
			zap.Int("index", i+1),
			zap.Int("total", total),
			zap.String("task", task.Name),
		)

		if r.runTask(ctx, task) {
			successful++
			r.metrics.IncTaskSuccess()
			r.logger.Info("Task completed successfully", zap.String("task", task.Name))
		} else {
			failed++
			r.metrics.IncTaskFailed()
			r.logger.Error("Task failed", zap.String("task", task.Name))
		}
	}

	r.logger.Info("Upload tasks completed",
		zap.Int("successful", successful),
		zap.Int("failed", failed),
	)
	return successful, failed
}

// runTask executes one task. It is the recovery boundary for anything
// unexpected while processing a task.
func (r *Runner) runTask(ctx context.Context, task config.UploadTask) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Task panicked",
				zap.String("task", task.Name),
				zap.Any("panic", rec),
			)
			ok = false
		}
	}()

	if task.Bucket == "" {
		r.logger.Error("Task has no bucket", zap.String("task", task.Name))
		return false
	}

	info, err := os.Stat(task.Source)
	if err != nil {
		r.logger.Error("Cannot access task source",
			zap.String("task", task.Name),
			zap.String("source", task.Source),
			zap.Error(err),
		)
		return false
	}

	switch {
	case info.Mode().IsRegular():
		return r.uploadFile(ctx, task)
	case info.IsDir():
		return r.uploadDirectory(ctx, task)
	default:
		r.logger.Error("Source is neither file nor directory",
			zap.String("task", task.Name),
			zap.String("source", task.Source),
		)
		return false
	}
}

func (r *Runner) uploadFile(ctx context.Context, task config.UploadTask) bool {
	if task.S3Key == "" {
		r.logger.Error("s3_key is required for file upload",
			zap.String("task", task.Name),
			zap.String("source", task.Source),
		)
		return false
	}

	file, err := r.scanner.Stat(task.Source)
	if err != nil {
		r.logger.Error("Cannot read source file",
			zap.String("task", task.Name),
			zap.Error(err),
		)
		return false
	}

	outcome := r.executor.Upload(ctx, file, task.Bucket, task.S3Key)
	return outcome.Success
}

func (r *Runner) uploadDirectory(ctx context.Context, task config.UploadTask) bool {
	fileCh, errCh := r.scanner.Scan(ctx, task.Source, task.Recursive)

	items := make(chan uploader.Item)
	var scanErr error
	var fileCount int

	go func() {
		defer close(items)
		for file := range fileCh {
			fileCount++
			item := uploader.Item{
				File:   file,
				Bucket: task.Bucket,
				Key:    task.S3KeyPrefix + filepath.ToSlash(file.RelativePath),
			}
			select {
			case items <- item:
			case <-ctx.Done():
				scanErr = ctx.Err()
				return
			}
		}
		// The scanner closes errCh after fileCh; a nil read means the
		// traversal finished cleanly.
		if err := <-errCh; err != nil {
			scanErr = fmt.Errorf("scan failed for %s: %w", task.Source, err)
		}
	}()

	successful, failedCount := r.dispatcher.Run(ctx, items)

	if scanErr != nil {
		r.logger.Error("Directory scan failed",
			zap.String("task", task.Name),
			zap.Error(scanErr),
		)
		return false
	}

	if fileCount == 0 {
		r.logger.Warn("No files found in source",
			zap.String("task", task.Name),
			zap.String("source", task.Source),
		)
		return true
	}

	r.logger.Info("Directory upload completed",
		zap.String("task", task.Name),
		zap.Int("successful", successful),
		zap.Int("failed", failedCount),
	)
	return failedCount == 0
}
