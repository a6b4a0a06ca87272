package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"s3uploader/internal/config"
	"s3uploader/internal/logger"
	"s3uploader/internal/metrics"
	"s3uploader/internal/progress"
	"s3uploader/internal/runner"
	"s3uploader/internal/scanner"
	"s3uploader/internal/storage"
	"s3uploader/internal/uploader"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "s3uploader",
	Short: "Upload declared sets of local files and directories to object storage",
	Long: `A concurrent upload tool driven by a task list: each task names a local
file or directory, a destination bucket and key, and the run applies
exclusion rules, bounded parallelism, and retry with backoff.`,
	SilenceUsage: true,
	RunE:         runUploads,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "config.yaml", "config file")

	rootCmd.Flags().String("log-level", "info", "Log level (debug/info/warn/error)")
	rootCmd.Flags().String("backend", "s3", "Store backend (s3/minio)")
	rootCmd.Flags().String("region", "", "Store region")
	rootCmd.Flags().String("profile", "", "AWS shared-config profile")
	rootCmd.Flags().String("endpoint", "", "Custom store endpoint")
	rootCmd.Flags().Int("max-retries", 3, "Maximum additional attempts per file")
	rootCmd.Flags().Int("parallel-uploads", 2, "Number of concurrent file uploads")
	rootCmd.Flags().Bool("dry-run", false, "Log intended uploads without transferring")
	rootCmd.Flags().Bool("enable-progress", true, "Report per-file transfer progress")
	rootCmd.Flags().String("metrics-addr", "", "Metrics listen address (empty disables)")
}

func runUploads(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.File)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info("Received shutdown signal, gracefully stopping...")
		cancel()
	}()

	client, err := storage.NewClient(ctx, storage.Config{
		Backend:    cfg.Store.Backend,
		Region:     cfg.Store.Region,
		Profile:    cfg.Store.Profile,
		Endpoint:   cfg.Store.Endpoint,
		AccessKey:  cfg.Store.AccessKey,
		SecretKey:  cfg.Store.SecretKey,
		Secure:     cfg.Store.Secure,
		AssumeRole: assumeRoleConfig(cfg.Store.AssumeRole),
	}, storage.Options{
		MultipartThreshold: cfg.Options.MultipartThreshold,
		PartSize:           cfg.Options.PartSize,
		Concurrency:        cfg.Options.TransferConcurrency,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to create store client: %w", err)
	}

	metricsCollector := metrics.New()
	if cfg.Options.MetricsAddr != "" {
		go func() {
			if err := metricsCollector.StartServer(cfg.Options.MetricsAddr); err != nil {
				log.Error("Failed to start metrics server", zap.Error(err))
			}
		}()
	}

	trackers := progress.NewManager(log)
	fileScanner := scanner.New(cfg.Options.ExcludePatterns, log)
	executor := uploader.NewExecutor(client, trackers, metricsCollector, uploader.Options{
		MaxRetries:     cfg.Options.MaxRetries,
		DryRun:         cfg.Options.DryRun,
		EnableProgress: cfg.Options.EnableProgress,
	}, log)
	dispatcher := uploader.NewDispatcher(cfg.Options.ParallelUploads, executor, metricsCollector, log)

	taskRunner := runner.New(cfg.UploadTasks, fileScanner, executor, dispatcher, metricsCollector, log)
	successful, failed := taskRunner.RunAll(ctx)

	log.Info("Run finished",
		zap.Int("successful_tasks", successful),
		zap.Int("failed_tasks", failed),
	)

	if failed > 0 {
		return fmt.Errorf("%d task(s) failed", failed)
	}
	return nil
}

func assumeRoleConfig(cfg *config.AssumeRoleConfig) *storage.AssumeRoleConfig {
	if cfg == nil {
		return nil
	}
	return &storage.AssumeRoleConfig{
		RoleArn:         cfg.RoleArn,
		SessionName:     cfg.SessionName,
		ExternalID:      cfg.ExternalID,
		DurationSeconds: cfg.DurationSeconds,
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
