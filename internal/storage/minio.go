package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// MinIOClient implements Client for S3-compatible endpoints using minio-go
type MinIOClient struct {
	client *minio.Client
	opts   Options
	logger *zap.Logger
}

// NewMinIOClient creates a new MinIO-backed client
func NewMinIOClient(cfg Config, opts Options, logger *zap.Logger) (*MinIOClient, error) {
	endpoint, err := cleanEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, err
	}

	return &MinIOClient{
		client: client,
		opts:   opts,
		logger: logger,
	}, nil
}

// cleanEndpoint removes protocol and path from endpoint URL to get host:port format
func cleanEndpoint(endpoint string) (string, error) {
	if endpoint == "" {
		return "", fmt.Errorf("endpoint cannot be empty")
	}

	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		if strings.Contains(endpoint, "/") {
			return "", fmt.Errorf("endpoint contains path but no protocol")
		}
		return endpoint, nil
	}

	parsedURL, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("failed to parse endpoint URL: %w", err)
	}

	if parsedURL.Path != "" && parsedURL.Path != "/" {
		return "", fmt.Errorf("endpoint URL cannot have paths, only host:port is allowed (got path: %s)", parsedURL.Path)
	}

	return parsedURL.Host, nil
}

// Upload transfers a local file to the configured endpoint
func (c *MinIOClient) Upload(ctx context.Context, localPath, bucket, key string, progress ProgressFunc) error {
	file, err := os.Open(localPath)
	if err != nil {
		return classifyLocalError(localPath, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return classifyLocalError(localPath, err)
	}

	putOpts := minio.PutObjectOptions{
		ContentType: guessContentType(localPath),
	}
	if c.opts.PartSize > 0 {
		putOpts.PartSize = uint64(c.opts.PartSize)
	}
	if c.opts.Concurrency > 0 {
		putOpts.NumThreads = uint(c.opts.Concurrency)
	}
	if c.opts.MultipartThreshold > 0 && info.Size() < c.opts.MultipartThreshold {
		putOpts.DisableMultipart = true
	}

	body := newProgressReader(file, progress)

	_, err = c.client.PutObject(ctx, bucket, key, body, info.Size(), putOpts)
	if err != nil {
		return Transient(fmt.Errorf("failed to upload %s to %s/%s: %w", localPath, bucket, key, err))
	}

	c.logger.Debug("Object uploaded",
		zap.String("file", localPath),
		zap.String("bucket", bucket),
		zap.String("key", key),
	)
	return nil
}
