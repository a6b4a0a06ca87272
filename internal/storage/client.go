package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"

	"go.uber.org/zap"
)

// DefaultContentType is used when the content type cannot be derived
// from the file extension.
const DefaultContentType = "application/octet-stream"

// ProgressFunc receives incremental byte counts during an upload. It may
// be invoked from multiple goroutines when parts upload in parallel.
type ProgressFunc func(bytesTransferred int64)

// Client defines the object-store upload boundary
type Client interface {
	// Upload transfers a local file to bucket/key. progress may be nil.
	Upload(ctx context.Context, localPath, bucket, key string, progress ProgressFunc) error
}

// Options contains transfer tuning knobs passed through to the backend
type Options struct {
	MultipartThreshold int64
	PartSize           int64
	Concurrency        int
}

// Config contains backend connection configuration
type Config struct {
	Backend    string
	Region     string
	Profile    string
	Endpoint   string
	AccessKey  string
	SecretKey  string
	Secure     bool
	AssumeRole *AssumeRoleConfig
}

// AssumeRoleConfig contains STS assume-role parameters
type AssumeRoleConfig struct {
	RoleArn         string
	SessionName     string
	ExternalID      string
	DurationSeconds int
}

// NewClient creates the configured store backend
func NewClient(ctx context.Context, cfg Config, opts Options, logger *zap.Logger) (Client, error) {
	switch cfg.Backend {
	case "s3":
		return NewS3Client(ctx, cfg, opts, logger)
	case "minio":
		return NewMinIOClient(cfg, opts, logger)
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.Backend)
	}
}

func guessContentType(path string) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return DefaultContentType
}

// progressReader reports bytes read to a ProgressFunc as the backend
// consumes the file body.
type progressReader struct {
	r  io.Reader
	fn ProgressFunc
}

func newProgressReader(r io.Reader, fn ProgressFunc) io.Reader {
	if fn == nil {
		return r
	}
	return &progressReader{r: r, fn: fn}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.fn(int64(n))
	}
	return n, err
}
