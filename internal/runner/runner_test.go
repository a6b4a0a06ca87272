package runner

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"s3uploader/internal/config"
	"s3uploader/internal/metrics"
	"s3uploader/internal/progress"
	"s3uploader/internal/scanner"
	"s3uploader/internal/storage"
	"s3uploader/internal/uploader"
)

// recordingClient remembers every uploaded destination key.
type recordingClient struct {
	mu   sync.Mutex
	keys []string
	errs map[string]error // destination key -> scripted error
}

func (c *recordingClient) Upload(ctx context.Context, localPath, bucket, key string, cb storage.ProgressFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys = append(c.keys, key)
	if c.errs != nil {
		return c.errs[key]
	}
	return nil
}

func (c *recordingClient) uploadedKeys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := append([]string(nil), c.keys...)
	sort.Strings(keys)
	return keys
}

func newTestRunner(t *testing.T, tasks []config.UploadTask, client storage.Client, excludePatterns []string) *Runner {
	t.Helper()
	log := zaptest.NewLogger(t)
	collector := metrics.New()
	executor := uploader.NewExecutor(client, progress.NewManager(log), collector, uploader.Options{}, log)
	dispatcher := uploader.NewDispatcher(2, executor, collector, log)
	fileScanner := scanner.New(excludePatterns, log)
	return New(tasks, fileScanner, executor, dispatcher, collector, log)
}

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for path, content := range files {
		fullPath := filepath.Join(root, path)
		require.NoError(t, os.MkdirAll(filepath.Dir(fullPath), 0o755))
		require.NoError(t, os.WriteFile(fullPath, []byte(content), 0o644))
	}
	return root
}

func TestRunAllDirectoryTaskWithExclusions(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"a.txt": "a",
		"b.log": "b",
		"c.tmp": "c",
	})

	client := &recordingClient{}
	r := newTestRunner(t, []config.UploadTask{{
		Name:        "logs",
		Source:      dir,
		Bucket:      "my-bucket",
		S3KeyPrefix: "backups/",
		Enabled:     true,
	}}, client, []string{"*.tmp"})

	successful, failed := r.RunAll(context.Background())

	assert.Equal(t, 1, successful)
	assert.Equal(t, 0, failed)
	assert.Equal(t, []string{"backups/a.txt", "backups/b.log"}, client.uploadedKeys())
}

func TestRunAllSingleFileTask(t *testing.T) {
	dir := writeFiles(t, map[string]string{"report.csv": "data"})

	client := &recordingClient{}
	r := newTestRunner(t, []config.UploadTask{{
		Name:    "report",
		Source:  filepath.Join(dir, "report.csv"),
		Bucket:  "my-bucket",
		S3Key:   "reports/report.csv",
		Enabled: true,
	}}, client, nil)

	successful, failed := r.RunAll(context.Background())

	assert.Equal(t, 1, successful)
	assert.Equal(t, 0, failed)
	assert.Equal(t, []string{"reports/report.csv"}, client.uploadedKeys())
}

func TestRunAllRecursiveKeysUseForwardSlashes(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"sub/deeper/x.txt": "x",
	})

	client := &recordingClient{}
	r := newTestRunner(t, []config.UploadTask{{
		Name:        "tree",
		Source:      dir,
		Bucket:      "b",
		S3KeyPrefix: "p/",
		Recursive:   true,
		Enabled:     true,
	}}, client, nil)

	successful, _ := r.RunAll(context.Background())

	assert.Equal(t, 1, successful)
	assert.Equal(t, []string{"p/sub/deeper/x.txt"}, client.uploadedKeys())
}

func TestRunAllDisabledTaskNotCounted(t *testing.T) {
	dir := writeFiles(t, map[string]string{"a.txt": "a"})

	client := &recordingClient{}
	r := newTestRunner(t, []config.UploadTask{
		{Name: "off", Source: dir, Bucket: "b", S3KeyPrefix: "x/", Enabled: false},
		{Name: "on", Source: dir, Bucket: "b", S3KeyPrefix: "y/", Enabled: true},
	}, client, nil)

	successful, failed := r.RunAll(context.Background())

	assert.Equal(t, 1, successful)
	assert.Equal(t, 0, failed)
	assert.Equal(t, []string{"y/a.txt"}, client.uploadedKeys())
}

func TestRunAllMissingRequiredFields(t *testing.T) {
	dir := writeFiles(t, map[string]string{"a.txt": "a"})
	file := filepath.Join(dir, "a.txt")

	t.Run("file task without s3_key", func(t *testing.T) {
		client := &recordingClient{}
		r := newTestRunner(t, []config.UploadTask{
			{Name: "nokey", Source: file, Bucket: "b", Enabled: true},
		}, client, nil)

		successful, failed := r.RunAll(context.Background())

		assert.Equal(t, 0, successful)
		assert.Equal(t, 1, failed)
		assert.Empty(t, client.uploadedKeys(), "no transfer may be attempted")
	})

	t.Run("task without bucket", func(t *testing.T) {
		client := &recordingClient{}
		r := newTestRunner(t, []config.UploadTask{
			{Name: "nobucket", Source: file, S3Key: "k", Enabled: true},
		}, client, nil)

		successful, failed := r.RunAll(context.Background())

		assert.Equal(t, 0, successful)
		assert.Equal(t, 1, failed)
		assert.Empty(t, client.uploadedKeys())
	})
}

func TestRunAllEmptyDirectoryIsVacuousSuccess(t *testing.T) {
	dir := writeFiles(t, map[string]string{"only.tmp": "x"})

	client := &recordingClient{}
	r := newTestRunner(t, []config.UploadTask{{
		Name:        "empty",
		Source:      dir,
		Bucket:      "b",
		S3KeyPrefix: "p/",
		Enabled:     true,
	}}, client, []string{"*.tmp"})

	successful, failed := r.RunAll(context.Background())

	assert.Equal(t, 1, successful)
	assert.Equal(t, 0, failed)
	assert.Empty(t, client.uploadedKeys())
}

func TestRunAllMissingSourceDoesNotAbortRun(t *testing.T) {
	dir := writeFiles(t, map[string]string{"a.txt": "a"})

	client := &recordingClient{}
	r := newTestRunner(t, []config.UploadTask{
		{Name: "gone", Source: filepath.Join(dir, "missing"), Bucket: "b", S3KeyPrefix: "p/", Enabled: true},
		{Name: "fine", Source: dir, Bucket: "b", S3KeyPrefix: "q/", Enabled: true},
	}, client, nil)

	successful, failed := r.RunAll(context.Background())

	assert.Equal(t, 1, successful)
	assert.Equal(t, 1, failed)
	assert.Equal(t, []string{"q/a.txt"}, client.uploadedKeys())
}

func TestRunAllTaskFailsWhenAnyFileFails(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"a.txt": "a",
		"b.txt": "b",
	})

	client := &recordingClient{errs: map[string]error{
		"p/b.txt": storage.ErrPermissionDenied,
	}}
	r := newTestRunner(t, []config.UploadTask{{
		Name:        "partial",
		Source:      dir,
		Bucket:      "b",
		S3KeyPrefix: "p/",
		Enabled:     true,
	}}, client, nil)

	successful, failed := r.RunAll(context.Background())

	assert.Equal(t, 0, successful)
	assert.Equal(t, 1, failed)
}

func TestRunAllCountsAddUp(t *testing.T) {
	dir := writeFiles(t, map[string]string{"a.txt": "a"})

	tasks := []config.UploadTask{
		{Name: "ok", Source: dir, Bucket: "b", S3KeyPrefix: "p/", Enabled: true},
		{Name: "disabled", Source: dir, Bucket: "b", Enabled: false},
		{Name: "broken", Source: filepath.Join(dir, "absent"), Bucket: "b", Enabled: true},
		{Name: "ok2", Source: filepath.Join(dir, "a.txt"), Bucket: "b", S3Key: "k", Enabled: true},
	}

	r := newTestRunner(t, tasks, &recordingClient{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	successful, failed := r.RunAll(ctx)

	enabled := 3
	assert.Equal(t, enabled, successful+failed)
	assert.Equal(t, 2, successful)
	assert.Equal(t, 1, failed)
}
