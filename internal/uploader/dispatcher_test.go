package uploader

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"s3uploader/internal/metrics"
	"s3uploader/internal/progress"
	"s3uploader/internal/storage"
)

// concurrencyClient records the highest number of simultaneous uploads.
type concurrencyClient struct {
	mu      sync.Mutex
	current int
	max     int
	calls   int
}

func (c *concurrencyClient) Upload(ctx context.Context, localPath, bucket, key string, cb storage.ProgressFunc) error {
	c.mu.Lock()
	c.current++
	c.calls++
	if c.current > c.max {
		c.max = c.current
	}
	c.mu.Unlock()

	time.Sleep(10 * time.Millisecond)

	c.mu.Lock()
	c.current--
	c.mu.Unlock()
	return nil
}

func itemsChannel(items []Item) <-chan Item {
	ch := make(chan Item, len(items))
	for _, item := range items {
		ch <- item
	}
	close(ch)
	return ch
}

func makeItems(n int) []Item {
	items := make([]Item, n)
	for i := range items {
		items[i] = Item{
			File:   testFile(),
			Bucket: "bucket",
			Key:    fmt.Sprintf("key-%d", i),
		}
	}
	return items
}

func newTestDispatcher(t *testing.T, workers int, client storage.Client) *Dispatcher {
	t.Helper()
	log := zaptest.NewLogger(t)
	collector := metrics.New()
	executor := NewExecutor(client, progress.NewManager(log), collector, Options{}, log)
	executor.sleep = func(time.Duration) {}
	return NewDispatcher(workers, executor, collector, log)
}

func TestDispatcherConcurrencyCap(t *testing.T) {
	client := &concurrencyClient{}
	d := newTestDispatcher(t, 2, client)

	successful, failed := d.Run(context.Background(), itemsChannel(makeItems(5)))

	assert.Equal(t, 5, successful)
	assert.Equal(t, 0, failed)
	assert.Equal(t, 5, client.calls)
	assert.LessOrEqual(t, client.max, 2, "no more than 2 uploads may run at once")
}

func TestDispatcherCollectsAllOutcomes(t *testing.T) {
	client := &fakeClient{errs: []error{storage.ErrNotFound}}
	d := newTestDispatcher(t, 3, client)

	successful, failed := d.Run(context.Background(), itemsChannel(makeItems(4)))

	assert.Equal(t, 4, successful+failed)
	assert.Equal(t, 1, failed)
}

func TestDispatcherEmptyInput(t *testing.T) {
	d := newTestDispatcher(t, 2, &fakeClient{})

	successful, failed := d.Run(context.Background(), itemsChannel(nil))

	assert.Zero(t, successful)
	assert.Zero(t, failed)
}

func TestDispatcherPanicDoesNotAbortSiblings(t *testing.T) {
	// A panic escaping the executor (here: from inside the store client)
	// becomes a failed outcome for that file only.
	items := makeItems(5)
	items[2].File.Path = "/data/poison.bin"

	client := &fakeClient{panicOn: "/data/poison.bin"}
	d := newTestDispatcher(t, 2, client)

	successful, failed := d.Run(context.Background(), itemsChannel(items))

	assert.Equal(t, 4, successful)
	assert.Equal(t, 1, failed)
}
