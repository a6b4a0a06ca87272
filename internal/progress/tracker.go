package progress

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status is a point-in-time snapshot of one file's upload progress
type Status struct {
	Name       string
	TotalSize  int64
	Uploaded   int64
	Percent    float64
	Speed      float64 // bytes/second since start
	ETA        time.Duration
	Elapsed    time.Duration
	Complete   bool
	StartTime  time.Time
}

// Tracker tracks upload progress for one in-flight file. Byte deltas may
// arrive from multiple goroutines when parts upload in parallel; all
// mutation happens under the tracker's lock.
type Tracker struct {
	mu        sync.Mutex
	name      string
	totalSize int64
	uploaded  int64
	startTime time.Time
	complete  bool
	logger    *zap.Logger
}

// NewTracker creates a tracker for a file of the given total size
func NewTracker(name string, totalSize int64, logger *zap.Logger) *Tracker {
	return &Tracker{
		name:      name,
		totalSize: totalSize,
		startTime: time.Now(),
		logger:    logger,
	}
}

// Add accumulates transferred bytes. Deltas arriving after Complete are
// dropped.
func (t *Tracker) Add(bytesTransferred int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.complete {
		return
	}
	t.uploaded += bytesTransferred

	t.logger.Debug("Upload progress",
		zap.String("file", t.name),
		zap.Int64("uploaded", t.uploaded),
		zap.Int64("total", t.totalSize),
	)
}

// Snapshot returns the current status. Speed and ETA are reported as zero
// when nothing has been uploaded yet or no time has elapsed.
func (t *Tracker) Snapshot() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() Status {
	st := Status{
		Name:      t.name,
		TotalSize: t.totalSize,
		Uploaded:  t.uploaded,
		Elapsed:   time.Since(t.startTime),
		Complete:  t.complete,
		StartTime: t.startTime,
	}

	if t.totalSize > 0 {
		st.Percent = float64(t.uploaded) / float64(t.totalSize) * 100
	}
	if st.Elapsed > 0 && t.uploaded > 0 {
		st.Speed = float64(t.uploaded) / st.Elapsed.Seconds()
		remaining := t.totalSize - t.uploaded
		if remaining > 0 {
			st.ETA = time.Duration(float64(remaining)/st.Speed) * time.Second
		}
	}

	return st
}

// Complete marks the transfer finished and emits a final summary. Further
// byte deltas are ignored. Calling it again has no effect.
func (t *Tracker) Complete() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.complete {
		return
	}
	t.complete = true

	st := t.snapshotLocked()
	t.logger.Info("Upload complete",
		zap.String("file", t.name),
		zap.String("size", FormatBytes(t.totalSize)),
		zap.String("speed", FormatSpeed(st.Speed)),
		zap.Duration("elapsed", st.Elapsed.Round(time.Millisecond)),
	)
}

// Manager maps in-flight files to their trackers. Removing a tracker is
// the only way its memory is released.
type Manager struct {
	mu       sync.Mutex
	trackers map[string]*Tracker
	logger   *zap.Logger
}

// NewManager creates an empty tracker manager
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		trackers: make(map[string]*Tracker),
		logger:   logger,
	}
}

// Create registers and returns a tracker keyed by id
func (m *Manager) Create(id, name string, totalSize int64) *Tracker {
	m.mu.Lock()
	defer m.mu.Unlock()

	tracker := NewTracker(name, totalSize, m.logger)
	m.trackers[id] = tracker
	return tracker
}

// Get returns the tracker for id, or nil
func (m *Manager) Get(id string) *Tracker {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trackers[id]
}

// Remove releases the tracker for id
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.trackers, id)
}

// Active returns the number of in-flight trackers
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.trackers)
}

// FormatSpeed formats speed in human readable format
func FormatSpeed(bytesPerSecond float64) string {
	if bytesPerSecond < 1024 {
		return fmt.Sprintf("%.1f B/s", bytesPerSecond)
	} else if bytesPerSecond < 1024*1024 {
		return fmt.Sprintf("%.1f KB/s", bytesPerSecond/1024)
	} else if bytesPerSecond < 1024*1024*1024 {
		return fmt.Sprintf("%.1f MB/s", bytesPerSecond/(1024*1024))
	} else {
		return fmt.Sprintf("%.1f GB/s", bytesPerSecond/(1024*1024*1024))
	}
}

// FormatBytes formats bytes in human readable format
func FormatBytes(bytes int64) string {
	if bytes < 1024 {
		return fmt.Sprintf("%d B", bytes)
	} else if bytes < 1024*1024 {
		return fmt.Sprintf("%.1f KB", float64(bytes)/1024)
	} else if bytes < 1024*1024*1024 {
		return fmt.Sprintf("%.1f MB", float64(bytes)/(1024*1024))
	} else {
		return fmt.Sprintf("%.1f GB", float64(bytes)/(1024*1024*1024))
	}
}
