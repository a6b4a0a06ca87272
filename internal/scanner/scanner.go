package scanner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

var (
	// ErrNotAFile indicates a single-file source that is not a regular file
	ErrNotAFile = errors.New("not a regular file")

	// ErrInvalidSource indicates a source that is neither a file nor a directory
	ErrInvalidSource = errors.New("source is neither a file nor a directory")
)

// FileInfo describes one file eligible for upload
type FileInfo struct {
	Path         string // absolute path
	Size         int64
	RelativePath string // relative to the scan root
}

// Name returns the base name of the file
func (f FileInfo) Name() string {
	return filepath.Base(f.Path)
}

// Scanner resolves upload sources into file descriptors,
// applying exclusion patterns
type Scanner struct {
	excludePatterns []string
	logger          *zap.Logger
}

// New creates a new Scanner
func New(excludePatterns []string, logger *zap.Logger) *Scanner {
	return &Scanner{
		excludePatterns: excludePatterns,
		logger:          logger,
	}
}

// ShouldExclude reports whether the path matches any exclusion pattern.
// A pattern excludes a path when it glob-matches the base name, or when
// it appears as a substring anywhere in the full path.
func (s *Scanner) ShouldExclude(path string) bool {
	name := filepath.Base(path)

	for _, pattern := range s.excludePatterns {
		if matched, _ := filepath.Match(pattern, name); matched {
			return true
		}
		if strings.Contains(path, pattern) {
			return true
		}
	}

	return false
}

// Stat resolves a single-file source into its descriptor.
func (s *Scanner) Stat(path string) (FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileInfo{}, fmt.Errorf("cannot access file %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return FileInfo{}, fmt.Errorf("%w: %s", ErrNotAFile, path)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	return FileInfo{
		Path:         absPath,
		Size:         info.Size(),
		RelativePath: filepath.Base(absPath),
	}, nil
}

// Scan lazily resolves a directory source into file descriptors. The
// returned channels are closed when the traversal finishes; the sequence
// is single-pass and the order within a directory is not guaranteed.
// Excluded directories are pruned from the traversal entirely.
func (s *Scanner) Scan(ctx context.Context, root string, recursive bool) (<-chan FileInfo, <-chan error) {
	fileCh := make(chan FileInfo)
	errCh := make(chan error, 1)

	go func() {
		defer close(fileCh)
		defer close(errCh)

		info, err := os.Stat(root)
		if err != nil {
			errCh <- fmt.Errorf("cannot access source %s: %w", root, err)
			return
		}
		if !info.IsDir() {
			errCh <- fmt.Errorf("%w: %s", ErrInvalidSource, root)
			return
		}

		absRoot, err := filepath.Abs(root)
		if err != nil {
			errCh <- fmt.Errorf("failed to resolve absolute path: %w", err)
			return
		}

		if recursive {
			s.walk(ctx, absRoot, fileCh)
		} else {
			s.list(ctx, absRoot, fileCh, errCh)
		}
	}()

	return fileCh, errCh
}

func (s *Scanner) list(ctx context.Context, root string, fileCh chan<- FileInfo, errCh chan<- error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		errCh <- fmt.Errorf("failed to read directory %s: %w", root, err)
		return
	}

	for _, entry := range entries {
		if entry.IsDir() || !entry.Type().IsRegular() {
			continue
		}

		path := filepath.Join(root, entry.Name())
		if s.ShouldExclude(path) {
			s.logger.Debug("Excluding file", zap.String("path", path))
			continue
		}

		info, err := entry.Info()
		if err != nil {
			s.logger.Warn("Skipping unreadable entry",
				zap.String("path", path),
				zap.Error(err))
			continue
		}

		select {
		case fileCh <- FileInfo{
			Path:         path,
			Size:         info.Size(),
			RelativePath: entry.Name(),
		}:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scanner) walk(ctx context.Context, root string, fileCh chan<- FileInfo) {
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			s.logger.Warn("Skipping unreadable path",
				zap.String("path", path),
				zap.Error(err))
			return nil
		}

		if d.IsDir() {
			if path != root && s.ShouldExclude(path) {
				s.logger.Debug("Pruning excluded directory", zap.String("path", path))
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}
		if s.ShouldExclude(path) {
			s.logger.Debug("Excluding file", zap.String("path", path))
			return nil
		}

		info, err := d.Info()
		if err != nil {
			s.logger.Warn("Skipping unreadable entry",
				zap.String("path", path),
				zap.Error(err))
			return nil
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}

		select {
		case fileCh <- FileInfo{
			Path:         path,
			Size:         info.Size(),
			RelativePath: relPath,
		}:
			return nil
		case <-ctx.Done():
			return filepath.SkipAll
		}
	})
}
