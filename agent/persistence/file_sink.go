package persistence

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
)

const (
	filePrefix = "crew_run_"
	fileSuffix = ".json"
)

// FileSink writes one JSON file per run under baseDir, named crew_run_<key>.json.
// 适合单节点部署.
type FileSink struct {
	baseDir string
	mu      sync.Mutex
	closed  bool
	logger  *zap.Logger
}

// NewFileSink creates the directory if needed.
func NewFileSink(baseDir string, logger *zap.Logger) (*FileSink, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if baseDir == "" {
		return nil, fmt.Errorf("file sink base dir: %w", ErrInvalidInput)
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create report directory: %w", err)
	}
	return &FileSink{
		baseDir: baseDir,
		logger:  logger.With(zap.String("component", "file_sink")),
	}, nil
}

// Path returns the file path for key.
func (s *FileSink) Path(key string) string {
	return filepath.Join(s.baseDir, filePrefix+key+fileSuffix)
}

// Open creates a temporary file next to the final destination.
func (s *FileSink) Open(ctx context.Context, key string) (ReportWriter, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	final := s.Path(key)
	if _, err := os.Stat(final); err == nil {
		return nil, ErrAlreadyExists
	}
	tmp, err := os.CreateTemp(s.baseDir, "."+filePrefix+key+"-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	return &fileWriter{sink: s, tmp: tmp, final: final}, nil
}

// Ping checks that the directory is still writable.
func (s *FileSink) Ping(ctx context.Context) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrStoreClosed
	}
	info, err := os.Stat(s.baseDir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", s.baseDir)
	}
	return nil
}

// Close 关闭 sink
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Load reads a stored report.
func (s *FileSink) Load(ctx context.Context, key string) ([]byte, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

// List scans the directory for report files.
func (s *FileSink) List(ctx context.Context, limit int) ([]Entry, error) {
	matches, err := filepath.Glob(filepath.Join(s.baseDir, filePrefix+"*"+fileSuffix))
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(matches))
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		name := filepath.Base(path)
		key := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
		entry := Entry{Key: key, CreatedAt: info.ModTime().UTC(), Size: int(info.Size())}
		if data, err := os.ReadFile(path); err == nil {
			if h, err := parseHeader(data); err == nil {
				entry.CrewID = h.CrewID
				entry.CreatedAt = h.CreatedAt
			}
		}
		entries = append(entries, entry)
	}
	return newestFirst(entries, limit), nil
}

type fileWriter struct {
	sink      *FileSink
	tmp       *os.File
	final     string
	committed bool
}

// Write writes and fsyncs the temp file, then hard-links it into place. The
// link fails when the destination exists, so a report that appeared since
// Open, from this process or another, is never replaced.
func (w *fileWriter) Write(ctx context.Context, data []byte) error {
	if w.committed {
		return ErrAlreadyExists
	}
	if _, err := parseHeader(data); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := w.tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := w.tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync report: %w", err)
	}
	if err := w.tmp.Close(); err != nil {
		return fmt.Errorf("failed to close report: %w", err)
	}

	w.sink.mu.Lock()
	defer w.sink.mu.Unlock()
	if err := publish(w.tmp.Name(), w.final, data); err != nil {
		return err
	}
	w.committed = true
	if err := os.Remove(w.tmp.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
		w.sink.logger.Warn("failed to remove temp file", zap.String("path", w.tmp.Name()), zap.Error(err))
	}
	w.sink.logger.Debug("report written", zap.String("path", w.final), zap.Int("bytes", len(data)))
	return nil
}

// publish links tmp to final. Filesystems without hard links fall back to an
// exclusive create of final.
func publish(tmp, final string, data []byte) error {
	err := os.Link(tmp, final)
	if err == nil {
		return nil
	}
	if errors.Is(err, os.ErrExist) {
		return ErrAlreadyExists
	}

	f, ferr := os.OpenFile(final, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if ferr != nil {
		if errors.Is(ferr, os.ErrExist) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to move report into place: %w", err)
	}
	if _, werr := f.Write(data); werr != nil {
		_ = f.Close()
		_ = os.Remove(final)
		return fmt.Errorf("failed to write report: %w", werr)
	}
	if cerr := f.Close(); cerr != nil {
		_ = os.Remove(final)
		return fmt.Errorf("failed to close report: %w", cerr)
	}
	return nil
}

// Close removes the temp file unless it was committed.
func (w *fileWriter) Close() error {
	if w.committed {
		return nil
	}
	_ = w.tmp.Close()
	if err := os.Remove(w.tmp.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
