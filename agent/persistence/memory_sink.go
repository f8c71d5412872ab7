package persistence

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemorySink keeps reports in memory. It is used in tests and dry runs.
type MemorySink struct {
	mu      sync.RWMutex
	reports map[string]memoryReport
	closed  bool
}

type memoryReport struct {
	data      []byte
	crewID    string
	createdAt time.Time
}

// NewMemorySink creates an empty memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{reports: make(map[string]memoryReport)}
}

// Open implements Sink.
func (s *MemorySink) Open(ctx context.Context, key string) (ReportWriter, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	if _, ok := s.reports[key]; ok {
		return nil, ErrAlreadyExists
	}
	return &memoryWriter{sink: s, key: key}, nil
}

// Ping implements Sink.
func (s *MemorySink) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// Close implements Sink.
func (s *MemorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Load implements ReportReader.
func (s *MemorySink) Load(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(r.data))
	copy(out, r.data)
	return out, nil
}

// List implements ReportReader.
func (s *MemorySink) List(ctx context.Context, limit int) ([]Entry, error) {
	s.mu.RLock()
	entries := make([]Entry, 0, len(s.reports))
	for key, r := range s.reports {
		entries = append(entries, Entry{Key: key, CrewID: r.crewID, CreatedAt: r.createdAt, Size: len(r.data)})
	}
	s.mu.RUnlock()
	return newestFirst(entries, limit), nil
}

// Len returns the number of stored reports.
func (s *MemorySink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.reports)
}

type memoryWriter struct {
	sink *MemorySink
	key  string
	done bool
}

func (w *memoryWriter) Write(ctx context.Context, data []byte) error {
	if w.done {
		return ErrAlreadyExists
	}
	h, err := parseHeader(data)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	w.sink.mu.Lock()
	defer w.sink.mu.Unlock()
	if w.sink.closed {
		return ErrStoreClosed
	}
	if _, ok := w.sink.reports[w.key]; ok {
		return ErrAlreadyExists
	}
	stored := make([]byte, len(data))
	copy(stored, data)
	w.sink.reports[w.key] = memoryReport{data: stored, crewID: h.CrewID, createdAt: h.CreatedAt}
	w.done = true
	return nil
}

func (w *memoryWriter) Close() error { return nil }

// newestFirst sorts entries by creation time descending (key as tie-break)
// and applies limit.
func newestFirst(entries []Entry, limit int) []Entry {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.After(entries[j].CreatedAt)
		}
		return entries[i].Key > entries[j].Key
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}
