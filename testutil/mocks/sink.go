// =============================================================================
// 💾 FlakySink - 可注入故障的报告存储
// =============================================================================
// 基于 MemorySink，前 N 次写入返回错误，用于测试持久化重试
//
// 使用方法:
//
//	sink := mocks.NewFlakySink(2, errors.New("connection reset"))
//	sink.LandBeforeFailing() // 写入成功后仍然报错
// =============================================================================
package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/crewcheck/agent/persistence"
)

// FlakySink 前 failures 次写入失败，之后委托给内存存储
type FlakySink struct {
	*persistence.MemorySink

	mu       sync.Mutex
	failures int
	err      error
	land     bool
	writes   int
}

var _ persistence.ReportStore = (*FlakySink)(nil)

// NewFlakySink 创建前 failures 次写入失败的存储
func NewFlakySink(failures int, err error) *FlakySink {
	return &FlakySink{
		MemorySink: persistence.NewMemorySink(),
		failures:   failures,
		err:        err,
	}
}

// LandBeforeFailing 让失败的写入先真正落盘再报错
func (s *FlakySink) LandBeforeFailing() *FlakySink {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.land = true
	return s
}

// Writes 返回写入尝试次数
func (s *FlakySink) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// Open implements persistence.Sink.
func (s *FlakySink) Open(ctx context.Context, key string) (persistence.ReportWriter, error) {
	w, err := s.MemorySink.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	return &flakyWriter{sink: s, inner: w}, nil
}

type flakyWriter struct {
	sink  *FlakySink
	inner persistence.ReportWriter
}

func (w *flakyWriter) Write(ctx context.Context, data []byte) error {
	s := w.sink
	s.mu.Lock()
	s.writes++
	fail := s.failures > 0
	if fail {
		s.failures--
	}
	land := s.land
	s.mu.Unlock()

	if !fail {
		return w.inner.Write(ctx, data)
	}
	if land {
		if err := w.inner.Write(ctx, data); err != nil {
			return err
		}
	}
	return s.err
}

func (w *flakyWriter) Close() error { return w.inner.Close() }
