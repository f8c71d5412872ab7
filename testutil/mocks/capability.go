// =============================================================================
// 🎭 RecordingCapability - 记录调用的能力模拟实现
// =============================================================================
// 包装任意 Capability，记录每次调用的进入/退出时间与最大并发数
//
// 使用方法:
//
//	rec := mocks.NewRecordingCapability(capability.NewReplay(fixtures, nil))
//	report, err := harness.Run(ctx, crew, rec)
//	calls := rec.Calls()
// =============================================================================
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/crewcheck/agent/crews"
	"github.com/BaSui01/crewcheck/agent/profiles"
	"github.com/BaSui01/crewcheck/agent/tasks"
	"github.com/BaSui01/crewcheck/types"
)

// Call 是一次调用记录
type Call struct {
	AgentID string
	TaskID  string
	Enter   time.Time
	Exit    time.Time
	Err     error
}

// RecordingCapability 记录所有经过它的调用
type RecordingCapability struct {
	inner crews.Capability

	mu          sync.Mutex
	calls       []Call
	inFlight    int
	maxInFlight int
}

// NewRecordingCapability 创建记录包装器。inner 为 nil 时返回空结果
func NewRecordingCapability(inner crews.Capability) *RecordingCapability {
	return &RecordingCapability{inner: inner}
}

// Invoke implements crews.Capability.
func (r *RecordingCapability) Invoke(ctx context.Context, agent profiles.AgentProfile, task tasks.TaskSpec) (*types.Outcome, error) {
	r.mu.Lock()
	r.inFlight++
	r.maxInFlight = max(r.maxInFlight, r.inFlight)
	r.mu.Unlock()

	enter := time.Now()
	var (
		out *types.Outcome
		err error
	)
	if r.inner != nil {
		out, err = r.inner.Invoke(ctx, agent, task)
	} else {
		out = &types.Outcome{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.inFlight--
	r.calls = append(r.calls, Call{
		AgentID: agent.ID,
		TaskID:  task.ID,
		Enter:   enter,
		Exit:    time.Now(),
		Err:     err,
	})
	return out, err
}

// Calls 返回调用记录的副本，按完成顺序排列
func (r *RecordingCapability) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// CallCount 返回某个任务被调用的次数
func (r *RecordingCapability) CallCount(taskID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c.TaskID == taskID {
			n++
		}
	}
	return n
}

// MaxInFlight 返回观察到的最大并发调用数
func (r *RecordingCapability) MaxInFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maxInFlight
}
