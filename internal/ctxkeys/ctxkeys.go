package ctxkeys

import "context"

// contextKey 用于在 context 中存储值的键类型
type contextKey string

const (
	traceIDKey contextKey = "trace_id"
	runIDKey   contextKey = "run_id"
	crewIDKey  contextKey = "crew_id"
	taskIDKey  contextKey = "task_id"
)

// WithTraceID 设置 TraceID
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceID 获取 TraceID
func TraceID(ctx context.Context) (string, bool) {
	return lookup(ctx, traceIDKey)
}

// WithRunID 设置 RunID
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunID 获取 RunID
func RunID(ctx context.Context) (string, bool) {
	return lookup(ctx, runIDKey)
}

// WithCrewID 设置 CrewID
func WithCrewID(ctx context.Context, crewID string) context.Context {
	return context.WithValue(ctx, crewIDKey, crewID)
}

// CrewID 获取 CrewID
func CrewID(ctx context.Context) (string, bool) {
	return lookup(ctx, crewIDKey)
}

// WithTaskID 设置 TaskID（能力调用期间可用）
func WithTaskID(ctx context.Context, taskID string) context.Context {
	return context.WithValue(ctx, taskIDKey, taskID)
}

// TaskID 获取 TaskID
func TaskID(ctx context.Context) (string, bool) {
	return lookup(ctx, taskIDKey)
}

func lookup(ctx context.Context, key contextKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
