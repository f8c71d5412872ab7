// 场景文件变更监听器实现。
//
// 基于 fsnotify 监听场景文件所在目录，过滤出被关注的文件并做防抖，
// 用于 `crewcheck run --watch` 在场景变更后重新运行。
package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// --- 文件监听器类型定义 ---

// FileEvent represents a scenario file change event
type FileEvent struct {
	// Path 是改变的文件绝对路径
	Path string `json:"path"`

	// Op 是操作类型
	Op FileOp `json:"op"`

	// Timestamp 是事件发生的时间
	Timestamp time.Time `json:"timestamp"`
}

// FileOp represents file operation types
type FileOp int

const (
	// FileOpCreate 表示文件已创建
	FileOpCreate FileOp = iota
	// FileOpWrite 指示文件已被修改
	FileOpWrite
	// FileOpRemove 表示文件已被删除
	FileOpRemove
	// FileOpRename 表示文件已重命名
	FileOpRename
)

// String returns the string representation of FileOp
func (op FileOp) String() string {
	switch op {
	case FileOpCreate:
		return "CREATE"
	case FileOpWrite:
		return "WRITE"
	case FileOpRemove:
		return "REMOVE"
	case FileOpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

func toFileOp(op fsnotify.Op) (FileOp, bool) {
	switch {
	case op&fsnotify.Create != 0:
		return FileOpCreate, true
	case op&fsnotify.Write != 0:
		return FileOpWrite, true
	case op&fsnotify.Remove != 0:
		return FileOpRemove, true
	case op&fsnotify.Rename != 0:
		return FileOpRename, true
	default:
		return 0, false
	}
}

// --- 监听器选项 ---

// WatcherOption configures the ScenarioWatcher
type WatcherOption func(*ScenarioWatcher)

// WithDebounceDelay sets the debounce delay for file events
func WithDebounceDelay(d time.Duration) WatcherOption {
	return func(w *ScenarioWatcher) {
		w.debounceDelay = d
	}
}

// WithWatcherLogger sets the logger for the watcher
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *ScenarioWatcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// --- 监听器实现 ---

// ScenarioWatcher watches scenario files and reports debounced batches of changes.
// Parent directories are watched so editors that replace files on save are seen.
type ScenarioWatcher struct {
	mu sync.RWMutex

	paths         map[string]bool
	debounceDelay time.Duration
	callbacks     []func(events []FileEvent)

	watcher *fsnotify.Watcher
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	logger *zap.Logger
}

// NewScenarioWatcher creates a watcher for the given files.
func NewScenarioWatcher(paths []string, opts ...WatcherOption) (*ScenarioWatcher, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no scenario files to watch")
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	w := &ScenarioWatcher{
		paths:         make(map[string]bool, len(paths)),
		debounceDelay: 200 * time.Millisecond,
		watcher:       fw,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(zap.String("component", "scenario_watcher"))

	dirs := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			_ = fw.Close()
			return nil, fmt.Errorf("failed to resolve path %s: %w", p, err)
		}
		w.paths[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			_ = fw.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	return w, nil
}

// OnChange registers a callback. Callbacks run on the watcher goroutine, one
// call per debounced batch, with events sorted by path.
func (w *ScenarioWatcher) OnChange(callback func(events []FileEvent)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Start begins watching. It returns immediately.
func (w *ScenarioWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	go w.run(ctx)

	w.logger.Info("scenario watcher started",
		zap.Strings("paths", w.Paths()),
		zap.Duration("debounce_delay", w.debounceDelay))
	return nil
}

// Stop stops the watcher, waits for the event loop and releases the fsnotify handle.
func (w *ScenarioWatcher) Stop() error {
	w.mu.Lock()
	wasRunning := w.running
	w.running = false
	w.mu.Unlock()

	if wasRunning {
		close(w.stopCh)
		<-w.doneCh
	}
	return w.watcher.Close()
}

// Paths returns the watched files, sorted.
func (w *ScenarioWatcher) Paths() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]string, 0, len(w.paths))
	for p := range w.paths {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// IsRunning returns whether the watcher is running
func (w *ScenarioWatcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

func (w *ScenarioWatcher) run(ctx context.Context) {
	defer close(w.doneCh)

	pending := make(map[string]FileEvent)
	timer := time.NewTimer(w.debounceDelay)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			op, relevant := toFileOp(event.Op)
			if !relevant || !w.watches(event.Name) {
				continue
			}
			pending[filepath.Clean(event.Name)] = FileEvent{Path: filepath.Clean(event.Name), Op: op, Timestamp: time.Now()}
			timer.Reset(w.debounceDelay)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("fsnotify error", zap.Error(err))

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			w.dispatch(pending)
			pending = make(map[string]FileEvent)
		}
	}
}

func (w *ScenarioWatcher) watches(name string) bool {
	abs, err := filepath.Abs(name)
	if err != nil {
		return false
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.paths[abs]
}

func (w *ScenarioWatcher) dispatch(pending map[string]FileEvent) {
	events := make([]FileEvent, 0, len(pending))
	for _, evt := range pending {
		events = append(events, evt)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Path < events[j].Path })

	w.mu.RLock()
	callbacks := make([]func([]FileEvent), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.RUnlock()

	for _, evt := range events {
		w.logger.Debug("scenario file changed",
			zap.String("path", evt.Path),
			zap.String("op", evt.Op.String()))
	}
	for _, cb := range callbacks {
		cb(events)
	}
}
