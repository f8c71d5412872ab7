package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// 🌐 运维 HTTP 服务器
// =============================================================================

// Config 服务器配置
type Config struct {
	Addr            string        `yaml:"addr" json:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// DefaultConfig 返回默认服务器配置
func DefaultConfig() Config {
	return Config{
		Addr:            ":9091",
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

type serverState int

const (
	stateIdle serverState = iota
	stateServing
	stateStopped
)

// Manager runs the ops endpoints (/metrics, /healthz) for the lifetime of
// one `crewcheck run`. It starts once and stops once.
type Manager struct {
	server *http.Server
	config Config
	logger *zap.Logger

	mu       sync.Mutex
	state    serverState
	listener net.Listener
	served   chan struct{}
	serveErr error
}

// NewManager 创建服务器管理器
func NewManager(handler http.Handler, config Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = DefaultConfig().ShutdownTimeout
	}
	return &Manager{
		server: &http.Server{
			Handler:           handler,
			ReadTimeout:       config.ReadTimeout,
			ReadHeaderTimeout: config.ReadTimeout,
			WriteTimeout:      config.WriteTimeout,
		},
		config: config,
		logger: logger.With(zap.String("component", "ops_server")),
		served: make(chan struct{}),
	}
}

// Start binds the listener and serves in the background.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case stateServing:
		return fmt.Errorf("ops server already started on %s", m.listener.Addr())
	case stateStopped:
		return fmt.Errorf("ops server is stopped")
	}

	ln, err := net.Listen("tcp", m.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", m.config.Addr, err)
	}
	m.listener = ln
	m.state = stateServing
	m.logger.Info("serving ops endpoints", zap.String("addr", ln.Addr().String()))

	go func() {
		defer close(m.served)
		if err := m.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("ops server failed", zap.Error(err))
			m.mu.Lock()
			m.serveErr = err
			m.mu.Unlock()
		}
	}()
	return nil
}

// Shutdown drains in-flight scrapes within ShutdownTimeout. Calling it again,
// or on a server that never started, is a no-op.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	prev := m.state
	m.state = stateStopped
	m.mu.Unlock()
	if prev != stateServing {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, m.config.ShutdownTimeout)
	defer cancel()
	if err := m.server.Shutdown(ctx); err != nil {
		m.logger.Error("ops server shutdown failed", zap.Error(err))
		return err
	}
	<-m.served
	m.logger.Info("ops server stopped")
	return m.Err()
}

// Err returns the error that stopped serving, if any.
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.serveErr
}

// Addr 返回实际监听地址，未启动时返回配置地址
func (m *Manager) Addr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listener != nil {
		return m.listener.Addr().String()
	}
	return m.config.Addr
}

// IsRunning 检查服务器是否运行中
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == stateServing
}
