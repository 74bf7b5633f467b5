package whisper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"unsafe"
)

// sharedContext is the reference-counted owner of a model context. Readers
// (session creation, Full) hold mu for reading; the native free runs under
// the write lock once the last reference is dropped.
type sharedContext struct {
	mu     sync.RWMutex
	refs   atomic.Int64
	handle *contextHandle
	log    *slog.Logger
}

func newSharedContext(handle *contextHandle, logger *slog.Logger) *sharedContext {
	s := &sharedContext{handle: handle, log: logger}
	s.refs.Store(1)
	return s
}

// acquire adds a reference unless the context is already gone.
func (s *sharedContext) acquire() bool {
	for {
		n := s.refs.Load()
		if n <= 0 {
			return false
		}
		if s.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (s *sharedContext) release() {
	if s.refs.Add(-1) != 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handle.release()
	s.log.Debug("model context freed")
}

// read runs fn with the raw context pointer under the read lock.
func (s *sharedContext) read(fn func(model unsafe.Pointer)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.handle.ptr())
}

// Model is a loaded whisper model. It is safe for concurrent use: any number
// of goroutines may create sessions, and sessions created from one Model may
// run Full concurrently. The native model is freed when the Model and every
// Session created from it have been closed.
type Model struct {
	path   string
	lib    library
	shared *sharedContext
	closed atomic.Bool
	log    *slog.Logger
}

// ModelOption customises Load.
type ModelOption func(*modelConfig)

type modelConfig struct {
	logger *slog.Logger
}

// WithLogger sets the logger used for model lifecycle events.
func WithLogger(logger *slog.Logger) ModelOption {
	return func(c *modelConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Load reads a ggml whisper model from path. useGPU asks the library to use
// a hardware backend when one is compiled in.
func Load(path string, useGPU bool, opts ...ModelOption) (*Model, error) {
	cfg := modelConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if !lib.available() {
		return nil, fmt.Errorf("%w: %w", ErrInitialization, ErrNativeUnavailable)
	}

	handle, err := newContextHandle(lib, lib.initModel(path, useGPU))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, path)
	}

	logger := cfg.logger.With("component", "whisper.Model", "model_path", path)
	logger.Info("model loaded", "use_gpu", useGPU)

	return &Model{
		path:   path,
		lib:    lib,
		shared: newSharedContext(handle, logger),
		log:    logger,
	}, nil
}

// Path returns the file the model was loaded from.
func (m *Model) Path() string { return m.path }

// References reports how many owners (the Model itself and open sessions)
// still hold the native context.
func (m *Model) References() int64 { return m.shared.refs.Load() }

// NewSession allocates a session state against the model. Calls may run
// concurrently with each other and with Full on other sessions.
func (m *Model) NewSession(ctx context.Context, opts ...SessionOption) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.closed.Load() || !m.shared.acquire() {
		return nil, ErrClosed
	}

	var raw unsafe.Pointer
	m.shared.read(func(model unsafe.Pointer) {
		raw = m.lib.initState(model)
	})

	state, err := newStateHandle(m.lib, raw)
	if err != nil {
		m.shared.release()
		return nil, err
	}

	s := &Session{
		model: m,
		state: state,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close drops the Model's reference. It is safe to call Close multiple times.
func (m *Model) Close() error {
	if m == nil || !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	m.shared.release()
	return nil
}
