package whisper

import (
	"runtime"
	"sync/atomic"
	"unsafe"
)

// noCopy makes `go vet` flag copies of the structs that embed it.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// nativeHandle owns one non-nil native pointer and hands it to free exactly once.
type nativeHandle struct {
	_    noCopy
	raw  unsafe.Pointer
	free func(unsafe.Pointer)
}

// ptr returns the raw pointer for a native call, or nil once released.
func (h *nativeHandle) ptr() unsafe.Pointer {
	return atomic.LoadPointer(&h.raw)
}

func (h *nativeHandle) releaseOnce() bool {
	p := atomic.SwapPointer(&h.raw, nil)
	if p == nil {
		return false
	}
	h.free(p)
	return true
}

// contextHandle wraps a struct whisper_context.
type contextHandle struct {
	nativeHandle
}

func newContextHandle(l library, p unsafe.Pointer) (*contextHandle, error) {
	if p == nil {
		return nil, ErrInitialization
	}
	h := &contextHandle{nativeHandle{raw: p, free: l.freeModel}}
	runtime.SetFinalizer(h, (*contextHandle).release)
	return h, nil
}

func (h *contextHandle) release() {
	if h.releaseOnce() {
		runtime.SetFinalizer(h, nil)
	}
}

// stateHandle wraps a struct whisper_state.
type stateHandle struct {
	nativeHandle
}

func newStateHandle(l library, p unsafe.Pointer) (*stateHandle, error) {
	if p == nil {
		return nil, ErrSessionInitialization
	}
	h := &stateHandle{nativeHandle{raw: p, free: l.freeState}}
	runtime.SetFinalizer(h, (*stateHandle).release)
	return h, nil
}

func (h *stateHandle) release() {
	if h.releaseOnce() {
		runtime.SetFinalizer(h, nil)
	}
}
