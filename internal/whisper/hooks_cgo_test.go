//go:build cgo

package whisper

import (
	"context"
	"runtime/cgo"
	"testing"
	"unsafe"
)

func TestHooksFromHandle(t *testing.T) {
	hooks := newCallHooks(context.Background(), func(int) {})
	handle := cgo.NewHandle(hooks)
	defer handle.Delete()

	got, ok := hooksFromHandle(unsafe.Pointer(&handle))
	if !ok || got != hooks {
		t.Fatalf("expected original hooks, got %#v (ok=%v)", got, ok)
	}
}

func TestHooksFromHandleInvalidType(t *testing.T) {
	handle := cgo.NewHandle("not hooks")
	defer handle.Delete()

	if _, ok := hooksFromHandle(unsafe.Pointer(&handle)); ok {
		t.Fatalf("expected ok=false for foreign handle value")
	}
}

func TestHooksFromHandleDeleted(t *testing.T) {
	handle := cgo.NewHandle(&callHooks{ctx: context.Background()})
	ptr := unsafe.Pointer(&handle)
	handle.Delete()

	if _, ok := hooksFromHandle(ptr); ok {
		t.Fatalf("expected ok=false for deleted handle")
	}
}

func TestHooksFromHandleNil(t *testing.T) {
	if _, ok := hooksFromHandle(nil); ok {
		t.Fatalf("expected ok=false for nil")
	}
}

func TestShouldAbort(t *testing.T) {
	active := cgo.NewHandle(&callHooks{ctx: context.Background()})
	defer active.Delete()

	if shouldAbort(unsafe.Pointer(&active)) {
		t.Fatalf("expected no abort for active context")
	}

	cancelCtx, cancel := context.WithCancel(context.Background())
	cancel()
	cancelled := cgo.NewHandle(&callHooks{ctx: cancelCtx})
	defer cancelled.Delete()

	if !shouldAbort(unsafe.Pointer(&cancelled)) {
		t.Fatalf("expected abort for cancelled context")
	}
}

func TestForwardProgress(t *testing.T) {
	var seen []int
	handle := cgo.NewHandle(newCallHooks(context.Background(), func(p int) { seen = append(seen, p) }))
	defer handle.Delete()

	forwardProgress(unsafe.Pointer(&handle), 10)
	forwardProgress(unsafe.Pointer(&handle), 55)
	forwardProgress(nil, 99)

	if len(seen) != 2 || seen[0] != 10 || seen[1] != 55 {
		t.Fatalf("unexpected progress values %v", seen)
	}
}

func TestNewCallHooksNilWhenUnused(t *testing.T) {
	if hooks := newCallHooks(context.Background(), nil); hooks != nil {
		t.Fatalf("expected nil hooks for background context without progress")
	}
	if (*callHooks)(nil).aborted() {
		t.Fatalf("nil hooks must never abort")
	}
}
