//go:build cgo

package whisper

import (
	"runtime/cgo"
	"unsafe"
)

// hooksFromHandle resolves the callback user data passed back by whisper.cpp:
// a pointer to a cgo.Handle wrapping *callHooks.
func hooksFromHandle(userData unsafe.Pointer) (*callHooks, bool) {
	if userData == nil {
		return nil, false
	}

	handlePtr := (*cgo.Handle)(userData)
	handle := *handlePtr
	if handle == 0 {
		return nil, false
	}
	var (
		value     any
		recovered bool
	)

	func() {
		defer func() {
			if r := recover(); r != nil {
				recovered = true
				value = nil
			}
		}()
		value = handle.Value()
	}()

	if recovered || value == nil {
		return nil, false
	}

	hooks, ok := value.(*callHooks)
	return hooks, ok && hooks != nil
}

func shouldAbort(userData unsafe.Pointer) bool {
	hooks, ok := hooksFromHandle(userData)
	if !ok {
		return false
	}
	return hooks.aborted()
}

func forwardProgress(userData unsafe.Pointer, percent int) {
	hooks, ok := hooksFromHandle(userData)
	if !ok {
		return
	}
	hooks.reportProgress(percent)
}
