// Package whisper is a memory-safe and concurrency-safe layer over the
// whisper.cpp inference library.
//
// A Model owns the loaded weights. It is shared: any number of goroutines
// may call NewSession, and the native model is freed only once the Model
// and every Session created from it have been closed.
//
// A Session owns one native state and is single-threaded: the caller must
// not run two calls on the same Session at once. Sessions of one Model may
// run Full in parallel. Each successful Full appends the emitted tokens to
// the session's running prompt, which seeds the next call.
//
// Params describes one Full call. It is copied into the native parameter
// block for the duration of the call only; empty strings are passed as NULL.
//
// The native backend is compiled in with the whispercpp build tag. Without
// it Load fails with ErrNativeUnavailable while DefaultParams still reports
// the library's documented defaults.
package whisper
