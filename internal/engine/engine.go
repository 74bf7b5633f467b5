package engine

import "context"

// Engine exposes a streaming transcription interface backed by whisper.cpp or a stub implementation.
// An Engine serves one stream and is not safe for concurrent use.
type Engine interface {
	// TranscribeSegment processes a chunk of audio and may emit zero or more transcripts.
	TranscribeSegment(ctx context.Context, audio []byte, opts Options) ([]Result, error)
	// Flush finalises the transcription session and emits any buffered transcripts.
	Flush(ctx context.Context, opts Options) ([]Result, error)
	// Close releases underlying resources.
	Close() error
}

// Factory creates one Engine per transcription stream. Engines of one
// factory share the loaded model and may run concurrently.
type Factory interface {
	NewStream(ctx context.Context) (Engine, error)
	// Native reports whether streams are transcribed by whisper.cpp.
	Native() bool
	Close() error
}

// LanguageHintSetter is implemented by engines that accept a default
// language used when callers request auto detection.
type LanguageHintSetter interface {
	SetDefaultLanguage(lang string)
}

// Options configures decoding for a segment or flush call.
type Options struct {
	Language string
	// Final indicates whether the segment corresponds to the end of the stream.
	Final bool
	// Sequence carries the original sequence number from the segment, when available.
	Sequence uint64
}

// Result represents a transcript produced by the engine.
type Result struct {
	Text       string
	Confidence float32
	Final      bool
}
