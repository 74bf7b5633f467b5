package whisper

import (
	"context"
	"fmt"
	"runtime"
	"slices"
	"sync/atomic"
	"time"
	"unicode/utf8"
	"unsafe"
)

// Session owns one whisper state and the running prompt buffer threaded
// between Full calls. A Session is not safe for concurrent use: calls on the
// same Session must be serialized by the caller. Different sessions of one
// Model may be used from different goroutines at the same time.
//
// Accessors describe the most recent successful Full call. Before the first
// one the session reports no segments.
type Session struct {
	model *Model
	state *stateHandle

	prompt      []Token
	promptLimit int
	progress    func(percent int)

	results results
	closed  atomic.Bool
}

// results is a copy of the native results of one successful Full call. The
// native state is cleared at the start of every call, so accessors never
// read it directly.
type results struct {
	valid    bool
	segments []segmentResult
	language int
}

type segmentResult struct {
	text   []byte
	t0, t1 int64
	turn   bool
	tokens []tokenResult
}

type tokenResult struct {
	id   Token
	text []byte
	prob float32
}

// SessionOption customises a Session at creation.
type SessionOption func(*Session)

// WithPromptLimit keeps only the newest n tokens in the running prompt
// buffer. n <= 0 leaves the buffer unbounded.
func WithPromptLimit(n int) SessionOption {
	return func(s *Session) {
		s.promptLimit = max(n, 0)
	}
}

// WithProgress registers a callback receiving the native progress percentage.
// It runs on the goroutine executing Full.
func WithProgress(fn func(percent int)) SessionOption {
	return func(s *Session) {
		s.progress = fn
	}
}

// Full runs the whole pipeline (PCM to text) on samples, which must be mono
// 16 kHz floats in [-1, 1]. params.PromptTokens is replaced by the running
// prompt buffer. Cancelling ctx aborts the native call at its next check.
//
// On failure the previous results and the prompt buffer are left untouched.
func (s *Session) Full(ctx context.Context, params Params, samples []float32) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	params.PromptTokens = s.prompt
	block, storage, err := encodeParams(params)
	if err != nil {
		return err
	}
	block.hooks = newCallHooks(ctx, s.progress)

	var pinner runtime.Pinner
	storage.pin(&pinner)
	var (
		status int
		next   results
	)
	s.model.shared.read(func(model unsafe.Pointer) {
		status = s.model.lib.full(model, s.state.ptr(), block, samples)
		if status == 0 {
			next = captureResults(s.model.lib, model, s.state.ptr())
		}
	})
	pinner.Unpin()
	runtime.KeepAlive(storage)

	if status != 0 {
		statusErr := &StatusError{Code: status}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %w", statusErr, ctxErr)
		}
		return statusErr
	}

	s.results = next
	s.appendPrompt()
	return nil
}

func captureResults(lib library, model, state unsafe.Pointer) results {
	n := lib.nSegments(state)
	out := results{valid: true, segments: make([]segmentResult, n), language: lib.languageID(state)}
	for i := range out.segments {
		seg := &out.segments[i]
		seg.text = slices.Clone(lib.segmentText(state, i))
		seg.t0, seg.t1 = lib.segmentSpan(state, i)
		seg.turn = lib.speakerTurnNext(state, i)
		seg.tokens = make([]tokenResult, lib.nTokens(state, i))
		for j := range seg.tokens {
			seg.tokens[j] = tokenResult{
				id:   lib.tokenID(state, i, j),
				text: slices.Clone(lib.tokenText(model, state, i, j)),
				prob: lib.tokenProbability(state, i, j),
			}
		}
	}
	return out
}

func (s *Session) appendPrompt() {
	for _, seg := range s.results.segments {
		for _, tok := range seg.tokens {
			s.prompt = append(s.prompt, tok.id)
		}
	}
	if s.promptLimit > 0 && len(s.prompt) > s.promptLimit {
		s.prompt = slices.Clone(s.prompt[len(s.prompt)-s.promptLimit:])
	}
}

// PromptTokens returns a copy of the running prompt buffer.
func (s *Session) PromptTokens() []Token {
	return slices.Clone(s.prompt)
}

// ResetPrompt empties the running prompt buffer.
func (s *Session) ResetPrompt() {
	s.prompt = nil
}

// SegmentCount returns the number of segments produced by the last
// successful Full call.
func (s *Session) SegmentCount() int {
	if s.closed.Load() {
		return 0
	}
	return len(s.results.segments)
}

// TokenCount returns the number of tokens in segment.
func (s *Session) TokenCount(segment int) int {
	return len(s.segment(segment).tokens)
}

// SegmentText returns the text of segment.
func (s *Session) SegmentText(segment int) (string, error) {
	return validText(s.segment(segment).text, "segment", segment)
}

// SegmentSpan returns the start and end offsets of segment within the audio
// passed to the last Full call.
func (s *Session) SegmentSpan(segment int) (start, end time.Duration) {
	seg := s.segment(segment)
	// whisper timestamps count 10 ms ticks.
	return time.Duration(seg.t0) * 10 * time.Millisecond, time.Duration(seg.t1) * 10 * time.Millisecond
}

// SpeakerTurnNext reports whether a speaker change follows segment. It is
// only meaningful with Params.Diarize and a tdrz model.
func (s *Session) SpeakerTurnNext(segment int) bool {
	return s.segment(segment).turn
}

// TokenID returns the vocabulary id of a token.
func (s *Session) TokenID(segment, token int) Token {
	return s.token(segment, token).id
}

// TokenText returns the text of a token. Tokens are byte-level pieces, so a
// single token of a multibyte script may hold part of a UTF-8 sequence; such
// tokens return ErrInvalidText and their bytes are available from TokenBytes.
func (s *Session) TokenText(segment, token int) (string, error) {
	return validText(s.token(segment, token).text, "token", token)
}

// TokenBytes returns the raw bytes of a token without UTF-8 validation.
func (s *Session) TokenBytes(segment, token int) []byte {
	return slices.Clone(s.token(segment, token).text)
}

// TokenProbability returns the probability the decoder assigned to a token.
func (s *Session) TokenProbability(segment, token int) float32 {
	return s.token(segment, token).prob
}

// LanguageID returns the language id used by the last successful Full call,
// or -1.
func (s *Session) LanguageID() int {
	if s.closed.Load() || !s.results.valid {
		return -1
	}
	return s.results.language
}

// Close frees the session state and releases the session's hold on the
// model. It is safe to call Close multiple times.
func (s *Session) Close() error {
	if s == nil || !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.state.release()
	s.model.shared.release()
	return nil
}

func (s *Session) segment(segment int) *segmentResult {
	if n := s.SegmentCount(); segment < 0 || segment >= n {
		panic(fmt.Sprintf("whisper: segment index %d out of range [0:%d]", segment, n))
	}
	return &s.results.segments[segment]
}

func (s *Session) token(segment, token int) *tokenResult {
	seg := s.segment(segment)
	if n := len(seg.tokens); token < 0 || token >= n {
		panic(fmt.Sprintf("whisper: token index %d out of range [0:%d] in segment %d", token, n, segment))
	}
	return &seg.tokens[token]
}

func validText(raw []byte, kind string, index int) (string, error) {
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("%w: %s %d", ErrInvalidText, kind, index)
	}
	return string(raw), nil
}
