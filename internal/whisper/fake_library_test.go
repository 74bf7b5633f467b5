package whisper

import (
	"fmt"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"unsafe"
)

// samplesPerSegment controls how fakeLibrary splits audio into segments.
const samplesPerSegment = 2

type fakeSegment struct {
	text   []byte
	tokens []Token
	t0, t1 int64
	turn   bool
}

type fakeModel struct {
	path string
}

type fakeState struct {
	model    unsafe.Pointer
	busy     atomic.Bool
	segments []fakeSegment
	lang     int
}

// fakeLibrary is an in-memory library. Each sample becomes a token whose id
// is the sample scaled by 100, grouped samplesPerSegment at a time. A sample
// of exactly -1 yields a segment whose text is not valid UTF-8. Like
// whisper.cpp, a call clears the state's results first and an aborted call
// leaves a partial segment behind.
type fakeLibrary struct {
	unavailable bool
	failModel   bool
	failState   bool
	fullStatus  atomic.Int32

	mu         sync.Mutex
	models     map[unsafe.Pointer]*fakeModel
	states     map[unsafe.Pointer]*fakeState
	violations []string
	prompts    [][]Token
	blocks     []paramBlock

	fullCalls  atomic.Int32
	modelFrees atomic.Int32
	stateFrees atomic.Int32
}

func newFakeLibrary() *fakeLibrary {
	return &fakeLibrary{
		models: make(map[unsafe.Pointer]*fakeModel),
		states: make(map[unsafe.Pointer]*fakeState),
	}
}

// installFake swaps the package library for f until the test ends.
func installFake(t *testing.T, f *fakeLibrary) *fakeLibrary {
	t.Helper()
	previous := lib
	lib = f
	t.Cleanup(func() {
		lib = previous
		f.mu.Lock()
		defer f.mu.Unlock()
		for _, v := range f.violations {
			t.Errorf("native contract violation: %s", v)
		}
	})
	return f
}

func (f *fakeLibrary) violate(format string, args ...any) {
	f.mu.Lock()
	f.violations = append(f.violations, fmt.Sprintf(format, args...))
	f.mu.Unlock()
}

func (f *fakeLibrary) model(p unsafe.Pointer) *fakeModel {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.models[p]
	if !ok {
		f.violations = append(f.violations, fmt.Sprintf("model %p used after free", p))
	}
	return m
}

func (f *fakeLibrary) state(p unsafe.Pointer) *fakeState {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.states[p]
	if !ok {
		f.violations = append(f.violations, fmt.Sprintf("state %p used after free", p))
		return &fakeState{}
	}
	return s
}

func (f *fakeLibrary) liveStates() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.states)
}

func (f *fakeLibrary) lastPrompt() []Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return nil
	}
	return f.prompts[len(f.prompts)-1]
}

func (f *fakeLibrary) available() bool { return !f.unavailable }

func (f *fakeLibrary) initModel(path string, _ bool) unsafe.Pointer {
	if f.failModel {
		return nil
	}
	m := &fakeModel{path: path}
	f.mu.Lock()
	f.models[unsafe.Pointer(m)] = m
	f.mu.Unlock()
	return unsafe.Pointer(m)
}

func (f *fakeLibrary) freeModel(p unsafe.Pointer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.models[p]; !ok {
		f.violations = append(f.violations, fmt.Sprintf("model %p freed twice", p))
		return
	}
	for _, s := range f.states {
		if s.model == p {
			f.violations = append(f.violations, fmt.Sprintf("model %p freed before its states", p))
			break
		}
	}
	delete(f.models, p)
	f.modelFrees.Add(1)
}

func (f *fakeLibrary) initState(model unsafe.Pointer) unsafe.Pointer {
	if f.model(model) == nil || f.failState {
		return nil
	}
	s := &fakeState{model: model, lang: -1}
	f.mu.Lock()
	f.states[unsafe.Pointer(s)] = s
	f.mu.Unlock()
	return unsafe.Pointer(s)
}

func (f *fakeLibrary) freeState(p unsafe.Pointer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.states[p]; !ok {
		f.violations = append(f.violations, fmt.Sprintf("state %p freed twice", p))
		return
	}
	delete(f.states, p)
	f.stateFrees.Add(1)
}

func (f *fakeLibrary) full(model, state unsafe.Pointer, block *paramBlock, samples []float32) int {
	f.fullCalls.Add(1)
	if f.model(model) == nil {
		return -1
	}
	st := f.state(state)
	if !st.busy.CompareAndSwap(false, true) {
		f.violate("state %p used concurrently", state)
		return -1
	}
	defer st.busy.Store(false)

	// whisper_full_with_state drops the previous results before decoding.
	st.segments = nil

	var prompt []Token
	if block.promptTokens != nil {
		prompt = append(prompt, unsafe.Slice(block.promptTokens, int(block.promptNTokens))...)
	}
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.blocks = append(f.blocks, *block)
	f.mu.Unlock()

	block.hooks.reportProgress(50)
	if block.hooks.aborted() {
		st.segments = []fakeSegment{{text: []byte("partial"), tokens: []Token{7}}}
		return -6
	}
	if status := f.fullStatus.Load(); status != 0 {
		return int(status)
	}
	runtime.Gosched()

	segments := make([]fakeSegment, 0, (len(samples)+samplesPerSegment-1)/samplesPerSegment)
	for start := 0; start < len(samples); start += samplesPerSegment {
		end := min(start+samplesPerSegment, len(samples))
		seg := fakeSegment{
			t0:   int64(start) * 100,
			t1:   int64(end) * 100,
			turn: block.tdrzEnable,
		}
		for _, s := range samples[start:end] {
			seg.tokens = append(seg.tokens, Token(math.Round(float64(s)*100)))
		}
		if samples[start] == -1 {
			seg.text = []byte{0xff, 0xfe}
		} else {
			seg.text = []byte(fmt.Sprintf("tokens %v", seg.tokens))
		}
		segments = append(segments, seg)
	}
	st.segments = segments
	st.lang = 0
	block.hooks.reportProgress(100)
	return 0
}

func (f *fakeLibrary) defaultParams(strategy samplingStrategy) paramBlock {
	return documentedDefaults(strategy)
}

func (f *fakeLibrary) nSegments(state unsafe.Pointer) int {
	return len(f.state(state).segments)
}

func (f *fakeLibrary) segmentText(state unsafe.Pointer, segment int) []byte {
	return f.state(state).segments[segment].text
}

func (f *fakeLibrary) segmentSpan(state unsafe.Pointer, segment int) (int64, int64) {
	seg := f.state(state).segments[segment]
	return seg.t0, seg.t1
}

func (f *fakeLibrary) speakerTurnNext(state unsafe.Pointer, segment int) bool {
	return f.state(state).segments[segment].turn
}

func (f *fakeLibrary) nTokens(state unsafe.Pointer, segment int) int {
	return len(f.state(state).segments[segment].tokens)
}

func (f *fakeLibrary) tokenID(state unsafe.Pointer, segment, token int) Token {
	return f.state(state).segments[segment].tokens[token]
}

func (f *fakeLibrary) tokenText(model, state unsafe.Pointer, segment, token int) []byte {
	if f.model(model) == nil {
		return nil
	}
	return []byte(fmt.Sprintf("<%d>", f.tokenID(state, segment, token)))
}

func (f *fakeLibrary) tokenProbability(state unsafe.Pointer, segment, token int) float32 {
	return 1 / float32(token+1)
}

func (f *fakeLibrary) languageID(state unsafe.Pointer) int {
	return f.state(state).lang
}
