package whisper

import (
	"runtime"
	"unsafe"
)

// library is the set of whisper.cpp entry points the package consumes.
// Handles are opaque: a nil pointer from initModel or initState signals
// failure. Accessors never see an index outside the counts they report.
type library interface {
	available() bool

	initModel(path string, useGPU bool) unsafe.Pointer
	freeModel(model unsafe.Pointer)
	initState(model unsafe.Pointer) unsafe.Pointer
	freeState(state unsafe.Pointer)

	full(model, state unsafe.Pointer, block *paramBlock, samples []float32) int
	defaultParams(strategy samplingStrategy) paramBlock

	nSegments(state unsafe.Pointer) int
	segmentText(state unsafe.Pointer, segment int) []byte
	segmentSpan(state unsafe.Pointer, segment int) (t0, t1 int64)
	speakerTurnNext(state unsafe.Pointer, segment int) bool
	nTokens(state unsafe.Pointer, segment int) int
	tokenID(state unsafe.Pointer, segment, token int) Token
	tokenText(model, state unsafe.Pointer, segment, token int) []byte
	tokenProbability(state unsafe.Pointer, segment, token int) float32
	languageID(state unsafe.Pointer) int
}

// NativeAvailable reports whether the whisper.cpp backend is compiled in.
func NativeAvailable() bool { return lib.available() }

var defaultLanguage = []byte("en\x00")

// documentedDefaults reproduces whisper_full_default_params for builds
// without the native library.
func documentedDefaults(strategy samplingStrategy) paramBlock {
	b := paramBlock{
		strategy:        strategy,
		nThreads:        int32(min(4, runtime.NumCPU())),
		nMaxTextCtx:     16384,
		noContext:       true,
		printProgress:   true,
		printTimestamps: true,
		tholdPt:         0.01,
		tholdPtsum:      0.01,
		language:        &defaultLanguage[0],
		suppressBlank:   true,
		maxInitialTs:    1.0,
		lengthPenalty:   -1,
		temperatureInc:  0.2,
		entropyThold:    2.4,
		logprobThold:    -1,
		noSpeechThold:   0.6,
	}
	b.greedy.bestOf = -1
	b.beamSearch.beamSize = -1
	b.beamSearch.patience = -1
	switch strategy {
	case strategyGreedy:
		b.greedy.bestOf = 5
	case strategyBeamSearch:
		b.beamSearch.beamSize = 5
	}
	return b
}
