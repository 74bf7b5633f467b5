//go:build !whispercpp

package whisper

import "unsafe"

var lib library = unavailableLibrary{}

// unavailableLibrary stands in for whisper.cpp when the binary is built
// without the whispercpp tag. Model construction always fails.
type unavailableLibrary struct{}

func (unavailableLibrary) available() bool { return false }

func (unavailableLibrary) initModel(string, bool) unsafe.Pointer { return nil }

func (unavailableLibrary) freeModel(unsafe.Pointer) {}

func (unavailableLibrary) initState(unsafe.Pointer) unsafe.Pointer { return nil }

func (unavailableLibrary) freeState(unsafe.Pointer) {}

func (unavailableLibrary) full(_, _ unsafe.Pointer, _ *paramBlock, _ []float32) int { return -1 }

func (unavailableLibrary) defaultParams(strategy samplingStrategy) paramBlock {
	return documentedDefaults(strategy)
}

func (unavailableLibrary) nSegments(unsafe.Pointer) int { return 0 }

func (unavailableLibrary) segmentText(unsafe.Pointer, int) []byte { return nil }

func (unavailableLibrary) segmentSpan(unsafe.Pointer, int) (int64, int64) { return 0, 0 }

func (unavailableLibrary) speakerTurnNext(unsafe.Pointer, int) bool { return false }

func (unavailableLibrary) nTokens(unsafe.Pointer, int) int { return 0 }

func (unavailableLibrary) tokenID(unsafe.Pointer, int, int) Token { return 0 }

func (unavailableLibrary) tokenText(_, _ unsafe.Pointer, _, _ int) []byte { return nil }

func (unavailableLibrary) tokenProbability(unsafe.Pointer, int, int) float32 { return 0 }

func (unavailableLibrary) languageID(unsafe.Pointer) int { return -1 }
