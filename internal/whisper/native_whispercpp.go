//go:build whispercpp

package whisper

/*
#cgo CFLAGS: -I${SRCDIR}/../../third_party/whisper.cpp -I${SRCDIR}/../../third_party/whisper.cpp/include -I${SRCDIR}/../../third_party/whisper.cpp/ggml/include
#cgo CXXFLAGS: -std=c++17 -I${SRCDIR}/../../third_party/whisper.cpp -I${SRCDIR}/../../third_party/whisper.cpp/include -I${SRCDIR}/../../third_party/whisper.cpp/ggml/include
#cgo LDFLAGS: -L${SRCDIR}/../../third_party/whisper.cpp/build -L${SRCDIR}/../../third_party/whisper.cpp/build/src -Wl,-rpath,${SRCDIR}/../../third_party/whisper.cpp/build/src -lwhisper -lstdc++ -lm

#include "stdlib.h"
#include "include/whisper.h"
#include "ggml.h"

bool whisperGoAbort(void * user_data);
void whisperGoProgress(struct whisper_context * ctx, struct whisper_state * state, int progress, void * user_data);
*/
import "C"

import (
	"runtime"
	"runtime/cgo"
	"unsafe"
)

var lib library = cLibrary{}

type cLibrary struct{}

func (cLibrary) available() bool { return true }

func (cLibrary) initModel(path string, useGPU bool) unsafe.Pointer {
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))
	cParams := C.whisper_context_default_params()
	cParams.use_gpu = C.bool(useGPU)
	return unsafe.Pointer(C.whisper_init_from_file_with_params_no_state(cPath, cParams))
}

func (cLibrary) freeModel(model unsafe.Pointer) {
	C.whisper_free((*C.struct_whisper_context)(model))
}

func (cLibrary) initState(model unsafe.Pointer) unsafe.Pointer {
	return unsafe.Pointer(C.whisper_init_state((*C.struct_whisper_context)(model)))
}

func (cLibrary) freeState(state unsafe.Pointer) {
	C.whisper_free_state((*C.struct_whisper_state)(state))
}

func (cLibrary) full(model, state unsafe.Pointer, block *paramBlock, samples []float32) int {
	params := toNativeParams(block)

	var pinner runtime.Pinner
	defer pinner.Unpin()

	if block.hooks != nil {
		handle := cgo.NewHandle(block.hooks)
		defer handle.Delete()
		pinner.Pin(&handle)
		params.abort_callback = (C.ggml_abort_callback)(C.whisperGoAbort)
		params.abort_callback_user_data = unsafe.Pointer(&handle)
		params.progress_callback = (C.whisper_progress_callback)(C.whisperGoProgress)
		params.progress_callback_user_data = unsafe.Pointer(&handle)
	}

	var cSamples *C.float
	if len(samples) > 0 {
		cSamples = (*C.float)(unsafe.Pointer(&samples[0]))
	}
	ret := C.whisper_full_with_state(
		(*C.struct_whisper_context)(model),
		(*C.struct_whisper_state)(state),
		params,
		cSamples,
		C.int(len(samples)),
	)
	runtime.KeepAlive(samples)
	return int(ret)
}

func (cLibrary) defaultParams(strategy samplingStrategy) paramBlock {
	return fromNativeParams(C.whisper_full_default_params(C.enum_whisper_sampling_strategy(strategy)))
}

func (cLibrary) nSegments(state unsafe.Pointer) int {
	return int(C.whisper_full_n_segments_from_state(cState(state)))
}

func (cLibrary) segmentText(state unsafe.Pointer, segment int) []byte {
	return cBytes(C.whisper_full_get_segment_text_from_state(cState(state), C.int(segment)))
}

func (cLibrary) segmentSpan(state unsafe.Pointer, segment int) (int64, int64) {
	t0 := C.whisper_full_get_segment_t0_from_state(cState(state), C.int(segment))
	t1 := C.whisper_full_get_segment_t1_from_state(cState(state), C.int(segment))
	return int64(t0), int64(t1)
}

func (cLibrary) speakerTurnNext(state unsafe.Pointer, segment int) bool {
	return bool(C.whisper_full_get_segment_speaker_turn_next_from_state(cState(state), C.int(segment)))
}

func (cLibrary) nTokens(state unsafe.Pointer, segment int) int {
	return int(C.whisper_full_n_tokens_from_state(cState(state), C.int(segment)))
}

func (cLibrary) tokenID(state unsafe.Pointer, segment, token int) Token {
	return Token(C.whisper_full_get_token_id_from_state(cState(state), C.int(segment), C.int(token)))
}

func (cLibrary) tokenText(model, state unsafe.Pointer, segment, token int) []byte {
	return cBytes(C.whisper_full_get_token_text_from_state(
		(*C.struct_whisper_context)(model), cState(state), C.int(segment), C.int(token)))
}

func (cLibrary) tokenProbability(state unsafe.Pointer, segment, token int) float32 {
	return float32(C.whisper_full_get_token_p_from_state(cState(state), C.int(segment), C.int(token)))
}

func (cLibrary) languageID(state unsafe.Pointer) int {
	return int(C.whisper_full_lang_id_from_state(cState(state)))
}

func cState(p unsafe.Pointer) *C.struct_whisper_state {
	return (*C.struct_whisper_state)(p)
}

func cBytes(s *C.char) []byte {
	if s == nil {
		return nil
	}
	return []byte(C.GoString(s))
}

// toNativeParams starts from the library defaults so fields the block does
// not model (callbacks, grammar, VAD) keep their native values.
func toNativeParams(b *paramBlock) C.struct_whisper_full_params {
	p := C.whisper_full_default_params(C.enum_whisper_sampling_strategy(b.strategy))

	p.n_threads = C.int(b.nThreads)
	p.n_max_text_ctx = C.int(b.nMaxTextCtx)
	p.offset_ms = C.int(b.offsetMs)
	p.duration_ms = C.int(b.durationMs)

	p.translate = C.bool(b.translate)
	p.no_context = C.bool(b.noContext)
	p.no_timestamps = C.bool(b.noTimestamps)
	p.single_segment = C.bool(b.singleSegment)
	p.print_special = C.bool(b.printSpecial)
	p.print_progress = C.bool(b.printProgress)
	p.print_realtime = C.bool(b.printRealtime)
	p.print_timestamps = C.bool(b.printTimestamps)

	p.token_timestamps = C.bool(b.tokenTimestamps)
	p.thold_pt = C.float(b.tholdPt)
	p.thold_ptsum = C.float(b.tholdPtsum)
	p.max_len = C.int(b.maxLen)
	p.split_on_word = C.bool(b.splitOnWord)
	p.max_tokens = C.int(b.maxTokens)

	// speed_up was removed from whisper.cpp; the flag has no native slot.
	p.debug_mode = C.bool(b.debugMode)
	p.audio_ctx = C.int(b.audioCtx)
	p.tdrz_enable = C.bool(b.tdrzEnable)

	p.initial_prompt = (*C.char)(unsafe.Pointer(b.initialPrompt))
	p.prompt_tokens = (*C.whisper_token)(unsafe.Pointer(b.promptTokens))
	p.prompt_n_tokens = C.int(b.promptNTokens)

	p.language = (*C.char)(unsafe.Pointer(b.language))
	p.detect_language = C.bool(b.detectLanguage)

	p.suppress_blank = C.bool(b.suppressBlank)
	p.suppress_nst = C.bool(b.suppressNonSpeechTokens)

	p.temperature = C.float(b.temperature)
	p.max_initial_ts = C.float(b.maxInitialTs)
	p.length_penalty = C.float(b.lengthPenalty)
	p.temperature_inc = C.float(b.temperatureInc)
	p.entropy_thold = C.float(b.entropyThold)
	p.logprob_thold = C.float(b.logprobThold)
	p.no_speech_thold = C.float(b.noSpeechThold)

	p.greedy.best_of = C.int(b.greedy.bestOf)
	p.beam_search.beam_size = C.int(b.beamSearch.beamSize)
	p.beam_search.patience = C.float(b.beamSearch.patience)
	return p
}

func fromNativeParams(p C.struct_whisper_full_params) paramBlock {
	b := paramBlock{
		strategy: samplingStrategy(p.strategy),

		nThreads:    int32(p.n_threads),
		nMaxTextCtx: int32(p.n_max_text_ctx),
		offsetMs:    int32(p.offset_ms),
		durationMs:  int32(p.duration_ms),

		translate:       bool(p.translate),
		noContext:       bool(p.no_context),
		noTimestamps:    bool(p.no_timestamps),
		singleSegment:   bool(p.single_segment),
		printSpecial:    bool(p.print_special),
		printProgress:   bool(p.print_progress),
		printRealtime:   bool(p.print_realtime),
		printTimestamps: bool(p.print_timestamps),

		tokenTimestamps: bool(p.token_timestamps),
		tholdPt:         float32(p.thold_pt),
		tholdPtsum:      float32(p.thold_ptsum),
		maxLen:          int32(p.max_len),
		splitOnWord:     bool(p.split_on_word),
		maxTokens:       int32(p.max_tokens),

		debugMode:  bool(p.debug_mode),
		audioCtx:   int32(p.audio_ctx),
		tdrzEnable: bool(p.tdrz_enable),

		initialPrompt: (*byte)(unsafe.Pointer(p.initial_prompt)),
		promptTokens:  (*Token)(unsafe.Pointer(p.prompt_tokens)),
		promptNTokens: int32(p.prompt_n_tokens),

		language:       (*byte)(unsafe.Pointer(p.language)),
		detectLanguage: bool(p.detect_language),

		suppressBlank:           bool(p.suppress_blank),
		suppressNonSpeechTokens: bool(p.suppress_nst),

		temperature:    float32(p.temperature),
		maxInitialTs:   float32(p.max_initial_ts),
		lengthPenalty:  float32(p.length_penalty),
		temperatureInc: float32(p.temperature_inc),
		entropyThold:   float32(p.entropy_thold),
		logprobThold:   float32(p.logprob_thold),
		noSpeechThold:  float32(p.no_speech_thold),
	}
	b.greedy.bestOf = int32(p.greedy.best_of)
	b.beamSearch.beamSize = int32(p.beam_search.beam_size)
	b.beamSearch.patience = float32(p.beam_search.patience)
	return b
}

//export whisperGoAbort
func whisperGoAbort(userData unsafe.Pointer) C.bool {
	return C.bool(shouldAbort(userData))
}

//export whisperGoProgress
func whisperGoProgress(_ *C.struct_whisper_context, _ *C.struct_whisper_state, progress C.int, userData unsafe.Pointer) {
	forwardProgress(userData, int(progress))
}
