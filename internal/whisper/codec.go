package whisper

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"strings"
	"unsafe"
)

var (
	errEmbeddedNUL     = errors.New("string contains a NUL byte")
	errMissingSampling = errors.New("sampling strategy is required")
	errOutOfRange      = errors.New("value does not fit in a 32-bit integer")
)

// paramBlock is the flat, untagged mirror of struct whisper_full_params.
// Pointer fields borrow from a blockStorage and are nil when unset; both
// strategy sub-blocks are always populated, the inactive one with zeroes.
// A block is built for one native call and dropped afterwards.
type paramBlock struct {
	strategy samplingStrategy

	nThreads    int32
	nMaxTextCtx int32
	offsetMs    int32
	durationMs  int32

	translate       bool
	noContext       bool
	noTimestamps    bool
	singleSegment   bool
	printSpecial    bool
	printProgress   bool
	printRealtime   bool
	printTimestamps bool

	tokenTimestamps bool
	tholdPt         float32
	tholdPtsum      float32
	maxLen          int32
	splitOnWord     bool
	maxTokens       int32

	speedUp    bool
	debugMode  bool
	audioCtx   int32
	tdrzEnable bool

	initialPrompt *byte
	promptTokens  *Token
	promptNTokens int32

	language       *byte
	detectLanguage bool

	suppressBlank           bool
	suppressNonSpeechTokens bool

	temperature    float32
	maxInitialTs   float32
	lengthPenalty  float32
	temperatureInc float32
	entropyThold   float32
	logprobThold   float32
	noSpeechThold  float32

	greedy struct {
		bestOf int32
	}
	beamSearch struct {
		beamSize int32
		patience float32
	}

	// hooks fills the abort and progress callback slots; nil leaves them empty.
	hooks *callHooks
}

// blockStorage owns every buffer a paramBlock points into. It must stay
// reachable until the native call that reads the block has returned.
type blockStorage struct {
	strings [][]byte
	tokens  []Token
}

func (s *blockStorage) cstring(field, value string) (*byte, error) {
	if value == "" {
		return nil, nil
	}
	if strings.IndexByte(value, 0) >= 0 {
		return nil, &ParamsError{Field: field, Err: errEmbeddedNUL}
	}
	buf := make([]byte, len(value)+1)
	copy(buf, value)
	s.strings = append(s.strings, buf)
	return &buf[0], nil
}

// pin keeps every owned buffer at a fixed address so the native side may
// hold pointers to it while the call runs.
func (s *blockStorage) pin(p *runtime.Pinner) {
	for _, buf := range s.strings {
		p.Pin(&buf[0])
	}
	if len(s.tokens) > 0 {
		p.Pin(&s.tokens[0])
	}
}

// int32Fields narrows int fields to the native width, keeping the first
// field that does not fit.
type int32Fields struct {
	err error
}

func (f *int32Fields) get(field string, v int) int32 {
	if v < math.MinInt32 || v > math.MaxInt32 {
		if f.err == nil {
			f.err = &ParamsError{Field: field, Err: errOutOfRange}
		}
		return 0
	}
	return int32(v)
}

// samplingValue dereferences *Greedy and *BeamSearch so both forms encode
// the same way.
func samplingValue(s Sampling) (Sampling, error) {
	switch v := s.(type) {
	case Greedy, BeamSearch:
		return v, nil
	case *Greedy:
		if v != nil {
			return *v, nil
		}
	case *BeamSearch:
		if v != nil {
			return *v, nil
		}
	}
	return nil, &ParamsError{Field: "Sampling", Err: errMissingSampling}
}

func encodeParams(p Params) (*paramBlock, *blockStorage, error) {
	sampling, err := samplingValue(p.Sampling)
	if err != nil {
		return nil, nil, err
	}

	storage := &blockStorage{}
	initialPrompt, err := storage.cstring("InitialPrompt", p.InitialPrompt)
	if err != nil {
		return nil, nil, err
	}
	language, err := storage.cstring("Language", p.Language)
	if err != nil {
		return nil, nil, err
	}

	var ints int32Fields
	block := &paramBlock{
		strategy: sampling.strategy(),

		nThreads:    ints.get("Threads", p.Threads),
		nMaxTextCtx: ints.get("MaxTextContext", p.MaxTextContext),
		offsetMs:    ints.get("OffsetMs", p.OffsetMs),
		durationMs:  ints.get("DurationMs", p.DurationMs),

		translate:       p.Translate,
		noContext:       p.NoContext,
		noTimestamps:    p.NoTimestamps,
		singleSegment:   p.SingleSegment,
		printSpecial:    p.PrintSpecial,
		printProgress:   p.PrintProgress,
		printRealtime:   p.PrintRealtime,
		printTimestamps: p.PrintTimestamps,

		tokenTimestamps: p.TokenTimestamps,
		tholdPt:         p.TimestampThreshold,
		tholdPtsum:      p.TimestampSumThreshold,
		maxLen:          ints.get("MaxSegmentLength", p.MaxSegmentLength),
		splitOnWord:     p.SplitOnWord,
		maxTokens:       ints.get("MaxTokens", p.MaxTokens),

		speedUp:    p.SpeedUp,
		debugMode:  p.DebugMode,
		audioCtx:   ints.get("AudioContext", p.AudioContext),
		tdrzEnable: p.Diarize,

		initialPrompt: initialPrompt,

		language:       language,
		detectLanguage: p.DetectLanguage,

		suppressBlank:           p.SuppressBlank,
		suppressNonSpeechTokens: p.SuppressNonSpeechTokens,

		temperature:    p.Temperature,
		maxInitialTs:   p.MaxInitialTimestamp,
		lengthPenalty:  p.LengthPenalty,
		temperatureInc: p.TemperatureIncrement,
		entropyThold:   p.EntropyThreshold,
		logprobThold:   p.LogProbThreshold,
		noSpeechThold:  p.NoSpeechThreshold,
	}

	if len(p.PromptTokens) > 0 {
		storage.tokens = append([]Token(nil), p.PromptTokens...)
		block.promptTokens = &storage.tokens[0]
		block.promptNTokens = int32(len(storage.tokens))
	}

	switch s := sampling.(type) {
	case Greedy:
		block.greedy.bestOf = ints.get("Sampling.BestOf", s.BestOf)
	case BeamSearch:
		block.beamSearch.beamSize = ints.get("Sampling.BeamSize", s.BeamSize)
		block.beamSearch.patience = s.Patience
	}
	if ints.err != nil {
		return nil, nil, ints.err
	}

	return block, storage, nil
}

// decodeParams copies a block into an owned Params. It panics on a strategy
// tag it does not know: blocks only come from encodeParams or the native
// default-params call, so an unknown tag is a broken library contract.
func decodeParams(b *paramBlock) Params {
	p := Params{
		Threads:        int(b.nThreads),
		MaxTextContext: int(b.nMaxTextCtx),
		OffsetMs:       int(b.offsetMs),
		DurationMs:     int(b.durationMs),

		Translate:       b.translate,
		NoContext:       b.noContext,
		NoTimestamps:    b.noTimestamps,
		SingleSegment:   b.singleSegment,
		PrintSpecial:    b.printSpecial,
		PrintProgress:   b.printProgress,
		PrintRealtime:   b.printRealtime,
		PrintTimestamps: b.printTimestamps,

		TokenTimestamps:       b.tokenTimestamps,
		TimestampThreshold:    b.tholdPt,
		TimestampSumThreshold: b.tholdPtsum,
		MaxSegmentLength:      int(b.maxLen),
		SplitOnWord:           b.splitOnWord,
		MaxTokens:             int(b.maxTokens),

		SpeedUp:      b.speedUp,
		DebugMode:    b.debugMode,
		AudioContext: int(b.audioCtx),
		Diarize:      b.tdrzEnable,

		InitialPrompt: goString(b.initialPrompt),

		Language:       goString(b.language),
		DetectLanguage: b.detectLanguage,

		SuppressBlank:           b.suppressBlank,
		SuppressNonSpeechTokens: b.suppressNonSpeechTokens,

		Temperature:          b.temperature,
		MaxInitialTimestamp:  b.maxInitialTs,
		LengthPenalty:        b.lengthPenalty,
		TemperatureIncrement: b.temperatureInc,
		EntropyThreshold:     b.entropyThold,
		LogProbThreshold:     b.logprobThold,
		NoSpeechThreshold:    b.noSpeechThold,
	}

	if b.promptTokens != nil && b.promptNTokens > 0 {
		p.PromptTokens = append([]Token(nil), unsafe.Slice(b.promptTokens, int(b.promptNTokens))...)
	}

	switch b.strategy {
	case strategyGreedy:
		p.Sampling = Greedy{BestOf: int(b.greedy.bestOf)}
	case strategyBeamSearch:
		p.Sampling = BeamSearch{BeamSize: int(b.beamSearch.beamSize), Patience: b.beamSearch.patience}
	default:
		panic(fmt.Sprintf("whisper: unknown sampling strategy %d", b.strategy))
	}
	return p
}

// goString copies a NUL-terminated string. nil reads as "".
func goString(p *byte) string {
	if p == nil {
		return ""
	}
	n := 0
	for *(*byte)(unsafe.Add(unsafe.Pointer(p), n)) != 0 {
		n++
	}
	return string(unsafe.Slice(p, n))
}
