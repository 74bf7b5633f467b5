package whisper

// Token is a whisper vocabulary id.
type Token int32

type samplingStrategy int32

// Values match enum whisper_sampling_strategy.
const (
	strategyGreedy     samplingStrategy = 0
	strategyBeamSearch samplingStrategy = 1
)

// Sampling selects the decoding strategy of a Full call. It is implemented
// by Greedy and BeamSearch only; pointers to either are accepted and read
// by value.
type Sampling interface {
	strategy() samplingStrategy
}

// Greedy decodes by picking the best token, sampling BestOf candidates when
// the temperature is non-zero.
type Greedy struct {
	BestOf int
}

func (Greedy) strategy() samplingStrategy { return strategyGreedy }

// BeamSearch decodes with BeamSize beams. Patience is not implemented by
// whisper.cpp yet and is carried through unchanged.
type BeamSearch struct {
	BeamSize int
	Patience float32
}

func (BeamSearch) strategy() samplingStrategy { return strategyBeamSearch }

// Params describes a single Full call. String fields use "" for unset:
// an empty Language means the library default, an empty InitialPrompt means
// no prompt.
//
// PromptTokens is owned by the Session: Full replaces it with the session's
// running prompt buffer before encoding.
type Params struct {
	Sampling Sampling

	Threads        int
	MaxTextContext int
	OffsetMs       int
	DurationMs     int

	Translate       bool
	NoContext       bool
	NoTimestamps    bool
	SingleSegment   bool
	PrintSpecial    bool
	PrintProgress   bool
	PrintRealtime   bool
	PrintTimestamps bool

	TokenTimestamps       bool
	TimestampThreshold    float32
	TimestampSumThreshold float32
	MaxSegmentLength      int
	SplitOnWord           bool
	MaxTokens             int

	SpeedUp      bool
	DebugMode    bool
	AudioContext int
	Diarize      bool

	InitialPrompt string
	PromptTokens  []Token

	Language       string
	DetectLanguage bool

	SuppressBlank           bool
	SuppressNonSpeechTokens bool

	Temperature          float32
	MaxInitialTimestamp  float32
	LengthPenalty        float32
	TemperatureIncrement float32
	EntropyThreshold     float32
	LogProbThreshold     float32
	NoSpeechThreshold    float32
}

// DefaultParams returns the native library defaults for the strategy of s,
// with the strategy fields taken from s itself.
func DefaultParams(s Sampling) Params {
	s, err := samplingValue(s)
	if err != nil {
		s = Greedy{BestOf: 5}
	}
	block := lib.defaultParams(s.strategy())
	params := decodeParams(&block)
	params.Sampling = s
	return params
}

// DefaultGreedy mirrors whisper_full_default_params(WHISPER_SAMPLING_GREEDY).
func DefaultGreedy() Params {
	return DefaultParams(Greedy{BestOf: 5})
}

// DefaultBeamSearch mirrors whisper_full_default_params(WHISPER_SAMPLING_BEAM_SEARCH).
func DefaultBeamSearch() Params {
	return DefaultParams(BeamSearch{BeamSize: 5, Patience: -1})
}
