package whisper

import (
	"errors"
	"math"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func sampleParams(s Sampling) Params {
	p := DefaultParams(s)
	p.Threads = 3
	p.OffsetMs = 1500
	p.DurationMs = 9000
	p.Translate = true
	p.TokenTimestamps = true
	p.MaxSegmentLength = 42
	p.SplitOnWord = true
	p.Diarize = true
	p.InitialPrompt = "Zażółć gęślą jaźń."
	p.PromptTokens = []Token{50257, 11, 12, 13}
	p.Language = "pl"
	p.DetectLanguage = false
	p.SuppressNonSpeechTokens = true
	p.Temperature = 0.4
	p.EntropyThreshold = 2.2
	return p
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	installFake(t, newFakeLibrary())

	for name, sampling := range map[string]Sampling{
		"greedy": Greedy{BestOf: 3},
		"beam":   BeamSearch{BeamSize: 4, Patience: 1.5},
	} {
		t.Run(name, func(t *testing.T) {
			original := sampleParams(sampling)

			block, _, err := encodeParams(original)
			require.NoError(t, err)
			decoded := decodeParams(block)
			if diff := cmp.Diff(original, decoded); diff != "" {
				t.Fatalf("decode mismatch (-want +got):\n%s", diff)
			}

			again, _, err := encodeParams(decoded)
			require.NoError(t, err)
			if diff := cmp.Diff(decodeParams(block), decodeParams(again)); diff != "" {
				t.Fatalf("second encode mismatch (-want +got):\n%s", diff)
			}
			require.NotSame(t, block.initialPrompt, again.initialPrompt)
			require.NotSame(t, block.promptTokens, again.promptTokens)
		})
	}
}

func TestEncodeEmptyStringsAsNil(t *testing.T) {
	installFake(t, newFakeLibrary())

	p := DefaultGreedy()
	p.InitialPrompt = ""
	p.Language = ""
	p.PromptTokens = nil

	block, storage, err := encodeParams(p)
	require.NoError(t, err)
	require.Nil(t, block.initialPrompt)
	require.Nil(t, block.language)
	require.Nil(t, block.promptTokens)
	require.Zero(t, block.promptNTokens)
	require.Empty(t, storage.strings)

	decoded := decodeParams(block)
	require.Equal(t, "", decoded.InitialPrompt)
	require.Equal(t, "", decoded.Language)
}

func TestEncodeNULTerminatesStrings(t *testing.T) {
	installFake(t, newFakeLibrary())

	p := DefaultGreedy()
	p.InitialPrompt = "hello"
	block, storage, err := encodeParams(p)
	require.NoError(t, err)
	require.Len(t, storage.strings, 2)
	require.Equal(t, []byte("hello\x00"), storage.strings[0])
	require.Same(t, &storage.strings[0][0], block.initialPrompt)
}

func TestEncodeRejectsEmbeddedNUL(t *testing.T) {
	installFake(t, newFakeLibrary())

	for _, field := range []string{"InitialPrompt", "Language"} {
		t.Run(field, func(t *testing.T) {
			p := DefaultGreedy()
			switch field {
			case "InitialPrompt":
				p.InitialPrompt = "bad\x00prompt"
			case "Language":
				p.Language = "e\x00n"
			}

			block, storage, err := encodeParams(p)
			require.Nil(t, block)
			require.Nil(t, storage)

			var paramsErr *ParamsError
			require.True(t, errors.As(err, &paramsErr), "got %v", err)
			require.Equal(t, field, paramsErr.Field)
			require.ErrorIs(t, err, errEmbeddedNUL)
		})
	}
}

func TestEncodeRequiresSampling(t *testing.T) {
	_, _, err := encodeParams(Params{})
	var paramsErr *ParamsError
	require.ErrorAs(t, err, &paramsErr)
	require.Equal(t, "Sampling", paramsErr.Field)
}

func TestEncodeZeroesInactiveStrategy(t *testing.T) {
	installFake(t, newFakeLibrary())

	greedy, _, err := encodeParams(DefaultParams(Greedy{BestOf: 7}))
	require.NoError(t, err)
	require.Equal(t, strategyGreedy, greedy.strategy)
	require.EqualValues(t, 7, greedy.greedy.bestOf)
	require.Zero(t, greedy.beamSearch.beamSize)
	require.Zero(t, greedy.beamSearch.patience)

	beam, _, err := encodeParams(DefaultParams(BeamSearch{BeamSize: 8, Patience: 0.5}))
	require.NoError(t, err)
	require.Equal(t, strategyBeamSearch, beam.strategy)
	require.EqualValues(t, 8, beam.beamSearch.beamSize)
	require.EqualValues(t, 0.5, beam.beamSearch.patience)
	require.Zero(t, beam.greedy.bestOf)
}

func TestEncodeCopiesPromptTokens(t *testing.T) {
	installFake(t, newFakeLibrary())

	tokens := []Token{1, 2, 3}
	p := DefaultGreedy()
	p.PromptTokens = tokens

	block, storage, err := encodeParams(p)
	require.NoError(t, err)
	tokens[0] = 99

	require.Equal(t, []Token{1, 2, 3}, storage.tokens)
	require.EqualValues(t, 3, block.promptNTokens)
	require.Equal(t, []Token{1, 2, 3}, decodeParams(block).PromptTokens)
}

func TestDecodeUnknownStrategyPanics(t *testing.T) {
	block := documentedDefaults(strategyGreedy)
	block.strategy = 7
	require.PanicsWithValue(t, "whisper: unknown sampling strategy 7", func() {
		decodeParams(&block)
	})
}

func TestEncodePointerSampling(t *testing.T) {
	installFake(t, newFakeLibrary())

	for _, tc := range []struct {
		name     string
		sampling Sampling
		want     Sampling
	}{
		{name: "greedy", sampling: &Greedy{BestOf: 3}, want: Greedy{BestOf: 3}},
		{name: "beam", sampling: &BeamSearch{BeamSize: 7, Patience: 2}, want: BeamSearch{BeamSize: 7, Patience: 2}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			params := DefaultGreedy()
			params.Sampling = tc.sampling

			block, _, err := encodeParams(params)
			require.NoError(t, err)
			require.Equal(t, tc.want, decodeParams(block).Sampling)
		})
	}

	var nilBeam *BeamSearch
	params := DefaultGreedy()
	params.Sampling = nilBeam
	_, _, err := encodeParams(params)
	var paramsErr *ParamsError
	require.ErrorAs(t, err, &paramsErr)
	require.Equal(t, "Sampling", paramsErr.Field)
}

func TestEncodeRejectsOversizedInts(t *testing.T) {
	if strconv.IntSize == 32 {
		t.Skip("int cannot exceed the native width")
	}
	installFake(t, newFakeLibrary())
	oversized := int(int64(math.MaxInt32) + 1)

	for _, tc := range []struct {
		field string
		set   func(*Params)
	}{
		{"Threads", func(p *Params) { p.Threads = oversized }},
		{"MaxTokens", func(p *Params) { p.MaxTokens = -oversized - 1 }},
		{"AudioContext", func(p *Params) { p.AudioContext = oversized }},
		{"Sampling.BeamSize", func(p *Params) { p.Sampling = BeamSearch{BeamSize: oversized} }},
	} {
		t.Run(tc.field, func(t *testing.T) {
			params := DefaultGreedy()
			tc.set(&params)

			_, _, err := encodeParams(params)
			var paramsErr *ParamsError
			require.ErrorAs(t, err, &paramsErr)
			require.Equal(t, tc.field, paramsErr.Field)
		})
	}

	params := DefaultGreedy()
	params.Threads = math.MaxInt32
	block, _, err := encodeParams(params)
	require.NoError(t, err)
	require.EqualValues(t, math.MaxInt32, block.nThreads)
}

func TestDefaultParams(t *testing.T) {
	installFake(t, newFakeLibrary())

	greedy := DefaultGreedy()
	require.Equal(t, Greedy{BestOf: 5}, greedy.Sampling)
	require.Equal(t, "en", greedy.Language)
	require.Equal(t, "", greedy.InitialPrompt)
	require.True(t, greedy.SuppressBlank)
	require.Equal(t, float32(0.6), greedy.NoSpeechThreshold)

	beam := DefaultBeamSearch()
	require.Equal(t, BeamSearch{BeamSize: 5, Patience: -1}, beam.Sampling)

	custom := DefaultParams(BeamSearch{BeamSize: 2})
	require.Equal(t, BeamSearch{BeamSize: 2}, custom.Sampling)

	require.Equal(t, Greedy{BestOf: 5}, DefaultParams(nil).Sampling)
	require.Equal(t, BeamSearch{BeamSize: 3}, DefaultParams(&BeamSearch{BeamSize: 3}).Sampling)
}
