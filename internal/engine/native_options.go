package engine

import (
	"time"

	"github.com/nupi-ai/plugin-stt-whisper/internal/whisper"
)

const (
	defaultStep      = 3 * time.Second
	defaultLength    = 10 * time.Second
	defaultKeep      = 200 * time.Millisecond
	maxWindow        = 30 * time.Second
	pcmBytesPerMilli = whisperSampleRate * bytesPerSample / 1000

	whisperSampleRate = 16000
	bytesPerSample    = 2
)

// NativeOptions configures the native Whisper backend. Nil fields keep the
// whisper.cpp defaults.
type NativeOptions struct {
	UseGPU  *bool
	Threads *int
	// StepMs configures the hop size for sliding-window inference.
	StepMs *int
	// LengthMs is the total window size before Whisper is invoked (--length).
	LengthMs *int
	// KeepMs is the overlap kept from the previous window (--keep).
	KeepMs *int
	// Translate enables translation from source language to English
	Translate *bool
	// TemperatureInc controls temperature fallback during decoding (0.0 to disable)
	TemperatureInc *float32
	// DisableFallback mirrors --no-fallback; when true temperature fallback is disabled regardless of TemperatureInc.
	DisableFallback *bool
	// BeamSize sets beam search size (1 for greedy sampling, >1 for beam search)
	BeamSize *int
	// AudioCtx sets encoder context size (0 = all audio)
	AudioCtx *int
	// PrintTimestamps enables timestamp output in transcription
	PrintTimestamps *bool
	// PrintSpecial enables special token output
	PrintSpecial *bool
	// KeepContext mirrors --keep-context and toggles prompt reuse between iterations.
	KeepContext *bool
	// MaxTokens mirrors --max-tokens.
	MaxTokens *int
	// TinyDiarize enables the experimental TinyDiARize feature (--tinydiarize).
	TinyDiarize *bool
}

func (o NativeOptions) useGPU() bool {
	return o.UseGPU != nil && *o.UseGPU
}

func (o NativeOptions) keepContext() bool {
	return o.KeepContext == nil || *o.KeepContext
}

func (o NativeOptions) step() int   { return millisToBytes(o.StepMs, defaultStep) }
func (o NativeOptions) length() int { return millisToBytes(o.LengthMs, defaultLength) }
func (o NativeOptions) keep() int   { return millisToBytes(o.KeepMs, defaultKeep) }

func millisToBytes(ms *int, fallback time.Duration) int {
	if ms == nil || *ms < 0 {
		return int(fallback.Milliseconds()) * pcmBytesPerMilli
	}
	return *ms * pcmBytesPerMilli
}

// params builds the decoding parameters of one window.
func (o NativeOptions) params(language string) whisper.Params {
	var sampling whisper.Sampling = whisper.Greedy{BestOf: 5}
	if o.BeamSize != nil && *o.BeamSize > 1 {
		sampling = whisper.BeamSearch{BeamSize: *o.BeamSize, Patience: -1}
	}
	p := whisper.DefaultParams(sampling)

	p.PrintProgress = false
	p.PrintRealtime = false
	p.PrintTimestamps = false
	p.NoContext = false
	p.SingleSegment = false
	p.Language = language
	// detect_language stops after detection; "auto" alone detects and transcribes.
	p.DetectLanguage = false

	if o.Threads != nil && *o.Threads > 0 {
		p.Threads = *o.Threads
	}
	if o.Translate != nil {
		p.Translate = *o.Translate
	}
	if o.TemperatureInc != nil {
		p.TemperatureIncrement = *o.TemperatureInc
	}
	if o.DisableFallback != nil && *o.DisableFallback {
		p.TemperatureIncrement = 0
	}
	if o.AudioCtx != nil {
		p.AudioContext = *o.AudioCtx
	}
	if o.PrintTimestamps != nil {
		p.PrintTimestamps = *o.PrintTimestamps
	}
	if o.PrintSpecial != nil {
		p.PrintSpecial = *o.PrintSpecial
	}
	if o.MaxTokens != nil {
		p.MaxTokens = *o.MaxTokens
	}
	if o.TinyDiarize != nil {
		p.Diarize = *o.TinyDiarize
	}
	return p
}
