package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/nupi-ai/plugin-stt-whisper/internal/audio"
	"github.com/nupi-ai/plugin-stt-whisper/internal/whisper"
)

// NativeAvailable reports whether the whisper.cpp backend is compiled in.
func NativeAvailable() bool { return whisper.NativeAvailable() }

// transcriber is the part of *whisper.Session the engine drives.
type transcriber interface {
	Full(ctx context.Context, params whisper.Params, samples []float32) error
	SegmentCount() int
	SegmentText(segment int) (string, error)
	TokenCount(segment int) int
	TokenProbability(segment, token int) float32
	ResetPrompt()
	Close() error
}

// NativeFactory shares one loaded whisper model between streams. Every
// stream decodes on its own session.
type NativeFactory struct {
	model       *whisper.Model
	opts        NativeOptions
	promptLimit int
	log         *slog.Logger
}

// NewNativeFactory loads the model at modelPath. promptLimit bounds the
// prompt carried between windows of a stream.
func NewNativeFactory(modelPath string, opts NativeOptions, promptLimit int, logger *slog.Logger) (*NativeFactory, error) {
	if strings.TrimSpace(modelPath) == "" {
		return nil, errors.New("engine: model path required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	model, err := whisper.Load(modelPath, opts.useGPU(), whisper.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return &NativeFactory{
		model:       model,
		opts:        opts,
		promptLimit: promptLimit,
		log:         logger.With("component", "engine.native"),
	}, nil
}

// NewStream opens a whisper session for one stream.
func (f *NativeFactory) NewStream(ctx context.Context) (Engine, error) {
	session, err := f.model.NewSession(ctx, whisper.WithPromptLimit(f.promptLimit))
	if err != nil {
		return nil, fmt.Errorf("engine: open stream: %w", err)
	}
	return newNativeEngine(session, f.opts, f.log), nil
}

func (f *NativeFactory) Native() bool { return true }

// Close releases the factory's model reference. Streams still open keep the
// model alive until they are closed.
func (f *NativeFactory) Close() error { return f.model.Close() }

// NativeEngine batches PCM into overlapping windows, transcribes each window
// and emits the text that changed since the previous window.
type NativeEngine struct {
	mu  sync.Mutex
	log *slog.Logger

	session transcriber
	opts    NativeOptions

	audio       []byte
	lastSegment []byte // overlap source for the next window
	lastText    string
	lastConf    float32
	language    string
	defaultLang string
	closed      bool
}

func newNativeEngine(session transcriber, opts NativeOptions, logger *slog.Logger) *NativeEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &NativeEngine{
		log:     logger,
		session: session,
		opts:    opts,
	}
}

func (e *NativeEngine) TranscribeSegment(ctx context.Context, pcm []byte, opts Options) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(pcm) == 0 {
		return nil, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, whisper.ErrClosed
	}

	lang := e.resolveLanguageLocked(opts.Language)
	e.audio = append(e.audio, pcm...)
	if len(e.audio) < e.opts.step() {
		return nil, nil
	}

	buffer := e.windowLocked()
	agg, err := e.runInference(ctx, buffer, lang)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		e.log.Warn("native inference failed",
			"error", err,
			"audio_len", len(buffer),
			"language", lang,
		)
		return nil, err
	}
	if agg.Text != "" {
		e.log.Debug("native inference aggregate",
			"stage", "segment",
			"audio_len", len(buffer),
			"language", lang,
			"text", agg.Text,
			"confidence", agg.Confidence,
		)
	}

	e.language = lang
	e.audio = nil
	e.lastSegment = buffer
	delta := diffTranscript(e.lastText, agg.Text)
	e.lastText = agg.Text
	e.lastConf = agg.Confidence

	if delta == "" {
		return nil, nil
	}
	return []Result{{
		Text:       delta,
		Confidence: agg.Confidence,
		Final:      false,
	}}, nil
}

// windowLocked prefixes the pending audio with enough of the previous window
// to reach the configured length, capped at whisper's 30 s input.
func (e *NativeEngine) windowLocked() []byte {
	var buffer []byte
	if len(e.lastSegment) > 0 {
		overlap := e.opts.keep() + e.opts.length() - len(e.audio)
		overlap = min(max(overlap, 0), len(e.lastSegment))
		overlap -= overlap % bytesPerSample
		buffer = make([]byte, 0, overlap+len(e.audio))
		buffer = append(buffer, e.lastSegment[len(e.lastSegment)-overlap:]...)
		buffer = append(buffer, e.audio...)
	} else {
		buffer = append([]byte(nil), e.audio...)
	}

	limit := int(maxWindow.Milliseconds()) * pcmBytesPerMilli
	if len(buffer) > limit {
		buffer = buffer[len(buffer)-limit:]
	}
	return buffer
}

func (e *NativeEngine) Flush(ctx context.Context, opts Options) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, whisper.ErrClosed
	}
	defer e.resetLocked()

	lang := e.resolveLanguageLocked(opts.Language)
	combined, confidence := e.lastText, e.lastConf
	if len(e.audio) > 0 {
		agg, err := e.runInference(ctx, e.audio, lang)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, nil
			}
			e.log.Warn("native flush inference failed",
				"error", err,
				"audio_len", len(e.audio),
				"language", lang,
			)
			return nil, err
		}
		combined, confidence = agg.Text, agg.Confidence
	}

	finalText := strings.TrimSpace(combined)
	if finalText == "" {
		return nil, nil
	}
	e.log.Debug("native inference aggregate",
		"stage", "flush",
		"language", lang,
		"text", finalText,
		"confidence", confidence,
	)
	return []Result{{
		Text:       finalText,
		Confidence: confidence,
		Final:      true,
	}}, nil
}

// Close releases the stream's whisper session. It is idempotent.
func (e *NativeEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.resetLocked()
	return e.session.Close()
}

// SetDefaultLanguage configures the language hint to use when callers request auto detection.
func (e *NativeEngine) SetDefaultLanguage(lang string) {
	trimmed := preferLanguage(lang)
	e.mu.Lock()
	e.defaultLang = trimmed
	e.mu.Unlock()
}

func (e *NativeEngine) resolveLanguageLocked(requested string) string {
	lang := normaliseLanguage(requested, e.language)
	if strings.EqualFold(lang, "auto") && e.defaultLang != "" {
		return e.defaultLang
	}
	return lang
}

func (e *NativeEngine) runInference(ctx context.Context, pcm []byte, language string) (transcriptAggregate, error) {
	samples := audio.PCM16ToFloat32(pcm)
	if len(samples) == 0 {
		return transcriptAggregate{}, nil
	}
	if !e.opts.keepContext() {
		e.session.ResetPrompt()
	}
	if err := e.session.Full(ctx, e.opts.params(language), samples); err != nil {
		return transcriptAggregate{}, err
	}
	return collectTranscriptAggregate(e.session, e.log), nil
}

func (e *NativeEngine) resetLocked() {
	e.audio = nil
	e.lastSegment = nil
	e.lastText = ""
	e.language = ""
	e.lastConf = 0
	if e.session != nil {
		e.session.ResetPrompt()
	}
}

type transcriptAggregate struct {
	Text       string
	Confidence float32
}

// collectTranscriptAggregate joins the segment texts of the last Full call and
// averages the positive token probabilities.
func collectTranscriptAggregate(session transcriber, logger *slog.Logger) transcriptAggregate {
	count := session.SegmentCount()
	if count == 0 {
		return transcriptAggregate{}
	}
	var (
		builder      strings.Builder
		sumProb      float64
		tokenSamples int
	)
	for i := range count {
		text, err := session.SegmentText(i)
		if err != nil {
			logger.Warn("skipping segment", "segment", i, "error", err)
		}
		if text = strings.TrimSpace(text); text != "" {
			if builder.Len() > 0 {
				builder.WriteByte(' ')
			}
			builder.WriteString(text)
		}
		for j := range session.TokenCount(i) {
			if p := session.TokenProbability(i, j); p > 0 {
				sumProb += float64(p)
				tokenSamples++
			}
		}
	}
	confidence := float32(0)
	if tokenSamples > 0 {
		confidence = float32(sumProb / float64(tokenSamples))
	}
	text := strings.TrimSpace(builder.String())
	if strings.EqualFold(text, "[BLANK_AUDIO]") {
		text = ""
	}
	return transcriptAggregate{
		Text:       text,
		Confidence: confidence,
	}
}
