package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/semaphore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/nupi-ai/plugin-stt-whisper/internal/adapterinfo"
	"github.com/nupi-ai/plugin-stt-whisper/internal/api"
	"github.com/nupi-ai/plugin-stt-whisper/internal/config"
	"github.com/nupi-ai/plugin-stt-whisper/internal/engine"
	"github.com/nupi-ai/plugin-stt-whisper/internal/telemetry"
)

const (
	// LanguageFromClient makes the adapter follow the language announced by
	// the client in stream metadata.
	LanguageFromClient = "client"
	clientLanguageKey  = "nupi.lang.iso1"
)

// Server implements the SpeechToTextService on top of an engine factory.
// Every stream gets its own engine; engines of one factory share the model.
type Server struct {
	api.UnimplementedSpeechToTextServiceServer

	cfg     config.Config
	log     *slog.Logger
	engines engine.Factory
	metrics *telemetry.Recorder
	streams *semaphore.Weighted
}

// New returns a new Server instance.
func New(cfg config.Config, logger *slog.Logger, engines engine.Factory, metrics *telemetry.Recorder) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if engines == nil {
		panic("server: engine factory must not be nil")
	}
	if metrics == nil {
		metrics = telemetry.NewRecorder(logger)
	}
	s := &Server{
		cfg: cfg,
		log: logger.With(
			"component", "server",
			"model_variant", cfg.ModelVariant,
			"language", cfg.Language,
		),
		engines: engines,
		metrics: metrics,
	}
	if cfg.MaxStreams > 0 {
		s.streams = semaphore.NewWeighted(int64(cfg.MaxStreams))
	}
	return s
}

// resolveLanguage picks the decoding language of a stream. In client mode the
// ISO 639-1 code from metadata is used, falling back to auto detection.
func resolveLanguage(configured string, metadata map[string]string) string {
	if configured != LanguageFromClient {
		return configured
	}
	if lang := strings.TrimSpace(metadata[clientLanguageKey]); lang != "" {
		return lang
	}
	return "auto"
}

// StreamTranscription consumes PCM segments and streams transcripts back
// until the client flushes or closes its side.
func (s *Server) StreamTranscription(stream api.SpeechToTextService_StreamTranscriptionServer) (err error) {
	ctx := stream.Context()
	if s.streams != nil {
		if !s.streams.TryAcquire(1) {
			return status.Errorf(codes.ResourceExhausted, "server: %d concurrent streams already open", s.cfg.MaxStreams)
		}
		defer s.streams.Release(1)
	}

	var (
		eng           engine.Engine
		streamMetrics *telemetry.StreamMetrics
		language      string
		logger        = s.log
	)
	defer func() {
		if eng != nil {
			err = multierr.Append(err, eng.Close())
		}
		streamMetrics.Finish(err)
	}()

	for {
		req, recvErr := stream.Recv()
		if recvErr != nil {
			if errors.Is(recvErr, io.EOF) {
				return nil
			}
			if errors.Is(recvErr, context.Canceled) || status.Code(recvErr) == codes.Canceled {
				return recvErr
			}
			logger.Error("failed to receive request", "error", recvErr)
			return recvErr
		}
		if req == nil {
			continue
		}

		if eng == nil {
			sessionID := req.GetSessionId()
			if sessionID == "" {
				sessionID = uuid.NewString()
			}
			language = resolveLanguage(s.cfg.Language, req.GetMetadata())
			logger = s.log.With("session_id", sessionID, "stream_id", req.GetStreamId(), "stream_language", language)

			if format := req.GetFormat(); format != nil {
				if err := checkFormat(format); err != nil {
					return err
				}
			}

			eng, err = s.engines.NewStream(ctx)
			if err != nil {
				logger.Error("failed to open engine stream", "error", err)
				return status.Errorf(codes.Unavailable, "server: open stream: %v", err)
			}
			if setter, ok := eng.(engine.LanguageHintSetter); ok {
				setter.SetDefaultLanguage(language)
			}
			streamMetrics = s.metrics.StartStream(sessionID, req.GetStreamId(), req.GetMetadata())
			logger.Info("stream opened", "metadata", req.GetMetadata())
		}

		segment := req.GetSegment()
		sequence := segment.GetSequence()
		final := req.GetFlush() || segment.GetLast()

		if len(segment.GetAudio()) > 0 {
			streamMetrics.RecordSegment(sequence, len(segment.GetAudio()), final)
			start := time.Now()
			results, err := eng.TranscribeSegment(ctx, segment.GetAudio(), engine.Options{
				Language: language,
				Final:    final,
				Sequence: sequence,
			})
			if err != nil {
				logger.Error("engine segment failure", "error", err)
				return err
			}
			streamMetrics.RecordInferenceDuration(time.Since(start))
			if err := s.sendResults(stream, sequence, language, results, streamMetrics); err != nil {
				return err
			}
		}

		if final {
			streamMetrics.RecordFlush()
			start := time.Now()
			results, err := eng.Flush(ctx, engine.Options{Language: language, Final: true, Sequence: sequence})
			if err != nil {
				logger.Error("engine flush failure", "error", err)
				return err
			}
			streamMetrics.RecordInferenceDuration(time.Since(start))
			if err := s.sendResults(stream, sequence, language, results, streamMetrics); err != nil {
				return err
			}
			logger.Info("stream flushed")
			return nil
		}
	}
}

func checkFormat(format *api.AudioFormat) error {
	if enc := format.GetEncoding(); enc != "" && enc != "pcm_s16le" {
		return status.Errorf(codes.InvalidArgument, "server: unsupported encoding %q", enc)
	}
	if rate := format.GetSampleRate(); rate != 0 && rate != 16000 {
		return status.Errorf(codes.InvalidArgument, "server: sample rate must be 16000, got %d", rate)
	}
	if ch := format.GetChannels(); ch > 1 {
		return status.Errorf(codes.InvalidArgument, "server: mono audio required, got %d channels", ch)
	}
	return nil
}

func (s *Server) sendResults(stream api.SpeechToTextService_StreamTranscriptionServer, sequence uint64, language string, results []engine.Result, metrics *telemetry.StreamMetrics) error {
	for _, res := range results {
		metrics.RecordTranscript(sequence, res.Text, res.Final)
		transcript := &api.Transcript{
			Sequence:   sequence,
			Text:       res.Text,
			Confidence: res.Confidence,
			Final:      res.Final,
			Metadata:   adapterinfo.TranscriptMetadata(s.cfg.ModelVariant, language),
		}
		if err := stream.Send(transcript); err != nil {
			s.log.Error("failed to send transcript", "error", err)
			return err
		}
	}
	return nil
}
