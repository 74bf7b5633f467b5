// Command transcribe runs whisper over WAV files.
//
// Usage:
//
//	transcribe --model ggml-base.en.bin [flags] file.wav...
//
// One model is loaded and shared; every file is decoded on its own session,
// and up to --jobs files are transcribed at the same time.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nupi-ai/plugin-stt-whisper/internal/whisper"
)

type options struct {
	model       string
	language    string
	translate   bool
	threads     int
	beamSize    int
	jobs        int
	window      time.Duration
	promptLimit int
	useGPU      bool
	diarize     bool
	jsonOutput  bool
	verbose     bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "transcribe [flags] file.wav...",
		Short: "Transcribe WAV files with a local whisper model",
		Long: `Transcribe 16-bit PCM WAV files with whisper.cpp.

Audio at other sample rates is resampled to 16 kHz. Long files are decoded in
windows; the tokens of each window prime the next one.

Examples:
  transcribe --model data/models/ggml-base.en.bin talk.wav
  transcribe --model ggml-small.bin --language auto --jobs 4 --json *.wav`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, opts, args, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.model, "model", "m", "", "path to a ggml whisper model")
	flags.StringVarP(&opts.language, "language", "l", "en", `spoken language, or "auto"`)
	flags.BoolVar(&opts.translate, "translate", false, "translate to English")
	flags.IntVarP(&opts.threads, "threads", "t", 0, "decoder threads per file (0 keeps the library default)")
	flags.IntVar(&opts.beamSize, "beam-size", 0, "beam search width; 0 or 1 decodes greedily")
	flags.IntVarP(&opts.jobs, "jobs", "j", 2, "files transcribed concurrently")
	flags.DurationVar(&opts.window, "window", 30*time.Second, "audio passed to whisper per call")
	flags.IntVar(&opts.promptLimit, "prompt-limit", 224, "prompt tokens carried between windows (0 = unbounded)")
	flags.BoolVar(&opts.useGPU, "gpu", false, "use the GPU backend when compiled in")
	flags.BoolVar(&opts.diarize, "tinydiarize", false, "mark speaker turns (tdrz models only)")
	flags.BoolVar(&opts.jsonOutput, "json", false, "print results as JSON")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log progress")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}

func (o options) params() whisper.Params {
	var sampling whisper.Sampling = whisper.Greedy{BestOf: 5}
	if o.beamSize > 1 {
		sampling = whisper.BeamSearch{BeamSize: o.beamSize, Patience: -1}
	}
	p := whisper.DefaultParams(sampling)
	p.Language = o.language
	p.Translate = o.translate
	p.Diarize = o.diarize
	p.PrintProgress = false
	p.PrintRealtime = false
	if o.threads > 0 {
		p.Threads = o.threads
	}
	return p
}

func run(ctx context.Context, opts options, files []string, stdout, stderr io.Writer) error {
	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	model, err := whisper.Load(opts.model, opts.useGPU, whisper.WithLogger(logger))
	if err != nil {
		return err
	}
	defer model.Close()

	params := opts.params()
	results := make([]FileResult, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.jobs, 1))
	for i, path := range files {
		g.Go(func() error {
			results[i] = transcribeFile(gctx, model, params, path, opts, logger)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	failed := 0
	for _, res := range results {
		if res.Error != "" {
			failed++
		}
	}
	if err := printResults(stdout, results, opts.jsonOutput); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(files))
	}
	return nil
}

func transcribeFile(ctx context.Context, model *whisper.Model, params whisper.Params, path string, opts options, logger *slog.Logger) FileResult {
	res := FileResult{Path: path}
	log := logger.With("file", path)

	samples, err := loadSamples(path)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Duration = sampleTime(len(samples)).String()

	sess, err := model.NewSession(ctx,
		whisper.WithPromptLimit(opts.promptLimit),
		whisper.WithProgress(func(percent int) { log.Debug("progress", "percent", percent) }),
	)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	defer sess.Close()

	start := time.Now()
	res.Segments, err = transcribeSamples(ctx, sess, params, samples, opts.window)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	log.Info("transcribed", "segments", len(res.Segments), "elapsed", time.Since(start))
	return res
}

func printResults(w io.Writer, results []FileResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	for _, res := range results {
		if res.Error != "" {
			fmt.Fprintf(w, "%s: error: %s\n", res.Path, res.Error)
			continue
		}
		fmt.Fprintf(w, "%s (%s)\n", res.Path, res.Duration)
		for _, seg := range res.Segments {
			marker := ""
			if seg.SpeakerTurn {
				marker = " [SPEAKER_TURN]"
			}
			fmt.Fprintf(w, "[%s --> %s] %s%s\n", formatTimestamp(seg.Start), formatTimestamp(seg.End), seg.Text, marker)
		}
	}
	return nil
}
