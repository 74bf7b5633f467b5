package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/nupi-ai/plugin-stt-whisper/internal/config"
	"github.com/nupi-ai/plugin-stt-whisper/internal/models"
)

// ErrNativeEngineUnavailable indicates that the whisper.cpp backend was not compiled in.
var ErrNativeEngineUnavailable = errors.New("engine: native backend unavailable")

// New resolves the desired model and returns a Factory together with the
// resolved model path. It falls back to the stub factory when the native
// backend is unavailable or the model cannot be ensured locally; the returned
// error then explains the fallback and the factory is still usable.
func New(ctx context.Context, cfg config.Config, manager *models.Manager, logger *slog.Logger) (Factory, string, error) {
	manifest, err := models.DefaultManifest()
	if err != nil {
		return newFactoryWithOptions(ctx, cfg, manager, logger, factoryOptions{})
	}

	return newFactoryWithOptions(ctx, cfg, manager, logger, factoryOptions{
		ensure: models.EnsureOptions{
			Manifest: manifest,
			Override: cfg.ModelPath,
		},
	})
}

type factoryOptions struct {
	ensure models.EnsureOptions
}

// NativeOptionsFromConfig maps adapter configuration to decoder options.
func NativeOptionsFromConfig(cfg config.Config) NativeOptions {
	return NativeOptions{
		UseGPU:   cfg.UseGPU,
		Threads:  cfg.Threads,
		BeamSize: cfg.BeamSize,
	}
}

func newFactoryWithOptions(ctx context.Context, cfg config.Config, manager *models.Manager, logger *slog.Logger, opts factoryOptions) (Factory, string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	stub := NewStubFactory(logger, cfg.ModelVariant)

	if cfg.UseStubEngine {
		path := ""
		if manager != nil && strings.TrimSpace(cfg.ModelPath) != "" {
			resolved, err := manager.Resolve(cfg.ModelVariant, cfg.ModelPath)
			if err != nil {
				return stub, "", err
			}
			path = resolved
		}
		logger.Warn("stub engine forced by configuration")
		return stub, path, nil
	}

	if manager == nil {
		logger.Warn("model manager unavailable; using stub engine")
		return stub, "", ErrNativeEngineUnavailable
	}

	if len(opts.ensure.Manifest.Variants) == 0 && strings.TrimSpace(opts.ensure.Override) == "" {
		return stub, "", errors.New("models: manifest is empty")
	}

	modelPath, err := manager.EnsureVariant(ctx, cfg.ModelVariant, opts.ensure)
	if err != nil {
		logger.Warn("model ensure failed; using stub engine", "error", err)
		return stub, "", err
	}

	if !NativeAvailable() {
		logger.Warn("native backend disabled at build time; using stub engine", "model_path", modelPath)
		return stub, modelPath, ErrNativeEngineUnavailable
	}

	native, err := NewNativeFactory(modelPath, NativeOptionsFromConfig(cfg), cfg.PromptLimit(), logger)
	if err != nil {
		logger.Error("native engine initialisation failed; using stub", "error", err, "model_path", modelPath)
		return stub, modelPath, err
	}
	logger.Info("native engine ready", "model_path", modelPath)
	return native, modelPath, nil
}
