package config_test

import (
	"os"
	"testing"

	"github.com/nupi-ai/plugin-stt-whisper/internal/config"
)

func TestLoaderDefaults(t *testing.T) {
	loader := config.Loader{}
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.ListenAddr != config.DefaultListenAddr {
		t.Fatalf("expected listen addr %q, got %q", config.DefaultListenAddr, cfg.ListenAddr)
	}
	if cfg.ModelVariant != config.DefaultModel {
		t.Fatalf("expected model variant %q, got %q", config.DefaultModel, cfg.ModelVariant)
	}
	if cfg.Language != config.DefaultLanguage {
		t.Fatalf("expected language %q, got %q", config.DefaultLanguage, cfg.Language)
	}
	if cfg.LogLevel != config.DefaultLogLevel {
		t.Fatalf("expected log level %q, got %q", config.DefaultLogLevel, cfg.LogLevel)
	}
	if cfg.DataDir != config.DefaultDataDir {
		t.Fatalf("expected data dir %q, got %q", config.DefaultDataDir, cfg.DataDir)
	}
	if cfg.ModelPath != "" {
		t.Fatalf("expected empty model path, got %q", cfg.ModelPath)
	}
	if cfg.UseStubEngine {
		t.Fatalf("expected stub engine disabled by default")
	}
	if cfg.UseGPU != nil {
		t.Fatalf("expected use_gpu default (nil), got %v", cfg.UseGPU)
	}
	if cfg.MaxPromptTokens != nil {
		t.Fatalf("expected max prompt tokens default (nil), got %v", *cfg.MaxPromptTokens)
	}
	if cfg.PromptLimit() != config.DefaultMaxPromptTokens {
		t.Fatalf("expected prompt limit %d, got %d", config.DefaultMaxPromptTokens, cfg.PromptLimit())
	}
	if cfg.Threads != nil {
		t.Fatalf("expected threads default (nil), got %v", *cfg.Threads)
	}
}

func TestLoaderOverrides(t *testing.T) {
	env := map[string]string{
		"NUPI_ADAPTER_CONFIG":          `{"model_variant":"small","language":"pl","log_level":"debug","data_dir":"/tmp/data","model_path":"/tmp/models/custom.gguf","use_stub_engine":false,"use_gpu":false,"beam_size":2,"threads":4,"max_streams":3}`,
		"NUPI_ADAPTER_LISTEN_ADDR":     "0.0.0.0:6000",
		"NUPI_LOG_LEVEL":               "warn",
		"NUPI_MODEL_VARIANT":           "medium",
		"NUPI_LANGUAGE_HINT":           "en",
		"NUPI_ADAPTER_DATA_DIR":        "/var/lib/nupi",
		"NUPI_MODEL_PATH":              "/var/lib/nupi/models/medium.gguf",
		"NUPI_ADAPTER_USE_STUB_ENGINE": "true",
		"WHISPERCPP_USE_GPU":           "true",
		"WHISPERCPP_BEAM_SIZE":         "5",
		"WHISPERCPP_THREADS":           "6",
	}

	loader := config.Loader{
		Lookup: func(key string) (string, bool) {
			value, ok := env[key]
			return value, ok
		},
	}

	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	assertEqual(t, "0.0.0.0:6000", cfg.ListenAddr, "listen addr")
	assertEqual(t, "medium", cfg.ModelVariant, "model variant")
	assertEqual(t, "en", cfg.Language, "language")
	assertEqual(t, "warn", cfg.LogLevel, "log level")
	assertEqual(t, "/var/lib/nupi", cfg.DataDir, "data dir")
	assertEqual(t, "/var/lib/nupi/models/medium.gguf", cfg.ModelPath, "model path")
	assertBool(t, true, cfg.UseStubEngine, "use stub engine")
	assertBoolPtr(t, true, cfg.UseGPU, "use gpu")
	assertIntPtr(t, 5, cfg.BeamSize, "beam size")
	if cfg.MaxStreams != 3 {
		t.Fatalf("unexpected max streams: want 3, got %d", cfg.MaxStreams)
	}
	assertIntPtr(t, 6, cfg.Threads, "threads")
}

func TestLoaderThreadsAuto(t *testing.T) {
	env := map[string]string{
		"NUPI_ADAPTER_CONFIG": `{"threads":0}`,
	}

	loader := config.Loader{
		Lookup: func(key string) (string, bool) {
			value, ok := env[key]
			return value, ok
		},
	}

	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Threads != nil {
		t.Fatalf("expected threads nil when configured as 0, got %v", *cfg.Threads)
	}
}

func TestLoaderConfigFile(t *testing.T) {
	env := map[string]string{
		"NUPI_ADAPTER_CONFIG_FILE": "/etc/nupi/whisper.yaml",
		"NUPI_ADAPTER_CONFIG":      `{"language":"de"}`,
	}
	files := map[string]string{
		"/etc/nupi/whisper.yaml": "model_variant: small\nlanguage: pl\nmetrics_addr: 127.0.0.1:9090\nmax_prompt_tokens: 64\nuse_gpu: true\n",
	}

	loader := config.Loader{
		Lookup: func(key string) (string, bool) {
			value, ok := env[key]
			return value, ok
		},
		ReadFile: func(path string) ([]byte, error) {
			data, ok := files[path]
			if !ok {
				return nil, os.ErrNotExist
			}
			return []byte(data), nil
		},
	}

	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	assertEqual(t, "small", cfg.ModelVariant, "model variant")
	assertEqual(t, "de", cfg.Language, "language")
	assertEqual(t, "127.0.0.1:9090", cfg.MetricsAddr, "metrics addr")
	assertBoolPtr(t, true, cfg.UseGPU, "use gpu")
	assertIntPtr(t, 64, cfg.MaxPromptTokens, "max prompt tokens")
	if cfg.PromptLimit() != 64 {
		t.Fatalf("unexpected prompt limit: want 64, got %d", cfg.PromptLimit())
	}
}

func TestLoaderUnboundedPrompt(t *testing.T) {
	loader := config.Loader{
		Lookup: func(key string) (string, bool) {
			if key == "WHISPERCPP_MAX_PROMPT_TOKENS" {
				return "0", true
			}
			return "", false
		},
	}

	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	assertIntPtr(t, 0, cfg.MaxPromptTokens, "max prompt tokens")
	if cfg.PromptLimit() != 0 {
		t.Fatalf("expected unbounded prompt limit, got %d", cfg.PromptLimit())
	}
}

func TestLoaderRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad bool", map[string]string{"WHISPERCPP_USE_GPU": "maybe"}},
		{"bad int", map[string]string{"WHISPERCPP_THREADS": "many"}},
		{"negative threads", map[string]string{"WHISPERCPP_THREADS": "-1"}},
		{"zero beam", map[string]string{"WHISPERCPP_BEAM_SIZE": "0"}},
		{"negative prompt tokens", map[string]string{"WHISPERCPP_MAX_PROMPT_TOKENS": "-1"}},
		{"bad json", map[string]string{"NUPI_ADAPTER_CONFIG": "{"}},
		{"missing file", map[string]string{"NUPI_ADAPTER_CONFIG_FILE": "/does/not/exist.yaml"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			loader := config.Loader{
				Lookup: func(key string) (string, bool) {
					value, ok := tc.env[key]
					return value, ok
				},
				ReadFile: func(string) ([]byte, error) { return nil, os.ErrNotExist },
			}
			if _, err := loader.Load(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func assertEqual(t *testing.T, want, got, label string) {
	t.Helper()
	if want != got {
		t.Fatalf("unexpected %s: want %q, got %q", label, want, got)
	}
}

func assertBool(t *testing.T, want, got bool, label string) {
	t.Helper()
	if want != got {
		t.Fatalf("unexpected %s: want %v, got %v", label, want, got)
	}
}

func assertBoolPtr(t *testing.T, want bool, got *bool, label string) {
	t.Helper()
	if got == nil {
		t.Fatalf("unexpected %s: want %v, got nil", label, want)
	}
	if *got != want {
		t.Fatalf("unexpected %s: want %v, got %v", label, want, *got)
	}
}

func assertIntPtr(t *testing.T, want int, got *int, label string) {
	t.Helper()
	if got == nil {
		t.Fatalf("unexpected %s: want %d, got nil", label, want)
	}
	if *got != want {
		t.Fatalf("unexpected %s: want %d, got %d", label, want, *got)
	}
}
