package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// Loader loads configuration from environment variables. Tests can override
// Lookup and ReadFile to inject deterministic inputs.
type Loader struct {
	Lookup   func(string) (string, bool)
	ReadFile func(string) ([]byte, error)
}

// payload is the shape shared by the YAML file and the JSON payload.
type payload struct {
	ListenAddr      *string `json:"listen_addr" yaml:"listen_addr"`
	MetricsAddr     *string `json:"metrics_addr" yaml:"metrics_addr"`
	ModelVariant    *string `json:"model_variant" yaml:"model_variant"`
	Language        *string `json:"language" yaml:"language"`
	LogLevel        *string `json:"log_level" yaml:"log_level"`
	DataDir         *string `json:"data_dir" yaml:"data_dir"`
	ModelPath       *string `json:"model_path" yaml:"model_path"`
	UseStubEngine   *bool   `json:"use_stub_engine" yaml:"use_stub_engine"`
	UseGPU          *bool   `json:"use_gpu" yaml:"use_gpu"`
	Threads         *int    `json:"threads" yaml:"threads"`
	BeamSize        *int    `json:"beam_size" yaml:"beam_size"`
	MaxPromptTokens *int    `json:"max_prompt_tokens" yaml:"max_prompt_tokens"`
	MaxStreams      *int    `json:"max_streams" yaml:"max_streams"`
}

// Load retrieves the adapter configuration and validates it.
func (l Loader) Load() (Config, error) {
	if l.Lookup == nil {
		l.Lookup = os.LookupEnv
	}
	if l.ReadFile == nil {
		l.ReadFile = os.ReadFile
	}

	cfg := Config{
		ListenAddr: DefaultListenAddr,
	}

	if path, ok := l.Lookup("NUPI_ADAPTER_CONFIG_FILE"); ok && strings.TrimSpace(path) != "" {
		raw, err := l.ReadFile(strings.TrimSpace(path))
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		var p payload
		if err := yaml.Unmarshal(raw, &p); err != nil {
			return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
		}
		p.apply(&cfg)
	}

	if raw, ok := l.Lookup("NUPI_ADAPTER_CONFIG"); ok && strings.TrimSpace(raw) != "" {
		var p payload
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return Config{}, fmt.Errorf("config: decode NUPI_ADAPTER_CONFIG: %w", err)
		}
		p.apply(&cfg)
	}

	overrideString(l.Lookup, "NUPI_ADAPTER_LISTEN_ADDR", &cfg.ListenAddr)
	overrideString(l.Lookup, "NUPI_ADAPTER_METRICS_ADDR", &cfg.MetricsAddr)
	overrideString(l.Lookup, "NUPI_LOG_LEVEL", &cfg.LogLevel)
	overrideString(l.Lookup, "NUPI_MODEL_VARIANT", &cfg.ModelVariant)
	overrideString(l.Lookup, "NUPI_LANGUAGE_HINT", &cfg.Language)
	overrideString(l.Lookup, "NUPI_ADAPTER_DATA_DIR", &cfg.DataDir)
	overrideString(l.Lookup, "NUPI_MODEL_PATH", &cfg.ModelPath)

	if err := overrideBool(l.Lookup, "NUPI_ADAPTER_USE_STUB_ENGINE", func(v bool) { cfg.UseStubEngine = v }); err != nil {
		return Config{}, err
	}
	if err := overrideBool(l.Lookup, "WHISPERCPP_USE_GPU", func(v bool) { cfg.UseGPU = &v }); err != nil {
		return Config{}, err
	}
	if err := overrideInt(l.Lookup, "WHISPERCPP_THREADS", func(v int) { cfg.Threads = &v }); err != nil {
		return Config{}, err
	}
	if err := overrideInt(l.Lookup, "WHISPERCPP_BEAM_SIZE", func(v int) { cfg.BeamSize = &v }); err != nil {
		return Config{}, err
	}
	if err := overrideInt(l.Lookup, "WHISPERCPP_MAX_PROMPT_TOKENS", func(v int) { cfg.MaxPromptTokens = &v }); err != nil {
		return Config{}, err
	}
	if err := overrideInt(l.Lookup, "NUPI_ADAPTER_MAX_STREAMS", func(v int) { cfg.MaxStreams = v }); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (p payload) apply(cfg *Config) {
	setString(p.ListenAddr, &cfg.ListenAddr)
	setString(p.MetricsAddr, &cfg.MetricsAddr)
	setString(p.ModelVariant, &cfg.ModelVariant)
	setString(p.Language, &cfg.Language)
	setString(p.LogLevel, &cfg.LogLevel)
	setString(p.DataDir, &cfg.DataDir)
	setString(p.ModelPath, &cfg.ModelPath)
	if p.UseStubEngine != nil {
		cfg.UseStubEngine = *p.UseStubEngine
	}
	if p.UseGPU != nil {
		cfg.UseGPU = p.UseGPU
	}
	if p.Threads != nil {
		cfg.Threads = p.Threads
	}
	if p.BeamSize != nil {
		cfg.BeamSize = p.BeamSize
	}
	if p.MaxPromptTokens != nil {
		cfg.MaxPromptTokens = p.MaxPromptTokens
	}
	if p.MaxStreams != nil {
		cfg.MaxStreams = *p.MaxStreams
	}
}

func setString(value *string, target *string) {
	if value != nil && strings.TrimSpace(*value) != "" {
		*target = strings.TrimSpace(*value)
	}
}

func overrideString(lookup func(string) (string, bool), key string, target *string) {
	if lookup == nil || target == nil {
		return
	}
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		*target = strings.TrimSpace(value)
	}
}

func overrideBool(lookup func(string) (string, bool), key string, set func(bool)) error {
	value, ok := lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return nil
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	set(parsed)
	return nil
}

func overrideInt(lookup func(string) (string, bool), key string, set func(int)) error {
	value, ok := lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return nil
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	set(parsed)
	return nil
}
