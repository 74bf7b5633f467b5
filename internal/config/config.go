package config

import "fmt"

const (
	// DefaultListenAddr is used when the adapter runner does not inject an explicit address.
	DefaultListenAddr = "127.0.0.1:50051"
	DefaultModel      = "base"
	DefaultLanguage   = "auto"
	DefaultLogLevel   = "info"
	DefaultDataDir    = "data"
	// DefaultMaxPromptTokens is whisper_n_text_ctx()/2 for the released models.
	DefaultMaxPromptTokens = 224
)

// Config captures bootstrap configuration extracted from an optional YAML
// file (`NUPI_ADAPTER_CONFIG_FILE`), the injected JSON payload
// (`NUPI_ADAPTER_CONFIG`) and environment variables, in that order.
type Config struct {
	ListenAddr string
	// MetricsAddr enables the Prometheus endpoint when non-empty.
	MetricsAddr   string
	ModelVariant  string
	Language      string
	LogLevel      string
	DataDir       string
	ModelPath     string
	UseStubEngine bool
	UseGPU        *bool
	Threads       *int
	BeamSize      *int
	// MaxPromptTokens bounds the per-stream prompt carried between windows.
	// nil selects DefaultMaxPromptTokens; 0 keeps the prompt unbounded.
	MaxPromptTokens *int
	// MaxStreams caps concurrent transcription streams; 0 means unlimited.
	MaxStreams int
}

// Validate applies defaults, checks required fields, and rejects out-of-range
// values.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("config: listen address is required")
	}
	if c.ModelVariant == "" {
		c.ModelVariant = DefaultModel
	}
	if c.Language == "" {
		c.Language = DefaultLanguage
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.Threads != nil && *c.Threads < 0 {
		return fmt.Errorf("config: threads must be >= 0, got %d", *c.Threads)
	}
	if c.Threads != nil && *c.Threads == 0 {
		c.Threads = nil
	}
	if c.BeamSize != nil && *c.BeamSize < 1 {
		return fmt.Errorf("config: beam_size must be >= 1, got %d", *c.BeamSize)
	}
	if c.MaxPromptTokens != nil && *c.MaxPromptTokens < 0 {
		return fmt.Errorf("config: max_prompt_tokens must be >= 0, got %d", *c.MaxPromptTokens)
	}
	if c.MaxStreams < 0 {
		return fmt.Errorf("config: max_streams must be >= 0, got %d", c.MaxStreams)
	}
	return nil
}

// PromptLimit returns the prompt token limit for new streams, 0 meaning
// unbounded.
func (c Config) PromptLimit() int {
	if c.MaxPromptTokens == nil {
		return DefaultMaxPromptTokens
	}
	return *c.MaxPromptTokens
}
