// Package models resolves and downloads ggml whisper model files.
package models

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

var (
	// ErrModelNotFound reports a model file that is absent and cannot be downloaded.
	ErrModelNotFound = errors.New("models: model file not found")
	// ErrChecksumMismatch reports a file whose size or SHA-256 differs from the manifest.
	ErrChecksumMismatch = errors.New("models: checksum mismatch")
)

const (
	defaultAttempts  = 4
	defaultBaseDelay = 500 * time.Millisecond
)

// Manager keeps model files under <baseDir>/models.
type Manager struct {
	modelsDir string
	client    *http.Client
	attempts  uint64
	baseDelay time.Duration
	log       *slog.Logger
}

// Option customises a Manager.
type Option func(*Manager)

// WithHTTPClient sets the client used for downloads.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) {
		if c != nil {
			m.client = c
		}
	}
}

// WithRetry sets how many download attempts are made and the initial backoff.
func WithRetry(attempts int, baseDelay time.Duration) Option {
	return func(m *Manager) {
		if attempts > 0 {
			m.attempts = uint64(attempts)
		}
		if baseDelay > 0 {
			m.baseDelay = baseDelay
		}
	}
}

// EnsureOptions controls EnsureVariant.
type EnsureOptions struct {
	Manifest Manifest
	// Override is an explicit model path that bypasses the manifest.
	Override string
}

// NewManager creates the models directory below baseDir.
func NewManager(baseDir string, logger *slog.Logger, opts ...Option) (*Manager, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, errors.New("models: base directory required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Join(baseDir, "models")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("models: create %s: %w", dir, err)
	}
	m := &Manager{
		modelsDir: dir,
		client:    &http.Client{Timeout: 30 * time.Minute},
		attempts:  defaultAttempts,
		baseDelay: defaultBaseDelay,
		log:       logger.With("component", "models.Manager"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// ModelsDir returns the directory holding downloaded models.
func (m *Manager) ModelsDir() string { return m.modelsDir }

// Resolve returns the on-disk path of variant from the embedded manifest,
// or override when set. The file must already exist.
func (m *Manager) Resolve(variant, override string) (string, error) {
	if path := strings.TrimSpace(override); path != "" {
		return existing(path)
	}
	manifest, err := DefaultManifest()
	if err != nil {
		return "", err
	}
	v, err := manifest.Lookup(variant)
	if err != nil {
		return "", err
	}
	return existing(filepath.Join(m.modelsDir, v.Filename))
}

// EnsureVariant returns the path of variant, downloading it when absent or
// when the local copy does not match the manifest checksum.
func (m *Manager) EnsureVariant(ctx context.Context, variant string, opts EnsureOptions) (string, error) {
	if path := strings.TrimSpace(opts.Override); path != "" {
		return existing(path)
	}
	v, err := opts.Manifest.Lookup(variant)
	if err != nil {
		return "", err
	}

	path := filepath.Join(m.modelsDir, v.Filename)
	if _, err := os.Stat(path); err == nil {
		verr := verifyFile(path, v)
		if verr == nil {
			return path, nil
		}
		if v.URL == "" {
			return "", verr
		}
		m.log.Warn("local model failed verification; downloading again", "path", path, "error", verr)
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("models: stat %s: %w", path, err)
	}

	if v.URL == "" {
		return "", fmt.Errorf("%w: %s (variant %q has no download URL)", ErrModelNotFound, path, variant)
	}
	if err := m.download(ctx, v, path); err != nil {
		return "", err
	}
	return path, nil
}

func (m *Manager) download(ctx context.Context, v Variant, dest string) error {
	logger := m.log.With("url", v.URL, "path", dest)
	logger.Info("downloading model")
	start := time.Now()

	var attempt uint64
	err := retry.Exponential(ctx, m.baseDelay, func(ctx context.Context) error {
		attempt++
		err := m.fetch(ctx, v, dest)
		if err == nil {
			return nil
		}
		var perm permanentError
		if errors.As(err, &perm) || attempt >= m.attempts {
			return err
		}
		logger.Warn("model download failed; retrying", "attempt", attempt, "error", err)
		return retry.RetryableError(err)
	})
	if err != nil {
		return fmt.Errorf("models: download %s: %w", v.URL, err)
	}
	logger.Info("model downloaded", "duration", time.Since(start))
	return nil
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

func (m *Manager) fetch(ctx context.Context, v Variant, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.URL, nil)
	if err != nil {
		return permanentError{err}
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("unexpected status %s", resp.Status)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return err
		}
		return permanentError{err}
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".*.part")
	if err != nil {
		return permanentError{err}
	}
	defer os.Remove(tmp.Name())

	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(tmp, hasher), resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if err := checkDigest(v, written, hex.EncodeToString(hasher.Sum(nil))); err != nil {
		return permanentError{err}
	}
	return os.Rename(tmp.Name(), dest)
}

func verifyFile(path string, v Variant) error {
	if v.SHA256 == "" && v.SizeBytes == 0 {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	hasher := sha256.New()
	n, err := io.Copy(hasher, f)
	if err != nil {
		return err
	}
	return checkDigest(v, n, hex.EncodeToString(hasher.Sum(nil)))
}

func checkDigest(v Variant, size int64, sum string) error {
	if v.SizeBytes > 0 && size != v.SizeBytes {
		return fmt.Errorf("%w: %s is %d bytes, want %d", ErrChecksumMismatch, v.Filename, size, v.SizeBytes)
	}
	if v.SHA256 != "" && !strings.EqualFold(sum, v.SHA256) {
		return fmt.Errorf("%w: %s sha256 %s, want %s", ErrChecksumMismatch, v.Filename, sum, v.SHA256)
	}
	return nil
}

func existing(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrModelNotFound, path)
		}
		return "", fmt.Errorf("models: stat %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrModelNotFound, path)
	}
	return path, nil
}
