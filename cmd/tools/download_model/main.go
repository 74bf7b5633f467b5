package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nupi-ai/plugin-stt-whisper/internal/models"
)

func main() {
	var (
		variant  = flag.String("variant", "base", "model variant defined in internal/models/embedded_manifest.yaml")
		output   = flag.String("dir", "testdata", "base directory where models/<file> will be stored")
		manifest = flag.String("manifest", "", "optional manifest file overriding the embedded one")
		attempts = flag.Int("attempts", 4, "download attempts before giving up")
	)
	flag.Parse()

	if strings.TrimSpace(*output) == "" {
		fmt.Fprintln(os.Stderr, "download_model: --dir must not be empty")
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	baseDir := filepath.Clean(*output)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	manager, err := models.NewManager(baseDir, logger, models.WithRetry(*attempts, 0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "download_model: init manager: %v\n", err)
		os.Exit(1)
	}

	m, err := loadManifest(*manifest)
	if err != nil {
		fmt.Fprintf(os.Stderr, "download_model: load manifest: %v\n", err)
		os.Exit(1)
	}

	path, err := manager.EnsureVariant(ctx, *variant, models.EnsureOptions{
		Manifest: m,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "download_model: ensure variant %q: %v\n", *variant, err)
		os.Exit(1)
	}

	fmt.Printf("Model %q ready at %s\n", *variant, path)
}

func loadManifest(path string) (models.Manifest, error) {
	if strings.TrimSpace(path) == "" {
		return models.DefaultManifest()
	}
	f, err := os.Open(path)
	if err != nil {
		return models.Manifest{}, err
	}
	defer f.Close()
	return models.LoadManifest(f)
}
