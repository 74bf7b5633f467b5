package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nupi-ai/plugin-stt-whisper/internal/models"
)

func main() {
	manifestPath := flag.String("manifest", "internal/models/embedded_manifest.yaml", "Path to manifest YAML to update")
	parallel := flag.Int("parallel", 2, "number of concurrent downloads")
	flag.Parse()

	file, err := os.Open(*manifestPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open manifest: %v\n", err)
		os.Exit(1)
	}
	manifest, err := models.LoadManifest(file)
	file.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse manifest: %v\n", err)
		os.Exit(1)
	}

	client := &http.Client{Timeout: 10 * time.Minute}
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(max(*parallel, 1))
	for _, name := range manifest.Names() {
		variant := manifest.Variants[name]
		if variant.URL == "" {
			fmt.Printf("%s: skipping (no URL)\n", name)
			continue
		}
		g.Go(func() error {
			fmt.Printf("%s: downloading %s...\n", name, variant.URL)
			size, sum, err := digest(ctx, client, variant.URL)
			if err != nil {
				// A single failing variant keeps its previous checksum.
				fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
				return nil
			}
			variant.SHA256 = sum
			variant.SizeBytes = size

			mu.Lock()
			manifest.Variants[name] = variant
			mu.Unlock()

			fmt.Printf("%s: size=%d sha256=%s\n", name, size, sum)
			return nil
		})
	}
	_ = g.Wait()

	out, err := os.Create(*manifestPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "write manifest: %v\n", err)
		os.Exit(1)
	}
	defer out.Close()

	if err := models.WriteManifest(out, manifest); err != nil {
		fmt.Fprintf(os.Stderr, "encode manifest: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Updated manifest written to %s\n", *manifestPath)
}

func digest(ctx context.Context, client *http.Client, url string) (int64, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("download error: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, "", fmt.Errorf("unexpected status %s", resp.Status)
	}

	hasher := sha256.New()
	written, err := io.Copy(hasher, resp.Body)
	if err != nil {
		return 0, "", fmt.Errorf("read error: %w", err)
	}
	return written, hex.EncodeToString(hasher.Sum(nil)), nil
}
