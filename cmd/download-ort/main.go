// Build-time tool that fetches the native libraries the ORT build tag
// needs: the ONNX Runtime shared library and the HuggingFace tokenizers
// static library, for the current GOOS/GOARCH.
//
// Required env: ORT_VERSION        (e.g. "1.23.2")
// Optional env: ORT_LIB_DIR        (default "./lib")
// Optional env: TOKENIZERS_VERSION (default "1.24.0")
//
// Usage: ORT_VERSION=1.23.2 go run ./cmd/download-ort
package main

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// nativeLib describes one downloadable native library: where its release
// archive lives and what file to pull out of it.
type nativeLib struct {
	name     string
	url      string
	fileName string
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ortVersion := os.Getenv("ORT_VERSION")
	if ortVersion == "" {
		return errors.New("ORT_VERSION env var is required")
	}
	tokVersion := envOr("TOKENIZERS_VERSION", "1.24.0")
	destDir := envOr("ORT_LIB_DIR", "./lib")

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", destDir, err)
	}

	libs, err := platformLibs(ortVersion, tokVersion)
	if err != nil {
		return err
	}

	for _, lib := range libs {
		if err := install(lib, destDir); err != nil {
			return fmt.Errorf("%s: %w", lib.name, err)
		}
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// platformLibs resolves the release-archive URLs for this GOOS/GOARCH.
func platformLibs(ortVersion, tokVersion string) ([]nativeLib, error) {
	type target struct {
		ortArchive string // format arg: ortVersion
		ortLib     string
		tokArchive string
	}
	targets := map[string]target{
		"linux/amd64":  {"onnxruntime-linux-x64-%s.tgz", "libonnxruntime.so", "libtokenizers.linux-amd64.tar.gz"},
		"linux/arm64":  {"onnxruntime-linux-aarch64-%s.tgz", "libonnxruntime.so", "libtokenizers.linux-arm64.tar.gz"},
		"darwin/amd64": {"onnxruntime-osx-x86_64-%s.tgz", "libonnxruntime.dylib", "libtokenizers.darwin-x86_64.tar.gz"},
		"darwin/arm64": {"onnxruntime-osx-arm64-%s.tgz", "libonnxruntime.dylib", "libtokenizers.darwin-arm64.tar.gz"},
	}

	key := runtime.GOOS + "/" + runtime.GOARCH
	tgt, ok := targets[key]
	if !ok {
		return nil, fmt.Errorf("no prebuilt libraries for %s", key)
	}

	return []nativeLib{
		{
			name: "onnxruntime",
			url: fmt.Sprintf("https://github.com/microsoft/onnxruntime/releases/download/v%s/%s",
				ortVersion, fmt.Sprintf(tgt.ortArchive, ortVersion)),
			fileName: tgt.ortLib,
		},
		{
			name: "tokenizers",
			url: fmt.Sprintf("https://github.com/daulet/tokenizers/releases/download/v%s/%s",
				tokVersion, tgt.tokArchive),
			fileName: "libtokenizers.a",
		},
	}, nil
}

func install(lib nativeLib, destDir string) error {
	destPath := filepath.Join(destDir, lib.fileName)
	if _, err := os.Stat(destPath); err == nil {
		fmt.Printf("%s already present at %s, skipping\n", lib.name, destPath)
		return nil
	}

	fmt.Printf("Downloading %s from %s\n", lib.name, lib.url)

	var err error
	for attempt, delay := 0, 2*time.Second; attempt < 4; attempt, delay = attempt+1, delay*2 {
		if attempt > 0 {
			fmt.Fprintf(os.Stderr, "retry in %s: %v\n", delay, err)
			time.Sleep(delay)
		}
		if err = fetchAndExtract(lib.url, destPath, lib.fileName); err == nil {
			fmt.Printf("%s installed to %s\n", lib.name, destPath)
			return nil
		}
	}
	return err
}

func fetchAndExtract(url, destPath, fileName string) error {
	resp, err := http.Get(url) //nolint:gosec
	if err != nil {
		return fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d for %s", resp.StatusCode, url)
	}

	gz, err := gzip.NewReader(resp.Body)
	if err != nil {
		return fmt.Errorf("gzip reader: %w", err)
	}
	defer gz.Close() //nolint:errcheck

	// Versioned variants like libonnxruntime.1.23.2.dylib also match.
	stem := strings.TrimSuffix(fileName, filepath.Ext(fileName))

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return fmt.Errorf("%s not found in archive", fileName)
		}
		if err != nil {
			return fmt.Errorf("tar read: %w", err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}
		base := filepath.Base(header.Name)
		if base != fileName && !strings.HasPrefix(base, stem+".") {
			continue
		}
		return writeFile(destPath, tr)
	}
}

func writeFile(path string, src io.Reader) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		_ = out.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return out.Close()
}
