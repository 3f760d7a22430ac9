//go:build ORT

package embedder

import (
	"os"
	"path/filepath"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/options"
)

// newHugotSession opens the ONNX Runtime session. When gpuEnabled is
// set, it first attempts the CUDA execution provider and falls back to
// CPU-only if that fails to initialize (missing driver, no GPU present).
func newHugotSession(gpuEnabled bool) (*hugot.Session, []string, error) {
	libOpts := []options.WithOption{}
	if dir := resolveORTLibDir(); dir != "" {
		libOpts = append(libOpts, options.WithOnnxLibraryPath(dir))
	}

	if gpuEnabled {
		gpuOpts := append(append([]options.WithOption{}, libOpts...), options.WithCuda(map[string]string{}))
		if session, err := hugot.NewORTSession(gpuOpts...); err == nil {
			return session, []string{"cuda", "cpu"}, nil
		}
	}

	session, err := hugot.NewORTSession(libOpts...)
	if err != nil {
		return nil, nil, err
	}
	return session, []string{"cpu"}, nil
}

// resolveORTLibDir finds the ONNX Runtime shared library directory: the
// ORT_LIB_DIR env var, then lib/ alongside the executable, then lib/
// relative to the working directory. Empty lets hugot use its defaults.
func resolveORTLibDir() string {
	if dir := os.Getenv("ORT_LIB_DIR"); dir != "" {
		return dir
	}

	var candidates []string
	if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), "lib"))
	}
	if wd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(wd, "lib"))
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
	}
	return ""
}
