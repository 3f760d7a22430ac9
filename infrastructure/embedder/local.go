package embedder

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"

	"github.com/vectorgate/vectorgate/domain/apperr"
	"github.com/vectorgate/vectorgate/domain/registry"
)

const localBatchMax = 16

// ortSingleton holds the process-wide ONNX Runtime session, shared by
// every LocalEmbedder regardless of which model it was built for — ORT
// allows only one active session per process, so distinct local models
// are loaded as distinct pipelines within that single session. The mutex
// serializes both pipeline construction and inference.
var ortSingleton struct {
	session   *hugot.Session
	providers []string
	pipelines map[string]*pipelines.FeatureExtractionPipeline
	mu        sync.Mutex
	ready     bool
}

// LocalEmbedder runs an embedding model in-process via ONNX Runtime
// through the hugot Go bindings. Model files are found on disk under
// cacheDir, falling back to a statically embedded copy when the binary
// was built with the embed_model tag.
type LocalEmbedder struct {
	cacheDir string
	modelID  string
	dims     int
	gpu      bool
}

// NewLocalEmbedder builds a LocalEmbedder for model, looking for model
// files in cacheDir. gpuEnabled requests the GPU execution provider;
// construction falls back to CPU if the GPU provider cannot be
// initialized.
func NewLocalEmbedder(cacheDir string, model registry.ModelDescriptor, gpuEnabled bool) *LocalEmbedder {
	return &LocalEmbedder{cacheDir: cacheDir, modelID: model.ModelID(), dims: model.Dimensions(), gpu: gpuEnabled}
}

func (l *LocalEmbedder) ModelID() string { return l.modelID }
func (l *LocalEmbedder) Dimensions() int { return l.dims }

func (l *LocalEmbedder) ActiveProviders() []string {
	ortSingleton.mu.Lock()
	defer ortSingleton.mu.Unlock()
	out := make([]string, len(ortSingleton.providers))
	copy(out, ortSingleton.providers)
	return out
}

func (l *LocalEmbedder) Ready() bool {
	ortSingleton.mu.Lock()
	defer ortSingleton.mu.Unlock()
	_, ok := ortSingleton.pipelines[l.modelID]
	return ok
}

// Close is a no-op: the ONNX Runtime session is process-global and
// shared across every LocalEmbedder; it is torn down when the process
// exits.
func (l *LocalEmbedder) Close() error { return nil }

func (l *LocalEmbedder) initialize() error {
	ortSingleton.mu.Lock()
	defer ortSingleton.mu.Unlock()

	if !ortSingleton.ready {
		session, providers, err := newHugotSession(l.gpu)
		if err != nil {
			return fmt.Errorf("create hugot session: %w", err)
		}
		ortSingleton.session = session
		ortSingleton.providers = providers
		ortSingleton.pipelines = make(map[string]*pipelines.FeatureExtractionPipeline)
		ortSingleton.ready = true
	}

	if _, ok := ortSingleton.pipelines[l.modelID]; ok {
		return nil
	}

	modelPath, err := l.resolveModelPath()
	if err != nil {
		return err
	}

	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      l.modelID,
		Options: []hugot.FeatureExtractionOption{
			pipelines.WithNormalization(),
		},
	}
	pipeline, err := hugot.NewPipeline(ortSingleton.session, config)
	if err != nil {
		return fmt.Errorf("create feature extraction pipeline for %q: %w", l.modelID, err)
	}
	ortSingleton.pipelines[l.modelID] = pipeline
	return nil
}

// resolveModelPath prefers model files already on disk, falling back to
// extracting the embedded model when the binary carries one.
func (l *LocalEmbedder) resolveModelPath() (string, error) {
	if diskPath, err := l.diskModelPath(); err == nil {
		return diskPath, nil
	}

	if !hasEmbeddedModel {
		return "", fmt.Errorf("no model found in %s for %q and no embedded model compiled in (build with -tags embed_model)", l.cacheDir, l.modelID)
	}

	if err := os.MkdirAll(l.cacheDir, 0o755); err != nil {
		return "", fmt.Errorf("create cache directory: %w", err)
	}
	return extractEmbeddedModel(embeddedModelFS, l.modelID, l.cacheDir)
}

// diskModelPath looks for a subdirectory of cacheDir named after the
// model_id containing tokenizer.json.
func (l *LocalEmbedder) diskModelPath() (string, error) {
	candidate := filepath.Join(l.cacheDir, l.modelID)
	if _, err := os.Stat(filepath.Join(candidate, "tokenizer.json")); err == nil {
		return candidate, nil
	}
	return "", fmt.Errorf("no tokenizer.json found for model %q under %s", l.modelID, candidate)
}

// extractEmbeddedModel writes the embedded copy of modelID's files to
// targetDir/modelID and returns that path.
func extractEmbeddedModel(embedded fs.FS, modelID, targetDir string) (string, error) {
	modelsFS, err := fs.Sub(embedded, "models")
	if err != nil {
		return "", fmt.Errorf("access embedded models: %w", err)
	}

	modelFS, err := fs.Sub(modelsFS, modelID)
	if err != nil {
		return "", fmt.Errorf("model %q not embedded in binary: %w", modelID, err)
	}

	modelPath := filepath.Join(targetDir, modelID)
	if _, err := os.Stat(filepath.Join(modelPath, "tokenizer.json")); err == nil {
		return modelPath, nil
	}

	err = fs.WalkDir(modelFS, ".", func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		target := filepath.Join(modelPath, path)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		data, readErr := fs.ReadFile(modelFS, path)
		if readErr != nil {
			return fmt.Errorf("read embedded file %s: %w", path, readErr)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("create directory for %s: %w", path, err)
		}
		return os.WriteFile(target, data, 0o644)
	})
	if err != nil {
		return "", fmt.Errorf("extract embedded model %q: %w", modelID, err)
	}
	return modelPath, nil
}

// EmbedDocuments embeds a batch of documents. Batches larger than
// localBatchMax are split into sequential pipeline runs — ORT inference
// is serialized per session regardless, so there is no concurrency to
// gain by splitting further.
func (l *LocalEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, apperr.Cancelled(err)
	}
	if err := l.initialize(); err != nil {
		return nil, apperr.EmbedderUnavailable(l.modelID, err)
	}

	var out [][]float32
	for _, batch := range partition(texts, localBatchMax) {
		vecs, err := l.runBatch(batch)
		if err != nil {
			return nil, apperr.EmbedderUnavailable(l.modelID, err)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// EmbedQuery embeds a single query string.
func (l *LocalEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := l.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, apperr.Internal(fmt.Sprintf("local embedder returned %d vectors for 1 input", len(vecs)), nil)
	}
	return vecs[0], nil
}

func (l *LocalEmbedder) runBatch(texts []string) ([][]float32, error) {
	ortSingleton.mu.Lock()
	defer ortSingleton.mu.Unlock()

	pipeline := ortSingleton.pipelines[l.modelID]
	result, err := pipeline.RunPipeline(texts)
	if err != nil {
		return nil, fmt.Errorf("run embedding pipeline for %q: %w", l.modelID, err)
	}
	return result.Embeddings, nil
}
