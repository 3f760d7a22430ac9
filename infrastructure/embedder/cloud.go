// Package embedder provides the two concrete embedding.Embedder
// implementations the gateway wires into the embedder pool: a local
// ONNX Runtime runtime for self-hosted models, and an OpenAI-compatible
// cloud client for hosted ones.
package embedder

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/vectorgate/vectorgate/domain/apperr"
	"github.com/vectorgate/vectorgate/domain/registry"
)

const cloudBatchMax = 10

// CloudConfig is the connection configuration for an OpenAI-compatible
// embeddings endpoint.
type CloudConfig struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	MaxRetries    int
	InitialDelay  time.Duration
	BackoffFactor float64
}

// CloudEmbedder embeds text against a hosted OpenAI-compatible endpoint.
// Batches larger than cloudBatchMax are split into concurrent requests.
type CloudEmbedder struct {
	client         *openai.Client
	modelID        string
	providerModel  string
	dims           int
	maxRetries     int
	initialDelay   time.Duration
	backoffFactor  float64
	activeProvider string
}

// NewCloudEmbedder builds a CloudEmbedder for model, talking to the
// provider's embeddings endpoint under providerModelName (the name the
// provider API itself expects, which may differ from model.ModelID()).
func NewCloudEmbedder(cfg CloudConfig, model registry.ModelDescriptor, providerModelName string) (*CloudEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("embedder: cloud embedder for %q requires an api key", model.ModelID())
	}

	oaCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oaCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		oaCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 5
	}
	initialDelay := cfg.InitialDelay
	if initialDelay == 0 {
		initialDelay = 2 * time.Second
	}
	backoffFactor := cfg.BackoffFactor
	if backoffFactor == 0 {
		backoffFactor = 2.0
	}

	return &CloudEmbedder{
		client:         openai.NewClientWithConfig(oaCfg),
		modelID:        model.ModelID(),
		providerModel:  providerModelName,
		dims:           model.Dimensions(),
		maxRetries:     maxRetries,
		initialDelay:   initialDelay,
		backoffFactor:  backoffFactor,
		activeProvider: "openai",
	}, nil
}

func (c *CloudEmbedder) ModelID() string           { return c.modelID }
func (c *CloudEmbedder) Dimensions() int           { return c.dims }
func (c *CloudEmbedder) ActiveProviders() []string { return []string{c.activeProvider} }
func (c *CloudEmbedder) Ready() bool               { return true }
func (c *CloudEmbedder) Close() error              { return nil }

// EmbedDocuments embeds texts, splitting into concurrent batches of
// cloudBatchMax to bound request size.
func (c *CloudEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) <= cloudBatchMax {
		return c.embedBatch(ctx, texts)
	}

	batches := partition(texts, cloudBatchMax)
	results := make([][][]float32, len(batches))
	errs := make([]error, len(batches))

	var wg sync.WaitGroup
	for i, batch := range batches {
		wg.Add(1)
		go func(idx int, batch []string) {
			defer wg.Done()
			vecs, err := c.embedBatch(ctx, batch)
			results[idx] = vecs
			errs[idx] = err
		}(i, batch)
	}
	wg.Wait()

	var out [][]float32
	for i, err := range errs {
		if err != nil {
			return nil, err
		}
		out = append(out, results[i]...)
	}
	return out, nil
}

// EmbedQuery embeds a single query string.
func (c *CloudEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.embedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, apperr.Internal(fmt.Sprintf("cloud embedder returned %d vectors for 1 input", len(vecs)), nil)
	}
	return vecs[0], nil
}

func (c *CloudEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	req := openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(c.providerModel),
		Input: texts,
	}

	var resp openai.EmbeddingResponse
	err := c.withRetry(ctx, func() error {
		var callErr error
		resp, callErr = c.client.CreateEmbeddings(ctx, req)
		return callErr
	})
	if err != nil {
		return nil, apperr.EmbedderUnavailable(c.modelID, c.wrapError("embedding", err))
	}

	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}

func (c *CloudEmbedder) withRetry(ctx context.Context, fn func() error) error {
	delay := c.initialDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !c.isRetryable(lastErr) {
			return lastErr
		}

		if attempt < c.maxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				delay = time.Duration(float64(delay) * c.backoffFactor)
			}
		}
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *CloudEmbedder) isRetryable(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
	}

	var reqErr *openai.RequestError
	return errors.As(err, &reqErr)
}

func (c *CloudEmbedder) wrapError(operation string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %s (status %d): %w", operation, apiErr.Message, apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("%s: %s: %w", operation, reqErr.Error(), err)
	}
	return fmt.Errorf("%s: %w", operation, err)
}

// partition splits texts into sub-slices of at most batchSize.
func partition(texts []string, batchSize int) [][]string {
	var batches [][]string
	for i := 0; i < len(texts); i += batchSize {
		end := i + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batches = append(batches, texts[i:end])
	}
	return batches
}
