package embedding

import (
	"context"
	"sync"

	"github.com/vectorgate/vectorgate/domain/apperr"
	"github.com/vectorgate/vectorgate/domain/registry"
)

// Constructor builds a concrete Embedder for the given model. Implementations
// perform execution-provider negotiation (GPU attempt, CPU fallback)
// internally and report the winning providers via Embedder.ActiveProviders.
type Constructor func(ctx context.Context, model registry.ModelDescriptor) (Embedder, error)

// Pool is a lazy, thread-safe, singleton-per-model_id cache of Embedders.
// Construction for a given model_id is serialized: concurrent Get calls
// for the same model_id block on each other and all observe the same
// instance; Get calls for different model_ids never block each other.
//
// A construction failure is recorded and never retried for the lifetime
// of the pool — EmbedderUnavailable is fatal for that model_id, avoiding
// repeated slow, doomed construction attempts.
type Pool struct {
	construct Constructor

	mu        sync.Mutex
	keyLocks  map[string]*sync.Mutex
	embedders map[string]Embedder
	errs      map[string]error
}

// NewPool creates an empty Pool backed by the given Constructor.
func NewPool(construct Constructor) *Pool {
	return &Pool{
		construct: construct,
		keyLocks:  make(map[string]*sync.Mutex),
		embedders: make(map[string]Embedder),
		errs:      make(map[string]error),
	}
}

// Get returns the pool's Embedder for model, constructing it on first call.
func (p *Pool) Get(ctx context.Context, model registry.ModelDescriptor) (Embedder, error) {
	modelID := model.ModelID()

	if e, err, done := p.fastPath(modelID); done {
		return e, err
	}

	lock := p.lockFor(modelID)
	lock.Lock()
	defer lock.Unlock()

	// Re-check after acquiring the per-key lock: another goroutine may
	// have finished construction while we were waiting.
	if e, err, done := p.fastPath(modelID); done {
		return e, err
	}

	e, err := p.construct(ctx, model)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		wrapped := apperr.EmbedderUnavailable(modelID, err)
		p.errs[modelID] = wrapped
		return nil, wrapped
	}
	p.embedders[modelID] = e
	return e, nil
}

// fastPath checks for an already-resolved outcome (success or fatal
// failure) without taking the per-key construction lock.
func (p *Pool) fastPath(modelID string) (Embedder, error, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.embedders[modelID]; ok {
		return e, nil, true
	}
	if err, ok := p.errs[modelID]; ok {
		return nil, err, true
	}
	return nil, nil, false
}

func (p *Pool) lockFor(modelID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	lock, ok := p.keyLocks[modelID]
	if !ok {
		lock = &sync.Mutex{}
		p.keyLocks[modelID] = lock
	}
	return lock
}

// Close releases every constructed Embedder. Intended for process
// shutdown; errors from individual embedders are collected but do not
// stop the remaining closes.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for _, e := range p.embedders {
		if err := e.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
