package service

import (
	"context"
	"errors"
	"sync"

	"github.com/vectorgate/vectorgate/domain/apperr"
	"github.com/vectorgate/vectorgate/domain/backend"
	"github.com/vectorgate/vectorgate/domain/collection"
	"github.com/vectorgate/vectorgate/domain/registry"
	"github.com/vectorgate/vectorgate/domain/resolver"
)

// ManagerConfig carries the index-tuning and quantization defaults applied
// to every collection this process creates, and whether ensure is allowed
// to create collections at all.
type ManagerConfig struct {
	AutoCreate   bool
	HNSW         collection.HNSWParams
	Quantization collection.Quantization
}

// Manager makes a backend
// collection ready for use under the model resolved for its name, and
// memoizes that fact for the lifetime of the process. ensure is serialized
// per collection name and never blocks ensure calls for other names.
type Manager struct {
	adapter  backend.Adapter
	mapping  resolver.Mapping
	registry *registry.Registry
	cfg      ManagerConfig

	mu       sync.Mutex
	keyLocks map[string]*sync.Mutex
	resolved map[string]collection.ResolvedCollection
	states   map[string]collection.State
}

// NewManager builds a Manager. The mapping's model_ids must already have
// been validated against registry at startup (registry.Validate);
// NewManager does not re-validate.
func NewManager(adapter backend.Adapter, mapping resolver.Mapping, reg *registry.Registry, cfg ManagerConfig) *Manager {
	return &Manager{
		adapter:  adapter,
		mapping:  mapping,
		registry: reg,
		cfg:      cfg,
		keyLocks: make(map[string]*sync.Mutex),
		resolved: make(map[string]collection.ResolvedCollection),
		states:   make(map[string]collection.State),
	}
}

// Ensure makes collectionName ready for use, creating it if necessary and
// permitted, and returns the ResolvedCollection binding it to its model.
func (m *Manager) Ensure(ctx context.Context, collectionName string) (collection.ResolvedCollection, error) {
	modelID := resolver.Resolve(m.mapping, collectionName)
	model, ok := m.registry.Get(modelID)
	if !ok {
		return collection.ResolvedCollection{}, apperr.Internal("resolver produced unknown model_id "+modelID, nil)
	}
	vectorName := collection.VectorName(model.DisplayName())

	if rc, state, done := m.fastPath(collectionName); done {
		if state == collection.StateMismatched {
			return collection.ResolvedCollection{}, apperr.ModelMismatch(collectionName, model.ModelID(), vectorName)
		}
		return rc, nil
	}

	lock := m.lockFor(collectionName)
	lock.Lock()
	defer lock.Unlock()

	if rc, state, done := m.fastPath(collectionName); done {
		if state == collection.StateMismatched {
			return collection.ResolvedCollection{}, apperr.ModelMismatch(collectionName, model.ModelID(), vectorName)
		}
		return rc, nil
	}

	m.setState(collectionName, collection.StateEnsuring)

	exists, err := m.adapter.CollectionExists(ctx, collectionName)
	if err != nil {
		return collection.ResolvedCollection{}, err
	}

	if exists {
		return m.verifyExisting(ctx, collectionName, vectorName, model)
	}

	if !m.cfg.AutoCreate {
		return collection.ResolvedCollection{}, apperr.NoSuchCollection(collectionName)
	}

	spec := collection.VectorSpec{
		VectorName:   vectorName,
		Size:         model.Dimensions(),
		Distance:     model.Distance(),
		HNSW:         m.cfg.HNSW,
		Quantization: m.cfg.Quantization,
	}

	if err := m.adapter.CreateCollection(ctx, collectionName, spec); err != nil {
		if errors.Is(err, backend.ErrAlreadyExists) {
			return m.verifyExisting(ctx, collectionName, vectorName, model)
		}
		return collection.ResolvedCollection{}, err
	}

	rc := collection.ResolvedCollection{Name: collectionName, VectorName: vectorName, Model: model}
	m.memoize(collectionName, rc, collection.StateReady)
	return rc, nil
}

// verifyExisting checks an already-present collection's geometry against
// the resolved model. Called both on the normal "collection
// already there" path and on the create-race recovery path.
func (m *Manager) verifyExisting(ctx context.Context, collectionName, vectorName string, model registry.ModelDescriptor) (collection.ResolvedCollection, error) {
	detail, err := m.adapter.GetCollection(ctx, collectionName)
	if err != nil {
		return collection.ResolvedCollection{}, err
	}
	if detail.VectorName != vectorName || detail.Dimensions != model.Dimensions() {
		m.setState(collectionName, collection.StateMismatched)
		return collection.ResolvedCollection{}, apperr.ModelMismatch(collectionName, model.ModelID(), detail.VectorName)
	}
	rc := collection.ResolvedCollection{Name: collectionName, VectorName: vectorName, Model: model}
	m.memoize(collectionName, rc, collection.StateReady)
	return rc, nil
}

// Peek resolves collectionName like Ensure but never creates it: if the
// backend does not have the collection, it fails with NoSuchCollection
// regardless of the auto_create_collections setting. Used by the read
// operations, which never create a collection even when store/bulk_store
// would have.
func (m *Manager) Peek(ctx context.Context, collectionName string) (collection.ResolvedCollection, error) {
	modelID := resolver.Resolve(m.mapping, collectionName)
	model, ok := m.registry.Get(modelID)
	if !ok {
		return collection.ResolvedCollection{}, apperr.Internal("resolver produced unknown model_id "+modelID, nil)
	}
	vectorName := collection.VectorName(model.DisplayName())

	if rc, state, done := m.fastPath(collectionName); done {
		if state == collection.StateMismatched {
			return collection.ResolvedCollection{}, apperr.ModelMismatch(collectionName, model.ModelID(), vectorName)
		}
		return rc, nil
	}

	lock := m.lockFor(collectionName)
	lock.Lock()
	defer lock.Unlock()

	if rc, state, done := m.fastPath(collectionName); done {
		if state == collection.StateMismatched {
			return collection.ResolvedCollection{}, apperr.ModelMismatch(collectionName, model.ModelID(), vectorName)
		}
		return rc, nil
	}

	exists, err := m.adapter.CollectionExists(ctx, collectionName)
	if err != nil {
		return collection.ResolvedCollection{}, err
	}
	if !exists {
		return collection.ResolvedCollection{}, apperr.NoSuchCollection(collectionName)
	}

	return m.verifyExisting(ctx, collectionName, vectorName, model)
}

// fastPath returns a memoized outcome without taking the per-key lock.
func (m *Manager) fastPath(collectionName string) (collection.ResolvedCollection, collection.State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[collectionName]
	if !ok || state == collection.StateEnsuring {
		return collection.ResolvedCollection{}, collection.StateUnknown, false
	}
	if state == collection.StateMismatched {
		return collection.ResolvedCollection{}, state, true
	}
	return m.resolved[collectionName], state, true
}

func (m *Manager) memoize(collectionName string, rc collection.ResolvedCollection, state collection.State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolved[collectionName] = rc
	m.states[collectionName] = state
}

func (m *Manager) setState(collectionName string, state collection.State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[collectionName] = state
}

func (m *Manager) lockFor(collectionName string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.keyLocks[collectionName]
	if !ok {
		lock = &sync.Mutex{}
		m.keyLocks[collectionName] = lock
	}
	return lock
}
