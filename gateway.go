// Package vectorgate provides a library for embedding-backed semantic
// storage and search over a Qdrant vector database.
//
// Basic usage:
//
//	model, _ := registry.NewModelDescriptor("bge-small-en", "BGE Small EN", 384, registry.DistanceCosine, "")
//	gw, err := vectorgate.New(
//	    vectorgate.WithLocalModel(model, "./data/models", false),
//	    vectorgate.WithDefaultModel("bge-small-en"),
//	    vectorgate.WithBackendAddr("localhost:6334"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer gw.Close()
//
//	result, err := gw.Engine().Store(ctx, "notes", "hello world", nil)
package vectorgate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/vectorgate/vectorgate/domain/embedding"
	"github.com/vectorgate/vectorgate/domain/registry"
	"github.com/vectorgate/vectorgate/domain/resolver"
	"github.com/vectorgate/vectorgate/domain/service"
	backendadapter "github.com/vectorgate/vectorgate/infrastructure/backend"
	"github.com/vectorgate/vectorgate/infrastructure/embedder"
)

// ErrGatewayClosed is returned by Gateway methods called after Close.
var ErrGatewayClosed = errors.New("vectorgate: gateway already closed")

// Gateway is the main entry point for the vectorgate library. It wires
// together the model registry, collection-name resolver, embedder pool,
// collection manager, and Qdrant backend adapter into a ready-to-use
// Query/Store Engine.
type Gateway struct {
	engine  *service.Engine
	pool    *embedding.Pool
	adapter *backendadapter.QdrantAdapter
	logger  *slog.Logger
	closers []io.Closer
	closed  atomic.Bool
}

// New builds a Gateway from opts. The Qdrant connection is dialed lazily;
// construction fails only on configuration errors (missing default
// model, duplicate model_ids, an unresolvable mapping model_id).
func New(opts ...Option) (*Gateway, error) {
	cfg := newGatewayConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	reg, err := registry.New(cfg.models...)
	if err != nil {
		return nil, fmt.Errorf("vectorgate: build model registry: %w", err)
	}

	mapping := resolver.NewMapping(cfg.exact, cfg.patterns, cfg.defaultModelID)
	if err := reg.Validate(mapping.ModelIDs()...); err != nil {
		return nil, fmt.Errorf("vectorgate: model mapping: %w", err)
	}

	adapter, err := backendadapter.NewQdrantAdapter(backendadapter.QdrantConfig{
		Addr:    cfg.backendAddr,
		APIKey:  cfg.backendAPIKey,
		Timeout: cfg.backendTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("vectorgate: connect backend: %w", err)
	}

	sources := cfg.sources
	pool := embedding.NewPool(func(ctx context.Context, model registry.ModelDescriptor) (embedding.Embedder, error) {
		src, ok := sources[model.ModelID()]
		if !ok {
			return nil, fmt.Errorf("vectorgate: no embedding source registered for model %q", model.ModelID())
		}
		if src.local {
			return embedder.NewLocalEmbedder(src.cacheDir, model, src.gpu), nil
		}
		providerModel := src.cloudModel
		if providerModel == "" {
			providerModel = model.ModelID()
		}
		return embedder.NewCloudEmbedder(src.cloud, model, providerModel)
	})

	manager := service.NewManager(adapter, mapping, reg, service.ManagerConfig{
		AutoCreate:   cfg.autoCreate,
		HNSW:         cfg.hnsw,
		Quantization: cfg.quantization,
	})

	engine := service.NewEngine(pool, manager, adapter, reg, mapping, service.EngineConfig{
		SearchDefaultLimit:     cfg.searchDefaultLimit,
		SearchDefaultThreshold: cfg.searchDefaultThreshold,
		DefaultBatchSize:       cfg.defaultBatchSize,
		BulkParallelism:        cfg.bulkParallelism,
	})

	logger.Info("vectorgate gateway ready",
		slog.Int("models", len(cfg.models)),
		slog.String("default_model", cfg.defaultModelID),
		slog.String("backend_addr", cfg.backendAddr))

	return &Gateway{
		engine:  engine,
		pool:    pool,
		adapter: adapter,
		logger:  logger,
		closers: cfg.closers,
	}, nil
}

// Engine returns the Query/Store Engine exposing the nine public
// operations (store, bulk_store, find, get_point, update_payload,
// delete_points, list_collections, collection_info, model_mappings).
func (g *Gateway) Engine() *service.Engine { return g.engine }

// Logger returns the gateway's logger.
func (g *Gateway) Logger() *slog.Logger { return g.logger }

// Close releases every embedder, the backend connection, and any
// registered closers.
func (g *Gateway) Close() error {
	if !g.closed.CompareAndSwap(false, true) {
		return ErrGatewayClosed
	}

	var errs []error
	if err := g.pool.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close embedder pool: %w", err))
	}
	if err := g.adapter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close backend: %w", err))
	}
	for _, closer := range g.closers {
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	g.logger.Info("vectorgate gateway closed")
	return errors.Join(errs...)
}
