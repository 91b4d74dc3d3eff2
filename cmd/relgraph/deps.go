package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ersonp/relgraph/internal/application/handlers"
	"github.com/ersonp/relgraph/internal/domain/entities"
	"github.com/ersonp/relgraph/internal/domain/ports"
	"github.com/ersonp/relgraph/internal/domain/services"
	"github.com/ersonp/relgraph/internal/infrastructure/config"
	embedder "github.com/ersonp/relgraph/internal/infrastructure/embedder/openai"
	llm "github.com/ersonp/relgraph/internal/infrastructure/llm/openai"
	"github.com/ersonp/relgraph/internal/infrastructure/logging"
	"github.com/ersonp/relgraph/internal/infrastructure/metrics"
	"github.com/ersonp/relgraph/internal/infrastructure/relationaldb/sqlite"
	"github.com/ersonp/relgraph/internal/infrastructure/scorer/heuristic"
	"github.com/ersonp/relgraph/internal/infrastructure/vectordb/qdrant"
)

// Deps holds high-level dependencies for commands.
// Only handlers are exposed - services and repositories are internal.
type Deps struct {
	Config        *config.Config
	Logger        *zap.Logger
	Relationships *handlers.RelationshipHandler
	Queries       *handlers.QueryHandler
	Graph         *handlers.GraphHandler
	Bulk          *handlers.BulkHandler
	Types         *handlers.TypeHandler
}

// internalDeps holds all dependencies including low-level components.
type internalDeps struct {
	Deps
	relationalDB *sqlite.Repository
	registry     *prometheus.Registry
}

// withDeps loads config, builds dependencies for the --org tenant and calls fn.
// It handles cleanup automatically.
func withDeps(ctx context.Context, fn func(*Deps) error) error {
	if globalOrg == "" {
		return errors.New("organization is required (use --org flag or RELGRAPH_ORG)")
	}
	return withInternalDeps(ctx, func(d *internalDeps) error {
		if err := d.Types.HandleLoadDefaults(ctx, globalOrg); err != nil {
			return fmt.Errorf("seeding default types: %w", err)
		}
		return fn(&d.Deps)
	})
}

// withInternalDeps provides access to all dependencies including low-level
// components. The organization is not required here.
func withInternalDeps(ctx context.Context, fn func(*internalDeps) error) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	cfg, err := config.Load(cwd)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.New(cfg.Log)
	defer func() { _ = logger.Sync() }()

	registry := prometheus.NewRegistry()
	recorder := metrics.New(registry)

	relationalDB, err := sqlite.NewRepository(cfg.SQLite)
	if err != nil {
		return fmt.Errorf("creating sqlite repository: %w", err)
	}
	defer relationalDB.Close()

	if err := relationalDB.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensuring sqlite schema: %w", err)
	}

	scorer, err := newScorer(cfg)
	if err != nil {
		return err
	}

	var index *services.IndexService
	if cfg.Index.Enabled {
		repo, err := qdrant.NewRepository(cfg.Qdrant)
		if err != nil {
			return fmt.Errorf("creating qdrant repository: %w", err)
		}
		defer repo.Close()

		emb, err := embedder.NewEmbedder(cfg.Embedder)
		if err != nil {
			return fmt.Errorf("creating embedder: %w", err)
		}
		index = services.NewIndexService(repo, emb, relationalDB, logger)
	}

	typeService := services.NewRelationshipTypeService(relationalDB)
	relationshipService := services.NewRelationshipService(
		relationalDB,
		typeService,
		services.NewValidator(cfg.Validation.DefaultMaxDepth),
		services.RelationshipOptions{
			Scorer:         scorer,
			ScoringTimeout: cfg.Scoring.Timeout,
			Tiers:          cfg.Tiers,
			Index:          index,
			Logger:         logger,
			Recorder:       recorder,
		},
	)
	queryService := services.NewQueryService(relationalDB, cfg.Tiers, cfg.Query.DefaultLimit, cfg.Query.MaxLimit)
	traversalService := services.NewTraversalService(relationalDB, services.TraversalLimits{
		DefaultDepth: cfg.Traversal.DefaultMaxDepth,
		HardMaxDepth: cfg.Traversal.HardMaxDepth,
		MaxNodes:     cfg.Traversal.MaxNodes,
		MaxPaths:     cfg.Traversal.MaxPaths,
	}, logger, recorder)

	deps := &internalDeps{
		Deps: Deps{
			Config:        cfg,
			Logger:        logger,
			Relationships: handlers.NewRelationshipHandler(relationshipService),
			Queries:       handlers.NewQueryHandler(queryService, index),
			Graph:         handlers.NewGraphHandler(traversalService),
			Bulk:          handlers.NewBulkHandler(services.NewBulkService(relationshipService, cfg.Bulk.MaxBatch)),
			Types:         handlers.NewTypeHandler(typeService),
		},
		relationalDB: relationalDB,
		registry:     registry,
	}

	return fn(deps)
}

// newScorer builds the scoring hook selected by scoring.provider.
func newScorer(cfg *config.Config) (ports.Scorer, error) {
	switch cfg.Scoring.Provider {
	case config.ScoringHeuristic:
		return heuristic.New(), nil
	case config.ScoringOpenAI:
		client, err := llm.NewClient(cfg.LLM)
		if err != nil {
			return nil, fmt.Errorf("creating llm client: %w", err)
		}
		return client, nil
	default:
		return nil, nil
	}
}

// actorContext attaches the --actor principal to ctx.
func actorContext(ctx context.Context) context.Context {
	if globalActor == "" {
		return ctx
	}
	return entities.WithActor(ctx, globalActor)
}
