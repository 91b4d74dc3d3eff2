package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/ersonp/relgraph/internal/domain/entities"
	"github.com/ersonp/relgraph/internal/domain/services"
)

// GraphHandler handles chain and expansion walks.
type GraphHandler struct {
	service *services.TraversalService
}

// NewGraphHandler creates a new GraphHandler.
func NewGraphHandler(service *services.TraversalService) *GraphHandler {
	return &GraphHandler{
		service: service,
	}
}

// WalkOptions configures a chain or expansion. Zero values use the
// configured defaults.
type WalkOptions struct {
	MaxDepth int
	Types    []string
	// Limit caps paths for a chain and nodes for an expansion.
	Limit int
}

// HandleChain finds the shortest paths from one entity to another.
func (h *GraphHandler) HandleChain(ctx context.Context, orgID, fromID, toID string, opts WalkOptions) (*services.ChainResult, error) {
	fromID, toID = strings.TrimSpace(fromID), strings.TrimSpace(toID)
	if fromID == "" || toID == "" {
		return nil, entities.Malformed("entity_id", "both chain endpoints are required")
	}

	result, err := h.service.Chain(ctx, orgID, fromID, toID, services.ChainOptions{
		MaxDepth: opts.MaxDepth,
		Types:    compact(opts.Types),
		MaxPaths: opts.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("finding chain %s -> %s: %w", fromID, toID, err)
	}
	return result, nil
}

// HandleExpand walks outward from an entity.
func (h *GraphHandler) HandleExpand(ctx context.Context, orgID, startID string, opts WalkOptions) (*services.ExpandResult, error) {
	startID = strings.TrimSpace(startID)
	result, err := h.service.Expand(ctx, orgID, startID, services.ExpandOptions{
		MaxDepth: opts.MaxDepth,
		Types:    compact(opts.Types),
		MaxNodes: opts.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("expanding from %s: %w", startID, err)
	}
	return result, nil
}
