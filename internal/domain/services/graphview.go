package services

import (
	"context"
	"slices"

	"github.com/ersonp/relgraph/internal/domain/entities"
	"github.com/ersonp/relgraph/internal/domain/ports"
)

// GraphView is the read-only slice of the graph a candidate is validated
// against.
type GraphView interface {
	// Edges returns active edges of the given types touching any of entityIDs.
	Edges(ctx context.Context, entityIDs []string, types []string) ([]*entities.Relationship, error)
}

// storeView reads edges of one tenant from the store or an open transaction.
type storeView struct {
	reader    ports.GraphReader
	orgID     string
	excludeID string
}

// NewStoreView returns a GraphView over the stored edges of orgID.
// excludeID leaves one record out, e.g. the record being updated.
func NewStoreView(reader ports.GraphReader, orgID, excludeID string) GraphView {
	return &storeView{reader: reader, orgID: orgID, excludeID: excludeID}
}

func (v *storeView) Edges(ctx context.Context, entityIDs []string, types []string) ([]*entities.Relationship, error) {
	return v.reader.FindEdges(ctx, v.orgID, ports.EdgeQuery{
		EntityIDs:  entityIDs,
		Types:      types,
		ActiveOnly: true,
		ExcludeID:  v.excludeID,
	})
}

// overlayView layers candidates that are not stored yet over a base view,
// so an atomic batch validates as if its earlier items were committed.
type overlayView struct {
	base    GraphView
	pending []*entities.Relationship
}

func newOverlayView(base GraphView) *overlayView {
	return &overlayView{base: base}
}

func (v *overlayView) add(rel *entities.Relationship) {
	v.pending = append(v.pending, rel)
}

func (v *overlayView) Edges(ctx context.Context, entityIDs []string, types []string) ([]*entities.Relationship, error) {
	edges, err := v.base.Edges(ctx, entityIDs, types)
	if err != nil {
		return nil, err
	}
	for _, rel := range v.pending {
		if !rel.IsActive {
			continue
		}
		if len(types) > 0 && !slices.Contains(types, rel.RelationshipType) {
			continue
		}
		if slices.Contains(entityIDs, rel.FromEntityID) || slices.Contains(entityIDs, rel.ToEntityID) {
			edges = append(edges, rel)
		}
	}
	return edges, nil
}

// adjacency indexes edges by both endpoints.
func adjacency(edges []*entities.Relationship) map[string][]*entities.Relationship {
	adj := make(map[string][]*entities.Relationship, len(edges))
	for _, edge := range edges {
		adj[edge.FromEntityID] = append(adj[edge.FromEntityID], edge)
		if edge.ToEntityID != edge.FromEntityID {
			adj[edge.ToEntityID] = append(adj[edge.ToEntityID], edge)
		}
	}
	return adj
}
