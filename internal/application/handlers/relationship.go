package handlers

import (
	"context"
	"fmt"

	"github.com/ersonp/relgraph/internal/domain/entities"
	"github.com/ersonp/relgraph/internal/domain/services"
)

// RelationshipHandler handles single-record relationship operations.
type RelationshipHandler struct {
	service *services.RelationshipService
}

// NewRelationshipHandler creates a new RelationshipHandler.
func NewRelationshipHandler(service *services.RelationshipService) *RelationshipHandler {
	return &RelationshipHandler{
		service: service,
	}
}

// UpdateRequest is an optimistic update: the version the caller read plus the patch.
type UpdateRequest struct {
	ExpectedVersion int64 `json:"expected_version"`
	entities.Patch
}

// HandleCreate creates a relationship.
func (h *RelationshipHandler) HandleCreate(ctx context.Context, orgID string, req entities.CreateRequest) (*entities.Relationship, error) {
	return h.service.Create(ctx, orgID, req)
}

// HandleGet returns one relationship.
func (h *RelationshipHandler) HandleGet(ctx context.Context, orgID, id string) (*entities.Relationship, error) {
	return h.service.Get(ctx, orgID, id)
}

// HandleUpdate applies a patch guarded by the expected version.
func (h *RelationshipHandler) HandleUpdate(ctx context.Context, orgID, id string, req UpdateRequest) (*entities.Relationship, error) {
	if req.ExpectedVersion <= 0 {
		return nil, entities.Malformed("expected_version", "must be a positive version")
	}
	return h.service.Update(ctx, orgID, id, req.ExpectedVersion, req.Patch)
}

// HandleDeactivate soft-deletes a relationship.
func (h *RelationshipHandler) HandleDeactivate(ctx context.Context, orgID, id string, expectedVersion int64) (*entities.Relationship, error) {
	if expectedVersion <= 0 {
		return nil, entities.Malformed("expected_version", "must be a positive version")
	}
	return h.service.Deactivate(ctx, orgID, id, expectedVersion)
}

// HandleHistory returns the audit trail of a relationship, oldest first.
func (h *RelationshipHandler) HandleHistory(ctx context.Context, orgID, id string) ([]entities.AuditEntry, error) {
	entries, err := h.service.History(ctx, orgID, id)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	return entries, nil
}
