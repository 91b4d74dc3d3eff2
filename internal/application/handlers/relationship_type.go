package handlers

import (
	"context"
	"fmt"

	"github.com/ersonp/relgraph/internal/domain/entities"
	"github.com/ersonp/relgraph/internal/domain/services"
)

// TypeHandler handles relationship type registry operations.
type TypeHandler struct {
	service *services.RelationshipTypeService
}

// NewTypeHandler creates a new TypeHandler.
func NewTypeHandler(service *services.RelationshipTypeService) *TypeHandler {
	return &TypeHandler{
		service: service,
	}
}

// HandleList returns the registered types of an organization.
func (h *TypeHandler) HandleList(ctx context.Context, orgID string) ([]entities.RelationshipType, error) {
	types, err := h.service.List(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if types == nil {
		types = []entities.RelationshipType{}
	}
	return types, nil
}

// HandleAdd registers a custom relationship type under orgID.
func (h *TypeHandler) HandleAdd(ctx context.Context, orgID string, t entities.RelationshipType) (*entities.RelationshipType, error) {
	if t.OrganizationID != "" && t.OrganizationID != orgID {
		return nil, entities.TenantMismatch(orgID, t.OrganizationID)
	}
	t.OrganizationID = orgID
	return h.service.Add(ctx, t)
}

// HandleRemove deletes a custom relationship type.
func (h *TypeHandler) HandleRemove(ctx context.Context, orgID, name string) error {
	return h.service.Remove(ctx, orgID, name)
}

// HandleDescribe returns one registered type.
func (h *TypeHandler) HandleDescribe(ctx context.Context, orgID, name string) (*entities.RelationshipType, error) {
	t, err := h.service.Get(ctx, orgID, name)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("relationship type '%s': %w", name, entities.ErrNotFound)
	}
	return t, nil
}

// HandleLoadDefaults seeds the default types of an organization.
func (h *TypeHandler) HandleLoadDefaults(ctx context.Context, orgID string) error {
	return h.service.LoadDefaults(ctx, orgID)
}
