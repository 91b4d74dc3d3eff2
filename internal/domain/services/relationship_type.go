package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/ersonp/relgraph/internal/domain/entities"
	"github.com/ersonp/relgraph/internal/domain/ports"
)

// validTypeNameRegex allows lowercase alphanumerics and underscores only.
var validTypeNameRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// RelationshipTypeService manages the per-tenant relationship type registry
// and caches the validation policy each type implies.
type RelationshipTypeService struct {
	relationalDB ports.RelationalDB
	cache        map[string]map[string]*entities.RelationshipType // org -> name -> type
	cacheMu      sync.RWMutex
}

// NewRelationshipTypeService creates a new RelationshipTypeService.
func NewRelationshipTypeService(relationalDB ports.RelationalDB) *RelationshipTypeService {
	return &RelationshipTypeService{
		relationalDB: relationalDB,
		cache:        make(map[string]map[string]*entities.RelationshipType),
	}
}

// LoadDefaults seeds the default relationship types for a tenant, leaving
// existing types alone.
func (s *RelationshipTypeService) LoadDefaults(ctx context.Context, orgID string) error {
	if orgID == "" {
		return entities.Malformed("organization_id", "is required")
	}
	existing, err := s.relationalDB.ListRelationshipTypes(ctx, orgID)
	if err != nil {
		return fmt.Errorf("listing relationship types: %w", err)
	}

	existingSet := make(map[string]bool, len(existing))
	for _, t := range existing {
		existingSet[t.Name] = true
	}

	for _, t := range entities.DefaultRelationshipTypes {
		if existingSet[t.Name] {
			continue
		}
		typeCopy := t
		typeCopy.OrganizationID = orgID
		if err := s.relationalDB.SaveRelationshipType(ctx, &typeCopy); err != nil {
			return fmt.Errorf("seeding relationship type %s: %w", t.Name, err)
		}
	}
	s.invalidate(orgID)
	return nil
}

// List returns the registered types of a tenant ordered by name.
func (s *RelationshipTypeService) List(ctx context.Context, orgID string) ([]entities.RelationshipType, error) {
	if orgID == "" {
		return nil, entities.Malformed("organization_id", "is required")
	}
	return s.relationalDB.ListRelationshipTypes(ctx, orgID)
}

// Get returns a registered type, or nil if the name is not registered.
func (s *RelationshipTypeService) Get(ctx context.Context, orgID, name string) (*entities.RelationshipType, error) {
	types, err := s.load(ctx, orgID)
	if err != nil {
		return nil, err
	}
	t, ok := types[name]
	if !ok {
		return nil, nil
	}
	c := *t
	return &c, nil
}

// Add registers a new relationship type.
func (s *RelationshipTypeService) Add(ctx context.Context, t entities.RelationshipType) (*entities.RelationshipType, error) {
	t.Name = strings.ToLower(strings.TrimSpace(t.Name))
	t.Description = strings.TrimSpace(t.Description)

	if t.OrganizationID == "" {
		return nil, entities.Malformed("organization_id", "is required")
	}
	if !validTypeNameRegex.MatchString(t.Name) {
		return nil, entities.Malformed("name", "must be lowercase alphanumeric with underscores, starting with a letter")
	}
	if t.MaxDepth < 0 {
		return nil, entities.Malformed("max_depth", "must not be negative")
	}

	existing, err := s.relationalDB.FindRelationshipType(ctx, t.OrganizationID, t.Name)
	if err != nil {
		return nil, fmt.Errorf("checking relationship type: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("relationship type '%s': %w", t.Name, ErrTypeExists)
	}

	if err := s.relationalDB.SaveRelationshipType(ctx, &t); err != nil {
		return nil, fmt.Errorf("saving relationship type: %w", err)
	}

	s.invalidate(t.OrganizationID)
	return &t, nil
}

// Remove deletes a custom relationship type. Seeded defaults stay.
func (s *RelationshipTypeService) Remove(ctx context.Context, orgID, name string) error {
	if entities.IsDefaultType(name) {
		return fmt.Errorf("relationship type '%s': %w", name, ErrDefaultType)
	}

	existing, err := s.relationalDB.FindRelationshipType(ctx, orgID, name)
	if err != nil {
		return fmt.Errorf("checking relationship type: %w", err)
	}
	if existing == nil {
		return fmt.Errorf("relationship type '%s': %w", name, errTypeNotFound)
	}

	if err := s.relationalDB.DeleteRelationshipType(ctx, orgID, name); err != nil {
		return fmt.Errorf("deleting relationship type: %w", err)
	}

	s.invalidate(orgID)
	return nil
}

// Policy returns the validation policy implied by a type. Unregistered types
// have an empty policy.
func (s *RelationshipTypeService) Policy(ctx context.Context, orgID, name string) (entities.ValidationRules, error) {
	types, err := s.load(ctx, orgID)
	if err != nil {
		return entities.ValidationRules{}, err
	}
	return types[name].Policy(), nil
}

var (
	// ErrTypeExists is returned when registering a name twice.
	ErrTypeExists = errors.New("relationship type already exists")

	// ErrDefaultType is returned when removing a seeded default type.
	ErrDefaultType = errors.New("default relationship types cannot be removed")

	errTypeNotFound = fmt.Errorf("%w: relationship type not registered", entities.ErrNotFound)
)

// load returns the cached types of a tenant, filling the cache on a miss.
func (s *RelationshipTypeService) load(ctx context.Context, orgID string) (map[string]*entities.RelationshipType, error) {
	if orgID == "" {
		return nil, entities.Malformed("organization_id", "is required")
	}

	// Fast path: check cache with read lock
	s.cacheMu.RLock()
	types, ok := s.cache[orgID]
	s.cacheMu.RUnlock()
	if ok {
		return types, nil
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	// Double-check: another goroutine may have populated the cache
	if types, ok := s.cache[orgID]; ok {
		return types, nil
	}

	list, err := s.relationalDB.ListRelationshipTypes(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("loading relationship types: %w", err)
	}
	types = make(map[string]*entities.RelationshipType, len(list))
	for i := range list {
		types[list[i].Name] = &list[i]
	}
	s.cache[orgID] = types
	return types, nil
}

func (s *RelationshipTypeService) invalidate(orgID string) {
	s.cacheMu.Lock()
	delete(s.cache, orgID)
	s.cacheMu.Unlock()
}
