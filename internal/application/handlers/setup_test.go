package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ersonp/relgraph/internal/domain/entities"
	"github.com/ersonp/relgraph/internal/domain/mocks"
	"github.com/ersonp/relgraph/internal/domain/services"
)

const testOrg = "org-1"

type testEnv struct {
	db            *mocks.RelationalDB
	types         *services.RelationshipTypeService
	relationships *services.RelationshipService
	queries       *services.QueryService
	traversal     *services.TraversalService
	bulk          *services.BulkService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := mocks.NewRelationalDB()
	types := services.NewRelationshipTypeService(db)
	require.NoError(t, types.LoadDefaults(context.Background(), testOrg))

	relationships := services.NewRelationshipService(db, types, services.NewValidator(0), services.RelationshipOptions{})
	return &testEnv{
		db:            db,
		types:         types,
		relationships: relationships,
		queries:       services.NewQueryService(db, entities.DefaultTierPolicy(), 0, 0),
		traversal:     services.NewTraversalService(db, services.TraversalLimits{}, nil, nil),
		bulk:          services.NewBulkService(relationships, 0),
	}
}

func (e *testEnv) create(t *testing.T, typ, from, to string) *entities.Relationship {
	t.Helper()
	rel, err := e.relationships.Create(context.Background(), testOrg, request(typ, from, to))
	require.NoError(t, err)
	return rel
}

func request(typ, from, to string) entities.CreateRequest {
	return entities.CreateRequest{
		FromEntityID:     from,
		ToEntityID:       to,
		RelationshipType: typ,
		SmartCode:        "HERA.TEST.REL.v1",
	}
}

func ptr[T any](v T) *T { return &v }
