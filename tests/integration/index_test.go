package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/relgraph/internal/application/handlers"
	"github.com/ersonp/relgraph/internal/domain/entities"
	"github.com/ersonp/relgraph/internal/domain/ports"
	"github.com/ersonp/relgraph/internal/domain/services"
)

// indexedStack wires the semantic index against the shared collection and
// removes every point the test wrote.
func indexedStack(t *testing.T) (*stack, *services.IndexService, *[]string) {
	t.Helper()
	db := openStore(t)
	index := services.NewIndexService(testRepo, hashingEmbedder(), db, nil)

	var written []string
	t.Cleanup(func() {
		for _, id := range written {
			_ = testRepo.Delete(context.Background(), id)
		}
	})
	return newStack(t, db, index), index, &written
}

func TestQdrantIntegration_SaveSearchDelete(t *testing.T) {
	ctx := context.Background()
	embed := hashingEmbedder().EmbedFunc

	docs := []ports.IndexDocument{
		{ID: "doc-supplier", OrganizationID: "org-a", RelationshipType: "supplier_partnership", Text: "supplier partnership acme globex"},
		{ID: "doc-credit", OrganizationID: "org-a", RelationshipType: "credit_link", Text: "credit link bank guarantee"},
		{ID: "doc-other-org", OrganizationID: "org-b", RelationshipType: "supplier_partnership", Text: "supplier partnership acme globex"},
	}
	for _, doc := range docs {
		doc.Embedding = embed(doc.Text)
		require.NoError(t, testRepo.Save(ctx, doc))
	}
	t.Cleanup(func() {
		for _, doc := range docs {
			_ = testRepo.Delete(context.Background(), doc.ID)
		}
	})

	hits, err := testRepo.Search(ctx, "org-a", embed("acme supplier"), 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "doc-supplier", hits[0].ID)
	for _, hit := range hits {
		assert.NotEqual(t, "doc-other-org", hit.ID, "search must stay inside the organization")
	}

	count, err := testRepo.Count(ctx, "org-a")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)

	require.NoError(t, testRepo.Delete(ctx, "doc-credit"))
	count, err = testRepo.Count(ctx, "org-a")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestQdrantIntegration_MirrorOnWrite(t *testing.T) {
	s, index, written := indexedStack(t)
	ctx := context.Background()

	supplier := s.create(t, "supplier_partnership", "acme", "globex")
	credit := s.create(t, "credit_link", "acme", "bank")
	*written = append(*written, supplier.ID, credit.ID)

	results, err := index.Search(ctx, testOrg, "supplier partnership globex", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, supplier.ID, results[0].Relationship.ID)

	// Deactivation removes the point, so the record drops out of search.
	_, err = s.relationships.Deactivate(ctx, testOrg, supplier.ID, supplier.Version)
	require.NoError(t, err)

	results, err = index.Search(ctx, testOrg, "supplier partnership globex", 5)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, supplier.ID, r.Relationship.ID)
	}
}

func TestQdrantIntegration_Reindex(t *testing.T) {
	db := openStore(t)
	plain := newStack(t, db, nil)
	ctx := context.Background()

	var written []string
	t.Cleanup(func() {
		for _, id := range written {
			_ = testRepo.Delete(context.Background(), id)
		}
	})

	// Written without an index: nothing reaches Qdrant until a rebuild.
	for _, to := range []string{"north", "south", "east"} {
		rel := plain.create(t, "service_assignment", "crew", to)
		written = append(written, rel.ID)
	}
	inactive := plain.create(t, "service_assignment", "crew", "west")
	written = append(written, inactive.ID)
	_, err := plain.relationships.Deactivate(ctx, testOrg, inactive.ID, inactive.Version)
	require.NoError(t, err)

	index := services.NewIndexService(testRepo, hashingEmbedder(), db, nil)
	h := handlers.NewQueryHandler(plain.queries, index)

	sent, err := h.HandleReindex(ctx, testOrg, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, sent)

	results, err := h.HandleSearch(ctx, testOrg, "service assignment crew", 10)
	require.NoError(t, err)
	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.Relationship.ID)
		assert.True(t, r.Relationship.IsActive)
	}
	assert.Len(t, ids, 3)
	assert.NotContains(t, ids, inactive.ID)

	_, err = h.HandleSearch(ctx, testOrg, "   ", 10)
	require.ErrorIs(t, err, entities.ErrMalformedRecord)
}
