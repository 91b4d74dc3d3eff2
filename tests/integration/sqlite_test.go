package integration

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/relgraph/internal/domain/entities"
	"github.com/ersonp/relgraph/internal/domain/services"
)

func TestSQLiteIntegration_FileDatabase(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	dbPath := filepath.Join(t.TempDir(), "relgraph.db")
	s := newStack(t, openStoreAt(t, dbPath), nil)

	_, err := os.Stat(dbPath)
	require.NoError(t, err, "database file should exist")

	ctx := entities.WithActor(context.Background(), "it-runner")
	rel, err := s.relationships.Create(ctx, testOrg, request("supplier_partnership", "acme", "globex"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), rel.Version)
	assert.Equal(t, "it-runner", rel.CreatedBy)

	strength := 0.4
	updated, err := s.relationships.Update(ctx, testOrg, rel.ID, 1, entities.Patch{Strength: &strength})
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)
	assert.InDelta(t, 0.4, updated.Strength, 1e-9)

	_, err = s.relationships.Update(ctx, testOrg, rel.ID, 1, entities.Patch{Strength: &strength})
	require.ErrorIs(t, err, entities.ErrConflict)

	deactivated, err := s.relationships.Deactivate(ctx, testOrg, rel.ID, 2)
	require.NoError(t, err)
	assert.False(t, deactivated.IsActive)
	assert.Equal(t, int64(3), deactivated.Version)

	history, err := s.relationships.History(ctx, testOrg, rel.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, entities.ActionCreate, history[0].Action)
	assert.Equal(t, entities.ActionUpdate, history[1].Action)
	assert.Equal(t, entities.ActionDeactivate, history[2].Action)
	for _, entry := range history {
		assert.Equal(t, "it-runner", entry.Actor)
	}

	// Reopen the same file: the record and its registry survive.
	reopened := newStack(t, openStoreAt(t, dbPath), nil)
	got, err := reopened.relationships.Get(context.Background(), testOrg, rel.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Version)
	assert.False(t, got.IsActive)

	typ, err := reopened.types.Get(context.Background(), testOrg, "reports_to")
	require.NoError(t, err)
	require.NotNil(t, typ)
	assert.True(t, typ.Hierarchical)
}

func TestSQLiteIntegration_ConcurrentUpdates(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	dbPath := filepath.Join(t.TempDir(), "relgraph.db")
	first := newStack(t, openStoreAt(t, dbPath), nil)
	second := newStack(t, openStoreAt(t, dbPath), nil)

	rel := first.create(t, "supplier_partnership", "acme", "globex")

	const writers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
		other     []error
	)
	for i := range writers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			svc := first.relationships
			if i%2 == 1 {
				svc = second.relationships
			}
			strength := float64(i+1) / writers
			_, err := svc.Update(context.Background(), testOrg, rel.ID, 1, entities.Patch{Strength: &strength})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, entities.ErrConflict):
				conflicts++
			default:
				other = append(other, err)
			}
		}(i)
	}
	wg.Wait()

	assert.Empty(t, other)
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, writers-1, conflicts)

	got, err := second.relationships.Get(context.Background(), testOrg, rel.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
}

func TestSQLiteIntegration_Hierarchy(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	s := newStack(t, openStore(t), nil)
	ctx := context.Background()

	s.create(t, "reports_to", "ann", "bob")
	s.create(t, "reports_to", "bob", "cat")
	s.create(t, "reports_to", "cat", "dan")

	_, err := s.relationships.Create(ctx, testOrg, request("reports_to", "dan", "ann"))
	require.ErrorIs(t, err, entities.ErrValidationFailure)

	_, err = s.relationships.Create(ctx, testOrg, request("reports_to", "ann", "ann"))
	require.ErrorIs(t, err, entities.ErrValidationFailure)

	chain, err := s.traversal.Chain(ctx, testOrg, "ann", "dan", services.ChainOptions{})
	require.NoError(t, err)
	require.Len(t, chain.Paths, 1)
	assert.Equal(t, 3, chain.Depth)
	assert.Equal(t, []string{"ann", "bob", "cat", "dan"}, chain.Paths[0].Nodes)

	expanded, err := s.traversal.Expand(ctx, testOrg, "ann", services.ExpandOptions{MaxDepth: 2})
	require.NoError(t, err)
	reached := make(map[string]int, len(expanded.Nodes))
	for _, n := range expanded.Nodes {
		reached[n.EntityID] = n.Distance
	}
	assert.Equal(t, 1, reached["bob"])
	assert.Equal(t, 2, reached["cat"])
	assert.NotContains(t, reached, "dan")
}

func TestSQLiteIntegration_AtomicBulkRollback(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	s := newStack(t, openStore(t), nil)
	ctx := context.Background()

	reqs := []entities.CreateRequest{
		request("reports_to", "a", "b"),
		request("reports_to", "b", "c"),
		request("reports_to", "c", "a"),
	}
	result, err := s.bulk.BulkCreate(ctx, testOrg, reqs, true)
	require.Error(t, err)
	require.ErrorIs(t, err, entities.ErrValidationFailure)

	var bulkErr *services.BulkError
	require.ErrorAs(t, err, &bulkErr)
	assert.Equal(t, 2, bulkErr.Index)
	require.NotNil(t, result)
	assert.Equal(t, 0, result.Succeeded)

	n, err := s.queries.Count(ctx, testOrg, entities.Filters{})
	require.NoError(t, err)
	assert.Zero(t, n, "an atomic batch must leave nothing behind")

	result, err = s.bulk.BulkCreate(ctx, testOrg, reqs[:2], true)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Succeeded)

	n, err = s.queries.Count(ctx, testOrg, entities.Filters{})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSQLiteIntegration_QueryPaging(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	s := newStack(t, openStore(t), nil)
	ctx := context.Background()

	for _, to := range []string{"b", "c", "d", "e", "f"} {
		s.create(t, "supplier_partnership", "acme", to)
	}
	s.create(t, "credit_link", "acme", "bank")

	f := entities.Filters{Types: []string{"supplier_partnership"}, Limit: 2}
	var (
		seen  []string
		token string
	)
	for {
		page, err := s.queries.Query(ctx, testOrg, f, token)
		require.NoError(t, err)
		for _, rel := range page.Items {
			seen = append(seen, rel.ToEntityID)
		}
		if page.NextPageToken == "" {
			break
		}
		token = page.NextPageToken
	}
	assert.ElementsMatch(t, []string{"b", "c", "d", "e", "f"}, seen)

	var streamed int
	for rel, err := range s.queries.Stream(ctx, testOrg, entities.Filters{EntityID: "acme", Limit: 4}) {
		require.NoError(t, err)
		require.NotNil(t, rel)
		streamed++
	}
	assert.Equal(t, 6, streamed)

	n, err := s.queries.Count(ctx, "other-org", entities.Filters{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLiteIntegration_TypeRegistry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	s := newStack(t, openStore(t), nil)
	ctx := context.Background()

	added, err := s.types.Add(ctx, entities.RelationshipType{
		OrganizationID: testOrg,
		Name:           "Mentors",
		Description:    "Mentoring pair",
		Hierarchical:   true,
		MaxDepth:       2,
	})
	require.NoError(t, err)
	assert.Equal(t, "mentors", added.Name)

	_, err = s.types.Add(ctx, entities.RelationshipType{OrganizationID: testOrg, Name: "mentors"})
	require.ErrorIs(t, err, services.ErrTypeExists)

	// The cycle search from b has to walk three hops, past the type's limit.
	s.create(t, "mentors", "b", "c")
	s.create(t, "mentors", "c", "d")
	s.create(t, "mentors", "d", "e")
	_, err = s.relationships.Create(ctx, testOrg, request("mentors", "a", "b"))
	require.ErrorIs(t, err, entities.ErrDepthExceeded)

	err = s.types.Remove(ctx, testOrg, "reports_to")
	require.ErrorIs(t, err, services.ErrDefaultType)

	require.NoError(t, s.types.Remove(ctx, testOrg, "mentors"))
	got, err := s.types.Get(ctx, testOrg, "mentors")
	require.NoError(t, err)
	assert.Nil(t, got)

	err = s.types.Remove(ctx, testOrg, "mentors")
	require.ErrorIs(t, err, entities.ErrNotFound)
}
