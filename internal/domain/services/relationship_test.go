package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/relgraph/internal/domain/entities"
	"github.com/ersonp/relgraph/internal/domain/mocks"
	"github.com/ersonp/relgraph/internal/domain/ports"
)

const testOrg = "org-1"

var testClock = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	db            *mocks.RelationalDB
	types         *RelationshipTypeService
	relationships *RelationshipService
}

func newFixture(t *testing.T, opts RelationshipOptions) *fixture {
	t.Helper()
	return newFixtureOn(t, mocks.NewRelationalDB(), opts)
}

func newFixtureOn(t *testing.T, db *mocks.RelationalDB, opts RelationshipOptions) *fixture {
	t.Helper()
	types := NewRelationshipTypeService(db)
	require.NoError(t, types.LoadDefaults(context.Background(), testOrg))

	svc := NewRelationshipService(db, types, NewValidator(0), opts)
	svc.now = func() time.Time { return testClock }
	var seq atomic.Int64
	svc.newID = func() string { return fmt.Sprintf("rel-%03d", seq.Add(1)) }

	return &fixture{db: db, types: types, relationships: svc}
}

func (f *fixture) create(t *testing.T, typ, from, to string) *entities.Relationship {
	t.Helper()
	rel, err := f.relationships.Create(context.Background(), testOrg, request(typ, from, to))
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

func TestRelationshipService_Create(t *testing.T) {
	f := newFixture(t, RelationshipOptions{})
	ctx := entities.WithActor(context.Background(), "alice")

	rel, err := f.relationships.Create(ctx, testOrg, request("supplier_partnership", "acme", "globex"))

	require.NoError(t, err)
	assert.Equal(t, "rel-001", rel.ID)
	assert.Equal(t, testOrg, rel.OrganizationID)
	assert.Equal(t, int64(1), rel.Version)
	assert.Equal(t, rel.CreatedAt, rel.UpdatedAt)
	assert.Equal(t, testClock, rel.CreatedAt)
	assert.Equal(t, "alice", rel.CreatedBy)
	assert.Equal(t, "alice", rel.UpdatedBy)
	assert.Equal(t, 1.0, rel.Strength)
	assert.Equal(t, entities.DirectionForward, rel.Direction)
	assert.True(t, rel.IsActive)

	stored, err := f.relationships.Get(context.Background(), testOrg, rel.ID)
	require.NoError(t, err)
	assert.Equal(t, rel.ID, stored.ID)

	history, err := f.relationships.History(context.Background(), testOrg, rel.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, entities.ActionCreate, history[0].Action)
	assert.Equal(t, "alice", history[0].Actor)
	assert.Equal(t, int64(1), history[0].Version)
}

func TestRelationshipService_Create_Rejects(t *testing.T) {
	strength := 1.5

	tests := []struct {
		name  string
		orgID string
		req   entities.CreateRequest
		want  error
	}{
		{
			name:  "missing organization",
			orgID: "",
			req:   request("related_to", "a", "b"),
			want:  entities.ErrMalformedRecord,
		},
		{
			name:  "tenant mismatch",
			orgID: testOrg,
			req: func() entities.CreateRequest {
				r := request("related_to", "a", "b")
				r.OrganizationID = "org-2"
				return r
			}(),
			want: entities.ErrTenantMismatch,
		},
		{
			name:  "missing smart code",
			orgID: testOrg,
			req: func() entities.CreateRequest {
				r := request("related_to", "a", "b")
				r.SmartCode = ""
				return r
			}(),
			want: entities.ErrMalformedRecord,
		},
		{
			name:  "strength out of range",
			orgID: testOrg,
			req: func() entities.CreateRequest {
				r := request("related_to", "a", "b")
				r.Strength = &strength
				return r
			}(),
			want: entities.ErrMalformedRecord,
		},
		{
			name:  "self reference on hierarchical type",
			orgID: testOrg,
			req:   request("reports_to", "a", "a"),
			want:  entities.ErrValidationFailure,
		},
		{
			name:  "expiry before effective",
			orgID: testOrg,
			req: func() entities.CreateRequest {
				r := request("related_to", "a", "b")
				effective := testClock
				expires := testClock.Add(-time.Hour)
				r.EffectiveAt, r.ExpiresAt = &effective, &expires
				return r
			}(),
			want: entities.ErrValidationFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, RelationshipOptions{})

			rel, err := f.relationships.Create(context.Background(), tt.orgID, tt.req)

			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, rel)
			assert.Zero(t, f.db.Len())
		})
	}
}

func TestRelationshipService_Create_SelfReferenceAllowedByType(t *testing.T) {
	f := newFixture(t, RelationshipOptions{})

	rel, err := f.relationships.Create(context.Background(), testOrg, request("related_to", "a", "a"))

	require.NoError(t, err)
	assert.Equal(t, "a", rel.ToEntityID)
}

func TestRelationshipService_Create_RejectsCycle(t *testing.T) {
	f := newFixture(t, RelationshipOptions{})
	f.create(t, "reports_to", "alice", "bob")
	f.create(t, "reports_to", "bob", "carol")

	_, err := f.relationships.Create(context.Background(), testOrg, request("reports_to", "carol", "alice"))

	require.Error(t, err)
	assert.ErrorIs(t, err, entities.ErrValidationFailure)
	var verr *entities.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, entities.RulePreventCycles, verr.Violations[0].Rule)
	assert.Equal(t, 2, f.db.Len())
}

func TestRelationshipService_Create_CycleThroughOtherTypeAllowed(t *testing.T) {
	f := newFixture(t, RelationshipOptions{})
	f.create(t, "reports_to", "alice", "bob")

	rel, err := f.relationships.Create(context.Background(), testOrg, request("manages", "bob", "alice"))

	require.NoError(t, err)
	assert.Equal(t, "manages", rel.RelationshipType)
}

func TestRelationshipService_Create_TenantsAreIsolated(t *testing.T) {
	f := newFixture(t, RelationshipOptions{})
	rel := f.create(t, "reports_to", "alice", "bob")
	require.NoError(t, f.types.LoadDefaults(context.Background(), "org-2"))

	// The same edge reversed in another tenant is no cycle.
	_, err := f.relationships.Create(context.Background(), "org-2", request("reports_to", "bob", "alice"))
	require.NoError(t, err)

	_, err = f.relationships.Get(context.Background(), "org-2", rel.ID)
	assert.ErrorIs(t, err, entities.ErrNotFound)
}

func TestRelationshipService_Update(t *testing.T) {
	f := newFixture(t, RelationshipOptions{})
	rel := f.create(t, "supplier_partnership", "acme", "globex")
	strength := 0.4
	ctx := entities.WithActor(context.Background(), "bob")

	updated, err := f.relationships.Update(ctx, testOrg, rel.ID, 1, entities.Patch{Strength: &strength})

	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)
	assert.Equal(t, 0.4, updated.Strength)
	assert.Equal(t, "bob", updated.UpdatedBy)
	assert.Equal(t, entities.SystemActor, updated.CreatedBy)

	history, err := f.relationships.History(context.Background(), testOrg, rel.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, entities.ActionUpdate, history[1].Action)
	assert.Equal(t, []string{"strength"}, history[1].Details["fields"])
}

func TestRelationshipService_Update_StaleVersion(t *testing.T) {
	f := newFixture(t, RelationshipOptions{})
	rel := f.create(t, "supplier_partnership", "acme", "globex")
	strength := 0.4
	_, err := f.relationships.Update(context.Background(), testOrg, rel.ID, 1, entities.Patch{Strength: &strength})
	require.NoError(t, err)

	_, err = f.relationships.Update(context.Background(), testOrg, rel.ID, 1, entities.Patch{Strength: &strength})

	require.Error(t, err)
	assert.ErrorIs(t, err, entities.ErrConflict)
	var conflict *entities.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, int64(1), conflict.Expected)
	require.NotNil(t, conflict.Current)
	assert.Equal(t, int64(2), conflict.Current.Version)
}

func TestRelationshipService_Update_ConcurrentWritersOneWins(t *testing.T) {
	f := newFixture(t, RelationshipOptions{})
	rel := f.create(t, "supplier_partnership", "acme", "globex")

	const writers = 8
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		conflicts atomic.Int32
	)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			strength := float64(i) / 10
			_, err := f.relationships.Update(context.Background(), testOrg, rel.ID, 1, entities.Patch{Strength: &strength})
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, entities.ErrConflict):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), succeeded.Load())
	assert.Equal(t, int32(writers-1), conflicts.Load())

	stored, err := f.relationships.Get(context.Background(), testOrg, rel.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.Version)
}

func TestRelationshipService_Update_Rejects(t *testing.T) {
	f := newFixture(t, RelationshipOptions{})
	rel := f.create(t, "supplier_partnership", "acme", "globex")
	strength := 0.5
	tooStrong := 2.0

	tests := []struct {
		name    string
		orgID   string
		id      string
		version int64
		patch   entities.Patch
		want    error
	}{
		{"empty patch", testOrg, rel.ID, 1, entities.Patch{}, entities.ErrMalformedRecord},
		{"zero version", testOrg, rel.ID, 0, entities.Patch{Strength: &strength}, entities.ErrMalformedRecord},
		{"unknown id", testOrg, "missing", 1, entities.Patch{Strength: &strength}, entities.ErrNotFound},
		{"other tenant", "org-2", rel.ID, 1, entities.Patch{Strength: &strength}, entities.ErrNotFound},
		{"invalid strength", testOrg, rel.ID, 1, entities.Patch{Strength: &tooStrong}, entities.ErrMalformedRecord},
		{
			name:    "expiry before effective",
			orgID:   testOrg,
			id:      rel.ID,
			version: 1,
			patch: entities.Patch{
				EffectiveAt: entities.SetTime(testClock),
				ExpiresAt:   entities.SetTime(testClock.Add(-time.Minute)),
			},
			want: entities.ErrValidationFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.relationships.Update(context.Background(), tt.orgID, tt.id, tt.version, tt.patch)
			assert.ErrorIs(t, err, tt.want)

			stored, err := f.relationships.Get(context.Background(), testOrg, rel.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(1), stored.Version)
		})
	}
}

func TestRelationshipService_Update_ReactivationRevalidatesCycles(t *testing.T) {
	f := newFixture(t, RelationshipOptions{})
	ab := f.create(t, "reports_to", "alice", "bob")
	_, err := f.relationships.Deactivate(context.Background(), testOrg, ab.ID, 1)
	require.NoError(t, err)
	f.create(t, "reports_to", "bob", "alice")

	active := true
	_, err = f.relationships.Update(context.Background(), testOrg, ab.ID, 2, entities.Patch{IsActive: &active})

	assert.ErrorIs(t, err, entities.ErrValidationFailure)
}

func TestRelationshipService_Update_OwnEdgeIsNotACycle(t *testing.T) {
	f := newFixture(t, RelationshipOptions{})
	rel := f.create(t, "reports_to", "alice", "bob")
	strength := 0.9

	updated, err := f.relationships.Update(context.Background(), testOrg, rel.ID, 1, entities.Patch{Strength: &strength})

	require.NoError(t, err)
	assert.Equal(t, 0.9, updated.Strength)
}

func TestRelationshipService_Deactivate(t *testing.T) {
	f := newFixture(t, RelationshipOptions{})
	rel := f.create(t, "reports_to", "alice", "bob")

	deactivated, err := f.relationships.Deactivate(context.Background(), testOrg, rel.ID, 1)

	require.NoError(t, err)
	assert.False(t, deactivated.IsActive)
	assert.Equal(t, int64(2), deactivated.Version)

	// The record stays readable and stops counting towards cycles.
	stored, err := f.relationships.Get(context.Background(), testOrg, rel.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
	f.create(t, "reports_to", "bob", "alice")

	history, err := f.relationships.History(context.Background(), testOrg, rel.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, entities.ActionDeactivate, history[1].Action)
}

func TestRelationshipService_Create_Scoring(t *testing.T) {
	t.Run("applies score", func(t *testing.T) {
		scorer := &mocks.Scorer{Result: &ports.Score{
			Confidence:     0.8,
			Insights:       entities.MustFromAny(map[string]any{"reason": "frequent trades"}),
			Classification: "strategic",
		}}
		f := newFixture(t, RelationshipOptions{Scorer: scorer})
		f.create(t, "supplier_partnership", "acme", "initech")
		req := request("supplier_partnership", "acme", "globex")
		req.AIProcessing.AutoClassify = true

		rel, err := f.relationships.Create(context.Background(), testOrg, req)

		require.NoError(t, err)
		require.NotNil(t, rel.Confidence)
		assert.Equal(t, 0.8, *rel.Confidence)
		assert.Equal(t, "strategic", rel.Classification)
		assert.Equal(t, int32(1), scorer.CallCount.Load())
		assert.Equal(t, entities.TierCritical, scorer.LastCtx.Tier)
		assert.Equal(t, 1, scorer.LastCtx.FromDegree)
		assert.Equal(t, 0, scorer.LastCtx.ToDegree)
	})

	t.Run("skipped without opt in", func(t *testing.T) {
		scorer := &mocks.Scorer{Result: &ports.Score{Confidence: 0.8}}
		f := newFixture(t, RelationshipOptions{Scorer: scorer})

		rel := f.create(t, "supplier_partnership", "acme", "globex")

		assert.Nil(t, rel.Confidence)
		assert.Zero(t, scorer.CallCount.Load())
	})

	t.Run("timeout keeps the write", func(t *testing.T) {
		scorer := &mocks.Scorer{Block: true}
		f := newFixture(t, RelationshipOptions{Scorer: scorer, ScoringTimeout: 10 * time.Millisecond})
		req := request("supplier_partnership", "acme", "globex")
		req.AIProcessing.AutoClassify = true

		rel, err := f.relationships.Create(context.Background(), testOrg, req)

		require.NoError(t, err)
		assert.Nil(t, rel.Confidence)
		assert.Empty(t, rel.Classification)
		assert.Equal(t, 1, f.db.Len())
	})

	t.Run("scorer error keeps the write", func(t *testing.T) {
		scorer := &mocks.Scorer{Err: errors.New("model unavailable")}
		f := newFixture(t, RelationshipOptions{Scorer: scorer})
		req := request("supplier_partnership", "acme", "globex")
		req.AIProcessing.AutoClassify = true

		rel, err := f.relationships.Create(context.Background(), testOrg, req)

		require.NoError(t, err)
		assert.Nil(t, rel.Confidence)
	})

	t.Run("invalid rejected before scoring", func(t *testing.T) {
		scorer := &mocks.Scorer{Result: &ports.Score{Confidence: 0.8}}
		f := newFixture(t, RelationshipOptions{Scorer: scorer})
		req := request("reports_to", "alice", "alice")
		req.AIProcessing.AutoClassify = true

		_, err := f.relationships.Create(context.Background(), testOrg, req)

		assert.ErrorIs(t, err, entities.ErrValidationFailure)
		assert.Zero(t, scorer.CallCount.Load())
	})
}

func TestRelationshipService_StorageFailure(t *testing.T) {
	f := newFixture(t, RelationshipOptions{})
	f.db.Err = &entities.StorageError{Op: "query", Err: errors.New("disk full")}

	_, err := f.relationships.Create(context.Background(), testOrg, request("supplier_partnership", "a", "b"))

	assert.ErrorIs(t, err, entities.ErrStorageUnavailable)
}

func TestRelationshipService_MirrorsIndex(t *testing.T) {
	vectorDB := mocks.NewVectorDB()
	embedder := &mocks.Embedder{EmbeddingResult: []float32{0.1, 0.2, 0.3}}
	db := mocks.NewRelationalDB()
	index := NewIndexService(vectorDB, embedder, db, nil)
	types := NewRelationshipTypeService(db)
	svc := NewRelationshipService(db, types, NewValidator(0), RelationshipOptions{Index: index})

	rel, err := svc.Create(context.Background(), testOrg, request("supplier_partnership", "acme", "globex"))
	require.NoError(t, err)
	require.Contains(t, vectorDB.Docs, rel.ID)
	assert.Equal(t, testOrg, vectorDB.Docs[rel.ID].OrganizationID)

	_, err = svc.Deactivate(context.Background(), testOrg, rel.ID, 1)
	require.NoError(t, err)
	assert.NotContains(t, vectorDB.Docs, rel.ID)
}

func TestRelationshipService_IndexFailureKeepsWrite(t *testing.T) {
	vectorDB := mocks.NewVectorDB()
	vectorDB.Err = errors.New("qdrant down")
	db := mocks.NewRelationalDB()
	index := NewIndexService(vectorDB, &mocks.Embedder{EmbeddingResult: []float32{1}}, db, nil)
	svc := NewRelationshipService(db, NewRelationshipTypeService(db), NewValidator(0), RelationshipOptions{Index: index})

	rel, err := svc.Create(context.Background(), testOrg, request("supplier_partnership", "acme", "globex"))

	require.NoError(t, err)
	assert.Equal(t, int64(1), rel.Version)
	assert.Equal(t, 1, db.Len())
}

func TestOutcomeOf(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, outcomeOK},
		{&entities.ConflictError{Expected: 1}, outcomeConflict},
		{&entities.ValidationError{}, outcomeInvalid},
		{entities.Malformed("x", "bad"), outcomeMalformed},
		{notFound("x"), outcomeNotFound},
		{entities.TenantMismatch("a", "b"), outcomeTenantMismatch},
		{&entities.StorageError{Op: "op", Err: errors.New("boom")}, outcomeStorage},
		{errors.New("other"), outcomeError},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, outcomeOf(tt.err))
		})
	}
}
