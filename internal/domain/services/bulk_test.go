package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/relgraph/internal/domain/entities"
	"github.com/ersonp/relgraph/internal/domain/mocks"
	"github.com/ersonp/relgraph/internal/domain/ports"
)

func TestBulkService_Independent(t *testing.T) {
	f := newFixture(t, RelationshipOptions{})
	bulk := NewBulkService(f.relationships, 0)
	invalid := request("reports_to", "dave", "dave")

	result, err := bulk.BulkCreate(context.Background(), testOrg, []entities.CreateRequest{
		request("reports_to", "alice", "bob"),
		request("reports_to", "bob", "carol"),
		invalid,
		request("supplier_partnership", "acme", "globex"),
	}, false)

	require.NoError(t, err)
	assert.False(t, result.Atomic)
	assert.Equal(t, 3, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Results, 4)
	for i, item := range result.Results {
		assert.Equal(t, i, item.Index)
	}
	assert.NoError(t, result.Results[0].Err)
	assert.NotNil(t, result.Results[0].Relationship)
	assert.ErrorIs(t, result.Results[2].Err, entities.ErrValidationFailure)
	assert.Nil(t, result.Results[2].Relationship)
	assert.Equal(t, 3, f.db.Len())
}

func TestBulkService_Independent_SeesEarlierItems(t *testing.T) {
	f := newFixture(t, RelationshipOptions{})
	bulk := NewBulkService(f.relationships, 0)

	result, err := bulk.BulkCreate(context.Background(), testOrg, []entities.CreateRequest{
		request("reports_to", "alice", "bob"),
		request("reports_to", "bob", "alice"),
	}, false)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	assert.ErrorIs(t, result.Results[1].Err, entities.ErrValidationFailure)
}

func TestBulkService_Atomic(t *testing.T) {
	f := newFixture(t, RelationshipOptions{})
	bulk := NewBulkService(f.relationships, 0)

	result, err := bulk.BulkCreate(context.Background(), testOrg, []entities.CreateRequest{
		request("reports_to", "alice", "bob"),
		request("reports_to", "bob", "carol"),
		request("supplier_partnership", "acme", "globex"),
	}, true)

	require.NoError(t, err)
	assert.True(t, result.Atomic)
	assert.Equal(t, 3, result.Succeeded)
	assert.Zero(t, result.Failed)
	assert.Equal(t, 3, f.db.Len())
	assert.Equal(t, 1, f.db.CommitCount)

	entries, err := f.db.FindAuditLogByAction(context.Background(), testOrg, entities.ActionBulkCreate, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
	for _, item := range result.Results {
		assert.Equal(t, int64(1), item.Relationship.Version)
	}
}

func TestBulkService_Atomic_RollsBack(t *testing.T) {
	tests := []struct {
		name      string
		reqs      []entities.CreateRequest
		wantIndex int
		want      error
	}{
		{
			name: "invalid item",
			reqs: []entities.CreateRequest{
				request("reports_to", "alice", "bob"),
				request("reports_to", "bob", "carol"),
				request("reports_to", "dave", "dave"),
				request("supplier_partnership", "acme", "globex"),
			},
			wantIndex: 2,
			want:      entities.ErrValidationFailure,
		},
		{
			name: "cycle within the batch",
			reqs: []entities.CreateRequest{
				request("reports_to", "alice", "bob"),
				request("reports_to", "bob", "carol"),
				request("reports_to", "carol", "alice"),
			},
			wantIndex: 2,
			want:      entities.ErrValidationFailure,
		},
		{
			name: "malformed item",
			reqs: []entities.CreateRequest{
				request("reports_to", "alice", "bob"),
				{FromEntityID: "x", ToEntityID: "y", RelationshipType: "reports_to"},
			},
			wantIndex: 1,
			want:      entities.ErrMalformedRecord,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, RelationshipOptions{})
			bulk := NewBulkService(f.relationships, 0)

			result, err := bulk.BulkCreate(context.Background(), testOrg, tt.reqs, true)

			require.Error(t, err)
			var bulkErr *BulkError
			require.ErrorAs(t, err, &bulkErr)
			assert.Equal(t, tt.wantIndex, bulkErr.Index)
			assert.ErrorIs(t, err, tt.want)

			require.NotNil(t, result)
			assert.Zero(t, result.Succeeded)
			assert.Equal(t, len(tt.reqs), result.Failed)
			for i, item := range result.Results {
				assert.Nil(t, item.Relationship)
				if i == tt.wantIndex {
					assert.ErrorIs(t, item.Err, tt.want)
				} else {
					assert.ErrorIs(t, item.Err, ErrBatchAborted)
				}
			}
			assert.Zero(t, f.db.Len())
			assert.Zero(t, f.db.CommitCount)
		})
	}
}

func TestBulkService_Atomic_StorageFailure(t *testing.T) {
	f := newFixture(t, RelationshipOptions{})
	bulk := NewBulkService(f.relationships, 0)
	boom := &entities.StorageError{Op: "commit", Err: errors.New("disk full")}
	f.db.BeforeCommit = func() { f.db.Err = boom }

	// The first batch commits; every store call after it fails.
	_, err := bulk.BulkCreate(context.Background(), testOrg, []entities.CreateRequest{
		request("supplier_partnership", "a", "b"),
	}, true)
	require.NoError(t, err)

	result, err := bulk.BulkCreate(context.Background(), testOrg, []entities.CreateRequest{
		request("supplier_partnership", "c", "d"),
		request("supplier_partnership", "e", "f"),
	}, true)

	assert.ErrorIs(t, err, entities.ErrStorageUnavailable)
	require.NotNil(t, result)
	assert.Equal(t, 2, result.Failed)
	for _, item := range result.Results {
		assert.Error(t, item.Err)
	}
}

func TestBulkService_Atomic_ScoresAndMirrors(t *testing.T) {
	scorer := &mocks.Scorer{Result: &ports.Score{Confidence: 0.6, Classification: "routine"}}
	vectorDB := mocks.NewVectorDB()
	embedder := &mocks.Embedder{EmbeddingResult: []float32{0.5, 0.5}}
	db := mocks.NewRelationalDB()
	index := NewIndexService(vectorDB, embedder, db, nil)
	svc := NewRelationshipService(db, NewRelationshipTypeService(db), NewValidator(0), RelationshipOptions{
		Scorer: scorer,
		Index:  index,
	})
	bulk := NewBulkService(svc, 0)
	scored := request("supplier_partnership", "acme", "globex")
	scored.AIProcessing.AutoClassify = true

	result, err := bulk.BulkCreate(context.Background(), testOrg, []entities.CreateRequest{
		scored,
		request("supplier_partnership", "acme", "initech"),
	}, true)

	require.NoError(t, err)
	require.NotNil(t, result.Results[0].Relationship.Confidence)
	assert.Equal(t, "routine", result.Results[0].Relationship.Classification)
	assert.Nil(t, result.Results[1].Relationship.Confidence)
	assert.Equal(t, int32(1), scorer.CallCount.Load())
	assert.Len(t, vectorDB.Docs, 2)
}

func TestBulkService_Rejects(t *testing.T) {
	f := newFixture(t, RelationshipOptions{})
	bulk := NewBulkService(f.relationships, 2)
	reqs := []entities.CreateRequest{
		request("related_to", "a", "b"),
		request("related_to", "b", "c"),
		request("related_to", "c", "d"),
	}

	_, err := bulk.BulkCreate(context.Background(), testOrg, reqs, false)
	assert.ErrorIs(t, err, entities.ErrMalformedRecord)

	_, err = bulk.BulkCreate(context.Background(), "", reqs[:1], false)
	assert.ErrorIs(t, err, entities.ErrMalformedRecord)

	result, err := bulk.BulkCreate(context.Background(), testOrg, nil, true)
	require.NoError(t, err)
	assert.Empty(t, result.Results)
}

func TestBulkService_Independent_Canceled(t *testing.T) {
	f := newFixture(t, RelationshipOptions{})
	bulk := NewBulkService(f.relationships, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := bulk.BulkCreate(ctx, testOrg, []entities.CreateRequest{
		request("related_to", "a", "b"),
	}, false)

	require.NoError(t, err)
	assert.ErrorIs(t, result.Results[0].Err, context.Canceled)
	assert.Zero(t, f.db.Len())
}
