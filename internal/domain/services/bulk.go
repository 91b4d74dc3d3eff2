package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ersonp/relgraph/internal/domain/entities"
	"github.com/ersonp/relgraph/internal/domain/ports"
)

// DefaultMaxBatch caps the records of one bulk call.
const DefaultMaxBatch = 1000

// ErrBatchAborted marks the items of an atomic batch that were rolled back
// because another item failed.
var ErrBatchAborted = errors.New("batch aborted")

// Bulk modes reported to the recorder.
const (
	bulkModeIndependent = "independent"
	bulkModeAtomic      = "atomic"
)

// BulkItemResult is the outcome of one record of a batch.
type BulkItemResult struct {
	Index        int                    `json:"index"`
	Relationship *entities.Relationship `json:"relationship,omitempty"`
	Err          error                  `json:"-"`
}

// BulkResult lists one result per submitted record, in input order.
type BulkResult struct {
	Results   []BulkItemResult `json:"results"`
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
	Atomic    bool             `json:"atomic"`
}

// BulkError reports the item that rejected an atomic batch.
type BulkError struct {
	Index int
	Err   error
}

func (e *BulkError) Error() string {
	return fmt.Sprintf("batch rejected at record %d: %v", e.Index, e.Err)
}

func (e *BulkError) Unwrap() error { return e.Err }

// BulkService creates batches of relationships.
type BulkService struct {
	relationships *RelationshipService
	maxBatch      int
}

// NewBulkService creates a new BulkService.
func NewBulkService(relationships *RelationshipService, maxBatch int) *BulkService {
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatch
	}
	return &BulkService{
		relationships: relationships,
		maxBatch:      maxBatch,
	}
}

// BulkCreate creates every record of reqs under orgID. Independently, each
// record succeeds or fails on its own. Atomically, the batch is validated as
// one graph and committed all-or-nothing; a rejected batch returns the
// per-item results together with a *BulkError.
func (s *BulkService) BulkCreate(
	ctx context.Context,
	orgID string,
	reqs []entities.CreateRequest,
	atomic bool,
) (*BulkResult, error) {
	if strings.TrimSpace(orgID) == "" {
		return nil, entities.Malformed("organization_id", "is required")
	}
	if len(reqs) > s.maxBatch {
		return nil, entities.Malformed("records", "batch of %d exceeds the limit of %d", len(reqs), s.maxBatch)
	}

	result := &BulkResult{
		Results: make([]BulkItemResult, len(reqs)),
		Atomic:  atomic,
	}
	for i := range result.Results {
		result.Results[i].Index = i
	}
	if len(reqs) == 0 {
		return result, nil
	}

	if !atomic {
		s.createEach(ctx, orgID, reqs, result)
		return result, nil
	}
	return result, s.createAtomic(ctx, orgID, reqs, result)
}

func (s *BulkService) createEach(ctx context.Context, orgID string, reqs []entities.CreateRequest, result *BulkResult) {
	rec := s.relationships.recorder
	for i := range reqs {
		item := &result.Results[i]
		if err := ctx.Err(); err != nil {
			item.Err = err
		} else {
			item.Relationship, item.Err = s.relationships.Create(ctx, orgID, reqs[i])
		}

		if item.Err != nil {
			result.Failed++
			rec.BulkItem(bulkModeIndependent, outcomeOf(item.Err))
			continue
		}
		result.Succeeded++
		rec.BulkItem(bulkModeIndependent, outcomeOK)
	}
}

func (s *BulkService) createAtomic(ctx context.Context, orgID string, reqs []entities.CreateRequest, result *BulkResult) error {
	rs := s.relationships

	rels := make([]*entities.Relationship, len(reqs))
	policies := make([]entities.ValidationRules, len(reqs))
	for i := range reqs {
		rel, policy, err := rs.prepare(ctx, orgID, reqs[i])
		if err != nil {
			return s.abort(result, i, err)
		}
		rels[i], policies[i] = rel, policy
	}
	orgID = strings.TrimSpace(orgID)

	if err := s.validateAll(ctx, rels, policies, NewStoreView(rs.relationalDB, orgID, "")); err != nil {
		var bulkErr *BulkError
		if errors.As(err, &bulkErr) {
			return s.abort(result, bulkErr.Index, bulkErr.Err)
		}
		return s.abort(result, 0, err)
	}
	for i, rel := range rels {
		if reqs[i].AIProcessing.AutoClassify {
			applyScore(rel, rs.scoring.run(ctx, rel, rs.scoreContext(ctx, rel)))
		}
	}

	err := rs.relationalDB.WithTx(ctx, func(tx ports.RelationshipTx) error {
		if err := s.validateAll(ctx, rels, policies, NewStoreView(tx, orgID, "")); err != nil {
			return err
		}
		for i, rel := range rels {
			if err := rs.insert(ctx, tx, rel, entities.ActionBulkCreate); err != nil {
				return &BulkError{Index: i, Err: err}
			}
		}
		return nil
	})
	if err != nil {
		var bulkErr *BulkError
		if errors.As(err, &bulkErr) {
			return s.abort(result, bulkErr.Index, bulkErr.Err)
		}
		for i := range result.Results {
			result.Results[i].Err = err
			rs.recorder.BulkItem(bulkModeAtomic, outcomeOf(err))
		}
		result.Failed = len(result.Results)
		return fmt.Errorf("committing batch: %w", err)
	}

	for i, rel := range rels {
		result.Results[i].Relationship = rel
		rs.recorder.BulkItem(bulkModeAtomic, outcomeOK)
	}
	result.Succeeded = len(rels)
	rs.mirrorBatch(ctx, rels)
	return nil
}

// validateAll validates each record against base overlaid with the records
// before it in the batch.
func (s *BulkService) validateAll(
	ctx context.Context,
	rels []*entities.Relationship,
	policies []entities.ValidationRules,
	base GraphView,
) error {
	view := newOverlayView(base)
	for i, rel := range rels {
		if err := s.relationships.validate(ctx, rel, policies[i], view); err != nil {
			return &BulkError{Index: i, Err: err}
		}
		view.add(rel)
	}
	return nil
}

// abort marks every item of an atomic batch as failed: index with its own
// error, the others as aborted.
func (s *BulkService) abort(result *BulkResult, index int, err error) error {
	for i := range result.Results {
		item := &result.Results[i]
		item.Relationship = nil
		if i == index {
			item.Err = err
		} else {
			item.Err = ErrBatchAborted
		}
		s.relationships.recorder.BulkItem(bulkModeAtomic, outcomeOf(item.Err))
	}
	result.Succeeded = 0
	result.Failed = len(result.Results)
	return &BulkError{Index: index, Err: err}
}
