package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ersonp/relgraph/internal/domain/entities"
	"github.com/ersonp/relgraph/internal/domain/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Mutation operations and outcomes reported to the recorder.
const (
	opCreate     = "create"
	opUpdate     = "update"
	opDeactivate = "deactivate"

	outcomeOK             = "ok"
	outcomeConflict       = "conflict"
	outcomeInvalid        = "invalid"
	outcomeMalformed      = "malformed"
	outcomeNotFound       = "not_found"
	outcomeTenantMismatch = "tenant_mismatch"
	outcomeStorage        = "storage_error"
	outcomeError          = "error"
)

// RelationshipOptions holds the optional collaborators of a
// RelationshipService.
type RelationshipOptions struct {
	// Scorer is called when a create request opts into auto_classify.
	Scorer         ports.Scorer
	ScoringTimeout time.Duration
	Tiers          entities.TierPolicy
	// Index mirrors accepted writes into the semantic index when set.
	Index    *IndexService
	Logger   *zap.Logger
	Recorder ports.Recorder
}

// RelationshipService creates and mutates relationships. Every write is
// validated and versioned inside one transaction.
type RelationshipService struct {
	relationalDB ports.RelationalDB
	types        *RelationshipTypeService
	validator    *Validator
	scoring      scoringRunner
	tiers        entities.TierPolicy
	index        *IndexService
	logger       *zap.Logger
	recorder     ports.Recorder

	now   func() time.Time
	newID func() string
}

// NewRelationshipService creates a new RelationshipService.
func NewRelationshipService(
	relationalDB ports.RelationalDB,
	types *RelationshipTypeService,
	validator *Validator,
	opts RelationshipOptions,
) *RelationshipService {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	recorder := opts.Recorder
	if recorder == nil {
		recorder = ports.NopRecorder{}
	}
	timeout := opts.ScoringTimeout
	if timeout <= 0 {
		timeout = DefaultScoringTimeout
	}
	tiers := opts.Tiers
	if tiers.Validate() != nil {
		tiers = entities.DefaultTierPolicy()
	}

	return &RelationshipService{
		relationalDB: relationalDB,
		types:        types,
		validator:    validator,
		scoring: scoringRunner{
			scorer:   opts.Scorer,
			timeout:  timeout,
			logger:   logger,
			recorder: recorder,
		},
		tiers:    tiers,
		index:    opts.Index,
		logger:   logger,
		recorder: recorder,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Create validates and stores a new relationship under orgID.
// The record is validated once against the store to decide whether scoring
// is worth running, then again inside the write transaction so that
// validation and insert are one unit.
func (s *RelationshipService) Create(ctx context.Context, orgID string, req entities.CreateRequest) (*entities.Relationship, error) {
	rel, err := s.create(ctx, orgID, req)
	s.recorder.Mutation(opCreate, outcomeOf(err))
	return rel, err
}

func (s *RelationshipService) create(ctx context.Context, orgID string, req entities.CreateRequest) (*entities.Relationship, error) {
	rel, policy, err := s.prepare(ctx, orgID, req)
	if err != nil {
		return nil, err
	}
	orgID = rel.OrganizationID

	if err := s.validate(ctx, rel, policy, NewStoreView(s.relationalDB, orgID, "")); err != nil {
		return nil, err
	}

	if req.AIProcessing.AutoClassify {
		applyScore(rel, s.scoring.run(ctx, rel, s.scoreContext(ctx, rel)))
	}

	err = s.relationalDB.WithTx(ctx, func(tx ports.RelationshipTx) error {
		if err := s.validate(ctx, rel, policy, NewStoreView(tx, orgID, "")); err != nil {
			return err
		}
		return s.insert(ctx, tx, rel, entities.ActionCreate)
	})
	if err != nil {
		return nil, fmt.Errorf("creating relationship: %w", err)
	}

	s.logger.Debug("relationship created",
		zap.String("org", orgID),
		zap.String("id", rel.ID),
		zap.String("type", rel.RelationshipType),
	)
	s.mirror(ctx, rel)
	return rel, nil
}

// Update applies patch to the record if its stored version still equals
// expectedVersion. A stale version returns a *entities.ConflictError
// carrying the current record; nothing is retried.
func (s *RelationshipService) Update(
	ctx context.Context,
	orgID, id string,
	expectedVersion int64,
	patch entities.Patch,
) (*entities.Relationship, error) {
	rel, err := s.update(ctx, orgID, id, expectedVersion, patch, entities.ActionUpdate)
	s.recorder.Mutation(opUpdate, outcomeOf(err))
	return rel, err
}

// Deactivate soft-deletes a record through the versioned update path.
func (s *RelationshipService) Deactivate(ctx context.Context, orgID, id string, expectedVersion int64) (*entities.Relationship, error) {
	inactive := false
	rel, err := s.update(ctx, orgID, id, expectedVersion, entities.Patch{IsActive: &inactive}, entities.ActionDeactivate)
	s.recorder.Mutation(opDeactivate, outcomeOf(err))
	return rel, err
}

func (s *RelationshipService) update(
	ctx context.Context,
	orgID, id string,
	expectedVersion int64,
	patch entities.Patch,
	action string,
) (*entities.Relationship, error) {
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return nil, entities.Malformed("organization_id", "is required")
	}
	if id == "" {
		return nil, entities.Malformed("id", "is required")
	}
	if expectedVersion < 1 {
		return nil, entities.Malformed("expected_version", "must be at least 1, got %d", expectedVersion)
	}
	if patch.IsEmpty() {
		return nil, entities.Malformed("patch", "no fields to update")
	}

	current, err := s.relationalDB.FindRelationship(ctx, orgID, id)
	if err != nil {
		return nil, fmt.Errorf("finding relationship: %w", err)
	}
	if current == nil {
		return nil, notFound(id)
	}
	policy, err := s.types.Policy(ctx, orgID, current.RelationshipType)
	if err != nil {
		return nil, err
	}

	var updated *entities.Relationship
	err = s.relationalDB.WithTx(ctx, func(tx ports.RelationshipTx) error {
		stored, err := tx.FindRelationship(ctx, orgID, id)
		if err != nil {
			return err
		}
		if stored == nil {
			return notFound(id)
		}
		if stored.Version != expectedVersion {
			return &entities.ConflictError{Expected: expectedVersion, Current: stored}
		}

		next := stored.Clone()
		changed := patch.Apply(next)
		if err := next.CheckStructure(); err != nil {
			return err
		}
		if next.IsActive {
			if err := s.validate(ctx, next, policy, NewStoreView(tx, orgID, id)); err != nil {
				return err
			}
		} else {
			result := entities.ValidationResult{Valid: true}
			checkTemporalOrder(next, &result)
			if err := result.Err(); err != nil {
				return err
			}
		}

		actor := entities.ActorFrom(ctx)
		next.Version = stored.Version + 1
		next.UpdatedAt = s.now().UTC()
		next.UpdatedBy = actor

		ok, err := tx.UpdateRelationship(ctx, next, expectedVersion)
		if err != nil {
			return err
		}
		if !ok {
			latest, err := tx.FindRelationship(ctx, orgID, id)
			if err != nil {
				return err
			}
			return &entities.ConflictError{Expected: expectedVersion, Current: latest}
		}

		if err := tx.LogAction(ctx, &entities.AuditEntry{
			OrganizationID: orgID,
			RelationshipID: id,
			Action:         action,
			Actor:          actor,
			Version:        next.Version,
			Details:        map[string]any{"fields": changed},
			CreatedAt:      next.UpdatedAt,
		}); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("updating relationship %s: %w", id, err)
	}

	s.logger.Debug("relationship updated",
		zap.String("org", orgID),
		zap.String("id", id),
		zap.String("action", action),
		zap.Int64("version", updated.Version),
	)
	s.mirror(ctx, updated)
	return updated, nil
}

// Get returns one record of a tenant.
func (s *RelationshipService) Get(ctx context.Context, orgID, id string) (*entities.Relationship, error) {
	if strings.TrimSpace(orgID) == "" {
		return nil, entities.Malformed("organization_id", "is required")
	}
	rel, err := s.relationalDB.FindRelationship(ctx, orgID, id)
	if err != nil {
		return nil, fmt.Errorf("finding relationship: %w", err)
	}
	if rel == nil {
		return nil, notFound(id)
	}
	return rel, nil
}

// History returns the audit trail of a record, oldest first.
func (s *RelationshipService) History(ctx context.Context, orgID, id string) ([]entities.AuditEntry, error) {
	if _, err := s.Get(ctx, orgID, id); err != nil {
		return nil, err
	}
	entries, err := s.relationalDB.FindAuditLog(ctx, orgID, id)
	if err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}
	return entries, nil
}

// prepare checks tenancy, builds the record and resolves its type policy.
// The policy is resolved before any transaction opens.
func (s *RelationshipService) prepare(
	ctx context.Context,
	orgID string,
	req entities.CreateRequest,
) (*entities.Relationship, entities.ValidationRules, error) {
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return nil, entities.ValidationRules{}, entities.Malformed("organization_id", "is required")
	}
	submitted := strings.TrimSpace(req.OrganizationID)
	if submitted == "" {
		req.OrganizationID = orgID
	} else if submitted != orgID {
		return nil, entities.ValidationRules{}, entities.TenantMismatch(orgID, submitted)
	}

	rel, err := entities.NewRelationship(req)
	if err != nil {
		return nil, entities.ValidationRules{}, err
	}
	policy, err := s.types.Policy(ctx, orgID, rel.RelationshipType)
	if err != nil {
		return nil, entities.ValidationRules{}, err
	}
	return rel, policy, nil
}

// validate runs the validator and turns a failed result into an error.
func (s *RelationshipService) validate(
	ctx context.Context,
	rel *entities.Relationship,
	policy entities.ValidationRules,
	view GraphView,
) error {
	result, err := s.validator.Validate(ctx, rel, policy, view)
	if err != nil {
		return err
	}
	for _, v := range result.Violations {
		s.recorder.Violation(v.Rule)
	}
	return result.Err()
}

// insert assigns the system fields and stores rel with its audit entry.
func (s *RelationshipService) insert(ctx context.Context, tx ports.RelationshipTx, rel *entities.Relationship, action string) error {
	now := s.now().UTC()
	actor := entities.ActorFrom(ctx)

	rel.ID = s.newID()
	rel.Version = 1
	rel.CreatedAt = now
	rel.UpdatedAt = now
	rel.CreatedBy = actor
	rel.UpdatedBy = actor

	if err := tx.InsertRelationship(ctx, rel); err != nil {
		return err
	}
	return tx.LogAction(ctx, &entities.AuditEntry{
		OrganizationID: rel.OrganizationID,
		RelationshipID: rel.ID,
		Action:         action,
		Actor:          actor,
		Version:        rel.Version,
		CreatedAt:      now,
	})
}

// scoreContext gathers the graph facts handed to the scorer.
func (s *RelationshipService) scoreContext(ctx context.Context, rel *entities.Relationship) ports.ScoreContext {
	sc := ports.ScoreContext{Tier: s.tiers.TierOf(rel.Strength)}

	edges, err := s.relationalDB.FindEdges(ctx, rel.OrganizationID, ports.EdgeQuery{
		EntityIDs:  []string{rel.FromEntityID, rel.ToEntityID},
		ActiveOnly: true,
	})
	if err != nil {
		s.logger.Warn("reading degrees for scoring", zap.Error(err))
		return sc
	}
	for _, e := range edges {
		if e.FromEntityID == rel.FromEntityID || e.ToEntityID == rel.FromEntityID {
			sc.FromDegree++
		}
		if e.FromEntityID == rel.ToEntityID || e.ToEntityID == rel.ToEntityID {
			sc.ToDegree++
		}
	}
	return sc
}

// mirror copies an accepted write into the semantic index. Failures are
// logged only.
func (s *RelationshipService) mirror(ctx context.Context, rel *entities.Relationship) {
	if s.index == nil {
		return
	}
	if err := s.index.Mirror(ctx, rel); err != nil {
		s.logger.Warn("index mirror failed", zap.String("id", rel.ID), zap.Error(err))
	}
}

func (s *RelationshipService) mirrorBatch(ctx context.Context, rels []*entities.Relationship) {
	if s.index == nil {
		return
	}
	if err := s.index.MirrorBatch(ctx, rels); err != nil {
		s.logger.Warn("index mirror failed", zap.Int("records", len(rels)), zap.Error(err))
	}
}

func notFound(id string) error {
	return fmt.Errorf("%w: %s", entities.ErrNotFound, id)
}

// outcomeOf maps an error onto its metrics label.
func outcomeOf(err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case errors.Is(err, entities.ErrConflict):
		return outcomeConflict
	case errors.Is(err, entities.ErrValidationFailure):
		return outcomeInvalid
	case errors.Is(err, entities.ErrMalformedRecord):
		return outcomeMalformed
	case errors.Is(err, entities.ErrNotFound):
		return outcomeNotFound
	case errors.Is(err, entities.ErrTenantMismatch):
		return outcomeTenantMismatch
	case errors.Is(err, entities.ErrStorageUnavailable):
		return outcomeStorage
	}
	return outcomeError
}
