package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/ersonp/relgraph/internal/domain/entities"
	"github.com/ersonp/relgraph/internal/domain/ports"
	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"
)

// edgeBatchSize bounds the number of ids bound into one IN list.
const edgeBatchSize = 400

// store runs relationship queries against either the pool or a transaction.
type store struct {
	q sqlx.ExtContext
}

var _ ports.RelationshipTx = (*store)(nil)

// FindRelationship finds a relationship by ID. Returns nil if not found.
func (s *store) FindRelationship(ctx context.Context, orgID, id string) (*entities.Relationship, error) {
	var row relationshipRow
	query := fmt.Sprintf(`SELECT %s FROM relationships WHERE organization_id = ? AND id = ?`,
		strings.Join(relationshipColumns, ", "))
	err := sqlx.GetContext(ctx, s.q, &row, query, orgID, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("finding relationship", err)
	}
	return row.toEntity()
}

// FindEdges returns edges touching any of the given entities.
func (s *store) FindEdges(ctx context.Context, orgID string, q ports.EdgeQuery) ([]*entities.Relationship, error) {
	ids := uniqueStrings(q.EntityIDs)
	if len(ids) == 0 {
		return nil, nil
	}

	seen := make(map[string]struct{})
	result := make([]*entities.Relationship, 0, len(ids))
	for start := 0; start < len(ids); start += edgeBatchSize {
		end := min(start+edgeBatchSize, len(ids))

		sb := sqlbuilder.SQLite.NewSelectBuilder()
		sb.Select(relationshipColumns...).From("relationships")
		sb.Where(edgeConditions(sb, orgID, q, ids[start:end])...)
		sb.OrderBy("created_at ASC", "id ASC")
		query, args := sb.Build()

		batch, err := s.selectRelationships(ctx, "finding edges", query, args...)
		if err != nil {
			return nil, err
		}
		for _, rel := range batch {
			if _, dup := seen[rel.ID]; dup {
				continue
			}
			seen[rel.ID] = struct{}{}
			result = append(result, rel)
		}
	}
	return result, nil
}

// QueryRelationships returns one page of records matching the filters.
func (s *store) QueryRelationships(ctx context.Context, orgID string, f entities.Filters) ([]*entities.Relationship, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(relationshipColumns...).From("relationships")
	sb.Where(filterConditions(sb, orgID, &f)...)
	sb.OrderBy(orderClause(&f)...)
	if f.Limit > 0 {
		sb.Limit(f.Limit)
	}
	if f.Offset > 0 {
		if f.Limit <= 0 {
			sb.Limit(math.MaxInt32)
		}
		sb.Offset(f.Offset)
	}
	query, args := sb.Build()
	return s.selectRelationships(ctx, "querying relationships", query, args...)
}

// CountRelationships counts records matching the filters, ignoring paging.
func (s *store) CountRelationships(ctx context.Context, orgID string, f entities.Filters) (int, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("COUNT(*)").From("relationships")
	sb.Where(filterConditions(sb, orgID, &f)...)
	query, args := sb.Build()

	var count int
	if err := sqlx.GetContext(ctx, s.q, &count, query, args...); err != nil {
		return 0, storageErr("counting relationships", err)
	}
	return count, nil
}

// InsertRelationship stores a new record.
func (s *store) InsertRelationship(ctx context.Context, rel *entities.Relationship) error {
	row, err := toRow(rel)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`INSERT INTO relationships (%s) VALUES (:%s)`,
		strings.Join(relationshipColumns, ", "), strings.Join(relationshipColumns, ", :"))
	if _, err := sqlx.NamedExecContext(ctx, s.q, query, row); err != nil {
		return storageErr("inserting relationship", err)
	}
	return nil
}

// versionedRow adds the optimistic-lock guard to a row.
type versionedRow struct {
	relationshipRow
	ExpectedVersion int64 `db:"expected_version"`
}

// UpdateRelationship writes every mutable column of rel guarded by
// expectedVersion. Immutable columns are never part of the SET list.
func (s *store) UpdateRelationship(ctx context.Context, rel *entities.Relationship, expectedVersion int64) (bool, error) {
	row, err := toRow(rel)
	if err != nil {
		return false, err
	}
	query := `
		UPDATE relationships SET
			strength = :strength,
			direction = :direction,
			is_active = :is_active,
			effective_at = :effective_at,
			expires_at = :expires_at,
			data = :data,
			business_rules = :business_rules,
			validation_rules = :validation_rules,
			confidence = :confidence,
			insights = :insights,
			classification = :classification,
			version = :version,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE id = :id AND organization_id = :organization_id AND version = :expected_version
	`
	res, err := sqlx.NamedExecContext(ctx, s.q, query, versionedRow{relationshipRow: *row, ExpectedVersion: expectedVersion})
	if err != nil {
		return false, storageErr("updating relationship", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("updating relationship", err)
	}
	return n == 1, nil
}

// LogAction appends an audit entry.
func (s *store) LogAction(ctx context.Context, entry *entities.AuditEntry) error {
	var details sql.NullString
	if entry.Details != nil {
		data, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("marshaling details: %w", err)
		}
		details = sql.NullString{String: string(data), Valid: true}
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = timeNow().UTC()
	}

	query := `
		INSERT INTO audit_log (organization_id, relationship_id, action, actor, version, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	res, err := s.q.ExecContext(ctx, query, entry.OrganizationID, entry.RelationshipID, entry.Action,
		entry.Actor, entry.Version, details, formatTime(entry.CreatedAt))
	if err != nil {
		return storageErr("logging action", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		entry.ID = id
	}
	return nil
}

func (s *store) selectRelationships(ctx context.Context, op, query string, args ...any) ([]*entities.Relationship, error) {
	var rows []relationshipRow
	if err := sqlx.SelectContext(ctx, s.q, &rows, query, args...); err != nil {
		return nil, storageErr(op, err)
	}
	result := make([]*entities.Relationship, 0, len(rows))
	for i := range rows {
		rel, err := rows[i].toEntity()
		if err != nil {
			return nil, err
		}
		result = append(result, rel)
	}
	return result, nil
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok || s == "" {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
