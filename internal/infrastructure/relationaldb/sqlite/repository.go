// Package sqlite provides a SQLite implementation of the RelationalDB interface.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ersonp/relgraph/internal/domain/entities"
	"github.com/ersonp/relgraph/internal/domain/ports"
	"github.com/ersonp/relgraph/internal/infrastructure/config"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// timeNow returns the current time (can be mocked in tests).
var timeNow = time.Now

const defaultBusyTimeout = 5000

// Repository implements ports.RelationalDB using SQLite.
type Repository struct {
	store
	db   *sqlx.DB
	path string
}

var _ ports.RelationalDB = (*Repository)(nil)

// NewRepository opens the database at cfg.Path. Writers take the database
// lock when their transaction begins, so concurrent writers queue on
// busy_timeout instead of failing mid-transaction.
func NewRepository(cfg config.SQLiteConfig) (*Repository, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlite path is required")
	}

	busy := cfg.BusyTimeoutMS
	if busy <= 0 {
		busy = defaultBusyTimeout
	}

	memory := cfg.Path == ":memory:" || strings.Contains(cfg.Path, "mode=memory")
	dsn := cfg.Path
	if !memory {
		params := url.Values{}
		params.Add("_txlock", "immediate")
		params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy))
		params.Add("_pragma", "journal_mode(WAL)")
		params.Add("_pragma", "foreign_keys(1)")
		if !strings.HasPrefix(dsn, "file:") {
			dsn = "file:" + dsn
		}
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + params.Encode()
	}

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	if memory {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
		if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy)); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting busy timeout: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to sqlite database: %w", err)
	}

	return &Repository{
		store: store{q: db},
		db:    db,
		path:  cfg.Path,
	}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Ping checks the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return storageErr("ping", err)
	}
	return nil
}

// Path returns the database file path.
func (r *Repository) Path() string {
	return r.path
}

// EnsureSchema creates the database schema if it doesn't exist.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// WithTx runs fn in a transaction. The transaction commits when fn returns
// nil and rolls back otherwise.
func (r *Repository) WithTx(ctx context.Context, fn func(tx ports.RelationshipTx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return storageErr("beginning transaction", err)
	}

	if err := fn(&store{q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return storageErr("committing transaction", err)
	}
	return nil
}

// SaveRelationshipType saves or updates a registered relationship type.
func (r *Repository) SaveRelationshipType(ctx context.Context, t *entities.RelationshipType) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = timeNow().UTC()
	}
	row := relationshipTypeRow{
		OrganizationID:     t.OrganizationID,
		Name:               t.Name,
		Description:        t.Description,
		Hierarchical:       t.Hierarchical,
		AllowSelfReference: t.AllowSelfReference,
		MaxDepth:           t.MaxDepth,
		CreatedAt:          formatTime(t.CreatedAt),
	}
	query := `
		INSERT INTO relationship_types
			(organization_id, name, description, hierarchical, allow_self_reference, max_depth, created_at)
		VALUES
			(:organization_id, :name, :description, :hierarchical, :allow_self_reference, :max_depth, :created_at)
		ON CONFLICT(organization_id, name) DO UPDATE SET
			description = excluded.description,
			hierarchical = excluded.hierarchical,
			allow_self_reference = excluded.allow_self_reference,
			max_depth = excluded.max_depth
	`
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return storageErr("saving relationship type", err)
	}
	return nil
}

// FindRelationshipType finds a registered type. Returns nil if not found.
func (r *Repository) FindRelationshipType(ctx context.Context, orgID, name string) (*entities.RelationshipType, error) {
	var row relationshipTypeRow
	query := `SELECT * FROM relationship_types WHERE organization_id = ? AND name = ?`
	err := r.db.GetContext(ctx, &row, query, orgID, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("finding relationship type", err)
	}
	t, err := row.toEntity()
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListRelationshipTypes lists the registered types of a tenant ordered by name.
func (r *Repository) ListRelationshipTypes(ctx context.Context, orgID string) ([]entities.RelationshipType, error) {
	var rows []relationshipTypeRow
	query := `SELECT * FROM relationship_types WHERE organization_id = ? ORDER BY name`
	if err := r.db.SelectContext(ctx, &rows, query, orgID); err != nil {
		return nil, storageErr("listing relationship types", err)
	}
	types := make([]entities.RelationshipType, 0, len(rows))
	for i := range rows {
		t, err := rows[i].toEntity()
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, nil
}

// DeleteRelationshipType deletes a registered type.
func (r *Repository) DeleteRelationshipType(ctx context.Context, orgID, name string) error {
	query := `DELETE FROM relationship_types WHERE organization_id = ? AND name = ?`
	if _, err := r.db.ExecContext(ctx, query, orgID, name); err != nil {
		return storageErr("deleting relationship type", err)
	}
	return nil
}

// FindAuditLog finds audit entries for one relationship, oldest first.
func (r *Repository) FindAuditLog(ctx context.Context, orgID, relationshipID string) ([]entities.AuditEntry, error) {
	query := `
		SELECT * FROM audit_log
		WHERE organization_id = ? AND relationship_id = ?
		ORDER BY id ASC
	`
	return r.queryAuditLog(ctx, query, orgID, relationshipID)
}

// FindAuditLogByAction finds the latest audit entries of an action.
func (r *Repository) FindAuditLogByAction(ctx context.Context, orgID, action string, limit int) ([]entities.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT * FROM audit_log
		WHERE organization_id = ? AND action = ?
		ORDER BY id DESC
		LIMIT ?
	`
	return r.queryAuditLog(ctx, query, orgID, action, limit)
}

func (r *Repository) queryAuditLog(ctx context.Context, query string, args ...any) ([]entities.AuditEntry, error) {
	var rows []auditRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, storageErr("querying audit log", err)
	}
	entries := make([]entities.AuditEntry, 0, len(rows))
	for i := range rows {
		entry, err := rows[i].toEntity()
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// storageErr marks a driver failure as StorageUnavailable.
func storageErr(op string, err error) error {
	return &entities.StorageError{Op: op, Err: err}
}
