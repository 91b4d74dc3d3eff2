package ports

import (
	"context"
	"time"

	"github.com/ersonp/relgraph/internal/domain/entities"
)

// EdgeQuery selects the edges touching a set of entities, for graph walks.
type EdgeQuery struct {
	// EntityIDs matches edges whose from or to endpoint is listed.
	EntityIDs []string
	// Types restricts relationship_type when non-empty.
	Types []string
	// ActiveOnly drops soft-deleted edges.
	ActiveOnly bool
	// ValidAt keeps only edges inside their validity window at that instant.
	ValidAt *time.Time
	// ExcludeID leaves one record out, e.g. the record being updated.
	ExcludeID string
}

// GraphReader is read access to the relationships of one tenant.
// Lookups never cross organizations.
type GraphReader interface {
	// FindRelationship finds a relationship by ID. Returns nil if not found.
	FindRelationship(ctx context.Context, orgID, id string) (*entities.Relationship, error)

	// FindEdges returns edges touching any of the given entities.
	FindEdges(ctx context.Context, orgID string, q EdgeQuery) ([]*entities.Relationship, error)

	// QueryRelationships returns one page of records matching the filters.
	QueryRelationships(ctx context.Context, orgID string, f entities.Filters) ([]*entities.Relationship, error)

	// CountRelationships counts records matching the filters, ignoring paging.
	CountRelationships(ctx context.Context, orgID string, f entities.Filters) (int, error)
}

// RelationshipTx is a unit of work: reads see the transaction's own writes.
type RelationshipTx interface {
	GraphReader

	// InsertRelationship stores a new record.
	InsertRelationship(ctx context.Context, rel *entities.Relationship) error

	// UpdateRelationship writes rel if the stored version still equals
	// expectedVersion. Returns false when the guard did not match.
	UpdateRelationship(ctx context.Context, rel *entities.Relationship, expectedVersion int64) (bool, error)

	// LogAction appends an audit entry.
	LogAction(ctx context.Context, entry *entities.AuditEntry) error
}

// RelationalDB defines the interface for the relationship store.
type RelationalDB interface {
	GraphReader

	// EnsureSchema creates the database schema if it doesn't exist.
	EnsureSchema(ctx context.Context) error

	// Close closes the database connection.
	Close() error

	// WithTx runs fn in a transaction, committing when fn returns nil.
	WithTx(ctx context.Context, fn func(tx RelationshipTx) error) error

	// SaveRelationshipType saves or updates a registered relationship type.
	SaveRelationshipType(ctx context.Context, t *entities.RelationshipType) error

	// FindRelationshipType finds a registered type. Returns nil if not found.
	FindRelationshipType(ctx context.Context, orgID, name string) (*entities.RelationshipType, error)

	// ListRelationshipTypes lists the registered types of a tenant.
	ListRelationshipTypes(ctx context.Context, orgID string) ([]entities.RelationshipType, error)

	// DeleteRelationshipType deletes a registered type.
	DeleteRelationshipType(ctx context.Context, orgID, name string) error

	// FindAuditLog finds audit entries for one relationship, oldest first.
	FindAuditLog(ctx context.Context, orgID, relationshipID string) ([]entities.AuditEntry, error)

	// FindAuditLogByAction finds the latest audit entries of an action.
	FindAuditLogByAction(ctx context.Context, orgID, action string, limit int) ([]entities.AuditEntry, error)
}
