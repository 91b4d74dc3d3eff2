package mocks

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/ersonp/relgraph/internal/domain/entities"
	"github.com/ersonp/relgraph/internal/domain/ports"
)

// RelationalDB is an in-memory implementation of ports.RelationalDB.
// Transactions are serialized and work on a private copy of the records,
// which replaces the shared state only when fn succeeds.
type RelationalDB struct {
	mu   sync.Mutex
	txMu sync.Mutex

	rels  map[string]*entities.Relationship
	types map[string]*entities.RelationshipType
	audit []entities.AuditEntry

	Err error

	// BeforeCommit runs inside a transaction after fn succeeded, before the
	// writes become visible.
	BeforeCommit func()

	// Call tracking
	TxCount     int
	CommitCount int
}

// NewRelationalDB creates a new mock RelationalDB.
func NewRelationalDB() *RelationalDB {
	return &RelationalDB{
		rels:  make(map[string]*entities.Relationship),
		types: make(map[string]*entities.RelationshipType),
	}
}

// Put stores a record directly, bypassing validation. Useful to seed a graph.
func (m *RelationalDB) Put(rel *entities.Relationship) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rels[rel.ID] = rel.Clone()
}

// Len returns the number of stored records across all tenants.
func (m *RelationalDB) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rels)
}

// EnsureSchema creates the database schema if it doesn't exist.
func (m *RelationalDB) EnsureSchema(_ context.Context) error {
	return m.Err
}

// Close closes the database connection.
func (m *RelationalDB) Close() error {
	return nil
}

// WithTx runs fn against a copy of the records and commits on success.
func (m *RelationalDB) WithTx(ctx context.Context, fn func(tx ports.RelationshipTx) error) error {
	if m.Err != nil {
		return m.Err
	}
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	m.TxCount++
	tx := &memTx{
		db:   m,
		rels: make(map[string]*entities.Relationship, len(m.rels)),
	}
	for id, rel := range m.rels {
		tx.rels[id] = rel.Clone()
	}
	m.mu.Unlock()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.BeforeCommit != nil {
		m.BeforeCommit()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.rels = tx.rels
	for _, entry := range tx.audit {
		entry.ID = int64(len(m.audit) + 1)
		m.audit = append(m.audit, entry)
	}
	m.CommitCount++
	return nil
}

// FindRelationship finds a relationship by ID. Returns nil if not found.
func (m *RelationalDB) FindRelationship(_ context.Context, orgID, id string) (*entities.Relationship, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return findRelationship(m.rels, orgID, id), nil
}

// FindEdges returns edges touching any of the given entities.
func (m *RelationalDB) FindEdges(_ context.Context, orgID string, q ports.EdgeQuery) ([]*entities.Relationship, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return findEdges(m.rels, orgID, q), nil
}

// QueryRelationships returns one page of records matching the filters.
func (m *RelationalDB) QueryRelationships(_ context.Context, orgID string, f entities.Filters) ([]*entities.Relationship, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return queryRelationships(m.rels, orgID, f), nil
}

// CountRelationships counts records matching the filters, ignoring paging.
func (m *RelationalDB) CountRelationships(_ context.Context, orgID string, f entities.Filters) (int, error) {
	if m.Err != nil {
		return 0, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	f.Limit, f.Offset = 0, 0
	return len(queryRelationships(m.rels, orgID, f)), nil
}

// Relationship type methods.

// SaveRelationshipType saves or updates a registered relationship type.
func (m *RelationalDB) SaveRelationshipType(_ context.Context, t *entities.RelationshipType) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *t
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	m.types[typeKey(t.OrganizationID, t.Name)] = &c
	return nil
}

// FindRelationshipType finds a registered type. Returns nil if not found.
func (m *RelationalDB) FindRelationshipType(_ context.Context, orgID, name string) (*entities.RelationshipType, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.types[typeKey(orgID, name)]
	if !ok {
		return nil, nil
	}
	c := *t
	return &c, nil
}

// ListRelationshipTypes lists the registered types of a tenant.
func (m *RelationalDB) ListRelationshipTypes(_ context.Context, orgID string) ([]entities.RelationshipType, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]entities.RelationshipType, 0)
	for _, t := range m.types {
		if t.OrganizationID == orgID {
			result = append(result, *t)
		}
	}
	// Sort by name for deterministic test results
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result, nil
}

// DeleteRelationshipType deletes a registered type.
func (m *RelationalDB) DeleteRelationshipType(_ context.Context, orgID, name string) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.types, typeKey(orgID, name))
	return nil
}

// Audit log methods.

// FindAuditLog finds audit entries for one relationship, oldest first.
func (m *RelationalDB) FindAuditLog(_ context.Context, orgID, relationshipID string) ([]entities.AuditEntry, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []entities.AuditEntry
	for _, e := range m.audit {
		if e.OrganizationID == orgID && e.RelationshipID == relationshipID {
			result = append(result, e)
		}
	}
	return result, nil
}

// FindAuditLogByAction finds the latest audit entries of an action.
func (m *RelationalDB) FindAuditLogByAction(_ context.Context, orgID, action string, limit int) ([]entities.AuditEntry, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []entities.AuditEntry
	for i := len(m.audit) - 1; i >= 0; i-- {
		e := m.audit[i]
		if e.OrganizationID != orgID || e.Action != action {
			continue
		}
		result = append(result, e)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

// memTx is the transaction handed to WithTx callbacks.
type memTx struct {
	db    *RelationalDB
	rels  map[string]*entities.Relationship
	audit []entities.AuditEntry
}

func (tx *memTx) FindRelationship(_ context.Context, orgID, id string) (*entities.Relationship, error) {
	return findRelationship(tx.rels, orgID, id), nil
}

func (tx *memTx) FindEdges(_ context.Context, orgID string, q ports.EdgeQuery) ([]*entities.Relationship, error) {
	return findEdges(tx.rels, orgID, q), nil
}

func (tx *memTx) QueryRelationships(_ context.Context, orgID string, f entities.Filters) ([]*entities.Relationship, error) {
	return queryRelationships(tx.rels, orgID, f), nil
}

func (tx *memTx) CountRelationships(_ context.Context, orgID string, f entities.Filters) (int, error) {
	f.Limit, f.Offset = 0, 0
	return len(queryRelationships(tx.rels, orgID, f)), nil
}

func (tx *memTx) InsertRelationship(_ context.Context, rel *entities.Relationship) error {
	if _, exists := tx.rels[rel.ID]; exists {
		return &entities.StorageError{Op: "insert relationship", Err: errDuplicateID}
	}
	tx.rels[rel.ID] = rel.Clone()
	return nil
}

func (tx *memTx) UpdateRelationship(_ context.Context, rel *entities.Relationship, expectedVersion int64) (bool, error) {
	stored, ok := tx.rels[rel.ID]
	if !ok || stored.OrganizationID != rel.OrganizationID || stored.Version != expectedVersion {
		return false, nil
	}
	tx.rels[rel.ID] = rel.Clone()
	return true, nil
}

func (tx *memTx) LogAction(_ context.Context, entry *entities.AuditEntry) error {
	e := *entry
	if e.Details != nil {
		e.Details = maps.Clone(e.Details)
	}
	tx.audit = append(tx.audit, e)
	return nil
}

type mockError string

func (e mockError) Error() string { return string(e) }

const errDuplicateID = mockError("duplicate relationship id")

func typeKey(orgID, name string) string {
	return orgID + "\x00" + name
}

func findRelationship(rels map[string]*entities.Relationship, orgID, id string) *entities.Relationship {
	rel, ok := rels[id]
	if !ok || rel.OrganizationID != orgID {
		return nil
	}
	return rel.Clone()
}

func findEdges(rels map[string]*entities.Relationship, orgID string, q ports.EdgeQuery) []*entities.Relationship {
	var result []*entities.Relationship
	for _, rel := range rels {
		if rel.OrganizationID != orgID || rel.ID == q.ExcludeID {
			continue
		}
		if !slices.Contains(q.EntityIDs, rel.FromEntityID) && !slices.Contains(q.EntityIDs, rel.ToEntityID) {
			continue
		}
		if len(q.Types) > 0 && !slices.Contains(q.Types, rel.RelationshipType) {
			continue
		}
		if q.ActiveOnly && !rel.IsActive {
			continue
		}
		if q.ValidAt != nil {
			if rel.ExpiresAt != nil && !rel.ExpiresAt.After(*q.ValidAt) {
				continue
			}
			if rel.EffectiveAt != nil && rel.EffectiveAt.After(*q.ValidAt) {
				continue
			}
		}
		result = append(result, rel.Clone())
	}
	sortByCreation(result)
	return result
}

func queryRelationships(rels map[string]*entities.Relationship, orgID string, f entities.Filters) []*entities.Relationship {
	var result []*entities.Relationship
	for _, rel := range rels {
		if rel.OrganizationID == orgID && f.Matches(rel) {
			result = append(result, rel.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return f.Less(result[i], result[j])
	})
	if f.Offset >= len(result) {
		return []*entities.Relationship{}
	}
	result = result[f.Offset:]
	if f.Limit > 0 && f.Limit < len(result) {
		result = result[:f.Limit]
	}
	return result
}

func sortByCreation(rels []*entities.Relationship) {
	sort.Slice(rels, func(i, j int) bool {
		if c := rels[i].CreatedAt.Compare(rels[j].CreatedAt); c != 0 {
			return c < 0
		}
		return rels[i].ID < rels[j].ID
	})
}
