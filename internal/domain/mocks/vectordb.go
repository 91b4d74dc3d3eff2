package mocks

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/ersonp/relgraph/internal/domain/ports"
)

// VectorDB is an in-memory implementation of ports.VectorDB ranking
// documents by cosine similarity.
type VectorDB struct {
	mu   sync.Mutex
	Docs map[string]ports.IndexDocument
	Err  error

	// Call tracking
	SaveCallCount   int
	DeleteCallCount int
	SearchCallCount int
}

// NewVectorDB creates a new mock VectorDB.
func NewVectorDB() *VectorDB {
	return &VectorDB{Docs: make(map[string]ports.IndexDocument)}
}

// Save stores a document, replacing any previous one.
func (m *VectorDB) Save(ctx context.Context, doc ports.IndexDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveCallCount++
	if m.Err != nil {
		return m.Err
	}
	m.Docs[doc.ID] = doc
	return nil
}

// Search returns the closest documents of one organization.
func (m *VectorDB) Search(ctx context.Context, orgID string, embedding []float32, limit int) ([]ports.SearchHit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SearchCallCount++
	if m.Err != nil {
		return nil, m.Err
	}
	var hits []ports.SearchHit
	for _, doc := range m.Docs {
		if doc.OrganizationID != orgID {
			continue
		}
		hits = append(hits, ports.SearchHit{ID: doc.ID, Score: cosine(embedding, doc.Embedding)})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if limit > 0 && limit < len(hits) {
		hits = hits[:limit]
	}
	return hits, nil
}

// Delete removes a document by its ID.
func (m *VectorDB) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteCallCount++
	if m.Err != nil {
		return m.Err
	}
	delete(m.Docs, id)
	return nil
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
