package ports

import "context"

// IndexDocument is the searchable projection of a relationship.
type IndexDocument struct {
	ID               string
	OrganizationID   string
	RelationshipType string
	Text             string
	Embedding        []float32
}

// SearchHit is one similarity match.
type SearchHit struct {
	ID    string
	Score float32
}

// VectorDB defines the interface for vector database operations.
type VectorDB interface {
	// Save stores a document with its embedding, replacing any previous one.
	Save(ctx context.Context, doc IndexDocument) error

	// Search returns the closest documents of one organization.
	Search(ctx context.Context, orgID string, embedding []float32, limit int) ([]SearchHit, error)

	// Delete removes a document by its ID.
	Delete(ctx context.Context, id string) error
}
