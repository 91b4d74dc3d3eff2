package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ersonp/relgraph/internal/domain/entities"
	"github.com/ersonp/relgraph/internal/domain/ports"
	"go.uber.org/zap"
)

const (
	// DefaultSearchLimit is used when a search does not set a limit.
	DefaultSearchLimit = 10
	// DefaultIndexBatch is the number of records embedded per call when
	// rebuilding the index.
	DefaultIndexBatch = 64
)

// SearchResult is a stored record ranked by similarity.
type SearchResult struct {
	Relationship *entities.Relationship `json:"relationship"`
	Score        float32                `json:"score"`
}

// IndexService mirrors relationships into a vector index and answers
// similarity searches from it. The relational store stays the source of
// truth: hits are resolved against it and stale hits are dropped.
type IndexService struct {
	vectorDB ports.VectorDB
	embedder ports.Embedder
	reader   ports.GraphReader
	logger   *zap.Logger
}

// NewIndexService creates a new IndexService.
func NewIndexService(
	vectorDB ports.VectorDB,
	embedder ports.Embedder,
	reader ports.GraphReader,
	logger *zap.Logger,
) *IndexService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IndexService{
		vectorDB: vectorDB,
		embedder: embedder,
		reader:   reader,
		logger:   logger,
	}
}

// IndexText is the text embedded for a relationship.
func IndexText(rel *entities.Relationship) string {
	parts := []string{
		strings.ReplaceAll(rel.RelationshipType, "_", " "),
		rel.SmartCode,
		rel.FromEntityID + " -> " + rel.ToEntityID,
	}
	if rel.Classification != "" {
		parts = append(parts, rel.Classification)
	}
	if !rel.Data.IsNull() {
		parts = append(parts, rel.Data.String())
	}
	return strings.Join(parts, " | ")
}

// Mirror upserts the record into the index, or removes it once inactive.
func (s *IndexService) Mirror(ctx context.Context, rel *entities.Relationship) error {
	if !rel.IsActive {
		if err := s.vectorDB.Delete(ctx, rel.ID); err != nil {
			return fmt.Errorf("removing %s from index: %w", rel.ID, err)
		}
		return nil
	}

	text := IndexText(rel)
	embedding, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embedding %s: %w", rel.ID, err)
	}
	return s.vectorDB.Save(ctx, ports.IndexDocument{
		ID:               rel.ID,
		OrganizationID:   rel.OrganizationID,
		RelationshipType: rel.RelationshipType,
		Text:             text,
		Embedding:        embedding,
	})
}

// MirrorBatch embeds and upserts several records with one embedding call.
func (s *IndexService) MirrorBatch(ctx context.Context, rels []*entities.Relationship) error {
	active := make([]*entities.Relationship, 0, len(rels))
	texts := make([]string, 0, len(rels))
	for _, rel := range rels {
		if rel.IsActive {
			active = append(active, rel)
			texts = append(texts, IndexText(rel))
		}
	}
	if len(active) == 0 {
		return nil
	}

	embeddings, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding batch: %w", err)
	}
	if len(embeddings) != len(active) {
		return fmt.Errorf("embedding batch: got %d embeddings for %d records", len(embeddings), len(active))
	}

	var errs []error
	for i, rel := range active {
		err := s.vectorDB.Save(ctx, ports.IndexDocument{
			ID:               rel.ID,
			OrganizationID:   rel.OrganizationID,
			RelationshipType: rel.RelationshipType,
			Text:             texts[i],
			Embedding:        embeddings[i],
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("indexing %s: %w", rel.ID, err))
		}
	}
	return errors.Join(errs...)
}

// Search embeds text and returns the closest records of a tenant.
func (s *IndexService) Search(ctx context.Context, orgID, text string, limit int) ([]SearchResult, error) {
	if orgID == "" {
		return nil, entities.Malformed("organization_id", "is required")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, entities.Malformed("text", "is required")
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	embedding, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	hits, err := s.vectorDB.Search(ctx, orgID, embedding, limit)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}

	results := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		rel, err := s.reader.FindRelationship(ctx, orgID, hit.ID)
		if err != nil {
			return nil, err
		}
		if rel == nil || !rel.IsActive {
			s.logger.Debug("dropping stale index hit", zap.String("id", hit.ID))
			continue
		}
		results = append(results, SearchResult{Relationship: rel, Score: hit.Score})
	}
	return results, nil
}
