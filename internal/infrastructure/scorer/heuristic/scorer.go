// Package heuristic provides a deterministic ports.Scorer that needs no
// external service.
package heuristic

import (
	"context"
	"math"

	"github.com/ersonp/relgraph/internal/domain/entities"
	"github.com/ersonp/relgraph/internal/domain/ports"
)

// Classifications produced by the scorer.
const (
	ClassCore        = "core"
	ClassSignificant = "significant"
	ClassRoutine     = "routine"
	ClassPeripheral  = "peripheral"
)

// hubDegree is the combined endpoint degree at which connectivity saturates.
const hubDegree = 10

// Weights of the confidence signals; they sum to 1.
const (
	strengthWeight     = 0.5
	completenessWeight = 0.3
	connectivityWeight = 0.2
)

// Scorer derives confidence and classification from the record's strength
// tier, how much of the record is filled in, and how connected its
// endpoints already are.
type Scorer struct{}

var _ ports.Scorer = (*Scorer)(nil)

// New creates a new heuristic Scorer.
func New() *Scorer {
	return &Scorer{}
}

// Score implements ports.Scorer.
func (s *Scorer) Score(ctx context.Context, rel *entities.Relationship, sc ports.ScoreContext) (*ports.Score, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	completeness := completeness(rel)
	connectivity := math.Min(1, float64(sc.FromDegree+sc.ToDegree)/hubDegree)
	confidence := strengthWeight*rel.Strength + completenessWeight*completeness + connectivityWeight*connectivity
	confidence = math.Round(math.Min(1, math.Max(0, confidence))*1000) / 1000

	var signals []entities.Value
	if connectivity >= 1 {
		signals = append(signals, entities.String("hub_endpoint"))
	}
	if rel.Direction == entities.DirectionBidirectional {
		signals = append(signals, entities.String("mutual"))
	}
	if rel.ExpiresAt != nil {
		signals = append(signals, entities.String("time_bounded"))
	}
	if rel.Data.Len() == 0 {
		signals = append(signals, entities.String("no_payload"))
	}

	return &ports.Score{
		Confidence:     confidence,
		Classification: classify(sc.Tier, connectivity),
		Insights: entities.Object(map[string]entities.Value{
			"tier":         entities.String(string(sc.Tier)),
			"completeness": entities.Number(completeness),
			"connectivity": entities.Number(connectivity),
			"from_degree":  entities.Number(float64(sc.FromDegree)),
			"to_degree":    entities.Number(float64(sc.ToDegree)),
			"signals":      entities.Array(signals...),
		}),
	}, nil
}

// completeness is the share of optional record parts that are filled in.
func completeness(rel *entities.Relationship) float64 {
	parts := []bool{
		rel.Data.Len() > 0,
		!rel.BusinessRules.IsNull(),
		!rel.ValidationRules.IsNull(),
		rel.EffectiveAt != nil || rel.ExpiresAt != nil,
	}
	filled := 0
	for _, ok := range parts {
		if ok {
			filled++
		}
	}
	return float64(filled) / float64(len(parts))
}

func classify(tier entities.Tier, connectivity float64) string {
	switch tier {
	case entities.TierCritical:
		return ClassCore
	case entities.TierStrong:
		if connectivity >= 0.5 {
			return ClassCore
		}
		return ClassSignificant
	case entities.TierMedium:
		return ClassRoutine
	}
	return ClassPeripheral
}
