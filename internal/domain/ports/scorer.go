package ports

import (
	"context"

	"github.com/ersonp/relgraph/internal/domain/entities"
)

// ScoreContext is graph information handed to a scorer alongside the record.
type ScoreContext struct {
	Tier entities.Tier
	// FromDegree and ToDegree count active edges already touching each endpoint.
	FromDegree int
	ToDegree   int
}

// Score is the output of a scorer, stored verbatim on the record.
type Score struct {
	Confidence     float64        `json:"confidence"`
	Insights       entities.Value `json:"insights"`
	Classification string         `json:"classification"`
}

// Scorer computes a confidence, insights and a classification for a
// relationship. Implementations must honor ctx cancellation.
type Scorer interface {
	Score(ctx context.Context, rel *entities.Relationship, sc ScoreContext) (*Score, error)
}
