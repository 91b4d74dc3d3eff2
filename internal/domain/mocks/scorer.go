package mocks

import (
	"context"
	"sync/atomic"

	"github.com/ersonp/relgraph/internal/domain/entities"
	"github.com/ersonp/relgraph/internal/domain/ports"
)

// Scorer is a mock implementation of ports.Scorer.
type Scorer struct {
	Result *ports.Score
	Err    error
	// Block makes Score wait for ctx to be done, to exercise timeouts.
	Block bool

	// Call tracking
	CallCount atomic.Int32
	LastCtx   ports.ScoreContext
}

// Score returns the configured score or error.
func (m *Scorer) Score(ctx context.Context, rel *entities.Relationship, sc ports.ScoreContext) (*ports.Score, error) {
	m.CallCount.Add(1)
	m.LastCtx = sc
	if m.Block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Result, nil
}
