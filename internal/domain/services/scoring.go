package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ersonp/relgraph/internal/domain/entities"
	"github.com/ersonp/relgraph/internal/domain/ports"
	"go.uber.org/zap"
)

// DefaultScoringTimeout bounds one scorer call.
const DefaultScoringTimeout = 2 * time.Second

// Scoring outcomes reported to the recorder.
const (
	scoringOK      = "ok"
	scoringTimeout = "timeout"
	scoringError   = "error"
)

// scoringRunner calls the scorer with a deadline. Scoring is best-effort:
// every failure is logged and reported, never returned.
type scoringRunner struct {
	scorer   ports.Scorer
	timeout  time.Duration
	logger   *zap.Logger
	recorder ports.Recorder
}

type scoreOutcome struct {
	score *ports.Score
	err   error
}

// run returns the score, or nil when scoring failed or timed out.
func (r *scoringRunner) run(ctx context.Context, rel *entities.Relationship, sc ports.ScoreContext) *ports.Score {
	if r.scorer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	// The scorer may outlive the deadline, while the caller keeps filling in
	// rel for the insert. It reads a private copy.
	snapshot := rel.Clone()
	done := make(chan scoreOutcome, 1)
	go func() {
		score, err := r.scorer.Score(ctx, snapshot, sc)
		done <- scoreOutcome{score: score, err: err}
	}()

	var out scoreOutcome
	select {
	case out = <-done:
	case <-ctx.Done():
		out.err = ctx.Err()
	}

	if out.err == nil && out.score == nil {
		out.err = errors.New("scorer returned no score")
	}
	if out.err == nil {
		if err := checkScore(out.score); err != nil {
			out.err = err
		}
	}
	if out.err != nil {
		outcome := scoringError
		if errors.Is(out.err, context.DeadlineExceeded) {
			outcome = scoringTimeout
			out.err = fmt.Errorf("%w after %s", entities.ErrScoringTimeout, r.timeout)
		}
		r.recorder.Scoring(outcome)
		r.logger.Warn("scoring skipped",
			zap.String("relationship_type", rel.RelationshipType),
			zap.String("from", rel.FromEntityID),
			zap.String("to", rel.ToEntityID),
			zap.Error(out.err),
		)
		return nil
	}

	r.recorder.Scoring(scoringOK)
	return out.score
}

func checkScore(s *ports.Score) error {
	if math.IsNaN(s.Confidence) || s.Confidence < 0 || s.Confidence > 1 {
		return fmt.Errorf("scorer returned confidence %v outside [0, 1]", s.Confidence)
	}
	return nil
}

// applyScore stores the scorer output verbatim on the record.
func applyScore(rel *entities.Relationship, s *ports.Score) {
	if s == nil {
		return
	}
	confidence := s.Confidence
	rel.Confidence = &confidence
	rel.Insights = s.Insights
	rel.Classification = s.Classification
}
