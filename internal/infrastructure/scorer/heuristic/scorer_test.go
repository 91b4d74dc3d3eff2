package heuristic

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/relgraph/internal/domain/entities"
	"github.com/ersonp/relgraph/internal/domain/ports"
)

func TestScorer_Score(t *testing.T) {
	expires := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name           string
		rel            *entities.Relationship
		sc             ports.ScoreContext
		wantConfidence float64
		wantClass      string
		wantSignals    []string
	}{
		{
			name:           "bare weak edge",
			rel:            &entities.Relationship{Strength: 0.2, Direction: entities.DirectionForward},
			sc:             ports.ScoreContext{Tier: entities.TierWeak},
			wantConfidence: 0.1,
			wantClass:      ClassPeripheral,
			wantSignals:    []string{"no_payload"},
		},
		{
			name: "complete strong edge between hubs",
			rel: &entities.Relationship{
				Strength:        0.8,
				Direction:       entities.DirectionBidirectional,
				ExpiresAt:       &expires,
				Data:            entities.MustFromAny(map[string]any{"terms": "net30"}),
				BusinessRules:   entities.MustFromAny(map[string]any{"approved": true}),
				ValidationRules: entities.MustFromAny(map[string]any{"prevent_cycles": false}),
			},
			sc:             ports.ScoreContext{Tier: entities.TierStrong, FromDegree: 6, ToDegree: 4},
			wantConfidence: 0.9,
			wantClass:      ClassCore,
			wantSignals:    []string{"hub_endpoint", "mutual", "time_bounded"},
		},
		{
			name:           "strong edge with few neighbors",
			rel:            &entities.Relationship{Strength: 0.7, Data: entities.MustFromAny(map[string]any{"a": 1.0})},
			sc:             ports.ScoreContext{Tier: entities.TierStrong, FromDegree: 1},
			wantConfidence: 0.445,
			wantClass:      ClassSignificant,
			wantSignals:    nil,
		},
		{
			name:           "medium edge",
			rel:            &entities.Relationship{Strength: 0.5},
			sc:             ports.ScoreContext{Tier: entities.TierMedium},
			wantConfidence: 0.25,
			wantClass:      ClassRoutine,
			wantSignals:    []string{"no_payload"},
		},
		{
			name:           "critical edge",
			rel:            &entities.Relationship{Strength: 1},
			sc:             ports.ScoreContext{Tier: entities.TierCritical},
			wantConfidence: 0.5,
			wantClass:      ClassCore,
			wantSignals:    []string{"no_payload"},
		},
	}

	s := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, err := s.Score(context.Background(), tt.rel, tt.sc)
			require.NoError(t, err)

			assert.InDelta(t, tt.wantConfidence, score.Confidence, 1e-9)
			assert.Equal(t, tt.wantClass, score.Classification)

			signals, ok := score.Insights.Get("signals")
			require.True(t, ok)
			var got []string
			for _, item := range signals.Items() {
				text, _ := item.AsString()
				got = append(got, text)
			}
			assert.Equal(t, tt.wantSignals, got)

			tier, _ := score.Insights.Get("tier")
			assert.True(t, tier.Equal(entities.String(string(tt.sc.Tier))))
		})
	}
}

func TestScorer_Deterministic(t *testing.T) {
	rel := &entities.Relationship{Strength: 0.6, Data: entities.MustFromAny(map[string]any{"k": "v"})}
	sc := ports.ScoreContext{Tier: entities.TierMedium, FromDegree: 3, ToDegree: 2}

	first, err := New().Score(context.Background(), rel, sc)
	require.NoError(t, err)
	second, err := New().Score(context.Background(), rel, sc)
	require.NoError(t, err)

	assert.Equal(t, first.Confidence, second.Confidence)
	assert.True(t, first.Insights.Equal(second.Insights))
}

func TestScorer_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().Score(ctx, &entities.Relationship{Strength: 1}, ports.ScoreContext{})

	assert.ErrorIs(t, err, context.Canceled)
}
