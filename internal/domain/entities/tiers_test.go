package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTierPolicy_TierOf(t *testing.T) {
	p := DefaultTierPolicy()

	tests := []struct {
		strength float64
		want     Tier
	}{
		{0, TierWeak},
		{0.3399, TierWeak},
		{0.34, TierMedium},
		{0.66, TierMedium},
		{0.67, TierStrong},
		{0.8999, TierStrong},
		{0.9, TierCritical},
		{1, TierCritical},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, p.TierOf(tt.strength), "strength %v", tt.strength)
	}
}

func TestTierPolicy_BandsAgreeWithTierOf(t *testing.T) {
	p := DefaultTierPolicy()

	for _, s := range []float64{0, 0.2, 0.34, 0.5, 0.67, 0.75, 0.9, 0.95, 1} {
		tier := p.TierOf(s)
		for _, other := range AllTiers {
			assert.Equal(t, other == tier, p.Band(other).Contains(s), "strength %v tier %s", s, other)
		}
	}
}

func TestTierPolicy_Validate(t *testing.T) {
	assert.NoError(t, DefaultTierPolicy().Validate())
	assert.Error(t, TierPolicy{Medium: 0.5, Strong: 0.4, Critical: 0.9}.Validate())
	assert.Error(t, TierPolicy{Medium: 0, Strong: 0.4, Critical: 0.9}.Validate())
	assert.Error(t, TierPolicy{Medium: 0.2, Strong: 0.4, Critical: 1.1}.Validate())
}

func TestParseTier(t *testing.T) {
	tier, err := ParseTier(" Strong ")
	require.NoError(t, err)
	assert.Equal(t, TierStrong, tier)

	_, err = ParseTier("extreme")
	assert.Error(t, err)
}
