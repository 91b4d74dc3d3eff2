package entities

import (
	"fmt"
	"strings"
)

// Tier is a named strength band.
type Tier string

const (
	TierWeak     Tier = "weak"
	TierMedium   Tier = "medium"
	TierStrong   Tier = "strong"
	TierCritical Tier = "critical"
)

// AllTiers lists tiers from weakest to strongest.
var AllTiers = []Tier{TierWeak, TierMedium, TierStrong, TierCritical}

// ParseTier parses a tier name.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllTiers {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown strength tier %q", s)
}

// TierPolicy holds the lower bound of every tier above weak. Bounds are
// inclusive below and exclusive above; critical runs up to 1.0 inclusive.
type TierPolicy struct {
	Medium   float64 `yaml:"medium" json:"medium"`
	Strong   float64 `yaml:"strong" json:"strong"`
	Critical float64 `yaml:"critical" json:"critical"`
}

// DefaultTierPolicy returns weak <0.34, medium <0.67, strong <0.9, critical >=0.9.
func DefaultTierPolicy() TierPolicy {
	return TierPolicy{Medium: 0.34, Strong: 0.67, Critical: 0.9}
}

// Validate checks the bounds are strictly ascending inside (0, 1].
func (p TierPolicy) Validate() error {
	if !(0 < p.Medium && p.Medium < p.Strong && p.Strong < p.Critical && p.Critical <= 1) {
		return fmt.Errorf("tier bounds must satisfy 0 < medium < strong < critical <= 1, got %.3f/%.3f/%.3f",
			p.Medium, p.Strong, p.Critical)
	}
	return nil
}

// TierOf classifies a strength.
func (p TierPolicy) TierOf(strength float64) Tier {
	switch {
	case strength >= p.Critical:
		return TierCritical
	case strength >= p.Strong:
		return TierStrong
	case strength >= p.Medium:
		return TierMedium
	}
	return TierWeak
}

// StrengthBand is a half-open strength interval [Min, Max), closed at the
// top when MaxInclusive is set.
type StrengthBand struct {
	Min          float64
	Max          float64
	MaxInclusive bool
}

// Contains reports whether s falls in the band.
func (b StrengthBand) Contains(s float64) bool {
	if s < b.Min {
		return false
	}
	if b.MaxInclusive {
		return s <= b.Max
	}
	return s < b.Max
}

// Band returns the strength interval covered by t.
func (p TierPolicy) Band(t Tier) StrengthBand {
	switch t {
	case TierWeak:
		return StrengthBand{Min: 0, Max: p.Medium}
	case TierMedium:
		return StrengthBand{Min: p.Medium, Max: p.Strong}
	case TierStrong:
		return StrengthBand{Min: p.Strong, Max: p.Critical}
	}
	return StrengthBand{Min: p.Critical, Max: 1, MaxInclusive: true}
}
