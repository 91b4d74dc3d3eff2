package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValidationRules(t *testing.T) {
	doc := MustFromAny(map[string]any{
		"prevent_cycles":             true,
		"max_depth":                  4,
		"allowed_relationship_types": []any{"reports_to", "manages"},
		"business_constraints": []any{
			"data.amount > 0",
			map[string]any{"field": "data.region", "operator": "in", "value": []any{"eu"}},
			map[string]any{"name": "contacts", "jq": ".data.contacts | length > 0", "message": "needs contacts"},
		},
		"unknown_key": "ignored",
	})

	rules, err := ParseValidationRules(doc)

	require.NoError(t, err)
	assert.True(t, rules.PreventCycles)
	assert.Equal(t, 4, rules.MaxDepth)
	assert.True(t, rules.HasAllowList)
	assert.Equal(t, []string{"reports_to", "manages"}, rules.AllowedTypes)
	require.Len(t, rules.Constraints, 3)
	assert.Equal(t, "data.amount > 0", rules.Constraints[0].Expression)
	assert.Equal(t, "data.amount > 0", rules.Constraints[0].Name)
	assert.Equal(t, "constraint_2", rules.Constraints[1].Name)
	assert.True(t, rules.Constraints[1].HasValue)
	assert.Equal(t, "contacts", rules.Constraints[2].Name)
	assert.Equal(t, "needs contacts", rules.Constraints[2].Message)
}

func TestParseValidationRules_Empty(t *testing.T) {
	rules, err := ParseValidationRules(Null())

	require.NoError(t, err)
	assert.Equal(t, ValidationRules{}, rules)
}

func TestParseValidationRules_Malformed(t *testing.T) {
	tests := []struct {
		name string
		doc  any
	}{
		{"not an object", []any{1}},
		{"prevent_cycles not bool", map[string]any{"prevent_cycles": "yes"}},
		{"max_depth zero", map[string]any{"max_depth": 0}},
		{"max_depth fractional", map[string]any{"max_depth": 1.5}},
		{"allowed types not a list", map[string]any{"allowed_relationship_types": "reports_to"}},
		{"allowed types not strings", map[string]any{"allowed_relationship_types": []any{1}}},
		{"constraints not a list", map[string]any{"business_constraints": "x > 1"}},
		{"constraint without predicate", map[string]any{"business_constraints": []any{map[string]any{"name": "x"}}}},
		{"constraint of wrong kind", map[string]any{"business_constraints": []any{42}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseValidationRules(MustFromAny(tt.doc))
			assert.ErrorIs(t, err, ErrMalformedRecord)
		})
	}
}

func TestValidationRules_Merge(t *testing.T) {
	policy := ValidationRules{
		PreventCycles: true,
		MaxDepth:      6,
		Constraints:   []Constraint{{Name: "from_type"}},
	}
	record := ValidationRules{
		AllowSelfReference: true,
		MaxDepth:           3,
		HasAllowList:       true,
		AllowedTypes:       []string{"reports_to"},
		Constraints:        []Constraint{{Name: "from_record"}},
	}

	merged := policy.Merge(record)

	assert.True(t, merged.PreventCycles)
	assert.True(t, merged.AllowSelfReference)
	assert.Equal(t, 3, merged.MaxDepth)
	assert.Equal(t, []string{"reports_to"}, merged.AllowedTypes)
	require.Len(t, merged.Constraints, 2)
	assert.Equal(t, "from_type", merged.Constraints[0].Name)
	assert.Equal(t, "from_record", merged.Constraints[1].Name)

	// The record cannot switch off a policy rule.
	assert.True(t, policy.Merge(ValidationRules{}).PreventCycles)
	assert.Len(t, policy.Constraints, 1)
}

func TestRelationshipType_Policy(t *testing.T) {
	var missing *RelationshipType
	assert.Equal(t, ValidationRules{}, missing.Policy())

	typ := &RelationshipType{Name: "reports_to", Hierarchical: true, MaxDepth: 8}
	assert.Equal(t, ValidationRules{PreventCycles: true, MaxDepth: 8}, typ.Policy())
}

func TestValidationResult(t *testing.T) {
	result := ValidationResult{Valid: true}
	assert.NoError(t, result.Err())

	result.Add(RuleMaxDepth, "exceeded %d", 3)
	err := result.Err()

	assert.False(t, result.Valid)
	assert.ErrorIs(t, err, ErrValidationFailure)
	assert.ErrorIs(t, err, ErrDepthExceeded)
	assert.EqualError(t, err, "validation failure: max_depth: exceeded 3")
}
