package services

import (
	"context"
	"fmt"
	"slices"

	"github.com/ersonp/relgraph/internal/domain/entities"
)

// DefaultValidationMaxDepth bounds cycle searches when neither the record nor
// its type sets max_depth.
const DefaultValidationMaxDepth = 10

// Validator evaluates write-time rules for a candidate record. It never
// writes to the graph.
type Validator struct {
	defaultMaxDepth int
	constraints     constraintEvaluator
}

// NewValidator creates a Validator. A non-positive defaultMaxDepth falls back
// to DefaultValidationMaxDepth.
func NewValidator(defaultMaxDepth int) *Validator {
	if defaultMaxDepth <= 0 {
		defaultMaxDepth = DefaultValidationMaxDepth
	}
	return &Validator{defaultMaxDepth: defaultMaxDepth}
}

// Validate checks candidate against the rules of its type policy overlaid by
// its own validation_rules, reading the existing graph through view.
// A malformed validation_rules payload is returned as an error; rule
// failures are reported in the result.
func (v *Validator) Validate(
	ctx context.Context,
	candidate *entities.Relationship,
	typePolicy entities.ValidationRules,
	view GraphView,
) (entities.ValidationResult, error) {
	result := entities.ValidationResult{Valid: true}

	if err := candidate.CheckStructure(); err != nil {
		result.Add(entities.RuleStructure, "%v", err)
		return result, nil
	}

	recordRules, err := entities.ParseValidationRules(candidate.ValidationRules)
	if err != nil {
		return result, err
	}
	rules := typePolicy.Merge(recordRules)
	maxDepth := rules.MaxDepth
	if maxDepth <= 0 {
		maxDepth = v.defaultMaxDepth
	}

	if candidate.FromEntityID == candidate.ToEntityID {
		switch {
		case !rules.AllowSelfReference:
			result.Add(entities.RuleSelfReference,
				"from_entity_id equals to_entity_id and %s does not allow self reference", candidate.RelationshipType)
		case rules.PreventCycles && candidate.IsActive:
			result.Add(entities.RulePreventCycles, "a self reference is a cycle of %s", candidate.RelationshipType)
		}
	}
	checkTemporalOrder(candidate, &result)
	if rules.HasAllowList && !slices.Contains(rules.AllowedTypes, candidate.RelationshipType) {
		result.Add(entities.RuleAllowedTypes, "%s is not one of %v", candidate.RelationshipType, rules.AllowedTypes)
	}
	if !result.Valid {
		return result, nil
	}

	if rules.PreventCycles && candidate.IsActive && candidate.FromEntityID != candidate.ToEntityID {
		if err := v.checkCycle(ctx, candidate, maxDepth, view, &result); err != nil {
			return result, err
		}
		if !result.Valid {
			return result, nil
		}
	}

	if len(rules.Constraints) > 0 {
		doc := candidate.Document()
		for _, c := range rules.Constraints {
			msg, err := v.constraints.check(ctx, c, doc)
			if err != nil {
				return result, err
			}
			if msg != "" {
				result.Valid = false
				result.Violations = append(result.Violations, entities.Violation{
					Rule:    entities.RuleBusinessConstraint,
					Name:    c.Name,
					Message: msg,
				})
				break
			}
		}
	}
	return result, nil
}

// checkCycle searches breadth-first from the entity the candidate leads to,
// looking for a walk back to the entity it leaves. Only edges of the
// candidate's type are followed.
func (v *Validator) checkCycle(
	ctx context.Context,
	candidate *entities.Relationship,
	maxDepth int,
	view GraphView,
	result *entities.ValidationResult,
) error {
	if candidate.Direction == entities.DirectionBidirectional {
		result.Add(entities.RulePreventCycles,
			"a bidirectional %s edge between %s and %s is a cycle",
			candidate.RelationshipType, candidate.FromEntityID, candidate.ToEntityID)
		return nil
	}

	tail, head := candidate.FromEntityID, candidate.ToEntityID
	if candidate.Direction == entities.DirectionReverse {
		tail, head = head, tail
	}

	types := []string{candidate.RelationshipType}
	visited := map[string]bool{head: true}
	frontier := []string{head}

	for depth := 1; len(frontier) > 0; depth++ {
		edges, err := view.Edges(ctx, frontier, types)
		if err != nil {
			return fmt.Errorf("searching for cycles: %w", err)
		}

		adj := adjacency(edges)
		next := make([]string, 0, len(edges))
		for _, node := range frontier {
			for _, edge := range adj[node] {
				neighbor, ok := edge.Neighbor(node)
				if !ok || visited[neighbor] {
					continue
				}
				if depth > maxDepth {
					result.Add(entities.RuleMaxDepth,
						"cycle search for %s exceeded max_depth %d", candidate.RelationshipType, maxDepth)
					return nil
				}
				if neighbor == tail {
					result.Add(entities.RulePreventCycles,
						"%s already reaches %s through %s within %d hops",
						head, tail, candidate.RelationshipType, depth)
					return nil
				}
				visited[neighbor] = true
				next = append(next, neighbor)
			}
		}
		frontier = next
	}
	return nil
}

func checkTemporalOrder(r *entities.Relationship, result *entities.ValidationResult) {
	if r.EffectiveAt != nil && r.ExpiresAt != nil && !r.ExpiresAt.After(*r.EffectiveAt) {
		result.Add(entities.RuleTemporalOrder, "expires_at %s is not after effective_at %s",
			r.ExpiresAt.Format(entities.TimestampLayout), r.EffectiveAt.Format(entities.TimestampLayout))
	}
}
