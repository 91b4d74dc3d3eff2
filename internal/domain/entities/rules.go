package entities

import (
	"fmt"
	"math"
)

// Rule identifiers reported in violations.
const (
	RuleStructure          = "structure"
	RuleSelfReference      = "self_reference"
	RuleTemporalOrder      = "temporal_order"
	RuleAllowedTypes       = "allowed_relationship_types"
	RulePreventCycles      = "prevent_cycles"
	RuleMaxDepth           = "max_depth"
	RuleBusinessConstraint = "business_constraint"
)

// Violation is one failed rule.
type Violation struct {
	Rule string `json:"rule"`
	// Name identifies the business constraint that failed, if any.
	Name    string `json:"name,omitempty"`
	Message string `json:"message"`
}

// ValidationResult is the outcome of validating a candidate record.
type ValidationResult struct {
	Valid      bool        `json:"valid"`
	Violations []Violation `json:"violations,omitempty"`
}

// Add records a violation and marks the result invalid.
func (r *ValidationResult) Add(rule, format string, args ...any) {
	r.Valid = false
	r.Violations = append(r.Violations, Violation{Rule: rule, Message: fmt.Sprintf(format, args...)})
}

// Err returns a *ValidationError when the result is invalid.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return &ValidationError{Violations: r.Violations}
}

// Constraint is one declarative business predicate.
type Constraint struct {
	Name       string
	Field      string
	Operator   string
	Value      Value
	HasValue   bool
	Ref        string
	Expression string
	JQ         string
	Message    string
}

// ValidationRules are the write-time rules carried by a record's
// validation_rules payload, merged with its type policy.
type ValidationRules struct {
	PreventCycles      bool
	MaxDepth           int
	AllowedTypes       []string
	HasAllowList       bool
	AllowSelfReference bool
	Constraints        []Constraint
}

// ParseValidationRules reads the rules out of a validation_rules payload.
// Unknown keys are ignored; known keys of the wrong shape are malformed.
func ParseValidationRules(doc Value) (ValidationRules, error) {
	var rules ValidationRules
	if doc.IsNull() {
		return rules, nil
	}
	if doc.Kind() != KindObject {
		return rules, Malformed("validation_rules", "must be an object, got %s", doc.Kind())
	}

	if v, ok := doc.Get("prevent_cycles"); ok && !v.IsNull() {
		b, isBool := v.AsBool()
		if !isBool {
			return rules, Malformed("validation_rules.prevent_cycles", "must be a boolean")
		}
		rules.PreventCycles = b
	}
	if v, ok := doc.Get("allow_self_reference"); ok && !v.IsNull() {
		b, isBool := v.AsBool()
		if !isBool {
			return rules, Malformed("validation_rules.allow_self_reference", "must be a boolean")
		}
		rules.AllowSelfReference = b
	}
	if v, ok := doc.Get("max_depth"); ok && !v.IsNull() {
		n, isNum := v.AsNumber()
		if !isNum || n != math.Trunc(n) || n < 1 {
			return rules, Malformed("validation_rules.max_depth", "must be a positive integer")
		}
		rules.MaxDepth = int(n)
	}
	if v, ok := doc.Get("allowed_relationship_types"); ok && !v.IsNull() {
		if v.Kind() != KindArray {
			return rules, Malformed("validation_rules.allowed_relationship_types", "must be a list of strings")
		}
		rules.HasAllowList = true
		for _, item := range v.Items() {
			s, isStr := item.AsString()
			if !isStr {
				return rules, Malformed("validation_rules.allowed_relationship_types", "must be a list of strings")
			}
			rules.AllowedTypes = append(rules.AllowedTypes, s)
		}
	}
	if v, ok := doc.Get("business_constraints"); ok && !v.IsNull() {
		if v.Kind() != KindArray {
			return rules, Malformed("validation_rules.business_constraints", "must be a list")
		}
		for i, item := range v.Items() {
			c, err := parseConstraint(i, item)
			if err != nil {
				return rules, err
			}
			rules.Constraints = append(rules.Constraints, c)
		}
	}
	return rules, nil
}

func parseConstraint(i int, item Value) (Constraint, error) {
	field := fmt.Sprintf("validation_rules.business_constraints[%d]", i)
	var c Constraint
	switch item.Kind() {
	case KindString:
		c.Expression, _ = item.AsString()
		c.Name = c.Expression
		return c, nil
	case KindObject:
	default:
		return c, Malformed(field, "must be an object or an expression string")
	}

	str := func(key string) string {
		v, _ := item.Get(key)
		s, _ := v.AsString()
		return s
	}
	c.Name = str("name")
	c.Field = str("field")
	c.Operator = str("operator")
	c.Ref = str("ref")
	c.Expression = str("expression")
	c.JQ = str("jq")
	c.Message = str("message")
	if v, ok := item.Get("value"); ok {
		c.Value = v
		c.HasValue = true
	}

	switch {
	case c.JQ != "", c.Expression != "":
	case c.Field != "" && c.Operator != "":
	default:
		return c, Malformed(field, "needs field and operator, an expression, or a jq program")
	}
	if c.Name == "" {
		c.Name = fmt.Sprintf("constraint_%d", i+1)
	}
	return c, nil
}
