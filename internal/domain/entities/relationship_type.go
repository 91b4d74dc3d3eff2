package entities

import "time"

// RelationshipType is a tenant-registered relationship tag with the
// validation policy every record of that type inherits.
type RelationshipType struct {
	OrganizationID     string    `json:"organization_id" yaml:"organization_id"`
	Name               string    `json:"name" yaml:"name"`
	Description        string    `json:"description" yaml:"description"`
	Hierarchical       bool      `json:"hierarchical" yaml:"hierarchical"`
	AllowSelfReference bool      `json:"allow_self_reference" yaml:"allow_self_reference"`
	MaxDepth           int       `json:"max_depth,omitempty" yaml:"max_depth,omitempty"`
	CreatedAt          time.Time `json:"created_at" yaml:"-"`
}

// Policy converts the type into the rules it implies.
func (t *RelationshipType) Policy() ValidationRules {
	if t == nil {
		return ValidationRules{}
	}
	return ValidationRules{
		PreventCycles:      t.Hierarchical,
		MaxDepth:           t.MaxDepth,
		AllowSelfReference: t.AllowSelfReference,
	}
}

// Merge overlays record-level rules onto a type policy. Booleans are OR-ed,
// an explicit record max_depth wins, and constraints come from the record.
func (p ValidationRules) Merge(record ValidationRules) ValidationRules {
	out := p
	out.PreventCycles = p.PreventCycles || record.PreventCycles
	out.AllowSelfReference = p.AllowSelfReference || record.AllowSelfReference
	if record.MaxDepth > 0 {
		out.MaxDepth = record.MaxDepth
	}
	if record.HasAllowList {
		out.HasAllowList = true
		out.AllowedTypes = record.AllowedTypes
	}
	out.Constraints = append(append([]Constraint(nil), p.Constraints...), record.Constraints...)
	return out
}
