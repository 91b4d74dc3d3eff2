package entities

import (
	"encoding/json"
	"math"
	"strings"
	"time"
)

// Direction controls which way an edge may be walked.
type Direction string

const (
	DirectionForward       Direction = "forward"
	DirectionReverse       Direction = "reverse"
	DirectionBidirectional Direction = "bidirectional"
)

// IsValid reports whether d is a known direction.
func (d Direction) IsValid() bool {
	switch d {
	case DirectionForward, DirectionReverse, DirectionBidirectional:
		return true
	}
	return false
}

// ParseDirection parses a direction name. Empty means forward.
func ParseDirection(s string) (Direction, error) {
	d := Direction(strings.ToLower(strings.TrimSpace(s)))
	if d == "" {
		return DirectionForward, nil
	}
	if !d.IsValid() {
		return "", Malformed("direction", "unknown direction %q (want forward, reverse or bidirectional)", s)
	}
	return d, nil
}

// maxIDLength bounds identifiers and tags.
const maxIDLength = 255

// TimestampLayout is the textual form accepted for timestamps on every surface.
const TimestampLayout = time.RFC3339Nano

// Relationship is a typed edge between two opaque entities.
type Relationship struct {
	ID               string `json:"id"`
	OrganizationID   string `json:"organization_id"`
	FromEntityID     string `json:"from_entity_id"`
	ToEntityID       string `json:"to_entity_id"`
	RelationshipType string `json:"relationship_type"`
	SmartCode        string `json:"smart_code"`

	Strength    float64    `json:"strength"`
	Direction   Direction  `json:"direction"`
	IsActive    bool       `json:"is_active"`
	EffectiveAt *time.Time `json:"effective_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`

	Data            Value `json:"data"`
	BusinessRules   Value `json:"business_rules"`
	ValidationRules Value `json:"validation_rules"`

	Confidence     *float64 `json:"confidence,omitempty"`
	Insights       Value    `json:"insights"`
	Classification string   `json:"classification,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedBy string    `json:"created_by"`
	UpdatedBy string    `json:"updated_by"`
}

// AIProcessing holds per-request scoring options.
type AIProcessing struct {
	AutoClassify bool `json:"auto_classify" yaml:"auto_classify"`
}

// CreateRequest is the caller-supplied input for a new relationship.
type CreateRequest struct {
	OrganizationID   string `json:"organization_id" yaml:"organization_id"`
	FromEntityID     string `json:"from_entity_id" yaml:"from_entity_id"`
	ToEntityID       string `json:"to_entity_id" yaml:"to_entity_id"`
	RelationshipType string `json:"relationship_type" yaml:"relationship_type"`
	SmartCode        string `json:"smart_code" yaml:"smart_code"`

	Strength    *float64   `json:"strength,omitempty" yaml:"strength,omitempty"`
	Direction   Direction  `json:"direction,omitempty" yaml:"direction,omitempty"`
	IsActive    *bool      `json:"is_active,omitempty" yaml:"is_active,omitempty"`
	EffectiveAt *time.Time `json:"effective_at,omitempty" yaml:"effective_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`

	Data            Value `json:"data" yaml:"data"`
	BusinessRules   Value `json:"business_rules" yaml:"business_rules"`
	ValidationRules Value `json:"validation_rules" yaml:"validation_rules"`

	AIProcessing AIProcessing `json:"ai_processing" yaml:"ai_processing"`
}

// NewRelationship applies defaults to req and rejects structurally invalid
// input. The returned record has no id, version or audit fields yet.
func NewRelationship(req CreateRequest) (*Relationship, error) {
	rel := &Relationship{
		OrganizationID:   strings.TrimSpace(req.OrganizationID),
		FromEntityID:     strings.TrimSpace(req.FromEntityID),
		ToEntityID:       strings.TrimSpace(req.ToEntityID),
		RelationshipType: strings.TrimSpace(req.RelationshipType),
		SmartCode:        strings.TrimSpace(req.SmartCode),
		Strength:         1.0,
		Direction:        DirectionForward,
		IsActive:         true,
		EffectiveAt:      utcPtr(req.EffectiveAt),
		ExpiresAt:        utcPtr(req.ExpiresAt),
		Data:             req.Data,
		BusinessRules:    req.BusinessRules,
		ValidationRules:  req.ValidationRules,
	}
	if req.Strength != nil {
		rel.Strength = *req.Strength
	}
	if req.Direction != "" {
		rel.Direction = req.Direction
	}
	if req.IsActive != nil {
		rel.IsActive = *req.IsActive
	}
	if err := rel.CheckStructure(); err != nil {
		return nil, err
	}
	return rel, nil
}

// CheckStructure verifies required fields and value ranges.
func (r *Relationship) CheckStructure() error {
	required := []struct {
		field string
		value string
	}{
		{"organization_id", r.OrganizationID},
		{"from_entity_id", r.FromEntityID},
		{"to_entity_id", r.ToEntityID},
		{"relationship_type", r.RelationshipType},
		{"smart_code", r.SmartCode},
	}
	for _, f := range required {
		if f.value == "" {
			return Malformed(f.field, "is required")
		}
		if len(f.value) > maxIDLength {
			return Malformed(f.field, "exceeds %d bytes", maxIDLength)
		}
	}
	if math.IsNaN(r.Strength) || r.Strength < 0 || r.Strength > 1 {
		return Malformed("strength", "must be within [0, 1], got %v", r.Strength)
	}
	if !r.Direction.IsValid() {
		return Malformed("direction", "unknown direction %q", r.Direction)
	}
	if r.EffectiveAt != nil && r.EffectiveAt.IsZero() {
		return Malformed("effective_at", "zero timestamp")
	}
	if r.ExpiresAt != nil && r.ExpiresAt.IsZero() {
		return Malformed("expires_at", "zero timestamp")
	}
	if r.Confidence != nil && (math.IsNaN(*r.Confidence) || *r.Confidence < 0 || *r.Confidence > 1) {
		return Malformed("confidence", "must be within [0, 1], got %v", *r.Confidence)
	}
	return nil
}

// CurrentlyValid reports whether the record is active and inside its
// validity window at now.
func (r *Relationship) CurrentlyValid(now time.Time) bool {
	if !r.IsActive {
		return false
	}
	if r.ExpiresAt != nil && !r.ExpiresAt.After(now) {
		return false
	}
	if r.EffectiveAt != nil && r.EffectiveAt.After(now) {
		return false
	}
	return true
}

// Neighbor returns the entity reached by walking the edge from entityID,
// honoring direction. ok is false when the edge cannot be walked from there.
func (r *Relationship) Neighbor(entityID string) (string, bool) {
	switch r.Direction {
	case DirectionForward:
		if r.FromEntityID == entityID {
			return r.ToEntityID, true
		}
	case DirectionReverse:
		if r.ToEntityID == entityID {
			return r.FromEntityID, true
		}
	case DirectionBidirectional:
		if r.FromEntityID == entityID {
			return r.ToEntityID, true
		}
		if r.ToEntityID == entityID {
			return r.FromEntityID, true
		}
	}
	return "", false
}

// Clone returns a copy with its own timestamp and confidence pointers.
// Payload Values are shared, which is safe since Values are never mutated
// once built.
func (r *Relationship) Clone() *Relationship {
	if r == nil {
		return nil
	}
	c := *r
	c.EffectiveAt = copyTime(r.EffectiveAt)
	c.ExpiresAt = copyTime(r.ExpiresAt)
	if r.Confidence != nil {
		v := *r.Confidence
		c.Confidence = &v
	}
	return &c
}

// Document renders the record as a Value object keyed by its JSON field
// names, for path-based rule evaluation.
func (r *Relationship) Document() Value {
	fields := map[string]Value{
		"id":                String(r.ID),
		"organization_id":   String(r.OrganizationID),
		"from_entity_id":    String(r.FromEntityID),
		"to_entity_id":      String(r.ToEntityID),
		"relationship_type": String(r.RelationshipType),
		"smart_code":        String(r.SmartCode),
		"strength":          Number(r.Strength),
		"direction":         String(string(r.Direction)),
		"is_active":         Bool(r.IsActive),
		"effective_at":      timeValue(r.EffectiveAt),
		"expires_at":        timeValue(r.ExpiresAt),
		"data":              r.Data,
		"business_rules":    r.BusinessRules,
		"validation_rules":  r.ValidationRules,
		"insights":          r.Insights,
		"classification":    String(r.Classification),
		"version":           Number(float64(r.Version)),
		"created_by":        String(r.CreatedBy),
		"updated_by":        String(r.UpdatedBy),
	}
	if r.Confidence != nil {
		fields["confidence"] = Number(*r.Confidence)
	} else {
		fields["confidence"] = Null()
	}
	return Value{kind: KindObject, obj: fields}
}

// OptionalTime is a patchable timestamp: Set distinguishes "leave alone"
// from an explicit null that clears the field.
type OptionalTime struct {
	Set   bool
	Value *time.Time
}

// SetTime builds a patch value that sets t.
func SetTime(t time.Time) OptionalTime { return OptionalTime{Set: true, Value: &t} }

// ClearTime builds a patch value that clears the field.
func ClearTime() OptionalTime { return OptionalTime{Set: true} }

// UnmarshalJSON implements json.Unmarshaler.
func (o *OptionalTime) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		o.Value = nil
		return nil
	}
	var t time.Time
	if err := json.Unmarshal(data, &t); err != nil {
		return err
	}
	o.Value = &t
	return nil
}

// MarshalJSON implements json.Marshaler.
func (o OptionalTime) MarshalJSON() ([]byte, error) {
	if o.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

// Patch lists the mutable fields an update touches. Nil fields are left alone.
type Patch struct {
	Strength        *float64     `json:"strength,omitempty"`
	Direction       *Direction   `json:"direction,omitempty"`
	IsActive        *bool        `json:"is_active,omitempty"`
	EffectiveAt     OptionalTime `json:"effective_at"`
	ExpiresAt       OptionalTime `json:"expires_at"`
	Data            *Value       `json:"data,omitempty"`
	BusinessRules   *Value       `json:"business_rules,omitempty"`
	ValidationRules *Value       `json:"validation_rules,omitempty"`
	Confidence      *float64     `json:"confidence,omitempty"`
	Insights        *Value       `json:"insights,omitempty"`
	Classification  *string      `json:"classification,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Strength == nil && p.Direction == nil && p.IsActive == nil &&
		!p.EffectiveAt.Set && !p.ExpiresAt.Set &&
		p.Data == nil && p.BusinessRules == nil && p.ValidationRules == nil &&
		p.Confidence == nil && p.Insights == nil && p.Classification == nil
}

// Apply writes the patch onto r and returns the names of the touched fields.
func (p Patch) Apply(r *Relationship) []string {
	var changed []string
	if p.Strength != nil {
		r.Strength = *p.Strength
		changed = append(changed, "strength")
	}
	if p.Direction != nil {
		r.Direction = *p.Direction
		changed = append(changed, "direction")
	}
	if p.IsActive != nil {
		r.IsActive = *p.IsActive
		changed = append(changed, "is_active")
	}
	if p.EffectiveAt.Set {
		r.EffectiveAt = utcPtr(p.EffectiveAt.Value)
		changed = append(changed, "effective_at")
	}
	if p.ExpiresAt.Set {
		r.ExpiresAt = utcPtr(p.ExpiresAt.Value)
		changed = append(changed, "expires_at")
	}
	if p.Data != nil {
		r.Data = *p.Data
		changed = append(changed, "data")
	}
	if p.BusinessRules != nil {
		r.BusinessRules = *p.BusinessRules
		changed = append(changed, "business_rules")
	}
	if p.ValidationRules != nil {
		r.ValidationRules = *p.ValidationRules
		changed = append(changed, "validation_rules")
	}
	if p.Confidence != nil {
		c := *p.Confidence
		r.Confidence = &c
		changed = append(changed, "confidence")
	}
	if p.Insights != nil {
		r.Insights = *p.Insights
		changed = append(changed, "insights")
	}
	if p.Classification != nil {
		r.Classification = *p.Classification
		changed = append(changed, "classification")
	}
	return changed
}

// ParseTimestamp parses an RFC 3339 timestamp for field. Empty input yields nil.
func ParseTimestamp(field, s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(TimestampLayout, s)
	if err != nil {
		return nil, Malformed(field, "invalid timestamp %q (want RFC 3339)", s)
	}
	t = t.UTC()
	return &t, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func timeValue(t *time.Time) Value {
	if t == nil {
		return Null()
	}
	return String(t.UTC().Format(TimestampLayout))
}
