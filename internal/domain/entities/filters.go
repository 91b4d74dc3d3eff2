package entities

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"
)

// SortField names a sortable column.
type SortField string

const (
	SortCreatedAt SortField = "created_at"
	SortUpdatedAt SortField = "updated_at"
	SortStrength  SortField = "strength"
	SortVersion   SortField = "version"
	SortType      SortField = "relationship_type"
	SortExpiresAt SortField = "expires_at"
)

var sortFields = []SortField{SortCreatedAt, SortUpdatedAt, SortStrength, SortVersion, SortType, SortExpiresAt}

// ParseSortField parses a sort field name. Empty means created_at.
func ParseSortField(s string) (SortField, error) {
	if s == "" {
		return SortCreatedAt, nil
	}
	f := SortField(strings.ToLower(s))
	if !slices.Contains(sortFields, f) {
		return "", Malformed("sort_by", "unsupported sort field %q", s)
	}
	return f, nil
}

// payloadPathSegment restricts payload filter paths to plain object keys.
var payloadPathSegment = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidPayloadPath reports whether path is a dotted list of plain keys.
func ValidPayloadPath(path string) bool {
	if path == "" {
		return false
	}
	for _, seg := range strings.Split(path, ".") {
		if !payloadPathSegment.MatchString(seg) {
			return false
		}
	}
	return true
}

// TimeWindow is an interval; a nil bound is open.
type TimeWindow struct {
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
}

// Filters selects relationship records. Every set dimension must match.
type Filters struct {
	Types       []string
	IsActive    *bool
	MinStrength *float64
	MaxStrength *float64
	Tiers       []Tier
	// Bands holds Tiers resolved against a tier policy; see ResolveTiers.
	Bands           []StrengthBand
	Directions      []Direction
	Classifications []string
	CurrentlyValid  bool
	// ExpiringWithin keeps records whose expires_at lies in [Now, Now+d].
	ExpiringWithin time.Duration
	ActiveDuring   *TimeWindow
	MinVersion     int64
	Data           map[string]Value
	BusinessRules  map[string]Value
	EntityID       string
	FromEntityID   string
	ToEntityID     string
	Text           string

	SortBy SortField
	Desc   bool
	Limit  int
	Offset int

	// Now anchors the temporal filters. The query service fills it in.
	Now time.Time
}

// Validate rejects filters that cannot be evaluated.
func (f *Filters) Validate() error {
	if f.MinStrength != nil && f.MaxStrength != nil && *f.MinStrength > *f.MaxStrength {
		return Malformed("strength", "min_strength %v exceeds max_strength %v", *f.MinStrength, *f.MaxStrength)
	}
	if f.ExpiringWithin < 0 {
		return Malformed("expiring_within", "must not be negative")
	}
	if f.MinVersion < 0 {
		return Malformed("min_version", "must not be negative")
	}
	for _, d := range f.Directions {
		if !d.IsValid() {
			return Malformed("directions", "unknown direction %q", d)
		}
	}
	if f.ActiveDuring != nil && f.ActiveDuring.From != nil && f.ActiveDuring.To != nil &&
		f.ActiveDuring.To.Before(*f.ActiveDuring.From) {
		return Malformed("active_during", "window ends before it starts")
	}
	if err := validatePayloadFilter("data", f.Data); err != nil {
		return err
	}
	if err := validatePayloadFilter("business_rules", f.BusinessRules); err != nil {
		return err
	}
	if f.SortBy != "" && !slices.Contains(sortFields, f.SortBy) {
		return Malformed("sort_by", "unsupported sort field %q", f.SortBy)
	}
	if f.Limit < 0 || f.Offset < 0 {
		return Malformed("limit", "limit and offset must not be negative")
	}
	return nil
}

func validatePayloadFilter(field string, paths map[string]Value) error {
	for path, v := range paths {
		if !ValidPayloadPath(path) {
			return Malformed(field, "invalid path %q", path)
		}
		if !v.IsScalar() {
			return Malformed(field, "path %q must compare against a scalar, got %s", path, v.Kind())
		}
	}
	return nil
}

// ResolveTiers translates the named tiers into strength bands.
func (f *Filters) ResolveTiers(policy TierPolicy) {
	f.Bands = f.Bands[:0]
	for _, t := range f.Tiers {
		f.Bands = append(f.Bands, policy.Band(t))
	}
}

// Matches is the in-memory reading of the filters and the reference the
// store adapters follow: every set dimension must hold, and values inside
// one dimension are alternatives. Tiers must have been resolved first. The
// SQLite adapter tests run each filter set through both paths.
func (f *Filters) Matches(r *Relationship) bool {
	if len(f.Types) > 0 && !slices.Contains(f.Types, r.RelationshipType) {
		return false
	}
	if f.IsActive != nil && r.IsActive != *f.IsActive {
		return false
	}
	if f.MinStrength != nil && r.Strength < *f.MinStrength {
		return false
	}
	if f.MaxStrength != nil && r.Strength > *f.MaxStrength {
		return false
	}
	if len(f.Bands) > 0 {
		inTier := false
		for _, b := range f.Bands {
			if b.Contains(r.Strength) {
				inTier = true
				break
			}
		}
		if !inTier {
			return false
		}
	}
	if len(f.Directions) > 0 && !slices.Contains(f.Directions, r.Direction) {
		return false
	}
	if len(f.Classifications) > 0 && !slices.Contains(f.Classifications, r.Classification) {
		return false
	}
	if f.CurrentlyValid && !r.CurrentlyValid(f.Now) {
		return false
	}
	if f.ExpiringWithin > 0 {
		if r.ExpiresAt == nil || r.ExpiresAt.Before(f.Now) || r.ExpiresAt.After(f.Now.Add(f.ExpiringWithin)) {
			return false
		}
	}
	if w := f.ActiveDuring; w != nil {
		if w.To != nil && r.EffectiveAt != nil && !r.EffectiveAt.Before(*w.To) {
			return false
		}
		if w.From != nil && r.ExpiresAt != nil && !r.ExpiresAt.After(*w.From) {
			return false
		}
	}
	if r.Version < f.MinVersion {
		return false
	}
	if !payloadMatches(r.Data, f.Data) || !payloadMatches(r.BusinessRules, f.BusinessRules) {
		return false
	}
	if f.EntityID != "" && r.FromEntityID != f.EntityID && r.ToEntityID != f.EntityID {
		return false
	}
	if f.FromEntityID != "" && r.FromEntityID != f.FromEntityID {
		return false
	}
	if f.ToEntityID != "" && r.ToEntityID != f.ToEntityID {
		return false
	}
	if f.Text != "" && !textMatches(r, f.Text) {
		return false
	}
	return true
}

func payloadMatches(doc Value, want map[string]Value) bool {
	for path, expected := range want {
		got, ok := doc.Lookup(path)
		if !ok || !got.Equal(expected) {
			return false
		}
	}
	return true
}

// TextFields lists the columns searched by the free-text filter.
var TextFields = []string{"relationship_type", "smart_code", "classification", "from_entity_id", "to_entity_id"}

func textMatches(r *Relationship, text string) bool {
	needle := strings.ToLower(text)
	for _, s := range []string{r.RelationshipType, r.SmartCode, r.Classification, r.FromEntityID, r.ToEntityID} {
		if strings.Contains(strings.ToLower(s), needle) {
			return true
		}
	}
	return false
}

// Less orders two records by the sort field, ties broken by id.
func (f *Filters) Less(a, b *Relationship) bool {
	c := compareBy(f.SortBy, a, b)
	if c == 0 {
		c = strings.Compare(a.ID, b.ID)
	}
	if f.Desc {
		return c > 0
	}
	return c < 0
}

func compareBy(field SortField, a, b *Relationship) int {
	switch field {
	case SortUpdatedAt:
		return a.UpdatedAt.Compare(b.UpdatedAt)
	case SortStrength:
		return cmpFloat(a.Strength, b.Strength)
	case SortVersion:
		return cmpFloat(float64(a.Version), float64(b.Version))
	case SortType:
		return strings.Compare(a.RelationshipType, b.RelationshipType)
	case SortExpiresAt:
		// Records without an expiry sort first, as NULLs do in SQLite.
		switch {
		case a.ExpiresAt == nil && b.ExpiresAt == nil:
			return 0
		case a.ExpiresAt == nil:
			return -1
		case b.ExpiresAt == nil:
			return 1
		}
		return a.ExpiresAt.Compare(*b.ExpiresAt)
	}
	return a.CreatedAt.Compare(b.CreatedAt)
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// String summarizes the set dimensions, for logs.
func (f *Filters) String() string {
	var parts []string
	if len(f.Types) > 0 {
		parts = append(parts, fmt.Sprintf("types=%v", f.Types))
	}
	if f.IsActive != nil {
		parts = append(parts, fmt.Sprintf("is_active=%t", *f.IsActive))
	}
	if len(f.Tiers) > 0 {
		parts = append(parts, fmt.Sprintf("tiers=%v", f.Tiers))
	}
	if f.CurrentlyValid {
		parts = append(parts, "currently_valid")
	}
	if f.EntityID != "" {
		parts = append(parts, "entity="+f.EntityID)
	}
	if f.Text != "" {
		parts = append(parts, fmt.Sprintf("text=%q", f.Text))
	}
	if len(parts) == 0 {
		return "all"
	}
	return strings.Join(parts, " ")
}
