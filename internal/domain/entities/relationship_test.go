package entities

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRequest() CreateRequest {
	return CreateRequest{
		OrganizationID:   "org-1",
		FromEntityID:     "alice",
		ToEntityID:       "bob",
		RelationshipType: "reports_to",
		SmartCode:        "HERA.HR.REL.REPORTS.v1",
	}
}

func TestNewRelationship_Defaults(t *testing.T) {
	rel, err := NewRelationship(validRequest())

	require.NoError(t, err)
	assert.Equal(t, 1.0, rel.Strength)
	assert.Equal(t, DirectionForward, rel.Direction)
	assert.True(t, rel.IsActive)
	assert.Empty(t, rel.ID)
	assert.Zero(t, rel.Version)
}

func TestNewRelationship_Malformed(t *testing.T) {
	zero := 0.0
	negative := -0.1
	tooLong := strings.Repeat("x", maxIDLength+1)

	tests := []struct {
		name   string
		mutate func(*CreateRequest)
		field  string
	}{
		{"missing from", func(r *CreateRequest) { r.FromEntityID = " " }, "from_entity_id"},
		{"missing type", func(r *CreateRequest) { r.RelationshipType = "" }, "relationship_type"},
		{"missing smart code", func(r *CreateRequest) { r.SmartCode = "" }, "smart_code"},
		{"id too long", func(r *CreateRequest) { r.ToEntityID = tooLong }, "to_entity_id"},
		{"negative strength", func(r *CreateRequest) { r.Strength = &negative }, "strength"},
		{"unknown direction", func(r *CreateRequest) { r.Direction = "sideways" }, "direction"},
		{"zero effective_at", func(r *CreateRequest) { r.EffectiveAt = &time.Time{} }, "effective_at"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)

			_, err := NewRelationship(req)

			require.ErrorIs(t, err, ErrMalformedRecord)
			var merr *MalformedRecordError
			require.ErrorAs(t, err, &merr)
			assert.Equal(t, tt.field, merr.Field)
		})
	}

	t.Run("zero strength is allowed", func(t *testing.T) {
		req := validRequest()
		req.Strength = &zero
		rel, err := NewRelationship(req)
		require.NoError(t, err)
		assert.Zero(t, rel.Strength)
	})
}

func TestRelationship_CurrentlyValid(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	before := now.Add(-time.Hour)
	after := now.Add(time.Hour)

	tests := []struct {
		name      string
		active    bool
		effective *time.Time
		expires   *time.Time
		want      bool
	}{
		{"open window", true, nil, nil, true},
		{"inactive", false, nil, nil, false},
		{"not yet effective", true, &after, nil, false},
		{"effective now", true, &now, nil, true},
		{"expired", true, nil, &before, false},
		{"expires now", true, nil, &now, false},
		{"inside window", true, &before, &after, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Relationship{IsActive: tt.active, EffectiveAt: tt.effective, ExpiresAt: tt.expires}
			assert.Equal(t, tt.want, r.CurrentlyValid(now))
		})
	}
}

func TestRelationship_Neighbor(t *testing.T) {
	tests := []struct {
		direction Direction
		from      string
		want      string
		wantOK    bool
	}{
		{DirectionForward, "a", "b", true},
		{DirectionForward, "b", "", false},
		{DirectionReverse, "b", "a", true},
		{DirectionReverse, "a", "", false},
		{DirectionBidirectional, "a", "b", true},
		{DirectionBidirectional, "b", "a", true},
		{DirectionBidirectional, "c", "", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.direction)+"/"+tt.from, func(t *testing.T) {
			r := &Relationship{FromEntityID: "a", ToEntityID: "b", Direction: tt.direction}
			got, ok := r.Neighbor(tt.from)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRelationship_Clone(t *testing.T) {
	expires := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	confidence := 0.7
	r := &Relationship{ID: "r1", ExpiresAt: &expires, Confidence: &confidence}

	c := r.Clone()
	*c.ExpiresAt = expires.Add(time.Hour)
	*c.Confidence = 0.1

	assert.Equal(t, expires, *r.ExpiresAt)
	assert.Equal(t, 0.7, *r.Confidence)
	assert.Nil(t, (*Relationship)(nil).Clone())
}

func TestRelationship_Document(t *testing.T) {
	r := &Relationship{
		RelationshipType: "credit_link",
		Strength:         0.5,
		Data:             MustFromAny(map[string]any{"limit": 1000}),
	}

	doc := r.Document()

	limit, ok := doc.Lookup("data.limit")
	require.True(t, ok)
	assert.True(t, limit.Equal(Number(1000)))
	conf, ok := doc.Lookup("confidence")
	require.True(t, ok)
	assert.True(t, conf.IsNull())
	typ, _ := doc.Lookup("relationship_type")
	assert.Equal(t, "credit_link", typ.Text())
}

func TestPatch(t *testing.T) {
	assert.True(t, Patch{}.IsEmpty())

	strength := 0.2
	expires := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	effective := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := &Relationship{Strength: 1, EffectiveAt: &effective}
	p := Patch{Strength: &strength, ExpiresAt: SetTime(expires), EffectiveAt: ClearTime()}

	changed := p.Apply(r)

	assert.False(t, p.IsEmpty())
	assert.Equal(t, []string{"strength", "effective_at", "expires_at"}, changed)
	assert.Equal(t, 0.2, r.Strength)
	assert.Nil(t, r.EffectiveAt)
	require.NotNil(t, r.ExpiresAt)
	assert.True(t, r.ExpiresAt.Equal(expires))
}

func TestPatch_JSONDistinguishesNull(t *testing.T) {
	var p Patch
	require.NoError(t, json.Unmarshal([]byte(`{"expires_at": null, "strength": 0.5}`), &p))

	assert.True(t, p.ExpiresAt.Set)
	assert.Nil(t, p.ExpiresAt.Value)
	assert.False(t, p.EffectiveAt.Set)
	require.NotNil(t, p.Strength)
	assert.Equal(t, 0.5, *p.Strength)
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection("")
	require.NoError(t, err)
	assert.Equal(t, DirectionForward, d)

	d, err = ParseDirection("Bidirectional")
	require.NoError(t, err)
	assert.Equal(t, DirectionBidirectional, d)

	_, err = ParseDirection("up")
	assert.ErrorIs(t, err, ErrMalformedRecord)
}

func TestParseTimestamp(t *testing.T) {
	ts, err := ParseTimestamp("expires_at", "2025-01-02T03:04:05+02:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 2, 1, 4, 5, 0, time.UTC), *ts)

	ts, err = ParseTimestamp("expires_at", "")
	require.NoError(t, err)
	assert.Nil(t, ts)

	_, err = ParseTimestamp("expires_at", "tomorrow")
	assert.ErrorIs(t, err, ErrMalformedRecord)
}
