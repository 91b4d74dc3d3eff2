package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ersonp/relgraph/internal/domain/entities"
)

// timeLayout is fixed width so that TEXT comparison orders chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// Rows written by CURRENT_TIMESTAMP defaults.
		t, err = time.Parse(time.DateTime, s)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// relationshipColumns lists the columns of relationshipRow in table order.
var relationshipColumns = []string{
	"id", "organization_id", "from_entity_id", "to_entity_id", "relationship_type", "smart_code",
	"strength", "direction", "is_active", "effective_at", "expires_at",
	"data", "business_rules", "validation_rules", "confidence", "insights", "classification",
	"version", "created_at", "updated_at", "created_by", "updated_by",
}

// relationshipRow is the storage shape of entities.Relationship.
type relationshipRow struct {
	ID               string          `db:"id"`
	OrganizationID   string          `db:"organization_id"`
	FromEntityID     string          `db:"from_entity_id"`
	ToEntityID       string          `db:"to_entity_id"`
	RelationshipType string          `db:"relationship_type"`
	SmartCode        string          `db:"smart_code"`
	Strength         float64         `db:"strength"`
	Direction        string          `db:"direction"`
	IsActive         bool            `db:"is_active"`
	EffectiveAt      sql.NullString  `db:"effective_at"`
	ExpiresAt        sql.NullString  `db:"expires_at"`
	Data             string          `db:"data"`
	BusinessRules    string          `db:"business_rules"`
	ValidationRules  string          `db:"validation_rules"`
	Confidence       sql.NullFloat64 `db:"confidence"`
	Insights         string          `db:"insights"`
	Classification   string          `db:"classification"`
	Version          int64           `db:"version"`
	CreatedAt        string          `db:"created_at"`
	UpdatedAt        string          `db:"updated_at"`
	CreatedBy        string          `db:"created_by"`
	UpdatedBy        string          `db:"updated_by"`
}

func toRow(rel *entities.Relationship) (*relationshipRow, error) {
	row := &relationshipRow{
		ID:               rel.ID,
		OrganizationID:   rel.OrganizationID,
		FromEntityID:     rel.FromEntityID,
		ToEntityID:       rel.ToEntityID,
		RelationshipType: rel.RelationshipType,
		SmartCode:        rel.SmartCode,
		Strength:         rel.Strength,
		Direction:        string(rel.Direction),
		IsActive:         rel.IsActive,
		EffectiveAt:      formatNullTime(rel.EffectiveAt),
		ExpiresAt:        formatNullTime(rel.ExpiresAt),
		Classification:   rel.Classification,
		Version:          rel.Version,
		CreatedAt:        formatTime(rel.CreatedAt),
		UpdatedAt:        formatTime(rel.UpdatedAt),
		CreatedBy:        rel.CreatedBy,
		UpdatedBy:        rel.UpdatedBy,
	}
	if rel.Confidence != nil {
		row.Confidence = sql.NullFloat64{Float64: *rel.Confidence, Valid: true}
	}

	payloads := []struct {
		name string
		src  entities.Value
		dst  *string
	}{
		{"data", rel.Data, &row.Data},
		{"business_rules", rel.BusinessRules, &row.BusinessRules},
		{"validation_rules", rel.ValidationRules, &row.ValidationRules},
		{"insights", rel.Insights, &row.Insights},
	}
	for _, p := range payloads {
		data, err := json.Marshal(p.src)
		if err != nil {
			return nil, fmt.Errorf("marshaling %s: %w", p.name, err)
		}
		*p.dst = string(data)
	}
	return row, nil
}

func (row *relationshipRow) toEntity() (*entities.Relationship, error) {
	rel := &entities.Relationship{
		ID:               row.ID,
		OrganizationID:   row.OrganizationID,
		FromEntityID:     row.FromEntityID,
		ToEntityID:       row.ToEntityID,
		RelationshipType: row.RelationshipType,
		SmartCode:        row.SmartCode,
		Strength:         row.Strength,
		Direction:        entities.Direction(row.Direction),
		IsActive:         row.IsActive,
		Classification:   row.Classification,
		Version:          row.Version,
		CreatedBy:        row.CreatedBy,
		UpdatedBy:        row.UpdatedBy,
	}
	if row.Confidence.Valid {
		c := row.Confidence.Float64
		rel.Confidence = &c
	}

	var err error
	if rel.EffectiveAt, err = parseNullTime(row.EffectiveAt); err != nil {
		return nil, err
	}
	if rel.ExpiresAt, err = parseNullTime(row.ExpiresAt); err != nil {
		return nil, err
	}
	if rel.CreatedAt, err = parseTime(row.CreatedAt); err != nil {
		return nil, err
	}
	if rel.UpdatedAt, err = parseTime(row.UpdatedAt); err != nil {
		return nil, err
	}

	payloads := []struct {
		name string
		src  string
		dst  *entities.Value
	}{
		{"data", row.Data, &rel.Data},
		{"business_rules", row.BusinessRules, &rel.BusinessRules},
		{"validation_rules", row.ValidationRules, &rel.ValidationRules},
		{"insights", row.Insights, &rel.Insights},
	}
	for _, p := range payloads {
		v, err := entities.ParseValue(p.src)
		if err != nil {
			return nil, fmt.Errorf("decoding %s of %s: %w", p.name, row.ID, err)
		}
		*p.dst = v
	}
	return rel, nil
}

// relationshipTypeRow is the storage shape of entities.RelationshipType.
type relationshipTypeRow struct {
	OrganizationID     string `db:"organization_id"`
	Name               string `db:"name"`
	Description        string `db:"description"`
	Hierarchical       bool   `db:"hierarchical"`
	AllowSelfReference bool   `db:"allow_self_reference"`
	MaxDepth           int    `db:"max_depth"`
	CreatedAt          string `db:"created_at"`
}

func (row *relationshipTypeRow) toEntity() (entities.RelationshipType, error) {
	created, err := parseTime(row.CreatedAt)
	if err != nil {
		return entities.RelationshipType{}, err
	}
	return entities.RelationshipType{
		OrganizationID:     row.OrganizationID,
		Name:               row.Name,
		Description:        row.Description,
		Hierarchical:       row.Hierarchical,
		AllowSelfReference: row.AllowSelfReference,
		MaxDepth:           row.MaxDepth,
		CreatedAt:          created,
	}, nil
}

// auditRow is the storage shape of entities.AuditEntry.
type auditRow struct {
	ID             int64          `db:"id"`
	OrganizationID string         `db:"organization_id"`
	RelationshipID string         `db:"relationship_id"`
	Action         string         `db:"action"`
	Actor          string         `db:"actor"`
	Version        int64          `db:"version"`
	Details        sql.NullString `db:"details"`
	CreatedAt      string         `db:"created_at"`
}

func (row *auditRow) toEntity() (entities.AuditEntry, error) {
	entry := entities.AuditEntry{
		ID:             row.ID,
		OrganizationID: row.OrganizationID,
		RelationshipID: row.RelationshipID,
		Action:         row.Action,
		Actor:          row.Actor,
		Version:        row.Version,
	}
	created, err := parseTime(row.CreatedAt)
	if err != nil {
		return entry, err
	}
	entry.CreatedAt = created
	if row.Details.Valid && row.Details.String != "" {
		if err := json.Unmarshal([]byte(row.Details.String), &entry.Details); err != nil {
			return entry, fmt.Errorf("unmarshaling details: %w", err)
		}
	}
	return entry, nil
}
