package entities

import "time"

// Audit actions.
const (
	ActionCreate     = "create"
	ActionUpdate     = "update"
	ActionDeactivate = "deactivate"
	ActionBulkCreate = "bulk_create"
)

// AuditEntry represents a logged mutation of a relationship.
type AuditEntry struct {
	ID             int64          `json:"id"`
	OrganizationID string         `json:"organization_id"`
	RelationshipID string         `json:"relationship_id"`
	Action         string         `json:"action"`
	Actor          string         `json:"actor"`
	Version        int64          `json:"version"`
	Details        map[string]any `json:"details,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}
