package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ersonp/relgraph/internal/domain/entities"
)

func printJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	return nil
}

// printRelationship writes a human-readable summary of one record.
func printRelationship(w io.Writer, rel *entities.Relationship) {
	fmt.Fprintf(w, "%s (v%d)\n", rel.ID, rel.Version)
	fmt.Fprintf(w, "  %s\n", edgeLabel(rel))
	fmt.Fprintf(w, "  strength: %.2f  direction: %s  active: %t\n", rel.Strength, rel.Direction, rel.IsActive)
	if rel.EffectiveAt != nil || rel.ExpiresAt != nil {
		fmt.Fprintf(w, "  valid: %s .. %s\n", formatBound(rel.EffectiveAt), formatBound(rel.ExpiresAt))
	}
	if rel.Classification != "" {
		fmt.Fprintf(w, "  classification: %s", rel.Classification)
		if rel.Confidence != nil {
			fmt.Fprintf(w, " (confidence %.2f)", *rel.Confidence)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "  smart code: %s\n", rel.SmartCode)
	fmt.Fprintf(w, "  updated %s by %s\n", rel.UpdatedAt.Format(time.RFC3339), rel.UpdatedBy)
}

// printRelationshipList writes one line per record.
func printRelationshipList(w io.Writer, rels ...*entities.Relationship) {
	for _, rel := range rels {
		state := ""
		if !rel.IsActive {
			state = "  [inactive]"
		}
		fmt.Fprintf(w, "%s  %s  %.2f%s\n", rel.ID, edgeLabel(rel), rel.Strength, state)
	}
}

func edgeLabel(rel *entities.Relationship) string {
	switch rel.Direction {
	case entities.DirectionReverse:
		return fmt.Sprintf("%s <-[%s]- %s", rel.FromEntityID, rel.RelationshipType, rel.ToEntityID)
	case entities.DirectionBidirectional:
		return fmt.Sprintf("%s <-[%s]-> %s", rel.FromEntityID, rel.RelationshipType, rel.ToEntityID)
	default:
		return fmt.Sprintf("%s -[%s]-> %s", rel.FromEntityID, rel.RelationshipType, rel.ToEntityID)
	}
}

func formatBound(t *time.Time) string {
	if t == nil {
		return "*"
	}
	return t.Format(time.RFC3339)
}

func escapeMarkdown(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}
