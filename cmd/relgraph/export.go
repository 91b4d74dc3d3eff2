package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/ersonp/relgraph/internal/application/handlers"
	"github.com/ersonp/relgraph/internal/domain/entities"
	"github.com/ersonp/relgraph/internal/infrastructure/parsers"
)

type exportFlags struct {
	queryFlags
	format string
	output string
	max    int
}

type exporter struct {
	queries *handlers.QueryHandler
	format  string
	output  string
}

func newExportCmd() *cobra.Command {
	var flags exportFlags

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export relationships to file",
		Long: `Exports relationships matching the query filters to JSON, CSV, or markdown.
JSON and CSV exports can be loaded back with 'relgraph bulk'.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, &flags)
		},
	}

	flags.register(cmd.Flags())
	cmd.Flags().StringVarP(&flags.format, "format", "f", "json", "Output format (json, csv, markdown)")
	cmd.Flags().StringVar(&flags.output, "output", "", "Output file (default: stdout)")
	cmd.Flags().IntVar(&flags.max, "max", DefaultExportLimit, "Maximum number of relationships to export")

	return cmd
}

func runExport(cmd *cobra.Command, flags *exportFlags) error {
	if !slices.Contains(validFormats, flags.format) {
		return fmt.Errorf("invalid format %q, valid formats: %v", flags.format, validFormats)
	}

	ctx := cmd.Context()
	req := flags.request(cmd.Flags().Changed)

	return withDeps(ctx, func(deps *Deps) error {
		e := &exporter{
			queries: deps.Queries,
			format:  flags.format,
			output:  flags.output,
		}

		rels, err := e.fetch(ctx, req, flags.max)
		if err != nil {
			return err
		}

		return e.export(rels)
	})
}

func (e *exporter) fetch(ctx context.Context, req handlers.QueryRequest, maxItems int) ([]*entities.Relationship, error) {
	seq, err := e.queries.HandleStream(ctx, globalOrg, req)
	if err != nil {
		return nil, err
	}

	var rels []*entities.Relationship
	for rel, err := range seq {
		if err != nil {
			return nil, fmt.Errorf("listing relationships: %w", err)
		}
		rels = append(rels, rel)
		if maxItems > 0 && len(rels) >= maxItems {
			break
		}
	}

	if len(rels) == 0 {
		return nil, fmt.Errorf("no relationships found to export")
	}
	return rels, nil
}

func (e *exporter) export(rels []*entities.Relationship) (err error) {
	var w io.Writer
	var f *os.File

	if e.output != "" {
		f, err = os.OpenFile(e.output, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return fmt.Errorf("creating file: %w", err)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("closing file: %w", cerr)
			}
		}()
		w = f
	} else {
		w = os.Stdout
	}

	if err := e.formatRelationships(w, rels); err != nil {
		return fmt.Errorf("formatting output: %w", err)
	}

	if e.output != "" {
		fmt.Printf("Exported %d relationships to %s\n", len(rels), e.output)
	}

	return nil
}

func (e *exporter) formatRelationships(w io.Writer, rels []*entities.Relationship) error {
	switch e.format {
	case "json":
		return formatJSON(w, rels)
	case "csv":
		return formatCSV(w, rels)
	case "markdown":
		return formatMarkdown(w, rels)
	default:
		return fmt.Errorf("unknown format: %s", e.format)
	}
}

func formatJSON(w io.Writer, rels []*entities.Relationship) error {
	if rels == nil {
		rels = []*entities.Relationship{}
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(rels)
}

// formatCSV writes the columns the CSV bulk parser reads.
func formatCSV(w io.Writer, rels []*entities.Relationship) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(parsers.CSVColumns); err != nil {
		return err
	}

	for _, rel := range rels {
		row := make([]string, len(parsers.CSVColumns))
		for i, col := range parsers.CSVColumns {
			cell, err := csvCell(rel, col)
			if err != nil {
				return fmt.Errorf("relationship %s: %w", rel.ID, err)
			}
			row[i] = cell
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func csvCell(rel *entities.Relationship, col string) (string, error) {
	switch col {
	case "organization_id":
		return rel.OrganizationID, nil
	case "from_entity_id":
		return rel.FromEntityID, nil
	case "to_entity_id":
		return rel.ToEntityID, nil
	case "relationship_type":
		return rel.RelationshipType, nil
	case "smart_code":
		return rel.SmartCode, nil
	case "strength":
		return strconv.FormatFloat(rel.Strength, 'f', -1, 64), nil
	case "direction":
		return string(rel.Direction), nil
	case "is_active":
		return strconv.FormatBool(rel.IsActive), nil
	case "effective_at":
		return timeCell(rel.EffectiveAt), nil
	case "expires_at":
		return timeCell(rel.ExpiresAt), nil
	case "data":
		return jsonCell(rel.Data)
	case "business_rules":
		return jsonCell(rel.BusinessRules)
	case "validation_rules":
		return jsonCell(rel.ValidationRules)
	default:
		return "", nil
	}
}

func timeCell(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(entities.TimestampLayout)
}

func jsonCell(v entities.Value) (string, error) {
	if v.IsNull() {
		return "", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func formatMarkdown(w io.Writer, rels []*entities.Relationship) error {
	if _, err := fmt.Fprintf(w, "# Exported Relationships\n\nTotal: %d relationships\n\n", len(rels)); err != nil {
		return err
	}

	if _, err := fmt.Fprint(w, "| From | Type | To | Strength | Direction | Active | Smart Code |\n"); err != nil {
		return err
	}
	if _, err := fmt.Fprint(w, "|------|------|----|----------|-----------|--------|------------|\n"); err != nil {
		return err
	}

	for _, rel := range rels {
		if _, err := fmt.Fprintf(w, "| %s | %s | %s | %.2f | %s | %s | %s |\n",
			escapeMarkdown(rel.FromEntityID),
			rel.RelationshipType,
			escapeMarkdown(rel.ToEntityID),
			rel.Strength,
			rel.Direction,
			yesNo(rel.IsActive),
			escapeMarkdown(rel.SmartCode),
		); err != nil {
			return err
		}
	}

	return nil
}
