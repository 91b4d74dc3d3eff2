package main

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ersonp/relgraph/internal/application/handlers"
	"github.com/ersonp/relgraph/internal/domain/entities"
)

type createFlags struct {
	smartCode       string
	strength        float64
	direction       string
	inactive        bool
	effectiveAt     string
	expiresAt       string
	data            string
	businessRules   string
	validationRules string
	autoClassify    bool
	asJSON          bool
}

func newCreateCmd() *cobra.Command {
	var flags createFlags

	cmd := &cobra.Command{
		Use:   "create <from-entity> <type> <to-entity>",
		Short: "Create a relationship between two entities",
		Long: `Creates a validated relationship record. Structure, self-reference, temporal
order, allowed types and cycle rules are checked before the record is stored.

Examples:
  relgraph create emp-42 reports_to emp-7 --smart-code HERA.HR.REL.REPORTS.v1
  relgraph create acme supplier_partnership globex --smart-code HERA.SCM.REL.v1 \
    --strength 0.8 --data '{"terms":"net30"}' --expires-at 2027-01-01T00:00:00Z`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(cmd, args, flags)
		},
	}

	cmd.Flags().StringVar(&flags.smartCode, "smart-code", "", "Business classification code (required)")
	cmd.Flags().Float64Var(&flags.strength, "strength", 1.0, "Edge weight in [0, 1]")
	cmd.Flags().StringVar(&flags.direction, "direction", "", "forward, reverse or bidirectional")
	cmd.Flags().BoolVar(&flags.inactive, "inactive", false, "Create the record inactive")
	cmd.Flags().StringVar(&flags.effectiveAt, "effective-at", "", "Start of the validity window (RFC 3339)")
	cmd.Flags().StringVar(&flags.expiresAt, "expires-at", "", "End of the validity window (RFC 3339)")
	cmd.Flags().StringVar(&flags.data, "data", "", "Relationship data as JSON")
	cmd.Flags().StringVar(&flags.businessRules, "business-rules", "", "Business rules as JSON")
	cmd.Flags().StringVar(&flags.validationRules, "validation-rules", "", "Validation rules as JSON")
	cmd.Flags().BoolVar(&flags.autoClassify, "auto-classify", false, "Run the scoring hook on the new record")
	cmd.Flags().BoolVar(&flags.asJSON, "json", false, "Print the record as JSON")

	return cmd
}

func runCreate(cmd *cobra.Command, args []string, flags createFlags) error {
	req, err := flags.request(args[0], args[1], args[2])
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("strength") {
		req.Strength = &flags.strength
	}

	ctx := actorContext(cmd.Context())
	return withDeps(ctx, func(deps *Deps) error {
		rel, err := deps.Relationships.HandleCreate(ctx, globalOrg, req)
		if err != nil {
			return fmt.Errorf("creating relationship: %w", err)
		}
		if flags.asJSON {
			return printJSON(os.Stdout, rel)
		}
		fmt.Printf("Created relationship: %s\n", rel.ID)
		printRelationship(os.Stdout, rel)
		return nil
	})
}

func (f createFlags) request(from, relType, to string) (entities.CreateRequest, error) {
	req := entities.CreateRequest{
		FromEntityID:     from,
		ToEntityID:       to,
		RelationshipType: relType,
		SmartCode:        f.smartCode,
		AIProcessing:     entities.AIProcessing{AutoClassify: f.autoClassify},
	}

	if f.direction != "" {
		d, err := entities.ParseDirection(f.direction)
		if err != nil {
			return req, err
		}
		req.Direction = d
	}
	if f.inactive {
		active := false
		req.IsActive = &active
	}

	var err error
	if req.EffectiveAt, err = entities.ParseTimestamp("effective_at", f.effectiveAt); err != nil {
		return req, err
	}
	if req.ExpiresAt, err = entities.ParseTimestamp("expires_at", f.expiresAt); err != nil {
		return req, err
	}

	payloads := []struct {
		field string
		text  string
		dst   *entities.Value
	}{
		{"data", f.data, &req.Data},
		{"business_rules", f.businessRules, &req.BusinessRules},
		{"validation_rules", f.validationRules, &req.ValidationRules},
	}
	for _, p := range payloads {
		v, err := entities.ParseValue(p.text)
		if err != nil {
			return req, entities.Malformed(p.field, "invalid JSON: %v", err)
		}
		*p.dst = v
	}
	return req, nil
}

func newGetCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "get <relationship-id>",
		Short: "Show one relationship",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withDeps(ctx, func(deps *Deps) error {
				rel, err := deps.Relationships.HandleGet(ctx, globalOrg, args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(os.Stdout, rel)
				}
				printRelationship(os.Stdout, rel)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the record as JSON")

	return cmd
}

type updateFlags struct {
	version         int64
	strength        float64
	direction       string
	active          bool
	effectiveAt     string
	expiresAt       string
	data            string
	businessRules   string
	validationRules string
	classification  string
}

func newUpdateCmd() *cobra.Command {
	var flags updateFlags

	cmd := &cobra.Command{
		Use:   "update <relationship-id>",
		Short: "Update a relationship",
		Long: `Applies a partial update guarded by the version you last read. The update
fails with a conflict if the record changed since.

Pass an empty string to --effective-at or --expires-at to clear the bound.

Examples:
  relgraph update 3f1c... --version 2 --strength 0.4
  relgraph update 3f1c... --version 3 --expires-at ""`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(cmd, args[0], flags)
		},
	}

	cmd.Flags().Int64Var(&flags.version, "version", 0, "Expected current version (required)")
	cmd.Flags().Float64Var(&flags.strength, "strength", 0, "Edge weight in [0, 1]")
	cmd.Flags().StringVar(&flags.direction, "direction", "", "forward, reverse or bidirectional")
	cmd.Flags().BoolVar(&flags.active, "active", true, "Set the active flag")
	cmd.Flags().StringVar(&flags.effectiveAt, "effective-at", "", "Start of the validity window (RFC 3339)")
	cmd.Flags().StringVar(&flags.expiresAt, "expires-at", "", "End of the validity window (RFC 3339)")
	cmd.Flags().StringVar(&flags.data, "data", "", "Replacement data as JSON")
	cmd.Flags().StringVar(&flags.businessRules, "business-rules", "", "Replacement business rules as JSON")
	cmd.Flags().StringVar(&flags.validationRules, "validation-rules", "", "Replacement validation rules as JSON")
	cmd.Flags().StringVar(&flags.classification, "classification", "", "Classification label")
	_ = cmd.MarkFlagRequired("version")

	return cmd
}

func runUpdate(cmd *cobra.Command, id string, flags updateFlags) error {
	patch, err := flags.patch(cmd.Flags().Changed)
	if err != nil {
		return err
	}

	ctx := actorContext(cmd.Context())
	return withDeps(ctx, func(deps *Deps) error {
		rel, err := deps.Relationships.HandleUpdate(ctx, globalOrg, id, handlers.UpdateRequest{
			ExpectedVersion: flags.version,
			Patch:           patch,
		})
		if err != nil {
			return fmt.Errorf("updating relationship: %w", err)
		}
		fmt.Printf("Updated relationship: %s\n", rel.ID)
		printRelationship(os.Stdout, rel)
		return nil
	})
}

// patch builds a patch from the flags the user set.
func (f updateFlags) patch(changed func(string) bool) (entities.Patch, error) {
	var p entities.Patch

	if changed("strength") {
		p.Strength = &f.strength
	}
	if changed("direction") {
		d, err := entities.ParseDirection(f.direction)
		if err != nil {
			return p, err
		}
		p.Direction = &d
	}
	if changed("active") {
		p.IsActive = &f.active
	}
	if changed("classification") {
		p.Classification = &f.classification
	}

	bounds := []struct {
		flag  string
		field string
		text  string
		dst   *entities.OptionalTime
	}{
		{"effective-at", "effective_at", f.effectiveAt, &p.EffectiveAt},
		{"expires-at", "expires_at", f.expiresAt, &p.ExpiresAt},
	}
	for _, b := range bounds {
		if !changed(b.flag) {
			continue
		}
		t, err := entities.ParseTimestamp(b.field, b.text)
		if err != nil {
			return p, err
		}
		if t == nil {
			*b.dst = entities.ClearTime()
		} else {
			*b.dst = entities.SetTime(*t)
		}
	}

	payloads := []struct {
		flag  string
		field string
		text  string
		dst   **entities.Value
	}{
		{"data", "data", f.data, &p.Data},
		{"business-rules", "business_rules", f.businessRules, &p.BusinessRules},
		{"validation-rules", "validation_rules", f.validationRules, &p.ValidationRules},
	}
	for _, pl := range payloads {
		if !changed(pl.flag) {
			continue
		}
		v, err := entities.ParseValue(pl.text)
		if err != nil {
			return p, entities.Malformed(pl.field, "invalid JSON: %v", err)
		}
		*pl.dst = &v
	}
	return p, nil
}

func newDeactivateCmd() *cobra.Command {
	var version int64

	cmd := &cobra.Command{
		Use:   "deactivate <relationship-id>",
		Short: "Deactivate a relationship",
		Long:  "Soft-deletes a relationship. The record and its history are kept.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := actorContext(cmd.Context())
			return withDeps(ctx, func(deps *Deps) error {
				rel, err := deps.Relationships.HandleDeactivate(ctx, globalOrg, args[0], version)
				if err != nil {
					return fmt.Errorf("deactivating relationship: %w", err)
				}
				fmt.Printf("Deactivated relationship: %s (v%d)\n", rel.ID, rel.Version)
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&version, "version", 0, "Expected current version (required)")
	_ = cmd.MarkFlagRequired("version")

	return cmd
}

func newHistoryCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history <relationship-id>",
		Short: "Show the audit trail of a relationship",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withDeps(ctx, func(deps *Deps) error {
				entries, err := deps.Relationships.HandleHistory(ctx, globalOrg, args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(os.Stdout, entries)
				}
				if len(entries) == 0 {
					fmt.Printf("No history for relationship: %s\n", args[0])
					return nil
				}
				for _, e := range entries {
					fmt.Printf("v%-3d %-12s %-16s %s\n", e.Version, e.Action, e.Actor, e.CreatedAt.Format("2006-01-02 15:04:05"))
					if len(e.Details) > 0 {
						fmt.Printf("     %s\n", strings.Join(slices.Sorted(maps.Keys(e.Details)), ", "))
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print entries as JSON")

	return cmd
}
