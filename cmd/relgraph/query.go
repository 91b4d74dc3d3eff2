package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ersonp/relgraph/internal/application/handlers"
)

type queryFlags struct {
	types           []string
	isActive        string
	minStrength     float64
	maxStrength     float64
	tiers           []string
	directions      []string
	classifications []string
	currentlyValid  bool
	expiringWithin  string
	activeFrom      string
	activeTo        string
	minVersion      int64
	data            map[string]string
	businessRules   map[string]string
	entityID        string
	from            string
	to              string
	text            string
	sortBy          string
	desc            bool
	limit           int
	pageToken       string
	all             bool
	asJSON          bool
}

func (f *queryFlags) register(fs *pflag.FlagSet) {
	fs.StringSliceVarP(&f.types, "type", "t", nil, "Relationship types (repeatable or comma separated)")
	fs.StringVar(&f.isActive, "active", "", "Filter by active flag (true or false)")
	fs.Float64Var(&f.minStrength, "min-strength", 0, "Minimum strength")
	fs.Float64Var(&f.maxStrength, "max-strength", 0, "Maximum strength")
	fs.StringSliceVar(&f.tiers, "tier", nil, "Strength tiers: weak, medium, strong, critical")
	fs.StringSliceVar(&f.directions, "direction", nil, "Directions: forward, reverse, bidirectional")
	fs.StringSliceVar(&f.classifications, "classification", nil, "Classification labels")
	fs.BoolVar(&f.currentlyValid, "currently-valid", false, "Only records active and inside their validity window now")
	fs.StringVar(&f.expiringWithin, "expiring-within", "", "Only records expiring within this duration (e.g. 72h, 30d)")
	fs.StringVar(&f.activeFrom, "active-from", "", "Validity window overlap start (RFC 3339)")
	fs.StringVar(&f.activeTo, "active-to", "", "Validity window overlap end (RFC 3339)")
	fs.Int64Var(&f.minVersion, "min-version", 0, "Minimum record version")
	fs.StringToStringVar(&f.data, "data", nil, "Data path equality, e.g. --data terms=net30")
	fs.StringToStringVar(&f.businessRules, "business-rule", nil, "Business rule path equality")
	fs.StringVar(&f.entityID, "entity", "", "Records touching this entity on either end")
	fs.StringVar(&f.from, "from", "", "Source entity")
	fs.StringVar(&f.to, "to", "", "Target entity")
	fs.StringVar(&f.text, "text", "", "Substring match over entity ids, type, smart code and classification")
	fs.StringVar(&f.sortBy, "sort", "", "Sort field: created_at, updated_at, strength, version, relationship_type, expires_at")
	fs.BoolVar(&f.desc, "desc", false, "Sort descending")
}

func (f *queryFlags) request(changed func(string) bool) handlers.QueryRequest {
	req := handlers.QueryRequest{
		Types:           f.types,
		IsActive:        f.isActive,
		Tiers:           f.tiers,
		Directions:      f.directions,
		Classifications: f.classifications,
		CurrentlyValid:  f.currentlyValid,
		ExpiringWithin:  f.expiringWithin,
		ActiveFrom:      f.activeFrom,
		ActiveTo:        f.activeTo,
		MinVersion:      f.minVersion,
		Data:            f.data,
		BusinessRules:   f.businessRules,
		EntityID:        f.entityID,
		FromEntityID:    f.from,
		ToEntityID:      f.to,
		Text:            f.text,
		SortBy:          f.sortBy,
		Desc:            f.desc,
		Limit:           f.limit,
		PageToken:       f.pageToken,
	}
	if changed("min-strength") {
		req.MinStrength = &f.minStrength
	}
	if changed("max-strength") {
		req.MaxStrength = &f.maxStrength
	}
	return req
}

func newQueryCmd() *cobra.Command {
	var flags queryFlags

	cmd := &cobra.Command{
		Use:   "query",
		Short: "List relationships matching filters",
		Long: `Lists relationships one page at a time. Pass the printed page token to
--page-token for the next page, or use --all to walk every match.

Examples:
  relgraph query --type reports_to --currently-valid
  relgraph query --tier strong,critical --sort strength --desc
  relgraph query --expiring-within 30d --data region=emea`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, &flags)
		},
	}

	flags.register(cmd.Flags())
	cmd.Flags().IntVarP(&flags.limit, "limit", "l", DefaultQueryLimit, "Page size")
	cmd.Flags().StringVar(&flags.pageToken, "page-token", "", "Token of the page to fetch")
	cmd.Flags().BoolVar(&flags.all, "all", false, "Walk every page")
	cmd.Flags().BoolVar(&flags.asJSON, "json", false, "Print results as JSON")

	return cmd
}

func runQuery(cmd *cobra.Command, flags *queryFlags) error {
	ctx := cmd.Context()
	req := flags.request(cmd.Flags().Changed)

	return withDeps(ctx, func(deps *Deps) error {
		if flags.all {
			seq, err := deps.Queries.HandleStream(ctx, globalOrg, req)
			if err != nil {
				return err
			}
			n := 0
			for rel, err := range seq {
				if err != nil {
					return fmt.Errorf("streaming relationships: %w", err)
				}
				if flags.asJSON {
					if err := printJSON(os.Stdout, rel); err != nil {
						return err
					}
				} else {
					printRelationshipList(os.Stdout, rel)
				}
				n++
			}
			if !flags.asJSON {
				fmt.Printf("%d relationships\n", n)
			}
			return nil
		}

		result, err := deps.Queries.HandleQuery(ctx, globalOrg, req)
		if err != nil {
			return err
		}
		if flags.asJSON {
			return printJSON(os.Stdout, result)
		}
		if len(result.Items) == 0 {
			fmt.Println("No relationships found")
			return nil
		}
		printRelationshipList(os.Stdout, result.Items...)
		if result.NextPageToken != "" {
			fmt.Printf("\nNext page: --page-token %s\n", result.NextPageToken)
		}
		return nil
	})
}

func newCountCmd() *cobra.Command {
	var flags queryFlags

	cmd := &cobra.Command{
		Use:   "count",
		Short: "Count relationships matching filters",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			req := flags.request(cmd.Flags().Changed)
			return withDeps(ctx, func(deps *Deps) error {
				n, err := deps.Queries.HandleCount(ctx, globalOrg, req)
				if err != nil {
					return err
				}
				fmt.Println(n)
				return nil
			})
		},
	}

	flags.register(cmd.Flags())

	return cmd
}
