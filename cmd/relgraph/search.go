package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ersonp/relgraph/internal/domain/services"
)

func newSearchCmd() *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "search <text>",
		Short: "Search relationships by meaning",
		Long: `Ranks relationships by similarity to free text using the semantic index.
Requires index.enabled in the config.

Examples:
  relgraph search "single source suppliers in emea"
  relgraph search "who covers the night shift" --limit 5`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			text := strings.Join(args, " ")
			return withDeps(ctx, func(deps *Deps) error {
				results, err := deps.Queries.HandleSearch(ctx, globalOrg, text, limit)
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(os.Stdout, results)
				}
				printSearchResults(results)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", DefaultSearchLimit, "Maximum number of results")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")

	return cmd
}

func printSearchResults(results []services.SearchResult) {
	if len(results) == 0 {
		fmt.Println("No matching relationships found")
		return
	}
	for i, r := range results {
		fmt.Printf("%d. [%.3f] %s  %s\n", i+1, r.Score, r.Relationship.ID, edgeLabel(r.Relationship))
	}
}

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Manage the semantic index",
	}

	var batch int
	rebuild := &cobra.Command{
		Use:   "rebuild",
		Short: "Mirror every active relationship into the semantic index",
		Long:  "Re-embeds and upserts every active relationship of the organization. Safe to re-run.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withDeps(ctx, func(deps *Deps) error {
				sent, err := deps.Queries.HandleReindex(ctx, globalOrg, batch)
				if err != nil {
					return err
				}
				fmt.Printf("Indexed %d relationships\n", sent)
				return nil
			})
		},
	}
	rebuild.Flags().IntVar(&batch, "batch", services.DefaultIndexBatch, "Records per embedding call")

	cmd.AddCommand(rebuild)

	return cmd
}
