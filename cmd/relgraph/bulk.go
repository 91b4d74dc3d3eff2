package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ersonp/relgraph/internal/application/handlers"
)

type bulkFlags struct {
	format string
	atomic bool
	dryRun bool
	asJSON bool
}

func newBulkCmd() *cobra.Command {
	var flags bulkFlags

	cmd := &cobra.Command{
		Use:   "bulk <file>",
		Short: "Create relationships from a JSON, YAML or CSV file",
		Long: `Creates every record of a file as one batch.

By default each record succeeds or fails on its own. With --atomic the batch
is validated as one graph, so records may depend on each other, and nothing
is written unless every record passes.

Examples:
  relgraph bulk org-chart.csv
  relgraph bulk suppliers.yaml --atomic
  relgraph bulk links.json --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBulk(cmd, args[0], flags)
		},
	}

	cmd.Flags().StringVarP(&flags.format, "format", "f", "auto", "File format (json, yaml, csv, auto)")
	cmd.Flags().BoolVar(&flags.atomic, "atomic", false, "All-or-nothing batch")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Check record structure without writing")
	cmd.Flags().BoolVar(&flags.asJSON, "json", false, "Print the report as JSON")

	return cmd
}

func runBulk(cmd *cobra.Command, filePath string, flags bulkFlags) error {
	ctx := actorContext(cmd.Context())

	return withDeps(ctx, func(deps *Deps) error {
		report, err := deps.Bulk.HandleFile(ctx, globalOrg, filePath, handlers.BulkOptions{
			Format: flags.format,
			Atomic: flags.atomic,
			DryRun: flags.dryRun,
		})
		if report != nil {
			if flags.asJSON {
				if perr := printJSON(os.Stdout, report); perr != nil {
					return perr
				}
			} else {
				printBulkReport(filePath, report)
			}
		}
		if err != nil {
			return fmt.Errorf("bulk create: %w", err)
		}
		return nil
	})
}

func printBulkReport(filePath string, report *handlers.BulkReport) {
	if len(report.ParseErrors) > 0 {
		fmt.Printf("Parse errors in %s (%d):\n", filePath, len(report.ParseErrors))
		for _, e := range report.ParseErrors {
			fmt.Printf("  %s\n", e)
		}
		return
	}

	if report.Failed > 0 {
		fmt.Printf("Failed records (%d):\n", report.Failed)
		for _, item := range report.Items {
			if item.Error == "" {
				continue
			}
			if item.Line > 0 {
				fmt.Printf("  line %d: %s\n", item.Line, item.Error)
			} else {
				fmt.Printf("  record %d: %s\n", item.Index, item.Error)
			}
		}
		fmt.Println()
	}

	switch {
	case report.DryRun:
		fmt.Printf("Dry run: %d records would be submitted", report.Succeeded)
	case report.Atomic && report.Failed > 0:
		fmt.Print("Batch rejected: nothing was written")
	default:
		fmt.Printf("Created: %d relationships", report.Succeeded)
	}
	if report.Failed > 0 {
		fmt.Printf(", %d failed", report.Failed)
	}
	fmt.Println()
}
