// Package main provides the entry point for the relgraph CLI application.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	version     = "0.1.0-dev"
	globalOrg   string
	globalActor string
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	rootCmd := &cobra.Command{
		Use:           "relgraph",
		Short:         "A multi-tenant relationship graph with validated, versioned edges",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&globalOrg, "org", "o", os.Getenv("RELGRAPH_ORG"), "Organization to operate on (or set RELGRAPH_ORG)")
	rootCmd.PersistentFlags().StringVar(&globalActor, "actor", os.Getenv("USER"), "Actor recorded in the audit log")

	rootCmd.AddCommand(
		newInitCmd(),
		newCreateCmd(),
		newGetCmd(),
		newUpdateCmd(),
		newDeactivateCmd(),
		newHistoryCmd(),
		newQueryCmd(),
		newCountCmd(),
		newChainCmd(),
		newExpandCmd(),
		newBulkCmd(),
		newExportCmd(),
		newTypesCmd(),
		newSearchCmd(),
		newIndexCmd(),
		newServeCmd(),
	)

	return rootCmd.ExecuteContext(ctx)
}
