package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ersonp/relgraph/internal/application/handlers"
	"github.com/ersonp/relgraph/internal/domain/ports"
	"github.com/ersonp/relgraph/internal/infrastructure/config"
	"github.com/ersonp/relgraph/internal/infrastructure/vectordb/qdrant"
)

func newInitCmd() *cobra.Command {
	var withIndex bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new relgraph project",
		Long: `Creates a .relgraph directory with default configuration.
With --index, also creates the Qdrant collection used by semantic search.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, withIndex)
		},
	}

	cmd.Flags().BoolVar(&withIndex, "index", false, "Create the Qdrant collection for semantic search")

	return cmd
}

func runInit(cmd *cobra.Command, withIndex bool) error {
	ctx := cmd.Context()

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	var manager ports.CollectionManager
	if withIndex {
		repo, err := qdrant.NewRepository(config.Default().Qdrant)
		if err != nil {
			return fmt.Errorf("connecting to qdrant: %w", err)
		}
		defer repo.Close()
		manager = repo
	}

	result, err := handlers.NewInitHandler(manager).Handle(ctx, cwd)
	if err != nil {
		return err
	}

	fmt.Printf("Created %s\n", result.ConfigPath)
	fmt.Printf("Database: %s\n", result.DatabasePath)
	if result.CollectionName != "" {
		fmt.Printf("Created Qdrant collection: %s\n", result.CollectionName)
		fmt.Println("Set index.enabled: true in the config to mirror writes.")
	}
	fmt.Println("relgraph initialized successfully!")

	return nil
}
