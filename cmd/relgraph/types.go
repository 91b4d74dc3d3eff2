package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ersonp/relgraph/internal/domain/entities"
)

func newTypesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "types",
		Short: "Manage relationship types",
		Long:  "List, add, or remove the relationship types registered for an organization.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTypesList(cmd)
		},
	}

	cmd.AddCommand(newTypesListCmd())
	cmd.AddCommand(newTypesAddCmd())
	cmd.AddCommand(newTypesRemoveCmd())
	cmd.AddCommand(newTypesDescribeCmd())

	return cmd
}

func newTypesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all relationship types",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTypesList(cmd)
		},
	}
}

func runTypesList(cmd *cobra.Command) error {
	ctx := cmd.Context()

	return withDeps(ctx, func(deps *Deps) error {
		types, err := deps.Types.HandleList(ctx, globalOrg)
		if err != nil {
			return fmt.Errorf("listing types: %w", err)
		}

		if len(types) == 0 {
			fmt.Println("No relationship types found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tHIERARCHICAL\tSELF-REF\tMAX DEPTH\tDESCRIPTION\tDEFAULT")
		for i := range types {
			isDefault := ""
			if entities.IsDefaultType(types[i].Name) {
				isDefault = "yes"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				types[i].Name,
				yesNo(types[i].Hierarchical),
				yesNo(types[i].AllowSelfReference),
				depthLabel(types[i].MaxDepth),
				truncate(types[i].Description, 50),
				isDefault,
			)
		}
		w.Flush()

		return nil
	})
}

type typeFlags struct {
	description        string
	hierarchical       bool
	allowSelfReference bool
	maxDepth           int
}

func newTypesAddCmd() *cobra.Command {
	var flags typeFlags

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a custom relationship type",
		Long: `Add a new custom relationship type. Name must be lowercase with underscores.
Hierarchical types reject cycles and bidirectional edges.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withDeps(ctx, func(deps *Deps) error {
				t, err := deps.Types.HandleAdd(ctx, globalOrg, entities.RelationshipType{
					Name:               args[0],
					Description:        flags.description,
					Hierarchical:       flags.hierarchical,
					AllowSelfReference: flags.allowSelfReference,
					MaxDepth:           flags.maxDepth,
				})
				if err != nil {
					return fmt.Errorf("adding type: %w", err)
				}
				fmt.Printf("Added relationship type: %s\n", t.Name)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&flags.description, "description", "d", "", "What the type means")
	cmd.Flags().BoolVar(&flags.hierarchical, "hierarchical", false, "Reject cycles and bidirectional edges")
	cmd.Flags().BoolVar(&flags.allowSelfReference, "allow-self-reference", false, "Allow edges from an entity to itself")
	cmd.Flags().IntVar(&flags.maxDepth, "max-depth", 0, "Cycle search depth for this type (0 uses the default)")

	return cmd
}

func newTypesRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a custom relationship type",
		Long:  "Remove a custom relationship type. Default types cannot be removed.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withDeps(ctx, func(deps *Deps) error {
				if err := deps.Types.HandleRemove(ctx, globalOrg, args[0]); err != nil {
					return fmt.Errorf("removing type: %w", err)
				}
				fmt.Printf("Removed relationship type: %s\n", args[0])
				return nil
			})
		},
	}
}

func newTypesDescribeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "describe <name>",
		Short: "Show details of a relationship type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withDeps(ctx, func(deps *Deps) error {
				t, err := deps.Types.HandleDescribe(ctx, globalOrg, args[0])
				if err != nil {
					return err
				}

				fmt.Printf("Name:                 %s\n", t.Name)
				fmt.Printf("Description:          %s\n", t.Description)
				fmt.Printf("Hierarchical:         %s\n", yesNo(t.Hierarchical))
				fmt.Printf("Allow self reference: %s\n", yesNo(t.AllowSelfReference))
				fmt.Printf("Max depth:            %s\n", depthLabel(t.MaxDepth))
				if entities.IsDefaultType(t.Name) {
					fmt.Println("Default:              yes")
				}
				return nil
			})
		},
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func depthLabel(d int) string {
	if d <= 0 {
		return "default"
	}
	return fmt.Sprint(d)
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
