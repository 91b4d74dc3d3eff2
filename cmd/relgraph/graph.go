package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ersonp/relgraph/internal/application/handlers"
	"github.com/ersonp/relgraph/internal/domain/services"
)

type walkFlags struct {
	maxDepth int
	types    []string
	limit    int
	asJSON   bool
}

func newChainCmd() *cobra.Command {
	var flags walkFlags

	cmd := &cobra.Command{
		Use:   "chain <from-entity> <to-entity>",
		Short: "Find the shortest relationship paths between two entities",
		Long: `Finds every shortest path from one entity to another over currently
valid relationships.

Examples:
  relgraph chain emp-42 ceo
  relgraph chain emp-42 ceo --type reports_to --max-depth 8`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withDeps(ctx, func(deps *Deps) error {
				result, err := deps.Graph.HandleChain(ctx, globalOrg, args[0], args[1], flags.options())
				if err != nil {
					return err
				}
				if flags.asJSON {
					return printJSON(os.Stdout, result)
				}
				printChain(args[0], args[1], result)
				return nil
			})
		},
	}

	flags.register(cmd, "max-paths", "Maximum number of paths to return")

	return cmd
}

func newExpandCmd() *cobra.Command {
	var flags walkFlags

	cmd := &cobra.Command{
		Use:   "expand <entity>",
		Short: "Show every entity reachable from an entity",
		Long: `Walks outward breadth-first over currently valid relationships and prints
the resulting tree.

Examples:
  relgraph expand ceo --max-depth 2
  relgraph expand acme --type supplier_partnership --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withDeps(ctx, func(deps *Deps) error {
				result, err := deps.Graph.HandleExpand(ctx, globalOrg, args[0], flags.options())
				if err != nil {
					return err
				}
				if flags.asJSON {
					return printJSON(os.Stdout, result)
				}
				printTree(result.Root, "", true, true)
				fmt.Printf("\n%d reachable entities", len(result.Nodes))
				if result.Truncated {
					fmt.Print(" (truncated)")
				}
				fmt.Println()
				return nil
			})
		},
	}

	flags.register(cmd, "max-nodes", "Maximum number of entities to visit")

	return cmd
}

func (f *walkFlags) register(cmd *cobra.Command, limitName, limitUsage string) {
	cmd.Flags().IntVar(&f.maxDepth, "max-depth", 0, "Maximum hops (default from config)")
	cmd.Flags().StringSliceVarP(&f.types, "type", "t", nil, "Only follow these relationship types")
	cmd.Flags().IntVar(&f.limit, limitName, 0, limitUsage+" (default from config)")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "Print the result as JSON")
}

func (f *walkFlags) options() handlers.WalkOptions {
	return handlers.WalkOptions{
		MaxDepth: f.maxDepth,
		Types:    f.types,
		Limit:    f.limit,
	}
}

func printChain(from, to string, result *services.ChainResult) {
	if len(result.Paths) == 0 {
		fmt.Printf("No path from %s to %s\n", from, to)
		return
	}
	fmt.Printf("%d path(s) of %d hop(s) from %s to %s\n", len(result.Paths), result.Depth, from, to)
	for i, p := range result.Paths {
		fmt.Printf("%d. %s\n", i+1, p.String())
	}
	if result.Truncated {
		fmt.Println("(more paths exist; raise --max-paths)")
	}
}

func printTree(node *services.TreeNode, prefix string, isLast, isRoot bool) {
	if isRoot {
		fmt.Println(node.EntityID)
	} else {
		branch := "+- "
		if isLast {
			branch = "\\- "
		}
		label := node.EntityID
		if node.Via != nil {
			label = fmt.Sprintf("%s [%s]", node.EntityID, node.Via.RelationshipType)
		}
		fmt.Printf("%s%s%s\n", prefix, branch, label)
		if isLast {
			prefix += "   "
		} else {
			prefix += "|  "
		}
	}
	for i, child := range node.Children {
		printTree(child, prefix, i == len(node.Children)-1, false)
	}
}
