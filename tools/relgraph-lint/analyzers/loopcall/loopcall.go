// Package loopcall detects per-record embedding, scoring and index calls
// inside loops.
package loopcall

import (
	"go/ast"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/passes/inspect"
	"golang.org/x/tools/go/ast/inspector"
)

// Analyzer detects per-record calls inside loops that have a batch form.
var Analyzer = &analysis.Analyzer{
	Name:     "loopcall",
	Doc:      "detects per-record embedding, scoring and index calls inside loops that should be batched",
	Requires: []*analysis.Analyzer{inspect.Analyzer},
	Run:      run,
}

// batchable maps a per-record method to the call that should replace it.
var batchable = map[string]string{
	"Embed":                "EmbedBatch",
	"Mirror":               "MirrorBatch",
	"Score":                "a single scoring pass",
	"FindRelationshipType": "RelationshipTypeService.Policy",
	"HandleCreate":         "BulkHandler.HandleRequests",
}

func run(pass *analysis.Pass) (any, error) {
	inspect := pass.ResultOf[inspect.Analyzer].(*inspector.Inspector)

	nodeFilter := []ast.Node{
		(*ast.RangeStmt)(nil),
		(*ast.ForStmt)(nil),
	}

	inspect.Preorder(nodeFilter, func(n ast.Node) {
		var body *ast.BlockStmt
		switch stmt := n.(type) {
		case *ast.RangeStmt:
			body = stmt.Body
		case *ast.ForStmt:
			body = stmt.Body
		}
		if body == nil {
			return
		}

		ast.Inspect(body, func(n ast.Node) bool {
			// Closures run later, not per iteration.
			if _, ok := n.(*ast.FuncLit); ok {
				return false
			}

			call, ok := n.(*ast.CallExpr)
			if !ok {
				return true
			}

			sel, ok := call.Fun.(*ast.SelectorExpr)
			if !ok {
				return true
			}

			if instead, ok := batchable[sel.Sel.Name]; ok {
				pass.Reportf(call.Pos(),
					"potential N+1: %s called inside loop - use %s",
					sel.Sel.Name, instead)
			}

			return true
		})
	})

	return nil, nil
}
