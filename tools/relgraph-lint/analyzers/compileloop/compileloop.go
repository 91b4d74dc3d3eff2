// Package compileloop detects regexp and jq compilation inside loops.
package compileloop

import (
	"go/ast"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/passes/inspect"
	"golang.org/x/tools/go/ast/inspector"
)

// Analyzer detects regexp.Compile and gojq.Parse style calls inside loops.
var Analyzer = &analysis.Analyzer{
	Name:     "compileloop",
	Doc:      "detects regexp and gojq compilation inside loops",
	Requires: []*analysis.Analyzer{inspect.Analyzer},
	Run:      run,
}

// compilers lists, per package name, the functions that compile a pattern.
var compilers = map[string]map[string]bool{
	"regexp": {
		"Compile":          true,
		"MustCompile":      true,
		"CompilePOSIX":     true,
		"MustCompilePOSIX": true,
	},
	"gojq": {
		"Parse":   true,
		"Compile": true,
	},
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
			call, ok := n.(*ast.CallExpr)
			if !ok {
				return true
			}

			sel, ok := call.Fun.(*ast.SelectorExpr)
			if !ok {
				return true
			}

			ident, ok := sel.X.(*ast.Ident)
			if !ok {
				return true
			}

			if compilers[ident.Name][sel.Sel.Name] {
				pass.Reportf(call.Pos(),
					"%s.%s called inside loop - compile once or cache",
					ident.Name, sel.Sel.Name)
			}

			return true
		})
	})

	return nil, nil
}
