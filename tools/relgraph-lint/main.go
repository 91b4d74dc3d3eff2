// relgraph-lint is a custom static analyzer for relgraph performance patterns.
package main

import (
	"golang.org/x/tools/go/analysis/multichecker"

	"github.com/ersonp/relgraph/tools/relgraph-lint/analyzers"
)

func main() {
	multichecker.Main(analyzers.All()...)
}
