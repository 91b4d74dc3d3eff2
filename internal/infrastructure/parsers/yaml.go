package parsers

import (
	"errors"
	"fmt"
	"io"

	"github.com/ersonp/relgraph/internal/domain/entities"
	"gopkg.in/yaml.v3"
)

// YAMLParser parses a YAML sequence of create requests.
type YAMLParser struct{}

// Parse reads YAML from the reader. Items that do not decode are reported
// by source line; the rest are returned.
func (p *YAMLParser) Parse(r io.Reader) ([]Record, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return []Record{}, nil
		}
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}

	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("parsing YAML: line %d: expected a sequence of relationships", root.Line)
	}

	records := make([]Record, 0, len(root.Content))
	var errs ParseErrors
	for _, item := range root.Content {
		var req entities.CreateRequest
		if err := item.Decode(&req); err != nil {
			errs = append(errs, LineError{Line: item.Line, Err: err})
			continue
		}
		records = append(records, Record{Request: req, Line: item.Line})
	}
	return records, errs.orNil()
}
