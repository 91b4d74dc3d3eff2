package parsers

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/ersonp/relgraph/internal/domain/entities"
)

// JSONParser parses a JSON array of create requests.
type JSONParser struct{}

// Parse reads JSON from the reader. Elements that do not decode are
// reported by array position; the rest are returned.
func (p *JSONParser) Parse(r io.Reader) ([]Record, error) {
	var raw []json.RawMessage

	decoder := json.NewDecoder(r)
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}

	records := make([]Record, 0, len(raw))
	var errs ParseErrors
	for i, msg := range raw {
		var req entities.CreateRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			errs = append(errs, LineError{Line: i + 1, Err: err})
			continue
		}
		records = append(records, Record{Request: req, Line: i + 1})
	}
	return records, errs.orNil()
}
