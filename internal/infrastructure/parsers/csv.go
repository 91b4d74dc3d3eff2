package parsers

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ersonp/relgraph/internal/domain/entities"
)

// CSVColumns lists every column the CSV parser understands, in export order.
var CSVColumns = []string{
	"organization_id", "from_entity_id", "to_entity_id", "relationship_type", "smart_code",
	"strength", "direction", "is_active", "effective_at", "expires_at",
	"data", "business_rules", "validation_rules", "auto_classify",
}

var requiredColumns = []string{"from_entity_id", "to_entity_id", "relationship_type", "smart_code"}

// CSVParser parses create requests from CSV with a header row.
// Payload columns hold JSON documents; empty cells mean unset.
type CSVParser struct{}

// Parse reads CSV from the reader. Rows that do not decode are reported by
// line; the rest are returned.
func (p *CSVParser) Parse(r io.Reader) ([]Record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	colIndex, err := p.readHeader(reader)
	if err != nil {
		return nil, err
	}

	return p.readRecords(reader, colIndex)
}

// readHeader reads and validates the CSV header row.
func (p *CSVParser) readHeader(reader *csv.Reader) (map[string]int, error) {
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.TrimSpace(col)] = i
	}

	for _, col := range requiredColumns {
		if _, ok := colIndex[col]; !ok {
			return nil, fmt.Errorf("missing required column: %s", col)
		}
	}

	return colIndex, nil
}

// readRecords reads all data rows and converts them to records.
func (p *CSVParser) readRecords(reader *csv.Reader, colIndex map[string]int) ([]Record, error) {
	var records []Record
	var errs ParseErrors

	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				errs = append(errs, LineError{Line: perr.Line, Err: perr.Err})
				continue
			}
			return nil, fmt.Errorf("reading CSV: %w", err)
		}
		line, _ := reader.FieldPos(0)

		req, err := p.parseRow(row, colIndex)
		if err != nil {
			errs = append(errs, LineError{Line: line, Err: err})
			continue
		}
		records = append(records, Record{Request: req, Line: line})
	}

	return records, errs.orNil()
}

// parseRow converts one CSV row to a create request.
func (p *CSVParser) parseRow(row []string, colIndex map[string]int) (entities.CreateRequest, error) {
	get := func(col string) string { return getColumn(row, colIndex, col) }

	req := entities.CreateRequest{
		OrganizationID:   get("organization_id"),
		FromEntityID:     get("from_entity_id"),
		ToEntityID:       get("to_entity_id"),
		RelationshipType: get("relationship_type"),
		SmartCode:        get("smart_code"),
		Direction:        entities.Direction(get("direction")),
	}

	if s := get("strength"); s != "" {
		strength, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return req, fmt.Errorf("invalid strength %q: %w", s, err)
		}
		req.Strength = &strength
	}
	if s := get("is_active"); s != "" {
		active, err := strconv.ParseBool(s)
		if err != nil {
			return req, fmt.Errorf("invalid is_active %q: %w", s, err)
		}
		req.IsActive = &active
	}
	if s := get("auto_classify"); s != "" {
		auto, err := strconv.ParseBool(s)
		if err != nil {
			return req, fmt.Errorf("invalid auto_classify %q: %w", s, err)
		}
		req.AIProcessing.AutoClassify = auto
	}

	var err error
	if req.EffectiveAt, err = entities.ParseTimestamp("effective_at", get("effective_at")); err != nil {
		return req, err
	}
	if req.ExpiresAt, err = entities.ParseTimestamp("expires_at", get("expires_at")); err != nil {
		return req, err
	}

	payloads := []struct {
		col string
		dst *entities.Value
	}{
		{"data", &req.Data},
		{"business_rules", &req.BusinessRules},
		{"validation_rules", &req.ValidationRules},
	}
	for _, pl := range payloads {
		v, err := entities.ParseValue(get(pl.col))
		if err != nil {
			return req, fmt.Errorf("invalid %s JSON: %w", pl.col, err)
		}
		*pl.dst = v
	}

	return req, nil
}

// getColumn safely retrieves a column value from a row.
func getColumn(row []string, colIndex map[string]int, col string) string {
	if idx, ok := colIndex[col]; ok && idx < len(row) {
		return strings.TrimSpace(row[idx])
	}
	return ""
}
