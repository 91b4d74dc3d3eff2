// Package parsers reads relationship create requests from JSON, YAML and CSV files.
package parsers

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ersonp/relgraph/internal/domain/entities"
)

// Record is one create request read from a file.
type Record struct {
	Request entities.CreateRequest
	// Line is the source line for YAML and CSV, the 1-based array position for JSON.
	Line int
}

// LineError reports one record that could not be decoded.
type LineError struct {
	Line int
	Err  error
}

func (e LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e LineError) Unwrap() error { return e.Err }

// ParseErrors lists every record a parser rejected. Parsers return it
// alongside the records they could decode.
type ParseErrors []LineError

func (e ParseErrors) Error() string {
	msgs := make([]string, len(e))
	for i, le := range e {
		msgs[i] = le.Error()
	}
	return fmt.Sprintf("%d invalid record(s): %s", len(e), strings.Join(msgs, "; "))
}

// orNil keeps a nil ParseErrors from turning into a non-nil error.
func (e ParseErrors) orNil() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// Parser defines the interface for reading create requests.
type Parser interface {
	Parse(r io.Reader) ([]Record, error)
}

// Formats lists the supported format names.
var Formats = []string{"json", "yaml", "csv"}

// ForFormat returns the appropriate parser for the given format.
func ForFormat(format string) Parser {
	switch strings.ToLower(format) {
	case "json":
		return &JSONParser{}
	case "yaml", "yml":
		return &YAMLParser{}
	case "csv":
		return &CSVParser{}
	default:
		return nil
	}
}

// ForFile returns the appropriate parser based on file extension.
func ForFile(filename string) Parser {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if ext == "" {
		return nil
	}
	return ForFormat(ext)
}
