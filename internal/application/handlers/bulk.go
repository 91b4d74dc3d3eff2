package handlers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ersonp/relgraph/internal/domain/entities"
	"github.com/ersonp/relgraph/internal/domain/services"
	"github.com/ersonp/relgraph/internal/infrastructure/parsers"
)

// BulkHandler handles batch creation from files and request bodies.
type BulkHandler struct {
	service *services.BulkService
}

// NewBulkHandler creates a new bulk handler.
func NewBulkHandler(service *services.BulkService) *BulkHandler {
	return &BulkHandler{
		service: service,
	}
}

// BulkOptions controls bulk behavior.
type BulkOptions struct {
	Format string // "json", "yaml", "csv", or "auto"
	Atomic bool   // All-or-nothing
	DryRun bool   // Check record structure without writing
}

// BulkItem is the outcome of one submitted record.
type BulkItem struct {
	Index        int                    `json:"index"`
	Line         int                    `json:"line,omitempty"`
	Relationship *entities.Relationship `json:"relationship,omitempty"`
	Error        string                 `json:"error,omitempty"`
}

// BulkReport contains the result of a bulk operation.
type BulkReport struct {
	Atomic      bool       `json:"atomic"`
	DryRun      bool       `json:"dry_run,omitempty"`
	Succeeded   int        `json:"succeeded"`
	Failed      int        `json:"failed"`
	Items       []BulkItem `json:"items"`
	ParseErrors []string   `json:"parse_errors,omitempty"`
}

// HandleFile reads create requests from a file and submits them as one
// batch. A file with any undecodable record is rejected before submission;
// the report then lists every parse error.
func (h *BulkHandler) HandleFile(ctx context.Context, orgID, filePath string, opts BulkOptions) (*BulkReport, error) {
	var parser parsers.Parser
	if opts.Format == "" || opts.Format == "auto" {
		parser = parsers.ForFile(filePath)
	} else {
		parser = parsers.ForFormat(opts.Format)
	}

	if parser == nil {
		return nil, fmt.Errorf("unsupported format for file: %s (supported: %s)", filePath, strings.Join(parsers.Formats, ", "))
	}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer file.Close()

	records, err := parser.Parse(file)
	if err != nil {
		var perrs parsers.ParseErrors
		if errors.As(err, &perrs) {
			report := &BulkReport{Atomic: opts.Atomic, DryRun: opts.DryRun, Items: []BulkItem{}}
			for _, le := range perrs {
				report.ParseErrors = append(report.ParseErrors, le.Error())
			}
			return report, fmt.Errorf("parsing %s: %w", filePath, entities.Malformed("records", "%v", err))
		}
		return nil, fmt.Errorf("parsing %s: %w", filePath, err)
	}

	reqs := make([]entities.CreateRequest, len(records))
	lines := make([]int, len(records))
	for i, rec := range records {
		reqs[i] = rec.Request
		lines[i] = rec.Line
	}

	if opts.DryRun {
		return checkRecords(orgID, reqs, lines, opts.Atomic), nil
	}
	return h.submit(ctx, orgID, reqs, lines, opts.Atomic)
}

// HandleRequests submits create requests decoded elsewhere, e.g. from an
// HTTP body.
func (h *BulkHandler) HandleRequests(ctx context.Context, orgID string, reqs []entities.CreateRequest, atomic bool) (*BulkReport, error) {
	return h.submit(ctx, orgID, reqs, nil, atomic)
}

func (h *BulkHandler) submit(ctx context.Context, orgID string, reqs []entities.CreateRequest, lines []int, atomic bool) (*BulkReport, error) {
	result, err := h.service.BulkCreate(ctx, orgID, reqs, atomic)
	if result == nil {
		return nil, err
	}

	report := &BulkReport{
		Atomic:    result.Atomic,
		Succeeded: result.Succeeded,
		Failed:    result.Failed,
		Items:     make([]BulkItem, len(result.Results)),
	}
	for i, item := range result.Results {
		report.Items[i] = BulkItem{
			Index:        item.Index,
			Line:         lineOf(lines, item.Index),
			Relationship: item.Relationship,
		}
		if item.Err != nil {
			report.Items[i].Error = item.Err.Error()
		}
	}
	return report, err
}

// checkRecords runs the structural record checks without touching the store.
func checkRecords(orgID string, reqs []entities.CreateRequest, lines []int, atomic bool) *BulkReport {
	report := &BulkReport{
		Atomic: atomic,
		DryRun: true,
		Items:  make([]BulkItem, len(reqs)),
	}
	for i, req := range reqs {
		report.Items[i] = BulkItem{Index: i, Line: lineOf(lines, i)}

		err := checkTenant(orgID, req.OrganizationID)
		if err == nil {
			req.OrganizationID = orgID
			_, err = entities.NewRelationship(req)
		}
		if err != nil {
			report.Items[i].Error = err.Error()
			report.Failed++
			continue
		}
		report.Succeeded++
	}
	return report
}

func checkTenant(orgID, submitted string) error {
	if orgID == "" {
		return entities.Malformed("organization_id", "is required")
	}
	if submitted = strings.TrimSpace(submitted); submitted != "" && submitted != orgID {
		return entities.TenantMismatch(orgID, submitted)
	}
	return nil
}

func lineOf(lines []int, index int) int {
	if index < len(lines) {
		return lines[index]
	}
	return 0
}
