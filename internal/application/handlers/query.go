package handlers

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strconv"
	"strings"
	"time"

	"github.com/ersonp/relgraph/internal/domain/entities"
	"github.com/ersonp/relgraph/internal/domain/services"
)

// ErrIndexDisabled is returned by searches when no semantic index is configured.
var ErrIndexDisabled = errors.New("semantic index is disabled")

// QueryRequest is the surface form of a query: every dimension arrives as
// text from flags or URL parameters and is parsed by Filters.
type QueryRequest struct {
	Types           []string
	IsActive        string
	MinStrength     *float64
	MaxStrength     *float64
	Tiers           []string
	Directions      []string
	Classifications []string
	CurrentlyValid  bool
	ExpiringWithin  string
	ActiveFrom      string
	ActiveTo        string
	MinVersion      int64
	// Data and BusinessRules map a dotted payload path to a literal.
	// Literals that parse as JSON scalars compare as such, anything else as a string.
	Data          map[string]string
	BusinessRules map[string]string
	EntityID      string
	FromEntityID  string
	ToEntityID    string
	Text          string
	SortBy        string
	Desc          bool
	Limit         int
	PageToken     string
}

// Filters parses the request into query filters.
func (r QueryRequest) Filters() (entities.Filters, error) {
	f := entities.Filters{
		Types:           compact(r.Types),
		MinStrength:     r.MinStrength,
		MaxStrength:     r.MaxStrength,
		Classifications: compact(r.Classifications),
		CurrentlyValid:  r.CurrentlyValid,
		MinVersion:      r.MinVersion,
		EntityID:        strings.TrimSpace(r.EntityID),
		FromEntityID:    strings.TrimSpace(r.FromEntityID),
		ToEntityID:      strings.TrimSpace(r.ToEntityID),
		Text:            strings.TrimSpace(r.Text),
		Desc:            r.Desc,
		Limit:           r.Limit,
	}

	if r.IsActive != "" {
		active, err := strconv.ParseBool(r.IsActive)
		if err != nil {
			return entities.Filters{}, entities.Malformed("is_active", "invalid boolean %q", r.IsActive)
		}
		f.IsActive = &active
	}

	for _, name := range compact(r.Tiers) {
		tier, err := entities.ParseTier(name)
		if err != nil {
			return entities.Filters{}, entities.Malformed("tiers", "%v", err)
		}
		f.Tiers = append(f.Tiers, tier)
	}

	for _, name := range compact(r.Directions) {
		d, err := entities.ParseDirection(name)
		if err != nil {
			return entities.Filters{}, err
		}
		f.Directions = append(f.Directions, d)
	}

	if r.ExpiringWithin != "" {
		d, err := parseDuration(r.ExpiringWithin)
		if err != nil {
			return entities.Filters{}, entities.Malformed("expiring_within", "invalid duration %q", r.ExpiringWithin)
		}
		f.ExpiringWithin = d
	}

	if r.ActiveFrom != "" || r.ActiveTo != "" {
		from, err := entities.ParseTimestamp("active_from", r.ActiveFrom)
		if err != nil {
			return entities.Filters{}, err
		}
		to, err := entities.ParseTimestamp("active_to", r.ActiveTo)
		if err != nil {
			return entities.Filters{}, err
		}
		f.ActiveDuring = &entities.TimeWindow{From: from, To: to}
	}

	f.Data = payloadLiterals(r.Data)
	f.BusinessRules = payloadLiterals(r.BusinessRules)

	sortBy, err := entities.ParseSortField(r.SortBy)
	if err != nil {
		return entities.Filters{}, err
	}
	f.SortBy = sortBy

	return f, f.Validate()
}

// parseDuration accepts Go durations plus a whole-day form such as "30d".
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, err
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

func payloadLiterals(in map[string]string) map[string]entities.Value {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]entities.Value, len(in))
	for path, literal := range in {
		v, err := entities.ParseValue(literal)
		if err != nil || !v.IsScalar() {
			v = entities.String(literal)
		}
		out[path] = v
	}
	return out
}

// compact trims entries, splits comma lists and drops blanks.
func compact(values []string) []string {
	var out []string
	for _, v := range values {
		for part := range strings.SplitSeq(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// QueryHandler handles relationship reads.
type QueryHandler struct {
	queryService *services.QueryService
	index        *services.IndexService
}

// NewQueryHandler creates a new query handler. index may be nil when the
// semantic index is disabled.
func NewQueryHandler(queryService *services.QueryService, index *services.IndexService) *QueryHandler {
	return &QueryHandler{
		queryService: queryService,
		index:        index,
	}
}

// QueryResult contains one page of matching relationships.
type QueryResult struct {
	Items         []*entities.Relationship `json:"items"`
	NextPageToken string                   `json:"next_page_token,omitempty"`
}

// HandleQuery returns one page of relationships matching the request.
func (h *QueryHandler) HandleQuery(ctx context.Context, orgID string, req QueryRequest) (*QueryResult, error) {
	f, err := req.Filters()
	if err != nil {
		return nil, err
	}

	page, err := h.queryService.Query(ctx, orgID, f, req.PageToken)
	if err != nil {
		return nil, fmt.Errorf("querying relationships: %w", err)
	}

	items := page.Items
	if items == nil {
		items = []*entities.Relationship{}
	}
	return &QueryResult{
		Items:         items,
		NextPageToken: page.NextPageToken,
	}, nil
}

// HandleCount counts the relationships matching the request, ignoring paging.
func (h *QueryHandler) HandleCount(ctx context.Context, orgID string, req QueryRequest) (int, error) {
	f, err := req.Filters()
	if err != nil {
		return 0, err
	}
	n, err := h.queryService.Count(ctx, orgID, f)
	if err != nil {
		return 0, fmt.Errorf("counting relationships: %w", err)
	}
	return n, nil
}

// HandleStream walks every matching relationship lazily. Limit sets the
// page size of the walk, not a total.
func (h *QueryHandler) HandleStream(ctx context.Context, orgID string, req QueryRequest) (iter.Seq2[*entities.Relationship, error], error) {
	f, err := req.Filters()
	if err != nil {
		return nil, err
	}
	return h.queryService.Stream(ctx, orgID, f), nil
}

// HandleSearch ranks relationships by similarity to text.
func (h *QueryHandler) HandleSearch(ctx context.Context, orgID, text string, limit int) ([]services.SearchResult, error) {
	if h.index == nil {
		return nil, ErrIndexDisabled
	}
	results, err := h.index.Search(ctx, orgID, text, limit)
	if err != nil {
		return nil, fmt.Errorf("searching relationships: %w", err)
	}
	return results, nil
}

// HandleReindex mirrors every active relationship of orgID into the semantic
// index, batchSize records per embedding call. It returns the number of
// records sent.
func (h *QueryHandler) HandleReindex(ctx context.Context, orgID string, batchSize int) (int, error) {
	if h.index == nil {
		return 0, ErrIndexDisabled
	}
	if batchSize <= 0 {
		batchSize = services.DefaultIndexBatch
	}

	active := true
	f := entities.Filters{IsActive: &active, Limit: batchSize}

	sent := 0
	batch := make([]*entities.Relationship, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := h.index.MirrorBatch(ctx, batch); err != nil {
			return fmt.Errorf("reindexing after %d records: %w", sent, err)
		}
		sent += len(batch)
		batch = batch[:0]
		return nil
	}

	for rel, err := range h.queryService.Stream(ctx, orgID, f) {
		if err != nil {
			return sent, fmt.Errorf("reading relationships: %w", err)
		}
		batch = append(batch, rel)
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return sent, err
			}
		}
	}
	if err := flush(); err != nil {
		return sent, err
	}
	return sent, nil
}
