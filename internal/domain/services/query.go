package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"iter"
	"strconv"
	"strings"
	"time"

	"github.com/ersonp/relgraph/internal/domain/entities"
	"github.com/ersonp/relgraph/internal/domain/ports"
)

// Query limits used when the caller does not configure them.
const (
	DefaultQueryLimit = 50
	MaxQueryLimit     = 500
)

// Page is one page of query results. NextPageToken is empty on the last page.
type Page struct {
	Items         []*entities.Relationship `json:"items"`
	NextPageToken string                   `json:"next_page_token,omitempty"`
}

// QueryService answers flat, filtered reads over the relationship store.
type QueryService struct {
	reader       ports.GraphReader
	tiers        entities.TierPolicy
	defaultLimit int
	maxLimit     int
	now          func() time.Time
}

// NewQueryService creates a new QueryService. Non-positive limits fall back
// to DefaultQueryLimit and MaxQueryLimit.
func NewQueryService(reader ports.GraphReader, tiers entities.TierPolicy, defaultLimit, maxLimit int) *QueryService {
	if maxLimit <= 0 {
		maxLimit = MaxQueryLimit
	}
	if defaultLimit <= 0 || defaultLimit > maxLimit {
		defaultLimit = min(DefaultQueryLimit, maxLimit)
	}
	if tiers.Validate() != nil {
		tiers = entities.DefaultTierPolicy()
	}
	return &QueryService{
		reader:       reader,
		tiers:        tiers,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
		now:          time.Now,
	}
}

// Tiers returns the strength tier policy queries are resolved against.
func (s *QueryService) Tiers() entities.TierPolicy {
	return s.tiers
}

// Query returns one page of matching records. pageToken continues a previous
// page; the token also pins the instant temporal filters were evaluated at.
func (s *QueryService) Query(ctx context.Context, orgID string, f entities.Filters, pageToken string) (*Page, error) {
	if err := s.prepare(orgID, &f, pageToken); err != nil {
		return nil, err
	}

	limit := f.Limit
	f.Limit = limit + 1
	items, err := s.reader.QueryRelationships(ctx, orgID, f)
	if err != nil {
		return nil, fmt.Errorf("querying relationships: %w", err)
	}

	page := &Page{Items: items}
	if len(items) > limit {
		page.Items = items[:limit]
		page.NextPageToken = encodePageToken(f.Offset+limit, f.Now)
	}
	return page, nil
}

// Stream walks every matching record page by page. It stops at the first
// error, which is yielded once.
func (s *QueryService) Stream(ctx context.Context, orgID string, f entities.Filters) iter.Seq2[*entities.Relationship, error] {
	return func(yield func(*entities.Relationship, error) bool) {
		token := ""
		for {
			page, err := s.Query(ctx, orgID, f, token)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, rel := range page.Items {
				if !yield(rel, nil) {
					return
				}
			}
			if page.NextPageToken == "" {
				return
			}
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			token = page.NextPageToken
		}
	}
}

// Count returns the number of matching records, ignoring paging.
func (s *QueryService) Count(ctx context.Context, orgID string, f entities.Filters) (int, error) {
	if err := s.prepare(orgID, &f, ""); err != nil {
		return 0, err
	}
	n, err := s.reader.CountRelationships(ctx, orgID, f)
	if err != nil {
		return 0, fmt.Errorf("counting relationships: %w", err)
	}
	return n, nil
}

// prepare validates the filters and fills in paging, tiers and the clock.
func (s *QueryService) prepare(orgID string, f *entities.Filters, pageToken string) error {
	if strings.TrimSpace(orgID) == "" {
		return entities.Malformed("organization_id", "is required")
	}
	if err := f.Validate(); err != nil {
		return err
	}

	switch {
	case f.Limit == 0:
		f.Limit = s.defaultLimit
	case f.Limit > s.maxLimit:
		f.Limit = s.maxLimit
	}
	if f.Now.IsZero() {
		f.Now = s.now().UTC()
	}
	if pageToken != "" {
		offset, now, err := decodePageToken(pageToken)
		if err != nil {
			return err
		}
		f.Offset = offset
		f.Now = now
	}
	f.ResolveTiers(s.tiers)
	return nil
}

// Page tokens are "<offset>:<unix nanos>" in URL-safe base64.
func encodePageToken(offset int, now time.Time) string {
	raw := strconv.Itoa(offset) + ":" + strconv.FormatInt(now.UnixNano(), 10)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodePageToken(token string) (int, time.Time, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return 0, time.Time{}, entities.Malformed("page_token", "not a valid token")
	}
	offsetText, nanosText, ok := strings.Cut(string(raw), ":")
	if !ok {
		return 0, time.Time{}, entities.Malformed("page_token", "not a valid token")
	}
	offset, err := strconv.Atoi(offsetText)
	if err != nil || offset < 0 {
		return 0, time.Time{}, entities.Malformed("page_token", "not a valid token")
	}
	nanos, err := strconv.ParseInt(nanosText, 10, 64)
	if err != nil {
		return 0, time.Time{}, entities.Malformed("page_token", "not a valid token")
	}
	return offset, time.Unix(0, nanos).UTC(), nil
}
