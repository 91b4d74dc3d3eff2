package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/ersonp/relgraph/internal/application/handlers"
	"github.com/ersonp/relgraph/internal/domain/entities"
	"github.com/labstack/echo/v4"
)

const orgContextKey = "organization_id"

type api struct {
	h Handlers
	// seeded records the organizations whose default types were loaded.
	seeded       sync.Map
	seedDefaults bool
}

func registerRoutes(g *echo.Group, a *api) {
	rels := g.Group("/relationships")
	rels.POST("", a.createRelationship)
	rels.GET("", a.queryRelationships)
	rels.GET("/count", a.countRelationships)
	rels.POST("/bulk", a.bulkCreate)
	rels.GET("/:id", a.getRelationship)
	rels.PATCH("/:id", a.updateRelationship)
	rels.POST("/:id/deactivate", a.deactivateRelationship)
	rels.GET("/:id/history", a.relationshipHistory)

	graph := g.Group("/graph")
	graph.GET("/chain", a.chain)
	graph.GET("/expand/:id", a.expand)

	types := g.Group("/types")
	types.GET("", a.listTypes)
	types.POST("", a.addType)
	types.GET("/:name", a.describeType)
	types.DELETE("/:name", a.removeType)

	g.GET("/search", a.search)
}

// tenant requires the organization header and attaches the actor to the
// request context. The first request of an organization seeds its default
// types when enabled.
func (a *api) tenant(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		orgID := strings.TrimSpace(c.Request().Header.Get(HeaderOrganizationID))
		if orgID == "" {
			return entities.Malformed("organization_id", "header %s is required", HeaderOrganizationID)
		}
		c.Set(orgContextKey, orgID)

		if a.seedDefaults {
			if _, done := a.seeded.Load(orgID); !done {
				if err := a.h.Types.HandleLoadDefaults(c.Request().Context(), orgID); err != nil {
					return err
				}
				a.seeded.Store(orgID, struct{}{})
			}
		}

		if actor := strings.TrimSpace(c.Request().Header.Get(HeaderActor)); actor != "" {
			req := c.Request()
			c.SetRequest(req.WithContext(entities.WithActor(req.Context(), actor)))
		}
		return next(c)
	}
}

func orgOf(c echo.Context) string {
	orgID, _ := c.Get(orgContextKey).(string)
	return orgID
}

func decodeBody(c echo.Context, v any) error {
	return bindError((&echo.DefaultBinder{}).BindBody(c, v))
}

func (a *api) createRelationship(c echo.Context) error {
	var req entities.CreateRequest
	if err := decodeBody(c, &req); err != nil {
		return err
	}
	rel, err := a.h.Relationships.HandleCreate(c.Request().Context(), orgOf(c), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, rel)
}

func (a *api) getRelationship(c echo.Context) error {
	rel, err := a.h.Relationships.HandleGet(c.Request().Context(), orgOf(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rel)
}

func (a *api) updateRelationship(c echo.Context) error {
	var req handlers.UpdateRequest
	if err := decodeBody(c, &req); err != nil {
		return err
	}
	rel, err := a.h.Relationships.HandleUpdate(c.Request().Context(), orgOf(c), c.Param("id"), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rel)
}

func (a *api) deactivateRelationship(c echo.Context) error {
	var body struct {
		ExpectedVersion int64 `json:"expected_version"`
	}
	if err := decodeBody(c, &body); err != nil {
		return err
	}
	if body.ExpectedVersion == 0 {
		if err := bindError(echo.QueryParamsBinder(c).Int64("expected_version", &body.ExpectedVersion).BindError()); err != nil {
			return err
		}
	}
	rel, err := a.h.Relationships.HandleDeactivate(c.Request().Context(), orgOf(c), c.Param("id"), body.ExpectedVersion)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rel)
}

func (a *api) relationshipHistory(c echo.Context) error {
	entries, err := a.h.Relationships.HandleHistory(c.Request().Context(), orgOf(c), c.Param("id"))
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []entities.AuditEntry{}
	}
	return c.JSON(http.StatusOK, entries)
}

func (a *api) queryRelationships(c echo.Context) error {
	req, err := queryRequest(c)
	if err != nil {
		return err
	}

	stream, _ := strconv.ParseBool(c.QueryParam("stream"))
	if stream {
		return a.streamRelationships(c, req)
	}

	result, err := a.h.Queries.HandleQuery(c.Request().Context(), orgOf(c), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// streamRelationships writes every match as newline-delimited JSON. A failure
// after the first byte is reported as a trailing error line.
func (a *api) streamRelationships(c echo.Context, req handlers.QueryRequest) error {
	seq, err := a.h.Queries.HandleStream(c.Request().Context(), orgOf(c), req)
	if err != nil {
		return err
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "application/x-ndjson")
	res.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(res)
	for rel, err := range seq {
		if err != nil {
			_, detail := classify(err)
			return enc.Encode(errorBody{Error: detail})
		}
		if err := enc.Encode(rel); err != nil {
			return err
		}
		res.Flush()
	}
	return nil
}

func (a *api) countRelationships(c echo.Context) error {
	req, err := queryRequest(c)
	if err != nil {
		return err
	}
	n, err := a.h.Queries.HandleCount(c.Request().Context(), orgOf(c), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]int{"count": n})
}

// queryRequest reads query filters from URL parameters. Payload filters use
// the data.<path> and business_rules.<path> prefixes.
func queryRequest(c echo.Context) (handlers.QueryRequest, error) {
	var req handlers.QueryRequest
	err := echo.QueryParamsBinder(c).
		Strings("type", &req.Types).
		String("is_active", &req.IsActive).
		Strings("tier", &req.Tiers).
		Strings("direction", &req.Directions).
		Strings("classification", &req.Classifications).
		Bool("currently_valid", &req.CurrentlyValid).
		String("expiring_within", &req.ExpiringWithin).
		String("active_from", &req.ActiveFrom).
		String("active_to", &req.ActiveTo).
		Int64("min_version", &req.MinVersion).
		String("entity_id", &req.EntityID).
		String("from", &req.FromEntityID).
		String("to", &req.ToEntityID).
		String("text", &req.Text).
		String("sort", &req.SortBy).
		Bool("desc", &req.Desc).
		Int("limit", &req.Limit).
		String("page_token", &req.PageToken).
		BindError()
	if err != nil {
		return handlers.QueryRequest{}, bindError(err)
	}

	if req.MinStrength, err = floatParam(c, "min_strength"); err != nil {
		return handlers.QueryRequest{}, err
	}
	if req.MaxStrength, err = floatParam(c, "max_strength"); err != nil {
		return handlers.QueryRequest{}, err
	}

	for key, values := range c.QueryParams() {
		if len(values) == 0 {
			continue
		}
		if path, ok := strings.CutPrefix(key, "data."); ok {
			if req.Data == nil {
				req.Data = make(map[string]string)
			}
			req.Data[path] = values[0]
		}
		if path, ok := strings.CutPrefix(key, "business_rules."); ok {
			if req.BusinessRules == nil {
				req.BusinessRules = make(map[string]string)
			}
			req.BusinessRules[path] = values[0]
		}
	}
	return req, nil
}

func floatParam(c echo.Context, name string) (*float64, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, entities.Malformed(name, "invalid number %q", raw)
	}
	return &v, nil
}

func walkOptions(c echo.Context, limitParam string) (handlers.WalkOptions, error) {
	var opts handlers.WalkOptions
	err := echo.QueryParamsBinder(c).
		Int("max_depth", &opts.MaxDepth).
		Strings("type", &opts.Types).
		Int(limitParam, &opts.Limit).
		BindError()
	return opts, bindError(err)
}

func (a *api) chain(c echo.Context) error {
	opts, err := walkOptions(c, "max_paths")
	if err != nil {
		return err
	}
	result, err := a.h.Graph.HandleChain(c.Request().Context(), orgOf(c), c.QueryParam("from"), c.QueryParam("to"), opts)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (a *api) expand(c echo.Context) error {
	opts, err := walkOptions(c, "max_nodes")
	if err != nil {
		return err
	}
	result, err := a.h.Graph.HandleExpand(c.Request().Context(), orgOf(c), c.Param("id"), opts)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

type bulkBody struct {
	Atomic  bool                     `json:"atomic"`
	Records []entities.CreateRequest `json:"records"`
}

func (a *api) bulkCreate(c echo.Context) error {
	var body bulkBody
	if err := decodeBody(c, &body); err != nil {
		return err
	}
	report, err := a.h.Bulk.HandleRequests(c.Request().Context(), orgOf(c), body.Records, body.Atomic)
	if err != nil {
		if report != nil {
			return &batchRejected{err: err, report: report}
		}
		return err
	}

	status := http.StatusCreated
	if report.Failed > 0 {
		status = http.StatusMultiStatus
	}
	return c.JSON(status, report)
}

func (a *api) listTypes(c echo.Context) error {
	types, err := a.h.Types.HandleList(c.Request().Context(), orgOf(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, types)
}

func (a *api) addType(c echo.Context) error {
	var t entities.RelationshipType
	if err := decodeBody(c, &t); err != nil {
		return err
	}
	added, err := a.h.Types.HandleAdd(c.Request().Context(), orgOf(c), t)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, added)
}

func (a *api) describeType(c echo.Context) error {
	t, err := a.h.Types.HandleDescribe(c.Request().Context(), orgOf(c), c.Param("name"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
}

func (a *api) removeType(c echo.Context) error {
	if err := a.h.Types.HandleRemove(c.Request().Context(), orgOf(c), c.Param("name")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (a *api) search(c echo.Context) error {
	var limit int
	if err := bindError(echo.QueryParamsBinder(c).Int("limit", &limit).BindError()); err != nil {
		return err
	}
	results, err := a.h.Queries.HandleSearch(c.Request().Context(), orgOf(c), c.QueryParam("q"), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, results)
}
