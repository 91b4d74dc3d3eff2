package sqlite

import (
	"fmt"
	"strings"

	"github.com/ersonp/relgraph/internal/domain/entities"
	"github.com/ersonp/relgraph/internal/domain/ports"
	"github.com/huandu/go-sqlbuilder"
)

// sortColumns maps sort fields onto columns; only these reach ORDER BY.
var sortColumns = map[entities.SortField]string{
	entities.SortCreatedAt: "created_at",
	entities.SortUpdatedAt: "updated_at",
	entities.SortStrength:  "strength",
	entities.SortVersion:   "version",
	entities.SortType:      "relationship_type",
	entities.SortExpiresAt: "expires_at",
}

// filterConditions translates the filters into WHERE conditions on sb.
// Payload paths are embedded in the SQL text, so they must have passed
// entities.ValidPayloadPath first.
func filterConditions(sb *sqlbuilder.SelectBuilder, orgID string, f *entities.Filters) []string {
	where := []string{sb.Equal("organization_id", orgID)}

	if len(f.Types) > 0 {
		where = append(where, sb.In("relationship_type", sqlbuilder.Flatten(f.Types)...))
	}
	if f.IsActive != nil {
		where = append(where, sb.Equal("is_active", *f.IsActive))
	}
	if f.MinStrength != nil {
		where = append(where, sb.GreaterEqualThan("strength", *f.MinStrength))
	}
	if f.MaxStrength != nil {
		where = append(where, sb.LessEqualThan("strength", *f.MaxStrength))
	}
	if len(f.Bands) > 0 {
		bands := make([]string, 0, len(f.Bands))
		for _, b := range f.Bands {
			upper := sb.LessThan("strength", b.Max)
			if b.MaxInclusive {
				upper = sb.LessEqualThan("strength", b.Max)
			}
			bands = append(bands, sb.And(sb.GreaterEqualThan("strength", b.Min), upper))
		}
		where = append(where, sb.Or(bands...))
	}
	if len(f.Directions) > 0 {
		dirs := make([]any, len(f.Directions))
		for i, d := range f.Directions {
			dirs[i] = string(d)
		}
		where = append(where, sb.In("direction", dirs...))
	}
	if len(f.Classifications) > 0 {
		where = append(where, sb.In("classification", sqlbuilder.Flatten(f.Classifications)...))
	}

	now := formatTime(f.Now)
	if f.CurrentlyValid {
		where = append(where,
			sb.Equal("is_active", true),
			sb.Or(sb.IsNull("expires_at"), sb.GreaterThan("expires_at", now)),
			sb.Or(sb.IsNull("effective_at"), sb.LessEqualThan("effective_at", now)),
		)
	}
	if f.ExpiringWithin > 0 {
		where = append(where, sb.Between("expires_at", now, formatTime(f.Now.Add(f.ExpiringWithin))))
	}
	if w := f.ActiveDuring; w != nil {
		if w.To != nil {
			where = append(where, sb.Or(sb.IsNull("effective_at"), sb.LessThan("effective_at", formatTime(*w.To))))
		}
		if w.From != nil {
			where = append(where, sb.Or(sb.IsNull("expires_at"), sb.GreaterThan("expires_at", formatTime(*w.From))))
		}
	}
	if f.MinVersion > 0 {
		where = append(where, sb.GreaterEqualThan("version", f.MinVersion))
	}

	where = append(where, payloadConditions(sb, "data", f.Data)...)
	where = append(where, payloadConditions(sb, "business_rules", f.BusinessRules)...)

	if f.EntityID != "" {
		where = append(where, sb.Or(sb.Equal("from_entity_id", f.EntityID), sb.Equal("to_entity_id", f.EntityID)))
	}
	if f.FromEntityID != "" {
		where = append(where, sb.Equal("from_entity_id", f.FromEntityID))
	}
	if f.ToEntityID != "" {
		where = append(where, sb.Equal("to_entity_id", f.ToEntityID))
	}
	if f.Text != "" {
		pattern := "%" + escapeLike(strings.ToLower(f.Text)) + "%"
		likes := make([]string, len(entities.TextFields))
		for i, col := range entities.TextFields {
			likes[i] = fmt.Sprintf(`LOWER(%s) LIKE %s ESCAPE '\'`, col, sb.Var(pattern))
		}
		where = append(where, sb.Or(likes...))
	}
	return where
}

// payloadConditions compares JSON paths of a payload column against scalars.
// json_type is checked too so that "1" never equals 1 and true never equals 1.
func payloadConditions(sb *sqlbuilder.SelectBuilder, column string, paths map[string]entities.Value) []string {
	conds := make([]string, 0, len(paths))
	for path, want := range paths {
		expr := fmt.Sprintf("json_extract(%s, '$.%s')", column, path)
		switch want.Kind() {
		case entities.KindBool:
			b, _ := want.AsBool()
			conds = append(conds, sb.Equal(fmt.Sprintf("json_type(%s, '$.%s')", column, path), boolJSONType(b)))
		case entities.KindNumber:
			n, _ := want.AsNumber()
			conds = append(conds, sb.And(
				sb.In(fmt.Sprintf("json_type(%s, '$.%s')", column, path), "integer", "real"),
				sb.Equal(expr, n),
			))
		case entities.KindString:
			s, _ := want.AsString()
			conds = append(conds, sb.And(
				sb.Equal(fmt.Sprintf("json_type(%s, '$.%s')", column, path), "text"),
				sb.Equal(expr, s),
			))
		}
	}
	return conds
}

func boolJSONType(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// edgeConditions builds the WHERE clause of a graph-walk lookup.
func edgeConditions(sb *sqlbuilder.SelectBuilder, orgID string, q ports.EdgeQuery, ids []string) []string {
	flat := sqlbuilder.Flatten(ids)
	where := []string{
		sb.Equal("organization_id", orgID),
		sb.Or(sb.In("from_entity_id", flat...), sb.In("to_entity_id", flat...)),
	}
	if len(q.Types) > 0 {
		where = append(where, sb.In("relationship_type", sqlbuilder.Flatten(q.Types)...))
	}
	if q.ActiveOnly {
		where = append(where, sb.Equal("is_active", true))
	}
	if q.ValidAt != nil {
		at := formatTime(*q.ValidAt)
		where = append(where,
			sb.Or(sb.IsNull("expires_at"), sb.GreaterThan("expires_at", at)),
			sb.Or(sb.IsNull("effective_at"), sb.LessEqualThan("effective_at", at)),
		)
	}
	if q.ExcludeID != "" {
		where = append(where, sb.NotEqual("id", q.ExcludeID))
	}
	return where
}

func orderClause(f *entities.Filters) []string {
	col, ok := sortColumns[f.SortBy]
	if !ok {
		col = "created_at"
	}
	dir := "ASC"
	if f.Desc {
		dir = "DESC"
	}
	return []string{col + " " + dir, "id " + dir}
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
