package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/ersonp/relgraph/internal/domain/entities"
	"github.com/itchyny/gojq"
)

// Constraint operators. The symbolic forms are aliases.
const (
	OpEq        = "eq"
	OpNe        = "ne"
	OpGt        = "gt"
	OpGte       = "gte"
	OpLt        = "lt"
	OpLte       = "lte"
	OpIn        = "in"
	OpNotIn     = "not_in"
	OpContains  = "contains"
	OpExists    = "exists"
	OpNotExists = "not_exists"
	OpMatches   = "matches"
)

var operatorAliases = map[string]string{
	"==": OpEq,
	"!=": OpNe,
	">":  OpGt,
	">=": OpGte,
	"<":  OpLt,
	"<=": OpLte,
}

// reExpression splits "<path> <op> <operand>".
var reExpression = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_.]*)\s*(==|!=|>=|<=|>|<)\s*(.+?)\s*$`)

// rePath recognizes a bare field path on the right of an expression.
var rePath = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z0-9_]+)*$`)

// constraintEvaluator checks business constraints against a record document.
// Compiled jq programs and regexps are cached by source text.
type constraintEvaluator struct {
	jqCache    sync.Map // string -> *gojq.Query
	regexCache sync.Map // string -> *regexp.Regexp
}

// check returns a non-empty failure message when c does not hold for doc.
func (e *constraintEvaluator) check(ctx context.Context, c entities.Constraint, doc entities.Value) (string, error) {
	if c.JQ != "" {
		return e.checkJQ(ctx, c, doc)
	}

	field, op, ref, want := c.Field, normalizeOperator(c.Operator), c.Ref, c.Value
	if c.Expression != "" {
		var err error
		field, op, ref, want, err = parseExpression(c.Expression)
		if err != nil {
			return "", err
		}
	} else if ref == "" && !c.HasValue && op != OpExists && op != OpNotExists {
		return "", entities.Malformed("validation_rules.business_constraints",
			"constraint %q needs a value or a ref", c.Name)
	}
	if ref != "" {
		want, _ = doc.Lookup(ref)
	}
	return e.compare(c, doc, field, op, want)
}

func (e *constraintEvaluator) compare(c entities.Constraint, doc entities.Value, field, op string, want entities.Value) (string, error) {
	got, found := doc.Lookup(field)

	var ok bool
	switch op {
	case OpExists:
		ok = found && !got.IsNull()
	case OpNotExists:
		ok = !found || got.IsNull()
	case OpEq:
		ok = got.Equal(want)
	case OpNe:
		ok = !got.Equal(want)
	case OpGt, OpGte, OpLt, OpLte:
		cmp, comparable := got.Compare(want)
		if !comparable {
			return failure(c, "%s (%s) cannot be compared with %s", field, got, want), nil
		}
		switch op {
		case OpGt:
			ok = cmp > 0
		case OpGte:
			ok = cmp >= 0
		case OpLt:
			ok = cmp < 0
		default:
			ok = cmp <= 0
		}
	case OpIn, OpNotIn:
		if want.Kind() != entities.KindArray {
			return "", entities.Malformed("validation_rules.business_constraints",
				"constraint %q: %s needs a list", c.Name, op)
		}
		ok = want.Contains(got) == (op == OpIn)
	case OpContains:
		ok = got.Contains(want)
	case OpMatches:
		pattern, isStr := want.AsString()
		if !isStr {
			return "", entities.Malformed("validation_rules.business_constraints",
				"constraint %q: matches needs a string pattern", c.Name)
		}
		re, err := e.compileRegexp(pattern)
		if err != nil {
			return "", entities.Malformed("validation_rules.business_constraints",
				"constraint %q: invalid pattern: %v", c.Name, err)
		}
		s, isStr := got.AsString()
		ok = isStr && re.MatchString(s)
	default:
		return "", entities.Malformed("validation_rules.business_constraints",
			"constraint %q: unknown operator %q", c.Name, op)
	}

	if ok {
		return "", nil
	}
	return failure(c, "%s %s %s does not hold (got %s)", field, op, want, got), nil
}

func (e *constraintEvaluator) checkJQ(ctx context.Context, c entities.Constraint, doc entities.Value) (string, error) {
	query, err := e.jq(c.JQ)
	if err != nil {
		return "", entities.Malformed("validation_rules.business_constraints",
			"constraint %q: invalid jq program: %v", c.Name, err)
	}

	iter := query.RunWithContext(ctx, doc.ToAny())
	v, ok := iter.Next()
	if !ok {
		return failure(c, "jq program produced no output"), nil
	}
	if err, isErr := v.(error); isErr {
		return failure(c, "jq program failed: %v", err), nil
	}
	if b, isBool := v.(bool); isBool && b {
		return "", nil
	}
	return failure(c, "jq program %q returned %v", c.JQ, v), nil
}

func (e *constraintEvaluator) jq(src string) (*gojq.Query, error) {
	if q, ok := e.jqCache.Load(src); ok {
		return q.(*gojq.Query), nil
	}
	q, err := gojq.Parse(src)
	if err != nil {
		return nil, err
	}
	e.jqCache.Store(src, q)
	return q, nil
}

func (e *constraintEvaluator) compileRegexp(pattern string) (*regexp.Regexp, error) {
	if re, ok := e.regexCache.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	e.regexCache.Store(pattern, re)
	return re, nil
}

// parseExpression reads "<path> <op> <path-or-literal>". A right-hand side
// that is valid JSON is a literal; a bare path refers to the record.
func parseExpression(expr string) (field, op, ref string, value entities.Value, err error) {
	m := reExpression.FindStringSubmatch(expr)
	if m == nil {
		return "", "", "", value, entities.Malformed("validation_rules.business_constraints",
			"cannot parse expression %q", expr)
	}
	field, op = m[1], operatorAliases[m[2]]
	rhs := m[3]

	if v, perr := entities.ParseValue(rhs); perr == nil {
		return field, op, "", v, nil
	}
	if len(rhs) >= 2 && strings.HasPrefix(rhs, "'") && strings.HasSuffix(rhs, "'") {
		return field, op, "", entities.String(rhs[1 : len(rhs)-1]), nil
	}
	if rePath.MatchString(rhs) {
		return field, op, rhs, value, nil
	}
	return "", "", "", value, entities.Malformed("validation_rules.business_constraints",
		"cannot parse operand %q in expression %q", rhs, expr)
}

func normalizeOperator(op string) string {
	op = strings.ToLower(strings.TrimSpace(op))
	if alias, ok := operatorAliases[op]; ok {
		return alias
	}
	return op
}

func failure(c entities.Constraint, format string, args ...any) string {
	if c.Message != "" {
		return c.Message
	}
	return fmt.Sprintf(format, args...)
}
