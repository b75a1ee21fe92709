package postgres

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dropDatabas3/hellodoc/docstore"
)

// builder arma SQL parametrizado sobre la columna jsonb "data".
type builder struct {
	args []any
}

func (b *builder) arg(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *builder) jsonArg(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return b.arg(string(raw)) + "::jsonb", nil
}

func (b *builder) path(field string) string {
	return "data #> " + b.arg(strings.Split(field, ".")) + "::text[]"
}

// buildQuery traduce una docstore.Query (ya validada) a SELECT.
func buildQuery(table, collection string, q docstore.Query) (string, []any, error) {
	b := &builder{}
	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT id, data FROM %s WHERE collection = %s", table, b.arg(collection))

	for _, f := range q.Filters {
		cond, err := b.condition(f)
		if err != nil {
			return "", nil, err
		}
		sb.WriteString(" AND ")
		sb.WriteString(cond)
	}

	sb.WriteString(" ORDER BY ")
	for _, o := range q.Orders {
		dir := "ASC"
		if o.Dir == docstore.Desc {
			dir = "DESC"
		}
		sb.WriteString(orderTerms(b.path(o.Field), dir))
		sb.WriteString(", ")
	}
	sb.WriteString("id ASC")

	if q.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %s", b.arg(q.Limit))
	}
	return sb.String(), b.args, nil
}

// orderTerms replica docstore.Sort: primero el rango de tipo (ausente/null <
// bool < número < string < otros), después el valor dentro del mismo tipo.
// Strings con collation "C" (orden por bytes); objetos y arrays empatan.
func orderTerms(p, dir string) string {
	rank := fmt.Sprintf(`CASE WHEN %[1]s IS NULL OR jsonb_typeof(%[1]s) = 'null' THEN 0`+
		` WHEN jsonb_typeof(%[1]s) = 'boolean' THEN 1`+
		` WHEN jsonb_typeof(%[1]s) = 'number' THEN 2`+
		` WHEN jsonb_typeof(%[1]s) = 'string' THEN 3 ELSE 4 END`, p)
	scalar := fmt.Sprintf(`CASE WHEN jsonb_typeof(%[1]s) IN ('boolean', 'number') THEN %[1]s END`, p)
	text := fmt.Sprintf(`CASE WHEN jsonb_typeof(%[1]s) = 'string' THEN (%[1]s #>> '{}') COLLATE "C" END`, p)
	return fmt.Sprintf("%s %s, %s %s, %s %s", rank, dir, scalar, dir, text, dir)
}

func (b *builder) condition(f docstore.Filter) (string, error) {
	p := b.path(f.Field)
	v, err := b.jsonArg(f.Value)
	if err != nil {
		return "", fmt.Errorf("%w: %v", docstore.ErrInvalidQuery, err)
	}
	switch f.Op {
	case docstore.OpEq:
		return fmt.Sprintf("%s = %s", p, v), nil
	case docstore.OpNe:
		return fmt.Sprintf("(%s IS NOT NULL AND %s <> %s)", p, p, v), nil
	case docstore.OpLt, docstore.OpLte, docstore.OpGt, docstore.OpGte:
		// jsonb ordena entre tipos: sólo comparamos valores del mismo tipo
		return fmt.Sprintf("(jsonb_typeof(%s) = jsonb_typeof(%s) AND %s %s %s)", p, v, p, f.Op, v), nil
	case docstore.OpIn:
		return fmt.Sprintf("EXISTS (SELECT 1 FROM jsonb_array_elements(%s) e WHERE e = %s)", v, p), nil
	case docstore.OpNotIn:
		return fmt.Sprintf("(%s IS NOT NULL AND NOT EXISTS (SELECT 1 FROM jsonb_array_elements(%s) e WHERE e = %s))", p, v, p), nil
	case docstore.OpArrayContains:
		return fmt.Sprintf("(jsonb_typeof(%s) = 'array' AND EXISTS (SELECT 1 FROM jsonb_array_elements(%s) e WHERE e = %s))", p, p, v), nil
	case docstore.OpArrayContainsAny:
		return fmt.Sprintf("(jsonb_typeof(%s) = 'array' AND EXISTS (SELECT 1 FROM jsonb_array_elements(%s) e WHERE e IN (SELECT jsonb_array_elements(%s))))", p, p, v), nil
	}
	return "", fmt.Errorf("%w: unknown operator %q", docstore.ErrInvalidQuery, f.Op)
}
