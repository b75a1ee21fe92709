package docstore

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Op es un operador de filtro.
type Op string

const (
	OpEq               Op = "=="
	OpNe               Op = "!="
	OpLt               Op = "<"
	OpLte              Op = "<="
	OpGt               Op = ">"
	OpGte              Op = ">="
	OpIn               Op = "in"
	OpNotIn            Op = "not-in"
	OpArrayContains    Op = "array-contains"
	OpArrayContainsAny Op = "array-contains-any"
)

// Valid indica si el operador es conocido.
func (o Op) Valid() bool {
	switch o {
	case OpEq, OpNe, OpLt, OpLte, OpGt, OpGte, OpIn, OpNotIn, OpArrayContains, OpArrayContainsAny:
		return true
	}
	return false
}

// Direction de ordenamiento.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Constraint es cualquier cosa que se pueda pasar a Query: Filter, Order, Limit.
type Constraint interface {
	apply(q *Query)
}

// Filter es un triple (campo, operador, valor). Los filtros se combinan con AND.
type Filter struct {
	Field string
	Op    Op
	Value any
}

func (f Filter) apply(q *Query) { q.Filters = append(q.Filters, f) }

// Where construye un Filter.
func Where(field string, op Op, value any) Filter {
	return Filter{Field: field, Op: op, Value: value}
}

// Order por un campo.
type Order struct {
	Field string
	Dir   Direction
}

func (o Order) apply(q *Query) { q.Orders = append(q.Orders, o) }

// OrderBy construye un Order.
func OrderBy(field string, dir Direction) Order {
	return Order{Field: field, Dir: dir}
}

type limit int

func (l limit) apply(q *Query) { q.Limit = int(l) }

// Limit acota la cantidad de resultados. 0 = sin límite.
func Limit(n int) Constraint { return limit(n) }

// Query es el conjunto de restricciones ya resuelto.
type Query struct {
	Filters []Filter
	Orders  []Order
	Limit   int
}

// Build aplica las constraints en orden.
func Build(cs ...Constraint) Query {
	var q Query
	for _, c := range cs {
		if c != nil {
			c.apply(&q)
		}
	}
	return q
}

// Empty indica que la query equivale a "toda la colección".
func (q Query) Empty() bool {
	return len(q.Filters) == 0 && len(q.Orders) == 0 && q.Limit == 0
}

// Validate chequea la forma y normaliza los valores de los filtros.
func (q Query) Validate() (Query, error) {
	out := Query{Limit: q.Limit}
	if q.Limit < 0 {
		return Query{}, fmt.Errorf("%w: negative limit %d", ErrInvalidQuery, q.Limit)
	}
	for _, f := range q.Filters {
		if strings.TrimSpace(f.Field) == "" || strings.HasPrefix(f.Field, ".") || strings.HasSuffix(f.Field, ".") {
			return Query{}, fmt.Errorf("%w: empty field path %q", ErrInvalidQuery, f.Field)
		}
		if !f.Op.Valid() {
			return Query{}, fmt.Errorf("%w: unknown operator %q", ErrInvalidQuery, f.Op)
		}
		v, err := Normalize(f.Value)
		if err != nil {
			return Query{}, fmt.Errorf("%w: value for %q: %v", ErrInvalidQuery, f.Field, err)
		}
		switch f.Op {
		case OpIn, OpNotIn, OpArrayContainsAny:
			if _, ok := v.([]any); !ok {
				return Query{}, fmt.Errorf("%w: operator %q needs a list value", ErrInvalidQuery, f.Op)
			}
		}
		out.Filters = append(out.Filters, Filter{Field: f.Field, Op: f.Op, Value: v})
	}
	for _, o := range q.Orders {
		if strings.TrimSpace(o.Field) == "" {
			return Query{}, fmt.Errorf("%w: empty order field", ErrInvalidQuery)
		}
		switch o.Dir {
		case "":
			o.Dir = Asc
		case Asc, Desc:
		default:
			return Query{}, fmt.Errorf("%w: unknown direction %q", ErrInvalidQuery, o.Dir)
		}
		out.Orders = append(out.Orders, o)
	}
	return out, nil
}

// Lookup resuelve un path con puntos ("address.city") dentro de data.
func Lookup(data map[string]any, path string) (any, bool) {
	var cur any = data
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Match evalúa los filtros (ya validados) sobre data. Un campo ausente no
// matchea ningún operador, incluido "!=" y "not-in".
func Match(data map[string]any, filters []Filter) bool {
	for _, f := range filters {
		v, ok := Lookup(data, f.Field)
		if !ok || !matchOne(v, f.Op, f.Value) {
			return false
		}
	}
	return true
}

func matchOne(v any, op Op, want any) bool {
	switch op {
	case OpEq:
		return equal(v, want)
	case OpNe:
		return !equal(v, want)
	case OpLt, OpLte, OpGt, OpGte:
		c, ok := compare(v, want)
		if !ok {
			return false
		}
		switch op {
		case OpLt:
			return c < 0
		case OpLte:
			return c <= 0
		case OpGt:
			return c > 0
		default:
			return c >= 0
		}
	case OpIn:
		return containsValue(want, v)
	case OpNotIn:
		return !containsValue(want, v)
	case OpArrayContains:
		return containsValue(v, want)
	case OpArrayContainsAny:
		list, _ := want.([]any)
		for _, w := range list {
			if containsValue(v, w) {
				return true
			}
		}
	}
	return false
}

func containsValue(list any, v any) bool {
	items, ok := list.([]any)
	if !ok {
		return false
	}
	for _, it := range items {
		if equal(it, v) {
			return true
		}
	}
	return false
}

func equal(a, b any) bool {
	if fa, ok := a.(float64); ok {
		fb, ok := b.(float64)
		return ok && fa == fb
	}
	return reflect.DeepEqual(a, b)
}

// compare ordena valores del mismo tipo (números, strings, bools).
func compare(a, b any) (int, bool) {
	switch x := a.(type) {
	case float64:
		y, ok := b.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(x, y), true
	case bool:
		y, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case x == y:
			return 0, true
		case !x:
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

// typeRank ordena entre tipos distintos: ausente/nil < bool < número < string < otros.
func typeRank(v any, present bool) int {
	if !present || v == nil {
		return 0
	}
	switch v.(type) {
	case bool:
		return 1
	case float64:
		return 2
	case string:
		return 3
	}
	return 4
}

// Sort ordena docs según orders; desempata por ID para que el resultado sea estable.
func Sort(docs []Document, orders []Order) {
	sort.SliceStable(docs, func(i, j int) bool {
		for _, o := range orders {
			a, aok := Lookup(docs[i].Data, o.Field)
			b, bok := Lookup(docs[j].Data, o.Field)
			c := 0
			ra, rb := typeRank(a, aok), typeRank(b, bok)
			if ra != rb {
				c = ra - rb
			} else if cc, ok := compare(a, b); ok {
				c = cc
			}
			if c == 0 {
				continue
			}
			if o.Dir == Desc {
				return c > 0
			}
			return c < 0
		}
		return docs[i].ID < docs[j].ID
	})
}

// Apply filtra, ordena y limita en memoria. Lo usan los drivers sin query nativa.
func Apply(docs []Document, q Query) []Document {
	out := docs[:0:0]
	for _, d := range docs {
		if Match(d.Data, q.Filters) {
			out = append(out, d)
		}
	}
	Sort(out, q.Orders)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}
