package session

import (
	"fmt"

	"github.com/syssam/veil/dialect/sql"
	"github.com/syssam/veil/schema"
)

// An Item is an element of the select list of a query. Items are one of
// *schema.Type, *Aliased, *Column, *Aggregate, *RawExpr or *Subquery.
type Item = any

// Aliased is a mapped type under an alias name. The same type may take
// part in one query several times under different aliases.
type Aliased struct {
	typ  *schema.Type
	name string
}

// Alias returns t under the given alias.
func Alias(t *schema.Type, name string) *Aliased {
	return &Aliased{typ: t, name: name}
}

// Type returns the aliased type.
func (a *Aliased) Type() *schema.Type { return a.typ }

// Name returns the alias name.
func (a *Aliased) Name() string { return a.name }

// Column is a column of a source: a type, an alias or a subquery.
type Column struct {
	source any
	field  string
}

// C returns the field of the given source. For subqueries the field is
// one of its labels.
func C(source any, field string) *Column {
	return &Column{source: source, field: field}
}

// Source returns the source of the column.
func (c *Column) Source() any { return c.source }

// Field returns the field name.
func (c *Column) Field() string { return c.field }

// Entity returns the mapped type the column belongs to and the table
// reference it is read through. Columns of subqueries have no entity.
func (c *Column) Entity() (*schema.Type, string, bool) {
	switch s := c.source.(type) {
	case *schema.Type:
		return s, s.Table(), true
	case *Aliased:
		return s.typ, s.name, true
	}
	return nil, "", false
}

// Ident returns the qualified column identifier, "ref.column".
func (c *Column) Ident() string {
	return refOf(c.source) + "." + c.column()
}

func (c *Column) column() string {
	if t, _, ok := c.Entity(); ok {
		if col, ok := t.Column(c.field); ok {
			return col
		}
	}
	return c.field
}

func (c *Column) validate() error {
	switch s := c.source.(type) {
	case *schema.Type, *Aliased:
		t, _, _ := c.Entity()
		if !t.HasField(c.field) {
			return fmt.Errorf("session: type %q has no field %q", t.Name(), c.field)
		}
	case *Subquery:
		if !s.HasLabel(c.field) {
			return fmt.Errorf("session: subquery %q has no column %q", s.name, c.field)
		}
	default:
		return fmt.Errorf("session: invalid column source %T", c.source)
	}
	return nil
}

// EQ returns a predicate comparing the column to v.
func (c *Column) EQ(v any) *sql.Predicate { return sql.EQ(c.Ident(), v) }

// NEQ returns a predicate checking the column differs from v.
func (c *Column) NEQ(v any) *sql.Predicate { return sql.NEQ(c.Ident(), v) }

// GT returns a ">" predicate.
func (c *Column) GT(v any) *sql.Predicate { return sql.GT(c.Ident(), v) }

// GTE returns a ">=" predicate.
func (c *Column) GTE(v any) *sql.Predicate { return sql.GTE(c.Ident(), v) }

// LT returns a "<" predicate.
func (c *Column) LT(v any) *sql.Predicate { return sql.LT(c.Ident(), v) }

// LTE returns a "<=" predicate.
func (c *Column) LTE(v any) *sql.Predicate { return sql.LTE(c.Ident(), v) }

// In returns an IN predicate.
func (c *Column) In(vs ...any) *sql.Predicate { return sql.In(c.Ident(), vs...) }

// IsNull returns an IS NULL predicate.
func (c *Column) IsNull() *sql.Predicate { return sql.IsNull(c.Ident()) }

// NotNull returns an IS NOT NULL predicate.
func (c *Column) NotNull() *sql.Predicate { return sql.NotNull(c.Ident()) }

// IsTrue returns a predicate holding when the column is true.
func (c *Column) IsTrue() *sql.Predicate { return sql.IsTrue(c.Ident()) }

// EQC returns a predicate comparing two columns.
func (c *Column) EQC(other *Column) *sql.Predicate {
	return sql.ColumnsEQ(c.Ident(), other.Ident())
}

// Aggregate is an aggregate over a column.
type Aggregate struct {
	col      *Column
	label    string
	distinct bool
}

// Count returns the COUNT aggregate of the column, labeled "count".
func Count(col *Column) *Aggregate {
	return &Aggregate{col: col, label: "count"}
}

// CountDistinct returns the COUNT(DISTINCT) aggregate of the column.
func CountDistinct(col *Column) *Aggregate {
	return &Aggregate{col: col, label: "count", distinct: true}
}

// CountAll returns COUNT(*), labeled "count".
func CountAll() *Aggregate {
	return &Aggregate{label: "count"}
}

// As returns a copy of the aggregate with the given label.
func (a *Aggregate) As(label string) *Aggregate {
	c := *a
	c.label = label
	return &c
}

// Label returns the label of the aggregate.
func (a *Aggregate) Label() string { return a.label }

// Column returns the aggregated column, or nil for COUNT(*).
func (a *Aggregate) Column() *Column { return a.col }

func (a *Aggregate) node() sql.Node {
	switch {
	case a.col == nil:
		return sql.CountAll()
	case a.distinct:
		return sql.CountDistinct(sql.Col(a.col.Ident()))
	default:
		return sql.Count(sql.Col(a.col.Ident()))
	}
}

// RawExpr is a literal SQL expression in the select list.
type RawExpr struct {
	expr  string
	args  []any
	label string
}

// Raw returns a literal expression. "?" marks an argument.
func Raw(expr string, args ...any) *RawExpr {
	return &RawExpr{expr: expr, args: args}
}

// As returns a copy of the expression with the given label.
func (r *RawExpr) As(label string) *RawExpr {
	c := *r
	c.label = label
	return &c
}

// Label returns the label of the expression.
func (r *RawExpr) Label() string { return r.label }

// Subquery is a query wrapped as a derived table.
type Subquery struct {
	name   string
	sel    *sql.Selector
	labels []string
}

// Name returns the derived table alias.
func (s *Subquery) Name() string { return s.name }

// Labels returns the column labels of the subquery.
func (s *Subquery) Labels() []string { return s.labels }

// HasLabel reports whether the subquery exposes the label.
func (s *Subquery) HasLabel(label string) bool {
	for _, l := range s.labels {
		if l == label {
			return true
		}
	}
	return false
}

// Query returns the SQL of the subquery in the default dialect.
func (s *Subquery) Query() (string, []any) {
	return s.sel.Query()
}

// refOf returns the table reference of a source.
func refOf(source any) string {
	switch s := source.(type) {
	case *schema.Type:
		return s.Table()
	case *Aliased:
		return s.name
	case *Subquery:
		return s.name
	}
	return ""
}

// viewOf returns the FROM/JOIN rendering of a source.
func viewOf(source any) sql.TableView {
	switch s := source.(type) {
	case *schema.Type:
		return sql.Table(s.Table())
	case *Aliased:
		return sql.Table(s.typ.Table()).As(s.name)
	case *Subquery:
		return s.sel
	}
	return nil
}

// sourcesOf returns the sources an item reads from.
func sourcesOf(item Item) []any {
	switch it := item.(type) {
	case *schema.Type, *Aliased, *Subquery:
		return []any{it}
	case *Column:
		return []any{it.source}
	case *Aggregate:
		if it.col != nil {
			return []any{it.col.source}
		}
	}
	return nil
}
