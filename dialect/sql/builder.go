package sql

import (
	"strconv"
	"strings"

	"github.com/syssam/veil/dialect"
)

// Querier wraps the basic Query method that is implemented
// by the different builders in this file.
type Querier interface {
	// Query returns the query representation of the element
	// and its arguments (if any).
	Query() (string, []any)
}

// Node is a fragment of a statement that knows how to render itself.
type Node interface {
	Render(*Builder)
}

// NodeFunc adapts an ordinary function to a Node.
type NodeFunc func(*Builder)

// Render calls f(b).
func (f NodeFunc) Render(b *Builder) { f(b) }

// Builder is the base query builder. It accumulates the statement text
// and its arguments in a single pass, so placeholders of nested
// fragments are numbered in order of appearance.
type Builder struct {
	sb      strings.Builder
	dialect string
	args    []any
}

// NewBuilder returns a builder for the given dialect.
func NewBuilder(dialect string) *Builder {
	return &Builder{dialect: dialect}
}

// Dialect returns the dialect of the builder.
func (b *Builder) Dialect() string { return b.dialect }

// WriteString appends s to the statement text.
func (b *Builder) WriteString(s string) *Builder {
	b.sb.WriteString(s)
	return b
}

// Pad adds a space to the statement text.
func (b *Builder) Pad() *Builder {
	b.sb.WriteByte(' ')
	return b
}

// Quote quotes a single identifier for the builder dialect.
func (b *Builder) Quote(ident string) string {
	if b.dialect == dialect.MySQL {
		return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// Ident writes a possibly qualified identifier, quoting each part.
// The "*" part is written as is.
func (b *Builder) Ident(s string) *Builder {
	for i, part := range strings.Split(s, ".") {
		if i > 0 {
			b.sb.WriteByte('.')
		}
		if part == "*" {
			b.sb.WriteByte('*')
			continue
		}
		b.sb.WriteString(b.Quote(part))
	}
	return b
}

// IdentComma writes the identifiers separated by commas.
func (b *Builder) IdentComma(s ...string) *Builder {
	for i := range s {
		if i > 0 {
			b.sb.WriteString(", ")
		}
		b.Ident(s[i])
	}
	return b
}

// Arg appends an argument and writes its placeholder.
func (b *Builder) Arg(a any) *Builder {
	b.args = append(b.args, a)
	if b.dialect == dialect.Postgres {
		b.sb.WriteString("$" + strconv.Itoa(len(b.args)))
	} else {
		b.sb.WriteByte('?')
	}
	return b
}

// Args appends the arguments separated by commas.
func (b *Builder) Args(a ...any) *Builder {
	for i := range a {
		if i > 0 {
			b.sb.WriteString(", ")
		}
		b.Arg(a[i])
	}
	return b
}

// Join renders the node into the builder.
func (b *Builder) Join(n Node) *Builder {
	n.Render(b)
	return b
}

// JoinComma renders the nodes separated by commas.
func (b *Builder) JoinComma(ns ...Node) *Builder {
	for i := range ns {
		if i > 0 {
			b.sb.WriteString(", ")
		}
		ns[i].Render(b)
	}
	return b
}

// Wrap writes the output of f inside parentheses.
func (b *Builder) Wrap(f func(*Builder)) *Builder {
	b.sb.WriteByte('(')
	f(b)
	b.sb.WriteByte(')')
	return b
}

// String returns the accumulated statement text.
func (b *Builder) String() string { return b.sb.String() }

// Query returns the statement text and its arguments.
func (b *Builder) Query() (string, []any) { return b.sb.String(), b.args }

// Col returns a node for a possibly qualified column reference.
func Col(name string) Node {
	return NodeFunc(func(b *Builder) { b.Ident(name) })
}

// Raw returns a node that writes expr verbatim. Each "?" in expr is
// replaced by the placeholder of the next argument.
func Raw(expr string, args ...any) Node {
	return NodeFunc(func(b *Builder) { writeExpr(b, expr, args) })
}

func writeExpr(b *Builder, expr string, args []any) {
	if len(args) == 0 {
		b.WriteString(expr)
		return
	}
	i := 0
	for _, r := range expr {
		if r == '?' && i < len(args) {
			b.Arg(args[i])
			i++
			continue
		}
		b.sb.WriteRune(r)
	}
}

// As returns a node rendering n AS alias.
func As(n Node, alias string) Node {
	return NodeFunc(func(b *Builder) {
		b.Join(n).WriteString(" AS ").Ident(alias)
	})
}

// Count returns the COUNT aggregate of n.
func Count(n Node) Node {
	return NodeFunc(func(b *Builder) {
		b.WriteString("COUNT").Wrap(func(b *Builder) { b.Join(n) })
	})
}

// CountAll returns COUNT(*).
func CountAll() Node {
	return Raw("COUNT(*)")
}

// CountDistinct returns the COUNT(DISTINCT n) aggregate.
func CountDistinct(n Node) Node {
	return NodeFunc(func(b *Builder) {
		b.WriteString("COUNT").Wrap(func(b *Builder) { b.WriteString("DISTINCT ").Join(n) })
	})
}

// Desc returns n in descending order.
func Desc(n Node) Node {
	return NodeFunc(func(b *Builder) { b.Join(n).WriteString(" DESC") })
}

// Predicate is a where or join condition.
type Predicate struct {
	fns      []func(*Builder)
	compound bool
}

// P creates a new predicate.
//
//	P(func(b *Builder) {
//		b.Ident("name").WriteString(" = ").Arg("a8m")
//	})
func P(fns ...func(*Builder)) *Predicate {
	return &Predicate{fns: fns}
}

// ExprP creates a new predicate from the given expression.
//
//	ExprP("A = ? AND B > ?", 1, 2)
func ExprP(expr string, args ...any) *Predicate {
	return P(func(b *Builder) { writeExpr(b, expr, args) })
}

// Render implements the Node interface.
func (p *Predicate) Render(b *Builder) {
	for _, f := range p.fns {
		f(b)
	}
}

// Query returns the predicate rendered with the default dialect.
func (p *Predicate) Query() (string, []any) {
	b := NewBuilder("")
	p.Render(b)
	return b.Query()
}

func (p *Predicate) renderOperand(b *Builder) {
	if p.compound {
		b.Wrap(p.Render)
		return
	}
	p.Render(b)
}

func compare(col, op string, v any) *Predicate {
	return P(func(b *Builder) {
		b.Ident(col).WriteString(" " + op + " ").Arg(v)
	})
}

// EQ returns a "=" predicate.
func EQ(col string, v any) *Predicate { return compare(col, "=", v) }

// NEQ returns a "<>" predicate.
func NEQ(col string, v any) *Predicate { return compare(col, "<>", v) }

// GT returns a ">" predicate.
func GT(col string, v any) *Predicate { return compare(col, ">", v) }

// GTE returns a ">=" predicate.
func GTE(col string, v any) *Predicate { return compare(col, ">=", v) }

// LT returns a "<" predicate.
func LT(col string, v any) *Predicate { return compare(col, "<", v) }

// LTE returns a "<=" predicate.
func LTE(col string, v any) *Predicate { return compare(col, "<=", v) }

// ColumnsEQ returns a predicate comparing two columns.
func ColumnsEQ(col1, col2 string) *Predicate {
	return P(func(b *Builder) {
		b.Ident(col1).WriteString(" = ").Ident(col2)
	})
}

// In returns an IN predicate. An empty list matches nothing.
func In(col string, args ...any) *Predicate {
	if len(args) == 0 {
		return ExprP("FALSE")
	}
	return P(func(b *Builder) {
		b.Ident(col).WriteString(" IN ").Wrap(func(b *Builder) { b.Args(args...) })
	})
}

// IsNull returns an IS NULL predicate.
func IsNull(col string) *Predicate {
	return P(func(b *Builder) { b.Ident(col).WriteString(" IS NULL") })
}

// NotNull returns an IS NOT NULL predicate.
func NotNull(col string) *Predicate {
	return P(func(b *Builder) { b.Ident(col).WriteString(" IS NOT NULL") })
}

// IsTrue returns a predicate that holds when col is true. Values are
// cast to boolean on SQLite and PostgreSQL, so integer flags qualify.
// NULL never qualifies.
func IsTrue(col string) *Predicate {
	return P(func(b *Builder) {
		if b.Dialect() == dialect.MySQL {
			b.Ident(col).WriteString(" IS TRUE")
			return
		}
		b.WriteString("CAST(").Ident(col).WriteString(" AS BOOLEAN)")
	})
}

func combine(op string, preds []*Predicate) *Predicate {
	ps := make([]*Predicate, 0, len(preds))
	for _, p := range preds {
		if p != nil {
			ps = append(ps, p)
		}
	}
	switch len(ps) {
	case 0:
		return nil
	case 1:
		return ps[0]
	}
	p := P(func(b *Builder) {
		for i, p := range ps {
			if i > 0 {
				b.WriteString(" " + op + " ")
			}
			p.renderOperand(b)
		}
	})
	p.compound = true
	return p
}

// And combines the predicates with AND. Nil predicates are skipped.
func And(preds ...*Predicate) *Predicate { return combine("AND", preds) }

// Or combines the predicates with OR. Nil predicates are skipped.
func Or(preds ...*Predicate) *Predicate { return combine("OR", preds) }

// Not negates the predicate.
func Not(pred *Predicate) *Predicate {
	return P(func(b *Builder) {
		b.WriteString("NOT ").Wrap(pred.Render)
	})
}

// TableView is a source in a FROM or JOIN clause: a table or a derived
// table built from a Selector.
type TableView interface {
	renderView(*Builder)
}

// SelectTable is a table reference in a FROM or JOIN clause.
type SelectTable struct {
	name string
	as   string
}

// Table returns a new table reference.
func Table(name string) *SelectTable {
	return &SelectTable{name: name}
}

// As sets an alias for the table.
func (t *SelectTable) As(alias string) *SelectTable {
	t.as = alias
	return t
}

// Name returns the table name.
func (t *SelectTable) Name() string { return t.name }

// C returns the column qualified by the table alias, or name.
func (t *SelectTable) C(column string) string {
	if t.as != "" {
		return t.as + "." + column
	}
	return t.name + "." + column
}

func (t *SelectTable) renderView(b *Builder) {
	b.Ident(t.name)
	if t.as != "" {
		b.WriteString(" AS ").Ident(t.as)
	}
}

type join struct {
	kind  string
	table TableView
	on    *Predicate
}

// Selector is a builder for SELECT statements.
type Selector struct {
	dialect  string
	as       string
	distinct bool
	columns  []Node
	from     []TableView
	joins    []join
	where    *Predicate
	group    []string
	order    []Node
	limit    *int
	offset   *int
}

// Select returns a new selector for the given columns.
func Select(columns ...Node) *Selector {
	return &Selector{columns: columns}
}

// SetDialect sets the dialect of the selector.
func (s *Selector) SetDialect(name string) *Selector {
	s.dialect = name
	return s
}

// Dialect returns the dialect of the selector.
func (s *Selector) Dialect() string { return s.dialect }

// Select sets the columns of the selector.
func (s *Selector) Select(columns ...Node) *Selector {
	s.columns = columns
	return s
}

// AppendSelect appends columns to the selector.
func (s *Selector) AppendSelect(columns ...Node) *Selector {
	s.columns = append(s.columns, columns...)
	return s
}

// From sets the source of the selector.
func (s *Selector) From(t TableView) *Selector {
	s.from = []TableView{t}
	return s
}

// AppendFrom appends a source to the FROM clause.
func (s *Selector) AppendFrom(t TableView) *Selector {
	s.from = append(s.from, t)
	return s
}

// Join appends an inner join.
func (s *Selector) Join(t TableView) *Selector {
	s.joins = append(s.joins, join{kind: "JOIN", table: t})
	return s
}

// LeftJoin appends a left outer join.
func (s *Selector) LeftJoin(t TableView) *Selector {
	s.joins = append(s.joins, join{kind: "LEFT JOIN", table: t})
	return s
}

// On adds a condition to the last join. Conditions added to the same
// join are combined with AND.
func (s *Selector) On(p *Predicate) *Selector {
	if len(s.joins) == 0 || p == nil {
		return s
	}
	j := &s.joins[len(s.joins)-1]
	j.on = And(j.on, p)
	return s
}

// Where adds a condition to the WHERE clause. Conditions are combined
// with AND.
func (s *Selector) Where(p *Predicate) *Selector {
	s.where = And(s.where, p)
	return s
}

// Distinct adds the DISTINCT keyword.
func (s *Selector) Distinct() *Selector {
	s.distinct = true
	return s
}

// GroupBy sets the GROUP BY columns.
func (s *Selector) GroupBy(columns ...string) *Selector {
	s.group = append(s.group, columns...)
	return s
}

// OrderBy appends ORDER BY terms.
func (s *Selector) OrderBy(terms ...Node) *Selector {
	s.order = append(s.order, terms...)
	return s
}

// Limit sets the LIMIT clause.
func (s *Selector) Limit(n int) *Selector {
	s.limit = &n
	return s
}

// Offset sets the OFFSET clause.
func (s *Selector) Offset(n int) *Selector {
	s.offset = &n
	return s
}

// As makes the selector a derived table with the given alias.
func (s *Selector) As(alias string) *Selector {
	s.as = alias
	return s
}

// Alias returns the derived table alias.
func (s *Selector) Alias() string { return s.as }

// C returns the column qualified by the derived table alias.
func (s *Selector) C(column string) string {
	return s.as + "." + column
}

// Render implements the Node interface. It writes the SELECT statement
// without surrounding parentheses.
func (s *Selector) Render(b *Builder) {
	b.WriteString("SELECT ")
	if s.distinct {
		b.WriteString("DISTINCT ")
	}
	if len(s.columns) == 0 {
		b.WriteString("*")
	} else {
		b.JoinComma(s.columns...)
	}
	for i, t := range s.from {
		if i == 0 {
			b.WriteString(" FROM ")
		} else {
			b.WriteString(", ")
		}
		t.renderView(b)
	}
	for _, j := range s.joins {
		b.Pad().WriteString(j.kind).Pad()
		j.table.renderView(b)
		if j.on != nil {
			b.WriteString(" ON ").Join(j.on)
		}
	}
	if s.where != nil {
		b.WriteString(" WHERE ").Join(s.where)
	}
	if len(s.group) > 0 {
		b.WriteString(" GROUP BY ").IdentComma(s.group...)
	}
	if len(s.order) > 0 {
		b.WriteString(" ORDER BY ").JoinComma(s.order...)
	}
	switch {
	case s.limit != nil:
		b.WriteString(" LIMIT " + strconv.Itoa(*s.limit))
	case s.offset != nil && b.Dialect() == dialect.MySQL:
		b.WriteString(" LIMIT 18446744073709551615")
	case s.offset != nil && b.Dialect() == dialect.SQLite:
		b.WriteString(" LIMIT -1")
	}
	if s.offset != nil {
		b.WriteString(" OFFSET " + strconv.Itoa(*s.offset))
	}
}

func (s *Selector) renderView(b *Builder) {
	b.Wrap(s.Render)
	if s.as != "" {
		b.WriteString(" AS ").Ident(s.as)
	}
}

// Query returns the statement and its arguments.
func (s *Selector) Query() (string, []any) {
	b := NewBuilder(s.dialect)
	s.Render(b)
	return b.Query()
}

// InsertBuilder is a builder for INSERT statements.
type InsertBuilder struct {
	dialect   string
	table     string
	columns   []string
	values    []any
	returning []string
}

// Insert returns a new INSERT builder for the table.
func Insert(table string) *InsertBuilder {
	return &InsertBuilder{table: table}
}

// Set adds a column and its value.
func (i *InsertBuilder) Set(column string, v any) *InsertBuilder {
	i.columns = append(i.columns, column)
	i.values = append(i.values, v)
	return i
}

// Returning adds a RETURNING clause (PostgreSQL and SQLite).
func (i *InsertBuilder) Returning(columns ...string) *InsertBuilder {
	i.returning = columns
	return i
}

// SetDialect sets the dialect of the builder.
func (i *InsertBuilder) SetDialect(name string) *InsertBuilder {
	i.dialect = name
	return i
}

// Query returns the statement and its arguments.
func (i *InsertBuilder) Query() (string, []any) {
	b := NewBuilder(i.dialect)
	b.WriteString("INSERT INTO ").Ident(i.table)
	switch {
	case len(i.columns) > 0:
		b.Pad().Wrap(func(b *Builder) { b.IdentComma(i.columns...) })
		b.WriteString(" VALUES ").Wrap(func(b *Builder) { b.Args(i.values...) })
	case i.dialect == dialect.MySQL:
		b.WriteString(" () VALUES ()")
	default:
		b.WriteString(" DEFAULT VALUES")
	}
	if len(i.returning) > 0 {
		b.WriteString(" RETURNING ").IdentComma(i.returning...)
	}
	return b.Query()
}

// UpdateBuilder is a builder for UPDATE statements.
type UpdateBuilder struct {
	dialect string
	table   string
	columns []string
	values  []any
	where   *Predicate
}

// Update returns a new UPDATE builder for the table.
func Update(table string) *UpdateBuilder {
	return &UpdateBuilder{table: table}
}

// Set adds a column assignment.
func (u *UpdateBuilder) Set(column string, v any) *UpdateBuilder {
	u.columns = append(u.columns, column)
	u.values = append(u.values, v)
	return u
}

// Where adds a condition, combined with AND.
func (u *UpdateBuilder) Where(p *Predicate) *UpdateBuilder {
	u.where = And(u.where, p)
	return u
}

// Empty reports whether the builder has no assignments.
func (u *UpdateBuilder) Empty() bool { return len(u.columns) == 0 }

// SetDialect sets the dialect of the builder.
func (u *UpdateBuilder) SetDialect(name string) *UpdateBuilder {
	u.dialect = name
	return u
}

// Query returns the statement and its arguments.
func (u *UpdateBuilder) Query() (string, []any) {
	b := NewBuilder(u.dialect)
	b.WriteString("UPDATE ").Ident(u.table).WriteString(" SET ")
	for i, c := range u.columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.Ident(c).WriteString(" = ").Arg(u.values[i])
	}
	if u.where != nil {
		b.WriteString(" WHERE ").Join(u.where)
	}
	return b.Query()
}

// DialectBuilder prefixes all builders with a dialect.
type DialectBuilder struct {
	dialect string
}

// Dialect creates a new DialectBuilder with the given dialect name.
func Dialect(name string) *DialectBuilder {
	return &DialectBuilder{dialect: name}
}

// Select returns a selector for the dialect.
func (d *DialectBuilder) Select(columns ...Node) *Selector {
	return Select(columns...).SetDialect(d.dialect)
}

// Insert returns an INSERT builder for the dialect.
func (d *DialectBuilder) Insert(table string) *InsertBuilder {
	return Insert(table).SetDialect(d.dialect)
}

// Update returns an UPDATE builder for the dialect.
func (d *DialectBuilder) Update(table string) *UpdateBuilder {
	return Update(table).SetDialect(d.dialect)
}

var (
	_ Querier = (*Selector)(nil)
	_ Querier = (*InsertBuilder)(nil)
	_ Querier = (*UpdateBuilder)(nil)
	_ Node    = (*Predicate)(nil)
	_ Node    = (*Selector)(nil)
)
