package session

import (
	"fmt"
	"strconv"

	"github.com/syssam/veil/dialect/sql"
	"github.com/syssam/veil/schema"
)

// output describes how a slice of the result columns materializes.
// Entity outputs span the primary key and every field column of typ.
type output struct {
	typ   *schema.Type
	label string
	width int
}

// labeler hands out unique column labels.
type labeler map[string]int

func (l labeler) next(label string) string {
	n := l[label]
	l[label] = n + 1
	if n == 0 {
		return label
	}
	return label + "_" + strconv.Itoa(n+1)
}

// compiled is a compiled select statement.
type compiled struct {
	sel    *sql.Selector
	outs   []output
	labels []string // labels of the result columns, when labeled
}

// selector compiles the query. When labeled is set, every result column
// carries a unique label so the statement can be wrapped as a derived
// table.
func (q *Query) selector(labeled bool) (*compiled, error) {
	if q.err != nil {
		return nil, q.err
	}
	c := &compiled{sel: sql.Select().SetDialect(q.sess.Dialect())}
	seen := make(labeler)
	add := func(n sql.Node, label string) {
		if labeled {
			label = seen.next(label)
			c.labels = append(c.labels, label)
			n = sql.As(n, label)
		}
		c.sel.AppendSelect(n)
	}
	for i, it := range q.items {
		switch it := it.(type) {
		case *schema.Type, *Aliased:
			t, ref := entityOf(it)
			for _, col := range t.Columns() {
				label := col
				if len(q.items) > 1 {
					label = ref + "_" + col
				}
				add(sql.Col(ref+"."+col), label)
			}
			c.outs = append(c.outs, output{typ: t, label: ref, width: len(t.Columns())})
		case *Column:
			add(sql.Col(it.Ident()), it.field)
			c.outs = append(c.outs, output{label: it.field, width: 1})
		case *Aggregate:
			n := it.node()
			if !labeled {
				n = sql.As(n, it.label)
			}
			add(n, it.label)
			c.outs = append(c.outs, output{label: it.label, width: 1})
		case *RawExpr:
			n, label := sql.Raw(it.expr, it.args...), it.label
			switch {
			case label == "" && labeled:
				label = "expr_" + strconv.Itoa(i+1)
			case label == "":
				label = it.expr
			case !labeled:
				n = sql.As(n, label)
			}
			add(n, label)
			c.outs = append(c.outs, output{label: label, width: 1})
		case *Subquery:
			for _, l := range it.labels {
				add(sql.Col(it.name+"."+l), l)
				c.outs = append(c.outs, output{label: l, width: 1})
			}
		default:
			return nil, fmt.Errorf("session: unsupported query item %T", it)
		}
	}
	q.from(c.sel)
	return c, nil
}

func entityOf(item any) (*schema.Type, string) {
	switch it := item.(type) {
	case *schema.Type:
		return it, it.Table()
	case *Aliased:
		return it.typ, it.name
	}
	return nil, ""
}

// from adds the FROM, JOIN and WHERE clauses and the modifiers shared
// by every statement shape.
func (q *Query) from(sel *sql.Selector) {
	q.sources(sel)
	q.conditions(sel)
	for _, c := range q.group {
		sel.GroupBy(c.Ident())
	}
	sel.OrderBy(q.order...)
	if q.limit != nil {
		sel.Limit(*q.limit)
	}
	if q.offset != nil {
		sel.Offset(*q.offset)
	}
	if q.distinct {
		sel.Distinct()
	}
}

// sources adds the FROM clause: every source read by the items, in
// order of first appearance, except the ones joined explicitly.
func (q *Query) sources(sel *sql.Selector) {
	joined := make(map[string]bool, len(q.joins))
	for _, j := range q.joins {
		joined[j.Ref()] = true
	}
	seen := make(map[string]bool)
	for _, it := range q.items {
		for _, src := range sourcesOf(it) {
			ref := refOf(src)
			if seen[ref] || joined[ref] {
				continue
			}
			seen[ref] = true
			sel.AppendFrom(viewOf(src))
		}
	}
}

func (q *Query) conditions(sel *sql.Selector) {
	for _, j := range q.joins {
		if j.outer {
			sel.LeftJoin(viewOf(j.target))
		} else {
			sel.Join(viewOf(j.target))
		}
		sel.On(sql.And(j.on...))
	}
	sel.Where(sql.And(q.where...))
}

// countSelector compiles the specialized COUNT(*) over the FROM, JOIN
// and WHERE clauses. It reports false when the query shape requires the
// generic count over a derived table.
func (q *Query) countSelector() (*sql.Selector, bool, error) {
	if q.err != nil {
		return nil, false, q.err
	}
	if q.limit != nil || q.offset != nil || q.distinct || len(q.group) > 0 {
		return nil, false, nil
	}
	for _, it := range q.items {
		switch it.(type) {
		case *RawExpr:
			return nil, false, nil
		case *Aggregate:
			// COUNT(*) over an aggregate query yields one row.
			return nil, false, nil
		}
	}
	sel := sql.Select(sql.CountAll()).SetDialect(q.sess.Dialect())
	q.sources(sel)
	q.conditions(sel)
	return sel, true, nil
}

// countRowsSelector compiles COUNT(*) over the query as a derived table.
func (q *Query) countRowsSelector() (*sql.Selector, error) {
	inner, err := q.selector(true)
	if err != nil {
		return nil, err
	}
	return sql.Select(sql.CountAll()).
		SetDialect(q.sess.Dialect()).
		From(inner.sel.As("counted")), nil
}

// Statement returns the SQL of the query as it would run for iteration.
func (q *Query) Statement() (string, []any, error) {
	c, err := q.selector(false)
	if err != nil {
		return "", nil, err
	}
	query, args := c.sel.Query()
	return query, args, nil
}
