package session

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/syssam/veil"
	"github.com/syssam/veil/dialect/sql"
	"github.com/syssam/veil/schema"
)

// Row is a result row. Entity items occupy one position holding an
// *Entity (nil when an outer join matched nothing); other items hold
// the scanned value.
type Row struct {
	labels []string
	values []any
}

// Len returns the number of positions.
func (r Row) Len() int { return len(r.values) }

// Labels returns the labels of the positions.
func (r Row) Labels() []string { return r.labels }

// Value returns the value at position i.
func (r Row) Value(i int) any { return r.values[i] }

// Get returns the value with the given label.
func (r Row) Get(label string) (any, bool) {
	for i, l := range r.labels {
		if l == label {
			return r.values[i], true
		}
	}
	return nil, false
}

// Entity returns the entity at position i, or nil.
func (r Row) Entity(i int) *Entity {
	e, _ := r.values[i].(*Entity)
	return e
}

// Int returns the value at position i as an int64. NULL is zero.
func (r Row) Int(i int) int64 {
	n, _ := ToInt64(r.values[i])
	return n
}

// Iter returns the rows of the query. The statement runs when the
// sequence is first ranged over; the sequence can be consumed once.
func (q *Query) Iter(ctx context.Context) iter.Seq2[Row, error] {
	v, err := q.sess.run(ctx, q.withOp(veil.OpIter))
	if err != nil {
		return errSeq(err)
	}
	seq, ok := v.(iter.Seq2[Row, error])
	if !ok {
		return errSeq(fmt.Errorf("session: unexpected result type %T for Iter", v))
	}
	return seq
}

func errSeq(err error) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		yield(Row{}, err)
	}
}

// All returns all rows of the query.
func (q *Query) All(ctx context.Context) ([]Row, error) {
	var rows []Row
	for r, err := range q.Iter(ctx) {
		if err != nil {
			return nil, err
		}
		rows = append(rows, r)
	}
	return rows, nil
}

// Entities returns the distinct entities in the first position of the
// rows, in order of first appearance.
func (q *Query) Entities(ctx context.Context) ([]*Entity, error) {
	var (
		ents []*Entity
		seen = make(map[*Entity]bool)
	)
	for r, err := range q.Iter(ctx) {
		if err != nil {
			return nil, err
		}
		if e := r.Entity(0); e != nil && !seen[e] {
			seen[e] = true
			ents = append(ents, e)
		}
	}
	return ents, nil
}

// First returns the first row, or a *veil.NotFoundError.
func (q *Query) First(ctx context.Context) (Row, error) {
	rows, err := q.Limit(1).All(ctx)
	if err != nil {
		return Row{}, err
	}
	if len(rows) == 0 {
		return Row{}, veil.NewNotFoundError(q.label())
	}
	return rows[0], nil
}

// Only returns the only row, failing with a *veil.NotFoundError or a
// *veil.NotSingularError.
func (q *Query) Only(ctx context.Context) (Row, error) {
	rows, err := q.Limit(2).All(ctx)
	if err != nil {
		return Row{}, err
	}
	switch len(rows) {
	case 1:
		return rows[0], nil
	case 0:
		return Row{}, veil.NewNotFoundError(q.label())
	default:
		return Row{}, veil.NewNotSingularErrorWithCount(q.label(), len(rows))
	}
}

// Count returns the number of rows of the query, using a specialized
// COUNT(*) over the query clauses when its shape allows.
func (q *Query) Count(ctx context.Context) (int, error) {
	return q.count(ctx, veil.OpCount)
}

// CountRows returns the number of rows of the query by counting over
// the query wrapped as a derived table.
func (q *Query) CountRows(ctx context.Context) (int, error) {
	return q.count(ctx, veil.OpCountRows)
}

func (q *Query) count(ctx context.Context, op veil.Op) (int, error) {
	v, err := q.sess.run(ctx, q.withOp(op))
	if err != nil {
		return 0, err
	}
	n, ok := v.(int)
	if !ok {
		return 0, fmt.Errorf("session: unexpected result type %T for %s", v, op)
	}
	return n, nil
}

// Subquery wraps the query as a derived table with the given name. The
// result can be used as a query item, a join target or a column source.
func (q *Query) Subquery(ctx context.Context, name string) (*Subquery, error) {
	v, err := q.sess.run(ctx, q.withOp(veil.OpSubquery).named(name))
	if err != nil {
		return nil, err
	}
	sub, ok := v.(*Subquery)
	if !ok {
		return nil, fmt.Errorf("session: unexpected result type %T for Subquery", v)
	}
	return sub, nil
}

func (q *Query) named(name string) *Query {
	q = q.clone()
	q.name = name
	return q
}

func (q *Query) label() string {
	if len(q.items) == 0 {
		return "row"
	}
	switch it := q.items[0].(type) {
	case *schema.Type:
		return it.Name()
	case *Aliased:
		return it.typ.Name()
	}
	return "row"
}

// execute is the final stage of the interceptor chain.
func (s *Session) execute(ctx context.Context, vq veil.Query) (veil.Value, error) {
	switch q := vq.(type) {
	case *Query:
		if q.err != nil {
			return nil, q.err
		}
		ctx = veil.NewOpContext(ctx, q.op)
		switch q.op {
		case veil.OpIter:
			return s.iterate(ctx, q)
		case veil.OpCount:
			return s.countQuery(ctx, q)
		case veil.OpCountRows:
			return s.countRowsQuery(ctx, q)
		case veil.OpSubquery:
			return s.subquery(q)
		case veil.OpGet:
			return s.get(ctx, q)
		}
		return nil, fmt.Errorf("session: unsupported operation %s", q.op)
	case *EdgeQuery:
		return s.edgeTargets(veil.NewOpContext(ctx, veil.OpEdge), q)
	}
	return nil, fmt.Errorf("session: unsupported query type %T", vq)
}

func (s *Session) iterate(ctx context.Context, q *Query) (iter.Seq2[Row, error], error) {
	c, err := q.selector(false)
	if err != nil {
		return nil, err
	}
	consumed := false
	return func(yield func(Row, error) bool) {
		if consumed {
			yield(Row{}, errors.New("session: result already consumed"))
			return
		}
		consumed = true
		for r, err := range s.fetch(ctx, c) {
			if !yield(r, err) || err != nil {
				return
			}
		}
	}, nil
}

// fetch runs the compiled statement and materializes its rows.
func (s *Session) fetch(ctx context.Context, c *compiled) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		query, args := c.sel.Query()
		s.log.DebugContext(ctx, "query", "sql", query, "args", args)
		rows := &sql.Rows{}
		if err := s.drv.Query(ctx, query, args, rows); err != nil {
			yield(Row{}, err)
			return
		}
		defer rows.Close()
		width := 0
		labels := make([]string, len(c.outs))
		for i, o := range c.outs {
			width += o.width
			labels[i] = o.label
		}
		for rows.Next() {
			raw := make([]any, width)
			ptrs := make([]any, width)
			for i := range raw {
				ptrs[i] = &raw[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				yield(Row{}, fmt.Errorf("session: scan: %w", err))
				return
			}
			r, err := s.materialize(c.outs, labels, raw)
			if !yield(r, err) || err != nil {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(Row{}, err)
		}
	}
}

func (s *Session) materialize(outs []output, labels []string, raw []any) (Row, error) {
	r := Row{labels: labels, values: make([]any, len(outs))}
	pos := 0
	for i, o := range outs {
		if o.typ == nil {
			r.values[i] = raw[pos]
			pos += o.width
			continue
		}
		cols := raw[pos : pos+o.width]
		pos += o.width
		if cols[0] == nil {
			// Outer join without a match.
			continue
		}
		id, err := ToInt64(cols[0])
		if err != nil {
			return Row{}, fmt.Errorf("session: %s primary key: %w", o.typ.Name(), err)
		}
		values := make(map[string]any, len(o.typ.Fields()))
		for j, f := range o.typ.Fields() {
			values[f.Name] = cols[j+1]
		}
		r.values[i] = s.load(o.typ, id, values)
	}
	return r, nil
}

func (s *Session) countQuery(ctx context.Context, q *Query) (int, error) {
	sel, ok, err := q.countSelector()
	if err != nil {
		return 0, err
	}
	if !ok {
		return s.countRowsQuery(ctx, q)
	}
	return s.scalar(ctx, sel)
}

func (s *Session) countRowsQuery(ctx context.Context, q *Query) (int, error) {
	sel, err := q.countRowsSelector()
	if err != nil {
		return 0, err
	}
	return s.scalar(ctx, sel)
}

func (s *Session) scalar(ctx context.Context, sel *sql.Selector) (int, error) {
	query, args := sel.Query()
	s.log.DebugContext(ctx, "query", "sql", query, "args", args)
	rows := &sql.Rows{}
	if err := s.drv.Query(ctx, query, args, rows); err != nil {
		return 0, err
	}
	return sql.ScanInt(rows)
}

func (s *Session) subquery(q *Query) (*Subquery, error) {
	if q.name == "" {
		return nil, errors.New("session: subquery without name")
	}
	c, err := q.selector(true)
	if err != nil {
		return nil, err
	}
	return &Subquery{name: q.name, sel: c.sel.As(q.name), labels: c.labels}, nil
}

func (s *Session) get(ctx context.Context, q *Query) (*Entity, error) {
	if q.get == nil {
		return nil, errors.New("session: identity lookup without key")
	}
	t, id := q.get.typ, q.get.id
	if !q.refresh {
		if e, ok := s.Cached(t, id); ok {
			return e, nil
		}
	}
	c, err := q.selector(false)
	if err != nil {
		return nil, err
	}
	for r, err := range s.fetch(ctx, c) {
		if err != nil {
			return nil, err
		}
		if e := r.Entity(0); e != nil {
			return e, nil
		}
	}
	return nil, veil.NewNotFoundErrorWithID(t.Name(), id)
}
