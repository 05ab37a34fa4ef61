package session

import (
	"fmt"
	"maps"
	"slices"

	"github.com/syssam/veil"
	"github.com/syssam/veil/dialect/sql"
	"github.com/syssam/veil/schema"
)

// Query is an immutable query description. Every builder method returns
// a new Query and leaves the receiver unchanged. Errors found while
// building are reported by the terminal operations.
type Query struct {
	sess       *Session
	items      []Item
	joins      []*Join
	where      []*sql.Predicate
	keys       map[string]struct{}
	group      []*Column
	order      []sql.Node
	limit      *int
	offset     *int
	distinct   bool
	assertions bool
	refresh    bool
	op         veil.Op
	name       string
	get        *identity
	err        error
}

// identity is the target of a primary key lookup.
type identity struct {
	typ *schema.Type
	id  int64
}

// Join is a join clause of a query.
type Join struct {
	target any
	on     []*sql.Predicate
	outer  bool
	keys   map[string]struct{}
}

// Target returns the joined source.
func (j *Join) Target() any { return j.target }

// Ref returns the table reference of the joined source.
func (j *Join) Ref() string { return refOf(j.target) }

// Outer reports whether the join is a left outer join.
func (j *Join) Outer() bool { return j.outer }

func (j *Join) clone() *Join {
	c := *j
	c.on = slices.Clone(j.on)
	c.keys = maps.Clone(j.keys)
	return &c
}

// Query returns a new query over the given items.
func (s *Session) Query(items ...Item) *Query {
	q := &Query{sess: s, items: items, assertions: true}
	for _, it := range items {
		if err := s.checkItem(it); err != nil {
			q.err = err
			break
		}
	}
	if len(items) == 0 {
		q.err = fmt.Errorf("session: query without items")
	}
	return q
}

func (s *Session) checkItem(it Item) error {
	switch it := it.(type) {
	case *schema.Type:
		return s.checkType(it)
	case *Aliased:
		return s.checkType(it.typ)
	case *Column:
		return s.checkColumn(it)
	case *Aggregate:
		if it.col != nil {
			return s.checkColumn(it.col)
		}
	case *RawExpr, *Subquery:
	default:
		return fmt.Errorf("session: unsupported query item %T", it)
	}
	return nil
}

func (s *Session) checkType(t *schema.Type) error {
	if !s.graph.Contains(t) {
		return fmt.Errorf("session: type %q is not registered", t.Name())
	}
	return nil
}

func (s *Session) checkColumn(c *Column) error {
	if t, _, ok := c.Entity(); ok {
		if err := s.checkType(t); err != nil {
			return err
		}
	}
	return c.validate()
}

func (q *Query) clone() *Query {
	c := *q
	c.items = slices.Clone(q.items)
	c.joins = make([]*Join, len(q.joins))
	for i, j := range q.joins {
		c.joins[i] = j.clone()
	}
	c.where = slices.Clone(q.where)
	c.keys = maps.Clone(q.keys)
	c.group = slices.Clone(q.group)
	c.order = slices.Clone(q.order)
	return &c
}

func (q *Query) fail(err error) *Query {
	c := q.clone()
	if c.err == nil {
		c.err = err
	}
	return c
}

// Session returns the session the query belongs to.
func (q *Query) Session() *Session { return q.sess }

// Items returns the select list.
func (q *Query) Items() []Item { return slices.Clone(q.items) }

// Joins returns the join clauses.
func (q *Query) Joins() []*Join { return slices.Clone(q.joins) }

// Op returns the operation the query is executed for. It is zero while
// the query is being built.
func (q *Query) Op() veil.Op { return q.op }

// Err returns the first error recorded while building the query.
func (q *Query) Err() error { return q.err }

// Identity returns the target of a primary key lookup.
func (q *Query) Identity() (*schema.Type, int64, bool) {
	if q.get == nil {
		return nil, 0, false
	}
	return q.get.typ, q.get.id, true
}

// Refreshing reports whether a primary key lookup bypasses the identity
// cache.
func (q *Query) Refreshing() bool { return q.refresh }

// WithRefresh returns a query whose primary key lookup always reads the
// database and refreshes the cached instance.
func (q *Query) WithRefresh() *Query {
	c := q.clone()
	c.refresh = true
	return c
}

// Where adds conditions to the WHERE clause, combined with AND. With
// assertions enabled, Where is rejected after Limit, Offset, Distinct or
// GroupBy.
func (q *Query) Where(preds ...*sql.Predicate) *Query {
	if method := q.fixedBy(); method != "" && q.assertions {
		return q.fail(&veil.InvalidRequestError{
			Method: "Where",
			Reason: fmt.Sprintf("called after %s() has been applied", method),
		})
	}
	c := q.clone()
	for _, p := range preds {
		if p != nil {
			c.where = append(c.where, p)
		}
	}
	return c
}

// WhereOnce adds the condition unless a condition with the same key was
// already added through WhereOnce.
func (q *Query) WhereOnce(key string, pred *sql.Predicate) *Query {
	if _, ok := q.keys[key]; ok {
		return q
	}
	c := q.Where(pred)
	if c.keys == nil {
		c.keys = make(map[string]struct{})
	}
	c.keys[key] = struct{}{}
	return c
}

// HasKey reports whether a condition with the key was added through
// WhereOnce or JoinOnOnce.
func (q *Query) HasKey(key string) bool {
	if _, ok := q.keys[key]; ok {
		return true
	}
	for _, j := range q.joins {
		if _, ok := j.keys[key]; ok {
			return true
		}
	}
	return false
}

func (q *Query) fixedBy() string {
	switch {
	case q.limit != nil:
		return "Limit"
	case q.offset != nil:
		return "Offset"
	case q.distinct:
		return "Distinct"
	case len(q.group) > 0:
		return "GroupBy"
	}
	return ""
}

// EnableAssertions toggles the builder checks. Disabling them allows
// Where after Limit, Offset, Distinct or GroupBy.
func (q *Query) EnableAssertions(enabled bool) *Query {
	c := q.clone()
	c.assertions = enabled
	return c
}

// AssertionsEnabled reports whether the builder checks are enabled.
func (q *Query) AssertionsEnabled() bool { return q.assertions }

// Join adds an inner join with the given target and ON conditions.
func (q *Query) Join(target any, on ...*sql.Predicate) *Query {
	return q.join(target, false, on)
}

// LeftJoin adds a left outer join with the given target and ON conditions.
func (q *Query) LeftJoin(target any, on ...*sql.Predicate) *Query {
	return q.join(target, true, on)
}

func (q *Query) join(target any, outer bool, on []*sql.Predicate) *Query {
	switch t := target.(type) {
	case *schema.Type:
		if err := q.sess.checkType(t); err != nil {
			return q.fail(err)
		}
	case *Aliased:
		if err := q.sess.checkType(t.typ); err != nil {
			return q.fail(err)
		}
	case *Subquery:
	default:
		return q.fail(fmt.Errorf("session: invalid join target %T", target))
	}
	ref := refOf(target)
	if slices.ContainsFunc(q.joins, func(j *Join) bool { return j.Ref() == ref }) {
		return q.fail(fmt.Errorf("session: %q is already joined", ref))
	}
	c := q.clone()
	j := &Join{target: target, outer: outer}
	for _, p := range on {
		if p != nil {
			j.on = append(j.on, p)
		}
	}
	c.joins = append(c.joins, j)
	return c
}

// JoinEdge joins the target of the named edge of owner, which is a type
// or an alias.
func (q *Query) JoinEdge(owner any, name string) *Query {
	return q.joinEdge(owner, name, false)
}

// LeftJoinEdge left joins the target of the named edge of owner.
func (q *Query) LeftJoinEdge(owner any, name string) *Query {
	return q.joinEdge(owner, name, true)
}

func (q *Query) joinEdge(owner any, name string, outer bool) *Query {
	var t *schema.Type
	switch o := owner.(type) {
	case *schema.Type:
		t = o
	case *Aliased:
		t = o.typ
	default:
		return q.fail(fmt.Errorf("session: invalid edge owner %T", owner))
	}
	e, ok := t.Edge(name)
	if !ok {
		return q.fail(fmt.Errorf("session: type %q has no edge %q", t.Name(), name))
	}
	target, _ := q.sess.graph.Type(e.Type)
	var on *sql.Predicate
	if e.Inverse {
		on = C(target, schema.IDColumn).EQC(C(owner, e.Field))
	} else {
		on = C(target, e.Field).EQC(C(owner, schema.IDColumn))
	}
	return q.join(target, outer, []*sql.Predicate{on})
}

// JoinOnOnce adds a condition to the ON clause of the join whose target
// has the given reference, unless a condition with the same key was
// already added to it.
func (q *Query) JoinOnOnce(ref, key string, pred *sql.Predicate) *Query {
	i := slices.IndexFunc(q.joins, func(j *Join) bool { return j.Ref() == ref })
	if i < 0 {
		return q.fail(fmt.Errorf("session: no join for %q", ref))
	}
	if _, ok := q.joins[i].keys[key]; ok {
		return q
	}
	c := q.clone()
	j := c.joins[i]
	j.on = append(j.on, pred)
	if j.keys == nil {
		j.keys = make(map[string]struct{})
	}
	j.keys[key] = struct{}{}
	return c
}

// GroupBy adds GROUP BY columns.
func (q *Query) GroupBy(cols ...*Column) *Query {
	c := q.clone()
	c.group = append(c.group, cols...)
	return c
}

// OrderBy adds ascending ORDER BY columns.
func (q *Query) OrderBy(cols ...*Column) *Query {
	c := q.clone()
	for _, col := range cols {
		c.order = append(c.order, sql.Col(col.Ident()))
	}
	return c
}

// OrderByDesc adds descending ORDER BY columns.
func (q *Query) OrderByDesc(cols ...*Column) *Query {
	c := q.clone()
	for _, col := range cols {
		c.order = append(c.order, sql.Desc(sql.Col(col.Ident())))
	}
	return c
}

// Limit limits the number of rows.
func (q *Query) Limit(n int) *Query {
	c := q.clone()
	c.limit = &n
	return c
}

// Offset skips the first n rows.
func (q *Query) Offset(n int) *Query {
	c := q.clone()
	c.offset = &n
	return c
}

// Distinct removes duplicate rows.
func (q *Query) Distinct() *Query {
	c := q.clone()
	c.distinct = true
	return c
}

func (q *Query) withOp(op veil.Op) *Query {
	c := q.clone()
	c.op = op
	return c
}
