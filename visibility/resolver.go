package visibility

import (
	"github.com/syssam/veil/dialect/sql"
	"github.com/syssam/veil/schema"
	"github.com/syssam/veil/session"
)

// Predicate is the resolved visibility predicate of a type.
type Predicate struct {
	typ    *schema.Type
	field  string
	column string
	expr   *schema.ExprPublic
}

// Type returns the type the predicate belongs to.
func (p *Predicate) Type() *schema.Type { return p.typ }

// Expr returns the filter fragment bound to a table reference. A plain
// boolean field is coerced, so both kinds of declaration render as a
// boolean expression.
func (p *Predicate) Expr(ref string) *sql.Predicate {
	if p.expr != nil {
		return p.expr.Predicate(ref)
	}
	return sql.IsTrue(ref + "." + p.column)
}

// Visible evaluates the predicate for an instance.
func (p *Predicate) Visible(r schema.Record) bool {
	if p.expr != nil {
		return p.expr.Eval(r)
	}
	v, _ := r.Value(p.field)
	return session.ToBool(v)
}

// Resolver holds the predicates of the types of a graph, resolved once.
type Resolver struct {
	preds map[*schema.Type]*Predicate
}

// NewResolver resolves the visibility capability of every type of g.
func NewResolver(g *schema.Graph) *Resolver {
	r := &Resolver{preds: make(map[*schema.Type]*Predicate)}
	for _, t := range g.Types() {
		switch pub := t.Public().(type) {
		case *schema.FieldPublic:
			f, _ := t.Field(pub.Field)
			r.preds[t] = &Predicate{typ: t, field: f.Name, column: f.Column()}
		case *schema.ExprPublic:
			r.preds[t] = &Predicate{typ: t, expr: pub}
		}
	}
	return r
}

// Resolve returns the predicate of t, or nil when t declares no
// visibility.
func (r *Resolver) Resolve(t *schema.Type) *Predicate {
	return r.preds[t]
}
