package visibility

import (
	"github.com/syssam/veil/session"
)

// Key returns the key under which the predicate of a participant is
// added to a query.
func Key(p Participant) string {
	return "visibility:" + p.Type.Name() + "@" + p.Ref
}

// Privatize returns q restricted to the rows visible for every
// participant. The predicate of a participant is added to the WHERE
// clause, or to the ON clause of its join when it is reached through an
// outer join. Predicates are keyed per participant, so privatizing an
// already privatized query adds nothing. q is not modified.
//
// Builder assertions are disabled for the injection and restored
// afterwards: the predicates are added even after Limit, Offset,
// Distinct or GroupBy. This also hides an accidental Where call made on
// the same query by a caller that disabled assertions itself.
func (r *Resolver) Privatize(q *session.Query) *session.Query {
	enabled := q.AssertionsEnabled()
	out := q.EnableAssertions(false)
	for _, p := range Participants(q) {
		pred := r.Resolve(p.Type)
		if pred == nil {
			continue
		}
		if p.Outer {
			out = out.JoinOnOnce(p.Ref, Key(p), pred.Expr(p.Ref))
		} else {
			out = out.WhereOnce(Key(p), pred.Expr(p.Ref))
		}
	}
	return out.EnableAssertions(enabled)
}
