package visibility

import (
	"cmp"
	"slices"

	"github.com/syssam/veil/schema"
	"github.com/syssam/veil/session"
)

// Participant is a mapped type contributing rows to a query, under the
// table reference it is read through.
type Participant struct {
	Type  *schema.Type
	Ref   string
	Outer bool // reached through a left outer join
}

// Participants returns the mapped types taking part in q: the entities,
// aliases and parents of the columns and aggregates of the select list,
// and the join targets. Raw expressions and subqueries are not traced;
// subqueries are filtered when they are built.
//
// The result holds one participant per table reference, ordered by
// reference.
func Participants(q *session.Query) []Participant {
	byRef := make(map[string]Participant)
	add := func(t *schema.Type, ref string, outer bool) {
		if t == nil {
			return
		}
		if _, ok := byRef[ref]; !ok || outer {
			byRef[ref] = Participant{Type: t, Ref: ref, Outer: outer}
		}
	}
	for _, it := range q.Items() {
		t, ref := itemEntity(it)
		add(t, ref, false)
	}
	for _, j := range q.Joins() {
		t, ref := sourceEntity(j.Target())
		add(t, ref, j.Outer())
	}
	parts := make([]Participant, 0, len(byRef))
	for _, p := range byRef {
		parts = append(parts, p)
	}
	slices.SortFunc(parts, func(a, b Participant) int { return cmp.Compare(a.Ref, b.Ref) })
	return parts
}

// Types returns the distinct mapped types taking part in q.
func Types(q *session.Query) []*schema.Type {
	var types []*schema.Type
	for _, p := range Participants(q) {
		if !slices.Contains(types, p.Type) {
			types = append(types, p.Type)
		}
	}
	return types
}

func itemEntity(it session.Item) (*schema.Type, string) {
	switch it := it.(type) {
	case *session.Column:
		t, ref, _ := it.Entity()
		return t, ref
	case *session.Aggregate:
		if c := it.Column(); c != nil {
			t, ref, _ := c.Entity()
			return t, ref
		}
		return nil, ""
	}
	return sourceEntity(it)
}

func sourceEntity(src any) (*schema.Type, string) {
	switch s := src.(type) {
	case *schema.Type:
		return s, s.Table()
	case *session.Aliased:
		return s.Type(), s.Name()
	}
	return nil, ""
}
