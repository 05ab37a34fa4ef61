package session

import (
	"context"
	"fmt"

	"github.com/syssam/veil"
	"github.com/syssam/veil/schema"
)

// Preload loads the named edge of every owner with a single query and
// caches the raw targets on each owner, so later navigation does not hit
// the database per owner. Owners must share a type and belong to the
// session. Owners whose edge is already cached are left untouched.
//
//	users, _ := sess.Query(User).Entities(ctx)
//	err := sess.Preload(ctx, "addresses", users...)
func (s *Session) Preload(ctx context.Context, name string, owners ...*Entity) error {
	if len(owners) == 0 {
		return nil
	}
	t := owners[0].typ
	e, ok := t.Edge(name)
	if !ok {
		return fmt.Errorf("session: type %q has no edge %q", t.Name(), name)
	}
	target, _ := s.graph.Type(e.Type)
	var (
		pending []*Entity
		keys    []any
		seen    = make(map[int64]bool)
	)
	for _, o := range owners {
		switch {
		case o == nil:
			return fmt.Errorf("session: preload %q of nil entity", name)
		case o.sess != s:
			return fmt.Errorf("session: entity %s(%d) belongs to another session", o.typ.Name(), o.id)
		case o.typ != t:
			return fmt.Errorf("session: preload %q of mixed types %q and %q", name, t.Name(), o.typ.Name())
		}
		if _, ok := o.edges[name]; ok || o.isNew {
			continue
		}
		key, ok, err := ownerKey(o, e.Inverse, e.Field)
		if err != nil {
			return err
		}
		pending = append(pending, o)
		if ok && !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	if len(pending) == 0 {
		return nil
	}
	var groups map[int64][]*Entity
	if len(keys) > 0 {
		column := e.Field
		if e.Inverse {
			column = schema.IDColumn
		}
		c, err := s.Query(target).
			Where(C(target, column).In(keys...)).
			OrderBy(C(target, schema.IDColumn)).
			selector(false)
		if err != nil {
			return err
		}
		var targets []*Entity
		for r, err := range s.fetch(veil.NewOpContext(ctx, veil.OpEdge), c) {
			if err != nil {
				return err
			}
			targets = append(targets, r.Entity(0))
		}
		groups, err = groupByKey(targets, func(v *Entity) (int64, error) {
			if e.Inverse {
				return v.id, nil
			}
			return ToInt64(v.committed[e.Field])
		})
		if err != nil {
			return err
		}
	}
	for _, o := range pending {
		key, _, _ := ownerKey(o, e.Inverse, e.Field)
		if o.edges == nil {
			o.edges = make(map[string]*rawEdge)
		}
		o.edges[name] = &rawEdge{targets: groups[key], seq: s.nextSeq()}
	}
	s.log.DebugContext(ctx, "preload", "edge", name, "owners", len(pending), "keys", len(keys))
	return nil
}

// ownerKey returns the value the targets of an owner are grouped by: the
// owner id, or the foreign key it holds for an inverse edge. It reports
// false when an inverse edge holds no foreign key.
func ownerKey(o *Entity, inverse bool, field string) (int64, bool, error) {
	if !inverse {
		return o.id, true, nil
	}
	fk, ok := o.committed[field]
	if !ok || fk == nil {
		return 0, false, nil
	}
	id, err := ToInt64(fk)
	if err != nil {
		return 0, false, fmt.Errorf("session: edge foreign key %q: %w", field, err)
	}
	return id, true, nil
}

// groupByKey groups values by the key extracted from each value,
// keeping their order within a group.
func groupByKey[K comparable, V any](values []V, key func(V) (K, error)) (map[K][]V, error) {
	groups := make(map[K][]V)
	for _, v := range values {
		k, err := key(v)
		if err != nil {
			return nil, err
		}
		groups[k] = append(groups[k], v)
	}
	return groups, nil
}
