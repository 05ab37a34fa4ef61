package session

import (
	"context"
	"fmt"

	"github.com/syssam/veil"
	"github.com/syssam/veil/schema"
	"github.com/syssam/veil/schema/edge"
)

// EdgeQuery is the navigation of an edge from a loaded entity. It runs
// through the session interceptors as a veil.OpEdge query.
type EdgeQuery struct {
	owner  *Entity
	edge   *edge.Descriptor
	target *schema.Type
}

// Owner returns the entity the edge is navigated from.
func (q *EdgeQuery) Owner() *Entity { return q.owner }

// Edge returns the navigated edge.
func (q *EdgeQuery) Edge() *edge.Descriptor { return q.edge }

// Target returns the target type of the edge.
func (q *EdgeQuery) Target() *schema.Type { return q.target }

// Op returns veil.OpEdge.
func (q *EdgeQuery) Op() veil.Op { return veil.OpEdge }

// EdgeTargets is the result of an edge navigation. Generation identifies
// the raw target list the entities were taken from; it changes whenever
// the list is reloaded.
type EdgeTargets struct {
	Entities   []*Entity
	Generation uint64
}

// Edges returns the targets of the named edge of owner.
func (s *Session) Edges(ctx context.Context, owner *Entity, name string) ([]*Entity, error) {
	res, err := s.navigate(ctx, owner, name)
	if err != nil {
		return nil, err
	}
	return res.Entities, nil
}

// Edge returns the target of the named to-one edge of owner, or nil when
// there is none.
func (s *Session) Edge(ctx context.Context, owner *Entity, name string) (*Entity, error) {
	if e, ok := owner.typ.Edge(name); ok && e.Cardinality() != edge.ToOne {
		return nil, fmt.Errorf("session: edge %q of %q is not to-one", name, owner.typ.Name())
	}
	res, err := s.navigate(ctx, owner, name)
	if err != nil || len(res.Entities) == 0 {
		return nil, err
	}
	return res.Entities[0], nil
}

func (s *Session) navigate(ctx context.Context, owner *Entity, name string) (*EdgeTargets, error) {
	if owner == nil {
		return nil, fmt.Errorf("session: edge %q of nil entity", name)
	}
	if owner.sess != s {
		return nil, fmt.Errorf("session: entity %s(%d) belongs to another session", owner.typ.Name(), owner.id)
	}
	e, ok := owner.typ.Edge(name)
	if !ok {
		return nil, fmt.Errorf("session: type %q has no edge %q", owner.typ.Name(), name)
	}
	target, _ := s.graph.Type(e.Type)
	v, err := s.run(ctx, &EdgeQuery{owner: owner, edge: e, target: target})
	if err != nil {
		return nil, err
	}
	res, ok := v.(*EdgeTargets)
	if !ok {
		return nil, fmt.Errorf("session: unexpected result type %T for edge %q", v, name)
	}
	return res, nil
}

// edgeTargets returns the raw targets of the edge, loading them on first
// access and caching them on the owner.
func (s *Session) edgeTargets(ctx context.Context, q *EdgeQuery) (*EdgeTargets, error) {
	owner := q.owner
	if raw, ok := owner.edges[q.edge.Name]; ok {
		return &EdgeTargets{Entities: raw.targets, Generation: raw.seq}, nil
	}
	targets, err := s.loadEdge(ctx, q)
	if err != nil {
		return nil, err
	}
	raw := &rawEdge{targets: targets, seq: s.nextSeq()}
	if owner.edges == nil {
		owner.edges = make(map[string]*rawEdge)
	}
	owner.edges[q.edge.Name] = raw
	return &EdgeTargets{Entities: raw.targets, Generation: raw.seq}, nil
}

func (s *Session) loadEdge(ctx context.Context, q *EdgeQuery) ([]*Entity, error) {
	owner, e, t := q.owner, q.edge, q.target
	if owner.isNew {
		return nil, nil
	}
	var pred = C(t, e.Field).EQ(owner.id)
	if e.Inverse {
		fk, ok := owner.committed[e.Field]
		if !ok || fk == nil {
			return nil, nil
		}
		id, err := ToInt64(fk)
		if err != nil {
			return nil, fmt.Errorf("session: edge %q foreign key: %w", e.Name, err)
		}
		pred = C(t, schema.IDColumn).EQ(id)
	}
	c, err := s.Query(t).Where(pred).OrderBy(C(t, schema.IDColumn)).selector(false)
	if err != nil {
		return nil, err
	}
	var targets []*Entity
	for r, err := range s.fetch(ctx, c) {
		if err != nil {
			return nil, err
		}
		targets = append(targets, r.Entity(0))
	}
	return targets, nil
}

// invalidateEdges drops every cached raw edge list.
func (s *Session) invalidateEdges() {
	for _, e := range s.identity {
		e.edges = nil
	}
}
