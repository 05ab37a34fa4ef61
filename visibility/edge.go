package visibility

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/syssam/veil"
	"github.com/syssam/veil/privacy"
	"github.com/syssam/veil/session"
)

// edgeView is the filtered view of an edge memoized on its owner. It is
// valid while the raw target list and the generations it was computed
// from are unchanged.
type edgeView struct {
	raw     uint64
	owner   uint64
	targets []uint64
	visible []*session.Entity
}

func (v *edgeView) valid(owner *session.Entity, res *session.EdgeTargets) bool {
	if v.raw != res.Generation || v.owner != owner.Generation() || len(v.targets) != len(res.Entities) {
		return false
	}
	for i, e := range res.Entities {
		if v.targets[i] != e.Generation() {
			return false
		}
	}
	return true
}

func edgeKey(name string) string {
	return "visibility:edge:" + name
}

// edge re-derives the visible targets of a relationship on every access.
// The raw targets come from the session; the filtered view is memoized on
// the owner and recomputed when any generation it depends on changed.
func (l *Layer) edge(ctx context.Context, next veil.Querier, q *session.EdgeQuery) (veil.Value, error) {
	if len(l.policy) > 0 || hasDecision(ctx) {
		switch decision := l.policy.EvalQuery(ctx, q); {
		case decision == nil:
		case errors.Is(decision, privacy.Allow):
			return next.Query(ctx, q)
		default:
			return nil, veil.NewPrivacyError(q.Target().Name(), q.Op().String(), decision)
		}
	}
	v, err := next.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	res, ok := v.(*session.EdgeTargets)
	if !ok {
		return nil, fmt.Errorf("visibility: unexpected edge result %T", v)
	}
	p := l.resolver.Resolve(q.Target())
	if p == nil {
		return res, nil
	}
	owner, key := q.Owner(), edgeKey(q.Edge().Name)
	if m, ok := owner.Memo(key); ok {
		if view := m.(*edgeView); view.valid(owner, res) {
			return &session.EdgeTargets{Entities: slices.Clip(view.visible), Generation: res.Generation}, nil
		}
	}
	view := &edgeView{
		raw:     res.Generation,
		owner:   owner.Generation(),
		targets: make([]uint64, len(res.Entities)),
	}
	for i, e := range res.Entities {
		view.targets[i] = e.Generation()
		if p.Visible(e.Committed()) {
			view.visible = append(view.visible, e)
		}
	}
	owner.SetMemo(key, view)
	l.log.DebugContext(ctx, "edge view", "edge", q.Edge().Name, "targets", len(res.Entities), "visible", len(view.visible))
	return &session.EdgeTargets{Entities: slices.Clip(view.visible), Generation: res.Generation}, nil
}

func hasDecision(ctx context.Context) bool {
	_, ok := privacy.DecisionFromContext(ctx)
	return ok
}
