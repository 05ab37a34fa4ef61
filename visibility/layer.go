package visibility

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/syssam/veil"
	"github.com/syssam/veil/config"
	"github.com/syssam/veil/dialect/sql"
	"github.com/syssam/veil/privacy"
	"github.com/syssam/veil/schema"
	"github.com/syssam/veil/session"
)

// IdentityLookup is the policy of primary key lookups toward instances
// already held by the identity cache of the session.
type IdentityLookup int

const (
	// IdentityReverify privatizes the lookup and always reads the
	// database, refreshing the cached instance.
	IdentityReverify IdentityLookup = iota
	// IdentityTrustCache lets the session answer from its identity cache
	// and re-checks the visibility of the returned instance. Lookups
	// restricted by filter rules still read the database.
	IdentityTrustCache
)

// String returns the configuration name of the policy.
func (l IdentityLookup) String() string {
	if l == IdentityTrustCache {
		return config.LookupTrustCache
	}
	return config.LookupReverify
}

// ParseIdentityLookup parses a configuration name. The empty string is
// IdentityReverify.
func ParseIdentityLookup(s string) (IdentityLookup, error) {
	switch s {
	case "", config.LookupReverify:
		return IdentityReverify, nil
	case config.LookupTrustCache:
		return IdentityTrustCache, nil
	}
	return 0, fmt.Errorf("visibility: invalid identity lookup %q", s)
}

// Layer filters every terminal operation of a session down to visible
// rows. It implements veil.Interceptor.
type Layer struct {
	resolver *Resolver
	policy   privacy.QueryPolicy
	lookup   IdentityLookup
	log      *slog.Logger
}

// Option configures a Layer.
type Option func(*Layer)

// WithPolicy sets the privacy rules evaluated before filtering.
func WithPolicy(rules ...privacy.QueryRule) Option {
	return func(l *Layer) {
		l.policy = append(l.policy, rules...)
	}
}

// WithIdentityLookup sets the identity lookup policy.
func WithIdentityLookup(lookup IdentityLookup) Option {
	return func(l *Layer) {
		l.lookup = lookup
	}
}

// WithLogger sets the logger of the layer.
func WithLogger(log *slog.Logger) Option {
	return func(l *Layer) {
		if log != nil {
			l.log = log
		}
	}
}

// NewLayer returns a layer filtering the types of g.
func NewLayer(g *schema.Graph, opts ...Option) *Layer {
	l := &Layer{resolver: NewResolver(g), log: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Resolver returns the predicate resolver of the layer.
func (l *Layer) Resolver() *Resolver { return l.resolver }

// IdentityLookup returns the identity lookup policy.
func (l *Layer) IdentityLookup() IdentityLookup { return l.lookup }

// Intercept implements veil.Interceptor.
func (l *Layer) Intercept(next veil.Querier) veil.Querier {
	return veil.QuerierFunc(func(ctx context.Context, vq veil.Query) (veil.Value, error) {
		switch q := vq.(type) {
		case *session.Query:
			return l.query(ctx, next, q)
		case *session.EdgeQuery:
			return l.edge(ctx, next, q)
		}
		return next.Query(ctx, vq)
	})
}

func (l *Layer) query(ctx context.Context, next veil.Querier, q *session.Query) (veil.Value, error) {
	trusted, fq, err := l.authorize(ctx, q)
	if err != nil {
		return nil, err
	}
	if trusted {
		return next.Query(ctx, fq)
	}
	if fq.Op() == veil.OpGet {
		return l.get(ctx, next, fq, fq != q)
	}
	pq := l.resolver.Privatize(fq)
	l.log.DebugContext(ctx, "privatize", "op", fq.Op().String(), "participants", len(Participants(fq)))
	return next.Query(ctx, pq)
}

// authorize evaluates the privacy policy. It reports whether the
// operation is trusted, and returns the query restricted by the filter
// rules of the policy.
func (l *Layer) authorize(ctx context.Context, q *session.Query) (bool, *session.Query, error) {
	if !hasDecision(ctx) && len(l.policy) == 0 {
		return false, q, nil
	}
	fq := &filterQuery{Query: q}
	switch decision := l.policy.EvalQuery(ctx, fq); {
	case decision == nil:
	case errors.Is(decision, privacy.Allow):
		return true, q, nil
	default:
		return false, nil, veil.NewPrivacyError(label(q), q.Op().String(), decision)
	}
	if len(fq.preds) == 0 {
		return false, q, nil
	}
	enabled := q.AssertionsEnabled()
	return false, q.EnableAssertions(false).Where(fq.preds...).EnableAssertions(enabled), nil
}

// get runs an identity lookup. A lookup restricted by filter rules always
// reads the database.
func (l *Layer) get(ctx context.Context, next veil.Querier, q *session.Query, filtered bool) (veil.Value, error) {
	t, id, _ := q.Identity()
	if l.lookup == IdentityReverify || filtered {
		q = l.resolver.Privatize(q).WithRefresh()
	}
	v, err := next.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	e, ok := v.(*session.Entity)
	if !ok || e == nil {
		return nil, veil.NewNotFoundErrorWithID(t.Name(), id)
	}
	if p := l.resolver.Resolve(t); p != nil && !p.Visible(e.Committed()) {
		l.log.DebugContext(ctx, "identity lookup excluded", "type", t.Name(), "id", id)
		return nil, veil.NewNotFoundErrorWithID(t.Name(), id)
	}
	return e, nil
}

func label(q *session.Query) string {
	if types := Types(q); len(types) > 0 {
		return types[0].Name()
	}
	return "row"
}

// filterQuery exposes a query to the filter rules of a policy.
type filterQuery struct {
	*session.Query
	preds []*sql.Predicate
}

func (q *filterQuery) Filter() privacy.Filter { return q }

func (q *filterQuery) WhereP(ps ...*sql.Predicate) {
	q.preds = append(q.preds, ps...)
}

var _ veil.Interceptor = (*Layer)(nil)
