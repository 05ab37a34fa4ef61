package privacy

import (
	"context"
	"errors"
	"fmt"

	"github.com/syssam/veil"
	"github.com/syssam/veil/dialect/sql"
)

// Policy decision sentinel errors.
//
// These errors are used as return values from rules to indicate how the
// evaluation should proceed. Use errors.Is() to check for these values:
//
//	if errors.Is(err, privacy.Allow) { ... }
//	if errors.Is(err, privacy.Deny) { ... }
//	if errors.Is(err, privacy.Skip) { ... }
var (
	// Allow may be returned by rules to indicate that the policy
	// evaluation should terminate with an allow decision. The visibility
	// layer treats an allowed operation as trusted and does not filter it.
	Allow = errors.New("veil/privacy: allow rule")

	// Deny may be returned by rules to indicate that the policy
	// evaluation should terminate with a deny decision.
	// When returned from a policy, the operation is rejected.
	Deny = errors.New("veil/privacy: deny rule")

	// Skip may be returned by rules to indicate that the policy
	// evaluation should continue to the next rule in the chain.
	Skip = errors.New("veil/privacy: skip rule")
)

// Allowf returns a formatted wrapped Allow decision.
func Allowf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Allow)...)
}

// Denyf returns a formatted wrapped Deny decision.
func Denyf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Deny)...)
}

// Skipf returns a formatted wrapped Skip decision.
func Skipf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Skip)...)
}

type (
	// QueryRule defines the interface deciding whether a query is allowed
	// and optionally restricting it.
	QueryRule interface {
		EvalQuery(context.Context, veil.Query) error
	}

	// QueryPolicy combines multiple query rules into a single policy.
	QueryPolicy []QueryRule

	// QueryRuleFunc type is an adapter which allows the use of ordinary
	// functions as query rules.
	QueryRuleFunc func(context.Context, veil.Query) error
)

// EvalQuery returns f(ctx, q).
func (f QueryRuleFunc) EvalQuery(ctx context.Context, q veil.Query) error {
	return f(ctx, q)
}

// AlwaysAllowRule returns a rule that always returns an Allow decision.
func AlwaysAllowRule() QueryRule {
	return fixedDecision{Allow}
}

// AlwaysDenyRule returns a rule that always returns a Deny decision.
func AlwaysDenyRule() QueryRule {
	return fixedDecision{Deny}
}

// ContextQueryRule creates a query rule from a context evaluation function.
// The function should return Allow, Deny, Skip, or nil. Returning nil is
// equivalent to returning Skip.
func ContextQueryRule(eval func(context.Context) error) QueryRule {
	return QueryRuleFunc(func(ctx context.Context, _ veil.Query) error {
		return eval(ctx)
	})
}

// OnOperation evaluates the given rule only for the given operations.
// Queries that do not report their operation are skipped.
func OnOperation(rule QueryRule, op veil.Op) QueryRule {
	return QueryRuleFunc(func(ctx context.Context, q veil.Query) error {
		if o, ok := q.(interface{ Op() veil.Op }); ok && o.Op().Is(op) {
			return rule.EvalQuery(ctx, q)
		}
		return Skip
	})
}

// DenyOperationRule returns a rule denying the given operations.
func DenyOperationRule(op veil.Op) QueryRule {
	rule := QueryRuleFunc(func(_ context.Context, q veil.Query) error {
		return Denyf("veil/privacy: operation %s is not allowed", q.(interface{ Op() veil.Op }).Op())
	})
	return OnOperation(rule, op)
}

// EvalQuery evaluates the rules in order and returns the first decision
// that is not Skip. A decision attached to the context takes precedence
// over the rules. The returned decision is nil when every rule skipped.
func (policy QueryPolicy) EvalQuery(ctx context.Context, q veil.Query) error {
	if decision, ok := DecisionFromContext(ctx); ok {
		return decision
	}
	for _, rule := range policy {
		switch decision := rule.EvalQuery(ctx, q); {
		case decision == nil || errors.Is(decision, Skip):
		default:
			return decision
		}
	}
	return nil
}

type decisionCtxKey struct{}

// DecisionContext creates a new context from the given parent context with
// a policy decision attached to it. Attaching Allow marks every operation
// run with the context as trusted.
func DecisionContext(parent context.Context, decision error) context.Context {
	if decision == nil || errors.Is(decision, Skip) {
		return parent
	}
	return context.WithValue(parent, decisionCtxKey{}, decision)
}

// DecisionFromContext retrieves the policy decision from the context.
func DecisionFromContext(ctx context.Context) (error, bool) {
	decision, ok := ctx.Value(decisionCtxKey{}).(error)
	return decision, ok
}

type fixedDecision struct {
	decision error
}

func (f fixedDecision) EvalQuery(context.Context, veil.Query) error {
	return f.decision
}

// Filter is the interface that wraps the WhereP method for restricting
// a query with additional predicates.
type Filter interface {
	// WhereP appends predicates to the WHERE clause of the query.
	WhereP(...*sql.Predicate)
}

// Filterable is implemented by queries that support filtering.
type Filterable interface {
	Filter() Filter
}

// FilterFunc is an adapter that allows using ordinary functions as query
// rules that restrict the filtered query.
//
//	privacy.FilterFunc(func(ctx context.Context, f privacy.Filter) error {
//	    f.WhereP(session.C(User, "tenant").EQ(tenantID))
//	    return privacy.Skip
//	})
type FilterFunc func(context.Context, Filter) error

// EvalQuery calls f(ctx, q.Filter()) if the query implements Filterable.
func (f FilterFunc) EvalQuery(ctx context.Context, q veil.Query) error {
	fr, ok := q.(Filterable)
	if !ok {
		return Denyf("veil/privacy: query type %T does not support filtering", q)
	}
	return f(ctx, fr.Filter())
}

var (
	_ QueryRule = FilterFunc(nil)
	_ QueryRule = QueryPolicy(nil)
)
