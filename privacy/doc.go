// Package privacy provides query rules evaluated by the visibility layer
// before it filters an operation.
//
// # Rule Evaluation
//
// Rules of a QueryPolicy are evaluated in order until one returns a
// final decision:
//
//   - Allow: the operation is trusted and runs without visibility filtering
//   - Deny: the operation fails with a *veil.PrivacyError
//   - Skip (or nil): continue with the next rule
//
// When every rule skips, the operation runs with visibility filtering.
// A decision attached with DecisionContext overrides the rules:
//
//	admin := privacy.DecisionContext(ctx, privacy.Allow)
//	users, err := sess.Query(User).Entities(admin) // invisible users included
//
// # Built-in Rules
//
//   - DenyIfNoViewer: denies if no viewer is present in context
//   - AlwaysAllowRule, AlwaysDenyRule: fixed decisions
//   - HasRole, HasAnyRole: allow if the viewer has one of the roles
//   - TenantQueryRule: denies without a viewer tenant
//   - ViewerFilterRule: restricts the query with a per-viewer predicate
//   - OnOperation, DenyOperationRule: restrict a rule to some operations
//
// # Filtering
//
// Queries run by the visibility layer implement Filterable, so FilterFunc
// rules can add predicates on top of the visibility predicates:
//
//	privacy.FilterFunc(func(ctx context.Context, f privacy.Filter) error {
//	    f.WhereP(session.C(Document, "tenant").EQ(tenantOf(ctx)))
//	    return privacy.Skip
//	})
//
// Relationship navigation is not filterable; FilterFunc rules deny it
// unless they are restricted with OnOperation.
package privacy
