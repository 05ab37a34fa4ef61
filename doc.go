// Package veil holds the runtime contract shared by the session engine and
// the visibility layer: the query pipeline types (Querier, Interceptor), the
// kinds of terminal operations (Op) and the error types returned by both.
//
// # Pipeline
//
// Every terminal operation of a session query (iterate, count, identity
// lookup, subquery wrapping, relationship navigation) is executed through a
// chain of interceptors ending in the engine's executor:
//
//	sess.Intercept(veil.InterceptFunc(func(next veil.Querier) veil.Querier {
//	    return veil.QuerierFunc(func(ctx context.Context, q veil.Query) (veil.Value, error) {
//	        start := time.Now()
//	        defer func() { log.Printf("query took %s", time.Since(start)) }()
//	        return next.Query(ctx, q)
//	    })
//	}))
//
// The visibility package provides the interceptor that filters every
// operation down to visible rows.
//
// # Errors
//
// Lookups that find nothing and lookups whose target is not visible both
// report a *NotFoundError; callers cannot tell the two apart:
//
//	if veil.IsNotFound(err) { ... }
package veil
