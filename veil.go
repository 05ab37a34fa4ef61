package veil

import "context"

type (
	// Value represents a value returned by a query or an interceptor.
	Value any

	// Query represents a query passing through the interceptor pipeline.
	// Concrete values are *session.Query for select-shaped operations and
	// *session.EdgeQuery for relationship navigation.
	Query any

	// Querier wraps the basic Query method that is implemented
	// by the query executors and by every interceptor stage.
	Querier interface {
		// Query runs the given query and returns its result.
		Query(context.Context, Query) (Value, error)
	}

	// The QuerierFunc type is an adapter to allow the use of ordinary
	// functions as Querier. If f is a function with the appropriate
	// signature, QuerierFunc(f) is a Querier that calls f.
	QuerierFunc func(context.Context, Query) (Value, error)

	// Interceptor wraps a Querier with additional behavior. Interceptors
	// are applied in the order they were registered: the first one is the
	// outermost stage of the pipeline.
	Interceptor interface {
		// Intercept returns a Querier that runs before (and possibly
		// instead of) the next Querier in the pipeline.
		Intercept(Querier) Querier
	}

	// The InterceptFunc type is an adapter to allow the use of ordinary
	// function as Interceptor. If f is a function with the appropriate
	// signature, InterceptFunc(f) is an Interceptor that calls f.
	InterceptFunc func(Querier) Querier
)

// Query calls f(ctx, q).
func (f QuerierFunc) Query(ctx context.Context, q Query) (Value, error) {
	return f(ctx, q)
}

// Intercept calls f(next).
func (f InterceptFunc) Intercept(next Querier) Querier {
	return f(next)
}

// Chain builds the pipeline for the given interceptors around the final
// querier. The first interceptor is the outermost.
func Chain(final Querier, inters ...Interceptor) Querier {
	q := final
	for i := len(inters) - 1; i >= 0; i-- {
		q = inters[i].Intercept(q)
	}
	return q
}

// Op represents the kind of terminal operation a query is executed for.
type Op uint

// Terminal query operations.
const (
	OpIter      Op = 1 << iota // stream rows
	OpCount                    // specialized COUNT(*) aggregate
	OpCountRows                // generic count over a derived table
	OpSubquery                 // wrap the query as a derived table
	OpGet                      // identity (primary key) lookup
	OpEdge                     // relationship navigation
)

// Is reports whether o matches the given operation.
func (o Op) Is(op Op) bool { return o&op != 0 }

var opNames = map[Op]string{
	OpIter:      "OpIter",
	OpCount:     "OpCount",
	OpCountRows: "OpCountRows",
	OpSubquery:  "OpSubquery",
	OpGet:       "OpGet",
	OpEdge:      "OpEdge",
}

// String returns the name of the operation.
func (o Op) String() string {
	if name, ok := opNames[o]; ok {
		return name
	}
	return "Op(unknown)"
}

type opCtxKey struct{}

// NewOpContext returns a copy of parent carrying the operation its
// statements are executed for. Drivers read it back with OpFromContext.
func NewOpContext(parent context.Context, op Op) context.Context {
	return context.WithValue(parent, opCtxKey{}, op)
}

// OpFromContext returns the operation attached to ctx, if any.
func OpFromContext(ctx context.Context) (Op, bool) {
	op, ok := ctx.Value(opCtxKey{}).(Op)
	return op, ok
}
