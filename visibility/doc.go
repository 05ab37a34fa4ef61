// Package visibility filters the queries of a session down to the rows
// an application marked visible.
//
// A mapped type opts in by declaring a visibility capability, either a
// boolean field or an expression:
//
//	User := schema.New("User",
//	    schema.Fields(field.String("name"), field.Bool("public")),
//	    schema.Visibility(schema.PublicField("public")),
//	)
//
// A Layer is attached to a session as an interceptor. Every terminal
// operation then runs privatized: the predicate of every participating
// type is conjoined into the query before it reaches the engine.
//
//	sess := visibility.NewSession(drv, graph)
//	n, err := sess.Query(User).Count(ctx) // counts visible users only
//
// Primary key lookups report invisible rows as not found. Relationship
// navigation re-derives the visible targets on every access, so changes
// committed in the session are reflected without reloading the owner.
//
// Privatize is also usable directly on a query:
//
//	q := layer.Resolver().Privatize(sess.Query(User, Address).JoinEdge(User, "addresses"))
package visibility
