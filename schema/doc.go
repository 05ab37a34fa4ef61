// Package schema declares mapped entity types and the graph that
// registers them.
//
// A type has an integer "id" primary key, fields declared with the field
// package, edges declared with the edge package, and optionally a
// visibility capability:
//
//	user := schema.New("User",
//	    schema.Fields(
//	        field.String("name"),
//	        field.Bool("public"),
//	    ),
//	    schema.Edges(edge.To("addresses", "Address").Field("user_id")),
//	    schema.Visibility(schema.PublicField("public")),
//	)
//	g, err := schema.NewGraph(user, address)
//
// # Visibility
//
// PublicField names a boolean field; rows are visible when it is true.
// PublicExpr supplies an expression already known to be boolean together
// with its evaluation on a loaded instance. Types without a capability are
// never filtered.
//
// The default table name is the snake-cased plural of the type name
// ("User" maps to "users"); Table overrides it.
package schema
