// Package edge provides fluent builders for relationships between mapped
// entity types.
//
// # Edge Types
//
//   - edge.To: the foreign key lives on the target (one-to-many, or
//     one-to-one with Unique)
//   - edge.From: the foreign key lives on the owner (many-to-one)
//
// # Bidirectional Edges
//
//	// User type
//	edge.To("addresses", "Address").Field("user_id")
//
//	// Address type
//	edge.From("user", "User").Field("user_id")
//
// The foreign key field must be declared with the field package on the
// type that stores it.
package edge
