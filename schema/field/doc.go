// Package field provides fluent builders for the fields of mapped entity
// types.
//
//	field.String("name")
//	field.Int("user_id").Optional()
//	field.Bool("public").Default(false)
//	field.String("email").StorageKey("email_address")
//
// The primary key is not declared as a field: every type has an integer
// "id" column.
package field
