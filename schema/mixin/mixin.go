package mixin

import (
	"github.com/syssam/veil/dialect/sql"
	"github.com/syssam/veil/schema"
	"github.com/syssam/veil/schema/edge"
	"github.com/syssam/veil/schema/field"
)

// Schema is the default implementation for the schema.Mixin interface.
// It should be embedded in all custom mixin definitions.
//
// Example:
//
//	type Audit struct {
//	    mixin.Schema
//	}
//
//	func (Audit) Fields() []field.Field {
//	    return []field.Field{
//	        field.String("created_by").Optional(),
//	    }
//	}
type Schema struct{}

// Fields returns the fields of the mixin.
func (Schema) Fields() []field.Field { return nil }

// Edges returns the edges of the mixin.
func (Schema) Edges() []edge.Edge { return nil }

// Public returns the visibility capability of the mixin.
func (Schema) Public() schema.Public { return nil }

var _ schema.Mixin = (*Schema)(nil)

// Public adds a boolean flag field and makes it the visibility of the
// type. The field is named "public" unless Field is set.
//
//	schema.New("User", schema.Mixins(mixin.Public{}), ...)
type Public struct {
	Schema
	Field string
}

func (p Public) name() string {
	if p.Field != "" {
		return p.Field
	}
	return "public"
}

// Fields returns the flag field.
func (p Public) Fields() []field.Field {
	return []field.Field{
		field.Bool(p.name()).Default(false),
	}
}

// Public returns the flag field as the visibility of the type.
func (p Public) Public() schema.Public {
	return schema.PublicField(p.name())
}

// SoftDelete adds a deleted_at field. Rows with a deleted_at value are
// not visible.
type SoftDelete struct {
	Schema
}

// Fields returns the soft delete field.
func (SoftDelete) Fields() []field.Field {
	return []field.Field{
		field.Time("deleted_at").
			Optional().
			Comment("Timestamp when the entity was soft deleted (nil means not deleted)"),
	}
}

// Public returns an expression visibility that holds while deleted_at
// is unset.
func (SoftDelete) Public() schema.Public {
	return schema.PublicExpr(
		func(ref string) *sql.Predicate {
			return sql.IsNull(ref + ".deleted_at")
		},
		func(r schema.Record) bool {
			v, ok := r.Value("deleted_at")
			return !ok || v == nil
		},
	)
}
