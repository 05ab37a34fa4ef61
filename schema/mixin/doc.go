// Package mixin provides reusable schema components.
//
// A mixin contributes fields, edges and optionally the visibility of the
// types that use it:
//
//	schema.New("Document",
//	    schema.Mixins(mixin.SoftDelete{}),
//	    schema.Fields(field.String("title")),
//	)
//
// Custom mixins embed Schema and override the methods they need.
package mixin
