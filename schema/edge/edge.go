package edge

import "fmt"

// A Descriptor for edge configuration.
type Descriptor struct {
	Name    string // edge name.
	Type    string // target type name.
	Inverse bool   // the foreign key lives on the owner.
	Unique  bool   // the edge yields at most one target.
	Field   string // foreign key field.
	Comment string
	Err     error
}

// Edge is implemented by the edge builders.
type Edge interface {
	Descriptor() *Descriptor
}

// Cardinality describes how many targets an edge yields.
type Cardinality uint8

// Edge cardinalities.
const (
	ToMany Cardinality = iota
	ToOne
)

// String returns the cardinality name.
func (c Cardinality) String() string {
	if c == ToOne {
		return "to-one"
	}
	return "to-many"
}

// Cardinality returns the cardinality of the edge.
func (d *Descriptor) Cardinality() Cardinality {
	if d.Inverse || d.Unique {
		return ToOne
	}
	return ToMany
}

// ToBuilder is the builder for assoc edges. The foreign key field is
// declared on the target type.
type ToBuilder struct {
	desc *Descriptor
}

// To defines an association edge from the owner to the target type.
//
//	edge.To("addresses", "Address").Field("user_id")
func To(name, target string) *ToBuilder {
	return &ToBuilder{desc: newDescriptor(name, target, false)}
}

// Unique sets the edge type to be unique. Basically, it limits the edge
// to be one of the two: one-2-one or many-2-one.
func (b *ToBuilder) Unique() *ToBuilder {
	b.desc.Unique = true
	return b
}

// Field sets the foreign key field on the target type.
func (b *ToBuilder) Field(f string) *ToBuilder {
	b.desc.Field = f
	return b
}

// Comment used to put annotations on the edge.
func (b *ToBuilder) Comment(c string) *ToBuilder {
	b.desc.Comment = c
	return b
}

// Descriptor implements the Edge interface by returning its descriptor.
func (b *ToBuilder) Descriptor() *Descriptor {
	if b.desc.Field == "" && b.desc.Err == nil {
		b.desc.Err = fmt.Errorf("edge: missing foreign key field for edge %q", b.desc.Name)
	}
	return b.desc
}

// FromBuilder is the builder for inverse edges. The foreign key field is
// declared on the owner type.
type FromBuilder struct {
	desc *Descriptor
}

// From defines an inverse edge from the owner to the target type. Inverse
// edges are always to-one.
//
//	edge.From("user", "User").Field("user_id")
func From(name, target string) *FromBuilder {
	d := newDescriptor(name, target, true)
	d.Unique = true
	return &FromBuilder{desc: d}
}

// Field sets the foreign key field on the owner type.
func (b *FromBuilder) Field(f string) *FromBuilder {
	b.desc.Field = f
	return b
}

// Comment used to put annotations on the edge.
func (b *FromBuilder) Comment(c string) *FromBuilder {
	b.desc.Comment = c
	return b
}

// Descriptor implements the Edge interface by returning its descriptor.
func (b *FromBuilder) Descriptor() *Descriptor {
	if b.desc.Field == "" && b.desc.Err == nil {
		b.desc.Err = fmt.Errorf("edge: missing foreign key field for edge %q", b.desc.Name)
	}
	return b.desc
}

func newDescriptor(name, target string, inverse bool) *Descriptor {
	d := &Descriptor{Name: name, Type: target, Inverse: inverse}
	switch {
	case name == "":
		d.Err = fmt.Errorf("edge: missing name for edge to %q", target)
	case target == "":
		d.Err = fmt.Errorf("edge: missing target type for edge %q", name)
	}
	return d
}
