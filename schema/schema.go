package schema

import (
	"errors"
	"fmt"
	"slices"

	"github.com/go-openapi/inflect"

	"github.com/syssam/veil/dialect/sql"
	"github.com/syssam/veil/schema/edge"
	"github.com/syssam/veil/schema/field"
)

// IDColumn is the primary key column of every mapped type.
const IDColumn = "id"

var rules = inflect.NewDefaultRuleset()

// Record is the read view of an instance used to evaluate visibility.
type Record interface {
	// Value returns the value of the named field and whether it is set.
	Value(field string) (any, bool)
}

// Public is the optional visibility capability of a type. It is either
// a *FieldPublic or an *ExprPublic.
type Public interface {
	public()
}

// FieldPublic marks a type visible when a plain boolean field is true.
type FieldPublic struct {
	Field string
}

func (*FieldPublic) public() {}

// PublicField declares visibility through a boolean field.
func PublicField(name string) *FieldPublic {
	return &FieldPublic{Field: name}
}

// ExprPublic declares visibility through an expression that is already
// boolean. Predicate renders the class-level expression bound to a table
// reference; Eval computes the same answer for a loaded instance.
type ExprPublic struct {
	Predicate func(ref string) *sql.Predicate
	Eval      func(Record) bool
}

func (*ExprPublic) public() {}

// PublicExpr declares visibility through an expression.
func PublicExpr(pred func(ref string) *sql.Predicate, eval func(Record) bool) *ExprPublic {
	return &ExprPublic{Predicate: pred, Eval: eval}
}

// Mixin is a reusable set of fields, edges and visibility.
type Mixin interface {
	Fields() []field.Field
	Edges() []edge.Edge
	Public() Public
}

// Type is a mapped entity type.
type Type struct {
	name   string
	table  string
	fields []*field.Descriptor
	edges  []*edge.Descriptor
	public Public
	errs   []error
}

// Option configures a Type.
type Option func(*Type)

// Table overrides the default table name.
func Table(name string) Option {
	return func(t *Type) { t.table = name }
}

// Fields adds fields to the type.
func Fields(fs ...field.Field) Option {
	return func(t *Type) {
		for _, f := range fs {
			t.fields = append(t.fields, f.Descriptor())
		}
	}
}

// Edges adds edges to the type.
func Edges(es ...edge.Edge) Option {
	return func(t *Type) {
		for _, e := range es {
			t.edges = append(t.edges, e.Descriptor())
		}
	}
}

// Visibility sets the visibility capability of the type.
func Visibility(p Public) Option {
	return func(t *Type) { t.public = p }
}

// Mixins applies the mixins to the type. Fields and edges of mixins come
// before the ones declared by the type itself.
func Mixins(ms ...Mixin) Option {
	return func(t *Type) {
		var (
			fields []*field.Descriptor
			edges  []*edge.Descriptor
		)
		for _, m := range ms {
			for _, f := range m.Fields() {
				fields = append(fields, f.Descriptor())
			}
			for _, e := range m.Edges() {
				edges = append(edges, e.Descriptor())
			}
			if p := m.Public(); p != nil {
				if t.public != nil {
					t.errs = append(t.errs, fmt.Errorf("schema: type %q has more than one visibility declaration", t.name))
				}
				t.public = p
			}
		}
		t.fields = append(fields, t.fields...)
		t.edges = append(edges, t.edges...)
	}
}

// New declares a mapped type. The default table name is the snake-cased
// plural of the name.
func New(name string, opts ...Option) *Type {
	t := &Type{name: name, table: rules.Underscore(rules.Pluralize(name))}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name returns the type name.
func (t *Type) Name() string { return t.name }

// Table returns the table name.
func (t *Type) Table() string { return t.table }

// Fields returns the declared fields, excluding the primary key.
func (t *Type) Fields() []*field.Descriptor { return t.fields }

// Field returns the named field.
func (t *Type) Field(name string) (*field.Descriptor, bool) {
	i := slices.IndexFunc(t.fields, func(f *field.Descriptor) bool { return f.Name == name })
	if i < 0 {
		return nil, false
	}
	return t.fields[i], true
}

// HasField reports whether name is the primary key or a declared field.
func (t *Type) HasField(name string) bool {
	_, ok := t.Field(name)
	return ok || name == IDColumn
}

// Column returns the column of the named field. The primary key is
// addressed as "id".
func (t *Type) Column(name string) (string, bool) {
	if name == IDColumn {
		return IDColumn, true
	}
	f, ok := t.Field(name)
	if !ok {
		return "", false
	}
	return f.Column(), true
}

// Columns returns the primary key followed by the field columns.
func (t *Type) Columns() []string {
	columns := make([]string, 0, len(t.fields)+1)
	columns = append(columns, IDColumn)
	for _, f := range t.fields {
		columns = append(columns, f.Column())
	}
	return columns
}

// Edges returns the declared edges.
func (t *Type) Edges() []*edge.Descriptor { return t.edges }

// Edge returns the named edge.
func (t *Type) Edge(name string) (*edge.Descriptor, bool) {
	i := slices.IndexFunc(t.edges, func(e *edge.Descriptor) bool { return e.Name == name })
	if i < 0 {
		return nil, false
	}
	return t.edges[i], true
}

// Public returns the visibility capability, or nil.
func (t *Type) Public() Public { return t.public }

// String implements fmt.Stringer.
func (t *Type) String() string { return t.name }

// Graph is the registry of mapped types.
type Graph struct {
	types []*Type
	index map[string]*Type
}

// NewGraph validates the types and returns their registry.
func NewGraph(types ...*Type) (*Graph, error) {
	g := &Graph{index: make(map[string]*Type, len(types))}
	var errs []error
	for _, t := range types {
		if t.name == "" {
			errs = append(errs, errors.New("schema: type with empty name"))
			continue
		}
		if _, ok := g.index[t.name]; ok {
			errs = append(errs, fmt.Errorf("schema: duplicate type %q", t.name))
			continue
		}
		g.index[t.name] = t
		g.types = append(g.types, t)
	}
	for _, t := range g.types {
		errs = append(errs, g.check(t)...)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return g, nil
}

// MustGraph is like NewGraph but panics on error.
func MustGraph(types ...*Type) *Graph {
	g, err := NewGraph(types...)
	if err != nil {
		panic(err)
	}
	return g
}

func (g *Graph) check(t *Type) []error {
	errs := slices.Clone(t.errs)
	seen := make(map[string]bool)
	for _, f := range t.fields {
		switch {
		case f.Err != nil:
			errs = append(errs, fmt.Errorf("schema: type %q: %w", t.name, f.Err))
		case f.Name == IDColumn:
			errs = append(errs, fmt.Errorf("schema: type %q: field %q is reserved for the primary key", t.name, f.Name))
		case seen[f.Name]:
			errs = append(errs, fmt.Errorf("schema: type %q: duplicate field %q", t.name, f.Name))
		case !f.Info.Type.Valid():
			errs = append(errs, fmt.Errorf("schema: type %q: field %q has invalid type", t.name, f.Name))
		}
		seen[f.Name] = true
	}
	for _, e := range t.edges {
		if e.Err != nil {
			errs = append(errs, fmt.Errorf("schema: type %q: %w", t.name, e.Err))
			continue
		}
		target, ok := g.index[e.Type]
		if !ok {
			errs = append(errs, fmt.Errorf("schema: type %q: edge %q points to unknown type %q", t.name, e.Name, e.Type))
			continue
		}
		holder := target
		if e.Inverse {
			holder = t
		}
		if _, ok := holder.Field(e.Field); !ok {
			errs = append(errs, fmt.Errorf("schema: type %q: edge %q: foreign key field %q is not declared on %q", t.name, e.Name, e.Field, holder.name))
		}
	}
	switch p := t.public.(type) {
	case nil:
	case *FieldPublic:
		f, ok := t.Field(p.Field)
		switch {
		case !ok:
			errs = append(errs, fmt.Errorf("schema: type %q: visibility field %q is not declared", t.name, p.Field))
		case f.Info.Type != field.TypeBool:
			errs = append(errs, fmt.Errorf("schema: type %q: visibility field %q must be bool, got %s", t.name, p.Field, f.Info.Type))
		}
	case *ExprPublic:
		if p.Predicate == nil || p.Eval == nil {
			errs = append(errs, fmt.Errorf("schema: type %q: visibility expression needs both predicate and evaluation", t.name))
		}
	}
	return errs
}

// Type returns the named type.
func (g *Graph) Type(name string) (*Type, bool) {
	t, ok := g.index[name]
	return t, ok
}

// Types returns the registered types in declaration order.
func (g *Graph) Types() []*Type { return g.types }

// Contains reports whether t is registered in the graph.
func (g *Graph) Contains(t *Type) bool {
	return t != nil && g.index[t.name] == t
}
