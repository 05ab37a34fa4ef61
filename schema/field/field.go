package field

import "fmt"

// A Type represents a field type.
type Type uint8

// List of field types.
const (
	TypeInvalid Type = iota
	TypeBool
	TypeInt
	TypeInt64
	TypeFloat64
	TypeString
	TypeTime
	TypeBytes
	endTypes
)

var typeNames = [...]string{
	TypeInvalid: "invalid",
	TypeBool:    "bool",
	TypeInt:     "int",
	TypeInt64:   "int64",
	TypeFloat64: "float64",
	TypeString:  "string",
	TypeTime:    "time.Time",
	TypeBytes:   "[]byte",
}

// String returns the string representation of a type.
func (t Type) String() string {
	if t < endTypes {
		return typeNames[t]
	}
	return typeNames[TypeInvalid]
}

// Valid reports if the given type is a known type.
func (t Type) Valid() bool {
	return t > TypeInvalid && t < endTypes
}

// Numeric reports if the given type is a numeric type.
func (t Type) Numeric() bool {
	return t == TypeInt || t == TypeInt64 || t == TypeFloat64
}

// TypeInfo holds the information regarding field type.
type TypeInfo struct {
	Type Type
}

// String returns the Go type name.
func (ti *TypeInfo) String() string {
	if ti == nil {
		return typeNames[TypeInvalid]
	}
	return ti.Type.String()
}

// A Descriptor for field configuration.
type Descriptor struct {
	Name       string    // field name.
	Info       *TypeInfo // field type info.
	StorageKey string    // sql column name.
	Optional   bool      // nullable field in database.
	Default    any       // default value on create.
	Comment    string    // field comment.
	Err        error
}

// Column returns the database column of the field.
func (d *Descriptor) Column() string {
	if d.StorageKey != "" {
		return d.StorageKey
	}
	return d.Name
}

// Field is implemented by the field builders.
type Field interface {
	Descriptor() *Descriptor
}

// Builder is the builder shared by all field types.
type Builder struct {
	desc *Descriptor
}

func newBuilder(name string, t Type) *Builder {
	b := &Builder{desc: &Descriptor{Name: name, Info: &TypeInfo{Type: t}}}
	if name == "" {
		b.desc.Err = fmt.Errorf("field: missing name for %s field", t)
	}
	return b
}

// Bool returns a new Field with type bool.
func Bool(name string) *Builder { return newBuilder(name, TypeBool) }

// Int returns a new Field with type int.
func Int(name string) *Builder { return newBuilder(name, TypeInt) }

// Int64 returns a new Field with type int64.
func Int64(name string) *Builder { return newBuilder(name, TypeInt64) }

// Float returns a new Field with type float64.
func Float(name string) *Builder { return newBuilder(name, TypeFloat64) }

// String returns a new Field with type string.
func String(name string) *Builder { return newBuilder(name, TypeString) }

// Time returns a new Field with type time.Time.
func Time(name string) *Builder { return newBuilder(name, TypeTime) }

// Bytes returns a new Field with type []byte.
func Bytes(name string) *Builder { return newBuilder(name, TypeBytes) }

// Optional indicates that this field is nullable in the database.
func (b *Builder) Optional() *Builder {
	b.desc.Optional = true
	return b
}

// StorageKey sets the storage key of the field.
// In SQL dialects is the column name.
func (b *Builder) StorageKey(key string) *Builder {
	b.desc.StorageKey = key
	return b
}

// Default sets the default value of the field, used when a created
// entity does not set it.
func (b *Builder) Default(v any) *Builder {
	b.desc.Default = v
	return b
}

// Comment sets the comment of the field.
func (b *Builder) Comment(c string) *Builder {
	b.desc.Comment = c
	return b
}

// Descriptor implements the Field interface by returning its descriptor.
func (b *Builder) Descriptor() *Descriptor {
	return b.desc
}
