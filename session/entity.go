package session

import (
	"fmt"
	"maps"
	"reflect"
	"strconv"

	"github.com/syssam/veil/schema"
)

// Entity is a loaded or created instance of a mapped type. A session
// holds at most one Entity per primary key.
//
// Values read through Value reflect pending changes; Committed exposes
// the values as last written to or read from the database.
type Entity struct {
	sess      *Session
	typ       *schema.Type
	id        int64
	committed map[string]any
	pending   map[string]any
	gen       uint64
	edges     map[string]*rawEdge
	memo      map[string]any
	isNew     bool
}

// rawEdge is the unfiltered target list of an edge, loaded once.
type rawEdge struct {
	targets []*Entity
	seq     uint64
}

func newEntity(s *Session, t *schema.Type, id int64) *Entity {
	return &Entity{
		sess:      s,
		typ:       t,
		id:        id,
		committed: make(map[string]any),
		pending:   make(map[string]any),
	}
}

// Type returns the mapped type of the entity.
func (e *Entity) Type() *schema.Type { return e.typ }

// ID returns the primary key. It is zero until a created entity is
// committed.
func (e *Entity) ID() int64 { return e.id }

// Value returns the current value of the field, including pending
// changes.
func (e *Entity) Value(field string) (any, bool) {
	if field == schema.IDColumn {
		return e.id, !e.isNew
	}
	if v, ok := e.pending[field]; ok {
		return v, true
	}
	v, ok := e.committed[field]
	return v, ok
}

// String returns the field as a string.
func (e *Entity) String(field string) string {
	v, _ := e.Value(field)
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

// Bool returns the field as a bool.
func (e *Entity) Bool(field string) bool {
	v, _ := e.Value(field)
	return ToBool(v)
}

// Int returns the field as an int64.
func (e *Entity) Int(field string) int64 {
	v, _ := e.Value(field)
	n, _ := ToInt64(v)
	return n
}

// Set records a pending change of the field. The change is written and
// becomes committed on the next Session.Commit.
func (e *Entity) Set(field string, v any) error {
	if _, ok := e.typ.Field(field); !ok {
		return fmt.Errorf("session: type %q has no settable field %q", e.typ.Name(), field)
	}
	if !e.isNew && len(e.pending) == 0 {
		e.sess.markDirty(e)
	}
	e.pending[field] = v
	return nil
}

// Dirty reports whether the entity has pending changes.
func (e *Entity) Dirty() bool { return e.isNew || len(e.pending) > 0 }

// Committed returns the committed values as a schema.Record.
func (e *Entity) Committed() schema.Record {
	return committedRecord{e}
}

// Generation returns a counter that changes whenever the committed
// values of the entity change.
func (e *Entity) Generation() uint64 { return e.gen }

// Memo returns a value cached on the entity by a collaborator.
func (e *Entity) Memo(key string) (any, bool) {
	v, ok := e.memo[key]
	return v, ok
}

// SetMemo caches a value on the entity.
func (e *Entity) SetMemo(key string, v any) {
	if e.memo == nil {
		e.memo = make(map[string]any)
	}
	e.memo[key] = v
}

// refresh replaces the committed values with the fetched ones. Entities
// with pending changes are left untouched.
func (e *Entity) refresh(values map[string]any) {
	if e.Dirty() {
		return
	}
	if !maps.EqualFunc(e.committed, values, func(a, b any) bool { return reflect.DeepEqual(a, b) }) {
		e.committed = values
		e.edges = nil
		e.gen++
	}
}

// commit moves pending values into the committed set.
func (e *Entity) commit() {
	maps.Copy(e.committed, e.pending)
	clear(e.pending)
	e.isNew = false
	e.gen++
}

type committedRecord struct{ e *Entity }

func (r committedRecord) Value(field string) (any, bool) {
	if field == schema.IDColumn {
		return r.e.id, !r.e.isNew
	}
	v, ok := r.e.committed[field]
	return v, ok
}

// ToBool converts a database value to a bool. Integers are true when
// non-zero; text is parsed with strconv.ParseBool or as an integer.
func ToBool(v any) bool {
	switch v := v.(type) {
	case bool:
		return v
	case int64:
		return v != 0
	case int:
		return v != 0
	case []byte:
		return parseBool(string(v))
	case string:
		return parseBool(v)
	}
	return false
}

func parseBool(s string) bool {
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	n, err := strconv.ParseInt(s, 10, 64)
	return err == nil && n != 0
}

// ToInt64 converts a database value to an int64.
func ToInt64(v any) (int64, error) {
	switch v := v.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case uint64:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case []byte:
		return strconv.ParseInt(string(v), 10, 64)
	case string:
		return strconv.ParseInt(v, 10, 64)
	case nil:
		return 0, nil
	}
	return 0, fmt.Errorf("session: cannot convert %T to int64", v)
}
