package session

import (
	"context"
	"fmt"
	"slices"

	"github.com/syssam/veil/dialect"
	"github.com/syssam/veil/dialect/sql"
	"github.com/syssam/veil/dialect/sql/sqlgraph"
	"github.com/syssam/veil/schema"
)

// Create returns a new entity of type t with the given field values. The
// entity is inserted on the next Commit; fields left unset take their
// declared default.
func (s *Session) Create(t *schema.Type, values map[string]any) (*Entity, error) {
	if err := s.checkType(t); err != nil {
		return nil, err
	}
	for name := range values {
		if _, ok := t.Field(name); !ok {
			return nil, fmt.Errorf("session: type %q has no settable field %q", t.Name(), name)
		}
	}
	e := newEntity(s, t, 0)
	e.isNew = true
	for _, f := range t.Fields() {
		switch v, ok := values[f.Name]; {
		case ok:
			e.pending[f.Name] = v
		case f.Default != nil:
			e.pending[f.Name] = f.Default
		case !f.Optional:
			return nil, fmt.Errorf("session: missing required field %q of %q", f.Name, t.Name())
		}
	}
	s.created = append(s.created, e)
	return e, nil
}

// Commit writes the created entities and the pending changes in one
// transaction. On success the changes become committed values and the
// generation of every written entity advances. Relationship caches are
// dropped when the commit inserted rows or changed foreign keys.
func (s *Session) Commit(ctx context.Context) error {
	created, dirty := s.created, slices.DeleteFunc(slices.Clone(s.dirty), func(e *Entity) bool {
		return len(e.pending) == 0
	})
	if len(created) == 0 && len(dirty) == 0 {
		return nil
	}
	tx, err := s.drv.Tx(ctx)
	if err != nil {
		return fmt.Errorf("session: begin commit: %w", err)
	}
	ids := make([]int64, len(created))
	for i, e := range created {
		if ids[i], err = s.insert(ctx, tx, e); err != nil {
			return rollback(tx, sqlgraph.Wrap("insert "+e.typ.Name(), err))
		}
	}
	relink := len(created) > 0
	for _, e := range dirty {
		if err := s.update(ctx, tx, e); err != nil {
			return rollback(tx, sqlgraph.Wrap("update "+e.typ.Name(), err))
		}
		for f := range e.pending {
			relink = relink || s.fks[e.typ.Name()][f]
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("session: commit: %w", err)
	}
	for i, e := range created {
		e.id = ids[i]
		e.commit()
		s.identity[key{e.typ.Name(), e.id}] = e
	}
	for _, e := range dirty {
		e.commit()
	}
	s.created, s.dirty = nil, nil
	if relink {
		s.invalidateEdges()
	}
	s.log.DebugContext(ctx, "commit", "created", len(created), "updated", len(dirty), "relink", relink)
	return nil
}

// Rollback discards the created entities and the pending changes.
func (s *Session) Rollback() {
	for _, e := range s.dirty {
		clear(e.pending)
	}
	s.created, s.dirty = nil, nil
}

func (s *Session) insert(ctx context.Context, tx dialect.Tx, e *Entity) (int64, error) {
	ins := sql.Dialect(s.Dialect()).Insert(e.typ.Table())
	for _, f := range e.typ.Fields() {
		if v, ok := e.pending[f.Name]; ok {
			ins.Set(f.Column(), v)
		}
	}
	if s.Dialect() == dialect.Postgres {
		ins.Returning(schema.IDColumn)
		query, args := ins.Query()
		s.log.DebugContext(ctx, "exec", "sql", query, "args", args)
		rows := &sql.Rows{}
		if err := tx.Query(ctx, query, args, rows); err != nil {
			return 0, err
		}
		id, err := sql.ScanInt(rows)
		return int64(id), err
	}
	query, args := ins.Query()
	s.log.DebugContext(ctx, "exec", "sql", query, "args", args)
	var res sql.Result
	if err := tx.Exec(ctx, query, args, &res); err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Session) update(ctx context.Context, tx dialect.Tx, e *Entity) error {
	upd := sql.Dialect(s.Dialect()).Update(e.typ.Table())
	for _, f := range e.typ.Fields() {
		if v, ok := e.pending[f.Name]; ok {
			upd.Set(f.Column(), v)
		}
	}
	upd.Where(sql.EQ(schema.IDColumn, e.id))
	query, args := upd.Query()
	s.log.DebugContext(ctx, "exec", "sql", query, "args", args)
	return tx.Exec(ctx, query, args, nil)
}

func rollback(tx dialect.Tx, err error) error {
	if rerr := tx.Rollback(); rerr != nil {
		err = fmt.Errorf("%w: rolling back: %v", err, rerr)
	}
	return err
}
