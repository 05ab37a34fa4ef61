package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/syssam/veil"
	"github.com/syssam/veil/dialect"
	"github.com/syssam/veil/schema"
)

// Session is a unit of work over a driver. It keeps one Entity per
// primary key (the identity cache), collects pending changes until
// Commit, and runs every terminal query operation through its
// interceptors.
//
// A Session is not safe for concurrent use.
type Session struct {
	id       uuid.UUID
	drv      dialect.Driver
	graph    *schema.Graph
	log      *slog.Logger
	inters   []veil.Interceptor
	identity map[key]*Entity
	created  []*Entity
	dirty    []*Entity
	fks      map[string]map[string]bool
	seq      uint64
}

type key struct {
	typ string
	id  int64
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger of the session.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// WithInterceptors registers query interceptors. The first one is the
// outermost.
func WithInterceptors(inters ...veil.Interceptor) Option {
	return func(s *Session) {
		s.inters = append(s.inters, inters...)
	}
}

// New returns a session over the driver for the types of g.
func New(drv dialect.Driver, g *schema.Graph, opts ...Option) *Session {
	s := &Session{
		id:       newID(),
		drv:      drv,
		graph:    g,
		log:      slog.Default(),
		identity: make(map[key]*Entity),
		fks:      foreignKeys(g),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("session", s.id.String())
	return s
}

func newID() uuid.UUID {
	if id, err := uuid.NewV7(); err == nil {
		return id
	}
	return uuid.New()
}

// foreignKeys returns, per type name, the fields that hold a foreign key
// of some edge.
func foreignKeys(g *schema.Graph) map[string]map[string]bool {
	fks := make(map[string]map[string]bool)
	add := func(typ, field string) {
		if fks[typ] == nil {
			fks[typ] = make(map[string]bool)
		}
		fks[typ][field] = true
	}
	for _, t := range g.Types() {
		for _, e := range t.Edges() {
			if e.Inverse {
				add(t.Name(), e.Field)
			} else {
				add(e.Type, e.Field)
			}
		}
	}
	return fks
}

// ID returns the session identifier.
func (s *Session) ID() uuid.UUID { return s.id }

// Graph returns the types the session maps.
func (s *Session) Graph() *schema.Graph { return s.graph }

// Dialect returns the dialect of the driver.
func (s *Session) Dialect() string { return s.drv.Dialect() }

// Driver returns the underlying driver.
func (s *Session) Driver() dialect.Driver { return s.drv }

// Logger returns the logger of the session.
func (s *Session) Logger() *slog.Logger { return s.log }

// Intercept adds interceptors to the session. They run inside the ones
// already registered.
func (s *Session) Intercept(inters ...veil.Interceptor) {
	s.inters = append(s.inters, inters...)
}

// Close closes the underlying driver.
func (s *Session) Close() error { return s.drv.Close() }

// Cached returns the cached entity of the given type and key, if any.
func (s *Session) Cached(t *schema.Type, id int64) (*Entity, bool) {
	e, ok := s.identity[key{t.Name(), id}]
	return e, ok
}

// Get returns the entity of type t with the given primary key. The
// lookup runs through the interceptors as a veil.OpGet query; without
// interceptors a cached entity is returned without a database round trip.
func (s *Session) Get(ctx context.Context, t *schema.Type, id any) (*Entity, error) {
	nid, err := ToInt64(id)
	if err != nil {
		return nil, fmt.Errorf("session: invalid identity %v: %w", id, err)
	}
	q := s.Query(t).Where(C(t, schema.IDColumn).EQ(nid)).withOp(veil.OpGet)
	q.get = &identity{typ: t, id: nid}
	v, err := s.run(ctx, q)
	if err != nil {
		return nil, err
	}
	e, ok := v.(*Entity)
	if !ok {
		return nil, fmt.Errorf("session: unexpected result type %T for Get", v)
	}
	return e, nil
}

// run executes the query through the interceptors.
func (s *Session) run(ctx context.Context, q veil.Query) (veil.Value, error) {
	return veil.Chain(veil.QuerierFunc(s.execute), s.inters...).Query(ctx, q)
}

func (s *Session) nextSeq() uint64 {
	s.seq++
	return s.seq
}

// load returns the cached entity for the key, creating it when absent.
// Clean cached entities are refreshed with the fetched values.
func (s *Session) load(t *schema.Type, id int64, values map[string]any) *Entity {
	k := key{t.Name(), id}
	e, ok := s.identity[k]
	if !ok {
		e = newEntity(s, t, id)
		e.committed = values
		e.gen = 1
		s.identity[k] = e
		return e
	}
	e.refresh(values)
	return e
}

func (s *Session) markDirty(e *Entity) {
	s.dirty = append(s.dirty, e)
}
