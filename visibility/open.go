package visibility

import (
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/syssam/veil/config"
	"github.com/syssam/veil/dialect"
	"github.com/syssam/veil/dialect/sql"
	"github.com/syssam/veil/schema"
	"github.com/syssam/veil/session"
)

// Open opens the configured database and returns a session over g whose
// terminal operations are filtered by a Layer. The identity lookup policy
// and the logger of the layer also apply to the session and its driver;
// options override the configuration.
func Open(cfg *config.Config, g *schema.Graph, opts ...Option) (*session.Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	lookup, err := ParseIdentityLookup(cfg.IdentityLookup)
	if err != nil {
		return nil, err
	}
	layer := NewLayer(g, append([]Option{WithIdentityLookup(lookup)}, opts...)...)
	db, err := sql.Open(cfg.Dialect, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("visibility: open %s: %w", cfg.Dialect, err)
	}
	var drv dialect.Driver = db
	if cfg.SlowQueryThreshold > 0 {
		drv = sql.NewStatsDriver(drv, sql.WithSlowQueries(cfg.SlowQueryThreshold, layer.log))
	}
	if cfg.Debug {
		drv = sql.NewDebugDriver(drv, layer.log)
	}
	return session.New(drv, g,
		session.WithLogger(layer.log),
		session.WithInterceptors(layer),
	), nil
}

// NewSession returns a session over drv filtered by a Layer built with
// the given options.
func NewSession(drv dialect.Driver, g *schema.Graph, opts ...Option) *session.Session {
	layer := NewLayer(g, opts...)
	return session.New(drv, g,
		session.WithLogger(layer.log),
		session.WithInterceptors(layer),
	)
}
