package visibility_test

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/veil"
	"github.com/syssam/veil/config"
	"github.com/syssam/veil/internal/fixture"
	"github.com/syssam/veil/session"
	"github.com/syssam/veil/visibility"
)

func TestOpen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cfg, err := config.Parse([]byte(`
dialect: sqlite
dsn: "file:` + filepath.ToSlash(filepath.Join(t.TempDir(), "open.db")) + `?_pragma=foreign_keys(1)"
identity_lookup: trust-cache
debug: true
slow_query_threshold: 1s
`))
	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.SlowQueryThreshold)

	sess, err := visibility.Open(cfg, fixture.Graph, visibility.WithLogger(slog.New(slog.DiscardHandler)))
	require.NoError(t, err)
	t.Cleanup(func() { sess.Close() })

	require.NoError(t, fixture.Migrate(ctx, sess.Driver()))
	require.NoError(t, fixture.Seed(ctx, session.New(sess.Driver(), fixture.Graph)))

	n, err := sess.Query(User).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	// Trust-cache lookups re-check the instance loaded on a cache miss.
	_, err = sess.Get(ctx, User, 3)
	assert.True(t, veil.IsNotFound(err))
	_, ok := sess.Cached(User, 3)
	assert.True(t, ok)
}

func TestOpenInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.Config
	}{
		{name: "dialect", cfg: &config.Config{Dialect: "oracle", DSN: "x"}},
		{name: "dsn", cfg: &config.Config{Dialect: "sqlite"}},
		{name: "lookup", cfg: &config.Config{Dialect: "sqlite", DSN: "x", IdentityLookup: "sometimes"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := visibility.Open(tt.cfg, fixture.Graph)
			assert.Error(t, err)
		})
	}
}
