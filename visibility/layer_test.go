package visibility_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/veil"
	"github.com/syssam/veil/dialect"
	"github.com/syssam/veil/dialect/sql"
	"github.com/syssam/veil/internal/fixture"
	"github.com/syssam/veil/privacy"
	"github.com/syssam/veil/schema"
	"github.com/syssam/veil/schema/field"
	"github.com/syssam/veil/schema/mixin"
	"github.com/syssam/veil/session"
	"github.com/syssam/veil/visibility"
)

func names(ents []*session.Entity, field string) []string {
	out := make([]string, len(ents))
	for i, e := range ents {
		out[i] = e.String(field)
	}
	return out
}

func TestLayerIteration(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sess := visibility.NewSession(fixture.Open(t), fixture.Graph)

	t.Run("users", func(t *testing.T) {
		users, err := sess.Query(User).OrderBy(session.C(User, "id")).Entities(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"u1", "u2", "u5", "u6"}, names(users, "name"))
	})

	t.Run("addresses_alone", func(t *testing.T) {
		addrs, err := sess.Query(Address).OrderBy(session.C(Address, "id")).Entities(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"u1a1", "u1a2", "u2a2", "u4a2", "u5a1"}, names(addrs, "email"))
	})

	t.Run("join_requires_both", func(t *testing.T) {
		rows, err := sess.Query(User, Address).
			JoinEdge(User, "addresses").
			OrderBy(session.C(Address, "id")).
			All(ctx)
		require.NoError(t, err)
		var pairs []string
		for _, r := range rows {
			pairs = append(pairs, r.Entity(0).String("name")+"/"+r.Entity(1).String("email"))
		}
		assert.Equal(t, []string{"u1/u1a1", "u1/u1a2", "u2/u2a2", "u5/u5a1"}, pairs)
	})

	t.Run("join_not_selected", func(t *testing.T) {
		addrs, err := sess.Query(Address).
			JoinEdge(Address, "user").
			Where(session.C(Address, "email").EQ("u4a2")).
			Entities(ctx)
		require.NoError(t, err)
		assert.Empty(t, addrs)

		admin := session.New(sess.Driver(), fixture.Graph)
		addrs, err = admin.Query(Address).
			JoinEdge(Address, "user").
			Where(session.C(Address, "email").EQ("u4a2")).
			Entities(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"u4a2"}, names(addrs, "email"))
	})

	t.Run("self_join", func(t *testing.T) {
		a, b := session.Alias(User, "a"), session.Alias(User, "b")
		rows, err := sess.Query(a, b).
			Where(session.C(a, "name").EQ("u1")).
			OrderBy(session.C(b, "id")).
			All(ctx)
		require.NoError(t, err)
		require.Len(t, rows, 4)
		for _, r := range rows {
			assert.Equal(t, "u1", r.Entity(0).String("name"))
			assert.True(t, r.Entity(1).Bool("public"))
		}
	})

	t.Run("limit_applies_after_filter", func(t *testing.T) {
		users, err := sess.Query(User).OrderBy(session.C(User, "id")).Offset(1).Limit(2).Entities(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"u2", "u5"}, names(users, "name"))
	})

	t.Run("iteration_is_one_shot", func(t *testing.T) {
		seq := sess.Query(User).Iter(ctx)
		n := 0
		for _, err := range seq {
			require.NoError(t, err)
			n++
		}
		assert.Equal(t, 4, n)
		for _, err := range seq {
			assert.Error(t, err)
		}
	})
}

func TestLayerCount(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sess := visibility.NewSession(fixture.Open(t), fixture.Graph)

	tests := []struct {
		name  string
		query *session.Query
		want  int
	}{
		{name: "users", query: sess.Query(User), want: 4},
		{name: "addresses", query: sess.Query(Address), want: 5},
		{name: "joined", query: sess.Query(User, Address).JoinEdge(User, "addresses"), want: 4},
		{name: "limited", query: sess.Query(User).Limit(3), want: 3},
		{name: "distinct_owners", query: sess.Query(session.C(Address, "user_id")).Distinct(), want: 4},
		{
			name: "grouped",
			query: sess.Query(session.C(User, "name"), session.Count(session.C(Address, "id"))).
				LeftJoinEdge(User, "addresses").
				GroupBy(session.C(User, "name")),
			want: 4,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := tt.query.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)

			n, err = tt.query.CountRows(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
		})
	}
}

func TestLayerGroupedCounts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sess := visibility.NewSession(fixture.Open(t), fixture.Graph)

	rows, err := sess.Query(session.C(User, "name"), session.Count(session.C(Address, "id"))).
		LeftJoinEdge(User, "addresses").
		GroupBy(session.C(User, "name")).
		OrderBy(session.C(User, "name")).
		All(ctx)
	require.NoError(t, err)
	got := make(map[string]int64)
	for _, r := range rows {
		got[fmt.Sprint(r.Value(0))] = r.Int(1)
	}
	assert.Equal(t, map[string]int64{"u1": 2, "u2": 1, "u5": 1, "u6": 0}, got)
	assert.Equal(t, []string{"name", "count"}, rows[0].Labels())
}

func TestLayerSubquery(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sess := visibility.NewSession(fixture.Open(t), fixture.Graph)

	sub, err := sess.Query(session.C(Address, "user_id"), session.Count(session.C(Address, "id")).As("n")).
		GroupBy(session.C(Address, "user_id")).
		Subquery(ctx, "counts")
	require.NoError(t, err)

	rows, err := sess.Query(User, session.C(sub, "n")).
		Join(sub, session.C(sub, "user_id").EQC(session.C(User, "id"))).
		OrderBy(session.C(User, "id")).
		All(ctx)
	require.NoError(t, err)
	got := make(map[string]int64)
	for _, r := range rows {
		got[r.Entity(0).String("name")] = r.Int(1)
	}
	assert.Equal(t, map[string]int64{"u1": 2, "u2": 1, "u5": 1}, got)

	_, err = sess.Query(User).Subquery(ctx, "")
	assert.Error(t, err)
}

func TestLayerGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("reverify", func(t *testing.T) {
		drv := fixture.Open(t)
		sess := visibility.NewSession(drv, fixture.Graph)

		u1, err := sess.Get(ctx, User, 1)
		require.NoError(t, err)
		assert.Equal(t, "u1", u1.String("name"))

		_, err = sess.Get(ctx, User, 3)
		assert.True(t, veil.IsNotFound(err))
		_, err = sess.Get(ctx, User, 99)
		assert.True(t, veil.IsNotFound(err))

		// A change committed by another session is observed.
		admin := session.New(drv, fixture.Graph)
		other, err := admin.Get(ctx, User, 1)
		require.NoError(t, err)
		require.NoError(t, other.Set("public", false))
		require.NoError(t, admin.Commit(ctx))

		_, err = sess.Get(ctx, User, 1)
		var nf *veil.NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, "User", nf.Label())
		assert.EqualValues(t, 1, nf.ID())
	})

	t.Run("trust_cache", func(t *testing.T) {
		drv := fixture.Open(t)
		sess := visibility.NewSession(drv, fixture.Graph, visibility.WithIdentityLookup(visibility.IdentityTrustCache))

		u1, err := sess.Get(ctx, User, 1)
		require.NoError(t, err)
		_, err = sess.Get(ctx, User, 4)
		assert.True(t, veil.IsNotFound(err))

		// The cached instance is trusted while it is visible.
		admin := session.New(drv, fixture.Graph)
		other, err := admin.Get(ctx, User, 1)
		require.NoError(t, err)
		require.NoError(t, other.Set("public", false))
		require.NoError(t, admin.Commit(ctx))
		cached, err := sess.Get(ctx, User, 1)
		require.NoError(t, err)
		assert.Same(t, u1, cached)

		// Pending changes are not considered until committed.
		require.NoError(t, u1.Set("public", false))
		_, err = sess.Get(ctx, User, 1)
		require.NoError(t, err)
		require.NoError(t, sess.Commit(ctx))
		_, err = sess.Get(ctx, User, 1)
		assert.True(t, veil.IsNotFound(err))
	})
}

func TestLayerEdges(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	drv := sql.NewStatsDriver(fixture.Open(t))
	sess := visibility.NewSession(drv, fixture.Graph)

	u1, err := sess.Get(ctx, User, 1)
	require.NoError(t, err)
	u2, err := sess.Get(ctx, User, 2)
	require.NoError(t, err)

	addrs, err := sess.Edges(ctx, u1, "addresses")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1a1", "u1a2"}, names(addrs, "email"))
	addrs, err = sess.Edges(ctx, u2, "addresses")
	require.NoError(t, err)
	assert.Equal(t, []string{"u2a2"}, names(addrs, "email"))

	t.Run("cached", func(t *testing.T) {
		before := drv.Stats().Queries
		addrs, err := sess.Edges(ctx, u2, "addresses")
		require.NoError(t, err)
		assert.Equal(t, []string{"u2a2"}, names(addrs, "email"))
		assert.Equal(t, before, drv.Stats().Queries)
	})

	t.Run("target_becomes_visible", func(t *testing.T) {
		u2a1, ok := sess.Cached(Address, 3)
		require.True(t, ok)
		require.NoError(t, u2a1.Set("public", true))
		require.NoError(t, sess.Commit(ctx))

		addrs, err := sess.Edges(ctx, u2, "addresses")
		require.NoError(t, err)
		assert.Equal(t, []string{"u2a1", "u2a2"}, names(addrs, "email"))
	})

	t.Run("target_becomes_invisible", func(t *testing.T) {
		u1a2, ok := sess.Cached(Address, 2)
		require.True(t, ok)
		require.NoError(t, u1a2.Set("public", false))
		require.NoError(t, sess.Commit(ctx))

		addrs, err := sess.Edges(ctx, u1, "addresses")
		require.NoError(t, err)
		assert.Equal(t, []string{"u1a1"}, names(addrs, "email"))
	})

	t.Run("to_one", func(t *testing.T) {
		u1a1, ok := sess.Cached(Address, 1)
		require.True(t, ok)
		owner, err := sess.Edge(ctx, u1a1, "user")
		require.NoError(t, err)
		assert.Same(t, u1, owner)

		require.NoError(t, u1.Set("public", false))
		require.NoError(t, sess.Commit(ctx))
		owner, err = sess.Edge(ctx, u1a1, "user")
		require.NoError(t, err)
		assert.Nil(t, owner)

		_, err = sess.Edge(ctx, u1, "addresses")
		assert.Error(t, err)
	})

	t.Run("foreign_key_change", func(t *testing.T) {
		u1a1, ok := sess.Cached(Address, 1)
		require.True(t, ok)
		require.NoError(t, u1a1.Set("user_id", u2.ID()))
		require.NoError(t, sess.Commit(ctx))

		addrs, err := sess.Edges(ctx, u2, "addresses")
		require.NoError(t, err)
		assert.Equal(t, []string{"u1a1", "u2a1", "u2a2"}, names(addrs, "email"))
		addrs, err = sess.Edges(ctx, u1, "addresses")
		require.NoError(t, err)
		assert.Empty(t, addrs)
	})

	t.Run("unknown_edge", func(t *testing.T) {
		_, err := sess.Edges(ctx, u1, "friends")
		assert.Error(t, err)
	})
}

func TestLayerPolicy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	drv := fixture.Open(t)

	t.Run("deny_without_viewer", func(t *testing.T) {
		sess := visibility.NewSession(drv, fixture.Graph, visibility.WithPolicy(privacy.DenyIfNoViewer()))
		_, err := sess.Query(User).Count(ctx)
		require.True(t, veil.IsPrivacyError(err))
		assert.True(t, errors.Is(err, privacy.Deny))

		vctx := privacy.WithViewer(ctx, &privacy.SimpleViewer{UserID: "1"})
		n, err := sess.Query(User).Count(vctx)
		require.NoError(t, err)
		assert.Equal(t, 4, n)
	})

	t.Run("allow_is_trusted", func(t *testing.T) {
		sess := visibility.NewSession(drv, fixture.Graph,
			visibility.WithPolicy(privacy.DenyIfNoViewer(), privacy.HasRole("admin")),
		)
		admin := privacy.WithViewer(ctx, &privacy.SimpleViewer{UserID: "1", Roles: []string{"admin"}})
		n, err := sess.Query(User).Count(admin)
		require.NoError(t, err)
		assert.Equal(t, 6, n)

		u3, err := sess.Get(admin, User, 3)
		require.NoError(t, err)
		addrs, err := sess.Edges(admin, u3, "addresses")
		require.NoError(t, err)
		assert.Len(t, addrs, 2)

		viewer := privacy.WithViewer(ctx, &privacy.SimpleViewer{UserID: "2"})
		n, err = sess.Query(User).Count(viewer)
		require.NoError(t, err)
		assert.Equal(t, 4, n)
		_, err = sess.Get(viewer, User, 3)
		assert.True(t, veil.IsNotFound(err))
	})

	t.Run("context_decision", func(t *testing.T) {
		sess := visibility.NewSession(drv, fixture.Graph)
		n, err := sess.Query(Address).Count(privacy.DecisionContext(ctx, privacy.Allow))
		require.NoError(t, err)
		assert.Equal(t, 12, n)

		_, err = sess.Query(Address).Count(privacy.DecisionContext(ctx, privacy.Denyf("suspended")))
		assert.True(t, veil.IsPrivacyError(err))
	})

	t.Run("filter", func(t *testing.T) {
		rule := privacy.ViewerFilterRule(func(v privacy.Viewer) *sql.Predicate {
			return session.C(User, "name").EQ(v.GetID())
		})
		sess := visibility.NewSession(drv, fixture.Graph, visibility.WithPolicy(rule))

		u2ctx := privacy.WithViewer(ctx, &privacy.SimpleViewer{UserID: "u2"})
		users, err := sess.Query(User).Entities(u2ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"u2"}, names(users, "name"))

		u3ctx := privacy.WithViewer(ctx, &privacy.SimpleViewer{UserID: "u3"})
		n, err := sess.Query(User).Count(u3ctx)
		require.NoError(t, err)
		assert.Zero(t, n)

		u2, err := sess.Get(u2ctx, User, 2)
		require.NoError(t, err)
		_, err = sess.Edges(u2ctx, u2, "addresses")
		assert.True(t, veil.IsPrivacyError(err), "relationship navigation is not filterable")
	})

	t.Run("filter_trust_cache", func(t *testing.T) {
		rule := privacy.ViewerFilterRule(func(v privacy.Viewer) *sql.Predicate {
			return session.C(User, "name").EQ(v.GetID())
		})
		sess := visibility.NewSession(drv, fixture.Graph,
			visibility.WithPolicy(rule),
			visibility.WithIdentityLookup(visibility.IdentityTrustCache),
		)
		u1ctx := privacy.WithViewer(ctx, &privacy.SimpleViewer{UserID: "u1"})
		u2ctx := privacy.WithViewer(ctx, &privacy.SimpleViewer{UserID: "u2"})

		u1, err := sess.Get(u1ctx, User, 1)
		require.NoError(t, err)

		n, err := sess.Query(User).Where(session.C(User, "id").EQ(1)).Count(u2ctx)
		require.NoError(t, err)
		assert.Zero(t, n)

		// The cached instance does not bypass the filter rules.
		_, err = sess.Get(u2ctx, User, 1)
		assert.True(t, veil.IsNotFound(err))
		cached, ok := sess.Cached(User, 1)
		require.True(t, ok)
		assert.Same(t, u1, cached)

		got, err := sess.Get(u1ctx, User, 1)
		require.NoError(t, err)
		assert.Same(t, u1, got)
	})

	t.Run("operation", func(t *testing.T) {
		sess := visibility.NewSession(drv, fixture.Graph,
			visibility.WithPolicy(privacy.DenyOperationRule(veil.OpSubquery)),
		)
		_, err := sess.Query(User).Subquery(ctx, "visible")
		assert.True(t, veil.IsPrivacyError(err))
		n, err := sess.Query(User).Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 4, n)
	})
}

func TestParseIdentityLookup(t *testing.T) {
	tests := []struct {
		in      string
		want    visibility.IdentityLookup
		wantErr bool
	}{
		{in: "", want: visibility.IdentityReverify},
		{in: "reverify", want: visibility.IdentityReverify},
		{in: "trust-cache", want: visibility.IdentityTrustCache},
		{in: "always", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := visibility.ParseIdentityLookup(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			if tt.in != "" {
				assert.Equal(t, tt.in, got.String())
			}
		})
	}
}

func TestLayerPreload(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sess := visibility.NewSession(fixture.Open(t), fixture.Graph)

	users, err := sess.Query(User).OrderBy(session.C(User, "id")).Entities(ctx)
	require.NoError(t, err)
	require.NoError(t, sess.Preload(ctx, "addresses", users...))

	got := make(map[string][]string)
	for _, u := range users {
		addrs, err := sess.Edges(ctx, u, "addresses")
		require.NoError(t, err)
		got[u.String("name")] = names(addrs, "email")
	}
	assert.Equal(t, map[string][]string{
		"u1": {"u1a1", "u1a2"},
		"u2": {"u2a2"},
		"u5": {"u5a1"},
		"u6": {},
	}, got)
}

func TestLayerSoftDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	Note := schema.New("Note",
		schema.Fields(field.String("title")),
		schema.Mixins(mixin.SoftDelete{}),
	)
	g := schema.MustGraph(Note)

	drv, err := sql.Open(dialect.SQLite, "file:"+filepath.Join(t.TempDir(), "notes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { drv.Close() })
	require.NoError(t, drv.Exec(ctx, `CREATE TABLE notes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		deleted_at DATETIME
	)`, []any{}, nil))
	admin := session.New(drv, g)
	for _, title := range []string{"n1", "n2", "n3"} {
		_, err := admin.Create(Note, map[string]any{"title": title})
		require.NoError(t, err)
	}
	require.NoError(t, admin.Commit(ctx))

	t.Run("reverify", func(t *testing.T) {
		sess := visibility.NewSession(drv, g)
		n2, err := sess.Get(ctx, Note, 2)
		require.NoError(t, err)
		require.NoError(t, n2.Set("deleted_at", time.Now()))
		require.NoError(t, sess.Commit(ctx))

		notes, err := sess.Query(Note).OrderBy(session.C(Note, "id")).Entities(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"n1", "n3"}, names(notes, "title"))
		n, err := sess.Query(Note).Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		_, err = sess.Get(ctx, Note, 2)
		assert.True(t, veil.IsNotFound(err))
	})

	t.Run("trust_cache", func(t *testing.T) {
		sess := visibility.NewSession(drv, g, visibility.WithIdentityLookup(visibility.IdentityTrustCache))
		n3, err := sess.Get(ctx, Note, 3)
		require.NoError(t, err)
		require.NoError(t, n3.Set("deleted_at", time.Now()))
		_, err = sess.Get(ctx, Note, 3)
		require.NoError(t, err, "pending deletion is not committed yet")

		require.NoError(t, sess.Commit(ctx))
		cached, ok := sess.Cached(Note, 3)
		require.True(t, ok)
		assert.Same(t, n3, cached)
		_, err = sess.Get(ctx, Note, 3)
		assert.True(t, veil.IsNotFound(err))
	})
}
