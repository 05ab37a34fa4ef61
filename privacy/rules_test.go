package privacy_test

import (
	"context"
	"testing"

	"github.com/syssam/veil/dialect/sql"
	"github.com/syssam/veil/privacy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleViewer(t *testing.T) {
	viewer := &privacy.SimpleViewer{
		UserID:   "user-123",
		Roles:    []string{"admin", "user"},
		TenantID: "tenant-abc",
	}

	assert.Equal(t, "user-123", viewer.GetID())
	assert.Equal(t, []string{"admin", "user"}, viewer.GetRoles())
	assert.Equal(t, "tenant-abc", viewer.GetTenantID())
}

func TestViewerContext(t *testing.T) {
	t.Run("WithViewer_and_ViewerFromContext", func(t *testing.T) {
		ctx := privacy.WithViewer(context.Background(), &privacy.SimpleViewer{UserID: "user-123"})
		retrieved := privacy.ViewerFromContext(ctx)
		require.NotNil(t, retrieved)
		assert.Equal(t, "user-123", retrieved.GetID())
	})

	t.Run("ViewerFromContext_returns_nil_without_viewer", func(t *testing.T) {
		assert.Nil(t, privacy.ViewerFromContext(context.Background()))
	})

	t.Run("ViewerFromContext_returns_nil_with_wrong_type", func(t *testing.T) {
		type wrongKey struct{}
		ctx := context.WithValue(context.Background(), wrongKey{}, "not a viewer")
		assert.Nil(t, privacy.ViewerFromContext(ctx))
	})
}

func TestDenyIfNoViewer(t *testing.T) {
	rule := privacy.DenyIfNoViewer()

	t.Run("denies_without_viewer", func(t *testing.T) {
		assert.ErrorIs(t, rule.EvalQuery(context.Background(), &mockQuery{}), privacy.Deny)
	})

	t.Run("skips_with_viewer", func(t *testing.T) {
		ctx := privacy.WithViewer(context.Background(), &privacy.SimpleViewer{UserID: "user-123"})
		assert.ErrorIs(t, rule.EvalQuery(ctx, &mockQuery{}), privacy.Skip)
	})
}

func TestHasRole(t *testing.T) {
	tests := []struct {
		name       string
		role       string
		viewer     *privacy.SimpleViewer
		wantResult error
	}{
		{
			name:       "allows_with_matching_role",
			role:       "admin",
			viewer:     &privacy.SimpleViewer{UserID: "u1", Roles: []string{"admin", "user"}},
			wantResult: privacy.Allow,
		},
		{
			name:       "skips_without_matching_role",
			role:       "superadmin",
			viewer:     &privacy.SimpleViewer{UserID: "u1", Roles: []string{"admin", "user"}},
			wantResult: privacy.Skip,
		},
		{
			name:       "skips_without_viewer",
			role:       "admin",
			wantResult: privacy.Skip,
		},
		{
			name:       "skips_with_empty_roles",
			role:       "admin",
			viewer:     &privacy.SimpleViewer{UserID: "u1", Roles: []string{}},
			wantResult: privacy.Skip,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			if tt.viewer != nil {
				ctx = privacy.WithViewer(ctx, tt.viewer)
			}
			assert.ErrorIs(t, privacy.HasRole(tt.role).EvalQuery(ctx, &mockQuery{}), tt.wantResult)
		})
	}
}

func TestHasAnyRole(t *testing.T) {
	rule := privacy.HasAnyRole("admin", "moderator")

	ctx := privacy.WithViewer(context.Background(), &privacy.SimpleViewer{Roles: []string{"moderator"}})
	assert.ErrorIs(t, rule.EvalQuery(ctx, &mockQuery{}), privacy.Allow)

	ctx = privacy.WithViewer(context.Background(), &privacy.SimpleViewer{Roles: []string{"user"}})
	assert.ErrorIs(t, rule.EvalQuery(ctx, &mockQuery{}), privacy.Skip)
}

func TestTenantQueryRule(t *testing.T) {
	rule := privacy.TenantQueryRule()

	t.Run("denies_without_viewer", func(t *testing.T) {
		assert.ErrorIs(t, rule.EvalQuery(context.Background(), &mockQuery{}), privacy.Deny)
	})

	t.Run("denies_without_tenant", func(t *testing.T) {
		ctx := privacy.WithViewer(context.Background(), &privacy.SimpleViewer{UserID: "u1"})
		err := rule.EvalQuery(ctx, &mockQuery{})
		assert.ErrorIs(t, err, privacy.Deny)
		assert.Contains(t, err.Error(), "tenant required")
	})

	t.Run("skips_with_tenant", func(t *testing.T) {
		ctx := privacy.WithViewer(context.Background(), &privacy.SimpleViewer{UserID: "u1", TenantID: "t1"})
		assert.ErrorIs(t, rule.EvalQuery(ctx, &mockQuery{}), privacy.Skip)
	})
}

func TestViewerFilterRule(t *testing.T) {
	rule := privacy.ViewerFilterRule(func(v privacy.Viewer) *sql.Predicate {
		return sql.EQ("documents.owner", v.GetID())
	})

	t.Run("denies_without_viewer", func(t *testing.T) {
		q := &mockQuery{}
		assert.ErrorIs(t, rule.EvalQuery(context.Background(), q), privacy.Deny)
		assert.Empty(t, q.preds)
	})

	t.Run("filters_with_viewer", func(t *testing.T) {
		q := &mockQuery{}
		ctx := privacy.WithViewer(context.Background(), &privacy.SimpleViewer{UserID: "u7"})
		require.ErrorIs(t, rule.EvalQuery(ctx, q), privacy.Skip)
		require.Len(t, q.preds, 1)
		_, args := q.preds[0].Query()
		assert.Equal(t, []any{"u7"}, args)
	})
}

func TestIntegratedPolicyChain(t *testing.T) {
	policy := privacy.QueryPolicy{
		privacy.DenyIfNoViewer(),
		privacy.HasRole("admin"),
	}

	assert.ErrorIs(t, policy.EvalQuery(context.Background(), &mockQuery{}), privacy.Deny)

	admin := privacy.WithViewer(context.Background(), &privacy.SimpleViewer{Roles: []string{"admin"}})
	assert.ErrorIs(t, policy.EvalQuery(admin, &mockQuery{}), privacy.Allow)

	user := privacy.WithViewer(context.Background(), &privacy.SimpleViewer{Roles: []string{"user"}})
	assert.NoError(t, policy.EvalQuery(user, &mockQuery{}))
}
