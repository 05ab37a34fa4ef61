package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/veil/dialect/sql"
	"github.com/syssam/veil/schema"
	"github.com/syssam/veil/schema/edge"
	"github.com/syssam/veil/schema/field"
)

func userAddress() (*schema.Type, *schema.Type) {
	user := schema.New("User",
		schema.Fields(field.String("name"), field.Bool("public")),
		schema.Edges(edge.To("addresses", "Address").Field("user_id")),
		schema.Visibility(schema.PublicField("public")),
	)
	address := schema.New("Address",
		schema.Fields(field.String("email"), field.Int("user_id").Optional(), field.Bool("public")),
		schema.Edges(edge.From("user", "User").Field("user_id")),
		schema.Visibility(schema.PublicField("public")),
	)
	return user, address
}

func TestNew(t *testing.T) {
	t.Parallel()

	user, address := userAddress()
	assert.Equal(t, "User", user.Name())
	assert.Equal(t, "users", user.Table())
	assert.Equal(t, "addresses", address.Table())
	assert.Equal(t, []string{"id", "name", "public"}, user.Columns())
	assert.Equal(t, "User", user.String())

	f, ok := address.Field("user_id")
	require.True(t, ok)
	assert.True(t, f.Optional)
	_, ok = address.Field("missing")
	assert.False(t, ok)
	assert.True(t, address.HasField("id"))
	assert.False(t, address.HasField("missing"))

	col, ok := user.Column("id")
	assert.True(t, ok)
	assert.Equal(t, "id", col)
	_, ok = user.Column("missing")
	assert.False(t, ok)

	e, ok := user.Edge("addresses")
	require.True(t, ok)
	assert.Equal(t, "Address", e.Type)
	_, ok = user.Edge("missing")
	assert.False(t, ok)
	assert.Len(t, user.Edges(), 1)
}

func TestTableNames(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name, table string
	}{
		{"User", "users"},
		{"Address", "addresses"},
		{"Category", "categories"},
		{"BlogPost", "blog_posts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.table, schema.New(tt.name).Table())
		})
	}
	assert.Equal(t, "people", schema.New("Person", schema.Table("people")).Table())
}

func TestNewGraph(t *testing.T) {
	t.Parallel()

	user, address := userAddress()
	g, err := schema.NewGraph(user, address)
	require.NoError(t, err)
	got, ok := g.Type("Address")
	require.True(t, ok)
	assert.Same(t, address, got)
	assert.Equal(t, []*schema.Type{user, address}, g.Types())
	assert.True(t, g.Contains(user))
	assert.False(t, g.Contains(schema.New("User")))
	assert.NotPanics(t, func() { schema.MustGraph(userAddress()) })
}

func TestNewGraphErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		types func() []*schema.Type
		want  string
	}{
		{
			name: "duplicate_type",
			types: func() []*schema.Type {
				return []*schema.Type{schema.New("User"), schema.New("User")}
			},
			want: `duplicate type "User"`,
		},
		{
			name: "unknown_target",
			types: func() []*schema.Type {
				return []*schema.Type{schema.New("User", schema.Edges(edge.To("pets", "Pet").Field("owner_id")))}
			},
			want: `unknown type "Pet"`,
		},
		{
			name: "missing_foreign_key",
			types: func() []*schema.Type {
				user, _ := userAddress()
				return []*schema.Type{user, schema.New("Address")}
			},
			want: `foreign key field "user_id" is not declared on "Address"`,
		},
		{
			name: "visibility_not_bool",
			types: func() []*schema.Type {
				return []*schema.Type{schema.New("User",
					schema.Fields(field.String("public")),
					schema.Visibility(schema.PublicField("public")),
				)}
			},
			want: `visibility field "public" must be bool`,
		},
		{
			name: "visibility_missing",
			types: func() []*schema.Type {
				return []*schema.Type{schema.New("User", schema.Visibility(schema.PublicField("public")))}
			},
			want: `visibility field "public" is not declared`,
		},
		{
			name: "expression_without_eval",
			types: func() []*schema.Type {
				return []*schema.Type{schema.New("User", schema.Visibility(schema.PublicExpr(
					func(ref string) *sql.Predicate { return sql.NotNull(ref + ".name") }, nil,
				)))}
			},
			want: "needs both predicate and evaluation",
		},
		{
			name: "reserved_id",
			types: func() []*schema.Type {
				return []*schema.Type{schema.New("User", schema.Fields(field.Int("id")))}
			},
			want: "reserved for the primary key",
		},
		{
			name: "duplicate_field",
			types: func() []*schema.Type {
				return []*schema.Type{schema.New("User", schema.Fields(field.String("name"), field.String("name")))}
			},
			want: `duplicate field "name"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := schema.NewGraph(tt.types()...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
	assert.Panics(t, func() { schema.MustGraph(schema.New("")) })
}
