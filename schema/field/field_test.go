package field_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/syssam/veil/schema/field"
)

func TestBuilders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		build *field.Builder
		want  field.Type
	}{
		{field.Bool("public"), field.TypeBool},
		{field.Int("user_id"), field.TypeInt},
		{field.Int64("size"), field.TypeInt64},
		{field.Float("score"), field.TypeFloat64},
		{field.String("name"), field.TypeString},
		{field.Time("created_at"), field.TypeTime},
		{field.Bytes("blob"), field.TypeBytes},
	}
	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			t.Parallel()
			fd := tt.build.Descriptor()
			assert.Equal(t, tt.want, fd.Info.Type)
			assert.True(t, fd.Info.Type.Valid())
			assert.NoError(t, fd.Err)
		})
	}
}

func TestDescriptor(t *testing.T) {
	t.Parallel()

	fd := field.String("email").
		StorageKey("email_address").
		Optional().
		Default("none").
		Comment("contact").
		Descriptor()
	assert.Equal(t, "email", fd.Name)
	assert.Equal(t, "email_address", fd.Column())
	assert.True(t, fd.Optional)
	assert.Equal(t, "none", fd.Default)
	assert.Equal(t, "contact", fd.Comment)
	assert.Equal(t, "string", fd.Info.String())

	assert.Equal(t, "public", field.Bool("public").Descriptor().Column())
	assert.Error(t, field.Int("").Descriptor().Err)
}

func TestType(t *testing.T) {
	t.Parallel()

	assert.True(t, field.TypeInt64.Numeric())
	assert.False(t, field.TypeBool.Numeric())
	assert.False(t, field.TypeInvalid.Valid())
	assert.Equal(t, "invalid", field.Type(200).String())
	var ti *field.TypeInfo
	assert.Equal(t, "invalid", ti.String())
}
