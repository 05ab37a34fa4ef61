package veil_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/syssam/veil"
)

func TestNotFoundError(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		err := veil.NewNotFoundError("User")
		assert.Equal(t, "veil: User not found", err.Error())
	})

	t.Run("ErrorWithID", func(t *testing.T) {
		err := veil.NewNotFoundErrorWithID("User", 3)
		assert.Equal(t, "veil: User not found (id=3)", err.Error())
		assert.Equal(t, 3, err.ID())
		assert.Equal(t, "User", err.Label())
	})

	t.Run("IsNotFound", func(t *testing.T) {
		err := veil.NewNotFoundError("Address")
		assert.True(t, errors.Is(err, veil.ErrNotFound))
		assert.True(t, veil.IsNotFound(fmt.Errorf("wrapper: %w", err)))
		assert.True(t, veil.IsNotFound(veil.ErrNotFound))
		assert.False(t, veil.IsNotFound(errors.New("other error")))
		assert.False(t, veil.IsNotFound(nil))
	})
}

func TestNotSingularError(t *testing.T) {
	err := veil.NewNotSingularErrorWithCount("User", 2)
	assert.Equal(t, "veil: User not singular (got 2 results, expected 1)", err.Error())
	assert.Equal(t, 2, err.Count())
	assert.True(t, errors.Is(err, veil.ErrNotSingular))
	assert.True(t, veil.IsNotSingular(fmt.Errorf("wrapper: %w", err)))
	assert.False(t, veil.IsNotSingular(nil))
}

func TestInvalidRequestError(t *testing.T) {
	err := &veil.InvalidRequestError{Method: "Where", Reason: "called after Limit"}
	assert.Equal(t, "veil: Query.Where() called after Limit", err.Error())
	assert.True(t, errors.Is(err, veil.ErrInvalidRequest))
	assert.True(t, veil.IsInvalidRequest(fmt.Errorf("wrapper: %w", err)))
	assert.False(t, veil.IsInvalidRequest(errors.New("other")))
}

func TestConstraintError(t *testing.T) {
	inner := errors.New("UNIQUE constraint failed: users.name")
	err := veil.NewConstraintError("insert User", inner)
	assert.Equal(t, "veil: constraint failed: insert User", err.Error())
	assert.True(t, veil.IsConstraintError(err))
	assert.ErrorIs(t, err, inner)
	assert.False(t, veil.IsConstraintError(inner))
}

func TestQueryError(t *testing.T) {
	inner := errors.New("no such table")
	err := veil.NewQueryError("User", "count", inner)
	assert.Equal(t, "veil: querying User (count): no such table", err.Error())
	assert.ErrorIs(t, err, inner)
	assert.True(t, veil.IsQueryError(err))

	err = veil.NewQueryError("User", "", inner)
	assert.Equal(t, "veil: querying User: no such table", err.Error())
}

func TestPrivacyError(t *testing.T) {
	deny := errors.New("deny rule")
	err := veil.NewPrivacyError("Address", "OpIter", deny)
	assert.Equal(t, "veil: privacy denied OpIter on Address: deny rule", err.Error())
	assert.ErrorIs(t, err, deny)
	assert.True(t, veil.IsPrivacyError(fmt.Errorf("wrapper: %w", err)))
	assert.Equal(t, "veil: privacy denied OpIter on Address", veil.NewPrivacyError("Address", "OpIter", nil).Error())
}
