package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/syssam/veil"
)

func TestNamedClones(t *testing.T) {
	t.Parallel()
	q := (&Query{}).withOp(veil.OpSubquery)
	sub := q.named("counts")
	assert.NotSame(t, q, sub)
	assert.Empty(t, q.name)
	assert.Equal(t, "counts", sub.name)
	assert.Equal(t, veil.OpSubquery, sub.Op())
}
