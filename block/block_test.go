package block

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFakeAddresses(t *testing.T) {
	a := NewFake()
	b := NewFake()

	assert.True(t, a.IsFake())
	assert.True(t, b.IsFake())
	assert.NotEqual(t, a, b)
	assert.True(t, UberTreeAddr.IsFake())
}

func TestHole(t *testing.T) {
	assert.True(t, Hole.IsHole())
	assert.False(t, Addr(1).IsHole())
}
