package key

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrdering(t *testing.T) {
	a := New(1, MinorBody, 0, 10, 0)
	b := New(1, MinorBody, 0, 10, 4096)
	c := New(1, MinorBody, 0, 11, 0)

	assert.True(t, Less(a, b))
	assert.True(t, Less(b, c))
	assert.True(t, Less(Min, a))
	assert.True(t, Less(c, Max))
	assert.True(t, Equal(a, a))
}

func TestBytesCompareMatchesCompare(t *testing.T) {
	a := New(1, MinorDirEntry, 2, 3, 4)
	b := New(1, MinorDirEntry, 2, 3, 5)

	assert.Equal(t, Compare(a, b), BytesCompare(a, b))
}

func TestWithOffset(t *testing.T) {
	a := New(1, MinorBody, 0, 10, 0)
	b := a.WithOffset(4096)

	assert.Equal(t, uint64(0), a.Offset)
	assert.Equal(t, uint64(4096), b.Offset)
}
