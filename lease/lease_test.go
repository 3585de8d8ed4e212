package lease

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPinPreventsEviction(t *testing.T) {
	p := NewPage(4096)
	p.Pin()

	assert.False(t, p.Evictable())
	assert.False(t, p.Evict())

	p.Unpin()
	assert.True(t, p.Evictable())
	assert.True(t, p.Evict())
	assert.True(t, p.Evicted())
}

func TestSetGetRoundTrip(t *testing.T) {
	p := NewPage(8)
	p.Set([]byte("abcdefgh"))
	assert.Equal(t, []byte("abcdefgh"), p.Get())
}

func TestRefaultAfterEvict(t *testing.T) {
	p := NewPage(4)
	p.Set([]byte("wxyz"))
	require.True(t, p.Evict())

	p.Refault([]byte("wxyz"))
	assert.False(t, p.Evicted())
	assert.Equal(t, []byte("wxyz"), p.Get())
}

func TestOnEvictCallback(t *testing.T) {
	p := NewPage(1)
	called := false
	p.OnEvict(func() { called = true })

	require.True(t, p.Evict())
	assert.True(t, called)
}

func TestLeaserBudget(t *testing.T) {
	l := NewLeaser(10)
	l.NewPage(6)
	assert.False(t, l.OverBudget())
	l.NewPage(6)
	assert.True(t, l.OverBudget())

	l.Release(6)
	assert.False(t, l.OverBudget())
}
