package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/callhub/internal/core"
	"github.com/dkeye/callhub/internal/domain"
)

func TestRegistryRegisterAndUnregister(t *testing.T) {
	r := NewRegistry()

	_, superseded := r.Register("u1", "c1")
	assert.False(t, superseded)

	assert.Equal(t, 1, r.Len())

	u, ok := r.UserOf("c1")
	require.True(t, ok)
	assert.Equal(t, domain.UserID("u1"), u)

	u, ok = r.Unregister("c1")
	require.True(t, ok)
	assert.Equal(t, domain.UserID("u1"), u)
	assert.Equal(t, 0, r.Len())

	_, ok = r.Unregister("c1")
	assert.False(t, ok, "second unregister is a no-op")
}

func TestRegistryLastWriteWins(t *testing.T) {
	r := NewRegistry()
	r.Register("u1", "c1")

	prev, superseded := r.Register("u1", "c2")
	assert.True(t, superseded)
	assert.Equal(t, core.ConnID("c1"), prev)

	u, _ := r.UserOf("c2")
	assert.Equal(t, domain.UserID("u1"), u)

	// The superseded connection no longer owns the identity.
	_, ok := r.UserOf("c1")
	assert.False(t, ok)
	_, ok = r.Unregister("c1")
	assert.False(t, ok)
	assert.Equal(t, 1, r.Len())

	u, ok = r.Unregister("c2")
	require.True(t, ok)
	assert.Equal(t, domain.UserID("u1"), u)
	assert.Equal(t, 0, r.Len())
}

func TestRegistryReRegisterSameConnAsOtherUser(t *testing.T) {
	r := NewRegistry()
	r.Register("u1", "c1")
	r.Register("u2", "c1")

	u, _ := r.UserOf("c1")
	assert.Equal(t, domain.UserID("u2"), u)
	assert.Equal(t, 1, r.Len())
}
