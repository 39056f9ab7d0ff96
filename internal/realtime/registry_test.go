package realtime

import (
	"testing"

	"matchme-client/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_ReserveOnce(t *testing.T) {
	r := NewRegistry()
	assert.True(t, r.Reserve("/topic/chat/1", 1, partnerMatch, nil))
	assert.False(t, r.Reserve("/topic/chat/1", 1, partnerMatch, func(models.ActiveMessage) {}))

	e, ok := r.Lookup("/topic/chat/1")
	require.True(t, ok)
	assert.Equal(t, ViewInactive, e.State())
	assert.Nil(t, e.View())
}

func TestRegistry_AttachDetach(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.Attach("/topic/chat/1", func(models.ActiveMessage) {}))

	r.Reserve("/topic/chat/1", 1, partnerMatch, nil)
	require.True(t, r.Attach("/topic/chat/1", func(models.ActiveMessage) {}))
	e, _ := r.Lookup("/topic/chat/1")
	assert.Equal(t, ViewActive, e.State())
	assert.NotNil(t, e.View())
	assert.Equal(t, "active", e.State().String())

	require.True(t, r.Detach("/topic/chat/1"))
	e, _ = r.Lookup("/topic/chat/1")
	assert.Equal(t, ViewInactive, e.State())
}

func TestRegistry_BindAfterRemoveReturnsOrphan(t *testing.T) {
	r := NewRegistry()
	r.Reserve("/topic/presence", 0, models.Match{}, nil)
	_, ok := r.Remove("/topic/presence")
	require.True(t, ok)

	sub := &fakeSub{}
	assert.Same(t, sub, r.Bind("/topic/presence", sub))
}

func TestRegistry_ReplaceAndClear(t *testing.T) {
	r := NewRegistry()
	a, b := &fakeSub{}, &fakeSub{}

	assert.Nil(t, r.Replace("/topic/chat/1/typing", 1, a))
	assert.Same(t, a, r.Replace("/topic/chat/1/typing", 1, b))
	assert.Equal(t, 1, r.Len())

	subs := r.Clear()
	assert.Len(t, subs, 1)
	assert.Zero(t, r.Len())
}
