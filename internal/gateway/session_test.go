// ABOUTME: Tests for the session registry
// ABOUTME: Covers registration, delivery to closed sessions, and bulk close

package gateway

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRegistry_CreateAndGet(t *testing.T) {
	reg := NewSessionRegistry()

	sess := reg.Create("client-a", Scope{ProjectID: "p1", Filtered: true})
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, 1, reg.Len())

	got, ok := reg.Get(sess.ID)
	require.True(t, ok)
	assert.Equal(t, "client-a", got.ClientID)
	assert.Equal(t, "p1", got.Scope.ProjectID)
}

func TestSessionRegistry_Get_Unknown(t *testing.T) {
	reg := NewSessionRegistry()
	_, ok := reg.Get("nope")
	assert.False(t, ok)
}

func TestSession_DeliverAfterCloseFails(t *testing.T) {
	reg := NewSessionRegistry()
	sess := reg.Create("client-a", Scope{})

	assert.True(t, sess.Deliver(json.RawMessage(`{}`)))

	reg.Remove(sess.ID)
	assert.False(t, sess.Deliver(json.RawMessage(`{}`)))
	assert.Equal(t, 0, reg.Len())
}

func TestSession_DeliverDropsWhenBufferFull(t *testing.T) {
	reg := NewSessionRegistry()
	sess := reg.Create("client-a", Scope{})

	for i := 0; i < sendBuffer; i++ {
		require.True(t, sess.Deliver(json.RawMessage(`{}`)))
	}
	assert.False(t, sess.Deliver(json.RawMessage(`{}`)))
}

func TestSessionRegistry_CloseAll(t *testing.T) {
	reg := NewSessionRegistry()
	a := reg.Create("client-a", Scope{})
	b := reg.Create("client-b", Scope{})

	reg.CloseAll()
	assert.Equal(t, 0, reg.Len())
	assert.False(t, a.Deliver(json.RawMessage(`{}`)))
	assert.False(t, b.Deliver(json.RawMessage(`{}`)))
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	reg := NewSessionRegistry()
	sess := reg.Create("client-a", Scope{})

	sess.Close()
	sess.Close()
	reg.Remove(sess.ID)
}
