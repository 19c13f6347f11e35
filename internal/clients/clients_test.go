package clients

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estoca-ai/estoca-worker/internal/logger"
)

type fakeConn struct {
	mu     sync.Mutex
	msgs   []Message
	err    error
	closed bool
}

func (c *fakeConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, v.(Message))
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.msgs...)
}

func newRegistry() *Registry {
	return NewRegistry(nil, logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil))
}

func TestRegistry_Claim(t *testing.T) {
	t.Parallel()
	r := newRegistry()
	a, b := &fakeConn{}, &fakeConn{}
	r.Register(a)
	r.Register(b)

	require.NoError(t, r.Claim(t.Context(), "estoca-ai-v1.2"))

	for _, c := range []*fakeConn{a, b} {
		msgs := c.messages()
		require.Len(t, msgs, 1)
		assert.Equal(t, Message{Type: TypeControllerChanged, Version: "estoca-ai-v1.2"}, msgs[0])
	}
	for _, info := range r.List() {
		assert.Equal(t, "estoca-ai-v1.2", info.ControlledBy)
	}
	assert.Equal(t, "estoca-ai-v1.2", r.Controller())
}

func TestRegistry_NewPageIsControlled(t *testing.T) {
	t.Parallel()
	r := newRegistry()
	require.NoError(t, r.Claim(t.Context(), "v1"))

	r.Register(&fakeConn{})
	require.Len(t, r.List(), 1)
	assert.Equal(t, "v1", r.List()[0].ControlledBy)
}

func TestRegistry_ClaimDropsBrokenPages(t *testing.T) {
	t.Parallel()
	r := newRegistry()
	r.Register(&fakeConn{err: errors.New("closed")})
	r.Register(&fakeConn{})

	require.NoError(t, r.Claim(t.Context(), "v1"))
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_ClaimHonorsContext(t *testing.T) {
	t.Parallel()
	r := newRegistry()
	r.Register(&fakeConn{})
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	require.ErrorIs(t, r.Claim(ctx, "v1"), context.Canceled)
}

func TestRegistry_OpenWindowFocusesFirstPage(t *testing.T) {
	t.Parallel()
	r := newRegistry()
	first, second := &fakeConn{}, &fakeConn{}
	r.Register(first)
	r.Register(second)

	require.NoError(t, r.OpenWindow(t.Context(), "/"))
	assert.Equal(t, []Message{{Type: TypeNavigate, URL: "/"}}, first.messages())
	assert.Empty(t, second.messages())
	assert.Empty(t, r.PendingOpen())
}

func TestRegistry_OpenWindowSkipsBrokenPage(t *testing.T) {
	t.Parallel()
	r := newRegistry()
	broken, healthy := &fakeConn{err: errors.New("gone")}, &fakeConn{}
	r.Register(broken)
	r.Register(healthy)

	require.NoError(t, r.OpenWindow(t.Context(), "/"))
	assert.Len(t, healthy.messages(), 1)
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_OpenWindowDeferredUntilConnect(t *testing.T) {
	t.Parallel()
	r := newRegistry()
	require.NoError(t, r.OpenWindow(t.Context(), "/"))
	assert.Equal(t, "/", r.PendingOpen())

	c := &fakeConn{}
	r.Register(c)
	assert.Equal(t, []Message{{Type: TypeNavigate, URL: "/"}}, c.messages())
	assert.Empty(t, r.PendingOpen())

	late := &fakeConn{}
	r.Register(late)
	assert.Empty(t, late.messages(), "pending navigation is delivered once")
}

func TestRegistry_PostMessage(t *testing.T) {
	t.Parallel()
	r := newRegistry()
	c := &fakeConn{}
	id := r.Register(c)

	require.NoError(t, r.PostMessage(id, Message{Type: "VERSION", Data: map[string]string{"version": "v1"}}))
	require.Len(t, c.messages(), 1)
	require.ErrorIs(t, r.PostMessage("missing", Message{Type: "X"}), ErrClientNotFound)
}

func TestRegistry_BroadcastAndUnregister(t *testing.T) {
	t.Parallel()
	r := newRegistry()
	a := r.Register(&fakeConn{})
	r.Register(&fakeConn{})

	assert.Equal(t, 2, r.Broadcast(Message{Type: "PING"}))
	r.Unregister(a)
	r.Unregister("unknown")
	assert.Equal(t, 1, r.Broadcast(Message{Type: "PING"}))
}

func TestRegistry_CloseAll(t *testing.T) {
	t.Parallel()
	r := newRegistry()
	c := &fakeConn{}
	r.Register(c)
	r.CloseAll()
	assert.Zero(t, r.Count())
	assert.True(t, c.closed)
}
