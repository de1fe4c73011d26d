package timeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tickline/internal/runtime/lifecycle"
)

func TestSubscriptionAdvanceWithoutTargetsDoesNotFire(t *testing.T) {
	s := &subscription{}
	require.False(t, s.advance(2*base, base))
	require.False(t, s.advance(2*base, base))
	require.Zero(t, s.accumulated)
	require.False(t, s.fired)
}

func TestSubscriptionPauseSources(t *testing.T) {
	s := &subscription{}
	s.setPaused(pauseDirect, true)
	s.setPaused(pauseBroadcast, true)
	s.setPaused(pauseBroadcast, false)
	require.False(t, s.running())
	s.setPaused(pauseDirect, false)
	require.True(t, s.running())
}

func TestSubscriptionDetachKillsAndResets(t *testing.T) {
	s := &subscription{}
	scope := lifecycle.NewOwner()
	a := newBinding(time.Second, "k", NewObserver(nil), scope)
	b := newBinding(time.Second, "k", NewObserver(nil), nil)
	require.True(t, s.attach(a))
	require.True(t, s.attach(b))
	require.False(t, s.attach(newBinding(time.Second, "k", a.obs, scope)))

	s.advance(time.Second, base)
	removed := s.detach(removeScopeKey(scope, "k").matches)
	require.Equal(t, []*binding{a}, removed)
	require.False(t, a.live.Load())
	require.True(t, b.live.Load())
	require.Zero(t, s.accumulated)

	require.Empty(t, s.detach(removeScopeKey(scope, "k").matches))
}

func TestBindingSetStopAfterKillUnregistersImmediately(t *testing.T) {
	b := newBinding(time.Second, "k", NewObserver(nil), lifecycle.NewOwner())
	b.kill()
	called := false
	b.setStop(func() bool { called = true; return true })
	require.True(t, called)

	delivered := false
	b.obs = NewObserver(func(time.Duration) { delivered = true })
	b.deliver(time.Second)
	require.False(t, delivered)
}
