package hook_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/x64emu/pathjit/internal/hook"
)

func TestNewTableHasNoHooks(t *testing.T) {
	tb := hook.NewTable()
	require.False(t, tb.HasHook(0x1000))
	require.Equal(t, hook.Value{}, tb.GetHook(0x1000))
}

func TestSetAndGetHook(t *testing.T) {
	tb := hook.NewTable()
	v := hook.Value{Kind: hook.Native, Entry: 0xdeadbeef}
	tb.SetHook(0x1000, v)
	require.True(t, tb.HasHook(0x1000))
	require.Equal(t, v, tb.GetHook(0x1000))
}

func TestSetHookWithEvictedKindRemoves(t *testing.T) {
	tb := hook.NewTable()
	tb.SetHook(0x1000, hook.Value{Kind: hook.Native, Entry: 1})
	tb.SetHook(0x1000, hook.Value{Kind: hook.Evicted})
	require.False(t, tb.HasHook(0x1000))
}

func TestEvict(t *testing.T) {
	tb := hook.NewTable()
	tb.SetHook(0x2000, hook.Value{Kind: hook.Jitless})
	tb.Evict(0x2000)
	require.False(t, tb.HasHook(0x2000))
}

func TestReset(t *testing.T) {
	tb := hook.NewTable()
	tb.SetHook(0x1000, hook.Value{Kind: hook.Native, Entry: 1})
	tb.SetHook(0x2000, hook.Value{Kind: hook.General})
	tb.Reset()
	require.False(t, tb.HasHook(0x1000))
	require.False(t, tb.HasHook(0x2000))
}

func TestToleratesDeferredIP(t *testing.T) {
	require.True(t, hook.General.ToleratesDeferredIP())
	require.False(t, hook.Jitless.ToleratesDeferredIP())
	require.False(t, hook.Native.ToleratesDeferredIP())
	require.False(t, hook.Evicted.ToleratesDeferredIP())
}
