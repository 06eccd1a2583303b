package path_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/x64emu/pathjit/internal/decode"
	"github.com/x64emu/pathjit/internal/emit"
	"github.com/x64emu/pathjit/internal/hook"
	"github.com/x64emu/pathjit/internal/machine"
	"github.com/x64emu/pathjit/internal/ops"
	"github.com/x64emu/pathjit/internal/path"
)

type nopMem struct{}

func (nopMem) CopyToUser(int64, []byte) error { return nil }

func newSystem(t *testing.T, jitEnabled bool) *machine.System {
	t.Helper()
	return machine.NewSystem(jitEnabled, emit.For("amd64"))
}

func newBuilder() *path.Builder {
	return path.NewBuilder(ops.NewRegistry())
}

func TestCreatePathFailsWhenJitDisabled(t *testing.T) {
	sys := newSystem(t, false)
	m := machine.NewMachine(sys, nopMem{})
	m.IP = 0x1000
	b := newBuilder()

	require.False(t, b.CreatePath(m))
	require.False(t, m.Path.IsMakingPath())
}

func TestCreatePathFailsAtZeroPC(t *testing.T) {
	sys := newSystem(t, true)
	m := machine.NewMachine(sys, nopMem{})
	b := newBuilder()

	require.False(t, b.CreatePath(m))
}

func TestCreatePathInstallsJitlessHook(t *testing.T) {
	sys := newSystem(t, true)
	defer sys.Arena.Close()
	m := machine.NewMachine(sys, nopMem{})
	m.IP = 0x4000
	b := newBuilder()

	require.True(t, b.CreatePath(m))
	require.True(t, m.Path.IsMakingPath())
	require.Equal(t, hook.Jitless, sys.Hooks.GetHook(0x4000).Kind)
}

func TestCreatePathBuildsEnderExactlyOnceAcrossPaths(t *testing.T) {
	sys := newSystem(t, true)
	defer sys.Arena.Close()
	b := newBuilder()

	m1 := machine.NewMachine(sys, nopMem{})
	m1.IP = 0x4000
	require.True(t, b.CreatePath(m1))
	ender1 := sys.EnderAddr()
	b.AbandonPath(m1)

	m2 := machine.NewMachine(sys, nopMem{})
	m2.IP = 0x5000
	require.True(t, b.CreatePath(m2))
	require.Equal(t, ender1, sys.EnderAddr())
}

// TestAddPathStartOpDefersIPWhenNextHookIsGeneral exercises the deferred-IP (skew) path:
// the op is pure, and the next PC already carries a GeneralDispatch
// hook, so MustUpdateIp is false and no AddIp/SkewIp call is emitted
// immediately.
func TestAddPathStartOpDefersIPWhenNextHookIsGeneral(t *testing.T) {
	sys := newSystem(t, true)
	defer sys.Arena.Close()
	m := machine.NewMachine(sys, nopMem{})
	m.IP = 0x4000
	b := newBuilder()
	require.True(t, b.CreatePath(m))

	sys.Hooks.SetHook(0x4003, hook.Value{Kind: hook.General})
	d := decode.Decoded{Op: decode.OpNop, Len: 3}

	b.AddPath_StartOp(m, d)
	require.Equal(t, 3, m.Path.Skew, "a pure op whose successor tolerates deferred IP must accumulate skew")
}

// An impure op, or one whose successor has no hook / an intolerant
// hook, must update IP immediately and leave skew at zero.
func TestAddPathStartOpUpdatesIPImmediatelyWhenRequired(t *testing.T) {
	sys := newSystem(t, true)
	defer sys.Arena.Close()
	m := machine.NewMachine(sys, nopMem{})
	m.IP = 0x4000
	b := newBuilder()
	require.True(t, b.CreatePath(m))

	d := decode.Decoded{Op: decode.OpMovEvqpGvqpMem, Len: 5} // impure (memory write)
	before := m.Path.Block.Index()
	b.AddPath_StartOp(m, d)
	require.Zero(t, m.Path.Skew)
	require.Greater(t, m.Path.Block.Index(), before, "an AddIp call must have been emitted")
}

func TestAddPathStartOpCombinesSkewAndLengthIntoSkewIp(t *testing.T) {
	sys := newSystem(t, true)
	defer sys.Arena.Close()
	m := machine.NewMachine(sys, nopMem{})
	m.IP = 0x4000
	b := newBuilder()
	require.True(t, b.CreatePath(m))

	sys.Hooks.SetHook(0x4003, hook.Value{Kind: hook.General})
	b.AddPath_StartOp(m, decode.Decoded{Op: decode.OpNop, Len: 3})
	require.Equal(t, 3, m.Path.Skew)

	// Next op is impure: it must flush the accumulated skew together
	// with its own length via a single SkewIp call, and zero the skew.
	b.AddPath_StartOp(m, decode.Decoded{Op: decode.OpCallNear, Len: 2})
	require.Zero(t, m.Path.Skew)
}

func TestAddPathUnknownOpcodeReturnsFalse(t *testing.T) {
	sys := newSystem(t, true)
	defer sys.Arena.Close()
	m := machine.NewMachine(sys, nopMem{})
	m.IP = 0x4000
	b := newBuilder()
	require.True(t, b.CreatePath(m))

	ok := b.AddPath(m, decode.Decoded{Op: decode.OpIoOut})
	require.False(t, ok, "an op with no registered semantic handler cannot be jitted")
}

func TestAddPathEndOpEmitsInlineCheckOnlyWhenReserving(t *testing.T) {
	sys := newSystem(t, true)
	defer sys.Arena.Close()
	m := machine.NewMachine(sys, nopMem{})
	m.IP = 0x4000
	b := newBuilder()
	require.True(t, b.CreatePath(m))

	before := m.Path.Block.Index()
	m.Reserving = false
	b.AddPath_EndOp(m, decode.Decoded{})
	require.Equal(t, before, m.Path.Block.Index(), "no stash pending, so amd64's inline-capable emitter must emit nothing")

	m.Reserving = true
	b.AddPath_EndOp(m, decode.Decoded{})
	require.Greater(t, m.Path.Block.Index(), before)
}

func TestFullPathLifecycleInstallsNativeHook(t *testing.T) {
	sys := newSystem(t, true)
	defer sys.Arena.Close()
	m := machine.NewMachine(sys, nopMem{})
	m.IP = 0x4000
	b := newBuilder()
	require.True(t, b.CreatePath(m))

	d := decode.Decoded{Op: decode.OpMovZvqpIvqp, Len: 4}
	b.AddPath_StartOp(m, d)
	require.True(t, b.AddPath(m, d))
	b.AddPath_EndOp(m, d)
	b.CompletePath(m)

	v := sys.Hooks.GetHook(0x4000)
	require.Equal(t, hook.Native, v.Kind)
	require.NotZero(t, v.Entry)
	require.False(t, m.Path.IsMakingPath())
	require.EqualValues(t, 1, sys.Stats.Snapshot().PathCount)
}

func TestAbandonPathClearsSkewReservingAndHook(t *testing.T) {
	sys := newSystem(t, true)
	defer sys.Arena.Close()
	m := machine.NewMachine(sys, nopMem{})
	m.IP = 0x4000
	b := newBuilder()
	require.True(t, b.CreatePath(m))

	sys.Hooks.SetHook(0x4003, hook.Value{Kind: hook.General})
	b.AddPath_StartOp(m, decode.Decoded{Op: decode.OpNop, Len: 3})
	require.Equal(t, 3, m.Path.Skew)
	m.Reserving = true

	b.AbandonPath(m)
	require.False(t, m.Path.IsMakingPath())
	require.False(t, m.Reserving, "AbandonPath must clear Reserving, not just Skew")
	require.False(t, sys.Hooks.HasHook(0x4000))
	require.EqualValues(t, 1, sys.Stats.Snapshot().PathAbandoned)
}

func TestFinishPathOnArenaOverflowEvictsHook(t *testing.T) {
	sys := newSystem(t, true)
	defer sys.Arena.Close()
	m := machine.NewMachine(sys, nopMem{})
	m.IP = 0x4000
	b := newBuilder()
	b.BlockSize = 1 // force overflow on the very first emitted instruction
	require.True(t, b.CreatePath(m))

	b.FinishPath(m)
	require.False(t, sys.Hooks.HasHook(0x4000), "an overflowed path must not leave a stale hook installed")
	require.EqualValues(t, 1, sys.Stats.Snapshot().PathOOMs)
}

func TestCreatePathPanicsIfAlreadyMakingPath(t *testing.T) {
	sys := newSystem(t, true)
	defer sys.Arena.Close()
	m := machine.NewMachine(sys, nopMem{})
	m.IP = 0x4000
	b := newBuilder()
	require.True(t, b.CreatePath(m))

	require.Panics(t, func() { b.CreatePath(m) })
}
