package machine_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/x64emu/pathjit/internal/emit"
	"github.com/x64emu/pathjit/internal/machine"
)

type fakeMem struct {
	writes map[int64][]byte
	failAt int64
}

func (f *fakeMem) CopyToUser(addr int64, data []byte) error {
	if addr == f.failAt {
		return errors.New("fake copy failure")
	}
	if f.writes == nil {
		f.writes = make(map[int64][]byte)
	}
	cp := append([]byte(nil), data...)
	f.writes[addr] = cp
	return nil
}

func newTestMachine(jitEnabled bool) (*machine.Machine, *fakeMem) {
	sys := machine.NewSystem(jitEnabled, emit.For("amd64"))
	mem := &fakeMem{}
	return machine.NewMachine(sys, mem), mem
}

func TestAddIpAdvancesIP(t *testing.T) {
	m, _ := newTestMachine(true)
	m.IP = 100
	m.AddIp(4)
	require.EqualValues(t, 104, m.GetPC())
}

func TestSkewIpIgnoresLengthArgument(t *testing.T) {
	m, _ := newTestMachine(true)
	m.IP = 100
	m.SkewIp(9, 3)
	require.EqualValues(t, 109, m.GetPC())
}

func TestStashThenCommitWritesMemory(t *testing.T) {
	m, mem := newTestMachine(true)
	m.Stash(0x400, []byte{1, 2, 3, 4})
	require.NotZero(t, m.StashAddr)

	err := m.CommitStash()
	require.NoError(t, err)
	require.Zero(t, m.StashAddr)
	require.Equal(t, []byte{1, 2, 3, 4}, mem.writes[0x400])
}

func TestCommitStashWithNoPendingWriteIsNoop(t *testing.T) {
	m, mem := newTestMachine(true)
	err := m.CommitStash()
	require.NoError(t, err)
	require.Empty(t, mem.writes)
}

func TestEndOpCommitsPendingStash(t *testing.T) {
	m, mem := newTestMachine(true)
	m.Stash(0x800, []byte{7})
	m.EndOp()
	require.Zero(t, m.StashAddr)
	require.Equal(t, []byte{7}, mem.writes[0x800])
}

func TestEnsureEnderRunsBuildExactlyOnce(t *testing.T) {
	sys := machine.NewSystem(true, emit.For("amd64"))
	calls := 0
	build := func() (uintptr, bool) {
		calls++
		return 0xabc, true
	}
	require.True(t, sys.EnsureEnder(build))
	require.True(t, sys.EnsureEnder(build))
	require.Equal(t, 1, calls)
	require.EqualValues(t, 0xabc, sys.EnderAddr())
}

func TestEnsureEnderFailureIsSticky(t *testing.T) {
	sys := machine.NewSystem(true, emit.For("amd64"))
	calls := 0
	build := func() (uintptr, bool) {
		calls++
		return 0, false
	}
	require.False(t, sys.EnsureEnder(build))
	require.False(t, sys.EnsureEnder(build))
	require.Equal(t, 1, calls, "a failed build must not be retried")
}

func TestPathRecordIsMakingPath(t *testing.T) {
	m, _ := newTestMachine(true)
	require.False(t, m.Path.IsMakingPath())
}

func TestStashAddrOffsetFitsShortDisplacement(t *testing.T) {
	require.Less(t, machine.StashAddrOffset, uintptr(128))
}
