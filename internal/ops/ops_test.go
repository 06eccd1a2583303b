package ops_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/x64emu/pathjit/internal/decode"
	"github.com/x64emu/pathjit/internal/emit"
	"github.com/x64emu/pathjit/internal/machine"
	"github.com/x64emu/pathjit/internal/ops"
)

type nopMem struct{ wrote map[int64][]byte }

func (m *nopMem) CopyToUser(addr int64, data []byte) error {
	if m.wrote == nil {
		m.wrote = make(map[int64][]byte)
	}
	m.wrote[addr] = append([]byte(nil), data...)
	return nil
}

func TestNewRegistryResolvesBuiltins(t *testing.T) {
	r := ops.NewRegistry()
	for _, op := range []decode.Mopcode{decode.OpNop, decode.OpMovZvqpIvqp, decode.OpMovEvqpGvqpMem, decode.OpLeaGvqpM} {
		target, ok := r.GetOp(op)
		require.True(t, ok, "op %v must be registered", op)
		require.NotZero(t, target.Addr)
	}
}

func TestGetOpUnknownOpcode(t *testing.T) {
	r := ops.NewRegistry()
	_, ok := r.GetOp(decode.OpCallNear)
	require.False(t, ok)
}

func TestStoreMemorySetsStashAndReserving(t *testing.T) {
	sys := machine.NewSystem(true, emit.For("amd64"))
	mem := &nopMem{}
	m := machine.NewMachine(sys, mem)

	d := decode.Decoded{Op: decode.OpMovEvqpGvqpMem, Disp: 0x10, Uimm0: 0x0102030405060708}
	ops.StoreMemory(m, d)

	require.True(t, m.Reserving)
	require.EqualValues(t, 0x10, m.StashAddr)

	require.NoError(t, m.CommitStash())
	require.Equal(t, []byte{0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01}, mem.wrote[0x10])
}
