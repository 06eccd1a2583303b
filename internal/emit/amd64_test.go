package emit_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/x64emu/pathjit/internal/codeseg"
	"github.com/x64emu/pathjit/internal/emit"
)

func TestAmd64EnterLeaveAreBitExact(t *testing.T) {
	e := emit.For("amd64")
	require.Equal(t, "amd64", e.Arch())

	enter := e.Enter()
	require.Equal(t, []byte{
		0x55,
		0x48, 0x89, 0xe5,
		0x48, 0x83, 0xec, 0x30,
		0x48, 0x89, 0x5d, 0xd8,
		0x4c, 0x89, 0x65, 0xe0,
		0x4c, 0x89, 0x6d, 0xe8,
		0x4c, 0x89, 0x75, 0xf0,
		0x4c, 0x89, 0x7d, 0xf8,
		0x48, 0x89, 0xfb,
	}, enter)
	require.Equal(t, len(enter), e.PrologueSize())

	leave := e.Leave()
	require.Equal(t, []byte{
		0x4c, 0x8b, 0x7d, 0xf8,
		0x4c, 0x8b, 0x75, 0xf0,
		0x4c, 0x8b, 0x6d, 0xe8,
		0x4c, 0x8b, 0x65, 0xe0,
		0x48, 0x8b, 0x5d, 0xd8,
		0x48, 0x83, 0xc4, 0x30,
		0x5d,
	}, leave)
}

func TestAmd64EmitCallEncodesMovabsAndCallRax(t *testing.T) {
	e := emit.For("amd64")
	a := codeseg.NewArena(true)
	defer a.Close()
	b := a.Start(64)

	e.EmitCall(b, emit.CallTarget{Name: "Foo", Addr: 0x1122334455667788})
	got := b.Bytes()
	require.Equal(t, byte(0x48), got[0])
	require.Equal(t, byte(0xb8), got[1])
	require.Equal(t, []byte{0xff, 0xd0}, got[10:12])
	require.Len(t, got, 12)
}

func TestAmd64EmitSetArgUsesDistinctRegistersPerSlot(t *testing.T) {
	e := emit.For("amd64")
	a := codeseg.NewArena(true)
	defer a.Close()
	b := a.Start(64)

	e.EmitSetArg(b, emit.Arg1, 1)
	e.EmitSetArg(b, emit.Arg2, 2)
	e.EmitSetArg(b, emit.Arg3, 3)
	got := b.Bytes()
	require.Equal(t, byte(0xbe), got[1])  // rsi
	require.Equal(t, byte(0xba), got[11]) // rdx
	require.Equal(t, byte(0xb9), got[21]) // rcx
}

func TestAmd64InlineStashCheckRejectsOverlongOffset(t *testing.T) {
	e := emit.For("amd64")
	a := codeseg.NewArena(true)
	defer a.Close()
	b := a.Start(64)

	require.Panics(t, func() {
		e.EmitInlineStashCheck(b, 200, emit.CallTarget{Name: "Commit"})
	})
}

func TestAmd64InlineStashCheckSkipsExactlyTheCallSequence(t *testing.T) {
	e := emit.For("amd64")
	a := codeseg.NewArena(true)
	defer a.Close()
	b := a.Start(64)

	e.EmitInlineStashCheck(b, 8, emit.CallTarget{Name: "Commit", Addr: 0x99})
	got := b.Bytes()
	// EmitRestoreMachinePointer (3 bytes) + cmpq (5 bytes) + jz (2 bytes) + 12-byte call.
	require.Len(t, got, 3+5+2+12)
	require.Equal(t, byte(12), got[3+5+2-1], "jz displacement must equal the call sequence length")
}
