// Package emit is the host-code-emitter primitive spec.md §6 assumes:
// append bytes, emit a call, emit a register move, emit a jump. It
// produces bit-exact host-ABI prologue/epilogue bytes (spec.md §6) on
// amd64 and arm64, and real (if minimal) encodings for the call/jump/
// move/set-register operations the path builder needs.
//
// Grounded directly on original_source/blink/path.c's kEnter/kLeave byte
// tables (the literal bytes spec.md §6 transcribes), and on the
// per-architecture file split tetratelabs/wazero uses for its own
// assemblers (internal/asm/amd64, internal/asm/arm64) and that
// other_examples/launix-de-memcp's scm-jit_amd64.go uses for its
// single-architecture hand-rolled JIT. golang-asm
// (github.com/twitchyliquid64/golang-asm), the library wazero uses for
// its own generic assembler, is deliberately not used here: its
// obj.Prog API takes many architecture-specific opcode/register
// constants that cannot be validated without compiling and running
// them, and spec.md demands the prologue/epilogue be bit-exact, which a
// hand-rolled table guarantees and a generic assembler does not.
package emit

import (
	"fmt"
	"reflect"

	"github.com/x64emu/pathjit/internal/codeseg"
)

// ArgSlot names one of the three call-argument registers that follow
// the fixed argument zero (always the machine pointer): used both for
// AddPath's opcode-operand triple (rde, disp, uimm0) and for the
// skew manager's AddIp/SkewIp arguments.
type ArgSlot int

const (
	Arg1 ArgSlot = iota
	Arg2
	Arg3
)

// CallTarget identifies a Go function as a host call target: its
// code address (for emitting a real call/jump instruction) and a name
// (for the optional trace logger).
type CallTarget struct {
	Name string
	Addr uintptr
}

// TargetOf resolves fn (a func value) to a CallTarget. This is the same
// reflect.ValueOf(fn).Pointer() idiom Go programs commonly use to obtain
// a function's code address for registration/logging purposes; this
// core only ever uses the resulting address as an opaque identifier
// embedded in emitted bytes; it is not required to be the only Go
// mechanism that could ever call into that function.
func TargetOf(fn any) CallTarget {
	v := reflect.ValueOf(fn)
	name := "?"
	if rf := v.Type(); rf != nil {
		name = rf.String()
	}
	return CallTarget{Name: name, Addr: v.Pointer()}
}

// Emitter is the architecture-specific host-code emitter contract
// consumed by internal/path. Each method appends real bytes to b and
// records a codeseg.Step describing what it appended, mirroring blink's
// BeginClog/FlushClog pairing of "emit bytes" with "describe what was
// emitted" at every call site.
type Emitter interface {
	// Arch names the host architecture this Emitter targets.
	Arch() string
	// PrologueSize returns the byte length of Enter(), per spec.md §6's
	// GetPrologueSize.
	PrologueSize() int
	// Enter returns the bit-exact prologue bytes.
	Enter() []byte
	// Leave returns the bit-exact epilogue bytes.
	Leave() []byte
	// EmitEnter appends Enter() to b.
	EmitEnter(b *codeseg.Block)
	// EmitCall appends a call to target.
	EmitCall(b *codeseg.Block, target CallTarget)
	// EmitJump appends an unconditional jump to the given address (used
	// for CompletePath's jump to the shared ender).
	EmitJump(b *codeseg.Block, target uintptr)
	// EmitRet appends a return instruction.
	EmitRet(b *codeseg.Block)
	// EmitRestoreMachinePointer reloads the machine pointer (preserved
	// across calls in the architecture's reserved callee-saved "sav0"
	// register) into the first call-argument register, since the
	// previous emitted call may have clobbered it.
	EmitRestoreMachinePointer(b *codeseg.Block)
	// EmitSetArg appends an instruction that loads an immediate into
	// the call-argument register for the given slot.
	EmitSetArg(b *codeseg.Block, slot ArgSlot, imm uint64)
	// SupportsInlineStashCheck reports whether this architecture has a
	// short-displacement inline "if stashaddr != 0, call CommitStash"
	// sequence (spec.md §4.3's AddPath_EndOp). When false, the path
	// builder must instead emit an unconditional call to the EndOp
	// helper.
	SupportsInlineStashCheck() bool
	// EmitInlineStashCheck appends the inline stashaddr check-and-call
	// sequence. stashOffset is the byte offset of Machine.StashAddr
	// within the Machine struct. Only valid when
	// SupportsInlineStashCheck is true.
	EmitInlineStashCheck(b *codeseg.Block, stashOffset uintptr, commit CallTarget)
}

// maxInlineStashOffset matches the _Static_assert in blink's
// AddPath_EndOp: the machine struct offset of stashaddr must fit a
// short (one-byte) displacement for the inline tail to be emittable.
const maxInlineStashOffset = 127

func checkInlineOffset(off uintptr) error {
	if off > maxInlineStashOffset {
		return fmt.Errorf("emit: stashaddr offset %d does not fit a short displacement (max %d)", off, maxInlineStashOffset)
	}
	return nil
}

// For selects the Emitter for the named GOARCH. Only "amd64" and
// "arm64" have bit-exact, inline-stash-capable emitters; every other
// name returns the generic fallback emitter, matching spec.md §4.3's
// "on other hosts, unconditionally emit a call to EndOp".
func For(goarch string) Emitter {
	switch goarch {
	case "amd64":
		return amd64Emitter{}
	case "arm64":
		return arm64Emitter{}
	default:
		return genericEmitter{}
	}
}
