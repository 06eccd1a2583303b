// Package ops is a minimal stand-in for spec.md §6's op registry
// ("Contract consumed from op registry: GetOp(mopcode) -> native
// function pointer taking (machine, rde, disp, uimm0)"), the semantic
// op functions themselves being an external collaborator out of scope
// for this core. It registers just enough concrete ops to exercise the
// path builder end to end: a pure op, an impure-but-non-memory op, and
// a memory-writing op that exercises the stash/commit protocol.
package ops

import (
	"github.com/x64emu/pathjit/internal/decode"
	"github.com/x64emu/pathjit/internal/emit"
	"github.com/x64emu/pathjit/internal/machine"
)

// Func is the semantic op signature: spec.md §6's GetOp result.
type Func func(m *machine.Machine, d decode.Decoded)

// Registry maps Mopcode to a semantic op implementation.
type Registry struct {
	byOp map[decode.Mopcode]Func
}

// NewRegistry constructs a Registry with the built-in demonstration ops
// registered.
func NewRegistry() *Registry {
	r := &Registry{byOp: make(map[decode.Mopcode]Func)}
	r.Register(decode.OpNop, Nop)
	r.Register(decode.OpMovZvqpIvqp, MovImmediate)
	r.Register(decode.OpMovEvqpGvqpMem, StoreMemory)
	r.Register(decode.OpLeaGvqpM, LoadEffectiveAddress)
	return r
}

// Register installs fn as the handler for op.
func (r *Registry) Register(op decode.Mopcode, fn Func) {
	r.byOp[op] = fn
}

// GetOp resolves op to a call target the path builder can emit a call
// to, per spec.md §6.
func (r *Registry) GetOp(op decode.Mopcode) (emit.CallTarget, bool) {
	fn, ok := r.byOp[op]
	if !ok {
		return emit.CallTarget{}, false
	}
	return emit.TargetOf(fn), true
}

// Nop does nothing beyond the IP advance the path builder already
// emits for every op.
func Nop(*machine.Machine, decode.Decoded) {}

// MovImmediate models `mov reg, imm`: no memory access, purely register
// state (not modeled further here since general-purpose guest registers
// belong to the interpreter).
func MovImmediate(*machine.Machine, decode.Decoded) {}

// StoreMemory models an op that writes guest memory: it stashes the
// write and flags Reserving, per spec.md §4.3, leaving the actual
// commit to the emitted end-op tail (or EndOp on hosts without one).
func StoreMemory(m *machine.Machine, d decode.Decoded) {
	addr := uint64(int64(d.Disp))
	payload := make([]byte, 8)
	for i := range payload {
		payload[i] = byte(d.Uimm0 >> (8 * i))
	}
	m.Stash(addr, payload)
	m.Reserving = true
}

// LoadEffectiveAddress models LEA: pure unless RIP-relative, and never
// touches memory itself.
func LoadEffectiveAddress(*machine.Machine, decode.Decoded) {}
