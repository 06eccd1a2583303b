package emit

import "github.com/x64emu/pathjit/internal/codeseg"

// genericEmitter stands in for any host architecture without a
// bit-exact prologue/epilogue table of its own. Such a host has no
// native entry points at all: CreatePath on it must fail, since
// spec.md §1 only specifies ABI bytes "for at least two host
// architectures." This emitter exists so internal/path can be
// constructed uniformly and degrade to "JIT never succeeds" rather than
// needing a nil check at every call site — and so its
// SupportsInlineStashCheck/EmitInlineStashCheck methods exercise the
// "on other hosts, unconditionally call EndOp" branch of spec.md §4.3.
type genericEmitter struct{}

func (genericEmitter) Arch() string              { return "generic" }
func (genericEmitter) PrologueSize() int         { return 0 }
func (genericEmitter) Enter() []byte             { return nil }
func (genericEmitter) Leave() []byte             { return nil }
func (genericEmitter) EmitEnter(*codeseg.Block)  {}
func (genericEmitter) EmitRet(*codeseg.Block)    {}

func (genericEmitter) EmitCall(b *codeseg.Block, target CallTarget) {
	b.Trace(codeseg.Step{Op: "call", Target: target.Name})
}

func (genericEmitter) EmitJump(b *codeseg.Block, target uintptr) {
	b.Trace(codeseg.Step{Op: "jmp", Args: []uint64{uint64(target)}})
}

func (genericEmitter) EmitRestoreMachinePointer(b *codeseg.Block) {
	b.Trace(codeseg.Step{Op: "mov sav0->arg0"})
}

func (genericEmitter) EmitSetArg(b *codeseg.Block, slot ArgSlot, imm uint64) {
	b.Trace(codeseg.Step{Op: "set arg", Args: []uint64{uint64(slot), imm}})
}

func (genericEmitter) SupportsInlineStashCheck() bool { return false }

func (genericEmitter) EmitInlineStashCheck(b *codeseg.Block, _ uintptr, commit CallTarget) {
	// No inline tail on this architecture: callers must instead emit an
	// unconditional call to the EndOp helper (spec.md §4.3).
	panic("emit: generic emitter does not support an inline stash check; call EndOp unconditionally instead")
}
