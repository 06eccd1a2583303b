// Package path implements spec.md §4.3's path builder: the per-machine
// state machine that turns a run of decoded guest instructions into one
// staged native code block, plus the skew manager (§"Skew manager") and
// stash/commit tail emission it is responsible for.
//
// Grounded on original_source/blink/path.c's CreatePath/AddPath_StartOp/
// AddPath/AddPath_EndOp/CompletePath/FinishPath/AbandonPath/FlushSkew,
// adapted to the Go types internal/machine, internal/hook,
// internal/codeseg, and internal/emit provide. The overall "offer each
// decoded op to a stateful builder that owns a JIT block while active"
// shape also matches tetratelabs/wazero's internal/engine/compiler
// compiler interface (compilePreamble/compile.../the function's native
// code is only installed once the whole body compiles), scaled down to
// linear paths with no cross-block optimization, per spec.md's
// non-goals.
package path

import (
	"fmt"

	"github.com/x64emu/pathjit/internal/assert"
	"github.com/x64emu/pathjit/internal/codeseg"
	"github.com/x64emu/pathjit/internal/decode"
	"github.com/x64emu/pathjit/internal/emit"
	"github.com/x64emu/pathjit/internal/hook"
	"github.com/x64emu/pathjit/internal/machine"
	"github.com/x64emu/pathjit/internal/ops"
	"github.com/x64emu/pathjit/internal/purity"
	"github.com/x64emu/pathjit/internal/trace"
)

// Builder is spec.md §4.3's path builder. One Builder is shared by every
// machine on a System; all of its state lives in the Machine and System
// arguments passed to each call.
type Builder struct {
	Ops *ops.Registry

	// BlockSize bounds a single path's native code, defaulting to
	// codeseg.DefaultBlockSize when zero.
	BlockSize int

	// CollectStatistics gates the per-op instruction counter increment,
	// mirroring blink's `if (FLAG_statistics)` guard around the
	// CountOp call in AddPath_StartOp.
	CollectStatistics bool

	// StartOpHook is spec.md §6's optional AddPath_StartOp_Hook,
	// invoked at every op boundary for instrumentation.
	StartOpHook func(m *machine.Machine, d decode.Decoded)

	// Trace is the optional CLOG-equivalent diagnostic logger. Nil
	// disables tracing entirely, matching blink running without CLOG
	// defined.
	Trace *trace.Logger
}

// NewBuilder constructs a Builder using reg as the semantic op
// registry.
func NewBuilder(reg *ops.Registry) *Builder {
	return &Builder{Ops: reg}
}

func (b *Builder) blockSize() int {
	if b.BlockSize > 0 {
		return b.BlockSize
	}
	return codeseg.DefaultBlockSize
}

// buildEnder lays down the shared epilogue trampoline: restore
// callee-saved registers and return. Installed once per System,
// spec.md §4.3's CreatePath "ensures ender exists" step (InitPaths in
// blink). The ender is not a path, so it is sized by
// codeseg.DefaultBlockSize rather than by the per-path BlockSize quota.
func (b *Builder) buildEnder(sys *machine.System) (uintptr, bool) {
	blk := sys.Arena.Start(codeseg.DefaultBlockSize)
	if blk == nil {
		return 0, false
	}
	blk.AppendBytes(sys.Emitter.Leave())
	blk.Trace(codeseg.Step{Op: "leave"})
	sys.Emitter.EmitRet(blk)
	return sys.Arena.Finish(blk)
}

// CreatePath begins a new path at m's current guest PC. Returns false
// if JIT is disabled, the PC is zero, the JIT arena could not start a
// block, the shared ender could not be built, or the System's emitter
// stages no host code (the generic emitter) — spec.md §7's
// recoverable failure rows, all of which leave the caller free to keep
// interpreting.
func (b *Builder) CreatePath(m *machine.Machine) bool {
	assert.Invariant(!m.Path.IsMakingPath(), "path: CreatePath called while a path is already active")
	sys := m.System
	if sys.Emitter.PrologueSize() == 0 {
		return false
	}
	if !sys.EnsureEnder(func() (uintptr, bool) { return b.buildEnder(sys) }) {
		return false
	}
	pc := m.GetPC()
	if pc == 0 {
		return false
	}
	blk := sys.Arena.Start(b.blockSize())
	if blk == nil {
		return false
	}
	sys.Emitter.EmitEnter(blk)
	m.Path = machine.PathRecord{Start: pc, Elements: 0, Skew: 0, Block: blk}
	sys.Hooks.SetHook(pc, hook.Value{Kind: hook.Jitless})
	b.Trace.BeginPath(pc, blk.PC())
	return true
}

// mustUpdateIP is spec.md §4.3's MustUpdateIp: true when the op is
// impure, or the next guest PC has no hook, or that hook is anything
// other than GeneralDispatch.
func (b *Builder) mustUpdateIP(m *machine.Machine, d decode.Decoded) bool {
	if !purity.IsPure(d) {
		return true
	}
	next := m.IP + uint64(d.Oplength())
	v := m.System.Hooks.GetHook(next)
	if v.Kind == hook.Evicted {
		return true
	}
	return !v.Kind.ToleratesDeferredIP()
}

// FlushSkew emits a single AddIp(skew) call if skew is pending, and
// zeros it. Called before every point at which spec.md requires the
// guest IP be externally observable: before an impure op's call, before
// CompletePath's jump to ender, and (by the caller) before handing
// control back to the interpreter.
func (b *Builder) FlushSkew(m *machine.Machine) {
	assert.Invariant(m.Path.IsMakingPath(), "path: FlushSkew called with no active path")
	if m.Path.Skew == 0 {
		return
	}
	blk := m.Path.Block
	sys := m.System
	sys.Emitter.EmitSetArg(blk, emit.Arg1, uint64(m.Path.Skew))
	sys.Emitter.EmitCall(blk, emit.TargetOf((*machine.Machine).AddIp))
	m.Path.Skew = 0
	b.Trace.FlushedSkew()
}

// AddPath_StartOp is called at each new op while a path is active. It
// updates the skew manager and restores the machine pointer clobbered
// by whatever call it just emitted.
func (b *Builder) AddPath_StartOp(m *machine.Machine, d decode.Decoded) {
	assert.Invariant(m.Path.IsMakingPath(), "path: AddPath_StartOp called with no active path")
	sys := m.System
	blk := m.Path.Block

	if b.CollectStatistics {
		sys.Stats.IncInstructionsJitted()
	}
	if b.StartOpHook != nil {
		b.StartOpHook(m, d)
	}

	length := int(d.Oplength())
	if b.mustUpdateIP(m, d) {
		if m.Path.Skew == 0 {
			sys.Emitter.EmitSetArg(blk, emit.Arg1, uint64(length))
			sys.Emitter.EmitCall(blk, emit.TargetOf((*machine.Machine).AddIp))
		} else {
			total := m.Path.Skew + length
			sys.Emitter.EmitSetArg(blk, emit.Arg1, uint64(total))
			sys.Emitter.EmitSetArg(blk, emit.Arg2, uint64(length))
			sys.Emitter.EmitCall(blk, emit.TargetOf((*machine.Machine).SkewIp))
			m.Path.Skew = 0
		}
	} else {
		m.Path.Skew += length
	}

	sys.Emitter.EmitRestoreMachinePointer(blk)
	m.Reserving = false
	m.Path.Elements++
}

// AddPath emits the operand-triple loads and the call into the
// semantic op for d's opcode. Returns false if the op registry has no
// handler for this opcode — an unjittable op, which the caller must
// respond to with AbandonPath.
func (b *Builder) AddPath(m *machine.Machine, d decode.Decoded) bool {
	assert.Invariant(m.Path.IsMakingPath(), "path: AddPath called with no active path")
	target, ok := b.Ops.GetOp(d.Mopcode())
	if !ok {
		return false
	}
	blk := m.Path.Block
	sys := m.System
	sys.Emitter.EmitSetArg(blk, emit.Arg1, d.Rde)
	sys.Emitter.EmitSetArg(blk, emit.Arg2, uint64(uint32(d.Disp)))
	sys.Emitter.EmitSetArg(blk, emit.Arg3, d.Uimm0)
	sys.Emitter.EmitCall(blk, target)
	return true
}

// AddPath_EndOp emits the stash-commit tail. When the emitter supports
// an inline check-and-call, it is emitted only if m.Reserving is set
// (nothing is emitted otherwise); when the emitter has no inline tail,
// an unconditional call to the EndOp helper is emitted.
func (b *Builder) AddPath_EndOp(m *machine.Machine, d decode.Decoded) {
	assert.Invariant(m.Path.IsMakingPath(), "path: AddPath_EndOp called with no active path")
	sys := m.System
	blk := m.Path.Block
	commit := emit.TargetOf((*machine.Machine).CommitStash)

	if sys.Emitter.SupportsInlineStashCheck() {
		if m.Reserving {
			sys.Emitter.EmitInlineStashCheck(blk, machine.StashAddrOffset, commit)
		}
		return
	}
	sys.Emitter.EmitCall(blk, emit.TargetOf((*machine.Machine).EndOp))
}

// CompletePath flushes any residual skew, jumps to the shared epilogue,
// and finishes the path.
func (b *Builder) CompletePath(m *machine.Machine) {
	assert.Invariant(m.Path.IsMakingPath(), "path: CompletePath called with no active path")
	b.FlushSkew(m)
	m.System.Emitter.EmitJump(m.Path.Block, m.System.EnderAddr())
	b.FinishPath(m)
}

// FinishPath asks the JIT arena to finalize and install the current
// block at the hook table slot for path.Start. On success the hook now
// points at the native entry; on arena overflow the hook is cleared to
// 0 so the next visit falls back to the interpreter, per spec.md §7's
// "success-with-install-failure" policy.
func (b *Builder) FinishPath(m *machine.Machine) {
	assert.Invariant(m.Path.IsMakingPath(), "path: FinishPath called with no active path")
	sys := m.System
	blk := m.Path.Block
	entry, ok := sys.Arena.Finish(blk)
	if ok {
		sys.Hooks.SetHook(m.Path.Start, hook.Value{Kind: hook.Native, Entry: entry})
		sys.Stats.IncPathCount()
	} else {
		sys.Hooks.Evict(m.Path.Start)
		sys.Stats.IncPathOOMs()
	}
	sys.Stats.ObservePathLength(m.Path.Elements, blk.Index())
	b.Trace.FlushBlock(blk)
	m.Path = machine.PathRecord{}
}

// AbandonPath discards the in-progress path: the arena drops the block,
// skew and reserving are cleared, and the hook is evicted. spec.md §9's
// second open question — whether to clear reserving too — is resolved
// in favor of clearing both, since no reason not to was found anywhere
// in scope (see SPEC_FULL.md's Open Questions Resolved section).
func (b *Builder) AbandonPath(m *machine.Machine) {
	assert.Invariant(m.Path.IsMakingPath(), "path: AbandonPath called with no active path")
	sys := m.System
	sys.Arena.Abandon(m.Path.Block)
	sys.Hooks.Evict(m.Path.Start)
	sys.Stats.IncPathAbandoned()
	b.Trace.Abandoned()
	m.Path = machine.PathRecord{}
	m.Reserving = false
}

// String is for debugging purposes, matching the teacher compiler
// interface's String method.
func (b *Builder) String() string {
	return fmt.Sprintf("path.Builder{blockSize=%d}", b.blockSize())
}
