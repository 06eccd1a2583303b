// Package machine holds the per-thread Machine and shared System data
// model of spec.md §3, plus the handful of always-present runtime
// helpers (AddIp, SkewIp, CommitStash, EndOp) the path builder calls
// directly rather than through the op registry.
package machine

import (
	"sync"
	"unsafe"

	"github.com/x64emu/pathjit/internal/codeseg"
	"github.com/x64emu/pathjit/internal/emit"
	"github.com/x64emu/pathjit/internal/hook"
	"github.com/x64emu/pathjit/internal/stats"
)

// Mem is the only slice of the virtual memory subsystem this core
// consumes (spec.md §1: "only its copy-to-guest and memory-map
// operations are consumed").
type Mem interface {
	CopyToUser(addr int64, data []byte) error
}

// PathRecord is spec.md §3's PathRecord, embedded in Machine. At most
// one is active per machine at a time.
type PathRecord struct {
	Start    uint64        // guest_pc the path began at
	Elements int           // number of ops folded into this path
	Skew     int           // pending, deferred guest-IP delta
	Block    *codeseg.Block // owned native code buffer while building
}

// IsMakingPath is PathRecord.jb.present from spec.md §3: "is making
// path" is defined as jb.present.
func (p *PathRecord) IsMakingPath() bool { return p.Block != nil }

// System is shared by every Machine on one emulated process, per
// spec.md §3.
type System struct {
	Arena   *codeseg.Arena
	Hooks   *hook.Table
	Stats   *stats.Stats
	Emitter emit.Emitter

	enderOnce sync.Once
	ender     uintptr
	enderOK   bool
}

// NewSystem constructs a System. jitEnabled false makes every
// CreatePath call fail, per spec.md §7's "JIT is disabled" row.
func NewSystem(jitEnabled bool, emitter emit.Emitter) *System {
	return &System{
		Arena:   codeseg.NewArena(jitEnabled),
		Hooks:   hook.NewTable(),
		Stats:   &stats.Stats{},
		Emitter: emitter,
	}
}

// EnsureEnder initializes the shared epilogue trampoline on first call
// via build, and is a no-op on every subsequent call. Matches spec.md
// §3 invariant 5: "The shared epilogue (ender) is initialized exactly
// once per System, before the first path body is emitted." Returns
// whether an ender is available (it may not be, if build failed the
// first time it ran).
func (s *System) EnsureEnder(build func() (uintptr, bool)) bool {
	s.enderOnce.Do(func() {
		s.ender, s.enderOK = build()
	})
	return s.enderOK
}

// EnderAddr returns the shared epilogue trampoline address. Only valid
// once EnsureEnder has returned true.
func (s *System) EnderAddr() uintptr { return s.ender }

// Machine is spec.md §3's per-emulated-thread Machine.
type Machine struct {
	// Registers. spec.md only names IP, SP (via m.sp) and DI (zeroed by
	// guest bootstrap as a platform-probe requirement) explicitly;
	// other general-purpose guest registers are the interpreter's
	// concern, out of scope for this core.
	IP uint64
	SP int64
	DI uint64

	System *System
	Path   PathRecord

	// Reserving is the opt-in hint an op implementation sets before
	// AddPath_EndOp runs, meaning "I will stash a write."
	Reserving bool
	// StashAddr is nonzero iff a pending guest-memory write is live.
	StashAddr uint64

	stashPayload []byte
	mem          Mem
}

// NewMachine constructs a Machine backed by the given System and memory
// collaborator.
func NewMachine(sys *System, mem Mem) *Machine {
	return &Machine{System: sys, mem: mem}
}

// GetPC returns the guest program counter, spec.md §6's GetPc.
func (m *Machine) GetPC() uint64 { return m.IP }

// GetSP and SetSP expose the guest stack pointer to internal/bootstrap,
// which only needs to read and advance it while laying down the
// initial argv/envp/auxv stack image.
func (m *Machine) GetSP() int64  { return m.SP }
func (m *Machine) SetSP(sp int64) { m.SP = sp }

// CopyToUser forwards to the memory collaborator, satisfying
// internal/bootstrap.Stack in addition to Machine's own stash/commit
// use of Mem.
func (m *Machine) CopyToUser(addr int64, data []byte) error {
	return m.mem.CopyToUser(addr, data)
}

// ZeroDI clears the guest DI register. internal/bootstrap's LoadArgv
// calls this via a closure immediately after computing the new stack
// pointer, matching blink's own comment: "or ape detects freebsd".
func (m *Machine) ZeroDI() { m.DI = 0 }

// AddIp advances the guest IP by n bytes: the non-skewed, always-on
// micro-op AddPath_StartOp calls when it must update IP immediately.
func (m *Machine) AddIp(n int) { m.IP += uint64(n) }

// SkewIp advances the guest IP by delta (the accumulated skew plus the
// current op's length) in one step, replacing the separate AddIp calls
// the deferred ops and the current op would otherwise have needed. length is accepted to match
// the two-argument call spec.md §4.3 describes, even though advancing
// IP only needs delta.
func (m *Machine) SkewIp(delta, length int) {
	_ = length
	m.IP += uint64(delta)
}

// Stash records a pending guest-memory write: effective address and
// payload. The op implementation that calls this must also set
// Reserving before returning, per spec.md §4.3's stash/commit protocol.
func (m *Machine) Stash(addr uint64, payload []byte) {
	m.StashAddr = addr
	m.stashPayload = payload
}

// CommitStash writes any pending stash to guest memory and clears it.
// Called both by the emitted inline tail (conceptually; this Go method
// is what that tail's call target resolves to) and by EndOp on hosts
// without an inline tail.
func (m *Machine) CommitStash() error {
	if m.StashAddr == 0 {
		return nil
	}
	err := m.mem.CopyToUser(int64(m.StashAddr), m.stashPayload)
	m.StashAddr = 0
	m.stashPayload = nil
	return err
}

// EndOp is the software fallback AddPath_EndOp emits an unconditional
// call to on hosts whose emitter has no inline stash-check tail.
func (m *Machine) EndOp() {
	if m.StashAddr != 0 {
		_ = m.CommitStash()
	}
}

// StashAddrOffset is the byte offset of StashAddr within Machine, used
// by the inline stash-check emitters to address it via a short
// displacement from the machine pointer (spec.md §4.3's
// _Static_assert(offsetof(struct Machine, stashaddr) < 128, "")).
var StashAddrOffset = unsafe.Offsetof(Machine{}.StashAddr)
