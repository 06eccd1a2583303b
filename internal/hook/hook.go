// Package hook implements the guest-PC to dispatch-target table that
// lets the outer interpreter (out of scope for this core, per spec.md
// §1) find a staged native entry point instead of interpreting an
// instruction from scratch.
//
// Grounded on tetratelabs/wazero's internal/engine/compiler engine type:
// a map guarded by a single sync.RWMutex, written only when a module
// (here, a path) finishes or is dropped, read constantly by callers that
// must never observe a torn value. Go's runtime guarantees map reads and
// RWMutex-guarded writes never tear, which satisfies spec.md §4.2's "no
// torn pointers" requirement without needing atomics or lock-free
// tricks.
package hook

import "sync"

// Kind distinguishes the three categories of hook value spec.md §3
// calls out by name.
type Kind uint8

const (
	// Evicted is the zero value: no hook installed, or a hook that was
	// reset after a failed finalize or an abandonment.
	Evicted Kind = iota
	// General is GeneralDispatch: the plain interpreter, free to start
	// a new path at this PC.
	General
	// Jitless is JitlessDispatch: the interpreter is forbidden from
	// starting a second path at this PC (installed while one is under
	// construction).
	Jitless
	// Native is a staged entry point into a finished JIT block.
	Native
)

// ToleratesDeferredIP reports whether control arriving at a hook of this
// kind tolerates the guest IP being behind by the skew manager's pending
// delta. Only General does: every other kind is a precise observer (a
// staged path entry computes from, and writes, an exact IP; Jitless
// exists specifically because a path is mid-construction and must not
// be re-entered with a stale IP either).
//
// This is the resolution of spec.md §9's open question: a future hook
// kind must declare its own tolerance here rather than being silently
// compared against GeneralDispatch by value.
func (k Kind) ToleratesDeferredIP() bool {
	return k == General
}

// Value is one hook table entry. Entry is only meaningful when Kind is
// Native, and is the native code address FinishJit installed.
type Value struct {
	Kind  Kind
	Entry uintptr
}

// Table is the guest-PC to hook-value map, shared by every machine on
// one System.
type Table struct {
	mu   sync.RWMutex
	hook map[uint64]Value
}

// NewTable constructs an empty hook table.
func NewTable() *Table {
	return &Table{hook: make(map[uint64]Value)}
}

// HasHook reports whether a non-evicted hook is installed at pc.
func (t *Table) HasHook(pc uint64) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.hook[pc]
	return ok && v.Kind != Evicted
}

// GetHook returns the hook installed at pc, or the zero Value (Evicted)
// if none is installed.
func (t *Table) GetHook(pc uint64) Value {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.hook[pc]
}

// SetHook installs v at pc. Setting the zero Value evicts the entry,
// matching spec.md §4.2's "0 means evict" contract; evicting deletes
// the map entry outright rather than overwriting it with the zero
// Value, so a long-lived table with many one-time evictions does not
// accumulate stale keys that GetHook would otherwise have to look up
// and find empty forever.
func (t *Table) SetHook(pc uint64, v Value) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if v.Kind == Evicted {
		delete(t.hook, pc)
		return
	}
	t.hook[pc] = v
}

// Evict is shorthand for SetHook(pc, Value{}).
func (t *Table) Evict(pc uint64) {
	t.SetHook(pc, Value{})
}

// Reset clears every entry, for use when the backing JIT arena is
// discarded wholesale (spec.md §9: "on arena reset, the hook table is
// cleared wholesale").
func (t *Table) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hook = make(map[uint64]Value)
}
