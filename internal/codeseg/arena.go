package codeseg

import "sync"

// Step is a logical record of one emitted host instruction, kept
// alongside the raw bytes so the optional trace logger (internal/trace)
// and tests can describe what a block does without disassembling the
// machine code back out. This plays the role blink's CLOG disassembly
// pass plays for the same observability need, but is populated at
// emission time instead of by decoding the bytes afterwards.
type Step struct {
	Op     string
	Target string
	Args   []uint64
}

// DefaultBlockSize bounds how large a single path's native code may
// grow before FinishJit reports failure. spec.md treats the JIT arena's
// total capacity as a primitive; this core additionally quotas each
// path so a single pathological block cannot exhaust the whole arena,
// matching the "OOM at finalize" error kind of spec.md §7 being a
// per-path, recoverable event rather than a process-fatal one.
const DefaultBlockSize = 4096

// Arena owns the lifecycle of every Block built from one System: it
// hands out a fresh, dedicated mapping per Start call (see segment.go's
// doc comment for why), and keeps track of the mappings behind
// successfully finished Blocks so Close/Reset can release them.
type Arena struct {
	mu       sync.Mutex
	enabled  bool
	finished []*segment
}

// NewArena constructs an Arena. enabled false models spec.md §7's "JIT
// disabled" condition: Start always fails.
func NewArena(enabled bool) *Arena {
	return &Arena{enabled: enabled}
}

// Close releases every mapping behind a finished Block. Not part of the
// spec's core lifecycle, but necessary so tests and embedders don't
// leak executable mappings, matching platform.MunmapCodeSegment being
// paired with every Map call in the teacher.
func (a *Arena) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	var firstErr error
	for _, s := range a.finished {
		if err := s.unmap(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.finished = nil
	return firstErr
}

// Start begins a new Block with its own dedicated mapping sized exactly
// to blocksize. It returns nil if the arena is disabled, matching
// CreatePath's "JIT is disabled" failure path in spec.md §4.3.
func (a *Arena) Start(blocksize int) *Block {
	if !a.enabled {
		return nil
	}
	if blocksize <= 0 {
		blocksize = DefaultBlockSize
	}
	return &Block{arena: a, seg: mapBlockSegment(blocksize), blocksize: blocksize}
}

// Finish commits b's bytes permanently and returns the address at which
// they begin. ok is false if b overflowed its quota, in which case its
// mapping is released immediately — the "success-with-install-failure"
// policy of spec.md §7. On success, b's mapping is retained until the
// Arena's Reset or Close (it is never grown, moved, or reused), so the
// returned address stays valid until then.
func (a *Arena) Finish(b *Block) (entry uintptr, ok bool) {
	if b.Overflowed() {
		b.seg.unmap()
		b.finished = true
		return 0, false
	}
	a.mu.Lock()
	a.finished = append(a.finished, b.seg)
	a.mu.Unlock()
	b.finished = true
	return b.seg.addr(), true
}

// Abandon discards b and releases its dedicated mapping immediately:
// since each Block now owns an independent mapping rather than a slice
// of one shared, growable arena, nothing else can ever reuse its
// address, so there is no reason to keep it mapped.
func (a *Arena) Abandon(b *Block) {
	b.seg.unmap()
	b.abandoned = true
}

// Reset releases every mapping behind every Block finished so far, for
// the "arena reset clears the hook table wholesale" scenario noted in
// spec.md §9. Callers must also call hook.Table.Reset() in the same
// step — this method only owns the arena side of that invariant, not
// the hook table.
func (a *Arena) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range a.finished {
		s.unmap()
	}
	a.finished = nil
}

// Block is one in-progress (or just-finished/abandoned) path's native
// code buffer: spec.md §3's JIT block.
type Block struct {
	arena *Arena
	seg   *segment

	index     int // monotonic count of bytes written
	blocksize int // this block's capacity quota, and its mapping's exact size

	clog  int    // last byte offset flushed to the trace logger
	Steps []Step // logical emission trace, see Step

	finished  bool
	abandoned bool
}

// Index is the number of bytes written so far, or blocksize+1 once
// overflowed (spec.md §3's overflow signal).
func (b *Block) Index() int { return b.index }

// Overflowed reports whether this block ran out of its quota.
func (b *Block) Overflowed() bool { return b.index == b.blocksize+1 }

// PC returns the address the next appended byte will land at — the
// "GetJitPc" contract of spec.md §6.
func (b *Block) PC() uintptr {
	return b.seg.addr() + uintptr(b.min(b.index))
}

func (b *Block) min(n int) int {
	if n > b.blocksize {
		return b.blocksize
	}
	return n
}

// AppendBytes writes p to the block, pinning Index at blocksize+1 and
// discarding further writes once the quota is exceeded. This is a
// silent, non-panicking failure per spec.md §7 ("no host-code invariant
// broken").
func (b *Block) AppendBytes(p []byte) {
	if b.Overflowed() {
		return
	}
	if b.index+len(p) > b.blocksize {
		b.index = b.blocksize + 1
		return
	}
	b.seg.writeAt(b.index, p)
	b.index += len(p)
}

// Trace appends a logical Step, independent of whether the raw bytes
// fit — the optional trace logger always notes what the builder tried
// to do, matching blink's clog writing "OOM!" when the arena could not
// hold the instruction it was about to describe.
func (b *Block) Trace(s Step) {
	b.Steps = append(b.Steps, s)
}

// PendingTrace returns the Steps not yet flushed by the trace logger,
// and advances the flush cursor. Mirrors blink's FlushClog walking from
// jb->clog to jb->index.
func (b *Block) PendingTrace() []Step {
	pending := b.Steps[b.clog:]
	b.clog = len(b.Steps)
	return pending
}

// Bytes returns the bytes written for this block, for tests that assert
// on exact emitted byte sequences.
func (b *Block) Bytes() []byte {
	n := b.index
	if b.Overflowed() {
		n = b.blocksize
	}
	return b.seg.code[:n]
}
