// Package codeseg implements the JIT block primitive spec.md §3 treats
// as an assumed primitive: a contiguous mutable byte arena with a
// monotonic index, a start snapshot, a blocksize capacity, and a clog
// cursor, plus StartJit/AppendJit*/FinishJit/AbandonJit.
//
// Grounded on tetratelabs/wazero's actual production engine,
// internal/engine/compiler/engine.go's addCompiledFunction: one
// platform.MmapCodeSegment(len(code)) call per compiled unit, sized
// exactly to that unit's own code, never grown or relocated after
// installation. wazero's internal/asm.CodeSegment/Buffer do grow a
// single mapping via reallocate-copy-remap, but that type is only ever
// exercised from that package's own tests in the teacher repo, not
// from the production compiler — and reallocating the arena backing
// already-finalized, already-hooked paths would silently invalidate
// every host address previously handed to the hook table, which
// conflicts with spec.md §9's cyclic-ownership invariant ("the arena's
// finalized blocks must outlive all hook-table entries that point into
// them"). So each Block here gets its own fixed, exact-size mapping at
// Start, matching the engine's actual (not its test-only) strategy:
// an address returned by Finish is permanent until that Block's own
// mapping is explicitly unmapped (by Abandon, or by an Arena-wide
// Reset/Close).
package codeseg

import "fmt"

// segment is one exact-size, independently mapped executable region,
// owned by exactly one Block for its entire lifetime.
type segment struct {
	code []byte
}

func newSegment(size int) (*segment, error) {
	b, err := mmapAlloc(size)
	if err != nil {
		return nil, err
	}
	return &segment{code: b}, nil
}

func (s *segment) addr() uintptr { return segAddr(s.code) }

func (s *segment) writeAt(off int, p []byte) {
	copy(s.code[off:], p)
}

func (s *segment) unmap() error {
	if s.code == nil {
		return nil
	}
	err := mmapFree(s.code)
	s.code = nil
	return err
}

func mapBlockSegment(size int) *segment {
	s, err := newSegment(size)
	if err != nil {
		// Matches wazero's own addCompiledFunction: mapping a single
		// compiled unit failing means the host is out of memory, which
		// this core has no recovery path for (unlike a path running out
		// of its own blocksize quota, an expected, handled condition).
		panic(fmt.Errorf("codeseg: failed to map %d-byte JIT block: %w", size, err))
	}
	return s
}
