// Package trace is the optional CLOG-equivalent diagnostic logger
// spec.md §9 notes as a design option: a human-readable record of what
// the path builder staged, useful for debugging miscompiled paths but
// never consulted by the builder itself.
//
// Grounded on original_source/blink/path.c's SetupClog/WriteClog/
// BeginClog/FlushClog: an fd opened once with O_CLOEXEC, written to
// at path-begin and path-finish boundaries, silently skipped when no
// sink is configured. This package replaces blink's disassemble-the-
// bytes-back-out step (FlushClog re-decoding jb->addr+jb->clog..index)
// with codeseg.Block's already-recorded Steps, since this core's
// emitter knows exactly what it wrote without needing a disassembler.
package trace

import (
	"fmt"
	"io"

	"github.com/x64emu/pathjit/internal/codeseg"
)

// Sink receives trace lines. Tests inject a bytes.Buffer or similar in
// place of the file SetupClog would open in blink, per spec.md §6's
// note that the trace logger is an injectable collaborator, not a
// hardcoded file path.
type Sink interface {
	io.Writer
}

// Logger writes path-builder activity to a Sink. A nil Logger (or one
// with a nil Sink) is a no-op, matching blink's g_clog-is-zero early
// return in WriteClog.
type Logger struct {
	Sink Sink
}

// New constructs a Logger writing to sink. Passing a nil sink is valid
// and yields a Logger whose methods are no-ops.
func New(sink Sink) *Logger {
	return &Logger{Sink: sink}
}

func (l *Logger) writef(format string, args ...any) {
	if l == nil || l.Sink == nil {
		return
	}
	fmt.Fprintf(l.Sink, format, args...)
}

// BeginPath records the start of a new path at guest PC pc, landing at
// host address entry — blink's BeginClog.
func (l *Logger) BeginPath(pc uint64, entry uintptr) {
	l.writef("\nJit_%x:\n", entry)
	_ = pc
}

// FlushBlock writes every Step not yet flushed from b, or a single
// "OOM!" line if b overflowed without finishing — blink's FlushClog.
func (l *Logger) FlushBlock(b *codeseg.Block) {
	if b == nil {
		return
	}
	if b.Overflowed() {
		l.writef("/\tOOM!\n")
		b.PendingTrace()
		return
	}
	for _, s := range b.PendingTrace() {
		if s.Target != "" {
			l.writef("\t%s %s\n", s.Op, s.Target)
		} else {
			l.writef("\t%s\n", s.Op)
		}
	}
}

// Abandoned records that the in-progress path was dropped — blink's
// "/\tABANDONED\n" line in AbandonPath.
func (l *Logger) Abandoned() {
	l.writef("/\tABANDONED\n")
}

// FlushedSkew records that a pending IP skew was flushed early —
// blink's "/\tflush skew\n" line.
func (l *Logger) FlushedSkew() {
	l.writef("/\tflush skew\n")
}
