// Package decode models the decoded-instruction descriptor spec.md §6
// treats as coming from an external collaborator (the instruction
// decoder, out of scope for this core). It only carries what the path
// builder and purity classifier actually consume: an opcode identifier,
// length, the modrm/rip-relative predicates, and the operand triple
// (rde, disp, uimm0) AddPath loads into the semantic op's call
// arguments.
//
// Grounded on original_source/blink/path.c and blink/machine.h's
// "P"/"A" macro convention (every op-builder function takes the packed
// rde plus disp and uimm0); Mopcode's numeric groups are transcribed
// from IsPure's switch in path.c.
package decode

// Mopcode identifies a micro-opcode the way blink's Mopcode(rde) does:
// a dense integer naming one decoded x86 instruction form.
type Mopcode uint16

// Opcode identifiers, grouped exactly as spec.md §4.1 groups them.
// Only a representative subset of blink's ~150 opcodes is named here —
// enough to exercise every classification rule the spec describes —
// rather than the full x86 opcode table, which belongs to the decoder,
// an out-of-scope external collaborator.
const (
	// Unconditionally pure.
	OpAluAlIbAdd Mopcode = iota
	OpAluRaxIvds
	OpNop
	OpXchgZvqp
	OpSahf
	OpLahf
	OpClc
	OpStc
	OpCmc
	OpSalc
	OpBswapZvqp
	OpMovZvqpIvqp
	OpMovmskpsd
	OpMovRaxOvqp

	// Pure iff ModR/M names a register (no memory operand).
	OpAlub
	OpMovEvqpGvqp
	OpXchgGvqpEvqp
	OpBsuwiCl
	OpAluwTest
	OpImulGvqpEvqp
	OpCmove
	OpSete
	OpBsf
	OpBsr
	OpMovzbGvqpEb
	OpMovsxdGdqpEd
	OpDoubleShift

	// LEA: pure iff not RIP-relative.
	OpLeaGvqpM

	// Everything else is impure (memory writes, branches, traps, I/O,
	// string ops, etc.) — represented by a few sentinels so tests
	// don't need to enumerate blink's remaining ~130 opcodes.
	OpCallNear
	OpJmpRel
	OpMovEvqpGvqpMem
	OpIoOut
)

// Decoded is the concrete, in-process stand-in for the decoder's
// descriptor. Every method it exposes matches an entry in spec.md §6's
// "Contract consumed from decoder" plus the operand triple AddPath
// needs.
type Decoded struct {
	Rde   uint64  // packed modrm/register/rex encoding, opaque to this core
	Op    Mopcode // Mopcode(rde)
	Len   uint8   // Oplength(rde)
	Disp  int32   // displacement operand
	Uimm0 uint64  // unsigned immediate operand

	ModrmRegister bool // IsModrmRegister(rde)
	RipRelative   bool // IsRipRelative(rde)
}

func (d Decoded) Oplength() uint8       { return d.Len }
func (d Decoded) Mopcode() Mopcode      { return d.Op }
func (d Decoded) IsModrmRegister() bool { return d.ModrmRegister }
func (d Decoded) IsRipRelative() bool   { return d.RipRelative }
