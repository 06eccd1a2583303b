// Package purity implements spec.md §4.1's purity classifier: whether a
// decoded instruction's only observable effect on control state is
// IP += length, with no memory access or RIP-relative reference.
//
// Grounded directly on the IsPure switch in
// original_source/blink/path.c, reduced to the representative opcode
// subset decode.Mopcode names (see that package's doc comment for why
// the full ~150-entry x86 table isn't reproduced here).
package purity

import "github.com/x64emu/pathjit/internal/decode"

// unconditionallyPure holds opcodes whose only side effect is always
// IP += len, regardless of operand encoding.
var unconditionallyPure = map[decode.Mopcode]bool{
	decode.OpAluAlIbAdd: true,
	decode.OpAluRaxIvds: true,
	decode.OpNop:        true,
	decode.OpXchgZvqp:   true,
	decode.OpSahf:       true,
	decode.OpLahf:       true,
	decode.OpClc:        true,
	decode.OpStc:        true,
	decode.OpCmc:        true,
	decode.OpSalc:       true,
	decode.OpBswapZvqp:  true,
	decode.OpMovZvqpIvqp: true,
	decode.OpMovmskpsd:  true,
	decode.OpMovRaxOvqp:  true,
}

// registerConditionalPure holds opcodes that are pure only when ModR/M
// names a register operand (no memory access).
var registerConditionalPure = map[decode.Mopcode]bool{
	decode.OpAlub:          true,
	decode.OpMovEvqpGvqp:   true,
	decode.OpXchgGvqpEvqp:  true,
	decode.OpBsuwiCl:       true,
	decode.OpAluwTest:      true,
	decode.OpImulGvqpEvqp:  true,
	decode.OpCmove:         true,
	decode.OpSete:          true,
	decode.OpBsf:           true,
	decode.OpBsr:           true,
	decode.OpMovzbGvqpEb:   true,
	decode.OpMovsxdGdqpEd:  true,
	decode.OpDoubleShift:   true,
}

// IsPure reports whether d's only effect on control state is IP += len.
func IsPure(d decode.Decoded) bool {
	op := d.Mopcode()
	switch {
	case unconditionallyPure[op]:
		return true
	case registerConditionalPure[op]:
		return d.IsModrmRegister()
	case op == decode.OpLeaGvqpM:
		return !d.IsRipRelative()
	default:
		return false
	}
}
