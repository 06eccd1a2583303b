package emit

import (
	"encoding/binary"

	"github.com/x64emu/pathjit/internal/codeseg"
)

// arm64Enter/arm64Leave transcribe original_source/blink/path.c's
// aarch64 kEnter/kLeave u32 tables (spec.md §6) as little-endian bytes:
// pre-index stp x29,x30,[sp,#-64]!; x29=sp; spill x19..x24 in three
// pair stores; move x0 (machine pointer) into x19 ("sav0").
var arm64EnterWords = []uint32{
	0xa9bc7bfd, // stp x29, x30, [sp, #-64]!
	0x910003fd, // mov x29, sp
	0xa90153f3, // stp x19, x20, [sp, #16]
	0xa9025bf5, // stp x21, x22, [sp, #32]
	0xa90363f7, // stp x23, x24, [sp, #48]
	0xaa0003f3, // mov x19, x0
}

var arm64LeaveWords = []uint32{
	0xa94153f3, // ldp x19, x20, [sp, #16]
	0xa9425bf5, // ldp x21, x22, [sp, #32]
	0xa94363f7, // ldp x23, x24, [sp, #48]
	0xa8c47bfd, // ldp x29, x30, [sp], #64
}

func wordsToBytes(words []uint32) []byte {
	b := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(b[i*4:], w)
	}
	return b
}

// arm64ArgRegs: x1, x2, x3 hold the opcode operand triple; x0 is
// reserved for the machine pointer.
var arm64ArgRegs = [3]uint32{1, 2, 3}

const arm64Scratch uint32 = 9 // x9: caller-saved, unused by the ABI contexts this core cares about

type arm64Emitter struct{}

func (arm64Emitter) Arch() string      { return "arm64" }
func (arm64Emitter) PrologueSize() int { return len(arm64EnterWords) * 4 }
func (arm64Emitter) Enter() []byte     { return wordsToBytes(arm64EnterWords) }
func (arm64Emitter) Leave() []byte     { return wordsToBytes(arm64LeaveWords) }

func (e arm64Emitter) EmitEnter(b *codeseg.Block) {
	b.AppendBytes(e.Enter())
	b.Trace(codeseg.Step{Op: "enter"})
}

// movImm64Words builds the word sequence that loads a 64-bit immediate
// into register Rd via one MOVZ and up to three MOVK instructions, the
// standard AArch64 idiom for loading an arbitrary 64-bit constant (e.g.
// a host code address) into a register. It has no side effects on b so
// callers can both emit it and, independently, count how many words it
// will occupy (EmitInlineStashCheck needs the count to size its branch
// before any of this is appended).
func movImm64Words(rd uint32, imm uint64) []uint32 {
	var words []uint32
	// MOVZ Xd, #imm[15:0]
	words = append(words, 0xD2800000|(uint32(imm&0xffff)<<5)|rd)
	for hw := 1; hw < 4; hw++ {
		chunk := uint32((imm >> (16 * hw)) & 0xffff)
		if chunk == 0 {
			continue
		}
		// MOVK Xd, #chunk, LSL #(16*hw)
		words = append(words, 0xF2800000|(uint32(hw)<<21)|(chunk<<5)|rd)
	}
	return words
}

// arm64MovImm64 emits the word sequence movImm64Words builds.
func arm64MovImm64(b *codeseg.Block, rd uint32, imm uint64) {
	b.AppendBytes(wordsToBytes(movImm64Words(rd, imm)))
}

// movReg encodes MOV Xd, Xm as its canonical alias ORR Xd, XZR, Xm.
func movReg(dst, src uint32) uint32 {
	return 0xAA0003E0 | (src << 16) | dst
}

func (arm64Emitter) EmitCall(b *codeseg.Block, target CallTarget) {
	arm64MovImm64(b, arm64Scratch, uint64(target.Addr))
	// BLR Xn
	blr := 0xD63F0000 | (arm64Scratch << 5)
	b.AppendBytes(wordsToBytes([]uint32{blr}))
	b.Trace(codeseg.Step{Op: "call", Target: target.Name})
}

func (arm64Emitter) EmitJump(b *codeseg.Block, target uintptr) {
	arm64MovImm64(b, arm64Scratch, uint64(target))
	// BR Xn
	br := 0xD61F0000 | (arm64Scratch << 5)
	b.AppendBytes(wordsToBytes([]uint32{br}))
	b.Trace(codeseg.Step{Op: "jmp", Args: []uint64{uint64(target)}})
}

func (arm64Emitter) EmitRet(b *codeseg.Block) {
	// RET X30
	b.AppendBytes(wordsToBytes([]uint32{0xD65F03C0}))
	b.Trace(codeseg.Step{Op: "ret"})
}

func (arm64Emitter) EmitRestoreMachinePointer(b *codeseg.Block) {
	// mov x0, x19 (sav0 -> arg0)
	b.AppendBytes(wordsToBytes([]uint32{movReg(0, 19)}))
	b.Trace(codeseg.Step{Op: "mov sav0->arg0"})
}

func (arm64Emitter) EmitSetArg(b *codeseg.Block, slot ArgSlot, imm uint64) {
	arm64MovImm64(b, arm64ArgRegs[slot], imm)
	b.Trace(codeseg.Step{Op: "set arg", Args: []uint64{uint64(slot), imm}})
}

func (arm64Emitter) SupportsInlineStashCheck() bool { return true }

// EmitInlineStashCheck emits blink's aarch64 sequence: restore the
// machine pointer, load stashaddr, and skip the call with a cbz-based
// branch when it is zero (spec.md §4.3: "or two instructions
// (aarch64)" describes the common case, but the branch must skip
// however many words the call sequence actually occupies). EmitCall's
// arm64MovImm64 emits 1-4 words depending on how many 16-bit chunks of
// commit.Addr are non-zero, so the skip distance is computed from the
// real target address instead of assumed, mirroring the equivalent fix
// to amd64's EmitInlineStashCheck recomputing its call length instead
// of reusing a hardcoded one.
func (e arm64Emitter) EmitInlineStashCheck(b *codeseg.Block, stashOffset uintptr, commit CallTarget) {
	if err := checkInlineOffset(stashOffset); err != nil {
		panic(err)
	}
	e.EmitRestoreMachinePointer(b)
	if stashOffset%8 != 0 {
		panic("emit: arm64 inline stash check requires an 8-byte-aligned offset")
	}
	// LDR x1, [x0, #stashOffset]
	ldr := 0xF9400001 | (uint32(stashOffset/8) << 10)
	// callWords is movImm64Words' words plus the trailing BLR, i.e. the
	// exact instruction count EmitCall(b, commit) is about to append.
	callWords := len(movImm64Words(arm64Scratch, uint64(commit.Addr))) + 1
	// CBZ x1, +(callWords+1): the CBZ offset counts words from the CBZ
	// itself, so callWords+1 lands just past the call sequence below
	// (skipping it when stashaddr==0).
	cbz := 0xB4000001 | (uint32(callWords+1) << 5)
	b.AppendBytes(wordsToBytes([]uint32{ldr, cbz}))
	e.EmitCall(b, commit)
	b.Trace(codeseg.Step{Op: "inline stash check", Target: commit.Name})
}
