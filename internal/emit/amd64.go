package emit

import (
	"encoding/binary"

	"github.com/x64emu/pathjit/internal/codeseg"
)

// amd64Enter/amd64Leave are transcribed byte-for-byte from
// original_source/blink/path.c's kEnter/kLeave tables (the same bytes
// spec.md §6 specifies): save rbp, set rbp=rsp, reserve 0x30 bytes,
// spill rbx/r12/r13/r14/r15 at [rbp-0x28..-0x08], move rdi (first
// argument, the machine pointer) into rbx ("sav0").
var amd64Enter = []byte{
	0x55,                         // push %rbp
	0x48, 0x89, 0xe5,             // mov %rsp,%rbp
	0x48, 0x83, 0xec, 0x30,       // sub $0x30,%rsp
	0x48, 0x89, 0x5d, 0xd8,       // mov %rbx,-0x28(%rbp)
	0x4c, 0x89, 0x65, 0xe0,       // mov %r12,-0x20(%rbp)
	0x4c, 0x89, 0x6d, 0xe8,       // mov %r13,-0x18(%rbp)
	0x4c, 0x89, 0x75, 0xf0,       // mov %r14,-0x10(%rbp)
	0x4c, 0x89, 0x7d, 0xf8,       // mov %r15,-0x08(%rbp)
	0x48, 0x89, 0xfb,             // mov %rdi,%rbx
}

var amd64Leave = []byte{
	0x4c, 0x8b, 0x7d, 0xf8, // mov -0x08(%rbp),%r15
	0x4c, 0x8b, 0x75, 0xf0, // mov -0x10(%rbp),%r14
	0x4c, 0x8b, 0x6d, 0xe8, // mov -0x18(%rbp),%r13
	0x4c, 0x8b, 0x65, 0xe0, // mov -0x20(%rbp),%r12
	0x48, 0x8b, 0x5d, 0xd8, // mov -0x28(%rbp),%rbx
	0x48, 0x83, 0xc4, 0x30, // add $0x30,%rsp
	0x5d,                   // pop %rbp
}

// amd64ArgRegs are the SysV argument registers used for the opcode
// operand triple passed to GetOp: rsi, rdx, rcx (rdi is reserved for
// the machine pointer, argument zero).
var amd64ArgRegs = [3]byte{0xbe, 0xba, 0xb9} // mov $imm, %rsi / %rdx / %rcx opcodes (0xB8+reg)

type amd64Emitter struct{}

func (amd64Emitter) Arch() string      { return "amd64" }
func (amd64Emitter) PrologueSize() int { return len(amd64Enter) }
func (amd64Emitter) Enter() []byte     { return append([]byte(nil), amd64Enter...) }
func (amd64Emitter) Leave() []byte     { return append([]byte(nil), amd64Leave...) }

func (e amd64Emitter) EmitEnter(b *codeseg.Block) {
	b.AppendBytes(e.Enter())
	b.Trace(codeseg.Step{Op: "enter"})
}

// movImm64 emits `mov $imm64, reg` where reg is the B8-based opcode byte
// for a SysV integer register (0xB8=rax .. 0xBF=rdi).
func movImm64(b *codeseg.Block, regOpcode byte, imm uint64) {
	code := make([]byte, 10)
	code[0] = 0x48 // REX.W
	code[1] = regOpcode
	binary.LittleEndian.PutUint64(code[2:], imm)
	b.AppendBytes(code)
}

func (amd64Emitter) EmitCall(b *codeseg.Block, target CallTarget) {
	// mov $target, %rax ; call %rax
	movImm64(b, 0xb8, uint64(target.Addr))
	b.AppendBytes([]byte{0xff, 0xd0})
	b.Trace(codeseg.Step{Op: "call", Target: target.Name})
}

func (amd64Emitter) EmitJump(b *codeseg.Block, target uintptr) {
	// mov $target, %rax ; jmp %rax
	movImm64(b, 0xb8, uint64(target))
	b.AppendBytes([]byte{0xff, 0xe0})
	b.Trace(codeseg.Step{Op: "jmp", Args: []uint64{uint64(target)}})
}

func (amd64Emitter) EmitRet(b *codeseg.Block) {
	b.AppendBytes([]byte{0xc3})
	b.Trace(codeseg.Step{Op: "ret"})
}

func (amd64Emitter) EmitRestoreMachinePointer(b *codeseg.Block) {
	// mov %rbx,%rdi  (sav0 -> arg0)
	b.AppendBytes([]byte{0x48, 0x89, 0xdf})
	b.Trace(codeseg.Step{Op: "mov sav0->arg0"})
}

func (amd64Emitter) EmitSetArg(b *codeseg.Block, slot ArgSlot, imm uint64) {
	movImm64(b, amd64ArgRegs[slot], imm)
	b.Trace(codeseg.Step{Op: "set arg", Args: []uint64{uint64(slot), imm}})
}

func (amd64Emitter) SupportsInlineStashCheck() bool { return true }

// EmitInlineStashCheck emits blink's amd64 sequence: restore the
// machine pointer, then `cmpq $0x0,off(%rdi)` followed by a short
// forward jump over the call when stashaddr is zero.
func (e amd64Emitter) EmitInlineStashCheck(b *codeseg.Block, stashOffset uintptr, commit CallTarget) {
	if err := checkInlineOffset(stashOffset); err != nil {
		panic(err)
	}
	e.EmitRestoreMachinePointer(b)
	code := []byte{
		0x48, 0x83, 0x7f, byte(stashOffset), 0x00, // cmpq $0x0, off(%rdi)
		0x74, 0x05, // jz rel8 (blink's +5; replaced below with this core's call length)
	}
	// Match blink's behavior of skipping exactly the encoded call
	// sequence: recompute the short-jump displacement from the actual
	// call encoding length instead of hardcoding +5, since this core's
	// call sequence (10-byte movabs + 2-byte call) is longer than
	// blink's single 5-byte relative call.
	callLen := 12
	code[len(code)-1] = byte(callLen)
	b.AppendBytes(code)
	e.EmitCall(b, commit)
	b.Trace(codeseg.Step{Op: "inline stash check", Target: commit.Name})
}
