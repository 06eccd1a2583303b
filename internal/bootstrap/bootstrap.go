// Package bootstrap builds the guest process's initial stack image:
// argv, envp, and the AT_EXECFN auxiliary vector entry, laid out the
// way the ELF/APE loader the guest runs under expects to find them at
// process entry (spec.md §4.4).
//
// Grounded directly on original_source/blink/argv.c's LoadArgv: the
// same push-strings-then-push-pointer-array-then-align algorithm,
// transcribed to Go with a Stack collaborator standing in for
// blink's CopyToUser/m->sp pair so this package does not need to
// import internal/machine.
package bootstrap

// LINUX_AT_EXECFN in blink/argv.c — the auxv key carrying the absolute
// path to the program being executed, the one auxv entry this minimal
// bootstrap supplies (spec.md §4.4 only requires enough of a stack
// image for the loader to find argv/envp/execfn; the rest of a real
// auxv — AT_PAGESZ, AT_RANDOM, AT_HWCAP, and so on — belongs to the
// ELF loader itself, an external collaborator out of scope here).
const execfnAuxvKey = 31

// stackAlign is the x86_64 / arm64 SysV ABI's required stack alignment
// at process entry.
const stackAlign = 16

// Stack is the minimal machine-facing contract LoadArgv needs: read and
// write the guest stack pointer, and copy bytes into guest memory at an
// address relative to it. internal/machine.Machine satisfies this via
// small adapter methods; tests can supply an in-memory fake.
type Stack interface {
	GetSP() int64
	SetSP(sp int64)
	CopyToUser(addr int64, data []byte) error
}

// pushString copies s (NUL-terminated) onto the guest stack, below the
// current stack pointer, and returns the address it landed at —
// blink's PushString.
func pushString(m Stack, s string) (int64, error) {
	b := append([]byte(s), 0)
	sp := m.GetSP() - int64(len(b))
	m.SetSP(sp)
	if err := m.CopyToUser(sp, b); err != nil {
		return 0, err
	}
	return sp, nil
}

// LoadArgv constructs the guest's initial stack image for a process
// named prog, with the given argv and envp strings, and writes it
// below the stack's current top. It is blink's LoadArgv: push every
// string, then build and push the {argc, argv[], NULL, envp[], NULL,
// auxv pairs..., NULL, NULL} pointer block, aligning the final stack
// pointer to stackAlign.
//
// diZero is a small compatibility hook: blink zeroes the guest DI
// register ("or ape detects freebsd") immediately after computing the
// new stack pointer; callers that model DI pass a setter here, callers
// that don't can pass nil.
func LoadArgv(m Stack, prog string, args, vars []string, diZero func()) error {
	naux := 1
	nenv := len(vars)
	narg := len(args)
	nall := 1 + narg + 1 + nenv + 1 + (naux+1)*2

	block := make([]int64, nall)
	p := nall

	p--
	block[p] = 0
	p--
	block[p] = 0

	execfn, err := pushString(m, prog)
	if err != nil {
		return err
	}
	p--
	block[p] = execfn
	p--
	block[p] = execfnAuxvKey

	p--
	block[p] = 0
	for i := nenv - 1; i >= 0; i-- {
		addr, err := pushString(m, vars[i])
		if err != nil {
			return err
		}
		p--
		block[p] = addr
	}

	p--
	block[p] = 0
	for i := narg - 1; i >= 0; i-- {
		addr, err := pushString(m, args[i])
		if err != nil {
			return err
		}
		p--
		block[p] = addr
	}

	p--
	block[p] = int64(narg)

	sp := m.GetSP()
	size := int64(nall) * 8
	for (sp-size)&(stackAlign-1) != 0 {
		sp--
	}
	sp -= size
	m.SetSP(sp)
	if diZero != nil {
		diZero()
	}

	bytes := make([]byte, nall*8)
	for i, word := range block {
		u := uint64(word)
		for b := 0; b < 8; b++ {
			bytes[i*8+b] = byte(u >> (8 * b))
		}
	}
	return m.CopyToUser(sp, bytes)
}
