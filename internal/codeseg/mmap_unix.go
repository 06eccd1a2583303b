//go:build unix

package codeseg

import (
	"syscall"
	"unsafe"
)

// mmapAlloc allocates a fresh PROT_EXEC mapping sized exactly to want.
// Real JIT arenas cannot simply append to a Go slice because the
// runtime's regular heap is never executable; this mirrors
// tetratelabs/wazero/internal/platform's Mmap wrapping of the same
// syscall (one call per compiled unit, sized exactly, never grown), and
// blink/map.c's Mmap/Mprotect wrappers which this core's original_source
// supplement is grounded on.
func mmapAlloc(want int) ([]byte, error) {
	return syscall.Mmap(-1, 0, want, syscall.PROT_READ|syscall.PROT_WRITE|syscall.PROT_EXEC, syscall.MAP_PRIVATE|syscall.MAP_ANON)
}

func mmapFree(b []byte) error {
	if b == nil {
		return nil
	}
	return syscall.Munmap(b)
}

func segAddr(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}
