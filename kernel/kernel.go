// Package kernel provides the few primitives shared by every freestanding
// package in the core: the single error type and the raw memory fill that
// substitutes for libc's memset before any allocator exists.
package kernel

import (
	"reflect"
	"unsafe"
)

// Error is the core's only error representation. It deliberately carries no
// stack trace or wrapped cause: every failure here is either corrupt
// firmware data or a kernel bug, and the only two things a caller can do
// with it are log it and call kfmt.Panic.
type Error struct {
	Module  string
	Message string
}

func (e *Error) Error() string {
	return "[" + e.Module + "] " + e.Message
}

// Memset sets size bytes at addr to value using log2(size) copies instead
// of a byte-at-a-time loop, which pays off because its callers (the page
// zeroing under kernel/vmm) always hand it page-aligned, page-sized
// regions.
func Memset(addr uintptr, value byte, size uintptr) {
	if size == 0 {
		return
	}

	target := *(*[]byte)(unsafe.Pointer(&reflect.SliceHeader{
		Len:  int(size),
		Cap:  int(size),
		Data: addr,
	}))

	target[0] = value
	for index := uintptr(1); index < size; index *= 2 {
		copy(target[index:], target[:index])
	}
}
