package kernel

import (
	"testing"
	"unsafe"
)

func TestErrorString(t *testing.T) {
	err := &Error{Module: "pmap", Message: "region table exhausted"}
	if got, want := err.Error(), "[pmap] region table exhausted"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}

func TestMemset(t *testing.T) {
	for _, size := range []int{0, 1, 7, 64, 4096} {
		buf := make([]byte, size+2)
		buf[len(buf)-1] = 0xAA

		if size > 0 {
			Memset(uintptr(unsafe.Pointer(&buf[1])), 0x5F, uintptr(size))
		} else {
			Memset(0, 0x5F, 0)
		}

		for i := 1; i <= size; i++ {
			if buf[i] != 0x5F {
				t.Fatalf("size %d: byte %d = %#x, want 0x5f", size, i, buf[i])
			}
		}
		if buf[0] != 0 || buf[len(buf)-1] != 0xAA {
			t.Fatalf("size %d: Memset wrote outside its range", size)
		}
	}
}

func TestOrderSequencesMemoryBeforeInterrupts(t *testing.T) {
	steps := Order()

	index := func(name string) int {
		for i, s := range steps {
			if s == name {
				return i
			}
		}
		t.Fatalf("step %q missing from Order()", name)
		return -1
	}

	if !(index("pmap.Init") < index("acpi.Init") &&
		index("acpi.Init") < index("vmm.Init") &&
		index("vmm.Init") < index("pfdb.Init") &&
		index("pfdb.Init") < index("idt.Init")) {
		t.Fatalf("bring-up steps out of order: %v", steps)
	}
}
