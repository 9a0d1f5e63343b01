package idt

import (
	"kestrel/kernel/cpu"
	"kestrel/kernel/layout"
	"testing"
	"unsafe"

	"golang.org/x/sys/unix"

	"golang.org/x/arch/x86/x86asm"
)

// mockFlags stubs out the PUSHFQ/CLI pair Set brackets its update with;
// executing CLI at CPL 3 would fault the test process.
func mockFlags(t *testing.T) {
	t.Helper()
	saveFlagsFn = func() uintptr { return 0 }
	restoreFlagsFn = func(uintptr) {}
	t.Cleanup(func() {
		saveFlagsFn = cpu.SaveFlagsAndDisable
		restoreFlagsFn = cpu.RestoreFlags
	})
}

// setupPhysical backs the IDT/thunk regions with a real mmap'd buffer so
// buildThunks and buildIDT can run under go test the way vmm's and pfdb's
// tests do; Init itself is never called, since it executes OUT and LIDT.
func setupPhysical(t *testing.T) {
	t.Helper()

	const span = 4 * 1024 * 1024
	buf, err := unix.Mmap(-1, 0, span, unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		t.Fatalf("mmap: %v", err)
	}
	t.Cleanup(func() {
		unix.Munmap(buf)
		backingOffset = 0
	})

	backingOffset = uintptr(unsafe.Pointer(&buf[0]))
}

func TestBuildThunksSelectsDispatcherByVector(t *testing.T) {
	setupPhysical(t)
	buildThunks()

	table := thunkTable()

	for _, v := range []int{0x00, 0x01, 0x03, 0x20} {
		if hasErrorCode(Vector(v)) {
			t.Fatalf("test vector %#x unexpectedly classified as error-code vector", v)
		}
		assertThunkTargets(t, table, v, commonDispatcherAddr()+backingOffset)
	}

	for _, v := range errorCodeVectors {
		assertThunkTargets(t, table, int(v), specialDispatcherAddr()+backingOffset)
	}
}

// assertThunkTargets disassembles the 8-byte thunk for vector v and checks
// it decodes to NOP; PUSH imm8==v; JMP rel32 reaching wantTarget.
func assertThunkTargets(t *testing.T, table []byte, v int, wantTarget uintptr) {
	t.Helper()

	thunkAddr := uintptr(layout.ThunkTableAddr) + backingOffset + uintptr(v)*thunkSize
	code := table[v*thunkSize : v*thunkSize+thunkSize]

	off := 0
	nop, err := x86asm.Decode(code[off:], 64)
	if err != nil || nop.Op != x86asm.NOP {
		t.Fatalf("vector %#x: expected NOP at offset 0, got %v (err=%v)", v, nop, err)
	}
	off += nop.Len

	push, err := x86asm.Decode(code[off:], 64)
	if err != nil || push.Op != x86asm.PUSH {
		t.Fatalf("vector %#x: expected PUSH at offset %d, got %v (err=%v)", v, off, push, err)
	}
	if imm, ok := push.Args[0].(x86asm.Imm); !ok || int64(imm) != int64(v) {
		t.Fatalf("vector %#x: PUSH operand = %v, want %#x", v, push.Args[0], v)
	}
	off += push.Len

	jmp, err := x86asm.Decode(code[off:], 64)
	if err != nil || jmp.Op != x86asm.JMP {
		t.Fatalf("vector %#x: expected JMP at offset %d, got %v (err=%v)", v, off, jmp, err)
	}
	rel, ok := jmp.Args[0].(x86asm.Rel)
	if !ok {
		t.Fatalf("vector %#x: JMP operand is not a relative displacement: %v", v, jmp.Args[0])
	}
	gotTarget := thunkAddr + uintptr(off) + uintptr(jmp.Len) + uintptr(rel)
	if gotTarget != wantTarget {
		t.Fatalf("vector %#x: JMP targets %#x, want %#x", v, gotTarget, wantTarget)
	}
}

func TestBuildIDTPointsEveryDescriptorAtItsThunk(t *testing.T) {
	setupPhysical(t)
	buildThunks()
	buildIDT()

	table := idtTable()
	for v := 0; v < vectorCount; v++ {
		e := table[v]
		got := uintptr(e.offsetLow) | uintptr(e.offsetMid)<<16 | uintptr(e.offsetHigh)<<32
		want := uintptr(layout.ThunkTableAddr) + backingOffset + uintptr(v)*thunkSize
		if got != want {
			t.Fatalf("vector %d: descriptor points at %#x, want thunk at %#x", v, got, want)
		}
		if e.selector != kernelCodeSelector {
			t.Fatalf("vector %d: selector = %#x, want %#x", v, e.selector, kernelCodeSelector)
		}

		wantType := gateTypeInterrupt
		if v >= 32 {
			wantType = gateTypeTrap
		}
		if e.typeAttr != wantType {
			t.Fatalf("vector %d: type/attr = %#x, want %#x", v, e.typeAttr, wantType)
		}
	}

	if table[vectorNMI].ist != 1 {
		t.Fatalf("NMI IST = %d, want 1", table[vectorNMI].ist)
	}
	if table[vectorDoubleFault].ist != 2 {
		t.Fatalf("double-fault IST = %d, want 2", table[vectorDoubleFault].ist)
	}
	if table[vectorMachineCheck].ist != 3 {
		t.Fatalf("machine-check IST = %d, want 3", table[vectorMachineCheck].ist)
	}
}

func TestSetAndGetRoundTrip(t *testing.T) {
	mockFlags(t)

	called := false
	Set(0x21, func(ctx *Context) { called = true })
	defer Set(0x21, nil)

	h := Get(0x21)
	if h == nil {
		t.Fatal("Get returned nil after Set")
	}
	h(&Context{})
	if !called {
		t.Fatal("handler installed by Set was not the one Get returned")
	}
}

func TestRouteDispatchesByVector(t *testing.T) {
	mockFlags(t)

	var gotVector uint64 = 0xff
	Set(0x0E, func(ctx *Context) { gotVector = ctx.Vector })
	defer Set(0x0E, nil)

	route(&Context{Vector: 0x0E})

	if gotVector != 0x0E {
		t.Fatalf("handler saw vector %#x, want 0x0e", gotVector)
	}
}
