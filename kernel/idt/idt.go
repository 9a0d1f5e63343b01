// Package idt builds the interrupt descriptor table and the generic ISR
// dispatcher: 256 generated per-vector thunks, a common
// dispatcher that preserves the full register file, and a special variant
// for the six CPU exceptions that push their own error code.
//
// The dispatcher itself is authored in Plan 9 assembly (dispatch_amd64.s):
// exact register preservation and the final IRETQ are not expressible as
// portable Go, exactly as kernel/cpu resorts to assembly for privileged
// instructions the Go assembler has no mnemonic for.
package idt

import (
	"kestrel/kernel"
	"kestrel/kernel/cpu"
	"kestrel/kernel/layout"
	"unsafe"
)

const errModule = "idt"

// vectorCount is the fixed size of the IDT, the ISR table and the thunk
// table.
const vectorCount = 256

// Vector identifies one of the 256 interrupt/exception/IRQ slots.
type Vector uint8

// Exception vectors whose CPU-pushed frame includes an error code; their
// thunks jump to the special dispatcher instead of the common one.
var errorCodeVectors = [...]Vector{0x08, 0x0A, 0x0B, 0x0C, 0x0D, 0x0E}

// Exception vectors that must run on a dedicated IST stack.
const (
	vectorNMI          Vector = 0x02
	vectorDoubleFault  Vector = 0x08
	vectorMachineCheck Vector = 0x12
)

// VectorFatal is the software interrupt assertion failures raise (via
// cpu.RaiseFatal) to stop the CPU. Init installs a halting handler for it;
// callers may replace it with one that logs first.
const VectorFatal Vector = 0xFF

func hasErrorCode(v Vector) bool {
	for _, e := range errorCodeVectors {
		if e == v {
			return true
		}
	}
	return false
}

func istFor(v Vector) uint8 {
	switch v {
	case vectorNMI:
		return 1
	case vectorDoubleFault:
		return 2
	case vectorMachineCheck:
		return 3
	default:
		return 0
	}
}

// kernelCodeSelector is the GDT selector for ring-0 code, set up by the boot
// loader's GDT at layout.GDTAddr before the kernel ever runs.
const kernelCodeSelector uint16 = 0x08

const (
	gateTypeInterrupt uint8 = 0x8E // P=1, DPL=0, type=1110b (interrupt gate)
	gateTypeTrap      uint8 = 0x8F // P=1, DPL=0, type=1111b (trap gate)
)

// entry is one 16-byte IDT gate descriptor, laid out per the AMD64
// architecture manual.
type entry struct {
	offsetLow  uint16
	selector   uint16
	ist        uint8
	typeAttr   uint8
	offsetMid  uint16
	offsetHigh uint32
	reserved   uint32
}

func makeEntry(thunkAddr uintptr, selector uint16, ist uint8, typeAttr uint8) entry {
	return entry{
		offsetLow:  uint16(thunkAddr),
		selector:   selector,
		ist:        ist,
		typeAttr:   typeAttr,
		offsetMid:  uint16(thunkAddr >> 16),
		offsetHigh: uint32(thunkAddr >> 32),
	}
}

// Registers is the snapshot of general-purpose register values captured by
// the dispatcher, in the exact order the assembly pushes them.
type Registers struct {
	RAX, RBX, RCX, RDX uint64
	RSI, RDI, RBP      uint64
	R8, R9, R10, R11   uint64
	R12, R13, R14, R15 uint64
}

// Context is the interrupt_context the dispatcher builds on the stack
// before calling the registered handler: the saved GPRs, the vector and
// error code, and the CPU-pushed IRET frame. Its field order
// is a binding ABI shared with dispatch_amd64.s; do not reorder it without
// updating the assembly that constructs it.
type Context struct {
	Regs   Registers
	Error  uint64
	Vector uint64
	RIP    uint64
	CS     uint64
	RFlags uint64
	RSP    uint64
	SS     uint64
}

// Handler is a per-vector ISR. The dispatcher calls it with a pointer to the
// live context; modifications to Context are reflected in the registers and
// IRET frame the dispatcher restores before returning.
type Handler func(*Context)

var isrTable [vectorCount]Handler

// saveFlagsFn and restoreFlagsFn are mocked by tests, which cannot execute
// CLI at CPL 3.
var (
	saveFlagsFn    = cpu.SaveFlagsAndDisable
	restoreFlagsFn = cpu.RestoreFlags
)

// idtTable and thunkTable (thunk.go) are views over the fixed physical
// regions the loader reserved for them. The ISR table is not: isrTable is an
// ordinary package array, and nothing is placed at layout.ISRTableAddr.
func idtTable() *[vectorCount]entry {
	return (*[vectorCount]entry)(unsafe.Pointer(layout.IDTAddr + backingOffset))
}

// backingOffset translates a physical address into real backing memory, the
// same hook every other freestanding package in this core exposes. Zero on
// real hardware; tests point it at a buffer standing in for low memory.
var backingOffset uintptr

// SetBackingOffset points the IDT/thunk builder at simulated physical
// memory for tests.
func SetBackingOffset(off uintptr) { backingOffset = off }

// Init programs the 8259 PICs, builds the 256 thunks, builds the IDT and
// loads it.
func Init() *kernel.Error {
	picInit()
	buildThunks()
	buildIDT()
	isrTable[VectorFatal] = fatalHandler
	loadIDT(uintptr(layout.IDTAddr+backingOffset), vectorCount*16-1)
	return nil
}

// fatalHandler stops the CPU. It never acknowledges the interrupt or
// returns: there is nothing left to run.
func fatalHandler(*Context) {
	cpu.Halt()
}

func buildIDT() {
	table := idtTable()
	for v := 0; v < vectorCount; v++ {
		vec := Vector(v)
		typeAttr := gateTypeInterrupt
		if v >= 32 {
			typeAttr = gateTypeTrap
		}
		thunkAddr := uintptr(layout.ThunkTableAddr+backingOffset) + uintptr(v)*thunkSize
		table[v] = makeEntry(thunkAddr, kernelCodeSelector, istFor(vec), typeAttr)
	}
}

// loadIDT executes LIDT with a descriptor built on the fly; implemented in
// dispatch_amd64.s alongside the dispatcher since it needs the same
// privileged-instruction treatment as the rest of kernel/cpu.
func loadIDT(base uintptr, limit uint16)

// route is called by the assembly dispatcher tail once the full context has
// been assembled on the stack; it is the Go-callable boundary the assembly
// routes into after the register save.
func route(ctx *Context) {
	// PUSH imm8 sign-extends, so vectors >= 0x80 arrive with the upper bits
	// set; normalize before indexing.
	ctx.Vector &= 0xFF
	if h := isrTable[ctx.Vector]; h != nil {
		h(ctx)
	}
}

// Set installs fn as the handler for vector v, or clears it if fn is nil.
// The update runs with interrupts disabled so a handler
// swap is atomic with respect to interrupt delivery.
func Set(v Vector, fn Handler) {
	flags := saveFlagsFn()
	isrTable[v] = fn
	restoreFlagsFn(flags)
}

// Get returns the handler currently installed for v, or nil.
func Get(v Vector) Handler {
	return isrTable[v]
}
