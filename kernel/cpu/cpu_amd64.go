// Package cpu exposes the small set of x86-64 instructions the core needs as
// narrowly-typed Go functions. Each one is implemented in cpu_amd64.s; the
// Go declaration here is just the calling-convention contract.
package cpu

var cpuidFn = CPUID

// EnableInterrupts executes STI.
func EnableInterrupts()

// DisableInterrupts executes CLI.
func DisableInterrupts()

// Halt executes HLT in an endless loop and never returns: an interrupt that
// wakes the processor is serviced, then the loop halts it again.
func Halt()

// RaiseFatal raises the software interrupt reserved for unrecoverable
// failures (vector 0xFF) and never returns; if the interrupt somehow
// returns (no IDT loaded yet), it halts in place.
func RaiseFatal()

// SaveFlagsAndDisable executes PUSHFQ; CLI and returns the saved RFLAGS so
// the caller can restore the prior interrupt-enable state with
// RestoreFlags. Used by idt.Set to make table updates atomic
// with respect to interrupt delivery.
func SaveFlagsAndDisable() (flags uintptr)

// RestoreFlags executes POPFQ with the given flags pushed back onto the
// stack, restoring whatever interrupt-enable state SaveFlagsAndDisable
// observed.
func RestoreFlags(flags uintptr)

// InvalidatePage executes INVLPG for the given virtual address.
func InvalidatePage(virtAddr uintptr)

// WriteCR3 loads the given physical address (a PML4 root) into CR3,
// flushing the non-global TLB entries.
func WriteCR3(physAddr uintptr)

// ReadCR3 returns the physical address currently loaded in CR3.
func ReadCR3() uintptr

// ReadCR2 returns the faulting linear address recorded by the last page
// fault.
func ReadCR2() uint64

// CPUID executes CPUID with EAX=leaf, ECX=subleaf and returns the resulting
// EAX/EBX/ECX/EDX values.
func CPUID(leaf, subleaf uint32) (eax, ebx, ecx, edx uint32)

// RDMSR reads the given model-specific register.
func RDMSR(msr uint32) uint64

// WRMSR writes value to the given model-specific register.
func WRMSR(msr uint32, value uint64)

// OutB writes a byte to the given I/O port.
func OutB(port uint16, value uint8)

// InB reads a byte from the given I/O port.
func InB(port uint16) uint8

// IsIntel returns true if CPUID leaf 0 reports the "GenuineIntel" vendor
// string.
func IsIntel() bool {
	_, ebx, ecx, edx := cpuidFn(0, 0)
	return ebx == 0x756e6547 && // "Genu"
		edx == 0x49656e69 && // "ineI"
		ecx == 0x6c65746e // "ntel"
}
