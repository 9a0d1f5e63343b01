// Package layout documents and exposes the fixed physical memory layout
// that the boot loader hands to the kernel core on entry. Every
// address here is a contract with the loader, not a tunable: changing one
// without updating the loader produces a kernel that boots into garbage.
package layout

// Fixed physical addresses and sizes established by the boot loader before
// control reaches the core. All kernel packages that need to know where a
// structure lives read these constants rather than deriving the address
// some other way.
const (
	// IDTAddr is the physical address of the 256-entry, 16-byte-descriptor
	// interrupt descriptor table.
	IDTAddr = 0x00001000
	// IDTSize is the size in bytes of the IDT region.
	IDTSize = 0x1000

	// ISRTableAddr is the physical address of the 256-entry ISR
	// function-pointer table.
	ISRTableAddr = 0x00002000
	// ISRTableSize is the size in bytes of the ISR function-pointer table.
	ISRTableSize = 0x800

	// ThunkTableAddr is the physical address of the 256 eight-byte
	// generated ISR thunks (with overflow space for alignment).
	ThunkTableAddr = 0x00002800
	// ThunkTableSize is the size in bytes reserved for thunks.
	ThunkTableSize = 0x800

	// GDTAddr is the physical address of the GDT copied in by the loader.
	GDTAddr = 0x00003000

	// TSSAddr is the physical address of the 64-bit TSS.
	TSSAddr = 0x00003100

	// BootPageTableAddr is the physical address of the boot page table
	// (PML4/PDPT/PDT/PT) that CR3 points to on entry.
	BootPageTableAddr = 0x00010000
	// BootPageTableSize is the size in bytes of the boot page table region.
	BootPageTableSize = 0x10000

	// KernelPageTableAddr is the physical address of the fixed root PML4
	// that the kernel's own page table hierarchy (built by KMEM) uses.
	KernelPageTableAddr = 0x00020000
	// KernelPageTableScratchSize is the size in bytes of the bump-allocated
	// interior-table scratch region backing the kernel page table.
	KernelPageTableScratchSize = 0x50000

	// PMapAddr is the physical address of the PMAP singleton
	// (count, last_usable, then regions[]).
	PMapAddr = 0x00070000

	// NMIStackAddr, DFStackAddr and MCStackAddr are the bases of the three
	// dedicated IST stacks used by NMI, double fault and machine check.
	NMIStackAddr = 0x0008A000
	DFStackAddr  = 0x0008B000
	MCStackAddr  = 0x0008C000
	// ISTStackSize is the size in bytes of each IST stack pair slot.
	ISTStackSize = 0x800

	// VGAAddr and VGASize describe the VGA MMIO hole.
	VGAAddr = 0x000A0000
	VGASize = 0x00020000

	// InterruptStackAddr is the base of the stack used while servicing
	// interrupts on IST0 (the default kernel stack during ISR execution).
	InterruptStackAddr = 0x00100000
	InterruptStackSize = 0x000FF000

	// KernelStackAddr is the base of the kernel's own execution stack.
	KernelStackAddr = 0x00200000
	KernelStackSize = 0x00100000

	// KernelImageBase is the physical load address of the kernel image;
	// KernelEntryAddr is the address of its entry point.
	KernelImageBase = 0x00300000
	KernelEntryAddr = 0x00301000

	// ACPIPoolSize bounds the 48 KiB scratch pool the ACPI walker is
	// permitted to extend the boot page table into.
	ACPIPoolSize = 48 * 1024

	// ACPIPoolAddr is the base of that pool: the unused tail of the boot
	// page table region, ending exactly where the kernel page table's own
	// scratch region begins.
	ACPIPoolAddr = KernelPageTableAddr - ACPIPoolSize
)

// ACPIScanLow, ACPIScanHigh bound the two BIOS regions scanned for the RSDP
// signature.
const (
	ACPIScanLowStart  = 0x9F800
	ACPIScanLowEnd    = 0xA0000
	ACPIScanHighStart = 0xC0000
	ACPIScanHighEnd   = 0x100000
)

// KernelImageEnd is the first physical address past the loaded kernel image.
// Unlike the other addresses in this file it is not a fixed constant: the
// linker computes it from the final image size and the loader patches it in
// before jumping to KernelEntryAddr. It defaults to a conservative estimate
// so that packages built against this core without a real loader still seed
// pmap.init with a sane Reserved region.
var KernelImageEnd uintptr = KernelImageBase + 0x100000
