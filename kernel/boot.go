package kernel

// Order returns the bring-up call sequence in pipeline order: PMAP, ACPI,
// KMEM, PFDB, activate, IDT. The caller (the loader's Go entry stub, which
// runs once the CPU is in long mode at KernelEntryAddr) is expected to call
// each step in turn and treat any non-nil error as fatal.
//
// The order is load-bearing: PMAP must be normalized before anything reads
// it, the ACPI walker needs the (still loader-owned) boot page table before
// KMEM replaces it, and the kernel's own page table must be active before
// the PFDB-backed paging API or interrupts can be used. Each step lives in
// the corresponding package's own Init function; this is deliberately just
// the call sequence, not a reimplementation of any of it.
func Order() []string {
	return []string{
		"pmap.Init",
		"acpi.Init",
		"vmm.Init",
		"pfdb.Init",
		"vmm.Activate(nil)",
		"idt.Init",
		"cpu.EnableInterrupts",
	}
}
