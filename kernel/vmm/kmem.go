package vmm

import (
	"kestrel/kernel"
	"kestrel/kernel/layout"
	"kestrel/kernel/mem"
	"kestrel/kernel/pmap"
)

// Init builds the kernel's own page table: an identity mapping of every
// PMAP region except Bad and Unmapped ones and Reserved ones starting at or
// above the highest Usable address, each region mapped at the largest leaf
// size its alignment and remaining length allow.
//
// This runs before the PFDB exists, so interior table pages come from a raw
// bump allocator over the fixed scratch region the loader set aside at
// layout.KernelPageTableAddr rather than from pgAlloc; see AddressSpace's
// ScratchBump field.
func Init() *kernel.Error {
	kernelSpace = AddressSpace{
		PRoot:       layout.KernelPageTableAddr,
		VNext:       layout.KernelPageTableAddr + uintptr(mem.PageSize),
		VTerm:       layout.KernelPageTableAddr + layout.KernelPageTableScratchSize,
		ScratchBump: true,
	}
	zeroTable(kernelSpace.PRoot)

	for _, r := range pmap.Get() {
		flags, ok := cacheFlags(r.Type)
		if !ok {
			continue
		}
		// Reserved tail regions above the highest Usable address (firmware
		// ROM shadows, high MMIO holes) stay unmapped.
		if r.Type == pmap.Reserved && r.Addr >= pmap.LastUsable() {
			continue
		}
		if err := identityMap(&kernelSpace, uintptr(r.Addr), uintptr(r.Size), flags); err != nil {
			return err
		}
	}

	return nil
}

// cacheFlags returns the PTE flags KMEM maps a region type with, and false
// for region types that are deliberately left unmapped.
func cacheFlags(t pmap.RegionType) (PTE, bool) {
	base := FlagPresent | FlagRW | FlagGlobal | FlagSystem
	switch t {
	case pmap.Usable, pmap.Reserved, pmap.Acpi:
		return base, true
	case pmap.AcpiNvs, pmap.Uncached:
		return base | FlagPWT | FlagPCD, true
	case pmap.Bad, pmap.Unmapped:
		return 0, false
	default:
		return 0, false
	}
}

// identityMap maps [addr, addr+size) to itself, choosing a 1 GiB leaf where
// both the address and the remaining length allow it, falling back to 2 MiB
// and finally 4 KiB leaves at the edges of the region.
func identityMap(pt *AddressSpace, addr, size uintptr, flags PTE) *kernel.Error {
	end := addr + size
	for addr < end {
		remaining := end - addr
		var err *kernel.Error
		switch {
		case mem.IsAligned(addr, mem.HugePageSize) && remaining >= uintptr(mem.HugePageSize):
			_, err = upsertAt(pt, addr, addr, 1, flags|FlagPS)
			addr += uintptr(mem.HugePageSize)
		case mem.IsAligned(addr, mem.LargePageSize) && remaining >= uintptr(mem.LargePageSize):
			_, err = upsertAt(pt, addr, addr, 2, flags|FlagPS)
			addr += uintptr(mem.LargePageSize)
		default:
			_, err = upsertAt(pt, addr, addr, 3, flags)
			addr += uintptr(mem.PageSize)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
