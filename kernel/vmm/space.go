package vmm

import (
	"kestrel/kernel"
	"kestrel/kernel/cpu"
	"kestrel/kernel/mem"
	"kestrel/kernel/pfdb"
)

// AddressSpace is a handle on one 4-level page table: the physical root of the
// page table plus the bookkeeping needed to grow its interior tables.
//
// For every address space except the kernel's own, VRoot/VNext/VTerm bound
// a virtual window into which newly allocated interior table pages are
// self-mapped as they're created, so later code running in
// that address space can reach them by a known virtual address without ever
// deriving a physical-to-virtual offset. The kernel's own table is built
// before the PFDB exists, so it instead treats VNext/VTerm as a raw
// bump allocator over the fixed physical scratch region the loader set
// aside for it; ScratchBump selects that mode. The ACPI walker's boot-table
// space uses the same mode over its own fixed pool.
type AddressSpace struct {
	PRoot uintptr
	VRoot uintptr
	VNext uintptr
	VTerm uintptr

	// ScratchBump is set on the kernel's own address space while KMEM is
	// bootstrapping it, before the PFDB is available, and on the ACPI
	// walker's boot-table space.
	ScratchBump bool
}

// kernelSpace is the fixed kernel table built by kmem.go. Every other
// address space inherits its present PML4 entries.
var kernelSpace AddressSpace

// active tracks which address space's root is currently loaded in CR3. nil
// means the kernel table.
var active *AddressSpace

// Kernel returns the kernel's own address space handle.
func Kernel() *AddressSpace { return &kernelSpace }

// allocInterior returns the physical address of a freshly zeroed page to use
// as a new interior table node, either from the kernel's fixed scratch
// region or, for ordinary address spaces, from the page-frame database.
func allocInterior(pt *AddressSpace) (uintptr, *kernel.Error) {
	if pt.ScratchBump {
		if pt.VNext+uintptr(mem.PageSize) > pt.VTerm {
			return 0, &kernel.Error{Module: errModule, Message: "kernel page-table scratch exhausted"}
		}
		addr := pt.VNext
		zeroTable(addr)
		pt.VNext += uintptr(mem.PageSize)
		return addr, nil
	}
	return pgAlloc()
}

// pgAlloc allocates a frame from the PFDB and zeroes its contents.
func pgAlloc() (uintptr, *kernel.Error) {
	f, err := pfdb.Alloc()
	if err != nil {
		return 0, err
	}
	addr := f.Address()
	zeroTable(addr)
	return addr, nil
}

// pgFree decrements the frame's refcount, freeing it once it reaches zero.
func pgFree(addr uintptr) *kernel.Error {
	return pfdb.Unref(pfdb.FrameFromAddress(addr))
}

// upsertAt walks pt from the PML4 down to leafLevel, allocating any missing
// interior table along the way, then writes paddr|flags at leafLevel. It
// returns the physical addresses of any interior pages it had to allocate,
// in root-to-leaf order, so the caller can self-map them.
//
// leafLevel selects the leaf granularity: 1 for a 1 GiB PDPT leaf, 2 for a
// 2 MiB PDT leaf, 3 for an ordinary 4 KiB PT leaf.
func upsertAt(pt *AddressSpace, vaddr uintptr, paddr uintptr, leafLevel int, flags PTE) ([]uintptr, *kernel.Error) {
	var newPages []uintptr

	tableAddr := pt.PRoot
	for level := 0; level < leafLevel; level++ {
		tbl := tableAt(tableAddr)
		idx := levelIndex(vaddr, level)
		entry := tbl[idx]

		if !entry.Present() {
			child, err := allocInterior(pt)
			if err != nil {
				return nil, err
			}
			systemFlag := PTE(0)
			if pt.ScratchBump {
				systemFlag = FlagSystem
			}
			tbl[idx] = makeEntry(child, FlagPresent|FlagRW|FlagGlobal|systemFlag)
			if !pt.ScratchBump {
				newPages = append(newPages, child)
			}
			tableAddr = child
			continue
		}

		if entry.HasFlags(FlagPS) {
			return nil, &kernel.Error{Module: errModule, Message: "cannot descend through an existing huge-page leaf"}
		}

		tableAddr = entry.Addr()
	}

	tbl := tableAt(tableAddr)
	idx := levelIndex(vaddr, leafLevel)
	if tbl[idx].Present() && tbl[idx].HasFlags(FlagSystem) {
		return nil, &kernel.Error{Module: errModule, Message: "attempt to overwrite a SYSTEM page table entry"}
	}
	tbl[idx] = makeEntry(paddr, flags)

	return newPages, nil
}

// AddPTE upserts a 4 KiB mapping into pt. Any interior pages
// the traversal had to allocate are self-mapped into pt's own virtual
// window, advancing VNext; the self-map recursion is flattened
// into a work queue since it is bounded in practice to the handful of
// interior pages a single insert can create.
func AddPTE(pt *AddressSpace, vaddr, paddr uintptr, flags PTE) *kernel.Error {
	newPages, err := upsertAt(pt, vaddr, paddr, 3, flags)
	if err != nil {
		return err
	}

	pending := newPages
	for len(pending) > 0 {
		child := pending[0]
		pending = pending[1:]

		if pt.VNext+uintptr(mem.PageSize) > pt.VTerm {
			return &kernel.Error{Module: errModule, Message: "address space self-map window exhausted"}
		}
		selfVaddr := pt.VNext
		pt.VNext += uintptr(mem.PageSize)

		more, err := upsertAt(pt, selfVaddr, child, 3, FlagPresent|FlagRW|FlagGlobal|FlagSystem)
		if err != nil {
			return err
		}
		pending = append(pending, more...)
	}

	return nil
}

// RemovePTE clears the leaf mapping for vaddr, returns the physical address
// it freed, and invalidates the TLB entry if pt is active.
func RemovePTE(pt *AddressSpace, vaddr uintptr) (uintptr, *kernel.Error) {
	tableAddr := pt.PRoot
	for level := 0; level < 3; level++ {
		entry := tableAt(tableAddr)[levelIndex(vaddr, level)]
		if !entry.Present() {
			return 0, &kernel.Error{Module: errModule, Message: "remove_pte on an unmapped address"}
		}
		tableAddr = entry.Addr()
	}

	tbl := tableAt(tableAddr)
	idx := levelIndex(vaddr, 3)
	freed := tbl[idx].Addr()
	tbl[idx] = 0

	if active == pt {
		cpu.InvalidatePage(vaddr)
	}
	return freed, nil
}

// Create allocates a root page, sets up the self-map window
// [vroot, vroot+size), and copies the kernel's own PML4 entries into the
// new root so the kernel half stays mapped in every address space.
func Create(vroot uintptr, size uintptr) (*AddressSpace, *kernel.Error) {
	root, err := pgAlloc()
	if err != nil {
		return nil, err
	}

	pt := &AddressSpace{
		PRoot: root,
		VRoot: vroot,
		VNext: vroot + uintptr(mem.PageSize),
		VTerm: vroot + size,
	}

	kernelRoot := tableAt(kernelSpace.PRoot)
	newRoot := tableAt(root)
	for i := range kernelRoot {
		if kernelRoot[i].Present() {
			newRoot[i] = kernelRoot[i] | FlagSystem
		}
	}

	// Self-map the root at VRoot so the [VRoot, VNext) invariant holds from
	// the start; the interior pages this insert creates are self-mapped by
	// AddPTE as usual.
	if err := AddPTE(pt, vroot, root, FlagPresent|FlagRW|FlagGlobal|FlagSystem); err != nil {
		return nil, err
	}

	return pt, nil
}

// Destroy recursively walks pt's four levels, freeing every Allocated leaf
// and interior page it owns but never descending into a SYSTEM entry, since
// those belong to the kernel table.
func Destroy(pt *AddressSpace) *kernel.Error {
	if err := destroyLevel(pt.PRoot, 0); err != nil {
		return err
	}
	if active == pt {
		for vaddr := pt.VRoot; vaddr < pt.VTerm; vaddr += uintptr(mem.PageSize) {
			cpu.InvalidatePage(vaddr)
		}
	}
	return pgFree(pt.PRoot)
}

func destroyLevel(tableAddr uintptr, level int) *kernel.Error {
	tbl := tableAt(tableAddr)
	for i := range tbl {
		entry := tbl[i]
		if !entry.Present() || entry.HasFlags(FlagSystem) {
			continue
		}

		child := entry.Addr()
		if level < 3 && !entry.HasFlags(FlagPS) {
			if err := destroyLevel(child, level+1); err != nil {
				return err
			}
		}
		if pfdb.Type(pfdb.FrameFromAddress(child)) != pfdb.Allocated {
			continue
		}
		if err := pgFree(child); err != nil {
			return err
		}
	}
	return nil
}

// Activate loads pt's root into CR3; pt == nil activates the kernel table.
func Activate(pt *AddressSpace) {
	root := kernelSpace.PRoot
	active = pt
	if pt == nil {
		active = &kernelSpace
	} else {
		root = pt.PRoot
	}
	cpu.WriteCR3(root)
}

// PageAlloc maps count freshly zeroed 4 KiB frames starting at vaddr.
func PageAlloc(pt *AddressSpace, vaddr uintptr, count int) *kernel.Error {
	for i := 0; i < count; i++ {
		paddr, err := pgAlloc()
		if err != nil {
			return err
		}
		if err := AddPTE(pt, vaddr+uintptr(i)*uintptr(mem.PageSize), paddr, FlagPresent|FlagRW|FlagGlobal); err != nil {
			return err
		}
	}
	return nil
}

// PageFree unmaps and frees count frames starting at vaddr.
func PageFree(pt *AddressSpace, vaddr uintptr, count int) *kernel.Error {
	for i := 0; i < count; i++ {
		freed, err := RemovePTE(pt, vaddr+uintptr(i)*uintptr(mem.PageSize))
		if err != nil {
			return err
		}
		if err := pgFree(freed); err != nil {
			return err
		}
	}
	return nil
}
