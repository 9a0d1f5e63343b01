// Package vmm builds and maintains the kernel's 4-level x86-64 page
// tables: identity-mapping
// every PMAP region at the largest leaf size it can, and providing a
// per-address-space create/destroy/activate and alloc/free API on top of
// the page-frame database.
package vmm

import (
	"unsafe"

	"kestrel/kernel"
	"kestrel/kernel/mem"
)

const errModule = "vmm"

// entriesPerTable is the number of 64-bit entries in a 4 KiB-aligned page
// table node at any of the four levels.
const entriesPerTable = 512

// pageLevels is the depth of the amd64 paging hierarchy: PML4, PDPT, PDT, PT.
const pageLevels = 4

// levelShifts gives the bit position of each level's 9-bit index field
// within a virtual address.
var levelShifts = [pageLevels]uint{39, 30, 21, 12}

const levelIndexMask = uintptr(entriesPerTable - 1)

// addrMask extracts the physical page number (bits 12-51) from a PTE.
const addrMask = PTE(0x000ffffffffff000)

// PTE is a single 64-bit x86-64 page-table entry.
type PTE uint64

// Entry flags, laid out per the AMD64 architecture manual and extended with
// the SYSTEM bit this core repurposes.
const (
	FlagPresent PTE = 1 << iota
	FlagRW
	FlagUser
	FlagPWT
	FlagPCD
	FlagAccessed
	FlagDirty
	FlagPS
	FlagGlobal
	// FlagSystem (bit 9) marks an entry inherited from the kernel's own
	// table; add_pte refuses to overwrite a leaf carrying it. On a PT
	// entry with Present clear it instead means FlagGuard: a guard page
	// deliberately left unmapped below a stack.
	FlagSystem
	FlagGuard     = FlagSystem
	FlagNoExecute = PTE(1) << 63
)

// Table is one 4 KiB, 512-entry node of the paging hierarchy, at any level.
type Table [entriesPerTable]PTE

// Present reports whether the entry refers to valid mapping.
func (e PTE) Present() bool { return e&FlagPresent != 0 }

// HasFlags reports whether every bit in flags is set on e.
func (e PTE) HasFlags(flags PTE) bool { return e&flags == flags }

// Addr returns the physical address this entry points to.
func (e PTE) Addr() uintptr { return uintptr(e & addrMask) }

func makeEntry(addr uintptr, flags PTE) PTE {
	return PTE(addr)&addrMask | flags
}

// backingOffset translates a physical address into the address of real
// backing memory, exactly like the identical hook in package pfdb. On real
// hardware it is zero: KMEM's own job is to make physical addresses valid
// pointers, and before that runs the loader's boot page table already
// identity-maps everything this package touches. Tests substitute a
// non-zero offset to drive the builder under go test.
var backingOffset uintptr

// SetBackingOffset points the page table builder at simulated physical
// memory, for tests and host-side tooling (cmd/kbench) that run this
// package outside a real freestanding kernel.
func SetBackingOffset(off uintptr) { backingOffset = off }

func tableAt(phys uintptr) *Table {
	return (*Table)(unsafe.Pointer(phys + backingOffset))
}

func zeroTable(phys uintptr) {
	kernel.Memset(phys+backingOffset, 0, uintptr(mem.PageSize))
}

func levelIndex(vaddr uintptr, level int) uintptr {
	return (vaddr >> levelShifts[level]) & levelIndexMask
}
