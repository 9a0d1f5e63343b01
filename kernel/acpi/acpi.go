// Package acpi walks the firmware ACPI tables: it locates the RSDP
// by signature scan, walks the XSDT (or RSDT, on pre-2.0 firmware) and, for
// every descendant table, extends the boot page table on demand so the
// table's bytes are reachable, then caches the FADT/MADT/MCFG singletons
// and folds the table's extent into pmap as an Acpi region.
//
// Every mapping this package performs goes through a dedicated AddressSpace
// bounded by a 48 KiB pool (layout.ACPIPoolAddr) so a runaway or malicious
// firmware table can never make the walker write outside that pool.
package acpi

import (
	"kestrel/kernel"
	"kestrel/kernel/acpi/table"
	"kestrel/kernel/kfmt"
	"kestrel/kernel/layout"
	"kestrel/kernel/mem"
	"kestrel/kernel/pmap"
	"kestrel/kernel/vmm"
	"unsafe"
)

const errModule = "acpi"

const rsdpAlignment = 16

var rsdpSignature = [8]byte{'R', 'S', 'D', ' ', 'P', 'T', 'R', ' '}

const (
	sigFADT = "FACP"
	sigMADT = "APIC"
	sigMCFG = "MCFG"
)

var errMissingRSDP = &kernel.Error{Module: errModule, Message: "could not locate ACPI RSDP"}

// bootSpace is the dedicated, bounded address space the walker extends on
// demand while mapping ACPI tables; its root is the boot loader's own page
// table, already active, so bootSpace never needs to be activated.
var bootSpace = &vmm.AddressSpace{
	PRoot:       layout.BootPageTableAddr,
	VNext:       layout.ACPIPoolAddr,
	VTerm:       layout.ACPIPoolAddr + layout.ACPIPoolSize,
	ScratchBump: true,
}

// backingOffset translates a physical address into real backing memory, the
// same translation hook pfdb and vmm expose; production code leaves it zero
// because the boot page table already identity-maps everything this
// package reads. Tests point it at an mmap'd buffer.
var backingOffset uintptr

// SetBackingOffset points the walker (and its bootSpace pool cursor) at
// simulated physical memory for tests. The offset is forwarded to vmm,
// which performs the actual boot-page-table writes mapRange asks for.
func SetBackingOffset(off uintptr) {
	backingOffset = off
	vmm.SetBackingOffset(off)
	bootSpace.VNext = layout.ACPIPoolAddr
}

func view[T any](addr uintptr) *T {
	return (*T)(unsafe.Pointer(addr + backingOffset))
}

// readU8, readU16 and readU32 assemble little-endian values one byte at a
// time. The MADT substructures place multi-byte fields at offsets no native
// Go struct can express without padding, so they must be read this way
// rather than through a struct view.
func readU8(addr uintptr) uint8 {
	return *view[uint8](addr)
}

func readU16(addr uintptr) uint16 {
	return uint16(readU8(addr)) | uint16(readU8(addr+1))<<8
}

func readU32(addr uintptr) uint32 {
	return uint32(readU16(addr)) | uint32(readU16(addr+2))<<16
}

var (
	version  uint8
	fadt     *table.FADT
	madt     *table.MADT
	madtAddr uintptr
	madtLen  uint32
	mcfg     *table.MCFG
	mcfgAddr uintptr
	mcfgLen  uint32
)

// Version returns the detected ACPI revision (1 for ACPI 1.0, 2+ for later
// versions), valid once Init has returned successfully.
func Version() uint8 { return version }

// FADT returns the cached Fixed ACPI Description Table, or nil if the
// firmware's table list never included one.
func FADT() *table.FADT { return fadt }

// MADT returns the cached Multiple APIC Description Table, or nil.
func MADT() *table.MADT { return madt }

// MCFG returns the cached PCI Express configuration table, or nil.
func MCFG() *table.MCFG { return mcfg }

// Init performs the full firmware-table walk: locate the RSDP, walk
// XSDT/RSDT, map and dispatch every descendant table, then register every
// local/IO APIC page as Uncached in pmap.
func Init() *kernel.Error {
	fadt, madt, mcfg = nil, nil, nil
	madtAddr, madtLen, mcfgAddr, mcfgLen = 0, 0, 0, 0

	rsdpAddr, err := locateRSDP()
	if err != nil {
		return err
	}
	rsdp := view[table.RSDPDescriptor](rsdpAddr)
	version = rsdp.Revision + 1

	var rootAddr uintptr
	useXSDT := false
	if version >= 2 {
		ext := view[table.ExtRSDPDescriptor](rsdpAddr)
		if ext.XSDTAddr != 0 {
			rootAddr = uintptr(ext.XSDTAddr)
			useXSDT = true
		}
	}
	if rootAddr == 0 {
		rootAddr = uintptr(rsdp.RSDTAddr)
	}
	if rootAddr == 0 {
		return &kernel.Error{Module: errModule, Message: "RSDP names neither an XSDT nor an RSDT"}
	}

	rootHdr, err := mapTable(rootAddr)
	if err != nil {
		return err
	}

	entrySize := uintptr(4)
	if useXSDT {
		entrySize = 8
	}
	payload := rootAddr + unsafe.Sizeof(table.SDTHeader{})
	count := (uintptr(rootHdr.Length) - unsafe.Sizeof(table.SDTHeader{})) / entrySize

	for i := uintptr(0); i < count; i++ {
		var childAddr uintptr
		if useXSDT {
			childAddr = uintptr(*view[uint64](payload + i*entrySize))
		} else {
			childAddr = uintptr(*view[uint32](payload + i*entrySize))
		}
		if childAddr == 0 {
			continue
		}
		if err := dispatchTable(childAddr); err != nil {
			return err
		}
	}

	registerAPICPages()
	return nil
}

// dispatchTable maps one descendant table and files it by signature: FADT/MADT/MCFG are cached as singletons, anything else is logged
// and skipped.
func dispatchTable(addr uintptr) *kernel.Error {
	hdr, err := mapTable(addr)
	if err != nil {
		return err
	}

	sig := string(hdr.Signature[:])
	switch sig {
	case sigFADT:
		fadt = view[table.FADT](addr)
	case sigMADT:
		madt = view[table.MADT](addr)
		madtAddr, madtLen = addr, hdr.Length
	case sigMCFG:
		mcfg = view[table.MCFG](addr)
		mcfgAddr, mcfgLen = addr, hdr.Length
	default:
		kfmt.Printf("acpi: skipping unrecognized table %q\n", sig)
	}
	return nil
}

// mapTable ensures [addr, addr+hdr.Length) is mapped into bootSpace, adds
// the page-aligned extent to pmap as an Acpi region, and returns the now
// readable header.
func mapTable(addr uintptr) (*table.SDTHeader, *kernel.Error) {
	if err := mapRange(addr, unsafe.Sizeof(table.SDTHeader{})); err != nil {
		return nil, err
	}
	hdr := view[table.SDTHeader](addr)

	if err := mapRange(addr, uintptr(hdr.Length)); err != nil {
		return nil, err
	}

	start := mem.AlignDown(addr, mem.PageSize)
	end := mem.AlignUp(addr+uintptr(hdr.Length), mem.PageSize)
	pmap.Add(uint64(start), uint64(end-start), pmap.Acpi)

	return hdr, nil
}

// mapRange extends bootSpace to cover every 4 KiB page touching
// [addr, addr+size), identity-mapped, allocating interior pages from the
// pool as needed.
func mapRange(addr uintptr, size uintptr) *kernel.Error {
	start := mem.AlignDown(addr, mem.PageSize)
	end := mem.AlignUp(addr+size, mem.PageSize)
	for p := start; p < end; p += uintptr(mem.PageSize) {
		if err := vmm.AddPTE(bootSpace, p, p, vmm.FlagPresent|vmm.FlagRW|vmm.FlagGlobal); err != nil {
			return err
		}
	}
	return nil
}

// locateRSDP scans the EBDA tail and the BIOS ROM window for the "RSD PTR "
// signature on a 16-byte boundary, validating the checksum of
// whichever descriptor size the revision byte implies before accepting a
// candidate.
func locateRSDP() (uintptr, *kernel.Error) {
	for _, span := range [][2]uintptr{
		{layout.ACPIScanLowStart, layout.ACPIScanLowEnd},
		{layout.ACPIScanHighStart, layout.ACPIScanHighEnd},
	} {
		for addr := span[0]; addr+rsdpAlignment <= span[1]; addr += rsdpAlignment {
			rsdp := view[table.RSDPDescriptor](addr)
			if rsdp.Signature != rsdpSignature {
				continue
			}
			if rsdp.Revision == 0 {
				if checksum(addr, uint32(unsafe.Sizeof(table.RSDPDescriptor{}))) == 0 {
					return addr, nil
				}
				continue
			}

			// The extended checksum covers Length bytes: 36 on real
			// firmware, smaller than the Go struct's padded Sizeof of 40.
			// Trust the descriptor's own value, bounded against garbage.
			length := view[table.ExtRSDPDescriptor](addr).Length
			if length < uint32(unsafe.Sizeof(table.RSDPDescriptor{})) || length > 0x1000 {
				continue
			}
			if checksum(addr, length) == 0 {
				return addr, nil
			}
		}
	}
	return 0, errMissingRSDP
}

// checksum sums length bytes starting at addr; a valid ACPI table or
// descriptor sums to 0 mod 256.
func checksum(addr uintptr, length uint32) uint8 {
	var sum uint8
	for i := uint32(0); i < length; i++ {
		sum += *view[uint8](addr + uintptr(i))
	}
	return sum
}

// registerAPICPages folds the local APIC's address and every I/O APIC's
// register window into pmap as Uncached, so KMEM maps them
// with caching disabled.
func registerAPICPages() {
	if madt == nil {
		return
	}
	pmap.Add(uint64(mem.AlignDown(uintptr(madt.LocalControllerAddress), mem.PageSize)), uint64(mem.PageSize), pmap.Uncached)

	cursor := uintptr(0)
	for {
		entry, next, ok := NextIOAPIC(cursor)
		if !ok {
			break
		}
		pmap.Add(uint64(mem.AlignDown(uintptr(entry.Address), mem.PageSize)), uint64(mem.PageSize), pmap.Uncached)
		cursor = next
	}
}

// madtPayloadStart is the physical address of the first substructure
// following the fixed MADT header.
func madtPayloadStart() uintptr {
	return madtAddr + unsafe.Sizeof(table.MADT{})
}

// scanMADT walks the packed MADT substructure records starting at cursor
// (or the beginning of the list, if cursor is 0) looking for the next record
// of type want. It returns the record's address, the address immediately
// following it (to resume a later scan), and whether one was found. A record
// whose length would run past the MADT's own end is an unrecoverable
// firmware corruption: that is a fatal condition, not a recoverable error.
func scanMADT(cursor uintptr, want table.MADTEntryType) (uintptr, uintptr, bool) {
	if madt == nil {
		return 0, 0, false
	}
	addr := cursor
	if addr == 0 {
		addr = madtPayloadStart()
	}
	end := madtAddr + uintptr(madtLen)

	for addr+2 <= end {
		length := uintptr(readU8(addr + 1))
		if length == 0 || addr+length > end {
			panic(&kernel.Error{Module: errModule, Message: "MADT substructure overshoots table"})
		}
		next := addr + length
		if table.MADTEntryType(readU8(addr)) == want {
			return addr, next, true
		}
		addr = next
	}
	return 0, 0, false
}

// NextLocalAPIC decodes the next Local APIC record (type 0) at or after
// cursor; pass 0 to start from the beginning of the list.
func NextLocalAPIC(cursor uintptr) (table.MADTEntryLocalAPIC, uintptr, bool) {
	addr, next, ok := scanMADT(cursor, table.MADTEntryTypeLocalAPIC)
	if !ok {
		return table.MADTEntryLocalAPIC{}, 0, false
	}
	return table.MADTEntryLocalAPIC{
		ProcessorID: readU8(addr + 2),
		APICID:      readU8(addr + 3),
		Flags:       readU32(addr + 4),
	}, next, true
}

// NextIOAPIC decodes the next I/O APIC record (type 1) at or after cursor.
func NextIOAPIC(cursor uintptr) (table.MADTEntryIOAPIC, uintptr, bool) {
	addr, next, ok := scanMADT(cursor, table.MADTEntryTypeIOAPIC)
	if !ok {
		return table.MADTEntryIOAPIC{}, 0, false
	}
	return table.MADTEntryIOAPIC{
		APICID:           readU8(addr + 2),
		Address:          readU32(addr + 4),
		SysInterruptBase: readU32(addr + 8),
	}, next, true
}

// NextISO decodes the next Interrupt Source Override record (type 2) at or
// after cursor.
func NextISO(cursor uintptr) (table.MADTEntryInterruptSrcOverride, uintptr, bool) {
	addr, next, ok := scanMADT(cursor, table.MADTEntryTypeIntSrcOverride)
	if !ok {
		return table.MADTEntryInterruptSrcOverride{}, 0, false
	}
	return table.MADTEntryInterruptSrcOverride{
		BusSrc:          readU8(addr + 2),
		IRQSrc:          readU8(addr + 3),
		GlobalInterrupt: readU32(addr + 4),
		Flags:           readU16(addr + 8),
	}, next, true
}

// mcfgHeaderSize is the packed size of the MCFG header (the common SDT
// header plus 8 reserved bytes): 44 bytes, where the Go table.MCFG struct
// pads to 48.
const mcfgHeaderSize = unsafe.Sizeof(table.SDTHeader{}) + 8

// NextMCFGAddr returns the next MCFGAllocation record from the flat array
// trailing the MCFG table, at or after cursor.
func NextMCFGAddr(cursor uintptr) (*table.MCFGAllocation, uintptr, bool) {
	if mcfg == nil {
		return nil, 0, false
	}
	const recSize = uintptr(unsafe.Sizeof(table.MCFGAllocation{}))

	addr := cursor
	if addr == 0 {
		addr = mcfgAddr + mcfgHeaderSize
	}
	end := mcfgAddr + uintptr(mcfgLen)
	if addr+recSize > end {
		return nil, 0, false
	}
	return view[table.MCFGAllocation](addr), addr + recSize, true
}
