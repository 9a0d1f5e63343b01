// Package pfdb implements the page-frame database: a dense array
// of fixed-size frame records covering every 4 KiB frame of usable physical
// memory, threaded into a doubly-linked free list.
package pfdb

import (
	"kestrel/kernel"
	"kestrel/kernel/mem"
	"kestrel/kernel/pmap"
	"reflect"
	"unsafe"
)

const errModule = "pfdb"

// Invalid is the free-list sentinel index").
const Invalid uint32 = 0xFFFFFFFF

//go:generate stringer -type=FrameType

// FrameType is the lifecycle state of a page-frame record.
type FrameType uint8

const (
	// Reserved frames back firmware, MMIO, or kernel-owned memory and are
	// never returned to the free list.
	Reserved FrameType = iota
	// Available frames are in the free list.
	Available
	// Allocated frames are in active use and carry refcount >= 1.
	Allocated
)

// pfSize is the fixed on-disk size of a PF record.
const pfSize = 32

// PF is a single page-frame record. The struct's field order and the
// trailing reserved padding keep it exactly 32 bytes, matching the layout a
// real loader/linker would reserve for the array regardless of which fields
// this implementation currently uses.
type PF struct {
	Prev       uint32
	Next       uint32
	Refcount   uint16
	Sharecount uint16
	Flags      uint16
	Type       FrameType
	_          [17]byte
}

// Frame identifies a physical page by frame number (physical address divided
// by the page size).
type Frame uintptr

// InvalidFrame is returned by Alloc on failure.
const InvalidFrame = Frame(^Frame(0))

// Valid reports whether f is a real frame.
func (f Frame) Valid() bool { return f != InvalidFrame }

// Address returns the physical address of the frame.
func (f Frame) Address() uintptr { return uintptr(f) << mem.PageShift }

// FrameFromAddress returns the frame containing the given physical address.
func FrameFromAddress(addr uintptr) Frame { return Frame(addr >> mem.PageShift) }

// Table is the PFDB singleton.
type Table struct {
	pf    []PF
	count uint32
	avail uint32
	head  uint32
	tail  uint32
}

var db Table

// Init sizes the frame array from pmap.LastUsable, carves a contiguous
// 2 MiB-aligned region for it out of the first Usable PMAP region large
// enough to hold it (marking that region Reserved), threads every frame not
// covered by a non-Usable PMAP region into the free list, and marks the
// rest Reserved.
func Init() *kernel.Error {
	lastUsable := pmap.LastUsable()
	if lastUsable == 0 {
		return &kernel.Error{Module: errModule, Message: "pmap has no usable memory"}
	}

	count := uint32((lastUsable + uint64(mem.PageSize) - 1) / uint64(mem.PageSize))
	tableSize := uint64(count) * pfSize
	tableSize = uint64(mem.AlignUp(uintptr(tableSize), mem.LargePageSize))

	addr, err := carveRegion(tableSize)
	if err != nil {
		return err
	}

	db.pf = sliceView(addr, int(count))
	db.count = count
	pmap.Add(uint64(addr), tableSize, pmap.Reserved)

	buildFreeList()
	return nil
}

// carveRegion finds the first Usable PMAP region with at least size bytes
// of room above a 2 MiB boundary and returns the aligned base address.
func carveRegion(size uint64) (uintptr, *kernel.Error) {
	for _, r := range pmap.Get() {
		if r.Type != pmap.Usable {
			continue
		}
		base := mem.AlignUp(uintptr(r.Addr), mem.LargePageSize)
		if uint64(base)+size <= r.End() {
			return base, nil
		}
	}
	return 0, &kernel.Error{Module: errModule, Message: "no usable region large enough for the frame table"}
}

// buildFreeList walks every frame, threading the ones not covered by a
// non-Usable PMAP region into the free list and marking the rest Reserved.
func buildFreeList() {
	db.head, db.tail, db.avail = Invalid, Invalid, 0

	for i := uint32(0); i < db.count; i++ {
		if regionTypeAt(uint64(i)*uint64(mem.PageSize)) != pmap.Usable {
			db.pf[i] = PF{Type: Reserved, Prev: Invalid, Next: Invalid}
			continue
		}
		linkAvailable(i)
	}
}

func regionTypeAt(addr uint64) pmap.RegionType {
	for _, r := range pmap.Get() {
		if addr >= r.Addr && addr < r.End() {
			return r.Type
		}
	}
	return pmap.Unmapped
}

func linkAvailable(i uint32) {
	db.pf[i] = PF{Type: Available, Prev: db.tail, Next: Invalid}
	if db.tail != Invalid {
		db.pf[db.tail].Next = i
	} else {
		db.head = i
	}
	db.tail = i
	db.avail++
}

// Alloc unlinks the head of the free list, zeroes the record, and marks it
// Allocated with refcount 1. An exhausted database is unrecoverable; the
// non-nil error is expected to end in kfmt.Panic at the caller.
func Alloc() (Frame, *kernel.Error) {
	if db.avail == 0 {
		return InvalidFrame, &kernel.Error{Module: errModule, Message: "frame database exhausted"}
	}

	i := db.head
	next := db.pf[i].Next
	db.head = next
	if next != Invalid {
		db.pf[next].Prev = Invalid
	} else {
		db.tail = Invalid
	}
	db.avail--

	db.pf[i] = PF{Type: Allocated, Refcount: 1, Prev: Invalid, Next: Invalid}
	return Frame(i), nil
}

// Free requires the frame to be Allocated, zeroes and re-links it at head,
// and increments avail.
func Free(f Frame) *kernel.Error {
	i := uint32(f)
	if i >= db.count || db.pf[i].Type != Allocated {
		return &kernel.Error{Module: errModule, Message: "free of a non-allocated frame"}
	}

	db.pf[i] = PF{Type: Available, Prev: Invalid, Next: db.head}
	if db.head != Invalid {
		db.pf[db.head].Prev = i
	} else {
		db.tail = i
	}
	db.head = i
	db.avail++
	return nil
}

// Ref increments the refcount of an Allocated frame, enabling future
// copy-on-write sharing.
func Ref(f Frame) {
	db.pf[uint32(f)].Refcount++
}

// Unref decrements the refcount of an Allocated frame and frees it once it
// reaches zero.
func Unref(f Frame) *kernel.Error {
	i := uint32(f)
	db.pf[i].Refcount--
	if db.pf[i].Refcount == 0 {
		return Free(f)
	}
	return nil
}

// Avail returns the number of frames currently in the free list.
func Avail() uint32 { return db.avail }

// Type returns the current lifecycle state of a frame.
func Type(f Frame) FrameType { return db.pf[uint32(f)].Type }

// AvailFromHead walks the free list from head via Next and returns its
// length; used by tests to check that this equals Avail()
// and the tail-ward walk below.
func AvailFromHead() uint32 {
	n := uint32(0)
	for i := db.head; i != Invalid; i = db.pf[i].Next {
		n++
	}
	return n
}

// AvailFromTail walks the free list from tail via Prev and returns its
// length.
func AvailFromTail() uint32 {
	n := uint32(0)
	for i := db.tail; i != Invalid; i = db.pf[i].Prev {
		n++
	}
	return n
}

// backingOffset translates a physical address into the address of the real
// backing memory holding the PF array. On real hardware this is always
// zero: once the kernel page table is active, physical addresses below 4
// GiB are identity-mapped, so a physical address is already a usable
// pointer. Tests substitute a non-zero offset pointing at an mmap'd buffer
// so Init and the allocator can be exercised under go test.
var backingOffset uintptr

// SetBackingOffset points the frame database at real backing memory for a
// logical physical address space starting at 0. It exists so other
// packages' tests (notably vmm's, which drives pfdb.Alloc through a shared
// mmap'd buffer) can share the same translation their own tests use.
// Production code never calls this.
func SetBackingOffset(off uintptr) { backingOffset = off }

// sliceView constructs a []PF view over count records starting at the
// physical address addr. In the freestanding core this is the table's only
// storage: there is no heap to copy into, so the slice header is built by
// hand the same way kernel.Memset builds its byte-slice views.
func sliceView(addr uintptr, count int) []PF {
	return *(*[]PF)(unsafe.Pointer(&reflect.SliceHeader{
		Data: addr + backingOffset,
		Len:  count,
		Cap:  count,
	}))
}
