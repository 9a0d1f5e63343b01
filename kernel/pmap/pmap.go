package pmap

import (
	"kestrel/kernel"
	"kestrel/kernel/layout"
	"sort"
)

const errModule = "pmap"

// maxRegions bounds the singleton's region count. The table is an ordinary
// package slice; nothing is placed at layout.PMapAddr. In practice a BIOS
// E820 map plus the handful of ACPI regions discovered later never comes
// close to this count.
const maxRegions = 128

// Table is the physical memory map singleton: a sorted,
// gap-free, non-overlapping list of regions plus the cached end of the
// highest Usable region.
type Table struct {
	regions    []Region
	lastUsable uint64
}

var table Table

// Init seeds the map with the three regions the loader's contract
// implies: the VGA MMIO hole as Uncached, the loaded kernel image as
// Reserved, and the null page as Unmapped. It then performs the single
// post-seed normalization.
func Init() {
	table.regions = table.regions[:0]
	appendRegion(Region{Addr: layout.VGAAddr, Size: layout.VGASize, Type: Uncached})
	appendRegion(Region{Addr: 0, Size: uint64(layout.KernelImageEnd), Type: Reserved})
	appendRegion(Region{Addr: 0, Size: 0x1000, Type: Unmapped})
	table.regions = normalize(table.regions)
	table.lastUsable = computeLastUsable(table.regions)
}

// Add appends a region (typically an ACPI range discovered by the walker or
// a frame the PFDB wants reclassified) and renormalizes the map.
func Add(addr, size uint64, typ RegionType) {
	appendRegion(Region{Addr: addr, Size: size, Type: typ})
	table.regions = normalize(table.regions)
	table.lastUsable = computeLastUsable(table.regions)
}

// Get returns the current region list in sorted, normalized form.
func Get() []Region {
	return table.regions
}

// LastUsable returns the end address of the highest Usable region.
func LastUsable() uint64 {
	return table.lastUsable
}

func appendRegion(r Region) {
	if len(table.regions) >= maxRegions {
		panic(&kernel.Error{Module: errModule, Message: "region table exhausted"})
	}
	table.regions = append(table.regions, r)
}

// normalize runs the four normalization steps in order: sort, collapse overlaps
// by rank, fill gaps, coalesce same-type neighbors.
func normalize(in []Region) []Region {
	regions := append([]Region(nil), in...)
	sortRegions(regions)
	regions = collapseOverlaps(regions)
	regions = fillGaps(regions)
	regions = coalesce(regions)
	return regions
}

func sortRegions(regions []Region) {
	sort.SliceStable(regions, func(i, j int) bool {
		if regions[i].Addr != regions[j].Addr {
			return regions[i].Addr < regions[j].Addr
		}
		return regions[i].Size < regions[j].Size
	})
}

// collapseOverlaps repeatedly scans for the first overlapping adjacent pair,
// resolves it into up to three disjoint pieces, and restarts the scan. The
// region count is small (BIOS maps rarely exceed a few dozen entries) so a
// restart-from-scratch loop is simpler than tracking which indices a split
// invalidated, at a cost that is irrelevant at this scale.
func collapseOverlaps(regions []Region) []Region {
	const maxPasses = 4 * maxRegions
	for pass := 0; pass < maxPasses; pass++ {
		merged := false
		for i := 0; i+1 < len(regions); i++ {
			curr, next := regions[i], regions[i+1]
			if !curr.overlaps(next) {
				continue
			}

			pieces := resolveOverlap(curr, next)
			tail := append([]Region{}, regions[i+2:]...)
			regions = append(regions[:i], pieces...)
			regions = append(regions, tail...)
			sortRegions(regions)
			merged = true
			break
		}
		if !merged {
			return regions
		}
	}
	panic(&kernel.Error{Module: errModule, Message: "overlap collapse did not converge"})
}

// resolveOverlap splits two overlapping regions (curr.Addr <= next.Addr)
// into up to three disjoint regions covering their union, assigning the
// contested span to whichever type ranks higher. This single
// formula covers all five boundary cases: left-aligned and equal have an
// empty leading piece, equal and right-aligned have an empty trailing
// piece, and contained and straddling produce all three.
func resolveOverlap(curr, next Region) []Region {
	currEnd, nextEnd := curr.End(), next.End()
	overlapEnd := currEnd
	if nextEnd < overlapEnd {
		overlapEnd = nextEnd
	}

	var out []Region

	if next.Addr > curr.Addr {
		out = append(out, Region{Addr: curr.Addr, Size: next.Addr - curr.Addr, Type: curr.Type, Flags: curr.Flags})
	}

	winner := curr
	if next.rank() > curr.rank() {
		winner = next
	}
	out = append(out, Region{Addr: next.Addr, Size: overlapEnd - next.Addr, Type: winner.Type, Flags: winner.Flags})

	switch {
	case currEnd > nextEnd:
		out = append(out, Region{Addr: nextEnd, Size: currEnd - nextEnd, Type: curr.Type, Flags: curr.Flags})
	case nextEnd > currEnd:
		out = append(out, Region{Addr: currEnd, Size: nextEnd - currEnd, Type: next.Type, Flags: next.Flags})
	}

	return out
}

// fillGaps inserts or extends a Reserved region over any [curr.End, next.Addr)
// span left uncovered by the input.
func fillGaps(regions []Region) []Region {
	if len(regions) == 0 {
		return regions
	}

	out := make([]Region, 0, len(regions)+1)
	out = append(out, regions[0])

	for i := 1; i < len(regions); i++ {
		prev := &out[len(out)-1]
		next := regions[i]
		gapStart, gapEnd := prev.End(), next.Addr
		if gapStart < gapEnd {
			switch {
			case prev.Type == Reserved:
				prev.Size += gapEnd - gapStart
			case next.Type == Reserved:
				next.Size = next.End() - gapStart
				next.Addr = gapStart
			default:
				out = append(out, Region{Addr: gapStart, Size: gapEnd - gapStart, Type: Reserved})
			}
		}
		out = append(out, next)
	}

	return out
}

// coalesce merges adjacent regions that share a type.
func coalesce(regions []Region) []Region {
	if len(regions) == 0 {
		return regions
	}

	out := make([]Region, 0, len(regions))
	out = append(out, regions[0])

	for i := 1; i < len(regions); i++ {
		prev := &out[len(out)-1]
		curr := regions[i]
		if prev.Type == curr.Type && prev.End() == curr.Addr {
			prev.Size += curr.Size
			continue
		}
		out = append(out, curr)
	}

	return out
}

func computeLastUsable(regions []Region) uint64 {
	var last uint64
	for _, r := range regions {
		if r.Type == Usable && r.End() > last {
			last = r.End()
		}
	}
	return last
}
