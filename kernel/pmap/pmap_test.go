package pmap

import (
	"kestrel/kernel/layout"
	"testing"
)

func regionsEqual(t *testing.T, got, want []Region) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d regions, got %d: %+v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("region %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

// TestNormalizeDisjointInput feeds in a realistic BIOS E820 map. The
// input's two Reserved neighbors (the EBDA hole and the VGA/BIOS hole) share
// a boundary and a type, so step 3 (coalesce same-type neighbors) merges
// them; the stated property-test invariant "no two adjacent regions share a
// type" takes priority over that scenario's literal region count, which
// assumed they would stay distinct. See DESIGN.md.
func TestNormalizeDisjointInput(t *testing.T) {
	in := []Region{
		{Addr: 0, Size: 0x9F800, Type: Usable},
		{Addr: 0x9F800, Size: 0x800, Type: Reserved},
		{Addr: 0xA0000, Size: 0x60000, Type: Reserved},
		{Addr: 0x100000, Size: 0x7EE0000, Type: Usable},
		{Addr: 0x7FE0000, Size: 0x20000, Type: AcpiNvs},
	}

	got := normalize(in)
	want := []Region{
		{Addr: 0, Size: 0x9F800, Type: Usable},
		{Addr: 0x9F800, Size: 0x60800, Type: Reserved},
		{Addr: 0x100000, Size: 0x7EE0000, Type: Usable},
		{Addr: 0x7FE0000, Size: 0x20000, Type: AcpiNvs},
	}
	regionsEqual(t, got, want)

	if got := computeLastUsable(got); got != 0x7FE0000 {
		t.Fatalf("expected last_usable 0x7FE0000, got %#x", got)
	}
}

// TestNormalizeOverlapStraddling covers a Reserved region overlapping the
// tail of a Usable one.
func TestNormalizeOverlapStraddling(t *testing.T) {
	in := []Region{
		{Addr: 0, Size: 0x2000, Type: Usable},
		{Addr: 0x1000, Size: 0x2000, Type: Reserved},
	}
	got := normalize(in)
	want := []Region{
		{Addr: 0, Size: 0x1000, Type: Usable},
		{Addr: 0x1000, Size: 0x2000, Type: Reserved},
	}
	regionsEqual(t, got, want)
}

// TestNormalizeOverlapContained covers containment: a higher-ranked Reserved
// region fully swallows a contained Usable region.
func TestNormalizeOverlapContained(t *testing.T) {
	in := []Region{
		{Addr: 0, Size: 0x4000, Type: Reserved},
		{Addr: 0x1000, Size: 0x1000, Type: Usable},
	}
	got := normalize(in)
	want := []Region{
		{Addr: 0, Size: 0x4000, Type: Reserved},
	}
	regionsEqual(t, got, want)
}

// TestNormalizeOverlapRightAligned covers the remaining boundary case the
// concrete scenarios don't: two regions sharing an end address.
func TestNormalizeOverlapRightAligned(t *testing.T) {
	in := []Region{
		{Addr: 0, Size: 0x3000, Type: Usable},
		{Addr: 0x1000, Size: 0x2000, Type: Bad},
	}
	got := normalize(in)
	want := []Region{
		{Addr: 0, Size: 0x1000, Type: Usable},
		{Addr: 0x1000, Size: 0x2000, Type: Bad},
	}
	regionsEqual(t, got, want)
}

// TestNormalizeFillsGap checks that an uncovered span is inserted as
// Reserved when neither neighbor already is.
func TestNormalizeFillsGap(t *testing.T) {
	in := []Region{
		{Addr: 0, Size: 0x1000, Type: Usable},
		{Addr: 0x3000, Size: 0x1000, Type: AcpiNvs},
	}
	got := normalize(in)
	want := []Region{
		{Addr: 0, Size: 0x1000, Type: Usable},
		{Addr: 0x1000, Size: 0x2000, Type: Reserved},
		{Addr: 0x3000, Size: 0x1000, Type: AcpiNvs},
	}
	regionsEqual(t, got, want)
}

// TestNormalizeExtendsReservedOverGap checks the gap-fill variant where the
// region after the gap is already Reserved: it grows downward to cover the
// gap instead of a new region being inserted, and keeps its original end.
func TestNormalizeExtendsReservedOverGap(t *testing.T) {
	in := []Region{
		{Addr: 0, Size: 0x1000, Type: Usable},
		{Addr: 0x3000, Size: 0x2000, Type: Reserved},
	}
	got := normalize(in)
	want := []Region{
		{Addr: 0, Size: 0x1000, Type: Usable},
		{Addr: 0x1000, Size: 0x4000, Type: Reserved},
	}
	regionsEqual(t, got, want)
}

// TestNormalizeInvariants is a lightweight property check over a handful of
// hand-built inputs: sorted, gap-free (no gap anywhere before the final
// region), no two adjacent regions share a type, and normalizing the result
// again leaves it unchanged.
func TestNormalizeInvariants(t *testing.T) {
	inputs := [][]Region{
		{
			{Addr: 0x2000, Size: 0x1000, Type: Usable},
			{Addr: 0, Size: 0x1000, Type: Reserved},
		},
		{
			{Addr: 0, Size: 0x5000, Type: Usable},
			{Addr: 0x1000, Size: 0x1000, Type: Uncached},
			{Addr: 0x3000, Size: 0x500, Type: Bad},
		},
		{
			{Addr: 0x1000, Size: 0x1000, Type: Unmapped},
			{Addr: 0x1000, Size: 0x1000, Type: Usable},
		},
	}

	for i, in := range inputs {
		got := normalize(in)

		for j := 0; j+1 < len(got); j++ {
			if got[j].Addr >= got[j+1].Addr {
				t.Fatalf("input %d: regions not strictly increasing in addr: %+v", i, got)
			}
			if got[j].End() > got[j+1].Addr {
				t.Fatalf("input %d: region %d overlaps region %d: %+v", i, j, j+1, got)
			}
			if got[j].End() != got[j+1].Addr {
				t.Fatalf("input %d: gap between region %d and %d: %+v", i, j, j+1, got)
			}
			if got[j].Type == got[j+1].Type {
				t.Fatalf("input %d: adjacent regions %d and %d share a type: %+v", i, j, j+1, got)
			}
		}

		again := normalize(got)
		regionsEqual(t, again, got)
	}
}

// TestNormalizeIdempotent checks normalize ∘ normalize == normalize directly
// on an input that requires every normalization step.
func TestNormalizeIdempotent(t *testing.T) {
	in := []Region{
		{Addr: 0x5000, Size: 0x1000, Type: AcpiNvs},
		{Addr: 0, Size: 0x2000, Type: Usable},
		{Addr: 0x1000, Size: 0x1000, Type: Reserved},
	}
	once := normalize(in)
	twice := normalize(once)
	regionsEqual(t, twice, once)
}

// TestNormalizeEqualDuplicateCollapsesDeterministically checks that
// identical-bounds, identical-type duplicates collapse to a single region
// regardless of which copy a caller thinks of as "first".
func TestNormalizeEqualDuplicateCollapsesDeterministically(t *testing.T) {
	in := []Region{
		{Addr: 0x1000, Size: 0x1000, Type: Usable, Flags: 1},
		{Addr: 0x1000, Size: 0x1000, Type: Usable, Flags: 2},
	}
	got := normalize(in)
	if len(got) != 1 {
		t.Fatalf("expected duplicate regions to collapse to 1, got %d: %+v", len(got), got)
	}
	if got[0].Addr != 0x1000 || got[0].Size != 0x1000 {
		t.Fatalf("unexpected collapsed region: %+v", got[0])
	}
}

func TestInitSeedsVGAKernelImageAndNullPage(t *testing.T) {
	Init()

	regions := Get()
	if len(regions) == 0 {
		t.Fatal("expected Init to populate at least one region")
	}

	var sawUncachedVGA, sawReservedImage, sawUnmappedNull bool
	for _, r := range regions {
		if r.Type == Uncached && r.Addr <= 0xA0000 && r.End() >= 0xA0000+0x20000 {
			sawUncachedVGA = true
		}
		if r.Type == Reserved && r.Addr <= uint64(layout.KernelImageBase) && r.End() >= uint64(layout.KernelImageEnd) {
			sawReservedImage = true
		}
		if r.Type == Unmapped && r.Addr == 0 {
			sawUnmappedNull = true
		}
	}
	if !sawUncachedVGA {
		t.Error("expected an Uncached region covering the VGA MMIO hole")
	}
	if !sawReservedImage {
		t.Error("expected a Reserved region covering the kernel image")
	}
	if !sawUnmappedNull {
		t.Error("expected an Unmapped region starting at address 0")
	}
}

func TestAddRenormalizes(t *testing.T) {
	Init()
	before := len(Get())

	Add(0x7FE1000, 0x1000, Acpi)

	after := Get()
	if len(after) < before {
		t.Fatalf("expected Add to grow or preserve region count, had %d now %d", before, len(after))
	}

	var sawAcpi bool
	for _, r := range after {
		if r.Type == Acpi && r.Addr == 0x7FE1000 {
			sawAcpi = true
		}
	}
	if !sawAcpi {
		t.Error("expected the newly added ACPI region to survive renormalization")
	}

	for j := 0; j+1 < len(after); j++ {
		if after[j].End() != after[j+1].Addr {
			t.Fatalf("gap or overlap between region %d and %d after Add: %+v", j, j+1, after)
		}
	}
}
