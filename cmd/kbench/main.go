// kbench times the KMEM page-table builder and the PFDB allocate/free hot
// loop against a simulated physical address space, and writes the result as
// a pprof profile inspectable with `go tool pprof`.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"
	"unsafe"

	"kestrel/kernel/mem"
	"kestrel/kernel/pfdb"
	"kestrel/kernel/pmap"
	"kestrel/kernel/vmm"

	"github.com/google/pprof/profile"
	"golang.org/x/sys/unix"
)

func main() {
	out := flag.String("out", "kbench.pprof", "output pprof profile path")
	iterations := flag.Int("n", 50000, "number of alloc/free iterations")
	flag.Parse()

	if err := run(*out, *iterations); err != nil {
		fmt.Fprintln(os.Stderr, "kbench:", err)
		os.Exit(1)
	}
}

const (
	benchBase = 0x10000000
	benchSize = 256 * uint64(mem.Mb)
)

func run(outPath string, n int) error {
	const span = 1024 * 1024 * 1024
	buf, err := unix.Mmap(-1, 0, span, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return fmt.Errorf("mmap: %w", err)
	}
	defer unix.Munmap(buf)

	if err := unix.Mlock(buf); err != nil {
		fmt.Fprintln(os.Stderr, "kbench: Mlock failed (continuing unlocked):", err)
	} else {
		defer unix.Munlock(buf)
	}

	off := uintptr(unsafe.Pointer(&buf[0]))
	vmm.SetBackingOffset(off)
	pfdb.SetBackingOffset(off)
	defer func() {
		vmm.SetBackingOffset(0)
		pfdb.SetBackingOffset(0)
	}()

	pmap.Init()
	pmap.Add(benchBase, benchSize, pmap.Usable)

	kmemStart := time.Now()
	if err := vmm.Init(); err != nil {
		return fmt.Errorf("vmm.Init: %w", err)
	}
	kmemElapsed := time.Since(kmemStart)

	if err := pfdb.Init(); err != nil {
		return fmt.Errorf("pfdb.Init: %w", err)
	}

	allocElapsed, freeElapsed, err := benchAllocFree(n)
	if err != nil {
		return err
	}

	samples := []sample{
		{"kmem_init", 1, kmemElapsed},
		{"pfdb_alloc", int64(n), allocElapsed},
		{"pfdb_free", int64(n), freeElapsed},
	}
	return writeProfile(outPath, samples)
}

// benchAllocFree allocates n frames, then frees every one of them, timing
// each phase separately.
func benchAllocFree(n int) (alloc, free time.Duration, err error) {
	frames := make([]pfdb.Frame, n)

	start := time.Now()
	for i := 0; i < n; i++ {
		f, ferr := pfdb.Alloc()
		if ferr != nil {
			return 0, 0, fmt.Errorf("pfdb.Alloc at iteration %d: %w", i, ferr)
		}
		frames[i] = f
	}
	alloc = time.Since(start)

	start = time.Now()
	for _, f := range frames {
		if ferr := pfdb.Free(f); ferr != nil {
			return 0, 0, fmt.Errorf("pfdb.Free: %w", ferr)
		}
	}
	free = time.Since(start)

	return alloc, free, nil
}

type sample struct {
	label string
	count int64
	took  time.Duration
}

// writeProfile builds a minimal pprof profile with one synthetic location
// per benched operation and two sample value types (operation count, total
// nanoseconds), the shape `go tool pprof -top` needs to rank them.
func writeProfile(path string, samples []sample) error {
	p := &profile.Profile{
		SampleType: []*profile.ValueType{
			{Type: "operations", Unit: "count"},
			{Type: "time", Unit: "nanoseconds"},
		},
		TimeNanos: time.Now().UnixNano(),
	}

	for i, s := range samples {
		id := uint64(i + 1)
		fn := &profile.Function{ID: id, Name: s.label, SystemName: s.label}
		loc := &profile.Location{ID: id, Line: []profile.Line{{Function: fn, Line: 1}}}
		p.Function = append(p.Function, fn)
		p.Location = append(p.Location, loc)
		p.Sample = append(p.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    []int64{s.count, s.took.Nanoseconds()},
		})
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := p.Write(f); err != nil {
		return fmt.Errorf("writing profile: %w", err)
	}
	fmt.Printf("kbench: wrote %s\n", path)
	return nil
}
