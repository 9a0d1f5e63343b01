// kdiag is a host-side inspector for the kestrel core's serialized state:
// it builds the same IDT/thunk table and PMAP/PFDB layout the freestanding
// code would, backed by an anonymous mmap'd buffer instead of physical
// memory, and prints what a debugger would otherwise have to pull out of a
// running kernel by hand.
//
// kdiag never calls idt.Init or anything else that executes a privileged
// instruction (OUT, LIDT); those would fault running as an ordinary
// process. It sticks to the pure table-building logic each package exposes
// for exactly this purpose; pmap.Init and pfdb.Init are among them, since
// they only build in-memory tables.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"unsafe"

	"kestrel/internal/klog"
	"kestrel/kernel/idt"
	"kestrel/kernel/mem"
	"kestrel/kernel/pfdb"
	"kestrel/kernel/pmap"

	"golang.org/x/arch/x86/x86asm"
	"golang.org/x/sys/unix"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, out *os.File) int {
	logger := klog.New(os.Stderr)
	slog.SetDefault(logger)

	if len(args) == 0 {
		fmt.Fprintln(out, "usage: kdiag <thunks|idt|pfdb>")
		return 1
	}

	switch args[0] {
	case "thunks":
		return runThunks(args[1:], out, logger)
	case "idt":
		return runIDT(args[1:], out, logger)
	case "pfdb":
		return runPFDB(args[1:], out, logger)
	default:
		fmt.Fprintf(out, "kdiag: unknown subcommand %q\n", args[0])
		return 1
	}
}

// withScratchMemory mmaps a buffer standing in for physical memory and
// points both idt's and pfdb's backingOffset hooks at it, the same way
// their own package tests do.
func withScratchMemory(fn func()) error {
	const span = 512 * 1024 * 1024
	buf, err := unix.Mmap(-1, 0, span, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return err
	}
	defer unix.Munmap(buf)

	off := uintptr(unsafe.Pointer(&buf[0]))
	idt.SetBackingOffset(off)
	pfdb.SetBackingOffset(off)
	defer func() {
		idt.SetBackingOffset(0)
		pfdb.SetBackingOffset(0)
	}()

	fn()
	return nil
}

func runThunks(args []string, out *os.File, logger *slog.Logger) int {
	fs := flag.NewFlagSet("thunks", flag.ExitOnError)
	vector := fs.Int("vector", -1, "dump only this vector (default: all)")
	fs.Parse(args)

	if err := withScratchMemory(func() {
		idt.Build()
		table := idt.ThunkBytes()

		for v := 0; v < idt.VectorCount; v++ {
			if *vector >= 0 && v != *vector {
				continue
			}
			code := table[v*idt.ThunkSize : (v+1)*idt.ThunkSize]
			fmt.Fprintf(out, "vector %#04x: % x\n", v, code)
			disassemble(out, code)
		}
	}); err != nil {
		logger.Error("kdiag: thunks", "error", err)
		return 1
	}
	return 0
}

func disassemble(out *os.File, code []byte) {
	off := 0
	for off < len(code) {
		inst, err := x86asm.Decode(code[off:], 64)
		if err != nil || inst.Len == 0 {
			fmt.Fprintf(out, "  +%-2d <decode error: %v>\n", off, err)
			return
		}
		fmt.Fprintf(out, "  +%-2d %s\n", off, inst.String())
		off += inst.Len
	}
}

func runIDT(args []string, out *os.File, logger *slog.Logger) int {
	if err := withScratchMemory(func() {
		idt.Build()
		for _, d := range idt.Descriptors() {
			fmt.Fprintf(out, "vector %#04x offset=%#016x selector=%#04x ist=%d type=%#02x\n",
				d.Vector, d.Offset, d.Selector, d.IST, d.TypeAttr)
		}
	}); err != nil {
		logger.Error("kdiag: idt", "error", err)
		return 1
	}
	return 0
}

func runPFDB(args []string, out *os.File, logger *slog.Logger) int {
	fs := flag.NewFlagSet("pfdb", flag.ExitOnError)
	base := fs.Uint64("base", 0x10000000, "base address of the simulated Usable region")
	size := fs.Uint64("size", 64*uint64(mem.Mb), "size of the simulated Usable region")
	fs.Parse(args)

	if err := withScratchMemory(func() {
		pmap.Init()
		pmap.Add(*base, *size, pmap.Usable)
		if err := pfdb.Init(); err != nil {
			logger.Error("kdiag: pfdb.Init", "error", err)
			return
		}
		fmt.Fprintf(out, "frames available: %d\n", pfdb.Avail())
		fmt.Fprintf(out, "pmap regions:\n")
		for _, r := range pmap.Get() {
			fmt.Fprintf(out, "  %#012x-%#012x %s\n", r.Addr, r.End(), r.Type)
		}
	}); err != nil {
		logger.Error("kdiag: pfdb", "error", err)
		return 1
	}
	return 0
}
