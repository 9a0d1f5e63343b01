package kfmt

import (
	"kestrel/kernel"
	"kestrel/kernel/cpu"
)

var (
	// cpuFatalFn is mocked by tests, which cannot raise a real software
	// interrupt.
	cpuFatalFn = cpu.RaiseFatal

	errRuntimePanic = &kernel.Error{Module: "rt", Message: "unknown cause"}
)

// Panic logs the supplied error and stops the CPU through the fatal
// software interrupt; it never returns. The argument may be a
// *kernel.Error, an ordinary error, or a string; the latter two are folded
// into the shared runtime-panic error. Panic doubles as the redirect target
// for the Go runtime's own panic entry point.
//
//go:redirect-from runtime.gopanic
func Panic(e interface{}) {
	var err *kernel.Error

	switch t := e.(type) {
	case *kernel.Error:
		err = t
	case string:
		errRuntimePanic.Message = t
		err = errRuntimePanic
	case error:
		errRuntimePanic.Message = t.Error()
		err = errRuntimePanic
	}

	Printf("\n-----------------------------------\n")
	if err != nil {
		Printf("[%s] unrecoverable error: %s\n", err.Module, err.Message)
	}
	Printf("*** kernel panic: system halted ***")
	Printf("\n-----------------------------------")

	cpuFatalFn()
}

// panicString adapts runtime.throw's bare string argument onto Panic.
//
//go:redirect-from runtime.throw
func panicString(msg string) {
	Panic(msg)
}
