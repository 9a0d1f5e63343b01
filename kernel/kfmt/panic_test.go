package kfmt

import (
	"bytes"
	"errors"
	"kestrel/kernel"
	"kestrel/kernel/cpu"
	"testing"
)

func TestPanic(t *testing.T) {
	defer func() {
		cpuFatalFn = cpu.RaiseFatal
	}()

	var cpuFatalCalled bool
	cpuFatalFn = func() {
		cpuFatalCalled = true
	}

	t.Run("with *kernel.Error", func(t *testing.T) {
		cpuFatalCalled = false
		var buf bytes.Buffer
		SetOutputSink(&buf)
		err := &kernel.Error{Module: "test", Message: "panic test"}

		Panic(err)

		exp := "\n-----------------------------------\n[test] unrecoverable error: panic test\n*** kernel panic: system halted ***\n-----------------------------------"

		if got := buf.String(); got != exp {
			t.Fatalf("expected to get:\n%q\ngot:\n%q", exp, got)
		}

		if !cpuFatalCalled {
			t.Fatal("expected Panic to raise the fatal interrupt")
		}
	})

	t.Run("with error", func(t *testing.T) {
		cpuFatalCalled = false
		var buf bytes.Buffer
		SetOutputSink(&buf)
		err := errors.New("go error")

		Panic(err)

		exp := "\n-----------------------------------\n[rt] unrecoverable error: go error\n*** kernel panic: system halted ***\n-----------------------------------"

		if got := buf.String(); got != exp {
			t.Fatalf("expected to get:\n%q\ngot:\n%q", exp, got)
		}

		if !cpuFatalCalled {
			t.Fatal("expected Panic to raise the fatal interrupt")
		}
	})

	t.Run("with string", func(t *testing.T) {
		cpuFatalCalled = false
		var buf bytes.Buffer
		SetOutputSink(&buf)
		err := "string error"

		Panic(err)

		exp := "\n-----------------------------------\n[rt] unrecoverable error: string error\n*** kernel panic: system halted ***\n-----------------------------------"

		if got := buf.String(); got != exp {
			t.Fatalf("expected to get:\n%q\ngot:\n%q", exp, got)
		}

		if !cpuFatalCalled {
			t.Fatal("expected Panic to raise the fatal interrupt")
		}
	})

	t.Run("without error", func(t *testing.T) {
		cpuFatalCalled = false
		var buf bytes.Buffer
		SetOutputSink(&buf)

		Panic(nil)

		exp := "\n-----------------------------------\n*** kernel panic: system halted ***\n-----------------------------------"

		if got := buf.String(); got != exp {
			t.Fatalf("expected to get:\n%q\ngot:\n%q", exp, got)
		}

		if !cpuFatalCalled {
			t.Fatal("expected Panic to raise the fatal interrupt")
		}
	})
}
