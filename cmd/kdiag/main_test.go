package main

import (
	"os"
	"testing"
)

func TestRunThunksDumpsAllVectors(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "kdiag-thunks")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if code := run([]string{"thunks"}, f); code != 0 {
		t.Fatalf("run(thunks) = %d, want 0", code)
	}
}

func TestRunIDTDumpsDescriptors(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "kdiag-idt")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if code := run([]string{"idt"}, f); code != 0 {
		t.Fatalf("run(idt) = %d, want 0", code)
	}
}

func TestRunPFDBReportsAvailableFrames(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "kdiag-pfdb")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if code := run([]string{"pfdb", "-size=16777216"}, f); code != 0 {
		t.Fatalf("run(pfdb) = %d, want 0", code)
	}
}

func TestRunUnknownSubcommand(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "kdiag-unknown")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if code := run([]string{"bogus"}, f); code == 0 {
		t.Fatal("run(bogus) = 0, want non-zero")
	}
}
