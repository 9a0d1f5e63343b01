package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRunWritesProfile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "bench.pprof")

	if err := run(out, 1000); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	info, err := os.Stat(out)
	if err != nil {
		t.Fatalf("profile was not written: %v", err)
	}
	if info.Size() == 0 {
		t.Fatal("profile file is empty")
	}
}
