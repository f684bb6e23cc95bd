package kernel

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestAppendAndLen(t *testing.T) {
	b := NewBuffer()
	if b.Len() != 0 {
		t.Fatalf("new buffer Len() = %d, want 0", b.Len())
	}
	b.Append(0xdeadbeef)
	b.AppendAll(1, 2, 3)
	if b.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", b.Len())
	}
	words := b.Words()
	if words[0] != 0xdeadbeef || words[3] != 3 {
		t.Fatalf("unexpected word contents: %v", words)
	}
}

func TestLabelRedefinitionRejected(t *testing.T) {
	b := NewBuffer()
	if err := b.AddLabel("loop"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := b.AddLabel("loop"); !errors.Is(err, ErrLabelRedefined) {
		t.Fatalf("expected ErrLabelRedefined, got %v", err)
	}
}

func TestInstrCountFromLabelNotFound(t *testing.T) {
	b := NewBuffer()
	if _, err := b.InstrCountFromLabel("nope"); !errors.Is(err, ErrLabelNotFound) {
		t.Fatalf("expected ErrLabelNotFound, got %v", err)
	}
}

func TestInstrCountFromLabelIsASnapshot(t *testing.T) {
	b := NewBuffer()
	b.Append(1)
	if err := b.AddLabel("here"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b.AppendAll(2, 3, 4)
	n, err := b.InstrCountFromLabel("here")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 3 {
		t.Fatalf("InstrCountFromLabel = %d, want 3", n)
	}
}

func TestFinalizeEmptyBufferReturnsNil(t *testing.T) {
	b := NewBuffer()
	fn, err := b.Finalize()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fn != nil {
		t.Fatalf("expected a nil pointer for an empty buffer, got %v", fn)
	}
}

func TestKernelNilBeforeFinalize(t *testing.T) {
	b := NewBuffer()
	b.Append(0)
	if k := b.Kernel(); k != nil {
		t.Fatalf("expected nil Kernel() before Finalize, got %v", k)
	}
}

func TestFinalizeThenRelease(t *testing.T) {
	b := NewBuffer()
	// MOVZ x0, #0 ; RET
	b.AppendAll(0xd2800000, 0xd65f03c0)
	fn, err := b.Finalize()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fn == nil {
		t.Fatalf("expected a non-nil executable pointer")
	}
	if b.Kernel() != fn {
		t.Fatalf("Kernel() should return the pointer Finalize returned")
	}
	if err := b.Release(); err != nil {
		t.Fatalf("unexpected error releasing: %v", err)
	}
	if b.Kernel() != nil {
		t.Fatalf("Kernel() should be nil after Release")
	}
	// Release is idempotent.
	if err := b.Release(); err != nil {
		t.Fatalf("unexpected error on a second Release: %v", err)
	}
}

func TestFinalizeTwiceReleasesThePreviousMapping(t *testing.T) {
	b := NewBuffer()
	b.Append(0xd2800000)
	if _, err := b.Finalize(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b.Append(0xd65f03c0)
	fn2, err := b.Finalize()
	if err != nil {
		t.Fatalf("unexpected error on the second Finalize: %v", err)
	}
	if fn2 == nil {
		t.Fatalf("expected a non-nil pointer on the second Finalize")
	}
	_ = b.Release()
}

func TestWriteToPersistsWordStream(t *testing.T) {
	b := NewBuffer()
	b.AppendAll(1, 2, 3)
	dir := t.TempDir()
	if err := b.WriteTo(dir, "kern"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "kern.bin"))
	if err != nil {
		t.Fatalf("unexpected error reading back: %v", err)
	}
	if len(data) != 12 {
		t.Fatalf("len(data) = %d, want 12", len(data))
	}
	if data[0] != 1 || data[4] != 2 || data[8] != 3 {
		t.Fatalf("unexpected little-endian word layout: %v", data)
	}
}
