// Package kernel implements the JIT kernel buffer: an accumulator for
// AArch64 instruction words with label resolution, W^X executable
// memory mapping, and a callable function pointer on finalize.
package kernel

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/mlcompile/tensorjit/internal/jitlog"
)

// Errors surfaced by Buffer. These are fatal to the current
// compilation attempt, per the propagation policy: nothing here is
// swallowed internally.
var (
	ErrLabelRedefined  = errors.New("kernel: label already defined")
	ErrLabelNotFound   = errors.New("kernel: label not found")
	ErrAlreadyFinal    = errors.New("kernel: buffer already finalized")
	ErrOutOfMemory     = errors.New("kernel: executable page allocation failed")
	ErrProtectionFailed = errors.New("kernel: mprotect failed")
)

// state models the buffer's W^X lifecycle as an explicit two-value
// state machine rather than a boolean flag: a buffer is Writable until
// Finalize succeeds, and Finalized from then until Release or a
// further Finalize call releases the page and starts over.
type state uint8

const (
	stateWritable state = iota
	stateFinalized
)

// Buffer accumulates instruction words, tracks labels by name, and
// owns at most one executable memory mapping at a time.
type Buffer struct {
	words  []uint32
	labels map[string]int

	st   state
	page []byte // raw mmap'd region, valid only while st == stateFinalized
	fn   unsafe.Pointer
}

// NewBuffer returns an empty, writable kernel buffer.
func NewBuffer() *Buffer {
	return &Buffer{labels: make(map[string]int)}
}

// Append pushes a single instruction word. Existing labels keep their
// recorded definition-time offset; InstrCountFromLabel grows because
// the buffer itself grows, not because label bookkeeping mutates.
func (b *Buffer) Append(word uint32) {
	b.words = append(b.words, word)
}

// AppendAll pushes a sequence of instruction words in order.
func (b *Buffer) AppendAll(words ...uint32) {
	b.words = append(b.words, words...)
}

// AddLabel records the current buffer length under name. Labels are
// snapshots at definition time: nothing is retroactively adjusted as
// the buffer grows.
func (b *Buffer) AddLabel(name string) error {
	if _, ok := b.labels[name]; ok {
		return fmt.Errorf("%w: %q", ErrLabelRedefined, name)
	}
	b.labels[name] = len(b.words)
	return nil
}

// InstrCountFromLabel returns the number of words appended after
// label's definition — i.e. len(words) - recorded offset, not
// including the word at the label itself. A backward branch to L
// therefore uses a displacement of -InstrCountFromLabel(L)*4 bytes.
func (b *Buffer) InstrCountFromLabel(name string) (int, error) {
	off, ok := b.labels[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrLabelNotFound, name)
	}
	return len(b.words) - off, nil
}

// Len returns the number of words currently in the buffer.
func (b *Buffer) Len() int { return len(b.words) }

// Words returns a read-only view of the accumulated buffer, valid
// regardless of W^X state (this is the pre-finalize bookkeeping copy,
// not the executable mapping).
func (b *Buffer) Words() []uint32 { return b.words }

// Finalize maps len(words)*4 bytes of anonymous read-write memory,
// copies the word buffer into it, flushes visibility by remapping the
// page read+execute, and returns a callable pointer. Calling Finalize
// again releases the previous mapping first.
func (b *Buffer) Finalize() (unsafe.Pointer, error) {
	if b.st == stateFinalized {
		if err := b.release(); err != nil {
			return nil, err
		}
	}
	if len(b.words) == 0 {
		return nil, nil
	}
	size := len(b.words) * 4
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		jitlog.Logger().WithError(err).Error("kernel: mmap failed")
		return nil, fmt.Errorf("%w: %v", ErrOutOfMemory, err)
	}
	for i, w := range b.words {
		mem[i*4+0] = byte(w)
		mem[i*4+1] = byte(w >> 8)
		mem[i*4+2] = byte(w >> 16)
		mem[i*4+3] = byte(w >> 24)
	}
	// The mmap/mprotect transition itself is what provides the
	// necessary visibility to the instruction stream on arm64; Go
	// exposes no portable, dedicated I-cache-flush primitive, so this
	// sequence (RW map, populate, switch to RX) is the whole story —
	// see DESIGN.md for why no stdlib/ecosystem alternative applies.
	if err := unix.Mprotect(mem, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		_ = unix.Munmap(mem)
		jitlog.Logger().WithError(err).Error("kernel: mprotect failed")
		return nil, fmt.Errorf("%w: %v", ErrProtectionFailed, err)
	}
	b.page = mem
	b.fn = unsafe.Pointer(&b.page[0])
	b.st = stateFinalized
	return b.fn, nil
}

// Kernel returns the current executable pointer, or nil if the buffer
// has never been finalized.
func (b *Buffer) Kernel() unsafe.Pointer {
	if b.st != stateFinalized {
		return nil
	}
	return b.fn
}

// Release unmaps the executable page, if any, and returns the buffer
// to the writable state. It is idempotent.
func (b *Buffer) Release() error { return b.release() }

func (b *Buffer) release() error {
	if b.st != stateFinalized {
		return nil
	}
	err := unix.Munmap(b.page)
	b.page = nil
	b.fn = nil
	b.st = stateWritable
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProtectionFailed, err)
	}
	return nil
}

// WriteTo persists the raw little-endian word stream to
// <dir>/<name>.bin, creating dir if missing. This is the optional
// "persisted state" interface of the external-interfaces spec: a
// debugging aid, never consulted by Finalize itself.
func (b *Buffer) WriteTo(dir, name string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("kernel: create dir %q: %w", dir, err)
	}
	buf := make([]byte, len(b.words)*4)
	for i, w := range b.words {
		buf[i*4+0] = byte(w)
		buf[i*4+1] = byte(w >> 8)
		buf[i*4+2] = byte(w >> 16)
		buf[i*4+3] = byte(w >> 24)
	}
	path := filepath.Join(dir, name+".bin")
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("kernel: write %q: %w", path, err)
	}
	return nil
}
