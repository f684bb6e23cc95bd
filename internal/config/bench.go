// Package config models benchmark and driver configuration as tagged
// variants over plain data, rather than as a class hierarchy: the
// original mini_jit source used inheritance to share state between
// benchmark kinds even though none of that code is genuinely stateful.
// A BenchConfig is a closed sum type (Kind + the fields that kind
// uses); dispatch on it is a switch in a free function, never a
// virtual method.
package config

import (
	"strconv"

	"github.com/mlcompile/tensorjit/internal/loopnest"
)

// BenchKind tags which microkernel family a BenchConfig describes.
type BenchKind uint8

const (
	BenchMatmul BenchKind = iota
	BenchBRGEMM
	BenchUnary
	BenchBinary
)

// BenchConfig is a flat, tagged-variant description of one benchmark
// run. Only the fields relevant to Kind are meaningful; free functions
// in this package (not methods) interpret it.
type BenchConfig struct {
	Kind BenchKind

	M, N, K int // matmul/BRGEMM dimensions
	Batch   int // BRGEMM batch-reduce count

	Dims []loopnest.Dimension // optimizer targets, unary/binary

	MinKernelSize, MaxKernelSize, ThreadTarget int
}

// Targets extracts the optimizer's three tuning knobs from a
// BenchConfig, applying documented defaults when unset.
func Targets(c BenchConfig) (min, max, threadTarget int) {
	min, max, threadTarget = c.MinKernelSize, c.MaxKernelSize, c.ThreadTarget
	if min == 0 {
		min = 1
	}
	if max == 0 {
		max = 1024
	}
	if threadTarget == 0 {
		threadTarget = 1
	}
	return min, max, threadTarget
}

// Describe renders a one-line human-readable summary of c, used by
// jitlog diagnostics and by example drivers.
func Describe(c BenchConfig) string {
	itoa := strconv.Itoa
	switch c.Kind {
	case BenchMatmul:
		return "matmul(" + itoa(c.M) + "x" + itoa(c.N) + "x" + itoa(c.K) + ")"
	case BenchBRGEMM:
		return "brgemm(" + itoa(c.M) + "x" + itoa(c.N) + "x" + itoa(c.K) + ",batch=" + itoa(c.Batch) + ")"
	case BenchUnary:
		return "unary(" + itoa(len(c.Dims)) + " dims)"
	case BenchBinary:
		return "binary(" + itoa(len(c.Dims)) + " dims)"
	default:
		return "unknown"
	}
}
