package microkernel

import (
	"errors"
	"fmt"

	"github.com/mlcompile/tensorjit/internal/kernel"
	"github.com/mlcompile/tensorjit/internal/loopnest"
)

// Kind is the primitive-type tag that selects a microkernel family,
// matching spec.md §3's enumerated set.
type Kind uint8

const (
	None Kind = iota
	Zero
	CopyRelu
	GEMM
	BRGEMM
	FastSigmoid
	ReLU
	Square
	Reciprocal
	SigmoidTaylor
	SigmoidInterp
	Identity
	Add
	Sub
	Mul
	Div
	Min
	Max
	Increment
	Decrement
)

// ErrUnsupportedKind is returned by Generate for a Kind with no
// registered generator.
var ErrUnsupportedKind = errors.New("microkernel: unsupported primitive kind")

// Generate appends a self-contained kernel body for kind to buf, using
// the trailing Prim dimensions of dims to size the tile. It dispatches
// to the matmul, unary, or binary family based on kind.
func Generate(buf *kernel.Buffer, kind Kind, dims []loopnest.Dimension) error {
	switch kind {
	case GEMM, BRGEMM:
		m, n, k, hasBR := gemmShape(dims)
		return GenerateMatmul(buf, m, n, k > 0, hasBR || kind == BRGEMM)
	case ReLU, Zero, Identity, Square, Reciprocal, FastSigmoid, SigmoidTaylor, SigmoidInterp, Increment, Decrement, CopyRelu:
		m, n := unaryShape(dims)
		return GenerateUnary(buf, kind, m, n)
	case Add, Sub, Mul, Div, Min, Max:
		m, n := unaryShape(dims)
		return GenerateBinary(buf, kind, m, n)
	default:
		return fmt.Errorf("%w: %d", ErrUnsupportedKind, kind)
	}
}

func gemmShape(dims []loopnest.Dimension) (m, n, k int, hasBR bool) {
	for _, d := range dims {
		switch d.Type {
		case loopnest.M:
			m = d.Size
		case loopnest.N:
			n = d.Size
		case loopnest.K:
			if k != 0 {
				hasBR = true
			}
			k = d.Size
		}
	}
	if m == 0 {
		m = 1
	}
	if n == 0 {
		n = 1
	}
	return m, n, k, hasBR
}

func unaryShape(dims []loopnest.Dimension) (m, n int) {
	sizes := make([]int, 0, 2)
	for _, d := range dims {
		if d.Type == loopnest.C || d.Type == loopnest.M || d.Type == loopnest.N {
			sizes = append(sizes, d.Size)
		}
	}
	switch len(sizes) {
	case 0:
		return 1, 1
	case 1:
		return sizes[0], 1
	default:
		return sizes[0], sizes[1]
	}
}
