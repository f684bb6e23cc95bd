// Package tensorjit JITs AArch64/NEON machine code for tensor
// operations: dense matmul and batch-reduce GEMM, elementwise unary
// and binary kernels, and einsum-style contraction trees, each lowered
// through a loop-nest optimizer targeting register-resident primitive
// blocks and a worker-pool-parallel outer loop nest.
package tensorjit

import (
	"errors"
	"unsafe"

	"github.com/mlcompile/tensorjit/internal/driver"
	"github.com/mlcompile/tensorjit/internal/einsum"
	"github.com/mlcompile/tensorjit/internal/loopnest"
	"github.com/mlcompile/tensorjit/internal/microkernel"
	"github.com/mlcompile/tensorjit/internal/optimizer"
)

// Sentinel errors of the public surface. Compile, NewEinsum and the
// Execute methods return the internal packages' own sentinels (wrapped
// with context) unchanged and do not map them onto these, so errors.Is
// against one of these does not match an error those functions return.
var (
	ErrOperandWidthMismatch     = errors.New("tensorjit: operand width mismatch")
	ErrUnencodableImmediate     = errors.New("tensorjit: immediate cannot be encoded")
	ErrImmediateTooLarge        = errors.New("tensorjit: immediate too large for a single MOVZ")
	ErrCannotIdentifyPrimitives = errors.New("tensorjit: cannot identify primitive dimensions")
	ErrOutOfMemory              = errors.New("tensorjit: executable page allocation failed")
	ErrProtectionChangeFailed   = errors.New("tensorjit: mprotect failed")
)

// DType names a TensorOp's element type. Only Float32 is implemented.
type DType = driver.DType

// Float32 is the only currently supported element type.
const Float32 DType = driver.FP32

// Kind selects a microkernel family for a Dimension list's trailing
// primitive dimensions: matmul/BRGEMM, an elementwise unary activation,
// or an elementwise binary arithmetic op.
type Kind = microkernel.Kind

// Primitive kinds, re-exported from internal/microkernel so callers
// never import an internal package directly.
const (
	KindGEMM          = microkernel.GEMM
	KindBRGEMM        = microkernel.BRGEMM
	KindReLU          = microkernel.ReLU
	KindSquare        = microkernel.Square
	KindReciprocal    = microkernel.Reciprocal
	KindFastSigmoid   = microkernel.FastSigmoid
	KindSigmoidTaylor = microkernel.SigmoidTaylor
	KindSigmoidInterp = microkernel.SigmoidInterp
	KindIdentity      = microkernel.Identity
	KindZero          = microkernel.Zero
	KindCopyRelu      = microkernel.CopyRelu
	KindIncrement     = microkernel.Increment
	KindDecrement     = microkernel.Decrement
	KindAdd           = microkernel.Add
	KindSub           = microkernel.Sub
	KindMul           = microkernel.Mul
	KindDiv           = microkernel.Div
	KindMin           = microkernel.Min
	KindMax           = microkernel.Max
)

// DimType and ExecType are re-exported so callers can build a
// Dimension list without importing internal/loopnest.
type (
	DimType  = loopnest.DimType
	ExecType = loopnest.ExecType
	Dimension = loopnest.Dimension
)

// Dimension type tags, re-exported from internal/loopnest.
const (
	DimM DimType = loopnest.M
	DimN DimType = loopnest.N
	DimK DimType = loopnest.K
	DimC DimType = loopnest.C
)

// Targets bounds the loop-nest optimizer's fuse/split/parallelize
// decisions: dimensions smaller than MinKernelSize are fused into
// their neighbor, dimensions larger than MaxKernelSize are split, and
// ThreadTarget guides how many outer dimensions become Shared
// (worker-pool parallel) loops.
type Targets = optimizer.Targets

// TensorOp is a compiled, runnable tensor operation produced by
// Compile. Call Execute with element pointers to run it, and Release
// once done to free its executable pages.
type TensorOp struct {
	inner *driver.TensorOp
}

// Compile validates dims, runs the loop-nest optimizer over them, and
// JITs the requested first-touch/main/last-touch kernel bodies. main
// is required; firstTouch and lastTouch are omitted by passing the
// zero Kind value, Kind(0), which is none of the Kind* constants
// (KindZero is a kernel that clears C).
func Compile(dtype DType, firstTouch, main, lastTouch Kind, dims []Dimension, targets Targets) (*TensorOp, error) {
	op, err := driver.Setup(dtype, firstTouch, main, lastTouch, dims, targets)
	if err != nil {
		return nil, err
	}
	return &TensorOp{inner: op}, nil
}

// Execute runs the compiled operation over three element-pointer
// operands (typically obtained via unsafe.Pointer(&slice[0])),
// fanning the outer loop nest's Shared dimensions across a worker
// pool and running Seq dimensions sequentially within each worker.
func (t *TensorOp) Execute(a, b, c unsafe.Pointer) error {
	return t.inner.Execute(a, b, c)
}

// Release frees every executable page this TensorOp owns. Safe to
// call more than once.
func (t *TensorOp) Release() {
	t.inner.Release()
}

// Einsum is a parsed, optimized, and lowered contraction tree, ready
// to evaluate repeatedly over different leaf buffers.
type Einsum struct {
	root *einsum.Node
}

// NewEinsum parses expr (one or more ';'-separated contraction or
// permutation lines, each of the form "[i0,i1]->[o0,o1]" or
// "[i0],[i1]->[o0]"), runs the loop-nest optimizer over every internal
// node, and JITs a kernel per node. sizes is indexed by dimension id.
func NewEinsum(expr string, sizes []int, targets Targets) (*Einsum, error) {
	root, err := einsum.ParseExpression(expr, sizes)
	if err != nil {
		return nil, err
	}
	if err := einsum.OptimizeNodes(root, targets); err != nil {
		return nil, err
	}
	if err := einsum.Lower(root); err != nil {
		return nil, err
	}
	return &Einsum{root: root}, nil
}

// Execute evaluates the tree over leaves (a flat buffer per distinct
// leaf tensor, keyed by the leaf's position of first appearance in
// expr, starting at 0) and returns the root's output buffer.
func (e *Einsum) Execute(leaves map[int][]float32) ([]float32, error) {
	return einsum.Execute(e.root, leaves)
}
