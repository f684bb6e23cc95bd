// Package driver implements the tensor-operation driver: it runs the
// optimizer over a caller-supplied loop nest, JITs the first-touch,
// main, and last-touch microkernels, and on Execute walks the outer
// loop nest — sequentially for Seq dimensions, fork-joined across a
// worker pool for Shared dimensions — computing each worker's tensor
// pointers from the accumulated stride offsets.
package driver

import (
	"errors"
	"fmt"
	"runtime"
	"unsafe"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/mlcompile/tensorjit/internal/jitlog"
	"github.com/mlcompile/tensorjit/internal/kernel"
	"github.com/mlcompile/tensorjit/internal/loopnest"
	"github.com/mlcompile/tensorjit/internal/microkernel"
	"github.com/mlcompile/tensorjit/internal/optimizer"
)

// DType names the element type a TensorOp operates over. Only fp32 is
// implemented; the field exists so the configuration surface matches
// spec.md's setup(dtype, ...) signature.
type DType uint8

const (
	FP32 DType = iota
)

// ElemSize returns the size in bytes of one element of d.
func (d DType) ElemSize() int {
	switch d {
	case FP32:
		return 4
	default:
		return 4
	}
}

var (
	// ErrBadDimensions is returned by Setup when dims is empty or main
	// is microkernel.None. Optimizer failures are returned wrapped as
	// the optimizer reports them.
	ErrBadDimensions = errors.New("driver: invalid dimension configuration")
)

// TensorOp is a compiled, runnable tensor operation: the optimized
// Dimension list plus up to three JITted kernel pointers (first-touch,
// main, last-touch).
type TensorOp struct {
	dtype DType
	dims  []loopnest.Dimension

	firstTouch unsafe.Pointer
	main       unsafe.Pointer
	lastTouch  unsafe.Pointer

	firstTouchBuf, mainBuf, lastTouchBuf *kernel.Buffer

	primM, primN, primK int // sizes of the identified prim dimensions, -1 if absent
}

// Setup validates dims, runs the optimizer, and JITs the requested
// kernels. main is always required; firstTouch/lastTouch may be
// microkernel.None.
func Setup(dtype DType, firstTouch, main, lastTouch microkernel.Kind, dims []loopnest.Dimension, targets optimizer.Targets) (*TensorOp, error) {
	if len(dims) == 0 {
		return nil, fmt.Errorf("%w: empty dimension list", ErrBadDimensions)
	}

	optimized, err := optimizer.Optimize(dims, targets)
	if err != nil {
		return nil, fmt.Errorf("driver: setup: %w", err)
	}

	op := &TensorOp{dtype: dtype, dims: optimized, primM: -1, primN: -1, primK: -1}
	primDims := trailingPrims(optimized)
	if err := op.classifyPrims(primDims, main); err != nil {
		return nil, err
	}

	if main == microkernel.None {
		return nil, fmt.Errorf("%w: main primitive is required", ErrBadDimensions)
	}
	mainBuf, mainFn, err := jitPrimitive(main, primDims)
	if err != nil {
		return nil, fmt.Errorf("driver: setup: main kernel: %w", err)
	}
	op.mainBuf, op.main = mainBuf, mainFn

	if firstTouch != microkernel.None {
		buf, fn, err := jitPrimitive(firstTouch, primDims)
		if err != nil {
			return nil, fmt.Errorf("driver: setup: first-touch kernel: %w", err)
		}
		op.firstTouchBuf, op.firstTouch = buf, fn
	}
	if lastTouch != microkernel.None {
		buf, fn, err := jitPrimitive(lastTouch, primDims)
		if err != nil {
			return nil, fmt.Errorf("driver: setup: last-touch kernel: %w", err)
		}
		op.lastTouchBuf, op.lastTouch = buf, fn
	}

	jitlog.Logger().WithFields(logrus.Fields{
		"prims": len(primDims),
		"dims":  len(optimized),
	}).Debug("driver: setup complete")

	return op, nil
}

// trailingPrims returns the suffix of dims whose Exec is Prim — the
// optimizer always moves them to the tail.
func trailingPrims(dims []loopnest.Dimension) []loopnest.Dimension {
	i := len(dims)
	for i > 0 && dims[i-1].Exec == loopnest.Prim {
		i--
	}
	return dims[i:]
}

func (op *TensorOp) classifyPrims(prims []loopnest.Dimension, main microkernel.Kind) error {
	for _, d := range prims {
		switch d.Type {
		case loopnest.M:
			op.primM = d.Size
		case loopnest.N:
			op.primN = d.Size
		case loopnest.K:
			op.primK = d.Size
		}
	}
	return nil
}

func jitPrimitive(kind microkernel.Kind, prims []loopnest.Dimension) (*kernel.Buffer, unsafe.Pointer, error) {
	buf := kernel.NewBuffer()
	if err := microkernel.Generate(buf, kind, prims); err != nil {
		return nil, nil, err
	}
	fn, err := buf.Finalize()
	if err != nil {
		return nil, nil, err
	}
	return buf, fn, nil
}

// Execute walks the outer loop nest over a, b, c (element pointers),
// running Shared-loop iterations across a worker pool and Seq-loop
// iterations sequentially within each worker, then invoking
// first-touch/main/last-touch at the innermost level with pointers
// adjusted by the accumulated stride offsets.
func (op *TensorOp) Execute(a, b, c unsafe.Pointer) error {
	outer := outerDims(op.dims)
	shared, seq := splitSharedSeq(outer)

	elemSize := uintptr(op.dtype.ElemSize())

	run := func(sharedIdx []int) error {
		return op.runSeqNest(seq, sharedIdx, shared, a, b, c, elemSize)
	}

	if len(shared) == 0 {
		return run(nil)
	}

	g := new(errgroup.Group)
	g.SetLimit(runtime.GOMAXPROCS(0))

	total := 1
	for _, d := range shared {
		total *= d.Size
	}
	for linear := 0; linear < total; linear++ {
		idx := unflatten(linear, shared)
		g.Go(func() error {
			return run(idx)
		})
	}
	return g.Wait()
}

func outerDims(dims []loopnest.Dimension) []loopnest.Dimension {
	i := len(dims)
	for i > 0 && dims[i-1].Exec == loopnest.Prim {
		i--
	}
	return dims[:i]
}

func splitSharedSeq(dims []loopnest.Dimension) (shared, seq []loopnest.Dimension) {
	for _, d := range dims {
		if d.Exec == loopnest.Shared {
			shared = append(shared, d)
		} else {
			seq = append(seq, d)
		}
	}
	return
}

func unflatten(linear int, dims []loopnest.Dimension) []int {
	idx := make([]int, len(dims))
	for i := len(dims) - 1; i >= 0; i-- {
		idx[i] = linear % dims[i].Size
		linear /= dims[i].Size
	}
	return idx
}

// runSeqNest recurses through the Seq dimensions under a fixed Shared
// index, accumulating byte offsets, and invokes the kernel triple at
// the bottom. isFirst/isLast start true: they only go false once the
// recursion enters a dimension whose StrideOut is 0, meaning every
// iteration of that dimension revisits the same C tile (a split
// reduction dimension, e.g. an outer K remainder) rather than
// addressing a fresh one.
func (op *TensorOp) runSeqNest(seq []loopnest.Dimension, sharedIdx []int, shared []loopnest.Dimension, a, b, c unsafe.Pointer, elemSize uintptr) error {
	var offIn0, offIn1, offOut uintptr
	for i, d := range shared {
		offIn0 += uintptr(sharedIdx[i]*d.StrideIn0) * elemSize
		offIn1 += uintptr(sharedIdx[i]*d.StrideIn1) * elemSize
		offOut += uintptr(sharedIdx[i]*d.StrideOut) * elemSize
	}
	return op.recurseSeq(seq, 0, offIn0, offIn1, offOut, a, b, c, elemSize, true, true)
}

func (op *TensorOp) recurseSeq(seq []loopnest.Dimension, level int, offIn0, offIn1, offOut uintptr, a, b, c unsafe.Pointer, elemSize uintptr, isFirst, isLast bool) error {
	if level == len(seq) {
		op.callKernels(a, b, c, offIn0, offIn1, offOut, isFirst, isLast)
		return nil
	}
	d := seq[level]
	accumulating := d.StrideOut == 0
	for i := 0; i < d.Size; i++ {
		nextIn0 := offIn0 + uintptr(i*d.StrideIn0)*elemSize
		nextIn1 := offIn1 + uintptr(i*d.StrideIn1)*elemSize
		nextOut := offOut + uintptr(i*d.StrideOut)*elemSize
		nextFirst, nextLast := isFirst, isLast
		if accumulating {
			nextFirst = isFirst && i == 0
			nextLast = isLast && i == d.Size-1
		}
		if err := op.recurseSeq(seq, level+1, nextIn0, nextIn1, nextOut, a, b, c, elemSize, nextFirst, nextLast); err != nil {
			return err
		}
	}
	return nil
}

// callKernels invokes first-touch/main/last-touch at one C tile,
// following the ABI of microkernel.Call*. main runs on every call
// (the matmul kernel body accumulates into C; the binary body
// overwrites it); first-touch and last-touch only run on the first and
// last pass over a given tile, so a split reduction dimension doesn't
// re-clear or re-apply the activation on every slice.
func (op *TensorOp) callKernels(a, b, c unsafe.Pointer, offIn0, offIn1, offOut uintptr, isFirst, isLast bool) {
	pa := unsafe.Add(a, offIn0)
	pb := unsafe.Add(b, offIn1)
	pc := unsafe.Add(c, offOut)

	ldC := op.primN
	if ldC <= 0 {
		ldC = op.primM
	}

	if op.firstTouch != nil && isFirst {
		microkernel.CallUnary(op.firstTouch, pc, pc, ldC, ldC)
	}
	if op.primK > 0 {
		microkernel.CallMatmul(op.main, pa, pb, pc, op.primM, op.primK, op.primM)
	} else {
		microkernel.CallBinary(op.main, pa, pb, pc, ldC, ldC)
	}
	if op.lastTouch != nil && isLast {
		microkernel.CallUnary(op.lastTouch, pc, pc, ldC, ldC)
	}
}

// Release frees every executable page this TensorOp owns.
func (op *TensorOp) Release() {
	for _, b := range []*kernel.Buffer{op.firstTouchBuf, op.mainBuf, op.lastTouchBuf} {
		if b != nil {
			_ = b.Release()
		}
	}
}
