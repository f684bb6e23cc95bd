// Package optimizer rewrites a copy of a loop-nest Dimension list so
// that its primitive dimensions match a microkernel's contract and its
// shared loops parallelize efficiently. The pipeline runs in a fixed
// order: fuse small dimensions, split large dimensions, identify
// primitives, create shared loops.
package optimizer

import (
	"errors"
	"fmt"

	"github.com/mlcompile/tensorjit/internal/jitlog"
	"github.com/mlcompile/tensorjit/internal/loopnest"
)

// Errors returned by Optimize. Per the error-handling design, these
// are returned to the caller of setup; the driver stays uninitialized.
var (
	ErrCannotIdentifyPrimitives = errors.New("optimizer: cannot identify primitive dimensions")
)

// Targets bundles the three caller-supplied tuning knobs that steer
// fusing, splitting, and shared-loop creation.
type Targets struct {
	MinKernelSize int
	MaxKernelSize int
	ThreadTarget  int
}

// Optimize rewrites dims according to the fixed four-stage pipeline
// and returns the rewritten list. dims is not mutated in place (Go
// slices make a defensive copy cheap and avoid aliasing surprises for
// callers); the returned slice is what a caller should use from then
// on.
func Optimize(dims []loopnest.Dimension, t Targets) ([]loopnest.Dimension, error) {
	work := append([]loopnest.Dimension(nil), dims...)

	work = fuseDimensions(work, t.MinKernelSize)
	work = splitDimensions(work, t.MaxKernelSize, t.MinKernelSize)

	if err := identifyPrimitives(work); err != nil {
		jitlog.Logger().WithError(err).Error("optimizer: failed to identify primitives")
		return nil, err
	}

	work = createSharedLoops(work, t.ThreadTarget)

	return work, nil
}

// OptimizeConfig is the columnar-Config-accepting overload, mirroring
// the original source's two optimize() entry points.
func OptimizeConfig(c loopnest.Config, t Targets) (loopnest.Config, error) {
	dims, err := loopnest.ToDimensions(c)
	if err != nil {
		return loopnest.Config{}, err
	}
	out, err := Optimize(dims, t)
	if err != nil {
		return loopnest.Config{}, err
	}
	return loopnest.ToConfig(out), nil
}

// fuseDimensions merges adjacent dimensions of identical type while
// any dimension remains smaller than minSize and a legal fuse exists.
// Two dimensions X (outer, index i) and Y (inner, index i+1) fuse when
// they share a type, their exec types are equal or at least one is
// Undefined, and Y's stride equals |X|'s stride times X's size in all
// three tensors. The fused dimension keeps X's (the first, outermost)
// stride — the original source's choice, preserved exactly: see
// DESIGN.md for why downstream split/driver arithmetic assumes the
// representative stride of a fused run is its first member's.
func fuseDimensions(dims []loopnest.Dimension, minSize int) []loopnest.Dimension {
	changed := true
	for changed {
		changed = false
		for i := 0; i < len(dims)-1; i++ {
			x, y := dims[i], dims[i+1]
			if x.Size >= minSize && y.Size >= minSize {
				continue
			}
			if !canFuse(x, y) {
				continue
			}
			dims[i].Size = x.Size * y.Size
			if x.Exec == loopnest.Undefined {
				dims[i].Exec = y.Exec
			}
			dims = append(dims[:i+1], dims[i+2:]...)
			changed = true
			break
		}
	}
	return dims
}

func canFuse(x, y loopnest.Dimension) bool {
	if x.Type != y.Type {
		return false
	}
	if x.Exec != y.Exec && x.Exec != loopnest.Undefined && y.Exec != loopnest.Undefined {
		return false
	}
	return y.StrideIn0 == x.Size*x.StrideIn0 &&
		y.StrideIn1 == x.Size*x.StrideIn1 &&
		y.StrideOut == x.Size*x.StrideOut
}

// splitDimensions splits any dimension whose size exceeds maxSize into
// an inner part (kept in place, size = d) and a new outer Seq
// dimension (size = original/d, strides scaled by d), choosing d per
// the type-dependent divisor cascade of findBestSplit. Dimensions that
// admit no legal split are left unchanged, per spec.
func splitDimensions(dims []loopnest.Dimension, maxSize, minSize int) []loopnest.Dimension {
	for i := 0; i < len(dims); i++ {
		d := dims[i]
		if d.Size <= maxSize {
			continue
		}
		split, ok := findBestSplit(d, minSize, maxSize)
		if !ok {
			continue
		}
		outer := d
		outer.Size = d.Size / split
		outer.Exec = loopnest.Seq
		outer.StrideIn0 = d.StrideIn0 * split
		outer.StrideIn1 = d.StrideIn1 * split
		outer.StrideOut = d.StrideOut * split

		dims[i].Size = split

		dims = append(dims, loopnest.Dimension{})
		copy(dims[i+1:], dims[i:len(dims)-1])
		dims[i] = outer
		// re-examine the same index: the inner part may still exceed
		// maxSize if no divisor brought it under the cap in one step.
		i--
	}
	return dims
}

// findBestSplit picks the divisor d used to split a too-large
// dimension, preferring larger, type-appropriate multiples first:
// M favors 16, 12, 8, 4, then 2; N favors 4 then 2; K takes the
// largest multiple of 2 in range; C favors 8, 4, then 2.
func findBestSplit(d loopnest.Dimension, minSize, maxSize int) (int, bool) {
	var candidates []int
	switch d.Type {
	case loopnest.M:
		candidates = []int{16, 12, 8, 4, 2}
	case loopnest.N:
		candidates = []int{4, 2}
	case loopnest.K:
		candidates = []int{2}
	case loopnest.C:
		candidates = []int{8, 4, 2}
	default:
		candidates = []int{2}
	}
	for _, want := range candidates {
		if m, ok := largestMultipleOfDivisor(d.Size, want, minSize, maxSize); ok {
			return m, true
		}
	}
	return 0, false
}

// largestMultipleOfDivisor scans downward from the largest multiple of
// divisor that does not exceed maxSize and evenly divides size,
// returning the first one found that is also >= minSize.
func largestMultipleOfDivisor(size, divisor, minSize, maxSize int) (int, bool) {
	if divisor <= 0 {
		return 0, false
	}
	top := maxSize - (maxSize % divisor)
	for m := top; m >= divisor; m -= divisor {
		if m < minSize {
			break
		}
		if size%m == 0 {
			return m, true
		}
	}
	return 0, false
}

// identifyPrimitives cases on the dimension-type multiset and marks
// exactly 2 (unary/binary), 3 (GEMM) or 4 (BRGEMM) dimensions Prim,
// moving them to the tail in the documented order. Remaining
// Undefined-exec dimensions become Seq.
func identifyPrimitives(dims []loopnest.Dimension) error {
	hasK := false
	onlyC := true
	for _, d := range dims {
		if d.Type == loopnest.K {
			hasK = true
		}
		if d.Type != loopnest.C {
			onlyC = false
		}
	}

	var order []int
	var err error
	switch {
	case onlyC:
		order, err = identifyUnary(dims)
	case !hasK:
		order, err = identifyBinary(dims)
	default:
		order, err = identifyTernary(dims)
	}
	if err != nil {
		return err
	}
	if len(order) != 2 && len(order) != 3 && len(order) != 4 {
		return fmt.Errorf("%w: got %d", ErrCannotIdentifyPrimitives, len(order))
	}

	movePrimsToTail(dims, order)

	for i := range dims {
		if dims[i].Exec == loopnest.Undefined {
			dims[i].Exec = loopnest.Seq
		}
	}
	return nil
}

func identifyUnary(dims []loopnest.Dimension) ([]int, error) {
	for _, d := range dims {
		if d.Exec == loopnest.Prim {
			return nil, fmt.Errorf("%w: unary op already has a prim dimension", ErrCannotIdentifyPrimitives)
		}
	}
	primM := -1
	for i, d := range dims {
		if d.StrideIn0 == 1 && d.StrideIn1 == 0 {
			primM = i
			break
		}
	}
	if primM == -1 {
		return nil, fmt.Errorf("%w: no unit-stride row dimension for unary prim-M", ErrCannotIdentifyPrimitives)
	}
	primN := -1
	if dims[primM].StrideOut != 1 {
		for i, d := range dims {
			if i == primM {
				continue
			}
			if d.StrideOut == 1 {
				primN = i
				break
			}
		}
	} else {
		best := -1
		for i, d := range dims {
			if i == primM {
				continue
			}
			if best == -1 || d.StrideIn0 < dims[best].StrideIn0 {
				best = i
			}
		}
		primN = best
	}
	if primN == -1 {
		return nil, fmt.Errorf("%w: no candidate prim-N for unary op", ErrCannotIdentifyPrimitives)
	}
	dims[primM].Exec = loopnest.Prim
	dims[primN].Exec = loopnest.Prim
	return []int{primM, primN}, nil
}

func identifyBinary(dims []loopnest.Dimension) ([]int, error) {
	primM := -1
	for i, d := range dims {
		if d.StrideIn0 == 1 && d.StrideIn1 == 1 && d.StrideOut == 1 {
			primM = i
			break
		}
	}
	if primM == -1 {
		return nil, fmt.Errorf("%w: no unit-stride dimension for binary prim-M", ErrCannotIdentifyPrimitives)
	}
	primN := -1
	for i, d := range dims {
		if i == primM || d.Type != loopnest.N {
			continue
		}
		if d.StrideIn0 != d.StrideIn1 {
			continue
		}
		if primN == -1 || d.StrideIn0 < dims[primN].StrideIn0 {
			primN = i
		}
	}
	if primN == -1 {
		return nil, fmt.Errorf("%w: no candidate prim-N for binary op", ErrCannotIdentifyPrimitives)
	}
	dims[primM].Exec = loopnest.Prim
	dims[primN].Exec = loopnest.Prim
	return []int{primM, primN}, nil
}

func identifyTernary(dims []loopnest.Dimension) ([]int, error) {
	primBR := -1
	for i, d := range dims {
		if d.StrideIn1 != 1 && d.StrideOut == 0 {
			primBR = i
			break
		}
	}

	primM := -1
	for i, d := range dims {
		if i == primBR {
			continue
		}
		if d.StrideIn0 == 1 && d.StrideIn1 == 0 && d.StrideOut == 1 {
			primM = i
			break
		}
	}
	if primM == -1 {
		return nil, fmt.Errorf("%w: no candidate prim-M for ternary op", ErrCannotIdentifyPrimitives)
	}

	primN := -1
	for i, d := range dims {
		if i == primBR || i == primM || d.Type != loopnest.N {
			continue
		}
		if d.StrideIn0 != 0 {
			continue
		}
		if primN == -1 || (d.StrideIn1+d.StrideOut) < (dims[primN].StrideIn1+dims[primN].StrideOut) {
			primN = i
		}
	}
	if primN == -1 {
		return nil, fmt.Errorf("%w: no candidate prim-N for ternary op", ErrCannotIdentifyPrimitives)
	}

	primK := -1
	for i, d := range dims {
		if i == primBR || i == primM || i == primN {
			continue
		}
		if d.StrideIn1 == 1 && d.StrideOut == 0 {
			primK = i
			break
		}
	}
	if primK == -1 {
		return nil, fmt.Errorf("%w: no candidate prim-K for ternary op", ErrCannotIdentifyPrimitives)
	}

	dims[primM].Exec = loopnest.Prim
	dims[primN].Exec = loopnest.Prim
	dims[primK].Exec = loopnest.Prim
	order := []int{}
	if primBR != -1 {
		dims[primBR].Exec = loopnest.Prim
		order = append(order, primBR)
	}
	order = append(order, primM, primN, primK)
	return order, nil
}

// movePrimsToTail stable-partitions dims so the indices named by order
// (in that order) end up last, preserving the relative order of
// everything else. A stable partition is the Go-idiomatic equivalent
// of the original's std::rotate-to-tail.
func movePrimsToTail(dims []loopnest.Dimension, order []int) {
	isPrim := make(map[int]bool, len(order))
	for _, i := range order {
		isPrim[i] = true
	}
	rest := make([]loopnest.Dimension, 0, len(dims)-len(order))
	for i, d := range dims {
		if !isPrim[i] {
			rest = append(rest, d)
		}
	}
	tail := make([]loopnest.Dimension, len(order))
	for j, i := range order {
		tail[j] = dims[i]
	}
	copy(dims, rest)
	copy(dims[len(rest):], tail)
}

// createSharedLoops greedily converts leading Seq/Undefined,
// non-K dimensions to Shared while the running product of Shared
// sizes stays at or below threadTarget, then stable-moves all Shared
// dimensions to the front. K is never parallelized.
func createSharedLoops(dims []loopnest.Dimension, threadTarget int) []loopnest.Dimension {
	product := 1
	for _, d := range dims {
		if d.Exec == loopnest.Shared {
			product *= d.Size
		}
	}
	if product >= threadTarget {
		return stableMoveSharedToFront(dims)
	}

	for i := range dims {
		if dims[i].Exec == loopnest.Prim || dims[i].Type == loopnest.K {
			continue
		}
		if dims[i].Exec != loopnest.Seq && dims[i].Exec != loopnest.Undefined {
			continue
		}
		if product*dims[i].Size > threadTarget {
			continue
		}
		dims[i].Exec = loopnest.Shared
		product *= dims[i].Size
		if product >= threadTarget {
			break
		}
	}

	return stableMoveSharedToFront(dims)
}

func stableMoveSharedToFront(dims []loopnest.Dimension) []loopnest.Dimension {
	shared := make([]loopnest.Dimension, 0, len(dims))
	rest := make([]loopnest.Dimension, 0, len(dims))
	for _, d := range dims {
		if d.Exec == loopnest.Shared {
			shared = append(shared, d)
		} else {
			rest = append(rest, d)
		}
	}
	out := make([]loopnest.Dimension, 0, len(dims))
	out = append(out, shared...)
	out = append(out, rest...)
	return out
}
