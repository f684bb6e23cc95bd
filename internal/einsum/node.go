package einsum

import (
	"errors"
	"fmt"

	"github.com/mlcompile/tensorjit/internal/driver"
	"github.com/mlcompile/tensorjit/internal/loopnest"
	"github.com/mlcompile/tensorjit/internal/microkernel"
	"github.com/mlcompile/tensorjit/internal/optimizer"
)

// ErrUnknownLeaf is returned by Execute when a leaf's dimension-id key
// has no entry in the caller-supplied buffer map.
var ErrUnknownLeaf = errors.New("einsum: no input buffer for leaf node")

// Node is one node of the contraction tree. A leaf has no children and
// reads directly from a user-supplied tensor; an internal node owns
// its materialized output buffer (owned == true) but never the
// buffers of leaf descendants, matching the original's scoped-ownership
// redesign: destroying the root simply drops every owned buffer via
// normal Go garbage collection, with no explicit cascading free needed.
type Node struct {
	Out         []int // output dimension identifiers, ordered
	key         string
	Left, Right *Node

	dims []loopnest.Dimension
	op   *driver.TensorOp

	buf   []float32
	owned bool

	LeafID int // valid only when Left == nil && Right == nil

	sizes map[int]int // set on the root only, by ParseExpression
}

// Leaf constructs a leaf node keyed by its dimension-id list; its
// buffer is supplied at Execute time and is never owned by the tree.
func Leaf(ids []int) *Node {
	return &Node{Out: ids, key: keyOf(ids)}
}

// ParseExpression parses expr (spec.md §6's grammar: one or more
// ';'-separated contraction/permutation lines) and builds the
// resulting tree. sizes is indexed by dimension id and gives each
// id's extent, used later by OptimizeNodes.
func ParseExpression(expr string, sizes []int) (*Node, error) {
	descs, err := parseDescs(expr)
	if err != nil {
		return nil, err
	}
	root, _, err := BuildTree(descs)
	if err != nil {
		return nil, err
	}
	sizeMap := make(map[int]int, len(sizes))
	for _, d := range descs {
		for _, id := range d.out {
			if id >= len(sizes) {
				return nil, fmt.Errorf("%w: id %d", ErrUnknownDimension, id)
			}
			sizeMap[id] = sizes[id]
		}
		for _, id := range d.left {
			if id < len(sizes) {
				sizeMap[id] = sizes[id]
			}
		}
		for _, id := range d.right {
			if id < len(sizes) {
				sizeMap[id] = sizes[id]
			}
		}
	}
	root.sizes = sizeMap
	return root, nil
}

func keyOf(ids []int) string {
	s := ""
	for i, id := range ids {
		if i > 0 {
			s += ","
		}
		s += fmt.Sprint(id)
	}
	return s
}

// BuildTree assembles a tree from the parsed node descriptions, in
// evaluation order: each description's inputs must already be leaves
// or the output of an earlier description.
func BuildTree(descs []nodeDesc) (*Node, map[string]*Node, error) {
	produced := make(map[string]*Node)
	leaves := make(map[string]*Node)
	nextLeafID := 0
	var last *Node
	for _, d := range descs {
		left := resolveOrLeaf(produced, leaves, &nextLeafID, d.left)
		var right *Node
		if d.binary {
			right = resolveOrLeaf(produced, leaves, &nextLeafID, d.right)
		}
		n := &Node{Out: d.out, key: keyOf(d.out), Left: left, Right: right, owned: true}
		produced[n.key] = n
		last = n
	}
	return last, produced, nil
}

func resolveOrLeaf(produced, leaves map[string]*Node, nextLeafID *int, ids []int) *Node {
	k := keyOf(ids)
	if n, ok := produced[k]; ok {
		return n
	}
	if n, ok := leaves[k]; ok {
		return n
	}
	n := Leaf(ids)
	n.LeafID = *nextLeafID
	*nextLeafID++
	leaves[k] = n
	return n
}

// dimSets computes M = out∪left\right, N = out∪right\left,
// K = left∩right\out, per spec.md §4.G.
func dimSets(out, left, right []int) (m, n, k []int) {
	leftSet := toSet(left)
	rightSet := toSet(right)
	outSet := toSet(out)

	for _, id := range union(out, left) {
		if !rightSet[id] {
			m = append(m, id)
		}
	}
	for _, id := range union(out, right) {
		if !leftSet[id] {
			n = append(n, id)
		}
	}
	for _, id := range left {
		if rightSet[id] && !outSet[id] {
			k = append(k, id)
		}
	}
	return dedup(m), dedup(n), dedup(k)
}

func toSet(ids []int) map[int]bool {
	s := make(map[int]bool, len(ids))
	for _, id := range ids {
		s[id] = true
	}
	return s
}

func union(a, b []int) []int {
	seen := make(map[int]bool)
	out := make([]int, 0, len(a)+len(b))
	for _, id := range a {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, id := range b {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func dedup(ids []int) []int {
	seen := make(map[int]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// OptimizeNodes walks the tree, building a Dimension list per internal
// node from its M/N/K sets and the sizes recorded on root by
// ParseExpression, and invokes the optimizer on each in turn.
func OptimizeNodes(root *Node, targets optimizer.Targets) error {
	return optimizeRec(root, root.sizes, targets, make(map[*Node]bool))
}

func optimizeRec(n *Node, sizes map[int]int, targets optimizer.Targets, done map[*Node]bool) error {
	if n == nil || done[n] {
		return nil
	}
	done[n] = true
	if n.Left != nil {
		if err := optimizeRec(n.Left, sizes, targets, done); err != nil {
			return err
		}
	}
	if n.Right != nil {
		if err := optimizeRec(n.Right, sizes, targets, done); err != nil {
			return err
		}
	}
	if n.Left == nil && n.Right == nil {
		return nil // leaf: nothing to optimize
	}

	var left, right []int
	if n.Left != nil {
		left = n.Left.Out
	}
	if n.Right != nil {
		right = n.Right.Out
	}
	m, nn, k := dimSets(n.Out, left, right)

	dims, err := buildDimensions(m, nn, k, sizes)
	if err != nil {
		return err
	}
	optimized, err := optimizer.Optimize(dims, targets)
	if err != nil {
		return fmt.Errorf("einsum: optimize node %q: %w", n.key, err)
	}
	n.dims = optimized
	return nil
}

// buildDimensions constructs M/N/K Dimension records with
// row-major strides derived from the declared sizes, one Dimension
// per id in each set.
func buildDimensions(m, n, k []int, sizes map[int]int) ([]loopnest.Dimension, error) {
	var dims []loopnest.Dimension
	strideM, strideN, strideK := 1, 1, 1
	for _, id := range m {
		sz, ok := sizes[id]
		if !ok {
			return nil, fmt.Errorf("%w: id %d", ErrUnknownDimension, id)
		}
		dims = append(dims, loopnest.Dimension{Type: loopnest.M, Size: sz, StrideIn0: strideM, StrideIn1: 0, StrideOut: strideM})
		strideM *= sz
	}
	for _, id := range n {
		sz, ok := sizes[id]
		if !ok {
			return nil, fmt.Errorf("%w: id %d", ErrUnknownDimension, id)
		}
		dims = append(dims, loopnest.Dimension{Type: loopnest.N, Size: sz, StrideIn0: 0, StrideIn1: strideN, StrideOut: strideN})
		strideN *= sz
	}
	for _, id := range k {
		sz, ok := sizes[id]
		if !ok {
			return nil, fmt.Errorf("%w: id %d", ErrUnknownDimension, id)
		}
		dims = append(dims, loopnest.Dimension{Type: loopnest.K, Size: sz, StrideIn0: strideK, StrideIn1: strideK, StrideOut: 0})
		strideK *= sz
	}
	return dims, nil
}

// Lower JITs a tensor operation per internal node. Only fp32 is
// currently supported, matching driver.FP32.
func Lower(root *Node) error {
	return lowerRec(root, driver.FP32, make(map[*Node]bool))
}

func lowerRec(n *Node, dtype driver.DType, done map[*Node]bool) error {
	if n == nil || done[n] || (n.Left == nil && n.Right == nil) {
		return nil
	}
	done[n] = true
	if err := lowerRec(n.Left, dtype, done); err != nil {
		return err
	}
	if err := lowerRec(n.Right, dtype, done); err != nil {
		return err
	}
	kind := microkernel.GEMM
	if n.Right == nil {
		kind = microkernel.Identity
	}
	op, err := driver.Setup(dtype, microkernel.None, kind, microkernel.None, n.dims, optimizer.Targets{MinKernelSize: 1, MaxKernelSize: 1024, ThreadTarget: 1})
	if err != nil {
		return fmt.Errorf("einsum: lower node %q: %w", n.key, err)
	}
	n.op = op
	return nil
}

// Execute evaluates the tree post-order: leaves read from the
// caller-supplied buffers keyed by LeafID, internal nodes materialize
// their own output buffer sized to the product of their output
// dimensions, and the root's buffer is returned.
func Execute(root *Node, leaves map[int][]float32) ([]float32, error) {
	return executeRec(root, leaves, make(map[*Node][]float32))
}

func executeRec(n *Node, leaves map[int][]float32, memo map[*Node][]float32) ([]float32, error) {
	if buf, ok := memo[n]; ok {
		return buf, nil
	}
	if n.Left == nil && n.Right == nil {
		buf, ok := leaves[n.LeafID]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownLeaf, n.key)
		}
		memo[n] = buf
		return buf, nil
	}
	left, err := executeRec(n.Left, leaves, memo)
	if err != nil {
		return nil, err
	}
	var right []float32
	if n.Right != nil {
		right, err = executeRec(n.Right, leaves, memo)
		if err != nil {
			return nil, err
		}
	}

	size := 1
	for _, d := range n.dims {
		if d.Type == loopnest.M || d.Type == loopnest.N {
			size *= d.Size
		}
	}
	if size == 0 {
		size = 1
	}
	n.buf = make([]float32, size)
	n.owned = true

	if n.op != nil {
		if err := execTensorOp(n.op, left, right, n.buf); err != nil {
			return nil, err
		}
	}
	memo[n] = n.buf
	return n.buf, nil
}
