package einsum

import (
	"errors"
	"unsafe"

	"github.com/mlcompile/tensorjit/internal/driver"
)

// ErrEmptyOperand is returned by Execute when a node's input buffer
// has zero length.
var ErrEmptyOperand = errors.New("einsum: empty operand buffer")

// execTensorOp invokes a node's compiled operation over Go-owned
// slices, bridging driver.TensorOp's unsafe.Pointer ABI. For a leaf-only
// permutation node (right is empty) the second operand is passed as
// the first again, since the generated unary kernel body only
// dereferences its first input.
func execTensorOp(op *driver.TensorOp, left, right, out []float32) error {
	if len(left) == 0 || len(out) == 0 {
		return ErrEmptyOperand
	}
	var pb unsafe.Pointer
	if len(right) > 0 {
		pb = unsafe.Pointer(&right[0])
	} else {
		pb = unsafe.Pointer(&left[0])
	}
	return op.Execute(unsafe.Pointer(&left[0]), pb, unsafe.Pointer(&out[0]))
}
