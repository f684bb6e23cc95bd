// Package loopnest defines the Dimension record that represents one
// level of a tensor operation's loop nest, plus the columnar <-> record
// conversion the rest of the pipeline relies on.
package loopnest

import (
	"errors"
	"fmt"
)

// DimType tags what role a Dimension plays in the tensor contraction.
type DimType uint8

const (
	Unknown DimType = iota
	M               // output rows / first input's rows
	N               // output cols / second input's cols
	K               // contracted (reduction) dimension
	C               // "copy" dimension, unary/binary ops
)

func (t DimType) String() string {
	switch t {
	case M:
		return "M"
	case N:
		return "N"
	case K:
		return "K"
	case C:
		return "C"
	default:
		return "Unknown"
	}
}

// ExecType tags how a Dimension's iterations are carried out.
type ExecType uint8

const (
	Undefined ExecType = iota
	Seq                // outer sequential for-loop
	Shared             // outer loop distributed across worker threads
	Prim               // executed entirely inside the JITted microkernel
)

func (e ExecType) String() string {
	switch e {
	case Seq:
		return "Seq"
	case Shared:
		return "Shared"
	case Prim:
		return "Prim"
	default:
		return "Undefined"
	}
}

// Dimension is one level of a loop nest: its type, how it executes,
// its trip count, and its stride (in elements) in each of the two
// input tensors and the output.
type Dimension struct {
	Type               DimType
	Exec               ExecType
	Size               int
	StrideIn0, StrideIn1, StrideOut int
}

// ErrLengthMismatch is returned (wrapped) by ToDimensions when the six
// columnar arrays of a Config do not all share the same length.
var ErrLengthMismatch = errors.New("loopnest: columnar arrays have mismatched lengths")

// Config is the columnar (struct-of-arrays) representation of a loop
// nest: six parallel arrays, one entry per Dimension, matching the
// external tensor-operation configuration interface.
type Config struct {
	Types      []DimType
	Execs      []ExecType
	Sizes      []int
	StridesIn0 []int
	StridesIn1 []int
	StridesOut []int
}

// ToDimensions converts a columnar Config into the record-of-arrays
// representation used by the optimizer.
func ToDimensions(c Config) ([]Dimension, error) {
	n := len(c.Types)
	if len(c.Execs) != n || len(c.Sizes) != n || len(c.StridesIn0) != n ||
		len(c.StridesIn1) != n || len(c.StridesOut) != n {
		return nil, fmt.Errorf("%w: types=%d execs=%d sizes=%d in0=%d in1=%d out=%d",
			ErrLengthMismatch, n, len(c.Execs), len(c.Sizes), len(c.StridesIn0), len(c.StridesIn1), len(c.StridesOut))
	}
	dims := make([]Dimension, n)
	for i := range dims {
		dims[i] = Dimension{
			Type:      c.Types[i],
			Exec:      c.Execs[i],
			Size:      c.Sizes[i],
			StrideIn0: c.StridesIn0[i],
			StrideIn1: c.StridesIn1[i],
			StrideOut: c.StridesOut[i],
		}
	}
	return dims, nil
}

// ToConfig converts a record-of-arrays Dimension list into the
// columnar representation, the inverse of ToDimensions.
func ToConfig(dims []Dimension) Config {
	c := Config{
		Types:      make([]DimType, len(dims)),
		Execs:      make([]ExecType, len(dims)),
		Sizes:      make([]int, len(dims)),
		StridesIn0: make([]int, len(dims)),
		StridesIn1: make([]int, len(dims)),
		StridesOut: make([]int, len(dims)),
	}
	for i, d := range dims {
		c.Types[i] = d.Type
		c.Execs[i] = d.Exec
		c.Sizes[i] = d.Size
		c.StridesIn0[i] = d.StrideIn0
		c.StridesIn1[i] = d.StrideIn1
		c.StridesOut[i] = d.StrideOut
	}
	return c
}
