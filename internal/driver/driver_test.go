package driver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlcompile/tensorjit/internal/loopnest"
	"github.com/mlcompile/tensorjit/internal/microkernel"
	"github.com/mlcompile/tensorjit/internal/optimizer"
)

func TestElemSize(t *testing.T) {
	assert.Equal(t, 4, FP32.ElemSize())
}

func TestSetupRejectsEmptyDimensions(t *testing.T) {
	_, err := Setup(FP32, microkernel.None, microkernel.GEMM, microkernel.None, nil, optimizer.Targets{})
	assert.ErrorIs(t, err, ErrBadDimensions)
}

func TestSetupRequiresMainKernel(t *testing.T) {
	dims := []loopnest.Dimension{
		{Type: loopnest.M, Size: 4, StrideIn0: 1, StrideIn1: 1, StrideOut: 1},
		{Type: loopnest.N, Size: 8, StrideIn0: 4, StrideIn1: 4, StrideOut: 4},
	}
	_, err := Setup(FP32, microkernel.None, microkernel.None, microkernel.None, dims, optimizer.Targets{MinKernelSize: 1, MaxKernelSize: 1024, ThreadTarget: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBadDimensions)
}

func TestTrailingPrims(t *testing.T) {
	dims := []loopnest.Dimension{
		{Exec: loopnest.Seq},
		{Exec: loopnest.Shared},
		{Exec: loopnest.Prim, Type: loopnest.M, Size: 4},
		{Exec: loopnest.Prim, Type: loopnest.N, Size: 8},
	}
	prims := trailingPrims(dims)
	require.Len(t, prims, 2)
	assert.Equal(t, loopnest.M, prims[0].Type)
	assert.Equal(t, loopnest.N, prims[1].Type)
}

func TestTrailingPrimsEmptyWhenNonePresent(t *testing.T) {
	dims := []loopnest.Dimension{{Exec: loopnest.Seq}, {Exec: loopnest.Shared}}
	assert.Empty(t, trailingPrims(dims))
}

func TestClassifyPrimsSetsEachSize(t *testing.T) {
	op := &TensorOp{primM: -1, primN: -1, primK: -1}
	prims := []loopnest.Dimension{
		{Type: loopnest.M, Size: 4},
		{Type: loopnest.N, Size: 8},
		{Type: loopnest.K, Size: 16},
	}
	require.NoError(t, op.classifyPrims(prims, microkernel.GEMM))
	assert.Equal(t, 4, op.primM)
	assert.Equal(t, 8, op.primN)
	assert.Equal(t, 16, op.primK)
}

func TestOuterDimsExcludesTrailingPrims(t *testing.T) {
	dims := []loopnest.Dimension{
		{Exec: loopnest.Shared, Size: 2},
		{Exec: loopnest.Seq, Size: 3},
		{Exec: loopnest.Prim, Size: 4},
		{Exec: loopnest.Prim, Size: 5},
	}
	out := outerDims(dims)
	require.Len(t, out, 2)
	assert.Equal(t, 2, out[0].Size)
	assert.Equal(t, 3, out[1].Size)
}

func TestSplitSharedSeq(t *testing.T) {
	dims := []loopnest.Dimension{
		{Exec: loopnest.Shared, Size: 2},
		{Exec: loopnest.Seq, Size: 3},
		{Exec: loopnest.Shared, Size: 4},
	}
	shared, seq := splitSharedSeq(dims)
	require.Len(t, shared, 2)
	require.Len(t, seq, 1)
	assert.Equal(t, 3, seq[0].Size)
}

func TestUnflattenRowMajor(t *testing.T) {
	dims := []loopnest.Dimension{{Size: 2}, {Size: 3}}
	cases := []struct {
		linear int
		want   []int
	}{
		{0, []int{0, 0}},
		{1, []int{0, 1}},
		{3, []int{1, 0}},
		{5, []int{1, 2}},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, unflatten(c.linear, dims))
	}
}
