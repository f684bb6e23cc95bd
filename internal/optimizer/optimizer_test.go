package optimizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlcompile/tensorjit/internal/loopnest"
)

func TestFuseDimensionsMergesContiguousRun(t *testing.T) {
	dims := []loopnest.Dimension{
		{Type: loopnest.M, Size: 4, StrideIn0: 1, StrideIn1: 0, StrideOut: 1},
		{Type: loopnest.M, Size: 2, StrideIn0: 4, StrideIn1: 0, StrideOut: 4},
	}
	out := fuseDimensions(dims, 64)
	require.Len(t, out, 1)
	assert.Equal(t, 8, out[0].Size)
	assert.Equal(t, 1, out[0].StrideIn0, "fused dimension keeps the inner (first-in-memory) stride")
}

func TestFuseDimensionsStopsWhenBothAlreadyAtMinSize(t *testing.T) {
	dims := []loopnest.Dimension{
		{Type: loopnest.M, Size: 64, StrideIn0: 1},
		{Type: loopnest.M, Size: 64, StrideIn0: 64},
	}
	out := fuseDimensions(dims, 32)
	assert.Len(t, out, 2, "both dims already meet minSize, fusing should not occur")
}

func TestFuseDimensionsRejectsDifferentTypes(t *testing.T) {
	dims := []loopnest.Dimension{
		{Type: loopnest.M, Size: 2, StrideIn0: 4},
		{Type: loopnest.N, Size: 4, StrideIn0: 1},
	}
	out := fuseDimensions(dims, 64)
	assert.Len(t, out, 2)
}

func TestSplitDimensionsSplitsOversizedDimension(t *testing.T) {
	dims := []loopnest.Dimension{
		{Type: loopnest.M, Size: 32, StrideIn0: 1, StrideIn1: 0, StrideOut: 1},
	}
	out := splitDimensions(dims, 16, 1)
	require.Len(t, out, 2)
	assert.Equal(t, loopnest.Seq, out[0].Exec)
	assert.Equal(t, 2, out[0].Size)
	assert.Equal(t, 16, out[1].Size)
	assert.Equal(t, 16, out[0].StrideIn0, "outer split dimension's stride scales by the inner size")
}

func TestSplitDimensionsLeavesUnsplittableSizeAlone(t *testing.T) {
	dims := []loopnest.Dimension{
		{Type: loopnest.K, Size: 17, StrideIn0: 1},
	}
	out := splitDimensions(dims, 8, 1)
	require.Len(t, out, 1, "17 has no divisor-of-2 factorization that fits under maxSize, so it stays as one dimension")
	assert.Equal(t, 17, out[0].Size)
}

func TestLargestMultipleOfDivisor(t *testing.T) {
	m, ok := largestMultipleOfDivisor(32, 4, 1, 16)
	require.True(t, ok)
	assert.Equal(t, 16, m)

	_, ok = largestMultipleOfDivisor(17, 4, 1, 16)
	assert.False(t, ok, "17 is prime and not divisible by any multiple of 4")
}

func TestIdentifyBinaryPicksUnitStrideRowAndMatchingColumn(t *testing.T) {
	dims := []loopnest.Dimension{
		{Type: loopnest.M, Size: 4, StrideIn0: 1, StrideIn1: 1, StrideOut: 1},
		{Type: loopnest.N, Size: 8, StrideIn0: 4, StrideIn1: 4, StrideOut: 4},
	}
	order, err := identifyBinary(dims)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, order)
	assert.Equal(t, loopnest.Prim, dims[0].Exec)
	assert.Equal(t, loopnest.Prim, dims[1].Exec)
}

func TestIdentifyBinaryNoUnitStrideIsAnError(t *testing.T) {
	dims := []loopnest.Dimension{
		{Type: loopnest.M, Size: 4, StrideIn0: 2, StrideIn1: 2, StrideOut: 2},
	}
	_, err := identifyBinary(dims)
	assert.ErrorIs(t, err, ErrCannotIdentifyPrimitives)
}

func TestIdentifyUnaryPicksRowAndColumn(t *testing.T) {
	dims := []loopnest.Dimension{
		{Type: loopnest.C, Size: 4, StrideIn0: 1, StrideIn1: 0, StrideOut: 1},
		{Type: loopnest.C, Size: 8, StrideIn0: 4, StrideIn1: 0, StrideOut: 4},
	}
	order, err := identifyUnary(dims)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, order)
}

func TestIdentifyTernaryOrdersBatchMNK(t *testing.T) {
	dims := []loopnest.Dimension{
		{Type: loopnest.C, Size: 2, StrideIn0: 0, StrideIn1: 100, StrideOut: 0},
		{Type: loopnest.M, Size: 4, StrideIn0: 1, StrideIn1: 0, StrideOut: 1},
		{Type: loopnest.N, Size: 4, StrideIn0: 0, StrideIn1: 4, StrideOut: 4},
		{Type: loopnest.K, Size: 8, StrideIn0: 4, StrideIn1: 1, StrideOut: 0},
	}
	order, err := identifyTernary(dims)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3}, order)
	for _, i := range order {
		assert.Equal(t, loopnest.Prim, dims[i].Exec)
	}
}

func TestMovePrimsToTailPreservesRelativeOrderOfTheRest(t *testing.T) {
	dims := []loopnest.Dimension{
		{Size: 1}, {Size: 2}, {Size: 3}, {Size: 4},
	}
	movePrimsToTail(dims, []int{1, 3})
	require.Len(t, dims, 4)
	assert.Equal(t, 1, dims[0].Size)
	assert.Equal(t, 3, dims[1].Size)
	assert.Equal(t, 2, dims[2].Size)
	assert.Equal(t, 4, dims[3].Size)
}

func TestCreateSharedLoopsNeverParallelizesK(t *testing.T) {
	dims := []loopnest.Dimension{
		{Type: loopnest.K, Size: 4, Exec: loopnest.Seq},
		{Type: loopnest.M, Size: 4, Exec: loopnest.Seq},
	}
	out := createSharedLoops(dims, 4)
	for _, d := range out {
		if d.Type == loopnest.K {
			assert.NotEqual(t, loopnest.Shared, d.Exec, "K must never become a shared loop")
		}
	}
}

func TestCreateSharedLoopsStopsAtThreadTarget(t *testing.T) {
	dims := []loopnest.Dimension{
		{Type: loopnest.M, Size: 4, Exec: loopnest.Seq},
		{Type: loopnest.M, Size: 4, Exec: loopnest.Seq},
		{Type: loopnest.M, Size: 4, Exec: loopnest.Seq},
	}
	out := createSharedLoops(dims, 8)
	product := 1
	for _, d := range out {
		if d.Exec == loopnest.Shared {
			product *= d.Size
		}
	}
	assert.LessOrEqual(t, product, 8)
}

func TestOptimizeEndToEndBinary(t *testing.T) {
	dims := []loopnest.Dimension{
		{Type: loopnest.M, Size: 4, StrideIn0: 1, StrideIn1: 1, StrideOut: 1},
		{Type: loopnest.N, Size: 8, StrideIn0: 4, StrideIn1: 4, StrideOut: 4},
	}
	out, err := Optimize(dims, Targets{MinKernelSize: 1, MaxKernelSize: 1024, ThreadTarget: 1})
	require.NoError(t, err)
	var prims int
	for _, d := range out {
		if d.Exec == loopnest.Prim {
			prims++
		}
		assert.NotEqual(t, loopnest.Undefined, d.Exec, "every dimension should have a concrete exec type after Optimize")
	}
	assert.Equal(t, 2, prims)
}

func TestOptimizeConfigRoundTrips(t *testing.T) {
	c := loopnest.Config{
		Types:      []loopnest.DimType{loopnest.M, loopnest.N},
		Execs:      []loopnest.ExecType{loopnest.Undefined, loopnest.Undefined},
		Sizes:      []int{4, 8},
		StridesIn0: []int{1, 4},
		StridesIn1: []int{1, 4},
		StridesOut: []int{1, 4},
	}
	out, err := OptimizeConfig(c, Targets{MinKernelSize: 1, MaxKernelSize: 1024, ThreadTarget: 1})
	require.NoError(t, err)
	assert.Len(t, out.Types, 2)
}
