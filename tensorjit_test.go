package tensorjit

import (
	"runtime"
	"testing"
	"unsafe"
)

func TestCompileRejectsEmptyDimensions(t *testing.T) {
	if _, err := Compile(Float32, KindIdentity, KindGEMM, KindIdentity, nil, Targets{}); err == nil {
		t.Fatalf("expected an error compiling with no dimensions")
	}
}

func TestNewEinsumRejectsMalformedExpression(t *testing.T) {
	if _, err := NewEinsum("garbage", []int{4}, Targets{MinKernelSize: 1, MaxKernelSize: 1024, ThreadTarget: 1}); err == nil {
		t.Fatalf("expected an error for a malformed einsum expression")
	}
}

// referenceGEMM computes, for row-major A (m x k, ldA=k), B (k x n,
// ldB=n) and C (m x n, ldC=n), c[i*n+j] += sum_p a[i*k+p]*b[p*n+j] —
// the triple-nested-loop reference spec.md's "Kernel identity" property
// requires a JITted kernel to match, starting from the same initial C.
func referenceGEMM(a, b, c []float32, m, n, k int) {
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			var sum float32
			for p := 0; p < k; p++ {
				sum += a[i*k+p] * b[p*n+j]
			}
			c[i*n+j] += sum
		}
	}
}

func TestCompileAndExecuteMatmul(t *testing.T) {
	if runtime.GOARCH != "arm64" {
		t.Skip("executing a compiled TensorOp requires GOARCH=arm64")
	}
	dims := []Dimension{
		{Type: DimM, Size: 2, StrideIn0: 2, StrideIn1: 0, StrideOut: 2},
		{Type: DimN, Size: 2, StrideIn0: 0, StrideIn1: 1, StrideOut: 1},
		{Type: DimK, Size: 2, StrideIn0: 1, StrideIn1: 2, StrideOut: 0},
	}
	op, err := Compile(Float32, KindIdentity, KindGEMM, KindIdentity, dims, Targets{MinKernelSize: 1, MaxKernelSize: 1024, ThreadTarget: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer op.Release()

	a := []float32{1, 2, 3, 4}
	b := []float32{5, 6, 7, 8}
	c := []float32{100, 200, 300, 400}

	want := append([]float32(nil), c...)
	referenceGEMM(a, b, want, 2, 2, 2)

	if err := op.Execute(unsafe.Pointer(&a[0]), unsafe.Pointer(&b[0]), unsafe.Pointer(&c[0])); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range want {
		if c[i] != want[i] {
			t.Fatalf("c[%d] = %v, want %v (C must accumulate onto a non-zero starting value)", i, c[i], want[i])
		}
	}
}

func TestEinsumEndToEnd(t *testing.T) {
	if runtime.GOARCH != "arm64" {
		t.Skip("executing a lowered einsum tree requires GOARCH=arm64")
	}
	e, err := NewEinsum("[0,1],[1,2]->[0,2]", []int{2, 2, 2}, Targets{MinKernelSize: 1, MaxKernelSize: 1024, ThreadTarget: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out, err := e.Execute(map[int][]float32{0: {1, 0, 0, 1}, 1: {2, 3, 4, 5}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 4 {
		t.Fatalf("len(out) = %d, want 4", len(out))
	}
}
