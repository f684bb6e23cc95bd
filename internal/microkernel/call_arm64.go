//go:build arm64

package microkernel

import "unsafe"

//go:noescape
func callMatmulAsm(fn, a, b, c unsafe.Pointer, ldA, ldB, ldC int64)

//go:noescape
func callBRGEMMAsm(fn, a, b, c unsafe.Pointer, ldA, ldB, ldC, strideA, strideB int64)

//go:noescape
func callUnaryAsm(fn, a, b unsafe.Pointer, ldIn, ldOut int64)

//go:noescape
func callUnaryTableAsm(fn, a, b, table unsafe.Pointer, ldIn, ldOut int64)

//go:noescape
func callBinaryAsm(fn, a, b, c unsafe.Pointer, ldIn, ldOut int64)

// CallMatmul invokes a JITted matmul/BRGEMM kernel with the ABI of
// SPEC_FULL.md §4.C: A, B, C pointers plus leading dimensions in
// element units (the kernel itself scales by the element size).
func CallMatmul(fn unsafe.Pointer, a, b, c unsafe.Pointer, ldA, ldB, ldC int) {
	callMatmulAsm(fn, a, b, c, int64(ldA), int64(ldB), int64(ldC))
}

// CallBRGEMM invokes a JITted batch-reduce matmul kernel with the two
// trailing batch-stride arguments.
func CallBRGEMM(fn unsafe.Pointer, a, b, c unsafe.Pointer, ldA, ldB, ldC, strideA, strideB int) {
	callBRGEMMAsm(fn, a, b, c, int64(ldA), int64(ldB), int64(ldC), int64(strideA), int64(strideB))
}

// CallUnary invokes a JITted unary kernel (A in, B out, leading dims).
func CallUnary(fn unsafe.Pointer, a, b unsafe.Pointer, ldIn, ldOut int) {
	callUnaryAsm(fn, a, b, int64(ldIn), int64(ldOut))
}

// CallUnaryTable invokes a JITted unary kernel that also takes an
// auxiliary table pointer (sigmoid interpolation/Taylor).
func CallUnaryTable(fn unsafe.Pointer, a, b, table unsafe.Pointer, ldIn, ldOut int) {
	callUnaryTableAsm(fn, a, b, table, int64(ldIn), int64(ldOut))
}

// CallBinary invokes a JITted binary kernel (A, B in, C out, leading dims).
func CallBinary(fn unsafe.Pointer, a, b, c unsafe.Pointer, ldIn, ldOut int) {
	callBinaryAsm(fn, a, b, c, int64(ldIn), int64(ldOut))
}
