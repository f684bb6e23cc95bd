//go:build !arm64

package microkernel

import "unsafe"

// On non-arm64 hosts there is no native entry stub: JITted kernels
// target AArch64 and cannot be invoked directly. These stand-ins keep
// the package importable for cross-compilation and testing of the
// encoding/generation logic, which requires no execution.

func CallMatmul(fn unsafe.Pointer, a, b, c unsafe.Pointer, ldA, ldB, ldC int) {
	panic("microkernel: native kernel execution requires GOARCH=arm64")
}

func CallBRGEMM(fn unsafe.Pointer, a, b, c unsafe.Pointer, ldA, ldB, ldC, strideA, strideB int) {
	panic("microkernel: native kernel execution requires GOARCH=arm64")
}

func CallUnary(fn unsafe.Pointer, a, b unsafe.Pointer, ldIn, ldOut int) {
	panic("microkernel: native kernel execution requires GOARCH=arm64")
}

func CallUnaryTable(fn unsafe.Pointer, a, b, table unsafe.Pointer, ldIn, ldOut int) {
	panic("microkernel: native kernel execution requires GOARCH=arm64")
}

func CallBinary(fn unsafe.Pointer, a, b, c unsafe.Pointer, ldIn, ldOut int) {
	panic("microkernel: native kernel execution requires GOARCH=arm64")
}
