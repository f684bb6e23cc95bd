// Package arm64 encodes symbolic AArch64/NEON operands into 32-bit
// instruction words. Every exported function is pure: it takes typed
// operands and returns a word or a typed error, and holds no state of
// its own.
package arm64

// Reg identifies an AArch64 general-purpose register view. Values in
// [0,31] are 32-bit (W) views, [32,63] are 64-bit (X) views, 64 is WSP
// and 96 is SP. Bit 5 therefore flags the 64-bit view and bit 6 flags
// the stack-pointer namespace, matching the numbering the encoder
// inspects at call time.
type Reg uint8

const (
	W0 Reg = iota
	W1
	W2
	W3
	W4
	W5
	W6
	W7
	W8
	W9
	W10
	W11
	W12
	W13
	W14
	W15
	W16
	W17
	W18
	W19
	W20
	W21
	W22
	W23
	W24
	W25
	W26
	W27
	W28
	W29
	W30
	WZR
)

const (
	X0 Reg = iota + 32
	X1
	X2
	X3
	X4
	X5
	X6
	X7
	X8
	X9
	X10
	X11
	X12
	X13
	X14
	X15
	X16
	X17
	X18
	X19
	X20
	X21
	X22
	X23
	X24
	X25
	X26
	X27
	X28
	FP // X29, frame pointer
	LR // X30, link register
	XZR
)

const (
	WSP Reg = 64
	SP  Reg = 96
)

// Is64 reports whether r names a 64-bit (X) register view.
func (r Reg) Is64() bool {
	return r == SP || (r >= X0 && r <= XZR)
}

// num returns the 5-bit field the encoder places in an instruction:
// the register's ordinal within its own width class.
func (r Reg) num() uint32 {
	switch {
	case r == SP:
		return 31
	case r == WSP:
		return 31
	case r >= X0:
		return uint32(r - X0)
	default:
		return uint32(r)
	}
}

// sameWidth reports whether every register in regs shares its 64-bit
// flag with the first one. Used by instruction forms that require
// width-consistent GPR operands.
func sameWidth(regs ...Reg) bool {
	if len(regs) == 0 {
		return true
	}
	want := regs[0].Is64()
	for _, r := range regs[1:] {
		if r.Is64() != want {
			return false
		}
	}
	return true
}

// VReg identifies a NEON/FP vector register v0..v31.
type VReg uint8

const (
	V0 VReg = iota
	V1
	V2
	V3
	V4
	V5
	V6
	V7
	V8
	V9
	V10
	V11
	V12
	V13
	V14
	V15
	V16
	V17
	V18
	V19
	V20
	V21
	V22
	V23
	V24
	V25
	V26
	V27
	V28
	V29
	V30
	V31
)

func (v VReg) num() uint32 { return uint32(v) & 0x1f }

// ScalarSize is the scalar width of an FP/SIMD operand.
type ScalarSize uint8

const (
	SizeS ScalarSize = iota // 32-bit single
	SizeD                   // 64-bit double
	SizeQ                   // 128-bit quad
)

// ArrSpec is a NEON vector arrangement specifier.
type ArrSpec uint8

const (
	ArrS2  ArrSpec = iota // 2x32-bit
	ArrS4                 // 4x32-bit
	ArrD2                 // 2x64-bit
	ArrB8                 // 8x8-bit
	ArrB16                // 16x8-bit
)

// bytesPerLane returns the element width in bytes for arr.
func (a ArrSpec) bytesPerLane() int {
	switch a {
	case ArrS2, ArrS4:
		return 4
	case ArrD2:
		return 8
	default:
		return 1
	}
}
