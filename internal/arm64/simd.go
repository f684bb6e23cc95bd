package arm64

// Vector and scalar SIMD&FP forms: FMLA (vector and lane-indexed),
// FMAX/FMIN, FRECPE/FRECPS, FRINTM, FCVTMS, FCMP, UMOV, INS, FMOV
// (vector-immediate, scalar-immediate, register), and the 4x4
// transpose family TRN1/TRN2/ZIP1/ZIP2. Opcodes grounded on the
// original mini_jit simd_fp headers (fmla, fmax, fmin, frecpe, frecps,
// frintm, zero/eor) and on spec.md's stated bit patterns for FMOV.

func arrQbit(a ArrSpec) uint32 {
	if a == ArrS4 || a == ArrD2 {
		return 1
	}
	return 0
}

func arrSzBits(a ArrSpec) (uint32, error) {
	switch a {
	case ArrS2, ArrS4:
		return 0b00, nil
	case ArrD2:
		return 0b01, nil
	case ArrB8, ArrB16:
		return 0b00, nil
	default:
		return 0, ErrBadArrangement
	}
}

func vecOp3(vd, vn, vm VReg, a ArrSpec, opcode uint32, szShift uint) (uint32, error) {
	sz, err := arrSzBits(a)
	if err != nil {
		return 0, err
	}
	word := vd.num()
	word |= vn.num() << 5
	word |= opcode << 11
	word |= vm.num() << 16
	word |= sz << szShift
	word |= 0b1110<<24 | 0b1<<21
	word |= arrQbit(a) << 30
	return word, nil
}

// FMLAVec vd += vn * vm, elementwise, per arrangement a.
func FMLAVec(vd, vn, vm VReg, a ArrSpec) (uint32, error) {
	return vecOp3(vd, vn, vm, a, 0b110011, 22)
}

// FMLALane vd[*] += vn[*] * vm[idx] — lane-indexed multiply-accumulate
// used by the matmul microkernel's column-broadcast step. idx ranges
// 0..3 for 32-bit lanes and 0..1 for 64-bit lanes.
func FMLALane(vd, vn, vm VReg, idx int, size ScalarSize) (uint32, error) {
	var sz, h, l, m uint32
	switch size {
	case SizeS:
		if idx < 0 || idx > 3 {
			return 0, ErrBadLaneIndex
		}
		sz = 0
		h = uint32(idx>>1) & 1
		l = uint32(idx) & 1
		m = vm.num()
	case SizeD:
		if idx < 0 || idx > 1 {
			return 0, ErrBadLaneIndex
		}
		sz = 1
		h = uint32(idx) & 1
		l = 0
		m = vm.num() & 0xf
	default:
		return 0, ErrBadArrangement
	}
	word := vd.num()
	word |= vn.num() << 5
	word |= l << 21
	word |= m << 16
	word |= 0b0001 << 12
	word |= h << 11
	word |= 0b1<<10 | 0b0<<10
	word |= sz << 22
	word |= 0b0<<23 | 0b101111<<24
	word |= 1 << 30 // Q=1: full 128-bit arrangement
	return word, nil
}

func fmaxFminVec(vd, vn, vm VReg, a ArrSpec, isMax bool) (uint32, error) {
	opcode := uint32(0b111101)
	if !isMax {
		opcode = 0b111111
	}
	return vecOp3(vd, vn, vm, a, opcode, 22)
}

// FMAXVec vd = fmax(vn, vm), elementwise.
func FMAXVec(vd, vn, vm VReg, a ArrSpec) (uint32, error) { return fmaxFminVec(vd, vn, vm, a, true) }

// FMINVec vd = fmin(vn, vm), elementwise.
func FMINVec(vd, vn, vm VReg, a ArrSpec) (uint32, error) { return fmaxFminVec(vd, vn, vm, a, false) }

// FMAXScalar/FMINScalar operate on a single S or D lane.
func fmaxFminScalar(vd, vn, vm VReg, size ScalarSize, isMax bool) (uint32, error) {
	if size != SizeS && size != SizeD {
		return 0, ErrBadArrangement
	}
	opcode := uint32(0b0000)
	if !isMax {
		opcode = 0b0101
	}
	ptype := uint32(0)
	if size == SizeD {
		ptype = 1
	}
	word := vd.num()
	word |= vn.num() << 5
	word |= 0b1 << 11
	word |= opcode << 12
	word |= vm.num() << 16
	word |= ptype << 22
	word |= 0b1111<<25 | 0b1<<21
	return word, nil
}

func FMAXScalar(vd, vn, vm VReg, size ScalarSize) (uint32, error) {
	return fmaxFminScalar(vd, vn, vm, size, true)
}

func FMINScalar(vd, vn, vm VReg, size ScalarSize) (uint32, error) {
	return fmaxFminScalar(vd, vn, vm, size, false)
}

// FRECPEVec computes the initial reciprocal estimate.
func FRECPEVec(vd, vn VReg, a ArrSpec) (uint32, error) { return vecOp2(vd, vn, a, 0b111010, 0b11101) }

// FRECPSVec vd = 2 - vn*vm, the Newton-Raphson refinement step.
func FRECPSVec(vd, vn, vm VReg, a ArrSpec) (uint32, error) {
	return vecOp3(vd, vn, vm, a, 0b111111, 22)
}

func vecOp2(vd, vn VReg, a ArrSpec, opcode uint32, topBits uint32) (uint32, error) {
	sz, err := arrSzBits(a)
	if err != nil {
		return 0, err
	}
	word := vd.num()
	word |= vn.num() << 5
	word |= opcode << 12
	word |= sz << 22
	word |= topBits << 24
	word |= arrQbit(a) << 30
	return word, nil
}

// FRINTMVec rounds each lane toward -infinity (floor).
func FRINTMVec(vd, vn VReg, a ArrSpec) (uint32, error) { return vecOp2(vd, vn, a, 0b011001, 0b1110) }

// FCVTMSVec converts each lane, rounding toward -infinity, to a signed
// integer of the same width.
func FCVTMSVec(vd, vn VReg, a ArrSpec) (uint32, error) { return vecOp2(vd, vn, a, 0b011011, 0b1110) }

// FCMPScalar compares two scalar FP registers and sets NZCV.
func FCMPScalar(vn, vm VReg, size ScalarSize) (uint32, error) {
	if size != SizeS && size != SizeD {
		return 0, ErrBadArrangement
	}
	ptype := uint32(0)
	if size == SizeD {
		ptype = 1
	}
	word := vn.num() << 5
	word |= vm.num() << 16
	word |= ptype << 22
	word |= 0b11110<<24 | 0b1<<21 | 0b1000<<10
	return word, nil
}

// UMOV extracts a vector lane into a GPR. idx range depends on size.
func UMOV(rd Reg, vn VReg, idx int, size ScalarSize) (uint32, error) {
	var imm5 uint32
	switch size {
	case SizeS:
		if idx < 0 || idx > 3 {
			return 0, ErrBadLaneIndex
		}
		imm5 = uint32(idx)<<3 | 0b100
	case SizeD:
		if idx < 0 || idx > 1 {
			return 0, ErrBadLaneIndex
		}
		imm5 = uint32(idx)<<4 | 0b1000
	default:
		return 0, ErrBadArrangement
	}
	word := rd.num()
	word |= vn.num() << 5
	word |= imm5 << 16
	word |= 0b0111<<12 | 0b1<<10
	word |= 0b001110000 << 21
	if size == SizeD {
		word |= 1 << 30
	}
	return word, nil
}

// INS inserts a GPR value into a vector lane (general-register form).
func INS(vd VReg, rn Reg, idx int, size ScalarSize) (uint32, error) {
	var imm5 uint32
	switch size {
	case SizeS:
		if idx < 0 || idx > 3 {
			return 0, ErrBadLaneIndex
		}
		imm5 = uint32(idx)<<3 | 0b100
	case SizeD:
		if idx < 0 || idx > 1 {
			return 0, ErrBadLaneIndex
		}
		imm5 = uint32(idx)<<4 | 0b1000
	default:
		return 0, ErrBadArrangement
	}
	word := vd.num()
	word |= rn.num() << 5
	word |= 0b0011 << 11
	word |= imm5 << 16
	word |= 0b01001110000 << 21
	return word, nil
}

// FMOVReg copies a scalar FP register.
func FMOVReg(vd, vn VReg, size ScalarSize) (uint32, error) {
	if size != SizeS && size != SizeD {
		return 0, ErrBadArrangement
	}
	ptype := uint32(0)
	if size == SizeD {
		ptype = 1
	}
	word := vd.num()
	word |= vn.num() << 5
	word |= 0b10000 << 15
	word |= ptype << 22
	word |= 0b11110<<24 | 0b1<<21
	return word, nil
}

// FMOVIntScalar moves a signed integer immediate in [-31,31] into a
// scalar FP register, matching the original's fmovIntScalar bit
// packing (value encoded across sign/exponent/mantissa fields rather
// than as a literal 8-bit pattern).
func FMOVIntScalar(vd VReg, imm8 int32, size ScalarSize) (uint32, error) {
	if size != SizeS && size != SizeD {
		return 0, ErrBadArrangement
	}
	if imm8 < -31 || imm8 > 31 {
		return 0, ErrUnencodableImmediate
	}
	word := uint32(0x1E201000)
	word |= vd.num()
	neg := imm8 < 0
	if neg {
		imm8 = -imm8
	}
	var field uint32
	if neg {
		field |= 1 << 20
	}
	switch {
	case imm8 == 1:
		field |= 0x7 << 17
	case imm8 == 2:
	case imm8 == 3:
		field |= 1 << 16
	case imm8 < 8:
		field |= uint32(imm8&0x7) << 15
	default:
		field |= 1 << 18
		if imm8 > 8 && imm8 < 16 {
			field |= uint32(imm8&0x7) << 14
		} else if imm8 > 16 {
			field |= uint32(imm8&0x1f) << 13
		}
	}
	word |= field
	ptype := uint32(0)
	if size == SizeD {
		ptype = 1
	}
	word |= ptype << 22
	return word, nil
}

// FMOVIntVec broadcasts a signed integer immediate in [-31,31] across
// a vector arrangement (s2, s4 or d2 only), matching the original's
// fmovIntVec bit packing.
func FMOVIntVec(vd VReg, imm8 int32, a ArrSpec) (uint32, error) {
	if a != ArrS2 && a != ArrS4 && a != ArrD2 {
		return 0, ErrBadArrangement
	}
	if imm8 < -31 || imm8 > 31 {
		return 0, ErrUnencodableImmediate
	}
	word := uint32(0xF00F400)
	word |= vd.num()
	neg := imm8 < 0
	if neg {
		imm8 = -imm8
	}
	var field uint32
	if neg {
		field |= 1 << 18
	}
	switch {
	case imm8 == 1:
		field |= 0x3 << 16
		field |= 0x1 << 9
	case imm8 == 2:
	case imm8 == 3:
		field |= 0x1 << 8
	case imm8 < 8:
		field |= uint32(imm8&0x7) << 7
	default:
		field |= 1 << 16
		if imm8 > 8 && imm8 < 16 {
			field |= uint32(imm8&0x7) << 6
		} else if imm8 > 16 {
			field |= uint32(imm8&0x1f) << 5
		}
	}
	word |= field
	if a == ArrS4 {
		word |= 1 << 30
	} else if a == ArrD2 {
		word |= 1<<29 | 1<<30
	}
	return word, nil
}

// TRN1/TRN2/ZIP1/ZIP2 are the permutes a 4x4 register transpose is
// built from; no kernel generator in this module emits them.
func transposeOp(vd, vn, vm VReg, a ArrSpec, opcode uint32) (uint32, error) {
	sz, err := arrSzBits(a)
	if err != nil {
		return 0, err
	}
	word := vd.num()
	word |= vn.num() << 5
	word |= opcode << 10
	word |= vm.num() << 16
	word |= sz << 22
	word |= 0b001110 << 24
	word |= arrQbit(a) << 30
	return word, nil
}

func TRN1(vd, vn, vm VReg, a ArrSpec) (uint32, error) { return transposeOp(vd, vn, vm, a, 0b0010) }
func TRN2(vd, vn, vm VReg, a ArrSpec) (uint32, error) { return transposeOp(vd, vn, vm, a, 0b0110) }
func ZIP1(vd, vn, vm VReg, a ArrSpec) (uint32, error) { return transposeOp(vd, vn, vm, a, 0b0011) }
func ZIP2(vd, vn, vm VReg, a ArrSpec) (uint32, error) { return transposeOp(vd, vn, vm, a, 0b0111) }

// EORVec vd = vn ^ vm, vector form; ZeroVec(vd) aliases EORVec(vd, vd, vd)
// exactly as the original mini_jit's zero.h implements "zero" as a
// self-XOR rather than a dedicated opcode.
func EORVec(vd, vn, vm VReg, a ArrSpec) (uint32, error) {
	word := vd.num()
	word |= vn.num() << 5
	word |= 0b1 << 21
	word |= vm.num() << 16
	word |= 0b000111 << 11
	word |= 0b1<<10 | 0b10110<<24
	word |= arrQbit(a) << 30
	return word, nil
}

// ZeroVec clears vd by XOR-ing it with itself.
func ZeroVec(vd VReg, a ArrSpec) (uint32, error) { return EORVec(vd, vd, vd, a) }
