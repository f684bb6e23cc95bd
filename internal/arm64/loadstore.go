package arm64

// Single and paired load/store forms. Pair forms use a 7-bit signed
// offset scaled by 4 (32-bit) or 8 (64-bit); single-register forms use
// a 12-bit unsigned offset scaled by the access width. Offsets that are
// not a multiple of the scale are rejected with ErrUnencodableImmediate,
// per the encoder contract.

// LDRImm rd, [rn, #imm] — unsigned-offset scalar load, GPR destination.
func LDRImm(rd, rn Reg, imm int32) (uint32, error) {
	scale := int32(4)
	if rd.Is64() {
		scale = 8
	}
	if imm < 0 || imm%scale != 0 {
		return 0, ErrUnencodableImmediate
	}
	scaled := uint32(imm / scale)
	if scaled > 0xfff {
		return 0, ErrUnencodableImmediate
	}
	word := rd.num()
	word |= rn.num() << 5
	word |= scaled << 10
	word |= 0b01 << 22 // opc=01 (LDR)
	word |= 0b111001 << 24
	size := uint32(2)
	if rd.Is64() {
		size = 3
	}
	word |= size << 30
	return word, nil
}

// STRImm [rn, #imm], rd — unsigned-offset scalar store.
func STRImm(rd, rn Reg, imm int32) (uint32, error) {
	scale := int32(4)
	if rd.Is64() {
		scale = 8
	}
	if imm < 0 || imm%scale != 0 {
		return 0, ErrUnencodableImmediate
	}
	scaled := uint32(imm / scale)
	if scaled > 0xfff {
		return 0, ErrUnencodableImmediate
	}
	word := rd.num()
	word |= rn.num() << 5
	word |= scaled << 10
	word |= 0b00 << 22 // opc=00 (STR)
	word |= 0b111001 << 24
	size := uint32(2)
	if rd.Is64() {
		size = 3
	}
	word |= size << 30
	return word, nil
}

// LDPImm rt, rt2, [rn, #imm7] — signed-offset load pair.
func LDPImm(rt, rt2, rn Reg, imm7 int32) (uint32, error) {
	return ldpStpHelper(rt, rt2, rn, imm7, true, 0b10)
}

// STPImm [rn, #imm7], rt, rt2 — signed-offset store pair.
func STPImm(rt, rt2, rn Reg, imm7 int32) (uint32, error) {
	return ldpStpHelper(rt, rt2, rn, imm7, false, 0b10)
}

// LDPPost rt, rt2, [rn], #imm7 — post-index load pair.
func LDPPost(rt, rt2, rn Reg, imm7 int32) (uint32, error) {
	return ldpStpHelper(rt, rt2, rn, imm7, true, 0b01)
}

// STPPost [rn], #imm7, rt, rt2 — post-index store pair.
func STPPost(rt, rt2, rn Reg, imm7 int32) (uint32, error) {
	return ldpStpHelper(rt, rt2, rn, imm7, false, 0b01)
}

// LDPPre rt, rt2, [rn, #imm7]! — pre-index load pair.
func LDPPre(rt, rt2, rn Reg, imm7 int32) (uint32, error) {
	return ldpStpHelper(rt, rt2, rn, imm7, true, 0b11)
}

// STPPre [rn, #imm7]!, rt, rt2 — pre-index store pair.
func STPPre(rt, rt2, rn Reg, imm7 int32) (uint32, error) {
	return ldpStpHelper(rt, rt2, rn, imm7, false, 0b11)
}

// ldpStpHelper mirrors the original mini_jit stpHelper: one base
// encoding shared by signed-offset (encoding 0b10), post-index
// (0b01) and pre-index (0b11) addressing.
func ldpStpHelper(rt, rt2, rn Reg, imm7 int32, load bool, encoding uint32) (uint32, error) {
	if !sameWidth(rt, rt2) {
		return 0, ErrOperandWidthMismatch
	}
	scale := int32(4)
	if rt.Is64() {
		scale = 8
	}
	if imm7%scale != 0 {
		return 0, ErrUnencodableImmediate
	}
	scaled := imm7 / scale
	if scaled < -64 || scaled > 63 {
		return 0, ErrUnencodableImmediate
	}
	word := rt.num()
	word |= rn.num() << 5
	word |= rt2.num() << 10
	word |= uint32(scaled&0x7f) << 15
	if load {
		word |= 1 << 22
	}
	word |= encoding << 23
	word |= 0b101 << 27
	sf := uint32(0)
	if rt.Is64() {
		sf = 1
	}
	word |= sf << 31
	return word, nil
}

// FPU (SIMD&FP) load/store, unsigned-offset. size selects the access
// width (S=32, D=64, Q=128); the scale and opc field depend on it.
func loadStoreFPU(vd VReg, rn Reg, imm int32, size ScalarSize, load bool) (uint32, error) {
	var scale int32
	var opc, szField uint32
	switch size {
	case SizeS:
		scale, szField, opc = 4, 0b10, 0b01
	case SizeD:
		scale, szField, opc = 8, 0b11, 0b01
	case SizeQ:
		scale, szField, opc = 16, 0b00, 0b11
	}
	if imm < 0 || imm%scale != 0 {
		return 0, ErrUnencodableImmediate
	}
	scaled := uint32(imm / scale)
	if scaled > 0xfff {
		return 0, ErrUnencodableImmediate
	}
	word := vd.num()
	word |= rn.num() << 5
	word |= scaled << 10
	if !load {
		opc &^= 0b01
	}
	word |= opc << 22
	word |= 0b111101 << 24
	word |= szField << 30
	return word, nil
}

// LDRFpu vd, [rn, #imm]
func LDRFpu(vd VReg, rn Reg, imm int32, size ScalarSize) (uint32, error) {
	return loadStoreFPU(vd, rn, imm, size, true)
}

// STRFpu [rn, #imm], vd
func STRFpu(vd VReg, rn Reg, imm int32, size ScalarSize) (uint32, error) {
	return loadStoreFPU(vd, rn, imm, size, false)
}

// LDRRegOffset rd, [rn, rm] — register-offset load with rm used as an
// unscaled byte offset (no shift), used by the sigmoid-interpolation
// kernel's table gather.
func LDRRegOffset(rd, rn, rm Reg) (uint32, error) {
	word := rd.num()
	word |= rn.num() << 5
	word |= 0b10 << 10
	word |= 0b011 << 13
	word |= rm.num() << 16
	word |= 0b00 << 22
	word |= 0b111000011 << 21
	size := uint32(2)
	if rd.Is64() {
		size = 3
	}
	word |= size << 30
	return word, nil
}
