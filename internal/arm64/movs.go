package arm64

// moveWideOpc selects MOVN(0)/MOVZ(2)/MOVK(3) within the move-wide family.
type moveWideOpc uint32

const (
	opcMOVN moveWideOpc = 0
	opcMOVZ moveWideOpc = 2
	opcMOVK moveWideOpc = 3
)

func encodeMoveWide(opc moveWideOpc, rd Reg, imm16 uint32, shift uint32) (uint32, error) {
	if imm16 > 0xffff {
		return 0, ErrUnencodableImmediate
	}
	maxShift := uint32(3)
	if !rd.Is64() {
		maxShift = 1
	}
	if shift > maxShift {
		return 0, ErrUnencodableImmediate
	}
	var sf uint32
	if rd.Is64() {
		sf = 1
	}
	word := rd.num()
	word |= imm16 << 5
	word |= shift << 21
	word |= 0b100101 << 23
	word |= uint32(opc) << 29
	word |= sf << 31
	return word, nil
}

// MOVZ rd, #imm16, LSL #(shift*16)
func MOVZ(rd Reg, imm16 uint32, shift uint32) (uint32, error) {
	return encodeMoveWide(opcMOVZ, rd, imm16, shift)
}

// MOVK rd, #imm16, LSL #(shift*16)
func MOVK(rd Reg, imm16 uint32, shift uint32) (uint32, error) {
	return encodeMoveWide(opcMOVK, rd, imm16, shift)
}

// MOVN rd, #imm16, LSL #(shift*16)
func MOVN(rd Reg, imm16 uint32, shift uint32) (uint32, error) {
	return encodeMoveWide(opcMOVN, rd, imm16, shift)
}

// MOVImm64 loads an arbitrary 64-bit immediate into rd with a single
// MOVZ when one 16-bit field at shift 0/16/32/48 suffices. Per the
// encoder contract only a single MOVZ is required; callers needing the
// full range should use the MOVZ+MOVK extension explicitly.
func MOVImm64(rd Reg, imm uint64) (uint32, error) {
	maxShift := 3
	if !rd.Is64() {
		maxShift = 1
		if imm > 0xffffffff {
			return 0, ErrImmediateTooLarge
		}
	}
	for shift := 0; shift <= maxShift; shift++ {
		field := (imm >> (uint(shift) * 16)) & 0xffff
		if imm == field<<(uint(shift)*16) {
			return MOVZ(rd, uint32(field), uint32(shift))
		}
	}
	return 0, ErrImmediateTooLarge
}
