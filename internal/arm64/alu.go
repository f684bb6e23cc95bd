package arm64

// ADD/SUB immediate and shifted-register forms, MUL, ORR (used for the
// MOV-register alias), and the LSL/LSR/ASR-via-UBFM/SBFM shift-immediate
// forms. Opcodes grounded on the original mini_jit add.h/sub.h/mul.h/
// orr.h headers and generalized to both GPR widths.

func sfBit(r Reg) uint32 {
	if r.Is64() {
		return 1
	}
	return 0
}

// ADDImm rd, rn, #imm12 (optionally LSL #12 via shift12)
func ADDImm(rd, rn Reg, imm12 uint32, shift12 bool) (uint32, error) {
	if !sameWidth(rd, rn) {
		return 0, ErrOperandWidthMismatch
	}
	if imm12 > 0xfff {
		return 0, ErrUnencodableImmediate
	}
	word := rd.num()
	word |= rn.num() << 5
	word |= imm12 << 10
	if shift12 {
		word |= 1 << 22
	}
	word |= 0b10001 << 24
	word |= sfBit(rd) << 31
	return word, nil
}

// SUBImm rd, rn, #imm12 (optionally LSL #12 via shift12)
func SUBImm(rd, rn Reg, imm12 uint32, shift12 bool) (uint32, error) {
	if !sameWidth(rd, rn) {
		return 0, ErrOperandWidthMismatch
	}
	if imm12 > 0xfff {
		return 0, ErrUnencodableImmediate
	}
	word := rd.num()
	word |= rn.num() << 5
	word |= imm12 << 10
	if shift12 {
		word |= 1 << 22
	}
	word |= 0b1010001 << 24
	word |= sfBit(rd) << 31
	return word, nil
}

type shiftKind uint32

const (
	ShiftLSL shiftKind = 0
	ShiftLSR shiftKind = 1
	ShiftASR shiftKind = 2
)

// ADDShifted rd, rn, rm, shift #amount
func ADDShifted(rd, rn, rm Reg, sh shiftKind, amount uint32) (uint32, error) {
	if !sameWidth(rd, rn, rm) {
		return 0, ErrOperandWidthMismatch
	}
	if amount > 63 {
		return 0, ErrUnencodableImmediate
	}
	word := rd.num()
	word |= rn.num() << 5
	word |= amount << 10
	word |= rm.num() << 16
	word |= uint32(sh) << 22
	word |= 0b01011 << 24
	word |= sfBit(rd) << 31
	return word, nil
}

// SUBShifted rd, rn, rm, shift #amount
func SUBShifted(rd, rn, rm Reg, sh shiftKind, amount uint32) (uint32, error) {
	if !sameWidth(rd, rn, rm) {
		return 0, ErrOperandWidthMismatch
	}
	if amount > 63 {
		return 0, ErrUnencodableImmediate
	}
	word := rd.num()
	word |= rn.num() << 5
	word |= amount << 10
	word |= rm.num() << 16
	word |= uint32(sh) << 22
	word |= 0b1001011 << 24
	word |= sfBit(rd) << 31
	return word, nil
}

// MUL rd, rn, rm (alias of MADD with xzr/wzr accumulator)
func MUL(rd, rn, rm Reg) (uint32, error) {
	if !sameWidth(rd, rn, rm) {
		return 0, ErrOperandWidthMismatch
	}
	zr := WZR
	if rd.Is64() {
		zr = XZR
	}
	word := rd.num()
	word |= rn.num() << 5
	word |= zr.num() << 10
	word |= rm.num() << 16
	word |= 0b0011011000 << 21
	word |= sfBit(rd) << 31
	return word, nil
}

// ORRShifted rd, rn, rm, shift #amount — the shifted-register ORR form;
// MOV rd, rm (register) is the special case rn=zr, shift=LSL, amount=0.
func ORRShifted(rd, rn, rm Reg, sh shiftKind, amount uint32) (uint32, error) {
	if !sameWidth(rd, rn, rm) {
		return 0, ErrOperandWidthMismatch
	}
	if amount > 63 {
		return 0, ErrUnencodableImmediate
	}
	word := rd.num()
	word |= rn.num() << 5
	word |= amount << 10
	word |= rm.num() << 16
	word |= uint32(sh) << 22
	word |= 0b0101010 << 24
	word |= sfBit(rd) << 31
	return word, nil
}

// MOVReg rd, rm — the canonical MOV-register alias (ORR rd, zr, rm).
func MOVReg(rd, rm Reg) (uint32, error) {
	zr := WZR
	if rd.Is64() {
		zr = XZR
	}
	return ORRShifted(rd, zr, rm, ShiftLSL, 0)
}

// MOVSP copies to/from the stack pointer, which ORR cannot address;
// it is the ADD-immediate-zero alias instead.
func MOVSP(rd, rn Reg) (uint32, error) {
	return ADDImm(rd, rn, 0, false)
}

// EOR rd, rn, rm (shifted register, shift 0) — also used to implement
// a vector "zero" idiom via self-XOR (see microkernel package).
func EOR(rd, rn, rm Reg) (uint32, error) {
	if !sameWidth(rd, rn, rm) {
		return 0, ErrOperandWidthMismatch
	}
	word := rd.num()
	word |= rn.num() << 5
	word |= rm.num() << 16
	word |= 0b1001010 << 24
	word |= sfBit(rd) << 31
	return word, nil
}

// LSLImm rd, rn, #amount via UBFM: immr = (width-amount) mod width,
// imms = (width-1) - amount.
func LSLImm(rd, rn Reg, amount uint32) (uint32, error) {
	if !sameWidth(rd, rn) {
		return 0, ErrOperandWidthMismatch
	}
	width := uint32(32)
	if rd.Is64() {
		width = 64
	}
	if amount >= width {
		return 0, ErrUnencodableImmediate
	}
	immr := (width - amount) % width
	imms := (width - 1) - amount
	return encodeBitfield(rd, rn, immr, imms, false)
}

// LSRImm rd, rn, #amount via UBFM: immr = amount, imms = width-1.
func LSRImm(rd, rn Reg, amount uint32) (uint32, error) {
	if !sameWidth(rd, rn) {
		return 0, ErrOperandWidthMismatch
	}
	width := uint32(32)
	if rd.Is64() {
		width = 64
	}
	if amount >= width {
		return 0, ErrUnencodableImmediate
	}
	return encodeBitfield(rd, rn, amount, width-1, false)
}

// ASRImm rd, rn, #amount via SBFM: immr = amount, imms = width-1.
func ASRImm(rd, rn Reg, amount uint32) (uint32, error) {
	if !sameWidth(rd, rn) {
		return 0, ErrOperandWidthMismatch
	}
	width := uint32(32)
	if rd.Is64() {
		width = 64
	}
	if amount >= width {
		return 0, ErrUnencodableImmediate
	}
	return encodeBitfield(rd, rn, amount, width-1, true)
}

func encodeBitfield(rd, rn Reg, immr, imms uint32, signed bool) (uint32, error) {
	sf := sfBit(rd)
	n := sf // N bit mirrors sf for UBFM/SBFM on matching widths
	word := rd.num()
	word |= rn.num() << 5
	word |= imms << 10
	word |= immr << 16
	word |= n << 22
	if signed {
		word |= 0b0010011 << 24
	} else {
		word |= 0b1010011 << 24
	}
	word |= sf << 31
	return word, nil
}
