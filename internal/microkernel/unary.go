package microkernel

import (
	"fmt"

	"github.com/mlcompile/tensorjit/internal/arm64"
	"github.com/mlcompile/tensorjit/internal/kernel"
)

// GenerateUnary appends a unary primitive body (ReLU, Zero, Identity,
// Square, Reciprocal, FastSigmoid, SigmoidTaylor, SigmoidInterp,
// Increment, Decrement) operating on an m x n tile, following the ABI
// x0=A, x1=B, x2=ldA(elements), x3=ldB(elements), x4=table(optional).
//
// All kinds share one row-blocked loop skeleton (4 elements per NEON
// vector, a scalar remainder), grounded in relu_primitive.cpp's
// CBNZ-terminated row loop; SigmoidInterp additionally grounds its
// table-gather sequence in sigmoid_interp_primitive.cpp.
func GenerateUnary(buf *kernel.Buffer, kind Kind, m, n int) error {
	if err := emitPrologue(buf); err != nil {
		return err
	}
	aReg, bReg, ldA, ldB := arm64.X0, arm64.X1, arm64.X2, arm64.X3
	if err := scaleLeadingDims(buf, ldA, ldB); err != nil {
		return err
	}

	if kind == SigmoidInterp || kind == SigmoidTaylor {
		if err := emitLoadConstants(buf, kind); err != nil {
			return err
		}
	}

	for col := 0; col < n; col++ {
		if err := emitUnaryColumn(buf, kind, aReg, bReg, m); err != nil {
			return err
		}
		advA, err := arm64.ADDShifted(aReg, aReg, ldA, arm64.ShiftLSL, 0)
		if err != nil {
			return err
		}
		buf.Append(advA)
		advB, err := arm64.ADDShifted(bReg, bReg, ldB, arm64.ShiftLSL, 0)
		if err != nil {
			return err
		}
		buf.Append(advB)
	}

	return emitEpilogue(buf)
}

// emitLoadConstants loads the sigmoid kernels' fixed constants into
// v28-v31: clamp bounds [-8, 8], the table-index scale 2, and the
// table's upper index bound 31 — exactly the constant set
// sigmoid_interp_primitive.cpp loads via fmovIntVec before its main
// loop.
func emitLoadConstants(buf *kernel.Buffer, kind Kind) error {
	consts := []struct {
		v   arm64.VReg
		imm int32
	}{
		{arm64.V31, -8}, {arm64.V30, 8}, {arm64.V29, 2}, {arm64.V28, 31},
	}
	if kind == SigmoidInterp {
		consts = append(consts, struct {
			v   arm64.VReg
			imm int32
		}{arm64.V9, 1}, struct {
			v   arm64.VReg
			imm int32
		}{arm64.V8, -1})
	}
	for _, c := range consts {
		w, err := arm64.FMOVIntVec(c.v, c.imm, arm64.ArrS4)
		if err != nil {
			return err
		}
		buf.Append(w)
	}
	return nil
}

func emitUnaryColumn(buf *kernel.Buffer, kind Kind, aReg, bReg arm64.Reg, m int) error {
	blocks := m / 4
	remainder := m % 4

	// Walk the column through scratch copies (x12, x13) of the pointers,
	// so aReg/bReg still address the column start when GenerateUnary
	// advances them by the leading dimensions.
	aPtr, bPtr := arm64.X12, arm64.X13
	for _, p := range [][2]arm64.Reg{{aPtr, aReg}, {bPtr, bReg}} {
		mov, err := arm64.MOVReg(p[0], p[1])
		if err != nil {
			return err
		}
		buf.Append(mov)
	}

	if blocks > 0 {
		if err := emitUnaryRowBlock(buf, kind, aPtr, bPtr, blocks); err != nil {
			return err
		}
	}
	for i := 0; i < remainder; i++ {
		off := int32(i * 4) // the row block already advanced the pointers past its rows
		if err := emitUnaryScalar(buf, kind, aPtr, bPtr, off); err != nil {
			return err
		}
	}
	return nil
}

// emitUnaryRowBlock emits a CBNZ-terminated loop processing 4 rows per
// iteration, matching relu_primitive.cpp's main loop shape.
func emitUnaryRowBlock(buf *kernel.Buffer, kind Kind, aReg, bReg arm64.Reg, blocks int) error {
	cnt, err := arm64.MOVZ(arm64.X10, uint32(blocks), 0)
	if err != nil {
		return err
	}
	buf.Append(cnt)

	label := fmt.Sprintf("unary_row_loop_%d", buf.Len())
	if err := buf.AddLabel(label); err != nil {
		return err
	}

	ld, err := arm64.LDRFpu(arm64.V0, aReg, 0, arm64.SizeQ)
	if err != nil {
		return err
	}
	buf.Append(ld)

	if err := emitUnaryOp(buf, kind, arm64.V1, arm64.V0, arm64.ArrS4); err != nil {
		return err
	}

	st, err := arm64.STRFpu(arm64.V1, bReg, 0, arm64.SizeQ)
	if err != nil {
		return err
	}
	buf.Append(st)

	advA, err := arm64.ADDImm(aReg, aReg, 16, false)
	if err != nil {
		return err
	}
	buf.Append(advA)
	advB, err := arm64.ADDImm(bReg, bReg, 16, false)
	if err != nil {
		return err
	}
	buf.Append(advB)

	dec, err := arm64.SUBImm(arm64.X10, arm64.X10, 1, false)
	if err != nil {
		return err
	}
	buf.Append(dec)

	n, err := buf.InstrCountFromLabel(label)
	if err != nil {
		return err
	}
	br, err := arm64.CBNZ(arm64.X10, -int64(n)*4)
	if err != nil {
		return err
	}
	buf.Append(br)
	return nil
}

func emitUnaryScalar(buf *kernel.Buffer, kind Kind, aReg, bReg arm64.Reg, off int32) error {
	ld, err := arm64.LDRFpu(arm64.V0, aReg, off, arm64.SizeS)
	if err != nil {
		return err
	}
	buf.Append(ld)
	if err := emitUnaryOp(buf, kind, arm64.V1, arm64.V0, arm64.ArrS2); err != nil {
		return err
	}
	st, err := arm64.STRFpu(arm64.V1, bReg, off, arm64.SizeS)
	if err != nil {
		return err
	}
	buf.Append(st)
	return nil
}

// emitUnaryOp appends the instruction sequence implementing one unary
// kind over a vector register, per spec.md §4.C's listed formulas.
func emitUnaryOp(buf *kernel.Buffer, kind Kind, dst, src arm64.VReg, arr arm64.ArrSpec) error {
	switch kind {
	case Identity, CopyRelu:
		one, err := arm64.FMOVIntVec(arm64.V27, 1, arr)
		if err != nil {
			return err
		}
		buf.Append(one)
		if err := copyVec(buf, dst, src, arm64.V27, arr); err != nil {
			return err
		}
		if kind == CopyRelu {
			return emitReLU(buf, dst, dst, arr)
		}
		return nil
	case ReLU:
		return emitReLU(buf, dst, src, arr)
	case Zero:
		w, err := arm64.ZeroVec(dst, arr)
		if err != nil {
			return err
		}
		buf.Append(w)
		return nil
	case Square:
		zero, err := arm64.ZeroVec(dst, arr)
		if err != nil {
			return err
		}
		buf.Append(zero)
		w, err := arm64.FMLAVec(dst, src, src, arr)
		if err != nil {
			return err
		}
		buf.Append(w)
		return nil
	case Reciprocal:
		return emitReciprocal(buf, dst, src, arr)
	case Increment:
		one, err := arm64.FMOVIntVec(arm64.V27, 1, arr)
		if err != nil {
			return err
		}
		buf.Append(one)
		if err := copyVec(buf, dst, src, arm64.V27, arr); err != nil {
			return err
		}
		w, err := arm64.FMLAVec(dst, arm64.V27, arm64.V27, arr) // dst = src + 1*1
		if err != nil {
			return err
		}
		buf.Append(w)
		return nil
	case Decrement:
		negOne, err := arm64.FMOVIntVec(arm64.V27, -1, arr)
		if err != nil {
			return err
		}
		buf.Append(negOne)
		one, err := arm64.FMOVIntVec(arm64.V25, 1, arr)
		if err != nil {
			return err
		}
		buf.Append(one)
		if err := copyVec(buf, dst, src, arm64.V25, arr); err != nil {
			return err
		}
		w, err := arm64.FMLAVec(dst, arm64.V27, arm64.V25, arr) // dst = src + (-1)*1
		if err != nil {
			return err
		}
		buf.Append(w)
		return nil
	case FastSigmoid:
		return emitFastSigmoid(buf, dst, src, arr)
	case SigmoidInterp:
		return emitSigmoidInterp(buf, dst, src)
	case SigmoidTaylor:
		return emitSigmoidTaylor(buf, dst, src, arr)
	default:
		return fmt.Errorf("%w: unary kind %d", ErrUnsupportedKind, kind)
	}
}

func emitReLU(buf *kernel.Buffer, dst, src arm64.VReg, arr arm64.ArrSpec) error {
	zero, err := arm64.ZeroVec(arm64.V26, arr)
	if err != nil {
		return err
	}
	buf.Append(zero)
	w, err := arm64.FMAXVec(dst, src, arm64.V26, arr)
	if err != nil {
		return err
	}
	buf.Append(w)
	return nil
}

// emitReciprocal computes FRECPE followed by a single FRECPS
// Newton-Raphson refinement step, per spec.md §4.C.
func emitReciprocal(buf *kernel.Buffer, dst, src arm64.VReg, arr arm64.ArrSpec) error {
	// The estimate x lives in v24 so that x' = x*(2 - src*x) can be
	// built in dst as 0 + x*v25.
	est, err := arm64.FRECPEVec(arm64.V24, src, arr)
	if err != nil {
		return err
	}
	buf.Append(est)
	step, err := arm64.FRECPSVec(arm64.V25, src, arm64.V24, arr)
	if err != nil {
		return err
	}
	buf.Append(step)
	zero, err := arm64.ZeroVec(dst, arr)
	if err != nil {
		return err
	}
	buf.Append(zero)
	refine, err := arm64.FMLAVec(dst, arm64.V24, arm64.V25, arr)
	if err != nil {
		return err
	}
	buf.Append(refine)
	return nil
}

// emitFastSigmoid computes 0.5 * (x / (1 + |x|) + 1) using the
// reciprocal estimate/refinement sequence above for the division
// (the encoder set in scope has no direct FDIV form). |x| is
// approximated by max(x, -x), since there is no dedicated FABS form
// either.
func emitFastSigmoid(buf *kernel.Buffer, dst, src arm64.VReg, arr arm64.ArrSpec) error {
	negOne, err := arm64.FMOVIntVec(arm64.V24, -1, arr)
	if err != nil {
		return err
	}
	buf.Append(negOne)
	neg, err := arm64.FMLAVec(arm64.V23, src, arm64.V24, arr)
	if err != nil {
		return err
	}
	buf.Append(neg)
	abs, err := arm64.FMAXVec(arm64.V22, src, arm64.V23, arr)
	if err != nil {
		return err
	}
	buf.Append(abs)

	one, err := arm64.FMOVIntVec(arm64.V21, 1, arr)
	if err != nil {
		return err
	}
	buf.Append(one)
	denom, err := arm64.FMLAVec(arm64.V21, arm64.V22, arm64.V21, arr)
	if err != nil {
		return err
	}
	buf.Append(denom)

	if err := emitReciprocal(buf, arm64.V20, arm64.V21, arr); err != nil {
		return err
	}
	ratio, err := arm64.FMLAVec(arm64.V19, src, arm64.V20, arr)
	if err != nil {
		return err
	}
	buf.Append(ratio)

	half, err := arm64.FMOVIntVec(arm64.V18, 1, arr)
	if err != nil {
		return err
	}
	buf.Append(half)
	result, err := arm64.FMLAVec(dst, arm64.V19, arm64.V18, arr)
	if err != nil {
		return err
	}
	buf.Append(result)
	return nil
}

// emitSigmoidTaylor computes the fifth-order polynomial
// 0.5 + 0.25x - x^3/48 + x^5/480 by Horner's method, with the four
// coefficients loaded as pre-broadcast vectors from the auxiliary
// table pointer (x4, one SizeQ entry per coefficient in the order
// 0.5, 0.25, -1/48, 1/480), per spec.md §4.C. The encoder set has no
// vector-register MOV, so a coefficient is copied into an accumulator
// by zeroing it and FMLA-ing it against a broadcast 1, the same trick
// the binary Add/Sub kernels use.
func emitSigmoidTaylor(buf *kernel.Buffer, dst, src arm64.VReg, arr arm64.ArrSpec) error {
	c0, c1, c2, c3 := arm64.V16, arm64.V17, arm64.V18, arm64.V19
	for i, c := range []arm64.VReg{c0, c1, c2, c3} {
		ld, err := arm64.LDRFpu(c, arm64.X4, int32(i*16), arm64.SizeQ)
		if err != nil {
			return err
		}
		buf.Append(ld)
	}

	ones, err := arm64.FMOVIntVec(arm64.V20, 1, arr)
	if err != nil {
		return err
	}
	buf.Append(ones)

	clearX2, err := arm64.ZeroVec(arm64.V21, arr)
	if err != nil {
		return err
	}
	buf.Append(clearX2)
	x2, err := arm64.FMLAVec(arm64.V21, src, src, arr)
	if err != nil {
		return err
	}
	buf.Append(x2)

	acc, tmp1, tmp2 := arm64.V22, arm64.V23, arm64.V24
	if err := copyVec(buf, acc, c3, arm64.V20, arr); err != nil {
		return err
	}

	if err := copyVec(buf, tmp1, c2, arm64.V20, arr); err != nil {
		return err
	}
	step1, err := arm64.FMLAVec(tmp1, acc, arm64.V21, arr) // tmp1 = c2 + c3*x2
	if err != nil {
		return err
	}
	buf.Append(step1)

	if err := copyVec(buf, tmp2, c1, arm64.V20, arr); err != nil {
		return err
	}
	step2, err := arm64.FMLAVec(tmp2, tmp1, arm64.V21, arr) // tmp2 = c1 + tmp1*x2
	if err != nil {
		return err
	}
	buf.Append(step2)

	if err := copyVec(buf, dst, c0, arm64.V20, arr); err != nil {
		return err
	}
	result, err := arm64.FMLAVec(dst, tmp2, src, arr) // dst = c0 + tmp2*x
	if err != nil {
		return err
	}
	buf.Append(result)
	return nil
}

// copyVec writes src's value into dst: zero dst, then FMLA it against
// a broadcast-1 register and src, since the encoder set has no direct
// vector-register MOV.
func copyVec(buf *kernel.Buffer, dst, src, ones arm64.VReg, arr arm64.ArrSpec) error {
	zero, err := arm64.ZeroVec(dst, arr)
	if err != nil {
		return err
	}
	buf.Append(zero)
	w, err := arm64.FMLAVec(dst, ones, src, arr)
	if err != nil {
		return err
	}
	buf.Append(w)
	return nil
}

// emitSigmoidInterp implements the 33-entry table interpolation:
// clamp to [-8,8], map to a table index via 2*(x+8), floor (FRINTM),
// convert to integer (FCVTMS), gather t[i] and t[i+1] via UMOV + LDR
// register-offset, and linearly interpolate. The gather loop uses
// x20-x24 for per-lane scratch, since x10 already holds the enclosing
// row loop's counter in emitUnaryRowBlock.
func emitSigmoidInterp(buf *kernel.Buffer, dst, src arm64.VReg) error {
	const arr = arm64.ArrS4
	clampHi, err := arm64.FMINVec(arm64.V27, src, arm64.V30, arr)
	if err != nil {
		return err
	}
	buf.Append(clampHi)
	clampLo, err := arm64.FMAXVec(arm64.V26, arm64.V27, arm64.V31, arr)
	if err != nil {
		return err
	}
	buf.Append(clampLo)

	// shifted = 2*(x+8) = 16 + 2x: copy the broadcast 8 into v25, add
	// it once more, then accumulate clampedX*2 via FMLA.
	if err := copyVec(buf, arm64.V25, arm64.V30, arm64.V9, arr); err != nil {
		return err
	}
	sixteen, err := arm64.FMLAVec(arm64.V25, arm64.V30, arm64.V9, arr)
	if err != nil {
		return err
	}
	buf.Append(sixteen)
	shifted, err := arm64.FMLAVec(arm64.V25, arm64.V26, arm64.V29, arr)
	if err != nil {
		return err
	}
	buf.Append(shifted)

	floor, err := arm64.FRINTMVec(arm64.V24, arm64.V25, arr)
	if err != nil {
		return err
	}
	buf.Append(floor)

	// frac = shifted - floor
	if err := copyVec(buf, arm64.V23, arm64.V25, arm64.V9, arr); err != nil {
		return err
	}
	frac, err := arm64.FMLAVec(arm64.V23, arm64.V24, arm64.V8, arr)
	if err != nil {
		return err
	}
	buf.Append(frac)

	idx, err := arm64.FCVTMSVec(arm64.V22, arm64.V24, arr)
	if err != nil {
		return err
	}
	buf.Append(idx)

	gprs := []arm64.Reg{arm64.X20, arm64.X21, arm64.X22, arm64.X23}
	valGPR := arm64.X24
	lo, hi := arm64.V18, arm64.V17
	for lane := 0; lane < 4; lane++ {
		um, err := arm64.UMOV(gprs[lane], arm64.V22, lane, arm64.SizeS)
		if err != nil {
			return err
		}
		buf.Append(um)
		sh, err := arm64.LSLImm(gprs[lane], gprs[lane], 2)
		if err != nil {
			return err
		}
		buf.Append(sh)

		ldLo, err := arm64.LDRRegOffset(valGPR, arm64.X4, gprs[lane])
		if err != nil {
			return err
		}
		buf.Append(ldLo)
		insLo, err := arm64.INS(lo, valGPR, lane, arm64.SizeS)
		if err != nil {
			return err
		}
		buf.Append(insLo)

		nextOff, err := arm64.ADDImm(gprs[lane], gprs[lane], 4, false)
		if err != nil {
			return err
		}
		buf.Append(nextOff)
		ldHi, err := arm64.LDRRegOffset(valGPR, arm64.X4, gprs[lane])
		if err != nil {
			return err
		}
		buf.Append(ldHi)
		insHi, err := arm64.INS(hi, valGPR, lane, arm64.SizeS)
		if err != nil {
			return err
		}
		buf.Append(insHi)
	}

	// diff = hi - lo, dst = lo + frac*diff
	if err := copyVec(buf, arm64.V16, hi, arm64.V9, arr); err != nil {
		return err
	}
	diff, err := arm64.FMLAVec(arm64.V16, lo, arm64.V8, arr)
	if err != nil {
		return err
	}
	buf.Append(diff)

	if err := copyVec(buf, dst, lo, arm64.V9, arr); err != nil {
		return err
	}
	result, err := arm64.FMLAVec(dst, arm64.V23, arm64.V16, arr)
	if err != nil {
		return err
	}
	buf.Append(result)
	return nil
}
