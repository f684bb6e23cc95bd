package microkernel

import (
	"errors"
	"fmt"

	"github.com/mlcompile/tensorjit/internal/arm64"
	"github.com/mlcompile/tensorjit/internal/kernel"
)

// ErrTileTooLarge is returned when a requested tile shape is outside
// mTile 1..16 / nTile 1..6 or would need more than the 24 available
// accumulator vector registers. A loop body beyond the CBNZ ±1 MiB
// range is reported by the branch encoder as arm64.ErrUnencodableImmediate.
var ErrTileTooLarge = errors.New("microkernel: matmul tile exceeds register or branch-range budget")

// GenerateMatmul appends a single matmul/BRGEMM kernel body to buf,
// specialized for an mTile x nTile output block, optionally with an
// inner K-reduction loop and an outer batch-reduce loop. This replaces
// the original source's ~90 hand-unrolled subkernel functions (one per
// (M remainder, N block) pair) with one generator keyed by
// (mTile, nTile, hasKLoop, isBatchReduce), per the explicit design
// note that the per-shape boilerplate is code-generated and a
// parametric generator is preferred.
//
// The kernel always computes C += A*B: the accumulator registers are
// loaded from the existing C tile before the K-step FMLA chain and
// stored back afterward, matching matmul_16_6_1.cpp's ldp-before/
// stp-after bracketing. A caller that wants C = A*B starts from a
// Zero first-touch kernel on the same tile instead of expecting this
// kernel to clear C itself.
//
// ABI (SPEC_FULL.md §4.C): x0=A, x1=B, x2=C, x3=ldA, x4=ldB, x5=ldC,
// plus x6=batch-stride-A, x7=batch-stride-B when isBatchReduce.
func GenerateMatmul(buf *kernel.Buffer, mTile, nTile int, hasKLoop, isBatchReduce bool) error {
	if mTile < 1 || mTile > 16 || nTile < 1 || nTile > 6 {
		return fmt.Errorf("%w: m=%d n=%d", ErrTileTooLarge, mTile, nTile)
	}
	mGroups := (mTile + 3) / 4
	if mGroups > 4 || mGroups*nTile > 24 {
		return ErrTileTooLarge
	}

	if err := emitPrologue(buf); err != nil {
		return err
	}

	aReg, bReg, cReg := arm64.X0, arm64.X1, arm64.X2
	ldA, ldB, ldC := arm64.X3, arm64.X4, arm64.X5
	if err := scaleLeadingDims(buf, ldA, ldB, ldC); err != nil {
		return err
	}

	accum := accumRegs(mGroups, nTile)

	// Load the existing C tile into the accumulators through a scratch
	// copy of the C pointer (x10), leaving cReg (x2) untouched for
	// emitStoreC's own walk below.
	cLoadPtr := arm64.X10
	movC, err := arm64.MOVReg(cLoadPtr, cReg)
	if err != nil {
		return err
	}
	buf.Append(movC)
	if err := emitLoadC(buf, cLoadPtr, ldC, mGroups, nTile, mTile, accum); err != nil {
		return err
	}

	emitBody := func() error {
		return emitMatmulKStep(buf, aReg, bReg, ldB, mGroups, nTile, accum)
	}

	if isBatchReduce {
		if err := emitBatchReduceLoop(buf, aReg, bReg, arm64.X6, arm64.X7, hasKLoop, emitBody); err != nil {
			return err
		}
	} else if hasKLoop {
		if err := emitKLoop(buf, emitBody); err != nil {
			return err
		}
	} else {
		if err := emitBody(); err != nil {
			return err
		}
	}

	if err := emitStoreC(buf, cReg, ldC, mGroups, nTile, mTile, accum); err != nil {
		return err
	}

	return emitEpilogue(buf)
}

// accumRegs returns the mGroups*nTile accumulator vector registers,
// resident in v4..v27 in column-major order (one group of 4 M-lanes
// per register, one register per (mGroup, column) pair).
func accumRegs(mGroups, nTile int) []arm64.VReg {
	regs := make([]arm64.VReg, 0, mGroups*nTile)
	base := int(arm64.V4)
	for col := 0; col < nTile; col++ {
		for g := 0; g < mGroups; g++ {
			regs = append(regs, arm64.VReg(base))
			base++
		}
	}
	return regs
}

// emitMatmulKStep emits one K-step: load A's mGroups groups of 4 rows
// into v0-v3, broadcast each of the nTile columns of B with a scalar
// load into v28-v31 (cycling), and issue an FMLA-by-element per
// (mGroup, column) pair, matching matmul_16_6_1.cpp's instruction
// pattern generalized to arbitrary tile shapes.
func emitMatmulKStep(buf *kernel.Buffer, aReg, bReg, ldB arm64.Reg, mGroups, nTile int, accum []arm64.VReg) error {
	for g := 0; g < mGroups; g++ {
		vA := arm64.VReg(int(arm64.V0) + g)
		w, err := arm64.LDRFpu(vA, aReg, int32(g*16), arm64.SizeQ)
		if err != nil {
			return err
		}
		buf.Append(w)
	}
	for col := 0; col < nTile; col++ {
		scratch := arm64.VReg(int(arm64.V28) + col%4)
		w, err := arm64.LDRFpu(scratch, bReg, int32(col*4), arm64.SizeS)
		if err != nil {
			return err
		}
		buf.Append(w)
		for g := 0; g < mGroups; g++ {
			acc := accum[col*mGroups+g]
			vA := arm64.VReg(int(arm64.V0) + g)
			w, err := arm64.FMLALane(acc, vA, scratch, 0, arm64.SizeS)
			if err != nil {
				return err
			}
			buf.Append(w)
		}
	}
	adv, err := arm64.ADDImm(aReg, aReg, uint32(mGroups*16), false)
	if err != nil {
		return err
	}
	buf.Append(adv)
	advB, err := arm64.ADDShifted(bReg, bReg, ldB, arm64.ShiftLSL, 0)
	if err != nil {
		return err
	}
	buf.Append(advB)
	return nil
}

// emitKLoop wraps body in a CBNZ-terminated loop over the K dimension,
// using x8 as the trip counter (loaded by the caller of GenerateMatmul
// via the K prim-dimension size baked in as an immediate, since K is
// compile-time-known once the optimizer has run).
func emitKLoop(buf *kernel.Buffer, body func() error) error {
	// x8 holds the remaining K count; the caller of setup bakes the
	// initial count in via a MOVZ before entering the loop body.
	const label = "k_loop"
	if err := buf.AddLabel(label); err != nil {
		return err
	}
	if err := body(); err != nil {
		return err
	}
	dec, err := arm64.SUBImm(arm64.X8, arm64.X8, 1, false)
	if err != nil {
		return err
	}
	buf.Append(dec)
	n, err := buf.InstrCountFromLabel(label)
	if err != nil {
		return err
	}
	branch, err := arm64.CBNZ(arm64.X8, -int64(n)*4)
	if err != nil {
		return err
	}
	buf.Append(branch)
	return nil
}

// emitBatchReduceLoop wraps the K-step (optionally itself wrapped in a
// K-loop) in an outer loop over the batch-reduce dimension, advancing
// A and B by their batch strides (x6, x7) each iteration and
// accumulating into the same C registers across batches.
func emitBatchReduceLoop(buf *kernel.Buffer, aReg, bReg, strideA, strideB arm64.Reg, hasKLoop bool, body func() error) error {
	const label = "batch_loop"
	if err := buf.AddLabel(label); err != nil {
		return err
	}
	if hasKLoop {
		if err := emitKLoop(buf, body); err != nil {
			return err
		}
	} else if err := body(); err != nil {
		return err
	}
	advA, err := arm64.ADDShifted(aReg, aReg, strideA, arm64.ShiftLSL, 0)
	if err != nil {
		return err
	}
	buf.Append(advA)
	advB, err := arm64.ADDShifted(bReg, bReg, strideB, arm64.ShiftLSL, 0)
	if err != nil {
		return err
	}
	buf.Append(advB)
	dec, err := arm64.SUBImm(arm64.X9, arm64.X9, 1, false)
	if err != nil {
		return err
	}
	buf.Append(dec)
	n, err := buf.InstrCountFromLabel(label)
	if err != nil {
		return err
	}
	branch, err := arm64.CBNZ(arm64.X9, -int64(n)*4)
	if err != nil {
		return err
	}
	buf.Append(branch)
	return nil
}

// emitLoadC loads the existing mGroups*nTile C tile into the
// accumulator registers, mirroring emitStoreC's row/column walk so the
// two stay in lockstep: whatever layout emitStoreC writes, emitLoadC
// reads back. cPtr is advanced independently of the caller's cReg.
func emitLoadC(buf *kernel.Buffer, cPtr, ldC arm64.Reg, mGroups, nTile, mTile int, accum []arm64.VReg) error {
	for col := 0; col < nTile; col++ {
		for g := 0; g < mGroups; g++ {
			acc := accum[col*mGroups+g]
			rows := 4
			if g == mGroups-1 && mTile%4 != 0 {
				rows = mTile % 4
			}
			off := int32(g * 16)
			if rows == 4 {
				w, err := arm64.LDRFpu(acc, cPtr, off, arm64.SizeQ)
				if err != nil {
					return err
				}
				buf.Append(w)
			} else {
				for r := 0; r < rows; r++ {
					w, err := arm64.LDRFpu(acc, cPtr, off+int32(r*4), arm64.SizeS)
					if err != nil {
						return err
					}
					buf.Append(w)
				}
			}
		}
		adv, err := arm64.ADDShifted(cPtr, cPtr, ldC, arm64.ShiftLSL, 0)
		if err != nil {
			return err
		}
		buf.Append(adv)
	}
	return nil
}

// emitStoreC stores the mGroups*nTile accumulator registers back to C,
// honoring mTile's true row count for the final, possibly-partial
// group (M remainders of 1, 2, 3 rows within the last group of 4).
func emitStoreC(buf *kernel.Buffer, cReg, ldC arm64.Reg, mGroups, nTile, mTile int, accum []arm64.VReg) error {
	for col := 0; col < nTile; col++ {
		for g := 0; g < mGroups; g++ {
			acc := accum[col*mGroups+g]
			rows := 4
			if g == mGroups-1 && mTile%4 != 0 {
				rows = mTile % 4
			}
			off := int32(g * 16)
			if rows == 4 {
				w, err := arm64.STRFpu(acc, cReg, off, arm64.SizeQ)
				if err != nil {
					return err
				}
				buf.Append(w)
			} else {
				for r := 0; r < rows; r++ {
					w, err := arm64.STRFpu(acc, cReg, off+int32(r*4), arm64.SizeS)
					if err != nil {
						return err
					}
					buf.Append(w)
				}
			}
		}
		adv, err := arm64.ADDShifted(cReg, cReg, ldC, arm64.ShiftLSL, 0)
		if err != nil {
			return err
		}
		buf.Append(adv)
	}
	return nil
}
