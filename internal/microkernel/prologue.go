package microkernel

import (
	"github.com/mlcompile/tensorjit/internal/arm64"
	"github.com/mlcompile/tensorjit/internal/kernel"
)

// frameBytes is the fixed stack frame every generated kernel reserves
// for its callee-saved register save area: fp+lr pair, x19-x28 (5
// pairs), and v8-v15 (4 pairs of 128-bit slots for the Q view).
const frameBytes = 16 + 5*16 + 4*32

// emitPrologue pushes the frame-pointer/link-register pair with a
// pre-indexed pair store, then saves x19-x28 with signed-offset pair
// stores and v8-v15 with single 128-bit stores.
func emitPrologue(buf *kernel.Buffer) error {
	ops := []func() (uint32, error){
		func() (uint32, error) { return arm64.STPPre(arm64.FP, arm64.LR, arm64.SP, -int32(frameBytes)) },
		func() (uint32, error) { return arm64.MOVSP(arm64.FP, arm64.SP) },
		func() (uint32, error) { return arm64.STPImm(arm64.X19, arm64.X20, arm64.SP, 16) },
		func() (uint32, error) { return arm64.STPImm(arm64.X21, arm64.X22, arm64.SP, 32) },
		func() (uint32, error) { return arm64.STPImm(arm64.X23, arm64.X24, arm64.SP, 48) },
		func() (uint32, error) { return arm64.STPImm(arm64.X25, arm64.X26, arm64.SP, 64) },
		func() (uint32, error) { return arm64.STPImm(arm64.X27, arm64.X28, arm64.SP, 80) },
	}
	for _, op := range ops {
		w, err := op()
		if err != nil {
			return err
		}
		buf.Append(w)
	}
	return emitVecSaveRestore(buf, 96, true)
}

// emitEpilogue restores everything emitPrologue saved, in reverse
// order, then RETs.
func emitEpilogue(buf *kernel.Buffer) error {
	if err := emitVecSaveRestore(buf, 96, false); err != nil {
		return err
	}
	ops := []func() (uint32, error){
		func() (uint32, error) { return arm64.LDPImm(arm64.X19, arm64.X20, arm64.SP, 16) },
		func() (uint32, error) { return arm64.LDPImm(arm64.X21, arm64.X22, arm64.SP, 32) },
		func() (uint32, error) { return arm64.LDPImm(arm64.X23, arm64.X24, arm64.SP, 48) },
		func() (uint32, error) { return arm64.LDPImm(arm64.X25, arm64.X26, arm64.SP, 64) },
		func() (uint32, error) { return arm64.LDPImm(arm64.X27, arm64.X28, arm64.SP, 80) },
		func() (uint32, error) { return arm64.LDPPost(arm64.FP, arm64.LR, arm64.SP, int32(frameBytes)) },
	}
	for _, op := range ops {
		w, err := op()
		if err != nil {
			return err
		}
		buf.Append(w)
	}
	buf.Append(arm64.RET())
	return nil
}

// emitVecSaveRestore stores (save=true) or loads (save=false) v8-v15
// as four quad-word pairs starting at [sp, #base].
func emitVecSaveRestore(buf *kernel.Buffer, base int32, save bool) error {
	pairs := [][2]arm64.VReg{{arm64.V8, arm64.V9}, {arm64.V10, arm64.V11}, {arm64.V12, arm64.V13}, {arm64.V14, arm64.V15}}
	for i, p := range pairs {
		off := base + int32(i*32)
		var w uint32
		var err error
		if save {
			w, err = arm64.STRFpu(p[0], arm64.SP, off, arm64.SizeQ)
		} else {
			w, err = arm64.LDRFpu(p[0], arm64.SP, off, arm64.SizeQ)
		}
		if err != nil {
			return err
		}
		buf.Append(w)
		if save {
			w, err = arm64.STRFpu(p[1], arm64.SP, off+16, arm64.SizeQ)
		} else {
			w, err = arm64.LDRFpu(p[1], arm64.SP, off+16, arm64.SizeQ)
		}
		if err != nil {
			return err
		}
		buf.Append(w)
	}
	return nil
}

// scaleLeadingDims multiplies the ld registers (passed in element
// units at the ABI boundary) by the element size, per the calling
// convention: "multiply leading dimensions by the element size (4
// bytes) on entry."
func scaleLeadingDims(buf *kernel.Buffer, regs ...arm64.Reg) error {
	for _, r := range regs {
		w, err := arm64.LSLImm(r, r, 2) // *4: element size in bytes, fp32 only
		if err != nil {
			return err
		}
		buf.Append(w)
	}
	return nil
}
