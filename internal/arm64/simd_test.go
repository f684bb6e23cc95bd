package arm64

import "testing"

func TestFMLAVecArrangementRejected(t *testing.T) {
	if _, err := FMLAVec(V0, V1, V2, ArrB8); err != nil {
		t.Fatalf("ArrB8 should be a valid byte arrangement for vecOp3: %v", err)
	}
	if _, err := FMLAVec(V0, V1, V2, ArrSpec(99)); err != ErrBadArrangement {
		t.Fatalf("expected ErrBadArrangement for an unknown arrangement, got %v", err)
	}
}

func TestFMLAVecQBitByArrangement(t *testing.T) {
	s2, err := FMLAVec(V0, V1, V2, ArrS2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s4, err := FMLAVec(V0, V1, V2, ArrS4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if (s2>>30)&1 != 0 {
		t.Fatalf("ArrS2 should encode Q=0")
	}
	if (s4>>30)&1 != 1 {
		t.Fatalf("ArrS4 should encode Q=1")
	}
}

func TestFMLALaneIndexRange(t *testing.T) {
	if _, err := FMLALane(V0, V1, V2, 4, SizeS); err != ErrBadLaneIndex {
		t.Fatalf("expected ErrBadLaneIndex for idx=4 on S lanes, got %v", err)
	}
	if _, err := FMLALane(V0, V1, V2, 3, SizeS); err != nil {
		t.Fatalf("unexpected error at max S lane index: %v", err)
	}
	if _, err := FMLALane(V0, V1, V2, 2, SizeD); err != ErrBadLaneIndex {
		t.Fatalf("expected ErrBadLaneIndex for idx=2 on D lanes, got %v", err)
	}
	if _, err := FMLALane(V0, V1, V2, 0, SizeQ); err != ErrBadArrangement {
		t.Fatalf("expected ErrBadArrangement for SizeQ, got %v", err)
	}
}

func TestFMAXFMINVecDiffer(t *testing.T) {
	max, err := FMAXVec(V0, V1, V2, ArrS4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	min, err := FMINVec(V0, V1, V2, ArrS4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if max == min {
		t.Fatalf("FMAXVec and FMINVec produced identical encodings: %#x", max)
	}
}

func TestFMAXScalarRejectsNonScalarSize(t *testing.T) {
	if _, err := FMAXScalar(V0, V1, V2, SizeQ); err != ErrBadArrangement {
		t.Fatalf("expected ErrBadArrangement for SizeQ, got %v", err)
	}
	if _, err := FMAXScalar(V0, V1, V2, SizeS); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFRECPEThenFRECPSDiffer(t *testing.T) {
	e, err := FRECPEVec(V0, V1, ArrS4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s, err := FRECPSVec(V0, V1, V2, ArrS4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e == s {
		t.Fatalf("FRECPEVec and FRECPSVec produced identical encodings: %#x", e)
	}
}

func TestFRINTMAndFCVTMSDiffer(t *testing.T) {
	m, err := FRINTMVec(V0, V1, ArrS4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c, err := FCVTMSVec(V0, V1, ArrS4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m == c {
		t.Fatalf("FRINTMVec and FCVTMSVec produced identical encodings: %#x", m)
	}
}

func TestFCMPScalarRejectsVectorSize(t *testing.T) {
	if _, err := FCMPScalar(V0, V1, SizeQ); err != ErrBadArrangement {
		t.Fatalf("expected ErrBadArrangement for SizeQ, got %v", err)
	}
}

func TestUMOVLaneIndexRange(t *testing.T) {
	if _, err := UMOV(X0, V1, 4, SizeS); err != ErrBadLaneIndex {
		t.Fatalf("expected ErrBadLaneIndex for idx=4 on S lanes, got %v", err)
	}
	if _, err := UMOV(X0, V1, 1, SizeD); err != nil {
		t.Fatalf("unexpected error at max D lane index: %v", err)
	}
	if _, err := UMOV(X0, V1, 0, SizeQ); err != ErrBadArrangement {
		t.Fatalf("expected ErrBadArrangement for SizeQ, got %v", err)
	}
}

func TestUMOVFieldsRoundTrip(t *testing.T) {
	w, err := UMOV(X5, V3, 2, SizeS)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rd := w & 0x1f
	vn := (w >> 5) & 0x1f
	if rd != X5.num() {
		t.Fatalf("rd field = %d, want %d", rd, X5.num())
	}
	if vn != 3 {
		t.Fatalf("vn field = %d, want 3", vn)
	}
}

func TestINSLaneIndexRange(t *testing.T) {
	if _, err := INS(V0, X1, 4, SizeS); err != ErrBadLaneIndex {
		t.Fatalf("expected ErrBadLaneIndex for idx=4 on S lanes, got %v", err)
	}
	if _, err := INS(V0, X1, 0, SizeD); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFMOVRegRejectsVectorSize(t *testing.T) {
	if _, err := FMOVReg(V0, V1, SizeQ); err != ErrBadArrangement {
		t.Fatalf("expected ErrBadArrangement for SizeQ, got %v", err)
	}
}

func TestFMOVIntScalarRange(t *testing.T) {
	if _, err := FMOVIntScalar(V0, 31, SizeS); err != nil {
		t.Fatalf("unexpected error at max positive imm: %v", err)
	}
	if _, err := FMOVIntScalar(V0, -31, SizeS); err != nil {
		t.Fatalf("unexpected error at max negative imm: %v", err)
	}
	if _, err := FMOVIntScalar(V0, 32, SizeS); err != ErrUnencodableImmediate {
		t.Fatalf("expected ErrUnencodableImmediate beyond +31, got %v", err)
	}
	if _, err := FMOVIntScalar(V0, -32, SizeS); err != ErrUnencodableImmediate {
		t.Fatalf("expected ErrUnencodableImmediate beyond -31, got %v", err)
	}
	if _, err := FMOVIntScalar(V0, 1, SizeQ); err != ErrBadArrangement {
		t.Fatalf("expected ErrBadArrangement for SizeQ, got %v", err)
	}
}

func TestFMOVIntVecArrangementRestriction(t *testing.T) {
	if _, err := FMOVIntVec(V0, 1, ArrB16); err != ErrBadArrangement {
		t.Fatalf("expected ErrBadArrangement for ArrB16, got %v", err)
	}
	for _, a := range []ArrSpec{ArrS2, ArrS4, ArrD2} {
		if _, err := FMOVIntVec(V0, 1, a); err != nil {
			t.Fatalf("arrangement %v: unexpected error: %v", a, err)
		}
	}
}

func TestFMOVIntVecRange(t *testing.T) {
	if _, err := FMOVIntVec(V0, 32, ArrS4); err != ErrUnencodableImmediate {
		t.Fatalf("expected ErrUnencodableImmediate beyond +31, got %v", err)
	}
	if _, err := FMOVIntVec(V0, -32, ArrS4); err != ErrUnencodableImmediate {
		t.Fatalf("expected ErrUnencodableImmediate beyond -31, got %v", err)
	}
}

func TestFMOVIntVecSignBitSetOnlyWhenNegative(t *testing.T) {
	pos, err := FMOVIntVec(V0, 5, ArrS4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	neg, err := FMOVIntVec(V0, -5, ArrS4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pos&(1<<18) != 0 {
		t.Fatalf("positive immediate should not set the sign field")
	}
	if neg&(1<<18) == 0 {
		t.Fatalf("negative immediate should set the sign field")
	}
}

func TestTransposeFamilyDistinctOpcodes(t *testing.T) {
	ops := map[string]uint32{}
	var err error
	ops["TRN1"], err = TRN1(V0, V1, V2, ArrS4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ops["TRN2"], err = TRN2(V0, V1, V2, ArrS4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ops["ZIP1"], err = ZIP1(V0, V1, V2, ArrS4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ops["ZIP2"], err = ZIP2(V0, V1, V2, ArrS4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	seen := map[uint32]string{}
	for name, w := range ops {
		if other, ok := seen[w]; ok {
			t.Fatalf("%s and %s produced identical encodings: %#x", name, other, w)
		}
		seen[w] = name
	}
}

func TestZeroVecIsSelfXOR(t *testing.T) {
	zero, err := ZeroVec(V5, ArrS4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	eor, err := EORVec(V5, V5, V5, ArrS4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if zero != eor {
		t.Fatalf("ZeroVec(v5) = %#x, want EORVec(v5,v5,v5) = %#x", zero, eor)
	}
}
