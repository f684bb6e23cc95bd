package arm64

import "testing"

func TestCondInvertIsInvolution(t *testing.T) {
	for c := EQ; c <= LE; c++ {
		if got := c.Invert().Invert(); got != c {
			t.Fatalf("Invert(Invert(%v)) = %v, want %v", c, got, c)
		}
	}
}

func TestCondInvertPanicsOnUnknown(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic for an out-of-range condition code")
		}
	}()
	_ = Cond(255).Invert()
}

func TestCBNZRangeEnforced(t *testing.T) {
	if _, err := CBNZ(X10, 1<<20); err != ErrUnencodableImmediate {
		t.Fatalf("expected ErrUnencodableImmediate beyond +1MiB, got %v", err)
	}
	if _, err := CBNZ(X10, -(1<<20)-4); err != ErrUnencodableImmediate {
		t.Fatalf("expected ErrUnencodableImmediate beyond -1MiB, got %v", err)
	}
	if _, err := CBNZ(X10, -4); err != nil {
		t.Fatalf("unexpected error for a small backward branch: %v", err)
	}
}

func TestCBZFieldMaskIsNotTheHistoricalBug(t *testing.T) {
	// A forward branch of exactly one word must only ever set imm19=1 in
	// bits [23:5]; none of the reserved high bits the original source's
	// 0x510FFFFF mask would have let through should appear.
	w, err := CBZ(X0, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	imm19Field := (w >> 5) & 0x7ffff
	if imm19Field != 1 {
		t.Fatalf("imm19 field = %#x, want 1", imm19Field)
	}
	if w&^uint32(0x7ffff<<5|0x1f|1<<24|0b011010<<25|1<<31) != 0 {
		t.Fatalf("unexpected bits set outside the defined CBZ fields: %#032b", w)
	}
}

func TestBUnconditionalRangeEnforced(t *testing.T) {
	if _, err := B(3); err != ErrUnencodableImmediate {
		t.Fatalf("expected ErrUnencodableImmediate for a non-4-byte-aligned offset, got %v", err)
	}
	if _, err := B(1 << 27); err != ErrUnencodableImmediate {
		t.Fatalf("expected ErrUnencodableImmediate beyond the imm26 range, got %v", err)
	}
}

func TestRETUsesLinkRegister(t *testing.T) {
	w := RET()
	rn := (w >> 5) & 0x1f
	if rn != LR.num() {
		t.Fatalf("RET rn field = %d, want lr (%d)", rn, LR.num())
	}
}
