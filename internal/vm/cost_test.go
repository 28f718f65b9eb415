package vm

import "testing"

func TestGasMeterConsumeExact(t *testing.T) {
	g := NewGasMeter(10)
	if !g.Consume(10) {
		t.Fatal("expected exact-budget consume to succeed")
	}
	if g.Remaining() != 0 {
		t.Fatalf("remaining = %d, want 0", g.Remaining())
	}
}

func TestGasMeterConsumeOverBudgetZeroesRemaining(t *testing.T) {
	g := NewGasMeter(5)
	if g.Consume(6) {
		t.Fatal("expected over-budget consume to fail")
	}
	if g.Remaining() != 0 {
		t.Fatalf("remaining = %d, want 0 per spec: negative post-decrement clamps to 0", g.Remaining())
	}
}

func TestGasMeterLimitIsStable(t *testing.T) {
	g := NewGasMeter(100)
	g.Consume(40)
	if g.Limit() != 100 {
		t.Fatalf("limit = %d, want 100 (unaffected by consumption)", g.Limit())
	}
}

func TestInstructionCostMulDivIsFourTimesALU(t *testing.T) {
	alu := InstructionCost(DecodedInstruction{Kind: KindOp})
	mul := InstructionCost(DecodedInstruction{Kind: KindMulDiv})
	if mul != alu*4 {
		t.Fatalf("mul cost %d is not 4x alu cost %d", mul, alu)
	}
}
