package vm

import "testing"

func TestDecodeAddImmediate(t *testing.T) {
	// addi x1, x0, 5
	d := Decode(0x00500093)
	if d.Kind != KindOpImm {
		t.Fatalf("kind = %v, want KindOpImm", d.Kind)
	}
	if d.Rd != 1 || d.Rs1 != 0 || d.Imm != 5 || d.Funct3 != F3ADDSUB {
		t.Fatalf("unexpected fields: %+v", d)
	}
}

func TestDecodeLUI(t *testing.T) {
	// lui x2, 0x12345
	d := Decode(0x12345137)
	if d.Kind != KindLUI {
		t.Fatalf("kind = %v, want KindLUI", d.Kind)
	}
	if d.Rd != 2 || d.Imm != int32(0x12345000) {
		t.Fatalf("unexpected fields: %+v", d)
	}
}

func TestDecodeJAL(t *testing.T) {
	// jal x0, 0
	d := Decode(0x0000006F)
	if d.Kind != KindJAL {
		t.Fatalf("kind = %v, want KindJAL", d.Kind)
	}
	if d.Rd != 0 || d.Imm != 0 {
		t.Fatalf("unexpected fields: %+v", d)
	}
}

func TestDecodeLoadWord(t *testing.T) {
	// lw x3, 4(x1)
	d := Decode(0x0040A183)
	if d.Kind != KindLoad {
		t.Fatalf("kind = %v, want KindLoad", d.Kind)
	}
	if d.Rd != 3 || d.Rs1 != 1 || d.Imm != 4 || d.Funct3 != F3LW {
		t.Fatalf("unexpected fields: %+v", d)
	}
}

func TestDecodeStoreWord(t *testing.T) {
	// sw x3, 4(x1)
	d := Decode(0x0030A223)
	if d.Kind != KindStore {
		t.Fatalf("kind = %v, want KindStore", d.Kind)
	}
	if d.Rs1 != 1 || d.Rs2 != 3 || d.Imm != 4 || d.Funct3 != F3SW {
		t.Fatalf("unexpected fields: %+v", d)
	}
}

func TestDecodeMul(t *testing.T) {
	// mul x1, x2, x3
	d := Decode(0x023100B3)
	if d.Kind != KindMulDiv {
		t.Fatalf("kind = %v, want KindMulDiv", d.Kind)
	}
	if d.Rd != 1 || d.Rs1 != 2 || d.Rs2 != 3 || d.Funct3 != F3MUL {
		t.Fatalf("unexpected fields: %+v", d)
	}
}

func TestDecodeECALL(t *testing.T) {
	d := Decode(0x00000073)
	if d.Kind != KindECALL {
		t.Fatalf("kind = %v, want KindECALL", d.Kind)
	}
}

func TestDecodeEBREAK(t *testing.T) {
	d := Decode(0x00100073)
	if d.Kind != KindEBREAK {
		t.Fatalf("kind = %v, want KindEBREAK", d.Kind)
	}
}

func TestDecodeInvalidOpcodeFaults(t *testing.T) {
	d := Decode(0xFFFFFFFF)
	if d.Kind != KindInvalid {
		t.Fatalf("kind = %v, want KindInvalid for an unrecognized opcode", d.Kind)
	}
}

func TestDecodeIsStateless(t *testing.T) {
	a := Decode(0x00500093)
	b := Decode(0x00500093)
	if a != b {
		t.Fatalf("Decode is not pure: %+v != %+v", a, b)
	}
}
