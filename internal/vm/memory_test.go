package vm

import "testing"

func TestMemoryZeroFillOnFirstTouch(t *testing.T) {
	m := NewMemory()
	m.MapPage(0, Perm{Read: true, Write: true})
	v, ok := m.Load32(0)
	if !ok || v != 0 {
		t.Fatalf("expected zero-filled read, got %d ok=%v", v, ok)
	}
}

func TestMemoryStoreThenLoadRoundTrip(t *testing.T) {
	m := NewMemory()
	m.MapPage(0x1000, Perm{Read: true, Write: true})
	if !m.Store32(0x1000, 0xDEADBEEF) {
		t.Fatal("store failed")
	}
	v, ok := m.Load32(0x1000)
	if !ok || v != 0xDEADBEEF {
		t.Fatalf("got %#x ok=%v", v, ok)
	}
}

func TestMemoryDeniesWriteWithoutPermission(t *testing.T) {
	m := NewMemory()
	m.MapPage(0x2000, Perm{Read: true})
	if m.Store32(0x2000, 1) {
		t.Fatal("expected store to a read-only page to fail")
	}
}

func TestMemoryDeniesReadFromUnmappedPage(t *testing.T) {
	m := NewMemory()
	if _, ok := m.Load32(0x5000); ok {
		t.Fatal("expected load from unmapped page to fail")
	}
}

func TestMemoryUnalignedWordLoadFails(t *testing.T) {
	m := NewMemory()
	m.MapPage(0, Perm{Read: true, Write: true})
	if _, ok := m.Load32(1); ok {
		t.Fatal("expected unaligned word load to fail")
	}
	if _, ok := m.Load16(1); ok {
		t.Fatal("expected unaligned halfword load to fail")
	}
	if _, ok := m.Load8(1); !ok {
		t.Fatal("byte access should never require alignment")
	}
}

func TestMemoryFetchInstructionRequiresExecPermission(t *testing.T) {
	m := NewMemory()
	m.MapPage(0, Perm{Read: true, Write: true})
	if _, ok := m.FetchInstruction(0); ok {
		t.Fatal("expected fetch from a non-executable page to fail")
	}
	m.MapPage(0, Perm{Execute: true})
	if _, ok := m.FetchInstruction(0); !ok {
		t.Fatal("expected fetch from an executable page to succeed")
	}
}

func TestMemoryCrossPageAccessRequiresBothPagesPermitted(t *testing.T) {
	m := NewMemory()
	m.MapPage(0, Perm{Read: true, Write: true})
	// Leave the second page (starting at PageSize) unmapped.
	if _, ok := m.Load(PageSize-2, 4); ok {
		t.Fatal("expected a read spanning an unmapped page to fail")
	}
}

func TestMemoryRangeWraparoundRejected(t *testing.T) {
	m := NewMemory()
	m.MapPage(0xFFFFF000, Perm{Read: true})
	if _, ok := m.Load(0xFFFFFFF0, 32); ok {
		t.Fatal("expected address-space wraparound to be rejected")
	}
}

func TestMemoryWriteBytesSpansMultiplePages(t *testing.T) {
	m := NewMemory()
	data := make([]byte, PageSize+16)
	for i := range data {
		data[i] = byte(i)
	}
	m.WriteBytes(PageSize-8, data, Perm{Read: true, Write: true})
	got, ok := m.Load(PageSize-8, len(data))
	if !ok {
		t.Fatal("load across the written span failed")
	}
	for i := range data {
		if got[i] != data[i] {
			t.Fatalf("byte %d: got %d want %d", i, got[i], data[i])
		}
	}
}
