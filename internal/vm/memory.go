package vm

import (
	"encoding/binary"
)

// PageSize is the granularity of the sparse memory image (spec §3).
const PageSize = 4096

const pageShift = 12
const pageMask = PageSize - 1

// Perm is a page's access-permission triple.
type Perm struct {
	Read    bool
	Write   bool
	Execute bool
}

// page holds one 4 KiB page's bytes plus its permissions. Pages are
// allocated lazily (on first touch) and zero-filled, matching spec §3's
// "every byte read before written reads as 0."
type page struct {
	bytes [PageSize]byte
	perm  Perm
}

// Memory is a sparse mapping from page number to (permissions, bytes),
// the single gate every load/store passes through — the same pattern the
// teacher's sbpf.Translate uses, here keyed by page number instead of a
// fixed four-region address tag, to support per-page permissions. Apart
// from the stack region (see StackSize), pages are not mapped on demand: a
// load or store to an unmapped page fails.
type Memory struct {
	pages map[uint32]*page
}

// NewMemory creates an empty sparse memory image.
func NewMemory() *Memory {
	return &Memory{pages: make(map[uint32]*page)}
}

func pageNumber(addr uint32) uint32 {
	return addr >> pageShift
}

// MapPage installs (or overwrites the permissions of) the page containing
// addr, used by NewFrame to map the initial stack page.
func (m *Memory) MapPage(addr uint32, perm Perm) *page {
	pn := pageNumber(addr)
	p, ok := m.pages[pn]
	if !ok {
		p = &page{}
		m.pages[pn] = p
	}
	p.perm = perm
	return p
}

// EnsurePage returns the page containing addr, creating it with the given
// default permissions if it doesn't exist yet (stack growth on store).
func (m *Memory) EnsurePage(addr uint32, defaultPerm Perm) *page {
	pn := pageNumber(addr)
	p, ok := m.pages[pn]
	if !ok {
		p = &page{perm: defaultPerm}
		m.pages[pn] = p
	}
	return p
}

// WriteBytes copies src into memory at vaddr without permission checks;
// used by the loader to install PT_LOAD segment contents. It allocates
// absent pages with the given permissions; pages already mapped keep theirs.
func (m *Memory) WriteBytes(vaddr uint32, src []byte, perm Perm) {
	for i := 0; i < len(src); {
		addr := vaddr + uint32(i)
		p := m.MapPageIfAbsent(addr, perm)
		off := addr & pageMask
		n := copy(p.bytes[off:], src[i:])
		i += n
	}
}

// MapPageIfAbsent is like MapPage but never downgrades an already-mapped
// page's permissions (used when a segment's PT_LOAD range crosses page
// boundaries into a page another segment already claimed).
func (m *Memory) MapPageIfAbsent(addr uint32, perm Perm) *page {
	pn := pageNumber(addr)
	if p, ok := m.pages[pn]; ok {
		return p
	}
	p := &page{perm: perm}
	m.pages[pn] = p
	return p
}

// permAt returns the permissions of the page containing addr, or the zero
// Perm (all false) if the page has never been mapped.
func (m *Memory) permAt(addr uint32) Perm {
	p, ok := m.pages[pageNumber(addr)]
	if !ok {
		return Perm{}
	}
	return p.perm
}

// readRaw reads n bytes starting at addr without permission checks,
// zero-filling unmapped pages. Used internally once the caller has already
// validated permissions.
func (m *Memory) readRaw(addr uint32, n int) []byte {
	out := make([]byte, n)
	for i := 0; i < n; {
		a := addr + uint32(i)
		pn := pageNumber(a)
		off := a & pageMask
		chunk := PageSize - int(off)
		if chunk > n-i {
			chunk = n - i
		}
		if p, ok := m.pages[pn]; ok {
			copy(out[i:i+chunk], p.bytes[off:int(off)+chunk])
		}
		i += chunk
	}
	return out
}

// writeRaw writes data starting at addr without permission checks, mapping
// any absent page R+W. Store only calls it after checkRange has confirmed
// every page is mapped and writable.
func (m *Memory) writeRaw(addr uint32, data []byte) {
	for i := 0; i < len(data); {
		a := addr + uint32(i)
		pn := pageNumber(a)
		off := a & pageMask
		p, ok := m.pages[pn]
		if !ok {
			p = &page{perm: Perm{Read: true, Write: true}}
			m.pages[pn] = p
		}
		n := copy(p.bytes[off:], data[i:])
		i += n
	}
}

// checkAligned validates addr against the given access width; unaligned
// word/halfword access faults per spec §3 (byte access is never unaligned).
func checkAligned(addr uint32, width int) bool {
	switch width {
	case 4:
		return addr&0x3 == 0
	case 2:
		return addr&0x1 == 0
	default:
		return true
	}
}

// checkRange verifies every byte of [addr, addr+n) is on a page granting
// the required permission, detecting address-space wraparound too.
func (m *Memory) checkRange(addr uint32, n int, needWrite, needExec bool) bool {
	if n == 0 {
		return true
	}
	end := addr + uint32(n) - 1
	if end < addr {
		return false // wrapped past 2^32
	}
	for a := pageNumber(addr); ; a++ {
		perm := Perm{}
		if p, ok := m.pages[a]; ok {
			perm = p.perm
		}
		if needExec {
			if !perm.Execute {
				return false
			}
		} else if needWrite {
			if !perm.Write {
				return false
			}
		} else if !perm.Read {
			return false
		}
		if a == pageNumber(end) {
			break
		}
	}
	return true
}

// Load reads n bytes at addr, enforcing alignment and read permission.
func (m *Memory) Load(addr uint32, n int) ([]byte, bool) {
	if !checkAligned(addr, n) {
		return nil, false
	}
	if !m.checkRange(addr, n, false, false) {
		return nil, false
	}
	return m.readRaw(addr, n), true
}

// Store writes data at addr, enforcing alignment and write permission.
func (m *Memory) Store(addr uint32, data []byte) bool {
	n := len(data)
	if !checkAligned(addr, n) {
		return false
	}
	if !m.checkRange(addr, n, true, false) {
		return false
	}
	m.writeRaw(addr, data)
	return true
}

// FetchInstruction reads one 4-byte instruction word at addr, enforcing
// word alignment and executable permission.
func (m *Memory) FetchInstruction(addr uint32) (uint32, bool) {
	if addr&0x3 != 0 {
		return 0, false
	}
	if !m.checkRange(addr, 4, false, true) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(m.readRaw(addr, 4)), true
}

// Load8/16/32 are convenience wrappers mirroring the teacher's
// Read8/Read16/Read32 naming on top of Load.
func (m *Memory) Load8(addr uint32) (uint8, bool) {
	b, ok := m.Load(addr, 1)
	if !ok {
		return 0, false
	}
	return b[0], true
}

func (m *Memory) Load16(addr uint32) (uint16, bool) {
	b, ok := m.Load(addr, 2)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint16(b), true
}

func (m *Memory) Load32(addr uint32) (uint32, bool) {
	b, ok := m.Load(addr, 4)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint32(b), true
}

func (m *Memory) Store8(addr uint32, v uint8) bool {
	return m.Store(addr, []byte{v})
}

func (m *Memory) Store16(addr uint32, v uint16) bool {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	return m.Store(addr, b[:])
}

func (m *Memory) Store32(addr uint32, v uint32) bool {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return m.Store(addr, b[:])
}
