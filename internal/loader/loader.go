// Package loader implements Athena's ELF32 little-endian RISC-V program
// loader (spec §4.1), adapted from the teacher's hand-rolled ELF64/BPF
// section-based loader (pkg/svm/loader/loader.go) to the spec's simpler
// program-header/PT_LOAD model: no relocations, no symbol table, no
// section headers — just "iterate program headers, copy PT_LOAD segments".
package loader

import (
	"encoding/binary"

	"github.com/athenavm/athena/internal/statuscode"
	"github.com/athenavm/athena/internal/vm"
)

// ELF32 structural constants (ELF spec + RISC-V psABI).
const (
	elfMagic0 = 0x7F
	elfMagic1 = 'E'
	elfMagic2 = 'L'
	elfMagic3 = 'F'

	elfClass32  = 1
	elfDataLSB  = 1
	elfVersion1 = 1

	elfMachineRISCV = 0xF3 // EM_RISCV = 243

	elfTypeExec = 2 // ET_EXEC: statically linked, position-dependent (spec §4.1)

	ptLoad = 1 // PT_LOAD program header type

	pfExecute = 0x1
	pfWrite   = 0x2
	pfRead    = 0x4

	ehdrSize = 52 // sizeof(Elf32_Ehdr)
	phdrSize = 32 // sizeof(Elf32_Phdr)
)

// Size guards mirroring the teacher's Max* constants (loader.go), scaled
// down since Athena has no section/symbol/relocation tables to bound.
const (
	MaxELFSize        = 10 << 20 // 10 MiB
	MaxProgramHeaders = 256
)

// flatTextMagic is the "\x7fATH" fast-path prefix (spec §6): a raw .text
// payload with no ELF framing at all, loaded at a canonical address with an
// implicit entry at its start.
var flatTextMagic = [4]byte{0x7F, 'A', 'T', 'H'}

// FlatTextBase is the canonical load address used by the flat-text fast
// path loader.
const FlatTextBase uint32 = 0x0001_0000

// Executable is the loader's result: a populated memory image plus the
// entry point, ready for vm.NewFrame.
type Executable struct {
	Memory *vm.Memory
	Entry  uint32
}

// segment is one validated PT_LOAD range, used to detect overlaps before
// committing anything to memory.
type segment struct {
	vaddr, memsz uint32
}

// Load parses data as an ELF32 LE RISC-V image, or as a flat-text image if
// it starts with the "\x7fATH" magic, and returns a ready-to-run
// Executable. Any structural problem yields REJECTED per spec §4.1 and
// §8 scenario 8 ("the engine MUST NOT crash").
func Load(data []byte) (*Executable, error) {
	if len(data) >= 4 && data[0] == flatTextMagic[0] && data[1] == flatTextMagic[1] &&
		data[2] == flatTextMagic[2] && data[3] == flatTextMagic[3] {
		return loadFlatText(data[4:])
	}
	return loadELF(data)
}

func loadFlatText(text []byte) (*Executable, error) {
	mem := vm.NewMemory()
	mem.WriteBytes(FlatTextBase, text, vm.Perm{Read: true, Execute: true})
	return &Executable{Memory: mem, Entry: FlatTextBase}, nil
}

func loadELF(data []byte) (*Executable, error) {
	if len(data) > MaxELFSize {
		return nil, statuscode.New(statuscode.Rejected)
	}
	if len(data) < ehdrSize {
		return nil, statuscode.New(statuscode.Rejected)
	}
	if data[0] != elfMagic0 || data[1] != elfMagic1 || data[2] != elfMagic2 || data[3] != elfMagic3 {
		return nil, statuscode.New(statuscode.Rejected)
	}
	if data[4] != elfClass32 {
		return nil, statuscode.New(statuscode.Rejected)
	}
	if data[5] != elfDataLSB {
		return nil, statuscode.New(statuscode.Rejected)
	}

	etype := binary.LittleEndian.Uint16(data[16:18])
	emachine := binary.LittleEndian.Uint16(data[18:20])
	if emachine != elfMachineRISCV {
		return nil, statuscode.New(statuscode.Rejected)
	}
	if etype != elfTypeExec {
		return nil, statuscode.New(statuscode.Rejected)
	}

	entry := binary.LittleEndian.Uint32(data[24:28])
	phoff := binary.LittleEndian.Uint32(data[28:32])
	phentsize := binary.LittleEndian.Uint16(data[42:44])
	phnum := binary.LittleEndian.Uint16(data[44:46])

	if phnum > MaxProgramHeaders {
		return nil, statuscode.New(statuscode.Rejected)
	}
	if phentsize != phdrSize && phnum != 0 {
		return nil, statuscode.New(statuscode.Rejected)
	}

	mem := vm.NewMemory()
	var segs []segment

	for i := uint16(0); i < phnum; i++ {
		off := uint64(phoff) + uint64(i)*uint64(phentsize)
		if off+phdrSize > uint64(len(data)) {
			return nil, statuscode.New(statuscode.Rejected)
		}
		ph := data[off : off+phdrSize]
		ptype := binary.LittleEndian.Uint32(ph[0:4])
		if ptype != ptLoad {
			continue
		}
		poffset := binary.LittleEndian.Uint32(ph[4:8])
		pvaddr := binary.LittleEndian.Uint32(ph[8:12])
		pfilesz := binary.LittleEndian.Uint32(ph[16:20])
		pmemsz := binary.LittleEndian.Uint32(ph[20:24])
		pflags := binary.LittleEndian.Uint32(ph[24:28])

		if pmemsz < pfilesz {
			return nil, statuscode.New(statuscode.Rejected)
		}
		end := pvaddr + pmemsz
		if pmemsz != 0 && end < pvaddr {
			return nil, statuscode.New(statuscode.Rejected) // wraps
		}
		if uint64(poffset)+uint64(pfilesz) > uint64(len(data)) {
			return nil, statuscode.New(statuscode.Rejected)
		}

		for _, other := range segs {
			if rangesOverlap(pvaddr, pmemsz, other.vaddr, other.memsz) {
				return nil, statuscode.New(statuscode.Rejected)
			}
		}
		segs = append(segs, segment{vaddr: pvaddr, memsz: pmemsz})

		perm := vm.Perm{
			Read:    pflags&pfRead != 0,
			Write:   pflags&pfWrite != 0,
			Execute: pflags&pfExecute != 0,
		}

		fileBytes := data[poffset : poffset+pfilesz]
		mem.WriteBytes(pvaddr, fileBytes, perm)
		if pmemsz > pfilesz {
			// BSS tail: zero-filled, same permissions (spec §3 "BSS/heap").
			zeros := make([]byte, pmemsz-pfilesz)
			mem.WriteBytes(pvaddr+pfilesz, zeros, perm)
		}
	}

	return &Executable{Memory: mem, Entry: entry}, nil
}

func rangesOverlap(a0 uint32, alen uint32, b0 uint32, blen uint32) bool {
	if alen == 0 || blen == 0 {
		return false
	}
	a1 := a0 + alen - 1
	b1 := b0 + blen - 1
	return a0 <= b1 && b0 <= a1
}
