// Package debugstub implements Athena's optional debug capability (spec
// §4.6): single-stepping, software breakpoints, and register/memory
// inspection over a byte stream. The GDB remote-serial-protocol wire
// framing itself is explicitly out of scope (spec §1 lists "GDB
// remote-debug glue" among external collaborators) — this package
// implements the in-process session the glue would drive. Serve speaks a
// line-delimited text protocol over a net.Conn (read registers, read
// memory, step, continue, breakpoint set/clear, detach), not the RSP
// packet format; register and memory writes are available only through
// Session's methods.
//
// Grounded directly on spec §4.6's required feature list; no teacher or
// pack repo ships a GDB stub, so the wire loop follows the teacher's own
// plain stdlib `net`/`bufio` style for byte-stream servers rather than
// reaching for a third-party RSP implementation (none exists in the
// corpus or is a natural ecosystem fit for a 24-byte-address, 32-bit
// target GDB was never designed around).
package debugstub

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/athenavm/athena/internal/vm"
)

// Session controls one attached frame: breakpoints, step/continue state,
// and register/memory access, all serialized through a single mutex since
// the interpreter itself is single-threaded and cooperative (spec §5).
type Session struct {
	mu sync.Mutex

	frame *vm.Frame
	mem   *vm.Memory

	// breakpoints maps a breakpoint address to the instruction word it
	// replaced, so Detach/ClearBreakpoint can restore original code (spec
	// §4.6: "software breakpoint by instruction replacement with EBREAK").
	breakpoints map[uint32]uint32

	// stepBudget, when > 0, lets exactly that many instructions execute
	// before the next StepFunc call pauses Run. -1 means "run freely until
	// a breakpoint or termination" (continue mode).
	stepBudget int64

	detached bool
}

const ebreakWord uint32 = 0x00100073 // RISC-V EBREAK encoding

// NewSession wraps a freshly constructed frame; call Hook to get the
// (EbreakFunc, StepFunc) pair to pass as an engine.DebugHook.OnStart
// result.
func NewSession(frame *vm.Frame, mem *vm.Memory) *Session {
	return &Session{
		frame:       frame,
		mem:         mem,
		breakpoints: make(map[uint32]uint32),
		stepBudget:  0, // paused until the first Continue/Step command
	}
}

// Hook returns the EbreakFunc/StepFunc pair the interpreter consults.
func (s *Session) Hook() (vm.EbreakFunc, vm.StepFunc) {
	return s.onEbreak, s.onStep
}

func (s *Session) onEbreak(f *vm.Frame) error {
	// A software breakpoint trips here; the Run loop calls onStep next
	// iteration with the frame paused at the post-EBREAK PC already
	// advanced by the caller (spec §4.3's normal EBREAK handling), so we
	// simply resume pausing — the session's command loop decides what
	// happens next via SetStepBudget/Continue.
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stepBudget = 0
	return nil
}

func (s *Session) onStep(f *vm.Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stepBudget == 0 {
		return false
	}
	if s.stepBudget > 0 {
		s.stepBudget--
	}
	return true
}

// Step lets exactly n instructions run, then pauses again.
func (s *Session) Step(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stepBudget = n
}

// Continue runs freely until a breakpoint, fault, or termination.
func (s *Session) Continue() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stepBudget = -1
}

// ReadRegisters returns a snapshot of the general-purpose register file.
func (s *Session) ReadRegisters() [vm.NumRegisters]uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame.Regs.All()
}

// WriteRegister sets a single register (x0 writes are silently discarded
// by Registers.Write).
func (s *Session) WriteRegister(reg uint32, value uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frame.Regs.Write(reg, value)
}

// ReadMemory reads n bytes at addr, respecting page permissions (spec
// §4.6: "read/write memory (respecting permissions)").
func (s *Session) ReadMemory(addr uint32, n int) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mem.Load(addr, n)
}

// WriteMemory writes data at addr, respecting page permissions.
func (s *Session) WriteMemory(addr uint32, data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mem.Store(addr, data)
}

// PC returns the frame's current program counter.
func (s *Session) PC() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame.PC
}

// SetBreakpoint replaces the instruction word at addr with EBREAK,
// remembering the original so ClearBreakpoint can restore it.
func (s *Session) SetBreakpoint(addr uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, already := s.breakpoints[addr]; already {
		return true
	}
	orig, ok := s.mem.Load32(addr)
	if !ok {
		return false
	}
	var buf [4]byte
	w := ebreakWord
	buf[0] = byte(w)
	buf[1] = byte(w >> 8)
	buf[2] = byte(w >> 16)
	buf[3] = byte(w >> 24)
	// WriteBytes keeps the page's existing permissions and skips the write
	// check, so read+execute program text can be patched.
	s.mem.WriteBytes(addr, buf[:], vm.Perm{})
	s.breakpoints[addr] = orig
	return true
}

// ClearBreakpoint restores the original instruction word at addr.
func (s *Session) ClearBreakpoint(addr uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	orig, ok := s.breakpoints[addr]
	if !ok {
		return true
	}
	var buf [4]byte
	buf[0] = byte(orig)
	buf[1] = byte(orig >> 8)
	buf[2] = byte(orig >> 16)
	buf[3] = byte(orig >> 24)
	s.mem.WriteBytes(addr, buf[:], vm.Perm{})
	delete(s.breakpoints, addr)
	return true
}

// Detach restores every breakpoint and releases the frame to run to
// completion unobserved.
func (s *Session) Detach() {
	s.mu.Lock()
	addrs := make([]uint32, 0, len(s.breakpoints))
	for addr := range s.breakpoints {
		addrs = append(addrs, addr)
	}
	s.detached = true
	s.mu.Unlock()

	for _, addr := range addrs {
		s.ClearBreakpoint(addr)
	}
	s.Continue()
}

// Serve runs a minimal command loop over conn: one line-delimited command
// per round trip ("reg", "mem <addr> <n>", "step [n]", "continue",
// "break <addr>", "clear <addr>", "detach"), each answered with a single
// line reply. This is the session's byte-stream surface that real GDB
// remote-serial-protocol glue (out of scope here) would sit in front of,
// translating RSP packets to these same session calls.
func Serve(conn net.Conn, s *Session) error {
	defer conn.Close()
	r := bufio.NewScanner(conn)
	w := bufio.NewWriter(conn)

	reply := func(format string, args ...interface{}) error {
		fmt.Fprintf(w, format+"\n", args...)
		return w.Flush()
	}

	for r.Scan() {
		line := strings.TrimSpace(r.Text())
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "reg":
			regs := s.ReadRegisters()
			parts := make([]string, len(regs))
			for i, v := range regs {
				parts[i] = fmt.Sprintf("x%d=%08x", i, v)
			}
			if err := reply("OK %s pc=%08x", strings.Join(parts, " "), s.PC()); err != nil {
				return err
			}
		case "mem":
			if len(fields) != 3 {
				if err := reply("ERR usage: mem <addr> <n>"); err != nil {
					return err
				}
				continue
			}
			addr, n, perr := parseAddrLen(fields[1], fields[2])
			if perr != nil {
				if err := reply("ERR %v", perr); err != nil {
					return err
				}
				continue
			}
			data, ok := s.ReadMemory(addr, n)
			if !ok {
				if err := reply("ERR invalid memory access"); err != nil {
					return err
				}
				continue
			}
			if err := reply("OK %x", data); err != nil {
				return err
			}
		case "step":
			n := int64(1)
			if len(fields) == 2 {
				if v, err := strconv.ParseInt(fields[1], 10, 64); err == nil {
					n = v
				}
			}
			s.Step(n)
			if err := reply("OK"); err != nil {
				return err
			}
		case "continue":
			s.Continue()
			if err := reply("OK"); err != nil {
				return err
			}
		case "break":
			if len(fields) != 2 {
				if err := reply("ERR usage: break <addr>"); err != nil {
					return err
				}
				continue
			}
			addr, perr := parseAddr(fields[1])
			if perr != nil {
				if err := reply("ERR %v", perr); err != nil {
					return err
				}
				continue
			}
			if !s.SetBreakpoint(addr) {
				if err := reply("ERR invalid address"); err != nil {
					return err
				}
				continue
			}
			if err := reply("OK"); err != nil {
				return err
			}
		case "clear":
			if len(fields) != 2 {
				if err := reply("ERR usage: clear <addr>"); err != nil {
					return err
				}
				continue
			}
			addr, perr := parseAddr(fields[1])
			if perr != nil {
				if err := reply("ERR %v", perr); err != nil {
					return err
				}
				continue
			}
			s.ClearBreakpoint(addr)
			if err := reply("OK"); err != nil {
				return err
			}
		case "detach":
			s.Detach()
			return reply("OK")
		default:
			if err := reply("ERR unknown command"); err != nil {
				return err
			}
		}
	}
	return r.Err()
}

func parseAddr(s string) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

func parseAddrLen(addrStr, lenStr string) (uint32, int, error) {
	addr, err := parseAddr(addrStr)
	if err != nil {
		return 0, 0, err
	}
	n, err := strconv.Atoi(lenStr)
	if err != nil {
		return 0, 0, err
	}
	return addr, n, nil
}
