// Package calldata builds and parses Athena calldata payloads: an optional
// 4-byte method selector followed by SCALE/ABI-agnostic argument bytes
// (SPEC_FULL.md Supplemented Features, grounded on
// original_source/interface/src/lib.rs's MethodSelector and
// interface/src/payload.rs's ExecutionPayload).
package calldata

import (
	"github.com/athenavm/athena/internal/vm/crypto"
)

// SelectorLen is the method selector width (original_source's
// METHOD_SELECTOR_LENGTH).
const SelectorLen = 4

// Selector is a 4-byte method identifier, the first four bytes of
// blake3(name) — the same truncation original_source's
// MethodSelector::from(&str) performs.
type Selector [SelectorLen]byte

// SelectorFromName derives a Selector from a method name the way the
// teacher's sol_blake3 syscall derives any other blake3 digest, truncated
// to 4 bytes.
func SelectorFromName(name string) Selector {
	digest := crypto.Blake3("", []byte(name))
	var s Selector
	copy(s[:], digest[:SelectorLen])
	return s
}

// Payload is a method selector plus its argument bytes, laid out as
// selector || args in the WRITE/READ calldata channel (spec §4.4's fd=0).
type Payload struct {
	Method Selector
	HasMethod bool
	Args   []byte
}

// Encode serializes the payload to its wire form.
func (p Payload) Encode() []byte {
	if !p.HasMethod {
		return p.Args
	}
	buf := make([]byte, SelectorLen+len(p.Args))
	copy(buf, p.Method[:])
	copy(buf[SelectorLen:], p.Args)
	return buf
}

// NewPayload builds a Payload for a named method call.
func NewPayload(method string, args []byte) Payload {
	return Payload{Method: SelectorFromName(method), HasMethod: true, Args: args}
}

// Decode splits raw calldata into its selector and argument bytes. ok is
// false if data is shorter than a selector (the caller is expected to
// treat that as "no method, raw args").
func Decode(data []byte) (sel Selector, args []byte, ok bool) {
	if len(data) < SelectorLen {
		return Selector{}, data, false
	}
	copy(sel[:], data[:SelectorLen])
	return sel, data[SelectorLen:], true
}
