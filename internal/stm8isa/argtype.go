// Copyright 2022 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package stm8isa is the STM8 instruction table: the mnemonic+operand
// signature lookup, (speed,size)-ascending candidate ordering, operand
// range validation, and byte-level encoding described in spec §4.7.
package stm8isa

import "fmt"

// ArgType names the evaluated-operand slot a V placeholder in a
// signature resolves to: its byte width, its position relative to the
// opcode, and (for the bit-instruction family) its bit-field packing.
type ArgType int

const (
	// ArgNone marks a template with no evaluated operand.
	ArgNone ArgType = iota
	ArgImm8
	ArgImm16
	ArgShortMem // 8-bit zero-page-style direct address
	ArgLongMem  // 16-bit direct address
	ArgShortOff // 8-bit indexed/SP-relative offset
	ArgRel8     // PC-relative branch displacement, signed byte
	ArgBitIndex // 3-bit field packed into the opcode nibble

	// ArgRel8CALLR is CALLR's displacement slot. It should range
	// -128..127 like any other rel8, but the reference assembler has
	// always accepted -129 too (a stray off-by-one in its bounds
	// check). Kept as-is: correcting it would silently re-reject
	// object code that has relied on the wider bound for years.
	ArgRel8CALLR
)

// Range reports the inclusive bounds a value of this ArgType must fit
// within to be encodable.
func (t ArgType) Range() (lo, hi int64) {
	switch t {
	case ArgImm8, ArgShortMem, ArgShortOff:
		return 0, 0xFF
	case ArgImm16, ArgLongMem:
		return 0, 0xFFFF
	case ArgRel8:
		return -128, 127
	case ArgRel8CALLR:
		return -129, 127
	case ArgBitIndex:
		return 0, 7
	default:
		return 0, 0
	}
}

// Fits reports whether v can be encoded as an operand of this ArgType.
func (t ArgType) Fits(v int64) bool {
	if t == ArgNone {
		return true
	}
	lo, hi := t.Range()
	return v >= lo && v <= hi
}

// Width is the number of encoded bytes this ArgType contributes,
// excluding bit-packed slots (which occupy no extra bytes).
func (t ArgType) Width() int {
	switch t {
	case ArgImm16, ArgLongMem:
		return 2
	case ArgImm8, ArgShortMem, ArgShortOff, ArgRel8, ArgRel8CALLR:
		return 1
	default:
		return 0
	}
}

func (t ArgType) String() string {
	switch t {
	case ArgImm8:
		return "imm8"
	case ArgImm16:
		return "imm16"
	case ArgShortMem:
		return "shortmem"
	case ArgLongMem:
		return "longmem"
	case ArgShortOff:
		return "shortoff"
	case ArgRel8:
		return "rel8"
	case ArgRel8CALLR:
		return "rel8(callr)"
	case ArgBitIndex:
		return "bitidx"
	default:
		return "none"
	}
}

// RangeError reports an evaluated operand that does not fit the slot
// its candidate Inst declared.
type RangeError struct {
	Signature string
	Type      ArgType
	Value     int64
}

func (e *RangeError) Error() string {
	lo, hi := e.Type.Range()
	return fmt.Sprintf("%s: value %d out of range [%d,%d] for %s operand", e.Signature, e.Value, lo, hi, e.Type)
}
