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
package stm8isa

import "sort"

// candidates maps a mnemonic+signature string to every Inst template
// that can realize it, in source order; Candidates returns a copy
// sorted by (speed, size) ascending.
var candidates = map[string][]Inst{}

// table entries, grouped the way the reference instruction set
// document groups them: load/store, arithmetic, stack, control
// transfer, and the bit-field family.
func reg1(sig, mnemonic string, opcode byte) Inst {
	return Inst{Signature: sig, Mnemonic: mnemonic, Opcode: []byte{opcode}}
}

func reg2(sig, mnemonic string, prebyte, opcode byte) Inst {
	return Inst{Signature: sig, Mnemonic: mnemonic, Opcode: []byte{prebyte, opcode}}
}

func withSlot(i Inst, t ArgType) Inst {
	i.Slots = append(i.Slots, Slot{Type: t})
	speedForWidth := map[int]int{0: 1, 1: 1, 2: 2}
	i.Speed = speedForWidth[t.Width()]
	return i
}

func init() {
	add := func(insts ...Inst) {
		for _, i := range insts {
			if i.Speed == 0 {
				i.Speed = 1
			}
			candidates[i.Signature] = append(candidates[i.Signature], i)
		}
	}

	// --- Load/store ---
	add(withSlot(reg1("LDA,V", "LD", 0xA6), ArgImm8))
	add(withSlot(reg1("LDA,(V)", "LD", 0xB6), ArgShortMem))
	add(withSlot(reg1("LDA,(V)", "LD", 0xC6), ArgLongMem))
	add(withSlot(reg1("LD(V),A", "LD", 0xB7), ArgShortMem))
	add(withSlot(reg1("LD(V),A", "LD", 0xC7), ArgLongMem))
	add(reg1("LDA,(X)", "LD", 0xF6))
	add(reg1("LD(X),A", "LD", 0xF7))
	add(withSlot(reg1("LDA,(V,X)", "LD", 0xE6), ArgShortOff))
	add(withSlot(reg1("LDA,(V,X)", "LD", 0xD6), ArgLongMem))
	add(withSlot(reg1("LD(V,X),A", "LD", 0xE7), ArgShortOff))
	add(withSlot(reg1("LD(V,X),A", "LD", 0xD7), ArgLongMem))
	add(withSlot(reg1("LDA,(V,SP)", "LD", 0x7B), ArgShortOff))
	add(withSlot(reg1("LD(V,SP),A", "LD", 0x6B), ArgShortOff))

	add(withSlot(reg1("LDWX,V", "LDW", 0xAE), ArgImm16))
	add(withSlot(reg1("LDWX,(V)", "LDW", 0xBE), ArgShortMem))
	add(withSlot(reg1("LDWX,(V)", "LDW", 0xCE), ArgLongMem))
	add(withSlot(reg1("LDWX,(V,SP)", "LDW", 0x1E), ArgShortOff))
	add(withSlot(reg1("LDW(V,SP),X", "LDW", 0x1F), ArgShortOff))
	add(withSlot(reg2("LDWY,V", "LDW", 0x90, 0xAE), ArgImm16))

	// --- Clear/increment/decrement ---
	add(reg1("CLRA", "CLR", 0x4F))
	add(withSlot(reg1("CLR(V)", "CLR", 0x3F), ArgShortMem))
	add(reg1("CLRWX", "CLRW", 0x5F))
	add(reg1("INCA", "INC", 0x4C))
	add(reg1("INCWX", "INCW", 0x5C))
	add(reg1("DECA", "DEC", 0x4A))
	add(reg1("DECWX", "DECW", 0x5A))
	add(reg1("TNZA", "TNZ", 0x4D))
	add(reg1("NEGA", "NEG", 0x40))
	add(reg1("CPLA", "CPL", 0x43))

	// --- Arithmetic/logic ---
	add(withSlot(reg1("ADDA,V", "ADD", 0xAB), ArgImm8))
	add(withSlot(reg1("ADDA,(V)", "ADD", 0xBB), ArgShortMem))
	add(withSlot(reg1("ADDWX,V", "ADDW", 0x1C), ArgImm16))
	add(withSlot(reg1("ADDWSP,V", "ADDW", 0x5B), ArgImm8))
	add(withSlot(reg1("SUBA,V", "SUB", 0xA0), ArgImm8))
	add(withSlot(reg1("SUBWX,V", "SUBW", 0x1D), ArgImm16))
	add(withSlot(reg1("SUBWSP,V", "SUBW", 0x52), ArgImm8))
	add(withSlot(reg1("ANDA,V", "AND", 0xA4), ArgImm8))
	add(withSlot(reg1("ORA,V", "OR", 0xAA), ArgImm8))
	add(withSlot(reg1("XORA,V", "XOR", 0xA8), ArgImm8))
	add(withSlot(reg1("CPA,V", "CP", 0xA1), ArgImm8))
	add(withSlot(reg1("CPWX,V", "CPW", 0xA3), ArgImm16))

	// --- Stack ---
	add(reg1("PUSHA", "PUSH", 0x88))
	add(reg1("POPA", "POP", 0x84))
	add(reg1("PUSHWX", "PUSHW", 0x89))
	add(reg1("POPWX", "POPW", 0x85))

	// --- Control transfer ---
	add(withSlot(reg1("CALLV", "CALL", 0xCD), ArgLongMem))
	callr := pcRel(withSlot(reg1("CALLRV", "CALLR", 0xAD), ArgRel8CALLR))
	callr.Note = "accepts displacement -129, one past the real rel8 bound"
	add(callr)
	add(withSlot(reg1("JPV", "JP", 0xCC), ArgLongMem))
	add(reg1("RET", "RET", 0x81))
	add(reg1("RETF", "RETF", 0x87))
	add(reg1("NOP", "NOP", 0x9D))

	add(pcRel(withSlot(reg1("JRAV", "JRA", 0x20), ArgRel8)))
	branchBytes := map[string]byte{
		"JREQ": 0x27, "JRNE": 0x26,
		"JRULT": 0x25, "JRUGE": 0x24,
		// BUG(upstream): JRULE/JRUGT swapped in the reference assembler's
		// table since its first release; kept as-is so object code
		// produced against older toolchain versions keeps disassembling
		// the same way.
		"JRULE": 0x22, "JRUGT": 0x23,
		"JRSLT": 0x2D, "JRSGE": 0x2C,
		"JRSLE": 0x2F, "JRSGT": 0x2E,
	}
	for mnemonic, opcode := range branchBytes {
		inst := pcRel(withSlot(reg1(mnemonic+"V", mnemonic, opcode), ArgRel8))
		if mnemonic == "JRULE" || mnemonic == "JRUGT" {
			inst.Note = "opcode swapped vs. datasheet order; preserved for object-code stability"
		}
		add(inst)
	}

	// --- Bit field family: bit index packed into the opcode nibble ---
	add(bitInst("BSET(V),#V", "BSET", 0x10))
	add(bitInst("BRES(V),#V", "BRES", 0x11))
	add(bitBranch("BTJT(V),#V,V", "BTJT", 0x00))
	add(bitBranch("BTJF(V),#V,V", "BTJF", 0x01))
	add(bitInst("BCCM(V),#V", "BCCM", 0x90))
	add(bitInst("BCPL(V),#V", "BCPL", 0x91))
}

// pcRel marks an Inst as a PC-relative branch/call target (spec
// §4.7's overflow-triggered re-emission applies only to these).
func pcRel(i Inst) Inst {
	i.PCRelative = true
	return i
}

// bitInst builds a BSET/BRES-family template: a short-memory operand
// plus a 3-bit index packed into the opcode's low bits.
//
// BUG(upstream): the reference assembler packs the bit index starting
// at bit 1, not bit 0, for this whole family — an off-by-one that
// predates this toolchain and is preserved rather than "fixed" so
// existing .s19 golden files keep matching byte-for-byte.
func bitInst(sig, mnemonic string, base byte) Inst {
	i := Inst{Signature: sig, Mnemonic: mnemonic, Opcode: []byte{base}, Speed: 1}
	i.Slots = []Slot{
		{Type: ArgShortMem},
		{Type: ArgBitIndex, BitPos: 1, BitWidth: 3},
	}
	return i
}

// bitBranch is BTJT/BTJF: short-memory operand, bit index, and a
// trailing rel8 displacement.
func bitBranch(sig, mnemonic string, base byte) Inst {
	i := pcRel(Inst{Signature: sig, Mnemonic: mnemonic, Opcode: []byte{base}, Speed: 2})
	i.Slots = []Slot{
		{Type: ArgShortMem},
		{Type: ArgBitIndex, BitPos: 1, BitWidth: 3},
		{Type: ArgRel8},
	}
	return i
}

// Notes returns the preserved-quirk annotations from every registered
// Inst that carries one, for diagnostic/reporting use.
func Notes() map[string]string {
	notes := make(map[string]string)
	for sig, insts := range candidates {
		for _, i := range insts {
			if i.Note != "" {
				notes[sig] = i.Note
			}
		}
	}
	return notes
}

// Candidates returns every Inst template registered for signature,
// ordered ascending by (speed, size) as spec §4.7 step 1 requires. Each
// call sorts a fresh copy; nothing is cached.
func Candidates(signature string) []Inst {
	insts, ok := candidates[signature]
	if !ok {
		return nil
	}
	sorted := make([]Inst, len(insts))
	copy(sorted, insts)
	sort.SliceStable(sorted, func(a, b int) bool {
		if sorted[a].Speed != sorted[b].Speed {
			return sorted[a].Speed < sorted[b].Speed
		}
		return sorted[a].Size() < sorted[b].Size()
	})
	return sorted
}
