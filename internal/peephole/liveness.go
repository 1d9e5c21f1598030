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
package peephole

import "strings"

// flowAltering mnemonics end a liveness walk: what happens after them
// depends on control flow this pass does not trace.
var flowAltering = map[string]bool{
	"RET": true, "RETF": true, "JP": true, "JPF": true,
	"JRA": true, "JRT": true, "JRF": true,
}

// preservedAcrossCall names helper routines documented as leaving
// A/X/Y untouched, letting Pass 3 reuse a register's contents across
// the CALL instead of reloading it.
var preservedAcrossCall = map[string]bool{
	"__LIB_STR_RLS": true,
}

// registerWritten reports the register(s) op writes, so a liveness
// walk can tell whether a prior store was ever read before being
// overwritten.
func registerWritten(o Op) (regs []string) {
	switch o.Mnemonic {
	case "LD", "CLR", "INC", "DEC", "POP", "NEG", "CPL", "SLL", "SRL", "SRA", "RLC", "RRC":
		if len(o.Operands) > 0 && isBareRegister(o.Operands[0]) {
			regs = append(regs, o.Operands[0])
		}
	case "LDW", "CLRW", "INCW", "DECW", "POPW":
		if len(o.Operands) > 0 && isBareRegister(o.Operands[0]) {
			regs = append(regs, o.Operands[0])
		}
	}
	return regs
}

func isBareRegister(s string) bool {
	switch s {
	case "A", "X", "Y", "XL", "XH", "YL", "YH":
		return true
	default:
		return false
	}
}

// registerRead reports every register operand op reads (its sources,
// plus any destination operand that is read-modify-write).
func registerRead(o Op) (regs []string) {
	for i, opnd := range o.Operands {
		if !isBareRegister(opnd) {
			continue
		}
		if i == 0 {
			switch o.Mnemonic {
			case "LD", "LDW":
				continue // pure write, not a read of the destination
			}
		}
		regs = append(regs, opnd)
	}
	return regs
}

// deadRegisterStores walks ops and returns the indices of register
// stores whose value is overwritten before ever being read — Pass 3's
// "remove a store whose result is never read" rule. The walk stops at
// a label, a flow-altering op, or end of stream; a store not yet
// overwritten by then is kept.
func deadRegisterStores(ops []Op) []int {
	var dead []int
	for i, o := range ops {
		if o.Volatile || !o.IsInstruction() {
			continue
		}
		written := registerWritten(o)
		if len(written) == 0 {
			continue
		}
		reg := written[0]
		read := false
		overwritten := false
	scan:
		for j := i + 1; j < len(ops); j++ {
			next := ops[j]
			if next.IsLabel() {
				break scan
			}
			for _, r := range registerRead(next) {
				if r == reg {
					read = true
					break scan
				}
			}
			for _, w := range registerWritten(next) {
				if w == reg {
					overwritten = true
					break scan // overwritten first: original store was dead
				}
			}
			if flowAltering[next.Mnemonic] {
				break scan
			}
		}
		if !read && overwritten {
			dead = append(dead, i)
		}
	}
	return dead
}

// callPreservedReuse finds "LD r,v; CALL known-preserving; LD r,v"
// triples and marks the second load redundant, reusing the register
// contents already established before the call.
func callPreservedReuse(ops []Op) map[int]bool {
	redundant := make(map[int]bool)
	for i := 0; i+2 < len(ops); i++ {
		first, call, second := ops[i], ops[i+1], ops[i+2]
		if !first.IsInstruction() || !second.IsInstruction() {
			continue
		}
		if first.Mnemonic != second.Mnemonic || !strings.HasPrefix(first.Mnemonic, "LD") {
			continue
		}
		if call.Mnemonic != "CALL" || len(call.Operands) != 1 || !preservedAcrossCall[call.Operands[0]] {
			continue
		}
		if len(first.Operands) != 2 || len(second.Operands) != 2 {
			continue
		}
		if first.Operands[0] != second.Operands[0] || first.Operands[1] != second.Operands[1] {
			continue
		}
		redundant[i+2] = true
	}
	return redundant
}
