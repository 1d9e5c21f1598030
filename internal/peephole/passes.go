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

import (
	"fmt"
	"strconv"
	"strings"
)

// rule matches a fixed-size window starting at some position and, on
// success, returns its replacement (possibly empty, eliding the
// window entirely) and the RuleID to credit in the ledger.
type rule struct {
	id   RuleID
	size int
	try  func(w []Op) ([]Op, bool)
}

// canonRules is Pass 1 (spec §4.4): local algebraic simplification,
// independent of stack or liveness state.
var canonRules = []rule{
	{RuleLDWZero, 1, tryLDWZero},
	{RuleAddZero, 1, tryAddZero},
	{RuleAddOneToInc, 1, tryAddOneToInc},
	{RulePushPopElim, 2, tryPushPopElim},
	{RuleRedundantTNZ, 2, tryRedundantTNZ},
	{RuleBitMaskToBSET, 3, tryBitMaskToBSET},
	{RuleBitMaskToBRES, 3, tryBitMaskToBRES},
}

// stackRules is Pass 2: adjustments to SP deltas and the stack frame
// shape.
var stackRules = []rule{
	{RuleFuseSPAdjust, 2, tryFuseSPAdjust},
	{RuleSubPushFusion, 2, trySubPushFusion},
	{RuleSaveMutateRestore, 3, trySaveMutateRestore},
}

func immValue(operand string) (int, bool) {
	s := strings.TrimPrefix(strings.TrimSpace(operand), "#")
	n, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return 0, false
	}
	return int(n), true
}

func isSingleBit(n int) (bit int, ok bool) {
	if n <= 0 || n&(n-1) != 0 {
		return 0, false
	}
	for b := 0; b < 8; b++ {
		if n == 1<<uint(b) {
			return b, true
		}
	}
	return 0, false
}

// isInvertedSingleBit reports whether n is an 8-bit mask with exactly
// one bit clear (the AND-to-BRES shape).
func isInvertedSingleBit(n int) (bit int, ok bool) {
	return isSingleBit((^n) & 0xFF)
}

func tryLDWZero(w []Op) ([]Op, bool) {
	o := w[0]
	if o.Mnemonic != "LDW" || len(o.Operands) != 2 {
		return nil, false
	}
	if n, ok := immValue(o.Operands[1]); !ok || n != 0 {
		return nil, false
	}
	return []Op{{Mnemonic: "CLRW", Operands: []string{o.Operands[0]}}}, true
}

func tryAddZero(w []Op) ([]Op, bool) {
	o := w[0]
	if (o.Mnemonic != "ADD" && o.Mnemonic != "ADDW") || len(o.Operands) != 2 {
		return nil, false
	}
	if n, ok := immValue(o.Operands[1]); !ok || n != 0 {
		return nil, false
	}
	return []Op{}, true
}

func tryAddOneToInc(w []Op) ([]Op, bool) {
	o := w[0]
	if (o.Mnemonic != "ADD" && o.Mnemonic != "ADDW") || len(o.Operands) != 2 {
		return nil, false
	}
	if n, ok := immValue(o.Operands[1]); !ok || n != 1 {
		return nil, false
	}
	mnemonic := "INC"
	if o.Mnemonic == "ADDW" {
		mnemonic = "INCW"
	}
	return []Op{{Mnemonic: mnemonic, Operands: []string{o.Operands[0]}}}, true
}

func tryPushPopElim(w []Op) ([]Op, bool) {
	a, b := w[0], w[1]
	pushPop := map[string]string{"PUSH": "POP", "PUSHW": "POPW"}
	want, ok := pushPop[a.Mnemonic]
	if !ok || b.Mnemonic != want {
		return nil, false
	}
	if len(a.Operands) != 1 || len(b.Operands) != 1 || a.Operands[0] != b.Operands[0] {
		return nil, false
	}
	return []Op{}, true
}

func tryRedundantTNZ(w []Op) ([]Op, bool) {
	a, b := w[0], w[1]
	if (a.Mnemonic != "LD" && a.Mnemonic != "LDW") || b.Mnemonic != "TNZ" {
		return nil, false
	}
	if len(a.Operands) != 2 || len(b.Operands) != 1 || a.Operands[0] != b.Operands[0] {
		return nil, false
	}
	return []Op{a}, true
}

// tryBitMaskToBSET matches "LD A,(m); OR A,#n; LD (m),A" with n a
// single bit and rewrites to "BSET (m),#bit".
func tryBitMaskToBSET(w []Op) ([]Op, bool) {
	l1, op, l2 := w[0], w[1], w[2]
	if l1.Mnemonic != "LD" || op.Mnemonic != "OR" || l2.Mnemonic != "LD" {
		return nil, false
	}
	if len(l1.Operands) != 2 || l1.Operands[0] != "A" {
		return nil, false
	}
	mem := l1.Operands[1]
	if len(op.Operands) != 2 || op.Operands[0] != "A" {
		return nil, false
	}
	n, ok := immValue(op.Operands[1])
	if !ok {
		return nil, false
	}
	bit, ok := isSingleBit(n)
	if !ok {
		return nil, false
	}
	if len(l2.Operands) != 2 || l2.Operands[0] != mem || l2.Operands[1] != "A" {
		return nil, false
	}
	return []Op{{Mnemonic: "BSET", Operands: []string{mem, fmt.Sprintf("#%d", bit)}}}, true
}

// tryBitMaskToBRES matches "LD A,(m); AND A,#n; LD (m),A" with n an
// 8-bit mask clearing a single bit, and rewrites to "BRES (m),#bit".
func tryBitMaskToBRES(w []Op) ([]Op, bool) {
	l1, op, l2 := w[0], w[1], w[2]
	if l1.Mnemonic != "LD" || op.Mnemonic != "AND" || l2.Mnemonic != "LD" {
		return nil, false
	}
	if len(l1.Operands) != 2 || l1.Operands[0] != "A" {
		return nil, false
	}
	mem := l1.Operands[1]
	if len(op.Operands) != 2 || op.Operands[0] != "A" {
		return nil, false
	}
	n, ok := immValue(op.Operands[1])
	if !ok {
		return nil, false
	}
	bit, ok := isInvertedSingleBit(n)
	if !ok {
		return nil, false
	}
	if len(l2.Operands) != 2 || l2.Operands[0] != mem || l2.Operands[1] != "A" {
		return nil, false
	}
	return []Op{{Mnemonic: "BRES", Operands: []string{mem, fmt.Sprintf("#%d", bit)}}}, true
}

// tryFuseSPAdjust fuses neighbouring ADDW SP,n / SUBW SP,m pairs into
// a single net adjustment (spec §4.4 Pass 2), dropping it entirely
// when the net delta is zero.
func tryFuseSPAdjust(w []Op) ([]Op, bool) {
	a, b := w[0], w[1]
	deltaOf := func(o Op) (int, bool) {
		if len(o.Operands) != 2 || o.Operands[0] != "SP" {
			return 0, false
		}
		n, ok := immValue(o.Operands[1])
		if !ok {
			return 0, false
		}
		switch o.Mnemonic {
		case "ADDW":
			return n, true
		case "SUBW":
			return -n, true
		default:
			return 0, false
		}
	}
	d1, ok1 := deltaOf(a)
	d2, ok2 := deltaOf(b)
	if !ok1 || !ok2 {
		return nil, false
	}
	net := d1 + d2
	if net == 0 {
		return []Op{}, true
	}
	mnemonic, n := "ADDW", net
	if net < 0 {
		mnemonic, n = "SUBW", -net
	}
	return []Op{{Mnemonic: mnemonic, Operands: []string{"SP", fmt.Sprintf("#%d", n)}}}, true
}

// trySubPushFusion replaces "SUBW SP,#1|#2; LD (1,SP),x" with a
// single PUSH/PUSHW x.
func trySubPushFusion(w []Op) ([]Op, bool) {
	sub, ld := w[0], w[1]
	if sub.Mnemonic != "SUBW" || len(sub.Operands) != 2 || sub.Operands[0] != "SP" {
		return nil, false
	}
	n, ok := immValue(sub.Operands[1])
	if !ok || (n != 1 && n != 2) {
		return nil, false
	}
	mnemonic := "LD"
	push := "PUSH"
	if n == 2 {
		mnemonic = "LDW"
		push = "PUSHW"
	}
	if ld.Mnemonic != mnemonic || len(ld.Operands) != 2 || ld.Operands[0] != "(1,SP)" {
		return nil, false
	}
	return []Op{{Mnemonic: push, Operands: []string{ld.Operands[1]}}}, true
}

// trySaveMutateRestore drops a PUSH r / ... / POP r bracket when the
// bracketed op never writes r, since the save accomplished nothing.
func trySaveMutateRestore(w []Op) ([]Op, bool) {
	push, mid, pop := w[0], w[1], w[2]
	popOf := map[string]string{"PUSH": "POP", "PUSHW": "POPW"}
	want, ok := popOf[push.Mnemonic]
	if !ok || pop.Mnemonic != want || len(push.Operands) != 1 || len(pop.Operands) != 1 {
		return nil, false
	}
	reg := push.Operands[0]
	if reg != pop.Operands[0] {
		return nil, false
	}
	if !mid.IsInstruction() || mid.Volatile {
		return nil, false
	}
	if len(mid.Operands) > 0 && mid.Operands[0] == reg {
		return nil, false
	}
	if mid.Mnemonic == "CALL" || mid.Mnemonic == "CALLR" || mid.Mnemonic == "CALLF" {
		// A call may clobber the register through its own body; only
		// safe to drop the bracket for non-call ops.
		return nil, false
	}
	return []Op{mid}, true
}
