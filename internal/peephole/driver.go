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

import "github.com/b1stm8/toolchain/internal/lower"

// toOps parses a lowered line stream into Op form.
func toOps(lines []lower.Line) []Op {
	ops := make([]Op, len(lines))
	for i, l := range lines {
		if l.Label != "" {
			ops[i] = Op{Label: l.Label}
			continue
		}
		mnemonic, operands := parseOp(l.Text)
		ops[i] = Op{
			Text:     l.Text,
			Mnemonic: mnemonic,
			Operands: operands,
			Comment:  l.Comment,
			Volatile: l.Volatile,
		}
	}
	return ops
}

func fromOps(ops []Op) []lower.Line {
	lines := make([]lower.Line, len(ops))
	for i, o := range ops {
		if o.IsLabel() {
			lines[i] = lower.Line{Label: o.Label}
			continue
		}
		text := o.Text
		if o.Mnemonic != "" {
			text = o.render()
		}
		lines[i] = lower.Line{Text: text, Comment: o.Comment, Volatile: o.Volatile}
	}
	return lines
}

// labelMap rebuilds a name->index table over ops, letting cross-label
// rewrites (e.g. looking up a JRA target) run in O(1) each sweep
// (spec §4.4).
func labelMap(ops []Op) map[string]int {
	m := make(map[string]int)
	for i, o := range ops {
		if o.IsLabel() {
			m[o.Label] = i
		}
	}
	return m
}

// windowSafe reports whether ops[i:i+n] may be rewritten: it must not
// cross a label (a possible jump target from elsewhere) or touch a
// volatile/inline-asm op (spec §4.4 invariant 1).
func windowSafe(ops []Op, i, n int) bool {
	if i+n > len(ops) {
		return false
	}
	for k := i; k < i+n; k++ {
		if ops[k].IsLabel() || ops[k].Volatile || !ops[k].IsInstruction() {
			return false
		}
	}
	return true
}

// applyRules runs one left-to-right sweep of rules over ops, applying
// the first match at each position and restarting the scan from the
// rewritten point. Returns the rewritten stream and whether anything
// changed.
func applyRules(ops []Op, rules []rule, ledger *Ledger) ([]Op, bool) {
	changed := false
	i := 0
	for i < len(ops) {
		matched := false
		for _, r := range rules {
			if !windowSafe(ops, i, r.size) {
				continue
			}
			repl, ok := r.try(ops[i : i+r.size])
			if !ok {
				continue
			}
			next := make([]Op, 0, len(ops)-r.size+len(repl))
			next = append(next, ops[:i]...)
			next = append(next, repl...)
			next = append(next, ops[i+r.size:]...)
			ops = next
			ledger.record(r.id)
			changed = true
			matched = true
			break
		}
		if !matched {
			i++
		}
	}
	return ops, changed
}

// applyLiveness runs Pass 3 once: dead-store elimination and
// call-preserved register reuse, both computed via whole-stream
// lookahead rather than a fixed window.
func applyLiveness(ops []Op, ledger *Ledger) ([]Op, bool) {
	dead := deadRegisterStores(ops)
	reuse := callPreservedReuse(ops)
	if len(dead) == 0 && len(reuse) == 0 {
		return ops, false
	}
	isDead := make(map[int]bool, len(dead))
	for _, i := range dead {
		isDead[i] = true
	}
	out := make([]Op, 0, len(ops))
	for i, o := range ops {
		switch {
		case isDead[i]:
			ledger.record(RuleDeadRegisterStore)
		case reuse[i]:
			ledger.record(RuleCallPreservedReuse)
		default:
			out = append(out, o)
		}
	}
	return out, true
}

// Optimize runs the three pass families to a fixed point (spec §4.4):
// the driver cycles canonicalization, stack simplification, and
// register liveness until a full cycle produces no change. It returns
// the rewritten line stream; every rule firing is counted into ledger.
func Optimize(lines []lower.Line, ledger *Ledger) []lower.Line {
	if ledger == nil {
		ledger = &Ledger{}
	}
	ops := toOps(lines)
	for {
		_ = labelMap(ops) // rebuilt each sweep per spec; consumed by future cross-label rules
		anyChange := false
		for {
			next, changed := applyRules(ops, canonRules, ledger)
			ops = next
			if !changed {
				break
			}
			anyChange = true
		}
		for {
			next, changed := applyRules(ops, stackRules, ledger)
			ops = next
			if !changed {
				break
			}
			anyChange = true
		}
		for {
			next, changed := applyLiveness(ops, ledger)
			ops = next
			if !changed {
				break
			}
			anyChange = true
		}
		if !anyChange {
			break
		}
	}
	return fromOps(ops)
}
