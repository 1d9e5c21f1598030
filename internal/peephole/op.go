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

// Package peephole implements the three-pass-family optimizer (spec
// §4.4): canonicalization, stack simplification, and register
// liveness, iterated to a fixed point over sliding 2-7 op windows.
package peephole

import "strings"

// Op is the parsed form of one lower.Line: a mnemonic plus its
// comma-separated operand list, or a bare label/directive passthrough.
type Op struct {
	Label    string
	Text     string
	Mnemonic string
	Operands []string
	Comment  string
	Volatile bool
}

// IsLabel reports whether this op is a label definition rather than an
// instruction.
func (o Op) IsLabel() bool { return o.Label != "" }

// IsInstruction reports whether this op carries a parsed mnemonic that
// rewrite rules may match against.
func (o Op) IsInstruction() bool { return o.Label == "" && o.Mnemonic != "" }

// parseOp splits an instruction line's text into mnemonic and operand
// list, respecting parens so "(1,SP)" is not split at its internal
// comma.
func parseOp(text string) (mnemonic string, operands []string) {
	text = strings.TrimSpace(text)
	if text == "" || strings.HasPrefix(text, ";") {
		return "", nil
	}
	sp := strings.IndexAny(text, " \t")
	if sp < 0 {
		return text, nil
	}
	mnemonic = text[:sp]
	rest := strings.TrimSpace(text[sp+1:])
	if rest == "" {
		return mnemonic, nil
	}
	depth := 0
	start := 0
	for i, r := range rest {
		switch r {
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case ',':
			if depth == 0 {
				operands = append(operands, strings.TrimSpace(rest[start:i]))
				start = i + 1
			}
		}
	}
	operands = append(operands, strings.TrimSpace(rest[start:]))
	return mnemonic, operands
}

// render reassembles an Op back into instruction text.
func (o Op) render() string {
	if o.Mnemonic == "" {
		return o.Text
	}
	if len(o.Operands) == 0 {
		return o.Mnemonic
	}
	return o.Mnemonic + " " + strings.Join(o.Operands, ",")
}
