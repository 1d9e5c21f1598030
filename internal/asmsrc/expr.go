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
package asmsrc

import (
	"fmt"

	"modernc.org/mathutil"
)

// EVal is one leaf of an expression: an immediate value or a symbol
// reference, with an optional leading unary operator and trailing
// byte-selector postfix (".H", ".L", ".HH").
type EVal struct {
	Imm      int64
	Symbol   string
	IsImm    bool
	Unary    byte // 0, '-', or '!'
	Selector string
}

// Expr is the flat (values, ops) representation spec §4.5 calls for:
// len(Values) == len(Ops)+1, Ops[i] sits between Values[i] and
// Values[i+1]. Evaluation collapses Ops in STM8-assembler precedence
// order rather than building a nested tree at parse time.
type Expr struct {
	Values []EVal
	Ops    []string
}

// precedenceGroups lists binary operators from tightest to loosest
// binding; Eval repeatedly scans left to right collapsing the
// currently-highest-precedence group before moving to the next.
var precedenceGroups = [][]string{
	{"*", "/", "%"},
	{"+", "-"},
	{"<<", ">>"},
	{"&"},
	{"^"},
	{"|"},
	{"==", "!=", "<", ">", "<=", ">="},
}

func opInGroup(op string, group []string) bool {
	for _, g := range group {
		if g == op {
			return true
		}
	}
	return false
}

// SymbolResolver looks up a named symbol's current value (a label's
// address, a .CONST's value, or a .DEF macro value). Resolve reports
// false for a symbol not yet known, letting the caller defer
// evaluation to a later pass.
type SymbolResolver interface {
	Resolve(name string) (int64, bool)
}

// UnresolvedSymbolError reports an EVal referencing a symbol the
// resolver doesn't (yet) know.
type UnresolvedSymbolError struct {
	Symbol string
}

func (e *UnresolvedSymbolError) Error() string {
	return fmt.Sprintf("asmsrc: unresolved symbol %q", e.Symbol)
}

// OverflowError reports an intermediate result that would not fit a
// native int, the same bound modernc.org/mathutil.MaxInt/MinInt guard
// elsewhere in the toolchain's dependency graph.
type OverflowError struct {
	Op          string
	A, B        int64
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("asmsrc: %d %s %d overflows", e.A, e.Op, e.B)
}

func resolveLeaf(v EVal, r SymbolResolver) (int64, error) {
	var base int64
	if v.IsImm {
		base = v.Imm
	} else {
		n, ok := r.Resolve(v.Symbol)
		if !ok {
			return 0, &UnresolvedSymbolError{Symbol: v.Symbol}
		}
		base = n
	}
	switch v.Unary {
	case '-':
		base = -base
	case '!':
		if base == 0 {
			base = 1
		} else {
			base = 0
		}
	}
	switch v.Selector {
	case ".L":
		base &= 0xFF
	case ".H":
		base = (base >> 8) & 0xFF
	case ".HH":
		base = (base >> 16) & 0xFF
	}
	return base, nil
}

func checkedAdd(a, b int64) (int64, error) {
	if (b > 0 && a > int64(mathutil.MaxInt)-b) || (b < 0 && a < int64(mathutil.MinInt)-b) {
		return 0, &OverflowError{Op: "+", A: a, B: b}
	}
	return a + b, nil
}

func checkedSub(a, b int64) (int64, error) {
	if (b < 0 && a > int64(mathutil.MaxInt)+b) || (b > 0 && a < int64(mathutil.MinInt)+b) {
		return 0, &OverflowError{Op: "-", A: a, B: b}
	}
	return a - b, nil
}

func checkedMul(a, b int64) (int64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	p := a * b
	if p/b != a || p > int64(mathutil.MaxInt) || p < int64(mathutil.MinInt) {
		return 0, &OverflowError{Op: "*", A: a, B: b}
	}
	return p, nil
}

func applyOp(op string, a, b int64) (int64, error) {
	switch op {
	case "+":
		return checkedAdd(a, b)
	case "-":
		return checkedSub(a, b)
	case "*":
		return checkedMul(a, b)
	case "/":
		if b == 0 {
			return 0, fmt.Errorf("asmsrc: division by zero")
		}
		return a / b, nil
	case "%":
		if b == 0 {
			return 0, fmt.Errorf("asmsrc: modulo by zero")
		}
		return a % b, nil
	case "<<":
		return a << uint(b), nil
	case ">>":
		return a >> uint(b), nil
	case "&":
		return a & b, nil
	case "|":
		return a | b, nil
	case "^":
		return a ^ b, nil
	case "==":
		return boolInt(a == b), nil
	case "!=":
		return boolInt(a != b), nil
	case "<":
		return boolInt(a < b), nil
	case ">":
		return boolInt(a > b), nil
	case "<=":
		return boolInt(a <= b), nil
	case ">=":
		return boolInt(a >= b), nil
	default:
		return 0, fmt.Errorf("asmsrc: unknown operator %q", op)
	}
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// Eval resolves every leaf against r and collapses Ops in precedence
// order, group by group, left to right within a group.
func (e Expr) Eval(r SymbolResolver) (int64, error) {
	if len(e.Values) == 0 {
		return 0, fmt.Errorf("asmsrc: empty expression")
	}
	values := make([]int64, len(e.Values))
	for i, v := range e.Values {
		n, err := resolveLeaf(v, r)
		if err != nil {
			return 0, err
		}
		values[i] = n
	}
	ops := append([]string(nil), e.Ops...)

	for _, group := range precedenceGroups {
		for i := 0; i < len(ops); {
			if !opInGroup(ops[i], group) {
				i++
				continue
			}
			n, err := applyOp(ops[i], values[i], values[i+1])
			if err != nil {
				return 0, err
			}
			values[i] = n
			values = append(values[:i+1], values[i+2:]...)
			ops = append(ops[:i], ops[i+1:]...)
		}
	}
	if len(values) != 1 {
		return 0, fmt.Errorf("asmsrc: expression did not fully reduce")
	}
	return values[0], nil
}
