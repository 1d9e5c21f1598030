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
	"strings"
)

// Defines backs the DEFINED(name) predicate .IF/.ELIF expressions can
// use alongside the ordinary arithmetic/relational operators.
type Defines interface {
	Defined(name string) bool
}

// frame is one entry in a CondStack: whether its own branch has taken
// (Active), whether any branch in this .IF chain has already fired
// (Taken, which makes every later .ELIF/.ELSE in the chain dead even
// if the outer scope is active), and whether the enclosing scope was
// itself active when this frame opened.
type frame struct {
	active       bool
	taken        bool
	outerActive  bool
}

// CondStack drives an .IF / .ELIF / .ELSE / .ENDIF chain. Lines
// outside of any Active() frame are tokenized (so a later .ENDIF can
// still be recognized) but never parsed into code or data.
type CondStack struct {
	frames []frame
}

// Active reports whether a line at the current nesting should be
// emitted.
func (c *CondStack) Active() bool {
	if len(c.frames) == 0 {
		return true
	}
	return c.frames[len(c.frames)-1].active
}

func (c *CondStack) outerActive() bool {
	if len(c.frames) == 0 {
		return true
	}
	return c.frames[len(c.frames)-1].active
}

// If pushes a new frame for a ".IF expr" line.
func (c *CondStack) If(cond bool) {
	active := c.outerActive() && cond
	c.frames = append(c.frames, frame{active: active, taken: cond, outerActive: c.outerActive()})
}

// Elif evaluates one more branch of the chain currently on top of the
// stack.
func (c *CondStack) Elif(cond bool) error {
	if len(c.frames) == 0 {
		return fmt.Errorf(".ELIF with no matching .IF")
	}
	top := &c.frames[len(c.frames)-1]
	if top.taken {
		top.active = false
		return nil
	}
	top.active = top.outerActive && cond
	top.taken = cond
	return nil
}

// Else closes the taken/not-taken decision for the chain on top.
func (c *CondStack) Else() error {
	if len(c.frames) == 0 {
		return fmt.Errorf(".ELSE with no matching .IF")
	}
	top := &c.frames[len(c.frames)-1]
	top.active = top.outerActive && !top.taken
	top.taken = true
	return nil
}

// Endif pops the chain on top.
func (c *CondStack) Endif() error {
	if len(c.frames) == 0 {
		return fmt.Errorf(".ENDIF with no matching .IF")
	}
	c.frames = c.frames[:len(c.frames)-1]
	return nil
}

// condResolver passes an Expr's symbol lookups through to a plain
// SymbolResolver; its defines field is not consulted by Resolve.
type condResolver struct {
	defines  Defines
	symbols  SymbolResolver
}

func (r condResolver) Resolve(name string) (int64, bool) {
	return r.symbols.Resolve(name)
}

// EvalCond parses and evaluates a .IF/.ELIF condition line. A line that
// is exactly DEFINED(name) or NOT DEFINED(name) is answered from
// defines; every other line goes to the ordinary expression engine
// (comparisons, bitwise tests, and so on), where DEFINED inside a
// larger expression is not recognised.
func EvalCond(line int, text string, defines Defines, symbols SymbolResolver) (bool, error) {
	trimmed := strings.TrimSpace(text)
	upper := strings.ToUpper(trimmed)

	if strings.HasPrefix(upper, "NOT DEFINED(") && strings.HasSuffix(trimmed, ")") {
		name := trimmed[len("NOT DEFINED(") : len(trimmed)-1]
		return !defines.Defined(strings.TrimSpace(name)), nil
	}
	if strings.HasPrefix(upper, "DEFINED(") && strings.HasSuffix(trimmed, ")") {
		name := trimmed[len("DEFINED(") : len(trimmed)-1]
		return defines.Defined(strings.TrimSpace(name)), nil
	}

	toks, err := Tokenize(line, text)
	if err != nil {
		return false, err
	}
	expr, err := NewExprParser(toks).ParseExpr()
	if err != nil {
		return false, err
	}
	n, err := expr.Eval(condResolver{defines: defines, symbols: symbols})
	if err != nil {
		return false, err
	}
	return n != 0, nil
}
