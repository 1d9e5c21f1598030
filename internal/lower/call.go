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
package lower

import (
	"github.com/b1stm8/toolchain/internal/berr"
	"github.com/b1stm8/toolchain/internal/ir"
	"github.com/b1stm8/toolchain/internal/session"
	"github.com/b1stm8/toolchain/internal/symtab"
)

// argOffsets resolves spec §4.3's calling-convention Open Question
// (SPEC_FULL.md "Open Question Decisions"): a single-argument function
// receives its value already in A/X/Y:X and the prologue pushes it to
// (1,SP); a multi-argument function instead reads every argument from
// the caller's stack, at offsets past the return address, in
// declaration order. Both conventions are expressed identically to
// callers of load()/store() as a SP-relative offset — only the
// prologue emitted in stm8Def differs by argument count.
func argOffsets(fn *ir.UserFunc, cfg *session.Config) []int {
	retAddrSize := 2
	if cfg != nil {
		retAddrSize = cfg.RetAddrSize()
	}
	offsets := make([]int, len(fn.ArgTypes))
	if len(fn.ArgTypes) == 1 {
		// Single argument: prologue pushes the register value, so it
		// lives immediately above SP.
		offsets[0] = fn.ArgTypes[0].Size()
		return offsets
	}
	// Multiple arguments: pushed by the caller in declaration order,
	// so the first argument is deepest (closest to the return
	// address) and the last is nearest the top of stack.
	offset := retAddrSize
	for i := len(fn.ArgTypes) - 1; i >= 0; i-- {
		offset += fn.ArgTypes[i].Size()
		offsets[i] = offset
	}
	return offsets
}

// emitCall pushes actual arguments (filling in UserFunc.Defaults for
// any omitted trailing arguments, spec §4.2) and emits the CALL.
func (e *Engine) emitCall(target *ir.Arg, actuals []*ir.Arg) error {
	fn, isUserFunc := e.prog.UserFuncs[target.Name]

	if !isUserFunc {
		for _, a := range actuals {
			v, err := e.load(a, a.Type, KindRegister, KindImmVal, KindMemRef)
			if err != nil {
				return err
			}
			e.out.emitf("PUSH %s", v.Text)
		}
		e.out.emitf("CALL %s", target.Name)
		e.cmpActive = false
		return nil
	}

	if len(actuals) > len(fn.ArgNames) {
		return berr.Syntax(berr.EVarDimMis, "", target.Line, "%s: too many arguments", target.Name)
	}

	full := make([]*ir.Arg, len(fn.ArgNames))
	copy(full, actuals)
	for i := len(actuals); i < len(fn.ArgNames); i++ {
		if fn.Defaults[i] == "" {
			return berr.Syntax(berr.ENoDefIODev, "", target.Line, "%s: argument %s omitted with no default", target.Name, fn.ArgNames[i])
		}
		full[i] = &ir.Arg{Immediate: true, Literal: fn.Defaults[i], Type: fn.ArgTypes[i]}
	}

	if len(full) == 1 {
		v, err := e.load(full[0], fn.ArgTypes[0], KindRegister, KindImmVal)
		if err != nil {
			return err
		}
		reg := "A"
		if fn.ArgTypes[0].Size() == 2 {
			reg = "X"
		}
		if v.Text != reg {
			e.out.emitf("LD %s,%s", reg, v.Text)
		}
	} else {
		// Pushed in declaration order so the first declared argument
		// ends up deepest on the stack, matching argOffsets' layout.
		for i := 0; i < len(full); i++ {
			v, err := e.load(full[i], fn.ArgTypes[i], KindRegister, KindImmVal, KindMemRef)
			if err != nil {
				return err
			}
			mnemonic := "PUSH"
			if fn.ArgTypes[i].Size() == 2 {
				mnemonic = "PUSHW"
			}
			e.out.emitf("%s %s", mnemonic, v.Text)
		}
	}

	e.out.emitf("CALL %s", target.Name)
	if len(full) > 1 {
		e.out.emitf("ADDW SP,#%d", sumSizes(fn.ArgTypes))
	}
	e.cmpActive = false
	return nil
}

func sumSizes(types []symtab.Type) int {
	n := 0
	for _, t := range types {
		n += t.Size()
	}
	return n
}
