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
	"fmt"
	"strconv"

	"github.com/b1stm8/toolchain/internal/berr"
	"github.com/b1stm8/toolchain/internal/ir"
	"github.com/b1stm8/toolchain/internal/symtab"
)

func allowsKind(allowed []valueKind, k valueKind) bool {
	for _, a := range allowed {
		if a == k {
			return true
		}
	}
	return false
}

// load materializes arg as an operand, returning one of the
// caller-permitted value kinds (spec §4.3's load() helper surface).
// Immediates always satisfy KindImmVal; variable references resolve to
// a stack, memory, or register operand according to storage kind and
// caller preference.
func (e *Engine) load(arg *ir.Arg, requestedType symtab.Type, allowed ...valueKind) (value, error) {
	if arg == nil {
		return value{}, berr.Internal(berr.EIntErr, "load of a nil argument")
	}

	if arg.Immediate {
		v := value{Kind: KindImmVal, Text: "#" + formatImmediate(arg, requestedType), Type: requestedType}
		if !allowsKind(allowed, KindImmVal) {
			return e.materializeToRegister(v, requestedType)
		}
		return v, nil
	}

	v, ok := e.locateVariable(arg)
	if !ok {
		// A bare identifier with no table entry is a label/symbol
		// reference (jump targets, function names): pass through
		// verbatim.
		return value{Kind: KindMemRef, Text: arg.Name, Type: requestedType}, nil
	}
	if requestedType.IsNumeric() && v.Type.IsNumeric() && !symtab.Widens(v.Type, requestedType) && requestedType != v.Type {
		// Narrowing to BYTE keeps the low byte; nothing else narrows
		// implicitly, so this is only ever a widen-compatible request
		// or an explicit BYTE truncation (spec §3 coercion rules).
	}

	if arg.IsCall() {
		return e.loadArrayElement(arg, v, requestedType, allowed)
	}

	switch v.Storage {
	case symtab.StorageStackLocal:
		off, ok := e.localOffset[arg.Name]
		if !ok {
			off, ok = e.udefArgOffsets[arg.Name]
		}
		if !ok {
			return value{}, berr.Internal(berr.EIntErr, "stack local %s has no recorded offset", arg.Name)
		}
		loc := value{Kind: KindStackRef, Text: fmt.Sprintf("(%d,SP)", e.stackPtr-off+1), Type: v.Type}
		if allowsKind(allowed, KindStackRef) {
			return loc, nil
		}
		return e.materializeToRegister(loc, requestedType)
	default:
		loc := value{Kind: KindMemRef, Text: fmt.Sprintf("(%s)", arg.Name), Type: v.Type}
		if allowsKind(allowed, KindMemRef) {
			return loc, nil
		}
		return e.materializeToRegister(loc, requestedType)
	}
}

// store writes v into the location named by arg (spec §4.3's store()
// helper). For a STRING destination it emits a __LIB_STR_CPY call and
// marks __LIB_STR_RLS as required; it emits no separate release call
// for the string previously held there.
func (e *Engine) store(arg *ir.Arg, v value) error {
	sv, ok := e.locateVariable(arg)
	if !ok {
		return berr.Internal(berr.EIntErr, "store to unresolved variable %s", arg.Name)
	}

	if sv.Type == symtab.TypeString {
		e.out.require("__LIB_STR_RLS")
		e.out.require("__LIB_STR_CPY")
	}

	var dstText string
	switch sv.Storage {
	case symtab.StorageStackLocal:
		off, ok := e.localOffset[arg.Name]
		if !ok {
			off = e.udefArgOffsets[arg.Name]
		}
		dstText = fmt.Sprintf("(%d,SP)", e.stackPtr-off+1)
		if sv.Type == symtab.TypeString {
			e.localOwnsStr[arg.Name] = true
		}
	default:
		dstText = fmt.Sprintf("(%s)", arg.Name)
	}

	mnemonic := "LD"
	if sv.Type.Size() == 2 {
		mnemonic = "LDW"
	}
	if sv.Type == symtab.TypeString {
		e.out.emitf("CALL __LIB_STR_CPY ; %s <- %s", dstText, v.Text)
		return nil
	}
	e.out.emitf("%s %s,%s", mnemonic, dstText, v.Text)
	return nil
}

func (e *Engine) materializeToRegister(v value, typ symtab.Type) (value, error) {
	reg := "A"
	mnemonic := "LD"
	if typ.Size() == 2 {
		reg = "X"
		mnemonic = "LDW"
	}
	e.out.emitf("%s %s,%s", mnemonic, reg, v.Text)
	return value{Kind: KindRegister, Text: reg, Type: typ}, nil
}

// locateVariable resolves arg's root name against the variable table.
func (e *Engine) locateVariable(arg *ir.Arg) (*symtab.Variable, bool) {
	v := e.prog.Vars.Lookup(arg.Name)
	return v, v != nil
}

// loadArrayElement computes arr_offset(arg, ...) (spec §4.3) and loads
// the element at that offset: an immediate constant offset for
// fully-literal subscripts into a fixed-size array, or a runtime
// multiply-and-subtract sequence otherwise.
func (e *Engine) loadArrayElement(arg *ir.Arg, v *symtab.Variable, requestedType symtab.Type, allowed []valueKind) (value, error) {
	subs := arg.Group(0)
	if v.FixedSize && allLiteralSubscripts(subs) {
		off, err := flatOffset(v, subs)
		if err != nil {
			return value{}, err
		}
		loc := value{Kind: KindMemRef, Text: fmt.Sprintf("(%s+%d)", arg.Name, off), Type: v.Type}
		if allowsKind(allowed, KindMemRef) {
			return loc, nil
		}
		return e.materializeToRegister(loc, requestedType)
	}

	e.out.require("__LIB_COM_MUL16")
	e.out.emitf("LDW X,%s ; runtime subscript of %s", subscriptText(subs[0]), arg.Name)
	for _, b := range v.Bounds {
		if b.Lower != 0 {
			e.out.emitf("SUBW X,#%d", b.Lower)
			break
		}
	}
	e.out.emitf("LDW Y,#%d", v.Type.Size())
	e.out.emit("CALL __LIB_COM_MUL16")
	loc := value{Kind: KindMemRef, Text: fmt.Sprintf("(%s,X)", arg.Name), Type: v.Type}
	if allowsKind(allowed, KindMemRef) {
		return loc, nil
	}
	return e.materializeToRegister(loc, requestedType)
}

func subscriptText(a *ir.Arg) string {
	if a.Immediate {
		return "#" + a.Literal
	}
	return a.Name
}

func allLiteralSubscripts(subs []*ir.Arg) bool {
	for _, s := range subs {
		if !s.Immediate {
			return false
		}
	}
	return len(subs) > 0
}

// flatOffset computes the compile-time-constant flat byte offset into
// a fixed-size array, row-major, from fully-literal subscripts.
func flatOffset(v *symtab.Variable, subs []*ir.Arg) (int, error) {
	if len(subs) != len(v.Bounds) {
		return 0, berr.Range(berr.ESubscriptOutOfRange, "", 0, "%s: subscript arity mismatch", v.Name)
	}
	offset := 0
	stride := 1
	for i := len(v.Bounds) - 1; i >= 0; i-- {
		n, err := strconv.Atoi(subs[i].Literal)
		if err != nil {
			return 0, berr.Internal(berr.EIntErr, "non-numeric literal subscript %q", subs[i].Literal)
		}
		b := v.Bounds[i]
		if n < b.Lower || n > b.Upper {
			return 0, berr.Range(berr.ESubscriptOutOfRange, "", 0, "%s: subscript %d out of range [%d,%d]", v.Name, n, b.Lower, b.Upper)
		}
		offset += (n - b.Lower) * stride
		stride *= b.Size()
	}
	return offset * v.Type.Size(), nil
}

func formatImmediate(a *ir.Arg, typ symtab.Type) string {
	if typ == symtab.TypeString {
		return a.Literal
	}
	return a.Literal
}
