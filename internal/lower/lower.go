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

// Package lower implements the IR-to-assembly lowering engine (spec
// §4.3): a single stateful forward pass that turns a resolved
// ir.Program into STM8 assembly text, section by section.
package lower

import (
	"fmt"

	"github.com/b1stm8/toolchain/internal/berr"
	"github.com/b1stm8/toolchain/internal/inlineasm"
	"github.com/b1stm8/toolchain/internal/ir"
	"github.com/b1stm8/toolchain/internal/session"
	"github.com/b1stm8/toolchain/internal/symtab"
)

// Line is one emitted assembly statement: a label, an instruction, a
// directive, or a passed-through inline-asm line.
type Line struct {
	Label    string
	Text     string
	Comment  string
	Volatile bool
}

// Output is everything the lowering pass produces: the ordered line
// stream plus the bookkeeping the assembler and optimizer need.
type Output struct {
	Lines           []Line
	RequiredSymbols map[string]bool
	SubEntryLabels  map[string]bool
}

func (o *Output) emit(text string) {
	o.Lines = append(o.Lines, Line{Text: text})
}

func (o *Output) emitComment(text, comment string) {
	o.Lines = append(o.Lines, Line{Text: text, Comment: comment})
}

func (o *Output) emitf(format string, args ...any) {
	o.Lines = append(o.Lines, Line{Text: fmt.Sprintf(format, args...)})
}

func (o *Output) emitLabel(name string) {
	o.Lines = append(o.Lines, Line{Label: name})
}

func (o *Output) require(sym string) {
	if o.RequiredSymbols == nil {
		o.RequiredSymbols = make(map[string]bool)
	}
	o.RequiredSymbols[sym] = true
}

// valueKind is one of the operand shapes load() may hand back.
type valueKind int

const (
	KindRegister valueKind = iota
	KindStackRef
	KindMemRef
	KindImmVal
)

// value is what load() returns: the chosen operand kind plus its
// textual assembly form.
type value struct {
	Kind valueKind
	Text string
	Type symtab.Type
}

// Engine carries the mutable state of one lowering pass (spec §4.3).
type Engine struct {
	prog *ir.Program
	cfg  *session.Config
	out  *Output

	stackPtr     int
	localOffset  map[string]int
	localOwnsStr map[string]bool // locals of type STRING that were actually assigned

	cmpActive bool
	cmpOp     string
	cmpType   symtab.Type

	retvalActive bool
	retvalType   symtab.Type

	curFunc        *ir.UserFunc
	udefArgOffsets map[string]int

	allocatedArrays map[string]bool

	inAsm   bool
	tmpSeq  int
	inliner InlineResolver

	asmScanner *inlineasm.Scanner
}

// Compile runs the lowering pass over prog and returns the emitted
// assembly text. inliner may be nil, in which case INL-flagged device
// commands degrade to an ordinary CALL of the template's base name.
func Compile(prog *ir.Program, cfg *session.Config, inliner InlineResolver) (*Output, error) {
	e := &Engine{
		prog:            prog,
		cfg:             cfg,
		inliner:         inliner,
		out:             &Output{RequiredSymbols: make(map[string]bool), SubEntryLabels: make(map[string]bool)},
		localOffset:     make(map[string]int),
		localOwnsStr:    make(map[string]bool),
		allocatedArrays: make(map[string]bool),
		asmScanner:      inlineasm.NewScanner(),
	}
	for i := 0; i < len(prog.Records); {
		r := prog.Records[i]
		if r.Kind == ir.RecordCommand && r.Op == "IOCTL" {
			merged, consumed := mergeIOCTLRun(prog.Records, i)
			if err := e.lower(&merged); err != nil {
				return nil, err
			}
			i += consumed
			continue
		}
		if err := e.lower(&prog.Records[i]); err != nil {
			return nil, err
		}
		i++
	}
	return e.out, nil
}

func (e *Engine) nextTemp() string {
	e.tmpSeq++
	return fmt.Sprintf("__TMP_%d", e.tmpSeq)
}

func (e *Engine) lower(r *ir.Record) error {
	switch r.Kind {
	case ir.RecordLabel:
		e.out.emitLabel(r.Label)
		return nil
	case ir.RecordNamespace:
		return nil
	case ir.RecordAsmLine:
		e.scanInlineAsmLabels(r.AsmText)
		e.out.Lines = append(e.out.Lines, Line{Text: r.AsmText, Volatile: true})
		return nil
	}

	switch r.Op {
	case "ASM":
		e.inAsm = true
		return nil
	case "ENDASM":
		e.inAsm = false
		return nil
	case "NS":
		return nil
	case "DEF":
		return e.stm8Def(r)
	case "LA":
		return e.stm8La(r)
	case "LF":
		return e.stm8Lf(r)
	case "GA":
		return e.stm8StGA(r)
	case "GF":
		return e.stm8StGF(r)
	case "MA":
		return nil // address mapping is resolution-time only; no code to emit
	case "=":
		return e.stm8Assign(r)
	case "+", "-":
		return e.stm8AddOp(r)
	case "*", "/", "%":
		return e.stm8MulOp(r)
	case "&", "|", "^", "~":
		return e.stm8BitOp(r)
	case "<<", ">>":
		return e.stm8ShiftOp(r)
	case "==", "<>", "<", "<=", ">", ">=":
		return e.stm8CmpOp(r)
	case "!":
		return e.stm8BitOp(r)
	case "JMP":
		return e.stm8Jmp(r)
	case "JT":
		return e.stm8JT(r)
	case "JF":
		return e.stm8JF(r)
	case "CALL":
		return e.stm8Call(r)
	case "RETVAL":
		return e.stm8Retval(r)
	case "RET":
		return e.stm8Ret(r)
	case "END":
		e.out.emit("END")
		return nil
	case "IN", "OUT", "GET", "PUT", "TRR", "IOCTL":
		return e.stm8WriteIOCtl(r)
	case "DAT", "READ", "RST":
		return e.stm8DataTable(r)
	case "INT":
		return e.stm8Int(r)
	case "INI", "IMP", "USES", "XARG", "ERR", "SET":
		return nil // pragmas: external-collaborator concerns (spec §1 non-goals)
	default:
		return berr.Internal(berr.EInvCmdName, "lower: unhandled opcode %q at line %d", r.Op, r.Line)
	}
}

// --- variable declaration / release -----------------------------------

func (e *Engine) stm8La(r *ir.Record) error {
	if len(r.Args) == 0 {
		return nil
	}
	a := r.Args[0]
	v := e.prog.Vars.Lookup(a.Name)
	if v == nil {
		return berr.Internal(berr.EIntErr, "LA of unresolved local %s", a.Name)
	}
	size := v.FlatSize()
	if size == 0 {
		size = v.DynamicDescriptorSize()
	}
	e.stackPtr += size
	e.localOffset[a.Name] = e.stackPtr
	if size == 1 {
		e.out.emit("PUSH #0")
	} else {
		e.out.emitf("SUBW SP,#%d", size)
	}
	if v.Type == symtab.TypeString {
		e.out.emit("CLRW (1,SP)")
	}
	return nil
}

func (e *Engine) stm8Lf(r *ir.Record) error {
	if len(r.Args) == 0 {
		return nil
	}
	a := r.Args[0]
	v := e.prog.Vars.Lookup(a.Name)
	if v == nil {
		return berr.Internal(berr.EIntErr, "LF of unresolved local %s", a.Name)
	}
	size := v.FlatSize()
	if size == 0 {
		size = v.DynamicDescriptorSize()
	}
	if v.Type == symtab.TypeString && e.localOwnsStr[a.Name] && !(e.retvalActive && e.retvalType == symtab.TypeString) {
		e.out.require("__LIB_STR_RLS")
		e.out.emit("CALL __LIB_STR_RLS")
	}
	e.out.emitf("ADDW SP,#%d", size)
	e.stackPtr -= size
	delete(e.localOffset, a.Name)
	return nil
}

func (e *Engine) stm8StGA(r *ir.Record) error {
	if len(r.Args) == 0 {
		return nil
	}
	v := e.prog.Vars.Lookup(r.Args[0].Name)
	if v == nil {
		return nil
	}
	if v.FixedSize {
		return nil // flat allocation lives in the DATA section, nothing to emit here
	}
	e.out.require("__LIB_MEM_ALLOC")
	e.out.emitf("; dynamic allocation for %s deferred to first use", v.Name)
	return nil
}

func (e *Engine) stm8StGF(r *ir.Record) error {
	if len(r.Args) == 0 {
		return nil
	}
	v := e.prog.Vars.Lookup(r.Args[0].Name)
	if v == nil {
		return nil
	}
	if !v.FixedSize {
		e.out.require("__LIB_MEM_FREE")
		e.out.emitf("CALL __LIB_MEM_FREE ; %s", v.Name)
	}
	delete(e.allocatedArrays, v.Name)
	return nil
}

// --- function header ----------------------------------------------------

func (e *Engine) stm8Def(r *ir.Record) error {
	if len(r.Args) == 0 {
		return nil
	}
	name := r.Args[0].Name
	fn, ok := e.prog.UserFuncs[name]
	if !ok {
		return berr.Internal(berr.EIntErr, "DEF of unregistered function %s", name)
	}
	e.curFunc = fn
	e.stackPtr = 0
	e.localOffset = make(map[string]int)
	e.udefArgOffsets = make(map[string]int)
	e.out.emitLabel(name)
	e.out.SubEntryLabels[name] = true

	offsets := argOffsets(fn, e.cfg)
	for i, argName := range fn.ArgNames {
		e.udefArgOffsets[argName] = offsets[i]
	}
	return nil
}

// --- assignment / arithmetic --------------------------------------------

func (e *Engine) stm8Assign(r *ir.Record) error {
	if len(r.Args) < 2 {
		return berr.Internal(berr.EIntErr, "= requires two arguments at line %d", r.Line)
	}
	dst, src := r.Args[0], r.Args[1]
	v, err := e.load(src, dst.Type, KindRegister, KindImmVal, KindMemRef)
	if err != nil {
		return err
	}
	return e.store(dst, v)
}

func (e *Engine) stm8AddOp(r *ir.Record) error {
	return e.binaryArith(r, map[string]string{"+": "ADD", "-": "SUB"})
}

func (e *Engine) stm8MulOp(r *ir.Record) error {
	switch r.Op {
	case "*":
		e.out.require("__LIB_COM_MUL16")
		return e.binaryCall(r, "__LIB_COM_MUL16")
	case "/":
		e.out.require("__LIB_COM_DIV16")
		return e.binaryCall(r, "__LIB_COM_DIV16")
	default:
		e.out.require("__LIB_COM_MOD16")
		return e.binaryCall(r, "__LIB_COM_MOD16")
	}
}

func (e *Engine) stm8BitOp(r *ir.Record) error {
	return e.binaryArith(r, map[string]string{"&": "AND", "|": "OR", "^": "XOR", "~": "CPL", "!": "CPL"})
}

func (e *Engine) stm8ShiftOp(r *ir.Record) error {
	switch r.Op {
	case "<<":
		return e.binaryArith(r, map[string]string{"<<": "SLL"})
	default:
		return e.binaryArith(r, map[string]string{">>": "SRL"})
	}
}

func (e *Engine) binaryArith(r *ir.Record, mnemonics map[string]string) error {
	if len(r.Args) < 1 {
		return berr.Internal(berr.EIntErr, "arithmetic op %s has no arguments at line %d", r.Op, r.Line)
	}
	lhs := r.Args[0]
	lv, err := e.load(lhs, lhs.Type, KindRegister)
	if err != nil {
		return err
	}
	e.cmpActive = false
	if len(r.Args) == 1 {
		e.out.emitf("%s %s", mnemonics[r.Op], lv.Text)
		return nil
	}
	rhs := r.Args[1]
	rv, err := e.load(rhs, lhs.Type, KindImmVal, KindRegister, KindMemRef)
	if err != nil {
		return err
	}
	e.out.emitf("%s %s,%s", mnemonics[r.Op], lv.Text, rv.Text)
	return nil
}

func (e *Engine) binaryCall(r *ir.Record, helper string) error {
	if len(r.Args) < 2 {
		return berr.Internal(berr.EIntErr, "%s requires two operands at line %d", r.Op, r.Line)
	}
	if _, err := e.load(r.Args[0], symtab.TypeInt, KindRegister); err != nil {
		return err
	}
	if _, err := e.load(r.Args[1], symtab.TypeInt, KindStackRef, KindImmVal); err != nil {
		return err
	}
	e.out.emitf("CALL %s", helper)
	e.cmpActive = false
	return nil
}

func (e *Engine) stm8CmpOp(r *ir.Record) error {
	if len(r.Args) < 2 {
		return berr.Internal(berr.EIntErr, "comparison requires two operands at line %d", r.Line)
	}
	if r.Args[0].Type == symtab.TypeString || r.Args[1].Type == symtab.TypeString {
		return e.stm8StrCmpOp(r)
	}
	return e.stm8NumCmpOp(r)
}

func (e *Engine) stm8NumCmpOp(r *ir.Record) error {
	lv, err := e.load(r.Args[0], r.Args[0].Type, KindRegister)
	if err != nil {
		return err
	}
	rv, err := e.load(r.Args[1], r.Args[0].Type, KindImmVal, KindRegister, KindMemRef)
	if err != nil {
		return err
	}
	e.out.emitf("CP %s,%s", lv.Text, rv.Text)
	e.cmpActive = true
	e.cmpOp = r.Op
	e.cmpType = r.Args[0].Type
	return nil
}

func (e *Engine) stm8StrCmpOp(r *ir.Record) error {
	e.out.require("__LIB_STR_CMP")
	if _, err := e.load(r.Args[0], symtab.TypeString, KindRegister); err != nil {
		return err
	}
	if _, err := e.load(r.Args[1], symtab.TypeString, KindStackRef); err != nil {
		return err
	}
	e.out.emit("CALL __LIB_STR_CMP")
	e.out.emit("TNZ A")
	e.cmpActive = true
	e.cmpOp = r.Op
	e.cmpType = symtab.TypeString
	return nil
}

// --- control flow --------------------------------------------------------

func (e *Engine) stm8Jmp(r *ir.Record) error {
	if len(r.Args) == 0 {
		return berr.Internal(berr.EIntErr, "JMP requires a target at line %d", r.Line)
	}
	e.out.emitf("JRA %s", r.Args[0].Name)
	return nil
}

func (e *Engine) stm8JT(r *ir.Record) error {
	return e.conditionalJump(r, false)
}

func (e *Engine) stm8JF(r *ir.Record) error {
	return e.conditionalJump(r, true)
}

// conditionalJump chooses the signed/unsigned JRxx variant from the
// cached comparator state left by the preceding comparison op (spec
// §4.3's cmp_active/cmp_op/cmp_type fields).
func (e *Engine) conditionalJump(r *ir.Record, invert bool) error {
	if len(r.Args) == 0 {
		return berr.Internal(berr.EIntErr, "%s requires a target at line %d", r.Op, r.Line)
	}
	if !e.cmpActive {
		return berr.Internal(berr.ENoCmpOp, "%s at line %d has no preceding comparison", r.Op, r.Line)
	}
	mnemonic := jrxxFor(e.cmpOp, e.cmpType, invert)
	e.out.emitf("%s %s", mnemonic, r.Args[0].Name)
	return nil
}

// jrxxFor returns the signed or unsigned JRxx mnemonic for op, negated
// when invert is true (JF instead of JT).
func jrxxFor(op string, typ symtab.Type, invert bool) string {
	signed := typ == symtab.TypeInt || typ == symtab.TypeLong
	table := map[string][2]string{
		"==": {"JREQ", "JRNE"},
		"<>": {"JRNE", "JREQ"},
	}
	if m, ok := table[op]; ok {
		if invert {
			return m[1]
		}
		return m[0]
	}
	var signedTable = map[string][2]string{
		"<":  {"JRSLT", "JRSGE"},
		"<=": {"JRSLE", "JRSGT"},
		">":  {"JRSGT", "JRSLE"},
		">=": {"JRSGE", "JRSLT"},
	}
	var unsignedTable = map[string][2]string{
		"<":  {"JRULT", "JRUGE"},
		"<=": {"JRULE", "JRUGT"},
		">":  {"JRUGT", "JRULE"},
		">=": {"JRUGE", "JRULT"},
	}
	t := unsignedTable
	if signed {
		t = signedTable
	}
	m := t[op]
	if invert {
		return m[1]
	}
	return m[0]
}

func (e *Engine) stm8Call(r *ir.Record) error {
	if len(r.Args) == 0 {
		return berr.Internal(berr.EIntErr, "CALL requires a target at line %d", r.Line)
	}
	return e.emitCall(r.Args[0], r.Args[1:])
}

func (e *Engine) stm8Retval(r *ir.Record) error {
	if len(r.Args) == 0 {
		return nil
	}
	v, err := e.load(r.Args[0], r.Args[0].Type, KindRegister, KindImmVal, KindMemRef)
	if err != nil {
		return err
	}
	e.retvalActive = true
	e.retvalType = r.Args[0].Type
	e.out.emitf("LD A,%s", v.Text)
	return nil
}

func (e *Engine) stm8Ret(r *ir.Record) error {
	if e.curFunc != nil {
		for _, name := range e.curFunc.ArgNames {
			delete(e.localOffset, name)
		}
	}
	if e.cfg != nil && e.cfg.MemModel == session.MemoryModelLarge {
		e.out.emit("RETF")
	} else {
		e.out.emit("RET")
	}
	e.retvalActive = false
	e.curFunc = nil
	return nil
}

// --- data tables / interrupts --------------------------------------------

func (e *Engine) stm8DataTable(r *ir.Record) error {
	switch r.Op {
	case "DAT":
		for _, a := range r.Args {
			e.out.emitf(".CONST DB %s", literalText(a))
		}
	case "READ", "RST":
		e.out.emitf("; %s", r.Op)
	}
	return nil
}

func (e *Engine) stm8Int(r *ir.Record) error {
	if len(r.Args) < 2 {
		return berr.Internal(berr.EIntErr, "INT requires (vector, handler) at line %d", r.Line)
	}
	e.out.emitf(".INT %s,%s", r.Args[0].Name, r.Args[1].Name)
	return nil
}

func literalText(a *ir.Arg) string {
	if a.Immediate {
		return a.Literal
	}
	return a.Name
}

func (e *Engine) scanInlineAsmLabels(text string) {
	for _, label := range e.asmScanner.Labels(text) {
		e.out.require(label)
	}
}
