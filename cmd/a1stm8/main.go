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

// Command a1stm8 is the STM8 assembler (spec §4.6-§4.8): it lays out
// HEAP/STACK/DATA/CODE INIT/CONST/CODE sections, selects and encodes
// one instruction per source line against the STM8 table, resolves
// PC-relative overflow by re-emitting through the extended table, and
// writes the result as Intel HEX.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/b1stm8/toolchain/internal/asmsrc"
	"github.com/b1stm8/toolchain/internal/berr"
	"github.com/b1stm8/toolchain/internal/hexwriter"
	"github.com/b1stm8/toolchain/internal/report"
	"github.com/b1stm8/toolchain/internal/section"
	"github.com/b1stm8/toolchain/internal/session"
	"github.com/b1stm8/toolchain/internal/stm8isa"
)

const version = "a1stm8 (b1stm8/toolchain)"

// maxFixedPointPasses bounds the layout/select/re-emit loop (spec
// §4.7 step 3). Every pass either leaves every instruction's size
// unchanged (converged) or grows one flagged via ReplaceSet, which
// only ever happens once per instruction, so this is far more than
// any real program needs.
const maxFixedPointPasses = 8

var cfg = session.Default()

var (
	flagDescribe  bool
	flagFixAddr   bool
	flagLibDir    string
	flagMCU       string
	flagMemLarge  bool
	flagMemUsage  bool
	flagOutput    string
	flagRAMSize   int
	flagRAMStart  int
	flagROMSize   int
	flagROMStart  int
	flagTarget    string
	flagVersion   bool
)

var command = &cobra.Command{
	Use:  "a1stm8 file.s [file2.s ...]",
	Args: cobra.MinimumNArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagVersion {
			fmt.Println(version)
			return nil
		}
		if len(args) == 0 {
			return fmt.Errorf("a1stm8: at least one assembly file is required")
		}
		if flagTarget == "" {
			flagTarget = "STM8"
		}

		cfg.MCU = flagMCU
		cfg.Target = flagTarget
		cfg.RAMSize = flagRAMSize
		cfg.RAMStart = flagRAMStart
		cfg.ROMSize = flagROMSize
		cfg.ROMStart = flagROMStart
		cfg.LibDir = flagLibDir
		cfg.PrintDescriptions = flagDescribe
		cfg.FixResidualStack = flagFixAddr
		cfg.PrintMemoryUsage = flagMemUsage
		cfg.PrintVersion = flagVersion
		if flagMemLarge {
			cfg.MemModel = session.MemoryModelLarge
		}

		var lines []sourceLine
		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				return berr.Resource(berr.AEFOpen, path, 0, "opening %s: %v", path, err)
			}
			for i, text := range strings.Split(string(data), "\n") {
				lines = append(lines, sourceLine{file: filepath.Base(path), line: i + 1, text: stripComment(text)})
			}
		}

		asm := newAssembler(cfg)
		if err := asm.classify(lines); err != nil {
			return err
		}
		layout, err := asm.assemble()
		if err != nil {
			return err
		}

		outPath := flagOutput
		if outPath == "" {
			outPath = "out.hex"
		}
		f, err := os.Create(outPath)
		if err != nil {
			return berr.Resource(berr.AEFOpen, outPath, 0, "creating %s: %v", outPath, err)
		}
		defer f.Close()
		if err := asm.writeHex(f); err != nil {
			return berr.Resource(berr.AEFWrite, outPath, 0, "writing %s: %v", outPath, err)
		}

		if cfg.PrintMemoryUsage {
			if err := report.MemoryUsage(os.Stdout, layout, cfg.RAMSize, cfg.ROMSize); err != nil {
				return berr.Resource(berr.AEFWrite, "<stdout>", 0, "writing memory usage report: %v", err)
			}
		}
		if cfg.PrintDescriptions {
			for _, w := range asm.warnings.All() {
				fmt.Fprintln(os.Stderr, w.String())
			}
		}
		return nil
	},
}

func init() {
	command.Flags().BoolVarP(&flagDescribe, "describe", "d", false, "print warning descriptions")
	command.Flags().BoolVarP(&flagFixAddr, "fix", "f", false, "re-emit PC-relative overflows via the extended table")
	command.Flags().StringVarP(&flagLibDir, "lib", "l", ".", "library root directory")
	command.Flags().StringVarP(&flagMCU, "mcu", "m", "STM8S103F3", "target MCU name")
	command.Flags().BoolVar(&flagMemLarge, "ml", false, "large memory model")
	command.Flags().BoolVar(&flagMemUsage, "mu", false, "print memory usage")
	command.Flags().StringVarP(&flagOutput, "output", "o", "", "output Intel HEX path")
	command.Flags().IntVar(&flagRAMSize, "ram_size", 1024, "RAM size in bytes")
	command.Flags().IntVar(&flagRAMStart, "ram_start", 0, "RAM base address")
	command.Flags().IntVar(&flagROMSize, "rom_size", 8192, "ROM size in bytes")
	command.Flags().IntVar(&flagROMStart, "rom_start", 0x8000, "ROM base address")
	command.Flags().StringVarP(&flagTarget, "target", "t", "", "target architecture (only STM8)")
	command.Flags().BoolVarP(&flagVersion, "version", "v", false, "print version")
}

func main() {
	if err := command.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if berrErr, ok := err.(*berr.Error); ok {
			os.Exit(berrErr.Phase())
		}
		os.Exit(1)
	}
}

// sourceLine is one input line tagged with its origin, after its
// trailing ";"-comment has been stripped.
type sourceLine struct {
	file string
	line int
	text string
}

func stripComment(text string) string {
	if i := strings.IndexByte(text, ';'); i >= 0 {
		return text[:i]
	}
	return text
}

// itemKind discriminates the parsed stream of surviving lines (after
// conditional-compilation filtering).
type itemKind int

const (
	itemLabel itemKind = iota
	itemData
	itemInst
)

// item is one label, data block, or instruction, in source order
// across all sections. Only
// instructions have a size that can change across fixed-point passes.
type item struct {
	kind itemKind
	file string
	line int

	label string

	secKind section.Kind // the section active when this item was emitted, for every kind
	bytes   []byte       // final encoded bytes once resolved; nil for itemInst until encode

	mnemonic string
	shapes   []string // one signature shape per operand, e.g. "V", "(V)", "(V,X)", "A"
	operands []asmsrc.Expr
	bitHash  bool // bit-index operand (second arg of BSET/BRES/BTJT/BTJF) carried a leading '#'
	pcRel    bool

	size int
}

// contrib is one HEAP/STACK reservation recorded during classify, kept
// separate from section.Manager so it can be replayed into a fresh
// Manager on every fixed-point pass without double-counting.
type contrib struct {
	kind  section.Kind
	file  string
	line  int
	bytes int
}

// assembler holds everything accumulated while classifying and laying
// out one assembler run.
type assembler struct {
	cfg *session.Config

	defines  map[string]bool
	cond     asmsrc.CondStack
	warnings berr.Warnings

	heapStack []contrib
	items     []item // every surviving item, in file order, across all sections

	labelAddrs map[string]int64
	layout     *section.Layout
}

func newAssembler(cfg *session.Config) *assembler {
	return &assembler{
		cfg:     cfg,
		defines: make(map[string]bool),
	}
}

type setDefines map[string]bool

func (s setDefines) Defined(name string) bool { return s[strings.ToUpper(name)] }

// classify runs conditional-compilation filtering and splits every
// surviving line into a label, a data directive, a section directive,
// or an instruction.
func (a *assembler) classify(lines []sourceLine) error {
	var curSection section.Kind = section.Code

	var pendingLabel string
	flush := func(it item) {
		it.secKind = curSection
		if pendingLabel != "" {
			a.items = append(a.items, item{kind: itemLabel, label: pendingLabel, file: it.file, line: it.line, secKind: curSection})
			pendingLabel = ""
		}
		a.items = append(a.items, it)
	}

	for _, ln := range lines {
		text := strings.TrimSpace(ln.text)
		if text == "" {
			continue
		}

		if name, ok := asmsrc.IsLabelLine(ln.text); ok {
			if !a.cond.Active() {
				continue
			}
			pendingLabel = name
			continue
		}

		if kw, ok := asmsrc.IsDirectiveLine(ln.text); ok {
			rest := strings.TrimSpace(text[strings.IndexByte(text, '.')+1+len(kw):])
			switch kw {
			case "IF":
				cond, err := a.evalCond(ln, rest)
				if err != nil {
					return err
				}
				a.cond.If(cond)
				continue
			case "ELIF":
				cond, err := a.evalCond(ln, rest)
				if err != nil {
					return err
				}
				if err := a.cond.Elif(cond); err != nil {
					return berr.Syntax(berr.AEErrDir, ln.file, ln.line, "%v", err)
				}
				continue
			case "ELSE":
				if err := a.cond.Else(); err != nil {
					return berr.Syntax(berr.AEErrDir, ln.file, ln.line, "%v", err)
				}
				continue
			case "ENDIF":
				if err := a.cond.Endif(); err != nil {
					return berr.Syntax(berr.AEErrDir, ln.file, ln.line, "%v", err)
				}
				continue
			case "DEF":
				if !a.cond.Active() {
					continue
				}
				a.defines[strings.ToUpper(strings.TrimSpace(rest))] = true
				continue
			case "ERROR":
				if !a.cond.Active() {
					continue
				}
				return berr.Syntax(berr.AEErrDir, ln.file, ln.line, ".ERROR: %s", rest)
			case "STACK", "HEAP":
				if !a.cond.Active() {
					continue
				}
				n, err := a.constExpr(ln, rest)
				if err != nil {
					return err
				}
				kind := section.Stack
				if kw == "HEAP" {
					kind = section.Heap
				}
				a.heapStack = append(a.heapStack, contrib{kind: kind, file: ln.file, line: ln.line, bytes: int(n)})
				continue
			case "DATA":
				if !a.cond.Active() {
					continue
				}
				if strings.EqualFold(strings.TrimSpace(rest), "PAGE0") {
					curSection = section.DataPage0
				} else {
					curSection = section.Data
				}
				continue
			case "CONST":
				if !a.cond.Active() {
					continue
				}
				curSection = section.Const
				continue
			case "CODE":
				if !a.cond.Active() {
					continue
				}
				if strings.EqualFold(strings.TrimSpace(rest), "INIT") {
					curSection = section.CodeInit
				} else {
					curSection = section.Code
				}
				continue
			}
		}

		if !a.cond.Active() {
			continue
		}

		if dataKw, dataArgs, ok := matchDataDirective(text); ok {
			_, bytes, err := a.encodeDataDirective(ln, dataKw, dataArgs)
			if err != nil {
				return err
			}
			flush(item{kind: itemData, file: ln.file, line: ln.line, bytes: bytes})
			continue
		}

		// Everything else is an instruction line, and only CODE/CODE
		// INIT sections carry instructions.
		it, err := a.parseInstruction(ln, text)
		if err != nil {
			return err
		}
		flush(it)
	}
	if pendingLabel != "" {
		a.items = append(a.items, item{kind: itemLabel, label: pendingLabel, secKind: curSection})
	}
	return nil
}

func (a *assembler) evalCond(ln sourceLine, text string) (bool, error) {
	cond, err := asmsrc.EvalCond(ln.line, text, setDefines(a.defines), a.resolverWithoutLabels())
	if err != nil {
		return false, berr.Syntax(berr.AESyntax, ln.file, ln.line, "%v", err)
	}
	return cond, nil
}

// constExpr evaluates a HEAP/STACK size expression, which must not
// reference forward labels (it is resolved before any address exists).
func (a *assembler) constExpr(ln sourceLine, text string) (int64, error) {
	toks, err := asmsrc.Tokenize(ln.line, text)
	if err != nil {
		return 0, berr.Syntax(berr.AESyntax, ln.file, ln.line, "%v", err)
	}
	expr, err := asmsrc.NewExprParser(toks).ParseExpr()
	if err != nil {
		return 0, berr.Syntax(berr.AESyntax, ln.file, ln.line, "%v", err)
	}
	v, err := expr.Eval(a.resolverWithoutLabels())
	if err != nil {
		return 0, berr.Syntax(berr.AEUnresSymb, ln.file, ln.line, "%v", err)
	}
	return v, nil
}

// resolverWithoutLabels resolves only well-known section symbols; used
// before layout exists (conditional guards, HEAP/STACK sizes).
func (a *assembler) resolverWithoutLabels() asmsrc.SymbolResolver {
	return mapResolver{}
}

type mapResolver map[string]int64

func (m mapResolver) Resolve(name string) (int64, bool) {
	v, ok := m[strings.ToUpper(name)]
	return v, ok
}

var dataDirectives = map[string]bool{"BYTE": true, "WORD": true, "ASCII": true, "ASCIZ": true}

// matchDataDirective reports whether text opens with a .BYTE/.WORD/
// .ASCII/.ASCIZ directive keyword (not covered by asmsrc's
// IsDirectiveLine, which only classifies section/conditional
// keywords) and returns its keyword and argument text.
func matchDataDirective(text string) (kw, rest string, ok bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, ".") {
		return "", "", false
	}
	body := trimmed[1:]
	for keyword := range dataDirectives {
		if strings.HasPrefix(strings.ToUpper(body), keyword) {
			after := body[len(keyword):]
			if after == "" || after[0] == ' ' || after[0] == '\t' {
				return keyword, strings.TrimSpace(after), true
			}
		}
	}
	return "", "", false
}

func (a *assembler) encodeDataDirective(ln sourceLine, kw, args string) (int, []byte, error) {
	switch kw {
	case "ASCII", "ASCIZ":
		toks, err := asmsrc.Tokenize(ln.line, args)
		if err != nil || len(toks) == 0 || toks[0].Kind != asmsrc.KindString {
			return 0, nil, berr.Syntax(berr.AESyntax, ln.file, ln.line, "expected a string literal after .%s", kw)
		}
		b := []byte(toks[0].Text)
		if kw == "ASCIZ" {
			b = append(b, 0)
		}
		return len(b), b, nil
	case "BYTE", "WORD":
		toks, err := asmsrc.Tokenize(ln.line, args)
		if err != nil {
			return 0, nil, berr.Syntax(berr.AESyntax, ln.file, ln.line, "%v", err)
		}
		groups := asmsrc.SplitArgs(toks)
		var out []byte
		for _, g := range groups {
			expr, err := asmsrc.NewExprParser(g).ParseExpr()
			if err != nil {
				return 0, nil, berr.Syntax(berr.AESyntax, ln.file, ln.line, "%v", err)
			}
			v, err := expr.Eval(a.resolverWithoutLabels())
			if err != nil {
				return 0, nil, berr.Syntax(berr.AEUnresSymb, ln.file, ln.line, "%v", err)
			}
			if kw == "BYTE" {
				out = append(out, byte(v))
			} else {
				out = append(out, byte(v), byte(v>>8))
			}
		}
		return len(out), out, nil
	}
	return 0, nil, berr.Internal(berr.AEInvInst, "unhandled data directive .%s", kw)
}

// bitMnemonics take a "#"-prefixed bit-index operand as their second
// argument (spec §4.7's bit-field instruction family).
var bitMnemonics = map[string]bool{"BSET": true, "BRES": true, "BTJT": true, "BTJF": true, "BCCM": true, "BCPL": true}

// parseInstruction splits "MNEMONIC op1,op2,..." into a mnemonic and
// its operand expressions, classifying each operand's addressing-mode
// shape so Select can be given the matching signature string later
// (addresses aren't known yet, so evaluation is deferred to assemble).
func (a *assembler) parseInstruction(ln sourceLine, text string) (item, error) {
	fields := strings.SplitN(text, " ", 2)
	mnemonic := strings.ToUpper(strings.TrimSpace(fields[0]))
	var operandText string
	if len(fields) == 2 {
		operandText = strings.TrimSpace(fields[1])
	}

	var shapes []string
	var exprs []asmsrc.Expr
	bitHash := false
	if operandText != "" {
		for i, raw := range splitTopLevelComma(operandText) {
			raw = strings.TrimSpace(raw)
			shape, inner, err := classifyOperand(raw)
			if err != nil {
				return item{}, berr.Syntax(berr.AESyntax, ln.file, ln.line, "%v", err)
			}
			shapes = append(shapes, shape)
			if inner == "" {
				continue
			}
			if bitMnemonics[mnemonic] && i == 1 && strings.HasPrefix(inner, "#") {
				inner = strings.TrimSpace(inner[1:])
				bitHash = true
			}
			toks, err := asmsrc.Tokenize(ln.line, inner)
			if err != nil {
				return item{}, berr.Syntax(berr.AESyntax, ln.file, ln.line, "%v", err)
			}
			expr, err := asmsrc.NewExprParser(toks).ParseExpr()
			if err != nil {
				return item{}, berr.Syntax(berr.AESyntax, ln.file, ln.line, "%v", err)
			}
			exprs = append(exprs, expr)
		}
	}

	pcRel := isBranchMnemonic(mnemonic)
	return item{
		kind:     itemInst,
		file:     ln.file,
		line:     ln.line,
		mnemonic: mnemonic,
		shapes:   shapes,
		operands: exprs,
		bitHash:  bitHash,
		pcRel:    pcRel,
		size:     signatureMaxSize(mnemonic, shapes),
	}, nil
}

func isBranchMnemonic(m string) bool {
	switch m {
	case "JRA", "JREQ", "JRNE", "JRULT", "JRUGE", "JRULE", "JRUGT", "JRSLT", "JRSGE", "JRSLE", "JRSGT", "CALLR":
		return true
	}
	return false
}

// classifyOperand maps one raw operand substring to its signature
// shape ("A", "X", "(V)", "(V,X)", "(V,SP)", "(X)", "(SP)", "V") and
// the inner expression text (empty for bare register shapes).
func classifyOperand(raw string) (shape, inner string, err error) {
	switch strings.ToUpper(raw) {
	case "A", "X", "Y", "SP":
		return strings.ToUpper(raw), "", nil
	}
	if strings.HasPrefix(raw, "(") && strings.HasSuffix(raw, ")") {
		body := strings.TrimSpace(raw[1 : len(raw)-1])
		switch strings.ToUpper(body) {
		case "X":
			return "(X)", "", nil
		case "SP":
			return "(SP)", "", nil
		}
		parts := splitTopLevelComma(body)
		switch len(parts) {
		case 1:
			return "(V)", strings.TrimSpace(parts[0]), nil
		case 2:
			switch strings.ToUpper(strings.TrimSpace(parts[1])) {
			case "X":
				return "(V,X)", strings.TrimSpace(parts[0]), nil
			case "SP":
				return "(V,SP)", strings.TrimSpace(parts[0]), nil
			}
			return "", "", fmt.Errorf("unrecognized indexed operand %q", raw)
		default:
			return "", "", fmt.Errorf("unrecognized operand %q", raw)
		}
	}
	return "V", raw, nil
}

func splitTopLevelComma(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}

// buildSignature joins a mnemonic with its operand shapes the way
// stm8isa's table keys them: the first shape concatenates directly,
// later ones are comma-joined, and a bit-index operand's leading '#'
// is folded back in once it is known which position carried it.
func buildSignature(mnemonic string, shapes []string, bitHash bool) string {
	var sb strings.Builder
	sb.WriteString(mnemonic)
	for i, s := range shapes {
		if bitHash && i == 1 {
			s = "#" + s
		}
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(s)
	}
	return sb.String()
}

// signatureMaxSize seeds an instruction's initial size guess with the
// widest registered candidate for its shape, so the fixed-point loop
// starts from a safe upper bound and only ever shrinks (or, for a
// PC-relative overflow, grows exactly once per flagged instruction).
func signatureMaxSize(mnemonic string, shapes []string) int {
	sig := buildSignature(mnemonic, shapes, false)
	sigHash := buildSignature(mnemonic, shapes, true)
	max := 0
	for _, s := range []string{sig, sigHash} {
		for _, c := range stm8isa.Candidates(s) {
			if c.Size() > max {
				max = c.Size()
			}
		}
	}
	if max == 0 {
		max = 4 // unknown signature: safest width until Select reports the real error
	}
	return max
}

// assemble runs the fixed-point layout/select/re-emit loop (spec
// §4.7) to completion, then returns the finished Layout.
func (a *assembler) assemble() (*section.Layout, error) {
	var layout *section.Layout
	for pass := 0; pass < maxFixedPointPasses; pass++ {
		totalCode := 0
		for _, it := range a.items {
			if it.kind == itemInst {
				totalCode += it.size
			}
		}

		var err error
		layout, err = a.finalizeWithCodeSize(totalCode)
		if err != nil {
			return nil, err
		}

		cursors := map[section.Kind]int64{}
		for kind, base := range layout.Bases {
			cursors[kind] = int64(base)
		}
		labelAddrs := map[string]int64{}
		for k, v := range layout.Symbols() {
			labelAddrs[k] = v
		}
		for i := range a.items {
			it := &a.items[i]
			switch it.kind {
			case itemLabel:
				labelAddrs[it.label] = cursors[it.secKind]
			case itemData:
				cursors[it.secKind] += int64(len(it.bytes))
			case itemInst:
				cursors[it.secKind] += int64(it.size)
			}
		}

		changed := false
		for kind, base := range layout.Bases {
			cursors[kind] = int64(base)
		}
		for i := range a.items {
			it := &a.items[i]
			switch it.kind {
			case itemData:
				cursors[it.secKind] += int64(len(it.bytes))
			case itemInst:
				newSize, err := a.resolveInstruction(it, cursors[it.secKind], labelAddrs, i)
				if err != nil {
					return nil, err
				}
				if newSize != it.size {
					changed = true
					it.size = newSize
				}
				cursors[it.secKind] += int64(it.size)
			}
		}
		if !changed {
			a.labelAddrs = labelAddrs
			a.layout = layout
			return layout, nil
		}
	}
	return nil, berr.Internal(berr.AEWSecSize, "fixed-point layout did not converge after %d passes", maxFixedPointPasses)
}

// finalizeWithCodeSize re-runs section layout with the current CODE
// size guess; HEAP/STACK/DATA/CONST contributions were already
// recorded once during classify and don't change across passes.
func (a *assembler) finalizeWithCodeSize(codeSize int) (*section.Layout, error) {
	fresh := section.New(a.cfg.RAMStart, a.cfg.RAMSize, a.cfg.ROMStart, a.cfg.ROMSize)
	for _, c := range a.heapStack {
		fresh.Add(c.kind, c.file, c.line, c.bytes)
	}
	for _, it := range a.items {
		if it.kind == itemData {
			fresh.Add(it.secKind, it.file, it.line, len(it.bytes))
		}
	}
	fresh.Add(section.Code, "<code>", 0, codeSize)
	layout, err := fresh.Finalize()
	if err != nil {
		if be, ok := err.(*section.BoundsError); ok {
			return nil, berr.Range(berr.AEWSecSize, "", 0, "%v", be)
		}
		return nil, err
	}
	layout.SetRetAddrSize(a.cfg.RetAddrSize())
	for _, w := range layout.Warnings {
		a.warnings.Add(berr.WManyStkSect, "", 0, "%s", w)
	}
	return layout, nil
}

// resolveInstruction evaluates it's operands against labelAddrs,
// selects the cheapest fitting candidate, and returns the resulting
// byte size. A PC-relative overflow expands the instruction in place
// via ExtendedTable and flags idx in the session's ReplaceSet so later
// passes keep using the widened form.
func (a *assembler) resolveInstruction(it *item, addr int64, labelAddrs map[string]int64, idx int) (int, error) {
	resolver := labelResolver(labelAddrs)
	mnemonic := it.mnemonic

	values := make([]int64, 0, len(it.operands))
	for i, e := range it.operands {
		v, err := e.Eval(resolver)
		if err != nil {
			return 0, berr.Syntax(berr.AEUnresSymb, it.file, it.line, "%v", err)
		}
		if it.pcRel && i == len(it.operands)-1 {
			v = v - (addr + int64(it.size))
		}
		values = append(values, v)
	}

	if a.cfg.ShouldReplace(idx) {
		return a.expandOverflowedBranch(it, values)
	}

	sig := buildSignature(mnemonic, it.shapes, it.bitHash)
	_, bytes, err := stm8isa.Select(sig, values)
	if err != nil {
		var overflow *stm8isa.PCRelOverflowError
		if ok := asOverflow(err, &overflow); ok {
			if !a.cfg.FixResidualStack {
				return 0, berr.Range(berr.AERelOutRange, it.file, it.line, "%v", err)
			}
			a.cfg.AddInstToReplace(idx)
			return a.expandOverflowedBranch(it, values)
		}
		return 0, berr.Syntax(berr.AEInvInst, it.file, it.line, "%v", err)
	}
	it.bytes = bytes
	return len(bytes), nil
}

func asOverflow(err error, target **stm8isa.PCRelOverflowError) bool {
	if e, ok := err.(*stm8isa.PCRelOverflowError); ok {
		*target = e
		return true
	}
	return false
}

// expandOverflowedBranch replaces a too-far conditional branch with
// its inverted form jumping over an unconditional long jump (small
// model) or upgrades the plain control-transfer mnemonic to its far
// counterpart (large model), per spec §4.7 step 3.
func (a *assembler) expandOverflowedBranch(it *item, values []int64) (int, error) {
	names, ok := stm8isa.ExtendedTable(it.mnemonic, a.cfg.MemModel)
	if !ok {
		return 0, berr.Range(berr.AERelOutRange, it.file, it.line, "%s: no extended-table replacement available", it.mnemonic)
	}
	if len(names) == 1 {
		sig := buildSignature(names[0], it.shapes, it.bitHash)
		_, bytes, err := stm8isa.Select(sig, values)
		if err != nil {
			return 0, berr.Range(berr.AERelOutRange, it.file, it.line, "%v", err)
		}
		it.mnemonic = names[0]
		it.bytes = bytes
		return len(bytes), nil
	}
	// Two-mnemonic form: invert(cond) over a JP, e.g. JREQ -> JRNE +3; JP target.
	invSig := buildSignature(names[0], []string{"V"}, false)
	_, invBytes, err := stm8isa.Select(invSig, []int64{3})
	if err != nil {
		return 0, berr.Internal(berr.AERelOutRange, "inverted branch skip distance did not encode: %v", err)
	}
	jpSig := buildSignature(names[1], []string{"V"}, false)
	_, jpBytes, err := stm8isa.Select(jpSig, values)
	if err != nil {
		return 0, berr.Range(berr.AERelOutRange, it.file, it.line, "%v", err)
	}
	it.bytes = append(append([]byte(nil), invBytes...), jpBytes...)
	return len(it.bytes), nil
}

type labelResolver map[string]int64

func (m labelResolver) Resolve(name string) (int64, bool) {
	v, ok := m[name]
	if ok {
		return v, ok
	}
	v, ok = m[strings.ToUpper(name)]
	return v, ok
}

// writeHex emits every CODE-INIT, CONST, and CODE byte as Intel HEX.
// Each ROM section is its own contiguous run starting at its own base
// address (section.Manager lays CODE INIT, CONST, and CODE back to
// back in that order with no gaps between same-kind items), so bytes
// are bucketed by section and written one run per non-empty bucket
// rather than assumed contiguous across section boundaries.
func (a *assembler) writeHex(w *os.File) error {
	hw := hexwriter.New(w)
	buckets := map[section.Kind][]byte{}
	for _, it := range a.items {
		switch it.kind {
		case itemData:
			if it.secKind == section.Const || it.secKind == section.CodeInit {
				buckets[it.secKind] = append(buckets[it.secKind], it.bytes...)
			}
		case itemInst:
			buckets[it.secKind] = append(buckets[it.secKind], it.bytes...)
		}
	}
	for _, kind := range []section.Kind{section.CodeInit, section.Const, section.Code} {
		b := buckets[kind]
		if len(b) == 0 {
			continue
		}
		if err := hw.SetAddress(uint32(a.layout.Bases[kind])); err != nil {
			return err
		}
		if _, err := hw.Write(b); err != nil {
			return err
		}
	}
	return hw.Close()
}
