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
package ir

import (
	"strconv"
	"strings"

	"github.com/b1stm8/toolchain/internal/berr"
	"github.com/b1stm8/toolchain/internal/session"
	"github.com/b1stm8/toolchain/internal/symtab"
)

// predefinedConstants are names DEF may not redeclare.
var predefinedConstants = map[string]bool{
	"TRUE": true, "FALSE": true, "PI": true,
}

// Resolve runs the three semantic passes of spec §4.2 over records and
// returns the populated Program. records is consumed in source order;
// Resolve never re-reads the IR text, only the already-parsed tree.
func Resolve(records []Record, cfg *session.Config) (*Program, error) {
	prog := &Program{
		Records:   records,
		Vars:      symtab.NewTable(),
		Strings:   symtab.NewStringTable(),
		UserFuncs: make(map[string]*UserFunc),
	}

	// Pass 1: user function signatures.
	if err := collectUserFuncs(records, prog); err != nil {
		return nil, err
	}

	// Pass 2: local variables (LA/LF).
	if err := collectLocals(records, prog); err != nil {
		return nil, err
	}

	// Pass 3: resolve every argument tree (GA/MA/GF, subscripts, usage
	// type propagation, default-argument fill); also tallies GACount
	// for the fixed/dynamic array rule.
	if err := resolveArgs(records, prog, cfg); err != nil {
		return nil, err
	}

	// Fixed/dynamic sizing is only decidable once every GA has been
	// seen, so finalize it in its own pass over the now-complete table.
	for _, name := range prog.Vars.Names() {
		v := prog.Vars.Lookup(name)
		if v.IsArray() {
			finalizeArraySizing(v, cfg)
		}
	}

	// String interning happens last, over the full, resolved tree.
	internStrings(records, prog)

	return prog, nil
}

func collectUserFuncs(records []Record, prog *Program) error {
	for _, r := range records {
		if r.Kind != RecordCommand || r.Op != "DEF" || len(r.Args) == 0 {
			continue
		}
		desc := r.Args[0]
		if predefinedConstants[strings.ToUpper(desc.Name)] {
			return berr.Syntax(berr.EUFnRedef, "", r.Line, "DEF %s clashes with a predefined constant", desc.Name)
		}
		if _, exists := prog.UserFuncs[desc.Name]; exists {
			return berr.Syntax(berr.EUFnRedef, "", r.Line, "function %s redefined", desc.Name)
		}
		uf := &UserFunc{Name: desc.Name, RetType: desc.Type, Namespace: r.Namespace, FileID: r.FileID, Line: r.Line}
		for _, p := range desc.Group(0) {
			uf.ArgNames = append(uf.ArgNames, p.Name)
			uf.ArgTypes = append(uf.ArgTypes, p.Type)
			def := ""
			if g := p.Group(0); len(g) > 0 {
				def = g[0].Literal
			}
			uf.Defaults = append(uf.Defaults, def)
		}
		prog.UserFuncs[desc.Name] = uf
	}
	return nil
}

func collectLocals(records []Record, prog *Program) error {
	for _, r := range records {
		if r.Kind != RecordCommand || len(r.Args) == 0 {
			continue
		}
		switch r.Op {
		case "LA":
			name := r.Args[0]
			v := prog.Vars.Declare(name.Name, name.Type, r.FileID, r.Line)
			v.Storage = symtab.StorageStackLocal
			if existing := v.Type; existing != symtab.TypeUnknown && name.Type != symtab.TypeUnknown && existing != name.Type {
				return berr.Syntax(berr.ELclRedef, "", r.Line, "local %s redeclared with a conflicting type", name.Name)
			}
			v.Dims = name.GroupCount()
		case "LF":
			name := r.Args[0]
			if prog.Vars.Lookup(name.Name) == nil {
				return berr.Syntax(berr.EVarRedef, "", r.Line, "LF of undeclared local %s", name.Name)
			}
		}
	}
	return nil
}

func resolveArgs(records []Record, prog *Program, cfg *session.Config) error {
	for i := range records {
		r := &records[i]
		if r.Kind != RecordCommand {
			continue
		}
		switch r.Op {
		case "GA", "GF":
			if len(r.Args) == 0 {
				continue
			}
			name := r.Args[0]
			v := prog.Vars.Declare(name.Name, name.Type, r.FileID, r.Line)
			if r.Op == "GF" {
				continue
			}
			if v.Storage != symtab.StorageStackLocal {
				v.Storage = symtab.StorageGlobalRAM
			}
			if name.Type != symtab.TypeUnknown {
				v.Type = name.Type
			}
			if err := applyGABounds(v, name, cfg, r.Line); err != nil {
				return err
			}
		case "MA":
			if len(r.Args) == 0 {
				continue
			}
			name := r.Args[0]
			v := prog.Vars.Declare(name.Name, name.Type, r.FileID, r.Line)
			v.Storage = symtab.StorageFixedAddress
			if name.Type != symtab.TypeUnknown {
				v.Type = name.Type
			}
			group := name.Group(0)
			for _, elt := range group {
				switch {
				case elt.Immediate:
					if n, err := parseIntLiteral(elt.Literal); err == nil {
						v.Address = n
					}
				case elt.Name == "V":
					v.Volatile = true
				case elt.Name == "S":
					// static: no further state needed beyond storage kind
				case elt.Name == "C":
					v.Const = true
				default:
					v.AddressSym = elt.Name
				}
			}
		}

		// Generic walk: propagate usage types back into the table and
		// check subscript arity against every reference to a known
		// array variable. The declaration commands' own name argument
		// was already special-cased above (its trailing groups are
		// per-dimension bounds, not a subscript list), so it is
		// excluded here to avoid a spurious arity mismatch.
		args := r.Args
		switch r.Op {
		case "GA", "GF", "MA", "LA", "LF":
			if len(args) > 0 {
				args = args[1:]
			}
		}
		for _, a := range args {
			if err := walkArg(a, prog, r.Line); err != nil {
				return err
			}
		}
	}
	return nil
}

func walkArg(a *Arg, prog *Program, line int) error {
	if a == nil || a.Immediate {
		return nil
	}
	if v := prog.Vars.Lookup(a.Name); v != nil {
		if v.Type == symtab.TypeUnknown && a.Type != symtab.TypeUnknown {
			v.Type = a.Type
		}
		if v.IsArray() && a.GroupCount() > 0 {
			if got := len(a.Group(0)); got != v.Dims {
				return berr.Range(berr.ESubscriptOutOfRange, "", line,
					"%s: subscript arity %d does not match %d declared dimensions", a.Name, got, v.Dims)
			}
		}
	}
	for _, group := range a.Args {
		for _, sub := range group.Args {
			if err := walkArg(sub, prog, line); err != nil {
				return err
			}
		}
	}
	return nil
}

func applyGABounds(v *symtab.Variable, name *Arg, cfg *session.Config, line int) error {
	v.GACount++
	groups := name.GroupCount()
	allLiteral := true
	bounds := make([]symtab.Bound, 0, groups)
	for gi := 0; gi < groups; gi++ {
		elts := name.Group(gi)
		if len(elts) != 2 {
			return berr.Syntax(berr.ESyntax, "", line, "%s: GA bound group %d must have (lower,upper)", v.Name, gi)
		}
		lo, loOK := tryLiteral(elts[0])
		hi, hiOK := tryLiteral(elts[1])
		if !loOK || !hiOK {
			allLiteral = false
		}
		bounds = append(bounds, symtab.Bound{Lower: lo, Upper: hi})
	}
	if groups > 0 {
		v.Dims = groups
		v.Bounds = bounds
	}
	if !allLiteral {
		v.ExplicitLiteralGA = false
	} else if v.GACount == 1 {
		v.ExplicitLiteralGA = true
	}
	_ = cfg
	return nil
}

func tryLiteral(a *Arg) (int, bool) {
	if !a.Immediate {
		return 0, false
	}
	n, err := parseIntLiteral(a.Literal)
	return n, err == nil
}

func parseIntLiteral(s string) (int, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") || strings.HasPrefix(s, "-0x") {
		neg := strings.HasPrefix(s, "-")
		t := strings.TrimPrefix(s, "-")
		n, err := strconv.ParseInt(t[2:], 16, 64)
		if err != nil {
			return 0, err
		}
		if neg {
			n = -n
		}
		return int(n), nil
	}
	n, err := strconv.Atoi(s)
	return n, err
}

// finalizeArraySizing applies spec §4.2's fixed-vs-dynamic rule:
// fixed iff exactly one literal-subscript GA, or EXPLICIT option with
// a single GA, or no GA at all (default bounds [base..10]).
func finalizeArraySizing(v *symtab.Variable, cfg *session.Config) {
	base := 0
	if cfg != nil && cfg.ArrayOpt == session.ArrayOptionBase1 {
		base = 1
	}
	switch {
	case v.GACount == 0:
		v.FixedSize = true
		if len(v.Bounds) == 0 {
			v.Bounds = make([]symtab.Bound, v.Dims)
			for i := range v.Bounds {
				v.Bounds[i] = symtab.Bound{Lower: base, Upper: 10}
			}
		}
	case v.GACount == 1 && v.ExplicitLiteralGA:
		v.FixedSize = true
	case v.GACount == 1 && cfg != nil && cfg.ArrayOpt == session.ArrayOptionExplicit:
		v.FixedSize = true
	default:
		v.FixedSize = false
	}
}

func internStrings(records []Record, prog *Program) {
	for _, r := range records {
		for _, a := range r.Args {
			internArg(a, r.FileID, r.Line, prog)
		}
	}
}

func internArg(a *Arg, fileID, line int, prog *Program) {
	if a == nil {
		return
	}
	if a.Immediate && a.Type == symtab.TypeString {
		prog.Strings.Intern(a.Literal, fileID, line)
	}
	for _, group := range a.Args {
		for _, sub := range group.Args {
			internArg(sub, fileID, line, prog)
		}
	}
}
