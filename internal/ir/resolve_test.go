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
	"testing"

	"github.com/b1stm8/toolchain/internal/session"
	"github.com/b1stm8/toolchain/internal/symtab"
)

func mustLoad(t *testing.T, content string) []Record {
	t.Helper()
	recs, err := Load([]SourceFile{{Name: "main.b1c", Content: content}}, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return recs
}

func TestResolveFixedTwoDimArrayIsEightBytes(t *testing.T) {
	recs := mustLoad(t, "GA V<INT>(0,1)(0,1)\n")
	prog, err := Resolve(recs, session.Default())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	v := prog.Vars.Lookup("V")
	if v == nil {
		t.Fatal("V was not declared")
	}
	if !v.FixedSize {
		t.Error("expected V to be fixed-size")
	}
	if got, want := v.FlatSize(), 8; got != want {
		t.Errorf("FlatSize() = %d, want %d", got, want)
	}
}

func TestResolveNoGAUsesDefaultBounds(t *testing.T) {
	recs := mustLoad(t, "LA V<INT>(0,1)\n")
	prog, err := Resolve(recs, session.Default())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	v := prog.Vars.Lookup("V")
	if v.GACount != 0 {
		t.Fatalf("GACount = %d, want 0", v.GACount)
	}
	if !v.FixedSize {
		t.Error("no-GA array should default to fixed-size [0..10]")
	}
	if len(v.Bounds) != 1 || v.Bounds[0].Lower != 0 || v.Bounds[0].Upper != 10 {
		t.Errorf("Bounds = %+v, want [0,10]", v.Bounds)
	}
}

func TestResolveMultipleGAIsDynamic(t *testing.T) {
	recs := mustLoad(t, "GA V<INT>(0,5)\nGA V<INT>(0,9)\n")
	prog, err := Resolve(recs, session.Default())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	v := prog.Vars.Lookup("V")
	if v.GACount != 2 {
		t.Fatalf("GACount = %d, want 2", v.GACount)
	}
	if v.FixedSize {
		t.Error("two GAs should make V dynamic")
	}
	if got := v.FlatSize(); got != 0 {
		t.Errorf("FlatSize() of a dynamic array = %d, want 0", got)
	}
}

func TestResolveExplicitOptionAllowsSingleDynamicBoundGA(t *testing.T) {
	recs := mustLoad(t, "GA V<INT>(0,5)\n")
	cfg := session.Default()
	cfg.ArrayOpt = session.ArrayOptionExplicit
	prog, err := Resolve(recs, cfg)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	v := prog.Vars.Lookup("V")
	if !v.FixedSize {
		t.Error("a single GA under OPTION EXPLICIT should be fixed-size")
	}
}

func TestResolveSubscriptArityMismatchFails(t *testing.T) {
	recs := mustLoad(t, "GA V<INT>(0,1)(0,1)\n= V<INT>(0), 5\n")
	if _, err := Resolve(recs, session.Default()); err == nil {
		t.Fatal("expected a subscript arity mismatch error")
	}
}

func TestResolveDEFCollectsSignatureAndDefaults(t *testing.T) {
	recs := mustLoad(t, "DEF F<INT>(A<INT>(5), B<WORD>)\n")
	prog, err := Resolve(recs, session.Default())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	fn, ok := prog.UserFuncs["F"]
	if !ok {
		t.Fatal("F was not registered as a user function")
	}
	if fn.RetType != symtab.TypeInt {
		t.Errorf("RetType = %v, want INT", fn.RetType)
	}
	if len(fn.ArgNames) != 2 || fn.ArgNames[0] != "A" || fn.ArgNames[1] != "B" {
		t.Errorf("ArgNames = %v", fn.ArgNames)
	}
	if fn.Defaults[0] != "5" {
		t.Errorf("Defaults[0] = %q, want %q", fn.Defaults[0], "5")
	}
	if fn.Defaults[1] != "" {
		t.Errorf("Defaults[1] = %q, want empty", fn.Defaults[1])
	}
}

func TestResolveDEFClashWithPredefinedConstantFails(t *testing.T) {
	recs := mustLoad(t, "DEF TRUE<INT>()\n")
	if _, err := Resolve(recs, session.Default()); err == nil {
		t.Fatal("expected redefining TRUE to fail")
	}
}

func TestResolveInternsStrings(t *testing.T) {
	recs := mustLoad(t, `= V<STRING>, "hello"` + "\n")
	prog, err := Resolve(recs, session.Default())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	all := prog.Strings.All()
	if len(all) != 1 || all[0].Value != "hello" || all[0].Label != "__STR_0" {
		t.Errorf("Strings.All() = %+v", all)
	}
}

func TestResolveMAFixedAddress(t *testing.T) {
	recs := mustLoad(t, "MA PORT<BYTE>(0x5000)\n")
	prog, err := Resolve(recs, session.Default())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	v := prog.Vars.Lookup("PORT")
	if v.Storage != symtab.StorageFixedAddress || v.Address != 0x5000 {
		t.Errorf("PORT = %+v", v)
	}
}
