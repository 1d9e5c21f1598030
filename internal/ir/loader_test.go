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
	"fmt"
	"strings"
	"testing"
)

type mapResolver map[string]string

func (m mapResolver) Resolve(name string) (SourceFile, error) {
	c, ok := m[name]
	if !ok {
		return SourceFile{}, fmt.Errorf("no such library %q", name)
	}
	return SourceFile{Name: name, Content: c}, nil
}

func TestLoadBasicRecords(t *testing.T) {
	src := SourceFile{Name: "main.b1c", Content: "GA V<INT>(0,1)\n:start\n= V<INT>(0), 5\n"}
	recs, err := Load([]SourceFile{src}, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3", len(recs))
	}
	if recs[0].Op != "GA" {
		t.Errorf("recs[0].Op = %q, want GA", recs[0].Op)
	}
	if recs[1].Kind != RecordLabel || recs[1].Label != "start" {
		t.Errorf("recs[1] = %+v, want label %q", recs[1], "start")
	}
	if recs[2].Op != "=" {
		t.Errorf("recs[2].Op = %q, want =", recs[2].Op)
	}
}

func TestLoadASMBlockCapturesVolatileLines(t *testing.T) {
	src := SourceFile{Name: "main.b1c", Content: "ASM\nLD A,#1\nENDASM\n"}
	recs, err := Load([]SourceFile{src}, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3", len(recs))
	}
	if recs[1].Kind != RecordAsmLine || !recs[1].Volatile || strings.TrimSpace(recs[1].AsmText) != "LD A,#1" {
		t.Errorf("recs[1] = %+v", recs[1])
	}
}

func TestLoadUnterminatedASMFails(t *testing.T) {
	src := SourceFile{Name: "main.b1c", Content: "ASM\nLD A,#1\n"}
	if _, err := Load([]SourceFile{src}, nil); err == nil {
		t.Fatal("expected an error for an unterminated ASM block")
	}
}

func TestLoadINLResolvesAndRestoresNamespace(t *testing.T) {
	lib := mapResolver{"mylib.b1c": "GA W<INT>\n"}
	src := SourceFile{Name: "main.b1c", Content: "NS app\nINL \"mylib.b1c\"\nGA V<INT>\n"}
	recs, err := Load([]SourceFile{src}, lib)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	var nsOfW, nsOfV string
	for _, r := range recs {
		if r.Op == "GA" && len(r.Args) > 0 {
			switch r.Args[0].Name {
			case "W":
				nsOfW = r.Namespace
			case "V":
				nsOfV = r.Namespace
			}
		}
	}
	if !strings.HasPrefix(nsOfW, "__inl_") {
		t.Errorf("W namespace = %q, want an __inl_ temp namespace", nsOfW)
	}
	if nsOfV != "app" {
		t.Errorf("V namespace = %q, want restored 'app'", nsOfV)
	}
}

func TestLoadINLRecursionDetected(t *testing.T) {
	lib := mapResolver{"a.b1c": "INL \"a.b1c\"\n"}
	src := SourceFile{Name: "a.b1c", Content: "INL \"a.b1c\"\n"}
	if _, err := Load([]SourceFile{src}, lib); err == nil {
		t.Fatal("expected recursive INL to fail")
	}
}

func TestLoadINLMissingResolverFails(t *testing.T) {
	src := SourceFile{Name: "main.b1c", Content: "INL \"mylib.b1c\"\n"}
	if _, err := Load([]SourceFile{src}, nil); err == nil {
		t.Fatal("expected an error when no library resolver is configured")
	}
}

func TestLoadNamespaceRewritesDoubleColonPrefix(t *testing.T) {
	src := SourceFile{Name: "main.b1c", Content: "NS app\n= ::V<INT>, 1\n"}
	recs, err := Load([]SourceFile{src}, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	found := false
	for _, r := range recs {
		if r.Op == "=" && len(r.Args) > 0 && r.Args[0].Name == "app::V" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected ::V to rewrite to app::V, got %+v", recs)
	}
}

func TestGABoundsGroupParsing(t *testing.T) {
	src := SourceFile{Name: "main.b1c", Content: "GA V<INT>(0,1)(0,1)\n"}
	recs, err := Load([]SourceFile{src}, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	arg := recs[0].Args[0]
	if arg.GroupCount() != 2 {
		t.Fatalf("GroupCount() = %d, want 2", arg.GroupCount())
	}
	g0 := arg.Group(0)
	if len(g0) != 2 || g0[0].Literal != "0" || g0[1].Literal != "1" {
		t.Errorf("Group(0) = %+v", g0)
	}
}
