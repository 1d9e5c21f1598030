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
	"strings"
	"testing"

	"github.com/b1stm8/toolchain/internal/ir"
	"github.com/b1stm8/toolchain/internal/session"
)

func compileSource(t *testing.T, src string) *Output {
	t.Helper()
	recs, err := ir.Load([]ir.SourceFile{{Name: "main.b1c", Content: src}}, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	prog, err := ir.Resolve(recs, session.Default())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	out, err := Compile(prog, session.Default(), nil)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return out
}

func linesText(out *Output) string {
	var b strings.Builder
	for _, l := range out.Lines {
		if l.Label != "" {
			b.WriteString(":" + l.Label + "\n")
			continue
		}
		b.WriteString(l.Text + "\n")
	}
	return b.String()
}

func TestCompileAssignment(t *testing.T) {
	out := compileSource(t, "MA V<BYTE>(0x100)\n= V<BYTE>, 5\n")
	text := linesText(out)
	if !strings.Contains(text, "LD (V),#5") {
		t.Errorf("expected a byte store to V, got:\n%s", text)
	}
}

func TestCompileIOCTLMasksAccumulate(t *testing.T) {
	out := compileSource(t, "IOCTL UART(CONFIG<INT>(1,1))\nIOCTL UART(CONFIG<INT>(1,2))\n")
	callCount := 0
	for _, l := range out.Lines {
		if strings.Contains(l.Text, "CALL") {
			callCount++
		}
	}
	if callCount != 1 {
		t.Errorf("expected the two compatible IOCTLs to merge into one CALL, got %d", callCount)
	}
}

func TestCompileFunctionCallWithDefaultArgument(t *testing.T) {
	out := compileSource(t, "DEF F<INT>(A<INT>(5))\nRETVAL A<INT>\nRET\nCALL F<INT>()\n")
	text := linesText(out)
	if !strings.Contains(text, "CALL F") {
		t.Errorf("expected a CALL to F, got:\n%s", text)
	}
}

func TestCompileComparisonAndBranch(t *testing.T) {
	out := compileSource(t, "MA V<INT>(0x100)\n== V<INT>, 1\nJT target\n:target\n")
	text := linesText(out)
	if !strings.Contains(text, "CP") || !strings.Contains(text, "JREQ target") {
		t.Errorf("expected a CP followed by JREQ target, got:\n%s", text)
	}
}

func TestCompileUnresolvedJTFails(t *testing.T) {
	recs, err := ir.Load([]ir.SourceFile{{Name: "main.b1c", Content: "JT nowhere\n:nowhere\n"}}, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	prog, err := ir.Resolve(recs, session.Default())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, err := Compile(prog, session.Default(), nil); err == nil {
		t.Fatal("expected JT without a preceding comparison to fail")
	}
}
