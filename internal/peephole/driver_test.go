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
package peephole

import (
	"strings"
	"testing"

	"github.com/b1stm8/toolchain/internal/lower"
)

func linesFromText(texts ...string) []lower.Line {
	lines := make([]lower.Line, len(texts))
	for i, t := range texts {
		lines[i] = lower.Line{Text: t}
	}
	return lines
}

func renderedText(lines []lower.Line) string {
	var b strings.Builder
	for _, l := range lines {
		if l.Label != "" {
			b.WriteString(":" + l.Label + "\n")
			continue
		}
		b.WriteString(l.Text + "\n")
	}
	return b.String()
}

func TestOptimizeLDWZeroToCLRW(t *testing.T) {
	out := Optimize(linesFromText("LDW X,#0"), &Ledger{})
	got := renderedText(out)
	if got != "CLRW X\n" {
		t.Errorf("got %q", got)
	}
}

func TestOptimizeAddZeroElided(t *testing.T) {
	out := Optimize(linesFromText("LD A,#5", "ADD A,#0"), &Ledger{})
	got := renderedText(out)
	if got != "LD A,#5\n" {
		t.Errorf("got %q", got)
	}
}

func TestOptimizeAddOneToInc(t *testing.T) {
	out := Optimize(linesFromText("ADDW X,#1"), &Ledger{})
	got := renderedText(out)
	if got != "INCW X\n" {
		t.Errorf("got %q", got)
	}
}

func TestOptimizePushPopElim(t *testing.T) {
	out := Optimize(linesFromText("PUSH A", "POP A"), &Ledger{})
	if len(out) != 0 {
		t.Errorf("expected the push/pop pair to vanish, got %v", out)
	}
}

func TestOptimizeBitMaskToBSET(t *testing.T) {
	out := Optimize(linesFromText("LD A,(V)", "OR A,#4", "LD (V),A"), &Ledger{})
	got := renderedText(out)
	if got != "BSET (V),#2\n" {
		t.Errorf("got %q", got)
	}
}

func TestOptimizeBitMaskToBRES(t *testing.T) {
	out := Optimize(linesFromText("LD A,(V)", "AND A,#0xFD", "LD (V),A"), &Ledger{})
	got := renderedText(out)
	if got != "BRES (V),#1\n" {
		t.Errorf("got %q", got)
	}
}

func TestOptimizeFuseSPAdjustToZero(t *testing.T) {
	out := Optimize(linesFromText("ADDW SP,#4", "SUBW SP,#4"), &Ledger{})
	if len(out) != 0 {
		t.Errorf("expected net-zero SP adjust to vanish, got %v", out)
	}
}

func TestOptimizeFuseSPAdjustNetNonzero(t *testing.T) {
	out := Optimize(linesFromText("ADDW SP,#6", "SUBW SP,#2"), &Ledger{})
	got := renderedText(out)
	if got != "ADDW SP,#4\n" {
		t.Errorf("got %q", got)
	}
}

func TestOptimizeSubPushFusion(t *testing.T) {
	out := Optimize(linesFromText("SUBW SP,#2", "LDW (1,SP),X"), &Ledger{})
	got := renderedText(out)
	if got != "PUSHW X\n" {
		t.Errorf("got %q", got)
	}
}

func TestOptimizeSaveMutateRestore(t *testing.T) {
	out := Optimize(linesFromText("PUSH A", "LD X,#1", "POP A"), &Ledger{})
	got := renderedText(out)
	if got != "LD X,#1\n" {
		t.Errorf("got %q", got)
	}
}

func TestOptimizeVolatileWindowUntouched(t *testing.T) {
	lines := []lower.Line{
		{Text: "LDW X,#0", Volatile: true},
	}
	out := Optimize(lines, &Ledger{})
	got := renderedText(out)
	if got != "LDW X,#0\n" {
		t.Errorf("expected volatile op to survive unrewritten, got %q", got)
	}
}

func TestOptimizeLedgerTracksFirings(t *testing.T) {
	ledger := &Ledger{}
	Optimize(linesFromText("LDW X,#0"), ledger)
	if ledger.Count(RuleLDWZero) != 1 {
		t.Errorf("expected RuleLDWZero to fire once, got %d", ledger.Count(RuleLDWZero))
	}
	if len(ledger.Zero()) == 0 {
		t.Error("expected at least one unfired rule to be reported")
	}
}

func TestLedgerRoundTrip(t *testing.T) {
	ledger := &Ledger{}
	Optimize(linesFromText("LDW X,#0", "ADDW Y,#1"), ledger)
	text := ledger.String()
	parsed := ParseLedger(text)
	if parsed.Count(RuleLDWZero) != ledger.Count(RuleLDWZero) {
		t.Errorf("round trip mismatch for RuleLDWZero: %d vs %d", parsed.Count(RuleLDWZero), ledger.Count(RuleLDWZero))
	}
	if parsed.Count(RuleAddOneToInc) != ledger.Count(RuleAddOneToInc) {
		t.Errorf("round trip mismatch for RuleAddOneToInc: %d vs %d", parsed.Count(RuleAddOneToInc), ledger.Count(RuleAddOneToInc))
	}
}

func TestOptimizeLabelBlocksWindow(t *testing.T) {
	lines := []lower.Line{
		{Text: "PUSH A"},
		{Label: "loop"},
		{Text: "POP A"},
	}
	out := Optimize(lines, &Ledger{})
	if len(out) != 3 {
		t.Errorf("expected the label to block the push/pop rewrite, got %v", out)
	}
}
