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

import "testing"

func TestIsDirectiveLine(t *testing.T) {
	name, ok := IsDirectiveLine("  .CODE INIT")
	if !ok || name != "CODE" {
		t.Errorf("expected CODE, got %q (ok=%v)", name, ok)
	}
	if _, ok := IsDirectiveLine("LD A,#1"); ok {
		t.Error("expected a plain instruction line to not classify as a directive")
	}
}

func TestIsLabelLine(t *testing.T) {
	name, ok := IsLabelLine(":loop")
	if !ok || name != "loop" {
		t.Errorf("expected loop, got %q (ok=%v)", name, ok)
	}
}

func TestTokenizeNumberAndHex(t *testing.T) {
	toks, err := Tokenize(1, "100, 0x1F")
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	if len(toks) != 3 {
		t.Fatalf("expected 3 tokens, got %d", len(toks))
	}
	if toks[0].Value != 100 {
		t.Errorf("expected 100, got %d", toks[0].Value)
	}
	if toks[2].Value != 0x1F {
		t.Errorf("expected 0x1F, got %#x", toks[2].Value)
	}
}

func TestTokenizeString(t *testing.T) {
	toks, err := Tokenize(1, `"hello ""world"""`)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	if len(toks) != 1 || toks[0].Kind != KindString {
		t.Fatalf("expected one string token, got %v", toks)
	}
	if toks[0].Text != `hello "world"` {
		t.Errorf("expected embedded-quote unescaping, got %q", toks[0].Text)
	}
}

func TestTokenizeCharLiteral(t *testing.T) {
	toks, err := Tokenize(1, "'A'")
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	if len(toks) != 1 || toks[0].Kind != KindChar || toks[0].Value != 'A' {
		t.Fatalf("expected char 'A', got %v", toks)
	}
}

func TestTokenizeLabelReference(t *testing.T) {
	toks, err := Tokenize(1, "JRA :loop")
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	if len(toks) != 2 || toks[1].Kind != KindLabel || toks[1].Text != "loop" {
		t.Fatalf("expected a label reference token, got %v", toks)
	}
}

func TestTokenizeMultiCharOperators(t *testing.T) {
	toks, err := Tokenize(1, "A == B << 2")
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	var ops []string
	for _, tok := range toks {
		if tok.Kind == KindOp {
			ops = append(ops, tok.Text)
		}
	}
	if len(ops) != 2 || ops[0] != "==" || ops[1] != "<<" {
		t.Errorf("expected [== <<], got %v", ops)
	}
}

func TestTokenizeByteSelector(t *testing.T) {
	toks, err := Tokenize(1, "VALUE.H")
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	if len(toks) != 1 || toks[0].Text != "VALUE.H" {
		t.Fatalf("expected the selector to stay attached, got %v", toks)
	}
}
