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

type setDefines map[string]bool

func (s setDefines) Defined(name string) bool { return s[name] }

func TestEvalCondDefined(t *testing.T) {
	d := setDefines{"DEBUG": true}
	ok, err := EvalCond(1, "DEFINED(DEBUG)", d, mapResolver{})
	if err != nil || !ok {
		t.Fatalf("expected DEFINED(DEBUG) true, got %v err=%v", ok, err)
	}
	ok, err = EvalCond(1, "NOT DEFINED(DEBUG)", d, mapResolver{})
	if err != nil || ok {
		t.Fatalf("expected NOT DEFINED(DEBUG) false, got %v err=%v", ok, err)
	}
}

func TestEvalCondArithmetic(t *testing.T) {
	ok, err := EvalCond(1, "VERSION >= 2", setDefines{}, mapResolver{"VERSION": 3})
	if err != nil || !ok {
		t.Fatalf("expected true, got %v err=%v", ok, err)
	}
}

func TestCondStackSimpleIfElse(t *testing.T) {
	var c CondStack
	c.If(false)
	if c.Active() {
		t.Error("expected the false branch to be inactive")
	}
	if err := c.Else(); err != nil {
		t.Fatalf("Else: %v", err)
	}
	if !c.Active() {
		t.Error("expected .ELSE to activate")
	}
	if err := c.Endif(); err != nil {
		t.Fatalf("Endif: %v", err)
	}
	if !c.Active() {
		t.Error("expected top-level scope active after Endif")
	}
}

func TestCondStackIfElifChainOnlyFirstTrueFires(t *testing.T) {
	var c CondStack
	c.If(false)
	if err := c.Elif(true); err != nil {
		t.Fatalf("Elif: %v", err)
	}
	if !c.Active() {
		t.Error("expected the first true .ELIF branch to activate")
	}
	if err := c.Elif(true); err != nil {
		t.Fatalf("Elif: %v", err)
	}
	if c.Active() {
		t.Error("expected a later .ELIF to stay inactive once a branch has already fired")
	}
	if err := c.Else(); err != nil {
		t.Fatalf("Else: %v", err)
	}
	if c.Active() {
		t.Error("expected .ELSE to stay inactive once a branch has already fired")
	}
}

func TestCondStackNestedInactiveOuterForcesInnerInactive(t *testing.T) {
	var c CondStack
	c.If(false)
	c.If(true) // nested .IF inside a dead outer branch
	if c.Active() {
		t.Error("expected the nested branch to stay inactive: its outer scope is dead")
	}
	if err := c.Endif(); err != nil {
		t.Fatalf("Endif: %v", err)
	}
	if c.Active() {
		t.Error("expected the outer scope to still be inactive after the inner .ENDIF")
	}
}

func TestCondStackUnmatchedElseErrors(t *testing.T) {
	var c CondStack
	if err := c.Else(); err == nil {
		t.Error("expected an error for .ELSE with no matching .IF")
	}
}
