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
package inlineasm

import "testing"

func TestLabelsFindsBranchTargets(t *testing.T) {
	s := NewScanner()
	body := "LD A,#1\nJREQ done\nCALL helper\nENDASM"
	labels := s.Labels(body)
	if len(labels) != 2 || labels[0] != "done" || labels[1] != "helper" {
		t.Errorf("expected [done helper], got %v", labels)
	}
}

func TestLabelsIgnoresNonBranchLines(t *testing.T) {
	s := NewScanner()
	labels := s.Labels("LD A,#1\nADD A,#2")
	if len(labels) != 0 {
		t.Errorf("expected no labels, got %v", labels)
	}
}

func TestLabelsDeduplicates(t *testing.T) {
	s := NewScanner()
	labels := s.Labels("JRA loop\nJRA loop\n")
	if len(labels) != 1 || labels[0] != "loop" {
		t.Errorf("expected [loop], got %v", labels)
	}
}

func TestLabelsAcceptsColonPrefixedReference(t *testing.T) {
	s := NewScanner()
	labels := s.Labels("JP :exit")
	if len(labels) != 1 || labels[0] != "exit" {
		t.Errorf("expected [exit], got %v", labels)
	}
}
