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
package berr

import "testing"

func TestErrorFormatting(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "with position",
			err:  Syntax(EInvLbName, "main.b1c", 12, "invalid label name %q", "1abc"),
			want: `main.b1c:12: syntax error 4: invalid label name "1abc"`,
		},
		{
			name: "internal has no position",
			err:  Internal(EIntErr, "unreachable opcode dispatch"),
			want: "internal error 11: unreachable opcode dispatch",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPhaseInRange(t *testing.T) {
	err := Syntax(ESyntax, "f.b1c", 1, "bad")
	if p := err.Phase(); p < 2 || p > 27 {
		t.Errorf("Phase() = %d, want in [2,27]", p)
	}
}

func TestWarningsAccumulate(t *testing.T) {
	var w Warnings
	if !w.Empty() {
		t.Fatal("expected empty accumulator")
	}
	w.Add(WDataTrunc, "f.b1c", 3, "value %d truncated to byte", 300)
	if w.Empty() {
		t.Fatal("expected non-empty accumulator after Add")
	}
	all := w.All()
	if len(all) != 1 || all[0].Code != WDataTrunc {
		t.Fatalf("unexpected warnings: %+v", all)
	}
}
