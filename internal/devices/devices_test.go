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
package devices

import "testing"

func TestLookupBuiltins(t *testing.T) {
	for _, name := range []string{"OUT", "IN", "UART", "LED"} {
		if Lookup(name) == nil {
			t.Errorf("expected built-in device %q to be registered", name)
		}
	}
	if Lookup("NOPE") != nil {
		t.Errorf("expected unknown device to be absent")
	}
}

func TestInlineOptionGatesTemplateLookup(t *testing.T) {
	uart := Lookup("UART")
	if !uart.HasOption(OptInline) {
		t.Fatalf("UART should be INL-flagged")
	}
	if got, want := uart.InlineTemplateName("PUT"), "__LIB_UART_PUT_INL.b1c"; got != want {
		t.Errorf("InlineTemplateName() = %q, want %q", got, want)
	}
	out := Lookup("OUT")
	if out.HasOption(OptInline) {
		t.Fatalf("OUT should not be INL-flagged in the default table")
	}
}
