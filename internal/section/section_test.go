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
package section

import "testing"

func TestFinalizeLayoutOrder(t *testing.T) {
	m := New(0, 1024, 0x8000, 8192)
	m.Add(Heap, "a.s", 1, 64)
	m.Add(Stack, "a.s", 2, 128)
	m.Add(Data, "a.s", 3, 32)
	m.Add(CodeInit, "a.s", 4, 16)
	m.Add(Const, "a.s", 5, 8)
	m.Add(Code, "a.s", 6, 100)

	layout, err := m.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if layout.Bases[Heap] != 0 {
		t.Errorf("expected HEAP at 0, got %d", layout.Bases[Heap])
	}
	if layout.Bases[Stack] != 64 {
		t.Errorf("expected STACK at 64, got %d", layout.Bases[Stack])
	}
	if layout.Bases[Data] != 64+128 {
		t.Errorf("expected DATA at 192, got %d", layout.Bases[Data])
	}
	if layout.Bases[CodeInit] != 0x8000 {
		t.Errorf("expected CODE INIT at ROM base, got %#x", layout.Bases[CodeInit])
	}
	if layout.Bases[Const] != 0x8000+16 {
		t.Errorf("expected CONST after INIT, got %#x", layout.Bases[Const])
	}
	if layout.Bases[Code] != 0x8000+16+8 {
		t.Errorf("expected CODE after CONST, got %#x", layout.Bases[Code])
	}
}

func TestMultipleStackSectionsTakeMax(t *testing.T) {
	m := New(0, 1024, 0x8000, 8192)
	m.Add(Stack, "a.s", 1, 128)
	m.Add(Stack, "b.s", 1, 256)

	layout, err := m.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if layout.Sizes[Stack] != 256 {
		t.Errorf("expected max(128,256)=256, got %d", layout.Sizes[Stack])
	}
	if len(layout.Warnings) == 0 {
		t.Error("expected a multiple-declaration warning")
	}
}

func TestDataSectionsAccumulate(t *testing.T) {
	m := New(0, 1024, 0x8000, 8192)
	m.Add(Data, "a.s", 1, 10)
	m.Add(Data, "b.s", 1, 20)

	layout, err := m.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if layout.Sizes[Data] != 30 {
		t.Errorf("expected summed 30, got %d", layout.Sizes[Data])
	}
}

func TestRAMOverrunIsFatal(t *testing.T) {
	m := New(0, 100, 0x8000, 8192)
	m.Add(Data, "a.s", 1, 200)
	if _, err := m.Finalize(); err == nil {
		t.Fatal("expected a RAM bounds error")
	}
}

func TestROMOverrunIsFatal(t *testing.T) {
	m := New(0, 1024, 0x8000, 10)
	m.Add(Code, "a.s", 1, 100)
	if _, err := m.Finalize(); err == nil {
		t.Fatal("expected a ROM bounds error")
	}
}

func TestPage0SizeCap(t *testing.T) {
	m := New(0, 1024, 0x8000, 8192)
	m.Add(DataPage0, "a.s", 1, 300)
	if _, err := m.Finalize(); err == nil {
		t.Fatal("expected a PAGE0 bounds error")
	}
}

func TestManagerWarningsAccessor(t *testing.T) {
	m := New(0, 1024, 0x8000, 8192)
	m.Add(Heap, "a.s", 1, 32)
	m.Add(Heap, "b.s", 1, 64)
	if len(m.Warnings()) == 0 {
		t.Error("expected a warning from Manager.Warnings() without calling Finalize first")
	}
}

func TestWellKnownSymbolsInjected(t *testing.T) {
	m := New(0, 1024, 0x8000, 8192)
	m.Add(Data, "a.s", 1, 10)
	layout, err := m.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	for _, name := range []string{"__DATA_START", "__DATA_SIZE", "__CODE_START", "__RET_ADDR_SIZE"} {
		if _, ok := layout.Resolve(name); !ok {
			t.Errorf("expected %s to be injected", name)
		}
	}
}

func TestSetRetAddrSizeOverridesDefault(t *testing.T) {
	m := New(0, 1024, 0x8000, 8192)
	layout, err := m.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	layout.SetRetAddrSize(3)
	n, _ := layout.Resolve("__RET_ADDR_SIZE")
	if n != 3 {
		t.Errorf("expected 3, got %d", n)
	}
}
