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

// Package section is the assembler's section manager (spec §4.6): it
// accumulates every source file's HEAP/STACK/DATA/CODE INIT/CONST/CODE
// contributions, lays them out in a fixed processing order, enforces
// the RAM/ROM budget invariants, and injects the well-known start/size
// symbols the rest of the source can reference.
package section

import "fmt"

// Kind names one of the six section families, plus the PAGE0
// sub-variant of DATA.
type Kind int

const (
	Heap Kind = iota
	Stack
	Data
	DataPage0
	CodeInit
	Const
	Code
)

func (k Kind) String() string {
	switch k {
	case Heap:
		return "HEAP"
	case Stack:
		return "STACK"
	case Data:
		return "DATA"
	case DataPage0:
		return "DATA PAGE0"
	case CodeInit:
		return "CODE INIT"
	case Const:
		return "CONST"
	case Code:
		return "CODE"
	default:
		return "?"
	}
}

// order is the fixed processing order spec §4.6 names.
var order = []Kind{Heap, Stack, Data, CodeInit, Const, Code}

// maxKinds accumulate by taking the largest single declaration rather
// than summing every file's contribution: STACK/HEAP/CODE INIT sizes
// are a reservation, not real emitted content, so two files each
// declaring ".STACK 256" share one 256-byte reservation, not 512.
var maxKinds = map[Kind]bool{Heap: true, Stack: true, CodeInit: true}

// Contribution is one source file's declared or accumulated size for
// a Kind.
type Contribution struct {
	File  string
	Line  int
	Bytes int
}

// Manager accumulates contributions across every source file the
// assembler is given, then lays them out and checks bounds once all
// files have been scanned.
type Manager struct {
	ramStart, ramSize int
	romStart, romSize int

	contributions map[Kind][]Contribution
}

// New returns a Manager bounded by the given RAM/ROM base addresses
// and sizes.
func New(ramStart, ramSize, romStart, romSize int) *Manager {
	return &Manager{
		ramStart:      ramStart,
		ramSize:       ramSize,
		romStart:      romStart,
		romSize:       romSize,
		contributions: make(map[Kind][]Contribution),
	}
}

// Add records one file's contribution to kind.
func (m *Manager) Add(kind Kind, file string, line, bytes int) {
	m.contributions[kind] = append(m.contributions[kind], Contribution{File: file, Line: line, Bytes: bytes})
}

func (m *Manager) sizeOf(kind Kind) int {
	contribs := m.contributions[kind]
	if len(contribs) == 0 {
		return 0
	}
	if maxKinds[kind] {
		max := 0
		for _, c := range contribs {
			if c.Bytes > max {
				max = c.Bytes
			}
		}
		return max
	}
	total := 0
	for _, c := range contribs {
		total += c.Bytes
	}
	return total
}

// warningsFor reports the "multiple X sections" warning for any
// max-accumulated kind declared more than once.
func (m *Manager) warningsFor(kind Kind) []string {
	contribs := m.contributions[kind]
	if !maxKinds[kind] || len(contribs) <= 1 {
		return nil
	}
	msgs := make([]string, 0, len(contribs))
	for _, c := range contribs {
		msgs = append(msgs, fmt.Sprintf("%s:%d: multiple %s sections declared; using the largest (%d bytes)", c.File, c.Line, kind, m.sizeOf(kind)))
	}
	return msgs
}

// BoundsError reports a fatal RAM or ROM overrun.
type BoundsError struct {
	Region       string
	Used, Budget int
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("section: %s usage %d exceeds budget %d", e.Region, e.Used, e.Budget)
}

// Layout is the finished address assignment: every section's base
// address and size, plus the well-known symbol table spec §4.6 names.
type Layout struct {
	Bases, Sizes map[Kind]int
	Warnings     []string
	symbols      map[string]int64
}

// Resolve implements asmsrc.SymbolResolver so expressions can
// reference __DATA_START and friends directly.
func (l *Layout) Resolve(name string) (int64, bool) {
	v, ok := l.symbols[name]
	return v, ok
}

// Symbols returns every well-known symbol Layout injected, for
// callers (the compiler's IR lowering pass, -mu reporting) that want
// the whole map rather than one-at-a-time lookups.
func (l *Layout) Symbols() map[string]int64 {
	out := make(map[string]int64, len(l.symbols))
	for k, v := range l.symbols {
		out[k] = v
	}
	return out
}

func symbolPrefix(kind Kind) string {
	switch kind {
	case Heap:
		return "__HEAP"
	case Stack:
		return "__STACK"
	case Data, DataPage0:
		return "__DATA"
	case CodeInit:
		return "__INIT"
	case Const:
		return "__CONST"
	case Code:
		return "__CODE"
	default:
		return ""
	}
}

// Finalize lays out every section in the fixed processing order,
// enforces the RAM/ROM budgets, and returns the injected symbol table.
// A BoundsError is returned for either fatal overrun; multiple-
// declaration warnings are returned alongside a valid Layout rather
// than as an error, since spec §4.6 treats them as non-fatal.
func (m *Manager) Finalize() (*Layout, error) {
	layout := &Layout{
		Bases:   make(map[Kind]int),
		Sizes:   make(map[Kind]int),
		symbols: make(map[string]int64),
	}

	page0Size := m.sizeOf(DataPage0)
	if page0Size > 256 {
		return nil, &BoundsError{Region: "DATA PAGE0", Used: page0Size, Budget: 256}
	}
	layout.Bases[DataPage0] = m.ramStart
	layout.Sizes[DataPage0] = page0Size
	layout.symbols["__DATA_PAGE0_START"] = int64(m.ramStart)
	layout.symbols["__DATA_PAGE0_SIZE"] = int64(page0Size)

	ramAddr := m.ramStart
	romAddr := m.romStart
	for _, kind := range order {
		for _, w := range m.warningsFor(kind) {
			layout.Warnings = append(layout.Warnings, w)
		}
		size := m.sizeOf(kind)
		var base int
		switch kind {
		case Heap, Stack, Data:
			base = ramAddr
			ramAddr += size
		case CodeInit, Const, Code:
			base = romAddr
			romAddr += size
		}
		layout.Bases[kind] = base
		layout.Sizes[kind] = size

		prefix := symbolPrefix(kind)
		if kind != Data { // DATA_START/_SIZE are injected once, below; PAGE0 is not counted in them
			layout.symbols[prefix+"_START"] = int64(base)
			layout.symbols[prefix+"_SIZE"] = int64(size)
		}
	}
	layout.symbols["__DATA_START"] = int64(layout.Bases[Data])
	layout.symbols["__DATA_SIZE"] = int64(layout.Sizes[Data])
	layout.symbols["__RET_ADDR_SIZE"] = 2

	ramUsed := m.sizeOf(Heap) + m.sizeOf(Stack) + m.sizeOf(Data)
	if ramUsed > m.ramSize {
		return layout, &BoundsError{Region: "RAM (DATA+HEAP+STACK)", Used: ramUsed, Budget: m.ramSize}
	}
	romUsed := m.sizeOf(CodeInit) + m.sizeOf(Const) + m.sizeOf(Code)
	if romUsed > m.romSize {
		return layout, &BoundsError{Region: "ROM (INIT+CONST+CODE)", Used: romUsed, Budget: m.romSize}
	}
	return layout, nil
}

// Warnings reports every multiple-declaration warning without
// otherwise requiring a full Finalize call; the `-d` flag surfaces
// these even when bounds checking itself is skipped.
func (m *Manager) Warnings() []string {
	var warnings []string
	for _, kind := range order {
		warnings = append(warnings, m.warningsFor(kind)...)
	}
	return warnings
}

// SetRetAddrSize overrides __RET_ADDR_SIZE (2 for the small memory
// model, 3 for large); callers apply this after Finalize using the
// session's configured model.
func (l *Layout) SetRetAddrSize(n int) {
	l.symbols["__RET_ADDR_SIZE"] = int64(n)
}
