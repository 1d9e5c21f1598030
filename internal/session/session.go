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

// Package session replaces the original implementation's mutable
// global _global_settings singleton (spec §5, §9) with a value
// threaded explicitly through the pipeline. The address-fix
// re-emission set, mutable global state upstream, is a field on this
// value instead.
package session

// MemoryModel selects the STM8 addressing width: small uses 16-bit
// addresses and RET; large uses 24-bit addresses and RETF.
type MemoryModel int

const (
	MemoryModelSmall MemoryModel = iota
	MemoryModelLarge
)

// ArrayOption controls the -op flag's effect on array-bounds handling
// in the IR loader's fixed-array detection rule (spec §4.2,
// supplemented per SPEC_FULL.md item 3).
type ArrayOption int

const (
	// ArrayOptionBase0 is the default: arrays with no GA implicitly
	// allocate bounds [0..10].
	ArrayOptionBase0 ArrayOption = iota
	// ArrayOptionExplicit requires exactly one GA for a name to be
	// treated as fixed-size and skips later auto-grow.
	ArrayOptionExplicit
	// ArrayOptionBase1 shifts the default lower bound from 0 to 1.
	ArrayOptionBase1
	// ArrayOptionNoCheck is accepted but changes nothing: the lowering
	// emits no SubscriptOutOfRange runtime checks under any option.
	ArrayOptionNoCheck
)

// Config is the explicitly-threaded configuration value built by the
// CLI layer from flags and, where applicable, config files. Both
// c1stm8 and a1stm8 construct one of these and pass it down instead of
// reading package-level mutable state.
type Config struct {
	MCU          string
	Target       string // only "STM8" is accepted, per spec §6
	MemModel     MemoryModel
	ArrayOpt     ArrayOption
	RAMStart     int
	RAMSize      int
	ROMStart     int
	ROMSize      int
	StackSize    int
	HeapSize     int
	LibDir       string
	OutputPath   string
	OptimizerLog string

	PrintDescriptions bool // -d
	FixResidualStack  bool // -fr (compiler) / enables -f re-emission (assembler)
	SkipAssembler     bool // -na
	DisableOptimizer  bool // -no
	PrintMemoryUsage  bool // -mu
	EmitSourceComments bool // -s
	PrintVersion      bool // -v

	// ReplaceSet is the assembler's set of instruction indices flagged
	// for -F address-fix re-emission (spec §4.7). It lives on the
	// session value, not as mutable global state.
	ReplaceSet map[int]bool
}

// Default returns a Config with the STM8 defaults used when no
// overriding flag or .cfg file is present.
func Default() *Config {
	return &Config{
		MCU:        "STM8S103F3",
		Target:     "STM8",
		MemModel:   MemoryModelSmall,
		ArrayOpt:   ArrayOptionBase0,
		RAMStart:   0x0000,
		RAMSize:    1024,
		ROMStart:   0x8000,
		ROMSize:    8192,
		StackSize:  256,
		HeapSize:   0,
		ReplaceSet: make(map[int]bool),
	}
}

// AddInstToReplace marks instruction index idx as a target for
// address-fix re-emission. This is the only mutation the session
// value undergoes after construction (spec §5).
func (c *Config) AddInstToReplace(idx int) {
	if c.ReplaceSet == nil {
		c.ReplaceSet = make(map[int]bool)
	}
	c.ReplaceSet[idx] = true
}

// ShouldReplace reports whether idx was previously flagged for
// re-emission.
func (c *Config) ShouldReplace(idx int) bool {
	return c.ReplaceSet[idx]
}

// RetAddrSize returns the size in bytes of a return address under the
// configured memory model (2 for small, 3 for large), grounded on
// original_source's STM8_RET_ADDR_SIZE_MM_SMALL / _LARGE constants.
func (c *Config) RetAddrSize() int {
	if c.MemModel == MemoryModelLarge {
		return 3
	}
	return 2
}
