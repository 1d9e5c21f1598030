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

// Package ir implements the b1c intermediate-representation loader
// (spec §4.1) and semantic resolution (spec §4.2): a strictly
// streaming, non-backtracking reader that turns IR text into a
// sequence of Records, enriched with variable, user-function and
// string-label tables.
package ir

import "github.com/b1stm8/toolchain/internal/symtab"

// RecordKind discriminates the four shapes one non-blank, non-comment
// IR line can take.
type RecordKind int

const (
	RecordLabel RecordKind = iota
	RecordNamespace
	RecordCommand
	RecordAsmLine
)

// Arg is one argument expression: a tree rooted at (name, type) with
// optional subscripts or function-call arguments (spec §3).
type Arg struct {
	Name      string
	Type      symtab.Type
	Args      []*Arg // subscripts, or call arguments
	Immediate bool
	Literal   string // raw literal text when Immediate
	FileID    int
	Line      int
}

// IsCall reports whether this argument node carries subscripts or
// call arguments.
func (a *Arg) IsCall() bool {
	return len(a.Args) > 0
}

// Record is one parsed IR line.
type Record struct {
	Kind      RecordKind
	Label     string // RecordLabel
	Namespace string // RecordNamespace, and the namespace in effect when Kind == RecordCommand
	Op        string // RecordCommand
	Args      []*Arg // RecordCommand
	AsmText   string // RecordAsmLine, verbatim inline-asm source line
	Volatile  bool   // RecordAsmLine: true, memory ops inside ASM/ENDASM tagged volatile
	FileID    int
	Line      int
}

// SourceFile is one named IR input: a file path plus its full text.
// Loader never reopens a path itself, so tests can hand it in-memory
// content without touching the filesystem.
type SourceFile struct {
	Name    string
	Content string
}

// UserFunc is a DEF-declared user function signature.
type UserFunc struct {
	Name      string
	RetType   symtab.Type
	ArgTypes  []symtab.Type
	ArgNames  []string
	Defaults  []string // default-value text per argument, "" if none
	Namespace string
	FileID    int
	Line      int
}

// Program is the fully loaded and resolved IR: records in source
// order, plus the tables semantic resolution populates.
type Program struct {
	Records   []Record
	Vars      *symtab.Table
	Strings   *symtab.StringTable
	UserFuncs map[string]*UserFunc
}
