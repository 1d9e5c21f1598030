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
package ir

import (
	"fmt"
	"strings"

	"github.com/b1stm8/toolchain/internal/berr"
)

// LibResolver is the narrow external-collaborator interface through
// which INL "libname" resolves a library file (spec §1 non-goal:
// library file discovery lives outside this repo).
type LibResolver interface {
	Resolve(name string) (SourceFile, error)
}

// loader carries the streaming state for one Load call: the current
// namespace, the set of files presently open (for INL recursion
// detection), and a counter used to mint fresh temporary namespaces
// for each INL inclusion.
type loader struct {
	lib       LibResolver
	openFiles map[string]bool
	inlCount  int
	records   []Record
	fileIDs   map[string]int
	nextFileID int
}

// Load consumes the given IR source files in order and returns the
// flat, source-ordered Record stream (spec §4.1). It is strictly
// streaming: each line is classified and consumed without
// backtracking, and any violation of §4.1's grammar fails with a
// SyntaxError.
func Load(files []SourceFile, lib LibResolver) ([]Record, error) {
	l := &loader{lib: lib, openFiles: make(map[string]bool), fileIDs: make(map[string]int)}
	for _, f := range files {
		if err := l.loadFile(f, ""); err != nil {
			return nil, err
		}
	}
	return l.records, nil
}

func (l *loader) fileID(name string) int {
	if id, ok := l.fileIDs[name]; ok {
		return id
	}
	id := l.nextFileID
	l.nextFileID++
	l.fileIDs[name] = id
	return id
}

// loadFile loads one file's lines with ns in effect as the current
// namespace.
func (l *loader) loadFile(f SourceFile, ns string) error {
	if l.openFiles[f.Name] {
		return berr.Syntax(berr.ERecurInl, f.Name, 0, "recursive INL of %q", f.Name)
	}
	l.openFiles[f.Name] = true
	defer delete(l.openFiles, f.Name)

	fid := l.fileID(f.Name)
	lines := strings.Split(f.Content, "\n")
	inAsm := false

	for i, raw := range lines {
		lineNo := i + 1
		trimmed := strings.TrimSpace(raw)

		if inAsm {
			if strings.EqualFold(trimmed, "ENDASM") {
				l.records = append(l.records, Record{Kind: RecordCommand, Op: "ENDASM", Namespace: ns, FileID: fid, Line: lineNo})
				inAsm = false
				continue
			}
			l.records = append(l.records, Record{Kind: RecordAsmLine, AsmText: raw, Volatile: true, Namespace: ns, FileID: fid, Line: lineNo})
			continue
		}

		if trimmed == "" || strings.HasPrefix(trimmed, "'") || strings.HasPrefix(trimmed, ";") {
			continue
		}

		if strings.HasPrefix(trimmed, ":") {
			l.records = append(l.records, Record{Kind: RecordLabel, Label: trimmed[1:], Namespace: ns, FileID: fid, Line: lineNo})
			continue
		}

		op, rest := splitOpcode(trimmed)
		switch strings.ToUpper(op) {
		case "NS":
			newNS := strings.TrimSpace(rest)
			if newNS == "" {
				return berr.Syntax(berr.ESyntax, f.Name, lineNo, "NS requires a namespace identifier")
			}
			ns = newNS
			l.records = append(l.records, Record{Kind: RecordNamespace, Namespace: ns, FileID: fid, Line: lineNo})
			continue
		case "ASM":
			l.records = append(l.records, Record{Kind: RecordCommand, Op: "ASM", Namespace: ns, FileID: fid, Line: lineNo})
			inAsm = true
			continue
		case "INL":
			name, err := parseINLTarget(rest)
			if err != nil {
				return berr.Syntax(berr.ESyntax, f.Name, lineNo, "%s", err)
			}
			if l.lib == nil {
				return berr.Resource(berr.EFOpen, f.Name, lineNo, "INL %q: no library resolver configured", name)
			}
			inc, err := l.lib.Resolve(name)
			if err != nil {
				return berr.Resource(berr.EFOpen, f.Name, lineNo, "INL %q: %s", name, err)
			}
			tempNS := fmt.Sprintf("__inl_%d", l.inlCount)
			l.inlCount++
			if err := l.loadFile(inc, tempNS); err != nil {
				return err
			}
			continue
		default:
			args, err := parseArgList(rest, ns, fid, lineNo)
			if err != nil {
				return berr.Syntax(berr.ESyntax, f.Name, lineNo, "%s", err)
			}
			l.records = append(l.records, Record{
				Kind: RecordCommand, Op: op, Args: args, Namespace: ns, FileID: fid, Line: lineNo,
			})
		}
	}
	if inAsm {
		return berr.Syntax(berr.ESyntax, f.Name, len(lines), "unterminated ASM block")
	}
	return nil
}

// splitOpcode splits a command line into its opcode token and the
// remaining argument text. The opcode is the first whitespace- or
// open-paren-delimited token.
func splitOpcode(line string) (string, string) {
	i := 0
	for i < len(line) && !isSpace(line[i]) && line[i] != '(' {
		i++
	}
	return line[:i], strings.TrimSpace(line[i:])
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t'
}

func parseINLTarget(rest string) (string, error) {
	rest = strings.TrimSpace(rest)
	if len(rest) < 2 || rest[0] != '"' || rest[len(rest)-1] != '"' {
		return "", fmt.Errorf("INL requires a quoted library name, got %q", rest)
	}
	return rest[1 : len(rest)-1], nil
}
