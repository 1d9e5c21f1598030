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

	"github.com/b1stm8/toolchain/internal/symtab"
)

// splitTopLevel splits s on sep, ignoring occurrences of sep nested
// inside (), <> or "" — the loader is strictly streaming and never
// backtracks, so this single pass is all argument splitting ever
// needs.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depthParen, depthAngle := 0, 0
	inQuote := false
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' && (i == 0 || s[i-1] != '\\'):
			inQuote = !inQuote
		case inQuote:
			// nothing; quoted content never splits
		case c == '(':
			depthParen++
		case c == ')':
			depthParen--
		case c == '<':
			depthAngle++
		case c == '>':
			depthAngle--
		case c == sep && depthParen == 0 && depthAngle == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	parts = append(parts, s[start:])
	return parts
}

func parseType(s string) symtab.Type {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BYTE":
		return symtab.TypeByte
	case "INT":
		return symtab.TypeInt
	case "WORD":
		return symtab.TypeWord
	case "LONG":
		return symtab.TypeLong
	case "STRING":
		return symtab.TypeString
	case "LABEL":
		return symtab.TypeLabel
	case "VARREF":
		return symtab.TypeVarRef
	case "TEXT":
		return symtab.TypeText
	default:
		return symtab.TypeUnknown
	}
}

// parseArgList splits a top-level comma list and parses each element,
// used both for a command's overall argument list and for the
// comma-separated contents of a single parenthesized group.
func parseArgList(s string, ns string, fileID, line int) ([]*Arg, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := splitTopLevel(s, ',')
	args := make([]*Arg, 0, len(parts))
	for _, p := range parts {
		a, err := parseArg(p, ns, fileID, line)
		if err != nil {
			return nil, err
		}
		args = append(args, a)
	}
	return args, nil
}

// parseArg parses one argument expression: a quoted string literal, a
// bare numeric literal, or name<TYPE> followed by zero or more
// parenthesized groups. Most opcodes use exactly one trailing group
// (the call/subscript argument list); GA's per-dimension bounds
// syntax, "V<INT>(lo,hi)(lo,hi)", is the one grammar form that chains
// several groups back to back, so every trailing group is collected
// rather than assuming there is at most one.
func parseArg(s string, ns string, fileID, line int) (*Arg, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%d: empty argument", line)
	}

	if s[0] == '"' {
		if len(s) < 2 || s[len(s)-1] != '"' {
			return nil, fmt.Errorf("%d: unterminated string literal", line)
		}
		return &Arg{
			Type:      symtab.TypeString,
			Immediate: true,
			Literal:   unescapeString(s[1 : len(s)-1]),
			FileID:    fileID,
			Line:      line,
		}, nil
	}

	// A bare numeric literal (decimal or 0x-hex, optionally signed)
	// is immediate with no declared type of its own and never carries
	// trailing groups; the caller infers its type contextually during
	// lowering.
	if isNumericLiteral(s) {
		return &Arg{Immediate: true, Literal: s, FileID: fileID, Line: line}, nil
	}

	// Identifier, with optional <TYPE> and trailing (...)* groups.
	i := 0
	for i < len(s) && isIdentByte(s[i]) {
		i++
	}
	// "::" is part of the identifier's namespace-qualification prefix.
	for strings.HasPrefix(s[i:], "::") {
		i += 2
		for i < len(s) && isIdentByte(s[i]) {
			i++
		}
	}
	name := s[:i]
	if name == "" {
		return nil, fmt.Errorf("%d: missing argument name in %q", line, s)
	}
	if strings.HasPrefix(name, "::") {
		name = ns + "::" + name[2:]
	}

	typ := symtab.TypeUnknown
	if i < len(s) && s[i] == '<' {
		end := matchingAngle(s, i)
		if end < 0 {
			return nil, fmt.Errorf("%d: unterminated type annotation in %q", line, s)
		}
		typ = parseType(s[i+1 : end])
		i = end + 1
	}

	arg := &Arg{Name: name, Type: typ, FileID: fileID, Line: line}
	for i < len(s) && s[i] == '(' {
		end := matchingParen(s, i)
		if end < 0 {
			return nil, fmt.Errorf("%d: unbalanced parentheses in %q", line, s)
		}
		inner, err := parseArgList(s[i+1:end], ns, fileID, line)
		if err != nil {
			return nil, err
		}
		arg.Args = append(arg.Args, &Arg{Args: inner, FileID: fileID, Line: line})
		i = end + 1
	}
	if i != len(s) {
		return nil, fmt.Errorf("%d: unexpected trailing text in argument %q", line, s)
	}
	return arg, nil
}

func isIdentByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// matchingAngle returns the index of the '>' matching the '<' at
// open, or -1 if there is none at the top level.
func matchingAngle(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '<':
			depth++
		case '>':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// matchingParen returns the index of the ')' matching the '(' at
// open, respecting nested parens and quoted strings.
func matchingParen(s string, open int) int {
	depth := 0
	inQuote := false
	for i := open; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' && (i == 0 || s[i-1] != '\\'):
			inQuote = !inQuote
		case inQuote:
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func isNumericLiteral(s string) bool {
	if s == "" {
		return false
	}
	i := 0
	if s[0] == '-' || s[0] == '+' {
		i++
	}
	if i >= len(s) {
		return false
	}
	if strings.HasPrefix(s[i:], "0x") || strings.HasPrefix(s[i:], "0X") {
		if len(s) <= i+2 {
			return false
		}
		for _, c := range s[i+2:] {
			if !isHexDigit(byte(c)) {
				return false
			}
		}
		return true
	}
	for _, c := range s[i:] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// unescapeString resolves `\`-escapes and "" quote-escapes within a
// quoted IR string literal.
func unescapeString(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '\\' && i+1 < len(s):
			i++
			switch s[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case '\\':
				b.WriteByte('\\')
			case '"':
				b.WriteByte('"')
			default:
				b.WriteByte(s[i])
			}
		case s[i] == '"' && i+1 < len(s) && s[i+1] == '"':
			b.WriteByte('"')
			i++
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// Group returns the n'th trailing parenthesized group's comma-split
// elements, or nil if there is no such group. Most opcodes have at
// most one group (n == 0); GA's per-dimension bounds use one group
// per dimension.
func (a *Arg) Group(n int) []*Arg {
	if n < 0 || n >= len(a.Args) {
		return nil
	}
	return a.Args[n].Args
}

// GroupCount returns the number of trailing parenthesized groups.
func (a *Arg) GroupCount() int {
	return len(a.Args)
}
