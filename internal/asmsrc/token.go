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

// Package asmsrc is the assembler's front end (spec §4.5): a
// tokenizer recognizing directives, labels, literals and operators,
// and an expression engine evaluating them in STM8-assembler
// precedence order.
package asmsrc

// Kind classifies one Token.
type Kind int

const (
	KindEOF Kind = iota
	KindDirective
	KindLabel
	KindNumber
	KindString
	KindChar
	KindIdent
	KindOp
	KindComma
	KindLParen
	KindRParen
	KindLBracket
	KindRBracket
)

func (k Kind) String() string {
	switch k {
	case KindDirective:
		return "directive"
	case KindLabel:
		return "label"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindChar:
		return "char"
	case KindIdent:
		return "ident"
	case KindOp:
		return "op"
	case KindComma:
		return "comma"
	case KindLParen:
		return "("
	case KindRParen:
		return ")"
	case KindLBracket:
		return "["
	case KindRBracket:
		return "]"
	default:
		return "eof"
	}
}

// Token is one lexed unit: its Kind, raw Text, and for numeric/char
// literals its already-evaluated Value.
type Token struct {
	Kind  Kind
	Text  string
	Value int64
	Line  int
}
