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

// Package report renders the -mu memory-usage table: one row per
// section with its used/free/total byte counts.
package report

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/b1stm8/toolchain/internal/section"
)

// MemoryUsage writes the -mu table to w: every section's used/free/
// total, plus combined RAM (DATA+HEAP+STACK) and ROM (INIT+CONST+CODE)
// rows, against the given budgets.
func MemoryUsage(w io.Writer, layout *section.Layout, ramSize, romSize int) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SECTION\tUSED\tFREE\tTOTAL")

	ramUsed := 0
	romUsed := 0
	for _, kind := range []section.Kind{section.Heap, section.Stack, section.Data, section.CodeInit, section.Const, section.Code} {
		used := layout.Sizes[kind]
		switch kind {
		case section.Heap, section.Stack, section.Data:
			ramUsed += used
		case section.CodeInit, section.Const, section.Code:
			romUsed += used
		}
		fmt.Fprintf(tw, "%s\t%d\t-\t-\n", kind, used)
	}
	fmt.Fprintf(tw, "RAM\t%d\t%d\t%d\n", ramUsed, ramSize-ramUsed, ramSize)
	fmt.Fprintf(tw, "ROM\t%d\t%d\t%d\n", romUsed, romSize-romUsed, romSize)
	return tw.Flush()
}
