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
package lower

import (
	"strconv"
	"strings"

	"github.com/b1stm8/toolchain/internal/berr"
	"github.com/b1stm8/toolchain/internal/devices"
	"github.com/b1stm8/toolchain/internal/ir"
)

// InlineResolver fetches the body of an inline assembly template named
// by a device's __LIB_<dev>_<cmd>_INL.b1c convention (spec §4.3). It is
// the narrow collaborator an InlineResolver-equipped caller supplies;
// without one, INL-flagged devices degrade to an ordinary CALL of the
// same routine name, minus the ".b1c" suffix, with the substitution
// templating skipped.
type InlineResolver interface {
	ResolveTemplate(name string) (string, bool)
}

// stm8WriteIOCtl handles IN/OUT/GET/PUT/TRR/IOCTL (spec §4.3): looks
// the destination device up, and either inlines its assembly template
// or calls its helper routine.
func (e *Engine) stm8WriteIOCtl(r *ir.Record) error {
	if len(r.Args) == 0 {
		return berr.Syntax(berr.EUnkIODev, "", r.Line, "%s: missing device argument", r.Op)
	}
	devArg := r.Args[0]
	dev := devices.Lookup(devArg.Name)
	if dev == nil {
		return berr.Syntax(berr.EUnkIODev, "", r.Line, "unknown device %q", devArg.Name)
	}

	group := devArg.Group(0)
	cmd := r.Op
	var values []*ir.Arg
	if len(group) > 0 {
		cmd = group[0].Name
		values = group[0].Group(0)
	}

	for _, a := range values {
		if _, err := e.load(a, a.Type, KindRegister, KindImmVal, KindMemRef); err != nil {
			return err
		}
	}

	if dev.HasOption(devices.OptInline) {
		template := dev.InlineTemplateName(cmd)
		e.out.require(template)
		if e.inliner != nil {
			if body, ok := e.inliner.ResolveTemplate(template); ok {
				for _, line := range strings.Split(strings.TrimRight(body, "\n"), "\n") {
					e.out.Lines = append(e.out.Lines, Line{Text: line, Volatile: true})
				}
				return nil
			}
		}
		e.out.emitf("CALL %s", strings.TrimSuffix(template, ".b1c"))
		return nil
	}

	helper, ok := dev.Commands[cmd]
	if !ok {
		return berr.Syntax(berr.EUnkIODev, "", r.Line, "%s: device %s has no %s command", r.Op, devArg.Name, cmd)
	}
	e.out.require(helper)
	e.out.emitf("CALL %s", helper)
	return nil
}

// mergeIOCTLRun folds a run of consecutive IOCTL records targeting the
// same device and id into a single merged record whose mask/value
// arguments have been OR-accumulated (spec §4.3: "IOCTL with
// predefined values ORs together successive commands with the same id
// ... until the run of compatible commands ends"). It returns the
// merged record and the number of source records consumed.
func mergeIOCTLRun(records []ir.Record, start int) (ir.Record, int) {
	first := records[start]
	cmd, inner, ok := ioctlShape(&first)
	if !ok || len(inner) < 2 {
		return first, 1
	}
	devName := first.Args[0].Name
	id := inner[0].Literal
	maskSum, allLiteral := 0, true
	if n, err := strconv.Atoi(inner[1].Literal); err == nil && inner[1].Immediate {
		maskSum = n
	} else {
		allLiteral = false
	}

	consumed := 1
	for start+consumed < len(records) {
		next := records[start+consumed]
		if next.Kind != ir.RecordCommand || next.Op != "IOCTL" || len(next.Args) == 0 || next.Args[0].Name != devName {
			break
		}
		nextCmd, nextInner, ok := ioctlShape(&next)
		if !ok || nextCmd != cmd || len(nextInner) < 2 || nextInner[0].Literal != id {
			break
		}
		if allLiteral && nextInner[1].Immediate {
			if n, err := strconv.Atoi(nextInner[1].Literal); err == nil {
				maskSum |= n
			} else {
				allLiteral = false
			}
		} else {
			allLiteral = false
		}
		consumed++
	}

	if !allLiteral || consumed == 1 {
		return first, 1
	}

	merged := first
	mergedInner := append([]*ir.Arg{inner[0], {Immediate: true, Literal: strconv.Itoa(maskSum), Type: inner[1].Type}}, inner[2:]...)
	cmdArg := first.Args[0].Group(0)[0]
	mergedCmd := &ir.Arg{Name: cmdArg.Name, Type: cmdArg.Type, Args: []*ir.Arg{{Args: mergedInner}}}
	mergedDev := &ir.Arg{
		Name: devName,
		Type: first.Args[0].Type,
		Args: []*ir.Arg{{Args: []*ir.Arg{mergedCmd}}},
	}
	merged.Args = append([]*ir.Arg{mergedDev}, first.Args[1:]...)
	return merged, consumed
}

// ioctlShape extracts an IOCTL record's command name and its argument
// list (the "id, value" pair that accumulates across a run).
func ioctlShape(r *ir.Record) (cmd string, inner []*ir.Arg, ok bool) {
	if len(r.Args) == 0 || r.Args[0].GroupCount() == 0 {
		return "", nil, false
	}
	group := r.Args[0].Group(0)
	if len(group) == 0 {
		return "", nil, false
	}
	return group[0].Name, group[0].Group(0), true
}
