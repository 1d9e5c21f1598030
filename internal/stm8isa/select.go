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
package stm8isa

import (
	"errors"
	"fmt"

	"github.com/samber/lo"

	"github.com/b1stm8/toolchain/internal/session"
)

// ErrNoCandidate reports that no registered Inst template matches a
// signature at all (an unknown mnemonic/operand shape, not an operand
// that overflowed a known one).
var ErrNoCandidate = errors.New("stm8isa: no instruction template for signature")

// PCRelOverflowError is returned by Select when every candidate that
// failed to fit did so only because a PC-relative displacement
// overflowed — the trigger for spec §4.7 step 3's re-emission pass.
type PCRelOverflowError struct {
	Signature string
}

func (e *PCRelOverflowError) Error() string {
	return fmt.Sprintf("stm8isa: %s: PC-relative displacement out of range", e.Signature)
}

// Select implements spec §4.7 steps 1-2: it orders signature's
// candidates by (speed, size) and returns the first whose operands
// (already evaluated into values, one per V placeholder) all fit. If
// every candidate fails and every failure was a PCRelative overflow,
// it returns a *PCRelOverflowError so the caller can add the line to
// its to-be-replaced set and re-emit from ExtendedTable.
func Select(signature string, values []int64) (Inst, []byte, error) {
	cands := Candidates(signature)
	if len(cands) == 0 {
		return Inst{}, nil, fmt.Errorf("%w: %s", ErrNoCandidate, signature)
	}

	fitting := lo.Filter(cands, func(c Inst, _ int) bool { return c.Fits(values) })
	if len(fitting) > 0 {
		// Candidates is already (speed, size)-ascending; MinBy over
		// that same key picks the cheapest fitting template in one
		// step rather than re-scanning by hand.
		best := lo.MinBy(fitting, func(a, b Inst) bool {
			if a.Speed != b.Speed {
				return a.Speed < b.Speed
			}
			return a.Size() < b.Size()
		})
		bytes, err := best.Encode(values)
		if err != nil {
			return Inst{}, nil, err
		}
		return best, bytes, nil
	}

	rejectedNonPCRel := lo.Filter(cands, func(c Inst, _ int) bool { return !c.PCRelative })
	if len(rejectedNonPCRel) == 0 {
		return Inst{}, nil, &PCRelOverflowError{Signature: signature}
	}
	return Inst{}, nil, fmt.Errorf("%s: no candidate fits operand(s) %v", signature, values)
}

// ExtendedTable names the replacement mnemonic(s) for a PC-relative
// instruction that overflowed, per the model-dependent rule in spec
// §4.7 step 3: small memory model flips a conditional jump around an
// unconditional long jump; large memory model upgrades the plain
// control-transfer mnemonics to their far (F-suffixed) counterparts.
// The re-emit loop this feeds only ever grows code, so it terminates.
func ExtendedTable(mnemonic string, model session.MemoryModel) ([]string, bool) {
	if model == session.MemoryModelLarge {
		switch mnemonic {
		case "JP":
			return []string{"JPF"}, true
		case "CALL":
			return []string{"CALLF"}, true
		case "CALLR":
			return []string{"CALLF"}, true
		case "RET":
			return []string{"RETF"}, true
		}
		return nil, false
	}

	switch mnemonic {
	case "JRA":
		return nil, false // unconditional: only ever widened in large model
	case "JREQ", "JRNE", "JRULT", "JRUGE", "JRULE", "JRUGT", "JRSLT", "JRSGE", "JRSLE", "JRSGT":
		return []string{invert(mnemonic), "JP"}, true
	}
	return nil, false
}

var invertTable = map[string]string{
	"JREQ": "JRNE", "JRNE": "JREQ",
	"JRULT": "JRUGE", "JRUGE": "JRULT",
	"JRULE": "JRUGT", "JRUGT": "JRULE",
	"JRSLT": "JRSGE", "JRSGE": "JRSLT",
	"JRSLE": "JRSGT", "JRSGT": "JRSLE",
}

func invert(mnemonic string) string {
	return invertTable[mnemonic]
}
