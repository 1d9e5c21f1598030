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

// Package devices is the narrow external-collaborator interface for
// IN/OUT/GET/PUT/TRR/IOCTL device lookup (spec §1 non-goal: real
// device-config (.cfg) and IO-descriptor (.io) file loading lives
// outside this repo). It ships a minimal built-in table sufficient to
// drive lowering and its tests, following the registry idiom of the
// teacher's ArchParser registry (arch.go's RegisterParser/GetParser).
package devices

import "fmt"

// Option is a bitset of device capability flags (spec §4.3).
type Option int

const (
	OptText Option = 1 << iota // TXT: textual representation
	OptBinary                  // BIN: raw binary representation
	OptInline                  // INL: emitter inlines an assembly template
)

// Device describes one IO device's command surface.
type Device struct {
	Name    string
	Options Option
	// Commands maps an IOCTL/TRR command name to its helper routine
	// label (e.g. "__LIB_UART_OUT") used when Options does not include
	// OptInline.
	Commands map[string]string
}

// HasOption reports whether opt is set on the device.
func (d *Device) HasOption(opt Option) bool {
	return d.Options&opt != 0
}

// InlineTemplateName returns the library file name an INL-flagged
// emitter should fetch for cmd, following the
// __LIB_<dev>_<cmd>_INL.b1c naming convention (spec §4.3).
func (d *Device) InlineTemplateName(cmd string) string {
	return fmt.Sprintf("__LIB_%s_%s_INL.b1c", d.Name, cmd)
}

var registry = map[string]*Device{}

// Register adds or replaces the device table entry for name.
func Register(dev *Device) {
	registry[dev.Name] = dev
}

// Lookup returns the device registered under name, or nil if unknown.
func Lookup(name string) *Device {
	return registry[name]
}

// Names returns every registered device name.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	return names
}

func init() {
	Register(&Device{
		Name:    "OUT",
		Options: OptText | OptBinary,
		Commands: map[string]string{
			"WRITE": "__LIB_OUT_WRITE",
			"CLS":   "__LIB_OUT_CLS",
		},
	})
	Register(&Device{
		Name:    "IN",
		Options: OptText,
		Commands: map[string]string{
			"READ": "__LIB_IN_READ",
		},
	})
	Register(&Device{
		Name:    "UART",
		Options: OptBinary | OptInline,
		Commands: map[string]string{
			"PUT":    "__LIB_UART_PUT",
			"GET":    "__LIB_UART_GET",
			"CONFIG": "__LIB_UART_CONFIG",
		},
	})
	Register(&Device{
		Name:    "LED",
		Options: OptBinary | OptInline,
		Commands: map[string]string{
			"ON":  "__LIB_LED_ON",
			"OFF": "__LIB_LED_OFF",
		},
	})
}
