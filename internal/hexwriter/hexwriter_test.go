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
package hexwriter

import (
	"bytes"
	"strings"
	"testing"
)

func TestSimpleDataRecord(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)
	if err := w.SetAddress(0x0000); err != nil {
		t.Fatalf("SetAddress: %v", err)
	}
	if _, err := w.Write([]byte{0x01, 0x02, 0x03}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\r\n")
	if len(lines) != 2 {
		t.Fatalf("expected a data record and an EOF record, got %d lines: %v", len(lines), lines)
	}
	if !strings.HasPrefix(lines[0], ":03000000010203") {
		t.Errorf("unexpected data record: %s", lines[0])
	}
	if lines[1] != ":00000001FF" {
		t.Errorf("unexpected EOF record: %s", lines[1])
	}
}

func TestExtendedLinearAddressOnHighChange(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)
	if err := w.SetAddress(0x00010000); err != nil {
		t.Fatalf("SetAddress: %v", err)
	}
	if _, err := w.Write([]byte{0xAA}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\r\n")
	if len(lines) != 3 {
		t.Fatalf("expected ELA + data + EOF, got %d: %v", len(lines), lines)
	}
	if lines[0] != ":020000040001F9" {
		t.Errorf("expected an Extended Linear Address record for high=0x0001, got %s", lines[0])
	}
}

func TestRecordSplitsAt16Bytes(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)
	w.SetAddress(0)
	payload := make([]byte, 20)
	for i := range payload {
		payload[i] = byte(i)
	}
	w.Write(payload)
	w.Close()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\r\n")
	if len(lines) != 3 { // 16-byte record + 4-byte record + EOF
		t.Fatalf("expected 3 lines, got %d: %v", len(lines), lines)
	}
	if !strings.HasPrefix(lines[0], ":10") {
		t.Errorf("expected a 16-byte (0x10) record, got %s", lines[0])
	}
	if !strings.HasPrefix(lines[1], ":04") {
		t.Errorf("expected the trailing 4-byte record, got %s", lines[1])
	}
}

func TestNonMonotonicAddressRejected(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)
	w.SetAddress(0x100)
	w.Write([]byte{1})
	if err := w.SetAddress(0x50); err == nil {
		t.Error("expected an error for a backward SetAddress")
	}
}

func TestChecksumIsTwosComplement(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)
	w.SetAddress(0)
	w.Write([]byte{0x00})
	w.Close()
	line := strings.Split(buf.String(), "\r\n")[0]
	// :01 0000 00 00 FF -> len=1,addr=0000,type=00,data=00,checksum=FF
	if line != ":0100000000FF" {
		t.Errorf("unexpected record: %s", line)
	}
}
