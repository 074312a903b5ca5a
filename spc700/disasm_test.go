package spc700

import (
	"strings"
	"testing"
)

func TestDisassembleSegmentBasic(t *testing.T) {
	isa := buildTestISA()
	d := NewDisassembler(isa)

	// NOP ; MOV A,#$05 ; MOV A,X
	data := []byte{0x00, 0xE8, 0x05, 0x7D}
	out := d.DisassembleSegment(data, 0x1000, nil, ".org $1000")

	want := []string{".org $1000", "NOP", "MOV A, #$05", "MOV A, X"}
	for _, w := range want {
		if !strings.Contains(out, w) {
			t.Errorf("output missing %q:\n%s", w, out)
		}
	}
}

func TestDisassembleSegmentUnknownOpcodeEmitsByteDirective(t *testing.T) {
	isa := buildTestISA()
	d := NewDisassembler(isa)

	data := []byte{0xFF, 0x00}
	out := d.DisassembleSegment(data, 0x2000, nil, "")
	if !strings.Contains(out, ".byte $FF") {
		t.Errorf("expected .byte directive for unknown opcode, got:\n%s", out)
	}
}

func TestDisassembleSegmentTruncatedTailEmitsByteList(t *testing.T) {
	isa := buildTestISA()
	d := NewDisassembler(isa)

	// BRA is a 2-byte instruction; give it only one byte.
	data := []byte{0x2F}
	out := d.DisassembleSegment(data, 0x3000, nil, "")
	if !strings.Contains(out, ".byte $2F") {
		t.Errorf("expected truncated-tail byte list, got:\n%s", out)
	}
}

func TestDisassembleSegmentLabelsAndBranchTarget(t *testing.T) {
	isa := buildTestISA()
	d := NewDisassembler(isa)

	// at $0000: BRA +2 (lands on the MOV A,X at $0004)
	data := []byte{0x2F, 0x02, 0x00, 0x00, 0x7D}
	labels := map[uint16]string{0x0004: "loop"}
	out := d.DisassembleSegment(data, 0, labels, "")

	if !strings.Contains(out, "BRA loop") {
		t.Errorf("expected branch to resolve to label 'loop', got:\n%s", out)
	}
	if !strings.Contains(out, "loop:") {
		t.Errorf("expected label definition line, got:\n%s", out)
	}
}

func TestDisassembleSegmentAbsoluteAndBitAbs(t *testing.T) {
	isa := buildTestISA()
	d := NewDisassembler(isa)

	// MOV !a,A with a = $1234 (little-endian operand bytes)
	data := []byte{0xC5, 0x34, 0x12}
	out := d.DisassembleSegment(data, 0, nil, "")
	if !strings.Contains(out, "$1234") {
		t.Errorf("expected absolute address in output, got:\n%s", out)
	}

	// AND1 C,m.b with bit 2 of address $0100 packed per packBitAbs
	w := packBitAbs(0x0100, 2)
	data = []byte{0x4E, byte(w & 0xFF), byte(w >> 8)}
	out = d.DisassembleSegment(data, 0, nil, "")
	if !strings.Contains(out, "$0100.2") {
		t.Errorf("expected bit-absolute operand $0100.2, got:\n%s", out)
	}
}

func TestScanTargetsCollectsBranchAndAbsolute(t *testing.T) {
	isa := buildTestISA()
	d := NewDisassembler(isa)

	data := []byte{0xC5, 0x34, 0x12, 0x2F, 0x01}
	targets := d.ScanTargets(data, 0)

	found := make(map[uint16]bool)
	for _, tg := range targets {
		found[tg] = true
	}
	if !found[0x1234] {
		t.Errorf("expected absolute target $1234 in %v", targets)
	}
	// BRA at pc=3, operand +1, length 2 -> target = 3+2+1 = 6
	if !found[0x0006] {
		t.Errorf("expected branch target $0006 in %v", targets)
	}
}
