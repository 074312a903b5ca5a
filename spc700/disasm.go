package spc700

import (
	"fmt"
	"strings"
)

// Disassembler recovers assembly text from a byte buffer, given the
// immutable opcode table it was constructed from. It is stateless and
// safe to reuse across calls.
type Disassembler struct {
	isa *ISA
}

// NewDisassembler builds a Disassembler bound to isa.
func NewDisassembler(isa *ISA) *Disassembler {
	return &Disassembler{isa: isa}
}

// ScanTargets walks data (located at origin) and returns every
// branch/absolute/bit-absolute target address it can decode, in the
// order encountered. Unknown opcode bytes advance by one and produce
// no targets; an instruction whose declared length overruns the buffer
// stops the scan.
func (d *Disassembler) ScanTargets(data []byte, origin uint16) []uint16 {
	var targets []uint16
	pc := origin
	i := 0
	for i < len(data) {
		op := data[i]
		e := d.isa.Entry(op)
		if e == nil {
			i++
			pc++
			continue
		}
		if i+e.Length > len(data) {
			break
		}
		raw := data[i : i+e.Length]
		_, t := d.formatEntry(e, raw, pc, nil)
		targets = append(targets, t...)
		i += e.Length
		pc += uint16(e.Length)
	}
	return targets
}

// DisassembleSegment renders data (located at origin) as assembly text.
// labelMap maps addresses to label names; when nil, addresses are
// rendered numerically. header, if non-empty, is emitted verbatim as
// the first line (e.g. ".org $2000" or ".patch $1BBD, \"Name\"").
func (d *Disassembler) DisassembleSegment(data []byte, origin uint16, labelMap map[uint16]string, header string) string {
	type insn struct {
		pc  uint16
		raw []byte
		asm string
	}
	var insns []insn

	pc := origin
	i := 0
	for i < len(data) {
		op := data[i]
		e := d.isa.Entry(op)
		if e == nil {
			insns = append(insns, insn{pc, []byte{op}, ".byte " + toHex8(op)})
			i++
			pc++
			continue
		}
		if i+e.Length > len(data) {
			tail := data[i:]
			parts := make([]string, len(tail))
			for j, b := range tail {
				parts[j] = toHex8(b)
			}
			insns = append(insns, insn{pc, tail, ".byte " + strings.Join(parts, ", ")})
			break
		}
		raw := data[i : i+e.Length]
		asm, _ := d.formatEntry(e, raw, pc, labelMap)
		insns = append(insns, insn{pc, raw, asm})
		i += e.Length
		pc += uint16(e.Length)
	}

	var out []string
	if header != "" {
		out = append(out, header)
	}
	for _, ins := range insns {
		if labelMap != nil {
			if lbl, ok := labelMap[ins.pc]; ok {
				out = append(out, lbl+":")
			}
		}
		out = append(out, fmt.Sprintf("    %-28s ; %s", ins.asm, BytesToHex(ins.raw, true)))
	}
	return strings.Join(out, "\n") + "\n"
}

var dpBitTokenRe = func() func(string) int {
	return func(tok string) int {
		dot := strings.IndexByte(tok, '.')
		if dot < 0 || dot+1 >= len(tok) {
			return 0
		}
		n := 0
		for _, c := range tok[dot+1:] {
			if c < '0' || c > '9' {
				break
			}
			n = n*10 + int(c-'0')
		}
		return n
	}
}()

// formatEntry renders one decoded instruction and returns any
// branch/absolute/bit-absolute targets it contains.
func (d *Disassembler) formatEntry(e *OpcodeEntry, raw []byte, pc uint16, labelMap map[uint16]string) (string, []uint16) {
	enc := raw[1:]

	var sizes []int
	for _, op := range e.Operands {
		if op.isBytes() {
			sizes = append(sizes, op.Size)
		}
	}

	sizesForRead := sizes
	if e.ReverseChunks {
		sizesForRead = reversedInts(sizes)
	}

	var chunksRead [][]byte
	idx := 0
	for _, sz := range sizesForRead {
		chunksRead = append(chunksRead, enc[idx:idx+sz])
		idx += sz
	}

	chunks := chunksRead
	if e.ReverseChunks {
		chunks = reversedByteSlices(chunksRead)
	}

	fmtAddr := func(addr uint16) string {
		if labelMap != nil {
			if lbl, ok := labelMap[addr]; ok {
				return lbl
			}
		}
		return toHex16(addr)
	}

	var finalOps []string
	var targets []uint16
	ci := 0

	for _, spec := range e.Operands {
		if !spec.isBytes() {
			finalOps = append(finalOps, spec.Token)
			continue
		}

		b := chunks[ci]
		ci++

		var v string
		switch spec.Kind {
		case KindImm:
			v = "#" + toHex8(b[0])
		case KindDp, KindDpIndex, KindIndDpY, KindIndDpX:
			v = toHex8(b[0])
		case KindAbs, KindIndAbsX:
			w := uint16(b[0]) | uint16(b[1])<<8
			v = fmtAddr(w)
			targets = append(targets, w)
		case KindRel:
			off := sign8(b[0])
			tgt := u16(int(pc) + e.Length + off)
			v = fmtAddr(tgt)
			targets = append(targets, tgt)
		case KindDpBit:
			bit := dpBitTokenRe(spec.Token)
			v = fmt.Sprintf("%s.%d", toHex8(b[0]), bit)
		case KindBitAbs:
			w := uint16(b[0]) | uint16(b[1])<<8
			addr, bit := unpackBitAbs(w)
			v = fmt.Sprintf("%s.%d", fmtAddr(addr), bit)
			targets = append(targets, addr)
		default:
			v = BytesToHex(b, true)
		}

		tok := spec.Token
		switch {
		case tok == "[d]+Y":
			v = "[" + v + "]+Y"
		case tok == "[d+X]":
			v = "[" + v + "+X]"
		case tok == "[!a+X]":
			v = "[" + v + "+X]"
		case strings.HasSuffix(tok, "+X"):
			v = v + "+X"
		case strings.HasSuffix(tok, "+Y"):
			v = v + "+Y"
		}

		finalOps = append(finalOps, v)
	}

	asm := e.Mnemonic
	if len(finalOps) > 0 {
		asm += " " + strings.Join(finalOps, ", ")
	}
	return asm, targets
}

func reversedInts(s []int) []int {
	out := make([]int, len(s))
	for i, v := range s {
		out[len(s)-1-i] = v
	}
	return out
}

func reversedByteSlices(s [][]byte) [][]byte {
	out := make([][]byte, len(s))
	for i, v := range s {
		out[len(s)-1-i] = v
	}
	return out
}
