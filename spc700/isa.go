package spc700

import (
	"regexp"
	"strings"
)

// OperandKind tags the variant held by an OperandSpec or a ParsedOperand.
type OperandKind int

const (
	KindReg OperandKind = iota
	KindImplied
	KindConst
	KindImm
	KindRel
	KindDpBit
	KindBitAbs
	KindDp
	KindDpIndex
	KindIndDpY
	KindIndDpX
	KindAbs
	KindIndAbsX
)

var registerTokens = map[string]bool{"A": true, "X": true, "Y": true, "SP": true, "PSW": true, "YA": true, "C": true}
var impliedTokens = map[string]bool{"(X)": true, "(Y)": true, "(X)+": true}

// noReversePrefixes are the mnemonic prefixes exempt from chunk reversal.
var noReversePrefixes = []string{"BBC", "BBS", "CBNE", "DBNZ"}

// OperandSpec describes what one opcode's operand slot expects.
type OperandSpec struct {
	Token string      // exact spec token, e.g. "d.2", "!a+X"
	Size  int         // encoded byte count: 0, 1 or 2
	Kind  OperandKind
}

func (s OperandSpec) isBytes() bool { return s.Size > 0 }

// OpcodeEntry is one immutable row of the opcode table.
type OpcodeEntry struct {
	Opcode        byte
	Template      string
	Mnemonic      string
	Operands      []OperandSpec
	Length        int
	ReverseChunks bool
}

// ISA is the immutable, shareable opcode table produced by ParseISA.
type ISA struct {
	byOpcode [256]*OpcodeEntry
	byMn     map[string][]*OpcodeEntry
}

// Entry returns the opcode table row for op, or nil if somehow unset
// (cannot happen for a successfully parsed ISA).
func (t *ISA) Entry(op byte) *OpcodeEntry {
	return t.byOpcode[op]
}

// Candidates returns every opcode entry sharing mnemonic (case-insensitive).
func (t *ISA) Candidates(mnemonic string) []*OpcodeEntry {
	return t.byMn[strings.ToUpper(mnemonic)]
}

var headerRe = regexp.MustCompile(`Mnemonic\s+Code\s+Bytes\s+Cyc\s+Operation\s+NVPBHIZC`)

var rowRe = regexp.MustCompile(`(?s)([A-Z][A-Z0-9]*.*?)\s+([0-9A-F]{2})\s+([1-3])\s+(\d+(?:/\d+)?|\?)\s+.*?\s+([NVPBHIZC.01]{8})(?:\s+|$)`)

var wsRe = regexp.MustCompile(`\s+`)
var ddRe = regexp.MustCompile(`\bdd\b`)
var dsRe = regexp.MustCompile(`\bds\b`)

func normalizeTemplate(tmpl string) string {
	t := wsRe.ReplaceAllString(strings.TrimSpace(tmpl), " ")
	t = ddRe.ReplaceAllString(t, "d")
	t = dsRe.ReplaceAllString(t, "d")
	return t
}

func splitTemplate(tmpl string) (string, []string) {
	t := normalizeTemplate(tmpl)
	idx := strings.IndexByte(t, ' ')
	if idx < 0 {
		return t, nil
	}
	mn := t[:idx]
	rest := strings.TrimSpace(t[idx+1:])
	if rest == "" {
		return mn, nil
	}
	var ops []string
	if strings.Contains(rest, ",") {
		for _, o := range strings.Split(rest, ",") {
			o = strings.TrimSpace(o)
			if o != "" {
				ops = append(ops, o)
			}
		}
	} else {
		ops = []string{rest}
	}
	return mn, ops
}

var digitsRe = regexp.MustCompile(`^\d+$`)
var dpBitRe = regexp.MustCompile(`^d\.\d$`)

func operandSpecFromToken(tok string) OperandSpec {
	t := strings.TrimSpace(tok)

	switch {
	case digitsRe.MatchString(t):
		return OperandSpec{Token: t, Size: 0, Kind: KindConst}
	case registerTokens[t]:
		return OperandSpec{Token: t, Size: 0, Kind: KindReg}
	case impliedTokens[t]:
		return OperandSpec{Token: t, Size: 0, Kind: KindImplied}
	case t == "#i" || t == "up":
		return OperandSpec{Token: t, Size: 1, Kind: KindImm}
	case t == "r":
		return OperandSpec{Token: t, Size: 1, Kind: KindRel}
	case t == "m.b":
		return OperandSpec{Token: t, Size: 2, Kind: KindBitAbs}
	case dpBitRe.MatchString(t) || t == "d.#":
		return OperandSpec{Token: t, Size: 1, Kind: KindDpBit}
	case t == "d":
		return OperandSpec{Token: t, Size: 1, Kind: KindDp}
	case t == "d+X" || t == "d+Y":
		return OperandSpec{Token: t, Size: 1, Kind: KindDpIndex}
	case strings.HasPrefix(t, "[d]+Y"):
		return OperandSpec{Token: t, Size: 1, Kind: KindIndDpY}
	case strings.HasPrefix(t, "[d+X]"):
		return OperandSpec{Token: t, Size: 1, Kind: KindIndDpX}
	case strings.HasPrefix(t, "[!a+X]"):
		return OperandSpec{Token: t, Size: 2, Kind: KindIndAbsX}
	case strings.HasPrefix(t, "!a"):
		return OperandSpec{Token: t, Size: 2, Kind: KindAbs}
	default:
		return OperandSpec{Token: t, Size: 0, Kind: KindImplied}
	}
}

func shouldReverse(mnemonic string, ops []OperandSpec) bool {
	nbytes := 0
	for _, o := range ops {
		if o.isBytes() {
			nbytes++
		}
	}
	if nbytes <= 1 {
		return false
	}
	for _, p := range noReversePrefixes {
		if strings.HasPrefix(mnemonic, p) {
			return false
		}
	}
	return true
}

// ParseISA parses an Anomie-style spc700.txt opcode reference into an
// immutable ISA table. Fails if the header is absent or the table does
// not yield exactly 256 distinct opcodes.
func ParseISA(text string) (*ISA, error) {
	loc := headerRe.FindStringIndex(text)
	if loc == nil {
		return nil, errOpcodeTableMalformed("could not locate opcode table header")
	}
	table := text[loc[1]:]

	t := &ISA{byMn: make(map[string][]*OpcodeEntry)}
	seen := make(map[byte]bool)

	for _, m := range rowRe.FindAllStringSubmatch(table, -1) {
		tmplRaw := strings.TrimSpace(m[1])
		code, err := parseHexByte(m[2])
		if err != nil {
			return nil, errOpcodeTableMalformed("bad opcode byte " + m[2])
		}
		length := int(m[3][0] - '0')

		tmpl := normalizeTemplate(tmplRaw)
		mnemonic, opTokens := splitTemplate(tmpl)
		ops := make([]OperandSpec, len(opTokens))
		for i, tok := range opTokens {
			ops[i] = operandSpecFromToken(tok)
		}
		reverse := shouldReverse(mnemonic, ops)

		entry := &OpcodeEntry{
			Opcode:        code,
			Template:      tmpl,
			Mnemonic:      mnemonic,
			Operands:      ops,
			Length:        length,
			ReverseChunks: reverse,
		}
		t.byOpcode[code] = entry
		seen[code] = true
		mnUp := strings.ToUpper(mnemonic)
		t.byMn[mnUp] = append(t.byMn[mnUp], entry)
	}

	if len(seen) != 256 {
		var missing []int
		for i := 0; i < 256; i++ {
			if !seen[byte(i)] {
				missing = append(missing, i)
			}
		}
		return nil, errOpcodeTableIncomplete(missing)
	}

	return t, nil
}

func parseHexByte(s string) (byte, error) {
	v := 0
	for _, c := range s {
		v *= 16
		switch {
		case c >= '0' && c <= '9':
			v += int(c - '0')
		case c >= 'A' && c <= 'F':
			v += int(c-'A') + 10
		default:
			return 0, errOpcodeTableMalformed("bad hex digit")
		}
	}
	return byte(v), nil
}
