package spc700

// buildTestISA constructs a small, hand-picked ISA covering the operand
// kinds the assembler and disassembler tests use (no implied, constant
// or [!a+X] operands) without requiring a full 256-entry table — ParseISA's
// completeness check only applies to the parser itself, not to an
// ISA value assembled directly in tests.
func buildTestISA() *ISA {
	raw := []struct {
		mn   string
		op   byte
		ln   int
		toks []string
	}{
		{"NOP", 0x00, 1, nil},
		{"MOV", 0xE8, 2, []string{"A", "#i"}},
		{"MOV", 0x7D, 1, []string{"A", "X"}},
		{"BRA", 0x2F, 2, []string{"r"}},
		{"MOV", 0xC4, 2, []string{"d", "A"}},
		{"MOV", 0xD4, 2, []string{"d+X", "A"}},
		{"MOV", 0xC5, 3, []string{"!a", "A"}},
		{"MOV", 0xD5, 3, []string{"!a+X", "A"}},
		{"MOV", 0xC7, 2, []string{"[d+X]", "A"}},
		{"MOV", 0xD7, 2, []string{"[d]+Y", "A"}},
		{"SET1", 0x02, 2, []string{"d.0"}},
		{"AND1", 0x4E, 3, []string{"C", "m.b"}},
		{"MOV", 0x8F, 3, []string{"d", "#i"}},
		{"BBC", 0x13, 3, []string{"d.0", "r"}},
	}

	isa := &ISA{byMn: make(map[string][]*OpcodeEntry)}
	for _, r := range raw {
		ops := make([]OperandSpec, len(r.toks))
		for i, tok := range r.toks {
			ops[i] = operandSpecFromToken(tok)
		}
		tmpl := r.mn
		if len(r.toks) > 0 {
			tmpl += " " + joinComma(r.toks)
		}
		e := &OpcodeEntry{
			Opcode:        r.op,
			Template:      tmpl,
			Mnemonic:      r.mn,
			Operands:      ops,
			Length:        r.ln,
			ReverseChunks: shouldReverse(r.mn, ops),
		}
		isa.byOpcode[r.op] = e
		isa.byMn[r.mn] = append(isa.byMn[r.mn], e)
	}
	return isa
}

func joinComma(ss []string) string {
	out := ss[0]
	for _, s := range ss[1:] {
		out += ", " + s
	}
	return out
}
