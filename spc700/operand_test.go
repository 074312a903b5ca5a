package spc700

import "testing"

func TestParseIntForms(t *testing.T) {
	cases := map[string]int{
		"$1A":   0x1A,
		"0x1A":  0x1A,
		"0X1A":  0x1A,
		"26":    26,
		"-$10":  -16,
		"-5":    -5,
	}
	for in, want := range cases {
		got, err := ParseInt(in)
		if err != nil {
			t.Errorf("ParseInt(%q) error: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseInt(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestParseIntRejectsGarbage(t *testing.T) {
	if _, err := ParseInt("not-a-number"); err == nil {
		t.Fatal("expected error for garbage input")
	}
}

func TestParseOperandRegisterAndImplied(t *testing.T) {
	for _, tok := range []string{"A", "X", "Y", "SP", "PSW", "YA", "C"} {
		po, err := parseOperand(tok)
		if err != nil {
			t.Fatalf("parseOperand(%q): %v", tok, err)
		}
		if po.Kind != POReg {
			t.Errorf("parseOperand(%q).Kind = %v, want POReg", tok, po.Kind)
		}
	}
	for _, tok := range []string{"(X)", "(Y)", "(X)+"} {
		po, err := parseOperand(tok)
		if err != nil {
			t.Fatalf("parseOperand(%q): %v", tok, err)
		}
		if po.Kind != POImplied {
			t.Errorf("parseOperand(%q).Kind = %v, want POImplied", tok, po.Kind)
		}
	}
}

func TestParseOperandImmediate(t *testing.T) {
	po, err := parseOperand("#$12")
	if err != nil {
		t.Fatal(err)
	}
	if po.Kind != POImm || po.Value == nil || *po.Value != 0x12 {
		t.Errorf("got %+v", po)
	}

	po, err = parseOperand("#label")
	if err != nil {
		t.Fatal(err)
	}
	if po.Kind != POImm || po.Symbol != "label" {
		t.Errorf("got %+v", po)
	}
}

func TestParseOperandMemoryAndIndex(t *testing.T) {
	po, err := parseOperand("$12+X")
	if err != nil {
		t.Fatal(err)
	}
	if po.Kind != POMem || po.Index != "X" || po.Value == nil || *po.Value != 0x12 {
		t.Errorf("got %+v", po)
	}

	po, err = parseOperand("!label+X")
	if err != nil {
		t.Fatal(err)
	}
	if !po.ForceAbs || po.Index != "X" || po.Symbol != "label" {
		t.Errorf("got %+v", po)
	}
}

func TestParseOperandIndirectForms(t *testing.T) {
	po, err := parseOperand("[$20]+Y")
	if err != nil {
		t.Fatal(err)
	}
	if po.Kind != POIndDpY || po.Index != "Y" || *po.Value != 0x20 {
		t.Errorf("got %+v", po)
	}

	po, err = parseOperand("[$20+X]")
	if err != nil {
		t.Fatal(err)
	}
	if po.Kind != POIndX || *po.Value != 0x20 {
		t.Errorf("got %+v", po)
	}
}

func TestParseOperandBit(t *testing.T) {
	po, err := parseOperand("$20.3")
	if err != nil {
		t.Fatal(err)
	}
	if po.Kind != POBit || !po.HasBit || po.Bit != 3 || *po.Value != 0x20 {
		t.Errorf("got %+v", po)
	}

	po, err = parseOperand("!label.5")
	if err != nil {
		t.Fatal(err)
	}
	if !po.ForceAbs || po.Symbol != "label" || po.Bit != 5 {
		t.Errorf("got %+v", po)
	}
}

func TestParseValueExprLabelAndAddend(t *testing.T) {
	ve, err := parseValueExpr("label+3")
	if err != nil {
		t.Fatal(err)
	}
	if ve.Label != "label" || ve.Addend != 3 {
		t.Errorf("got %+v", ve)
	}
	labels := map[string]int{"label": 0x100}
	v, err := ve.eval(labels)
	if err != nil {
		t.Fatal(err)
	}
	if v != 0x103 {
		t.Errorf("eval = %d, want 0x103", v)
	}
}

func TestParseValueExprUnresolved(t *testing.T) {
	ve, err := parseValueExpr("nosuch")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ve.eval(map[string]int{}); err == nil {
		t.Fatal("expected unresolved symbol error")
	}
}
