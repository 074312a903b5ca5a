package spc700

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// PatchSegment is one named (or unnamed) patch produced by assembling.
type PatchSegment struct {
	Addr uint16
	Name string
	Data []byte
}

// AssembleResult is the output of a successful two-pass assembly.
type AssembleResult struct {
	MainOrigin uint16
	MainCode   []byte
	Patches    []PatchSegment
	Labels     map[string]uint16
}

// asmItem is the pass-1 interpreter tape: one tagged variant per
// directive/instruction kind the assembler understands.
type asmItem interface{ isAsmItem() }

type segItem struct {
	kind   SegmentKind
	origin uint16
	name   string
}
type setPCItem struct{ pc uint16 }
type patchInlineItem struct {
	addr uint16
	name string
	data []byte
}
type byteItem struct {
	kind  SegmentKind
	exprs []ValueExpr
}
type wordItem struct {
	kind  SegmentKind
	exprs []ValueExpr
}
type insnItem struct {
	kind  SegmentKind
	entry *OpcodeEntry
	mnem  string
	ops   []ParsedOperand
}

func (segItem) isAsmItem()         {}
func (setPCItem) isAsmItem()       {}
func (patchInlineItem) isAsmItem() {}
func (byteItem) isAsmItem()        {}
func (wordItem) isAsmItem()        {}
func (insnItem) isAsmItem()        {}

type lineItem struct {
	line int
	item asmItem
}

// Assembler turns SPC700 assembly text into bytes for a main segment
// plus zero or more named patch segments. Stateless and reusable.
type Assembler struct {
	isa *ISA
}

// NewAssembler builds an Assembler bound to isa.
func NewAssembler(isa *ISA) *Assembler {
	return &Assembler{isa: isa}
}

type sourceLine struct {
	line int
	text string
}

func (a *Assembler) preprocessLines(text string) []sourceLine {
	var out []sourceLine
	for i, raw := range strings.Split(text, "\n") {
		line := raw
		if idx := strings.IndexByte(line, ';'); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, sourceLine{line: i + 1, text: line})
	}
	return out
}

var dotDirectiveRe = regexp.MustCompile(`^\.(\w+)\s*(.*)$`)
var legacyDirectiveRe = regexp.MustCompile(`(?i)^(db|dw)\s+(.*)$`)
var firstWordRe = regexp.MustCompile(`^(\S+)(?:\s+(.*))?$`)

func splitArgsCSV(s string) []string {
	var out []string
	var cur strings.Builder
	inQ := false
	var qch byte

	for i := 0; i < len(s); i++ {
		ch := s[i]
		if !inQ {
			if ch == '"' || ch == '\'' {
				inQ = true
				qch = ch
				cur.WriteByte(ch)
			} else if ch == ',' {
				tok := strings.TrimSpace(cur.String())
				if tok != "" {
					out = append(out, tok)
				}
				cur.Reset()
			} else {
				cur.WriteByte(ch)
			}
		} else {
			cur.WriteByte(ch)
			if ch == qch {
				inQ = false
			}
		}
	}
	tok := strings.TrimSpace(cur.String())
	if tok != "" {
		out = append(out, tok)
	}
	return out
}

func parseQuotedString(tok string) (string, bool) {
	t := strings.TrimSpace(tok)
	if len(t) >= 2 && ((t[0] == '"' && t[len(t)-1] == '"') || (t[0] == '\'' && t[len(t)-1] == '\'')) {
		return t[1 : len(t)-1], true
	}
	return "", false
}

// parseDirective recognizes ".name args" and legacy "db"/"dw args" lines.
func (a *Assembler) parseDirective(line string) (kind string, args []string, ok bool, err error) {
	if m := dotDirectiveRe.FindStringSubmatch(line); m != nil {
		kind = strings.ToLower(m[1])
		rest := strings.TrimSpace(m[2])
		if rest != "" {
			args = splitArgsCSV(rest)
		}
		if kind == "org" && len(args) != 1 {
			return "", nil, true, errDirectiveArity(0, ".org", 1, len(args))
		}
		if kind == "patch" && len(args) < 1 {
			return "", nil, true, errDirectiveArity(0, ".patch", 1, len(args))
		}
		return kind, args, true, nil
	}
	if m := legacyDirectiveRe.FindStringSubmatch(line); m != nil {
		kind = strings.ToLower(m[1])
		args = splitArgsCSV(m[2])
		return kind, args, true, nil
	}
	return "", nil, false, nil
}

func (a *Assembler) parseInstruction(line string) (string, []string) {
	m := firstWordRe.FindStringSubmatch(line)
	mnem := strings.ToUpper(m[1])
	rest := strings.TrimSpace(m[2])
	var ops []string
	if rest != "" {
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
	}
	return mnem, ops
}

// AssembleText runs both passes and returns the assembled segments.
func (a *Assembler) AssembleText(text string) (*AssembleResult, error) {
	lines := a.preprocessLines(text)

	var mainOrg *uint16
	var mode *SegmentKind
	var pc uint16

	labels := make(map[string]uint16)
	var items []lineItem

	startSegment := func(ln int, kind SegmentKind, origin uint16, name string) {
		k := kind
		mode = &k
		pc = origin
		items = append(items, lineItem{ln, segItem{kind: kind, origin: origin, name: name}})
	}

	for _, sl := range lines {
		ln, line := sl.line, sl.text

		if strings.HasSuffix(line, ":") {
			name := strings.TrimSpace(line[:len(line)-1])
			if !isIdent(name) {
				return nil, errBadIdent(ln, name)
			}
			if _, dup := labels[name]; dup {
				return nil, errDuplicateLabel(ln, name)
			}
			labels[name] = pc
			continue
		}

		kind, args, isDirective, err := a.parseDirective(line)
		if err != nil {
			if ae, ok := err.(*AsmError); ok {
				ae.Line = ln
			}
			return nil, err
		}

		if isDirective {
			switch kind {
			case "org":
				origin, err := ParseInt(args[0])
				if err != nil {
					return nil, errBadNumber(ln, args[0])
				}
				o := u16(origin)
				if mainOrg == nil {
					mainOrg = &o
					startSegment(ln, SegMain, o, "")
				} else {
					if mode == nil {
						return nil, errBeforeAnySegment(ln, ".org")
					}
					items = append(items, lineItem{ln, setPCItem{pc: o}})
					pc = o
				}
				continue

			case "patch":
				addr, err := ParseInt(args[0])
				if err != nil {
					return nil, errBadNumber(ln, args[0])
				}
				a16 := u16(addr)

				var patchName string
				rest := args[1:]
				if len(rest) > 0 {
					if name, isStr := parseQuotedString(rest[0]); isStr {
						patchName = name
						rest = rest[1:]
					}
				}

				if len(rest) == 0 {
					startSegment(ln, SegPatch, a16, patchName)
				} else {
					bs := make([]byte, len(rest))
					for i, arg := range rest {
						v, err := ParseInt(arg)
						if err != nil {
							return nil, errBadNumber(ln, arg)
						}
						bs[i] = u8(v)
					}
					items = append(items, lineItem{ln, patchInlineItem{addr: a16, name: patchName, data: bs}})
				}
				continue

			default:
				if mode == nil {
					return nil, errBeforeAnySegment(ln, "."+kind)
				}

				switch kind {
				case "byte", "db":
					vs, err := parseValueExprs(ln, args)
					if err != nil {
						return nil, err
					}
					pc += uint16(len(vs))
					items = append(items, lineItem{ln, byteItem{kind: *mode, exprs: vs}})
				case "word", "dw":
					vs, err := parseValueExprs(ln, args)
					if err != nil {
						return nil, err
					}
					pc += uint16(2 * len(vs))
					items = append(items, lineItem{ln, wordItem{kind: *mode, exprs: vs}})
				default:
					return nil, newErr(KindDirectiveArity, ln, "unknown directive .%s", kind)
				}
			}
			continue
		}

		if mode == nil {
			return nil, errBeforeAnySegment(ln, "instruction")
		}

		mnem, opStrs := a.parseInstruction(line)
		ops := make([]ParsedOperand, len(opStrs))
		for i, s := range opStrs {
			po, err := parseOperand(s)
			if err != nil {
				if ae, ok := err.(*AsmError); ok {
					ae.Line = ln
				}
				return nil, err
			}
			ops[i] = po
		}
		entry, err := a.selectEntry(mnem, ops, pc, nil, false, ln)
		if err != nil {
			return nil, err
		}
		pc += uint16(entry.Length)
		items = append(items, lineItem{ln, insnItem{kind: *mode, entry: entry, mnem: mnem, ops: ops}})
	}

	if mainOrg == nil {
		return nil, newErr(KindBeforeAnySegment, 0, "missing .org directive (main code segment)")
	}

	// Pass 2: encode. Patch segments are held as pointers so that
	// appending a later patch (including an inline one interleaved
	// mid-segment) never invalidates curBuf's view of an earlier,
	// still-active patch's backing array.
	var mainBuf []byte
	var patches []*PatchSegment
	var curBuf *[]byte
	pc = 0

	setActive := func(kind SegmentKind, origin uint16, name string) {
		pc = origin
		if kind == SegMain {
			curBuf = &mainBuf
		} else {
			seg := &PatchSegment{Addr: origin, Name: name}
			patches = append(patches, seg)
			curBuf = &seg.Data
		}
	}

	writeBytes := func(b []byte) {
		*curBuf = append(*curBuf, b...)
		pc += uint16(len(b))
	}

	for _, li := range items {
		ln := li.line
		switch it := li.item.(type) {
		case segItem:
			setActive(it.kind, it.origin, it.name)

		case setPCItem:
			if curBuf == nil {
				return nil, newErr(KindBeforeAnySegment, ln, "internal: .org with no active segment")
			}
			if it.pc < pc {
				return nil, errOrgBackwards(ln, pc, it.pc)
			}
			if it.pc > pc {
				writeBytes(make([]byte, int(it.pc)-int(pc)))
			}
			pc = it.pc

		case patchInlineItem:
			patches = append(patches, &PatchSegment{Addr: it.addr, Name: it.name, Data: append([]byte(nil), it.data...)})

		case byteItem:
			out := make([]byte, 0, len(it.exprs))
			for _, ve := range it.exprs {
				v, err := ve.eval(labelsAsInt(labels))
				if err != nil {
					return nil, lineError(err, ln)
				}
				out = append(out, u8(v))
			}
			writeBytes(out)

		case wordItem:
			out := make([]byte, 0, 2*len(it.exprs))
			for _, ve := range it.exprs {
				v, err := ve.eval(labelsAsInt(labels))
				if err != nil {
					return nil, lineError(err, ln)
				}
				w := u16(v)
				out = append(out, byte(w&0xFF), byte(w>>8))
			}
			writeBytes(out)

		case insnItem:
			entry2, err := a.selectEntry(it.mnem, it.ops, pc, labelsAsInt(labels), true, ln)
			if err != nil {
				return nil, err
			}
			if entry2.Length != it.entry.Length || entry2.Opcode != it.entry.Opcode {
				return nil, errInstructionFormChanged(ln, it.entry.Template, entry2.Template)
			}
			encoded, err := a.encode(it.entry, it.ops, pc, labelsAsInt(labels), ln)
			if err != nil {
				return nil, err
			}
			writeBytes(encoded)
		}
	}

	patchesOut := make([]PatchSegment, len(patches))
	for i, p := range patches {
		patchesOut[i] = *p
	}

	return &AssembleResult{
		MainOrigin: *mainOrg,
		MainCode:   mainBuf,
		Patches:    patchesOut,
		Labels:     labels,
	}, nil
}

func lineError(err error, ln int) error {
	if ae, ok := err.(*AsmError); ok && ae.Line == 0 {
		ae.Line = ln
	}
	return err
}

func labelsAsInt(labels map[string]uint16) map[string]int {
	out := make(map[string]int, len(labels))
	for k, v := range labels {
		out[k] = int(v)
	}
	return out
}

func parseValueExprs(ln int, args []string) ([]ValueExpr, error) {
	out := make([]ValueExpr, len(args))
	for i, a := range args {
		ve, err := parseValueExpr(a)
		if err != nil {
			return nil, lineError(err, ln)
		}
		out[i] = ve
	}
	return out, nil
}

// resolveAddress returns the numeric address/value an operand carries,
// looking it up in labels (which may be nil during pass 1).
func resolveAddress(op ParsedOperand, labels map[string]int) (int, bool) {
	if op.Value != nil {
		return *op.Value, true
	}
	if labels != nil && op.Symbol != "" {
		v, ok := labels[op.Symbol]
		return v, ok
	}
	return 0, false
}

// selectEntry scores every opcode sharing mnem against ops and returns
// the highest-scoring candidate. preferExact mirrors the hint pass 2
// passes once labels are known; it does not itself affect scoring
// (matching the reference implementation).
func (a *Assembler) selectEntry(mnem string, ops []ParsedOperand, pc uint16, labels map[string]int, preferExact bool, ln int) (*OpcodeEntry, error) {
	cands := a.isa.Candidates(mnem)
	if len(cands) == 0 {
		return nil, errUnknownMnemonic(ln, mnem)
	}

	var best *OpcodeEntry
	bestScore := -1
	for _, e := range cands {
		ok, score := matchEntry(e, ops, labels)
		if !ok {
			continue
		}
		if score > bestScore {
			bestScore = score
			best = e
		}
	}

	if best == nil {
		sigSet := make(map[string]bool)
		for _, e := range cands {
			sigSet[e.Template] = true
		}
		var sigs []string
		for s := range sigSet {
			sigs = append(sigs, s)
		}
		sort.Strings(sigs)
		if len(sigs) > 10 {
			sigs = sigs[:10]
		}
		var texts []string
		for _, o := range ops {
			texts = append(texts, o.Text)
		}
		return nil, errNoMatchingForm(ln, mnem, strings.Join(texts, ", "), sigs)
	}
	return best, nil
}

func matchEntry(e *OpcodeEntry, ops []ParsedOperand, labels map[string]int) (bool, int) {
	if len(ops) != len(e.Operands) {
		return false, 0
	}

	score := 0
	for i, spec := range e.Operands {
		op := ops[i]

		switch spec.Kind {
		case KindReg:
			if op.Kind != POReg || op.Text != spec.Token {
				return false, 0
			}
			score += 3

		case KindImplied:
			if op.Kind != POImplied || op.Text != spec.Token {
				return false, 0
			}
			score += 3

		case KindConst:
			n, _ := strconv.Atoi(spec.Token)
			if op.Kind != POConst || op.Value == nil || *op.Value != n {
				return false, 0
			}
			score += 3

		case KindImm:
			if op.Kind != POImm {
				return false, 0
			}
			score += 2

		case KindRel:
			score += 2

		case KindDpBit:
			if op.Kind != POBit {
				return false, 0
			}
			if op.HasBit && op.Bit != dpBitTokenRe(spec.Token) {
				return false, 0
			}
			if op.ForceAbs {
				return false, 0
			}
			addr, ok := resolveAddress(op, labels)
			if !ok {
				score++
			} else {
				if addr > 0xFF {
					return false, 0
				}
				score += 2
			}

		case KindBitAbs:
			if op.Kind != POBit {
				return false, 0
			}
			score += 2

		case KindDp, KindDpIndex, KindIndDpY, KindIndDpX:
			switch spec.Kind {
			case KindIndDpY:
				if op.Kind != POIndDpY {
					return false, 0
				}
			case KindIndDpX:
				if op.Kind != POIndX {
					return false, 0
				}
			default:
				if op.Kind != POMem {
					return false, 0
				}
			}

			if spec.Kind == KindDpIndex {
				need := spec.Token[len(spec.Token)-1:]
				if op.Index != need {
					return false, 0
				}
			} else if spec.Kind == KindDp {
				if op.Index != "" {
					return false, 0
				}
			}

			if op.ForceAbs {
				return false, 0
			}

			addr, ok := resolveAddress(op, labels)
			if !ok {
				score++
			} else {
				if addr > 0xFF {
					return false, 0
				}
				score += 2
			}

		case KindAbs, KindIndAbsX:
			if spec.Kind == KindIndAbsX {
				if op.Kind != POIndX {
					return false, 0
				}
			} else {
				if op.Kind != POMem {
					return false, 0
				}
			}

			if strings.HasSuffix(spec.Token, "+X") && op.Index != "X" {
				return false, 0
			}
			if strings.HasSuffix(spec.Token, "+Y") && op.Index != "Y" {
				return false, 0
			}
			if spec.Token == "!a" && op.Index != "" {
				return false, 0
			}

			addr, ok := resolveAddress(op, labels)
			if !ok {
				score += 2
			} else {
				if addr > 0xFFFF {
					return false, 0
				}
				score += 2
			}

		default:
			return false, 0
		}
	}

	return true, score
}

// encode renders one instruction's operand bytes (in textual order,
// then chunk-reversed if the entry calls for it) and prepends the
// opcode byte.
func (a *Assembler) encode(e *OpcodeEntry, ops []ParsedOperand, pc uint16, labels map[string]int, ln int) ([]byte, error) {
	var chunks [][]byte

	for i, spec := range e.Operands {
		if !spec.isBytes() {
			continue
		}
		op := ops[i]

		switch spec.Kind {
		case KindImm:
			var v int
			if op.Value != nil {
				v = *op.Value
			} else {
				addr, ok := labels[op.Symbol]
				if !ok {
					return nil, errUnresolvedSymbol(ln, op.Symbol)
				}
				v = addr
			}
			chunks = append(chunks, []byte{u8(v)})

		case KindRel:
			tgt, ok := resolveAddress(op, labels)
			if !ok {
				return nil, errUnresolvedSymbol(ln, op.Text)
			}
			off := tgt - (int(pc) + e.Length)
			if off < -128 || off > 127 {
				return nil, errBranchOutOfRange(ln, pc, u16(tgt), off)
			}
			chunks = append(chunks, []byte{u8(off)})

		case KindDpBit:
			addr, ok := resolveAddress(op, labels)
			if !ok {
				return nil, errUnresolvedSymbol(ln, op.Text)
			}
			chunks = append(chunks, []byte{u8(addr)})

		case KindBitAbs:
			addr, ok := resolveAddress(op, labels)
			if !ok {
				return nil, errUnresolvedSymbol(ln, op.Text)
			}
			w := packBitAbs(u16(addr), op.Bit)
			chunks = append(chunks, []byte{byte(w & 0xFF), byte(w >> 8)})

		case KindDp, KindDpIndex, KindIndDpY, KindIndDpX:
			addr, ok := resolveAddress(op, labels)
			if !ok {
				return nil, errUnresolvedSymbol(ln, op.Text)
			}
			chunks = append(chunks, []byte{u8(addr)})

		case KindAbs, KindIndAbsX:
			addr, ok := resolveAddress(op, labels)
			if !ok {
				return nil, errUnresolvedSymbol(ln, op.Text)
			}
			chunks = append(chunks, []byte{byte(addr & 0xFF), byte((addr >> 8) & 0xFF)})

		default:
			return nil, newErr(KindBadExpression, ln, "unsupported operand kind in encoding")
		}
	}

	if e.ReverseChunks {
		rev := make([][]byte, len(chunks))
		for i, c := range chunks {
			rev[len(chunks)-1-i] = c
		}
		chunks = rev
	}

	out := make([]byte, 0, e.Length)
	out = append(out, e.Opcode)
	for _, c := range chunks {
		out = append(out, c...)
	}

	if len(out) != e.Length {
		return nil, newErr(KindBadExpression, ln, "internal length mismatch encoding %s: got %d, expected %d", e.Template, len(out), e.Length)
	}

	return out, nil
}
