// Package config implements the tracker configuration document schema
// and its JSON I/O — the thin collaborator spc700.md §1 calls "the
// enclosing configuration document schema", kept deliberately outside
// the assembler/disassembler core.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"
	"text/template"

	"spc700patch/spc700"
)

// HexAddr is a 16-bit address that always marshals as "0xXXXX" but
// accepts "$HHHH", "0xHHHH" or plain decimal on the way in.
type HexAddr uint16

func (a HexAddr) MarshalJSON() ([]byte, error) {
	return json.Marshal(fmt.Sprintf("0x%04X", uint16(a)))
}

func (a *HexAddr) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := spc700.ParseInt(s)
	if err != nil {
		return fmt.Errorf("config: bad address %q: %w", s, err)
	}
	*a = HexAddr(uint16(v))
	return nil
}

// HexBytes marshals as unspaced uppercase hex, e.g. "8DE200".
type HexBytes []byte

func (b HexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(spc700.BytesToHex([]byte(b), false))
}

func (b *HexBytes) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	decoded, err := spc700.HexToBytes(s)
	if err != nil {
		return fmt.Errorf("config: bad hex bytes %q: %w", s, err)
	}
	*b = HexBytes(decoded)
	return nil
}

// CodeBlock is an extension's main code segment.
type CodeBlock struct {
	Address HexAddr  `json:"address"`
	Bytes   HexBytes `json:"bytes"`
}

// Hook is one named patch segment attached to an extension.
type Hook struct {
	Name    string   `json:"name"`
	Address HexAddr  `json:"address"`
	Bytes   HexBytes `json:"bytes"`
}

// Extension is one tracker extension's assembled code plus its hooks.
type Extension struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Code        CodeBlock         `json:"code"`
	Hooks       []Hook            `json:"hooks"`
	VCmds       []json.RawMessage `json:"vcmds,omitempty"`
}

// Game groups a set of extensions under a single identifier.
type Game struct {
	ID         string      `json:"id"`
	Extensions []Extension `json:"extensions"`
}

// Config is the whole document: a JSON array of games.
type Config []Game

// Load parses a configuration document.
func Load(data []byte) (Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse failed: %w", err)
	}
	return cfg, nil
}

// Save renders the document with 4-space indentation, matching the
// tool's established on-disk format.
func (c Config) Save() ([]byte, error) {
	return json.MarshalIndent(c, "", "    ")
}

// FindGame returns a pointer to the game with the given id, if present.
func (c Config) FindGame(id string) *Game {
	for i := range c {
		if c[i].ID == id {
			return &c[i]
		}
	}
	return nil
}

// FindExtension returns a pointer to the named extension within game.
func (g *Game) FindExtension(name string) *Extension {
	for i := range g.Extensions {
		if g.Extensions[i].Name == name {
			return &g.Extensions[i]
		}
	}
	return nil
}

var sanitizeNameRe = regexp.MustCompile(`[^A-Za-z0-9_]+`)

// AssetFileName is the "<id>__<name>.asm" name extract writes, matching
// the original tool's output naming.
func AssetFileName(gameID, extName string) string {
	safe := strings.Trim(sanitizeNameRe.ReplaceAllString(extName, "_"), "_")
	return fmt.Sprintf("%s__%s.asm", gameID, safe)
}

// defaultPatchName is used when a .patch segment has no quoted name.
func defaultPatchName(addr uint16) string {
	return fmt.Sprintf("patch_%04X", addr)
}

// HooksFromPatches converts assembled patch segments into Hook records,
// defaulting unnamed patches to "patch_AAAA".
func HooksFromPatches(patches []spc700.PatchSegment) []Hook {
	hooks := make([]Hook, len(patches))
	for i, p := range patches {
		name := p.Name
		if name == "" {
			name = defaultPatchName(uint16(p.Addr))
		}
		hooks[i] = Hook{Name: name, Address: HexAddr(p.Addr), Bytes: HexBytes(p.Data)}
	}
	return hooks
}

// ApplyOptions controls how ApplyAssembly reconciles a freshly-assembled
// result into an existing (or new) extension object.
type ApplyOptions struct {
	ReplaceHooks     bool // overwrite hooks[] exactly with the assembled patches
	ReplaceExtension bool // replace the entire extension object (minimal fields), creating if absent
	Upsert           bool // create the extension (minimal fields) if it doesn't already exist
}

// ApplyAssembly writes an assembled result back into cfg's game/extension,
// following the four write-back modes the original tool supports. It
// mutates cfg in place and also returns it for chaining.
func ApplyAssembly(cfg Config, gameID, extName string, res *spc700.AssembleResult, opts ApplyOptions) (Config, error) {
	game := cfg.FindGame(gameID)
	if game == nil {
		return nil, fmt.Errorf("config: game %q not found", gameID)
	}

	codeNew := CodeBlock{Address: HexAddr(res.MainOrigin), Bytes: HexBytes(res.MainCode)}
	hooksNew := HooksFromPatches(res.Patches)

	ext := game.FindExtension(extName)
	if ext == nil {
		if !opts.Upsert && !opts.ReplaceExtension {
			return nil, fmt.Errorf("config: extension %q not found in game %q (use --upsert or --replace-extension)", extName, gameID)
		}
		game.Extensions = append(game.Extensions, Extension{
			Name:  extName,
			Code:  codeNew,
			Hooks: hooksNew,
		})
		return cfg, nil
	}

	if opts.ReplaceExtension {
		*ext = Extension{
			Name:  extName,
			Code:  codeNew,
			Hooks: hooksNew,
		}
		return cfg, nil
	}

	ext.Code = codeNew

	if opts.ReplaceHooks {
		ext.Hooks = hooksNew
		return cfg, nil
	}

	// Legacy behavior: merge assembled patches into the existing hook
	// list by address, preserving hooks the assembly didn't touch.
	byAddr := make(map[uint16]int, len(ext.Hooks))
	for i, h := range ext.Hooks {
		byAddr[uint16(h.Address)] = i
	}
	for _, p := range res.Patches {
		addr := uint16(p.Addr)
		if idx, ok := byAddr[addr]; ok {
			ext.Hooks[idx].Bytes = HexBytes(p.Data)
			if p.Name != "" {
				ext.Hooks[idx].Name = p.Name
			}
		} else {
			name := p.Name
			if name == "" {
				name = defaultPatchName(addr)
			}
			ext.Hooks = append(ext.Hooks, Hook{Name: name, Address: HexAddr(addr), Bytes: HexBytes(p.Data)})
		}
	}
	return cfg, nil
}

// ParseMetaComments scans the leading run of comment lines in an asm
// file for "; @game <id>" and "; @extension <name>" directives.
func ParseMetaComments(asmText string) (game, ext string) {
	for _, line := range strings.Split(asmText, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, ";") {
			break
		}
		lower := strings.ToLower(trimmed)
		switch {
		case strings.HasPrefix(lower, "; @game"):
			game = fieldsAfter(trimmed, 2)
		case strings.HasPrefix(lower, "; @extension"):
			ext = fieldsAfter(trimmed, 2)
		}
	}
	return
}

// manifestHeader mirrors the teacher's disasmHeader: a banner followed
// by a short templated summary of what's about to be written.
var manifestHeader = `; ******************************************************************************
;
; extracted by spc700patch
;
; ******************************************************************************
; game       = {{ .GameID }}
; extension  = {{ .ExtName }}
; code       = {{ printf "$%04X" .CodeAddr }} ({{ .CodeLen }} bytes)
{{- if .Hooks }}
; hooks:
{{- range .Hooks }}
;   {{ printf "%-16s" .Name }} {{ printf "$%04X" .Addr }} ({{ .Len }} bytes)
{{- end }}
{{- else }}
; hooks      = (none)
{{- end }}
`

var manifestTemplate = template.Must(template.New("manifest").Parse(manifestHeader))

type manifestHook struct {
	Name string
	Addr uint16
	Len  int
}

// WriteManifest renders a short extraction summary for one game's
// extension — game id, extension name, code address/length, and one
// line per hook — the way the teacher's disasmHeader banners a
// disassembly listing before the decoded instructions begin.
func WriteManifest(w io.Writer, gameID string, ext Extension) error {
	hooks := make([]manifestHook, len(ext.Hooks))
	for i, h := range ext.Hooks {
		hooks[i] = manifestHook{Name: h.Name, Addr: uint16(h.Address), Len: len(h.Bytes)}
	}
	data := struct {
		GameID   string
		ExtName  string
		CodeAddr uint16
		CodeLen  int
		Hooks    []manifestHook
	}{
		GameID:   gameID,
		ExtName:  ext.Name,
		CodeAddr: uint16(ext.Code.Address),
		CodeLen:  len(ext.Code.Bytes),
		Hooks:    hooks,
	}
	return manifestTemplate.Execute(w, data)
}

func fieldsAfter(s string, n int) string {
	parts := strings.Fields(s)
	if len(parts) <= n {
		return ""
	}
	return strings.TrimSpace(strings.Join(parts[n:], " "))
}
