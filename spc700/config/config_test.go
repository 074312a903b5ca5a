package config

import (
	"encoding/json"
	"strings"
	"testing"

	"spc700patch/spc700"
)

const sampleDoc = `[
    {
        "id": "game1",
        "extensions": [
            {
                "name": "ext1",
                "description": "an extension",
                "code": {"address": "0x1000", "bytes": "E805"},
                "hooks": [
                    {"name": "hook_a", "address": "0x2000", "bytes": "7D"}
                ]
            }
        ]
    }
]`

func TestLoadAndFindRoundTrip(t *testing.T) {
	cfg, err := Load([]byte(sampleDoc))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	game := cfg.FindGame("game1")
	if game == nil {
		t.Fatal("game1 not found")
	}
	ext := game.FindExtension("ext1")
	if ext == nil {
		t.Fatal("ext1 not found")
	}
	if ext.Code.Address != 0x1000 {
		t.Errorf("Code.Address = %#x, want 0x1000", uint16(ext.Code.Address))
	}
	if string(ext.Code.Bytes) != string([]byte{0xE8, 0x05}) {
		t.Errorf("Code.Bytes = % X, want E8 05", ext.Code.Bytes)
	}
	if len(ext.Hooks) != 1 || ext.Hooks[0].Name != "hook_a" {
		t.Errorf("Hooks = %+v", ext.Hooks)
	}
}

func TestHexAddrAcceptsDollarAnd0x(t *testing.T) {
	for _, raw := range []string{`"$1A2B"`, `"0x1A2B"`} {
		var a HexAddr
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			t.Fatalf("Unmarshal(%s): %v", raw, err)
		}
		if a != 0x1A2B {
			t.Errorf("Unmarshal(%s) = %#x, want 0x1A2B", raw, uint16(a))
		}
	}
}

func TestHexAddrMarshalsUppercase0x(t *testing.T) {
	b, err := json.Marshal(HexAddr(0x1a2b))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `"0x1A2B"` {
		t.Errorf("MarshalJSON = %s, want \"0x1A2B\"", b)
	}
}

func TestHexBytesMarshalUnspaced(t *testing.T) {
	b, err := json.Marshal(HexBytes{0x8D, 0xE2, 0x00})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `"8DE200"` {
		t.Errorf("MarshalJSON = %s, want \"8DE200\"", b)
	}
}

func TestApplyAssemblyLegacyMergeByAddress(t *testing.T) {
	cfg, err := Load([]byte(sampleDoc))
	if err != nil {
		t.Fatal(err)
	}
	res := &spc700.AssembleResult{
		MainOrigin: 0x1000,
		MainCode:   []byte{0xE8, 0x06},
		Patches: []spc700.PatchSegment{
			{Addr: 0x2000, Name: "hook_a", Data: []byte{0x7D, 0x00}},
			{Addr: 0x2500, Name: "", Data: []byte{0x00}},
		},
	}
	cfg, err = ApplyAssembly(cfg, "game1", "ext1", res, ApplyOptions{})
	if err != nil {
		t.Fatal(err)
	}
	ext := cfg.FindGame("game1").FindExtension("ext1")
	if string(ext.Code.Bytes) != string([]byte{0xE8, 0x06}) {
		t.Errorf("Code.Bytes = % X", ext.Code.Bytes)
	}
	if len(ext.Hooks) != 2 {
		t.Fatalf("got %d hooks, want 2", len(ext.Hooks))
	}
	if ext.Hooks[0].Name != "hook_a" || string(ext.Hooks[0].Bytes) != string([]byte{0x7D, 0x00}) {
		t.Errorf("hook 0 = %+v", ext.Hooks[0])
	}
	if ext.Hooks[1].Name != "patch_2500" {
		t.Errorf("new unnamed hook defaulted to %q, want patch_2500", ext.Hooks[1].Name)
	}
}

func TestApplyAssemblyReplaceHooks(t *testing.T) {
	cfg, err := Load([]byte(sampleDoc))
	if err != nil {
		t.Fatal(err)
	}
	res := &spc700.AssembleResult{
		MainOrigin: 0x1000,
		MainCode:   []byte{0x00},
		Patches:    []spc700.PatchSegment{{Addr: 0x4000, Name: "only_hook", Data: []byte{0x00}}},
	}
	cfg, err = ApplyAssembly(cfg, "game1", "ext1", res, ApplyOptions{ReplaceHooks: true})
	if err != nil {
		t.Fatal(err)
	}
	ext := cfg.FindGame("game1").FindExtension("ext1")
	if len(ext.Hooks) != 1 || ext.Hooks[0].Name != "only_hook" {
		t.Errorf("Hooks = %+v, want exactly [only_hook]", ext.Hooks)
	}
}

func TestApplyAssemblyUpsertCreatesExtension(t *testing.T) {
	cfg, err := Load([]byte(sampleDoc))
	if err != nil {
		t.Fatal(err)
	}
	res := &spc700.AssembleResult{MainOrigin: 0x5000, MainCode: []byte{0x00}}
	cfg, err = ApplyAssembly(cfg, "game1", "ext2", res, ApplyOptions{Upsert: true})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.FindGame("game1").FindExtension("ext2") == nil {
		t.Fatal("expected ext2 to be created")
	}
}

func TestApplyAssemblyMissingExtensionWithoutUpsertFails(t *testing.T) {
	cfg, err := Load([]byte(sampleDoc))
	if err != nil {
		t.Fatal(err)
	}
	res := &spc700.AssembleResult{MainOrigin: 0x5000, MainCode: []byte{0x00}}
	if _, err := ApplyAssembly(cfg, "game1", "nosuch", res, ApplyOptions{}); err == nil {
		t.Fatal("expected error for missing extension without --upsert/--replace-extension")
	}
}

func TestParseMetaComments(t *testing.T) {
	text := "; @game game1\n; @extension ext1\n.org $1000\n    NOP\n"
	game, ext := ParseMetaComments(text)
	if game != "game1" || ext != "ext1" {
		t.Errorf("ParseMetaComments = (%q, %q), want (game1, ext1)", game, ext)
	}
}

func TestWriteManifestIncludesHooksAndCode(t *testing.T) {
	cfg, err := Load([]byte(sampleDoc))
	if err != nil {
		t.Fatal(err)
	}
	ext := cfg.FindGame("game1").FindExtension("ext1")

	var sb strings.Builder
	if err := WriteManifest(&sb, "game1", *ext); err != nil {
		t.Fatal(err)
	}
	out := sb.String()

	for _, want := range []string{"game       = game1", "extension  = ext1", "$1000", "hook_a", "$2000"} {
		if !strings.Contains(out, want) {
			t.Errorf("manifest missing %q:\n%s", want, out)
		}
	}
}

func TestWriteManifestNoHooks(t *testing.T) {
	ext := Extension{Name: "bare", Code: CodeBlock{Address: 0x1000, Bytes: HexBytes{0x00}}}
	var sb strings.Builder
	if err := WriteManifest(&sb, "game1", ext); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(sb.String(), "(none)") {
		t.Errorf("expected '(none)' for an extension with no hooks, got:\n%s", sb.String())
	}
}

func TestAssetFileNameSanitizes(t *testing.T) {
	got := AssetFileName("game1", "My Cool Ext!")
	want := "game1__My_Cool_Ext.asm"
	if got != want {
		t.Errorf("AssetFileName = %q, want %q", got, want)
	}
}
