package main

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"

	log "github.com/sirupsen/logrus"
	cli "github.com/urfave/cli/v2"

	"spc700patch/spc700"
	"spc700patch/spc700/config"
	"spc700patch/spc700/isadoc"
)

func loadISA(c *cli.Context) (*spc700.ISA, error) {
	data, err := isadoc.Load(c.String("opdoc"), c.String("opdoc-url"), c.String("cache-dir"))
	if err != nil {
		return nil, err
	}
	isa, err := spc700.ParseISA(string(data))
	if err != nil {
		return nil, err
	}
	return isa, nil
}

func cmdExtract(c *cli.Context) error {
	if c.Args().Len() < 2 {
		return cli.Exit("usage: spc700patch extract <config> <outdir>", 2)
	}
	configPath := c.Args().Get(0)
	outDir := c.Args().Get(1)
	gameID := c.String("game")
	extName := c.String("ext")
	if gameID == "" || extName == "" {
		return cli.Exit("extract requires --game and --ext", 2)
	}

	isa, err := loadISA(c)
	if err != nil {
		return cli.Exit(err, 2)
	}

	raw, err := ioutil.ReadFile(configPath)
	if err != nil {
		return cli.Exit(err, 2)
	}
	cfg, err := config.Load(raw)
	if err != nil {
		return cli.Exit(err, 2)
	}

	game := cfg.FindGame(gameID)
	if game == nil {
		return cli.Exit(fmt.Sprintf("game %q not found", gameID), 2)
	}
	ext := game.FindExtension(extName)
	if ext == nil {
		return cli.Exit(fmt.Sprintf("extension %q not found in game %q", extName, gameID), 2)
	}

	if err := config.WriteManifest(os.Stdout, gameID, *ext); err != nil {
		return cli.Exit(err, 2)
	}

	d := spc700.NewDisassembler(isa)

	type extSegment struct {
		addr uint16
		data []byte
	}
	segs := []extSegment{{uint16(ext.Code.Address), []byte(ext.Code.Bytes)}}
	for _, h := range ext.Hooks {
		segs = append(segs, extSegment{uint16(h.Address), []byte(h.Bytes)})
	}

	ranges := make([][2]uint16, len(segs))
	for i, s := range segs {
		ranges[i] = [2]uint16{s.addr, s.addr + uint16(len(s.data))}
	}
	inAnyRange := func(addr uint16) bool {
		for _, r := range ranges {
			if addr >= r[0] && addr < r[1] {
				return true
			}
		}
		return false
	}

	seen := make(map[uint16]bool)
	var targets []uint16
	for _, s := range segs {
		for _, t := range d.ScanTargets(s.data, s.addr) {
			if !seen[t] {
				seen[t] = true
				targets = append(targets, t)
			}
		}
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i] < targets[j] })

	labels := make(map[uint16]string)
	for _, t := range targets {
		if inAnyRange(t) {
			labels[t] = fmt.Sprintf("L%04X", t)
		}
	}

	var out string
	out += fmt.Sprintf("; @game %s\n; @extension %s\n", gameID, extName)
	out += d.DisassembleSegment([]byte(ext.Code.Bytes), uint16(ext.Code.Address), labels,
		fmt.Sprintf(".org $%04X", uint16(ext.Code.Address)))

	for i, h := range ext.Hooks {
		out += fmt.Sprintf("\n; hook_idx: %d hook_key: %q\n", i, h.Name)
		out += d.DisassembleSegment([]byte(h.Bytes), uint16(h.Address), labels,
			fmt.Sprintf(".patch $%04X, %q", uint16(h.Address), h.Name))
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return cli.Exit(err, 2)
	}
	outPath := filepath.Join(outDir, config.AssetFileName(gameID, extName))
	if err := ioutil.WriteFile(outPath, []byte(out), 0o644); err != nil {
		return cli.Exit(err, 2)
	}
	log.WithField("path", outPath).Info("extract: wrote asm file")
	return nil
}

func cmdCompile(c *cli.Context) error {
	if c.Args().Len() < 2 {
		return cli.Exit("usage: spc700patch compile <config> <asm>", 2)
	}
	configPath := c.Args().Get(0)
	asmPath := c.Args().Get(1)

	isa, err := loadISA(c)
	if err != nil {
		return cli.Exit(err, 2)
	}

	asmText, err := ioutil.ReadFile(asmPath)
	if err != nil {
		return cli.Exit(err, 2)
	}

	gameID := c.String("game")
	extName := c.String("ext")
	if gameID == "" || extName == "" {
		metaGame, metaExt := config.ParseMetaComments(string(asmText))
		if gameID == "" {
			gameID = metaGame
		}
		if extName == "" {
			extName = metaExt
		}
	}
	if gameID == "" || extName == "" {
		return cli.Exit("compile requires --game/--ext or \"@game\"/\"@extension\" comments in the asm file", 2)
	}

	a := spc700.NewAssembler(isa)
	res, err := a.AssembleText(string(asmText))
	if err != nil {
		return cli.Exit(err, 2)
	}

	raw, err := ioutil.ReadFile(configPath)
	if err != nil {
		return cli.Exit(err, 2)
	}
	cfg, err := config.Load(raw)
	if err != nil {
		return cli.Exit(err, 2)
	}

	opts := config.ApplyOptions{
		ReplaceHooks:     c.Bool("replace-hooks"),
		ReplaceExtension: c.Bool("replace-extension"),
		Upsert:           c.Bool("upsert"),
	}
	cfg, err = config.ApplyAssembly(cfg, gameID, extName, res, opts)
	if err != nil {
		return cli.Exit(err, 2)
	}

	out, err := cfg.Save()
	if err != nil {
		return cli.Exit(err, 2)
	}

	outPath := configPath
	if c.String("out") != "" {
		outPath = c.String("out")
	}
	if err := ioutil.WriteFile(outPath, out, 0o644); err != nil {
		return cli.Exit(err, 2)
	}
	log.WithFields(log.Fields{"game": gameID, "extension": extName, "path": outPath}).Info("compile: wrote config")
	return nil
}

func cmdDisasmHex(c *cli.Context) error {
	if c.Args().Len() < 2 {
		return cli.Exit("usage: spc700patch disasm-hex <origin> <hex>", 2)
	}
	origin, err := spc700.ParseInt(c.Args().Get(0))
	if err != nil {
		return cli.Exit(err, 2)
	}
	data, err := spc700.HexToBytes(c.Args().Get(1))
	if err != nil {
		return cli.Exit(err, 2)
	}

	isa, err := loadISA(c)
	if err != nil {
		return cli.Exit(err, 2)
	}
	d := spc700.NewDisassembler(isa)
	fmt.Print(d.DisassembleSegment(data, uint16(origin), nil, ""))
	return nil
}

func cmdAsmHex(c *cli.Context) error {
	if c.Args().Len() < 1 {
		return cli.Exit("usage: spc700patch asm-hex <asm-file>", 2)
	}
	text, err := ioutil.ReadFile(c.Args().Get(0))
	if err != nil {
		return cli.Exit(err, 2)
	}

	isa, err := loadISA(c)
	if err != nil {
		return cli.Exit(err, 2)
	}
	a := spc700.NewAssembler(isa)
	res, err := a.AssembleText(string(text))
	if err != nil {
		return cli.Exit(err, 2)
	}

	fmt.Println(spc700.BytesToHex(res.MainCode, false))
	return nil
}

func main() {
	app := cli.NewApp()
	app.Name = "spc700patch"
	app.Usage = "Assemble, disassemble and manage SPC700 tracker-extension patches"
	app.Flags = []cli.Flag{
		&cli.StringFlag{Name: "opdoc", Usage: "path to a local spc700.txt opcode reference"},
		&cli.StringFlag{Name: "opdoc-url", Usage: "URL to fetch the opcode reference from if not cached"},
		&cli.StringFlag{Name: "cache-dir", Value: ".", Usage: "directory to cache a downloaded opcode reference in"},
	}
	app.Commands = []*cli.Command{
		{
			Name:      "extract",
			Usage:     "Disassemble a config's extension into an .asm file",
			ArgsUsage: "<config> <outdir>",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "game", Usage: "game id"},
				&cli.StringFlag{Name: "ext", Usage: "extension name"},
			},
			Action: cmdExtract,
		},
		{
			Name:      "compile",
			Usage:     "Assemble an .asm file and write it back into a config",
			ArgsUsage: "<config> <asm>",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "game", Usage: "game id (defaults to @game comment)"},
				&cli.StringFlag{Name: "ext", Usage: "extension name (defaults to @extension comment)"},
				&cli.StringFlag{Name: "out", Usage: "write to a different path instead of overwriting <config>"},
				&cli.BoolFlag{Name: "replace-hooks", Usage: "overwrite the extension's hooks[] exactly"},
				&cli.BoolFlag{Name: "replace-extension", Usage: "replace the whole extension object, creating it if absent"},
				&cli.BoolFlag{Name: "upsert", Usage: "create the extension if it doesn't exist"},
			},
			Action: cmdCompile,
		},
		{
			Name:      "disasm-hex",
			Usage:     "Disassemble a raw hex byte string at a given origin",
			ArgsUsage: "<origin> <hex>",
			Action:    cmdDisasmHex,
		},
		{
			Name:      "asm-hex",
			Usage:     "Assemble a .asm file and print its bytes as hex",
			ArgsUsage: "<asm-file>",
			Action:    cmdAsmHex,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Error("spc700patch: command failed")
		os.Exit(2)
	}
}
