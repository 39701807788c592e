// u3dconv converts glTF and RSM models to Universal 3D (U3D) files.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/Faultbox/u3dkit/internal/config"
	"github.com/Faultbox/u3dkit/internal/importer"
	"github.com/Faultbox/u3dkit/internal/logger"
	"github.com/Faultbox/u3dkit/pkg/grf"
	"github.com/Faultbox/u3dkit/pkg/u3d"
)

var errUsage = errors.New("usage")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 2
	}

	command, args := args[0], args[1:]
	var err error
	switch command {
	case "convert", "c":
		err = cmdConvert(args, stdout, stderr)
	case "info":
		err = cmdInfo(args, stdout, stderr)
	case "blocks":
		err = cmdBlocks(args, stdout, stderr)
	case "list", "ls":
		err = cmdList(args, stdout, stderr)
	case "init-config":
		err = cmdInitConfig(args, stdout, stderr)
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", command)
		printUsage(stderr)
		return 2
	}
	logger.Sync()

	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage), errors.Is(err, flag.ErrHelp):
		return 2
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `u3dconv - convert models to Universal 3D

Usage:
  u3dconv <command> [options]

Commands:
  convert [options] <in> <out.u3d>   Convert a .gltf, .glb or .rsm model
  info [options] <in>                Import a model and print entity counts
  blocks <file.u3d>                  List the blocks of a U3D file
  list <file.grf> [pattern]          List models and textures in a GRF archive
  init-config [path]                 Write the default configuration

Convert options:
  -config f      Config file (default ./u3dconv.yaml or the user config dir)
  -debug         Enable debug logging
  -encoding name Text encoding of the output (utf-8, latin1, shift_jis, ...)
  -materials     Emit material resource blocks
  -textures      Import and emit textures
  -texdir d      Texture search directory (repeatable)
  -grf f         GRF archive searched for models and textures (repeatable)
  -normals       Generate flat normals

Examples:
  u3dconv convert -textures -materials scene.glb scene.u3d
  u3dconv convert -textures -texdir data/texture model.rsm model.u3d
  u3dconv convert -textures -grf data.grf prontera/house.rsm house.u3d
  u3dconv blocks scene.u3d`)
}

// setup parses the shared converter flags and loads the configuration.
func setup(name string, args []string, stderr io.Writer, nargs int) (*config.Config, []string, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	flags := config.BindFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	if fs.NArg() != nargs {
		fs.Usage()
		return nil, nil, errUsage
	}

	cfg, err := config.Load(flags)
	if err != nil {
		return nil, nil, err
	}
	logger.Init(cfg.Logging)
	return cfg, fs.Args(), nil
}

// importOptions builds importer options from cfg, opening the configured
// archives. The returned func closes them.
func importOptions(cfg *config.Config) (importer.Options, func(), error) {
	cs, err := cfg.Charset()
	if err != nil {
		return importer.Options{}, nil, err
	}
	opts := importer.Options{
		Charset:         cs,
		Textures:        cfg.Output.Textures,
		TextureDirs:     cfg.Import.TextureDirs,
		GenerateNormals: cfg.Import.GenerateNormals,
		Logger:          logger.Log.Named("import"),
	}

	var archives []*grf.Archive
	closeAll := func() {
		for _, a := range archives {
			a.Close()
		}
	}
	for _, path := range cfg.Import.GRFPaths {
		a, err := grf.Open(path)
		if err != nil {
			closeAll()
			return importer.Options{}, nil, err
		}
		logger.Debug("opened archive", zap.String("path", path), zap.Int("files", len(a.List())))
		archives = append(archives, a)
		opts.Archives = append(opts.Archives, a)
	}
	return opts, closeAll, nil
}

func cmdConvert(args []string, stdout, stderr io.Writer) error {
	cfg, files, err := setup("convert", args, stderr, 2)
	if err != nil {
		return err
	}
	in, out := files[0], files[1]

	opts, done, err := importOptions(cfg)
	if err != nil {
		return err
	}
	defer done()
	doc, err := importer.Import(in, opts)
	if err != nil {
		return err
	}

	encOpts := append(cfg.EncoderOptions(), u3d.WithLogger(logger.Log.Named("u3d")))
	if err := u3d.SaveFile(out, doc, encOpts...); err != nil {
		return err
	}

	info, err := os.Stat(out)
	if err != nil {
		return err
	}
	logger.Info("converted model",
		zap.String("input", in),
		zap.String("output", out),
		zap.Int64("bytes", info.Size()))
	fmt.Fprintf(stdout, "%s -> %s (%d bytes)\n", in, out, info.Size())
	return nil
}

func cmdInfo(args []string, stdout, stderr io.Writer) error {
	cfg, files, err := setup("info", args, stderr, 1)
	if err != nil {
		return err
	}
	opts, done, err := importOptions(cfg)
	if err != nil {
		return err
	}
	defer done()
	doc, err := importer.Import(files[0], opts)
	if err != nil {
		return err
	}

	var triangles, vertices int
	for _, m := range doc.Meshes() {
		triangles += len(m.Triangles)
		vertices += len(m.Positions)
	}

	fmt.Fprintf(stdout, "Model:     %s\n", files[0])
	fmt.Fprintf(stdout, "Encoding:  %s\n", doc.TextEncoding())
	fmt.Fprintf(stdout, "Nodes:     %d\n", len(doc.Nodes()))
	fmt.Fprintf(stdout, "Meshes:    %d (%d vertices, %d triangles)\n", len(doc.Meshes()), vertices, triangles)
	fmt.Fprintf(stdout, "Shaders:   %d\n", len(doc.Shaders()))
	fmt.Fprintf(stdout, "Materials: %d\n", len(doc.Materials()))
	fmt.Fprintf(stdout, "Textures:  %d\n", len(doc.Textures()))
	for _, t := range doc.Textures() {
		fmt.Fprintf(stdout, "  %-24s %s %d bytes\n", t.Name, t.Format, len(t.Image))
	}
	return nil
}

func cmdBlocks(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("blocks", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "Usage: u3dconv blocks <file.u3d>")
		return errUsage
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	blocks, err := u3d.ScanBlocks(data)
	if err != nil {
		return fmt.Errorf("%s: %w", fs.Arg(0), err)
	}

	fmt.Fprintf(stdout, "%-8s  %-22s  %8s  %8s\n", "OFFSET", "TYPE", "DATA", "META")
	for _, b := range blocks {
		fmt.Fprintf(stdout, "%08x  %-22s  %8d  %8d\n", b.Offset, b.Type, b.DataSize, b.MetaDataSize)
		if b.Type != u3d.BlockModifierChain {
			continue
		}
		name, children, err := u3d.ChildBlocks(b)
		if err != nil {
			return fmt.Errorf("chain at offset %d: %w", b.Offset, err)
		}
		fmt.Fprintf(stdout, "          chain %q\n", name)
		for _, c := range children {
			fmt.Fprintf(stdout, "          - %-20s  %8d  %8d\n", c.Type, c.DataSize, c.MetaDataSize)
		}
	}
	fmt.Fprintf(stdout, "%d blocks, %d bytes\n", len(blocks), len(data))
	return nil
}

// modelExts are the archive members cmdList shows.
var modelExts = map[string]bool{".rsm": true, ".bmp": true, ".tga": true, ".jpg": true, ".png": true}

func cmdList(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(stderr)
	limit := fs.Int("n", 0, "Limit output to N files (0 = all)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 || fs.NArg() > 2 {
		fmt.Fprintln(stderr, "Usage: u3dconv list [-n N] <file.grf> [pattern]")
		return errUsage
	}

	archive, err := grf.Open(fs.Arg(0))
	if err != nil {
		return err
	}
	defer archive.Close()

	pattern := strings.ToLower(fs.Arg(1))
	count := 0
	for _, f := range archive.List() {
		if !modelExts[filepath.Ext(f)] {
			continue
		}
		if pattern != "" {
			matched, _ := filepath.Match(pattern, filepath.Base(f))
			if !matched && !strings.Contains(f, pattern) {
				continue
			}
		}
		e, _ := archive.Stat(f)
		fmt.Fprintf(stdout, "%10d  %s\n", e.UncompressedSize, f)
		count++
		if *limit > 0 && count >= *limit {
			break
		}
	}
	return nil
}

func cmdInitConfig(args []string, stdout, stderr io.Writer) error {
	if len(args) > 1 {
		fmt.Fprintln(stderr, "Usage: u3dconv init-config [path]")
		return errUsage
	}
	path := filepath.Join(config.ConfigDir(), "config.yaml")
	if len(args) == 1 {
		path = args[0]
	}
	if err := config.Default().SaveTo(path); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	fmt.Fprintf(stdout, "wrote %s\n", path)
	return nil
}
