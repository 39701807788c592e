package config

import (
	"flag"
	"strings"
)

// Flags holds command-line overrides bound to a FlagSet.
type Flags struct {
	Config    string
	Debug     bool
	Encoding  string
	Materials bool
	Textures  bool
	Normals   bool
	TexDirs   stringList
	GRFPaths  stringList
}

// BindFlags registers the converter flags on fs.
func BindFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{}
	fs.StringVar(&f.Config, "config", "", "Path to config file")
	fs.BoolVar(&f.Debug, "debug", false, "Enable debug logging")
	fs.StringVar(&f.Encoding, "encoding", "", "Text encoding of the output (e.g. utf-8, shift_jis)")
	fs.BoolVar(&f.Materials, "materials", false, "Emit material resource blocks")
	fs.BoolVar(&f.Textures, "textures", false, "Import and emit textures")
	fs.BoolVar(&f.Normals, "normals", false, "Generate flat normals for models without them")
	fs.Var(&f.TexDirs, "texdir", "Texture search directory (repeatable)")
	fs.Var(&f.GRFPaths, "grf", "GRF archive searched for models and textures (repeatable)")
	return f
}

// applyFlags applies CLI flag overrides to the config.
func (f *Flags) applyFlags(cfg *Config) {
	if f == nil {
		return
	}
	if f.Debug {
		cfg.Logging.Level = "debug"
	}
	if f.Encoding != "" {
		cfg.Output.Encoding = f.Encoding
	}
	if f.Materials {
		cfg.Output.Materials = true
	}
	if f.Textures {
		cfg.Output.Textures = true
	}
	if f.Normals {
		cfg.Import.GenerateNormals = true
	}
	if len(f.TexDirs) > 0 {
		cfg.Import.TextureDirs = append(append([]string(nil), f.TexDirs...), cfg.Import.TextureDirs...)
	}
	if len(f.GRFPaths) > 0 {
		cfg.Import.GRFPaths = append(append([]string(nil), f.GRFPaths...), cfg.Import.GRFPaths...)
	}
}

// stringList is a flag.Value collecting repeated string flags.
type stringList []string

func (s *stringList) String() string {
	return strings.Join(*s, ",")
}

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}
