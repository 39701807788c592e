// Package config handles converter configuration loading and management.
package config

import (
	"fmt"

	"github.com/Faultbox/u3dkit/pkg/encoding"
	"github.com/Faultbox/u3dkit/pkg/u3d"
)

// Config holds all converter settings.
type Config struct {
	Output  OutputConfig  `yaml:"output"`
	Import  ImportConfig  `yaml:"import"`
	Logging LoggingConfig `yaml:"logging"`
}

// OutputConfig controls how documents are encoded.
type OutputConfig struct {
	Encoding  string `yaml:"encoding"` // Text encoding name, see encoding.Lookup
	Materials bool   `yaml:"materials"`
	Textures  bool   `yaml:"textures"`

	ProvenanceKey   string `yaml:"provenance_key"`
	ProvenanceValue string `yaml:"provenance_value"`
}

// ImportConfig controls how model files are read.
type ImportConfig struct {
	TextureDirs     []string `yaml:"texture_dirs"`
	GRFPaths        []string `yaml:"grf_paths"` // Archives searched after TextureDirs
	GenerateNormals bool     `yaml:"generate_normals"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Output: OutputConfig{
			Encoding:        encoding.UTF8.Name,
			ProvenanceKey:   u3d.DefaultProvenanceKey,
			ProvenanceValue: u3d.DefaultProvenanceValue,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Charset resolves the configured output encoding.
func (c *Config) Charset() (encoding.Charset, error) {
	cs, err := encoding.Lookup(c.Output.Encoding)
	if err != nil {
		return encoding.Charset{}, fmt.Errorf("output encoding: %w", err)
	}
	return cs, nil
}

// EncoderOptions returns the u3d options for the output settings.
func (c *Config) EncoderOptions() []u3d.Option {
	opts := []u3d.Option{
		u3d.WithMaterials(c.Output.Materials),
		u3d.WithTextures(c.Output.Textures),
	}
	if c.Output.ProvenanceKey != "" {
		opts = append(opts, u3d.WithProvenance(c.Output.ProvenanceKey, c.Output.ProvenanceValue))
	}
	return opts
}
