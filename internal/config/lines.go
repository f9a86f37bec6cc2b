package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"metro-simulator/internal/metro"
)

// LineConfig is static per-line configuration supplied next to the line
// data.
type LineConfig struct {
	ID    string `yaml:"id" validate:"required"`
	Ring  bool   `yaml:"ring"`
	Color string `yaml:"color" validate:"omitempty,hexcolor"`
}

type linesFile struct {
	Lines []LineConfig `yaml:"lines" validate:"dive"`
}

// LoadLines reads and validates a YAML line config file.
func LoadLines(path string) (map[string]LineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f linesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if err := validator.New().Struct(f); err != nil {
		return nil, err
	}
	out := make(map[string]LineConfig, len(f.Lines))
	for _, lc := range f.Lines {
		if _, dup := out[lc.ID]; dup {
			return nil, fmt.Errorf("line %q configured twice", lc.ID)
		}
		out[lc.ID] = lc
	}
	return out, nil
}

// ApplyLines overlays configured ring flags and colors onto loaded lines.
func ApplyLines(infos []metro.LineInfo, lines map[string]LineConfig) {
	for i := range infos {
		lc, ok := lines[infos[i].ID]
		if !ok {
			continue
		}
		infos[i].Ring = infos[i].Ring || lc.Ring
		if lc.Color != "" {
			infos[i].Color = lc.Color
		}
	}
}
