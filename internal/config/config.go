// Package config loads the save service configuration file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	MaxSlots         int    `yaml:"max_slots"`
	SaveDir          string `yaml:"save_dir"`
	SaveFileExt      string `yaml:"save_file_ext"`
	AutosaveEverySec int    `yaml:"autosave_every_seconds"`
	StartLocation    string `yaml:"start_location"`

	Cloud Cloud `yaml:"cloud"`
}

type Cloud struct {
	// Endpoint and credentials come from the environment; only the key
	// layout is configuration.
	Prefix string `yaml:"prefix"`
}

func Defaults() Config {
	return Config{
		MaxSlots:         10,
		SaveDir:          "saves",
		SaveFileExt:      ".save.json",
		AutosaveEverySec: 0,
		StartLocation:    "apartment_hall",
	}
}

func Load(path string) (Config, error) {
	c := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("saved.yaml: %w", err)
	}
	if c.MaxSlots <= 0 {
		c.MaxSlots = Defaults().MaxSlots
	}
	if c.SaveFileExt == "" {
		c.SaveFileExt = Defaults().SaveFileExt
	}
	return c, nil
}
