// Package config loads a peer's YAML configuration file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// HolePuncher is the rendezvous service this peer registers with.
type HolePuncher struct {
	IP           string `yaml:"ip"`
	Port         int    `yaml:"port"`
	PublicKeyHex string `yaml:"public_key"`
}

// Config is a peer's full startup configuration.
type Config struct {
	Port        int         `yaml:"port"`
	Storage     string      `yaml:"storage"`
	HolePuncher HolePuncher `yaml:"hole_puncher"`
	SecretKey   string      `yaml:"secret_key"`
	PublicKey   string      `yaml:"public_key"`
	// Difficulty is the hex prefix a mined block's hash must begin with
	// (the sign_key of §4.8). Not part of spec.md's recognized option
	// list, but every round needs one from somewhere; exposing it as
	// config rather than hard-coding it keeps the difficulty knob where
	// the rest of the peer's tunables live.
	Difficulty string `yaml:"difficulty"`
}

// defaults mirrors the zero-config experience a fresh peer should get.
func defaults() Config {
	return Config{
		Port:       50000,
		Storage:    "./block_data",
		Difficulty: "0",
		HolePuncher: HolePuncher{
			IP:   "0.0.0.0",
			Port: 50001,
		},
	}
}

// Load reads and parses a YAML config file at path, filling in defaults
// for any field the file doesn't set.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.SecretKey == "" || cfg.PublicKey == "" {
		return Config{}, fmt.Errorf("config %s must set secret_key and public_key (use the genkey subcommand)", path)
	}

	return cfg, nil
}
