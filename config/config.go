// Package config holds the finalized configuration the VFD core reads
// (spec §1: configuration loading itself is an external collaborator).
// The core never loads a Config itself; only cmd/vfdctl's YAML loader
// does, to give the module a runnable demonstration of wiring one in.
package config

import (
	"os"

	homedir "github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v2"
)

// Default tunables (spec §6).
const (
	DefaultMaxFilesPerProcess = 1000
	NumReservedFDs            = 10
	FDMinFree                 = 10
	MaxAllocatedDescs         = 32
	InitialProbeDefault       = 32
	TempSubdir                = "pgsql_tmp"
	TempFilePrefix            = "pgsql_tmp"
)

// Config is the finalized, read-only configuration consumed by the VFD
// core.
type Config struct {
	// MaxFilesPerProcess bounds how many kernel FDs this process may
	// hold open at once, across every consumer, not only the VFD layer.
	MaxFilesPerProcess int `yaml:"max_files_per_process"`
	// TempRoot is the directory under which `<TempRoot>/pgsql_tmp/` is
	// created for temporary files (spec §4.5, §6).
	TempRoot string `yaml:"temp_root"`
	// SyncMode selects how the local back-end durability-syncs writes:
	// "fsync", "fdatasync", or "off".
	SyncMode string `yaml:"sync_mode"`
}

// Default returns a Config with the spec's documented defaults.
func Default() *Config {
	return &Config{
		MaxFilesPerProcess: DefaultMaxFilesPerProcess,
		TempRoot:           os.TempDir(),
		SyncMode:           "fsync",
	}
}

// Load reads a YAML config file from path, expanding a leading `~` in
// temp_root, and filling in defaults for anything left zero.
func Load(path string) (*Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	if err := dec.Decode(cfg); err != nil {
		return nil, err
	}

	expanded, err := homedir.Expand(cfg.TempRoot)
	if err != nil {
		return nil, err
	}
	cfg.TempRoot = expanded

	if cfg.MaxFilesPerProcess <= 0 {
		cfg.MaxFilesPerProcess = DefaultMaxFilesPerProcess
	}
	if cfg.SyncMode == "" {
		cfg.SyncMode = "fsync"
	}
	return cfg, nil
}
