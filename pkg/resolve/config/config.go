// Copyright (C) 2020-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package config loads pyresolve.toml: the defaults cmd_calc.go layers
// underneath its flags, the same config-then-flags idiom as other
// datawire command-line tools.
package config

import (
	"os"

	"github.com/BurntSushi/toml"
	"github.com/juju/errors"
)

// Config is the optional pyresolve.toml document.
type Config struct {
	// CacheDir is the root of the on-disk Cache (component E).
	CacheDir string `toml:"cache_dir"`

	// SolverCmd is the default external PBO solver command string.
	SolverCmd string `toml:"solver_cmd"`

	// PythonCmd is the default virtualenv interpreter invocation used to
	// probe already-installed modules (from_native) and run `setup.py
	// egg_info` (from_path's dynamic fallback).
	PythonCmd string `toml:"python_cmd"`

	// IndexURL overrides the PyPI Simple API root.
	IndexURL string `toml:"index_url"`
}

// Load reads and parses path. A missing file is not an error: it returns
// the zero Config, so callers fall back entirely to flag defaults.
func Load(path string) (Config, error) {
	var cfg Config
	bs, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, errors.Annotate(err, "config.Load")
	}
	if err := toml.Unmarshal(bs, &cfg); err != nil {
		return cfg, errors.Annotate(err, "config.Load")
	}
	return cfg, nil
}
