// Copyright (C) 2020-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package extract

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/datawire/pyresolve/pkg/python"
	"github.com/datawire/pyresolve/pkg/resolve/metadata"
	"github.com/datawire/pyresolve/pkg/resolve/requirement"
)

// readSetupCfg reads a setuptools "declarative config" setup.cfg, which
// lets install_requires/extras_require/tests_require (and name/version) be
// declared statically instead of computed by running setup.py. It is
// consulted after PKG-INFO and before falling back to a dynamic egg_info
// run, since a tree with a static setup.cfg can be read without executing
// any of its code at all.
func readSetupCfg(path string) (*metadata.Record, error) {
	fp, err := os.Open(filepath.Join(path, "setup.cfg"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer fp.Close()

	cfg, err := python.NewConfigParser().Parse(fp)
	if err != nil {
		return nil, err
	}
	meta, hasMeta := cfg["metadata"]
	options, hasOptions := cfg["options"]
	if !hasMeta && !hasOptions {
		return nil, nil
	}

	rec := &metadata.Record{
		Name:          meta["name"],
		Version:       meta["version"],
		ExtrasRequire: make(map[string][]requirement.Requirement),
	}

	rec.InstallRequires = parseCfgRequirementList(options["install_requires"])
	rec.SetupRequires = parseCfgRequirementList(options["setup_requires"])
	rec.TestsRequire = parseCfgRequirementList(options["tests_require"])

	for sectName, sect := range cfg {
		const prefix = "options.extras_require"
		if sectName != prefix {
			continue
		}
		for extra, reqList := range sect {
			rec.ExtrasRequire[extra] = parseCfgRequirementList(reqList)
		}
	}
	// Some projects instead spread extras across one section per extra,
	// "[options.extras_require.NAME]", rather than one key per extra inside
	// a single "[options.extras_require]" section.
	for sectName, sect := range cfg {
		const prefix = "options.extras_require."
		if !strings.HasPrefix(sectName, prefix) {
			continue
		}
		extra := strings.TrimPrefix(sectName, prefix)
		for _, reqList := range sect {
			rec.ExtrasRequire[extra] = append(rec.ExtrasRequire[extra], parseCfgRequirementList(reqList)...)
		}
	}

	return rec, nil
}

// parseCfgRequirementList parses setuptools' newline- or comma-separated
// requirement-list value format, skipping any clause this resolver's
// Requirement grammar can't parse (e.g. a VCS URL requirement) rather than
// failing the whole record over one exotic line.
func parseCfgRequirementList(raw string) []requirement.Requirement {
	var out []requirement.Requirement
	for _, line := range strings.FieldsFunc(raw, func(r rune) bool { return r == '\n' || r == ',' }) {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		req, err := requirement.Parse(line)
		if err != nil {
			continue
		}
		out = append(out, req)
	}
	return out
}
