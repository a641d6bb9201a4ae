// Copyright (C) 2020-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package metadata implements component D: the normalized per-(name,version)
// requirement bundle stored in the cache and consumed by the scheduler and PBO
// encoder.
package metadata

import (
	"encoding/json"
	"fmt"

	rname "github.com/datawire/pyresolve/pkg/resolve/name"
	"github.com/datawire/pyresolve/pkg/resolve/requirement"
	"github.com/datawire/pyresolve/pkg/resolve/version"
)

// Record is the Metadata Record of spec §3: everything harvested about one
// (name, version) pair.
type Record struct {
	Name    string `json:"name"`
	Version string `json:"version"`

	InstallRequires []requirement.Requirement            `json:"install_requires"`
	TestsRequire    []requirement.Requirement            `json:"tests_require"`
	SetupRequires   []requirement.Requirement            `json:"setup_requires"`
	ExtrasRequire   map[string][]requirement.Requirement `json:"extras_require"`
}

// Normalize enforces the invariants of spec §3: name/version already normalized
// (a version that parses is rewritten to its canonical PEP 440 spelling; one
// that does not parse is left as is), every embedded requirement's name
// normalized, and extras_require keys normalized and non-empty. It is applied
// once, at construction, by every Extractor implementation before a Record
// reaches the cache.
func (r *Record) Normalize() {
	r.Name = rname.Normalize(r.Name)
	if v, err := version.Parse(r.Version); err == nil {
		r.Version = v.String()
	}
	normalizeAll(r.InstallRequires)
	normalizeAll(r.TestsRequire)
	normalizeAll(r.SetupRequires)
	if len(r.ExtrasRequire) == 0 {
		return
	}
	clean := make(map[string][]requirement.Requirement, len(r.ExtrasRequire))
	for extra, reqs := range r.ExtrasRequire {
		extra = rname.Normalize(extra)
		if extra == rname.Base {
			continue
		}
		normalizeAll(reqs)
		clean[extra] = reqs
	}
	r.ExtrasRequire = clean
}

func normalizeAll(reqs []requirement.Requirement) {
	for i := range reqs {
		reqs[i].Name = rname.Normalize(reqs[i].Name)
		for j := range reqs[i].Extras {
			reqs[i].Extras[j] = rname.Normalize(reqs[i].Extras[j])
		}
	}
}

// AllRequires returns install_requires, tests_require, and setup_requires
// concatenated, in that order — the iterable the PBO encoder uses for the base
// (empty-extra) flavor of a name.
func (r Record) AllRequires() []requirement.Requirement {
	out := make([]requirement.Requirement, 0, len(r.InstallRequires)+len(r.TestsRequire)+len(r.SetupRequires))
	out = append(out, r.InstallRequires...)
	out = append(out, r.TestsRequire...)
	out = append(out, r.SetupRequires...)
	return out
}

// RequiresFor returns the Requirement iterable for a given extra: AllRequires
// for the base flavor, or extras_require[extra] for a named extra.
func (r Record) RequiresFor(extra string) []requirement.Requirement {
	if extra == rname.Base {
		return r.AllRequires()
	}
	return r.ExtrasRequire[extra]
}

// Marshal serializes r deterministically (sorted map keys, as encoding/json
// already guarantees) — the byte-identical-metadata compression the PBO encoder
// relies on depends on this being a stable function of r's contents.
func (r Record) Marshal() ([]byte, error) {
	bs, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("metadata.Record.Marshal: %w", err)
	}
	return bs, nil
}

// Unmarshal parses a Record previously produced by Marshal.
func Unmarshal(bs []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(bs, &r); err != nil {
		return Record{}, fmt.Errorf("metadata.Unmarshal: %w", err)
	}
	return r, nil
}
