// Copyright (C) 2020-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package pbo implements components I, J, and K: the Variable Register
// that assigns dense integer variable ids to (name, version, extra) and
// (name, version-set, extra) keys, the PBO Encoder that translates
// harvested dependency metadata into a pseudo-boolean constraint system,
// and the Result Decoder that maps a solver's assignment back to a pinned
// requirements list.
package pbo

import (
	"fmt"
	"sort"
	"strings"

	"github.com/datawire/pyresolve/pkg/resolve/version"
)

// VarID is a dense positive integer variable id, 1-based.
type VarID int

// singleKey is the key of map_single: one version of one name under one
// extra.
type singleKey struct {
	Name    string
	Version string // version.Version.String(), so Virtual has a stable key
	Extra   string
}

// setKey is the key of map_set: an alias-compressed group of versions of
// one name under one extra. versions is rendered as a sorted,
// comma-joined string so it can serve as a comparable map key.
type setKey struct {
	Name    string
	Extra   string
	Version string
}

// Register is component I: the Variable Register.
type Register struct {
	counter VarID

	mapSingle    map[singleKey]VarID
	mapSingleRev map[VarID]singleKey
	mapSet       map[setKey]VarID
	mapSetRev    map[VarID]setKey

	versionsRegister map[string]map[string]bool // name -> set of version strings
}

// NewRegister constructs an empty Register; VarId allocation starts at 1.
func NewRegister() *Register {
	return &Register{
		mapSingle:        make(map[singleKey]VarID),
		mapSingleRev:     make(map[VarID]singleKey),
		mapSet:           make(map[setKey]VarID),
		mapSetRev:        make(map[VarID]setKey),
		versionsRegister: make(map[string]map[string]bool),
	}
}

func (r *Register) fresh() VarID {
	r.counter++
	return r.counter
}

// Count is the total number of variables allocated so far.
func (r *Register) Count() int { return int(r.counter) }

// RegisterSingle records ver under name's versions_register, then assigns
// a fresh VarId to (name, ver, e) for each e in extras. It panics if any
// triple is already registered — per spec §4.I this is an internal
// invariant violation, not a recoverable error.
func (r *Register) RegisterSingle(name string, ver version.Version, extras []string) map[string]VarID {
	if r.versionsRegister[name] == nil {
		r.versionsRegister[name] = make(map[string]bool)
	}
	r.versionsRegister[name][ver.String()] = true

	out := make(map[string]VarID, len(extras))
	for _, e := range extras {
		key := singleKey{name, ver.String(), e}
		if _, exists := r.mapSingle[key]; exists {
			panic(fmt.Errorf("pbo: duplicate register_single(%s, %s, %q)", name, ver, e))
		}
		id := r.fresh()
		r.mapSingle[key] = id
		r.mapSingleRev[id] = key
		out[e] = id
	}
	return out
}

// RegisterSet assigns a fresh VarId to (name, versions, e) for each e in
// extras. versions need not be sorted; it is canonicalized internally.
func (r *Register) RegisterSet(name string, versions []version.Version, extras []string) map[string]VarID {
	key := setVersionKey(versions)
	out := make(map[string]VarID, len(extras))
	for _, e := range extras {
		k := setKey{name, e, key}
		if _, exists := r.mapSet[k]; exists {
			panic(fmt.Errorf("pbo: duplicate register_set(%s, %v, %q)", name, versions, e))
		}
		id := r.fresh()
		r.mapSet[k] = id
		r.mapSetRev[id] = k
		out[e] = id
	}
	return out
}

// GetVirtualVariable returns a fresh VarId with no reverse mapping.
func (r *Register) GetVirtualVariable() VarID {
	return r.fresh()
}

// Single looks up the VarId for (name, ver, extra); ok is false if it was
// never registered.
func (r *Register) Single(name string, ver version.Version, extra string) (VarID, bool) {
	id, ok := r.mapSingle[singleKey{name, ver.String(), extra}]
	return id, ok
}

// SingleRev reverses a VarId allocated by RegisterSingle.
func (r *Register) SingleRev(id VarID) (name, ver, extra string, ok bool) {
	k, ok := r.mapSingleRev[id]
	if !ok {
		return "", "", "", false
	}
	return k.Name, k.Version, k.Extra, true
}

// KnownVersions returns every version registered for name, in no
// particular order.
func (r *Register) KnownVersions(name string) []string {
	set := r.versionsRegister[name]
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	return out
}

// SetVar is one entry of map_set: the (name, versions, extra) key plus its
// VarId, with versions split back out from their canonical joined form.
type SetVar struct {
	Name     string
	Extra    string
	Versions []string
	ID       VarID
}

// SetVars returns the VarIds of map_set, in deterministic order (sorted by
// name, then extra, then version-group key) so that two encoder runs over
// identical input iterate them identically.
func (r *Register) SetVars() []SetVar {
	out := make([]SetVar, 0, len(r.mapSet))
	for k, id := range r.mapSet {
		out = append(out, SetVar{Name: k.Name, Extra: k.Extra, Versions: strings.Split(k.Version, ","), ID: id})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		if a.Extra != b.Extra {
			return a.Extra < b.Extra
		}
		return strings.Join(a.Versions, ",") < strings.Join(b.Versions, ",")
	})
	return out
}

func setVersionKey(versions []version.Version) string {
	strs := make([]string, len(versions))
	for i, v := range versions {
		strs[i] = v.String()
	}
	sort.Strings(strs)
	return strings.Join(strs, ",")
}
