// Copyright (C) 2020-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pbo

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/datawire/pyresolve/pkg/resolve/cache"
	rname "github.com/datawire/pyresolve/pkg/resolve/name"
	"github.com/datawire/pyresolve/pkg/resolve/requirement"
	"github.com/datawire/pyresolve/pkg/resolve/version"
)

// Seed is one must-satisfy (name, version) pair from the root projects.
type Seed struct {
	Name    string
	Version string
}

// term is one signed-coefficient variable reference in a constraint or the
// objective.
type term struct {
	Coeff int
	Var   VarID
}

func (t term) String() string {
	if t.Coeff >= 0 {
		return fmt.Sprintf("+%d x%d", t.Coeff, t.Var)
	}
	return fmt.Sprintf("%d x%d", t.Coeff, t.Var)
}

// constraint is one OPB constraint line: a sum of terms, ">=", and an
// integer right-hand side.
type constraint struct {
	Terms []term
	RHS   int
}

func (c constraint) String() string {
	parts := make([]string, len(c.Terms))
	for i, t := range c.Terms {
		parts[i] = t.String()
	}
	return strings.Join(parts, " ") + fmt.Sprintf(" >= %d ;", c.RHS)
}

// Encoder is component J: builds the OPB constraint system from the
// scheduler's closure and the cache.
type Encoder struct {
	Cache cache.Cache
	Reg   *Register

	constraints []constraint
	objective   []term
}

// NewEncoder constructs an Encoder; if reg is nil a fresh Register is
// allocated.
func NewEncoder(c cache.Cache, reg *Register) *Encoder {
	if reg == nil {
		reg = NewRegister()
	}
	return &Encoder{Cache: c, Reg: reg}
}

func (e *Encoder) addConstraint(terms []term, rhs int) {
	e.constraints = append(e.constraints, constraint{Terms: terms, RHS: rhs})
}

// parseVersion reverses version.Version.String(), including for the
// Virtual sentinel's "<virtual>" rendering — every version string flowing
// through the encoder was produced by that method (via KnownVersions or
// SetVars), never typed in by a user, so this is always an exact inverse.
func parseVersion(s string) (version.Version, error) {
	if s == version.Virtual.String() {
		return version.Virtual, nil
	}
	return version.Parse(s)
}

// Encode runs the seven-step algorithm of spec §4.J over doneItems (the
// scheduler's done set, as (name, extra) pairs) and seeds, and returns the
// finished .opb document.
func (e *Encoder) Encode(ctx context.Context, doneItems []struct{ Name, Extra string }, seeds []Seed) (string, error) {
	// Step 1: name -> set of extras, always including the base extra.
	nameExtras := make(map[string]map[string]bool)
	var names []string
	for _, it := range doneItems {
		if nameExtras[it.Name] == nil {
			nameExtras[it.Name] = make(map[string]bool)
			names = append(names, it.Name)
		}
		nameExtras[it.Name][it.Extra] = true
		nameExtras[it.Name][rname.Base] = true
	}
	sort.Strings(names)

	// Step 2: alias compression + single/set registration.
	for _, name := range names {
		extras := sortedKeys(nameExtras[name])
		if err := e.registerName(ctx, name, extras); err != nil {
			return "", err
		}
	}

	// Step 3: per-(set, extra) requirement encoding.
	for _, sv := range e.Reg.SetVars() {
		if err := e.encodeSetRequirements(ctx, sv); err != nil {
			return "", err
		}
	}

	// Step 4: at-most-one per name (base flavor).
	for _, name := range names {
		e.encodeAtMostOne(name)
	}

	// Step 5: extras imply base.
	for _, name := range names {
		e.encodeExtrasImplyBase(name, sortedKeys(nameExtras[name]))
	}

	// Step 6: objective (newest-preferred).
	for _, name := range names {
		e.encodeObjective(name)
	}

	// Step 7: must-satisfy seeds.
	for _, seed := range seeds {
		v, err := version.Parse(seed.Version)
		if err != nil {
			return "", fmt.Errorf("pbo: invalid seed version %q for %q: %w", seed.Version, seed.Name, err)
		}
		id, ok := e.Reg.Single(seed.Name, v, rname.Base)
		if !ok {
			return "", fmt.Errorf("pbo: seed %s==%s was never registered", seed.Name, seed.Version)
		}
		e.addConstraint([]term{{1, id}}, 1)
	}

	return e.render(), nil
}

// registerName performs step 2 for one name: gather cached versions (or
// synthesize Virtual), group by byte-identical metadata, and register
// both the per-version and per-alias-group variables.
func (e *Encoder) registerName(ctx context.Context, name string, extras []string) error {
	versionStrs, err := e.Cache.AllVersions(ctx, name)
	if err != nil {
		return err
	}

	type versionMeta struct {
		V   version.Version
		Raw []byte
	}
	var versions []versionMeta
	if len(versionStrs) == 0 {
		versions = []versionMeta{{V: version.Virtual}}
	} else {
		for _, vs := range versionStrs {
			v, err := version.Parse(vs)
			if err != nil {
				continue
			}
			rec, ok, err := e.Cache.Get(ctx, name, vs)
			if err != nil {
				return err
			}
			var raw []byte
			if ok {
				// Name and Version vary by construction across every entry
				// being compared here, so they're excluded from the alias
				// key: two versions alias iff their *requirements* match.
				rec.Name, rec.Version = "", ""
				raw, err = rec.Marshal()
				if err != nil {
					return err
				}
			}
			versions = append(versions, versionMeta{V: v, Raw: raw})
		}
	}

	sort.Slice(versions, func(i, j int) bool { return versions[i].V.Cmp(versions[j].V) < 0 })

	for _, vm := range versions {
		e.Reg.RegisterSingle(name, vm.V, extras)
	}

	aliases := make(map[string][]version.Version)
	var aliasOrder []string
	for _, vm := range versions {
		key := string(vm.Raw)
		if _, seen := aliases[key]; !seen {
			aliasOrder = append(aliasOrder, key)
		}
		aliases[key] = append(aliases[key], vm.V)
	}
	sort.Strings(aliasOrder)
	for _, key := range aliasOrder {
		e.Reg.RegisterSet(name, aliases[key], extras)
	}
	return nil
}

// encodeSetRequirements performs step 3 for one (name, versions, extra)
// set variable.
func (e *Encoder) encodeSetRequirements(ctx context.Context, sv SetVar) error {
	repVer, err := parseVersion(sv.Versions[0])
	if err != nil {
		return err
	}
	rec, ok, err := e.Cache.Get(ctx, sv.Name, repVer.String())
	if err != nil {
		return err
	}
	if !ok {
		// Virtual-only name: no metadata, no requirement clauses.
		return nil
	}

	reqs := rec.RequiresFor(sv.Extra)

	// Linking clause: sum(-1 * x_v) + |versions| * x_S >= 0.
	linkTerms := make([]term, 0, len(sv.Versions)+1)
	for _, vs := range sv.Versions {
		v, err := parseVersion(vs)
		if err != nil {
			return err
		}
		id, ok := e.Reg.Single(sv.Name, v, sv.Extra)
		if !ok {
			return fmt.Errorf("pbo: %s==%s[%s] has no map_single entry", sv.Name, vs, sv.Extra)
		}
		linkTerms = append(linkTerms, term{-1, id})
	}
	linkTerms = append(linkTerms, term{len(sv.Versions), sv.ID})
	e.addConstraint(linkTerms, 0)

	for _, r := range reqs {
		vR := e.Reg.GetVirtualVariable()
		e.addConstraint([]term{{-1, sv.ID}, {1, vR}}, 0)

		candidates := e.candidateVars(r)
		terms := make([]term, 0, len(candidates)+1)
		terms = append(terms, term{-1, vR})
		for _, id := range candidates {
			terms = append(terms, term{1, id})
		}
		e.addConstraint(terms, 0)
	}
	return nil
}

// candidateVars returns, in deterministic order, the map_single VarIds of
// every (w, e) that can satisfy r: every known version w of r.Name with
// w == Virtual or w in r, crossed with e in {""} ∪ r.Extras.
func (e *Encoder) candidateVars(r requirement.Requirement) []VarID {
	known := e.Reg.KnownVersions(r.Name)
	sort.Strings(known)

	extraSet := append([]string{rname.Base}, r.Extras...)

	var out []VarID
	for _, vs := range known {
		v, err := parseVersion(vs)
		if err != nil {
			continue
		}
		if !(v.IsVirtual() || r.Satisfies(v)) {
			continue
		}
		for _, extra := range extraSet {
			if id, ok := e.Reg.Single(r.Name, v, extra); ok {
				out = append(out, id)
			}
		}
	}
	return out
}

// encodeAtMostOne performs step 4: sum(-x_v) over every base-flavor
// version of name >= -1.
func (e *Encoder) encodeAtMostOne(name string) {
	versions := e.Reg.KnownVersions(name)
	sort.Strings(versions)
	terms := make([]term, 0, len(versions))
	for _, vs := range versions {
		v, err := parseVersion(vs)
		if err != nil {
			continue
		}
		if id, ok := e.Reg.Single(name, v, rname.Base); ok {
			terms = append(terms, term{-1, id})
		}
	}
	if len(terms) == 0 {
		return
	}
	e.addConstraint(terms, -1)
}

// encodeExtrasImplyBase performs step 5.
func (e *Encoder) encodeExtrasImplyBase(name string, extras []string) {
	versions := e.Reg.KnownVersions(name)
	sort.Strings(versions)
	for _, extra := range extras {
		if extra == rname.Base {
			continue
		}
		for _, vs := range versions {
			v, err := parseVersion(vs)
			if err != nil {
				continue
			}
			extraID, ok := e.Reg.Single(name, v, extra)
			if !ok {
				continue
			}
			baseID, ok := e.Reg.Single(name, v, rname.Base)
			if !ok {
				continue
			}
			e.addConstraint([]term{{-1, extraID}, {1, baseID}}, 0)
		}
	}
}

// encodeObjective performs step 6: newest-first weights added to the
// global objective.
func (e *Encoder) encodeObjective(name string) {
	versions := e.Reg.KnownVersions(name)
	parsed := make([]version.Version, 0, len(versions))
	for _, vs := range versions {
		if v, err := parseVersion(vs); err == nil {
			parsed = append(parsed, v)
		}
	}
	sort.Slice(parsed, func(i, j int) bool { return parsed[i].Cmp(parsed[j]) > 0 })
	for weight, v := range parsed {
		if id, ok := e.Reg.Single(name, v, rname.Base); ok {
			e.objective = append(e.objective, term{weight, id})
		}
	}
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// render produces the final OPB document text.
func (e *Encoder) render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "* #variable= %d #constraint= %d\n", e.Reg.Count(), len(e.constraints))

	b.WriteString("min:")
	for _, t := range e.objective {
		fmt.Fprintf(&b, " %s", t.String())
	}
	b.WriteString(" ;\n")

	for _, c := range e.constraints {
		b.WriteString(c.String())
		b.WriteByte('\n')
	}
	return b.String()
}
