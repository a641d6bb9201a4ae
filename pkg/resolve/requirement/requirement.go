// Copyright (C) 2020-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package requirement implements component C: a package name, a set of requested
// extras, and an ordered list of PEP 440 version constraints, together with the
// containment predicate used throughout the PBO encoder.
package requirement

import (
	"fmt"
	"strings"

	rname "github.com/datawire/pyresolve/pkg/resolve/name"
	"github.com/datawire/pyresolve/pkg/resolve/version"
)

// Op is one of the comparison operators a Requirement's constraints may use.
type Op int

const (
	OpEQ Op = iota
	OpNE
	OpLT
	OpLE
	OpGT
	OpGE
	OpCompatible // ~=
)

func (op Op) String() string {
	return [...]string{"==", "!=", "<", "<=", ">", ">=", "~="}[op]
}

// Constraint is one clause of a Requirement's spec list: an operator plus the
// version it is compared against. Clauses are conjoined (AND). IsPrefix records
// whether the clause was written with a trailing ".*" (only meaningful for ==
// and !=), requesting release-segment prefix matching instead of strict
// equality, per PEP 440's "version matching"/"version exclusion" clauses.
type Constraint struct {
	Op       Op
	Version  version.Version
	IsPrefix bool
}

// Requirement is component C: (name, extras, ordered constraint list) plus the
// Satisfies containment predicate.
type Requirement struct {
	Name   string
	Extras []string
	Specs  []Constraint
}

// Satisfies reports whether v satisfies every constraint in r. The Virtual
// sentinel always satisfies every Requirement, modeling "unknown — might
// satisfy."
func (r Requirement) Satisfies(v version.Version) bool {
	if v.IsVirtual() {
		return true
	}
	for _, c := range r.Specs {
		if !c.match(v) {
			return false
		}
	}
	return true
}

func (c Constraint) match(ver version.Version) bool {
	spec := c.Version
	switch c.Op {
	case OpEQ:
		return matchEQ(spec, ver, c.IsPrefix)
	case OpNE:
		return !matchEQ(spec, ver, c.IsPrefix)
	case OpLE:
		return spec.Cmp(ver) >= 0
	case OpGE:
		return spec.Cmp(ver) <= 0
	case OpLT:
		return matchLT(spec, ver)
	case OpGT:
		return matchGT(spec, ver)
	case OpCompatible:
		return matchCompatible(spec, ver)
	default:
		panic(fmt.Errorf("invalid Op: %d", c.Op))
	}
}

// matchEQ implements PEP 440 "version matching": isPrefix (a trailing ".*" in
// the source clause) requests prefix matching (release-segment-only);
// otherwise exact equality of the zero-padded release segment plus
// pre/post/dev/local parts, where a candidate's local part is ignored if the
// spec has none.
func matchEQ(spec, ver version.Version, isPrefix bool) bool {
	if isPrefix {
		n := len(spec.Release)
		release := ver.Release
		if len(release) > n {
			release = release[:n]
		}
		for len(release) < n {
			release = append(release, 0)
		}
		return cmpIntSlice(spec.Release, release) == 0
	}
	if len(spec.Local) == 0 {
		ver.Local = nil
	}
	return spec.Cmp(ver) == 0
}

// matchLT/matchGT additionally exclude pre-releases, post-releases, and local
// versions of the boundary version (unless the boundary itself carries that
// suffix), per PEP 440's "exclusive ordered comparison" semantics.
func matchLT(spec, ver version.Version) bool {
	if spec.Cmp(ver) <= 0 {
		return false
	}
	if ver.IsPreRelease() && !sameRelease(spec, ver) {
		return true
	}
	return !sameRelease(spec, ver) || spec.IsPreRelease()
}

func matchGT(spec, ver version.Version) bool {
	if spec.Cmp(ver) >= 0 {
		return false
	}
	if ver.IsPostRelease() && !spec.IsPostRelease() && sameRelease(spec, ver) {
		return false
	}
	if len(ver.Local) > 0 && sameRelease(spec, ver) {
		return false
	}
	return true
}

func sameRelease(a, b version.Version) bool {
	return cmpIntSlice(a.Release, b.Release) == 0
}

func cmpIntSlice(a, b []int) int {
	for i := 0; i < len(a) || i < len(b); i++ {
		var x, y int
		if i < len(a) {
			x = a[i]
		}
		if i < len(b) {
			y = b[i]
		}
		if x != y {
			if x < y {
				return -1
			}
			return 1
		}
	}
	return 0
}

// matchCompatible implements "~=": >= spec, == spec.Release[:-1].*
func matchCompatible(spec, ver version.Version) bool {
	prefix := spec
	prefix.Release = append([]int{}, spec.Release[:len(spec.Release)-1]...)
	prefix.Pre, prefix.Post, prefix.Dev = nil, nil, nil
	return spec.Cmp(ver) <= 0 && matchEQ(prefix, ver, true)
}

// Parse parses a requirement string of the form
// "name[extra1,extra2] (==1.0,!=1.1)" / "name[extra]>=1.0,<2.0" — the bare comma
// separated clause form used throughout this package's callers, which is what
// the metadata extractor is contracted to emit.
func Parse(s string) (Requirement, error) {
	s = strings.TrimSpace(s)
	nameEnd := len(s)
	for i, r := range s {
		if strings.ContainsRune("=!<>~[( ", r) {
			nameEnd = i
			break
		}
	}
	rawName := s[:nameEnd]
	rest := strings.TrimSpace(s[nameEnd:])

	r := Requirement{Name: rname.Normalize(rawName)}

	if strings.HasPrefix(rest, "[") {
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return Requirement{}, fmt.Errorf("requirement: unterminated extras list: %q", s)
		}
		for _, e := range strings.Split(rest[1:end], ",") {
			e = rname.Normalize(e)
			if e != "" {
				r.Extras = append(r.Extras, e)
			}
		}
		rest = strings.TrimSpace(rest[end+1:])
	}

	rest = strings.TrimPrefix(rest, "(")
	rest = strings.TrimSuffix(rest, ")")
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return r, nil
	}
	for _, clauseStr := range strings.Split(rest, ",") {
		clauseStr = strings.TrimSpace(clauseStr)
		if clauseStr == "" {
			continue
		}
		c, err := parseConstraint(clauseStr)
		if err != nil {
			return Requirement{}, fmt.Errorf("requirement %q: %w", s, err)
		}
		r.Specs = append(r.Specs, c)
	}
	return r, nil
}

func parseConstraint(s string) (Constraint, error) {
	var op Op
	var rest string
	switch {
	case strings.HasPrefix(s, "~="):
		op, rest = OpCompatible, s[2:]
	case strings.HasPrefix(s, "=="):
		op, rest = OpEQ, s[2:]
	case strings.HasPrefix(s, "!="):
		op, rest = OpNE, s[2:]
	case strings.HasPrefix(s, "<="):
		op, rest = OpLE, s[2:]
	case strings.HasPrefix(s, ">="):
		op, rest = OpGE, s[2:]
	case strings.HasPrefix(s, "<"):
		op, rest = OpLT, s[1:]
	case strings.HasPrefix(s, ">"):
		op, rest = OpGT, s[1:]
	default:
		return Constraint{}, fmt.Errorf("invalid comparison operator in %q", s)
	}
	rest = strings.TrimSpace(rest)
	isPrefix := false
	if strings.HasSuffix(rest, ".*") {
		isPrefix = true
		rest = strings.TrimSuffix(rest, ".*")
	}
	v, err := version.Parse(rest)
	if err != nil {
		return Constraint{}, err
	}
	return Constraint{Op: op, Version: v, IsPrefix: isPrefix}, nil
}

func (c Constraint) String() string {
	suffix := ""
	if c.IsPrefix {
		suffix = ".*"
	}
	return c.Op.String() + c.Version.String() + suffix
}

func (r Requirement) String() string {
	var b strings.Builder
	b.WriteString(r.Name)
	if len(r.Extras) > 0 {
		fmt.Fprintf(&b, "[%s]", strings.Join(r.Extras, ","))
	}
	for i, c := range r.Specs {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(c.String())
	}
	return b.String()
}
