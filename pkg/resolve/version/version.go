// Copyright (C) 2020-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package version implements PEP 440 version parsing and ordering, plus a single
// sentinel Version (Virtual) standing for "a package we know of by name but for
// which no metadata was ever harvested."
//
// https://www.python.org/dev/peps/pep-0440/
package version

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"k8s.io/apimachinery/pkg/util/intstr"
)

// PreRelease is the "aN"/"bN"/"rcN" suffix of a version.
type PreRelease struct {
	L string // "a", "b", or "rc"
	N int
}

// Version is a parsed PEP 440 version, or the Virtual sentinel.
//
// The zero Version is not meaningful; construct with Parse or use Virtual.
type Version struct {
	virtual bool // Virtual sentinel: no Epoch/Release/etc carry meaning

	Epoch   int
	Release []int
	Pre     *PreRelease
	Post    *int
	Dev     *int
	Local   []intstr.IntOrString
}

// Virtual is the sentinel Version representing "no harvested version." It never
// compares equal to a real Version, and a Requirement always treats it as satisfied.
var Virtual = Version{virtual: true} //nolint:gochecknoglobals // sentinel value, not mutable config

// IsVirtual reports whether v is the Virtual sentinel.
func (v Version) IsVirtual() bool { return v.virtual }

//nolint:lll // regex mirrors the PEP 440 Appendix B grammar, kept on one line for diffability
var reVersion = regexp.MustCompile(`(?i)^\s*v?` +
	`(?:(?P<epoch>[0-9]+)!)?` +
	`(?P<release>[0-9]+(?:\.[0-9]+)*)` +
	`(?P<pre>[-_.]?(?P<pre_l>a|b|c|rc|alpha|beta|pre|preview)[-_.]?(?P<pre_n>[0-9]+)?)?` +
	`(?:(?:-(?P<post_n1>[0-9]+))|(?P<post>[-_.]?(?P<post_l>post|rev|r)[-_.]?(?P<post_n2>[0-9]+)?))?` +
	`(?P<dev>[-_.]?(?P<dev_l>dev)[-_.]?(?P<dev_n>[0-9]+)?)?` +
	`(?:\+(?P<local>[a-z0-9]+(?:[-_.][a-z0-9]+)*))?` +
	`\s*$`)

// Parse parses a PEP 440 version string. It never returns the Virtual sentinel.
func Parse(str string) (Version, error) {
	match := reVersion.FindStringSubmatch(str)
	if match == nil {
		return Version{}, fmt.Errorf("invalid version: %q", str)
	}

	var ver Version

	if epoch := match[reVersion.SubexpIndex("epoch")]; epoch != "" {
		n, err := strconv.Atoi(epoch)
		if err != nil {
			return Version{}, err
		}
		ver.Epoch = n
	}

	for _, seg := range strings.Split(match[reVersion.SubexpIndex("release")], ".") {
		n, err := strconv.Atoi(seg)
		if err != nil {
			return Version{}, err
		}
		ver.Release = append(ver.Release, n)
	}

	pre, err := parseLetterNumber(
		match[reVersion.SubexpIndex("pre_l")],
		match[reVersion.SubexpIndex("pre_n")],
		map[string][]string{"a": {"alpha"}, "b": {"beta"}, "rc": {"c", "pre", "preview"}})
	if err != nil {
		return Version{}, fmt.Errorf("pre-release: %w", err)
	}
	if pre != nil {
		ver.Pre = &PreRelease{L: pre.l, N: pre.n}
	}

	post, err := parseLetterNumber(
		match[reVersion.SubexpIndex("post_l")],
		match[reVersion.SubexpIndex("post_n1")]+match[reVersion.SubexpIndex("post_n2")],
		map[string][]string{"post": {"", "rev", "r"}})
	if err != nil {
		return Version{}, fmt.Errorf("post-release: %w", err)
	}
	if post != nil {
		n := post.n
		ver.Post = &n
	}

	dev, err := parseLetterNumber(
		match[reVersion.SubexpIndex("dev_l")],
		match[reVersion.SubexpIndex("dev_n")],
		map[string][]string{"dev": nil})
	if err != nil {
		return Version{}, fmt.Errorf("dev-release: %w", err)
	}
	if dev != nil {
		n := dev.n
		ver.Dev = &n
	}

	for _, part := range strings.FieldsFunc(match[reVersion.SubexpIndex("local")], func(r rune) bool {
		return strings.ContainsRune("-_.", r)
	}) {
		ver.Local = append(ver.Local, intstr.Parse(strings.ToLower(part)))
	}

	return ver, nil
}

// MustParse is Parse, panicking on error; for use with literal version strings.
func MustParse(str string) Version {
	v, err := Parse(str)
	if err != nil {
		panic(err)
	}
	return v
}

type letterNumber struct {
	l string
	n int
}

func parseLetterNumber(letter, number string, acceptable map[string][]string) (*letterNumber, error) {
	if letter == "" && number == "" {
		return nil, nil //nolint:nilnil // absent suffix, not an error
	}
	letter = strings.ToLower(letter)
	if letter != "" && number == "" {
		number = "0"
	}
	canonical := letter
	if _, ok := acceptable[letter]; !ok {
		found := false
	outer:
		for c, aliases := range acceptable {
			for _, a := range aliases {
				if letter == a {
					canonical = c
					found = true
					break outer
				}
			}
		}
		if !found {
			return nil, fmt.Errorf("invalid string-part: %q", letter)
		}
	}
	n, err := strconv.Atoi(number)
	if err != nil {
		return nil, err
	}
	return &letterNumber{l: canonical, n: n}, nil
}

// Normalize returns a copy of v with a canonical (non-zero-padded, rc-spelled)
// release segment; it is a no-op for the Virtual sentinel.
func (v Version) Normalize() Version {
	if v.virtual {
		return v
	}
	release := make([]int, len(v.Release))
	copy(release, v.Release)
	for len(release) > 1 && release[len(release)-1] == 0 {
		release = release[:len(release)-1]
	}
	v.Release = release
	return v
}

func (v Version) IsPreRelease() bool  { return !v.virtual && v.Pre != nil }
func (v Version) IsDevRelease() bool  { return !v.virtual && v.Dev != nil }
func (v Version) IsPostRelease() bool { return !v.virtual && v.Post != nil }

func (v Version) Major() int { return v.segment(0) }
func (v Version) Minor() int { return v.segment(1) }
func (v Version) Micro() int { return v.segment(2) }

func (v Version) segment(i int) int {
	if v.virtual || i >= len(v.Release) {
		return 0
	}
	return v.Release[i]
}

func (v Version) String() string {
	if v.virtual {
		return "<virtual>"
	}
	var b strings.Builder
	if v.Epoch != 0 {
		fmt.Fprintf(&b, "%d!", v.Epoch)
	}
	for i, seg := range v.Release {
		if i > 0 {
			b.WriteByte('.')
		}
		fmt.Fprintf(&b, "%d", seg)
	}
	if v.Pre != nil {
		fmt.Fprintf(&b, "%s%d", v.Pre.L, v.Pre.N)
	}
	if v.Post != nil {
		fmt.Fprintf(&b, ".post%d", *v.Post)
	}
	if v.Dev != nil {
		fmt.Fprintf(&b, ".dev%d", *v.Dev)
	}
	for i, l := range v.Local {
		if i == 0 {
			b.WriteByte('+')
		} else {
			b.WriteByte('.')
		}
		b.WriteString(l.String())
	}
	return b.String()
}

// Cmp implements the full PEP 440 ordering: epoch, release, pre/absence-of-pre,
// post, dev, then local version. The Virtual sentinel sorts after every real
// version and compares equal only to itself.
func (v Version) Cmp(o Version) int {
	switch {
	case v.virtual && o.virtual:
		return 0
	case v.virtual:
		return 1
	case o.virtual:
		return -1
	}
	if d := v.Epoch - o.Epoch; d != 0 {
		return sign(d)
	}
	if d := cmpRelease(v.Release, o.Release); d != 0 {
		return d
	}
	// A dev release with no pre- or post-release part (1.0.dev1) sorts
	// before every pre-release of the same release (1.0a1).
	vDevOnly := v.Pre == nil && v.Post == nil && v.Dev != nil
	oDevOnly := o.Pre == nil && o.Post == nil && o.Dev != nil
	switch {
	case vDevOnly && o.Pre != nil:
		return -1
	case oDevOnly && v.Pre != nil:
		return 1
	}
	if d := cmpPreRelease(v.Pre, o.Pre); d != 0 {
		return d
	}
	if d := cmpOptInt(v.Post, o.Post); d != 0 {
		return d
	}
	if d := cmpDev(v.Dev, o.Dev); d != 0 {
		return d
	}
	return cmpLocal(v.Local, o.Local)
}

func sign(d int) int {
	switch {
	case d < 0:
		return -1
	case d > 0:
		return 1
	default:
		return 0
	}
}

func cmpRelease(a, b []int) int {
	for i := 0; i < len(a) || i < len(b); i++ {
		var x, y int
		if i < len(a) {
			x = a[i]
		}
		if i < len(b) {
			y = b[i]
		}
		if d := x - y; d != 0 {
			return sign(d)
		}
	}
	return 0
}

// preReleaseOrder ranks a version's pre-release-ness: no pre-release sorts highest
// (it is logically "after" any rc of the same release), "a" lowest.
var preReleaseOrder = map[string]int{"a": 0, "b": 1, "rc": 2} //nolint:gochecknoglobals // fixed table

func cmpPreRelease(a, b *PreRelease) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1 // no pre-release > any pre-release
	case b == nil:
		return -1
	}
	if d := preReleaseOrder[a.L] - preReleaseOrder[b.L]; d != 0 {
		return sign(d)
	}
	return sign(a.N - b.N)
}

func cmpOptInt(a, b *int) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	default:
		return sign(*a - *b)
	}
}

func cmpDev(a, b *int) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1 // no dev-release > any dev-release
	case b == nil:
		return -1
	default:
		return sign(*a - *b)
	}
}

func cmpLocal(a, b []intstr.IntOrString) int {
	for i := 0; i < len(a) || i < len(b); i++ {
		switch {
		case i >= len(a):
			return -1 // shorter local version sorts lower
		case i >= len(b):
			return 1
		}
		if d := cmpLocalSegment(a[i], b[i]); d != 0 {
			return d
		}
	}
	return 0
}

// cmpLocalSegment: numeric segments sort higher than, and after, string segments.
func cmpLocalSegment(a, b intstr.IntOrString) int {
	aNum, bNum := a.Type == intstr.Int, b.Type == intstr.Int
	switch {
	case aNum && bNum:
		return sign(int(a.IntVal) - int(b.IntVal))
	case aNum:
		return 1
	case bNum:
		return -1
	default:
		switch {
		case a.StrVal < b.StrVal:
			return -1
		case a.StrVal > b.StrVal:
			return 1
		default:
			return 0
		}
	}
}
