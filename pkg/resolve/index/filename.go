// Copyright (C) 2020-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package index

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/datawire/pyresolve/pkg/resolve/version"
)

// Tag is a PEP 425 compatibility tag: (python implementation/version, ABI,
// platform), e.g. "cp39-cp39-manylinux_2_17_x86_64".
type Tag struct {
	Python   string
	ABI      string
	Platform string
}

func (t Tag) String() string { return t.Python + "-" + t.ABI + "-" + t.Platform }

// decompress expands a compressed tag (dot-separated alternatives in any of
// the three components) into the set of tags it stands for.
func (t Tag) decompress() []Tag {
	var out []Tag
	for _, x := range strings.Split(t.Python, ".") {
		for _, y := range strings.Split(t.ABI, ".") {
			for _, z := range strings.Split(t.Platform, ".") {
				out = append(out, Tag{x, y, z})
			}
		}
	}
	return out
}

// InstallerTags is the ordered (most to least preferred) list of tags the
// running interpreter supports, as produced by `packaging.tags.sys_tags()`.
type InstallerTags []Tag

// Supports reports whether any compressed tag in t matches any in insts.
func (insts InstallerTags) Supports(t Tag) bool {
	for _, inst := range insts {
		for _, i2 := range inst.decompress() {
			for _, t2 := range t.decompress() {
				if i2 == t2 {
					return true
				}
			}
		}
	}
	return false
}

type fileNameData struct {
	Distribution     string
	Version          version.Version
	CompatibilityTag Tag
}

func (d fileNameData) packageType() string {
	if d.isWheel() {
		return "bdist_wheel"
	}
	return "sdist"
}

//nolint:lll // filename grammar kept on one line for diffability
var reWheelName = regexp.MustCompile(`^(?P<distribution>[^-]+)-(?P<version>[^-]+)(?:-[0-9][^-]*)?-(?P<python>[^-]+)-(?P<abi>[^-]+)-(?P<platform>[^-]+)\.whl$`)

var reSdistName = regexp.MustCompile(`^(?P<distribution>.+)-(?P<version>[0-9][^-]*)\.(?:tar\.gz|zip)$`)

// parseFilename parses a wheel or sdist filename (PyPA's binary-distribution-
// format and the historical sdist convention) into its distribution name,
// version, and (for wheels) compatibility tag.
func parseFilename(filename string) (fileNameData, error) {
	if m := reWheelName.FindStringSubmatch(filename); m != nil {
		ver, err := version.Parse(m[reWheelName.SubexpIndex("version")])
		if err != nil {
			return fileNameData{}, fmt.Errorf("invalid wheel filename: %q: %w", filename, err)
		}
		return fileNameData{
			Distribution: m[reWheelName.SubexpIndex("distribution")],
			Version:      ver,
			CompatibilityTag: Tag{
				Python:   m[reWheelName.SubexpIndex("python")],
				ABI:      m[reWheelName.SubexpIndex("abi")],
				Platform: m[reWheelName.SubexpIndex("platform")],
			},
		}, nil
	}
	if m := reSdistName.FindStringSubmatch(filename); m != nil {
		ver, err := version.Parse(m[reSdistName.SubexpIndex("version")])
		if err != nil {
			return fileNameData{}, fmt.Errorf("invalid sdist filename: %q: %w", filename, err)
		}
		return fileNameData{
			Distribution: m[reSdistName.SubexpIndex("distribution")],
			Version:      ver,
		}, nil
	}
	return fileNameData{}, fmt.Errorf("unrecognized distribution filename: %q", filename)
}

func (d fileNameData) isWheel() bool { return d.CompatibilityTag != (Tag{}) }
