// Copyright (C) 2020-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package extract

import (
	"bytes"
	"io"
	"net/mail"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/datawire/pyresolve/pkg/resolve/metadata"
	"github.com/datawire/pyresolve/pkg/resolve/requirement"
)

// readPKGInfo looks for a PKG-INFO (sdist) or *.dist-info/METADATA (wheel)
// file directly under path and parses it as an RFC 822 message, the same
// core-metadata format google-deps.dev's pypi.ParseMetadata reads. It
// returns (nil, nil) if no such file is present, since that's the common
// case for a bare setup.py-only source tree.
func readPKGInfo(path string) (*metadata.Record, error) {
	candidates := []string{filepath.Join(path, "PKG-INFO")}
	if matches, err := filepath.Glob(filepath.Join(path, "*.egg-info", "PKG-INFO")); err == nil {
		candidates = append(candidates, matches...)
	}
	if matches, err := filepath.Glob(filepath.Join(path, "*.dist-info", "METADATA")); err == nil {
		candidates = append(candidates, matches...)
	}

	for _, candidate := range candidates {
		bs, err := os.ReadFile(candidate)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		return parsePKGInfo(bs)
	}
	return nil, nil
}

// parsePKGInfo parses the core-metadata RFC 822 format, collecting
// Requires-Dist lines into a Record. An extra's marker ("; extra ==
// 'name'") routes the requirement into ExtrasRequire instead of
// InstallRequires, mirroring how pip's own resolver partitions wheel
// metadata requirements.
func parsePKGInfo(data []byte) (*metadata.Record, error) {
	buf := bytes.NewBuffer(data)
	buf.WriteByte('\n')
	msg, err := mail.ReadMessage(buf)
	if err != nil {
		return nil, err
	}

	rec := &metadata.Record{
		ExtrasRequire: make(map[string][]requirement.Requirement),
	}
	header := func(name string) string {
		vs := msg.Header[name]
		if len(vs) == 0 || vs[0] == "UNKNOWN" {
			return ""
		}
		return vs[0]
	}
	rec.Name = header("Name")
	rec.Version = header("Version")

	for _, raw := range msg.Header["Requires-Dist"] {
		req, extra, err := parsePEP508(raw)
		if err != nil {
			continue // a single malformed requirement does not sink the whole record
		}
		if extra == "" {
			rec.InstallRequires = append(rec.InstallRequires, req)
		} else {
			rec.ExtrasRequire[extra] = append(rec.ExtrasRequire[extra], req)
		}
	}

	if _, err := io.ReadAll(msg.Body); err != nil {
		return nil, err
	}

	return rec, nil
}

var reExtraMarker = regexp.MustCompile(`extra\s*==\s*['"]([^'"]+)['"]`)

// parsePEP508 parses one Requires-Dist value into a Requirement plus,
// if the requirement is gated by an "extra == '...'" marker, the name of
// that extra. Environment markers other than the extra gate are ignored:
// a resolver without a target platform/interpreter to evaluate them
// against has no principled way to decide them, so (per spec's Open
// Question on this point) every other marker is treated as always-true.
func parsePEP508(raw string) (requirement.Requirement, string, error) {
	s := strings.TrimSpace(raw)
	extra := ""
	if i := strings.IndexByte(s, ';'); i >= 0 {
		marker := s[i+1:]
		s = strings.TrimSpace(s[:i])
		if m := reExtraMarker.FindStringSubmatch(marker); m != nil {
			extra = m[1]
		}
	}
	// Requires-Dist allows a parenthesized specifier set: "name (>=1,<2)".
	s = strings.Replace(s, "(", "", 1)
	s = strings.Replace(s, ")", "", 1)
	req, err := requirement.Parse(s)
	return req, extra, err
}
