// Copyright (C) 2020-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package name implements the normalization rule shared by every component that
// accepts a package or extra name. It is close to, but not the same as, PEP 503
// name normalization: dots are kept and runs of separators are not collapsed.
//
// https://www.python.org/dev/peps/pep-0503/#normalized-names
package name

import (
	"regexp"
	"strings"
)

var reUnderscore = regexp.MustCompile(`_`)

// Normalize lowercases s, strips surrounding whitespace, turns underscores into
// hyphens, and drops any byte outside [a-z0-9.-]. It is idempotent:
// Normalize(Normalize(s)) == Normalize(s) for all s.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = reUnderscore.ReplaceAllLiteralString(s, "-")
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Base is the extra name denoting a package's base (no-extra) flavor.
const Base = ""
