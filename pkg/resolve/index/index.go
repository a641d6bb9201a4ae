// Copyright (C) 2020-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package index implements component F: canonicalize a name, list every known
// version of it, and locate the URL of its source archive, against a PyPA
// Simple Repository API server (PEP 503, extended by PEP 592 and PEP 629).
//
// https://packaging.python.org/specifications/simple-repository-api/
package index

import "context"

// ReleaseFile describes one file attached to a release, per spec §6's
// release_urls contract.
type ReleaseFile struct {
	PackageType string // "sdist" or "bdist_wheel"
	URL         string
	Yanked      bool
}

// Index is the contract of spec §6.
type Index interface {
	// RealName canonicalizes the casing/spelling of name against the index.
	RealName(ctx context.Context, name string) (string, error)

	// PackageReleases returns every known version of name. Client leaves out
	// yanked files when building this list; ReleaseURLs still reports them,
	// with their yank status.
	PackageReleases(ctx context.Context, name string) ([]string, error)

	// ReleaseURLs returns the files attached to one release of name.
	ReleaseURLs(ctx context.Context, name, version string) ([]ReleaseFile, error)
}
