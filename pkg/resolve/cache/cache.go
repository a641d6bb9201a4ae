// Copyright (C) 2020-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package cache implements component E: a Name x Version -> Metadata Record
// mapping with a listing of the versions cached for a name.
package cache

import (
	"context"

	"github.com/datawire/pyresolve/pkg/resolve/metadata"
)

// Cache is the contract of spec §6: set/get/all_versions over (name,version)
// keys, where name is assumed already-normalized by the caller.
type Cache interface {
	// Set stores rec under (name, version), overwriting any prior value.
	Set(ctx context.Context, name, version string, rec metadata.Record) error

	// Get returns the Record stored for (name, version), or ok=false if none.
	Get(ctx context.Context, name, version string) (rec metadata.Record, ok bool, err error)

	// AllVersions returns every version cached for name; order is unspecified.
	AllVersions(ctx context.Context, name string) ([]string, error)
}
