// Copyright (C) 2020-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/juju/errors"

	"github.com/datawire/pyresolve/pkg/resolve/metadata"
	rname "github.com/datawire/pyresolve/pkg/resolve/name"
)

// FileCache is a Cache backed by one JSON file per (name, version) under Root,
// modeled on aaravmaloo-xe's content-addressed blob store (internal/cache/cas.go):
// a root directory, atomic writes via write-then-rename, and one file per key
// (here <root>/<name>/<version>.json) — adapted here to key by normalized (name, version) rather
// than by content hash, since the cache's keys are the (name, version) pair
// itself rather than a blob digest.
type FileCache struct {
	Root string
}

// New creates a FileCache rooted at root, creating the directory if needed.
func New(root string) (*FileCache, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Annotate(err, "cache.New")
	}
	return &FileCache{Root: root}, nil
}

func (c *FileCache) keyPath(name, ver string) string {
	name = rname.Normalize(name)
	// One subdirectory per name keeps any single directory from growing
	// unboundedly large across a big resolve.
	return filepath.Join(c.Root, name, ver+".json")
}

func (c *FileCache) Set(_ context.Context, name, ver string, rec metadata.Record) error {
	path := c.keyPath(name, ver)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Annotate(err, "cache.Set")
	}
	bs, err := rec.Marshal()
	if err != nil {
		return errors.Annotate(err, "cache.Set")
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return errors.Annotate(err, "cache.Set")
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(bs); err != nil {
		tmp.Close()
		return errors.Annotate(err, "cache.Set")
	}
	if err := tmp.Close(); err != nil {
		return errors.Annotate(err, "cache.Set")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Annotate(err, "cache.Set")
	}
	return nil
}

func (c *FileCache) Get(_ context.Context, name, ver string) (metadata.Record, bool, error) {
	path := c.keyPath(name, ver)
	bs, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return metadata.Record{}, false, nil
		}
		return metadata.Record{}, false, errors.Annotate(err, "cache.Get")
	}
	rec, err := metadata.Unmarshal(bs)
	if err != nil {
		return metadata.Record{}, false, errors.Annotate(err, "cache.Get")
	}
	return rec, true, nil
}

func (c *FileCache) AllVersions(_ context.Context, name string) ([]string, error) {
	dir := filepath.Join(c.Root, rname.Normalize(name))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Annotate(err, "cache.AllVersions")
	}
	versions := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		versions = append(versions, strings.TrimSuffix(e.Name(), ".json"))
	}
	return versions, nil
}

var _ Cache = (*FileCache)(nil)
