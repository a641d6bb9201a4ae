// Copyright (C) 2020-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package extract implements component G: turn a source tree, a PyPI
// release, or an already-installed module into a normalized Metadata
// Record. A source tree is read from its static metadata (PKG-INFO,
// METADATA, setup.cfg) when it has any; otherwise `setup.py egg_info` is run
// in the tree, which executes the tree's own setup.py as-is (no mocked
// imports, no sandbox). Callers only see the from_path/from_pypi/
// from_native input/output contract.
package extract

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	extractarchive "github.com/codeclysm/extract/v3"
	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/pterm/pterm"

	"github.com/datawire/dlib/dlog"

	"github.com/datawire/pyresolve/pkg/resolve/index"
	"github.com/datawire/pyresolve/pkg/resolve/metadata"
	rname "github.com/datawire/pyresolve/pkg/resolve/name"
)

// Extractor is the contract of spec §6's Extractor interface.
type Extractor interface {
	FromPath(ctx context.Context, path string) (*metadata.Record, error)
	FromPyPI(ctx context.Context, name, ver string) (*metadata.Record, error)
	FromNative(ctx context.Context, name string) (*metadata.Record, error)
}

// PyExtractor is the on-disk implementation: it reads a source tree's
// static metadata (PKG-INFO, setup.cfg) the same way pip's dependency
// resolver does before ever invoking a build backend, falling back to
// running the interpreter only when nothing static is available. It
// fetches PyPI archives via an index.Index and codeclysm/extract/v3, and
// probes already-installed modules via a subprocess per pyinspect's
// dexec.CommandContext pattern.
type PyExtractor struct {
	Index      index.Index
	HTTPClient *http.Client
	WorkDir    string // scratch directory for downloads/extraction
	PythonCmd  []string
}

func (e *PyExtractor) fillDefaults() {
	if e.HTTPClient == nil {
		e.HTTPClient = http.DefaultClient
	}
	if e.WorkDir == "" {
		e.WorkDir = os.TempDir()
	}
	if len(e.PythonCmd) == 0 {
		e.PythonCmd = []string{"python3"}
	}
}

// FromPath reads a source tree at path and produces its Metadata Record,
// or (nil, nil) if the tree has no discoverable metadata.
func (e *PyExtractor) FromPath(ctx context.Context, path string) (*metadata.Record, error) {
	e.fillDefaults()

	if rec, err := readPKGInfo(path); err != nil {
		return nil, errors.Annotate(err, "extract.FromPath")
	} else if rec != nil {
		rec.Normalize()
		return rec, nil
	}

	if rec, err := readSetupCfg(path); err != nil {
		return nil, errors.Annotate(err, "extract.FromPath")
	} else if rec != nil {
		rec.Normalize()
		return rec, nil
	}

	rec, err := dynamicEggInfo(ctx, e.PythonCmd, path)
	if err != nil {
		return nil, errors.Annotate(err, "extract.FromPath")
	}
	if rec == nil {
		return nil, nil
	}
	rec.Normalize()
	return rec, nil
}

// FromPyPI looks up (name, ver) in the index, downloads the best archive,
// extracts it to a scratch directory under WorkDir, and delegates to
// FromPath.
func (e *PyExtractor) FromPyPI(ctx context.Context, name, ver string) (*metadata.Record, error) {
	e.fillDefaults()

	var file index.ReleaseFile
	var err error
	if sel, ok := e.Index.(interface {
		SelectArchive(context.Context, string, string) (index.ReleaseFile, error)
	}); ok {
		file, err = sel.SelectArchive(ctx, name, ver)
	} else {
		var files []index.ReleaseFile
		files, err = e.Index.ReleaseURLs(ctx, name, ver)
		if err == nil {
			if len(files) == 0 {
				return nil, nil
			}
			file = files[0]
		}
	}
	if err != nil {
		return nil, errors.Annotate(err, "extract.FromPyPI")
	}
	if file.Yanked {
		dlog.Warnf(ctx, "extract: %s==%s: selected file is yanked", name, ver)
	}

	dir := filepath.Join(e.WorkDir, scratchName(rname.Normalize(name)))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Annotate(err, "extract.FromPyPI")
	}
	defer os.RemoveAll(dir)

	if err := e.fetchAndExtract(ctx, file.URL, dir); err != nil {
		return nil, errors.Annotate(err, "extract.FromPyPI")
	}

	root, err := soleSubdir(dir)
	if err != nil {
		return nil, errors.Annotate(err, "extract.FromPyPI")
	}

	return e.FromPath(ctx, root)
}

func (e *PyExtractor) fetchAndExtract(ctx context.Context, rawURL, destDir string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	pterm.Info.Printf("downloading %s\n", rawURL)
	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %q: HTTP %s", rawURL, resp.Status)
	}

	if err := extractarchive.Archive(ctx, resp.Body, destDir, nil); err != nil {
		return fmt.Errorf("extracting %q: %w", rawURL, err)
	}
	pterm.Success.Printf("extracted %s\n", filepath.Base(rawURL))
	return nil
}

// soleSubdir returns the single child directory of dir, which is the
// convention sdist archives use (a single top-level "name-version/"
// directory). If there is no such single directory, dir itself is returned.
func soleSubdir(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	var subdirs []string
	for _, ent := range entries {
		if !ent.IsDir() {
			continue
		}
		// Wheels extract flat, with *.dist-info alongside the package; in
		// that case dir itself is the root to scan.
		if filepath.Ext(ent.Name()) == ".dist-info" {
			return dir, nil
		}
		subdirs = append(subdirs, ent.Name())
	}
	if len(subdirs) == 1 {
		return filepath.Join(dir, subdirs[0]), nil
	}
	return dir, nil
}

// scratchName returns a collision-resistant scratch directory name;
// extracted out so it can be swapped for a deterministic one in tests.
func scratchName(prefix string) string {
	return prefix + "-" + uuid.New().String()
}

var _ Extractor = (*PyExtractor)(nil)
