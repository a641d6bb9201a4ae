// Copyright (C) 2020-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/datawire/dlib/dexec"

	"github.com/datawire/pyresolve/pkg/resolve/metadata"
	rname "github.com/datawire/pyresolve/pkg/resolve/name"
	"github.com/datawire/pyresolve/pkg/resolve/requirement"
)

// nativeProbeScript mirrors pyinspect.Dynamic's pattern of shipping a small,
// self-contained script to `python -c` and reading back one JSON object:
// import the module, read its __version__, and ask importlib.metadata for
// its declared requirements if it was installed via a distribution.
const nativeProbeScript = `
import importlib
import json
import sys

name = sys.argv[1]
try:
    mod = importlib.import_module(name)
except ImportError:
    json.dump(None, sys.stdout)
    sys.exit(0)

version = getattr(mod, "__version__", None)
requires = []
try:
    import importlib.metadata as im
    requires = list(im.requires(name) or [])
except Exception:
    pass

json.dump({"Version": version, "Requires": requires}, sys.stdout)
`

type nativeProbeResult struct {
	Version  *string
	Requires []string
}

// dynamicProbe invokes the interpreter to answer whether name is importable
// and, if so, what its __version__ and installed-distribution requirements
// are.
func dynamicProbe(ctx context.Context, pythonCmd []string, name string) (*nativeProbeResult, error) {
	args := append(append([]string{}, pythonCmd[1:]...), "-c", nativeProbeScript, name)
	cmd := dexec.CommandContext(ctx, pythonCmd[0], args...)
	cmd.DisableLogging = true
	bs, err := cmd.Output()
	if err != nil {
		var exitErr *dexec.ExitError
		if errors.As(err, &exitErr) {
			err = fmt.Errorf("%w:\n > %s", err, strings.ReplaceAll(string(exitErr.Stderr), "\n", "\n > "))
		}
		return nil, fmt.Errorf("running python: %w", err)
	}
	var result nativeProbeResult
	if err := json.Unmarshal(bs, &result); err != nil {
		return nil, err
	}
	if result.Version == nil {
		return nil, nil
	}
	return &result, nil
}

// FromNative probes the running interpreter for an already-installed module
// named name, per spec §6's from_native contract: a no-op (nil, nil) if the
// name isn't importable or carries no __version__.
func (e *PyExtractor) FromNative(ctx context.Context, name string) (*metadata.Record, error) {
	e.fillDefaults()
	result, err := dynamicProbe(ctx, e.PythonCmd, rname.Normalize(name))
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}

	rec := &metadata.Record{
		Name:          name,
		ExtrasRequire: make(map[string][]requirement.Requirement),
	}
	if result.Version != nil {
		rec.Version = *result.Version
	}
	for _, raw := range result.Requires {
		req, extra, err := parsePEP508(raw)
		if err != nil {
			continue
		}
		if extra == "" {
			rec.InstallRequires = append(rec.InstallRequires, req)
		} else {
			rec.ExtrasRequire[extra] = append(rec.ExtrasRequire[extra], req)
		}
	}
	rec.Normalize()
	return rec, nil
}
