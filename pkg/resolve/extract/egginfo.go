// Copyright (C) 2020-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package extract

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/datawire/dlib/dexec"

	"github.com/datawire/pyresolve/pkg/resolve/metadata"
	"github.com/datawire/pyresolve/pkg/resolve/requirement"
)

// dynamicEggInfo is the last resort when a source tree has neither a
// PKG-INFO nor a setup.cfg with static metadata: it runs `setup.py
// egg_info` in the tree (the same subprocess pattern pyinspect.Dynamic
// uses to talk to an interpreter) and reads back the *.egg-info directory
// it produces. This is the one place that actually executes a package's
// own code, and is exactly the boundary spec's black-box extractor
// contract draws around "sandboxed execution of installer scripts."
func dynamicEggInfo(ctx context.Context, pythonCmd []string, path string) (*metadata.Record, error) {
	if _, err := os.Stat(filepath.Join(path, "setup.py")); err != nil {
		return nil, nil
	}

	args := append(append([]string{}, pythonCmd[1:]...), "setup.py", "egg_info")
	cmd := dexec.CommandContext(ctx, pythonCmd[0], args...)
	cmd.Dir = path
	cmd.DisableLogging = true
	if _, err := cmd.Output(); err != nil {
		var exitErr *dexec.ExitError
		if errors.As(err, &exitErr) {
			err = fmt.Errorf("%w:\n > %s", err, strings.ReplaceAll(string(exitErr.Stderr), "\n", "\n > "))
		}
		return nil, fmt.Errorf("running setup.py egg_info: %w", err)
	}

	matches, err := filepath.Glob(filepath.Join(path, "*.egg-info"))
	if err != nil || len(matches) == 0 {
		return nil, nil
	}
	eggInfoDir := matches[0]

	rec := &metadata.Record{ExtrasRequire: make(map[string][]requirement.Requirement)}
	if bs, err := os.ReadFile(filepath.Join(eggInfoDir, "PKG-INFO")); err == nil {
		parsed, err := parsePKGInfo(bs)
		if err != nil {
			return nil, err
		}
		rec.Name = parsed.Name
		rec.Version = parsed.Version
	}

	if fp, err := os.Open(filepath.Join(eggInfoDir, "requires.txt")); err == nil {
		defer fp.Close()
		if err := parseRequiresTxt(fp, rec); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	return rec, nil
}

// parseRequiresTxt reads setuptools' generated requires.txt: unconditioned
// requirements first, followed by one "[extra]" header per extra (an extra
// named with an environment marker, e.g. "[extra:sys_platform=='win32']",
// is folded into that extra's bucket — markers beyond the extra name
// itself aren't evaluated, same as parsePEP508).
func parseRequiresTxt(r *os.File, rec *metadata.Record) error {
	scanner := bufio.NewScanner(r)
	extra := ""
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			header := strings.TrimSuffix(strings.TrimPrefix(line, "["), "]")
			extra = header
			if i := strings.IndexByte(extra, ':'); i >= 0 {
				extra = extra[:i]
			}
			continue
		}
		req, err := requirement.Parse(line)
		if err != nil {
			continue
		}
		if extra == "" {
			rec.InstallRequires = append(rec.InstallRequires, req)
		} else {
			rec.ExtrasRequire[extra] = append(rec.ExtrasRequire[extra], req)
		}
	}
	return scanner.Err()
}
