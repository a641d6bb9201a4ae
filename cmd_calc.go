// Copyright (C) 2020-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/datawire/dlib/dlog"

	"github.com/datawire/pyresolve/pkg/cliutil"
	"github.com/datawire/pyresolve/pkg/resolve/cache"
	"github.com/datawire/pyresolve/pkg/resolve/config"
	"github.com/datawire/pyresolve/pkg/resolve/extract"
	"github.com/datawire/pyresolve/pkg/resolve/index"
	rname "github.com/datawire/pyresolve/pkg/resolve/name"
	"github.com/datawire/pyresolve/pkg/resolve/pbo"
	"github.com/datawire/pyresolve/pkg/resolve/schedule"
	"github.com/datawire/pyresolve/pkg/resolve/solve"
)

func init() {
	argparser.AddCommand(calcCommand())
}

func calcCommand() *cobra.Command {
	var (
		cacheDir    string
		solverCmd   string
		pythonCmd   string
		indexURL    string
		outFile     string
		cachedOnly  bool
		includeSeed bool
		configPath  string
	)

	cmd := &cobra.Command{
		Use:   "calc [flags] PATH...",
		Short: "Resolve a consistent set of versions for one or more source trees",
		Long: "Each PATH is either a bare directory, or DIR:extra1,extra2,... to also\n" +
			"pull in that project's named extras.",
		Args: cliutil.WrapPositionalArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cacheDir == "" {
				cacheDir = cfg.CacheDir
			}
			if cacheDir == "" {
				cacheDir = ".pyresolve-cache"
			}
			if solverCmd == "" {
				solverCmd = cfg.SolverCmd
			}
			if pythonCmd == "" {
				pythonCmd = cfg.PythonCmd
			}
			if indexURL == "" {
				indexURL = cfg.IndexURL
			}
			if solverCmd == "" {
				return fmt.Errorf("calc: no solver command given (--solver-cmd or solver_cmd in %s)", configPath)
			}

			return runCalc(cmd.Context(), calcOpts{
				Paths:       args,
				CacheDir:    cacheDir,
				SolverCmd:   solverCmd,
				PythonCmd:   pythonCmd,
				IndexURL:    indexURL,
				OutFile:     outFile,
				CachedOnly:  cachedOnly,
				IncludeSeed: includeSeed,
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cacheDir, "cache-dir", "", "root directory of the on-disk metadata cache")
	flags.StringVar(&solverCmd, "solver-cmd", "", "external PBO solver command, given the .opb path as its sole argument")
	flags.StringVar(&pythonCmd, "python-cmd", "", "interpreter command used for native probing and the setup.py egg_info fallback")
	flags.StringVar(&indexURL, "index-url", "", "PyPI Simple Repository API root")
	flags.StringVarP(&outFile, "output", "o", "requirements.pinned.txt", "file to write the pinned requirements list to")
	flags.BoolVar(&cachedOnly, "cached-only", false, "never contact the index or extractor; resolve only from what is already cached")
	flags.BoolVar(&includeSeed, "include-seeds", false, "also emit the root projects themselves in the output")
	flags.StringVar(&configPath, "config", "pyresolve.toml", "path to the pyresolve.toml config file")

	return cmd
}

type calcOpts struct {
	Paths       []string
	CacheDir    string
	SolverCmd   string
	PythonCmd   string
	IndexURL    string
	OutFile     string
	CachedOnly  bool
	IncludeSeed bool
}

// parsedPath is one positional PATH argument: a directory and the extras
// requested alongside it.
type parsedPath struct {
	Dir    string
	Extras []string
}

func parsePaths(args []string) []parsedPath {
	out := make([]parsedPath, 0, len(args))
	for _, arg := range args {
		dir, extraStr, _ := strings.Cut(arg, ":")
		var extras []string
		if extraStr != "" {
			for _, e := range strings.Split(extraStr, ",") {
				if e = strings.TrimSpace(e); e != "" {
					extras = append(extras, e)
				}
			}
		}
		out = append(out, parsedPath{Dir: dir, Extras: extras})
	}
	return out
}

func runCalc(ctx context.Context, opts calcOpts) error {
	c, err := cache.New(opts.CacheDir)
	if err != nil {
		return err
	}

	idx := &index.Client{BaseURL: opts.IndexURL, HTTPClient: http.DefaultClient}

	var pythonCmdSlice []string
	if opts.PythonCmd != "" {
		pythonCmdSlice = strings.Fields(opts.PythonCmd)
	}
	ex := &extract.PyExtractor{
		Index:      idx,
		HTTPClient: http.DefaultClient,
		WorkDir:    os.TempDir(),
		PythonCmd:  pythonCmdSlice,
	}

	sched := schedule.New(c, idx, ex)

	var seeds []pbo.Seed
	for _, pp := range parsePaths(opts.Paths) {
		abs, err := filepath.Abs(pp.Dir)
		if err != nil {
			return fmt.Errorf("calc: %s: %w", pp.Dir, err)
		}
		rec, err := ex.FromPath(ctx, abs)
		if err != nil {
			return fmt.Errorf("calc: %s: %w", pp.Dir, err)
		}
		if rec == nil {
			return fmt.Errorf("calc: %s: no discoverable Python metadata", pp.Dir)
		}
		rec.Normalize()
		if err := c.Set(ctx, rec.Name, rec.Version, *rec); err != nil {
			return fmt.Errorf("calc: caching %s: %w", pp.Dir, err)
		}

		seeds = append(seeds, pbo.Seed{Name: rec.Name, Version: rec.Version})

		// A root source tree is never on the index, so it is seeded, its
		// requirements are enqueued, and it is marked done directly —
		// ProcessExtract would only drop it on a failed RealName lookup,
		// and an item that never reaches done is never registered by the
		// encoder (nor available to satisfy its own seed clause).
		sched.Seed(rec.Name, rname.Base)
		if err := sched.AddTodosFromDB(ctx, rec.Name, rec.Version, rname.Base); err != nil {
			return fmt.Errorf("calc: %s: %w", pp.Dir, err)
		}
		sched.DoneWithAllVersions(rec.Name, rname.Base)
		for _, e := range pp.Extras {
			e = rname.Normalize(e)
			sched.Seed(rec.Name, e)
			if err := sched.AddTodosFromDB(ctx, rec.Name, rec.Version, e); err != nil {
				return fmt.Errorf("calc: %s: %w", pp.Dir, err)
			}
			sched.DoneWithAllVersions(rec.Name, e)
		}
	}

	for {
		name, extra, ok := sched.Get(ctx)
		if !ok {
			break
		}
		if opts.CachedOnly {
			if err := sched.ProcessCached(ctx, name, extra); err != nil {
				return fmt.Errorf("calc: %s: %w", name, err)
			}
			continue
		}
		sched.ProcessExtract(ctx, name, extra)
	}

	enc := pbo.NewEncoder(c, nil)
	opbText, err := enc.Encode(ctx, sched.AllDone(), seeds)
	if err != nil {
		return fmt.Errorf("calc: encoding: %w", err)
	}

	opbPath := opts.OutFile + ".opb"
	if err := os.WriteFile(opbPath, []byte(opbText), 0o644); err != nil {
		return fmt.Errorf("calc: writing %s: %w", opbPath, err)
	}
	dlog.Infof(ctx, "calc: wrote %s (%d variables)", opbPath, enc.Reg.Count())

	output, solveErr := solve.Run(ctx, opts.SolverCmd, opbPath)
	resultPath := opts.OutFile + ".result"
	if len(output) > 0 {
		if err := os.WriteFile(resultPath, output, 0o644); err != nil {
			return fmt.Errorf("calc: writing %s: %w", resultPath, err)
		}
	}
	if solveErr != nil {
		return fmt.Errorf("calc: %w", solveErr)
	}

	pinned, err := enc.Reg.Decode(strings.NewReader(string(output)))
	if err != nil {
		return fmt.Errorf("calc: cannot find a solution: %w", err)
	}
	if !opts.IncludeSeed {
		pinned = dropSeedLines(pinned, seeds)
	}

	if err := os.WriteFile(opts.OutFile, []byte(pinned), 0o644); err != nil {
		return fmt.Errorf("calc: writing %s: %w", opts.OutFile, err)
	}
	dlog.Infof(ctx, "calc: wrote %s", opts.OutFile)
	return nil
}

// dropSeedLines removes pinned-output lines for the root projects
// themselves, keyed by name only (a root project appears under exactly one
// version, so there's no ambiguity).
func dropSeedLines(pinned string, seeds []pbo.Seed) string {
	if len(seeds) == 0 {
		return pinned
	}
	drop := make(map[string]bool, len(seeds))
	for _, s := range seeds {
		drop[s.Name] = true
	}
	lines := strings.Split(pinned, "\n")
	out := lines[:0]
	for _, line := range lines {
		name, _, _ := strings.Cut(line, "==")
		name, _, _ = strings.Cut(name, "[")
		if line == "" || drop[name] {
			continue
		}
		out = append(out, line)
	}
	if len(out) == 0 {
		return ""
	}
	return strings.Join(out, "\n") + "\n"
}
