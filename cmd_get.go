// Copyright (C) 2020-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/datawire/pyresolve/pkg/cliutil"
	"github.com/datawire/pyresolve/pkg/resolve/cache"
	rname "github.com/datawire/pyresolve/pkg/resolve/name"
)

func init() {
	argparser.AddCommand(getCommand())
}

func getCommand() *cobra.Command {
	var cacheDir string

	cmd := &cobra.Command{
		Use:   "get NAME [VERSION]",
		Short: "Dump the cached Metadata Record(s) for a package",
		Args:  cliutil.WrapPositionalArgs(cobra.RangeArgs(1, 2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			var ver string
			if len(args) == 2 {
				ver = args[1]
			}
			return runGet(cmd.Context(), cacheDir, name, ver)
		},
	}
	cmd.Flags().StringVar(&cacheDir, "cache-dir", ".pyresolve-cache", "root directory of the on-disk metadata cache")
	return cmd
}

func runGet(ctx context.Context, cacheDir, name, ver string) error {
	c, err := cache.New(cacheDir)
	if err != nil {
		return err
	}
	name = rname.Normalize(name)

	versions := []string{ver}
	if ver == "" {
		versions, err = c.AllVersions(ctx, name)
		if err != nil {
			return err
		}
	}
	if len(versions) == 0 {
		return fmt.Errorf("get: no cached versions for %s", name)
	}

	for _, v := range versions {
		rec, ok, err := c.Get(ctx, name, v)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("get: no cached record for %s==%s", name, v)
		}
		bs, err := yaml.Marshal(rec)
		if err != nil {
			return err
		}
		fmt.Printf("---\n%s", bs)
	}
	return nil
}
