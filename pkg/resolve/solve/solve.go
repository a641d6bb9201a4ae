// Copyright (C) 2020-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package solve invokes the external PBO solver: a separate process that
// accepts a .opb file path and writes its report to stdout.
package solve

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/datawire/dlib/dexec"
)

// Run invokes solverCmd (a shell command string, split on whitespace) with
// opbPath appended as its sole positional argument, the same
// dexec.CommandContext pattern gobuild.LayerFromGo uses to shell out to
// `go build`, and returns the captured stdout verbatim.
func Run(ctx context.Context, solverCmd string, opbPath string) ([]byte, error) {
	fields := strings.Fields(solverCmd)
	if len(fields) == 0 {
		return nil, errors.New("solve: empty solver command")
	}
	args := append(append([]string{}, fields[1:]...), opbPath)

	cmd := dexec.CommandContext(ctx, fields[0], args...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		var exitErr *dexec.ExitError
		if errors.As(err, &exitErr) {
			return stdout.Bytes(), fmt.Errorf("solve: solver exited with %v", exitErr)
		}
		return nil, fmt.Errorf("solve: running solver: %w", err)
	}
	return stdout.Bytes(), nil
}
