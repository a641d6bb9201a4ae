// Copyright (C) 2020-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pbo

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/datawire/pyresolve/pkg/resolve/version"
)

// ErrNotOptimum is returned by Decode when the solver's status line isn't
// exactly "OPTIMUM FOUND".
type ErrNotOptimum struct{ Status string }

func (e ErrNotOptimum) Error() string {
	return fmt.Sprintf("solver did not report OPTIMUM FOUND (got %q)", e.Status)
}

// Decode is component K: read a solver's captured output, verify its
// status, and render the pinned requirements list.
func (r *Register) Decode(output io.Reader) (string, error) {
	status, assigned, err := parseSolverOutput(output)
	if err != nil {
		return "", err
	}
	if status != "OPTIMUM FOUND" {
		return "", ErrNotOptimum{Status: status}
	}

	type key struct{ Name, Version string }
	groups := make(map[key]map[string]bool)
	var order []key

	for _, id := range assigned {
		name, ver, extra, ok := r.SingleRev(id)
		if !ok {
			continue
		}
		k := key{name, ver}
		if groups[k] == nil {
			groups[k] = make(map[string]bool)
			order = append(order, k)
		}
		groups[k][extra] = true
	}

	sort.Slice(order, func(i, j int) bool {
		if order[i].Name != order[j].Name {
			return order[i].Name < order[j].Name
		}
		return order[i].Version < order[j].Version
	})

	var b strings.Builder
	for _, k := range order {
		b.WriteString(k.Name)
		if k.Version != version.Virtual.String() {
			b.WriteString("==")
			b.WriteString(k.Version)
		}
		extras := groups[k]
		delete(extras, "")
		if len(extras) > 0 {
			names := make([]string, 0, len(extras))
			for e := range extras {
				names = append(names, e)
			}
			sort.Strings(names)
			b.WriteByte('[')
			b.WriteString(strings.Join(names, ","))
			b.WriteByte(']')
		}
		b.WriteByte('\n')
	}
	return b.String(), nil
}

// parseSolverOutput reads the status line (starting "s ") and assignment
// line (starting "v "), returning the status text and the positively
// assigned variable ids (tokens of the form "x<id>"; "-x<id>" tokens are
// negative assignments and ignored).
func parseSolverOutput(output io.Reader) (status string, assigned []VarID, err error) {
	scanner := bufio.NewScanner(output)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "s "):
			status = strings.TrimSpace(strings.TrimPrefix(line, "s "))
		case strings.HasPrefix(line, "v "):
			for _, tok := range strings.Fields(strings.TrimPrefix(line, "v ")) {
				if strings.HasPrefix(tok, "-") {
					continue
				}
				tok = strings.TrimPrefix(tok, "x")
				id, convErr := strconv.Atoi(tok)
				if convErr != nil {
					continue
				}
				assigned = append(assigned, VarID(id))
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return "", nil, err
	}
	return status, assigned, nil
}
