// Copyright (C) 2020-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pbo_test

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/pyresolve/pkg/resolve/pbo"
	"github.com/datawire/pyresolve/pkg/resolve/version"
)

func TestDecodeRendersPinnedLine(t *testing.T) {
	reg := pbo.NewRegister()
	ids := reg.RegisterSingle("foo", version.MustParse("1.0"), []string{""})

	output := "s OPTIMUM FOUND\nv x" + idStr(ids[""]) + "\n"
	pinned, err := reg.Decode(strings.NewReader(output))
	require.NoError(t, err)
	assert.Equal(t, "foo==1.0\n", pinned)
}

func TestDecodeOmitsVersionForVirtual(t *testing.T) {
	reg := pbo.NewRegister()
	ids := reg.RegisterSingle("foo", version.Virtual, []string{""})

	output := "s OPTIMUM FOUND\nv x" + idStr(ids[""]) + "\n"
	pinned, err := reg.Decode(strings.NewReader(output))
	require.NoError(t, err)
	assert.Equal(t, "foo\n", pinned)
}

func TestDecodeIncludesExtras(t *testing.T) {
	reg := pbo.NewRegister()
	ids := reg.RegisterSingle("foo", version.MustParse("1.0"), []string{"", "dev"})

	output := "s OPTIMUM FOUND\nv x" + idStr(ids[""]) + " x" + idStr(ids["dev"]) + "\n"
	pinned, err := reg.Decode(strings.NewReader(output))
	require.NoError(t, err)
	assert.Equal(t, "foo==1.0[dev]\n", pinned)
}

func TestDecodeIgnoresNegativeAssignments(t *testing.T) {
	reg := pbo.NewRegister()
	ids := reg.RegisterSingle("foo", version.MustParse("1.0"), []string{""})
	other := reg.RegisterSingle("foo", version.MustParse("2.0"), []string{""})

	output := "s OPTIMUM FOUND\nv x" + idStr(ids[""]) + " -x" + idStr(other[""]) + "\n"
	pinned, err := reg.Decode(strings.NewReader(output))
	require.NoError(t, err)
	assert.Equal(t, "foo==1.0\n", pinned)
}

func TestDecodeRejectsNonOptimum(t *testing.T) {
	reg := pbo.NewRegister()
	output := "s UNSATISFIABLE\n"
	_, err := reg.Decode(strings.NewReader(output))
	require.Error(t, err)
	var notOptimum pbo.ErrNotOptimum
	assert.ErrorAs(t, err, &notOptimum)
}

func idStr(id pbo.VarID) string {
	return strconv.Itoa(int(id))
}
