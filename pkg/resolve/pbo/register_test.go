// Copyright (C) 2020-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pbo_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/pyresolve/pkg/resolve/pbo"
	"github.com/datawire/pyresolve/pkg/resolve/version"
)

func TestRegisterSingleAssignsDistinctIDs(t *testing.T) {
	reg := pbo.NewRegister()
	ids := reg.RegisterSingle("foo", version.MustParse("1.0"), []string{"", "dev"})
	require.Len(t, ids, 2)
	assert.NotEqual(t, ids[""], ids["dev"])
}

func TestRegisterSinglePanicsOnDuplicate(t *testing.T) {
	reg := pbo.NewRegister()
	reg.RegisterSingle("foo", version.MustParse("1.0"), []string{""})
	assert.Panics(t, func() {
		reg.RegisterSingle("foo", version.MustParse("1.0"), []string{""})
	})
}

func TestSingleRevRoundTrips(t *testing.T) {
	reg := pbo.NewRegister()
	ids := reg.RegisterSingle("foo", version.MustParse("1.0"), []string{"dev"})
	id := ids["dev"]

	name, ver, extra, ok := reg.SingleRev(id)
	require.True(t, ok)
	assert.Equal(t, "foo", name)
	assert.Equal(t, "1.0", ver)
	assert.Equal(t, "dev", extra)
}

func TestSingleRevUnknownIDIsNotOK(t *testing.T) {
	reg := pbo.NewRegister()
	_, _, _, ok := reg.SingleRev(pbo.VarID(999))
	assert.False(t, ok)
}

func TestAllVarIDsArePairwiseDistinct(t *testing.T) {
	reg := pbo.NewRegister()
	seen := make(map[pbo.VarID]bool)
	for i, v := range []string{"1.0", "1.1", "2.0"} {
		ids := reg.RegisterSingle("foo", version.MustParse(v), []string{""})
		for _, id := range ids {
			assert.False(t, seen[id], "duplicate VarId at version %d", i)
			seen[id] = true
		}
	}
	id := reg.GetVirtualVariable()
	assert.False(t, seen[id])
	assert.Equal(t, len(seen)+1, reg.Count())
}

func TestKnownVersionsReflectsRegisterSingle(t *testing.T) {
	reg := pbo.NewRegister()
	reg.RegisterSingle("foo", version.MustParse("1.0"), []string{""})
	reg.RegisterSingle("foo", version.MustParse("2.0"), []string{""})
	assert.ElementsMatch(t, []string{"1.0", "2.0"}, reg.KnownVersions("foo"))
}

func TestRegisterSetIsDeterministicRegardlessOfInputOrder(t *testing.T) {
	reg1 := pbo.NewRegister()
	reg1.RegisterSet("foo", []version.Version{version.MustParse("2.0"), version.MustParse("1.0")}, []string{""})

	reg2 := pbo.NewRegister()
	reg2.RegisterSet("foo", []version.Version{version.MustParse("1.0"), version.MustParse("2.0")}, []string{""})

	assert.Equal(t, reg1.SetVars()[0].Versions, reg2.SetVars()[0].Versions)
}

func TestSetVarsSortedDeterministically(t *testing.T) {
	reg := pbo.NewRegister()
	reg.RegisterSet("foo", []version.Version{version.MustParse("1.0")}, []string{"dev"})
	reg.RegisterSet("bar", []version.Version{version.MustParse("1.0")}, []string{""})

	vars := reg.SetVars()
	require.Len(t, vars, 2)
	assert.Equal(t, "bar", vars[0].Name)
	assert.Equal(t, "foo", vars[1].Name)
}
