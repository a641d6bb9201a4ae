// Copyright (C) 2020-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package version_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/pyresolve/pkg/resolve/version"
)

func TestParseAndString(t *testing.T) {
	testcases := []string{
		"1.0",
		"1.0.1",
		"2!1.0",
		"1.0a1",
		"1.0b2",
		"1.0rc1",
		"1.0.post1",
		"1.0.dev1",
		"1.0+ubuntu1",
		"1.0+ubuntu.1",
	}
	for _, s := range testcases {
		v, err := version.Parse(s)
		require.NoError(t, err, "parsing %q", s)
		assert.False(t, v.IsVirtual())
	}
}

func TestVirtualNeverParses(t *testing.T) {
	_, err := version.Parse(version.Virtual.String())
	assert.Error(t, err)
}

func TestVirtualSortsAfterEverything(t *testing.T) {
	v1 := version.MustParse("9999.0")
	assert.Equal(t, 1, version.Virtual.Cmp(v1))
	assert.Equal(t, -1, v1.Cmp(version.Virtual))
	assert.Equal(t, 0, version.Virtual.Cmp(version.Virtual))
}

func TestOrdering(t *testing.T) {
	ordered := []string{
		"1.0a1",
		"1.0b1",
		"1.0rc1",
		"1.0",
		"1.0.post1",
		"1.1",
		"2!1.0",
	}
	for i := 1; i < len(ordered); i++ {
		a := version.MustParse(ordered[i-1])
		b := version.MustParse(ordered[i])
		assert.True(t, a.Cmp(b) < 0, "%s should sort before %s", ordered[i-1], ordered[i])
		assert.True(t, b.Cmp(a) > 0, "%s should sort after %s", ordered[i], ordered[i-1])
	}
}

func TestDevSortsBeforeFinalRelease(t *testing.T) {
	dev := version.MustParse("1.0.dev1")
	final := version.MustParse("1.0")
	assert.True(t, dev.Cmp(final) < 0)
	assert.True(t, final.Cmp(dev) > 0)
}

func TestNormalizeStripsTrailingZeros(t *testing.T) {
	v := version.MustParse("1.0.0").Normalize()
	assert.Equal(t, "1", v.String())
}

func TestMajorMinorMicro(t *testing.T) {
	v := version.MustParse("3.11.2")
	assert.Equal(t, 3, v.Major())
	assert.Equal(t, 11, v.Minor())
	assert.Equal(t, 2, v.Micro())
	assert.Equal(t, 0, version.Virtual.Major())
}
