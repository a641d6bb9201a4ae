// Copyright (C) 2020-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package requirement_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/pyresolve/pkg/resolve/requirement"
	"github.com/datawire/pyresolve/pkg/resolve/version"
)

func TestParseNameAndExtras(t *testing.T) {
	r, err := requirement.Parse("Requests[security,socks]>=2.0,<3.0")
	require.NoError(t, err)
	assert.Equal(t, "requests", r.Name)
	assert.Equal(t, []string{"security", "socks"}, r.Extras)
	require.Len(t, r.Specs, 2)
}

func TestSatisfiesExact(t *testing.T) {
	r, err := requirement.Parse("foo==1.0")
	require.NoError(t, err)
	assert.True(t, r.Satisfies(version.MustParse("1.0")))
	assert.False(t, r.Satisfies(version.MustParse("1.1")))
}

func TestSatisfiesPrefix(t *testing.T) {
	r, err := requirement.Parse("foo==1.0.*")
	require.NoError(t, err)
	assert.True(t, r.Satisfies(version.MustParse("1.0.5")))
	assert.False(t, r.Satisfies(version.MustParse("1.1")))
}

func TestSatisfiesRange(t *testing.T) {
	r, err := requirement.Parse("foo>=1.0,<2.0")
	require.NoError(t, err)
	assert.True(t, r.Satisfies(version.MustParse("1.5")))
	assert.False(t, r.Satisfies(version.MustParse("2.0")))
	assert.False(t, r.Satisfies(version.MustParse("0.9")))
}

func TestSatisfiesCompatible(t *testing.T) {
	r, err := requirement.Parse("foo~=1.4.2")
	require.NoError(t, err)
	assert.True(t, r.Satisfies(version.MustParse("1.4.5")))
	assert.False(t, r.Satisfies(version.MustParse("1.5.0")))
	assert.False(t, r.Satisfies(version.MustParse("1.4.1")))
}

func TestVirtualAlwaysSatisfies(t *testing.T) {
	r, err := requirement.Parse("foo>=99.0")
	require.NoError(t, err)
	assert.True(t, r.Satisfies(version.Virtual))
}

func TestNoConstraintsAlwaysSatisfies(t *testing.T) {
	r, err := requirement.Parse("bar")
	require.NoError(t, err)
	assert.Empty(t, r.Specs)
	assert.True(t, r.Satisfies(version.MustParse("0.0.1")))
}

func TestStringRoundTrip(t *testing.T) {
	r, err := requirement.Parse("foo[extra1]>=1.0,<2.0")
	require.NoError(t, err)
	r2, err := requirement.Parse(r.String())
	require.NoError(t, err)
	assert.Equal(t, r.Name, r2.Name)
	assert.Equal(t, r.Extras, r2.Extras)
	assert.Equal(t, len(r.Specs), len(r2.Specs))
}
