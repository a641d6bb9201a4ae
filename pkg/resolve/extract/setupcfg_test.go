// Copyright (C) 2020-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package extract

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSetupCfg = `[metadata]
name = foo
version = 1.2.3

[options]
install_requires =
    bar>=1.0
    baz>=2.0

[options.extras_require]
dev =
    pytest>=6.0

[options.extras_require.docs]
docs = sphinx>=3.0
`

func TestReadSetupCfg(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "setup.cfg"), []byte(sampleSetupCfg), 0o644))

	rec, err := readSetupCfg(dir)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "foo", rec.Name)
	assert.Equal(t, "1.2.3", rec.Version)
	require.Len(t, rec.InstallRequires, 2)
	assert.Equal(t, "bar", rec.InstallRequires[0].Name)
	assert.Equal(t, "baz", rec.InstallRequires[1].Name)

	require.Contains(t, rec.ExtrasRequire, "dev")
	assert.Equal(t, "pytest", rec.ExtrasRequire["dev"][0].Name)

	require.Contains(t, rec.ExtrasRequire, "docs")
	assert.Equal(t, "sphinx", rec.ExtrasRequire["docs"][0].Name)
}

func TestReadSetupCfgMissingIsNotAnError(t *testing.T) {
	rec, err := readSetupCfg(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestParseCfgRequirementListSkipsCommentsAndBlankLines(t *testing.T) {
	reqs := parseCfgRequirementList("bar>=1.0\n# a comment\n\nbaz>=2.0")
	require.Len(t, reqs, 2)
	assert.Equal(t, "bar", reqs[0].Name)
	assert.Equal(t, "baz", reqs[1].Name)
}

func TestParseCfgRequirementListSkipsUnparseable(t *testing.T) {
	reqs := parseCfgRequirementList("bar>=1.0, baz[unterminated")
	require.Len(t, reqs, 1)
	assert.Equal(t, "bar", reqs[0].Name)
}
