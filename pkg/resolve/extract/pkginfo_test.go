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

const samplePKGInfo = `Metadata-Version: 2.1
Name: foo
Version: 1.2.3
Requires-Dist: bar (>=1.0)
Requires-Dist: baz (>=2.0) ; extra == 'dev'
Requires-Dist: quux

This is the long description.
`

func TestParsePKGInfo(t *testing.T) {
	rec, err := parsePKGInfo([]byte(samplePKGInfo))
	require.NoError(t, err)
	assert.Equal(t, "foo", rec.Name)
	assert.Equal(t, "1.2.3", rec.Version)
	require.Len(t, rec.InstallRequires, 2)
	assert.Equal(t, "bar", rec.InstallRequires[0].Name)
	assert.Equal(t, "quux", rec.InstallRequires[1].Name)
	require.Contains(t, rec.ExtrasRequire, "dev")
	require.Len(t, rec.ExtrasRequire["dev"], 1)
	assert.Equal(t, "baz", rec.ExtrasRequire["dev"][0].Name)
}

func TestParsePKGInfoTreatsUnknownAsEmpty(t *testing.T) {
	rec, err := parsePKGInfo([]byte("Name: foo\nVersion: UNKNOWN\n\n"))
	require.NoError(t, err)
	assert.Equal(t, "foo", rec.Name)
	assert.Equal(t, "", rec.Version)
}

func TestParsePEP508ExtractsExtraMarker(t *testing.T) {
	req, extra, err := parsePEP508("bar (>=1.0) ; extra == 'dev'")
	require.NoError(t, err)
	assert.Equal(t, "bar", req.Name)
	assert.Equal(t, "dev", extra)
}

func TestParsePEP508NoMarkerHasNoExtra(t *testing.T) {
	req, extra, err := parsePEP508("bar>=1.0")
	require.NoError(t, err)
	assert.Equal(t, "bar", req.Name)
	assert.Equal(t, "", extra)
}

func TestParsePEP508IgnoresNonExtraMarkers(t *testing.T) {
	_, extra, err := parsePEP508("bar ; sys_platform == 'win32'")
	require.NoError(t, err)
	assert.Equal(t, "", extra)
}

func TestReadPKGInfoMissingIsNotAnError(t *testing.T) {
	rec, err := readPKGInfo(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestReadPKGInfoFindsPlainFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "PKG-INFO"), []byte(samplePKGInfo), 0o644))

	rec, err := readPKGInfo(dir)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "foo", rec.Name)
}

func TestReadPKGInfoFindsEggInfoDir(t *testing.T) {
	dir := t.TempDir()
	eggDir := filepath.Join(dir, "foo.egg-info")
	require.NoError(t, os.Mkdir(eggDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(eggDir, "PKG-INFO"), []byte(samplePKGInfo), 0o644))

	rec, err := readPKGInfo(dir)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "foo", rec.Name)
}
