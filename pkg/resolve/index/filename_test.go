// Copyright (C) 2020-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package index

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWheelFilename(t *testing.T) {
	d, err := parseFilename("foo_bar-1.2.3-py3-none-any.whl")
	require.NoError(t, err)
	assert.Equal(t, "foo_bar", d.Distribution)
	assert.Equal(t, "1.2.3", d.Version.String())
	assert.True(t, d.isWheel())
	assert.Equal(t, "bdist_wheel", d.packageType())
	assert.Equal(t, Tag{"py3", "none", "any"}, d.CompatibilityTag)
}

func TestParseSdistFilename(t *testing.T) {
	d, err := parseFilename("foo-bar-1.2.3.tar.gz")
	require.NoError(t, err)
	assert.Equal(t, "foo-bar", d.Distribution)
	assert.Equal(t, "1.2.3", d.Version.String())
	assert.False(t, d.isWheel())
	assert.Equal(t, "sdist", d.packageType())
}

func TestParseFilenameRejectsGarbage(t *testing.T) {
	_, err := parseFilename("not-a-valid-distribution-file.txt")
	assert.Error(t, err)
}

func TestInstallerTagsSupports(t *testing.T) {
	insts := InstallerTags{{Python: "cp39", ABI: "cp39", Platform: "manylinux_2_17_x86_64"}}
	assert.True(t, insts.Supports(Tag{Python: "cp39", ABI: "cp39", Platform: "manylinux_2_17_x86_64"}))
	assert.False(t, insts.Supports(Tag{Python: "cp38", ABI: "cp38", Platform: "manylinux_2_17_x86_64"}))
}

func TestTagDecompressExpandsCompressedComponents(t *testing.T) {
	tag := Tag{Python: "py2.py3", ABI: "none", Platform: "any"}
	decompressed := tag.decompress()
	assert.Len(t, decompressed, 2)
}

func TestVerifyFragmentChecksum(t *testing.T) {
	content := []byte("hello world")
	assert.NoError(t, verifyFragmentChecksum("", content))
	assert.Error(t, verifyFragmentChecksum("sha256=deadbeef", content))
}

func TestVerifyFragmentChecksumAccepts(t *testing.T) {
	content := []byte("hello world")
	h := sha256.Sum256(content)
	good := hex.EncodeToString(h[:])
	assert.NoError(t, verifyFragmentChecksum("sha256="+good, content))
}
