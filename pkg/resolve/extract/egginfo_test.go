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

	"github.com/datawire/pyresolve/pkg/resolve/metadata"
	"github.com/datawire/pyresolve/pkg/resolve/requirement"
)

const sampleRequiresTxt = `bar>=1.0
baz>=2.0

[dev]
pytest>=6.0

[win32:sys_platform=='win32']
pywin32>=300
`

func TestParseRequiresTxt(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "requires.txt")
	require.NoError(t, os.WriteFile(p, []byte(sampleRequiresTxt), 0o644))

	fp, err := os.Open(p)
	require.NoError(t, err)
	defer fp.Close()

	rec := &metadata.Record{ExtrasRequire: make(map[string][]requirement.Requirement)}
	require.NoError(t, parseRequiresTxt(fp, rec))

	require.Len(t, rec.InstallRequires, 2)
	assert.Equal(t, "bar", rec.InstallRequires[0].Name)
	assert.Equal(t, "baz", rec.InstallRequires[1].Name)

	require.Contains(t, rec.ExtrasRequire, "dev")
	assert.Equal(t, "pytest", rec.ExtrasRequire["dev"][0].Name)

	require.Contains(t, rec.ExtrasRequire, "win32")
	assert.Equal(t, "pywin32", rec.ExtrasRequire["win32"][0].Name)
}

func TestDynamicEggInfoNoSetupPyIsNotAnError(t *testing.T) {
	rec, err := dynamicEggInfo(nil, []string{"python3"}, t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, rec)
}
