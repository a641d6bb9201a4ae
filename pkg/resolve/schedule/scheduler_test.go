// Copyright (C) 2020-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package schedule_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/pyresolve/pkg/resolve/cache"
	"github.com/datawire/pyresolve/pkg/resolve/metadata"
	"github.com/datawire/pyresolve/pkg/resolve/requirement"
	"github.com/datawire/pyresolve/pkg/resolve/schedule"
)

type fakeIndex struct {
	releases map[string][]string
}

func (f *fakeIndex) RealName(_ context.Context, name string) (string, error) { return name, nil }
func (f *fakeIndex) PackageReleases(_ context.Context, name string) ([]string, error) {
	return f.releases[name], nil
}

type nilExtractor struct{}

func (nilExtractor) FromPath(context.Context, string) (*metadata.Record, error) { return nil, nil }
func (nilExtractor) FromPyPI(context.Context, string, string) (*metadata.Record, error) {
	return nil, nil
}
func (nilExtractor) FromNative(context.Context, string) (*metadata.Record, error) { return nil, nil }

func TestSeedDedupsAgainstDone(t *testing.T) {
	ctx := context.Background()
	c, err := cache.New(t.TempDir())
	require.NoError(t, err)
	sched := schedule.New(c, &fakeIndex{releases: map[string][]string{"foo": {"1.0"}}}, nilExtractor{})

	sched.Seed("foo", "")
	_, _, ok := sched.Get(ctx)
	require.True(t, ok)
	sched.ProcessExtract(ctx, "foo", "")
	assert.True(t, sched.Done())
	require.Len(t, sched.AllDone(), 1)

	sched.Seed("foo", "")
	assert.True(t, sched.Done(), "a done item must not be re-enqueued")
}

// A root source tree is never published on the index, so the driver seeds
// it and marks it done directly rather than routing it through
// ProcessExtract, whose RealName lookup would just drop it.
func TestDoneWithAllVersionsMarksRootDoneWithoutExtraction(t *testing.T) {
	ctx := context.Background()
	c, err := cache.New(t.TempDir())
	require.NoError(t, err)
	sched := schedule.New(c, &fakeIndex{}, nilExtractor{})

	require.NoError(t, c.Set(ctx, "myproject", "1.0", metadata.Record{Name: "myproject", Version: "1.0"}))

	sched.Seed("myproject", "")
	require.NoError(t, sched.AddTodosFromDB(ctx, "myproject", "1.0", ""))
	sched.DoneWithAllVersions("myproject", "")

	require.Len(t, sched.AllDone(), 1)
	assert.Equal(t, "myproject", sched.AllDone()[0].Name)

	_, _, ok := sched.Get(ctx)
	assert.False(t, ok, "a directly-done root must not also be popped off todo")
}

func TestAddTodosFromDBEnqueuesRequirements(t *testing.T) {
	ctx := context.Background()
	c, err := cache.New(t.TempDir())
	require.NoError(t, err)
	sched := schedule.New(c, &fakeIndex{}, nilExtractor{})

	req, err := requirement.Parse("bar[dev]")
	require.NoError(t, err)
	require.NoError(t, c.Set(ctx, "foo", "1.0", metadata.Record{
		Name:            "foo",
		Version:         "1.0",
		InstallRequires: []requirement.Requirement{req},
	}))

	require.NoError(t, sched.AddTodosFromDB(ctx, "foo", "1.0", ""))

	seen := map[string]bool{}
	for {
		name, extra, ok := sched.Get(ctx)
		if !ok {
			break
		}
		seen[name+"|"+extra] = true
	}
	assert.True(t, seen["bar|"])
	assert.True(t, seen["bar|dev"])
}

// A name with no releases and no importable native module is dropped, per
// the index-error category in spec §7: logged and skipped, never marked
// done, so a later re-seed can still retry it.
func TestProcessExtractDropsRatherThanMarksDoneWhenNothingFound(t *testing.T) {
	ctx := context.Background()
	c, err := cache.New(t.TempDir())
	require.NoError(t, err)
	sched := schedule.New(c, &fakeIndex{releases: map[string][]string{}}, nilExtractor{})

	sched.Seed("foo", "")
	name, extra, ok := sched.Get(ctx)
	require.True(t, ok)
	sched.ProcessExtract(ctx, name, extra)

	assert.Empty(t, sched.AllDone())

	sched.Seed("foo", "")
	_, _, ok = sched.Get(ctx)
	assert.True(t, ok, "a dropped item can still be re-seeded and retried")
}

func TestSelfLoopDoesNotHang(t *testing.T) {
	ctx := context.Background()
	c, err := cache.New(t.TempDir())
	require.NoError(t, err)
	sched := schedule.New(c, &fakeIndex{}, nilExtractor{})

	req, err := requirement.Parse("foo")
	require.NoError(t, err)
	require.NoError(t, c.Set(ctx, "foo", "1.0", metadata.Record{
		Name:            "foo",
		Version:         "1.0",
		InstallRequires: []requirement.Requirement{req},
	}))

	sched.Seed("foo", "")
	processed := 0
	for {
		name, extra, ok := sched.Get(ctx)
		if !ok {
			break
		}
		processed++
		require.NoError(t, sched.ProcessCached(ctx, name, extra))
		if processed > 10 {
			t.Fatal("self-loop caused unbounded scheduling")
		}
	}
	assert.Equal(t, 1, processed)
}
