// Copyright (C) 2020-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package schedule implements component H, the Discovery Scheduler: a
// work-list engine that walks the dependency graph, taking pending items in
// arbitrary order, deduplicating by (name, extra), tolerating per-package failures via
// blacklisting, and persisting extracted metadata into the cache.
package schedule

import (
	"context"

	"github.com/datawire/dlib/dlog"

	"github.com/datawire/pyresolve/pkg/resolve/cache"
	"github.com/datawire/pyresolve/pkg/resolve/extract"
	rname "github.com/datawire/pyresolve/pkg/resolve/name"
	"github.com/datawire/pyresolve/pkg/resolve/requirement"
)

// item is a (Name, Extra) work unit, already normalized.
type item struct {
	Name  string
	Extra string
}

// blacklistKey is a (Name, Version) pair, already normalized.
type blacklistKey struct {
	Name    string
	Version string
}

// Scheduler is component H's state: todo/done/blacklist, plus the
// collaborators (cache, index, extractor) process_cached/process_extract
// need to do their work.
type Scheduler struct {
	Cache     cache.Cache
	Index     index
	Extractor extract.Extractor

	// LogEvery controls how often get() emits a progress log: every
	// LogEvery pops. Zero disables progress logging.
	LogEvery int

	todo      map[item]bool
	done      map[item]bool
	blacklist map[blacklistKey]bool
	getCount  int
}

// index is the subset of index.Index the scheduler needs; declared locally
// so this package doesn't have to import the index package just to name
// its interface, mirroring how ocibuild's internal packages keep their
// collaborator interfaces narrow and local.
type index interface {
	RealName(ctx context.Context, name string) (string, error)
	PackageReleases(ctx context.Context, name string) ([]string, error)
}

// New constructs an empty Scheduler.
func New(c cache.Cache, idx index, ex extract.Extractor) *Scheduler {
	return &Scheduler{
		Cache:     c,
		Index:     idx,
		Extractor: ex,
		LogEvery:  50,
		todo:      make(map[item]bool),
		done:      make(map[item]bool),
		blacklist: make(map[blacklistKey]bool),
	}
}

// Seed adds (name, extra) to todo unless it is already done. Used by the
// driver to seed the scheduler from root source trees before the main loop
// begins.
func (s *Scheduler) Seed(name, extra string) {
	name, extra = rname.Normalize(name), rname.Normalize(extra)
	it := item{name, extra}
	if s.done[it] {
		return
	}
	s.todo[it] = true
}

// Done reports whether todo is empty. An item that ProcessExtract dropped
// is neither pending nor done, so Done can be true while some seeded pairs
// never reached DONE.
func (s *Scheduler) Done() bool {
	return len(s.todo) == 0
}

// AllDone returns the full set of (name, extra) pairs that reached DONE, in
// no particular order — what the PBO encoder reads back.
func (s *Scheduler) AllDone() []struct{ Name, Extra string } {
	out := make([]struct{ Name, Extra string }, 0, len(s.done))
	for it := range s.done {
		out = append(out, struct{ Name, Extra string }{it.Name, it.Extra})
	}
	return out
}

// IsVersionBlacklisted is a membership test against blacklist.
func (s *Scheduler) IsVersionBlacklisted(name, ver string) bool {
	return s.blacklist[blacklistKey{rname.Normalize(name), ver}]
}

func (s *Scheduler) blacklistVersion(name, ver string) {
	s.blacklist[blacklistKey{rname.Normalize(name), ver}] = true
}

func (s *Scheduler) doneWithAllVersions(name, extra string) {
	s.done[item{rname.Normalize(name), rname.Normalize(extra)}] = true
}

// DoneWithAllVersions marks (name, extra) done without running any
// harvesting pipeline. The driver calls this right after seeding a root
// source tree: a local project isn't on the index, so ProcessExtract's
// index lookup would only drop it, and it would never be registered by
// the encoder nor satisfy its own must-satisfy seed clause.
func (s *Scheduler) DoneWithAllVersions(name, extra string) {
	s.doneWithAllVersions(name, extra)
}

// Get pops an arbitrary element of todo, discarding (without further
// action) any entry that has since become done, and returns the first
// eligible item. The boolean result is false once todo is exhausted.
func (s *Scheduler) Get(ctx context.Context) (name, extra string, ok bool) {
	for it := range s.todo {
		delete(s.todo, it)
		if s.done[it] {
			continue
		}
		s.getCount++
		if s.LogEvery > 0 && s.getCount%s.LogEvery == 0 {
			dlog.Infof(ctx, "schedule: processed %d items, %d still pending", s.getCount, len(s.todo))
		}
		return it.Name, it.Extra, true
	}
	return "", "", false
}

// AddTodosFromDB reads the cached Metadata Record for (name, version) and
// enqueues every requirement it names, per spec §4.H. It fails if the
// record is absent — callers are expected to have just written it, or to
// already know it exists from a prior AllVersions/Get call.
func (s *Scheduler) AddTodosFromDB(ctx context.Context, name, ver, extra string) error {
	name = rname.Normalize(name)
	rec, ok, err := s.Cache.Get(ctx, name, ver)
	if err != nil {
		return err
	}
	if !ok {
		return errRecordNotCached{name, ver}
	}

	s.enqueueRequirements(rec.AllRequires())
	extra = rname.Normalize(extra)
	if extra != rname.Base {
		s.enqueueRequirements(rec.RequiresFor(extra))
	}
	return nil
}

func (s *Scheduler) enqueueRequirements(reqs []requirement.Requirement) {
	for _, req := range reqs {
		s.Seed(req.Name, rname.Base)
		for _, e := range req.Extras {
			s.Seed(req.Name, e)
		}
	}
}

type errRecordNotCached struct{ Name, Version string }

func (e errRecordNotCached) Error() string {
	return "schedule: no cached record for " + e.Name + "==" + e.Version
}

// ProcessCached iterates every cached version of name, enqueuing its
// requirements, then marks (name, extra) done.
func (s *Scheduler) ProcessCached(ctx context.Context, name, extra string) error {
	name = rname.Normalize(name)
	versions, err := s.Cache.AllVersions(ctx, name)
	if err != nil {
		return err
	}
	for _, v := range versions {
		if err := s.AddTodosFromDB(ctx, name, v, extra); err != nil {
			dlog.Warnf(ctx, "schedule: %s==%s: %v", name, v, err)
		}
	}
	s.doneWithAllVersions(name, extra)
	return nil
}

// ProcessExtract runs the full harvesting pipeline for (name, extra), per
// spec §4.H's six-step description, including its asymmetric failure
// handling: an index lookup failure drops the item silently (it is never
// marked done), while a per-version extraction failure only blacklists
// that one version and continues.
func (s *Scheduler) ProcessExtract(ctx context.Context, name, extra string) {
	name = rname.Normalize(name)

	nativeFound := false
	if rec, err := s.Extractor.FromNative(ctx, name); err != nil {
		dlog.Warnf(ctx, "schedule: from_native(%s): %v", name, err)
	} else if rec != nil {
		nativeFound = true
		if err := s.Cache.Set(ctx, name, rec.Version, *rec); err != nil {
			dlog.Warnf(ctx, "schedule: caching native %s==%s: %v", name, rec.Version, err)
		} else if err := s.AddTodosFromDB(ctx, name, rec.Version, extra); err != nil {
			dlog.Warnf(ctx, "schedule: %s==%s: %v", name, rec.Version, err)
		}
	}

	realName, err := s.Index.RealName(ctx, name)
	if err != nil {
		dlog.Infof(ctx, "schedule: %s: index lookup failed, dropping: %v", name, err)
		return
	}

	versions, err := s.Index.PackageReleases(ctx, realName)
	if err != nil {
		dlog.Infof(ctx, "schedule: %s: index lookup failed, dropping: %v", name, err)
		return
	}
	if len(versions) == 0 && !nativeFound {
		dlog.Infof(ctx, "schedule: %s: no releases found", name)
		return
	}

	for _, ver := range versions {
		func() {
			defer func() {
				if r := recover(); r != nil {
					dlog.Warnf(ctx, "schedule: %s==%s: panic during extraction, blacklisting: %v", name, ver, r)
					s.blacklistVersion(name, ver)
				}
			}()

			if _, ok, err := s.Cache.Get(ctx, name, ver); err == nil && ok {
				dlog.Debugf(ctx, "schedule: %s==%s already cached", name, ver)
			} else if s.IsVersionBlacklisted(name, ver) {
				dlog.Debugf(ctx, "schedule: %s==%s is blacklisted", name, ver)
			} else {
				rec, err := s.Extractor.FromPyPI(ctx, realName, ver)
				if err != nil {
					dlog.Warnf(ctx, "schedule: extracting %s==%s: %v", name, ver, err)
					s.blacklistVersion(name, ver)
				} else if rec == nil {
					s.blacklistVersion(name, ver)
				} else if err := s.Cache.Set(ctx, name, ver, *rec); err != nil {
					dlog.Warnf(ctx, "schedule: caching %s==%s: %v", name, ver, err)
					s.blacklistVersion(name, ver)
				}
			}

			if _, ok, err := s.Cache.Get(ctx, name, ver); err == nil && ok {
				if err := s.AddTodosFromDB(ctx, name, ver, extra); err != nil {
					dlog.Warnf(ctx, "schedule: %s==%s: %v", name, ver, err)
				}
			}
		}()
	}

	s.doneWithAllVersions(name, extra)
}
