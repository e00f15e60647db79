// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pkg_resources

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/datawire/pydist/pkg/python/pep508"
	"github.com/datawire/pydist/pkg/python/pypa/entry_points"
)

// A WorkingSet is the collection of distributions that are "active": one distribution per
// project key, discovered from an ordered list of search-path entries.  It answers "what do
// I have" (Find), "what would I need" (Resolve), and "what plugins could I load"
// (FindPlugins).
type WorkingSet struct {
	cache *PathCache

	// MarkerEnv is the PEP 508 environment that requirement markers evaluate against
	// during resolution.  With a nil or partial environment, markers that cannot be
	// decided are treated as passing.
	MarkerEnv map[string]string

	entries   []string
	entryKeys map[string][]string
	byKey     map[string]*Distribution
	callbacks []func(*Distribution)
}

// NewWorkingSet builds a WorkingSet over the given search-path entries, discovering the
// distributions on each.  A nil cache gets a fresh private one.
func NewWorkingSet(ctx context.Context, cache *PathCache, entries []string) *WorkingSet {
	if cache == nil {
		cache = NewPathCache()
	}
	ws := &WorkingSet{
		cache:     cache,
		entryKeys: make(map[string][]string),
		byKey:     make(map[string]*Distribution),
	}
	for _, entry := range entries {
		ws.AddEntry(ctx, entry)
	}
	return ws
}

// Entries returns the search-path entries, in order.
func (ws *WorkingSet) Entries() []string {
	return append([]string(nil), ws.entries...)
}

// AddEntry appends a search-path entry and activates the distributions found there.  Keys
// already active keep their earlier distribution; the entry still records the shadowed keys.
func (ws *WorkingSet) AddEntry(ctx context.Context, entry string) {
	if _, ok := ws.entryKeys[entry]; !ok {
		ws.entryKeys[entry] = nil
	}
	ws.entries = append(ws.entries, entry)
	for _, dist := range FindDistributions(ctx, ws.cache, entry) {
		ws.Add(dist, entry, false, false)
	}
}

// Add activates a distribution under the given entry ("" means its own location).  With
// insert, the distribution's location is spliced in to the entry list first.  Unless replace
// is set, a key that is already active keeps the distribution it has.
func (ws *WorkingSet) Add(dist *Distribution, entry string, insert, replace bool) {
	if insert {
		ws.entries = dist.InsertOn(ws.entries, entry, replace)
	}
	if entry == "" {
		entry = dist.Location()
	}
	if _, ok := ws.entryKeys[entry]; !ok {
		ws.entryKeys[entry] = nil
	}
	key := dist.Key()
	if _, active := ws.byKey[key]; active && !replace {
		// ignore hidden distributions
		return
	}
	ws.byKey[key] = dist
	for _, ent := range []string{entry, dist.Location()} {
		if !containsStr(ws.entryKeys[ent], key) {
			ws.entryKeys[ent] = append(ws.entryKeys[ent], key)
		}
	}
	for _, cb := range ws.callbacks {
		cb(dist)
	}
}

func containsStr(haystack []string, needle string) bool {
	for _, straw := range haystack {
		if straw == needle {
			return true
		}
	}
	return false
}

// Contains reports whether dist itself (not merely some distribution with the same key) is
// active in the working set.
func (ws *WorkingSet) Contains(dist *Distribution) bool {
	return ws.byKey[dist.Key()] == dist
}

// Find returns the active distribution for the requirement's key, or nil if there is none.
// An active distribution with the wrong version is a VersionConflictError, which is a
// different answer than "not found".
func (ws *WorkingSet) Find(req pep508.Requirement) (*Distribution, error) {
	dist := ws.byKey[req.Key()]
	if dist != nil && !dist.Satisfies(req) {
		return nil, &VersionConflictError{Dist: dist, Req: req}
	}
	return dist, nil
}

// Distributions returns the active distributions, in search-path order.
func (ws *WorkingSet) Distributions() []*Distribution {
	seen := make(map[string]struct{})
	var ret []*Distribution
	for _, entry := range ws.entries {
		for _, key := range ws.entryKeys[entry] {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			if dist, ok := ws.byKey[key]; ok {
				ret = append(ret, dist)
			}
		}
	}
	return ret
}

// Subscribe registers a callback to be invoked for every distribution added from now on, and
// immediately for each one already active.
func (ws *WorkingSet) Subscribe(cb func(*Distribution)) {
	ws.callbacks = append(ws.callbacks, cb)
	for _, dist := range ws.Distributions() {
		cb(dist)
	}
}

// IterEntryPoints returns the entry points of the given group across all active
// distributions, in search-path order; name narrows it to entry points so named.
func (ws *WorkingSet) IterEntryPoints(group, name string) ([]entry_points.EntryPoint, error) {
	var ret []entry_points.EntryPoint
	for _, dist := range ws.Distributions() {
		eps, err := dist.EntryPointsGroup(group)
		if err != nil {
			return nil, err
		}
		for _, ep := range eps {
			if name == "" || ep.Name() == name {
				ret = append(ret, ep)
			}
		}
	}
	return ret, nil
}

// Resolve answers "what has to be activated to satisfy these requirements", breadth-first:
// each requirement is satisfied from the working set if possible, then from env (which
// defaults to scanning this working set's own entries), then from the installer hook; the
// chosen distribution's own dependencies join the queue.  The input list and each
// dependency list are enqueued back to front, so within a level, later-listed requirements
// are taken up first.  The first unsatisfiable requirement aborts with a
// DistributionNotFoundError or VersionConflictError.
//
// A requirement whose marker fails against every demanding extra (and against the passed-in
// extras) is skipped.  Requirements already processed are suppressed by their structural
// identity, which is what keeps dependency cycles from looping.
func (ws *WorkingSet) Resolve(ctx context.Context, reqs []pep508.Requirement, env *Environment, installer Installer, replaceConflicting bool, extras ...string) ([]*Distribution, error) {
	queue := make([]pep508.Requirement, len(reqs))
	for i, req := range reqs {
		queue[len(reqs)-1-i] = req
	}
	processed := make(map[string]bool)
	best := make(map[string]*Distribution)
	var toActivate []*Distribution
	reqExtras := make(map[string][]string)
	requiredBy := make(map[string][]string)

	for len(queue) > 0 {
		req := queue[0]
		queue = queue[1:]
		hk := req.HashKey()
		if processed[hk] {
			continue
		}
		if !ws.markersPass(req, reqExtras[hk], extras) {
			continue
		}
		dist, err := ws.resolveDist(ctx, req, best, replaceConflicting, env, installer, requiredBy, &toActivate)
		if err != nil {
			return nil, err
		}
		newReqs, err := dist.Requires(req.Extras...)
		if err != nil {
			return nil, err
		}
		for i := len(newReqs) - 1; i >= 0; i-- {
			queue = append(queue, newReqs[i])
		}
		for _, newReq := range newReqs {
			nhk := newReq.HashKey()
			if !containsStr(requiredBy[nhk], req.Name) {
				requiredBy[nhk] = append(requiredBy[nhk], req.Name)
			}
			reqExtras[nhk] = req.Extras
		}
		processed[hk] = true
	}
	return toActivate, nil
}

func (ws *WorkingSet) resolveDist(ctx context.Context, req pep508.Requirement, best map[string]*Distribution, replaceConflicting bool, env *Environment, installer Installer, requiredBy map[string][]string, toActivate *[]*Distribution) (*Distribution, error) {
	dist := best[req.Key()]
	if dist == nil {
		dist = ws.byKey[req.Key()]
		if dist == nil || (!dist.Satisfies(req) && replaceConflicting) {
			findWS := ws
			if env == nil {
				if dist == nil {
					env = ScanEnvironment(ctx, ws.cache, ws.entries, "", "")
				} else {
					// resolve the replacement in isolation, away from the
					// conflicting active distribution
					env = NewEnvironment("", "")
					findWS = NewWorkingSet(ctx, ws.cache, nil)
				}
			}
			found, err := env.BestMatch(ctx, req, findWS, installer, replaceConflicting)
			if err != nil {
				var conflict *VersionConflictError
				if errors.As(err, &conflict) {
					return nil, conflict.withContext(sortedCopy(requiredBy[req.HashKey()]))
				}
				return nil, err
			}
			if found == nil {
				return nil, &DistributionNotFoundError{
					Req:       req,
					Requirers: sortedCopy(requiredBy[req.HashKey()]),
				}
			}
			dist = found
		}
		best[req.Key()] = dist
		*toActivate = append(*toActivate, dist)
	}
	if !dist.Satisfies(req) {
		// the "best" so far conflicts with a later-discovered requirement
		conflict := &VersionConflictError{Dist: dist, Req: req}
		return nil, conflict.withContext(sortedCopy(requiredBy[req.HashKey()]))
	}
	return dist, nil
}

func sortedCopy(strs []string) []string {
	if len(strs) == 0 {
		return nil
	}
	ret := append([]string(nil), strs...)
	sort.Strings(ret)
	return ret
}

// markersPass decides whether a requirement's marker lets it in to the resolution, trying
// the extras that demanded the requirement and then the externally requested ones (or the
// no-extra "" when there are none); any single pass suffices.  A marker that needs a
// variable our environment doesn't have passes; we can't disprove it.
func (ws *WorkingSet) markersPass(req pep508.Requirement, demandingExtras, passedExtras []string) bool {
	if req.Marker == nil {
		return true
	}
	candidates := append([]string(nil), demandingExtras...)
	if len(passedExtras) == 0 {
		candidates = append(candidates, "")
	} else {
		candidates = append(candidates, passedExtras...)
	}
	for _, extra := range candidates {
		ok, err := req.Marker.Evaluate(pep508.WithExtra(ws.MarkerEnv, extra))
		if err != nil || ok {
			return true
		}
	}
	return false
}

// Require resolves the given requirement strings against the working set's own entries and
// activates the result; it returns the distributions that the requirements pulled in.
func (ws *WorkingSet) Require(ctx context.Context, reqStrs ...string) ([]*Distribution, error) {
	reqs, err := pep508.ParseRequirements(strings.Join(reqStrs, "\n"))
	if err != nil {
		return nil, err
	}
	needed, err := ws.Resolve(ctx, reqs, nil, nil, false)
	if err != nil {
		return nil, err
	}
	for _, dist := range needed {
		ws.Add(dist, "", true, false)
	}
	return needed, nil
}

// FindPlugins figures out which of the candidate plugin distributions in pluginEnv can be
// activated on top of this working set without breaking it.  Candidates are tried
// best-version-first per project; with fallback (the normal mode) a version that doesn't
// resolve is recorded in the error map and the next older version gets its turn, without it
// the project is skipped after its first failure.  Resolution happens against fullEnv (or,
// when nil, this working set's entries) plus the plugin candidates themselves, in a shadow
// working set so this one is never disturbed.
func (ws *WorkingSet) FindPlugins(ctx context.Context, pluginEnv, fullEnv *Environment, installer Installer, fallback bool) ([]*Distribution, map[*Distribution]error) {
	var env *Environment
	if fullEnv == nil {
		env = ScanEnvironment(ctx, ws.cache, ws.entries, "", "").Plus(pluginEnv)
	} else {
		env = fullEnv.Plus(pluginEnv)
	}

	shadow := NewWorkingSet(ctx, ws.cache, nil)
	shadow.MarkerEnv = ws.MarkerEnv
	for _, dist := range ws.Distributions() {
		shadow.Add(dist, "", true, false)
	}

	seen := make(map[*Distribution]struct{})
	var plugins []*Distribution
	errInfo := make(map[*Distribution]error)

	for _, project := range pluginEnv.Keys() {
		for _, candidate := range pluginEnv.Get(project) {
			req, err := candidate.AsRequirement()
			if err != nil {
				errInfo[candidate] = err
				if fallback {
					continue
				}
				break
			}
			resolvees, err := shadow.Resolve(ctx, []pep508.Requirement{req}, env, installer, false)
			if err != nil {
				// save why, and maybe try the next older version
				errInfo[candidate] = err
				if fallback {
					continue
				}
				break
			}
			for _, dist := range resolvees {
				shadow.Add(dist, "", true, false)
				if _, dup := seen[dist]; !dup {
					seen[dist] = struct{}{}
					plugins = append(plugins, dist)
				}
			}
			break
		}
	}

	sort.SliceStable(plugins, func(i, j int) bool {
		return plugins[i].Cmp(plugins[j]) < 0
	})
	return plugins, errInfo
}
