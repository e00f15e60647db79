// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pkg_resources

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strconv"

	"github.com/datawire/pydist/pkg/python/pep508"
)

// An Installer is the hook that Environment.BestMatch falls back to when nothing on hand
// satisfies a requirement: fetch/build the distribution and return it, or return nil to say
// "can't".
type Installer func(ctx context.Context, req pep508.Requirement) (*Distribution, error)

// An Environment is a searchable collection of candidate distributions, indexed by project
// key and filtered on add by platform/Python compatibility.  Within a key, candidates stay
// sorted best-first.
type Environment struct {
	// Platform and Python restrict what may be added: a distribution tagged for a
	// different platform or Python version is rejected by Add.  Empty means "accept
	// anything".
	Platform string
	Python   string

	byKey map[string][]*Distribution
}

func NewEnvironment(platform, python string) *Environment {
	return &Environment{
		Platform: platform,
		Python:   python,
		byKey:    make(map[string][]*Distribution),
	}
}

// ScanEnvironment builds an Environment over the given search path.
func ScanEnvironment(ctx context.Context, cache *PathCache, searchPath []string, platform, python string) *Environment {
	env := NewEnvironment(platform, python)
	env.Scan(ctx, cache, searchPath)
	return env
}

// CanAdd reports whether the distribution is compatible enough with this environment's
// platform and Python version to be a candidate.
func (env *Environment) CanAdd(dist *Distribution) bool {
	pyCompat := env.Python == "" || dist.PyVersion() == "" || dist.PyVersion() == env.Python
	return pyCompat && compatiblePlatforms(dist.Platform(), env.Platform)
}

// Add adds a candidate, keeping the per-key list sorted best-first; incompatible or
// version-less distributions are silently left out, duplicates are dropped.
func (env *Environment) Add(dist *Distribution) {
	if dist == nil || !env.CanAdd(dist) || !dist.HasVersion() {
		return
	}
	key := dist.Key()
	for _, have := range env.byKey[key] {
		if have.Cmp(dist) == 0 {
			return
		}
	}
	dists := append(env.byKey[key], dist)
	sort.SliceStable(dists, func(i, j int) bool {
		return dists[i].Cmp(dists[j]) > 0
	})
	env.byKey[key] = dists
}

// Scan discovers the distributions on the given search path and adds them all.
func (env *Environment) Scan(ctx context.Context, cache *PathCache, searchPath []string) {
	for _, item := range searchPath {
		for _, dist := range FindDistributions(ctx, cache, item) {
			env.Add(dist)
		}
	}
}

// Remove removes one candidate.
func (env *Environment) Remove(dist *Distribution) {
	key := dist.Key()
	dists := env.byKey[key]
	for i, have := range dists {
		if have == dist {
			env.byKey[key] = append(dists[:i:i], dists[i+1:]...)
			return
		}
	}
}

// Get returns the candidates for a project key, best first.
func (env *Environment) Get(key string) []*Distribution {
	return append([]*Distribution(nil), env.byKey[key]...)
}

// Keys returns the project keys that have at least one candidate, sorted.
func (env *Environment) Keys() []string {
	keys := make([]string, 0, len(env.byKey))
	for key, dists := range env.byKey {
		if len(dists) > 0 {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Plus returns a new Environment holding this environment's candidates and the other's, with
// no platform or Python restriction.
func (env *Environment) Plus(other *Environment) *Environment {
	ret := NewEnvironment("", "")
	for _, src := range []*Environment{env, other} {
		if src == nil {
			continue
		}
		for _, dists := range src.byKey {
			for _, dist := range dists {
				ret.Add(dist)
			}
		}
	}
	return ret
}

// BestMatch returns the distribution to use for the requirement: whatever the working set
// has already activated (a conflict there is an error, unless replaceConflicting), else the
// best compatible candidate in this environment, else whatever the installer hook can
// produce.  A nil Distribution with a nil error means "nothing".
func (env *Environment) BestMatch(ctx context.Context, req pep508.Requirement, ws *WorkingSet, installer Installer, replaceConflicting bool) (*Distribution, error) {
	dist, err := ws.Find(req)
	if err != nil {
		var conflict *VersionConflictError
		if !errors.As(err, &conflict) || !replaceConflicting {
			return nil, err
		}
		dist = nil
	}
	if dist != nil {
		return dist, nil
	}
	for _, candidate := range env.byKey[req.Key()] {
		if candidate.Satisfies(req) {
			return candidate, nil
		}
	}
	return env.Obtain(ctx, req, installer)
}

// Obtain invokes the installer hook, if there is one.
func (env *Environment) Obtain(ctx context.Context, req pep508.Requirement, installer Installer) (*Distribution, error) {
	if installer == nil {
		return nil, nil
	}
	return installer(ctx, req)
}

var (
	macosVersionRe  = regexp.MustCompile(`^macosx-(\d+)\.(\d+)-(.*)$`)
	darwinVersionRe = regexp.MustCompile(`^darwin-(\d+)\.(\d+)\.(\d+)-(.*)$`)
)

// compatiblePlatforms reports whether a distribution built for the provided platform can run
// on the required one.  Identical strings (or either side unspecified) always can; beyond
// that only the macOS lineage gets special handling, matching binary eggs built on older
// macOS (or tagged with the raw darwin kernel version) to newer macOS hosts.
func compatiblePlatforms(provided, required string) bool {
	if provided == "" || required == "" || provided == required {
		return true
	}
	reqMac := macosVersionRe.FindStringSubmatch(required)
	if reqMac == nil {
		return false
	}
	provMac := macosVersionRe.FindStringSubmatch(provided)
	if provMac == nil {
		if provDarwin := darwinVersionRe.FindStringSubmatch(provided); provDarwin != nil {
			dversion, _ := strconv.Atoi(provDarwin[1])
			macosversion := reqMac[1] + "." + reqMac[2]
			if (dversion == 7 && macosversion >= "10.3") ||
				(dversion == 8 && macosversion >= "10.4") {
				return true
			}
		}
		return false
	}
	// same major version and machine type?
	if provMac[1] != reqMac[1] || provMac[3] != reqMac[3] {
		return false
	}
	// required minor must be at least the provided one
	provMinor, _ := strconv.Atoi(provMac[2])
	reqMinor, _ := strconv.Atoi(reqMac[2])
	return provMinor <= reqMinor
}
