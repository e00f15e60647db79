// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pkg_resources_test

import (
	"errors"
	"testing"

	"github.com/datawire/dlib/dlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/pydist/pkg/python/pep508"
	"github.com/datawire/pydist/pkg/python/pkg_resources"
	"github.com/datawire/pydist/pkg/testutil"
)

func distNames(dists []*pkg_resources.Distribution) []string {
	names := make([]string, len(dists))
	for i, dist := range dists {
		names[i] = dist.ProjectName()
	}
	return names
}

func TestResolveEmpty(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	ws := pkg_resources.NewWorkingSet(ctx, nil, nil)
	dists, err := ws.Resolve(ctx, nil, nil, nil, false)
	require.NoError(t, err)
	assert.Empty(t, dists)
}

func TestResolveNotFound(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	ws := pkg_resources.NewWorkingSet(ctx, nil, nil)
	env := pkg_resources.NewEnvironment("", "")
	env.Add(mkBare("pkg", "0.9"))

	_, err := ws.Resolve(ctx, []pep508.Requirement{mustParseReq(t, "pkg>=1.0")}, env, nil, false)
	require.Error(t, err)
	var notFound *pkg_resources.DistributionNotFoundError
	require.ErrorAs(t, err, &notFound, "too-old candidates are 'not found', not a conflict")
	var conflict *pkg_resources.VersionConflictError
	assert.False(t, errors.As(err, &conflict))
	assert.Equal(t, "pkg>=1.0", notFound.Req.String())
}

func TestResolveConflict(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	ws := pkg_resources.NewWorkingSet(ctx, nil, nil)
	active := mkBare("pkg", "0.5")
	ws.Add(active, "", true, false)
	env := pkg_resources.NewEnvironment("", "")
	env.Add(mkBare("pkg", "1.2"))

	_, err := ws.Resolve(ctx, []pep508.Requirement{mustParseReq(t, "pkg>=1.0")}, env, nil, false)
	var conflict *pkg_resources.VersionConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Same(t, active, conflict.Dist)
	assert.Equal(t, "pkg>=1.0", conflict.Req.String())

	// with replacement allowed, the environment candidate takes over
	dists, err := ws.Resolve(ctx, []pep508.Requirement{mustParseReq(t, "pkg>=1.0")}, env, nil, true)
	require.NoError(t, err)
	require.Len(t, dists, 1)
	ver, _ := dists[0].Version()
	assert.Equal(t, "1.2", ver)

	// Contains is identity, not key equality
	assert.True(t, ws.Contains(active))
	assert.False(t, ws.Contains(mkBare("pkg", "0.5")))
}

func TestResolveGraph(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	site := t.TempDir()
	mkDistInfo(t, site, "app", "1.0", []string{
		`Requires-Dist: libb (>=1.0)`,
		`Requires-Dist: socky ; extra == "net"`,
		`Provides-Extra: net`,
	}, nil)
	mkDistInfo(t, site, "libb", "1.0", []string{
		`Requires-Dist: libc`,
	}, nil)
	mkDistInfo(t, site, "libc", "2.0", nil, nil)
	mkDistInfo(t, site, "socky", "1.0", nil, nil)

	cache := pkg_resources.NewPathCache()
	env := pkg_resources.ScanEnvironment(ctx, cache, []string{site}, "", "")
	ws := pkg_resources.NewWorkingSet(ctx, cache, nil)

	dists, err := ws.Resolve(ctx, []pep508.Requirement{mustParseReq(t, "app")}, env, nil, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"app", "libb", "libc"}, distNames(dists), "breadth-first, extras off")

	// within a level, later-listed requirements are taken up first
	dists, err = ws.Resolve(ctx, []pep508.Requirement{mustParseReq(t, "app[net]")}, env, nil, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"app", "socky", "libb", "libc"}, distNames(dists))

	// same for the input list itself
	dists, err = ws.Resolve(ctx, []pep508.Requirement{
		mustParseReq(t, "socky"),
		mustParseReq(t, "libc"),
	}, env, nil, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"libc", "socky"}, distNames(dists))

	// resolution is repeatable: a second pass over an unchanged working set yields the
	// same distributions in the same order
	first, err := ws.Resolve(ctx, []pep508.Requirement{mustParseReq(t, "app[net]")}, env, nil, false)
	require.NoError(t, err)
	again, err := ws.Resolve(ctx, []pep508.Requirement{mustParseReq(t, "app[net]")}, env, nil, false)
	require.NoError(t, err)
	testutil.AssertEqualDump(t, first, again)
}

func TestResolveRequirers(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	site := t.TempDir()
	mkDistInfo(t, site, "app", "1.0", []string{
		`Requires-Dist: ghost`,
	}, nil)

	cache := pkg_resources.NewPathCache()
	env := pkg_resources.ScanEnvironment(ctx, cache, []string{site}, "", "")
	ws := pkg_resources.NewWorkingSet(ctx, cache, nil)

	_, err := ws.Resolve(ctx, []pep508.Requirement{mustParseReq(t, "app")}, env, nil, false)
	var notFound *pkg_resources.DistributionNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "ghost", notFound.Req.Name)
	assert.Equal(t, []string{"app"}, notFound.Requirers)
	assert.Contains(t, notFound.Error(), "required by app")
}

func TestResolveMarkerSkip(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	site := t.TempDir()
	mkDistInfo(t, site, "app", "1.0", []string{
		`Requires-Dist: winthing ; sys_platform == "win32"`,
	}, nil)

	cache := pkg_resources.NewPathCache()
	env := pkg_resources.ScanEnvironment(ctx, cache, []string{site}, "", "")
	ws := pkg_resources.NewWorkingSet(ctx, cache, nil)
	ws.MarkerEnv = linuxEnv()

	// winthing isn't installed anywhere, but its marker says we don't need it
	dists, err := ws.Resolve(ctx, []pep508.Requirement{mustParseReq(t, "app")}, env, nil, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"app"}, distNames(dists))
}

func TestRequire(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	site := t.TempDir()
	mkDistInfo(t, site, "app", "1.0", []string{`Requires-Dist: libb`}, nil)
	mkDistInfo(t, site, "libb", "1.0", nil, nil)

	ws := pkg_resources.NewWorkingSet(ctx, nil, []string{site})
	needed, err := ws.Require(ctx, "app")
	require.NoError(t, err)
	assert.Equal(t, []string{"app", "libb"}, distNames(needed))
	assert.Len(t, ws.Distributions(), 2)
}

func TestFindPlugins(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)

	baseSite := t.TempDir()
	mkDistInfo(t, baseSite, "core", "1.0", nil, nil)
	pluginSite := t.TempDir()
	mkDistInfo(t, pluginSite, "plugin", "2.0", []string{`Requires-Dist: ghost`}, nil)
	mkDistInfo(t, pluginSite, "plugin", "1.0", []string{`Requires-Dist: core`}, nil)

	cache := pkg_resources.NewPathCache()
	ws := pkg_resources.NewWorkingSet(ctx, cache, []string{baseSite})
	pluginEnv := pkg_resources.ScanEnvironment(ctx, cache, []string{pluginSite}, "", "")

	t.Run("fallback", func(t *testing.T) {
		plugins, errInfo := ws.FindPlugins(ctx, pluginEnv, nil, nil, true)
		// plugin 2.0 can't resolve, so the older 1.0 gets picked up, along with
		// the dependency it shares with the working set
		assert.Equal(t, []string{"core", "plugin"}, distNames(plugins))
		for _, dist := range plugins {
			if dist.ProjectName() == "plugin" {
				ver, _ := dist.Version()
				assert.Equal(t, "1.0", ver)
			}
		}
		require.Len(t, errInfo, 1)
		for dist, err := range errInfo {
			ver, _ := dist.Version()
			assert.Equal(t, "2.0", ver)
			var notFound *pkg_resources.DistributionNotFoundError
			assert.ErrorAs(t, err, &notFound)
		}
	})

	t.Run("no-fallback", func(t *testing.T) {
		plugins, errInfo := ws.FindPlugins(ctx, pluginEnv, nil, nil, false)
		assert.Empty(t, plugins, "the first (best) version failed, so the project is skipped")
		assert.Len(t, errInfo, 1)
	})
}

func TestIterEntryPoints(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	site := t.TempDir()
	mkDistInfo(t, site, "alpha", "1.0", nil, map[string]string{
		"entry_points.txt": "[myapp.plugins]\nfirst = alpha.plug:main\n",
	})
	mkDistInfo(t, site, "beta", "1.0", nil, map[string]string{
		"entry_points.txt": "[myapp.plugins]\nsecond = beta.plug:main\n[console_scripts]\nbeta = beta.cli:main\n",
	})

	ws := pkg_resources.NewWorkingSet(ctx, nil, []string{site})

	eps, err := ws.IterEntryPoints("myapp.plugins", "")
	require.NoError(t, err)
	require.Len(t, eps, 2)

	eps, err = ws.IterEntryPoints("myapp.plugins", "second")
	require.NoError(t, err)
	require.Len(t, eps, 1)
	assert.Equal(t, "beta.plug:main", eps[0].Value())
}

func TestSubscribe(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	site := t.TempDir()
	mkDistInfo(t, site, "alpha", "1.0", nil, nil)

	ws := pkg_resources.NewWorkingSet(ctx, nil, []string{site})
	var seen []string
	ws.Subscribe(func(dist *pkg_resources.Distribution) {
		seen = append(seen, dist.ProjectName())
	})
	assert.Equal(t, []string{"alpha"}, seen, "existing distributions are announced immediately")

	ws.Add(mkBare("omega", "1.0"), "", true, false)
	assert.Equal(t, []string{"alpha", "omega"}, seen)
}
