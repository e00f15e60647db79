// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pkg_resources_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/pydist/pkg/python/pkg_resources"
)

func linuxEnv() map[string]string {
	return map[string]string{
		"os_name":             "posix",
		"sys_platform":        "linux",
		"platform_system":     "Linux",
		"python_version":      "3.10",
		"python_full_version": "3.10.9",
	}
}

func withMarkerEnv(dist *pkg_resources.Distribution, env map[string]string) *pkg_resources.Distribution {
	return dist.Clone(func(spec *pkg_resources.DistributionSpec) {
		spec.MarkerEnv = env
	})
}

func TestDistributionIdentity(t *testing.T) {
	t.Parallel()
	site := t.TempDir()
	dist := mkDistInfo(t, site, "Flask-Login", "0.6.2", nil, nil)
	assert.Equal(t, "Flask_Login", dist.ProjectName())
	assert.Equal(t, "flask_login", dist.Key())
	ver, err := dist.Version()
	require.NoError(t, err)
	assert.Equal(t, "0.6.2", ver)
	assert.Equal(t, pkg_resources.KindDistInfo, dist.Kind())
	assert.Equal(t, "Flask_Login 0.6.2", dist.String())
}

func TestDistributionVersionFromMetadata(t *testing.T) {
	t.Parallel()
	site := t.TempDir()
	// an .egg-info directory name carries no version; it has to come from PKG-INFO
	dist := mkEggInfo(t, site, "pyyaml", "6.0", nil)
	assert.True(t, dist.HasVersion())
	ver, err := dist.Version()
	require.NoError(t, err)
	assert.Equal(t, "6.0", ver)
}

func TestDistributionVersionMissing(t *testing.T) {
	t.Parallel()
	site := t.TempDir()
	writeTree(t, site, map[string]string{
		"broken.egg-info/requires.txt": "dep\n",
	})
	dist := pkg_resources.NewDistributionFromLocation(
		site, "broken.egg-info",
		pkg_resources.NewDefaultProvider(site, site+"/broken.egg-info"),
		pkg_resources.DevelopDist)
	assert.False(t, dist.HasVersion())
	_, err := dist.Version()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PKG-INFO")
	assert.Contains(t, err.Error(), site)
}

func TestRequiresDistInfo(t *testing.T) {
	t.Parallel()
	site := t.TempDir()
	dist := withMarkerEnv(mkDistInfo(t, site, "requests", "2.28.1", []string{
		`Requires-Dist: urllib3 (<3,>=1.21.1)`,
		`Requires-Dist: PySocks (!=1.5.7) ; extra == "socks"`,
		`Requires-Dist: win-inet-pton ; (sys_platform == "win32") and extra == "socks"`,
		`Provides-Extra: socks`,
	}, nil), linuxEnv())

	base, err := dist.Requires()
	require.NoError(t, err)
	require.Len(t, base, 1)
	assert.Equal(t, "urllib3", base[0].Name)

	socks, err := dist.Requires("socks")
	require.NoError(t, err)
	require.Len(t, socks, 2)
	assert.Equal(t, "PySocks", socks[1].Name, "win-inet-pton is windows-only")

	extras, err := dist.Extras()
	require.NoError(t, err)
	assert.Equal(t, []string{"socks"}, extras)

	_, err = dist.Requires("nope")
	var unknown *pkg_resources.UnknownExtraError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "nope", unknown.Extra)
}

func TestRequiresEggInfo(t *testing.T) {
	t.Parallel()
	requiresTxt := "common>=1.0\n\n[test: sys_platform==\"win32\"]\nfoo\n"

	site1 := t.TempDir()
	onWindows := withMarkerEnv(
		mkEggInfo(t, site1, "app", "1.0", map[string]string{"requires.txt": requiresTxt}),
		map[string]string{"sys_platform": "win32"})
	reqs, err := onWindows.Requires("test")
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	assert.Equal(t, "foo", reqs[1].Name)
	require.NotNil(t, reqs[1].Marker, "the section turns in to a marker on the requirement")
	assert.Contains(t, reqs[1].Marker.String(), `extra == "test"`)

	site2 := t.TempDir()
	onLinux := withMarkerEnv(
		mkEggInfo(t, site2, "app", "1.0", map[string]string{"requires.txt": requiresTxt}),
		linuxEnv())
	reqs, err = onLinux.Requires("test")
	require.NoError(t, err)
	require.Len(t, reqs, 1, "windows-only extra dep drops out on linux")
	assert.Equal(t, "common", reqs[0].Name)
}

func TestDistributionOrdering(t *testing.T) {
	t.Parallel()
	mk := func(version string, precedence pkg_resources.Precedence) *pkg_resources.Distribution {
		return pkg_resources.NewDistribution(pkg_resources.DistributionSpec{
			ProjectName: "pkg",
			Version:     version,
			Precedence:  precedence,
		})
	}
	older := mk("1.0", pkg_resources.EggDist)
	newer := mk("1.2", pkg_resources.SourceDist)
	assert.True(t, older.Cmp(newer) < 0, "version outranks precedence")

	src := mk("1.0", pkg_resources.SourceDist)
	egg := mk("1.0", pkg_resources.EggDist)
	assert.True(t, src.Cmp(egg) < 0, "same version, the more-built one wins")
	assert.Equal(t, 0, src.Cmp(mk("1.0", pkg_resources.SourceDist)))

	// non-PEP 440 versions still order, below everything released
	legacy := mk("0.23ubuntu1", pkg_resources.SourceDist)
	assert.True(t, legacy.Cmp(src) < 0)
}

func TestSatisfiesAndAsRequirement(t *testing.T) {
	t.Parallel()
	dist := pkg_resources.NewDistribution(pkg_resources.DistributionSpec{
		ProjectName: "Requests",
		Version:     "2.28.1",
	})
	req, err := dist.AsRequirement()
	require.NoError(t, err)
	assert.Equal(t, "Requests==2.28.1", req.String())
	assert.True(t, dist.Satisfies(req))

	pre := pkg_resources.NewDistribution(pkg_resources.DistributionSpec{
		ProjectName: "requests",
		Version:     "3.0b1",
	})
	preReq, err := pre.AsRequirement()
	require.NoError(t, err)
	assert.True(t, pre.Satisfies(preReq), "an installed pre-release satisfies itself")
	assert.False(t, pre.Satisfies(req))
}

func TestEggName(t *testing.T) {
	t.Parallel()
	dist := pkg_resources.NewDistribution(pkg_resources.DistributionSpec{
		ProjectName: "My-Project",
		Version:     "1.0",
		PyVersion:   "3.10",
		Platform:    "linux-x86_64",
	})
	assert.Equal(t, "My_Project-1.0-py3.10-linux-x86_64", dist.EggName())
}

func TestInsertOn(t *testing.T) {
	t.Parallel()
	egg := pkg_resources.NewDistribution(pkg_resources.DistributionSpec{
		ProjectName: "thing",
		Version:     "1.0",
		Location:    "/sp/thing-1.0.egg",
		Precedence:  pkg_resources.EggDist,
	})
	// an egg goes in front of the directory it lives in
	assert.Equal(t,
		[]string{"/usr/lib", "/sp/thing-1.0.egg", "/sp", "/other"},
		egg.InsertOn([]string{"/usr/lib", "/sp", "/other"}, "", false))

	// already present: no change
	assert.Equal(t,
		[]string{"/sp/thing-1.0.egg", "/sp"},
		egg.InsertOn([]string{"/sp/thing-1.0.egg", "/sp"}, "", false))

	plain := pkg_resources.NewDistribution(pkg_resources.DistributionSpec{
		ProjectName: "plain",
		Version:     "1.0",
		Location:    "/checkout/plain",
	})
	// a non-egg is appended
	assert.Equal(t,
		[]string{"/sp", "/checkout/plain"},
		plain.InsertOn([]string{"/sp"}, "", false))
	// with replace, an absent location leads
	assert.Equal(t,
		[]string{"/checkout/plain", "/sp"},
		plain.InsertOn([]string{"/sp"}, "", true))
	// with replace, a present location stays put and later duplicates are dropped
	assert.Equal(t,
		[]string{"/sp", "/checkout/plain", "/x"},
		plain.InsertOn([]string{"/sp", "/checkout/plain", "/x", "/checkout/plain"}, "", true))
}

func TestEntryPoints(t *testing.T) {
	t.Parallel()
	site := t.TempDir()
	dist := mkDistInfo(t, site, "chardet", "5.0", nil, map[string]string{
		"entry_points.txt": "[console_scripts]\nchardetect = chardet.cli.chardetect:main\n",
	})

	eps, err := dist.EntryPointsMap()
	require.NoError(t, err)
	require.Len(t, eps["console_scripts"], 1)

	ep, err := dist.EntryPoint("console_scripts", "chardetect")
	require.NoError(t, err)
	require.NotNil(t, ep)
	assert.Equal(t, "chardet.cli.chardetect:main", ep.Value())

	ep, err = dist.EntryPoint("console_scripts", "missing")
	require.NoError(t, err)
	assert.Nil(t, ep)
}

func TestFilesAndDirectURL(t *testing.T) {
	t.Parallel()
	site := t.TempDir()
	dist := mkDistInfo(t, site, "pkg", "1.0", nil, map[string]string{
		"RECORD": "pkg/__init__.py,sha256=47DEQpj8HBSa-_TImW-5JA,0\npkg-1.0.dist-info/RECORD,,\n",
		"direct_url.json": `{"url": "file:///src/pkg", "dir_info": {"editable": true}}`,
	})

	files, err := dist.Files()
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "pkg/__init__.py", files[0].Path)

	du, err := dist.DirectURL()
	require.NoError(t, err)
	require.NotNil(t, du)
	assert.True(t, du.IsEditable())

	// a distribution without one simply has none
	plain := mkDistInfo(t, t.TempDir(), "other", "1.0", nil, nil)
	du, err = plain.DirectURL()
	require.NoError(t, err)
	assert.Nil(t, du)
}
