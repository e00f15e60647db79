// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pkg_resources_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/datawire/dlib/dlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/pydist/pkg/python/pkg_resources"
)

func findKeys(dists []*pkg_resources.Distribution) []string {
	keys := make([]string, len(dists))
	for i, dist := range dists {
		keys[i] = dist.Key()
	}
	return keys
}

func TestFindDistributionsDir(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	site := t.TempDir()
	checkout := t.TempDir()

	writeTree(t, site, map[string]string{
		// a modern wheel install
		"requests-2.28.1.dist-info/METADATA": "Name: requests\nVersion: 2.28.1\n",
		// a legacy setuptools install with a bare .egg-info file
		"legacy.egg-info": "Name: legacy\nVersion: 0.3\n",
		// an empty metadata dir is not a distribution
		"husk-1.0.dist-info/.placeholder": "",
		// random clutter
		"clutter.txt": "",
	})
	// drop the placeholder so husk-1.0.dist-info is truly empty
	require.NoError(t, os.Remove(filepath.Join(site, "husk-1.0.dist-info", ".placeholder")))

	// an .egg-link pointing at an editable checkout
	writeTree(t, checkout, map[string]string{
		"devpkg.egg-info/PKG-INFO": "Name: devpkg\nVersion: 0.0.1.dev1\n",
	})
	writeTree(t, site, map[string]string{
		"devpkg.egg-link": checkout + "\n",
	})

	dists := pkg_resources.FindDistributions(ctx, pkg_resources.NewPathCache(), site)
	assert.ElementsMatch(t, []string{"requests", "legacy", "devpkg"}, findKeys(dists))

	for _, dist := range dists {
		switch dist.Key() {
		case "requests":
			assert.Equal(t, pkg_resources.KindDistInfo, dist.Kind())
			ver, err := dist.Version()
			require.NoError(t, err)
			assert.Equal(t, "2.28.1", ver)
		case "legacy":
			// identity comes from the PKG-INFO file behind the FileMetadata provider
			assert.Equal(t, pkg_resources.KindEggInfo, dist.Kind())
			ver, err := dist.Version()
			require.NoError(t, err)
			assert.Equal(t, "0.3", ver)
		case "devpkg":
			assert.Equal(t, checkout, dist.Location())
		}
	}
}

func TestFindDistributionsEggs(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	site := t.TempDir()

	// an unpacked egg directory
	writeTree(t, filepath.Join(site, "Unpacked-1.0-py3.10.egg"), map[string]string{
		"EGG-INFO/PKG-INFO": "Name: Unpacked\nVersion: 1.0\n",
	})
	// a zipped egg
	makeZip(t, filepath.Join(site, "Zipped-2.0-py3.10.egg"), map[string]string{
		"EGG-INFO/PKG-INFO": "Name: Zipped\nVersion: 2.0\n",
		"zipped/__init__.py": "",
	})

	cache := pkg_resources.NewPathCache()
	dists := pkg_resources.FindDistributions(ctx, cache, site)
	assert.ElementsMatch(t, []string{"unpacked", "zipped"}, findKeys(dists))
	for _, dist := range dists {
		assert.Equal(t, pkg_resources.EggDist, dist.Precedence(), dist.Key())
		assert.Equal(t, "3.10", dist.PyVersion(), dist.Key())
		assert.True(t, dist.HasVersion(), dist.Key())
	}
}

func TestFindDistributionsZipRoot(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "deps.zip")
	makeZip(t, zipPath, map[string]string{
		"wheelpkg-3.1.dist-info/METADATA": "Name: wheelpkg\nVersion: 3.1\n",
		"wheelpkg/__init__.py":            "",
	})

	dists := pkg_resources.FindDistributions(ctx, pkg_resources.NewPathCache(), zipPath)
	require.Len(t, dists, 1)
	assert.Equal(t, "wheelpkg", dists[0].Key())
	assert.Equal(t, pkg_resources.KindDistInfo, dists[0].Kind())
	reqs, err := dists[0].Requires()
	require.NoError(t, err)
	assert.Empty(t, reqs)

	// wheels themselves are not importable in place
	whlPath := filepath.Join(dir, "wheelpkg-3.1-py3-none-any.whl")
	makeZip(t, whlPath, map[string]string{
		"wheelpkg-3.1.dist-info/METADATA": "Name: wheelpkg\nVersion: 3.1\n",
	})
	assert.Empty(t, pkg_resources.FindDistributions(ctx, pkg_resources.NewPathCache(), whlPath))
}

func TestFindDistributionsMissingEntry(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	assert.Empty(t, pkg_resources.FindDistributions(ctx, pkg_resources.NewPathCache(),
		filepath.Join(t.TempDir(), "does-not-exist")))
}
