// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pkg_resources_test

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/datawire/pydist/pkg/python/pkg_resources"
)

// zipStamp is the fixed timestamp used for zip entries in tests; whole seconds, because zip
// timestamps don't carry more.
var zipStamp = time.Date(2021, 7, 16, 12, 30, 0, 0, time.UTC)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		fullpath := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(fullpath), 0o755))
		require.NoError(t, os.WriteFile(fullpath, []byte(content), 0o644))
	}
}

func makeZip(t *testing.T, zipPath string, files map[string]string) {
	t.Helper()
	fp, err := os.Create(zipPath)
	require.NoError(t, err)
	zw := zip.NewWriter(fp)
	for name, content := range files {
		hdr := &zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: zipStamp,
		}
		hdr.SetMode(0o644)
		w, err := zw.CreateHeader(hdr)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, fp.Close())
}

// mkDistInfo lays out a `Name-Version.dist-info` directory under site and returns the
// corresponding Distribution.  Extra header lines (Requires-Dist, Provides-Extra) get
// appended to METADATA; extra files go in the metadata directory as-is.
func mkDistInfo(t *testing.T, site, name, version string, headers []string, files map[string]string) *pkg_resources.Distribution {
	t.Helper()
	dirName := strings.ReplaceAll(name, "-", "_") + "-" + version + ".dist-info"
	metaDir := filepath.Join(site, dirName)
	metadata := "Metadata-Version: 2.1\nName: " + name + "\nVersion: " + version + "\n"
	for _, header := range headers {
		metadata += header + "\n"
	}
	all := map[string]string{"METADATA": metadata}
	for fname, content := range files {
		all[fname] = content
	}
	writeTree(t, metaDir, all)
	return pkg_resources.NewDistributionFromLocation(
		site, dirName,
		pkg_resources.NewDefaultProvider(site, metaDir),
		pkg_resources.DevelopDist)
}

// mkEggInfo lays out a `Name.egg-info` directory (PKG-INFO plus whatever files are given,
// typically requires.txt) and returns the corresponding Distribution.
func mkEggInfo(t *testing.T, site, name, version string, files map[string]string) *pkg_resources.Distribution {
	t.Helper()
	dirName := name + ".egg-info"
	metaDir := filepath.Join(site, dirName)
	all := map[string]string{
		"PKG-INFO": "Metadata-Version: 1.1\nName: " + name + "\nVersion: " + version + "\n",
	}
	for fname, content := range files {
		all[fname] = content
	}
	writeTree(t, metaDir, all)
	return pkg_resources.NewDistributionFromLocation(
		site, dirName,
		pkg_resources.NewDefaultProvider(site, metaDir),
		pkg_resources.DevelopDist)
}
