// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pkg_resources

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/datawire/dlib/dlog"
)

// FindDistributions discovers the distributions reachable from one search-path entry: a
// site-packages-style directory (its `.dist-info`/`.egg-info` children, nested eggs, and
// `.egg-link` indirections), an egg directory or zipped egg itself, or a zip archive on the
// path.  Entries that don't exist or can't be read simply contribute nothing.
func FindDistributions(ctx context.Context, cache *PathCache, pathItem string) []*Distribution {
	fi, err := os.Stat(pathItem)
	if err != nil {
		dlog.Debugf(ctx, "skipping search path entry %q: %v", pathItem, err)
		return nil
	}
	if fi.IsDir() {
		if isUnpackedEgg(pathItem) {
			provider := NewDefaultProvider(pathItem, filepath.Join(pathItem, "EGG-INFO"))
			return []*Distribution{
				NewDistributionFromLocation(pathItem, filepath.Base(pathItem), provider, EggDist),
			}
		}
		return findInDir(ctx, cache, pathItem)
	}
	return findInZip(ctx, cache, pathItem)
}

func findInDir(ctx context.Context, cache *PathCache, pathItem string) []*Distribution {
	var ret []*Distribution
	fp := cache.FastPath(pathItem)
	for _, metaPath := range fp.Search(Prepared{}) {
		if dist := distributionFromMetadata(ctx, cache, metaPath); dist != nil {
			ret = append(ret, dist)
		}
	}
	for _, child := range fp.Children() {
		low := strings.ToLower(child)
		switch {
		case strings.HasSuffix(low, ".egg"):
			ret = append(ret, FindDistributions(ctx, cache, filepath.Join(pathItem, child))...)
		case strings.HasSuffix(low, ".egg-link"):
			ret = append(ret, resolveEggLink(ctx, cache, filepath.Join(pathItem, child))...)
		}
	}
	return ret
}

func findInZip(ctx context.Context, cache *PathCache, pathItem string) []*Distribution {
	low := strings.ToLower(pathItem)
	if strings.HasSuffix(low, ".whl") {
		// wheels are not importable in place; they only count once installed
		return nil
	}
	if _, err := cache.Zips().Load(pathItem); err != nil {
		dlog.Debugf(ctx, "skipping search path entry %q: %v", pathItem, err)
		return nil
	}
	if strings.HasSuffix(low, ".egg") {
		provider := NewZipProvider(cache.Zips(), pathItem, "", "EGG-INFO")
		if has, _ := provider.HasMetadata("PKG-INFO"); has {
			return []*Distribution{
				NewDistributionFromLocation(pathItem, filepath.Base(pathItem), provider, EggDist),
			}
		}
		dlog.Debugf(ctx, "egg %q has no PKG-INFO, skipping", pathItem)
		return nil
	}
	// a plain zip on the search path; its top-level metadata dirs count
	var ret []*Distribution
	fp := cache.FastPath(pathItem)
	for _, metaPath := range fp.Search(Prepared{}) {
		if dist := distributionFromMetadata(ctx, cache, metaPath); dist != nil {
			ret = append(ret, dist)
		}
	}
	return ret
}

// distributionFromMetadata builds the Distribution for one discovered metadata path
// (…/Name-1.0.dist-info or …/Name.egg-info), which may be a directory, a bare file, or an
// entry inside a zip.
func distributionFromMetadata(ctx context.Context, cache *PathCache, metaPath string) *Distribution {
	root := filepath.Dir(metaPath)
	entry := filepath.Base(metaPath)

	var provider Provider
	rootInfo, err := os.Stat(root)
	switch {
	case err == nil && rootInfo.IsDir():
		fi, err := os.Stat(metaPath)
		if err != nil {
			dlog.Debugf(ctx, "skipping metadata %q: %v", metaPath, err)
			return nil
		}
		if fi.IsDir() {
			if len(listDirNames(metaPath)) == 0 {
				dlog.Debugf(ctx, "skipping empty metadata dir %q", metaPath)
				return nil
			}
			provider = NewDefaultProvider(root, metaPath)
		} else {
			provider = NewFileMetadata(metaPath)
		}
	case err == nil:
		// the root is a zip archive; the metadata path is inside it
		provider = NewZipProvider(cache.Zips(), root, "", entry)
	default:
		dlog.Debugf(ctx, "skipping metadata %q: %v", metaPath, err)
		return nil
	}

	return NewDistributionFromLocation(root, entry, provider, DevelopDist)
}

// resolveEggLink follows a `.egg-link` file (a one-line pointer that editable installs leave
// in site-packages) to the checkout it names, and discovers distributions there.
func resolveEggLink(ctx context.Context, cache *PathCache, linkPath string) []*Distribution {
	content, err := os.ReadFile(linkPath)
	if err != nil {
		dlog.Debugf(ctx, "skipping egg-link %q: %v", linkPath, err)
		return nil
	}
	for _, line := range yieldLines(string(content)) {
		target := filepath.Join(filepath.Dir(linkPath), line)
		return FindDistributions(ctx, cache, target)
	}
	return nil
}

// isUnpackedEgg reports whether the path is an egg that was unpacked in to a directory.
func isUnpackedEgg(pathItem string) bool {
	if !strings.HasSuffix(strings.ToLower(pathItem), ".egg") {
		return false
	}
	fi, err := os.Stat(filepath.Join(pathItem, "EGG-INFO", "PKG-INFO"))
	return err == nil && fi.Mode().IsRegular()
}
