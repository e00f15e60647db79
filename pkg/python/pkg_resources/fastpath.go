// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pkg_resources

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// A PathCache hands out memoized FastPath accelerators, one per search-path entry.  It is
// plain state owned by the caller; two independent PathCaches never share anything.
type PathCache struct {
	zips *ZipManifests

	mu    sync.Mutex
	paths map[string]*FastPath
}

func NewPathCache() *PathCache {
	return &PathCache{
		zips:  NewZipManifests(),
		paths: make(map[string]*FastPath),
	}
}

// Zips returns the zip central-directory cache shared by this PathCache's FastPaths.
func (pc *PathCache) Zips() *ZipManifests {
	return pc.zips
}

// FastPath returns the accelerator for the given search-path entry, creating it on first use.
func (pc *PathCache) FastPath(root string) *FastPath {
	key := filepath.Clean(root)
	pc.mu.Lock()
	defer pc.mu.Unlock()
	fp, ok := pc.paths[key]
	if !ok {
		fp = &FastPath{root: root, zips: pc.zips}
		pc.paths[key] = fp
	}
	return fp
}

// A FastPath micro-optimizes repeated metadata searches of one search-path entry by indexing
// the entry's children once and keying the index on the entry's mtime.  When the mtime moves,
// the stale index is dropped and rebuilt, so at most one index per entry is ever held.
type FastPath struct {
	root string
	zips *ZipManifests

	mu          sync.Mutex
	lookup      *Lookup
	lookupMtime time.Time
}

func (fp *FastPath) Root() string {
	return fp.root
}

// Children lists the immediate child names of the search-path entry.  A directory lists
// normally; a zip file (such as a zipped egg) lists the top-level names recorded in its
// central directory; anything else lists as empty.
func (fp *FastPath) Children() []string {
	if ents, err := os.ReadDir(fp.root); err == nil {
		names := make([]string, 0, len(ents))
		for _, ent := range ents {
			names = append(names, ent.Name())
		}
		return names
	}
	manifest, err := fp.zips.Load(fp.root)
	if err != nil {
		return nil
	}
	seen := make(map[string]struct{})
	var names []string
	for name := range manifest {
		top := name
		if i := strings.IndexByte(top, '/'); i >= 0 {
			top = top[:i]
		}
		if top == "" {
			continue
		}
		if _, dup := seen[top]; !dup {
			seen[top] = struct{}{}
			names = append(names, top)
		}
	}
	sort.Strings(names)
	return names
}

// Search returns the metadata paths (…/Name-1.0.dist-info, …/Name.egg-info, or …/EGG-INFO)
// under this entry that match the query.
func (fp *FastPath) Search(q Prepared) []string {
	return fp.currentLookup().Search(q)
}

func (fp *FastPath) currentLookup() *Lookup {
	var mtime time.Time
	if fi, err := os.Stat(fp.root); err == nil {
		mtime = fi.ModTime()
	}
	fp.mu.Lock()
	defer fp.mu.Unlock()
	if fp.lookup == nil || !fp.lookupMtime.Equal(mtime) {
		fp.lookup = newLookup(fp)
		fp.lookupMtime = mtime
	}
	return fp.lookup
}

// A Lookup is the frozen index of one search-path entry's metadata directories, bucketed the
// way distributions name them: modern `.dist-info`/`.egg-info` children keyed by normalized
// project name, and the `EGG-INFO` child of a `.egg` entry keyed by the legacy-normalized
// name from the egg's filename.
type Lookup struct {
	infos map[string][]string
	eggs  map[string][]string
}

func newLookup(fp *FastPath) *Lookup {
	ret := &Lookup{
		infos: make(map[string][]string),
		eggs:  make(map[string][]string),
	}
	base := strings.ToLower(filepath.Base(fp.root))
	baseIsEgg := strings.HasSuffix(base, ".egg")
	for _, child := range fp.Children() {
		low := strings.ToLower(child)
		switch {
		case strings.HasSuffix(low, ".dist-info") || strings.HasSuffix(low, ".egg-info"):
			name := low[:strings.LastIndexByte(low, '.')]
			if i := strings.IndexByte(name, '-'); i >= 0 {
				name = name[:i]
			}
			key := normalizeName(name)
			ret.infos[key] = append(ret.infos[key], filepath.Join(fp.root, child))
		case baseIsEgg && low == "egg-info":
			name := base[:strings.LastIndexByte(base, '.')]
			if i := strings.IndexByte(name, '-'); i >= 0 {
				name = name[:i]
			}
			key := legacyNormalizeName(name)
			ret.eggs[key] = append(ret.eggs[key], filepath.Join(fp.root, child))
		}
	}
	return ret
}

// Search returns the matching metadata paths, `.dist-info`/`.egg-info` hits before egg hits.
// An empty query returns everything.
func (l *Lookup) Search(q Prepared) []string {
	var ret []string
	if q.MatchesAll() {
		ret = append(ret, flatten(l.infos)...)
		ret = append(ret, flatten(l.eggs)...)
		return ret
	}
	ret = append(ret, l.infos[q.Normalized]...)
	ret = append(ret, l.eggs[q.LegacyNormalized]...)
	return ret
}

func flatten(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var ret []string
	for _, key := range keys {
		ret = append(ret, m[key]...)
	}
	return ret
}
