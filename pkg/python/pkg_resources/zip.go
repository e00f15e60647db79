// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pkg_resources

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// A ZipManifest is the central directory of one zip archive, keyed by the slash-separated
// entry name with any trailing slash removed.
type ZipManifest map[string]zip.FileHeader

// ZipManifests memoizes zip central directories, keyed by normalized archive path and
// invalidated when the archive's mtime moves.  Like PathCache it is caller-owned state, not a
// process global.
type ZipManifests struct {
	mu sync.Mutex
	m  map[string]zipManifestEntry
}

type zipManifestEntry struct {
	mtime    time.Time
	manifest ZipManifest
}

func NewZipManifests() *ZipManifests {
	return &ZipManifests{
		m: make(map[string]zipManifestEntry),
	}
}

// Load returns the manifest of the archive at path, reading it at most once per mtime.
func (zm *ZipManifests) Load(path string) (ZipManifest, error) {
	key := filepath.Clean(path)
	fi, err := os.Stat(key)
	if err != nil {
		return nil, err
	}
	zm.mu.Lock()
	defer zm.mu.Unlock()
	if ent, ok := zm.m[key]; ok && ent.mtime.Equal(fi.ModTime()) {
		return ent.manifest, nil
	}
	manifest, err := buildZipManifest(key)
	if err != nil {
		return nil, err
	}
	zm.m[key] = zipManifestEntry{
		mtime:    fi.ModTime(),
		manifest: manifest,
	}
	return manifest, nil
}

func buildZipManifest(path string) (ZipManifest, error) {
	rd, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%q: %w", path, err)
	}
	defer rd.Close()
	manifest := make(ZipManifest, len(rd.File))
	for _, file := range rd.File {
		name := file.Name
		if len(name) > 0 && name[len(name)-1] == '/' {
			name = name[:len(name)-1]
		}
		manifest[name] = file.FileHeader
	}
	return manifest, nil
}

// readZipEntry returns the content of one entry; the archive is opened for the duration of
// the read, the manifest only tells us the entry exists.
func readZipEntry(archive, name string) ([]byte, error) {
	rd, err := zip.OpenReader(archive)
	if err != nil {
		return nil, fmt.Errorf("%q: %w", archive, err)
	}
	defer rd.Close()
	for _, file := range rd.File {
		if file.Name == name {
			fp, err := file.Open()
			if err != nil {
				return nil, fmt.Errorf("%q: %q: %w", archive, name, err)
			}
			defer fp.Close()
			return io.ReadAll(fp)
		}
	}
	return nil, fmt.Errorf("%q: %q: %w", archive, name, os.ErrNotExist)
}
