// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pkg_resources

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/datawire/pydist/pkg/python"
)

// A ResourceManager owns the extraction cache that zip-resident resources get materialized
// in to when a caller needs a true filesystem path for them.
type ResourceManager struct {
	mu             sync.Mutex
	extractionPath string
	cachedFiles    map[string]struct{}
}

func NewResourceManager() *ResourceManager {
	return &ResourceManager{
		cachedFiles: make(map[string]struct{}),
	}
}

// SetExtractionPath overrides the cache root.  It may only be called before anything has
// been extracted; resources already handed out would otherwise point at orphaned files.
func (man *ResourceManager) SetExtractionPath(path string) error {
	man.mu.Lock()
	defer man.mu.Unlock()
	if len(man.cachedFiles) > 0 {
		return fmt.Errorf("can't change extraction path, files already extracted")
	}
	man.extractionPath = path
	return nil
}

// DefaultCacheDir returns where extractions go when no override is set: $PYTHON_EGG_CACHE if
// set, otherwise a "Python-Eggs" directory under the user's cache directory.
func DefaultCacheDir() (string, error) {
	if dir := os.Getenv("PYTHON_EGG_CACHE"); dir != "" {
		return dir, nil
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "Python-Eggs"), nil
}

// CachePath returns (and creates the parent directories of) the deterministic cache location
// for the named member of the named archive: <cacheRoot>/<archiveName>-tmp/<names...>.
func (man *ResourceManager) CachePath(archiveName string, names ...string) (string, error) {
	man.mu.Lock()
	base := man.extractionPath
	man.mu.Unlock()
	if base == "" {
		var err error
		base, err = DefaultCacheDir()
		if err != nil {
			return "", err
		}
	}
	target := filepath.Join(append([]string{base, archiveName + "-tmp"}, names...)...)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", man.extractionError(target, err)
	}
	man.recordCachedFile(target)
	return target, nil
}

func (man *ResourceManager) recordCachedFile(path string) {
	man.mu.Lock()
	defer man.mu.Unlock()
	man.cachedFiles[path] = struct{}{}
}

func (man *ResourceManager) extractionError(cachePath string, err error) *ExtractionError {
	return &ExtractionError{
		Manager:   man,
		CachePath: cachePath,
		Err:       err,
	}
}

// postprocess matches the permission fixup that pkg_resources applies to every extracted
// file: everything in the cache comes out world-readable and executable, because zipped eggs
// carry native libraries and scripts that have to run in place.
func (man *ResourceManager) postprocess(tempname string, mode fs.FileMode) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	return os.Chmod(tempname, (mode|0o555)&0o777)
}

// CleanupResources deletes everything this manager has extracted, best effort, and returns
// the paths it could not delete.
func (man *ResourceManager) CleanupResources() []string {
	man.mu.Lock()
	paths := make([]string, 0, len(man.cachedFiles))
	for path := range man.cachedFiles {
		paths = append(paths, path)
	}
	man.mu.Unlock()
	sort.Strings(paths)

	var failed []string
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			failed = append(failed, path)
			continue
		}
		man.mu.Lock()
		delete(man.cachedFiles, path)
		man.mu.Unlock()
	}
	return failed
}

// GetResourceFilename extracts the resource (or, for a directory, the whole subtree) in to
// the manager's cache if it isn't current there already, and returns the cache path.
func (p *ZipProvider) GetResourceFilename(man *ResourceManager, name string) (string, error) {
	if man == nil {
		return "", fmt.Errorf("resource %q is in a zip archive and no ResourceManager was given to extract it with", name)
	}
	zipName, err := p.resourceName(name)
	if err != nil {
		return "", err
	}
	manifest, err := p.manifest()
	if err != nil {
		return "", err
	}
	switch {
	case zipHasFile(manifest, zipName):
		return p.extractFile(man, manifest, zipName)
	case zipHasDir(manifest, zipName):
		return p.extractDir(man, manifest, zipName)
	default:
		return "", fmt.Errorf("%q: no such resource %q", p.archive, name)
	}
}

func (p *ZipProvider) extractDir(man *ResourceManager, manifest ZipManifest, zipName string) (string, error) {
	dirPath, err := man.CachePath(filepath.Base(p.archive), strings.Split(zipName, "/")...)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dirPath, 0o755); err != nil {
		return "", man.extractionError(dirPath, err)
	}
	for _, child := range zipListDir(manifest, zipName) {
		childName := zipName + "/" + child
		if zipHasFile(manifest, childName) {
			if _, err := p.extractFile(man, manifest, childName); err != nil {
				return "", err
			}
		} else {
			if _, err := p.extractDir(man, manifest, childName); err != nil {
				return "", err
			}
		}
	}
	return dirPath, nil
}

func (p *ZipProvider) extractFile(man *ResourceManager, manifest ZipManifest, zipName string) (string, error) {
	hdr := manifest[zipName]
	realPath, err := man.CachePath(filepath.Base(p.archive), strings.Split(zipName, "/")...)
	if err != nil {
		return "", err
	}
	if p.isCurrent(realPath, hdr, zipName) {
		return realPath, nil
	}

	content, err := readZipEntry(p.archive, hdr.Name)
	if err != nil {
		return "", man.extractionError(realPath, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(realPath), ".extract-*")
	if err != nil {
		return "", man.extractionError(realPath, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", man.extractionError(realPath, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", man.extractionError(realPath, err)
	}
	// Stamp the zip entry's own timestamp on the file; it is what isCurrent checks.
	if err := os.Chtimes(tmpName, hdr.Modified, hdr.Modified); err != nil {
		_ = os.Remove(tmpName)
		return "", man.extractionError(realPath, err)
	}
	if err := man.postprocess(tmpName, zipEntryMode(hdr)); err != nil {
		_ = os.Remove(tmpName)
		return "", man.extractionError(realPath, err)
	}

	if err := os.Rename(tmpName, realPath); err != nil {
		if p.isCurrent(realPath, hdr, zipName) {
			// someone else beat us to it
			_ = os.Remove(tmpName)
			return realPath, nil
		}
		if runtime.GOOS == "windows" {
			// Windows won't rename over an open file; replace it in two steps.
			if rmErr := os.Remove(realPath); rmErr == nil {
				if err := os.Rename(tmpName, realPath); err == nil {
					return realPath, nil
				}
			}
		}
		_ = os.Remove(tmpName)
		return "", man.extractionError(realPath, err)
	}
	return realPath, nil
}

// isCurrent reports whether the cached copy still matches the zip entry, by size, by the
// timestamp stamped at extraction time, and finally by content.
func (p *ZipProvider) isCurrent(realPath string, hdr zip.FileHeader, zipName string) bool {
	fi, err := os.Stat(realPath)
	if err != nil || !fi.Mode().IsRegular() {
		return false
	}
	if fi.Size() != int64(hdr.UncompressedSize64) {
		return false
	}
	if fi.ModTime().Unix() != hdr.Modified.Unix() {
		return false
	}
	fileContent, err := os.ReadFile(realPath)
	if err != nil {
		return false
	}
	zipContent, err := readZipEntry(p.archive, hdr.Name)
	if err != nil {
		return false
	}
	return bytes.Equal(fileContent, zipContent)
}

// zipEntryMode recovers the UNIX permission bits that the zip format squirrels away in the
// entry's external attributes; entries written by non-UNIX tools carry none, so fall back to
// a plain 0644.
func zipEntryMode(hdr zip.FileHeader) fs.FileMode {
	mode := python.ParseZIPExternalAttributes(hdr.ExternalAttrs).UNIX.ToGo().Perm()
	if mode == 0 {
		mode = 0o644
	}
	return mode
}
