// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pkg_resources

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// A Provider serves a distribution's data files ("resources") and its metadata files.  The
// two namespaces are separate: resource names resolve under the importable package root,
// metadata names under the `.dist-info`/`.egg-info`/`EGG-INFO` directory.
//
// All names are relative slash-separated paths.  Names that are absolute, contain
// backslashes, or traverse upward with ".." are rejected with an error by every method.
type Provider interface {
	HasMetadata(name string) (bool, error)
	GetMetadata(name string) (string, error)
	GetMetadataLines(name string) ([]string, error)
	MetadataIsDir(name string) (bool, error)
	MetadataListDir(name string) ([]string, error)

	HasResource(name string) (bool, error)
	GetResourceBytes(name string) ([]byte, error)
	GetResourceStream(name string) (io.ReadCloser, error)
	// GetResourceFilename returns a true filesystem path for the resource, extracting it
	// in to the manager's cache if it does not natively live on the filesystem.
	GetResourceFilename(man *ResourceManager, name string) (string, error)
	ResourceIsDir(name string) (bool, error)
	ResourceListDir(name string) ([]string, error)
}

func validateResourcePath(name string) error {
	if strings.ContainsRune(name, '\\') {
		return fmt.Errorf("resource path %q contains a backslash", name)
	}
	if strings.HasPrefix(name, "/") || filepath.IsAbs(name) {
		return fmt.Errorf("resource path %q is absolute", name)
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return fmt.Errorf("resource path %q traverses upward", name)
		}
	}
	return nil
}

// An EncodingError means a metadata file is not valid UTF-8.  Unreadable metadata is
// routinely treated as absent by callers, but silently mis-decoded metadata would corrupt
// requirements, so this one failure mode stays loud and keeps its own type.
type EncodingError struct {
	Path string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("%q is not UTF-8 encoded", e.Path)
}

func decodeMetadata(content []byte, path string) (string, error) {
	if !utf8.Valid(content) {
		return "", &EncodingError{Path: path}
	}
	return string(content), nil
}

// yieldLines mimics pkg_resources' yield_lines: non-blank, non-comment lines, stripped.
func yieldLines(text string) []string {
	var ret []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ret = append(ret, line)
	}
	return ret
}

// DefaultProvider serves a distribution that lives unpacked on the filesystem; ModulePath is
// the directory that resources resolve under and EggInfo is the metadata directory (empty for
// a distribution with no metadata directory).
type DefaultProvider struct {
	ModulePath string
	EggInfo    string
}

var _ Provider = (*DefaultProvider)(nil)

func NewDefaultProvider(modulePath, eggInfo string) *DefaultProvider {
	return &DefaultProvider{
		ModulePath: modulePath,
		EggInfo:    eggInfo,
	}
}

func (p *DefaultProvider) metadataPath(name string) (string, error) {
	if err := validateResourcePath(name); err != nil {
		return "", err
	}
	if p.EggInfo == "" {
		return "", nil
	}
	return filepath.Join(p.EggInfo, filepath.FromSlash(name)), nil
}

func (p *DefaultProvider) resourcePath(name string) (string, error) {
	if err := validateResourcePath(name); err != nil {
		return "", err
	}
	return filepath.Join(p.ModulePath, filepath.FromSlash(name)), nil
}

func (p *DefaultProvider) HasMetadata(name string) (bool, error) {
	fullpath, err := p.metadataPath(name)
	if err != nil || fullpath == "" {
		return false, err
	}
	_, statErr := os.Stat(fullpath)
	return statErr == nil, nil
}

func (p *DefaultProvider) GetMetadata(name string) (string, error) {
	fullpath, err := p.metadataPath(name)
	if err != nil {
		return "", err
	}
	if fullpath == "" {
		return "", fmt.Errorf("no metadata directory to read %q from", name)
	}
	content, err := os.ReadFile(fullpath)
	if err != nil {
		return "", err
	}
	return decodeMetadata(content, fullpath)
}

func (p *DefaultProvider) GetMetadataLines(name string) ([]string, error) {
	content, err := p.GetMetadata(name)
	if err != nil {
		return nil, err
	}
	return yieldLines(content), nil
}

func (p *DefaultProvider) MetadataIsDir(name string) (bool, error) {
	fullpath, err := p.metadataPath(name)
	if err != nil || fullpath == "" {
		return false, err
	}
	fi, statErr := os.Stat(fullpath)
	return statErr == nil && fi.IsDir(), nil
}

func (p *DefaultProvider) MetadataListDir(name string) ([]string, error) {
	fullpath, err := p.metadataPath(name)
	if err != nil || fullpath == "" {
		return nil, err
	}
	return listDirNames(fullpath), nil
}

func (p *DefaultProvider) HasResource(name string) (bool, error) {
	fullpath, err := p.resourcePath(name)
	if err != nil {
		return false, err
	}
	_, statErr := os.Stat(fullpath)
	return statErr == nil, nil
}

func (p *DefaultProvider) GetResourceBytes(name string) ([]byte, error) {
	fullpath, err := p.resourcePath(name)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(fullpath)
}

func (p *DefaultProvider) GetResourceStream(name string) (io.ReadCloser, error) {
	fullpath, err := p.resourcePath(name)
	if err != nil {
		return nil, err
	}
	return os.Open(fullpath)
}

func (p *DefaultProvider) GetResourceFilename(_ *ResourceManager, name string) (string, error) {
	// already on the filesystem, nothing to extract
	return p.resourcePath(name)
}

func (p *DefaultProvider) ResourceIsDir(name string) (bool, error) {
	fullpath, err := p.resourcePath(name)
	if err != nil {
		return false, err
	}
	fi, statErr := os.Stat(fullpath)
	return statErr == nil && fi.IsDir(), nil
}

func (p *DefaultProvider) ResourceListDir(name string) ([]string, error) {
	fullpath, err := p.resourcePath(name)
	if err != nil {
		return nil, err
	}
	return listDirNames(fullpath), nil
}

func listDirNames(dirpath string) []string {
	ents, err := os.ReadDir(dirpath)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(ents))
	for _, ent := range ents {
		names = append(names, ent.Name())
	}
	return names
}

// EmptyProvider serves a distribution with no files at all; it backs distributions that are
// known only by name and version.
type EmptyProvider struct{}

var _ Provider = EmptyProvider{}

func (EmptyProvider) HasMetadata(name string) (bool, error) {
	return false, validateResourcePath(name)
}

func (EmptyProvider) GetMetadata(name string) (string, error) {
	if err := validateResourcePath(name); err != nil {
		return "", err
	}
	return "", nil
}

func (EmptyProvider) GetMetadataLines(name string) ([]string, error) {
	return nil, validateResourcePath(name)
}

func (EmptyProvider) MetadataIsDir(name string) (bool, error) {
	return false, validateResourcePath(name)
}

func (EmptyProvider) MetadataListDir(name string) ([]string, error) {
	return nil, validateResourcePath(name)
}

func (EmptyProvider) HasResource(name string) (bool, error) {
	return false, validateResourcePath(name)
}

func (EmptyProvider) GetResourceBytes(name string) ([]byte, error) {
	if err := validateResourcePath(name); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("empty provider has no resource %q", name)
}

func (EmptyProvider) GetResourceStream(name string) (io.ReadCloser, error) {
	if err := validateResourcePath(name); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("empty provider has no resource %q", name)
}

func (EmptyProvider) GetResourceFilename(_ *ResourceManager, name string) (string, error) {
	if err := validateResourcePath(name); err != nil {
		return "", err
	}
	return "", fmt.Errorf("empty provider has no file system path for %q", name)
}

func (EmptyProvider) ResourceIsDir(name string) (bool, error) {
	return false, validateResourcePath(name)
}

func (EmptyProvider) ResourceListDir(name string) ([]string, error) {
	return nil, validateResourcePath(name)
}

// FileMetadata serves metadata from one standalone file, presented under the name
// "PKG-INFO"; it backs bare `.egg-info` files and `.egg-link` targets.  It serves no
// resources.
type FileMetadata struct {
	EmptyProvider
	Path string
}

var _ Provider = FileMetadata{}

func NewFileMetadata(path string) FileMetadata {
	return FileMetadata{Path: path}
}

func (p FileMetadata) HasMetadata(name string) (bool, error) {
	if err := validateResourcePath(name); err != nil {
		return false, err
	}
	if name != "PKG-INFO" {
		return false, nil
	}
	_, statErr := os.Stat(p.Path)
	return statErr == nil, nil
}

func (p FileMetadata) GetMetadata(name string) (string, error) {
	if err := validateResourcePath(name); err != nil {
		return "", err
	}
	if name != "PKG-INFO" {
		return "", fmt.Errorf("no metadata except PKG-INFO is available, not %q", name)
	}
	content, err := os.ReadFile(p.Path)
	if err != nil {
		return "", err
	}
	return decodeMetadata(content, p.Path)
}

func (p FileMetadata) GetMetadataLines(name string) ([]string, error) {
	content, err := p.GetMetadata(name)
	if err != nil {
		return nil, err
	}
	return yieldLines(content), nil
}

// ZipProvider serves a distribution that lives inside a zip archive (a zipped egg, or a
// `.dist-info` inside a zip on the search path) without unpacking it; resources that callers
// need real filesystem paths for get extracted through a ResourceManager.
type ZipProvider struct {
	zips    *ZipManifests
	archive string
	// prefix is the slash path inside the archive that resources resolve under; "" is the
	// archive root.
	prefix string
	// metadataDir is the slash path inside the archive that metadata resolves under.
	metadataDir string
}

var _ Provider = (*ZipProvider)(nil)

func NewZipProvider(zips *ZipManifests, archive, prefix, metadataDir string) *ZipProvider {
	return &ZipProvider{
		zips:        zips,
		archive:     archive,
		prefix:      prefix,
		metadataDir: metadataDir,
	}
}

func (p *ZipProvider) manifest() (ZipManifest, error) {
	return p.zips.Load(p.archive)
}

func (p *ZipProvider) metadataName(name string) (string, error) {
	if err := validateResourcePath(name); err != nil {
		return "", err
	}
	if p.metadataDir == "" {
		return "", nil
	}
	return path.Join(p.metadataDir, name), nil
}

func (p *ZipProvider) resourceName(name string) (string, error) {
	if err := validateResourcePath(name); err != nil {
		return "", err
	}
	if p.prefix == "" {
		return path.Clean(name), nil
	}
	return path.Join(p.prefix, name), nil
}

func zipHasFile(manifest ZipManifest, name string) bool {
	hdr, ok := manifest[name]
	return ok && !hdr.FileInfo().IsDir()
}

func zipHasDir(manifest ZipManifest, name string) bool {
	if name == "" || name == "." {
		return true
	}
	if hdr, ok := manifest[name]; ok && hdr.FileInfo().IsDir() {
		return true
	}
	childPrefix := name + "/"
	for entName := range manifest {
		if strings.HasPrefix(entName, childPrefix) {
			return true
		}
	}
	return false
}

func (p *ZipProvider) HasMetadata(name string) (bool, error) {
	zipName, err := p.metadataName(name)
	if err != nil || zipName == "" {
		return false, err
	}
	manifest, err := p.manifest()
	if err != nil {
		return false, err
	}
	return zipHasFile(manifest, zipName) || zipHasDir(manifest, zipName), nil
}

func (p *ZipProvider) GetMetadata(name string) (string, error) {
	zipName, err := p.metadataName(name)
	if err != nil {
		return "", err
	}
	if zipName == "" {
		return "", fmt.Errorf("no metadata directory to read %q from", name)
	}
	content, err := readZipEntry(p.archive, zipName)
	if err != nil {
		return "", err
	}
	return decodeMetadata(content, p.archive+"/"+zipName)
}

func (p *ZipProvider) GetMetadataLines(name string) ([]string, error) {
	content, err := p.GetMetadata(name)
	if err != nil {
		return nil, err
	}
	return yieldLines(content), nil
}

func (p *ZipProvider) MetadataIsDir(name string) (bool, error) {
	zipName, err := p.metadataName(name)
	if err != nil || zipName == "" {
		return false, err
	}
	manifest, err := p.manifest()
	if err != nil {
		return false, err
	}
	return !zipHasFile(manifest, zipName) && zipHasDir(manifest, zipName), nil
}

func (p *ZipProvider) MetadataListDir(name string) ([]string, error) {
	zipName, err := p.metadataName(name)
	if err != nil || zipName == "" {
		return nil, err
	}
	manifest, err := p.manifest()
	if err != nil {
		return nil, err
	}
	return zipListDir(manifest, zipName), nil
}

func (p *ZipProvider) HasResource(name string) (bool, error) {
	zipName, err := p.resourceName(name)
	if err != nil {
		return false, err
	}
	manifest, err := p.manifest()
	if err != nil {
		return false, err
	}
	return zipHasFile(manifest, zipName) || zipHasDir(manifest, zipName), nil
}

func (p *ZipProvider) GetResourceBytes(name string) ([]byte, error) {
	zipName, err := p.resourceName(name)
	if err != nil {
		return nil, err
	}
	return readZipEntry(p.archive, zipName)
}

func (p *ZipProvider) GetResourceStream(name string) (io.ReadCloser, error) {
	content, err := p.GetResourceBytes(name)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(strings.NewReader(string(content))), nil
}

func (p *ZipProvider) ResourceIsDir(name string) (bool, error) {
	zipName, err := p.resourceName(name)
	if err != nil {
		return false, err
	}
	manifest, err := p.manifest()
	if err != nil {
		return false, err
	}
	return !zipHasFile(manifest, zipName) && zipHasDir(manifest, zipName), nil
}

func (p *ZipProvider) ResourceListDir(name string) ([]string, error) {
	zipName, err := p.resourceName(name)
	if err != nil {
		return nil, err
	}
	manifest, err := p.manifest()
	if err != nil {
		return nil, err
	}
	return zipListDir(manifest, zipName), nil
}

func zipListDir(manifest ZipManifest, dirName string) []string {
	prefix := ""
	if dirName != "" && dirName != "." {
		prefix = dirName + "/"
	}
	seen := make(map[string]struct{})
	var names []string
	for entName := range manifest {
		if !strings.HasPrefix(entName, prefix) || entName == dirName {
			continue
		}
		rest := entName[len(prefix):]
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			rest = rest[:i]
		}
		if rest == "" {
			continue
		}
		if _, dup := seen[rest]; !dup {
			seen[rest] = struct{}{}
			names = append(names, rest)
		}
	}
	return names
}
