// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pkg_resources

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/datawire/pydist/pkg/python/pep345"
	"github.com/datawire/pydist/pkg/python/pep376"
	"github.com/datawire/pydist/pkg/python/pep440"
	"github.com/datawire/pydist/pkg/python/pep503"
	"github.com/datawire/pydist/pkg/python/pep508"
	"github.com/datawire/pydist/pkg/python/pypa/direct_url"
	"github.com/datawire/pydist/pkg/python/pypa/entry_points"
)

// A DistKind says which metadata dialect a distribution's files speak; there are exactly two.
type DistKind int

const (
	// KindEggInfo is the setuptools legacy layout: PKG-INFO plus requires.txt.
	KindEggInfo DistKind = iota
	// KindDistInfo is the modern wheel layout: METADATA with Requires-Dist headers.
	KindDistInfo
)

func (kind DistKind) String() string {
	switch kind {
	case KindDistInfo:
		return "dist-info"
	default:
		return "egg-info"
	}
}

// metadataFileName is the file that carries the core name/version metadata for this dialect.
func (kind DistKind) metadataFileName() string {
	switch kind {
	case KindDistInfo:
		return "METADATA"
	default:
		return "PKG-INFO"
	}
}

// Precedence ranks how "built" a distribution is; between two same-version candidates the
// more-built one wins.
type Precedence int

const (
	DevelopDist  Precedence = -1 // an editable checkout on the path
	CheckoutDist Precedence = 0  // a plain source checkout
	SourceDist   Precedence = 1  // an sdist
	BinaryDist   Precedence = 2  // a built distribution other than an egg
	EggDist      Precedence = 3  // an egg
)

func (p Precedence) String() string {
	switch p {
	case DevelopDist:
		return "develop"
	case CheckoutDist:
		return "checkout"
	case SourceDist:
		return "source"
	case BinaryDist:
		return "binary"
	case EggDist:
		return "egg"
	default:
		return fmt.Sprintf("Precedence(%d)", int(p))
	}
}

// pyMajorDefault stands in for the version of the interpreter we are inspecting on behalf
// of, when nobody said which one that is.
const pyMajorDefault = "3"

// A DistributionSpec is the construction-time description of a Distribution; zero fields take
// defaults (EmptyProvider for Metadata, "Unknown" for ProjectName, lazy metadata lookup for
// Version).
type DistributionSpec struct {
	Kind        DistKind
	Location    string
	Metadata    Provider
	ProjectName string
	Version     string
	PyVersion   string
	Platform    string
	Precedence  Precedence

	// MarkerEnv is the PEP 508 environment that dependency markers evaluate against when
	// computing the dependency map.  With a nil or partial environment, markers that
	// cannot be decided are kept, still attached to their requirement, for the resolver
	// to decide later with whatever environment it has.
	MarkerEnv map[string]string
}

// A Distribution is one discovered installed distribution: identity, location, and lazy
// access to its metadata through a Provider.
//
// The memoized fields are computed on first use and are plain fields; a Distribution is not
// safe for unsynchronized concurrent use.
type Distribution struct {
	kind        DistKind
	location    string
	provider    Provider
	projectName string
	pyVersion   string
	platform    string
	precedence  Precedence
	markerEnv   map[string]string

	key      string
	version  string
	coreMD   *pep345.Metadata
	coreMDOK bool
	depMap   map[string][]pep508.Requirement
	extras   []string
	entryMap map[string][]entry_points.EntryPoint
}

func NewDistribution(spec DistributionSpec) *Distribution {
	if spec.Metadata == nil {
		spec.Metadata = EmptyProvider{}
	}
	if spec.ProjectName == "" {
		spec.ProjectName = "Unknown"
	}
	return &Distribution{
		kind:        spec.Kind,
		location:    spec.Location,
		provider:    spec.Metadata,
		projectName: spec.ProjectName,
		pyVersion:   spec.PyVersion,
		platform:    spec.Platform,
		precedence:  spec.Precedence,
		markerEnv:   spec.MarkerEnv,
		version:     spec.Version,
	}
}

// eggNameParts picks the identity fields out of an egg filename stem like
// "Name-1.0-py3.10-linux-x86_64" (everything after the name is optional).
func eggNameParts(basename string) (name, ver, pyver, plat string) {
	fields := strings.SplitN(basename, "-", 4)
	name = fields[0]
	if len(fields) > 1 {
		ver = fields[1]
	}
	if len(fields) > 2 && strings.HasPrefix(strings.ToLower(fields[2]), "py") {
		pyver = fields[2][2:]
		if len(fields) > 3 {
			plat = fields[3]
		}
	}
	return
}

// NewDistributionFromLocation builds a Distribution for the thing at location, pulling as
// much identity as possible out of basename (a ".egg"/".egg-info"/".dist-info" filename).
func NewDistributionFromLocation(location, basename string, metadata Provider, precedence Precedence) *Distribution {
	spec := DistributionSpec{
		Location:   location,
		Metadata:   metadata,
		Precedence: precedence,
	}
	ext := strings.ToLower(filepath.Ext(basename))
	stem := strings.TrimSuffix(basename, filepath.Ext(basename))
	switch ext {
	case ".dist-info":
		spec.Kind = KindDistInfo
		name, ver, _, _ := eggNameParts(stem)
		spec.ProjectName, spec.Version = name, ver
	case ".egg-info":
		spec.Kind = KindEggInfo
		name, ver, _, _ := eggNameParts(stem)
		spec.ProjectName, spec.Version = name, ver
	case ".egg":
		spec.Kind = KindEggInfo
		spec.ProjectName, spec.Version, spec.PyVersion, spec.Platform = eggNameParts(stem)
	default:
		spec.Kind = KindEggInfo
		name, ver, _, _ := eggNameParts(basename)
		spec.ProjectName, spec.Version = name, ver
	}
	return NewDistribution(spec)
}

// Clone returns a copy built from this distribution's construction parameters, with mutate
// applied to them first.
func (dist *Distribution) Clone(mutate func(*DistributionSpec)) *Distribution {
	spec := DistributionSpec{
		Kind:        dist.kind,
		Location:    dist.location,
		Metadata:    dist.provider,
		ProjectName: dist.projectName,
		Version:     dist.version,
		PyVersion:   dist.pyVersion,
		Platform:    dist.platform,
		Precedence:  dist.precedence,
		MarkerEnv:   dist.markerEnv,
	}
	if mutate != nil {
		mutate(&spec)
	}
	return NewDistribution(spec)
}

func (dist *Distribution) Kind() DistKind         { return dist.kind }
func (dist *Distribution) Location() string       { return dist.location }
func (dist *Distribution) ProjectName() string    { return dist.projectName }
func (dist *Distribution) PyVersion() string      { return dist.pyVersion }
func (dist *Distribution) Platform() string       { return dist.platform }
func (dist *Distribution) Precedence() Precedence { return dist.precedence }
func (dist *Distribution) Metadata() Provider     { return dist.provider }

// Key returns the lowercased project name; the identity that working sets and environments
// index by.
func (dist *Distribution) Key() string {
	if dist.key == "" {
		dist.key = strings.ToLower(dist.projectName)
	}
	return dist.key
}

func (dist *Distribution) String() string {
	ver, err := dist.Version()
	if err != nil {
		return dist.projectName
	}
	return dist.projectName + " " + ver
}

// metadataText reads one metadata file as text.  A file that is missing or unreadable reads
// as empty; only a non-UTF-8 file is an error, because feeding mis-decoded text onward would
// silently corrupt requirements.
func (dist *Distribution) metadataText(name string) (string, error) {
	has, err := dist.provider.HasMetadata(name)
	if err != nil || !has {
		return "", err
	}
	content, err := dist.provider.GetMetadata(name)
	if err != nil {
		var encErr *EncodingError
		if errors.As(err, &encErr) {
			return "", err
		}
		return "", nil
	}
	return content, nil
}

// HasMetadata, GetMetadata, GetMetadataLines, MetadataIsDir, and MetadataListDir forward to
// the distribution's Provider.
func (dist *Distribution) HasMetadata(name string) (bool, error) {
	return dist.provider.HasMetadata(name)
}
func (dist *Distribution) GetMetadata(name string) (string, error) {
	return dist.provider.GetMetadata(name)
}
func (dist *Distribution) GetMetadataLines(name string) ([]string, error) {
	return dist.provider.GetMetadataLines(name)
}
func (dist *Distribution) MetadataIsDir(name string) (bool, error) {
	return dist.provider.MetadataIsDir(name)
}
func (dist *Distribution) MetadataListDir(name string) ([]string, error) {
	return dist.provider.MetadataListDir(name)
}

// CoreMetadata returns the parsed METADATA/PKG-INFO file, or nil if the distribution doesn't
// have one.
func (dist *Distribution) CoreMetadata() (*pep345.Metadata, error) {
	if dist.coreMDOK {
		return dist.coreMD, nil
	}
	text, err := dist.metadataText(dist.kind.metadataFileName())
	if err != nil {
		return nil, err
	}
	if text != "" {
		md, err := pep345.ParseMetadata([]byte(text))
		if err != nil {
			return nil, fmt.Errorf("%s: %s: %w", dist.location, dist.kind.metadataFileName(), err)
		}
		dist.coreMD = md
	}
	dist.coreMDOK = true
	return dist.coreMD, nil
}

// HasVersion reports whether the version is known, from the filename or from metadata.
func (dist *Distribution) HasVersion() bool {
	_, err := dist.Version()
	return err == nil
}

// Version returns the version string, from the construction parameters if it was given there
// and from the core metadata file otherwise.
func (dist *Distribution) Version() (string, error) {
	if dist.version != "" {
		return dist.version, nil
	}
	md, err := dist.CoreMetadata()
	if err != nil {
		return "", err
	}
	if md != nil {
		if ver := md.Version(); ver != "" {
			dist.version = ver
			return ver, nil
		}
	}
	return "", fmt.Errorf("missing \"Version:\" header and/or %s file for %s at %q",
		dist.kind.metadataFileName(), dist.projectName, dist.location)
}

// ParsedVersion returns the version parsed forgivingly; non-PEP 440 versions still get a
// well-defined (if low-sorting) order.
func (dist *Distribution) ParsedVersion() (pep440.Version, error) {
	ver, err := dist.Version()
	if err != nil {
		return pep440.Version{}, err
	}
	return *pep440.ParseForgivingVersion(ver), nil
}

// cmpVersion is ParsedVersion for ordering purposes; a version-less distribution sorts as
// the forgiving floor rather than erroring.
func (dist *Distribution) cmpVersion() pep440.Version {
	ver, err := dist.ParsedVersion()
	if err != nil {
		return *pep440.ParseForgivingVersion("")
	}
	return ver
}

// Cmp orders distributions by (version, precedence, key, location, py_version, platform),
// ascending; sort descending to put the preferred candidate first.
func (a *Distribution) Cmp(b *Distribution) int {
	if d := a.cmpVersion().Cmp(b.cmpVersion()); d != 0 {
		return d
	}
	if a.precedence != b.precedence {
		if a.precedence < b.precedence {
			return -1
		}
		return 1
	}
	for _, pair := range [][2]string{
		{a.Key(), b.Key()},
		{a.location, b.location},
		{a.pyVersion, b.pyVersion},
		{a.platform, b.platform},
	} {
		if d := strings.Compare(pair[0], pair[1]); d != 0 {
			return d
		}
	}
	return 0
}

// Satisfies reports whether this distribution satisfies the requirement: same key, and the
// version is inside the requirement's specifier.  Pre-releases count; if one is what's
// installed, it is what you have.
func (dist *Distribution) Satisfies(req pep508.Requirement) bool {
	if dist.Key() != req.Key() {
		return false
	}
	if len(req.Specifier) == 0 {
		return true
	}
	ver, err := dist.ParsedVersion()
	if err != nil {
		return false
	}
	return req.Specifier.Match(ver)
}

// AsRequirement returns the requirement "name==version" that exactly this distribution
// satisfies.
func (dist *Distribution) AsRequirement() (pep508.Requirement, error) {
	ver, err := dist.ParsedVersion()
	if err != nil {
		return pep508.Requirement{}, err
	}
	req, err := pep508.ParseRequirement(dist.projectName + "==" + ver.String())
	if err != nil {
		return pep508.Requirement{}, err
	}
	return *req, nil
}

// EggName returns the filename stem that an egg of this distribution would have.
func (dist *Distribution) EggName() string {
	ver, err := dist.Version()
	if err != nil {
		ver = "0"
	}
	py := dist.pyVersion
	if py == "" {
		py = pyMajorDefault
	}
	name := pep503.ToFilename(pep503.SafeName(dist.projectName)) + "-" + pep503.ToFilename(ver) + "-py" + py
	if dist.platform != "" {
		name += "-" + dist.platform
	}
	return name
}

// requirement sources, in the order they are consulted
var requiresFiles = []string{"requires.txt", "depends.txt"}

// depMapOnce computes (once) the map from safe extra name to the requirements that extra
// adds; key "" is the unconditional base set.
func (dist *Distribution) depMapOnce() (map[string][]pep508.Requirement, error) {
	if dist.depMap != nil {
		return dist.depMap, nil
	}

	var reqs []pep508.Requirement
	var declaredExtras []string
	switch dist.kind {
	case KindDistInfo:
		md, err := dist.CoreMetadata()
		if err != nil {
			return nil, err
		}
		if md != nil {
			for _, line := range md.RequiresDist() {
				req, err := pep508.ParseRequirement(line)
				if err != nil {
					return nil, fmt.Errorf("%s: METADATA: %w", dist.location, err)
				}
				reqs = append(reqs, *req)
			}
			declaredExtras = md.ProvidesExtra()
		}
	default:
		for _, file := range requiresFiles {
			text, err := dist.metadataText(file)
			if err != nil {
				return nil, err
			}
			if text == "" {
				continue
			}
			sections, err := splitSections(text)
			if err != nil {
				return nil, fmt.Errorf("%s: %s: %w", dist.location, file, err)
			}
			for _, sect := range sections {
				if extra, _, _ := strings.Cut(sect.name, ":"); extra != "" {
					declaredExtras = append(declaredExtras, extra)
				}
			}
			lines := convertEggInfoReqs(sections)
			parsed, err := pep508.ParseRequirements(strings.Join(lines, "\n"))
			if err != nil {
				return nil, fmt.Errorf("%s: %s: %w", dist.location, file, err)
			}
			reqs = append(reqs, parsed...)
		}
	}

	dm := map[string][]pep508.Requirement{
		"": nil,
	}
	inBase := make(map[string]struct{})
	for _, req := range reqs {
		if dist.markerAllows(req, "") {
			dm[""] = append(dm[""], req)
			inBase[req.HashKey()] = struct{}{}
		}
	}
	dist.extras = nil
	for _, extra := range declaredExtras {
		safe := pep503.SafeExtra(strings.TrimSpace(extra))
		if _, dup := dm[safe]; dup {
			continue
		}
		dm[safe] = nil
		dist.extras = append(dist.extras, safe)
		for _, req := range reqs {
			if _, dup := inBase[req.HashKey()]; dup {
				continue
			}
			if dist.markerAllows(req, extra) {
				dm[safe] = append(dm[safe], req)
			}
		}
	}
	sort.Strings(dist.extras)

	dist.depMap = dm
	return dm, nil
}

// markerAllows evaluates the requirement's marker with the given extra active.  A marker
// that cannot be decided (our marker environment is missing a variable it needs) keeps the
// requirement; the marker stays attached for the resolver to re-judge with its environment.
func (dist *Distribution) markerAllows(req pep508.Requirement, extra string) bool {
	if req.Marker == nil {
		return true
	}
	ok, err := req.Marker.Evaluate(pep508.WithExtra(dist.markerEnv, extra))
	if err != nil {
		return true
	}
	return ok
}

// Extras returns the distribution's declared extras, safe-normalized and sorted.
func (dist *Distribution) Extras() ([]string, error) {
	if _, err := dist.depMapOnce(); err != nil {
		return nil, err
	}
	return append([]string(nil), dist.extras...), nil
}

// Requires returns the distribution's dependencies, plus those added by the named extras.
func (dist *Distribution) Requires(extras ...string) ([]pep508.Requirement, error) {
	dm, err := dist.depMapOnce()
	if err != nil {
		return nil, err
	}
	deps := append([]pep508.Requirement(nil), dm[""]...)
	for _, extra := range extras {
		sub, ok := dm[pep503.SafeExtra(strings.TrimSpace(extra))]
		if !ok {
			return nil, &UnknownExtraError{Dist: dist, Extra: extra}
		}
		deps = append(deps, sub...)
	}
	return deps, nil
}

// EntryPointsMap returns the distribution's entry points, parsed from entry_points.txt,
// grouped by group name.
func (dist *Distribution) EntryPointsMap() (map[string][]entry_points.EntryPoint, error) {
	if dist.entryMap != nil {
		return dist.entryMap, nil
	}
	text, err := dist.metadataText("entry_points.txt")
	if err != nil {
		return nil, err
	}
	if text == "" {
		dist.entryMap = make(map[string][]entry_points.EntryPoint)
		return dist.entryMap, nil
	}
	eps, err := entry_points.ParseFile([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("%s: entry_points.txt: %w", dist.location, err)
	}
	dist.entryMap = eps
	return eps, nil
}

// EntryPointsGroup returns one group's entry points, sorted by name; an unknown group is
// just empty.
func (dist *Distribution) EntryPointsGroup(group string) ([]entry_points.EntryPoint, error) {
	eps, err := dist.EntryPointsMap()
	if err != nil {
		return nil, err
	}
	return append([]entry_points.EntryPoint(nil), eps[group]...), nil
}

// EntryPoint returns the named entry point, or nil if the distribution doesn't have it.
func (dist *Distribution) EntryPoint(group, name string) (*entry_points.EntryPoint, error) {
	eps, err := dist.EntryPointsMap()
	if err != nil {
		return nil, err
	}
	for _, ep := range eps[group] {
		if ep.Name() == name {
			ep := ep
			return &ep, nil
		}
	}
	return nil, nil
}

// Files returns the distribution's installed-file list: RECORD for wheels, falling back to
// the setuptools-era installed-files.txt and SOURCES.txt lists.
func (dist *Distribution) Files() ([]pep376.RecordEntry, error) {
	if text, err := dist.metadataText("RECORD"); err != nil {
		return nil, err
	} else if text != "" {
		ents, err := pep376.ParseRecord([]byte(text))
		if err != nil {
			return nil, fmt.Errorf("%s: RECORD: %w", dist.location, err)
		}
		return ents, nil
	}
	for _, file := range []string{"installed-files.txt", "SOURCES.txt"} {
		if text, err := dist.metadataText(file); err != nil {
			return nil, err
		} else if text != "" {
			return pep376.ParseFileList([]byte(text)), nil
		}
	}
	return nil, nil
}

// DirectURL returns the recorded direct-URL origin (PEP 610), or nil if the distribution
// wasn't installed from one.
func (dist *Distribution) DirectURL() (*direct_url.DirectURL, error) {
	text, err := dist.metadataText("direct_url.json")
	if err != nil || text == "" {
		return nil, err
	}
	du, err := direct_url.Parse([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", dist.location, err)
	}
	return du, nil
}

// TopLevel returns the distribution's importable top-level names, if it recorded them.
func (dist *Distribution) TopLevel() ([]string, error) {
	text, err := dist.metadataText("top_level.txt")
	if err != nil {
		return nil, err
	}
	return yieldLines(text), nil
}

// InsertOn splices the distribution's location in to a module search path and returns the
// result: eggs go in front of their parent directory, everything else goes at the end (the
// front, with replace), and later duplicates of the location are dropped.
func (dist *Distribution) InsertOn(searchPath []string, loc string, replace bool) []string {
	if loc == "" {
		loc = dist.location
	}
	if loc == "" {
		return searchPath
	}
	nloc := normalizePath(loc)
	bdir := filepath.Dir(nloc)
	npath := make([]string, len(searchPath))
	for i, p := range searchPath {
		if p != "" {
			npath[i] = normalizePath(p)
		}
	}

	at := -1
	for i := range npath {
		if npath[i] == nloc {
			if !replace {
				return searchPath
			}
			at = i
			break
		}
		if npath[i] == bdir && dist.precedence == EggDist {
			// the egg outranks the directory it lives in
			searchPath = append(searchPath[:i:i], append([]string{loc}, searchPath[i:]...)...)
			npath = append(npath[:i:i], append([]string{nloc}, npath[i:]...)...)
			at = i
			break
		}
	}
	if at < 0 {
		if replace {
			return append([]string{loc}, searchPath...)
		}
		return append(searchPath[:len(searchPath):len(searchPath)], loc)
	}

	// drop any copies of loc after the one at `at`
	out := append([]string(nil), searchPath[:at+1]...)
	for i := at + 1; i < len(searchPath); i++ {
		if npath[i] != nloc {
			out = append(out, searchPath[i])
		}
	}
	return out
}

func normalizePath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		p = resolved
	}
	return filepath.Clean(p)
}

type requiresSection struct {
	name  string // "", "extra", "extra:marker", or ":marker"
	lines []string
}

// splitSections splits a requires.txt-style file in to its "[section]" sections; lines
// before any section header go in a section named "".
func splitSections(text string) ([]requiresSection, error) {
	var ret []requiresSection
	cur := requiresSection{}
	flush := func() {
		if cur.name != "" || len(cur.lines) > 0 {
			ret = append(ret, cur)
		}
	}
	for _, line := range yieldLines(text) {
		if strings.HasPrefix(line, "[") {
			if !strings.HasSuffix(line, "]") {
				return nil, fmt.Errorf("invalid section heading %q", line)
			}
			flush()
			cur = requiresSection{name: strings.TrimSpace(line[1 : len(line)-1])}
		} else {
			cur.lines = append(cur.lines, line)
		}
	}
	flush()
	return ret, nil
}

// convertEggInfoReqs rewrites sectioned requires.txt entries as self-contained PEP 508
// requirement lines, turning each section's extra name and marker in to a marker suffix:
// a line "foo" in section "test: sys_platform=="win32"" comes out as
// `foo; (sys_platform=="win32") and extra == "test"`.
func convertEggInfoReqs(sections []requiresSection) []string {
	var ret []string
	for _, sect := range sections {
		extra, markers, _ := strings.Cut(sect.name, ":")
		extra = strings.TrimSpace(extra)
		markers = strings.TrimSpace(markers)

		var conds []string
		if markers != "" {
			if extra != "" {
				markers = "(" + markers + ")"
			}
			conds = append(conds, markers)
		}
		if extra != "" {
			conds = append(conds, fmt.Sprintf("extra == %q", extra))
		}
		suffix := ""
		if len(conds) > 0 {
			suffix = "; " + strings.Join(conds, " and ")
		}

		for _, line := range sect.lines {
			space := ""
			if strings.Contains(line, "@") && suffix != "" {
				// keep the URL from swallowing the semicolon
				space = " "
			}
			ret = append(ret, line+space+suffix)
		}
	}
	return ret
}
