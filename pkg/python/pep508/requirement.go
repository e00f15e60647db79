// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package pep508 implements PEP 508 -- Dependency specification for Python Software Packages.
//
// https://www.python.org/dev/peps/pep-0508/
package pep508

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/datawire/pydist/pkg/python/pep440"
	"github.com/datawire/pydist/pkg/python/pep503"
)

// A Requirement is a parsed dependency specification:
//
//     name [extras] specifier ; marker
//     name [extras] @ url ; marker
type Requirement struct {
	Name      string   // the project name, as written
	Extras    []string // safe-extra normalized, sorted, deduplicated
	Specifier pep440.Specifier
	Marker    *Marker
	URL       string
}

var reRequirement = regexp.MustCompile(`^\s*` +
	`(?P<name>[A-Za-z0-9][A-Za-z0-9._-]*)` +
	`\s*(?:\[(?P<extras>[^\]]*)\])?` +
	`\s*(?P<rest>.*)$`)

// ParseRequirement parses a single dependency specification.
func ParseRequirement(str string) (*Requirement, error) {
	bad := func(err error) (*Requirement, error) {
		return nil, fmt.Errorf("pep508.ParseRequirement: %q: %w", str, err)
	}

	match := reRequirement.FindStringSubmatch(str)
	if match == nil {
		return bad(fmt.Errorf("no project name"))
	}
	group := func(name string) string {
		return match[reRequirement.SubexpIndex(name)]
	}

	ret := &Requirement{
		Name: group("name"),
	}

	if extrasStr := group("extras"); extrasStr != "" {
		seen := make(map[string]struct{})
		for _, extra := range strings.Split(extrasStr, ",") {
			extra = pep503.SafeExtra(strings.TrimSpace(extra))
			if extra == "" {
				return bad(fmt.Errorf("empty extra name"))
			}
			if _, dup := seen[extra]; !dup {
				seen[extra] = struct{}{}
				ret.Extras = append(ret.Extras, extra)
			}
		}
		sort.Strings(ret.Extras)
	}

	rest := strings.TrimSpace(group("rest"))

	var markerStr string
	if semi := strings.Index(rest, ";"); semi >= 0 {
		markerStr = strings.TrimSpace(rest[semi+1:])
		rest = strings.TrimSpace(rest[:semi])
	}

	switch {
	case strings.HasPrefix(rest, "@"):
		ret.URL = strings.TrimSpace(rest[1:])
		if ret.URL == "" {
			return bad(fmt.Errorf("missing URL after @"))
		}
	case rest != "":
		// setuptools-era metadata wraps the specifier in parentheses
		if strings.HasPrefix(rest, "(") && strings.HasSuffix(rest, ")") {
			rest = strings.TrimSpace(rest[1 : len(rest)-1])
		}
		spec, err := pep440.ParseSpecifier(rest)
		if err != nil {
			return bad(err)
		}
		ret.Specifier = spec
	}

	if markerStr != "" {
		marker, err := ParseMarker(markerStr)
		if err != nil {
			return bad(err)
		}
		ret.Marker = marker
	}

	return ret, nil
}

// ParseRequirements parses a multi-line requirements source (a requires.txt body or similar):
// blank lines and `#` comment lines are skipped, ` #` trailing comments are stripped, and a
// trailing backslash continues the specification on the next line.
func ParseRequirements(text string) ([]Requirement, error) {
	var ret []Requirement
	lines := strings.Split(text, "\n")
	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if idx := strings.Index(line, " #"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}
		for strings.HasSuffix(line, "\\") && i+1 < len(lines) {
			i++
			line = strings.TrimSpace(strings.TrimSuffix(line, "\\")) + strings.TrimSpace(lines[i])
		}
		req, err := ParseRequirement(line)
		if err != nil {
			return nil, err
		}
		ret = append(ret, *req)
	}
	return ret, nil
}

// Key returns the all-lowercase form of the project name; the identity that installed
// distributions are indexed by.
func (req Requirement) Key() string {
	return strings.ToLower(req.Name)
}

// String returns the requirement in canonical form; the result parses back to an equal
// Requirement.
func (req Requirement) String() string {
	var ret strings.Builder
	ret.WriteString(req.Name)
	if len(req.Extras) > 0 {
		ret.WriteString("[")
		ret.WriteString(strings.Join(req.Extras, ","))
		ret.WriteString("]")
	}
	switch {
	case req.URL != "":
		ret.WriteString("@ ")
		ret.WriteString(req.URL)
		if req.Marker != nil {
			// the URL would swallow the semicolon without this space
			ret.WriteString(" ")
		}
	default:
		ret.WriteString(req.Specifier.String())
	}
	if req.Marker != nil {
		ret.WriteString("; ")
		ret.WriteString(req.Marker.String())
	}
	return ret.String()
}

// HashKey is the identity that Equal compares, flattened to a string so that it can key a
// map; the same quintuple that the resolver's cycle suppression is keyed on.
func (req Requirement) HashKey() string {
	clauses := make([]string, 0, len(req.Specifier))
	for _, clause := range req.Specifier {
		clauses = append(clauses, clause.String())
	}
	sort.Strings(clauses)

	markerStr := ""
	if req.Marker != nil {
		markerStr = req.Marker.String()
	}

	return strings.Join([]string{
		req.Key(),
		req.URL,
		strings.Join(clauses, ","),
		strings.Join(req.Extras, ","), // already sorted and deduplicated
		markerStr,
	}, "\x00")
}

// Equal reports whether two requirements are the same specification: same key, URL, specifier
// clauses (order-insensitively), extras (as a set), and marker text.
func (req Requirement) Equal(other Requirement) bool {
	return req.HashKey() == other.HashKey()
}

// WithExtras returns a copy of the requirement with the given extras instead of its own.
func (req Requirement) WithExtras(extras ...string) Requirement {
	cp := req
	cp.Extras = make([]string, 0, len(extras))
	seen := make(map[string]struct{})
	for _, extra := range extras {
		extra = pep503.SafeExtra(extra)
		if _, dup := seen[extra]; !dup {
			seen[extra] = struct{}{}
			cp.Extras = append(cp.Extras, extra)
		}
	}
	sort.Strings(cp.Extras)
	return cp
}
