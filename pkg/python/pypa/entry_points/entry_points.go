// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package entry_points implements the PyPA Entry points specification.
//
// https://packaging.python.org/en/latest/specifications/entry-points/
package entry_points

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/datawire/pydist/pkg/python"
)

// An EntryPoint is one advertised object within a group:
//
//     name = module:attrs [extras]
//
// EntryPoints are immutable once parsed; accessors return copies of anything mutable.
type EntryPoint struct {
	name   string
	group  string
	module string
	attrs  string
	extras []string
}

var reEntryPoint = regexp.MustCompile(`^\s*(?P<name>.+?)\s*=\s*` +
	`(?P<module>[\w.]+)\s*` +
	`(?::\s*(?P<attrs>[\w.]+)\s*)?` +
	`(?:\[\s*(?P<extras>[^\]]*)\s*\])?\s*$`)

// Parse parses a single `name = value` entry point line belonging to the named group.
func Parse(group, spec string) (*EntryPoint, error) {
	match := reEntryPoint.FindStringSubmatch(spec)
	if match == nil {
		return nil, fmt.Errorf("entry_points.Parse: malformed entry point: %q", spec)
	}
	grp := func(name string) string {
		return match[reEntryPoint.SubexpIndex(name)]
	}
	ep := &EntryPoint{
		name:   grp("name"),
		group:  group,
		module: grp("module"),
		attrs:  grp("attrs"),
	}
	if extrasStr := strings.TrimSpace(grp("extras")); extrasStr != "" {
		for _, extra := range strings.Split(extrasStr, ",") {
			ep.extras = append(ep.extras, strings.TrimSpace(extra))
		}
	}
	return ep, nil
}

// ParseGroup parses the body of one group section; one entry point per line.  Duplicate names
// within the group are an error.
func ParseGroup(group, content string) ([]EntryPoint, error) {
	var ret []EntryPoint
	seen := make(map[string]struct{})
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ep, err := Parse(group, line)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[ep.name]; dup {
			return nil, fmt.Errorf("entry_points.ParseGroup: duplicate entry point name %q in group %q",
				ep.name, group)
		}
		seen[ep.name] = struct{}{}
		ret = append(ret, *ep)
	}
	sortEntryPoints(ret)
	return ret, nil
}

// ParseFile parses a whole entry_points.txt.  Section names are group names; duplicate groups
// and duplicate names within a group are errors.
func ParseFile(content []byte) (map[string][]EntryPoint, error) {
	parser := &python.ConfigParser{
		Delimiters:      []string{"="},
		CommentPrefixes: []string{"#", ";"},
		Strict:          true, // duplicate sections and options are errors
		OptionTransform: func(s string) string { return s },
	}
	config, err := parser.Parse(strings.NewReader(string(content)))
	if err != nil {
		return nil, fmt.Errorf("entry_points.ParseFile: %w", err)
	}
	ret := make(map[string][]EntryPoint, len(config))
	for group, section := range config {
		eps := make([]EntryPoint, 0, len(section))
		for name, value := range section {
			ep, err := Parse(group, name+" = "+value)
			if err != nil {
				return nil, fmt.Errorf("entry_points.ParseFile: group %q: %w", group, err)
			}
			eps = append(eps, *ep)
		}
		sortEntryPoints(eps)
		ret[group] = eps
	}
	return ret, nil
}

func sortEntryPoints(eps []EntryPoint) {
	sort.Slice(eps, func(i, j int) bool {
		return eps[i].Less(eps[j])
	})
}

func (ep EntryPoint) Name() string   { return ep.name }
func (ep EntryPoint) Group() string  { return ep.group }
func (ep EntryPoint) Module() string { return ep.module }

// Attrs returns the dotted attribute path within the module, split on dots; empty for entry
// points that name a bare module.
func (ep EntryPoint) Attrs() []string {
	if ep.attrs == "" {
		return nil
	}
	return strings.Split(ep.attrs, ".")
}

// Extras returns the extras whose dependencies the entry point needs at run time.
func (ep EntryPoint) Extras() []string {
	if ep.extras == nil {
		return nil
	}
	return append([]string(nil), ep.extras...)
}

// Value returns the right-hand side of the definition in canonical form.
func (ep EntryPoint) Value() string {
	var ret strings.Builder
	ret.WriteString(ep.module)
	if ep.attrs != "" {
		ret.WriteString(":")
		ret.WriteString(ep.attrs)
	}
	if len(ep.extras) > 0 {
		ret.WriteString(" [")
		ret.WriteString(strings.Join(ep.extras, ","))
		ret.WriteString("]")
	}
	return ret.String()
}

// String returns the whole definition line in canonical form.
func (ep EntryPoint) String() string {
	return ep.name + " = " + ep.Value()
}

// Equal reports identity by the (name, value, group) triple.
func (ep EntryPoint) Equal(other EntryPoint) bool {
	return ep.name == other.name && ep.Value() == other.Value() && ep.group == other.group
}

// Less orders entry points by the (name, value, group) triple.
func (ep EntryPoint) Less(other EntryPoint) bool {
	if ep.name != other.name {
		return ep.name < other.name
	}
	if epVal, otherVal := ep.Value(), other.Value(); epVal != otherVal {
		return epVal < otherVal
	}
	return ep.group < other.group
}
