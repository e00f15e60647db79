// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pkg_resources

import (
	"strings"

	"github.com/datawire/pydist/pkg/python/pep503"
)

// A Prepared is a project name carried together with its pre-computed normalized forms, so
// that index lookups don't re-normalize on every probe.  The zero Prepared (empty Name)
// matches every distribution.
type Prepared struct {
	Name string

	// Normalized is the PEP 503 normal form with underscores instead of dashes; it is the
	// key for .dist-info and .egg-info directory names.
	Normalized string

	// LegacyNormalized lowercases and replaces dashes with underscores, without collapsing
	// runs of separator characters; it is the key for .egg names, which predate PEP 503.
	LegacyNormalized string
}

func NewPrepared(name string) Prepared {
	if name == "" {
		return Prepared{}
	}
	return Prepared{
		Name:             name,
		Normalized:       normalizeName(name),
		LegacyNormalized: legacyNormalizeName(name),
	}
}

// MatchesAll reports whether this query matches every distribution rather than one project.
func (p Prepared) MatchesAll() bool {
	return p.Name == ""
}

func normalizeName(name string) string {
	return strings.ReplaceAll(pep503.Normalize(name), "-", "_")
}

func legacyNormalizeName(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), "-", "_")
}
