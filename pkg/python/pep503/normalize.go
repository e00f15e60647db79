// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package pep503 implements the project-name normalization rules of PEP 503 -- Simple Repository
// API, together with the related "safe name" conventions that setuptools established for
// distribution filenames and extras.
//
// https://www.python.org/dev/peps/pep-0503/
package pep503

import (
	"regexp"
	"strings"
)

var (
	reSeparators  = regexp.MustCompile(`[-_.]+`)
	reUnsafeName  = regexp.MustCompile(`[^A-Za-z0-9.]+`)
	reUnsafeExtra = regexp.MustCompile(`[^A-Za-z0-9.-]+`)
)

// Normalize normalizes a project name per PEP 503: runs of `-`, `_`, and `.` collapse to a single
// `-`, and the result is lowercased.
func Normalize(name string) string {
	return strings.ToLower(reSeparators.ReplaceAllLiteralString(name, "-"))
}

// SafeName converts an arbitrary string to a standard distribution name; any runs of
// non-alphanumeric/. characters are replaced with a single '-'.
func SafeName(name string) string {
	return reUnsafeName.ReplaceAllLiteralString(name, "-")
}

// SafeExtra converts an arbitrary string to a standard 'extra' name; any runs of characters
// outside [A-Za-z0-9.-] are replaced with a single '_', and the result is lowercased.
func SafeExtra(extra string) string {
	return strings.ToLower(reUnsafeExtra.ReplaceAllLiteralString(extra, "_"))
}

// ToFilename converts a project name or version to its filename-escaped form; any '-' characters
// are replaced with '_'.
func ToFilename(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}
