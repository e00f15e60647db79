// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pep440

import (
	"regexp"
	"strings"
)

var (
	// reFallbackSafe grabs the leading portion of a malformed version string that is already a
	// valid epoch+release.
	reFallbackSafe   = regexp.MustCompile(`(?i)^v?((?:[0-9]+!)?[0-9]+(?:\.[0-9]+)*)`)
	reUnsafeSegChars = regexp.MustCompile(`[^A-Za-z0-9]+`)
	reSegDashRuns    = regexp.MustCompile(`-+`)
)

func safeSegment(segment string) string {
	segment = reUnsafeSegChars.ReplaceAllLiteralString(segment, "-")
	segment = reSegDashRuns.ReplaceAllLiteralString(segment, "-")
	return strings.Trim(segment, "-")
}

// ParseForgivingVersion parses a version string that is not necessarily PEP 440 compliant.  A
// compliant string parses as usual; anything else is mangled into a compliant
// developmental+local version that preserves ordering by whatever leading release segment can
// be salvaged, and preserves the remainder as an inert local label.  For example,
// "0.23ubuntu1" becomes "0.23.dev0+sanitized.ubuntu1".
//
// ParseForgivingVersion never fails; there is no string it cannot make a version of.
func ParseForgivingVersion(str string) *Version {
	if ver, err := ParseVersion(str); err == nil {
		return ver
	}
	str = strings.ReplaceAll(str, " ", ".")
	safe := "0"
	rest := str
	if m := reFallbackSafe.FindStringSubmatch(str); m != nil {
		safe = m[1]
		rest = str[len(m[0]):]
	}
	ver, err := ParseVersion(safe + ".dev0+" + sanitizedLabel(rest))
	if err != nil {
		// The salvaged release segment can still be unusable (an integer too big for the
		// int type); demote the whole input to the local label.
		ver, err = ParseVersion("0.dev0+" + sanitizedLabel(str))
		if err != nil {
			panic(err) // unreachable: the label is [a-z0-9.-] by construction
		}
	}
	return ver
}

func sanitizedLabel(rest string) string {
	local := "sanitized"
	if seg := safeSegment(rest); seg != "" {
		local += "." + seg
	}
	return local
}
