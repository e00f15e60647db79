// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package pep440 implements PEP 440 -- Version Identification and Dependency Specification.
//
// https://www.python.org/dev/peps/pep-0440/
package pep440

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"k8s.io/apimachinery/pkg/util/intstr"
)

// A PublicVersion is a version identifier without any local version label:
//
//     [N!]N(.N)*[{a|b|rc}N][.postN][.devN]
type PublicVersion struct {
	Epoch   int
	Release []int
	Pre     *PreRelease
	Post    *int
	Dev     *int
}

type PreRelease struct {
	L string
	N int
}

// A LocalVersion is a public version identifier plus an optional "local version label":
//
//     <public version identifier>[+<local version label>]
//
// Local labels are dot-separated segments, each of which is either numeric or alphanumeric;
// intstr.IntOrString captures that int-or-string nature for ordering purposes.
type LocalVersion struct {
	PublicVersion
	Local []intstr.IntOrString
}

type Version = LocalVersion

// reVersion is the "Appendix B" permissive pattern from PEP 440.
var reVersion = regexp.MustCompile(`(?i)^\s*v?` +
	`(?:(?P<epoch>[0-9]+)!)?` +
	`(?P<release>[0-9]+(?:\.[0-9]+)*)` +
	`(?:[-_\.]?(?P<pre_l>a|b|c|rc|alpha|beta|pre|preview)[-_\.]?(?P<pre_n>[0-9]+)?)?` +
	`(?:(?:-(?P<post_n1>[0-9]+))|(?:[-_\.]?(?P<post_l>post|rev|r)[-_\.]?(?P<post_n2>[0-9]+)?))?` +
	`(?:[-_\.]?(?P<dev_l>dev)[-_\.]?(?P<dev_n>[0-9]+)?)?` +
	`(?:\+(?P<local>[a-z0-9]+(?:[-_\.][a-z0-9]+)*))?` +
	`\s*$`)

// ParseVersion parses a string to a Version object, performing normalization.
func ParseVersion(str string) (*Version, error) {
	match := reVersion.FindStringSubmatch(str)
	if match == nil {
		return nil, fmt.Errorf("pep440.ParseVersion: invalid version: %q", str)
	}
	group := func(name string) string {
		return match[reVersion.SubexpIndex(name)]
	}

	var ver Version
	if epoch := group("epoch"); epoch != "" {
		ver.Epoch, _ = strconv.Atoi(epoch)
	}
	for _, segStr := range strings.Split(group("release"), ".") {
		segInt, err := strconv.Atoi(segStr)
		if err != nil {
			return nil, fmt.Errorf("pep440.ParseVersion: %w", err)
		}
		ver.Release = append(ver.Release, segInt)
	}

	if preL := strings.ToLower(group("pre_l")); preL != "" {
		canonical := map[string]string{
			"a": "a", "alpha": "a",
			"b": "b", "beta": "b",
			"rc": "rc", "c": "rc", "pre": "rc", "preview": "rc",
		}[preL]
		n, _ := strconv.Atoi(group("pre_n"))
		ver.Pre = &PreRelease{L: canonical, N: n}
	}
	if group("post_l") != "" || group("post_n1") != "" {
		n, _ := strconv.Atoi(group("post_n1") + group("post_n2"))
		ver.Post = &n
	}
	if group("dev_l") != "" {
		n, _ := strconv.Atoi(group("dev_n"))
		ver.Dev = &n
	}
	if local := group("local"); local != "" {
		for _, part := range strings.FieldsFunc(local, func(r rune) bool {
			return strings.ContainsRune("-_.", r)
		}) {
			ver.Local = append(ver.Local, intstr.Parse(strings.ToLower(part)))
		}
	}

	return &ver, nil
}

func (ver PublicVersion) writeTo(ret *strings.Builder) {
	if ver.Epoch > 0 {
		fmt.Fprintf(ret, "%d!", ver.Epoch)
	}
	if len(ver.Release) == 0 {
		panic("invalid version: no release segments")
	}
	fmt.Fprintf(ret, "%d", ver.Release[0])
	for _, segment := range ver.Release[1:] {
		fmt.Fprintf(ret, ".%d", segment)
	}
	if ver.Pre != nil {
		fmt.Fprintf(ret, "%s%d", ver.Pre.L, ver.Pre.N)
	}
	if ver.Post != nil {
		fmt.Fprintf(ret, ".post%d", *ver.Post)
	}
	if ver.Dev != nil {
		fmt.Fprintf(ret, ".dev%d", *ver.Dev)
	}
}

// String implements fmt.Stringer.  String does not perform any normalization.
func (ver PublicVersion) String() string {
	var ret strings.Builder
	ver.writeTo(&ret)
	return ret.String()
}

// String implements fmt.Stringer.  String does not perform any normalization.
func (ver LocalVersion) String() string {
	var ret strings.Builder
	ver.PublicVersion.writeTo(&ret)
	if len(ver.Local) > 0 {
		ret.WriteString("+")
		for i, segment := range ver.Local {
			if i > 0 {
				ret.WriteString(".")
			}
			ret.WriteString(segment.String())
		}
	}
	return ret.String()
}

// IsFinal reports whether the version consists solely of an epoch and a release segment.
func (ver PublicVersion) IsFinal() bool {
	return ver.Pre == nil && ver.Post == nil && ver.Dev == nil
}

// IsFinal reports whether the version consists solely of an epoch and a release segment.
func (ver LocalVersion) IsFinal() bool {
	return ver.PublicVersion.IsFinal() && len(ver.Local) == 0
}

// IsPreRelease reports whether the version is a pre-release or developmental release.
func (ver PublicVersion) IsPreRelease() bool {
	return ver.Pre != nil || ver.Dev != nil
}

func (ver PublicVersion) Major() int { return ver.releaseSegment(0) }
func (ver PublicVersion) Minor() int { return ver.releaseSegment(1) }
func (ver PublicVersion) Micro() int { return ver.releaseSegment(2) }

func (ver PublicVersion) releaseSegment(n int) int {
	// shorter release segments are zero-padded to a consistent length
	if n < len(ver.Release) {
		return ver.Release[n]
	}
	return 0
}

func cmpEpoch(a, b PublicVersion) int {
	return a.Epoch - b.Epoch
}

func cmpRelease(a, b PublicVersion) int {
	for i := 0; i < len(a.Release) || i < len(b.Release); i++ {
		if diff := a.releaseSegment(i) - b.releaseSegment(i); diff != 0 {
			return diff
		}
	}
	return 0
}

var preReleaseOrder = map[string]int{
	"a":  -3,
	"b":  -2,
	"rc": -1,
	// absent: 0,
}

func cmpPreRelease(a, b PublicVersion) int {
	var aL, aN, bL, bN int
	if a.Pre != nil {
		aL = preReleaseOrder[a.Pre.L]
		aN = a.Pre.N
	} else if a.Dev != nil && a.Post == nil {
		// a bare dev release sorts before any pre-release of the same release segment
		aL = -4
	}
	if b.Pre != nil {
		bL = preReleaseOrder[b.Pre.L]
		bN = b.Pre.N
	} else if b.Dev != nil && b.Post == nil {
		bL = -4
	}
	if aL != bL {
		return aL - bL
	}
	return aN - bN
}

func cmpPostRelease(a, b PublicVersion) int {
	aPost := -1
	if a.Post != nil {
		aPost = *a.Post
	}
	bPost := -1
	if b.Post != nil {
		bPost = *b.Post
	}
	return aPost - bPost
}

func cmpDevRelease(a, b PublicVersion) int {
	switch {
	case a.Dev == nil && b.Dev == nil:
		return 0
	case a.Dev == nil:
		return 1
	case b.Dev == nil:
		return -1
	default:
		return (*a.Dev) - (*b.Dev)
	}
}

func cmpLocalSegment(a, b *intstr.IntOrString) int {
	switch {
	case a == nil && b != nil:
		return -1
	case a != nil && b == nil:
		return 1
	}
	switch {
	case a.Type == intstr.Int && b.Type == intstr.Int:
		return int(a.IntVal - b.IntVal)
	case a.Type == intstr.String && b.Type == intstr.String:
		return strings.Compare(a.StrVal, b.StrVal)
	case a.Type == intstr.Int:
		// numeric segments sort after alphanumeric ones
		return 1
	default:
		return -1
	}
}

func cmpLocal(a, b LocalVersion) int {
	for i := 0; i < len(a.Local) || i < len(b.Local); i++ {
		var aSeg, bSeg *intstr.IntOrString
		if i < len(a.Local) {
			aSeg = &(a.Local[i])
		}
		if i < len(b.Local) {
			bSeg = &(b.Local[i])
		}
		if d := cmpLocalSegment(aSeg, bSeg); d != 0 {
			return d
		}
	}
	return 0
}

// Cmp returns a number < 0 if version 'a' is less than version 'b', > 0 if 'a' is greater than
// 'b', or 0 if they are equal.  This is similar to the C-language strcmp.
func (a PublicVersion) Cmp(b PublicVersion) int {
	if d := cmpEpoch(a, b); d != 0 {
		return d
	}
	if d := cmpRelease(a, b); d != 0 {
		return d
	}
	if d := cmpPreRelease(a, b); d != 0 {
		return d
	}
	if d := cmpPostRelease(a, b); d != 0 {
		return d
	}
	return cmpDevRelease(a, b)
}

// Cmp returns a number < 0 if version 'a' is less than version 'b', > 0 if 'a' is greater than
// 'b', or 0 if they are equal.
func (a LocalVersion) Cmp(b LocalVersion) int {
	if d := a.PublicVersion.Cmp(b.PublicVersion); d != 0 {
		return d
	}
	return cmpLocal(a, b)
}
