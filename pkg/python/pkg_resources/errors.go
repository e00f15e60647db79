// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pkg_resources

import (
	"fmt"
	"strings"

	"github.com/datawire/pydist/pkg/python/pep508"
)

// A ResolutionError is a structured failure from dependency resolution; exactly two kinds
// exist, "not found" and "version conflict".  Anything else (malformed metadata, filesystem
// trouble) surfaces as-is from the layer that hit it.
type ResolutionError interface {
	error
	resolutionError()
}

// A DistributionNotFoundError means no distribution on any search path satisfies the
// requirement.  Requirers, when known, names the projects that demanded it.
type DistributionNotFoundError struct {
	Req       pep508.Requirement
	Requirers []string
}

func (e *DistributionNotFoundError) resolutionError() {}

func (e *DistributionNotFoundError) Error() string {
	msg := fmt.Sprintf("the %q distribution was not found and is required", e.Req.String())
	if len(e.Requirers) > 0 {
		msg += " by " + strings.Join(e.Requirers, ", ")
	} else {
		msg += " by the application"
	}
	return msg
}

// A VersionConflictError means an already-chosen distribution does not satisfy a requirement
// discovered later.  RequiredBy, when known, names the projects that demanded the conflicting
// requirement.
type VersionConflictError struct {
	Dist       *Distribution
	Req        pep508.Requirement
	RequiredBy []string
}

func (e *VersionConflictError) resolutionError() {}

func (e *VersionConflictError) Error() string {
	msg := fmt.Sprintf("%s is installed but %s is required", e.Dist, e.Req.String())
	if len(e.RequiredBy) > 0 {
		msg += " by " + strings.Join(e.RequiredBy, ", ")
	}
	return msg
}

// withContext attaches the set of requirers, if there are any.
func (e *VersionConflictError) withContext(requiredBy []string) *VersionConflictError {
	if len(requiredBy) > 0 {
		e.RequiredBy = requiredBy
	}
	return e
}

// An UnknownExtraError means a requested extra is not declared by the distribution.
type UnknownExtraError struct {
	Dist  *Distribution
	Extra string
}

func (e *UnknownExtraError) Error() string {
	return fmt.Sprintf("%s has no such extra feature %q", e.Dist, e.Extra)
}

// An ExtractionError wraps a filesystem failure while materializing a zip resource into the
// extraction cache, so that callers see one error kind with the target path attached instead
// of whatever the backend threw.
type ExtractionError struct {
	Manager   *ResourceManager
	CachePath string
	Err       error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("can't extract file(s) to egg cache: %q: %v", e.CachePath, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}
