// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package direct_url implements the PyPA specification Recording the Direct URL Origin of
// installed distributions (AKA PEP 610).
//
// https://packaging.python.org/en/latest/specifications/direct-url/
package direct_url

import (
	"encoding/json"
	"fmt"
)

type DirectURL struct {
	URL         string       `json:"url"`
	VCSInfo     *VCSInfo     `json:"vcs_info,omitempty"`     // if URL is a VCS reference
	ArchiveInfo *ArchiveInfo `json:"archive_info,omitempty"` // if URL is a sdist or bdist
	DirInfo     *DirInfo     `json:"dir_info,omitempty"`     // if URL is a local directory
}

type VCSInfo struct {
	VCS               string `json:"vcs"`
	RequestedRevision string `json:"requested_revision,omitempty"`
	CommitID          string `json:"commit_id"`
}

type ArchiveInfo struct {
	Hash string `json:"hash,omitempty"`
}

type DirInfo struct {
	Editable bool `json:"editable,omitempty"`
}

// Parse parses the content of a direct_url.json file.
func Parse(content []byte) (*DirectURL, error) {
	var ret DirectURL
	if err := json.Unmarshal(content, &ret); err != nil {
		return nil, fmt.Errorf("direct_url.Parse: %w", err)
	}
	if ret.URL == "" {
		return nil, fmt.Errorf("direct_url.Parse: missing required key \"url\"")
	}
	infos := 0
	for _, present := range []bool{ret.VCSInfo != nil, ret.ArchiveInfo != nil, ret.DirInfo != nil} {
		if present {
			infos++
		}
	}
	if infos != 1 {
		return nil, fmt.Errorf("direct_url.Parse: exactly one of vcs_info, archive_info, or dir_info must be present")
	}
	return &ret, nil
}

// IsLocalDirectory reports whether the distribution was installed from a local directory (the
// `pip install /path` and `pip install -e /path` cases).
func (du *DirectURL) IsLocalDirectory() bool {
	return du.DirInfo != nil
}

// IsEditable reports whether the distribution is an editable ("development mode") install.
func (du *DirectURL) IsEditable() bool {
	return du.DirInfo != nil && du.DirInfo.Editable
}
