// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package pep345 implements PEP 345 -- Metadata for Python Software Packages 1.2.
//
// Well, just enough of it (and of its successor "core metadata" revisions) to interpret the
// METADATA and PKG-INFO files of installed distributions.
//
// https://www.python.org/dev/peps/pep-0345/
package pep345

import (
	"bufio"
	"bytes"
	"fmt"
	"net/textproto"
	"strings"
)

// Metadata is a parsed METADATA or PKG-INFO file: an RFC 822 style header block, optionally
// followed by a blank line and a free-form description body.
type Metadata struct {
	Fields      textproto.MIMEHeader
	Description string
}

// ParseMetadata parses the content of a METADATA or PKG-INFO file.
func ParseMetadata(content []byte) (*Metadata, error) {
	rd := textproto.NewReader(bufio.NewReader(bytes.NewReader(content)))
	fields, err := rd.ReadMIMEHeader()
	// ReadMIMEHeader returns io.EOF together with the fields when the header block is not
	// terminated by a blank line, which is how most PKG-INFO files without a description
	// body end.
	if err != nil && len(fields) == 0 {
		return nil, fmt.Errorf("pep345.ParseMetadata: %w", err)
	}
	var description strings.Builder
	for {
		line, err := rd.R.ReadString('\n')
		description.WriteString(line)
		if err != nil {
			break
		}
	}
	return &Metadata{
		Fields:      fields,
		Description: description.String(),
	}, nil
}

// Get returns the first value of the named field, or "" if absent.  Field names are
// case-insensitive.
func (md *Metadata) Get(field string) string {
	return md.Fields.Get(field)
}

// Values returns all values of the named field, in order.  Repeatable fields (Requires-Dist,
// Provides-Extra, Classifier) have one value per occurrence.
func (md *Metadata) Values(field string) []string {
	return md.Fields.Values(field)
}

// Name returns the distribution's project name.
func (md *Metadata) Name() string {
	return md.Get("Name")
}

// Version returns the distribution's version string, unparsed.
func (md *Metadata) Version() string {
	return md.Get("Version")
}

// RequiresDist returns the declared dependency specifications, unparsed.
func (md *Metadata) RequiresDist() []string {
	return md.Values("Requires-Dist")
}

// ProvidesExtra returns the declared optional-feature names.
func (md *Metadata) ProvidesExtra() []string {
	return md.Values("Provides-Extra")
}

// RequiresPython returns the declared Python version requirement, unparsed ("" if absent).
func (md *Metadata) RequiresPython() string {
	return md.Get("Requires-Python")
}
