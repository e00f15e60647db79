// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package pep376 implements the RECORD file of PEP 376 -- Database of Installed Python
// Distributions, plus the setuptools-era file lists that predate it.
//
// https://packaging.python.org/en/latest/specifications/recording-installed-packages/
package pep376

import (
	"bytes"
	"encoding/base64"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/datawire/pydist/pkg/python"
)

// A RecordEntry is one row of a RECORD file: an installed file's path (relative to the
// site-packages directory, or absolute), and optionally its hash and size.
type RecordEntry struct {
	Path string
	Hash *FileHash
	Size *int64
}

// A FileHash is the `algorithm=urlsafe_b64(digest)` value from a RECORD row.
type FileHash struct {
	Algorithm string
	Value     string
}

func (h FileHash) String() string {
	return h.Algorithm + "=" + h.Value
}

// Verify reports whether content hashes to the recorded digest.  The algorithm must be one
// of Python hashlib's guaranteed algorithms, which is all that wheel RECORDs may use.
func (h FileHash) Verify(content []byte) (bool, error) {
	newHash, ok := python.HashlibAlgorithmsGuaranteed[h.Algorithm]
	if !ok {
		return false, fmt.Errorf("pep376: unsupported hash algorithm %q", h.Algorithm)
	}
	digest := newHash()
	_, _ = digest.Write(content)
	return h.Value == base64.RawURLEncoding.EncodeToString(digest.Sum(nil)), nil
}

// ParseRecord parses the content of a RECORD file.  Rows are CSV so that paths containing
// commas or quotes survive; the hash and size columns may be empty (and are, for the RECORD
// file itself and for .pyc files).
func ParseRecord(content []byte) ([]RecordEntry, error) {
	rd := csv.NewReader(bytes.NewReader(content))
	rd.FieldsPerRecord = -1
	rows, err := rd.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("pep376.ParseRecord: %w", err)
	}
	ret := make([]RecordEntry, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 || (len(row) == 1 && row[0] == "") {
			continue
		}
		entry := RecordEntry{Path: row[0]}
		if len(row) > 1 && row[1] != "" {
			algo, value, ok := cutHash(row[1])
			if !ok {
				return nil, fmt.Errorf("pep376.ParseRecord: malformed hash %q for %q",
					row[1], row[0])
			}
			entry.Hash = &FileHash{Algorithm: algo, Value: value}
		}
		if len(row) > 2 && row[2] != "" {
			size, err := strconv.ParseInt(row[2], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("pep376.ParseRecord: malformed size for %q: %w",
					row[0], err)
			}
			entry.Size = &size
		}
		ret = append(ret, entry)
	}
	return ret, nil
}

func cutHash(str string) (algo, value string, ok bool) {
	idx := strings.Index(str, "=")
	if idx <= 0 || idx == len(str)-1 {
		return "", "", false
	}
	return str[:idx], str[idx+1:], true
}

// ParseFileList parses an installed-files.txt or SOURCES.txt; one path per line, with no hash
// or size information.  Egg metadata records installed files this way.
func ParseFileList(content []byte) []RecordEntry {
	var ret []RecordEntry
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		ret = append(ret, RecordEntry{Path: line})
	}
	return ret
}
