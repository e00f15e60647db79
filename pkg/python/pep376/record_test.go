// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pep376_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/pydist/pkg/python/pep376"
)

func TestParseRecord(t *testing.T) {
	t.Parallel()
	entries, err := pep376.ParseRecord([]byte(`six.py,sha256=TOOFMN1Fhs8DxfqeyW_s5vH8wyGMTn5cXXBi2DDeVl8,34549
six-1.16.0.dist-info/METADATA,sha256=VQcGIFCAEmfZcl77E5riPCN4v2TIsc_qtacnjxKHJoI,1795
six-1.16.0.dist-info/RECORD,,
"odd, path.py",sha256=abc123,10
__pycache__/six.cpython-310.pyc,,
`))
	require.NoError(t, err)
	require.Len(t, entries, 5)

	assert.Equal(t, "six.py", entries[0].Path)
	require.NotNil(t, entries[0].Hash)
	assert.Equal(t, "sha256", entries[0].Hash.Algorithm)
	assert.Equal(t, "TOOFMN1Fhs8DxfqeyW_s5vH8wyGMTn5cXXBi2DDeVl8", entries[0].Hash.Value)
	require.NotNil(t, entries[0].Size)
	assert.EqualValues(t, 34549, *entries[0].Size)

	assert.Nil(t, entries[2].Hash, "the RECORD file has no hash of itself")
	assert.Nil(t, entries[2].Size)

	assert.Equal(t, "odd, path.py", entries[3].Path, "CSV quoting protects commas in paths")

	assert.Equal(t, "sha256=abc123", entries[3].Hash.String())
}

func TestFileHashVerify(t *testing.T) {
	t.Parallel()
	content := []byte("x = 1\n")
	// printf 'x = 1\n' | sha256sum, urlsafe-b64 without padding
	hash := pep376.FileHash{
		Algorithm: "sha256",
		Value:     "nia_NpkRxFwkPGhBR7I_yeHc_PJX0pmhxjIBam_NM_Q",
	}
	ok, err := hash.Verify(content)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = hash.Verify([]byte("x = 2\n"))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = pep376.FileHash{Algorithm: "crc32", Value: "x"}.Verify(content)
	assert.Error(t, err)
}

func TestParseRecordErrors(t *testing.T) {
	t.Parallel()
	_, err := pep376.ParseRecord([]byte("foo.py,nodigest,1\n"))
	assert.Error(t, err)
	_, err = pep376.ParseRecord([]byte("foo.py,sha256=abc,notanumber\n"))
	assert.Error(t, err)
}

func TestParseFileList(t *testing.T) {
	t.Parallel()
	entries := pep376.ParseFileList([]byte("../six.py\n../__pycache__/six.cpython-310.pyc\n\n"))
	require.Len(t, entries, 2)
	assert.Equal(t, "../six.py", entries[0].Path)
	assert.Nil(t, entries[0].Hash)
	assert.Nil(t, entries[0].Size)
}
