// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pep508_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/pydist/pkg/python/pep508"
)

func testEnv() map[string]string {
	return map[string]string{
		"os_name":                        "posix",
		"sys_platform":                   "linux",
		"platform_machine":               "x86_64",
		"platform_python_implementation": "CPython",
		"platform_release":               "5.15.0",
		"platform_system":                "Linux",
		"platform_version":               "#1 SMP",
		"python_version":                 "3.10",
		"python_full_version":            "3.10.4",
		"implementation_name":            "cpython",
		"implementation_version":         "3.10.4",
	}
}

func TestMarkerEvaluate(t *testing.T) {
	t.Parallel()
	testcases := map[string]struct {
		InMarker string
		Expected bool
	}{
		"version-lt-true":    {`python_version < "3.11"`, true},
		"version-lt-false":   {`python_version < "2.7"`, false},
		"version-not-lexico": {`python_full_version >= "3.9.2"`, true},
		"string-eq":          {`sys_platform == "linux"`, true},
		"string-neq":         {`sys_platform != "win32"`, true},
		"in":                 {`sys_platform in "linux linux2"`, true},
		"not-in":             {`platform_machine not in "arm64 aarch64"`, true},
		"and":                {`os_name == "posix" and python_version >= "3.6"`, true},
		"or":                 {`sys_platform == "win32" or sys_platform == "linux"`, true},
		"parens":             {`(sys_platform == "win32" or sys_platform == "linux") and os_name == "posix"`, true},
		"precedence":         {`sys_platform == "win32" and sys_platform == "darwin" or os_name == "posix"`, true},
		"legacy-alias":       {`os.name == "posix"`, true},
		"compatible-op":      {`python_full_version ~= "3.10.1"`, true},
		"single-quotes":      {`sys_platform == 'linux'`, true},
		"literal-lhs":        {`"linux" == sys_platform`, true},
	}
	for tcName, tc := range testcases {
		tc := tc
		t.Run(tcName, func(t *testing.T) {
			t.Parallel()
			marker, err := pep508.ParseMarker(tc.InMarker)
			require.NoError(t, err)
			got, err := marker.Evaluate(testEnv())
			require.NoError(t, err)
			assert.Equal(t, tc.Expected, got)
		})
	}
}

func TestMarkerSyntaxErrors(t *testing.T) {
	t.Parallel()
	// a malformed marker is a parse error, distinct from a marker that evaluates false
	for _, str := range []string{
		``,
		`python_version`,
		`python_version <`,
		`python_version < "3.11" and`,
		`(python_version < "3.11"`,
		`python_version !! "3.11"`,
		`python_version < "3.11`,
		`python_version not "3.11"`,
	} {
		str := str
		t.Run(str, func(t *testing.T) {
			t.Parallel()
			marker, err := pep508.ParseMarker(str)
			assert.Error(t, err)
			assert.Nil(t, marker)
		})
	}
}

func TestMarkerUndefinedVariable(t *testing.T) {
	t.Parallel()
	marker, err := pep508.ParseMarker(`extra == "tests"`)
	require.NoError(t, err)

	// well-formed, but "extra" is not defined in the plain environment
	_, err = marker.Evaluate(testEnv())
	assert.Error(t, err)

	got, err := marker.Evaluate(pep508.WithExtra(testEnv(), "tests"))
	require.NoError(t, err)
	assert.True(t, got)

	got, err = marker.Evaluate(pep508.WithExtra(testEnv(), "docs"))
	require.NoError(t, err)
	assert.False(t, got)
}

func TestMarkerString(t *testing.T) {
	t.Parallel()
	marker, err := pep508.ParseMarker(`( os.name=='posix'  or sys_platform=="win32" ) and python_version>="3.6"`)
	require.NoError(t, err)
	assert.Equal(t, `(os_name == "posix" or sys_platform == "win32") and python_version >= "3.6"`, marker.String())

	// canonical form re-parses to the same canonical form
	again, err := pep508.ParseMarker(marker.String())
	require.NoError(t, err)
	assert.Equal(t, marker.String(), again.String())
}
