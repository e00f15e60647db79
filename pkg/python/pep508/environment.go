// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pep508

// The environment marker variables defined by PEP 508.  An evaluation environment is expected
// to define all of these (plus "extra", when evaluating a requirement pulled in by one).
var EnvironmentVariableNames = []string{
	"os_name",
	"sys_platform",
	"platform_machine",
	"platform_python_implementation",
	"platform_release",
	"platform_system",
	"platform_version",
	"python_version",
	"python_full_version",
	"implementation_name",
	"implementation_version",
}

// WithExtra returns a copy of env with the "extra" variable set; the environment that a
// requirement demanded by `parent[extra]` is evaluated in.
func WithExtra(env map[string]string, extra string) map[string]string {
	ret := make(map[string]string, len(env)+1)
	for k, v := range env {
		ret[k] = v
	}
	ret["extra"] = extra
	return ret
}
