// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/pmezard/go-difflib/difflib"
)

var spewConfig = spew.ConfigState{
	Indent:                  "  ",
	DisableMethods:          true,
	DisableCapacities:       true,
	DisablePointerAddresses: true,
	SortKeys:                true,
}

// Dump renders a value in a deterministic multi-line form suitable for line diffing; pointer
// addresses and capacities are suppressed so that two structurally equal values dump equal.
func Dump(val interface{}) string {
	return spewConfig.Sdump(val)
}

// AssertEqualDump compares two values by their Dump rendering, and on mismatch reports a
// unified diff instead of dumping both values whole.  Big resolution results and distribution
// lists are unreadable when printed side by side; the diff shows only what moved.
func AssertEqualDump(t *testing.T, exp, act interface{}) bool {
	t.Helper()

	expStr := Dump(exp)
	actStr := Dump(act)
	if expStr == actStr {
		return true
	}
	diff, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(expStr),
		B:        difflib.SplitLines(actStr),
		FromFile: "Expected",
		FromDate: "",
		ToFile:   "Actual",
		ToDate:   "",
		Context:  1,
	})
	t.Errorf("Diff:\n%s", diff)
	return false
}
