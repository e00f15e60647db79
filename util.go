package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/pflag"
)

// searchPathFlag registers the repeated --path flag that every subcommand shares.
func searchPathFlag(flags *pflag.FlagSet) *[]string {
	return flags.StringArray("path", nil,
		"Search-path `entry` to scan (repeatable; defaults to the elements of $PYTHONPATH)")
}

// searchPath resolves the --path flag values, falling back to $PYTHONPATH.
func searchPath(argPaths []string) []string {
	if len(argPaths) > 0 {
		return argPaths
	}
	var ret []string
	for _, entry := range filepath.SplitList(os.Getenv("PYTHONPATH")) {
		if entry != "" {
			ret = append(ret, entry)
		}
	}
	return ret
}

// markerEnvFlag registers the repeated --marker flag shared by the subcommands that evaluate
// requirement markers.
func markerEnvFlag(flags *pflag.FlagSet) *[]string {
	return flags.StringArray("marker", nil,
		"Set the marker variable `VAR=VALUE` for requirement-marker evaluation "+
			"(repeatable; overrides the values derived from the running platform)")
}

// markerEnv builds the environment that requirement markers evaluate against: the variables
// derivable from the platform this binary runs on, overridden by any --marker flags.
// Variables a marker uses but this map lacks (python_version and friends, absent an
// interpreter to ask) leave the marker undecidable, which the resolver treats as passing.
func markerEnv(overrides []string) (map[string]string, error) {
	env := map[string]string{
		"os_name":      "posix",
		"sys_platform": runtime.GOOS,
	}
	switch runtime.GOOS {
	case "linux":
		env["platform_system"] = "Linux"
	case "darwin":
		env["platform_system"] = "Darwin"
	case "windows":
		env["os_name"] = "nt"
		env["sys_platform"] = "win32"
		env["platform_system"] = "Windows"
	}
	switch runtime.GOARCH {
	case "amd64":
		env["platform_machine"] = "x86_64"
	case "arm64":
		// linux and macOS report this one differently
		if runtime.GOOS == "darwin" {
			env["platform_machine"] = "arm64"
		} else {
			env["platform_machine"] = "aarch64"
		}
	case "386":
		env["platform_machine"] = "i686"
	default:
		env["platform_machine"] = runtime.GOARCH
	}
	for _, kv := range overrides {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 || parts[0] == "" {
			return nil, fmt.Errorf("invalid marker setting %q (expected VAR=VALUE)", kv)
		}
		env[parts[0]] = parts[1]
	}
	return env, nil
}
