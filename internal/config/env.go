package config

import (
	"os"
	"sort"
	"strings"
)

// LookupFunc reads one environment variable.
type LookupFunc func(string) (string, bool)

// OSLookup reads the process environment.
var OSLookup LookupFunc = os.LookupEnv

type envBinding struct {
	env string
	key string
}

var envBindings = []envBinding{
	{env: "PORT", key: "port"},
	{env: "WARBOOT_HOST", key: "host"},
	{env: "WARBOOT_WEBSERVER_CONFIG", key: "webserver_config"},
	{env: "WARBOOT_DEBUG", key: "debug"},
	{env: "WARBOOT_SKIP_EXIT", key: "skip_exit"},
	{env: "WARBOOT_CACHE", key: "cache"},
	{env: "JAVA_HOME", key: "java_home"},
	{env: "WARBOOT_METRICS_FILE", key: "metrics_file"},
}

// OverridePrefix marks launcher arguments that set config keys.
const OverridePrefix = "-Dwarboot."

// SplitOverrides consumes leading -Dwarboot.<key>=<value> arguments and
// returns them with the remaining argv, which reaches the runtime untouched.
func SplitOverrides(args []string) (map[string]string, []string) {
	overrides := make(map[string]string)
	i := 0
	for ; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, OverridePrefix) {
			break
		}
		key, value, ok := strings.Cut(strings.TrimPrefix(arg, OverridePrefix), "=")
		if !ok || key == "" {
			break
		}
		overrides[key] = value
	}
	rest := make([]string, len(args)-i)
	copy(rest, args[i:])
	return overrides, rest
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
