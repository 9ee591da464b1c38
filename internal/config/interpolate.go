package config

import (
	"os"
	"strings"
)

// Interpolate expands ${VAR}, $VAR and ${VAR:-default} references in the raw
// config bytes using the given lookup (usually os.LookupEnv). An unset
// variable without a default expands to the empty string, matching the
// upstream compose behavior the source file format comes from. "$$" produces
// a literal "$".
func Interpolate(data []byte, lookup func(string) (string, bool)) []byte {
	return []byte(os.Expand(string(data), func(name string) string {
		if name == "$" {
			return "$"
		}
		if i := strings.Index(name, ":-"); i >= 0 {
			if v, ok := lookup(name[:i]); ok && v != "" {
				return v
			}
			return name[i+2:]
		}
		v, _ := lookup(name)
		return v
	}))
}
