// Package env composes child process environments.
package env

import (
	"os"
	"sort"
	"strings"
)

type Var map[string]string

// Parse turns "K=V" entries into a Var. Entries without '=' or with an empty key are skipped.
func Parse(kvs []string) Var {
	m := make(Var, len(kvs))
	for _, kv := range kvs {
		if i := strings.IndexByte(kv, '='); i > 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	return m
}

// FromOS returns the current process environment.
func FromOS() Var { return Parse(os.Environ()) }

// Merge layers overlays over base in order (later wins) and expands variable
// references in overlay values against the composed map. The result is sorted.
func Merge(base Var, overlays ...Var) []string {
	m := make(Var, len(base))
	for k, v := range base {
		m[k] = v
	}
	overlaid := make(map[string]bool)
	for _, o := range overlays {
		for k, v := range o {
			if k == "" {
				continue
			}
			m[k] = v
			overlaid[k] = true
		}
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		if overlaid[k] {
			v = expand(v, m, base, k)
		}
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// expand replaces $VAR and ${VAR} with values from m; $$ is a literal $.
// A self reference (PATH=${PATH}:/opt/bin) resolves against base.
func expand(s string, m, base Var, self string) string {
	if !strings.Contains(s, "$") {
		return s
	}
	return os.Expand(s, func(k string) string {
		switch k {
		case "$":
			return "$"
		case self:
			return base[k]
		}
		return m[k]
	})
}
