package main

import (
	"sort"
	"strings"

	"github.com/loykin/jenky/pkg/client"
)

func sortedRepoNames(d client.RepoDict) []string {
	names := make([]string, 0, len(d))
	for k := range d {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func firstLine(s string) string {
	s, _, _ = strings.Cut(strings.TrimSpace(s), "\n")
	return s
}
