// Package gitref reads git reference metadata for a working tree.
// Ref resolution reads .git directly and does not need a git client;
// creator dates and commit messages come from the git CLI when available.
package gitref

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// NoRef is reported for directories that are not git work trees.
const NoRef = "No git ref found"

// ErrNotRepository is returned when dir has no .git directory.
var ErrNotRepository = errors.New("not a git repository")

// GitDir returns dir/.git if it is a directory.
func GitDir(dir string) (string, error) {
	gd := filepath.Join(dir, ".git")
	fi, err := os.Stat(gd)
	if err != nil || !fi.IsDir() {
		return "", fmt.Errorf("%s: %w", dir, ErrNotRepository)
	}
	return gd, nil
}

// ResolveHead returns the commit hash HEAD points at and, when HEAD is a
// symbolic ref, the full ref path (e.g. "refs/heads/main").
func ResolveHead(gitDir string) (hash, symbolic string, err error) {
	b, err := os.ReadFile(filepath.Join(gitDir, "HEAD"))
	if err != nil {
		return "", "", err
	}
	head := strings.TrimSpace(string(b))
	if !strings.HasPrefix(head, "ref:") {
		// detached
		return head, "", nil
	}
	symbolic = strings.TrimSpace(strings.TrimPrefix(head, "ref:"))
	refs, err := readRefs(gitDir)
	if err != nil {
		return "", symbolic, err
	}
	hash, ok := refs[symbolic]
	if !ok {
		// unborn branch
		return "", symbolic, nil
	}
	return hash, symbolic, nil
}

// NamedRefs returns the sorted short names of every ref that points at hash,
// followed by the hash itself.
func NamedRefs(hash, gitDir string) ([]string, error) {
	refs, err := readRefs(gitDir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, 4)
	for full, h := range refs {
		if h == hash {
			names = append(names, shortName(full))
		}
	}
	sort.Strings(names)
	return append(names, hash), nil
}

// CurrentRef names what dir has checked out: the branch for a symbolic HEAD,
// otherwise the first ref pointing at the detached commit, otherwise the hash.
func CurrentRef(dir string) string {
	gd, err := GitDir(dir)
	if err != nil {
		return NoRef
	}
	hash, symbolic, err := ResolveHead(gd)
	if err != nil {
		return NoRef
	}
	if symbolic != "" {
		return shortName(symbolic)
	}
	if hash == "" {
		return NoRef
	}
	names, err := NamedRefs(hash, gd)
	if err != nil || len(names) == 0 {
		return hash
	}
	return names[0]
}

// ListRefs returns the short names of all branches and tags found on disk,
// sorted by name. Dates are not available without a git client.
func ListRefs(gitDir string) ([]string, error) {
	refs, err := readRefs(gitDir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(refs))
	for full := range refs {
		if strings.HasPrefix(full, "refs/heads/") || strings.HasPrefix(full, "refs/tags/") {
			names = append(names, shortName(full))
		}
	}
	sort.Strings(names)
	return names, nil
}

// readRefs merges packed-refs and loose refs (loose wins) into full-name -> hash.
// Symbolic loose refs (e.g. refs/remotes/origin/HEAD) are skipped.
func readRefs(gitDir string) (map[string]string, error) {
	refs := make(map[string]string)
	if err := readPackedRefs(filepath.Join(gitDir, "packed-refs"), refs); err != nil {
		return nil, err
	}
	root := filepath.Join(gitDir, "refs")
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		v := strings.TrimSpace(string(b))
		if v == "" || strings.HasPrefix(v, "ref:") {
			return nil
		}
		rel, err := filepath.Rel(gitDir, path)
		if err != nil {
			return err
		}
		refs[filepath.ToSlash(rel)] = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return refs, nil
}

func readPackedRefs(path string, into map[string]string) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	defer func() { _ = f.Close() }()
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		// '#' header, '^' peeled tag target
		if line == "" || line[0] == '#' || line[0] == '^' {
			continue
		}
		hash, name, ok := strings.Cut(line, " ")
		if !ok {
			continue
		}
		into[strings.TrimSpace(name)] = hash
	}
	return s.Err()
}

func shortName(full string) string {
	for _, p := range []string{"refs/heads/", "refs/tags/", "refs/remotes/"} {
		if strings.HasPrefix(full, p) {
			return strings.TrimPrefix(full, p)
		}
	}
	return strings.TrimPrefix(full, "refs/")
}
