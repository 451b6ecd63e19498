// Package template scaffolds application config files for common repo kinds.
package template

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/loykin/jenky/internal/config"
)

// Kind selects the process layout generated for a repo.
type Kind string

const (
	KindSimple Kind = "simple"
	KindPython Kind = "python"
	KindNode   Kind = "node"
	KindGo     Kind = "go"
)

var kinds = map[Kind]func(repo string) []config.ProcessConfig{
	KindSimple: func(repo string) []config.ProcessConfig {
		return []config.ProcessConfig{{Name: repo, Cmd: []string{"./run.sh"}, KeepRunning: true}}
	},
	// python is swapped for venv/bin/python when the repo has a venv
	KindPython: func(repo string) []config.ProcessConfig {
		module := strings.ReplaceAll(repo, "-", "_")
		return []config.ProcessConfig{{
			Name:        repo,
			Cmd:         []string{"python", "-m", module},
			Env:         []string{"PYTHONUNBUFFERED=1"},
			KeepRunning: true,
		}}
	},
	KindNode: func(repo string) []config.ProcessConfig {
		return []config.ProcessConfig{{
			Name:        repo,
			Cmd:         []string{"npm", "start"},
			Env:         []string{"NODE_ENV=production"},
			KeepRunning: true,
		}}
	},
	KindGo: func(repo string) []config.ProcessConfig {
		return []config.ProcessConfig{
			{Name: "build", Cmd: []string{"go", "build", "-o", "bin/" + repo, "."}},
			{Name: repo, Cmd: []string{"bin/" + repo}, KeepRunning: true},
		}
	},
}

// Kinds lists the supported kinds.
func Kinds() []string {
	out := make([]string, 0, len(kinds))
	for k := range kinds {
		out = append(out, string(k))
	}
	sort.Strings(out)
	return out
}

// Repo returns a repo entry for name with the processes of kind.
func Repo(name string, kind Kind) (config.RepoConfig, error) {
	gen, ok := kinds[kind]
	if !ok {
		return config.RepoConfig{}, fmt.Errorf("unknown kind %q (one of %s)", kind, strings.Join(Kinds(), ", "))
	}
	if !config.IsSafeName(name) {
		return config.RepoConfig{}, fmt.Errorf("invalid repo name %q", name)
	}
	return config.RepoConfig{RepoName: name, Processes: gen(name)}, nil
}

// ParseRepoSpec parses "name" or "name:kind"; kind defaults to simple.
func ParseRepoSpec(s string) (config.RepoConfig, error) {
	name, kind, ok := strings.Cut(s, ":")
	if !ok {
		kind = string(KindSimple)
	}
	return Repo(name, Kind(kind))
}

// AppConfig is the file-level shape written by Render. Server, log and other
// settings are left to their defaults.
type AppConfig struct {
	AppName string              `yaml:"appName"`
	Repos   []config.RepoConfig `yaml:"repos"`
}

// Render encodes a as JSON or YAML depending on the extension of path.
func Render(a AppConfig, path string) ([]byte, error) {
	if a.Repos == nil {
		a.Repos = []config.RepoConfig{}
	}
	y, err := yaml.Marshal(a)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return y, nil
	case ".json", "":
		// the yaml tags carry the camelCase keys
		var generic any
		if err := yaml.Unmarshal(y, &generic); err != nil {
			return nil, err
		}
		b, err := json.MarshalIndent(generic, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(b, '\n'), nil
	}
	return nil, fmt.Errorf("unsupported config format %q", filepath.Ext(path))
}
