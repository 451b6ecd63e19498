package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Defaults applied when the config file leaves a value unset.
const (
	DefaultHost         = "127.0.0.1"
	DefaultPort         = 8000
	DefaultCacheDir     = ".jenky"
	DefaultSyncInterval = 5 * time.Second
	DefaultGitCommand   = "git"
	DefaultGitCacheTTL  = 10 * time.Second
	DefaultGitWorkers   = 4
	DefaultMetricsPath  = "/metrics"
)

// Config is the daemon configuration. Keys follow the camelCase names of
// jenky_app_config.json so existing files load unchanged.
type Config struct {
	AppName      string        `mapstructure:"appName" yaml:"appName"`
	CacheDir     string        `mapstructure:"cacheDir" yaml:"cacheDir"`
	SyncInterval time.Duration `mapstructure:"syncInterval" yaml:"syncInterval"`
	Server       ServerConfig  `mapstructure:"server" yaml:"server"`
	Git          GitConfig     `mapstructure:"git" yaml:"git"`
	Log          LogConfig     `mapstructure:"log" yaml:"log"`
	History      HistoryConfig `mapstructure:"history" yaml:"history"`
	Metrics      MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Repos        []RepoConfig  `mapstructure:"repos" yaml:"repos"`
	Path         string        `mapstructure:"-" yaml:"-"`
}

type ServerConfig struct {
	Host     string    `mapstructure:"host" yaml:"host"`
	Port     int       `mapstructure:"port" yaml:"port"`
	BasePath string    `mapstructure:"basePath" yaml:"basePath"`
	HTMLDir  string    `mapstructure:"htmlDir" yaml:"htmlDir"`
	TLS      TLSConfig `mapstructure:"tls" yaml:"tls"`
}

// TLSConfig enables HTTPS. CertFile/KeyFile take precedence over Dir, which
// holds tls.crt and tls.key (generated when AutoGenerate is set).
type TLSConfig struct {
	Enabled      bool     `mapstructure:"enabled" yaml:"enabled"`
	CertFile     string   `mapstructure:"certFile" yaml:"certFile,omitempty"`
	KeyFile      string   `mapstructure:"keyFile" yaml:"keyFile,omitempty"`
	Dir          string   `mapstructure:"dir" yaml:"dir,omitempty"`
	AutoGenerate bool     `mapstructure:"autoGenerate" yaml:"autoGenerate"`
	Hosts        []string `mapstructure:"hosts" yaml:"hosts,omitempty"`
	MinVersion   string   `mapstructure:"minVersion" yaml:"minVersion,omitempty"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string { return fmt.Sprintf("%s:%d", s.Host, s.Port) }

type GitConfig struct {
	Command     string        `mapstructure:"command" yaml:"command"`
	CacheTTL    time.Duration `mapstructure:"cacheTTL" yaml:"cacheTTL"`
	Concurrency int           `mapstructure:"concurrency" yaml:"concurrency"`
}

// LogConfig configures the daemon's own log, not process output.
type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Color      bool   `mapstructure:"color" yaml:"color"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"maxSizeMB" yaml:"maxSizeMB"`
	MaxBackups int    `mapstructure:"maxBackups" yaml:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAgeDays" yaml:"maxAgeDays"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

type HistoryConfig struct {
	DSNs []string `mapstructure:"dsns" yaml:"dsns"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

type RepoConfig struct {
	RepoName  string          `mapstructure:"repoName" yaml:"repoName"`
	Directory string          `mapstructure:"directory" yaml:"directory"`
	RemoteURL string          `mapstructure:"remoteUrl" yaml:"remoteUrl,omitempty"`
	Processes []ProcessConfig `mapstructure:"processes" yaml:"processes"`
}

// Find returns the process named name.
func (r RepoConfig) Find(name string) (ProcessConfig, bool) {
	for _, p := range r.Processes {
		if p.Name == name {
			return p, true
		}
	}
	return ProcessConfig{}, false
}

type ProcessConfig struct {
	Name             string   `mapstructure:"name" yaml:"name"`
	Cmd              []string `mapstructure:"cmd" yaml:"cmd"`
	Env              []string `mapstructure:"env" yaml:"env,omitempty"`
	KeepRunning      bool     `mapstructure:"keepRunning" yaml:"keepRunning"`
	ServiceSubDomain string   `mapstructure:"serviceSubDomain" yaml:"serviceSubDomain,omitempty"`
	ServiceHomePath  string   `mapstructure:"serviceHomePath" yaml:"serviceHomePath,omitempty"`
}

// LoadConfig reads a json, toml or yaml file (chosen by extension). Values can
// be overridden with JENKY_ prefixed environment variables, e.g. JENKY_SERVER_PORT.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("jenky")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	hooks := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		envMapHook,
	))
	if err := v.Unmarshal(&cfg, hooks); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	if err := restoreEnvCase(path, &cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	cfg.Path = path
	cfg.resolvePaths(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envMapHook accepts a process env written as {"KEY": "value"} and turns it
// into KEY=value entries.
func envMapHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.Map || to != reflect.TypeOf([]string(nil)) {
		return data, nil
	}
	m, ok := data.(map[string]any)
	if !ok {
		return data, nil
	}
	return envPairs(m), nil
}

func envPairs(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+fmt.Sprint(v))
	}
	sort.Strings(out)
	return out
}

// rawEnvFile mirrors only the env of each process.
type rawEnvFile struct {
	Repos []struct {
		Processes []struct {
			Env any `json:"env" yaml:"env" toml:"env"`
		} `json:"processes" yaml:"processes" toml:"processes"`
	} `json:"repos" yaml:"repos" toml:"repos"`
}

// restoreEnvCase re-reads env maps from the file. Viper lower-cases map keys,
// and environment variable names are case sensitive.
func restoreEnvCase(path string, cfg *Config) error {
	// #nosec G304 -- path is the config file viper just read
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var raw rawEnvFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(b, &raw)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &raw)
	case ".toml":
		err = toml.Unmarshal(b, &raw)
	default:
		return nil
	}
	if err != nil {
		return err
	}
	for i, r := range raw.Repos {
		if i >= len(cfg.Repos) {
			break
		}
		for j, p := range r.Processes {
			if j >= len(cfg.Repos[i].Processes) {
				break
			}
			if m, ok := p.Env.(map[string]any); ok {
				cfg.Repos[i].Processes[j].Env = envPairs(m)
			}
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("cacheDir", DefaultCacheDir)
	v.SetDefault("syncInterval", DefaultSyncInterval)
	v.SetDefault("server.host", DefaultHost)
	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("server.basePath", "")
	v.SetDefault("server.htmlDir", "")
	v.SetDefault("git.command", DefaultGitCommand)
	v.SetDefault("git.cacheTTL", DefaultGitCacheTTL)
	v.SetDefault("git.concurrency", DefaultGitWorkers)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.color", true)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.path", DefaultMetricsPath)
}

// resolvePaths makes directory-like settings absolute relative to base.
func (c *Config) resolvePaths(base string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Clean(filepath.Join(base, p))
	}
	c.CacheDir = abs(c.CacheDir)
	c.Server.HTMLDir = abs(c.Server.HTMLDir)
	c.Log.File = abs(c.Log.File)
	c.Server.TLS.CertFile = abs(c.Server.TLS.CertFile)
	c.Server.TLS.KeyFile = abs(c.Server.TLS.KeyFile)
	c.Server.TLS.Dir = abs(c.Server.TLS.Dir)
	for i := range c.Repos {
		if c.Repos[i].Directory == "" {
			c.Repos[i].Directory = c.Repos[i].RepoName
		}
		c.Repos[i].Directory = abs(c.Repos[i].Directory)
	}
}

// Validate checks the invariants the supervisor relies on.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.AppName) == "" {
		return fmt.Errorf("appName is required")
	}
	if c.SyncInterval < 0 {
		return fmt.Errorf("syncInterval must not be negative")
	}
	if t := c.Server.TLS; t.Enabled && (t.CertFile == "" || t.KeyFile == "") && t.Dir == "" {
		return fmt.Errorf("server.tls requires certFile and keyFile, or dir")
	}
	seen := make(map[string]bool, len(c.Repos))
	for _, r := range c.Repos {
		if r.RepoName == "" {
			return fmt.Errorf("repo requires repoName")
		}
		if seen[r.RepoName] {
			return fmt.Errorf("duplicate repo %s", r.RepoName)
		}
		seen[r.RepoName] = true
		if !IsSafeName(r.RepoName) {
			return fmt.Errorf("invalid repoName %q: allowed [A-Za-z0-9._-]", r.RepoName)
		}
		procs := make(map[string]bool, len(r.Processes))
		for _, p := range r.Processes {
			if !IsSafeName(p.Name) {
				return fmt.Errorf("repo %s: invalid process name %q: allowed [A-Za-z0-9._-]", r.RepoName, p.Name)
			}
			if procs[p.Name] {
				return fmt.Errorf("repo %s: duplicate process %s", r.RepoName, p.Name)
			}
			procs[p.Name] = true
			if len(p.Cmd) == 0 || strings.TrimSpace(p.Cmd[0]) == "" {
				return fmt.Errorf("repo %s: process %s requires cmd", r.RepoName, p.Name)
			}
			for _, kv := range p.Env {
				if i := strings.IndexByte(kv, '='); i <= 0 {
					return fmt.Errorf("repo %s: process %s: env entry %q must be KEY=VALUE", r.RepoName, p.Name, kv)
				}
			}
		}
	}
	return nil
}

// Repo returns the repo named name.
func (c *Config) Repo(name string) (RepoConfig, bool) {
	for _, r := range c.Repos {
		if r.RepoName == name {
			return r, true
		}
	}
	return RepoConfig{}, false
}

// IsSafeName reports whether s can be used as a single file name component.
// Allowed characters: A-Z a-z 0-9 . _ - and no "..".
func IsSafeName(s string) bool {
	if s == "" || strings.Contains(s, "..") {
		return false
	}
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '_' || r == '-' {
			continue
		}
		return false
	}
	return true
}
