package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, data string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(data), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

// A plain jenky_app_config.json with only repo keys loads with defaults.
func TestLoadConfig_JSONAppConfig(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "jenky_app_config.json", `{
  "appName": "demo",
  "repos": [
    {
      "repoName": "svc-a",
      "directory": "svc-a",
      "remoteUrl": "https://example.invalid/svc-a.git",
      "processes": [
        {"name": "web", "cmd": ["python", "-m", "http.server"], "env": ["PORT=8080"], "keepRunning": true}
      ]
    }
  ]
}`)
	cfg, err := LoadConfig(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AppName != "demo" || len(cfg.Repos) != 1 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	r := cfg.Repos[0]
	if r.Directory != filepath.Join(dir, "svc-a") {
		t.Fatalf("directory not resolved against config dir: %s", r.Directory)
	}
	if r.RemoteURL == "" {
		t.Fatalf("remoteUrl not decoded")
	}
	pc, ok := r.Find("web")
	if !ok || !pc.KeepRunning || len(pc.Cmd) != 3 || pc.Env[0] != "PORT=8080" {
		t.Fatalf("unexpected process: %+v", pc)
	}
	if cfg.SyncInterval != DefaultSyncInterval || cfg.Server.Port != DefaultPort || cfg.Server.Host != DefaultHost {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.CacheDir != filepath.Join(dir, DefaultCacheDir) {
		t.Fatalf("unexpected cache dir %s", cfg.CacheDir)
	}
	if cfg.Git.Command != "git" || cfg.Git.Concurrency != DefaultGitWorkers || cfg.Git.CacheTTL != DefaultGitCacheTTL {
		t.Fatalf("git defaults not applied: %+v", cfg.Git)
	}
}

func TestLoadConfig_TOML(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "jenky.toml", `
appName = "demo"
syncInterval = "250ms"
cacheDir = "/var/tmp/jenky"

[server]
port = 9001
htmlDir = "html"

[metrics]
enabled = true

[history]
dsns = ["sqlite://:memory:"]

[[repos]]
repoName = "a"
directory = "/srv/a"
  [[repos.processes]]
  name = "worker"
  cmd = ["./worker"]
`)
	cfg, err := LoadConfig(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SyncInterval != 250*time.Millisecond {
		t.Fatalf("syncInterval: %v", cfg.SyncInterval)
	}
	if cfg.CacheDir != "/var/tmp/jenky" || cfg.Repos[0].Directory != "/srv/a" {
		t.Fatalf("absolute paths must be kept: %+v", cfg)
	}
	if cfg.Server.Port != 9001 || cfg.Server.HTMLDir != filepath.Join(dir, "html") {
		t.Fatalf("server: %+v", cfg.Server)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Path != DefaultMetricsPath {
		t.Fatalf("metrics: %+v", cfg.Metrics)
	}
	if len(cfg.History.DSNs) != 1 {
		t.Fatalf("history: %+v", cfg.History)
	}
	if cfg.Repos[0].Processes[0].KeepRunning {
		t.Fatalf("keepRunning should default to false")
	}
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "c.yaml", "appName: demo\n")
	t.Setenv("JENKY_SERVER_PORT", "9100")
	cfg, err := LoadConfig(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Fatalf("expected env override, got %d", cfg.Server.Port)
	}
}

func TestLoadConfig_DirectoryDefaultsToRepoName(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "c.yaml", "appName: demo\nrepos:\n  - repoName: r1\n")
	cfg, err := LoadConfig(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Repos[0].Directory != filepath.Join(dir, "r1") {
		t.Fatalf("unexpected directory %s", cfg.Repos[0].Directory)
	}
	if _, ok := cfg.Repo("r1"); !ok {
		t.Fatalf("Repo lookup failed")
	}
	if _, ok := cfg.Repo("nope"); ok {
		t.Fatalf("Repo lookup should fail for unknown name")
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	cases := []struct {
		name string
		data string
		want string
	}{
		{"missing app name", `{"repos": []}`, "appName"},
		{"duplicate repo", `{"appName":"x","repos":[{"repoName":"a"},{"repoName":"a"}]}`, "duplicate repo"},
		{"bad repo name", `{"appName":"x","repos":[{"repoName":"../a"}]}`, "invalid repoName"},
		{"duplicate process", `{"appName":"x","repos":[{"repoName":"a","processes":[{"name":"p","cmd":["x"]},{"name":"p","cmd":["y"]}]}]}`, "duplicate process"},
		{"bad process name", `{"appName":"x","repos":[{"repoName":"a","processes":[{"name":"a/b","cmd":["x"]}]}]}`, "invalid process name"},
		{"missing cmd", `{"appName":"x","repos":[{"repoName":"a","processes":[{"name":"p"}]}]}`, "requires cmd"},
		{"bad env", `{"appName":"x","repos":[{"repoName":"a","processes":[{"name":"p","cmd":["x"],"env":["NOVALUE"]}]}]}`, "KEY=VALUE"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := writeFile(t, t.TempDir(), "c.json", tc.data)
			_, err := LoadConfig(p)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestIsSafeName(t *testing.T) {
	good := []string{"a", "svc-a", "web_1", "v1.2"}
	bad := []string{"", "..", "a/b", `a\b`, "a b", "x..y"}
	for _, s := range good {
		if !IsSafeName(s) {
			t.Errorf("expected %q to be safe", s)
		}
	}
	for _, s := range bad {
		if IsSafeName(s) {
			t.Errorf("expected %q to be unsafe", s)
		}
	}
}

func TestLoadConfig_TLS(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "c.yaml", `appName: x
server:
  tls:
    enabled: true
    dir: certs
    autoGenerate: true
`)
	c, err := LoadConfig(p)
	if err != nil {
		t.Fatal(err)
	}
	if c.Server.TLS.Dir != filepath.Join(dir, "certs") || !c.Server.TLS.AutoGenerate {
		t.Fatalf("unexpected tls config %+v", c.Server.TLS)
	}

	p = writeFile(t, dir, "bad.yaml", "appName: x\nserver:\n  tls:\n    enabled: true\n")
	if _, err := LoadConfig(p); err == nil || !strings.Contains(err.Error(), "server.tls") {
		t.Fatalf("expected tls validation error, got %v", err)
	}
}

func TestLoadConfig_EnvMapForm(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"app.json": `{"appName": "demo", "repos": [{"repoName": "a", "processes": [
			{"name": "web", "cmd": ["./web"], "env": {"HTTP_PORT": "8080", "http_proxy": "http://p", "Retries": 3}},
			{"name": "job", "cmd": ["./job"], "env": ["MODE=batch"]}]}]}`,
		"app.yaml": `
appName: demo
repos:
  - repoName: a
    processes:
      - name: web
        cmd: [./web]
        env: {HTTP_PORT: "8080", http_proxy: "http://p", Retries: 3}
      - name: job
        cmd: [./job]
        env: [MODE=batch]
`,
		"app.toml": `
appName = "demo"
[[repos]]
repoName = "a"
  [[repos.processes]]
  name = "web"
  cmd = ["./web"]
  env = { HTTP_PORT = "8080", http_proxy = "http://p", Retries = 3 }
  [[repos.processes]]
  name = "job"
  cmd = ["./job"]
  env = ["MODE=batch"]
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			cfg, err := LoadConfig(writeFile(t, dir, name, body))
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			web, job := cfg.Repos[0].Processes[0], cfg.Repos[0].Processes[1]
			want := []string{"HTTP_PORT=8080", "Retries=3", "http_proxy=http://p"}
			if !reflect.DeepEqual(web.Env, want) {
				t.Fatalf("map env: got %v want %v", web.Env, want)
			}
			if !reflect.DeepEqual(job.Env, []string{"MODE=batch"}) {
				t.Fatalf("list env: %v", job.Env)
			}
		})
	}
}
