package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/jenky"
	"github.com/loykin/jenky/pkg/client"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "svc-a"), 0o755); err != nil {
		t.Fatal(err)
	}
	content := `appName: demo
repos:
  - repoName: svc-a
    processes:
      - name: web
        cmd: ["sleep", "30"]
        keepRunning: false
`
	p := filepath.Join(dir, "jenky.yaml")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func startDaemon(t *testing.T) (*client.Client, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	path := writeConfig(t)
	c, err := jenky.LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	reg := prometheus.NewRegistry()
	app, err := jenky.NewApp(context.Background(), c, jenky.Options{Registerer: reg})
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(app.Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = app.Close()
	})
	return client.New(client.Config{BaseURL: srv.URL}), srv.URL
}

func TestRunRepos(t *testing.T) {
	cl, _ := startDaemon(t)
	var out bytes.Buffer
	if err := runRepos(context.Background(), cl, &ReposFlags{}, &out); err != nil {
		t.Fatalf("repos: %v", err)
	}
	s := out.String()
	if !strings.Contains(s, "svc-a @ No git ref found") || !strings.Contains(s, "- web: stopped") {
		t.Fatalf("unexpected output:\n%s", s)
	}

	out.Reset()
	if err := runRepos(context.Background(), cl, &ReposFlags{JSON: true}, &out); err != nil {
		t.Fatal(err)
	}
	var dict client.RepoDict
	if err := json.Unmarshal(out.Bytes(), &dict); err != nil {
		t.Fatalf("json output: %v", err)
	}
	if dict["svc-a"].RepoName != "svc-a" {
		t.Fatalf("unexpected dict %+v", dict)
	}
}

func TestRunActionAndLogs(t *testing.T) {
	cl, _ := startDaemon(t)
	ctx := context.Background()
	var out bytes.Buffer
	if err := runAction(ctx, cl, "svc-a", "web", client.ActionKill, &out); err != nil {
		t.Fatalf("kill: %v", err)
	}
	if strings.TrimSpace(out.String()) != "kill svc-a/web" {
		t.Fatalf("unexpected output %q", out.String())
	}
	if err := runAction(ctx, cl, "svc-a", "web", "pause", &out); err == nil {
		t.Fatal("expected invalid action error")
	}
	if err := runAction(ctx, cl, "nope", "web", client.ActionKill, &out); err == nil {
		t.Fatal("expected unknown repo error")
	}

	out.Reset()
	if err := runLogs(ctx, cl, &LogsFlags{}, &out); err != nil {
		t.Fatalf("logs: %v", err)
	}
	if !strings.Contains(out.String(), "process action") {
		t.Fatalf("expected action log line, got:\n%s", out.String())
	}
}

func TestRootCommand_TailAndConfigShow(t *testing.T) {
	_, url := startDaemon(t)

	root := buildRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"--api-url", url, "tail", "svc-a", "web"})
	if err := root.Execute(); err == nil {
		t.Fatal("tail of a never started process should fail with 404")
	}

	path := writeConfig(t)
	root = buildRoot()
	out.Reset()
	root.SetOut(&out)
	root.SetArgs([]string{"config", "show", "--app-config", path})
	if err := root.Execute(); err != nil {
		t.Fatalf("config show: %v", err)
	}
	s := out.String()
	for _, want := range []string{"appName: demo", "repoName: svc-a", "port: 8000", "syncInterval: 5s"} {
		if !strings.Contains(s, want) {
			t.Fatalf("config show missing %q:\n%s", want, s)
		}
	}
}

func TestBuildRoot_Commands(t *testing.T) {
	root := buildRoot()
	want := []string{"serve", "repos", "kill", "restart", "tail", "logs", "config"}
	for _, name := range want {
		c, _, err := root.Find([]string{name})
		if err != nil || c.Name() != name {
			t.Fatalf("command %s not registered: %v", name, err)
		}
	}
	serve, _, _ := root.Find([]string{"serve"})
	if f := serve.Flags().Lookup("app-config"); f == nil || f.DefValue != "jenky_app_config.json" {
		t.Fatal("serve --app-config default")
	}
}

func TestRunServe_MissingConfig(t *testing.T) {
	err := runServe(context.Background(), &ServeFlags{AppConfig: filepath.Join(t.TempDir(), "nope.json")}, false, false)
	if err == nil || !strings.Contains(err.Error(), "error loading config") {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestFirstLine(t *testing.T) {
	if got := firstLine("  fix bug\n\nbody"); got != "fix bug" {
		t.Fatalf("got %q", got)
	}
}

func TestRunConfigInit(t *testing.T) {
	out := filepath.Join(t.TempDir(), "app.json")
	var buf bytes.Buffer
	f := &ConfigInitFlags{AppName: "demo", Repos: []string{"api:go", "worker:python"}, Out: out}
	if err := runConfigInit(f, &buf); err != nil {
		t.Fatalf("init: %v", err)
	}
	if !strings.Contains(buf.String(), "2 repo(s)") {
		t.Fatalf("unexpected output %q", buf.String())
	}
	c, err := jenky.LoadConfig(out)
	if err != nil {
		t.Fatalf("generated config: %v", err)
	}
	if c.AppName != "demo" || len(c.Repos) != 2 {
		t.Fatalf("unexpected config %+v", c)
	}

	if err := runConfigInit(f, &buf); err == nil {
		t.Fatal("expected refusal to overwrite")
	}
	f.Force = true
	f.Repos = []string{"bad:cobol"}
	if err := runConfigInit(f, &buf); err == nil {
		t.Fatal("expected unknown kind error")
	}
}
