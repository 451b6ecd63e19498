package process

import (
	"bufio"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/loykin/jenky/internal/env"
)

// resolvePython rewrites a leading "python" to the interpreter of the
// repository's venv/ when venv/pyvenv.cfg exists, returning extra env to set.
func resolvePython(dir string, cmd []string) ([]string, env.Var) {
	if len(cmd) == 0 || cmd[0] != "python" {
		return cmd, nil
	}
	venv := filepath.Join(dir, "venv")
	cfg, err := readPyvenv(filepath.Join(venv, "pyvenv.cfg"))
	if err != nil {
		return cmd, nil
	}
	out := append([]string(nil), cmd...)
	extra := env.Var{"VIRTUAL_ENV": venv}
	if runtime.GOOS == "windows" {
		// The venv python.exe is a launcher that spawns a second process;
		// run the base interpreter and point it at the venv packages instead.
		out[0] = filepath.Join(cfg["home"], "python.exe")
		extra["PYTHONPATH"] = filepath.Join(venv, "Lib", "site-packages")
	} else {
		out[0] = filepath.Join(venv, "bin", "python")
		if sp := sitePackages(venv, cfg); sp != "" {
			extra["PYTHONPATH"] = sp
		}
	}
	return out, extra
}

// sitePackages locates venv/lib/pythonX.Y/site-packages, preferring the
// version recorded in pyvenv.cfg.
func sitePackages(venv string, cfg map[string]string) string {
	for _, k := range []string{"version_info", "version"} {
		parts := strings.SplitN(cfg[k], ".", 3)
		if len(parts) < 2 {
			continue
		}
		p := filepath.Join(venv, "lib", "python"+parts[0]+"."+parts[1], "site-packages")
		if fi, err := os.Stat(p); err == nil && fi.IsDir() {
			return p
		}
	}
	if m, _ := filepath.Glob(filepath.Join(venv, "lib", "python*", "site-packages")); len(m) > 0 {
		return m[0]
	}
	return ""
}

// readPyvenv parses "key = value" lines.
func readPyvenv(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	m := make(map[string]string)
	s := bufio.NewScanner(f)
	for s.Scan() {
		k, v, ok := strings.Cut(s.Text(), "=")
		if !ok {
			continue
		}
		m[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return m, s.Err()
}
