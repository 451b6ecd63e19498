package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/loykin/jenky/internal/detector"
	"github.com/loykin/jenky/internal/env"
)

// Started describes a freshly launched process.
type Started struct {
	PID          int
	CreateTimeMs int64
	// Done is closed once the child has exited and been reaped.
	Done <-chan struct{}
}

// Start launches spec in its own session with stdin on the null device and
// stdout/stderr truncated into spec.OutPath(). base is the environment the
// spec's Env is layered over.
func Start(spec Spec, base env.Var) (*Started, error) {
	if len(spec.Cmd) == 0 {
		return nil, errors.New("empty command")
	}
	args, extra := resolvePython(spec.Dir, spec.Cmd)

	outPath := spec.OutPath()
	if err := os.MkdirAll(filepath.Dir(outPath), 0o750); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	// #nosec G304 -- path built from validated names
	out, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open output %s: %w", outPath, err)
	}
	// the child holds its own descriptor after Start
	defer func() { _ = out.Close() }()

	// #nosec G204 -- command comes from daemon config
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = env.Merge(base, extra, env.Parse(spec.Env))
	cmd.Stdout = out
	cmd.Stderr = out
	configureSysProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s/%s: %w", spec.Repo, spec.Name, err)
	}
	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()
	pid := cmd.Process.Pid
	return &Started{PID: pid, CreateTimeMs: detector.CreateTimeMs(pid), Done: done}, nil
}
