package process

import (
	"fmt"
	"slices"
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// DefaultStopTimeout is how long Stop waits after SIGTERM before killing.
const DefaultStopTimeout = 3 * time.Second

// Stop terminates p's process group, waits up to timeout, then kills survivors.
// It returns true if the process had to be killed.
func Stop(p *gopsproc.Process, timeout time.Duration) (bool, error) {
	if timeout <= 0 {
		timeout = DefaultStopTimeout
	}
	pid := int(p.Pid)
	if err := terminate(pid); err != nil && alive(p) {
		return false, err
	}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !alive(p) {
			return false, nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	if err := kill(pid); err != nil && alive(p) {
		return true, err
	}
	return true, nil
}

// alive treats zombies as exited; whoever owns them reaps them.
func alive(p *gopsproc.Process) bool {
	running, err := p.IsRunning()
	if err != nil || !running {
		return false
	}
	if st, err := p.Status(); err == nil && slices.Contains(st, gopsproc.Zombie) {
		return false
	}
	return true
}

// Abort stops a process launched by Start and waits, up to timeout, for it
// to be reaped.
func (s *Started) Abort(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultStopTimeout
	}
	if p, err := gopsproc.NewProcess(int32(s.PID)); err == nil {
		if _, err := Stop(p, timeout); err != nil {
			return err
		}
	}
	select {
	case <-s.Done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("pid %d not reaped after %v", s.PID, timeout)
	}
}
