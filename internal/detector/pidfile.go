package detector

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// createTimeTolerance is how far (seconds) a recorded create time may drift
// from the live process before the PID is treated as reused.
const createTimeTolerance = 1.0

// PIDInfo is the content of a pid file. CreateTime is Unix seconds.
type PIDInfo struct {
	PID        int     `json:"pid"`
	CreateTime float64 `json:"create_time"`
}

// WritePIDFile records pid and createTimeMs (Unix milliseconds) at path,
// creating parent directories.
func WritePIDFile(path string, pid int, createTimeMs int64) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	b, err := json.Marshal(PIDInfo{PID: pid, CreateTime: float64(createTimeMs) / 1000})
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

// ReadPIDFile parses a pid file written by WritePIDFile.
func ReadPIDFile(path string) (PIDInfo, error) {
	var info PIDInfo
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return info, err
	}
	if err := json.Unmarshal(b, &info); err != nil {
		return info, fmt.Errorf("invalid pid file %s: %w", path, err)
	}
	if info.PID <= 0 {
		return info, fmt.Errorf("invalid pid %d in %s", info.PID, path)
	}
	return info, nil
}

// PIDFileDetector detects a process via a pid file that also records the
// process create time, so a recycled PID is not mistaken for ours.
type PIDFileDetector struct {
	PIDFile string
}

// Find returns the live process recorded in the pid file, or nil when the file
// is missing, the process is gone or a zombie, or the PID was reused.
// A malformed pid file is an error.
func (d PIDFileDetector) Find() (*gopsproc.Process, error) {
	info, err := ReadPIDFile(d.PIDFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	p, err := gopsproc.NewProcess(int32(info.PID))
	if err != nil {
		// ErrorProcessNotRunning
		return nil, nil
	}
	running, err := p.IsRunning()
	if err != nil || !running {
		return nil, nil
	}
	if st, err := p.Status(); err == nil && slices.Contains(st, gopsproc.Zombie) {
		return nil, nil
	}
	ms, err := p.CreateTime()
	if err != nil {
		// create time hidden from us, e.g. access denied
		return nil, nil
	}
	if math.Abs(float64(ms)/1000-info.CreateTime) >= createTimeTolerance {
		return nil, nil
	}
	return p, nil
}

func (d PIDFileDetector) Describe() string { return "pidfile:" + d.PIDFile }

// CreateTimeMs returns the create time of pid in Unix milliseconds, 0 if unknown.
func CreateTimeMs(pid int) int64 {
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return 0
	}
	ms, err := p.CreateTime()
	if err != nil {
		return 0
	}
	return ms
}
