package process

import (
	"path/filepath"
)

// OutLogType is the log type of the combined stdout/stderr file.
const OutLogType = "out"

// Spec describes how to launch one repository process.
type Spec struct {
	Repo string
	Name string
	Cmd  []string
	// Env holds "K=V" overrides applied on top of the daemon environment.
	Env []string
	// Dir is the working directory, normally the repository directory.
	Dir string
}

// LogPath returns the file a process writes logType output to, <dir>/<name>.<logType>.
func LogPath(dir, name, logType string) string {
	return filepath.Join(dir, name+"."+logType)
}

// OutPath is where the running process' combined output goes.
func (s Spec) OutPath() string { return LogPath(s.Dir, s.Name, OutLogType) }
