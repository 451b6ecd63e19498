package client

import (
	"encoding/json"
	"fmt"
)

// Process is the observed state of one supervised process.
// CreateTime is the process start time in Unix milliseconds, 0 when not running.
type Process struct {
	Name       string `json:"name"`
	Running    bool   `json:"running"`
	CreateTime int64  `json:"createTime"`
}

// GitRef is a named git reference (branch or tag). CreatorDate is kept as the
// text git prints and is not parsed.
type GitRef struct {
	RefName     string `json:"refName"`
	CreatorDate string `json:"creatorDate"`
}

// Repo aggregates what the dashboard shows for one repository.
// GitRef is expected to match the RefName of an entry in GitRefs but nothing enforces it.
type Repo struct {
	RepoName   string    `json:"repoName"`
	GitRef     string    `json:"gitRef"`
	GitRefs    []GitRef  `json:"gitRefs"`
	GitMessage string    `json:"gitMessage"`
	Processes  []Process `json:"processes"`
}

// MarshalJSON encodes nil slices as empty arrays; every field is mandatory on the wire.
func (r Repo) MarshalJSON() ([]byte, error) {
	type plain Repo
	p := plain(r)
	if p.GitRefs == nil {
		p.GitRefs = []GitRef{}
	}
	if p.Processes == nil {
		p.Processes = []Process{}
	}
	return json.Marshal(p)
}

// RepoDict maps a repository id to its state.
type RepoDict map[string]Repo

// MarshalJSON encodes a nil dict as {}.
func (d RepoDict) MarshalJSON() ([]byte, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]Repo(d))
}

// Action names accepted by the process endpoint.
const (
	ActionKill    = "kill"
	ActionRestart = "restart"
)

// ActionRequest is the body of POST /repos/{repo}/processes/{process}.
type ActionRequest struct {
	Action string `json:"action"`
}

// ActionResponse echoes the applied action.
type ActionResponse struct {
	RepoID    string `json:"repo_id"`
	ProcessID string `json:"process_id"`
	Action    string `json:"action"`
}

// LogEntry is one formatted daemon log record.
// Created is the record time in Unix seconds and doubles as a cursor for /logs.
// On the wire an entry is the pair [created, message].
type LogEntry struct {
	Created float64
	Message string
}

func (e LogEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{e.Created, e.Message})
}

func (e *LogEntry) UnmarshalJSON(b []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("log entry: want [created, message], got %d elements", len(pair))
	}
	if err := json.Unmarshal(pair[0], &e.Created); err != nil {
		return fmt.Errorf("log entry created: %w", err)
	}
	if err := json.Unmarshal(pair[1], &e.Message); err != nil {
		return fmt.Errorf("log entry message: %w", err)
	}
	return nil
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}
