// Package manager keeps configured repository processes in their desired
// state and assembles the RepoDict served by the API.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/loykin/jenky/internal/config"
	"github.com/loykin/jenky/internal/detector"
	"github.com/loykin/jenky/internal/env"
	"github.com/loykin/jenky/internal/gitref"
	"github.com/loykin/jenky/internal/history"
	"github.com/loykin/jenky/internal/metrics"
	"github.com/loykin/jenky/internal/process"
)

var (
	ErrRepoNotFound    = errors.New("repo not found")
	ErrProcessNotFound = errors.New("process not found")
	ErrInvalidAction   = errors.New("invalid action")
	ErrInvalidLogType  = errors.New("invalid log type")
)

// Options tune a Manager. Zero values select defaults.
type Options struct {
	Logger      *slog.Logger
	Inspector   *gitref.Inspector
	History     history.Sink
	BaseEnv     env.Var
	StopTimeout time.Duration
}

// Manager supervises every process of every configured repo.
type Manager struct {
	cfg       *config.Config
	logger    *slog.Logger
	inspector *gitref.Inspector
	hist      history.Sink
	baseEnv   env.Var
	stopAfter time.Duration

	// fixed after New; each entry carries its own lock
	entries map[string]*procEntry
}

type procEntry struct {
	mu          sync.Mutex
	repo        string
	dir         string
	proc        config.ProcessConfig
	keepRunning bool
	pidFile     string
	det         detector.Detector
	createTime  int64
}

func key(repo, proc string) string { return repo + "/" + proc }

// New builds a Manager for cfg. Desired state starts from each process'
// keepRunning setting.
func New(cfg *config.Config, opts Options) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Inspector == nil {
		in, err := gitref.NewInspector(gitref.InspectorConfig{
			Command:     cfg.Git.Command,
			CacheTTL:    cfg.Git.CacheTTL,
			Concurrency: cfg.Git.Concurrency,
			Logger:      opts.Logger,
		})
		if err != nil {
			return nil, err
		}
		opts.Inspector = in
	}
	if opts.BaseEnv == nil {
		opts.BaseEnv = env.FromOS()
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = process.DefaultStopTimeout
	}
	m := &Manager{
		cfg:       cfg,
		logger:    opts.Logger,
		inspector: opts.Inspector,
		hist:      opts.History,
		baseEnv:   opts.BaseEnv,
		stopAfter: opts.StopTimeout,
		entries:   make(map[string]*procEntry),
	}
	for _, r := range cfg.Repos {
		for _, p := range r.Processes {
			pf := filepath.Join(cfg.CacheDir, r.RepoName, p.Name+".json")
			m.entries[key(r.RepoName, p.Name)] = &procEntry{
				repo:        r.RepoName,
				dir:         r.Directory,
				proc:        p,
				keepRunning: p.KeepRunning,
				pidFile:     pf,
				det:         detector.PIDFileDetector{PIDFile: pf},
			}
		}
	}
	return m, nil
}

func (m *Manager) entry(repo, proc string) (*procEntry, error) {
	if _, ok := m.cfg.Repo(repo); !ok {
		return nil, fmt.Errorf("%w: %s", ErrRepoNotFound, repo)
	}
	e, ok := m.entries[key(repo, proc)]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrProcessNotFound, repo, proc)
	}
	return e, nil
}

// Sync brings one process to its desired state.
func (m *Manager) Sync(ctx context.Context, repo, proc string) error {
	e, err := m.entry(repo, proc)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return m.syncLocked(ctx, e, history.ReasonSync)
}

// SyncAll syncs every process and returns the joined errors.
func (m *Manager) SyncAll(ctx context.Context) error {
	start := time.Now()
	defer func() { metrics.ObserveSync(time.Since(start).Seconds()) }()

	var errs []error
	for _, r := range m.cfg.Repos {
		for _, p := range r.Processes {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := m.Sync(ctx, r.RepoName, p.Name); err != nil {
				m.logger.Error("sync failed", "repo", r.RepoName, "process", p.Name, "error", err)
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Run syncs immediately and then every interval until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	interval := m.cfg.SyncInterval
	if interval <= 0 {
		interval = config.DefaultSyncInterval
	}
	_ = m.SyncAll(ctx)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_ = m.SyncAll(ctx)
		}
	}
}

// Action applies "kill" or "restart". Kill clears keepRunning and reaps the
// process; restart sets keepRunning, stopping a live process first.
func (m *Manager) Action(ctx context.Context, repo, proc, action string) error {
	e, err := m.entry(repo, proc)
	if err != nil {
		return err
	}
	switch action {
	case ActionKill, ActionRestart:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}
	metrics.IncAction(action)

	e.mu.Lock()
	defer e.mu.Unlock()
	m.logger.Info("process action", "repo", repo, "process", proc, "action", action)
	if action == ActionKill {
		e.keepRunning = false
		return m.syncLocked(ctx, e, history.ReasonKill)
	}
	// a restart usually follows a checkout
	m.inspector.Invalidate(e.dir)
	e.keepRunning = false
	err = m.syncLocked(ctx, e, history.ReasonRestart)
	e.keepRunning = true
	if err != nil {
		return err
	}
	return m.syncLocked(ctx, e, history.ReasonRestart)
}

// syncLocked applies the four-way rule on desired vs observed state.
func (m *Manager) syncLocked(ctx context.Context, e *procEntry, reason string) error {
	p, err := e.det.Find()
	if err != nil {
		m.logger.Error("detecting process", "detector", e.det.Describe(), "error", err)
		// an unreadable pid file cannot describe a live process
		p = nil
	}
	alive := p != nil
	log := m.logger.With("repo", e.repo, "process", e.proc.Name)

	switch {
	case e.keepRunning && alive, !e.keepRunning && !alive:
	case !e.keepRunning && alive:
		log.Warn("Reaping process", "pid", p.Pid)
		killed, err := process.Stop(p, m.stopAfter)
		if err != nil {
			return fmt.Errorf("stop %s/%s: %w", e.repo, e.proc.Name, err)
		}
		metrics.IncStop(e.repo, e.proc.Name, killed)
		m.record(ctx, history.NewEvent(history.EventStop, e.repo, e.proc.Name, p.Pid, reason))
		alive = false
	case e.keepRunning && !alive:
		log.Warn("Restarting process")
		st, err := process.Start(process.Spec{
			Repo: e.repo,
			Name: e.proc.Name,
			Cmd:  e.proc.Cmd,
			Env:  e.proc.Env,
			Dir:  e.dir,
		}, m.baseEnv)
		if err != nil {
			metrics.SetRunning(e.repo, e.proc.Name, false)
			_ = os.Remove(e.pidFile)
			e.createTime = 0
			return err
		}
		if err := detector.WritePIDFile(e.pidFile, st.PID, st.CreateTimeMs); err != nil {
			// without a pid file the next sync would start a second copy
			if aerr := st.Abort(m.stopAfter); aerr != nil {
				log.Error("stopping untracked process", "pid", st.PID, "error", aerr)
			}
			e.createTime = 0
			metrics.SetRunning(e.repo, e.proc.Name, false)
			return fmt.Errorf("write pid file: %w", err)
		}
		metrics.IncStart(e.repo, e.proc.Name)
		m.record(ctx, history.NewEvent(history.EventStart, e.repo, e.proc.Name, int32(st.PID), reason))
		e.createTime = st.CreateTimeMs
		metrics.SetRunning(e.repo, e.proc.Name, true)
		return nil
	}

	metrics.SetRunning(e.repo, e.proc.Name, alive)
	if alive {
		if ms, err := p.CreateTime(); err == nil {
			e.createTime = ms
		}
		return nil
	}
	e.createTime = 0
	if err := os.Remove(e.pidFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (m *Manager) record(ctx context.Context, ev history.Event) {
	if m.hist == nil {
		return
	}
	if err := m.hist.Send(ctx, ev); err != nil {
		m.logger.Warn("history sink failed", "event", ev.Type, "error", err)
	}
}

// LogPath returns the output file for logType of a process. It fails for
// unknown repos and for log types that are not plain file name components.
func (m *Manager) LogPath(repo, proc, logType string) (string, error) {
	r, ok := m.cfg.Repo(repo)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrRepoNotFound, repo)
	}
	if !config.IsSafeName(proc) {
		return "", fmt.Errorf("%w: %s/%s", ErrProcessNotFound, repo, proc)
	}
	if !config.IsSafeName(logType) {
		return "", fmt.Errorf("%w: %q", ErrInvalidLogType, logType)
	}
	return process.LogPath(r.Directory, proc, logType), nil
}

// Close releases the git inspector and history sinks.
func (m *Manager) Close() error {
	m.inspector.Close()
	if m.hist != nil {
		return m.hist.Close()
	}
	return nil
}
