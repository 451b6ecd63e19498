package manager

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/loykin/jenky/internal/config"
	"github.com/loykin/jenky/internal/gitref"
	"github.com/loykin/jenky/internal/metrics"
	"github.com/loykin/jenky/pkg/client"
)

const (
	ActionKill    = client.ActionKill
	ActionRestart = client.ActionRestart
)

// Snapshot observes every repo in parallel. Git failures degrade the git
// fields of a repo; only cancellation fails the whole snapshot.
func (m *Manager) Snapshot(ctx context.Context) (client.RepoDict, error) {
	out := make(client.RepoDict, len(m.cfg.Repos))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, r := range m.cfg.Repos {
		g.Go(func() error {
			repo, err := m.repoState(gctx, r)
			if err != nil {
				return err
			}
			mu.Lock()
			out[r.RepoName] = repo
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *Manager) repoState(ctx context.Context, r config.RepoConfig) (client.Repo, error) {
	repo := client.Repo{
		RepoName:  r.RepoName,
		GitRefs:   []client.GitRef{},
		Processes: make([]client.Process, 0, len(r.Processes)),
	}
	info, err := m.inspector.Inspect(ctx, r.Directory)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return client.Repo{}, err
	case err != nil:
		m.logger.Error("inspect git", "repo", r.RepoName, "error", err)
		metrics.IncGitError(r.RepoName)
		repo.GitRef = gitref.NoRef
	default:
		if info.CLIErr != nil {
			metrics.IncGitError(r.RepoName)
		}
		repo.GitRef = info.Ref
		if info.Refs != nil {
			repo.GitRefs = info.Refs
		}
		repo.GitMessage = info.Message
	}

	for _, p := range r.Processes {
		repo.Processes = append(repo.Processes, m.processState(r.RepoName, p.Name))
	}
	return repo, nil
}

func (m *Manager) processState(repo, name string) client.Process {
	st := client.Process{Name: name}
	e, ok := m.entries[key(repo, name)]
	if !ok {
		return st
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	p, err := e.det.Find()
	if err != nil || p == nil {
		return st
	}
	st.Running = true
	if ms, err := p.CreateTime(); err == nil {
		st.CreateTime = ms
	} else {
		st.CreateTime = e.createTime
	}
	return st
}
