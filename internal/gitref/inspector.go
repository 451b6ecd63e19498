package gitref

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"golang.org/x/sync/semaphore"

	"github.com/loykin/jenky/pkg/client"
)

// Info is the git view of one working tree.
type Info struct {
	Ref     string
	Refs    []client.GitRef
	Message string
	// CLIErr is set when the git client failed and Refs/Message fell back.
	CLIErr error
}

// InspectorConfig configures an Inspector.
type InspectorConfig struct {
	Command     string        // git executable, default "git"
	CacheTTL    time.Duration // 0 disables caching
	Concurrency int           // max concurrent git invocations, default 4
	Logger      *slog.Logger
}

// Inspector collects Info for working trees, bounding concurrent git
// invocations and caching results per directory.
type Inspector struct {
	cmd    string
	ttl    time.Duration
	sem    *semaphore.Weighted
	cache  *ristretto.Cache[string, Info]
	logger *slog.Logger
}

// NewInspector creates an Inspector.
func NewInspector(cfg InspectorConfig) (*Inspector, error) {
	if cfg.Command == "" {
		cfg.Command = "git"
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 4
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	in := &Inspector{
		cmd:    cfg.Command,
		ttl:    cfg.CacheTTL,
		sem:    semaphore.NewWeighted(int64(cfg.Concurrency)),
		logger: cfg.Logger,
	}
	if cfg.CacheTTL > 0 {
		c, err := ristretto.NewCache(&ristretto.Config[string, Info]{
			NumCounters:        10_000,
			MaxCost:            1_000,
			BufferItems:        64,
			// cost is counted in directories, not bytes
			IgnoreInternalCost: true,
		})
		if err != nil {
			return nil, fmt.Errorf("create git cache: %w", err)
		}
		in.cache = c
	}
	return in, nil
}

// Inspect returns Info for dir. A directory without .git yields Ref NoRef and
// no refs; that is not an error.
func (in *Inspector) Inspect(ctx context.Context, dir string) (Info, error) {
	if in.cache != nil {
		if info, ok := in.cache.Get(dir); ok {
			return info, nil
		}
	}

	info, err := in.inspect(ctx, dir)
	if err != nil {
		return Info{}, err
	}
	if in.cache != nil {
		in.cache.SetWithTTL(dir, info, 1, in.ttl)
		in.cache.Wait()
	}
	return info, nil
}

// Invalidate drops the cached Info for dir.
func (in *Inspector) Invalidate(dir string) {
	if in.cache != nil {
		in.cache.Del(dir)
	}
}

// Close releases the cache.
func (in *Inspector) Close() {
	if in.cache != nil {
		in.cache.Close()
	}
}

func (in *Inspector) inspect(ctx context.Context, dir string) (Info, error) {
	gd, err := GitDir(dir)
	if err != nil {
		return Info{Ref: NoRef, Refs: []client.GitRef{}}, nil
	}
	info := Info{Ref: CurrentRef(dir)}

	if err := in.sem.Acquire(ctx, 1); err != nil {
		return Info{}, err
	}
	defer in.sem.Release(1)

	refs, cliErr := in.forEachRef(ctx, dir)
	if err := ctx.Err(); err != nil {
		// git was killed with the request, not broken
		return Info{}, err
	}
	if cliErr != nil {
		in.logger.Debug("git for-each-ref failed, reading refs from disk", "dir", dir, "error", cliErr)
		names, err := ListRefs(gd)
		if err != nil {
			return Info{}, fmt.Errorf("list refs %s: %w", dir, err)
		}
		refs = make([]client.GitRef, 0, len(names))
		for _, n := range names {
			refs = append(refs, client.GitRef{RefName: n})
		}
		info.CLIErr = cliErr
	}
	info.Refs = refs

	msg, err := in.run(ctx, dir, "log", "-1", "--format=%B")
	if cerr := ctx.Err(); cerr != nil {
		return Info{}, cerr
	}
	if err != nil {
		in.logger.Debug("git log failed", "dir", dir, "error", err)
		if info.CLIErr == nil {
			info.CLIErr = err
		}
	}
	info.Message = strings.TrimRight(msg, "\r\n")
	return info, nil
}

func (in *Inspector) forEachRef(ctx context.Context, dir string) ([]client.GitRef, error) {
	out, err := in.run(ctx, dir,
		"for-each-ref",
		"--sort=-creatordate",
		"--format=%(refname:short)%09%(creatordate:iso-strict)",
		"refs/heads", "refs/tags",
	)
	if err != nil {
		return nil, err
	}
	return parseForEachRef(out), nil
}

func parseForEachRef(out string) []client.GitRef {
	refs := make([]client.GitRef, 0)
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		name, date, _ := strings.Cut(line, "\t")
		refs = append(refs, client.GitRef{RefName: strings.TrimSpace(name), CreatorDate: strings.TrimSpace(date)})
	}
	return refs
}

func (in *Inspector) run(ctx context.Context, dir string, args ...string) (string, error) {
	full := append([]string{"-C", dir}, args...)
	// #nosec G204 -- executable comes from daemon config
	cmd := exec.CommandContext(ctx, in.cmd, full...)
	cmd.WaitDelay = time.Second
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return string(out), nil
}
