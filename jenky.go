// Package jenky supervises the processes of a set of git working trees and
// serves their state over HTTP.
package jenky

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/loykin/jenky/internal/config"
	"github.com/loykin/jenky/internal/gitref"
	"github.com/loykin/jenky/internal/history"
	"github.com/loykin/jenky/internal/logger"
	"github.com/loykin/jenky/internal/manager"
	"github.com/loykin/jenky/internal/metrics"
	iapi "github.com/loykin/jenky/internal/server"
	itls "github.com/loykin/jenky/internal/tls"
	"github.com/loykin/jenky/pkg/client"
)

// Re-export the wire types for external consumers.

type Repo = client.Repo

type RepoDict = client.RepoDict

type Process = client.Process

type GitRef = client.GitRef

type LogEntry = client.LogEntry

type Config = cfg.Config

type HistorySink = history.Sink

func LoadConfig(path string) (*Config, error) { return cfg.LoadConfig(path) }

// Options tune NewApp.
type Options struct {
	// Stdout receives console logs; nil keeps them off the console.
	Stdout io.Writer
	// Registerer receives the metrics when cfg.Metrics.Enabled.
	// Defaults to prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
	// History overrides the sinks opened from cfg.History.DSNs.
	History HistorySink
}

// App is a configured daemon: logger, supervisor and HTTP API.
type App struct {
	cfg    *Config
	log    *logger.Logger
	mgr    *manager.Manager
	router *iapi.Router
}

// NewApp wires an App from c.
func NewApp(ctx context.Context, c *Config, opts Options) (*App, error) {
	if c == nil {
		return nil, errors.New("nil config")
	}
	lg := logger.New(logger.Config{
		Level:      c.Log.Level,
		Color:      c.Log.Color,
		Stdout:     opts.Stdout,
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
		Compress:   c.Log.Compress,
	})

	sink := opts.History
	if sink == nil && len(c.History.DSNs) > 0 {
		m, err := history.Open(ctx, c.History.DSNs)
		if err != nil {
			_ = lg.Close()
			return nil, err
		}
		sink = m
	}

	in, err := gitref.NewInspector(gitref.InspectorConfig{
		Command:     c.Git.Command,
		CacheTTL:    c.Git.CacheTTL,
		Concurrency: c.Git.Concurrency,
		Logger:      lg.Logger,
	})
	if err != nil {
		_ = lg.Close()
		return nil, err
	}
	mgr, err := manager.New(c, manager.Options{Logger: lg.Logger, Inspector: in, History: sink})
	if err != nil {
		in.Close()
		_ = lg.Close()
		return nil, err
	}

	rc := iapi.RouterConfig{
		BasePath: c.Server.BasePath,
		HTMLDir:  c.Server.HTMLDir,
		Logger:   lg.Logger,
	}
	if c.Metrics.Enabled {
		reg := opts.Registerer
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		if err := metrics.Register(reg); err != nil {
			_ = mgr.Close()
			_ = lg.Close()
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		rc.MetricsPath = c.Metrics.Path
		if opts.Gatherer != nil {
			rc.MetricsHandler = metrics.HandlerFor(opts.Gatherer)
		} else {
			rc.MetricsHandler = metrics.Handler()
		}
	}
	return &App{cfg: c, log: lg, mgr: mgr, router: iapi.NewRouter(mgr, lg.Ring, rc)}, nil
}

// Handler returns the HTTP API.
func (a *App) Handler() http.Handler { return a.router.Handler() }

func (a *App) SyncAll(ctx context.Context) error { return a.mgr.SyncAll(ctx) }

func (a *App) Snapshot(ctx context.Context) (RepoDict, error) { return a.mgr.Snapshot(ctx) }

func (a *App) Action(ctx context.Context, repo, process, action string) error {
	return a.mgr.Action(ctx, repo, process, action)
}

// Run syncs processes every cfg.SyncInterval until ctx is done.
func (a *App) Run(ctx context.Context) { a.mgr.Run(ctx) }

// Logs returns buffered daemon log entries, see /logs.
func (a *App) Logs(created float64) []LogEntry { return a.log.Ring.Since(created) }

// Serve runs the sync loop and the HTTP server on addr until ctx is done.
// An empty addr uses the configured host and port.
func (a *App) Serve(ctx context.Context, addr string) error {
	if addr == "" {
		addr = a.cfg.Server.Addr()
	}
	tc, err := itls.Setup(a.cfg.Server.TLS)
	if err != nil {
		return fmt.Errorf("tls: %w", err)
	}
	srv := iapi.NewServer(addr, a.Handler())
	srv.TLSConfig = tc

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		a.Run(runCtx)
	}()

	errCh := make(chan error, 1)
	go func() {
		if tc != nil {
			errCh <- srv.ListenAndServeTLS("", "")
			return
		}
		errCh <- srv.ListenAndServe()
	}()
	a.log.Info("jenky listening", "addr", addr, "tls", tc != nil, "app", a.cfg.AppName, "repos", len(a.cfg.Repos))

	select {
	case <-ctx.Done():
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		err = srv.Shutdown(shutdownCtx)
		stop()
	case err = <-errCh:
	}
	cancel()
	<-loopDone
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	return err
}

// Close releases sinks, caches and the log file. Supervised processes keep running.
func (a *App) Close() error {
	return errors.Join(a.mgr.Close(), a.log.Close())
}

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
