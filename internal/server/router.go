package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	mng "github.com/loykin/jenky/internal/manager"
	"github.com/loykin/jenky/internal/process"
	"github.com/loykin/jenky/pkg/client"
)

// Supervisor is the manager surface the API needs.
type Supervisor interface {
	Snapshot(ctx context.Context) (client.RepoDict, error)
	Action(ctx context.Context, repo, proc, action string) error
	LogPath(repo, proc, logType string) (string, error)
}

// LogSource yields recent daemon log entries.
type LogSource interface {
	Since(created float64) []client.LogEntry
}

// Router provides the dashboard API.
// Endpoints (relative to basePath):
//
//	GET  /                                       redirect to /static/index.html
//	GET  /static/*                               files under HTMLDir
//	GET  /repos                                  RepoDict
//	POST /repos/:repo/processes/:process         {"action":"kill"|"restart"}
//	GET  /repos/:repo/processes/:process/:logType text tail of <dir>/<process>.<logType>
//	GET  /logs?created=<float>                   daemon log diff, newest first
//	GET  /metrics                                when a metrics handler is set
type Router struct {
	sup      Supervisor
	logs     LogSource
	basePath string
	cfg      RouterConfig
}

// RouterConfig holds the optional parts of the API.
type RouterConfig struct {
	BasePath       string
	HTMLDir        string
	MetricsPath    string
	MetricsHandler http.Handler
	Logger         *slog.Logger
}

// NewRouter constructs a new Router.
func NewRouter(sup Supervisor, logs LogSource, cfg RouterConfig) *Router {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	return &Router{sup: sup, logs: logs, basePath: sanitizeBase(cfg.BasePath), cfg: cfg}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/", r.handleHome)
	if r.cfg.HTMLDir != "" {
		group.Static("/static", r.cfg.HTMLDir)
	}
	group.GET("/repos", r.handleRepos)
	group.POST("/repos/:repo/processes/:process", r.handleAction)
	group.GET("/repos/:repo/processes/:process/:logType", r.handleProcessLog)
	group.GET("/logs", r.handleLogs)
	if r.cfg.MetricsHandler != nil {
		group.GET(r.cfg.MetricsPath, gin.WrapH(r.cfg.MetricsHandler))
	}
	return g
}

// NewServer starts a standalone HTTP server on addr serving h.
func NewServer(addr string, h http.Handler) *http.Server {
	server := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return server
}

func (r *Router) handleHome(c *gin.Context) {
	c.Redirect(http.StatusTemporaryRedirect, r.basePath+"/static/index.html")
}

func (r *Router) handleRepos(c *gin.Context) {
	dict, err := r.sup.Snapshot(c.Request.Context())
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, client.ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, dict)
}

func (r *Router) handleAction(c *gin.Context) {
	repo, proc := c.Param("repo"), c.Param("process")
	var req client.ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, client.ErrorResponse{Error: "invalid JSON: " + err.Error()})
		return
	}
	if err := r.sup.Action(c.Request.Context(), repo, proc, req.Action); err != nil {
		writeJSON(c, statusFor(err), client.ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, client.ActionResponse{RepoID: repo, ProcessID: proc, Action: req.Action})
}

func (r *Router) handleProcessLog(c *gin.Context) {
	path, err := r.sup.LogPath(c.Param("repo"), c.Param("process"), c.Param("logType"))
	if err != nil {
		writeText(c, http.StatusNotFound, "Not Found")
		return
	}
	lines, err := process.Tail(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeText(c, http.StatusNotFound, "Not Found")
			return
		}
		r.cfg.Logger.Error("tail log", "path", path, "error", err)
		writeText(c, http.StatusInternalServerError, err.Error())
		return
	}
	writeText(c, http.StatusOK, strings.Join(lines, ""))
}

func (r *Router) handleLogs(c *gin.Context) {
	raw := c.Query("created")
	created, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		writeJSON(c, http.StatusBadRequest, client.ErrorResponse{Error: "created must be a number"})
		return
	}
	entries := r.logs.Since(created)
	if entries == nil {
		entries = []client.LogEntry{}
	}
	writeJSON(c, http.StatusOK, entries)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, mng.ErrRepoNotFound), errors.Is(err, mng.ErrProcessNotFound):
		return http.StatusNotFound
	case errors.Is(err, mng.ErrInvalidAction):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
