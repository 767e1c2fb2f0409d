package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/matrixwatcher/watchctl/internal/lifecycle"
	"github.com/matrixwatcher/watchctl/internal/status"
)

// Router exposes the supervisor over HTTP.
// Endpoints:
//
//	GET  {basePath}/status    full status report (processes, website, clusters)
//	POST {basePath}/start     stop then start the managed set
//	POST {basePath}/stop      stop the managed set
//	POST {basePath}/restart   alias for start
//	GET  {basePath}/healthz   liveness probe
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	ctl      *lifecycle.Controller
	rep      *status.Reporter
	basePath string
}

func NewRouter(ctl *lifecycle.Controller, rep *status.Reporter, basePath string) *Router {
	return &Router{ctl: ctl, rep: rep, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.POST("/start", r.handleStart)
	group.POST("/stop", r.handleStop)
	group.POST("/restart", r.handleRestart)
	group.GET("/healthz", r.handleHealthz)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr, basePath string, ctl *lifecycle.Controller, rep *status.Reporter) *http.Server {
	r := NewRouter(ctl, rep, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server
}

type okResp struct {
	OK bool `json:"ok"`
}

type startResp struct {
	OK      bool                    `json:"ok"`
	Stopped []lifecycle.StopResult  `json:"stopped"`
	Results []lifecycle.StartResult `json:"results"`
}

type stopResp struct {
	OK      bool                   `json:"ok"`
	Results []lifecycle.StopResult `json:"results"`
}

func (r *Router) handleStatus(c *gin.Context) {
	report := r.rep.Run(c.Request.Context())
	r.ctl.RecordHealth(c.Request.Context(), report.Website.OK, report.Website.URL)
	writeJSON(c, http.StatusOK, report)
}

func (r *Router) handleStart(c *gin.Context) {
	stopped, results := r.ctl.StartAll(c.Request.Context())
	writeJSON(c, http.StatusOK, startResp{OK: true, Stopped: stopped, Results: results})
}

func (r *Router) handleStop(c *gin.Context) {
	results := r.ctl.StopAll(c.Request.Context())
	writeJSON(c, http.StatusOK, stopResp{OK: true, Results: results})
}

func (r *Router) handleRestart(c *gin.Context) {
	stopped, results := r.ctl.Restart(c.Request.Context())
	writeJSON(c, http.StatusOK, startResp{OK: true, Stopped: stopped, Results: results})
}

func (r *Router) handleHealthz(c *gin.Context) {
	writeJSON(c, http.StatusOK, okResp{OK: true})
}
