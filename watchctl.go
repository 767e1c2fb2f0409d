package watchctl

import (
	"context"
	"log/slog"
	"net/http"

	cfg "github.com/matrixwatcher/watchctl/internal/config"
	"github.com/matrixwatcher/watchctl/internal/history"
	"github.com/matrixwatcher/watchctl/internal/history/factory"
	"github.com/matrixwatcher/watchctl/internal/lifecycle"
	"github.com/matrixwatcher/watchctl/internal/registry"
	iapi "github.com/matrixwatcher/watchctl/internal/server"
	"github.com/matrixwatcher/watchctl/internal/status"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Spec = registry.Spec

type Registry = registry.Registry

type StopResult = lifecycle.StopResult

type StartResult = lifecycle.StartResult

type Report = status.Report

type ProcessStatus = status.ProcessStatus

type Cluster = status.Cluster

type Config = cfg.Config

type HistorySink = history.Sink

// ErrAPIUnavailable is returned when the local anomaly API cannot be reached.
var ErrAPIUnavailable = status.ErrAPIUnavailable

// Supervisor is a thin facade over the lifecycle controller and status
// reporter. It provides a stable public API for embedding.
type Supervisor struct {
	ctl *lifecycle.Controller
	rep *status.Reporter
}

// LoadConfig reads the TOML file at path. An empty path yields the stock
// configuration.
func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

// DefaultRegistry returns the built-in Matrix Watcher process set.
func DefaultRegistry(baseDir, logDir string) *Registry { return registry.Default(baseDir, logDir) }

// NewHistorySink builds an event sink from a DSN
// (sqlite://, postgres://, clickhouse://, opensearch://).
func NewHistorySink(dsn string) (HistorySink, error) { return factory.NewSinkFromDSN(dsn) }

// New builds a Supervisor from a resolved config.
func New(c *Config, log *slog.Logger, sinks ...HistorySink) *Supervisor {
	opts := []lifecycle.Option{lifecycle.WithLogDefaults(c.LogCfg)}
	if c.Settle > 0 {
		opts = append(opts, lifecycle.WithSettle(c.Settle))
	}
	if len(sinks) > 0 {
		opts = append(opts, lifecycle.WithHistorySinks(sinks...))
	}
	return &Supervisor{
		ctl: lifecycle.New(c.Registry, c.RunDir, log, opts...),
		rep: status.NewReporter(c.Registry, c.Reporter),
	}
}

func (s *Supervisor) StopAll(ctx context.Context) []StopResult { return s.ctl.StopAll(ctx) }

func (s *Supervisor) StartAll(ctx context.Context) ([]StopResult, []StartResult) {
	return s.ctl.StartAll(ctx)
}

func (s *Supervisor) Restart(ctx context.Context) ([]StopResult, []StartResult) {
	return s.ctl.Restart(ctx)
}

func (s *Supervisor) Status(ctx context.Context) Report { return s.rep.Run(ctx) }

// APIHandler returns an http.Handler exposing the supervisor under basePath.
func (s *Supervisor) APIHandler(basePath string) http.Handler {
	return iapi.NewRouter(s.ctl, s.rep, basePath).Handler()
}
