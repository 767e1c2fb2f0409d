package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/matrixwatcher/watchctl/internal/config"
	"github.com/matrixwatcher/watchctl/internal/history"
	"github.com/matrixwatcher/watchctl/internal/history/factory"
	"github.com/matrixwatcher/watchctl/internal/lifecycle"
	"github.com/matrixwatcher/watchctl/internal/logger"
	"github.com/matrixwatcher/watchctl/internal/metrics"
	"github.com/matrixwatcher/watchctl/internal/server"
	"github.com/matrixwatcher/watchctl/internal/status"
)

type command struct {
	log *slog.Logger
}

func newCommand() command {
	return command{log: logger.NewDefault(slog.LevelInfo)}
}

func (c command) controller(cfg *config.Config, settle time.Duration) (*lifecycle.Controller, []history.Sink, error) {
	opts := []lifecycle.Option{lifecycle.WithLogDefaults(cfg.LogCfg)}
	if settle > 0 {
		opts = append(opts, lifecycle.WithSettle(settle))
	} else if cfg.Settle > 0 {
		opts = append(opts, lifecycle.WithSettle(cfg.Settle))
	}

	var sinks []history.Sink
	if cfg.History != nil && cfg.History.DSN != "" {
		sink, err := factory.NewSinkFromDSN(cfg.History.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("history sink: %w", err)
		}
		sinks = append(sinks, sink)
		opts = append(opts, lifecycle.WithHistorySinks(sinks...))
	}

	ctl := lifecycle.New(cfg.Registry, cfg.RunDir, c.log, opts...)
	return ctl, sinks, nil
}

func closeSinks(sinks []history.Sink) {
	for _, s := range sinks {
		if cl, ok := s.(interface{ Close() error }); ok {
			_ = cl.Close()
		}
	}
}

// Stop terminates every registered process that is currently running.
func (c command) Stop(f LifecycleFlags) error {
	cfg, err := config.Load(f.ConfigPath)
	if err != nil {
		return err
	}
	ctl, sinks, err := c.controller(cfg, f.Settle)
	if err != nil {
		return err
	}
	defer closeSinks(sinks)

	for _, res := range ctl.StopAll(context.Background()) {
		printStopResult(res)
	}
	return nil
}

// Start stops the registered set and brings it back up.
func (c command) Start(f LifecycleFlags) error {
	cfg, err := config.Load(f.ConfigPath)
	if err != nil {
		return err
	}
	ctl, sinks, err := c.controller(cfg, f.Settle)
	if err != nil {
		return err
	}
	defer closeSinks(sinks)

	stopped, started := ctl.StartAll(context.Background())
	for _, res := range stopped {
		printStopResult(res)
	}
	for _, res := range started {
		printStartResult(res)
	}
	fmt.Println("All processes started.")
	return nil
}

// Restart is start with a fresh stop first; StartAll already does that.
func (c command) Restart(f LifecycleFlags) error {
	return c.Start(f)
}

// Status prints the process table, the website check and recent clusters.
func (c command) Status(f StatusFlags) error {
	cfg, err := config.Load(f.ConfigPath)
	if err != nil {
		return err
	}
	if f.Timeout > 0 {
		cfg.Reporter.HealthTimeout = f.Timeout
		cfg.Reporter.ClustersTimeout = f.Timeout
	}
	rep := status.NewReporter(cfg.Registry, cfg.Reporter)
	report := rep.Run(context.Background())

	if f.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	for _, ps := range report.Processes {
		if ps.Running {
			fmt.Printf("%-18s running  pid=%d cpu=%.1f%% mem=%.1f%%\n",
				ps.Label, ps.PID, ps.CPUPercent, ps.MemPercent)
		} else {
			fmt.Printf("%-18s not running\n", ps.Label)
		}
	}
	if report.Website.OK {
		fmt.Printf("Website %s: healthy (%d)\n", report.Website.URL, report.Website.HTTPStatus)
	} else {
		fmt.Printf("Website %s: unhealthy (%s)\n", report.Website.URL, report.Website.Reason)
	}
	if report.APIDown {
		fmt.Println(status.ErrAPIUnavailable.Error())
		return nil
	}
	if len(report.Clusters) > 0 {
		fmt.Println("Recent clusters:")
		for _, cl := range report.Clusters {
			fmt.Printf("  level=%d  %s  %s\n", cl.Level, cl.Time, cl.Sources)
		}
	}
	return nil
}

// Serve runs the HTTP API until SIGINT/SIGTERM.
func (c command) Serve(f ServeFlags) error {
	cfg, err := config.Load(f.ConfigPath)
	if err != nil {
		return err
	}
	listen := config.DefaultListen
	basePath := config.DefaultBasePath
	if cfg.Server != nil {
		listen = cfg.Server.Listen
		basePath = cfg.Server.BasePath
	}
	if f.Listen != "" {
		listen = f.Listen
	}
	if f.BasePath != "" {
		basePath = f.BasePath
	}

	_ = metrics.RegisterDefault()
	ctl, sinks, err := c.controller(cfg, 0)
	if err != nil {
		return err
	}
	defer closeSinks(sinks)
	rep := status.NewReporter(cfg.Registry, cfg.Reporter)

	srv := server.NewServer(listen, basePath, ctl, rep)
	c.log.Info("http server listening", "addr", listen, "base_path", basePath)

	var metricsSrv *http.Server
	if cfg.Metrics != nil && cfg.Metrics.Enabled && cfg.Metrics.Listen != "" {
		metricsSrv = metrics.Serve(cfg.Metrics.Listen)
		c.log.Info("metrics listening", "addr", cfg.Metrics.Listen)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	c.log.Info("shutting down", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(ctx)
	}
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

func printStopResult(res lifecycle.StopResult) {
	switch {
	case res.Err != nil:
		fmt.Printf("%-18s stop failed: %v\n", res.Label, res.Err)
	case res.Found:
		fmt.Printf("%-18s stopped pids=%v\n", res.Label, res.PIDs)
	default:
		fmt.Printf("%-18s was not running\n", res.Label)
	}
}

func printStartResult(res lifecycle.StartResult) {
	switch {
	case res.Err != nil:
		fmt.Printf("%-18s start failed: %v\n", res.Label, res.Err)
	case res.Skipped:
		fmt.Printf("%-18s skipped (%s)\n", res.Label, res.SkipReason)
	default:
		fmt.Printf("%-18s started pid=%d\n", res.Label, res.PID)
	}
}
