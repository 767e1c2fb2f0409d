package lifecycle

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/matrixwatcher/watchctl/internal/detector"
	"github.com/matrixwatcher/watchctl/internal/history"
	"github.com/matrixwatcher/watchctl/internal/logger"
	"github.com/matrixwatcher/watchctl/internal/metrics"
	"github.com/matrixwatcher/watchctl/internal/registry"
)

const DefaultSettle = 2 * time.Second

// StopResult reports the outcome of one stop attempt. A process with no
// match is Found=false, which is "already stopped", never an error.
type StopResult struct {
	Label string  `json:"label"`
	Found bool    `json:"found"`
	PIDs  []int32 `json:"pids,omitempty"`
	Err   error   `json:"-"`
}

// StartResult reports the outcome of one spawn attempt.
type StartResult struct {
	Label      string `json:"label"`
	PID        int    `json:"pid,omitempty"`
	Skipped    bool   `json:"skipped,omitempty"`
	SkipReason string `json:"skip_reason,omitempty"`
	Err        error  `json:"-"`
}

// Controller starts and stops the registered processes. Spawns are
// fire-and-forget: once a process is running the controller retains no
// supervision over it beyond the run-dir PID file.
type Controller struct {
	reg    *registry.Registry
	runDir string
	settle time.Duration
	logCfg logger.Config // rotation defaults; Path comes from each spec
	sinks  []history.Sink
	log    *slog.Logger
}

type Option func(*Controller)

// WithSettle overrides the pause between stop-all and the spawns.
func WithSettle(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.settle = d
		}
	}
}

// WithHistorySinks forwards lifecycle events to external sinks, best-effort.
func WithHistorySinks(sinks ...history.Sink) Option {
	return func(c *Controller) { c.sinks = sinks }
}

// WithLogDefaults sets rotation defaults for spawned process logs.
func WithLogDefaults(cfg logger.Config) Option {
	return func(c *Controller) { c.logCfg = cfg }
}

func New(reg *registry.Registry, runDir string, log *slog.Logger, opts ...Option) *Controller {
	if log == nil {
		log = slog.Default()
	}
	c := &Controller{reg: reg, runDir: runDir, settle: DefaultSettle, log: log}
	for _, o := range opts {
		o(c)
	}
	return c
}

// StopAll signals every matching OS process with SIGTERM. It does not wait
// for exit confirmation and never fails fatally; per-process errors are
// carried in the results. The PID recorded at spawn is merged into the
// pattern matches, so a process whose command line drifted from its pattern
// still gets signaled.
func (c *Controller) StopAll(ctx context.Context) []StopResult {
	results := make([]StopResult, 0, c.reg.Len())
	for _, s := range c.reg.Specs() {
		res := StopResult{Label: s.Label}
		pids, err := (detector.PatternDetector{Pattern: s.Pattern}).Find()
		if err != nil {
			res.Err = err
			c.log.Warn("process table scan failed", "label", s.Label, "err", err)
			results = append(results, res)
			continue
		}
		pids = c.mergeRecordedPID(s.Label, pids)
		if len(pids) == 0 {
			c.log.Info("already stopped", "label", s.Label)
			results = append(results, res)
			continue
		}
		res.Found = true
		for _, pid := range pids {
			if err := terminate(int(pid)); err != nil && res.Err == nil {
				res.Err = err
			}
		}
		res.PIDs = pids
		metrics.IncStop(s.Label)
		c.emit(ctx, history.Event{
			Type: history.EventStop, OccurredAt: time.Now().UTC(),
			Label: s.Label, PID: int(pids[0]), OK: res.Err == nil,
		})
		c.log.Info("stopped", "label", s.Label, "pids", pids)
		c.removePIDFile(s.Label)
		results = append(results, res)
	}
	return results
}

// StartAll stops everything first so no duplicate instance competes for the
// same port, waits for the settle pause, then spawns each process that has a
// command. Optional processes are skipped when their artifact is missing.
func (c *Controller) StartAll(ctx context.Context) ([]StopResult, []StartResult) {
	stopped := c.StopAll(ctx)

	select {
	case <-time.After(c.settle):
	case <-ctx.Done():
		return stopped, nil
	}

	results := make([]StartResult, 0, c.reg.Len())
	for _, s := range c.reg.Specs() {
		results = append(results, c.startOne(ctx, s))
	}
	return stopped, results
}

// Restart is stop-then-start; StartAll already stops first, so this is an
// alias kept for a distinct CLI verb and log line.
func (c *Controller) Restart(ctx context.Context) ([]StopResult, []StartResult) {
	c.log.Info("restarting all processes")
	return c.StartAll(ctx)
}

func (c *Controller) startOne(ctx context.Context, s registry.Spec) StartResult {
	res := StartResult{Label: s.Label}
	if !s.Managed() {
		res.Skipped = true
		res.SkipReason = "no command configured"
		return res
	}
	if s.Optional && s.Artifact != "" {
		if _, err := os.Stat(s.Artifact); err != nil {
			res.Skipped = true
			res.SkipReason = "artifact missing: " + s.Artifact
			c.log.Info("skipping optional process", "label", s.Label, "artifact", s.Artifact)
			return res
		}
	}

	logCfg := c.logCfg
	logCfg.Path = s.LogPath
	pid, err := spawn(s, logCfg)
	if err != nil {
		res.Err = err
		c.log.Error("spawn failed", "label", s.Label, "err", err)
		return res
	}
	res.PID = pid
	c.writePIDFile(s.Label, pid)
	metrics.IncStart(s.Label)
	c.emit(ctx, history.Event{
		Type: history.EventStart, OccurredAt: time.Now().UTC(),
		Label: s.Label, PID: pid, OK: true,
	})
	c.log.Info("started", "label", s.Label, "pid", pid)
	return res
}

// RecordHealth forwards a website probe outcome to the history sinks.
func (c *Controller) RecordHealth(ctx context.Context, ok bool, detail string) {
	c.emit(ctx, history.Event{
		Type: history.EventHealth, OccurredAt: time.Now().UTC(),
		OK: ok, Detail: detail,
	})
}

func (c *Controller) emit(ctx context.Context, e history.Event) {
	for _, s := range c.sinks {
		if err := s.Send(ctx, e); err != nil {
			c.log.Warn("history sink write failed", "err", err)
		}
	}
}

// mergeRecordedPID appends the PID-file PID to the pattern matches when it
// refers to a live process the scan missed.
func (c *Controller) mergeRecordedPID(label string, pids []int32) []int32 {
	pid, err := (detector.PIDFileDetector{PIDFile: c.PIDFilePath(label)}).PID()
	if err != nil || pid <= 0 {
		return pids
	}
	for _, p := range pids {
		if p == int32(pid) {
			return pids
		}
	}
	if alive, _ := (detector.PIDDetector{PID: pid}).Alive(); alive {
		pids = append(pids, int32(pid))
	}
	return pids
}

// PIDFilePath returns the run-dir PID file path for a label.
func (c *Controller) PIDFilePath(label string) string {
	return registry.PIDFilePath(c.runDir, label)
}

func (c *Controller) writePIDFile(label string, pid int) {
	if c.runDir == "" {
		return
	}
	_ = os.MkdirAll(c.runDir, 0o750)
	_ = os.WriteFile(c.PIDFilePath(label), []byte(strconv.Itoa(pid)), 0o600)
}

func (c *Controller) removePIDFile(label string) {
	if c.runDir == "" {
		return
	}
	_ = os.Remove(c.PIDFilePath(label))
}
