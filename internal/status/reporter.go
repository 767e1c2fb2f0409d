package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"

	"github.com/matrixwatcher/watchctl/internal/detector"
	"github.com/matrixwatcher/watchctl/internal/metrics"
	"github.com/matrixwatcher/watchctl/internal/registry"
)

// ErrAPIUnavailable is the sentinel for any failure while querying the local
// cluster API: connection refused, timeout, bad status, malformed payload.
var ErrAPIUnavailable = errors.New("API not responding")

const (
	DefaultHealthTimeout   = 10 * time.Second
	DefaultClustersTimeout = 5 * time.Second
	DefaultMaxClusters     = 3
)

// ProcessStatus is the liveness and resource snapshot for one registry entry.
// Derived transiently per query, never persisted.
type ProcessStatus struct {
	Label      string  `json:"label"`
	Running    bool    `json:"running"`
	PID        int32   `json:"pid,omitempty"`
	CPUPercent float64 `json:"cpu_percent,omitempty"`
	MemPercent float64 `json:"mem_percent,omitempty"`
}

// HealthCheckResult is the outcome of the single outbound website probe.
type HealthCheckResult struct {
	URL        string `json:"url"`
	HTTPStatus int    `json:"http_status,omitempty"`
	OK         bool   `json:"ok"`
	Reason     string `json:"reason,omitempty"`
}

// Cluster is one recent anomaly cluster as served by the PWA API. The JSON
// contract is owned by the sensor system; we only consume it.
type Cluster struct {
	Level   int    `json:"level"`
	Sources string `json:"sources_str"`
	Time    string `json:"time_str"`
}

// Report is the full status snapshot: one entry per registered process, the
// website health check, and up to MaxClusters recent clusters.
type Report struct {
	Processes   []ProcessStatus   `json:"processes"`
	Website     HealthCheckResult `json:"website"`
	Clusters    []Cluster         `json:"clusters,omitempty"`
	APIDown     bool              `json:"api_down,omitempty"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// Config holds the reporter's external endpoints. RunDir, when set, lets
// process checks consult the PID files recorded at spawn before scanning
// the process table.
type Config struct {
	HealthURL       string
	HealthTimeout   time.Duration
	ClustersURL     string
	ClustersTimeout time.Duration
	MaxClusters     int
	RunDir          string
}

func (c *Config) normalize() {
	if c.HealthTimeout <= 0 {
		c.HealthTimeout = DefaultHealthTimeout
	}
	if c.ClustersTimeout <= 0 {
		c.ClustersTimeout = DefaultClustersTimeout
	}
	if c.MaxClusters <= 0 {
		c.MaxClusters = DefaultMaxClusters
	}
}

// Reporter performs stateless status queries. Each check is an independent
// one-shot query; nothing is cached between invocations.
type Reporter struct {
	reg    *registry.Registry
	cfg    Config
	client *http.Client
}

func NewReporter(reg *registry.Registry, cfg Config) *Reporter {
	cfg.normalize()
	return &Reporter{reg: reg, cfg: cfg, client: &http.Client{}}
}

// CheckProcess resolves the process for label and reads its CPU and memory
// percentages. The PID recorded at spawn is preferred when it still points
// at a matching process; otherwise the process table is scanned for the
// first command line containing pattern (lowest PID on ties). It never
// fails: scan or read errors degrade to not-running or zero usage.
func (r *Reporter) CheckProcess(label, pattern string) ProcessStatus {
	st := ProcessStatus{Label: label}
	pid := r.recordedPID(label, pattern)
	if pid == 0 {
		var err error
		pid, err = detector.PatternDetector{Pattern: pattern}.First()
		if err != nil || pid == 0 {
			metrics.SetProcessUp(label, false)
			return st
		}
	}
	st.Running = true
	st.PID = pid
	if p, err := gopsproc.NewProcess(pid); err == nil {
		if cpu, err := p.CPUPercent(); err == nil {
			st.CPUPercent = cpu
		}
		if mem, err := p.MemoryPercent(); err == nil {
			st.MemPercent = float64(mem)
		}
	}
	metrics.SetProcessUp(label, true)
	metrics.SetProcessUsage(label, st.CPUPercent, st.MemPercent)
	return st
}

// recordedPID reads the spawn-time PID file and validates that the PID
// still belongs to a process matching pattern; a recycled or stale PID
// yields 0 so the caller falls back to the table scan.
func (r *Reporter) recordedPID(label, pattern string) int32 {
	pid, err := (detector.PIDFileDetector{
		PIDFile: registry.PIDFilePath(r.cfg.RunDir, label),
	}).PID()
	if err != nil || pid <= 0 {
		return 0
	}
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return 0
	}
	cmdline, err := p.Cmdline()
	if err != nil || !strings.Contains(cmdline, pattern) {
		return 0
	}
	return int32(pid)
}

// CheckWebsite issues one GET bounded by the configured timeout. HTTP 200
// means healthy; any other status, a network error or a timeout does not.
// No retries.
func (r *Reporter) CheckWebsite(ctx context.Context) HealthCheckResult {
	res := HealthCheckResult{URL: r.cfg.HealthURL}
	ctx, cancel := context.WithTimeout(ctx, r.cfg.HealthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.HealthURL, nil)
	if err != nil {
		res.Reason = err.Error()
		metrics.SetWebsiteUp(false)
		return res
	}
	req.Header.Set("User-Agent", "watchctl/1.0")
	resp, err := r.client.Do(req)
	if err != nil {
		res.Reason = err.Error()
		metrics.SetWebsiteUp(false)
		return res
	}
	defer func() { _ = resp.Body.Close() }()
	res.HTTPStatus = resp.StatusCode
	res.OK = resp.StatusCode == http.StatusOK
	if !res.OK {
		res.Reason = fmt.Sprintf("status %d", resp.StatusCode)
	}
	metrics.SetWebsiteUp(res.OK)
	return res
}

// RecentClusters queries the local PWA API for recent anomaly clusters and
// returns at most MaxClusters entries in server order. Any failure maps to
// ErrAPIUnavailable; nothing is ever raised past that sentinel.
func (r *Reporter) RecentClusters(ctx context.Context) ([]Cluster, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ClustersTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.ClustersURL, nil)
	if err != nil {
		return nil, ErrAPIUnavailable
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, ErrAPIUnavailable
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, ErrAPIUnavailable
	}
	var payload struct {
		Levels []Cluster `json:"levels"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, ErrAPIUnavailable
	}
	clusters := payload.Levels
	if len(clusters) > r.cfg.MaxClusters {
		clusters = clusters[:r.cfg.MaxClusters]
	}
	return clusters, nil
}

// Run assembles the full report sequentially: every registry entry, the
// website probe, then the cluster query.
func (r *Reporter) Run(ctx context.Context) Report {
	rep := Report{GeneratedAt: time.Now()}
	for _, s := range r.reg.Specs() {
		rep.Processes = append(rep.Processes, r.CheckProcess(s.Label, s.Pattern))
	}
	rep.Website = r.CheckWebsite(ctx)
	clusters, err := r.RecentClusters(ctx)
	if err != nil {
		rep.APIDown = true
	} else {
		rep.Clusters = clusters
	}
	return rep
}
