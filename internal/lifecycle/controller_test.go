//go:build !windows

package lifecycle

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"syscall"
	"testing"
	"time"

	"github.com/matrixwatcher/watchctl/internal/detector"
	"github.com/matrixwatcher/watchctl/internal/history"
	"github.com/matrixwatcher/watchctl/internal/registry"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix-like environment")
	}
}

func marker(t *testing.T) string {
	t.Helper()
	return fmt.Sprintf("watchctl_lc_%d", time.Now().UnixNano())
}

// memorySink records events for assertions.
type memorySink struct{ events []history.Event }

func (m *memorySink) Send(_ context.Context, e history.Event) error {
	m.events = append(m.events, e)
	return nil
}

func newController(t *testing.T, specs []registry.Spec, sink history.Sink) *Controller {
	t.Helper()
	reg, err := registry.New(specs)
	if err != nil {
		t.Fatal(err)
	}
	opts := []Option{WithSettle(10 * time.Millisecond)}
	if sink != nil {
		opts = append(opts, WithHistorySinks(sink))
	}
	return New(reg, t.TempDir(), nil, opts...)
}

func TestStopAllNothingRunning(t *testing.T) {
	c := newController(t, []registry.Spec{
		{Label: "A", Pattern: "__watchctl_lc_none__"},
	}, nil)
	results := c.StopAll(context.Background())
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Found || results[0].Err != nil {
		t.Fatalf("absence of a match must be a clean not-running outcome: %#v", results[0])
	}
}

func TestStartAllThenStopAll(t *testing.T) {
	requireUnix(t)
	mk := marker(t)
	sink := &memorySink{}
	logPath := filepath.Join(t.TempDir(), "a.log")
	c := newController(t, []registry.Spec{
		{Label: "A", Pattern: mk, Command: fmt.Sprintf("sh -c 'sleep 30 # %s'", mk), LogPath: logPath},
	}, sink)

	ctx := context.Background()
	stopped, started := c.StartAll(ctx)
	if len(stopped) != 1 || stopped[0].Found {
		t.Fatalf("initial stop should find nothing: %#v", stopped)
	}
	if len(started) != 1 || started[0].Err != nil || started[0].PID == 0 {
		t.Fatalf("start failed: %#v", started)
	}
	defer func() { _ = syscall.Kill(-started[0].PID, syscall.SIGKILL) }()

	// spawned process visible through the pattern scan with the recorded PID
	deadline := time.Now().Add(2 * time.Second)
	for {
		pid, err := (detector.PatternDetector{Pattern: mk}).First()
		if err != nil {
			t.Fatal(err)
		}
		if int(pid) == started[0].PID {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("spawned pid %d not visible via pattern scan", started[0].PID)
		}
		time.Sleep(20 * time.Millisecond)
	}

	// pid file written
	b, err := os.ReadFile(c.PIDFilePath("A"))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != strconv.Itoa(started[0].PID) {
		t.Fatalf("pid file %q != %d", b, started[0].PID)
	}

	results := c.StopAll(ctx)
	if !results[0].Found || results[0].Err != nil {
		t.Fatalf("stop should find the running process: %#v", results[0])
	}
	// SIGTERM is fire-and-forget; give the shell a moment to die
	deadline = time.Now().Add(2 * time.Second)
	for {
		alive, _ := (detector.PatternDetector{Pattern: mk}).Alive()
		if !alive {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("process still alive after StopAll")
		}
		time.Sleep(20 * time.Millisecond)
	}
	if _, err := os.Stat(c.PIDFilePath("A")); !os.IsNotExist(err) {
		t.Fatalf("pid file should be removed after stop")
	}

	// history: one start and one stop event
	var starts, stops int
	for _, e := range sink.events {
		switch e.Type {
		case history.EventStart:
			starts++
		case history.EventStop:
			stops++
		}
	}
	if starts != 1 || stops != 1 {
		t.Fatalf("expected 1 start and 1 stop event, got %d/%d", starts, stops)
	}
}

func TestStartAllSkipsUnmanagedAndMissingArtifact(t *testing.T) {
	requireUnix(t)
	c := newController(t, []registry.Spec{
		{Label: "Tunnel", Pattern: "__watchctl_lc_tunnel__"},
		{Label: "Oracle", Pattern: "__watchctl_lc_oracle__", Command: "true",
			Optional: true, Artifact: filepath.Join(t.TempDir(), "missing.py")},
	}, nil)

	_, started := c.StartAll(context.Background())
	if len(started) != 2 {
		t.Fatalf("expected 2 results, got %d", len(started))
	}
	for _, r := range started {
		if !r.Skipped || r.Err != nil {
			t.Fatalf("expected skip without error: %#v", r)
		}
	}
}

func TestStartAllRunsOptionalWhenArtifactExists(t *testing.T) {
	requireUnix(t)
	artifact := filepath.Join(t.TempDir(), "oracle_instance_creator.py")
	if err := os.WriteFile(artifact, []byte("# stub"), 0o600); err != nil {
		t.Fatal(err)
	}
	c := newController(t, []registry.Spec{
		{Label: "Oracle", Pattern: "__watchctl_lc_opt__", Command: "true",
			Optional: true, Artifact: artifact},
	}, nil)

	_, started := c.StartAll(context.Background())
	if started[0].Skipped || started[0].Err != nil || started[0].PID == 0 {
		t.Fatalf("optional process with artifact should spawn: %#v", started[0])
	}
}

func TestSpawnFailureIsNonFatal(t *testing.T) {
	requireUnix(t)
	c := newController(t, []registry.Spec{
		{Label: "Bad", Pattern: "__watchctl_lc_bad__", Command: "/nonexistent/binary"},
	}, nil)
	_, started := c.StartAll(context.Background())
	if started[0].Err == nil {
		t.Fatalf("expected spawn error to be reported")
	}
}

func TestBuildCommand(t *testing.T) {
	requireUnix(t)
	c := buildCommand("")
	if c.Path != "/bin/true" {
		t.Fatalf("empty command should be /bin/true, got %q", c.Path)
	}
	c = buildCommand("python3 main.py")
	if len(c.Args) != 2 || c.Args[0] != "python3" || c.Args[1] != "main.py" {
		t.Fatalf("direct exec args wrong: %#v", c.Args)
	}
	c = buildCommand("python3 main.py >> out.log 2>&1")
	if c.Args[0] != "/bin/sh" || c.Args[1] != "-c" {
		t.Fatalf("metacharacters should route through sh -c: %#v", c.Args)
	}
}

func TestRecordHealth(t *testing.T) {
	sink := &memorySink{}
	c := newController(t, []registry.Spec{
		{Label: "A", Pattern: "__watchctl_lc_none__"},
	}, sink)

	c.RecordHealth(context.Background(), false, "https://example.org")
	if len(sink.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(sink.events))
	}
	e := sink.events[0]
	if e.Type != history.EventHealth || e.OK || e.Detail != "https://example.org" {
		t.Fatalf("unexpected event: %+v", e)
	}
}

func TestStopAllUsesRecordedPIDWhenPatternMisses(t *testing.T) {
	requireUnix(t)
	mk := marker(t)
	c := newController(t, []registry.Spec{
		{Label: "A", Pattern: "__watchctl_lc_no_such_pattern__"},
	}, nil)

	// a live process the pattern scan cannot see, known only via its PID file
	cmd := exec.Command("sh", "-c", "sleep 30 # "+mk)
	if err := cmd.Start(); err != nil {
		t.Fatal(err)
	}
	defer func() {
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
	}()
	pid := cmd.Process.Pid
	if err := os.WriteFile(c.PIDFilePath("A"), []byte(strconv.Itoa(pid)), 0o600); err != nil {
		t.Fatal(err)
	}

	results := c.StopAll(context.Background())
	if len(results) != 1 || !results[0].Found || results[0].Err != nil {
		t.Fatalf("recorded pid should be signaled: %#v", results[0])
	}
	if len(results[0].PIDs) != 1 || results[0].PIDs[0] != int32(pid) {
		t.Fatalf("expected pids=[%d], got %v", pid, results[0].PIDs)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		alive, _ := (detector.PIDDetector{PID: pid}).Alive()
		if !alive {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("recorded pid %d still alive after StopAll", pid)
		}
		time.Sleep(20 * time.Millisecond)
	}
	if _, err := os.Stat(c.PIDFilePath("A")); !os.IsNotExist(err) {
		t.Fatalf("pid file should be removed after stop")
	}
}

func TestStopAllIgnoresStalePIDFile(t *testing.T) {
	c := newController(t, []registry.Spec{
		{Label: "A", Pattern: "__watchctl_lc_no_such_pattern__"},
	}, nil)

	// a pid that cannot exist: stale leftover from a previous boot
	if err := os.WriteFile(c.PIDFilePath("A"), []byte("-42"), 0o600); err != nil {
		t.Fatal(err)
	}
	results := c.StopAll(context.Background())
	if results[0].Found || results[0].Err != nil {
		t.Fatalf("stale pid file must read as not running: %#v", results[0])
	}
}
