//go:build !windows

package lifecycle

import (
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/matrixwatcher/watchctl/internal/logger"
	"github.com/matrixwatcher/watchctl/internal/registry"
)

// buildCommand constructs an *exec.Cmd for the spec's command string.
// It avoids invoking a shell unless obvious shell metacharacters are present
// (G204 mitigation).
func buildCommand(cmdStr string) *exec.Cmd {
	cmdStr = strings.TrimSpace(cmdStr)
	if cmdStr == "" {
		// #nosec G204
		return exec.Command("/bin/true")
	}
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		// #nosec G204
		return exec.Command("/bin/sh", "-c", cmdStr)
	}
	parts := strings.Fields(cmdStr)
	name := parts[0]
	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}
	// #nosec G204
	return exec.Command(name, args...)
}

// spawn launches the process detached: own process group, stdin from
// /dev/null, stdout and stderr appended to the rotating log writer. The
// child is reaped in the background so long-lived callers accumulate no
// zombies; beyond that nothing supervises it.
func spawn(s registry.Spec, logCfg logger.Config) (int, error) {
	cmd := buildCommand(s.Command)
	if s.WorkDir != "" {
		cmd.Dir = s.WorkDir
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	null, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return 0, err
	}
	cmd.Stdin = null

	w, err := logCfg.Writer()
	if err != nil {
		_ = null.Close()
		return 0, err
	}
	if w != nil {
		cmd.Stdout = w
		cmd.Stderr = w
	} else {
		cmd.Stdout = null
		cmd.Stderr = null
	}

	if err := cmd.Start(); err != nil {
		_ = null.Close()
		if w != nil {
			_ = w.Close()
		}
		return 0, err
	}
	pid := cmd.Process.Pid

	go func() {
		_ = cmd.Wait()
		_ = null.Close()
		if w != nil {
			_ = w.Close()
		}
	}()
	return pid, nil
}

// terminate sends SIGTERM without waiting for exit confirmation.
func terminate(pid int) error {
	return syscall.Kill(pid, syscall.SIGTERM)
}
