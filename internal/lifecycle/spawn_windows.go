//go:build windows

package lifecycle

import (
	"os"
	"os/exec"
	"strings"

	"github.com/matrixwatcher/watchctl/internal/logger"
	"github.com/matrixwatcher/watchctl/internal/registry"
)

// buildCommand constructs an *exec.Cmd for the spec's command string,
// delegating to cmd /c when shell metacharacters are present.
func buildCommand(cmdStr string) *exec.Cmd {
	cmdStr = strings.TrimSpace(cmdStr)
	if cmdStr == "" {
		// #nosec G204
		return exec.Command("cmd", "/c", "rem")
	}
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		// #nosec G204
		return exec.Command("cmd", "/c", cmdStr)
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

// spawn launches the process with stdout and stderr appended to the
// rotating log writer. The child is reaped in the background.
func spawn(s registry.Spec, logCfg logger.Config) (int, error) {
	cmd := buildCommand(s.Command)
	if s.WorkDir != "" {
		cmd.Dir = s.WorkDir
	}

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

// terminate kills the process; Windows has no SIGTERM equivalent for
// arbitrary PIDs, so this is a hard stop.
func terminate(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}
