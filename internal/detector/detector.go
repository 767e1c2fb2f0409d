package detector

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Detector is a strategy that determines if a process is running.
// Implementations may scan the process table, check a PID file, or a PID
// number. It must be safe for concurrent use.
type Detector interface {
	// Alive returns true if the process is detected as running.
	Alive() (bool, error)
	// Describe returns a human-readable description of the detection method.
	Describe() string
}

// PIDDetector detects by a provided PID number.
type PIDDetector struct{ PID int }

func (d PIDDetector) Alive() (bool, error) { return pidAlive(d.PID), nil }
func (d PIDDetector) Describe() string     { return fmt.Sprintf("pid:%d", d.PID) }

// PIDFileDetector detects a process via a PID file written at spawn time.
// A missing file means not running, not an error.
type PIDFileDetector struct {
	PIDFile string
}

// PID returns the recorded PID, or 0 when no file exists. A file that
// exists but does not parse is an error.
func (d PIDFileDetector) PID() (int, error) {
	if d.PIDFile == "" {
		return 0, nil
	}
	data, err := os.ReadFile(d.PIDFile)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	first := strings.SplitN(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n", 2)[0]
	pid, err := strconv.Atoi(strings.TrimSpace(first))
	if err != nil {
		return 0, fmt.Errorf("invalid pid in %s: %w", d.PIDFile, err)
	}
	return pid, nil
}

func (d PIDFileDetector) Alive() (bool, error) {
	pid, err := d.PID()
	if err != nil || pid == 0 {
		return false, err
	}
	return pidAlive(pid), nil
}

func (d PIDFileDetector) Describe() string { return "pidfile:" + d.PIDFile }
