package detector

import (
	"os"
	"sort"
	"strings"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// PatternDetector finds OS processes whose full command line contains
// Pattern as a substring, pgrep -f style. The scanning process itself is
// excluded so that a pattern appearing in our own argv does not count.
type PatternDetector struct{ Pattern string }

// Find returns the PIDs of all matching processes, sorted ascending.
// Enumeration errors for individual entries are skipped; a process that
// disappears mid-scan is simply not a match.
func (d PatternDetector) Find() ([]int32, error) {
	procs, err := gopsproc.Processes()
	if err != nil {
		return nil, err
	}
	self := int32(os.Getpid())
	var pids []int32
	for _, p := range procs {
		if p.Pid == self {
			continue
		}
		cmdline, err := p.Cmdline()
		if err != nil || cmdline == "" {
			continue
		}
		if strings.Contains(cmdline, d.Pattern) {
			pids = append(pids, p.Pid)
		}
	}
	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })
	return pids, nil
}

// First returns the lowest matching PID, or 0 when nothing matches.
// When several unrelated processes share the pattern substring the lowest
// PID wins; callers that need exactness should use full-path patterns.
func (d PatternDetector) First() (int32, error) {
	pids, err := d.Find()
	if err != nil || len(pids) == 0 {
		return 0, err
	}
	return pids[0], nil
}

func (d PatternDetector) Alive() (bool, error) {
	pid, err := d.First()
	if err != nil {
		return false, err
	}
	return pid != 0, nil
}

func (d PatternDetector) Describe() string { return "pattern:" + d.Pattern }
