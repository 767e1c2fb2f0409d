package registry

import (
	"fmt"
	"path/filepath"
)

// Spec describes one managed process: how to find it in the OS process
// table and, when it has a Command, how to launch it.
type Spec struct {
	Label    string `json:"label" mapstructure:"label"`
	Pattern  string `json:"pattern" mapstructure:"pattern"`
	Command  string `json:"command,omitempty" mapstructure:"command"`
	WorkDir  string `json:"work_dir,omitempty" mapstructure:"workdir"`
	LogPath  string `json:"log_path,omitempty" mapstructure:"log"`
	Artifact string `json:"artifact,omitempty" mapstructure:"artifact"`
	Optional bool   `json:"optional,omitempty" mapstructure:"optional"`
}

// Managed reports whether this entry can be spawned by the lifecycle
// controller. Entries without a command (e.g. externally launched tunnels
// configured only for status) are observe-only.
func (s Spec) Managed() bool { return s.Command != "" }

// Registry is an ordered, immutable set of process specs. Labels are unique.
type Registry struct {
	specs  []Spec
	byName map[string]int
}

// New validates specs and builds a registry. Order is preserved.
func New(specs []Spec) (*Registry, error) {
	r := &Registry{byName: make(map[string]int, len(specs))}
	for _, s := range specs {
		if s.Label == "" {
			return nil, fmt.Errorf("registry: spec with empty label")
		}
		if s.Pattern == "" {
			return nil, fmt.Errorf("registry: process %q requires a match pattern", s.Label)
		}
		if _, dup := r.byName[s.Label]; dup {
			return nil, fmt.Errorf("registry: duplicate label %q", s.Label)
		}
		r.byName[s.Label] = len(r.specs)
		r.specs = append(r.specs, s)
	}
	return r, nil
}

// Specs returns the registered specs in definition order.
func (r *Registry) Specs() []Spec {
	out := make([]Spec, len(r.specs))
	copy(out, r.specs)
	return out
}

// Lookup returns the spec for label.
func (r *Registry) Lookup(label string) (Spec, bool) {
	i, ok := r.byName[label]
	if !ok {
		return Spec{}, false
	}
	return r.specs[i], true
}

// Len returns the number of registered processes.
func (r *Registry) Len() int { return len(r.specs) }

// Slug converts a label to the file-name form shared by per-process
// artifacts (PID files, derived log names): lowercased, spaces and
// underscores become hyphens, anything else non-alphanumeric is dropped.
func Slug(label string) string {
	out := make([]rune, 0, len(label))
	for _, r := range label {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			out = append(out, r)
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
		case r == ' ', r == '_':
			out = append(out, '-')
		}
	}
	return string(out)
}

// PIDFilePath returns the PID file location for label under runDir, or ""
// when no run directory is configured.
func PIDFilePath(runDir, label string) string {
	if runDir == "" {
		return ""
	}
	return filepath.Join(runDir, Slug(label)+".pid")
}

// Default returns the stock Matrix Watcher registry. baseDir is the
// directory holding the watcher scripts; logDir receives one log file per
// process. The Oracle instance creator only starts when its script exists,
// so it is marked optional with the script path as artifact.
func Default(baseDir, logDir string) *Registry {
	join := func(name string) string { return filepath.Join(baseDir, name) }
	log := func(name string) string { return filepath.Join(logDir, name) }
	specs := []Spec{
		{
			Label:   "Main Sensors",
			Pattern: "main.py",
			Command: "python3 " + join("main.py"),
			WorkDir: baseDir,
			LogPath: log("sensors.log"),
		},
		{
			Label:   "PWA Server",
			Pattern: "run_pwa.py",
			Command: "python3 " + join("run_pwa.py"),
			WorkDir: baseDir,
			LogPath: log("pwa.log"),
		},
		{
			Label:   "PWA Watchdog",
			Pattern: "pwa_watchdog.py",
			Command: "python3 " + join("pwa_watchdog.py"),
			WorkDir: baseDir,
			LogPath: log("watchdog.log"),
		},
		{
			Label:   "Cloudflare Tunnel",
			Pattern: "cloudflared",
			Command: "cloudflared tunnel run matrix-watcher",
			WorkDir: baseDir,
			LogPath: log("cloudflared.log"),
		},
		{
			Label:    "Oracle Creator",
			Pattern:  "oracle_instance_creator.py",
			Command:  "python3 " + join("oracle_instance_creator.py"),
			WorkDir:  baseDir,
			LogPath:  log("oracle.log"),
			Artifact: join("oracle_instance_creator.py"),
			Optional: true,
		},
	}
	r, err := New(specs)
	if err != nil {
		// static input; cannot fail
		panic(err)
	}
	return r
}
