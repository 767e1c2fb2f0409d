package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/matrixwatcher/watchctl/internal/logger"
	"github.com/matrixwatcher/watchctl/internal/registry"
	"github.com/matrixwatcher/watchctl/internal/status"
)

// Built-in endpoints of the stock Matrix Watcher deployment. All of them
// are overridable from the TOML file.
const (
	DefaultHealthURL   = "https://matrix-watcher.org"
	DefaultClustersURL = "http://localhost:5555/api/levels"
	DefaultListen      = ":8080"
	DefaultBasePath    = "/api"
)

// FileConfig represents the top-level TOML structure.
type FileConfig struct {
	BaseDir   string          `toml:"base_dir" mapstructure:"base_dir"`
	LogDir    string          `toml:"log_dir" mapstructure:"log_dir"`
	RunDir    string          `toml:"run_dir" mapstructure:"run_dir"`
	Settle    time.Duration   `toml:"settle" mapstructure:"settle"`
	Log       *LogConfig      `toml:"log" mapstructure:"log"`
	Health    *HealthConfig   `toml:"health" mapstructure:"health"`
	Clusters  *ClustersConfig `toml:"clusters" mapstructure:"clusters"`
	Server    *ServerConfig   `toml:"server" mapstructure:"server"`
	Metrics   *MetricsConfig  `toml:"metrics" mapstructure:"metrics"`
	History   *HistoryConfig  `toml:"history" mapstructure:"history"`
	Processes []ProcConfig    `toml:"processes" mapstructure:"processes"`
}

type LogConfig struct {
	MaxSizeMB  int  `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int  `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int  `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool `toml:"compress" mapstructure:"compress"`
}

type HealthConfig struct {
	URL     string        `toml:"url" mapstructure:"url"`
	Timeout time.Duration `toml:"timeout" mapstructure:"timeout"`
}

type ClustersConfig struct {
	APIURL  string        `toml:"api_url" mapstructure:"api_url"`
	Timeout time.Duration `toml:"timeout" mapstructure:"timeout"`
	Max     int           `toml:"max" mapstructure:"max"`
}

type ServerConfig struct {
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Listen  string `toml:"listen" mapstructure:"listen"`
}

type HistoryConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

// ProcConfig is one [[processes]] entry. When any entries are present they
// replace the built-in registry entirely.
type ProcConfig struct {
	Label    string `toml:"label" mapstructure:"label"`
	Pattern  string `toml:"pattern" mapstructure:"pattern"`
	Command  string `toml:"command" mapstructure:"command"`
	WorkDir  string `toml:"workdir" mapstructure:"workdir"`
	Log      string `toml:"log" mapstructure:"log"`
	Artifact string `toml:"artifact" mapstructure:"artifact"`
	Optional bool   `toml:"optional" mapstructure:"optional"`
}

// Config is the resolved runtime configuration.
type Config struct {
	Registry *registry.Registry
	RunDir   string
	Settle   time.Duration
	LogCfg   logger.Config
	Reporter status.Config
	Server   *ServerConfig
	Metrics  *MetricsConfig
	History  *HistoryConfig
}

// Load reads the TOML file at path and resolves the runtime configuration.
// An empty path yields the stock configuration rooted at the current
// working directory.
func Load(path string) (*Config, error) {
	fc := FileConfig{}
	if path != "" {
		v := viper.New()
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
		if err := v.Unmarshal(&fc); err != nil {
			return nil, err
		}
	}
	return resolve(fc, filepath.Dir(path))
}

func resolve(fc FileConfig, confDir string) (*Config, error) {
	baseDir := fc.BaseDir
	if baseDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		baseDir = wd
	} else if !filepath.IsAbs(baseDir) && confDir != "" {
		baseDir = filepath.Join(confDir, baseDir)
	}
	logDir := fc.LogDir
	if logDir == "" {
		logDir = filepath.Join(baseDir, "logs")
	}
	runDir := fc.RunDir
	if runDir == "" {
		runDir = filepath.Join(baseDir, "run")
	}

	var reg *registry.Registry
	if len(fc.Processes) == 0 {
		reg = registry.Default(baseDir, logDir)
	} else {
		specs := make([]registry.Spec, 0, len(fc.Processes))
		for _, pc := range fc.Processes {
			if pc.Label == "" {
				return nil, fmt.Errorf("config: process entry requires a label")
			}
			logPath := pc.Log
			if logPath == "" && pc.Command != "" {
				logPath = filepath.Join(logDir, registry.Slug(pc.Label)+".log")
			}
			specs = append(specs, registry.Spec{
				Label:    pc.Label,
				Pattern:  pc.Pattern,
				Command:  pc.Command,
				WorkDir:  pc.WorkDir,
				LogPath:  logPath,
				Artifact: pc.Artifact,
				Optional: pc.Optional,
			})
		}
		var err error
		reg, err = registry.New(specs)
		if err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		Registry: reg,
		RunDir:   runDir,
		Settle:   fc.Settle,
		Server:   fc.Server,
		Metrics:  fc.Metrics,
		History:  fc.History,
	}
	if fc.Log != nil {
		cfg.LogCfg = logger.Config{
			MaxSizeMB:  fc.Log.MaxSizeMB,
			MaxBackups: fc.Log.MaxBackups,
			MaxAgeDays: fc.Log.MaxAgeDays,
			Compress:   fc.Log.Compress,
		}
	}

	cfg.Reporter = status.Config{
		HealthURL:   DefaultHealthURL,
		ClustersURL: DefaultClustersURL,
		RunDir:      runDir,
	}
	if fc.Health != nil {
		if fc.Health.URL != "" {
			cfg.Reporter.HealthURL = fc.Health.URL
		}
		cfg.Reporter.HealthTimeout = fc.Health.Timeout
	}
	if fc.Clusters != nil {
		if fc.Clusters.APIURL != "" {
			cfg.Reporter.ClustersURL = fc.Clusters.APIURL
		}
		cfg.Reporter.ClustersTimeout = fc.Clusters.Timeout
		cfg.Reporter.MaxClusters = fc.Clusters.Max
	}
	if cfg.Server != nil {
		if cfg.Server.Listen == "" {
			cfg.Server.Listen = DefaultListen
		}
		if cfg.Server.BasePath == "" {
			cfg.Server.BasePath = DefaultBasePath
		}
	}
	return cfg, nil
}
