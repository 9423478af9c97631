package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rendis/flowgen/internal/expressions"
	"github.com/rendis/flowgen/internal/graph"
	"github.com/rendis/flowgen/internal/runner"
	"github.com/rendis/flowgen/internal/scheduler"
)

// Storage drivers.
const (
	driverLibSQL   = "libsql"
	driverPostgres = "postgres"
	driverMemory   = "memory"
)

// Config holds all flowgen configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	ListenAddr      string `json:"listen_addr"`
	DBDriver        string `json:"db_driver"`
	DBPath          string `json:"db_path"`
	PostgresURL     string `json:"postgres_url,omitempty"`
	LogLevel        string `json:"log_level"`
	MaxNodes        int    `json:"max_nodes"`
	MaxVariables    int    `json:"max_variables"`
	MaxDiagrams     int    `json:"max_diagrams"`
	MaxSteps        int    `json:"max_steps"`
	Dialect         string `json:"dialect"`
	MaintenanceCron string `json:"maintenance_cron"`
	RetentionDays   int    `json:"retention_days"`
}

func defaultConfig() Config {
	return Config{
		ListenAddr:      ":4200",
		DBDriver:        driverLibSQL,
		DBPath:          filepath.Join(flowgenDir(), "flowgen.db"),
		LogLevel:        "info",
		MaxNodes:        graph.DefaultMaxNodes,
		MaxVariables:    graph.DefaultMaxVariables,
		MaxDiagrams:     graph.DefaultMaxDiagrams,
		MaxSteps:        runner.DefaultMaxSteps,
		Dialect:         expressions.DialectExpr,
		MaintenanceCron: scheduler.DefaultSpec,
		RetentionDays:   30,
	}
}

func flowgenDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".flowgen"
	}
	return filepath.Join(home, ".flowgen")
}

func settingsPath() string {
	return filepath.Join(flowgenDir(), "settings.json")
}

func loadConfig() Config {
	return loadConfigFrom(settingsPath(), os.Getenv)
}

func loadConfigFrom(path string, getenv func(string) string) Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(path); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				*dst = n
			}
		}
	}
	str("FLOWGEN_LISTEN_ADDR", &cfg.ListenAddr)
	str("FLOWGEN_DB_DRIVER", &cfg.DBDriver)
	str("FLOWGEN_DB_PATH", &cfg.DBPath)
	str("FLOWGEN_POSTGRES_URL", &cfg.PostgresURL)
	str("FLOWGEN_LOG_LEVEL", &cfg.LogLevel)
	num("FLOWGEN_MAX_NODES", &cfg.MaxNodes)
	num("FLOWGEN_MAX_VARIABLES", &cfg.MaxVariables)
	num("FLOWGEN_MAX_DIAGRAMS", &cfg.MaxDiagrams)
	num("FLOWGEN_MAX_STEPS", &cfg.MaxSteps)
	str("FLOWGEN_DIALECT", &cfg.Dialect)
	str("FLOWGEN_MAINTENANCE_CRON", &cfg.MaintenanceCron)
	num("FLOWGEN_RETENTION_DAYS", &cfg.RetentionDays)

	return cfg
}

// Limits returns the project bounds the configuration asks for.
func (c Config) Limits() graph.Limits {
	return graph.Limits{
		MaxNodes:     c.MaxNodes,
		MaxVariables: c.MaxVariables,
		MaxDiagrams:  c.MaxDiagrams,
	}
}

// configDiff describes what changed between two configurations.
type configDiff struct {
	LogLevelChanged bool
	RestartNeeded   []string // fields that require a server restart
}

func diffConfigs(old, new Config) configDiff {
	var d configDiff
	if old.LogLevel != new.LogLevel {
		d.LogLevelChanged = true
	}
	if old.ListenAddr != new.ListenAddr {
		d.RestartNeeded = append(d.RestartNeeded, "listen_addr")
	}
	if old.DBDriver != new.DBDriver {
		d.RestartNeeded = append(d.RestartNeeded, "db_driver")
	}
	if old.DBPath != new.DBPath {
		d.RestartNeeded = append(d.RestartNeeded, "db_path")
	}
	if old.PostgresURL != new.PostgresURL {
		d.RestartNeeded = append(d.RestartNeeded, "postgres_url")
	}
	if old.Limits() != new.Limits() {
		d.RestartNeeded = append(d.RestartNeeded, "limits")
	}
	if old.MaxSteps != new.MaxSteps {
		d.RestartNeeded = append(d.RestartNeeded, "max_steps")
	}
	if old.Dialect != new.Dialect {
		d.RestartNeeded = append(d.RestartNeeded, "dialect")
	}
	if old.MaintenanceCron != new.MaintenanceCron || old.RetentionDays != new.RetentionDays {
		d.RestartNeeded = append(d.RestartNeeded, "maintenance")
	}
	return d
}

func pidPath() string {
	return filepath.Join(flowgenDir(), "flowgen.pid")
}
