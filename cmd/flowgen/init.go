package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

func runInit(args []string) error {
	def := defaultConfig()
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	listenAddr := fs.String("listen-addr", def.ListenAddr, "TCP listen address")
	dbDriver := fs.String("db-driver", def.DBDriver, "store: libsql, postgres or memory")
	dbPath := fs.String("db-path", def.DBPath, "libsql database path")
	postgresURL := fs.String("postgres-url", "", "postgres connection URL (db-driver postgres)")
	logLevel := fs.String("log-level", def.LogLevel, "log level: debug, info, warn, error")
	maxNodes := fs.Int("max-nodes", def.MaxNodes, "nodes per diagram")
	maxVariables := fs.Int("max-variables", def.MaxVariables, "shared variables per project")
	maxDiagrams := fs.Int("max-diagrams", def.MaxDiagrams, "diagrams per project")
	maxSteps := fs.Int("max-steps", def.MaxSteps, "statements one run may execute")
	dialect := fs.String("dialect", def.Dialect, "payload expression dialect: expr or cel")
	cronSpec := fs.String("maintenance-cron", def.MaintenanceCron, "store maintenance schedule")
	retention := fs.Int("retention-days", def.RetentionDays, "days generated source is kept (0 keeps it forever)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := Config{
		ListenAddr:      *listenAddr,
		DBDriver:        *dbDriver,
		DBPath:          *dbPath,
		PostgresURL:     *postgresURL,
		LogLevel:        *logLevel,
		MaxNodes:        *maxNodes,
		MaxVariables:    *maxVariables,
		MaxDiagrams:     *maxDiagrams,
		MaxSteps:        *maxSteps,
		Dialect:         *dialect,
		MaintenanceCron: *cronSpec,
		RetentionDays:   *retention,
	}
	path := settingsPath()
	if err := writeSettings(path, cfg); err != nil {
		return err
	}
	fmt.Printf("Config written to %s\n", path)

	signalRunningServer()
	return nil
}

func writeSettings(path string, cfg Config) error {
	if err := os.MkdirAll(flowgenDir(), 0o700); err != nil {
		return fmt.Errorf("cannot create %s: %w", flowgenDir(), err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("cannot write %s: %w", path, err)
	}
	return nil
}

// signalRunningServer sends SIGHUP to a running flowgen server (via pidfile).
// Returns true if a server was signaled.
func signalRunningServer() bool {
	data, err := os.ReadFile(pidPath())
	if err != nil {
		return false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Check if process is alive.
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return false
	}
	if err := proc.Signal(syscall.SIGHUP); err != nil {
		return false
	}
	fmt.Printf("Signaled running server (PID %d) to reload configuration\n", pid)
	return true
}
